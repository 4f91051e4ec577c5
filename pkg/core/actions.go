package core

import "fmt"

// Action is a user-triggered call: fixed pallet/method names, ordered textual arguments, and
// which of those arguments are managed input fields.
type Action struct {
	Label       string
	Mode        Mode
	Pallet      string
	Method      string
	Args        []string
	ParamFields []bool
}

// Extrinsic validates the action's inputs and builds the extrinsic for session.
//
// Arguments beyond len(ParamFields) are not part of the call. A managed field left empty is
// an error unless the parameter is optional.
func (a Action) Extrinsic(session Session) (Extrinsic, error) {
	spec, err := LookupCall(a.Pallet, a.Method)
	if err != nil {
		return Extrinsic{}, err
	}

	args := a.Args
	if len(args) > len(a.ParamFields) {
		args = args[:len(a.ParamFields)]
	}
	for i, managed := range a.ParamFields {
		if i >= len(args) || i >= len(spec.Params) {
			break
		}
		if managed && args[i] == "" && !spec.Params[i].Optional() {
			return Extrinsic{}, fmt.Errorf("%w: %s", ErrMissingParam, spec.Params[i].Name)
		}
	}

	call, err := spec.ParseArgs(args)
	if err != nil {
		return Extrinsic{}, err
	}

	xt := Extrinsic{Mode: a.Mode, Call: call}
	if a.Mode != Unsigned {
		if session.Account.IsZero() {
			return Extrinsic{}, ErrNoAccount
		}
		xt.Signer = session.Account
	}
	return xt, nil
}

// CreateDomainAction registers the typed name (normalized with DomainName).
func CreateDomainAction(input string) Action {
	return Action{
		Label:       "Create Domain",
		Mode:        Signed,
		Pallet:      PalletRegistry,
		Method:      MethodCreateDomain,
		Args:        []string{DomainName(input)},
		ParamFields: []bool{true},
	}
}

// SetPriceAction sets or, with an empty price, clears the asking price.
func SetPriceAction(id DomainID, price string) Action {
	return Action{
		Label:       "Set Price",
		Mode:        Signed,
		Pallet:      PalletRegistry,
		Method:      MethodSetPrice,
		Args:        []string{id.String(), price},
		ParamFields: []bool{true, true},
	}
}

// SetWalletAction sets or, with an empty wallet, clears the payout wallet.
func SetWalletAction(id DomainID, wallet string) Action {
	return Action{
		Label:       "Set Wallet",
		Mode:        Signed,
		Pallet:      PalletRegistry,
		Method:      MethodSetWallet,
		Args:        []string{id.String(), wallet},
		ParamFields: []bool{true, true},
	}
}

// TransferAction moves the domain to the receiver.
func TransferAction(receiver string, id DomainID) Action {
	return Action{
		Label:       "Transfer",
		Mode:        Signed,
		Pallet:      PalletRegistry,
		Method:      MethodTransfer,
		Args:        []string{receiver, id.String()},
		ParamFields: []bool{true, true},
	}
}

// BuyAction buys v at its asking price. The price is shown to the buyer but is not a call
// argument.
func BuyAction(v View) Action {
	return Action{
		Label:       "Buy Domain",
		Mode:        Signed,
		Pallet:      PalletRegistry,
		Method:      MethodBuyDomain,
		Args:        []string{v.ID.String(), v.PriceText()},
		ParamFields: []bool{true},
	}
}
