package core

import (
	"errors"
	"fmt"
)

// Dispatch errors raised by the registry pallet and the runtime.
var (
	ErrDomainExists     = errors.New("domain already registered")
	ErrNotOwner         = errors.New("caller does not own the domain")
	ErrTransferToSelf   = errors.New("cannot transfer a domain to its owner")
	ErrExceedMaxOwned   = errors.New("account owns the maximum number of domains")
	ErrDomainNotFound   = errors.New("domain does not exist")
	ErrNotForSale       = errors.New("domain is not for sale")
	ErrBidTooLow        = errors.New("bid price is lower than the asking price")
	ErrNotEnoughBalance = errors.New("not enough balance")
	ErrBuyerIsOwner     = errors.New("buyer already owns the domain")
	ErrCountOverflow    = errors.New("domain counter overflow")
	ErrBadOrigin        = errors.New("bad origin")
	ErrRequireSudo      = errors.New("sender is not the sudo key")
)

// Submission and transport errors.
var (
	ErrInvalidTransaction = errors.New("invalid transaction")
	ErrUnknownCall        = errors.New("unknown call")
	ErrMissingParam       = errors.New("missing parameter")
	ErrNoAccount          = errors.New("no account selected")
	ErrClosed             = errors.New("closed")
	ErrStreamEnded        = errors.New("status stream ended before a terminal state")
)

type moduleError struct {
	pallet string
	name   string
}

var moduleErrors = map[error]moduleError{
	ErrDomainExists:     {"SubstrateKitties", "DomainIsset"},
	ErrNotOwner:         {"SubstrateKitties", "NotdomainOwner"},
	ErrTransferToSelf:   {"SubstrateKitties", "TransferToSelf"},
	ErrExceedMaxOwned:   {"SubstrateKitties", "ExceedMaxdomainOwned"},
	ErrDomainNotFound:   {"SubstrateKitties", "domainNotExist"},
	ErrNotForSale:       {"SubstrateKitties", "domainNotForSale"},
	ErrBidTooLow:        {"SubstrateKitties", "domainBidPriceTooLow"},
	ErrNotEnoughBalance: {"SubstrateKitties", "NotEnoughBalance"},
	ErrBuyerIsOwner:     {"SubstrateKitties", "BuyerIsdomainOwner"},
	ErrCountOverflow:    {"SubstrateKitties", "domainCntOverflow"},
	ErrBadOrigin:        {"System", "BadOrigin"},
	ErrRequireSudo:      {"Sudo", "RequireSudo"},
}

// DispatchError is a runtime error reported for an extrinsic that made it into a block.
type DispatchError struct {
	Pallet string `json:"pallet"`
	Name   string `json:"error"`
}

func (e *DispatchError) Error() string {
	if sentinel := e.sentinel(); sentinel != nil {
		return fmt.Sprintf("%s.%s: %v", e.Pallet, e.Name, sentinel)
	}
	return e.Pallet + "." + e.Name
}

// Is matches the sentinel the pallet error corresponds to.
func (e *DispatchError) Is(target error) bool {
	return target != nil && e.sentinel() == target
}

func (e *DispatchError) sentinel() error {
	for sentinel, me := range moduleErrors {
		if me.pallet == e.Pallet && me.name == e.Name {
			return sentinel
		}
	}
	return nil
}

// AsDispatchError converts a runtime error into its wire form.
// Errors without a known pallet name are reported as Other.
func AsDispatchError(err error) *DispatchError {
	var de *DispatchError
	if errors.As(err, &de) {
		return de
	}
	for sentinel, me := range moduleErrors {
		if errors.Is(err, sentinel) {
			return &DispatchError{Pallet: me.pallet, Name: me.name}
		}
	}
	return &DispatchError{Pallet: "System", Name: "Other"}
}
