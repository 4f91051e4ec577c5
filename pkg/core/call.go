package core

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/aretw0/registrar/pkg/scale"
)

// Mode selects how an extrinsic is authorized.
type Mode int

const (
	Unsigned Mode = iota
	Signed
	Sudo
)

func (m Mode) String() string {
	switch m {
	case Unsigned:
		return "UNSIGNED"
	case Signed:
		return "SIGNED"
	case Sudo:
		return "SUDO"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// ParseMode accepts UNSIGNED, SIGNED or SUDO, optionally with a -TX suffix.
func ParseMode(s string) (Mode, error) {
	switch strings.TrimSuffix(strings.ToUpper(strings.TrimSpace(s)), "-TX") {
	case "UNSIGNED":
		return Unsigned, nil
	case "SIGNED":
		return Signed, nil
	case "SUDO":
		return Sudo, nil
	default:
		return 0, fmt.Errorf("unknown signing mode %q", s)
	}
}

// ParamKind is the wire type of a call parameter.
type ParamKind int

const (
	KindBytes ParamKind = iota
	KindHash
	KindAccount
	KindBalance
	KindOptionalBalance
	KindOptionalBytes
)

// Param describes one call argument.
type Param struct {
	Name string
	Kind ParamKind
}

// Optional reports whether an empty input means None.
func (p Param) Optional() bool {
	return p.Kind == KindOptionalBalance || p.Kind == KindOptionalBytes
}

// CallSpec is the signature of a dispatchable.
type CallSpec struct {
	Pallet   string
	Method   string
	Params   []Param
	RootOnly bool
}

// Name is "pallet.method".
func (s CallSpec) Name() string {
	return s.Pallet + "." + s.Method
}

// Call names and pallets understood by the registry runtime.
const (
	PalletRegistry = "substrateKitties"
	PalletBalances = "balances"

	MethodCreateDomain = "createDomain"
	MethodSetPrice     = "setPrice"
	MethodSetWallet    = "setWallet"
	MethodTransfer     = "transfer"
	MethodBuyDomain    = "buyDomain"
	MethodSetBalance   = "setBalance"
)

var catalog = []CallSpec{
	{Pallet: PalletRegistry, Method: MethodCreateDomain, Params: []Param{{"domain", KindBytes}}},
	{Pallet: PalletRegistry, Method: MethodSetPrice, Params: []Param{{"domainId", KindHash}, {"newPrice", KindOptionalBalance}}},
	{Pallet: PalletRegistry, Method: MethodSetWallet, Params: []Param{{"domainId", KindHash}, {"newWallet", KindOptionalBytes}}},
	{Pallet: PalletRegistry, Method: MethodTransfer, Params: []Param{{"to", KindAccount}, {"domainId", KindHash}}},
	{Pallet: PalletRegistry, Method: MethodBuyDomain, Params: []Param{{"domainId", KindHash}}},
	{Pallet: PalletBalances, Method: MethodTransfer, Params: []Param{{"dest", KindAccount}, {"value", KindBalance}}},
	{Pallet: PalletBalances, Method: MethodSetBalance, Params: []Param{{"who", KindAccount}, {"newFree", KindBalance}}, RootOnly: true},
}

// LookupCall returns the signature of pallet.method.
func LookupCall(pallet, method string) (CallSpec, error) {
	for _, spec := range catalog {
		if spec.Pallet == pallet && spec.Method == method {
			return spec, nil
		}
	}
	return CallSpec{}, fmt.Errorf("%w: %s.%s", ErrUnknownCall, pallet, method)
}

// Calls lists every known dispatchable.
func Calls() []CallSpec {
	out := make([]CallSpec, len(catalog))
	copy(out, catalog)
	return out
}

// Call is a dispatchable with typed arguments:
// KindBytes/KindOptionalBytes → []byte (nil is None), KindHash → DomainID,
// KindAccount → AccountID, KindBalance/KindOptionalBalance → *big.Int (nil is None).
type Call struct {
	Pallet string
	Method string
	Args   []any
}

func (c Call) String() string {
	return c.Pallet + "." + c.Method
}

// ParseArgs converts textual inputs into a typed call.
func (s CallSpec) ParseArgs(inputs []string) (Call, error) {
	if len(inputs) != len(s.Params) {
		return Call{}, fmt.Errorf("%s expects %d arguments, got %d", s.Name(), len(s.Params), len(inputs))
	}
	call := Call{Pallet: s.Pallet, Method: s.Method, Args: make([]any, len(inputs))}
	for i, p := range s.Params {
		v, err := parseParam(p, strings.TrimSpace(inputs[i]))
		if err != nil {
			return Call{}, fmt.Errorf("%s: %w", p.Name, err)
		}
		call.Args[i] = v
	}
	return call, nil
}

func parseParam(p Param, in string) (any, error) {
	if in == "" {
		switch p.Kind {
		case KindOptionalBalance:
			return (*big.Int)(nil), nil
		case KindOptionalBytes:
			return []byte(nil), nil
		default:
			return nil, ErrMissingParam
		}
	}
	switch p.Kind {
	case KindBytes, KindOptionalBytes:
		return []byte(in), nil
	case KindHash:
		return ParseDomainID(in)
	case KindAccount:
		return ParseAccountID(in)
	case KindBalance, KindOptionalBalance:
		v, ok := new(big.Int).SetString(in, 10)
		if !ok || v.Sign() < 0 {
			return nil, fmt.Errorf("invalid balance %q", in)
		}
		if v.BitLen() > 128 {
			return nil, fmt.Errorf("balance %q does not fit in u128", in)
		}
		return v, nil
	default:
		return nil, fmt.Errorf("unsupported parameter kind %d", p.Kind)
	}
}

// EncodeArgs writes the call's arguments in parameter order.
func (s CallSpec) EncodeArgs(e *scale.Encoder, call Call) error {
	if len(call.Args) != len(s.Params) {
		return fmt.Errorf("%s expects %d arguments, got %d", s.Name(), len(s.Params), len(call.Args))
	}
	for i, p := range s.Params {
		if err := encodeParam(e, p, call.Args[i]); err != nil {
			return fmt.Errorf("%s: %w", p.Name, err)
		}
	}
	return nil
}

func encodeParam(e *scale.Encoder, p Param, v any) error {
	switch p.Kind {
	case KindBytes:
		b, ok := v.([]byte)
		if !ok {
			return fmt.Errorf("want []byte, got %T", v)
		}
		e.PutBytes(b)
	case KindOptionalBytes:
		b, ok := v.([]byte)
		if !ok {
			return fmt.Errorf("want []byte, got %T", v)
		}
		return e.PutOption(b != nil, func(e *scale.Encoder) error {
			e.PutBytes(b)
			return nil
		})
	case KindHash:
		id, ok := v.(DomainID)
		if !ok {
			return fmt.Errorf("want DomainID, got %T", v)
		}
		e.PutFixed(id[:])
	case KindAccount:
		a, ok := v.(AccountID)
		if !ok {
			return fmt.Errorf("want AccountID, got %T", v)
		}
		e.PutFixed(a[:])
	case KindBalance:
		b, ok := v.(*big.Int)
		if !ok || b == nil {
			return fmt.Errorf("want balance, got %T", v)
		}
		return e.PutU128(b)
	case KindOptionalBalance:
		b, ok := v.(*big.Int)
		if !ok {
			return fmt.Errorf("want *big.Int, got %T", v)
		}
		return e.PutOption(b != nil, func(e *scale.Encoder) error {
			return e.PutU128(b)
		})
	}
	return nil
}

// DecodeArgs reads the arguments of s from d.
func (s CallSpec) DecodeArgs(d *scale.Decoder) (Call, error) {
	call := Call{Pallet: s.Pallet, Method: s.Method, Args: make([]any, len(s.Params))}
	for i, p := range s.Params {
		v, err := decodeParam(d, p)
		if err != nil {
			return Call{}, fmt.Errorf("%s: %w", p.Name, err)
		}
		call.Args[i] = v
	}
	return call, nil
}

func decodeParam(d *scale.Decoder, p Param) (any, error) {
	switch p.Kind {
	case KindBytes:
		return d.Bytes()
	case KindOptionalBytes:
		var b []byte
		_, err := d.Option(func(d *scale.Decoder) error {
			var err error
			b, err = d.Bytes()
			return err
		})
		return b, err
	case KindHash:
		raw, err := d.Fixed(32)
		if err != nil {
			return nil, err
		}
		return DomainID(raw), nil
	case KindAccount:
		raw, err := d.Fixed(32)
		if err != nil {
			return nil, err
		}
		return AccountID(raw), nil
	case KindBalance:
		return d.U128()
	case KindOptionalBalance:
		var b *big.Int
		_, err := d.Option(func(d *scale.Decoder) error {
			var err error
			b, err = d.U128()
			return err
		})
		return b, err
	default:
		return nil, fmt.Errorf("unsupported parameter kind %d", p.Kind)
	}
}

// Arg returns the i-th argument as T.
func Arg[T any](c Call, i int) (T, error) {
	var zero T
	if i < 0 || i >= len(c.Args) {
		return zero, fmt.Errorf("%s: argument %d out of range", c, i)
	}
	v, ok := c.Args[i].(T)
	if !ok {
		return zero, fmt.Errorf("%s: argument %d has type %T", c, i, c.Args[i])
	}
	return v, nil
}
