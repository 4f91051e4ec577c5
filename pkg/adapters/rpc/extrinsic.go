package rpc

import (
	"errors"
	"fmt"

	"github.com/aretw0/registrar/pkg/core"
	"github.com/aretw0/registrar/pkg/scale"
)

// ExtrinsicBuilder turns an extrinsic into the bytes the node accepts. Signing happens
// here: a production chain needs a builder holding keys and runtime metadata.
type ExtrinsicBuilder interface {
	Build(xt core.Extrinsic) ([]byte, error)
}

// DevExtrinsicVersion tags the development encoding.
const DevExtrinsicVersion = 0x01

// DevBuilder encodes extrinsics in the development format understood by Server: the
// signer is named instead of proven, which only a dev chain accepts.
//
//	version u8 | mode u8 | signer Option<[u8;32]> | pallet Vec<u8> | method Vec<u8> | args
type DevBuilder struct{}

// Build implements ExtrinsicBuilder.
func (DevBuilder) Build(xt core.Extrinsic) ([]byte, error) {
	spec, err := core.LookupCall(xt.Call.Pallet, xt.Call.Method)
	if err != nil {
		return nil, err
	}
	e := scale.NewEncoder()
	e.PutU8(DevExtrinsicVersion)
	e.PutU8(uint8(xt.Mode))
	_ = e.PutOption(!xt.Signer.IsZero(), func(e *scale.Encoder) error {
		e.PutFixed(xt.Signer[:])
		return nil
	})
	e.PutBytes([]byte(xt.Call.Pallet))
	e.PutBytes([]byte(xt.Call.Method))
	if err := spec.EncodeArgs(e, xt.Call); err != nil {
		return nil, fmt.Errorf("encode %s: %w", spec.Name(), err)
	}
	return e.Bytes(), nil
}

// DecodeDevExtrinsic parses the development format.
func DecodeDevExtrinsic(raw []byte) (core.Extrinsic, error) {
	d := scale.NewDecoder(raw)
	version, err := d.U8()
	if err != nil {
		return core.Extrinsic{}, err
	}
	if version != DevExtrinsicVersion {
		return core.Extrinsic{}, fmt.Errorf("unsupported extrinsic version %d", version)
	}
	mode, err := d.U8()
	if err != nil {
		return core.Extrinsic{}, err
	}
	if mode > uint8(core.Sudo) {
		return core.Extrinsic{}, fmt.Errorf("unknown signing mode %d", mode)
	}

	xt := core.Extrinsic{Mode: core.Mode(mode)}
	if _, err := d.Option(func(d *scale.Decoder) error {
		signer, err := d.Fixed(32)
		copy(xt.Signer[:], signer)
		return err
	}); err != nil {
		return core.Extrinsic{}, fmt.Errorf("decode signer: %w", err)
	}

	pallet, err := d.Bytes()
	if err != nil {
		return core.Extrinsic{}, fmt.Errorf("decode pallet: %w", err)
	}
	method, err := d.Bytes()
	if err != nil {
		return core.Extrinsic{}, fmt.Errorf("decode method: %w", err)
	}
	spec, err := core.LookupCall(string(pallet), string(method))
	if err != nil {
		return core.Extrinsic{}, err
	}
	xt.Call, err = spec.DecodeArgs(d)
	if err != nil {
		return core.Extrinsic{}, fmt.Errorf("decode %s: %w", spec.Name(), err)
	}
	if d.Remaining() != 0 {
		return core.Extrinsic{}, errors.New("trailing bytes after extrinsic")
	}
	return xt, nil
}
