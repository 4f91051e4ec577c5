package scale

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompact_KnownVectors(t *testing.T) {
	cases := []struct {
		value uint64
		want  []byte
	}{
		{0, []byte{0x00}},
		{1, []byte{0x04}},
		{42, []byte{0xa8}},
		{63, []byte{0xfc}},
		{64, []byte{0x01, 0x01}},
		{16383, []byte{0xfd, 0xff}},
		{16384, []byte{0x02, 0x00, 0x01, 0x00}},
		{1073741823, []byte{0xfe, 0xff, 0xff, 0xff}},
		{1073741824, []byte{0x03, 0x00, 0x00, 0x00, 0x40}},
	}

	for _, tc := range cases {
		e := NewEncoder()
		e.PutCompact(tc.value)
		assert.Equal(t, tc.want, e.Bytes(), "encode %d", tc.value)

		got, err := NewDecoder(tc.want).Compact()
		require.NoError(t, err)
		assert.Equal(t, tc.value, got, "decode %x", tc.want)
	}
}

func TestU128_LittleEndian(t *testing.T) {
	e := NewEncoder()
	require.NoError(t, e.PutU128(big.NewInt(256)))
	assert.Equal(t, append([]byte{0x00, 0x01}, make([]byte, 14)...), e.Bytes())

	v, err := NewDecoder(e.Bytes()).U128()
	require.NoError(t, err)
	assert.Equal(t, int64(256), v.Int64())

	assert.Error(t, NewEncoder().PutU128(big.NewInt(-1)))
	assert.Error(t, NewEncoder().PutU128(nil))
}

func TestOptionAndBytes(t *testing.T) {
	e := NewEncoder()
	e.PutBytes([]byte("home.dot"))
	require.NoError(t, e.PutOption(false, nil))
	require.NoError(t, e.PutOption(true, func(e *Encoder) error {
		e.PutBytes([]byte("0xwallet"))
		return nil
	}))

	d := NewDecoder(e.Bytes())
	name, err := d.Bytes()
	require.NoError(t, err)
	assert.Equal(t, "home.dot", string(name))

	present, err := d.Option(func(*Decoder) error { return nil })
	require.NoError(t, err)
	assert.False(t, present)

	var wallet []byte
	present, err = d.Option(func(d *Decoder) error {
		var err error
		wallet, err = d.Bytes()
		return err
	})
	require.NoError(t, err)
	assert.True(t, present)
	assert.Equal(t, "0xwallet", string(wallet))
	assert.Zero(t, d.Remaining())
}

func TestDecoder_ShortInput(t *testing.T) {
	_, err := NewDecoder([]byte{0x01, 0x02}).U32()
	assert.ErrorIs(t, err, ErrShortBuffer)

	_, err = NewDecoder([]byte{0x10, 'a'}).Bytes()
	assert.ErrorIs(t, err, ErrShortBuffer)

	_, err = NewDecoder([]byte{0x02}).Bool()
	assert.Error(t, err)
}
