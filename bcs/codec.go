package bcs

import (
	"encoding/binary"
	"math/big"

	"github.com/holiman/uint256"
	"github.com/pkg/errors"
)

// Encoder accumulates BCS-encoded bytes. The zero value is ready to use.
type Encoder struct {
	buf []byte
}

func NewEncoder() *Encoder { return &Encoder{} }

func (e *Encoder) Bytes() []byte { return e.buf }

func (e *Encoder) Bool(v bool) *Encoder {
	if v {
		e.buf = append(e.buf, 1)
	} else {
		e.buf = append(e.buf, 0)
	}
	return e
}

func (e *Encoder) U8(v uint8) *Encoder {
	e.buf = append(e.buf, v)
	return e
}

func (e *Encoder) U16(v uint16) *Encoder {
	var tmp [2]byte
	binary.LittleEndian.PutUint16(tmp[:], v)
	e.buf = append(e.buf, tmp[:]...)
	return e
}

func (e *Encoder) U32(v uint32) *Encoder {
	var tmp [4]byte
	binary.LittleEndian.PutUint32(tmp[:], v)
	e.buf = append(e.buf, tmp[:]...)
	return e
}

func (e *Encoder) U64(v uint64) *Encoder {
	var tmp [8]byte
	binary.LittleEndian.PutUint64(tmp[:], v)
	e.buf = append(e.buf, tmp[:]...)
	return e
}

// U128 encodes the low 128 bits of a *uint256.Int as 16 little-endian
// bytes; higher bits are dropped without an error.
func (e *Encoder) U128(v *uint256.Int) *Encoder {
	return e.fixedLittleEndian(v, 16)
}

// U256 encodes a *uint256.Int as 32 little-endian bytes.
func (e *Encoder) U256(v *uint256.Int) *Encoder {
	return e.fixedLittleEndian(v, 32)
}

func (e *Encoder) fixedLittleEndian(v *uint256.Int, width int) *Encoder {
	if v == nil {
		v = new(uint256.Int)
	}
	be := v.Bytes32() // big-endian, 32 bytes
	out := make([]byte, width)
	for i := 0; i < width && i < 32; i++ {
		out[i] = be[32-1-i]
	}
	e.buf = append(e.buf, out...)
	return e
}

func (e *Encoder) Address(a Address) *Encoder {
	e.buf = append(e.buf, a[:]...)
	return e
}

// ULEB128 writes v using the standard continuation-bit varint scheme
// used throughout BCS for lengths.
func (e *Encoder) ULEB128(v uint64) *Encoder {
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if v != 0 {
			b |= 0x80
		}
		e.buf = append(e.buf, b)
		if v == 0 {
			break
		}
	}
	return e
}

// BytesVec writes a ULEB128-prefixed vector<u8>.
func (e *Encoder) BytesVec(data []byte) *Encoder {
	e.ULEB128(uint64(len(data)))
	e.buf = append(e.buf, data...)
	return e
}

// String writes a ULEB128-prefixed UTF-8 string (same wire shape as
// vector<u8>).
func (e *Encoder) String(s string) *Encoder {
	return e.BytesVec([]byte(s))
}

// AddressVec writes a ULEB128-prefixed vector<address>.
func (e *Encoder) AddressVec(addrs []Address) *Encoder {
	e.ULEB128(uint64(len(addrs)))
	for _, a := range addrs {
		e.Address(a)
	}
	return e
}

// U64Vec writes a ULEB128-prefixed vector<u64>.
func (e *Encoder) U64Vec(vals []uint64) *Encoder {
	e.ULEB128(uint64(len(vals)))
	for _, v := range vals {
		e.U64(v)
	}
	return e
}

// Raw appends already-encoded bytes verbatim (used to splice
// pre-serialized struct fields together in declared order).
func (e *Encoder) Raw(b []byte) *Encoder {
	e.buf = append(e.buf, b...)
	return e
}

// Decoder reads BCS-encoded bytes sequentially.
type Decoder struct {
	buf []byte
	pos int
}

func NewDecoder(b []byte) *Decoder { return &Decoder{buf: b} }

func (d *Decoder) Remaining() []byte { return d.buf[d.pos:] }

func (d *Decoder) require(n int) error {
	if d.pos+n > len(d.buf) {
		return errors.Errorf("bcs: unexpected end of input: need %d bytes, have %d", n, len(d.buf)-d.pos)
	}
	return nil
}

func (d *Decoder) Bool() (bool, error) {
	if err := d.require(1); err != nil {
		return false, err
	}
	v := d.buf[d.pos]
	d.pos++
	if v > 1 {
		return false, errors.Errorf("bcs: invalid bool byte 0x%x", v)
	}
	return v == 1, nil
}

func (d *Decoder) U8() (uint8, error) {
	if err := d.require(1); err != nil {
		return 0, err
	}
	v := d.buf[d.pos]
	d.pos++
	return v, nil
}

func (d *Decoder) U16() (uint16, error) {
	if err := d.require(2); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint16(d.buf[d.pos:])
	d.pos += 2
	return v, nil
}

func (d *Decoder) U32() (uint32, error) {
	if err := d.require(4); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint32(d.buf[d.pos:])
	d.pos += 4
	return v, nil
}

func (d *Decoder) U64() (uint64, error) {
	if err := d.require(8); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint64(d.buf[d.pos:])
	d.pos += 8
	return v, nil
}

func (d *Decoder) fixedLittleEndian(width int) (*uint256.Int, error) {
	if err := d.require(width); err != nil {
		return nil, err
	}
	be := make([]byte, width)
	copy(be, d.buf[d.pos:d.pos+width])
	d.pos += width
	// reverse to big-endian for uint256.SetBytes
	for i, j := 0, len(be)-1; i < j; i, j = i+1, j-1 {
		be[i], be[j] = be[j], be[i]
	}
	out := new(uint256.Int)
	out.SetBytes(be)
	return out, nil
}

func (d *Decoder) U128() (*uint256.Int, error) { return d.fixedLittleEndian(16) }
func (d *Decoder) U256() (*uint256.Int, error) { return d.fixedLittleEndian(32) }

func (d *Decoder) Address() (Address, error) {
	var out Address
	if err := d.require(AddressLength); err != nil {
		return out, err
	}
	copy(out[:], d.buf[d.pos:d.pos+AddressLength])
	d.pos += AddressLength
	return out, nil
}

// ULEB128 reads a standard continuation-bit varint.
func (d *Decoder) ULEB128() (uint64, error) {
	var result uint64
	var shift uint
	for {
		if err := d.require(1); err != nil {
			return 0, err
		}
		b := d.buf[d.pos]
		d.pos++
		result |= uint64(b&0x7f) << shift
		if b&0x80 == 0 {
			break
		}
		shift += 7
		if shift >= 64 {
			return 0, errors.New("bcs: ULEB128 overflow")
		}
	}
	return result, nil
}

func (d *Decoder) BytesVec() ([]byte, error) {
	n, err := d.ULEB128()
	if err != nil {
		return nil, err
	}
	if err := d.require(int(n)); err != nil {
		return nil, err
	}
	out := make([]byte, n)
	copy(out, d.buf[d.pos:d.pos+int(n)])
	d.pos += int(n)
	return out, nil
}

func (d *Decoder) String() (string, error) {
	b, err := d.BytesVec()
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func (d *Decoder) AddressVec() ([]Address, error) {
	n, err := d.ULEB128()
	if err != nil {
		return nil, err
	}
	out := make([]Address, 0, n)
	for i := uint64(0); i < n; i++ {
		a, err := d.Address()
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, nil
}

func (d *Decoder) U64Vec() ([]uint64, error) {
	n, err := d.ULEB128()
	if err != nil {
		return nil, err
	}
	out := make([]uint64, 0, n)
	for i := uint64(0); i < n; i++ {
		v, err := d.U64()
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

// U256ToBig is a small convenience used by callers that want a
// *big.Int view of a decoded U256/U128 value (e.g. for error messages).
func U256ToBig(v *uint256.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return v.ToBig()
}
