// Package bcs implements the TypeTag grammar and Binary Canonical
// Serialization (BCS) codec shared by every other component: address
// canonicalization, type-tag parsing/formatting, and primitive/vector/
// struct encode-decode.
package bcs

import (
	"encoding/hex"
	"strings"

	"github.com/pkg/errors"
)

// AddressLength is the canonical width of an on-chain address.
const AddressLength = 32

// Address is a 32-byte account/object/package identifier.
type Address [AddressLength]byte

// ZeroAddress is the all-zero address, used for the default sender and
// for uninitialized object ids.
var ZeroAddress = Address{}

// ParseAddress canonicalizes a hex address string ("0x2", "0x0...02",
// with or without the 0x prefix) into its full 32-byte form. It never
// panics; malformed input returns an error.
func ParseAddress(s string) (Address, error) {
	var out Address
	s = strings.TrimPrefix(strings.TrimSpace(s), "0x")
	s = strings.TrimPrefix(s, "0X")
	if s == "" {
		return out, errors.New("bcs: empty address")
	}
	if len(s)%2 == 1 {
		s = "0" + s
	}
	if len(s) > AddressLength*2 {
		return out, errors.Errorf("bcs: address %q exceeds %d bytes", s, AddressLength)
	}
	raw, err := hex.DecodeString(s)
	if err != nil {
		return out, errors.Wrapf(err, "bcs: invalid address %q", s)
	}
	copy(out[AddressLength-len(raw):], raw)
	return out, nil
}

// MustParseAddress is ParseAddress for callers that already know the
// input is well-formed (test fixtures, constant table construction).
func MustParseAddress(s string) Address {
	a, err := ParseAddress(s)
	if err != nil {
		panic(err)
	}
	return a
}

// String renders the address in the canonical 66-char "0x…" form used
// for map keys and display.
func (a Address) String() string {
	return "0x" + hex.EncodeToString(a[:])
}

// Bytes returns the address as a fresh byte slice copy.
func (a Address) Bytes() []byte {
	out := make([]byte, AddressLength)
	copy(out, a[:])
	return out
}

// IsZero reports whether the address is the all-zero address.
func (a Address) IsZero() bool {
	return a == ZeroAddress
}

// Framework package addresses, bundled at environment construction.
var (
	FrameworkStd   = MustParseAddress("0x1")
	FrameworkCore  = MustParseAddress("0x2")
	FrameworkSuiSys = MustParseAddress("0x3")
	ClockObjectID  = MustParseAddress("0x6")
	RandomObjectID = MustParseAddress("0x8")
)

// IsFrameworkAddress reports whether addr is one of the bundled
// standard-library package addresses (0x1/0x2/0x3).
func IsFrameworkAddress(addr Address) bool {
	return addr == FrameworkStd || addr == FrameworkCore || addr == FrameworkSuiSys
}
