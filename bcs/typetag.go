package bcs

import (
	"strings"

	"github.com/pkg/errors"
)

// Kind discriminates the TypeTag sum type.
type Kind uint8

const (
	KindBool Kind = iota
	KindU8
	KindU16
	KindU32
	KindU64
	KindU128
	KindU256
	KindAddress
	KindSigner
	KindVector
	KindStruct
)

var primitiveNames = map[Kind]string{
	KindBool:    "bool",
	KindU8:      "u8",
	KindU16:     "u16",
	KindU32:     "u32",
	KindU64:     "u64",
	KindU128:    "u128",
	KindU256:    "u256",
	KindAddress: "address",
	KindSigner:  "signer",
}

var namesToPrimitive = func() map[string]Kind {
	m := make(map[string]Kind, len(primitiveNames))
	for k, v := range primitiveNames {
		m[v] = k
	}
	return m
}()

// StructTag identifies a Move struct type: its defining address,
// module, name, and (possibly empty) ordered type-parameter list.
type StructTag struct {
	Address    Address
	Module     string
	Name       string
	TypeParams []TypeTag
}

// TypeTag is the sum type described in spec.md §3: a primitive, a
// vector of another TypeTag, or a struct instantiation.
type TypeTag struct {
	Kind    Kind
	Elem    *TypeTag   // set iff Kind == KindVector
	Struct  *StructTag // set iff Kind == KindStruct
}

func Primitive(k Kind) TypeTag { return TypeTag{Kind: k} }

func Vector(elem TypeTag) TypeTag { return TypeTag{Kind: KindVector, Elem: &elem} }

func Struct(tag StructTag) TypeTag { return TypeTag{Kind: KindStruct, Struct: &tag} }

// IsPrimitive reports whether the tag is one of the scalar kinds.
func (t TypeTag) IsPrimitive() bool {
	return t.Kind != KindVector && t.Kind != KindStruct
}

// Equal performs a structural comparison of two type tags.
func (t TypeTag) Equal(o TypeTag) bool {
	return t.String() == o.String()
}

// typeTagDiscriminants is the BCS enum-variant order of move-core-types'
// own TypeTag, which dynamic-field child-id derivation (spec.md §4.3)
// must reproduce byte-for-byte.
var typeTagDiscriminants = map[Kind]uint64{
	KindBool:    0,
	KindU8:      1,
	KindU64:     2,
	KindU128:    3,
	KindAddress: 4,
	KindSigner:  5,
	KindVector:  6,
	KindStruct:  7,
	KindU16:     8,
	KindU32:     9,
	KindU256:    10,
}

// TypeTag BCS-encodes t as move-core-types' TypeTag enum would: a
// ULEB128 variant discriminant, followed by the variant's payload
// (nothing for a primitive, the element tag for Vector, the struct
// tag for Struct).
func (e *Encoder) TypeTag(t TypeTag) *Encoder {
	e.ULEB128(typeTagDiscriminants[t.Kind])
	switch t.Kind {
	case KindVector:
		e.TypeTag(*t.Elem)
	case KindStruct:
		e.StructTag(*t.Struct)
	}
	return e
}

// StructTag BCS-encodes s: address, module name, struct name, then
// the ULEB128-prefixed type-parameter list, matching move-core-types'
// field order.
func (e *Encoder) StructTag(s StructTag) *Encoder {
	e.Address(s.Address)
	e.String(s.Module)
	e.String(s.Name)
	e.ULEB128(uint64(len(s.TypeParams)))
	for _, tp := range s.TypeParams {
		e.TypeTag(tp)
	}
	return e
}

// String formats the tag back into its canonical textual form; it is
// the inverse of ParseTypeTag (R1: parse(format(t)) == t).
func (t TypeTag) String() string {
	var b strings.Builder
	t.format(&b)
	return b.String()
}

func (t TypeTag) format(b *strings.Builder) {
	switch t.Kind {
	case KindVector:
		b.WriteString("vector<")
		t.Elem.format(b)
		b.WriteByte('>')
	case KindStruct:
		s := t.Struct
		b.WriteString(s.Address.String())
		b.WriteString("::")
		b.WriteString(s.Module)
		b.WriteString("::")
		b.WriteString(s.Name)
		if len(s.TypeParams) > 0 {
			b.WriteByte('<')
			for i, tp := range s.TypeParams {
				if i > 0 {
					b.WriteByte(',')
				}
				tp.format(b)
			}
			b.WriteByte('>')
		}
	default:
		b.WriteString(primitiveNames[t.Kind])
	}
}

// ParseTypeTag is a pure, side-effect-free parser for the type-tag
// grammar of spec.md §4.1: primitive tokens, vector<T>, and
// ADDR::module::Name<Arg,...> with arbitrary nesting. It never panics;
// malformed input (unbalanced brackets, empty fragments, unknown
// primitive names) returns an error (B2).
func ParseTypeTag(s string) (TypeTag, error) {
	s = strings.TrimSpace(s)
	tag, rest, err := parseOne(s)
	if err != nil {
		return TypeTag{}, err
	}
	if strings.TrimSpace(rest) != "" {
		return TypeTag{}, errors.Errorf("bcs: trailing input after type tag: %q", rest)
	}
	return tag, nil
}

// parseOne parses a single TypeTag from the front of s and returns the
// unconsumed remainder.
func parseOne(s string) (TypeTag, string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return TypeTag{}, "", errors.New("bcs: empty type fragment")
	}

	if strings.HasPrefix(s, "vector<") {
		inner, rest, err := splitAngleBrackets(s[len("vector"):])
		if err != nil {
			return TypeTag{}, "", err
		}
		elemStr := strings.TrimSpace(inner)
		if elemStr == "" {
			return TypeTag{}, "", errors.New("bcs: vector<> requires an element type")
		}
		elem, elemRest, err := parseOne(elemStr)
		if err != nil {
			return TypeTag{}, "", err
		}
		if strings.TrimSpace(elemRest) != "" {
			return TypeTag{}, "", errors.Errorf("bcs: unexpected trailing data in vector element: %q", elemRest)
		}
		return Vector(elem), rest, nil
	}

	// Try a bare primitive name first (longest-prefix match against a
	// fixed keyword set, terminated by end-of-string or a non-identifier byte).
	if kind, ok, consumed := matchPrimitive(s); ok {
		return Primitive(kind), s[consumed:], nil
	}

	// Otherwise this must be ADDR::module::Name[<...>].
	return parseStructTag(s)
}

func matchPrimitive(s string) (Kind, bool, int) {
	// Longest match so "u128" isn't shadowed by a hypothetical "u1" etc.
	best := -1
	var bestKind Kind
	for name, kind := range namesToPrimitive {
		if strings.HasPrefix(s, name) {
			n := len(name)
			if n < len(s) {
				next := s[n]
				if isIdentByte(next) {
					continue // e.g. "u999" must not match "u" — here it'd match nothing anyway
				}
			}
			if n > best {
				best = n
				bestKind = kind
			}
		}
	}
	if best < 0 {
		return 0, false, 0
	}
	return bestKind, true, best
}

func isIdentByte(b byte) bool {
	return b == '_' || (b >= '0' && b <= '9') || (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z')
}

func parseStructTag(s string) (TypeTag, string, error) {
	addrEnd := strings.Index(s, "::")
	if addrEnd < 0 {
		return TypeTag{}, "", errors.Errorf("bcs: malformed type tag %q: missing module separator", s)
	}
	addr, err := ParseAddress(s[:addrEnd])
	if err != nil {
		return TypeTag{}, "", err
	}
	rest := s[addrEnd+2:]

	modEnd := strings.Index(rest, "::")
	if modEnd < 0 {
		return TypeTag{}, "", errors.Errorf("bcs: malformed type tag %q: missing struct name", s)
	}
	module := rest[:modEnd]
	if module == "" {
		return TypeTag{}, "", errors.New("bcs: empty module name")
	}
	rest = rest[modEnd+2:]

	name, afterName := consumeIdent(rest)
	if name == "" {
		return TypeTag{}, "", errors.Errorf("bcs: malformed type tag %q: missing struct name", s)
	}

	var params []TypeTag
	tail := afterName
	if strings.HasPrefix(afterName, "<") {
		inner, after, err := splitAngleBrackets(afterName)
		if err != nil {
			return TypeTag{}, "", err
		}
		params, err = parseTypeParamList(inner)
		if err != nil {
			return TypeTag{}, "", err
		}
		tail = after
	}

	return Struct(StructTag{Address: addr, Module: module, Name: name, TypeParams: params}), tail, nil
}

func consumeIdent(s string) (ident string, rest string) {
	i := 0
	for i < len(s) && isIdentByte(s[i]) {
		i++
	}
	return s[:i], s[i:]
}

// splitAngleBrackets expects s to start with '<' and returns the
// balanced contents up to the matching '>' plus whatever follows it.
func splitAngleBrackets(s string) (inner string, rest string, err error) {
	if !strings.HasPrefix(s, "<") {
		return "", "", errors.Errorf("bcs: expected '<' in %q", s)
	}
	depth := 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '<':
			depth++
		case '>':
			depth--
			if depth == 0 {
				return s[1:i], s[i+1:], nil
			}
			if depth < 0 {
				return "", "", errors.Errorf("bcs: unbalanced '>' in %q", s)
			}
		}
	}
	return "", "", errors.Errorf("bcs: unbalanced '<' in %q", s)
}

func parseTypeParamList(s string) ([]TypeTag, error) {
	parts := splitTopLevelCommas(s)
	out := make([]TypeTag, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			return nil, errors.New("bcs: empty type parameter")
		}
		tag, rest, err := parseOne(p)
		if err != nil {
			return nil, err
		}
		if strings.TrimSpace(rest) != "" {
			return nil, errors.Errorf("bcs: unexpected trailing data in type parameter: %q", rest)
		}
		out = append(out, tag)
	}
	return out, nil
}

func splitTopLevelCommas(s string) []string {
	var parts []string
	depth := 0
	start := 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '<':
			depth++
		case '>':
			depth--
		case ',':
			if depth == 0 {
				parts = append(parts, s[start:i])
				start = i + 1
			}
		}
	}
	parts = append(parts, s[start:])
	return parts
}
