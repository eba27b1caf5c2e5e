// Package field implements the primitive field kinds protocol layers are
// built from.
//
// A kind knows how to validate a caller supplied value (Normalize), how to
// render it (Format) and, depending on its shape, either how to move it
// to and from bytes (Codec) or how many bits it occupies inside a bit group
// (Packed).
//
// Values are carried as plain Go values in a canonical form:
//
//	FixedInt (unsigned), Bits, Enum, Flags  uint64
//	FixedInt (signed)                       int64
//	FixedString                             string
//	VarString                               []byte
//	MAC                                     net.HardwareAddr
//	IPv4                                    netip.Addr
package field

// Kind is a field type.
type Kind interface {
	// String names the kind in diagnostics, e.g. "uint16be".
	String() string
	// Zero returns the value used when a field spec has no default.
	Zero() any
	// Normalize validates v and converts it to the canonical form.
	Normalize(v any) (any, error)
	// Format renders a canonical value for display.
	Format(v any) string
}

// Codec is a byte-aligned kind.
type Codec interface {
	Kind
	// Decode consumes exactly the kind's width from the head of buf and
	// returns the value along with the number of bytes consumed.
	Decode(buf []byte) (any, int, error)
	// Append encodes v and appends it to dst.
	Append(dst []byte, v any) ([]byte, error)
}

// Packed is a bit-packed kind. Packed fields never encode on their own:
// consecutive packed fields of a layer are grouped and encoded as a single
// big-endian unit.
type Packed interface {
	Kind
	// Bits returns the width in bits; zero means the kind is byte-aligned.
	Bits() int
}

// BitWidth returns the bit width of k if it is bit-packed.
func BitWidth(k Kind) (int, bool) {
	p, ok := k.(Packed)
	if !ok || p.Bits() == 0 {
		return 0, false
	}
	return p.Bits(), true
}

// MaxGroupBits is the widest bit group a layer may declare.
const MaxGroupBits = 64

// DecodeGroup splits the first total/8 bytes of buf into values of the
// given bit widths, most significant bits first.
func DecodeGroup(buf []byte, widths []int) ([]uint64, int, error) {
	total := 0
	for _, w := range widths {
		total += w
	}
	n := total / 8
	if len(buf) < n {
		return nil, 0, &DecodeError{Kind: "bitgroup", Need: n, Have: len(buf)}
	}

	var acc uint64
	for _, b := range buf[:n] {
		acc = acc<<8 | uint64(b)
	}

	values := make([]uint64, len(widths))
	shift := total
	for idx, w := range widths {
		shift -= w
		values[idx] = (acc >> shift) & mask(w)
	}
	return values, n, nil
}

// AppendGroup packs values into total/8 bytes, most significant bits
// first, and appends them to dst.
func AppendGroup(dst []byte, widths []int, values []uint64) ([]byte, error) {
	total := 0
	var acc uint64
	for idx, w := range widths {
		v := values[idx]
		if v > mask(w) {
			return nil, &FormatError{Kind: Bits{Width: w}.String(), Value: v, Reason: "value does not fit"}
		}
		acc = acc<<w | v
		total += w
	}
	if total%8 != 0 || total > MaxGroupBits {
		return nil, &FormatError{Kind: "bitgroup", Value: total, Reason: "group is not byte aligned"}
	}

	for shift := total - 8; shift >= 0; shift -= 8 {
		dst = append(dst, byte(acc>>shift))
	}
	return dst, nil
}

func mask(bits int) uint64 {
	if bits >= 64 {
		return ^uint64(0)
	}
	return 1<<bits - 1
}
