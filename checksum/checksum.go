// Package checksum implements the Internet checksum (RFC 1071) and the
// IPv4 pseudo-header variant used by TCP and UDP.
package checksum

import (
	"encoding/binary"
	"net/netip"
)

// PseudoHeaderIPv4Len is the size of the IPv4 pseudo-header.
const PseudoHeaderIPv4Len = 12

// Accumulator computes the Internet checksum incrementally.
//
// Data may be written in chunks of any length: an odd trailing byte is kept
// until the next write so that words are always formed from consecutive
// bytes of the logical stream.
type Accumulator struct {
	sum     uint32
	odd     bool
	pending byte
}

// Write adds b to the running sum. It never fails.
func (m *Accumulator) Write(b []byte) (int, error) {
	n := len(b)
	if m.odd && len(b) > 0 {
		m.add(uint16(m.pending)<<8 | uint16(b[0]))
		m.odd = false
		b = b[1:]
	}
	for len(b) >= 2 {
		m.add(binary.BigEndian.Uint16(b))
		b = b[2:]
	}
	if len(b) == 1 {
		m.pending = b[0]
		m.odd = true
	}
	return n, nil
}

// AddUint16 adds v as two big-endian bytes.
func (m *Accumulator) AddUint16(v uint16) {
	var buf [2]byte
	binary.BigEndian.PutUint16(buf[:], v)
	m.Write(buf[:])
}

// AddUint32 adds v as four big-endian bytes.
func (m *Accumulator) AddUint32(v uint32) {
	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], v)
	m.Write(buf[:])
}

func (m *Accumulator) add(word uint16) {
	m.sum += uint32(word)
	// Fold eagerly so that arbitrarily long inputs never overflow.
	if m.sum > 0xffff {
		m.sum = (m.sum & 0xffff) + (m.sum >> 16)
	}
}

// Fold returns the one's complement sum of everything written so far,
// with the odd trailing byte zero padded.
func (m *Accumulator) Fold() uint16 {
	sum := m.sum
	if m.odd {
		sum += uint32(m.pending) << 8
	}
	for sum > 0xffff {
		sum = (sum & 0xffff) + (sum >> 16)
	}
	return uint16(sum)
}

// Sum16 returns the checksum: the complement of Fold.
func (m *Accumulator) Sum16() uint16 {
	return ^m.Fold()
}

// Reset clears the accumulator.
func (m *Accumulator) Reset() {
	*m = Accumulator{}
}

// Checksum returns the Internet checksum of b.
func Checksum(b []byte) uint16 {
	var acc Accumulator
	acc.Write(b)
	return acc.Sum16()
}

// Verify reports whether b, which includes a stored checksum, sums to
// 0xffff.
func Verify(b []byte) bool {
	var acc Accumulator
	acc.Write(b)
	return acc.Fold() == 0xffff
}

// PseudoHeaderIPv4 returns the synthetic header prepended to TCP and UDP
// segments for checksum computation. The protocol number is zero padded to
// a word.
func PseudoHeaderIPv4(src, dst netip.Addr, proto uint8, length uint16) []byte {
	buf := make([]byte, PseudoHeaderIPv4Len)
	s := src.As4()
	d := dst.As4()
	copy(buf[0:4], s[:])
	copy(buf[4:8], d[:])
	buf[8] = 0
	buf[9] = proto
	binary.BigEndian.PutUint16(buf[10:12], length)
	return buf
}

// IPv4Transport returns the checksum of the pseudo-header followed by
// segment. The checksum field inside segment must already be zero.
func IPv4Transport(src, dst netip.Addr, proto uint8, segment []byte) uint16 {
	var acc Accumulator
	acc.Write(PseudoHeaderIPv4(src, dst, proto, uint16(len(segment))))
	acc.Write(segment)
	return acc.Sum16()
}

// VerifyIPv4Transport reports whether segment carries a valid checksum for
// the given pseudo-header addresses.
func VerifyIPv4Transport(src, dst netip.Addr, proto uint8, segment []byte) bool {
	var acc Accumulator
	acc.Write(PseudoHeaderIPv4(src, dst, proto, uint16(len(segment))))
	acc.Write(segment)
	return acc.Fold() == 0xffff
}
