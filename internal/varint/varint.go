// Package varint implements the EBML variable-length integer encoding used
// throughout the SRS/MKV pipeline: element IDs and element sizes.
package varint

import (
	"bufio"
	"errors"
	"io"
)

var (
	// ErrZeroLeadByte is returned when the first byte of a VarInt has no
	// marker bit set (all-zero), which EBML never produces.
	ErrZeroLeadByte = errors.New("varint: zero lead byte has no marker bit")
	// ErrTooShort is returned when fewer bytes remain than the width implied
	// by the lead byte requires.
	ErrTooShort = errors.New("varint: insufficient bytes for declared width")
)

// width returns the VarInt width (1..8) implied by the position of the
// leading 1-bit in b, counted from the MSB. A zero byte has no marker bit.
func width(b byte) int {
	for w := 1; w <= 8; w++ {
		if b&(0x80>>(w-1)) != 0 {
			return w
		}
	}
	return 0
}

// UnknownSize reports whether a decoded size VarInt of the given width is
// the EBML "unknown size" sentinel (all data-bits set).
func UnknownSize(value uint64, w int) bool {
	return value == (uint64(1)<<(uint(7*w)))-1
}

// ReadSize reads an EBML size VarInt from r, stripping the marker bit and
// returning the unsigned value, its encoded width in bytes, and any error.
func ReadSize(r io.ByteReader) (value uint64, w int, err error) {
	first, err := r.ReadByte()
	if err != nil {
		return 0, 0, err
	}
	w = width(first)
	if w == 0 {
		return 0, 0, ErrZeroLeadByte
	}
	mask := byte(0xFF >> w)
	value = uint64(first & mask)
	for i := 1; i < w; i++ {
		b, err := r.ReadByte()
		if err != nil {
			return 0, 0, ErrTooShort
		}
		value = (value << 8) | uint64(b)
	}
	return value, w, nil
}

// ReadSizeFromSlice behaves like ReadSize but decodes from the head of b,
// returning the number of bytes consumed.
func ReadSizeFromSlice(b []byte) (value uint64, w int, err error) {
	if len(b) == 0 {
		return 0, 0, io.ErrUnexpectedEOF
	}
	w = width(b[0])
	if w == 0 {
		return 0, 0, ErrZeroLeadByte
	}
	if len(b) < w {
		return 0, 0, ErrTooShort
	}
	mask := byte(0xFF >> w)
	value = uint64(b[0] & mask)
	for i := 1; i < w; i++ {
		value = (value << 8) | uint64(b[i])
	}
	return value, w, nil
}

// ReadElementID reads an EBML element ID: the canonical identity is the raw
// w bytes including the marker bit, NOT the stripped value used for sizes.
func ReadElementID(r io.ByteReader) (id []byte, err error) {
	first, err := r.ReadByte()
	if err != nil {
		return nil, err
	}
	w := width(first)
	if w == 0 {
		return nil, ErrZeroLeadByte
	}
	id = make([]byte, w)
	id[0] = first
	for i := 1; i < w; i++ {
		b, err := r.ReadByte()
		if err != nil {
			return nil, ErrTooShort
		}
		id[i] = b
	}
	return id, nil
}

// ReadElementIDFromSlice behaves like ReadElementID but decodes from the
// head of b; the number of bytes consumed is len(id).
func ReadElementIDFromSlice(b []byte) (id []byte, err error) {
	if len(b) == 0 {
		return nil, io.ErrUnexpectedEOF
	}
	w := width(b[0])
	if w == 0 {
		return nil, ErrZeroLeadByte
	}
	if len(b) < w {
		return nil, ErrTooShort
	}
	id = make([]byte, w)
	copy(id, b[:w])
	return id, nil
}

// WriteSize encodes value using the minimal width that can hold it, or the
// given width if forceWidth > 0 (must be large enough). Mirrors ReadSize.
func WriteSize(value uint64, forceWidth int) ([]byte, error) {
	w := forceWidth
	if w == 0 {
		for cand := 1; cand <= 8; cand++ {
			if value < (uint64(1)<<(uint(7*cand)))-1 {
				w = cand
				break
			}
		}
		if w == 0 {
			return nil, errors.New("varint: value too large to encode")
		}
	}
	if value > (uint64(1)<<(uint(7*w)))-1 {
		return nil, errors.New("varint: value does not fit in requested width")
	}
	out := make([]byte, w)
	for i := w - 1; i >= 1; i-- {
		out[i] = byte(value)
		value >>= 8
	}
	marker := byte(0x80 >> (w - 1))
	out[0] = marker | byte(value)
	return out, nil
}

// DecodeSigned interprets a size VarInt of width w as the EBML-lacing signed
// form: delta = V - (2^(7w-1) - 1).
func DecodeSigned(value uint64, w int) int64 {
	bias := int64(1)<<(uint(7*w-1)) - 1
	return int64(value) - bias
}

// ReadByteReader returns br as the io.ByteReader that ReadSize and
// ReadElementID consume.
func ReadByteReader(br *bufio.Reader) io.ByteReader { return br }
