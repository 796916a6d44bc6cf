// Package bitstring implements the StatusList2021 encoded bit array: raw
// bytes, gzip-compressed, then base64 (standard alphabet).
//
// Bit order: index 0 is the most significant bit of byte 0. The same order
// is used by every operation in this package.
package bitstring

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"github.com/klauspost/compress/gzip"
)

// DefaultLength is the number of bits in a newly created list. 16 KiB of
// zeros compresses to a few dozen bytes.
const DefaultLength = 131072

var (
	ErrInvalidLength = errors.New("bit length must be a positive multiple of 8")
	ErrOutOfRange    = errors.New("bit index out of range")
	ErrCorrupt       = errors.New("encoded bitstring is corrupt")
)

// Bitstring is a fixed-length bit array.
type Bitstring struct {
	bits   []byte
	length int
}

// New returns a zero-filled bitstring of length bits.
func New(length int) (*Bitstring, error) {
	if err := ValidateLength(length); err != nil {
		return nil, err
	}
	return &Bitstring{bits: make([]byte, length/8), length: length}, nil
}

// ValidateLength reports whether length is usable for a status list.
func ValidateLength(length int) error {
	if length <= 0 || length%8 != 0 {
		return fmt.Errorf("%w: %d", ErrInvalidLength, length)
	}
	return nil
}

// Decode expands an encoded list. length is the list's fixed size; a payload
// that decompresses to any other size is rejected.
func Decode(encoded string, length int) (*Bitstring, error) {
	if err := ValidateLength(length); err != nil {
		return nil, err
	}
	compressed, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("%w: base64: %w", ErrCorrupt, err)
	}
	zr, err := gzip.NewReader(bytes.NewReader(compressed))
	if err != nil {
		return nil, fmt.Errorf("%w: gzip: %w", ErrCorrupt, err)
	}
	defer zr.Close()

	want := length / 8
	// read one byte past the expected size to detect oversized payloads
	raw, err := io.ReadAll(io.LimitReader(zr, int64(want)+1))
	if err != nil {
		return nil, fmt.Errorf("%w: gzip: %w", ErrCorrupt, err)
	}
	if len(raw) != want {
		return nil, fmt.Errorf("%w: decoded %d bytes, want %d", ErrCorrupt, len(raw), want)
	}
	return &Bitstring{bits: raw, length: length}, nil
}

// Encode compresses and base64-encodes the bitstring.
func (b *Bitstring) Encode() (string, error) {
	var buf bytes.Buffer
	zw, err := gzip.NewWriterLevel(&buf, gzip.BestCompression)
	if err != nil {
		return "", err
	}
	if _, err := zw.Write(b.bits); err != nil {
		return "", fmt.Errorf("compress bitstring: %w", err)
	}
	if err := zw.Close(); err != nil {
		return "", fmt.Errorf("compress bitstring: %w", err)
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

// Len returns the fixed number of bits.
func (b *Bitstring) Len() int { return b.length }

// Get reads bit index.
func (b *Bitstring) Get(index int) (bool, error) {
	if err := b.check(index); err != nil {
		return false, err
	}
	return b.bits[index/8]&mask(index) != 0, nil
}

// Set writes bit index and reports whether it changed.
func (b *Bitstring) Set(index int, value bool) (bool, error) {
	if err := b.check(index); err != nil {
		return false, err
	}
	before := b.bits[index/8]
	if value {
		b.bits[index/8] |= mask(index)
	} else {
		b.bits[index/8] &^= mask(index)
	}
	return before != b.bits[index/8], nil
}

// CountSet returns the number of set bits.
func (b *Bitstring) CountSet() int {
	n := 0
	for _, by := range b.bits {
		for ; by != 0; by &= by - 1 {
			n++
		}
	}
	return n
}

func (b *Bitstring) check(index int) error {
	if index < 0 || index >= b.length {
		return fmt.Errorf("%w: %d not in [0,%d)", ErrOutOfRange, index, b.length)
	}
	return nil
}

func mask(index int) byte {
	return 0x80 >> (index % 8)
}

// CheckBit decodes encoded and reads one bit.
func CheckBit(encoded string, length, index int) (bool, error) {
	b, err := Decode(encoded, length)
	if err != nil {
		return false, err
	}
	return b.Get(index)
}

// SetBit decodes encoded, writes one bit and re-encodes. changed is false
// when the bit already had value; the input is then returned unchanged.
func SetBit(encoded string, length, index int, value bool) (out string, changed bool, err error) {
	b, err := Decode(encoded, length)
	if err != nil {
		return "", false, err
	}
	changed, err = b.Set(index, value)
	if err != nil {
		return "", false, err
	}
	if !changed {
		return encoded, false, nil
	}
	out, err = b.Encode()
	return out, true, err
}
