package permission

import (
	"encoding/binary"
	"errors"
)

// MaskSize is the encoded length of a [Mask64] in bytes.
const MaskSize = 8

var errInvalidMaskSize = errors.New("invalid mask size")

// EncodeMask writes m as 8 big-endian bytes.
func EncodeMask(m *Mask64) ([]byte, error) {
	if m == nil {
		return nil, errors.New("nil mask")
	}
	b := make([]byte, MaskSize)
	binary.BigEndian.PutUint64(b, uint64(*m))
	return b, nil
}

// DecodeMask is the inverse of [EncodeMask]. Any length other than
// [MaskSize] is rejected.
func DecodeMask(data []byte) (*Mask64, error) {
	if len(data) != MaskSize {
		return nil, errInvalidMaskSize
	}
	m := Mask64(binary.BigEndian.Uint64(data))
	return &m, nil
}
