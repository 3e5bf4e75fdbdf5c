package session

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"

	"github.com/MrEthical07/labkit/permission"
)

const sessionFormatVersionCurrent = 1

// ErrInvalidEncoding is returned by Decode for blobs it cannot parse.
var ErrInvalidEncoding = errors.New("invalid session encoding")

// Encode serializes s without its token. Layout: version byte, user id and
// role as length-prefixed strings, the permission mask, then CreatedAt and
// ExpiresAt as big-endian int64.
func Encode(s *Session) ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteByte(sessionFormatVersionCurrent)

	if len(s.UserID) > 255 {
		return nil, errors.New("userID too long")
	}
	buf.WriteByte(byte(len(s.UserID)))
	buf.WriteString(s.UserID)

	if len(s.Role) > 255 {
		return nil, errors.New("role too long")
	}
	buf.WriteByte(byte(len(s.Role)))
	buf.WriteString(s.Role)

	mask := s.Mask
	if mask == nil {
		var empty permission.Mask64
		mask = &empty
	}
	maskBytes, err := permission.EncodeMask(mask)
	if err != nil {
		return nil, err
	}
	buf.WriteByte(byte(len(maskBytes)))
	buf.Write(maskBytes)

	if err := binary.Write(&buf, binary.BigEndian, s.CreatedAt); err != nil {
		return nil, err
	}

	if err := binary.Write(&buf, binary.BigEndian, s.ExpiresAt); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

// Decode parses a blob produced by Encode. The returned session has an empty
// Token; callers set it from the lookup key.
func Decode(data []byte) (*Session, error) {
	reader := bytes.NewReader(data)

	version, err := reader.ReadByte()
	if err != nil {
		return nil, ErrInvalidEncoding
	}
	if version != sessionFormatVersionCurrent {
		return nil, errors.New("invalid session version")
	}

	s := &Session{}

	userID, err := readShortString(reader)
	if err != nil {
		return nil, err
	}
	s.UserID = userID

	role, err := readShortString(reader)
	if err != nil {
		return nil, err
	}
	s.Role = role

	maskSize, err := reader.ReadByte()
	if err != nil {
		return nil, ErrInvalidEncoding
	}

	maskBytes := make([]byte, maskSize)
	if _, err := io.ReadFull(reader, maskBytes); err != nil {
		return nil, ErrInvalidEncoding
	}

	mask, err := permission.DecodeMask(maskBytes)
	if err != nil {
		return nil, err
	}
	s.Mask = mask

	if err := binary.Read(reader, binary.BigEndian, &s.CreatedAt); err != nil {
		return nil, ErrInvalidEncoding
	}

	if err := binary.Read(reader, binary.BigEndian, &s.ExpiresAt); err != nil {
		return nil, ErrInvalidEncoding
	}

	if reader.Len() != 0 {
		return nil, ErrInvalidEncoding
	}

	return s, nil
}

func readShortString(r *bytes.Reader) (string, error) {
	n, err := r.ReadByte()
	if err != nil {
		return "", ErrInvalidEncoding
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(r, b); err != nil {
		return "", ErrInvalidEncoding
	}
	return string(b), nil
}
