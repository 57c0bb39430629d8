package sprites

import (
	"encoding/binary"
	"io"
)

// From https://github.com/aseprite/aseprite/blob/main/docs/ase-file-specs.md#references

type (
	BYTE  = uint8  // An 8-bit unsigned integer value
	WORD  = uint16 // A 16-bit unsigned integer value
	SHORT = int16  // A 16-bit signed integer value
	DWORD = uint32 // A 32-bit unsigned integer value
)

// STRING is a length-prefixed UTF-8 string.
type STRING struct {
	Length WORD   // string length (number of bytes) // 2 bytes
	Chars  []BYTE // characters (in UTF-8)
}

func (s STRING) String() string {
	return string(s.Chars)
}

func readSTRING(r io.Reader) (STRING, error) {
	var s STRING
	if err := binary.Read(r, binary.LittleEndian, &s.Length); err != nil {
		return s, err
	}
	s.Chars = make([]BYTE, s.Length)
	if _, err := io.ReadFull(r, s.Chars); err != nil {
		return s, err
	}
	return s, nil
}
