package rlp

import "errors"

var (
	// ErrExpectedString is returned when a list is encountered where a string was expected.
	ErrExpectedString = errors.New("rlp: expected string")

	// ErrExpectedList is returned when a string is encountered where a list was expected.
	ErrExpectedList = errors.New("rlp: expected list")

	// ErrCanonSize is returned when an RLP string uses a non-canonical size encoding.
	ErrCanonSize = errors.New("rlp: non-canonical size information")

	// ErrCanonInt is returned when an integer uses non-canonical encoding (leading zeros).
	ErrCanonInt = errors.New("rlp: non-canonical integer encoding")

	// ErrNonCanonicalSize is returned when a long-form size prefix encodes a short length.
	ErrNonCanonicalSize = errors.New("rlp: non-canonical size")

	// ErrEOL is returned when the current list ends with unread or surplus items.
	ErrEOL = errors.New("rlp: end of list mismatch")

	// ErrUint64Range is returned when a decoded integer exceeds uint64 range.
	ErrUint64Range = errors.New("rlp: uint64 overflow")

	// ErrTrailingBytes is returned by DecodeBytes when input remains past the
	// declared length of the decoded value.
	ErrTrailingBytes = errors.New("rlp: trailing bytes after value")

	// ErrElemSize is returned when a fixed-size byte array target receives a
	// string of a different length.
	ErrElemSize = errors.New("rlp: byte array size mismatch")

	// ErrUnsupported is returned when a value of an unencodable type is passed.
	ErrUnsupported = errors.New("rlp: unsupported type")
)
