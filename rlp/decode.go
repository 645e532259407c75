package rlp

import (
	"bytes"
	"io"
	"math/big"
	"reflect"
)

// Kind is the type tag of an encoded value.
type Kind int

const (
	Byte   Kind = iota // single byte in [0x00, 0x7f]
	String             // byte string (including the empty string)
	List               // list of values
)

// Decode reads one encoded value from r into the value pointed to by val.
func Decode(r io.Reader, val interface{}) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	return DecodeBytes(data, val)
}

// DecodeBytes decodes b into the value pointed to by val. The entire input
// must be consumed: bytes past the declared length of the value are an error.
func DecodeBytes(b []byte, val interface{}) error {
	s := newStream(b)
	if err := s.decodeValue(reflect.ValueOf(val)); err != nil {
		return err
	}
	if s.pos != len(b) {
		return ErrTrailingBytes
	}
	return nil
}

// Stream is a cursor over encoded input with list scoping.
type Stream struct {
	data  []byte
	pos   int
	lists []int // exclusive end offsets of open lists
}

// NewStream creates a Stream reading all of r.
func NewStream(r io.Reader) *Stream {
	data, _ := io.ReadAll(r)
	return newStream(data)
}

func newStream(data []byte) *Stream {
	return &Stream{data: data}
}

func (s *Stream) limit() int {
	if len(s.lists) > 0 {
		return s.lists[len(s.lists)-1]
	}
	return len(s.data)
}

// header reads the prefix of the next item without consuming it, returning
// its kind, the payload start offset, and the payload size.
func (s *Stream) header() (Kind, int, int, error) {
	lim := s.limit()
	if s.pos >= lim {
		return 0, 0, 0, io.EOF
	}
	prefix := s.data[s.pos]
	switch {
	case prefix <= 0x7f:
		return Byte, s.pos, 1, nil

	case prefix <= 0xb7:
		size := int(prefix - 0x80)
		if s.pos+1+size > lim {
			return 0, 0, 0, io.ErrUnexpectedEOF
		}
		if size == 1 && s.data[s.pos+1] <= 0x7f {
			return 0, 0, 0, ErrCanonSize
		}
		return String, s.pos + 1, size, nil

	case prefix <= 0xbf:
		start, size, err := s.longSize(int(prefix-0xb7), lim)
		if err != nil {
			return 0, 0, 0, err
		}
		return String, start, size, nil

	case prefix <= 0xf7:
		size := int(prefix - 0xc0)
		if s.pos+1+size > lim {
			return 0, 0, 0, io.ErrUnexpectedEOF
		}
		return List, s.pos + 1, size, nil

	default:
		start, size, err := s.longSize(int(prefix-0xf7), lim)
		if err != nil {
			return 0, 0, 0, err
		}
		return List, start, size, nil
	}
}

// longSize parses a long-form size prefix of lenOfLen bytes.
func (s *Stream) longSize(lenOfLen, lim int) (start, size int, err error) {
	if s.pos+1+lenOfLen > lim {
		return 0, 0, io.ErrUnexpectedEOF
	}
	sizeBytes := s.data[s.pos+1 : s.pos+1+lenOfLen]
	if sizeBytes[0] == 0 {
		return 0, 0, ErrCanonSize
	}
	n := readUintBE(sizeBytes)
	if n <= 55 {
		return 0, 0, ErrNonCanonicalSize
	}
	start = s.pos + 1 + lenOfLen
	// Compare in uint64: a length near 2^64 would wrap negative as int
	// and slip past an int-domain bounds check.
	if n > uint64(lim-start) {
		return 0, 0, io.ErrUnexpectedEOF
	}
	return start, int(n), nil
}

// Bytes reads the next string item and returns its payload.
func (s *Stream) Bytes() ([]byte, error) {
	kind, start, size, err := s.header()
	if err != nil {
		return nil, err
	}
	if kind == List {
		return nil, ErrExpectedString
	}
	s.pos = start + size
	return s.data[start : start+size], nil
}

// Uint64 reads the next item as a canonically encoded unsigned integer.
func (s *Stream) Uint64() (uint64, error) {
	b, err := s.Bytes()
	if err != nil {
		return 0, err
	}
	if len(b) == 0 {
		return 0, nil
	}
	if len(b) > 8 {
		return 0, ErrUint64Range
	}
	if len(b) > 1 && b[0] == 0 {
		return 0, ErrCanonInt
	}
	return readUintBE(b), nil
}

// BigInt reads the next item as a canonically encoded big integer.
func (s *Stream) BigInt() (*big.Int, error) {
	b, err := s.Bytes()
	if err != nil {
		return nil, err
	}
	if len(b) > 1 && b[0] == 0 {
		return nil, ErrCanonInt
	}
	return new(big.Int).SetBytes(b), nil
}

// List enters the next list item; subsequent reads stay within the list
// until ListEnd. Returns the payload size of the list.
func (s *Stream) List() (uint64, error) {
	kind, start, size, err := s.header()
	if err != nil {
		return 0, err
	}
	if kind != List {
		return 0, ErrExpectedList
	}
	s.lists = append(s.lists, start+size)
	s.pos = start
	return uint64(size), nil
}

// ListEnd leaves the current list. It is an error if items remain unread.
func (s *Stream) ListEnd() error {
	if len(s.lists) == 0 {
		return ErrExpectedList
	}
	end := s.lists[len(s.lists)-1]
	if s.pos != end {
		return ErrEOL
	}
	s.lists = s.lists[:len(s.lists)-1]
	return nil
}

// More reports whether unread items remain in the current list.
func (s *Stream) More() bool {
	return s.pos < s.limit()
}

func readUintBE(b []byte) uint64 {
	var u uint64
	for _, x := range b {
		u = u<<8 | uint64(x)
	}
	return u
}

// ---- reflection-driven decoding ----

func (s *Stream) decodeValue(v reflect.Value) error {
	if v.Kind() != reflect.Ptr || v.IsNil() {
		return ErrUnsupported
	}
	return s.decodeInto(v.Elem())
}

func (s *Stream) decodeInto(v reflect.Value) error {
	if v.Type() == bigIntType {
		bi, err := s.BigInt()
		if err != nil {
			return err
		}
		v.Set(reflect.ValueOf(*bi))
		return nil
	}
	if v.Kind() == reflect.Ptr {
		if v.IsNil() {
			v.Set(reflect.New(v.Type().Elem()))
		}
		return s.decodeInto(v.Elem())
	}

	switch v.Kind() {
	case reflect.Bool:
		b, err := s.Bytes()
		if err != nil {
			return err
		}
		switch {
		case len(b) == 0:
			v.SetBool(false)
		case len(b) == 1 && b[0] == 0x01:
			v.SetBool(true)
		default:
			return ErrCanonInt
		}
		return nil

	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		u, err := s.Uint64()
		if err != nil {
			return err
		}
		if v.OverflowUint(u) {
			return ErrUint64Range
		}
		v.SetUint(u)
		return nil

	case reflect.String:
		b, err := s.Bytes()
		if err != nil {
			return err
		}
		v.SetString(string(b))
		return nil

	case reflect.Slice:
		if v.Type().Elem().Kind() == reflect.Uint8 {
			b, err := s.Bytes()
			if err != nil {
				return err
			}
			v.SetBytes(bytes.Clone(b))
			return nil
		}
		return s.decodeSlice(v)

	case reflect.Array:
		if v.Type().Elem().Kind() == reflect.Uint8 {
			b, err := s.Bytes()
			if err != nil {
				return err
			}
			if len(b) != v.Len() {
				return ErrElemSize
			}
			reflect.Copy(v, reflect.ValueOf(b))
			return nil
		}
		return ErrUnsupported

	case reflect.Struct:
		return s.decodeStruct(v)

	default:
		return ErrUnsupported
	}
}

func (s *Stream) decodeSlice(v reflect.Value) error {
	if _, err := s.List(); err != nil {
		return err
	}
	v.SetLen(0)
	for s.More() {
		elem := reflect.New(v.Type().Elem()).Elem()
		if err := s.decodeInto(elem); err != nil {
			return err
		}
		v.Set(reflect.Append(v, elem))
	}
	return s.ListEnd()
}

// decodeStruct requires the list arity to match the struct's exported field
// count exactly; surplus or missing items fail with ErrEOL / EOF.
func (s *Stream) decodeStruct(v reflect.Value) error {
	if _, err := s.List(); err != nil {
		return err
	}
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		if !t.Field(i).IsExported() {
			continue
		}
		if err := s.decodeInto(v.Field(i)); err != nil {
			return err
		}
	}
	return s.ListEnd()
}
