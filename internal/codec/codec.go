// Package codec converts textual numeric values to and from their
// fixed-width byte encoding in the platform's native byte order. The
// encoding here is the only binary contract in the program: the scan
// engine compares raw process memory against exactly these bytes.
package codec

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ErrInvalidValue is returned when a value does not parse as the
// requested kind or is outside its representable range.
var ErrInvalidValue = errors.New("invalid value")

// Kind identifies a scannable numeric type.
type Kind int

const (
	Int8 Kind = iota
	Int16
	Int32
	Int64
	Float32
	Float64
)

// Kinds lists all supported kinds in menu order.
func Kinds() []Kind {
	return []Kind{Int8, Int16, Int32, Int64, Float32, Float64}
}

func (k Kind) String() string {
	switch k {
	case Int8:
		return "int8"
	case Int16:
		return "int16"
	case Int32:
		return "int32"
	case Int64:
		return "int64"
	case Float32:
		return "float32"
	case Float64:
		return "float64"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Size returns the encoded width in bytes.
func (k Kind) Size() int {
	switch k {
	case Int8:
		return 1
	case Int16:
		return 2
	case Int32, Float32:
		return 4
	default:
		return 8
	}
}

// Float reports whether the kind is a floating point type.
func (k Kind) Float() bool {
	return k == Float32 || k == Float64
}

// ParseKind resolves a kind from its textual name.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "int8":
		return Int8, nil
	case "int16":
		return Int16, nil
	case "int32":
		return Int32, nil
	case "int64":
		return Int64, nil
	case "float32", "float":
		return Float32, nil
	case "float64", "double":
		return Float64, nil
	}
	return 0, fmt.Errorf("unknown data type %q", s)
}

// Encode parses text as a value of kind k and returns its fixed-width
// native-endian encoding.
func (k Kind) Encode(text string) ([]byte, error) {
	text = strings.TrimSpace(text)
	buf := make([]byte, k.Size())

	if k.Float() {
		bits := 64
		if k == Float32 {
			bits = 32
		}
		f, err := strconv.ParseFloat(text, bits)
		if err != nil {
			return nil, fmt.Errorf("%w: %q is not a valid %s", ErrInvalidValue, text, k)
		}
		if k == Float32 {
			binary.NativeEndian.PutUint32(buf, math.Float32bits(float32(f)))
		} else {
			binary.NativeEndian.PutUint64(buf, math.Float64bits(f))
		}
		return buf, nil
	}

	v, err := strconv.ParseInt(text, 10, 8*k.Size())
	if err != nil {
		return nil, fmt.Errorf("%w: %q is not a valid %s", ErrInvalidValue, text, k)
	}
	switch k {
	case Int8:
		buf[0] = byte(v)
	case Int16:
		binary.NativeEndian.PutUint16(buf, uint16(v))
	case Int32:
		binary.NativeEndian.PutUint32(buf, uint32(v))
	case Int64:
		binary.NativeEndian.PutUint64(buf, uint64(v))
	}
	return buf, nil
}

// Decode is the inverse of Encode: it renders the fixed-width bytes as
// text. Integers decode exactly; floats use the shortest representation
// that round-trips bit for bit through Encode.
func (k Kind) Decode(b []byte) (string, error) {
	if len(b) != k.Size() {
		return "", fmt.Errorf("%w: %s needs %d bytes, got %d", ErrInvalidValue, k, k.Size(), len(b))
	}
	switch k {
	case Int8:
		return strconv.FormatInt(int64(int8(b[0])), 10), nil
	case Int16:
		return strconv.FormatInt(int64(int16(binary.NativeEndian.Uint16(b))), 10), nil
	case Int32:
		return strconv.FormatInt(int64(int32(binary.NativeEndian.Uint32(b))), 10), nil
	case Int64:
		return strconv.FormatInt(int64(binary.NativeEndian.Uint64(b)), 10), nil
	case Float32:
		f := math.Float32frombits(binary.NativeEndian.Uint32(b))
		return strconv.FormatFloat(float64(f), 'g', -1, 32), nil
	case Float64:
		f := math.Float64frombits(binary.NativeEndian.Uint64(b))
		return strconv.FormatFloat(f, 'g', -1, 64), nil
	}
	return "", fmt.Errorf("%w: unknown kind %d", ErrInvalidValue, int(k))
}
