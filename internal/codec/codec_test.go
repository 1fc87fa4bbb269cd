package codec

import (
	"errors"
	"testing"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		kind Kind
		text string
		want string // expected decode output, defaults to text
	}{
		{name: "int8 zero", kind: Int8, text: "0"},
		{name: "int8 min", kind: Int8, text: "-128"},
		{name: "int8 max", kind: Int8, text: "127"},
		{name: "int16 min", kind: Int16, text: "-32768"},
		{name: "int16 max", kind: Int16, text: "32767"},
		{name: "int32 typical", kind: Int32, text: "100"},
		{name: "int32 negative", kind: Int32, text: "-2147483648"},
		{name: "int32 max", kind: Int32, text: "2147483647"},
		{name: "int64 max", kind: Int64, text: "9223372036854775807"},
		{name: "int64 min", kind: Int64, text: "-9223372036854775808"},
		{name: "float32 simple", kind: Float32, text: "1.5"},
		{name: "float32 inexact", kind: Float32, text: "0.1"},
		{name: "float64 pi-ish", kind: Float64, text: "3.141592653589793"},
		{name: "float64 negative", kind: Float64, text: "-123.456"},
		{name: "int whitespace", kind: Int32, text: " 42 ", want: "42"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, err := tt.kind.Encode(tt.text)
			if err != nil {
				t.Fatalf("Encode(%q): %v", tt.text, err)
			}
			if len(b) != tt.kind.Size() {
				t.Fatalf("Encode(%q) len = %d, want %d", tt.text, len(b), tt.kind.Size())
			}
			got, err := tt.kind.Decode(b)
			if err != nil {
				t.Fatalf("Decode: %v", err)
			}
			want := tt.want
			if want == "" {
				want = tt.text
			}
			if got != want {
				t.Errorf("Decode(Encode(%q)) = %q, want %q", tt.text, got, want)
			}
		})
	}
}

func TestFloatDecodeIsBitExact(t *testing.T) {
	// 0.1 is not representable exactly; the codec must not introduce
	// any rounding of its own on the way back.
	b, err := Float32.Encode("0.1")
	if err != nil {
		t.Fatal(err)
	}
	text, err := Float32.Decode(b)
	if err != nil {
		t.Fatal(err)
	}
	b2, err := Float32.Encode(text)
	if err != nil {
		t.Fatal(err)
	}
	for i := range b {
		if b[i] != b2[i] {
			t.Fatalf("re-encode of decoded float differs: % x vs % x", b, b2)
		}
	}
}

func TestEncodeInvalid(t *testing.T) {
	tests := []struct {
		name string
		kind Kind
		text string
	}{
		{name: "empty", kind: Int32, text: ""},
		{name: "garbage", kind: Int32, text: "banana"},
		{name: "float text for int", kind: Int32, text: "1.5"},
		{name: "int8 overflow", kind: Int8, text: "128"},
		{name: "int8 underflow", kind: Int8, text: "-129"},
		{name: "int16 overflow", kind: Int16, text: "32768"},
		{name: "int32 overflow", kind: Int32, text: "2147483648"},
		{name: "int64 overflow", kind: Int64, text: "9223372036854775808"},
		{name: "float garbage", kind: Float64, text: "1.2.3"},
		{name: "hex not accepted", kind: Int32, text: "0x10"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.kind.Encode(tt.text)
			if !errors.Is(err, ErrInvalidValue) {
				t.Errorf("Encode(%q) err = %v, want ErrInvalidValue", tt.text, err)
			}
		})
	}
}

func TestDecodeWrongWidth(t *testing.T) {
	if _, err := Int32.Decode([]byte{1, 2}); !errors.Is(err, ErrInvalidValue) {
		t.Errorf("Decode short buffer err = %v, want ErrInvalidValue", err)
	}
}

func TestKindProperties(t *testing.T) {
	sizes := map[Kind]int{Int8: 1, Int16: 2, Int32: 4, Int64: 8, Float32: 4, Float64: 8}
	for k, want := range sizes {
		if got := k.Size(); got != want {
			t.Errorf("%s.Size() = %d, want %d", k, got, want)
		}
	}
	for _, k := range Kinds() {
		parsed, err := ParseKind(k.String())
		if err != nil || parsed != k {
			t.Errorf("ParseKind(%q) = %v, %v", k.String(), parsed, err)
		}
	}
	if _, err := ParseKind("uint128"); err == nil {
		t.Error("ParseKind accepted unknown type")
	}
}
