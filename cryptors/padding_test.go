package cryptors

import (
	"bytes"
	"errors"
	"testing"
)

func TestPadRoundTrip(t *testing.T) {
	for n := 0; n <= 17; n++ {
		data := bytes.Repeat([]byte{0xAA}, n)
		padded := Pad(append([]byte(nil), data...), 8)
		if len(padded)%8 != 0 || len(padded) <= n || len(padded) > n+8 {
			t.Fatalf("Pad(%d bytes) gave %d bytes", n, len(padded))
		}
		got, err := Unpad(padded, 8)
		if err != nil {
			t.Fatalf("Unpad(%d bytes) error: %v", n, err)
		}
		if !bytes.Equal(got, data) {
			t.Errorf("round trip of %d bytes gave %x", n, got)
		}
	}
}

func TestUnpadErrors(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{"empty", nil},
		{"partial block", []byte{1, 2, 3}},
		{"zero pad byte", []byte{1, 2, 3, 4, 5, 6, 7, 0}},
		{"pad too long", []byte{1, 2, 3, 4, 5, 6, 7, 9}},
		{"inconsistent", []byte{1, 2, 3, 4, 5, 6, 2, 3}},
	}
	for _, tt := range tests {
		if _, err := Unpad(tt.data, 8); !errors.Is(err, ErrPadding) {
			t.Errorf("%s: error %v, want ErrPadding", tt.name, err)
		}
	}
}
