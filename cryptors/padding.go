package cryptors

import "errors"

// ErrPadding is returned by Unpad for data that does not end in valid PKCS7
// padding.
var ErrPadding = errors.New("invalid padding")

// Pad appends PKCS7 padding, always adding between 1 and blockSize bytes.
func Pad(data []byte, blockSize int) []byte {
	padding := blockSize - (len(data) % blockSize)
	padText := make([]byte, padding)
	for i := range padText {
		padText[i] = byte(padding)
	}
	return append(data, padText...)
}

// Unpad strips PKCS7 padding added by Pad.
func Unpad(data []byte, blockSize int) ([]byte, error) {
	length := len(data)
	if length == 0 || length%blockSize != 0 {
		return nil, ErrPadding
	}

	padding := int(data[length-1])
	if padding == 0 || padding > blockSize {
		return nil, ErrPadding
	}
	for i := length - padding; i < length; i++ {
		if data[i] != byte(padding) {
			return nil, ErrPadding
		}
	}
	return data[:length-padding], nil
}
