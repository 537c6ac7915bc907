package logparse

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// ErrUndecodable is returned when raw input is not text.
var ErrUndecodable = errors.New("input is not decodable text")

var (
	bomUTF8    = []byte{0xEF, 0xBB, 0xBF}
	bomUTF16BE = []byte{0xFE, 0xFF}
	bomUTF16LE = []byte{0xFF, 0xFE}
)

// Decode turns raw log bytes into normalised text. UTF-16 input is accepted
// when it carries a byte order mark; anything else must be valid UTF-8.
// Line endings are normalised to \n and the text to NFC.
func Decode(raw []byte) (string, error) {
	if len(raw) == 0 {
		return "", nil
	}

	var data []byte
	switch {
	case bytes.HasPrefix(raw, bomUTF16BE), bytes.HasPrefix(raw, bomUTF16LE):
		dec := unicode.UTF16(unicode.LittleEndian, unicode.ExpectBOM).NewDecoder()
		out, _, err := transform.Bytes(dec, raw)
		if err != nil {
			return "", fmt.Errorf("%w: utf-16: %v", ErrUndecodable, err)
		}
		data = out
	default:
		data = bytes.TrimPrefix(raw, bomUTF8)
	}

	if !utf8.Valid(data) {
		return "", fmt.Errorf("%w: invalid utf-8", ErrUndecodable)
	}
	if bytes.IndexByte(data, 0) >= 0 {
		return "", fmt.Errorf("%w: contains NUL bytes", ErrUndecodable)
	}

	text := strings.ReplaceAll(string(data), "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	return norm.NFC.String(text), nil
}
