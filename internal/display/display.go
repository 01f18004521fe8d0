// Package display projects raw attribute values into printable text.
package display

import (
	"encoding/hex"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/srg/blescope/internal/device"
)

// Format selects how bytes are rendered.
type Format int

const (
	Auto Format = iota
	Hex
	UTF8
)

func (f Format) String() string {
	switch f {
	case Hex:
		return "hex"
	case UTF8:
		return "utf8"
	default:
		return "auto"
	}
}

// ParseFormat accepts "auto", "hex" and "utf8" (or "text").
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "auto":
		return Auto, nil
	case "hex":
		return Hex, nil
	case "utf8", "utf-8", "text":
		return UTF8, nil
	default:
		return Auto, fmt.Errorf("unknown value format %q (valid: auto, hex, utf8)", s)
	}
}

// Project renders data in the requested format. It is pure: the same input
// always yields the same output.
//
// UTF8 on bytes that are not valid UTF-8 returns the hex rendering together
// with a *device.DecodeError. Auto picks text when the bytes are printable
// UTF-8 and hex otherwise.
func Project(data []byte, format Format) (string, error) {
	if len(data) == 0 {
		return "", nil
	}
	switch format {
	case Hex:
		return toHex(data), nil
	case UTF8:
		if !utf8.Valid(data) {
			return toHex(data), &device.DecodeError{Format: "utf8", Data: data}
		}
		return string(data), nil
	default:
		if isPrintable(data) {
			return string(data), nil
		}
		return toHex(data), nil
	}
}

// MustProject is Project with the decode error dropped; the fallback text is kept.
func MustProject(data []byte, format Format) string {
	s, _ := Project(data, format)
	return s
}

func toHex(data []byte) string {
	var b strings.Builder
	b.Grow(len(data) * 3)
	for i, c := range data {
		if i > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(hex.EncodeToString([]byte{c}))
	}
	return b.String()
}

func isPrintable(data []byte) bool {
	if !utf8.Valid(data) {
		return false
	}
	for _, r := range string(data) {
		if !unicode.IsPrint(r) && !unicode.IsSpace(r) {
			return false
		}
	}
	return true
}
