// Package encoding provides text encoding utilities for Enfusion file formats.
package encoding

import (
	"bytes"
	"strings"

	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/transform"
)

// Windows1252ToUTF8 converts Windows-1252 encoded bytes to a UTF-8 string.
// Enfusion archives were built on Windows and entry paths may carry cp1252
// bytes above 0x7F. Returns the input reinterpreted as-is if conversion fails.
func Windows1252ToUTF8(data []byte) string {
	decoder := charmap.Windows1252.NewDecoder()
	result, _, err := transform.Bytes(decoder, data)
	if err != nil {
		return string(data)
	}
	return string(result)
}

// UTF8ToWindows1252 converts a UTF-8 string to Windows-1252 encoded bytes.
// Characters without a cp1252 mapping cause the original bytes to be returned.
func UTF8ToWindows1252(s string) []byte {
	encoder := charmap.Windows1252.NewEncoder()
	result, _, err := transform.Bytes(encoder, []byte(s))
	if err != nil {
		return []byte(s)
	}
	return result
}

// NormalizeArchivePath normalizes a PAK entry path for case-insensitive lookup.
// Archive tables store Windows-style backslash paths.
func NormalizeArchivePath(path string) string {
	path = strings.ReplaceAll(path, "\\", "/")
	return strings.ToLower(path)
}

// TrimNullBytes removes trailing null bytes from a byte slice.
func TrimNullBytes(data []byte) []byte {
	return bytes.TrimRight(data, "\x00")
}

// TrimNullString removes trailing null bytes and converts to string.
func TrimNullString(data []byte) string {
	return string(TrimNullBytes(data))
}

// FixedStringToUTF8 converts a fixed-size Windows-1252 byte array to a UTF-8
// string, honoring the first null terminator.
func FixedStringToUTF8(data []byte) string {
	nullIdx := bytes.IndexByte(data, 0)
	if nullIdx >= 0 {
		data = data[:nullIdx]
	}
	return Windows1252ToUTF8(data)
}

// IsPrintable1252 reports whether b decodes to a printable character under
// Windows-1252. Used when scanning chunk payloads for embedded path strings.
func IsPrintable1252(b byte) bool {
	if b >= 0x20 && b <= 0x7E {
		return true
	}
	// cp1252 maps most of 0x80-0xFF to printable characters; the handful of
	// undefined code points below are the exceptions.
	switch b {
	case 0x81, 0x8D, 0x8F, 0x90, 0x9D:
		return false
	}
	return b >= 0x80
}
