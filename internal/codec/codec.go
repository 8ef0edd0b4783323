// Package codec implements the wire-level encode/decode rules for the
// charger's big-endian 16-bit holding registers.
package codec

import (
	"math"
	"strings"
	"unicode/utf8"

	"github.com/devskill-org/phaeton-driver/internal/perr"
)

// DecodeF32 interprets the first two registers as an IEEE-754 big-endian
// float32: word order and byte order within a word are both big-endian.
func DecodeF32(regs []uint16) (float32, error) {
	if len(regs) < 2 {
		return 0, perr.CodecShort("decode_f32 requires 2 registers")
	}
	bits := uint32(regs[0])<<16 | uint32(regs[1])
	return math.Float32frombits(bits), nil
}

// DecodeF64 interprets the first four registers as an IEEE-754 big-endian
// float64.
func DecodeF64(regs []uint16) (float64, error) {
	if len(regs) < 4 {
		return 0, perr.CodecShort("decode_f64 requires 4 registers")
	}
	bits := uint64(regs[0])<<48 | uint64(regs[1])<<32 | uint64(regs[2])<<16 | uint64(regs[3])
	return math.Float64frombits(bits), nil
}

// EncodeF32 is the inverse of DecodeF32.
func EncodeF32(v float32) [2]uint16 {
	bits := math.Float32bits(v)
	return [2]uint16{uint16(bits >> 16), uint16(bits & 0xFFFF)}
}

// DecodeString emits hi,lo bytes per register, skipping NUL bytes
// wherever they occur (so one ASCII character per register decodes
// cleanly), interprets the result as UTF-8, trims ASCII whitespace from
// both ends, and truncates to maxLen runes when maxLen > 0.
func DecodeString(regs []uint16, maxLen int) (string, error) {
	buf := make([]byte, 0, len(regs)*2)
	for _, r := range regs {
		for _, b := range [2]byte{byte(r >> 8), byte(r & 0xFF)} {
			if b != 0 {
				buf = append(buf, b)
			}
		}
	}
	if !utf8.Valid(buf) {
		return "", perr.CodecUtf8("decode_string: invalid utf-8", nil)
	}
	s := string(buf)
	s = strings.TrimFunc(s, func(r rune) bool {
		return r == ' ' || r == '\t' || r == '\n' || r == '\f' || r == '\r'
	})
	if maxLen > 0 {
		runes := []rune(s)
		if len(runes) > maxLen {
			s = string(runes[:maxLen])
		}
	}
	return s, nil
}
