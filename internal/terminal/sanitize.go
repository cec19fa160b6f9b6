package terminal

import (
	"bytes"
	"regexp"
)

var (
	// OSC 0/1/2 (titles) and 52 (clipboard), BEL or ST terminated.
	oscPattern = regexp.MustCompile(`\x1b\](?:0|1|2|52);[^\x07\x1b]*(?:\x07|\x1b\\)`)
	// DCS payloads.
	dcsPattern = regexp.MustCompile(`\x1bP[^\x1b]*\x1b\\`)
	// Alternate screen switches.
	altScreenPattern = regexp.MustCompile(`\x1b\[\?(?:1049|1047|47)[hl]`)

	fullReset = []byte("\x1bc")
	ttsOpen   = []byte("«tts»")
	ttsClose  = []byte("«/tts»")
)

// Sanitize strips sequences that would destroy scrollback or affect the
// host terminal: full reset, title and clipboard OSCs, DCS payloads and
// alternate screen switches. The «tts» markers agent tools print are
// dropped too. Everything else passes through untouched.
func Sanitize(data []byte) []byte {
	if len(data) == 0 {
		return data
	}
	if bytes.IndexByte(data, 0x1b) < 0 && !bytes.Contains(data, []byte("tts»")) {
		return data
	}

	out := oscPattern.ReplaceAll(data, nil)
	out = dcsPattern.ReplaceAll(out, nil)
	out = altScreenPattern.ReplaceAll(out, nil)
	out = bytes.ReplaceAll(out, fullReset, nil)
	out = bytes.ReplaceAll(out, ttsOpen, nil)
	out = bytes.ReplaceAll(out, ttsClose, nil)
	return out
}

// maxCarry bounds how much of an unterminated sequence is held back. A
// longer one is dropped, since it would be stripped once terminated.
const maxCarry = 64 << 10

// incompletePattern matches a tail that may still grow into a stripped
// sequence.
var incompletePattern = regexp.MustCompile(
	`\A\x1b(?:` +
		`\](?:(?:0|1|2|52);[^\x07\x1b]*\x1b?|0|1|2|52?)?` +
		`|P[^\x1b]*\x1b?` +
		`|\[(?:\?(?:1(?:0(?:4[79]?)?)?|4(?:7)?)?)?` +
		`)?\z`)

// Sanitizer applies Sanitize to a stream of chunks. A stripped sequence
// split across chunks is held back until it completes. The zero value is
// ready to use; it is not safe for concurrent use.
type Sanitizer struct {
	carry []byte
}

// Filter sanitizes the next chunk of the stream.
func (s *Sanitizer) Filter(chunk []byte) []byte {
	data := chunk
	if len(s.carry) > 0 {
		data = append(s.carry, chunk...)
		s.carry = nil
	}
	out := Sanitize(data)

	hold := incompleteTail(out)
	if hold < len(out) {
		if len(out)-hold <= maxCarry {
			s.carry = append([]byte(nil), out[hold:]...)
		}
		out = out[:hold]
	}
	return out
}

// Release returns and clears anything held back.
func (s *Sanitizer) Release() []byte {
	held := s.carry
	s.carry = nil
	return held
}

// incompleteTail returns the offset from which data ends in the unfinished
// start of a stripped sequence or marker, or len(data) if it does not.
func incompleteTail(data []byte) int {
	for i := bytes.IndexByte(data, 0x1b); i >= 0; {
		if incompletePattern.Match(data[i:]) {
			return i
		}
		next := bytes.IndexByte(data[i+1:], 0x1b)
		if next < 0 {
			break
		}
		i += 1 + next
	}
	for _, marker := range [][]byte{ttsOpen, ttsClose} {
		for n := len(marker) - 1; n > 0; n-- {
			if bytes.HasSuffix(data, marker[:n]) {
				return len(data) - n
			}
		}
	}
	return len(data)
}
