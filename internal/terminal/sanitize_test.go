package terminal

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitize(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{name: "plain text untouched", input: "hello world\r\n", want: "hello world\r\n"},
		{name: "colors untouched", input: "\x1b[31mred\x1b[0m", want: "\x1b[31mred\x1b[0m"},
		{name: "full reset", input: "a\x1bcb", want: "ab"},
		{name: "title BEL terminated", input: "\x1b]0;vim main.go\x07text", want: "text"},
		{name: "title ST terminated", input: "\x1b]2;title\x1b\\text", want: "text"},
		{name: "clipboard write", input: "x\x1b]52;c;aGVsbG8=\x07y", want: "xy"},
		{name: "hyperlink OSC kept", input: "\x1b]8;;http://x\x07l\x1b]8;;\x07", want: "\x1b]8;;http://x\x07l\x1b]8;;\x07"},
		{name: "dcs payload", input: "a\x1bPq#0;2;0;0;0\x1b\\b", want: "ab"},
		{name: "alternate screen on and off", input: "\x1b[?1049hfull\x1b[?1049l", want: "full"},
		{name: "legacy alternate screen", input: "\x1b[?47hx\x1b[?47l", want: "x"},
		{name: "tts markers", input: "say «tts»hello«/tts» done", want: "say hello done"},
		{name: "empty", input: "", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, string(Sanitize([]byte(tt.input))))
		})
	}
}

func TestSanitizerAcrossChunks(t *testing.T) {
	tests := []struct {
		name   string
		chunks []string
		want   string
	}{
		{name: "clipboard split in payload", chunks: []string{"x\x1b]52", ";c;ZXZpbA==\x07y"}, want: "xy"},
		{name: "clipboard split after introducer", chunks: []string{"x\x1b", "]52;c;ZXZpbA==\x07y"}, want: "xy"},
		{name: "split before string terminator", chunks: []string{"\x1b]0;title\x1b", "\\text"}, want: "text"},
		{name: "dcs split", chunks: []string{"a\x1bPq#0;2", ";0;0;0\x1b\\b"}, want: "ab"},
		{name: "alternate screen split", chunks: []string{"\x1b[?10", "49hfull"}, want: "full"},
		{name: "full reset split", chunks: []string{"a\x1b", "cb"}, want: "ab"},
		{name: "tts marker split", chunks: []string{"say «tt", "s»hi"}, want: "say hi"},
		{name: "held colour released", chunks: []string{"a\x1b[", "31mred"}, want: "a\x1b[31mred"},
		{name: "hyperlink not held", chunks: []string{"\x1b]8;;http://x\x07l", "z"}, want: "\x1b]8;;http://x\x07lz"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var s Sanitizer
			var got []byte
			for _, chunk := range tt.chunks {
				got = append(got, s.Filter([]byte(chunk))...)
			}
			assert.Equal(t, tt.want, string(got))
			assert.Empty(t, s.Release())
		})
	}
}

func TestSanitizerHoldsUnterminatedTail(t *testing.T) {
	var s Sanitizer
	assert.Equal(t, "x", string(s.Filter([]byte("x\x1b]52;c;ZXZp"))))
	assert.Equal(t, "\x1b]52;c;ZXZp", string(s.Release()))
	assert.Empty(t, s.Release())
}

func TestSanitizerDropsOversizedTail(t *testing.T) {
	var s Sanitizer
	payload := make([]byte, maxCarry+1)
	for i := range payload {
		payload[i] = 'a'
	}
	out := s.Filter(append([]byte("x\x1bP"), payload...))
	assert.Equal(t, "x", string(out))
	assert.Empty(t, s.Release())
}
