package ptyhost

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBuffer(t *testing.T) {
	tests := []struct {
		name   string
		size   int
		writes []string
		want   string
	}{
		{name: "empty", size: 8, want: ""},
		{name: "under capacity", size: 8, writes: []string{"abc", "de"}, want: "abcde"},
		{name: "exactly full", size: 4, writes: []string{"ab", "cd"}, want: "abcd"},
		{name: "wraps and keeps newest", size: 4, writes: []string{"abc", "def"}, want: "cdef"},
		{name: "oversized write keeps tail", size: 4, writes: []string{"0123456789"}, want: "6789"},
		{name: "many small writes", size: 5, writes: []string{"a", "b", "c", "d", "e", "f", "g"}, want: "cdefg"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := NewBuffer(tt.size)
			for _, w := range tt.writes {
				n, err := b.Write([]byte(w))
				assert.NoError(t, err)
				assert.Equal(t, len(w), n)
			}
			assert.Equal(t, tt.want, string(b.Bytes()))
			assert.Equal(t, len(tt.want), b.Len())
		})
	}
}

func TestBufferBytesIsNonDestructive(t *testing.T) {
	b := NewBuffer(16)
	_, _ = b.Write([]byte("history"))
	assert.Equal(t, "history", string(b.Bytes()))
	assert.Equal(t, "history", string(b.Bytes()))
}
