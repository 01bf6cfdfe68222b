package protocol_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/omochice/termchat/pkg/protocol"
)

func collect(s *protocol.Splitter, chunks ...string) []string {
	var out []string
	for _, c := range chunks {
		for _, line := range s.Feed([]byte(c)) {
			out = append(out, string(line))
		}
	}
	return out
}

func TestSplitter_Feed(t *testing.T) {
	tests := []struct {
		name   string
		chunks []string
		want   []string
	}{
		{
			name:   "single line",
			chunks: []string{"{\"event\":\"a\"}\n"},
			want:   []string{`{"event":"a"}`},
		},
		{
			name:   "line split across reads",
			chunks: []string{`{"event":"a","mess`, "age\":\"x\"}\n"},
			want:   []string{`{"event":"a","message":"x"}`},
		},
		{
			name:   "several lines in one read",
			chunks: []string{"one\ntwo\nthree\n"},
			want:   []string{"one", "two", "three"},
		},
		{
			name:   "trailing partial is held",
			chunks: []string{"one\ntw"},
			want:   []string{"one"},
		},
		{
			name:   "empty lines skipped",
			chunks: []string{"\n\none\n  \n"},
			want:   []string{"one"},
		},
		{
			name:   "crlf terminators",
			chunks: []string{"one\r\ntwo\r", "\n"},
			want:   []string{"one", "two"},
		},
		{
			name:   "byte at a time",
			chunks: strings.Split("ab\ncd\n", ""),
			want:   []string{"ab", "cd"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var s protocol.Splitter
			assert.Equal(t, tt.want, collect(&s, tt.chunks...))
		})
	}
}

func TestSplitter_Pending(t *testing.T) {
	var s protocol.Splitter
	s.Feed([]byte("abc\nde"))
	assert.Equal(t, 2, s.Pending())
	s.Feed([]byte("f\n"))
	assert.Equal(t, 0, s.Pending())
}

func TestSplitter_Overflow(t *testing.T) {
	dropped := 0
	s := protocol.Splitter{Overflow: func(n int) { dropped = n }}

	big := strings.Repeat("x", protocol.MaxFrameSize+1)
	assert.Empty(t, s.Feed([]byte(big)))
	assert.Equal(t, protocol.MaxFrameSize+1, dropped)
	assert.Equal(t, 0, s.Pending())

	// the rest of the oversized line is discarded, later lines survive
	assert.Equal(t, []string{"next"}, collect(&s, "tail\nnext\n"))
}
