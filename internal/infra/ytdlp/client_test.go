package ytdlp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseMetadata(t *testing.T) {
	tests := []struct {
		name      string
		stdout    string
		wantOK    bool
		wantTitle string
		wantURL   string
	}{
		{
			name:      "single line",
			stdout:    "Rick Astley - Never Gonna Give You Up\thttps://www.youtube.com/watch?v=dQw4w9WgXcQ\n",
			wantOK:    true,
			wantTitle: "Rick Astley - Never Gonna Give You Up",
			wantURL:   "https://www.youtube.com/watch?v=dQw4w9WgXcQ",
		},
		{
			name:      "first usable line wins",
			stdout:    "garbage\nFirst\thttps://a\nSecond\thttps://b\n",
			wantOK:    true,
			wantTitle: "First",
			wantURL:   "https://a",
		},
		{
			name:      "missing webpage url",
			stdout:    "x.mp3\tNA\n",
			wantOK:    true,
			wantTitle: "x.mp3",
			wantURL:   "",
		},
		{
			name:   "empty output",
			stdout: "",
			wantOK: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			md, ok := parseMetadata(tt.stdout)
			assert.Equal(t, tt.wantOK, ok)
			if !tt.wantOK {
				return
			}
			require.NotNil(t, md)
			assert.Equal(t, tt.wantTitle, md.Title)
			assert.Equal(t, tt.wantURL, md.URL)
		})
	}
}

func TestParseLines(t *testing.T) {
	tests := []struct {
		name     string
		stdout   string
		maxItems int
		expected []string
	}{
		{
			name:     "all lines",
			stdout:   "https://a\nhttps://b\nhttps://c\n",
			maxItems: 10,
			expected: []string{"https://a", "https://b", "https://c"},
		},
		{
			name:     "cap is enforced while consuming",
			stdout:   "https://a\nhttps://b\nhttps://c\n",
			maxItems: 2,
			expected: []string{"https://a", "https://b"},
		},
		{
			name:     "blank and NA lines are skipped",
			stdout:   "https://a\n\nNA\nhttps://b\n",
			maxItems: 10,
			expected: []string{"https://a", "https://b"},
		},
		{
			name:     "empty output",
			stdout:   "",
			maxItems: 10,
			expected: []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, parseLines(tt.stdout, tt.maxItems))
		})
	}
}

func TestTarget(t *testing.T) {
	assert.Equal(t, "ytsearch1:never gonna give you up", target("never gonna give you up", true))
	assert.Equal(t, "https://example.com/x.mp3", target("https://example.com/x.mp3", false))
}
