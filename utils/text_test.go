package utils

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
)

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", Truncate("short", 10))
	assert.Equal(t, "abcdefg...", Truncate(strings.Repeat("abcdefghij", 3), 10))
	assert.Equal(t, "ab", Truncate("abcdef", 2))
}

func TestTruncate_MultiByte(t *testing.T) {
	// byte length exceeds the limit but the rune count does not
	s := strings.Repeat("é", 8)
	assert.Equal(t, s, Truncate(s, 10))

	long := strings.Repeat("会議", 50)
	got := Truncate(long, 25)
	assert.True(t, utf8.ValidString(got))
	assert.Equal(t, 25, utf8.RuneCountInString(got))
	assert.True(t, strings.HasSuffix(got, "..."))
}
