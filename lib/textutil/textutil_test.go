package textutil

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseCount(t *testing.T) {
	testCases := []struct {
		input    string
		expected int
	}{
		{"", 0},
		{"转发", 0},
		{"评论", 0},
		{"赞", 0},
		{"转发 123", 123},
		{"评论 45", 45},
		{"2万", 20000},
		{"1.0万", 10000},
		{"no digits here", 0},
		{"12 and 34", 12},
	}
	for _, tc := range testCases {
		require.Equal(t, tc.expected, ParseCount(tc.input), "input: %q", tc.input)
	}
}

func TestCleanHTML(t *testing.T) {
	testCases := []struct {
		input    string
		expected string
	}{
		{"", ""},
		{"<p>hello</p>", "hello"},
		{"line<br>break", "line\nbreak"},
		{"a &amp; b", "a & b"},
		{"  padded  ", "padded"},
		{"<div>one</div>\n\n\n\n<div>two</div>", "one\n\ntwo"},
	}
	for _, tc := range testCases {
		require.Equal(t, tc.expected, CleanHTML(tc.input), "input: %q", tc.input)
	}
}

func TestSafeName(t *testing.T) {
	require.Equal(t, "asset", SafeName(""))
	require.Equal(t, "5270471789774972_avatar", SafeName("5270471789774972_avatar"))
	require.NotContains(t, SafeName("a/b\\c:d"), "/")
	require.NotContains(t, SafeName("a/b\\c:d"), ":")
}

func TestSafeFileName(t *testing.T) {
	require.Equal(t, "abc", SafeFileName("abc", 10))
	require.Len(t, []rune(SafeFileName("很长的名字很长的名字", 4)), 4)
	require.NotContains(t, SafeFileName("we?ird*name", 90), "?")
}

func TestTruncateRunes(t *testing.T) {
	require.Equal(t, "", TruncateRunes("", 5))
	require.Equal(t, "abc", TruncateRunes("abc", 5))
	require.Len(t, []rune(TruncateRunes("一二三四五六", 3)), 3)
}
