package truncate

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/require"
)

func repeatLines(n int, prefix string) string {
	lines := make([]string, n)
	for i := 0; i < n; i++ {
		lines[i] = prefix + string(rune('a'+i%26))
	}
	return strings.Join(lines, "\n")
}

func TestHeadAndTailAgreeOnTotals(t *testing.T) {
	text := repeatLines(100, "line-")
	h := Head(text, Limits{MaxLines: 10, MaxBytes: 1 << 20})
	tl := Tail(text, Limits{MaxLines: 10, MaxBytes: 1 << 20})
	require.Equal(t, h.TotalLines, tl.TotalLines)
	require.Equal(t, h.TotalBytes, tl.TotalBytes)
	require.Equal(t, 100, h.TotalLines)
}

func TestHeadRespectsLineLimit(t *testing.T) {
	text := repeatLines(50, "l")
	r := Head(text, Limits{MaxLines: 5, MaxBytes: 1 << 20})
	require.Equal(t, ByLines, r.TruncatedBy)
	require.LessOrEqual(t, r.OutputLines, 5)
	require.Equal(t, 5, r.OutputLines)
}

func TestTailRespectsLineLimit(t *testing.T) {
	text := repeatLines(50, "l")
	r := Tail(text, Limits{MaxLines: 5, MaxBytes: 1 << 20})
	require.Equal(t, ByLines, r.TruncatedBy)
	require.Equal(t, 5, r.OutputLines)
	require.True(t, strings.HasSuffix(text, r.Output))
}

func TestOutputBytesNeverExceedsMax(t *testing.T) {
	text := repeatLines(1000, "some reasonably long line content ")
	r := Head(text, Limits{MaxLines: 100000, MaxBytes: 500})
	require.LessOrEqual(t, r.OutputBytes, 500)
	require.Equal(t, ByBytes, r.TruncatedBy)
}

func TestTailSingleOversizedLineTruncatesAtUTF8Boundary(t *testing.T) {
	// A single line far larger than the byte budget, containing
	// multi-byte runes near the cut point.
	line := strings.Repeat("é", 100) // 2 bytes per rune
	r := Tail(line, Limits{MaxLines: 100, MaxBytes: 51})
	require.True(t, r.LastLinePartial)
	require.True(t, r.FirstLineExceedsLimit)
	require.LessOrEqual(t, r.OutputBytes, 51)
	require.True(t, utf8Valid(r.Output))
}

func TestHeadSingleOversizedLineTruncatesAtUTF8Boundary(t *testing.T) {
	line := strings.Repeat("é", 100)
	r := Head(line, Limits{MaxLines: 100, MaxBytes: 51})
	require.True(t, r.LastLinePartial)
	require.LessOrEqual(t, r.OutputBytes, 51)
	require.True(t, utf8Valid(r.Output))
}

func TestNotTruncatedWhenWithinLimits(t *testing.T) {
	text := "short\ntext"
	r := Head(text, DefaultLimits)
	require.Equal(t, NotTruncated, r.TruncatedBy)
	require.Equal(t, text, r.Output)
	require.Equal(t, "", Trailer(r, 1))
}

func utf8Valid(s string) bool {
	return utf8.ValidString(s)
}
