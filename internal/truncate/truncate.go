// Package truncate implements the Output Truncation Policy (spec §4.11): a
// shared utility used by tool executors and the async background tool
// completion router to bound the size of text handed back to the model.
//
// There is no direct teacher analog (the teacher's bash tool has a flat
// MaxOutputLength constant and no head/tail truncator with metadata); this
// is built fresh to the spec's exact contract, in the style of the
// teacher's small single-purpose utility files.
package truncate

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// Limits bounds truncation output.
type Limits struct {
	MaxLines int
	MaxBytes int
}

// DefaultLimits matches spec §4.11's defaults.
var DefaultLimits = Limits{MaxLines: 2000, MaxBytes: 50 * 1024}

// GrepLineCap is the per-line character cap grep-style tools apply before
// handing lines to the truncator.
const GrepLineCap = 500

// TruncatedBy names which limit caused truncation, or "" if the input fit.
type TruncatedBy string

const (
	NotTruncated TruncatedBy = ""
	ByLines      TruncatedBy = "lines"
	ByBytes      TruncatedBy = "bytes"
)

// Result carries the truncated text plus enough metadata to render a
// human-readable trailer (spec §4.11).
type Result struct {
	Output               string
	TotalLines           int
	TotalBytes           int
	OutputLines          int
	OutputBytes          int
	TruncatedBy          TruncatedBy
	LastLinePartial      bool
	FirstLineExceedsLimit bool
}

func splitLines(text string) []string {
	if text == "" {
		return nil
	}
	return strings.Split(text, "\n")
}

// Head keeps a prefix of text until either limit is hit.
func Head(text string, limits Limits) Result {
	lines := splitLines(text)
	res := Result{TotalLines: len(lines), TotalBytes: len(text)}
	if limits.MaxLines <= 0 {
		limits.MaxLines = DefaultLimits.MaxLines
	}
	if limits.MaxBytes <= 0 {
		limits.MaxBytes = DefaultLimits.MaxBytes
	}

	var kept []string
	bytesUsed := 0
	for i, line := range lines {
		sep := 0
		if i > 0 {
			sep = 1
		}
		if len(kept) >= limits.MaxLines {
			res.TruncatedBy = ByLines
			break
		}
		if bytesUsed+len(line)+sep > limits.MaxBytes {
			if len(kept) == 0 {
				// Even the first line alone overflows: keep a
				// UTF-8-safe prefix of it.
				res.FirstLineExceedsLimit = true
				res.LastLinePartial = true
				kept = append(kept, truncatePrefixUTF8(line, limits.MaxBytes))
				bytesUsed = len(kept[0])
			}
			res.TruncatedBy = ByBytes
			break
		}
		kept = append(kept, line)
		bytesUsed += len(line) + sep
	}

	res.Output = strings.Join(kept, "\n")
	res.OutputLines = len(kept)
	res.OutputBytes = len(res.Output)
	return res
}

// Tail keeps a suffix of text until either limit is hit. If the last
// remaining line itself exceeds the byte budget, it is truncated at a valid
// UTF-8 boundary from the start (so the kept fragment is still a suffix of
// that line).
func Tail(text string, limits Limits) Result {
	lines := splitLines(text)
	res := Result{TotalLines: len(lines), TotalBytes: len(text)}
	if limits.MaxLines <= 0 {
		limits.MaxLines = DefaultLimits.MaxLines
	}
	if limits.MaxBytes <= 0 {
		limits.MaxBytes = DefaultLimits.MaxBytes
	}

	var kept []string
	bytesUsed := 0
	for i := len(lines) - 1; i >= 0; i-- {
		line := lines[i]
		sep := 0
		if len(kept) > 0 {
			sep = 1
		}
		if len(kept) >= limits.MaxLines {
			res.TruncatedBy = ByLines
			break
		}
		if bytesUsed+len(line)+sep > limits.MaxBytes {
			if len(kept) == 0 {
				res.FirstLineExceedsLimit = true
				res.LastLinePartial = true
				kept = []string{truncateSuffixUTF8(line, limits.MaxBytes)}
				bytesUsed = len(kept[0])
			}
			res.TruncatedBy = ByBytes
			break
		}
		kept = append([]string{line}, kept...)
		bytesUsed += len(line) + sep
	}

	res.Output = strings.Join(kept, "\n")
	res.OutputLines = len(kept)
	res.OutputBytes = len(res.Output)
	return res
}

// truncatePrefixUTF8 keeps at most maxBytes bytes from the start of s,
// backing off to the nearest rune boundary if the cut would split one.
func truncatePrefixUTF8(s string, maxBytes int) string {
	if len(s) <= maxBytes {
		return s
	}
	n := maxBytes
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

// truncateSuffixUTF8 keeps at most maxBytes bytes from the end of s,
// advancing to the nearest rune boundary if the cut would split one.
func truncateSuffixUTF8(s string, maxBytes int) string {
	if len(s) <= maxBytes {
		return s
	}
	start := len(s) - maxBytes
	for start < len(s) && !utf8.RuneStart(s[start]) {
		start++
	}
	return s[start:]
}

// Trailer formats a human-readable "[Showing lines X-Y of N ...]" summary.
// lineOffset is the 1-based index of the first line in Output relative to
// the original text (callers computing a Head result pass 1; callers of
// Tail pass TotalLines-OutputLines+1).
func Trailer(r Result, lineOffset int) string {
	if r.TruncatedBy == NotTruncated {
		return ""
	}
	end := lineOffset + r.OutputLines - 1
	return fmt.Sprintf("[Showing lines %d-%d of %d total lines, truncated by %s]", lineOffset, end, r.TotalLines, r.TruncatedBy)
}
