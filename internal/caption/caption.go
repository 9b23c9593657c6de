// Package caption cleans post captions before they are attached to a
// delivery: Unicode normalization, platform noise removal, and length
// limiting.
package caption

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Limit is the delivery platform's caption length cap in runes.
const Limit = 1024

const ellipsis = "…"

// zero-width and formatting runes Instagram captions tend to carry.
var noiseRunes = map[rune]struct{}{
	'\u200b': {}, // zero width space
	'\u200c': {}, // zero width non-joiner
	'\u200d': {}, // zero width joiner
	'\u2060': {}, // word joiner
	'\ufeff': {}, // byte order mark
}

// Normalize returns the caption in NFC form with noise runes removed,
// whitespace collapsed, trailing hashtag blocks dropped, and length capped
// at limit runes. A limit of 0 or less applies the platform Limit.
func Normalize(raw string, limit int) string {
	if limit <= 0 {
		limit = Limit
	}

	text := norm.NFC.String(raw)
	text = stripNoiseRunes(text)

	lines := strings.Split(text, "\n")
	kept := make([]string, 0, len(lines))
	for _, line := range lines {
		kept = append(kept, collapseSpaces(line))
	}
	// Drop trailing lines that are nothing but tags and mentions.
	for len(kept) > 0 && isTagLine(kept[len(kept)-1]) {
		kept = kept[:len(kept)-1]
	}
	// Drop empty trailing lines left behind.
	for len(kept) > 0 && kept[len(kept)-1] == "" {
		kept = kept[:len(kept)-1]
	}
	for len(kept) > 0 && kept[0] == "" {
		kept = kept[1:]
	}

	return Truncate(strings.Join(kept, "\n"), limit)
}

// Truncate caps text at limit runes, appending an ellipsis when it had to
// cut. Truncation happens on a rune boundary, never mid-encoding.
func Truncate(text string, limit int) string {
	if limit <= 0 {
		limit = Limit
	}
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	cut := limit - len([]rune(ellipsis))
	if cut < 0 {
		cut = 0
	}
	return strings.TrimRight(string(runes[:cut]), " \t\n") + ellipsis
}

func stripNoiseRunes(text string) string {
	var b strings.Builder
	b.Grow(len(text))
	for _, r := range text {
		if _, ok := noiseRunes[r]; ok {
			continue
		}
		if r == '\r' {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func collapseSpaces(line string) string {
	return strings.Join(strings.Fields(line), " ")
}

func isTagLine(line string) bool {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return false
	}
	for _, field := range fields {
		if !strings.HasPrefix(field, "#") && !strings.HasPrefix(field, "@") {
			return false
		}
	}
	return true
}
