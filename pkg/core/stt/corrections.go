package stt

import (
	"regexp"
	"strings"
)

// Whisper reliably mishears a handful of scripture terms in conversational
// audio. The list is small on purpose; it fixes known transcriptions, it
// does not try to spell-check the user.
var corrections = []struct {
	pattern     *regexp.Regexp
	replacement string
}{
	{regexp.MustCompile(`(?i)\bking james virgin\b`), "King James Version"},
	{regexp.MustCompile(`(?i)\bking james vision\b`), "King James Version"},
	{regexp.MustCompile(`(?i)\bnew international virgin\b`), "New International Version"},
	{regexp.MustCompile(`(?i)\bnew international vision\b`), "New International Version"},
	{regexp.MustCompile(`(?i)\bsalms\b`), "Psalms"},
	{regexp.MustCompile(`(?i)\bsalm\b`), "Psalm"},
	{regexp.MustCompile(`(?i)\brevelations\b`), "Revelation"},
	{regexp.MustCompile(`(?i)\bfirst corinthians\b`), "1 Corinthians"},
	{regexp.MustCompile(`(?i)\bsecond corinthians\b`), "2 Corinthians"},
	{regexp.MustCompile(`(?i)\bfirst timothy\b`), "1 Timothy"},
	{regexp.MustCompile(`(?i)\bsecond timothy\b`), "2 Timothy"},
	{regexp.MustCompile(`(?i)\bsong of solomon's\b`), "Song of Solomon"},
}

// FixCommonMistakes rewrites commonly misheard scripture terms.
func FixCommonMistakes(text string) string {
	result := strings.TrimSpace(text)
	for _, c := range corrections {
		result = c.pattern.ReplaceAllString(result, c.replacement)
	}
	return result
}
