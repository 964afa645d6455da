package bridge

import (
	"strings"
	"unicode/utf8"
)

// SplitMessage splits text into pieces no longer than limit characters.
// WhatsApp rejects oversized messages, so long agent replies are cut at
// the most natural boundary available: the last newline in the window if
// it lands past half the limit, else the last space past 30% of the
// limit, else a hard cut. Leading whitespace of each remainder is
// trimmed.
func SplitMessage(text string, limit int) []string {
	if limit <= 0 {
		return []string{text}
	}

	var chunks []string
	remaining := text
	for len(remaining) > limit {
		window := remaining[:limit]
		cut := limit

		if nl := strings.LastIndexByte(window, '\n'); nl >= limit/2 {
			cut = nl
		} else if sp := strings.LastIndexByte(window, ' '); sp >= limit*3/10 {
			cut = sp
		} else {
			// A hard cut must not land inside a multibyte rune, or the
			// chunk would be invalid UTF-8 and unsendable on its own.
			for cut > 0 && !utf8.RuneStart(remaining[cut]) {
				cut--
			}
			if cut == 0 {
				// Limit smaller than the first rune: emit it whole.
				_, cut = utf8.DecodeRuneInString(remaining)
			}
		}

		chunks = append(chunks, remaining[:cut])
		remaining = strings.TrimLeft(remaining[cut:], " \t\n\r")
	}
	if remaining == "" && len(chunks) > 0 {
		return chunks
	}
	return append(chunks, remaining)
}
