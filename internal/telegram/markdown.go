package telegram

import (
	"strings"
	"unicode/utf8"
)

const fence = "```"

// SplitMessage cuts text into chunks of at most maxLen runes, preferring the
// last newline in the second half of each window. A code block that spans a
// cut is closed at the end of one chunk and reopened at the start of the next,
// so every chunk renders on its own.
func SplitMessage(text string, maxLen int) []string {
	runes := []rune(text)
	if len(runes) <= maxLen {
		return []string{text}
	}

	var parts []string
	reopen := false
	for len(runes) > 0 {
		head := ""
		if reopen {
			head = fence + "\n"
		}
		room := max(maxLen-utf8.RuneCountInString(head), 1)
		if len(runes) <= room {
			parts = append(parts, head+string(runes))
			break
		}

		cut := cutPoint(runes, room)
		open := reopen != oddFences(runes[:cut])
		if open {
			// Leave space for the closing fence.
			cut = cutPoint(runes, max(room-len(fence)-1, 1))
			open = reopen != oddFences(runes[:cut])
		}

		chunk := head + string(runes[:cut])
		if open {
			chunk += "\n" + fence
		}
		parts = append(parts, chunk)
		runes = runes[cut:]
		reopen = open
	}
	return parts
}

func cutPoint(runes []rune, limit int) int {
	for i := limit - 1; i > limit/2; i-- {
		if runes[i] == '\n' {
			return i + 1
		}
	}
	return limit
}

func oddFences(runes []rune) bool {
	return strings.Count(string(runes), fence)%2 == 1
}

// FixMarkdown closes an unterminated inline code span or code block. An
// inline span still open when a block starts is closed right before it.
func FixMarkdown(text string) string {
	var b strings.Builder
	b.Grow(len(text) + len(fence) + 2)

	inBlock, inInline := false, false
	for rest := text; rest != ""; {
		if strings.HasPrefix(rest, fence) {
			if inInline {
				b.WriteByte('`')
				inInline = false
			}
			inBlock = !inBlock
			b.WriteString(fence)
			rest = rest[len(fence):]
			continue
		}
		_, size := utf8.DecodeRuneInString(rest)
		if rest[0] == '`' && !inBlock {
			inInline = !inInline
		}
		b.WriteString(rest[:size])
		rest = rest[size:]
	}

	if inInline {
		b.WriteByte('`')
	}
	if inBlock {
		b.WriteString("\n" + fence)
	}
	return b.String()
}
