package telegram

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestSplitMessageShortText(t *testing.T) {
	parts := SplitMessage("xin chào", 4096)
	if len(parts) != 1 || parts[0] != "xin chào" {
		t.Errorf("SplitMessage: got %q", parts)
	}
}

func TestSplitMessageRespectsRuneLimit(t *testing.T) {
	text := strings.Repeat("ệ", 25)
	parts := SplitMessage(text, 10)

	if len(parts) != 3 {
		t.Fatalf("parts: got %d, want 3", len(parts))
	}
	for i, p := range parts {
		if n := utf8.RuneCountInString(p); n > 10 {
			t.Errorf("part %d: %d runes, want at most 10", i, n)
		}
	}
	if strings.Join(parts, "") != text {
		t.Error("joined parts differ from the input")
	}
}

func TestSplitMessagePrefersNewlines(t *testing.T) {
	text := "dòng một\nhai ba bốn năm"
	parts := SplitMessage(text, 12)

	if parts[0] != "dòng một\n" {
		t.Errorf("first part: got %q, want %q", parts[0], "dòng một\n")
	}
	if strings.Join(parts, "") != text {
		t.Error("joined parts differ from the input")
	}
}

func TestFixMarkdown(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"balanced", "use `go test`", "use `go test`"},
		{"unclosed inline", "run `go vet", "run `go vet`"},
		{"unclosed block", "```go\nfmt.Println()", "```go\nfmt.Println()\n```"},
		{"backtick inside block", "```\na ` b\n```", "```\na ` b\n```"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FixMarkdown(tt.in); got != tt.want {
				t.Errorf("FixMarkdown(%q): got %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestSplitMessageKeepsCodeBlocksBalanced(t *testing.T) {
	text := "```\n" + strings.Repeat("a", 30) + "\n```"
	parts := SplitMessage(text, 20)

	if len(parts) < 2 {
		t.Fatalf("parts: got %d, want at least 2", len(parts))
	}
	var body int
	for i, p := range parts {
		if n := utf8.RuneCountInString(p); n > 20 {
			t.Errorf("part %d: %d runes, want at most 20", i, n)
		}
		if strings.Count(p, "```")%2 != 0 {
			t.Errorf("part %d has an unbalanced fence: %q", i, p)
		}
		body += strings.Count(p, "a")
	}
	if body != 30 {
		t.Errorf("code body: got %d runes across parts, want 30", body)
	}
	if !strings.HasPrefix(parts[1], "```\n") {
		t.Errorf("second part does not reopen the block: %q", parts[1])
	}
}

func TestFixMarkdownClosesInlineBeforeBlock(t *testing.T) {
	got := FixMarkdown("run `x\n```\ncode\n```")
	want := "run `x\n````\ncode\n```"
	if got != want {
		t.Errorf("FixMarkdown: got %q, want %q", got, want)
	}
}
