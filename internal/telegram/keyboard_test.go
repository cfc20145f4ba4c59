package telegram

import (
	"strings"
	"testing"
)

func TestPage(t *testing.T) {
	tests := []struct {
		name                       string
		total, perPage, page       int
		start, end, clamped, pages int
	}{
		{"empty list", 0, 8, 0, 0, 0, 0, 1},
		{"first page", 20, 8, 0, 0, 8, 0, 3},
		{"last partial page", 20, 8, 2, 16, 20, 2, 3},
		{"page past the end", 20, 8, 9, 16, 20, 2, 3},
		{"negative page", 5, 8, -1, 0, 5, 0, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			start, end, clamped, pages := Page(tt.total, tt.perPage, tt.page)
			if start != tt.start || end != tt.end || clamped != tt.clamped || pages != tt.pages {
				t.Errorf("Page(%d, %d, %d): got %d %d %d %d, want %d %d %d %d",
					tt.total, tt.perPage, tt.page, start, end, clamped, pages,
					tt.start, tt.end, tt.clamped, tt.pages)
			}
		})
	}
}

func TestChatListKeyboard(t *testing.T) {
	entries := []ChatListEntry{
		{SessionID: "s1", Label: "New Chat"},
		{SessionID: "s2", Label: "Other", Active: true},
	}

	single := ChatListKeyboard(entries, 0, 1).InlineKeyboard
	if len(single) != 3 {
		t.Fatalf("rows on a single page: got %d, want 3", len(single))
	}
	if got := single[0][0].CallbackData; got != CallbackSwitchChat+"s1" {
		t.Errorf("switch callback: got %q", got)
	}
	if !strings.HasSuffix(single[1][0].Text, "✅") || strings.HasSuffix(single[0][0].Text, "✅") {
		t.Errorf("active marker: got %q and %q", single[0][0].Text, single[1][0].Text)
	}
	if got := single[2][0].CallbackData; got != CallbackNewChat {
		t.Errorf("new chat callback: got %q", got)
	}

	middle := ChatListKeyboard(entries, 1, 3).InlineKeyboard
	pager := middle[len(middle)-1]
	if len(pager) != 3 || pager[0].CallbackData != CallbackChatsPage+"0" || pager[2].CallbackData != CallbackChatsPage+"2" {
		t.Errorf("pager on a middle page: got %+v", pager)
	}
	if pager[1].Text != "2/3" || pager[1].CallbackData != CallbackPageLabel {
		t.Errorf("page label: got %+v", pager[1])
	}

	last := ChatListKeyboard(entries, 2, 3).InlineKeyboard
	if pager := last[len(last)-1]; len(pager) != 2 || pager[0].CallbackData != CallbackChatsPage+"1" {
		t.Errorf("pager on the last page: got %+v", pager)
	}
}
