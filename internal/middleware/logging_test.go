package middleware

import (
	"testing"

	"github.com/go-telegram/bot/models"
)

func TestDescribeUpdate(t *testing.T) {
	private := models.Chat{ID: 7, Type: models.ChatTypePrivate}
	from := &models.User{ID: 42}

	tests := []struct {
		name   string
		update *models.Update
		want   updateInfo
	}{
		{
			name:   "command with arguments",
			update: &models.Update{Message: &models.Message{Chat: private, From: from, Text: "/history 5"}},
			want:   updateInfo{kind: "command /history", chatID: 7, telegramID: 42},
		},
		{
			name:   "plain text",
			update: &models.Update{Message: &models.Message{Chat: private, From: from, Text: "xin chào"}},
			want:   updateInfo{kind: "text", chatID: 7, telegramID: 42},
		},
		{
			name:   "photo with caption",
			update: &models.Update{Message: &models.Message{Chat: private, From: from, Caption: "/x", Photo: []models.PhotoSize{{FileID: "p"}}}},
			want:   updateInfo{kind: "photo", chatID: 7, telegramID: 42},
		},
		{
			name:   "document without sender",
			update: &models.Update{Message: &models.Message{Chat: private, Document: &models.Document{FileID: "d"}}},
			want:   updateInfo{kind: "document", chatID: 7},
		},
		{
			name: "callback",
			update: &models.Update{CallbackQuery: &models.CallbackQuery{
				From:    *from,
				Message: models.MaybeInaccessibleMessage{Message: &models.Message{Chat: private}},
			}},
			want: updateInfo{kind: "callback", chatID: 7, telegramID: 42},
		},
		{
			name:   "other",
			update: &models.Update{},
			want:   updateInfo{kind: "other"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := describeUpdate(tt.update); got != tt.want {
				t.Errorf("describeUpdate: got %+v, want %+v", got, tt.want)
			}
		})
	}
}
