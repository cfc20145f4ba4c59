package domain

import (
	"strings"
	"time"
)

type Origin string

const (
	OriginUser      Origin = "user"
	OriginAssistant Origin = "assistant"
)

// GeneratedMedia references media produced by the assistant.
type GeneratedMedia struct {
	ImageURL string `json:"image_url,omitempty"`
	VideoURL string `json:"video_url,omitempty"`
}

func (m *GeneratedMedia) Empty() bool {
	return m == nil || (m.ImageURL == "" && m.VideoURL == "")
}

type Message struct {
	ID         int64           `json:"id"`
	SessionID  SessionID       `json:"session_id"`
	Origin     Origin          `json:"origin"`
	Text       string          `json:"text"`
	Attachment *Attachment     `json:"attachment,omitempty"`
	Media      *GeneratedMedia `json:"media,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
}

// Sendable reports whether a user draft has something to send.
func Sendable(text string, attachment *Attachment) bool {
	return strings.TrimSpace(text) != "" || attachment != nil
}
