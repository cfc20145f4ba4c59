package domain

import "time"

type SessionID string

type UserID string

type Session struct {
	ID        SessionID `json:"id"`
	OwnerID   UserID    `json:"owner_id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
}
