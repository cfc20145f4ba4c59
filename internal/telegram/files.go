package telegram

import (
	"context"
	"fmt"

	"github.com/go-telegram/bot"
)

// GetFileURL returns the download URL for a Telegram file. The URL embeds
// the bot token and must not be persisted.
func GetFileURL(ctx context.Context, b *bot.Bot, fileID string) (string, error) {
	file, err := b.GetFile(ctx, &bot.GetFileParams{FileID: fileID})
	if err != nil {
		return "", fmt.Errorf("get file: %w", err)
	}
	return b.FileDownloadLink(file), nil
}
