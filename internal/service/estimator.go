package service

import (
	"strings"

	"github.com/set-night/mindchat/internal/config"
)

// EstimateCost quotes the credit price of a draft. The first matching rule wins.
func EstimateCost(draftText string, hasAttachment bool) int64 {
	text := strings.ToLower(draftText)
	switch {
	case containsAny(text, config.ImageKeywords):
		return config.CostImage
	case containsAny(text, config.VideoKeywords):
		return config.CostVideo
	case hasAttachment:
		return config.CostAnalysis
	default:
		return config.CostChat
	}
}

func containsAny(text string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(text, kw) {
			return true
		}
	}
	return false
}
