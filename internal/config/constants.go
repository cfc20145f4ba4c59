package config

import "time"

const (
	// Backend names
	BackendMemory       = "memory"
	BackendPostgres     = "postgres"
	BackendRedis        = "redis"
	BackendS3           = "s3"
	ExchangeBackendHTTP = "backend"
	ExchangeOpenRouter  = "openrouter"

	// Credits granted once when an account is created
	StartingGrant = 1000

	// Cost table, first match wins
	CostImage    = 200
	CostVideo    = 300
	CostAnalysis = 200
	CostChat     = 50

	// Remote exchange timeout
	ExchangeTimeout = 30 * time.Second

	// History sent along with an exchange
	MaxHistoryMessages = 20

	// Attachment limits
	MaxAttachmentBytes = 20 << 20
	MaxMultipartMemory = 32 << 20

	// Sign-up password policy
	MinPasswordLength = 6

	// Telegram limits
	MaxTelegramMessageLen = 4096

	// Rate limits (per chat)
	RateLimitPerMinute = 6
	RateLimitBurst     = 3

	// Default chat title
	DefaultChatTitle = "New Chat"
)

// Display texts. The product speaks Vietnamese.
const (
	FallbackReplyText = "Xin lỗi, tôi đang gặp sự cố kỹ thuật. Vui lòng thử lại sau."
	WelcomeText       = "Xin chào! Tôi là AI Assistant của bạn. Tôi có thể giúp bạn chat, tạo hình ảnh, video, phân tích tài liệu và xây dựng website. Bạn cần tôi hỗ trợ gì?"
)

// ImageKeywords select the image-generation price.
var ImageKeywords = []string{"create image", "draw", "picture", "tạo ảnh", "vẽ", "hình"}

// VideoKeywords select the video price.
var VideoKeywords = []string{"video", "movie", "phim"}
