package service

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/set-night/mindchat/internal/config"
	"github.com/set-night/mindchat/internal/domain"
)

type OpenRouterClient struct {
	apiKey     string
	baseURL    string
	model      string
	httpClient *http.Client
	files      AttachmentOpener
}

func NewOpenRouterClient(apiKey, baseURL, model string, files AttachmentOpener) *OpenRouterClient {
	return &OpenRouterClient{
		apiKey:     apiKey,
		baseURL:    strings.TrimRight(baseURL, "/"),
		model:      model,
		httpClient: &http.Client{Timeout: config.ExchangeTimeout},
		files:      files,
	}
}

type ChatMessage struct {
	Role    string      `json:"role"`
	Content interface{} `json:"content"`
}

type ChatRequest struct {
	Model    string        `json:"model"`
	Messages []ChatMessage `json:"messages"`
}

type ChatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}

func (c *OpenRouterClient) Send(ctx context.Context, req ExchangeRequest) (Reply, error) {
	messages := make([]ChatMessage, 0, len(req.History)+1)
	for _, m := range req.History {
		if strings.TrimSpace(m.Text) == "" {
			continue
		}
		messages = append(messages, ChatMessage{Role: string(m.Origin), Content: m.Text})
	}

	content, err := c.userContent(ctx, req)
	if err != nil {
		return Reply{}, err
	}
	messages = append(messages, ChatMessage{Role: string(domain.OriginUser), Content: content})

	resp, err := c.chat(ctx, messages)
	if err != nil {
		return Reply{}, fmt.Errorf("%w: %v", domain.ErrRemoteExchange, err)
	}
	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
		return Reply{}, fmt.Errorf("%w: no choices returned", domain.ErrRemoteExchange)
	}
	return Reply{Text: resp.Choices[0].Message.Content}, nil
}

// userContent builds either a plain string or a list of parts when an image
// is attached.
func (c *OpenRouterClient) userContent(ctx context.Context, req ExchangeRequest) (interface{}, error) {
	text := req.Text
	a := req.Attachment
	if a == nil {
		return text, nil
	}
	if a.Kind == domain.AttachmentDocument {
		if text == "" {
			text = "[Document]"
		}
		return fmt.Sprintf("%s\n\n[attached document: %s]", text, a.Name), nil
	}

	url, err := c.imageURL(ctx, a)
	if err != nil {
		return nil, err
	}
	if text == "" {
		text = "[Image]"
	}
	return []interface{}{
		map[string]interface{}{"type": "text", "text": text},
		map[string]interface{}{
			"type":      "image_url",
			"image_url": map[string]string{"url": url},
		},
	}, nil
}

// imageURL inlines a stored image as a data URL.
func (c *OpenRouterClient) imageURL(ctx context.Context, a *domain.Attachment) (string, error) {
	if c.files == nil {
		return "", fmt.Errorf("%w: no attachment opener configured", domain.ErrInvalidAttachment)
	}
	rc, err := c.files.Open(ctx, a.Locator)
	if err != nil {
		return "", fmt.Errorf("open attachment: %w", err)
	}
	defer rc.Close()
	data, err := io.ReadAll(io.LimitReader(rc, config.MaxAttachmentBytes))
	if err != nil {
		return "", fmt.Errorf("read attachment: %w", err)
	}
	return "data:" + a.ContentType() + ";base64," + base64.StdEncoding.EncodeToString(data), nil
}

func (c *OpenRouterClient) chat(ctx context.Context, messages []ChatMessage) (*ChatResponse, error) {
	payload, err := json.Marshal(ChatRequest{Model: c.model, Messages: messages})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("chat request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, fmt.Errorf("rate limited by OpenRouter (429)")
	}
	if resp.StatusCode == http.StatusServiceUnavailable {
		return nil, fmt.Errorf("OpenRouter service unavailable (503)")
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("OpenRouter status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	var chatResp ChatResponse
	if err := json.Unmarshal(body, &chatResp); err != nil {
		return nil, fmt.Errorf("parse response: %w", err)
	}
	return &chatResp, nil
}
