package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"path"
	"strings"

	"github.com/set-night/mindchat/internal/config"
	"github.com/set-night/mindchat/internal/domain"
)

// BackendClient talks to the product chat backend: POST {base}/api/chat as
// multipart form data.
type BackendClient struct {
	baseURL    string
	httpClient *http.Client
	files      AttachmentOpener
}

func NewBackendClient(baseURL string, files AttachmentOpener) *BackendClient {
	return &BackendClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: config.ExchangeTimeout},
		files:      files,
	}
}

type backendResponse struct {
	Message  string `json:"message"`
	ImageURL string `json:"imageUrl"`
	VideoURL string `json:"videoUrl"`
}

func (c *BackendClient) Send(ctx context.Context, req ExchangeRequest) (Reply, error) {
	var body bytes.Buffer
	w := multipart.NewWriter(&body)

	fields := [][2]string{
		{"message", req.Text},
		{"chatId", string(req.SessionID)},
		{"userId", string(req.UserID)},
	}
	for _, f := range fields {
		if err := w.WriteField(f[0], f[1]); err != nil {
			return Reply{}, fmt.Errorf("write field %s: %w", f[0], err)
		}
	}

	if req.Attachment != nil {
		if err := c.writeAttachment(ctx, w, req.Attachment); err != nil {
			return Reply{}, err
		}
	}
	if err := w.Close(); err != nil {
		return Reply{}, fmt.Errorf("close multipart: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/chat", &body)
	if err != nil {
		return Reply{}, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", w.FormDataContentType())

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return Reply{}, fmt.Errorf("%w: %v", domain.ErrRemoteExchange, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Reply{}, fmt.Errorf("%w: backend status %d", domain.ErrRemoteExchange, resp.StatusCode)
	}

	var out backendResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return Reply{}, fmt.Errorf("%w: parse response: %v", domain.ErrRemoteExchange, err)
	}
	if strings.TrimSpace(out.Message) == "" {
		return Reply{}, fmt.Errorf("%w: empty message", domain.ErrRemoteExchange)
	}

	reply := Reply{Text: out.Message}
	if out.ImageURL != "" || out.VideoURL != "" {
		reply.Media = &domain.GeneratedMedia{ImageURL: out.ImageURL, VideoURL: out.VideoURL}
	}
	return reply, nil
}

func (c *BackendClient) writeAttachment(ctx context.Context, w *multipart.Writer, a *domain.Attachment) error {
	if c.files == nil {
		return fmt.Errorf("%w: no attachment opener configured", domain.ErrInvalidAttachment)
	}
	rc, err := c.files.Open(ctx, a.Locator)
	if err != nil {
		return fmt.Errorf("open attachment: %w", err)
	}
	defer rc.Close()

	name := a.Name
	if name == "" {
		name = path.Base(a.Locator)
	}
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, name))
	h.Set("Content-Type", a.ContentType())
	part, err := w.CreatePart(h)
	if err != nil {
		return fmt.Errorf("create file part: %w", err)
	}
	if _, err := io.Copy(part, io.LimitReader(rc, config.MaxAttachmentBytes)); err != nil {
		return fmt.Errorf("copy attachment: %w", err)
	}
	return nil
}
