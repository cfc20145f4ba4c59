package domain

import (
	"fmt"
	"strings"
)

type AttachmentKind string

const (
	AttachmentImage    AttachmentKind = "image"
	AttachmentDocument AttachmentKind = "document"
)

// ParseAttachmentKind accepts the wire names used by clients.
func ParseAttachmentKind(s string) (AttachmentKind, error) {
	switch AttachmentKind(strings.ToLower(strings.TrimSpace(s))) {
	case AttachmentImage:
		return AttachmentImage, nil
	case AttachmentDocument:
		return AttachmentDocument, nil
	default:
		return "", fmt.Errorf("%w: unknown kind %q", ErrInvalidAttachment, s)
	}
}

// Attachment is a file sent along with a user message. Locator is a URL
// issued by the attachment store (s3:// or mem://).
type Attachment struct {
	Kind    AttachmentKind `json:"kind"`
	Locator string         `json:"locator"`
	Name    string         `json:"name"`
	Size    int64          `json:"size"`
}

func NewImageAttachment(locator, name string, size int64) *Attachment {
	return &Attachment{Kind: AttachmentImage, Locator: locator, Name: name, Size: size}
}

func NewDocumentAttachment(locator, name string, size int64) *Attachment {
	return &Attachment{Kind: AttachmentDocument, Locator: locator, Name: name, Size: size}
}

func (a *Attachment) Validate() error {
	if a.Kind != AttachmentImage && a.Kind != AttachmentDocument {
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidAttachment, a.Kind)
	}
	if strings.TrimSpace(a.Locator) == "" {
		return fmt.Errorf("%w: empty locator", ErrInvalidAttachment)
	}
	if a.Size < 0 {
		return fmt.Errorf("%w: negative size", ErrInvalidAttachment)
	}
	return nil
}

// ContentType is the MIME type sent to the chat backend.
func (a *Attachment) ContentType() string {
	if a.Kind == AttachmentImage {
		return "image/jpeg"
	}
	return "application/pdf"
}
