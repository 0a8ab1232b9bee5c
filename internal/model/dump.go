package model

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
)

// TTL is the fixed lifetime of every dump.
const TTL = 10 * time.Minute

// DumpStore defines persistence operations for dumps.
type DumpStore interface {
	Create(ctx context.Context, dump Dump) (Dump, error)
	GetByID(ctx context.Context, id uuid.UUID) (Dump, error)
	ListActive(ctx context.Context, now time.Time) ([]Dump, error)
	ListExpired(ctx context.Context, now time.Time) ([]Dump, error)
	DeleteExpired(ctx context.Context, now time.Time) ([]Dump, error)
}

// Dump represents a stored dump entity.
type Dump struct {
	CreatedAt time.Time
	ExpiresAt time.Time
	Content   string
	FileName  string
	MimeType  string
	ID        uuid.UUID
	Kind      DumpKind
}

// Active reports whether the dump is still served at the given moment.
func (d Dump) Active(now time.Time) bool {
	return now.Before(d.ExpiresAt)
}

// DumpKind enumerates dump kinds.
type DumpKind string

const (
	// DumpKindText is a plain text dump.
	DumpKindText DumpKind = "text"
	// DumpKindHashedText is a passphrase-encrypted text dump.
	DumpKindHashedText DumpKind = "hashed_text"
	// DumpKindImage is an image upload.
	DumpKindImage DumpKind = "image"
	// DumpKindPDF is a PDF upload.
	DumpKindPDF DumpKind = "pdf"
	// DumpKindFile is any other upload.
	DumpKindFile DumpKind = "file"
)

// IsFile reports whether the kind carries an uploaded file.
func (k DumpKind) IsFile() bool {
	return k == DumpKindImage || k == DumpKindPDF || k == DumpKindFile
}

// Valid reports whether k is one of the known kinds.
func (k DumpKind) Valid() bool {
	return k == DumpKindText || k == DumpKindHashedText || k.IsFile()
}

// ClassifyMIME maps an uploaded file's MIME type to a dump kind.
func ClassifyMIME(mimeType string) DumpKind {
	switch {
	case strings.HasPrefix(mimeType, "image/"):
		return DumpKindImage
	case mimeType == "application/pdf":
		return DumpKindPDF
	default:
		return DumpKindFile
	}
}

// SubmitParams contains parameters to submit a new dump.
type SubmitParams struct {
	Kind       DumpKind
	Content    string
	File       []byte
	FileName   string
	MimeType   string
	Passphrase string
}
