package blob

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/google/uuid"

	"github.com/dtroode/ttldump/internal/model"
)

const (
	// ReferencePrefix marks content that points at an external blob.
	ReferencePrefix = "/uploads/"

	inlinePrefix = "data:"
	inlineMarker = ";base64,"
)

// Policy selects how file uploads are kept.
type Policy string

const (
	// PolicyExternal writes file bytes to the blob store.
	PolicyExternal Policy = "external"
	// PolicyInline embeds file bytes into the dump content.
	PolicyInline Policy = "inline"
)

// ErrNotInline is returned by DecodeInline for content without a data URI.
var ErrNotInline = errors.New("content is not an inline blob")

// Locator turns uploaded bytes into dump content and back.
type Locator struct {
	store  model.BlobStore
	policy Policy
}

// NewLocator creates a Locator. store may be nil with the inline policy.
func NewLocator(store model.BlobStore, policy Policy) *Locator {
	return &Locator{
		store:  store,
		policy: policy,
	}
}

// Policy returns the configured policy.
func (l *Locator) Policy() Policy {
	return l.policy
}

// Locate returns the content string that represents data under the configured policy.
func (l *Locator) Locate(ctx context.Context, data []byte, fileName, mimeType string) (string, error) {
	if l.policy == PolicyInline {
		return EncodeInline(data, mimeType), nil
	}

	return l.Put(ctx, data, fileName, mimeType)
}

// Put writes data to the blob store under a collision-free name and returns its reference.
func (l *Locator) Put(ctx context.Context, data []byte, fileName, mimeType string) (string, error) {
	if l.store == nil {
		return "", fmt.Errorf("%w: no blob store configured", model.ErrBlobStoreUnavailable)
	}

	name := blobName(fileName)
	if err := l.store.Put(ctx, name, bytes.NewReader(data), int64(len(data)), mimeType); err != nil {
		return "", fmt.Errorf("%w: %w", model.ErrBlobStoreUnavailable, err)
	}

	return ReferencePrefix + name, nil
}

// Release deletes the blob behind ref. Missing blobs yield model.ErrBlobNotFound.
func (l *Locator) Release(ctx context.Context, ref string) error {
	name, ok := strings.CutPrefix(ref, ReferencePrefix)
	if !ok || name == "" {
		return fmt.Errorf("not a blob reference: %q", ref)
	}
	if l.store == nil {
		return fmt.Errorf("%w: no blob store configured", model.ErrBlobStoreUnavailable)
	}

	err := l.store.Delete(ctx, name)
	if errors.Is(err, model.ErrBlobNotFound) {
		return err
	}
	if err != nil {
		return fmt.Errorf("%w: %w", model.ErrBlobStoreUnavailable, err)
	}

	return nil
}

// Open returns the raw bytes behind a file dump's content, inline or external.
func (l *Locator) Open(ctx context.Context, content string) (io.ReadCloser, error) {
	if IsInline(content) {
		data, _, err := DecodeInline(content)
		if err != nil {
			return nil, err
		}
		return io.NopCloser(bytes.NewReader(data)), nil
	}

	name, ok := strings.CutPrefix(content, ReferencePrefix)
	if !ok || name == "" {
		return nil, fmt.Errorf("content is neither inline nor a blob reference")
	}
	if l.store == nil {
		return nil, fmt.Errorf("%w: no blob store configured", model.ErrBlobStoreUnavailable)
	}

	rc, err := l.store.Open(ctx, name)
	if errors.Is(err, model.ErrBlobNotFound) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", model.ErrBlobStoreUnavailable, err)
	}

	return rc, nil
}

// IsReference reports whether content points at an external blob.
func IsReference(content string) bool {
	return strings.HasPrefix(content, ReferencePrefix) && len(content) > len(ReferencePrefix)
}

// IsInline reports whether content is an inline data URI.
func IsInline(content string) bool {
	return strings.HasPrefix(content, inlinePrefix)
}

// ExternalReference returns the blob reference held by d, if any.
// Text kinds never hold one, whatever their content looks like.
func ExternalReference(d model.Dump) (string, bool) {
	if !d.Kind.IsFile() || !IsReference(d.Content) {
		return "", false
	}
	return d.Content, true
}

// EncodeInline embeds data and its MIME type into a data URI.
func EncodeInline(data []byte, mimeType string) string {
	return inlinePrefix + mimeType + inlineMarker + base64.StdEncoding.EncodeToString(data)
}

// DecodeInline reverses EncodeInline. The payload starts after the last marker
// since base64 never contains one but a MIME type may.
func DecodeInline(content string) ([]byte, string, error) {
	rest, ok := strings.CutPrefix(content, inlinePrefix)
	if !ok {
		return nil, "", ErrNotInline
	}

	i := strings.LastIndex(rest, inlineMarker)
	if i < 0 {
		return nil, "", ErrNotInline
	}
	mimeType, encoded := rest[:i], rest[i+len(inlineMarker):]

	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, "", fmt.Errorf("failed to decode inline blob: %w", err)
	}

	return data, mimeType, nil
}

func blobName(fileName string) string {
	base := path.Base(strings.ReplaceAll(fileName, "\\", "/"))
	if base == "." || base == "/" || base == ".." {
		base = ""
	}
	if base == "" {
		return uuid.New().String()
	}
	return uuid.New().String() + "-" + base
}
