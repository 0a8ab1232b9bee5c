package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"

	"github.com/dtroode/ttldump/internal/blob"
	"github.com/dtroode/ttldump/internal/envelope"
	"github.com/dtroode/ttldump/internal/logger"
	"github.com/dtroode/ttldump/internal/model"
)

// BlobLocator turns uploads into dump content and back.
type BlobLocator interface {
	BlobReleaser
	Locate(ctx context.Context, data []byte, fileName, mimeType string) (string, error)
	Open(ctx context.Context, content string) (io.ReadCloser, error)
}

// Dump is the expiring dump store: every read honours the TTL regardless of how
// far behind the reaper is.
type Dump struct {
	dumpStore model.DumpStore
	locator   BlobLocator
	reaper    *Reaper
	logger    *logger.Logger
	timeNow   func() time.Time
}

// NewDump creates the dump service. reaper may be nil to disable sweeps on the
// request path.
func NewDump(
	dumpStore model.DumpStore,
	locator BlobLocator,
	reaper *Reaper,
	logger *logger.Logger,
) *Dump {
	return &Dump{
		dumpStore: dumpStore,
		locator:   locator,
		reaper:    reaper,
		logger:    logger,
		timeNow:   time.Now,
	}
}

// Submit validates a submission, encodes its payload and stores it.
func (s *Dump) Submit(ctx context.Context, params model.SubmitParams) (model.Dump, error) {
	s.sweep(ctx)

	switch params.Kind {
	case model.DumpKindText:
		if params.Content == "" {
			return model.Dump{}, model.ErrMissingContent
		}
		return s.Create(ctx, model.DumpKindText, params.Content, "", "")

	case model.DumpKindHashedText:
		if params.Content == "" {
			return model.Dump{}, model.ErrMissingContent
		}
		if params.Passphrase == "" {
			return model.Dump{}, model.ErrMissingPassphrase
		}
		env, err := envelope.Encrypt(params.Content, params.Passphrase)
		if err != nil {
			return model.Dump{}, fmt.Errorf("failed to encrypt content: %w", err)
		}
		return s.Create(ctx, model.DumpKindHashedText, env, "", "")

	case model.DumpKindImage, model.DumpKindPDF, model.DumpKindFile:
		return s.submitFile(ctx, params)

	default:
		return model.Dump{}, model.ErrUnknownKind
	}
}

func (s *Dump) submitFile(ctx context.Context, params model.SubmitParams) (model.Dump, error) {
	if params.File == nil {
		return model.Dump{}, model.ErrMissingFile
	}

	kind := model.ClassifyMIME(params.MimeType)

	content, err := s.locator.Locate(ctx, params.File, params.FileName, params.MimeType)
	if err != nil {
		s.logger.Error("failed to store upload", "file_name", params.FileName, "error", err)
		return model.Dump{}, fmt.Errorf("failed to store upload: %w", err)
	}

	dump, err := s.Create(ctx, kind, content, params.FileName, params.MimeType)
	if err != nil {
		if blob.IsReference(content) {
			if relErr := s.locator.Release(ctx, content); relErr != nil {
				s.logger.Error("failed to release blob of unsaved dump", "ref", content, "error", relErr)
			}
		}
		return model.Dump{}, err
	}

	return dump, nil
}

// Create stores a dump with a fresh id that expires model.TTL from now.
func (s *Dump) Create(ctx context.Context, kind model.DumpKind, content, fileName, mimeType string) (model.Dump, error) {
	now := s.now()
	dump := model.Dump{
		ID:        uuid.New(),
		Kind:      kind,
		Content:   content,
		FileName:  fileName,
		MimeType:  mimeType,
		CreatedAt: now,
		ExpiresAt: now.Add(model.TTL),
	}

	saved, err := s.dumpStore.Create(ctx, dump)
	if err != nil {
		s.logger.Error("failed to create dump", "dump_id", dump.ID, "kind", kind, "error", err)
		return model.Dump{}, fmt.Errorf("%w: failed to create dump: %w", model.ErrStorageUnavailable, err)
	}

	s.logger.Debug("dump created", "dump_id", saved.ID, "kind", saved.Kind, "expires_at", saved.ExpiresAt)

	return saved, nil
}

// ListActive returns every unexpired dump, newest first.
func (s *Dump) ListActive(ctx context.Context) ([]model.Dump, error) {
	s.sweep(ctx)

	dumps, err := s.dumpStore.ListActive(ctx, s.now())
	if err != nil {
		s.logger.Error("failed to list dumps", "error", err)
		return nil, fmt.Errorf("%w: failed to list dumps: %w", model.ErrStorageUnavailable, err)
	}
	if dumps == nil {
		dumps = []model.Dump{}
	}

	return dumps, nil
}

// FindActiveByID returns the dump with id. An empty kind accepts any kind.
// Absence, a kind mismatch and expiry are reported as distinct errors. The sweep
// runs after the lookup so an expired dump is reported as expired once before it
// is reaped.
func (s *Dump) FindActiveByID(ctx context.Context, kind model.DumpKind, id uuid.UUID) (model.Dump, error) {
	defer s.sweep(ctx)

	return s.findActive(ctx, kind, id)
}

func (s *Dump) findActive(ctx context.Context, kind model.DumpKind, id uuid.UUID) (model.Dump, error) {
	dump, err := s.dumpStore.GetByID(ctx, id)
	if errors.Is(err, model.ErrNotFound) {
		return model.Dump{}, model.ErrNotFound
	}
	if err != nil {
		s.logger.Error("failed to get dump", "dump_id", id, "error", err)
		return model.Dump{}, fmt.Errorf("%w: failed to get dump: %w", model.ErrStorageUnavailable, err)
	}

	if kind != "" && dump.Kind != kind {
		return model.Dump{}, model.ErrKindMismatch
	}
	if !dump.Active(s.now()) {
		return model.Dump{}, model.ErrExpired
	}

	return dump, nil
}

// Decode decrypts an active hashed text dump with passphrase.
func (s *Dump) Decode(ctx context.Context, id uuid.UUID, passphrase string) (string, error) {
	if passphrase == "" {
		return "", model.ErrMissingPassphrase
	}

	dump, err := s.FindActiveByID(ctx, model.DumpKindHashedText, id)
	if err != nil {
		return "", err
	}

	plaintext, err := envelope.Decrypt(dump.Content, passphrase)
	if err != nil {
		s.logger.Info("hashed text decode rejected", "dump_id", id)
		return "", err
	}

	return plaintext, nil
}

// Content opens the uploaded bytes of an active file dump.
func (s *Dump) Content(ctx context.Context, id uuid.UUID) (io.ReadCloser, model.Dump, error) {
	dump, err := s.FindActiveByID(ctx, "", id)
	if err != nil {
		return nil, model.Dump{}, err
	}
	if !dump.Kind.IsFile() {
		return nil, model.Dump{}, model.ErrKindMismatch
	}

	rc, err := s.locator.Open(ctx, dump.Content)
	if err != nil {
		s.logger.Error("failed to open dump content", "dump_id", id, "error", err)
		if errors.Is(err, model.ErrBlobNotFound) || errors.Is(err, model.ErrBlobStoreUnavailable) {
			return nil, model.Dump{}, fmt.Errorf("%w: %w", model.ErrBlobStoreUnavailable, err)
		}
		return nil, model.Dump{}, fmt.Errorf("failed to open dump content: %w", err)
	}

	return rc, dump, nil
}

func (s *Dump) sweep(ctx context.Context) {
	if s.reaper != nil {
		s.reaper.TriggerOpportunistic(ctx)
	}
}

func (s *Dump) now() time.Time {
	return storeTime(s.timeNow())
}

// storeTime returns t in UTC at the precision every store keeps.
func storeTime(t time.Time) time.Time {
	return t.UTC().Truncate(time.Microsecond)
}
