package model

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound     = errors.New("dump not found")
	ErrKindMismatch = errors.New("dump kind mismatch")
	ErrExpired      = errors.New("dump expired")

	// ErrInvalidKeyOrData covers both a wrong passphrase and a corrupted envelope.
	ErrInvalidKeyOrData = errors.New("invalid key or data")

	ErrStorageUnavailable   = errors.New("storage unavailable")
	ErrBlobStoreUnavailable = errors.New("blob store unavailable")
	ErrBlobNotFound         = errors.New("blob not found")
)

// ErrValidation is wrapped by every input validation failure.
var ErrValidation = errors.New("validation failed")

var (
	ErrMissingContent    = fmt.Errorf("%w: content is required", ErrValidation)
	ErrMissingFile       = fmt.Errorf("%w: file is required", ErrValidation)
	ErrMissingPassphrase = fmt.Errorf("%w: passphrase is required", ErrValidation)
	ErrMissingID         = fmt.Errorf("%w: id is required", ErrValidation)
	ErrUnknownKind       = fmt.Errorf("%w: unknown dump kind", ErrValidation)
)
