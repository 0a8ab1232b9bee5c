package service

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/dtroode/ttldump/internal/blob"
	"github.com/dtroode/ttldump/internal/model"
	"github.com/dtroode/ttldump/internal/repository/memory"
	"github.com/dtroode/ttldump/internal/testutil"
)

func newTestDumpService(t *testing.T) (*Dump, *fakeClock, *testutil.BlobStore) {
	t.Helper()

	clock := newFakeClock()
	blobs := testutil.NewBlobStore()
	svc := NewDump(memory.NewDumpRepository(), blob.NewLocator(blobs, blob.PolicyExternal), nil, testutil.MakeNoopLogger())
	svc.timeNow = clock.Now

	return svc, clock, blobs
}

func TestDump_SubmitText(t *testing.T) {
	ctx := context.Background()
	svc, clock, _ := newTestDumpService(t)

	dump, err := svc.Submit(ctx, model.SubmitParams{Kind: model.DumpKindText, Content: "hello"})
	require.NoError(t, err)

	assert.NotEqual(t, uuid.Nil, dump.ID)
	assert.Equal(t, model.DumpKindText, dump.Kind)
	assert.Equal(t, "hello", dump.Content)
	assert.Equal(t, clock.Now(), dump.CreatedAt)
	assert.Equal(t, model.TTL, dump.ExpiresAt.Sub(dump.CreatedAt))

	got, err := svc.FindActiveByID(ctx, model.DumpKindText, dump.ID)
	require.NoError(t, err)
	assert.Equal(t, "hello", got.Content)

	list, err := svc.ListActive(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, dump.ID, list[0].ID)
}

func TestDump_SubmitHashedText(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestDumpService(t)

	dump, err := svc.Submit(ctx, model.SubmitParams{
		Kind:       model.DumpKindHashedText,
		Content:    "secret",
		Passphrase: "pw123",
	})
	require.NoError(t, err)
	assert.NotContains(t, dump.Content, "secret")
	assert.Contains(t, dump.Content, ":")

	plaintext, err := svc.Decode(ctx, dump.ID, "pw123")
	require.NoError(t, err)
	assert.Equal(t, "secret", plaintext)

	plaintext, err = svc.Decode(ctx, dump.ID, "wrong")
	assert.ErrorIs(t, err, model.ErrInvalidKeyOrData)
	assert.Empty(t, plaintext)

	_, err = svc.Decode(ctx, dump.ID, "")
	assert.ErrorIs(t, err, model.ErrMissingPassphrase)
	assert.ErrorIs(t, err, model.ErrValidation)
}

func TestDump_SubmitFile(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name     string
		mimeType string
		wantKind model.DumpKind
	}{
		{name: "image", mimeType: "image/png", wantKind: model.DumpKindImage},
		{name: "pdf", mimeType: "application/pdf", wantKind: model.DumpKindPDF},
		{name: "other", mimeType: "application/zip", wantKind: model.DumpKindFile},
		{name: "no mime", mimeType: "", wantKind: model.DumpKindFile},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, _, blobs := newTestDumpService(t)

			dump, err := svc.Submit(ctx, model.SubmitParams{
				Kind:     model.DumpKindFile,
				File:     []byte("payload"),
				FileName: "upload.bin",
				MimeType: tt.mimeType,
			})
			require.NoError(t, err)

			assert.Equal(t, tt.wantKind, dump.Kind)
			assert.Equal(t, "upload.bin", dump.FileName)
			assert.Equal(t, tt.mimeType, dump.MimeType)
			assert.True(t, blob.IsReference(dump.Content))
			assert.Len(t, blobs.Names(), 1)

			rc, got, err := svc.Content(ctx, dump.ID)
			require.NoError(t, err)
			defer rc.Close()
			data, err := io.ReadAll(rc)
			require.NoError(t, err)
			assert.Equal(t, []byte("payload"), data)
			assert.Equal(t, dump.ID, got.ID)
		})
	}
}

func TestDump_SubmitFile_InlinePolicy(t *testing.T) {
	ctx := context.Background()
	blobs := testutil.NewBlobStore()
	svc := NewDump(memory.NewDumpRepository(), blob.NewLocator(blobs, blob.PolicyInline), nil, testutil.MakeNoopLogger())

	dump, err := svc.Submit(ctx, model.SubmitParams{
		Kind:     model.DumpKindImage,
		File:     []byte{0x89, 'P', 'N', 'G'},
		FileName: "a.png",
		MimeType: "image/png",
	})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(dump.Content, "data:image/png;base64,"))
	assert.Empty(t, blobs.Names())

	rc, _, err := svc.Content(ctx, dump.ID)
	require.NoError(t, err)
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x89, 'P', 'N', 'G'}, data)
}

func TestDump_Submit_Validation(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name    string
		params  model.SubmitParams
		wantErr error
	}{
		{
			name:    "text without content",
			params:  model.SubmitParams{Kind: model.DumpKindText},
			wantErr: model.ErrMissingContent,
		},
		{
			name:    "hashed text without content",
			params:  model.SubmitParams{Kind: model.DumpKindHashedText, Passphrase: "pw"},
			wantErr: model.ErrMissingContent,
		},
		{
			name:    "hashed text without passphrase",
			params:  model.SubmitParams{Kind: model.DumpKindHashedText, Content: "secret"},
			wantErr: model.ErrMissingPassphrase,
		},
		{
			name:    "file without bytes",
			params:  model.SubmitParams{Kind: model.DumpKindFile, FileName: "a.zip"},
			wantErr: model.ErrMissingFile,
		},
		{
			name:    "image without bytes",
			params:  model.SubmitParams{Kind: model.DumpKindImage, Content: "ignored"},
			wantErr: model.ErrMissingFile,
		},
		{
			name:    "unknown kind",
			params:  model.SubmitParams{Kind: "video", Content: "x"},
			wantErr: model.ErrUnknownKind,
		},
		{
			name:    "empty kind",
			params:  model.SubmitParams{Content: "x"},
			wantErr: model.ErrUnknownKind,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, _, blobs := newTestDumpService(t)

			_, err := svc.Submit(ctx, tt.params)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.ErrorIs(t, err, model.ErrValidation)
			assert.Empty(t, blobs.Names())

			list, err := svc.ListActive(ctx)
			require.NoError(t, err)
			assert.Empty(t, list)
		})
	}
}

func TestDump_SubmitFile_ReleasesBlobWhenCreateFails(t *testing.T) {
	ctx := context.Background()
	store := &MockDumpStore{}
	blobs := testutil.NewBlobStore()
	svc := NewDump(store, blob.NewLocator(blobs, blob.PolicyExternal), nil, testutil.MakeNoopLogger())

	store.On("Create", ctx, mock.AnythingOfType("model.Dump")).Return(model.Dump{}, errors.New("disk full"))

	_, err := svc.Submit(ctx, model.SubmitParams{
		Kind:     model.DumpKindFile,
		File:     []byte("x"),
		FileName: "x.bin",
	})
	assert.ErrorIs(t, err, model.ErrStorageUnavailable)
	assert.Empty(t, blobs.Names())
	store.AssertExpectations(t)
}

func TestDump_SubmitFile_BlobStoreDown(t *testing.T) {
	ctx := context.Background()
	store := &MockDumpStore{}
	blobs := testutil.NewBlobStore()
	blobs.PutErr = errors.New("connection refused")
	svc := NewDump(store, blob.NewLocator(blobs, blob.PolicyExternal), nil, testutil.MakeNoopLogger())

	_, err := svc.Submit(ctx, model.SubmitParams{
		Kind:     model.DumpKindFile,
		File:     []byte("x"),
		FileName: "x.bin",
	})
	assert.ErrorIs(t, err, model.ErrBlobStoreUnavailable)
	store.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestDump_FindActiveByID(t *testing.T) {
	ctx := context.Background()
	svc, clock, _ := newTestDumpService(t)

	text, err := svc.Submit(ctx, model.SubmitParams{Kind: model.DumpKindText, Content: "hello"})
	require.NoError(t, err)

	_, err = svc.FindActiveByID(ctx, "", text.ID)
	assert.NoError(t, err)

	_, err = svc.FindActiveByID(ctx, model.DumpKindHashedText, text.ID)
	assert.ErrorIs(t, err, model.ErrKindMismatch)

	_, err = svc.FindActiveByID(ctx, model.DumpKindText, uuid.New())
	assert.ErrorIs(t, err, model.ErrNotFound)

	clock.Advance(model.TTL - time.Microsecond)
	_, err = svc.FindActiveByID(ctx, model.DumpKindText, text.ID)
	assert.NoError(t, err, "dump must be active until the last microsecond of its TTL")

	clock.Advance(time.Microsecond)
	_, err = svc.FindActiveByID(ctx, model.DumpKindText, text.ID)
	assert.ErrorIs(t, err, model.ErrExpired)

	_, err = svc.FindActiveByID(ctx, model.DumpKindHashedText, text.ID)
	assert.ErrorIs(t, err, model.ErrKindMismatch, "kind is checked before expiry")
}

func TestDump_DecodeExpiredAndMismatch(t *testing.T) {
	ctx := context.Background()
	svc, clock, _ := newTestDumpService(t)

	text, err := svc.Submit(ctx, model.SubmitParams{Kind: model.DumpKindText, Content: "plain"})
	require.NoError(t, err)
	hashed, err := svc.Submit(ctx, model.SubmitParams{
		Kind:       model.DumpKindHashedText,
		Content:    "secret",
		Passphrase: "pw123",
	})
	require.NoError(t, err)

	_, err = svc.Decode(ctx, text.ID, "pw123")
	assert.ErrorIs(t, err, model.ErrKindMismatch)

	_, err = svc.Decode(ctx, uuid.New(), "pw123")
	assert.ErrorIs(t, err, model.ErrNotFound)

	clock.Advance(model.TTL)
	_, err = svc.Decode(ctx, hashed.ID, "pw123")
	assert.ErrorIs(t, err, model.ErrExpired)
}

func TestDump_ListActive(t *testing.T) {
	ctx := context.Background()
	svc, clock, _ := newTestDumpService(t)

	first, err := svc.Submit(ctx, model.SubmitParams{Kind: model.DumpKindText, Content: "first"})
	require.NoError(t, err)
	clock.Advance(6 * time.Minute)
	second, err := svc.Submit(ctx, model.SubmitParams{Kind: model.DumpKindText, Content: "second"})
	require.NoError(t, err)

	list, err := svc.ListActive(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, second.ID, list[0].ID)
	assert.Equal(t, first.ID, list[1].ID)

	clock.Advance(4 * time.Minute)
	list, err = svc.ListActive(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, second.ID, list[0].ID)

	clock.Advance(6 * time.Minute)
	list, err = svc.ListActive(ctx)
	require.NoError(t, err)
	assert.NotNil(t, list)
	assert.Empty(t, list)
}

func TestDump_ListActive_StorageError(t *testing.T) {
	ctx := context.Background()
	store := &MockDumpStore{}
	svc := NewDump(store, blob.NewLocator(nil, blob.PolicyInline), nil, testutil.MakeNoopLogger())

	store.On("ListActive", ctx, mock.AnythingOfType("time.Time")).Return([]model.Dump(nil), errors.New("timeout"))

	list, err := svc.ListActive(ctx)
	assert.ErrorIs(t, err, model.ErrStorageUnavailable)
	assert.Nil(t, list)
}

func TestDump_FindActiveByID_StorageError(t *testing.T) {
	ctx := context.Background()
	store := &MockDumpStore{}
	svc := NewDump(store, blob.NewLocator(nil, blob.PolicyInline), nil, testutil.MakeNoopLogger())
	id := uuid.New()

	store.On("GetByID", ctx, id).Return(model.Dump{}, errors.New("timeout"))

	_, err := svc.FindActiveByID(ctx, "", id)
	assert.ErrorIs(t, err, model.ErrStorageUnavailable)
	assert.NotErrorIs(t, err, model.ErrNotFound)
}

func TestDump_Content(t *testing.T) {
	ctx := context.Background()
	svc, clock, blobs := newTestDumpService(t)

	text, err := svc.Submit(ctx, model.SubmitParams{Kind: model.DumpKindText, Content: "hello"})
	require.NoError(t, err)
	_, _, err = svc.Content(ctx, text.ID)
	assert.ErrorIs(t, err, model.ErrKindMismatch)

	file, err := svc.Submit(ctx, model.SubmitParams{Kind: model.DumpKindFile, File: []byte("x"), FileName: "x.bin"})
	require.NoError(t, err)

	for _, name := range blobs.Names() {
		require.NoError(t, blobs.Delete(ctx, name))
	}
	_, _, err = svc.Content(ctx, file.ID)
	assert.ErrorIs(t, err, model.ErrBlobStoreUnavailable)

	clock.Advance(model.TTL)
	_, _, err = svc.Content(ctx, file.ID)
	assert.ErrorIs(t, err, model.ErrExpired)
}

func TestDump_OpportunisticSweep(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	store := memory.NewDumpRepository()
	blobs := testutil.NewBlobStore()
	locator := blob.NewLocator(blobs, blob.PolicyExternal)

	reaper := NewReaper(store, locator, testutil.MakeNoopLogger())
	reaper.timeNow = clock.Now
	svc := NewDump(store, locator, reaper, testutil.MakeNoopLogger())
	svc.timeNow = clock.Now

	old, err := svc.Submit(ctx, model.SubmitParams{Kind: model.DumpKindFile, File: []byte("x"), FileName: "x.bin"})
	require.NoError(t, err)
	clock.Advance(model.TTL)

	_, err = svc.ListActive(ctx)
	require.NoError(t, err)

	_, err = store.GetByID(ctx, old.ID)
	assert.ErrorIs(t, err, model.ErrNotFound)
	assert.Empty(t, blobs.Names())

	_, err = svc.FindActiveByID(ctx, "", old.ID)
	assert.ErrorIs(t, err, model.ErrNotFound, "once reaped an expired dump is indistinguishable from a missing one")
}

func TestDump_ExpiredBeforeReaped(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	store := memory.NewDumpRepository()
	locator := blob.NewLocator(testutil.NewBlobStore(), blob.PolicyExternal)

	reaper := NewReaper(store, locator, testutil.MakeNoopLogger())
	reaper.timeNow = clock.Now
	svc := NewDump(store, locator, reaper, testutil.MakeNoopLogger())
	svc.timeNow = clock.Now

	submit := func() model.Dump {
		t.Helper()
		dump, err := svc.Submit(ctx, model.SubmitParams{
			Kind:       model.DumpKindHashedText,
			Content:    "secret",
			Passphrase: "pw123",
		})
		require.NoError(t, err)
		return dump
	}

	found := submit()
	clock.Advance(model.TTL + time.Second)

	_, err := svc.FindActiveByID(ctx, model.DumpKindHashedText, found.ID)
	assert.ErrorIs(t, err, model.ErrExpired)

	_, err = store.GetByID(ctx, found.ID)
	assert.ErrorIs(t, err, model.ErrNotFound, "lookup still triggers the sweep")

	decoded := submit()
	clock.Advance(model.TTL + time.Second)

	plaintext, err := svc.Decode(ctx, decoded.ID, "pw123")
	assert.ErrorIs(t, err, model.ErrExpired)
	assert.Empty(t, plaintext)

	_, err = svc.Decode(ctx, decoded.ID, "pw123")
	assert.ErrorIs(t, err, model.ErrNotFound)
}
