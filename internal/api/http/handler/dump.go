package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/dtroode/ttldump/internal/logger"
	"github.com/dtroode/ttldump/internal/model"
)

// multipartMemory is how much of a multipart form is kept in memory before
// spilling to temporary files.
const multipartMemory = 8 << 20

// maxDecodeBodyBytes bounds the JSON body of a decode request.
const maxDecodeBodyBytes = 64 << 10

// DumpService defines the dump operations exposed over HTTP.
type DumpService interface {
	Submit(ctx context.Context, params model.SubmitParams) (model.Dump, error)
	ListActive(ctx context.Context) ([]model.Dump, error)
	FindActiveByID(ctx context.Context, kind model.DumpKind, id uuid.UUID) (model.Dump, error)
	Decode(ctx context.Context, id uuid.UUID, passphrase string) (string, error)
	Content(ctx context.Context, id uuid.UUID) (io.ReadCloser, model.Dump, error)
}

// Dump handles HTTP endpoints for dumps.
type Dump struct {
	dumpService    DumpService
	maxUploadBytes int64
	logger         *logger.Logger
}

// NewDump creates a new Dump handler.
func NewDump(dumpService DumpService, maxUploadBytes int64, logger *logger.Logger) *Dump {
	return &Dump{
		dumpService:    dumpService,
		maxUploadBytes: maxUploadBytes,
		logger:         logger,
	}
}

// List returns every active dump, newest first.
func (h *Dump) List(w http.ResponseWriter, r *http.Request) {
	dumps, err := h.dumpService.ListActive(r.Context())
	if err != nil {
		h.fail(w, r, err, msgKindMismatch)
		return
	}

	writeJSON(w, http.StatusOK, itemsResponse{Items: toItems(dumps)})
}

// Create accepts a multipart submission with fields type, content, hashKey and file.
func (h *Dump) Create(w http.ResponseWriter, r *http.Request) {
	if h.maxUploadBytes > 0 {
		if r.ContentLength > h.maxUploadBytes {
			writeError(w, http.StatusRequestEntityTooLarge, "File too large")
			return
		}
		r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)
	}

	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "File too large")
			return
		}
		h.logger.Debug("Dump handler: malformed form", "error", err)
		writeError(w, http.StatusBadRequest, msgInvalidRequest)
		return
	}
	defer func() {
		_ = r.MultipartForm.RemoveAll()
	}()

	params := model.SubmitParams{
		Kind:       model.DumpKind(r.FormValue("type")),
		Content:    r.FormValue("content"),
		Passphrase: r.FormValue("hashKey"),
	}

	file, header, err := r.FormFile("file")
	switch {
	case errors.Is(err, http.ErrMissingFile):
	case err != nil:
		writeError(w, http.StatusBadRequest, msgInvalidRequest)
		return
	default:
		defer file.Close()

		data, err := io.ReadAll(file)
		if err != nil {
			h.logger.Error("Dump handler: failed to read upload", "error", err)
			writeError(w, http.StatusBadRequest, msgInvalidRequest)
			return
		}
		params.File = data
		params.FileName = header.Filename
		params.MimeType = header.Header.Get("Content-Type")
	}

	dump, err := h.dumpService.Submit(r.Context(), params)
	if err != nil {
		h.fail(w, r, err, msgKindMismatch)
		return
	}

	h.logger.Info("Dump handler: dump created", "dump_id", dump.ID, "kind", dump.Kind)

	writeJSON(w, http.StatusOK, itemResponse{Item: toItem(dump)})
}

// Get returns one active dump of any kind.
func (h *Dump) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(chi.URLParam(r, "id"))
	if !ok {
		writeError(w, http.StatusNotFound, "Item not found")
		return
	}

	dump, err := h.dumpService.FindActiveByID(r.Context(), "", id)
	if err != nil {
		h.fail(w, r, err, msgKindMismatch)
		return
	}

	writeJSON(w, http.StatusOK, itemResponse{Item: toItem(dump)})
}

// Content streams the uploaded bytes of an active file dump.
func (h *Dump) Content(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(chi.URLParam(r, "id"))
	if !ok {
		writeError(w, http.StatusNotFound, "Item not found")
		return
	}

	rc, dump, err := h.dumpService.Content(r.Context(), id)
	if err != nil {
		h.fail(w, r, err, msgKindMismatch)
		return
	}
	defer rc.Close()

	contentType := dump.MimeType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.Header().Set("Content-Disposition", contentDisposition(dump))
	w.WriteHeader(http.StatusOK)

	if _, err := io.Copy(w, rc); err != nil {
		h.logger.Warn("Dump handler: content stream interrupted", "dump_id", id, "error", err)
	}
}

// Decode decrypts a hashed text dump with the supplied hash key.
func (h *Dump) Decode(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxDecodeBodyBytes)

	var req decodeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "Request too large")
			return
		}
		writeError(w, http.StatusBadRequest, msgInvalidRequest)
		return
	}

	if req.HashKey == "" {
		h.fail(w, r, model.ErrMissingPassphrase, msgNotHashedText)
		return
	}
	if req.ItemID == "" {
		h.fail(w, r, model.ErrMissingID, msgNotHashedText)
		return
	}

	id, ok := parseID(req.ItemID)
	if !ok {
		h.fail(w, r, model.ErrNotFound, msgNotHashedText)
		return
	}

	plaintext, err := h.dumpService.Decode(r.Context(), id, req.HashKey)
	if err != nil {
		h.fail(w, r, err, msgNotHashedText)
		return
	}

	writeJSON(w, http.StatusOK, decodeResponse{
		DecodedText: plaintext,
		Message:     "Text decoded successfully!",
	})
}

// contentDisposition lets browsers render images and PDFs in place. Anything else,
// SVG included, is downloaded so uploaded markup never runs on the API origin.
func contentDisposition(dump model.Dump) string {
	disposition := "attachment"
	switch {
	case dump.Kind == model.DumpKindPDF:
		disposition = "inline"
	case dump.Kind == model.DumpKindImage && !isSVG(dump.MimeType):
		disposition = "inline"
	}

	if dump.FileName == "" {
		return disposition
	}
	return mime.FormatMediaType(disposition, map[string]string{"filename": dump.FileName})
}

func isSVG(mimeType string) bool {
	mediaType, _, err := mime.ParseMediaType(mimeType)
	if err != nil {
		return strings.Contains(strings.ToLower(mimeType), "svg")
	}
	return mediaType == "image/svg+xml"
}

func (h *Dump) fail(w http.ResponseWriter, r *http.Request, err error, mismatchMsg string) {
	status, msg := handleError(err, mismatchMsg)
	if status == http.StatusInternalServerError {
		h.logger.Error("Dump handler: request failed", "path", r.URL.Path, "error", err)
	}
	writeError(w, status, msg)
}

func parseID(raw string) (uuid.UUID, bool) {
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, false
	}
	return id, true
}
