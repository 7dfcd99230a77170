package http

import (
	"io"
	"net/http"
	"path/filepath"

	"github.com/gorilla/mux"

	"nauvus-backend/internal/logger"
	"nauvus-backend/internal/storage"
)

// DocumentHandler serves invoice PDFs and delivery documents from mock storage
// at the URLs mock storage presigns.
type DocumentHandler struct {
	files storage.StorageInterface
}

func NewDocumentHandler(files storage.StorageInterface) *DocumentHandler {
	return &DocumentHandler{files: files}
}

// HandleMockDownload handles HTTP GET requests to download documents
func (h *DocumentHandler) HandleMockDownload(w http.ResponseWriter, r *http.Request) {
	// Get storage key from query parameter
	key := r.URL.Query().Get("key")
	if key == "" {
		writeErrorMessage(w, http.StatusBadRequest, "missing key parameter")
		return
	}

	file, err := h.files.ReadFile(r.Context(), key)
	if err != nil {
		writeErrorMessage(w, http.StatusNotFound, "file not found")
		return
	}
	defer file.Close()

	contentType := "application/octet-stream"
	switch filepath.Ext(key) {
	case ".pdf":
		contentType = "application/pdf"
	case ".jpg", ".jpeg":
		contentType = "image/jpeg"
	case ".png":
		contentType = "image/png"
	}

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Cache-Control", "private, max-age=3600")
	if _, err := io.Copy(w, file); err != nil {
		logger.Warn("Failed to stream document", "key", key, "error", err)
	}
}

// RegisterMockStorageRoutes registers the mock storage download endpoint. The
// link itself is the credential, as with a presigned S3 URL.
func RegisterMockStorageRoutes(router *mux.Router, files storage.StorageInterface) {
	handler := NewDocumentHandler(files)
	router.HandleFunc("/api/v1/download/{token}", handler.HandleMockDownload).Methods(http.MethodGet).Name("DownloadDocument")
}
