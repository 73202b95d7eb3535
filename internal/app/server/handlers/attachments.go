package handlers

import (
	"encoding/json"
	"net/http"

	"livechat/internal/core/services"
	"livechat/pkg/logging"
)

type AttachmentsHandler struct {
	attachments *services.AttachmentService
	maxSize     int64
}

func NewAttachmentsHandler(attachments *services.AttachmentService, maxSize int64) *AttachmentsHandler {
	return &AttachmentsHandler{attachments: attachments, maxSize: maxSize}
}

// Upload stores the blob in object storage and returns the reference the
// client embeds in its next send frame.
func (h *AttachmentsHandler) Upload(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())
	r.Body = http.MaxBytesReader(w, r.Body, h.maxSize)
	if err := r.ParseMultipartForm(h.maxSize); err != nil {
		http.Error(w, "invalid multipart body", http.StatusBadRequest)
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		http.Error(w, "missing file field", http.StatusBadRequest)
		return
	}
	defer file.Close()

	ref, err := h.attachments.Upload(
		r.Context(),
		header.Filename,
		header.Header.Get("Content-Type"),
		header.Size,
		file,
	)
	if err != nil {
		log.ErrorContext(r.Context(), "attachments handler - upload failed", "filename", header.Filename, logging.Err(err))
		http.Error(w, "upload failed", http.StatusBadGateway)
		return
	}
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(ref)
}
