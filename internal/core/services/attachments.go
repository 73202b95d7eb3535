package services

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path"

	"livechat/internal/core/contracts"
	"livechat/internal/core/domain"

	"github.com/google/uuid"
)

// AttachmentService uploads a blob to external object storage and returns
// the reference carried inside the message. The blob itself never touches
// the realtime path.
type AttachmentService struct {
	store   contracts.BlobStore
	maxSize int64
	log     *slog.Logger
}

func NewAttachmentService(log *slog.Logger, store contracts.BlobStore, maxSize int64) *AttachmentService {
	return &AttachmentService{log: log, store: store, maxSize: maxSize}
}

func (s *AttachmentService) Upload(
	ctx context.Context,
	filename, contentType string,
	size int64,
	body io.Reader,
) (*domain.AttachmentRef, error) {
	if size <= 0 || (s.maxSize > 0 && size > s.maxSize) {
		return nil, fmt.Errorf("attachment size %d out of bounds", size)
	}
	key := uuid.NewString() + path.Ext(filename)
	url, err := s.store.Put(ctx, key, contentType, size, io.LimitReader(body, size))
	if err != nil {
		s.log.ErrorContext(ctx, "attachments - upload - put failed", "key", key, "err", err)
		return nil, err
	}
	s.log.InfoContext(ctx, "attachments - upload - stored", "key", key, "size", size)
	return &domain.AttachmentRef{
		URL:         url,
		Size:        size,
		ContentType: contentType,
	}, nil
}
