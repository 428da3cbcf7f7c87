package service

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"github.com/samber/lo"
	"github.com/vedran77/duet/internal/domain"
	"github.com/vedran77/duet/internal/repository"
)

// Upload is a raw file as received from a client.
type Upload struct {
	FileName string
	Content  io.Reader
}

// AttachmentService is the Attachment Resolver: it checks an upload against
// the configured limits and writes it to the blob store exactly once.
type AttachmentService struct {
	blobs        repository.BlobStore
	maxSizeBytes int64
	allowedTypes []string
}

func NewAttachmentService(blobs repository.BlobStore, maxSizeBytes int64, allowedMediaTypes []string) *AttachmentService {
	return &AttachmentService{
		blobs:        blobs,
		maxSizeBytes: maxSizeBytes,
		allowedTypes: allowedMediaTypes,
	}
}

func (s *AttachmentService) Store(ctx context.Context, upload Upload) (*domain.Attachment, error) {
	data, err := io.ReadAll(io.LimitReader(upload.Content, s.maxSizeBytes+1))
	if err != nil {
		return nil, fmt.Errorf("%w: reading upload: %v", ErrUploadRejected, err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: file is empty", ErrUploadRejected)
	}
	if int64(len(data)) > s.maxSizeBytes {
		return nil, fmt.Errorf("%w: file exceeds %d bytes", ErrUploadRejected, s.maxSizeBytes)
	}

	mt := mimetype.Detect(data)
	if !lo.ContainsBy(s.allowedTypes, func(allowed string) bool { return mt.Is(allowed) }) {
		return nil, fmt.Errorf("%w: media type %s is not allowed", ErrUploadRejected, mt.String())
	}
	mediaType, _, _ := strings.Cut(mt.String(), ";")

	key := uuid.NewString() + mt.Extension()
	url, err := s.blobs.Put(ctx, key, data, mediaType)
	if err != nil {
		return nil, fmt.Errorf("%w: storing attachment: %v", ErrStorageUnavailable, err)
	}

	return &domain.Attachment{
		FileName:  displayName(upload.FileName, mt.Extension()),
		URL:       url,
		MediaType: mediaType,
	}, nil
}

func displayName(name, ext string) string {
	name = filepath.Base(strings.ReplaceAll(name, `\`, "/"))
	if name == "." || name == "/" || name == "" {
		return "file" + ext
	}
	return name
}
