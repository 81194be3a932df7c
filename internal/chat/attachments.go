package chat

import (
	"context"
	"fmt"
	"io"

	"go.uber.org/zap"

	"medius/internal/domain"
	"medius/internal/notice"
	"medius/internal/realtime"
)

// Upload sends a file to the deal. Only one upload runs at a time and the
// thread is left alone: the file message arrives over the channel like any
// other message.
func (s *Session) Upload(ctx context.Context, name string, r io.Reader) error {
	if s.Deal() == nil || s.channel.State() != realtime.StateConnected {
		s.notices.Toast(notice.LevelError, TextCannotUpload)
		return domain.ErrNotConnected
	}
	if !s.uploading.CompareAndSwap(false, true) {
		s.notices.Toast(notice.LevelError, TextCannotUpload)
		return domain.ErrUploadInProgress
	}
	defer s.uploading.Store(false)

	id := s.notices.Toast(notice.LevelLoading, fmt.Sprintf("Uploading %s...", name))
	if err := s.api.Upload(ctx, s.dealID, name, r); err != nil {
		s.logger.Warn("upload", zap.String("file", name), zap.Error(err))
		s.notices.Update(id, notice.LevelError, "Upload failed: "+errText(err, "Failed"))
		return fmt.Errorf("upload %s: %w", name, err)
	}
	s.notices.Update(id, notice.LevelSuccess, fmt.Sprintf("%s uploaded! Processing...", name))
	return nil
}

// Uploading reports whether an upload is in flight.
func (s *Session) Uploading() bool {
	return s.uploading.Load()
}

// OpenAttachment exchanges a file key for a short-lived link and hands it to
// the opener. Concurrent calls for the same key share one request and open
// the link once.
func (s *Session) OpenAttachment(ctx context.Context, key string) (string, error) {
	if key == "" {
		return "", domain.ErrInvalidInput
	}
	v, err, shared := s.links.Do(key, func() (any, error) {
		id := s.notices.Toast(notice.LevelLoading, TextLinkGenerating)
		link, err := s.api.SignedURL(ctx, key)
		if err != nil {
			s.notices.Update(id, notice.LevelError, "Error: "+errText(err, "Could not open file."))
			return "", err
		}
		s.notices.Update(id, notice.LevelSuccess, TextLinkGenerated)
		if s.opener != nil {
			if err := s.opener.Open(link); err != nil {
				s.logger.Warn("open link", zap.Error(err))
			}
		}
		return link, nil
	})
	if shared {
		s.logger.Debug("joined pending link request", zap.String("key", key))
	}
	if err != nil {
		return "", fmt.Errorf("resolve link: %w", err)
	}
	return v.(string), nil
}
