package chat

import (
	"context"
	"strings"
	"sync"

	"go.uber.org/zap"

	"medius/internal/domain"
)

// Composer is the message input of a deal. Its text survives restarts when a
// draft store is configured.
type Composer struct {
	dealID string
	drafts domain.DraftRepository
	logger *zap.Logger

	mu      sync.Mutex
	text    string
	sending bool
}

func NewComposer(dealID string, drafts domain.DraftRepository, logger *zap.Logger) *Composer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Composer{dealID: dealID, drafts: drafts, logger: logger}
}

// Restore loads the saved draft.
func (c *Composer) Restore(ctx context.Context) error {
	if c.drafts == nil {
		return nil
	}
	text, err := c.drafts.GetDraft(ctx, c.dealID)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.text = text
	c.mu.Unlock()
	return nil
}

func (c *Composer) Text() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.text
}

func (c *Composer) Sending() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sending
}

// SetText replaces the text and saves it as the draft.
func (c *Composer) SetText(ctx context.Context, text string) error {
	c.mu.Lock()
	c.text = text
	c.mu.Unlock()
	return c.persist(ctx, text)
}

// begin validates the text and marks a send in flight. The text is cleared
// and returned unmodified along with its trimmed form.
func (c *Composer) begin(ctx context.Context) (original, trimmed string, err error) {
	c.mu.Lock()
	original = c.text
	trimmed = strings.TrimSpace(original)
	switch {
	case trimmed == "":
		c.mu.Unlock()
		return "", "", domain.ErrEmptyMessage
	case c.sending:
		c.mu.Unlock()
		return "", "", domain.ErrSendInProgress
	}
	c.sending = true
	c.text = ""
	c.mu.Unlock()

	if err := c.persist(ctx, ""); err != nil {
		c.logger.Warn("clear draft", zap.String("deal_id", c.dealID), zap.Error(err))
	}
	return original, trimmed, nil
}

// restore puts back text after a failed send unless the user already typed
// something new.
func (c *Composer) restore(ctx context.Context, original string) {
	c.mu.Lock()
	if c.text != "" {
		c.mu.Unlock()
		return
	}
	c.text = original
	c.mu.Unlock()

	if err := c.persist(ctx, original); err != nil {
		c.logger.Warn("restore draft", zap.String("deal_id", c.dealID), zap.Error(err))
	}
}

func (c *Composer) end() {
	c.mu.Lock()
	c.sending = false
	c.mu.Unlock()
}

func (c *Composer) persist(ctx context.Context, text string) error {
	if c.drafts == nil {
		return nil
	}
	if text == "" {
		return c.drafts.DeleteDraft(ctx, c.dealID)
	}
	return c.drafts.SaveDraft(ctx, c.dealID, text)
}
