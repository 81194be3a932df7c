// Package notice holds the failure surfaces of a deal chat: transient toasts,
// a dismissable connection banner and a non-expiring sticky notice.
package notice

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"medius/internal/bus"
)

type Level string

const (
	LevelInfo    Level = "info"
	LevelSuccess Level = "success"
	LevelError   Level = "error"
	LevelLoading Level = "loading"
)

type Kind string

const (
	KindToast         Kind = "toast"
	KindBanner        Kind = "banner"
	KindBannerCleared Kind = "banner_cleared"
	KindSticky        Kind = "sticky"
	KindStickyCleared Kind = "sticky_cleared"
)

// Notice is published on the deal's bus topic.
type Notice struct {
	ID     string    `json:"id"`
	DealID string    `json:"deal_id"`
	Kind   Kind      `json:"kind"`
	Level  Level     `json:"level,omitempty"`
	Text   string    `json:"text,omitempty"`
	At     time.Time `json:"at"`
}

func (Notice) EventType() string { return "notice" }

// State is what a renderer must show when it attaches late.
type State struct {
	Banner string `json:"banner,omitempty"`
	Sticky string `json:"sticky,omitempty"`
}

type Center struct {
	dealID string
	bus    bus.MessageBus
	logger *zap.Logger
	now    func() time.Time

	mu     sync.Mutex
	banner string
	sticky string
}

// NewCenter creates the notice surfaces of one deal. b may be nil.
func NewCenter(dealID string, b bus.MessageBus, logger *zap.Logger) *Center {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Center{
		dealID: dealID,
		bus:    b,
		logger: logger.Named("notice"),
		now:    time.Now,
	}
}

// Toast shows a transient notice and returns its id.
func (c *Center) Toast(level Level, text string) string {
	id := uuid.NewString()
	c.Update(id, level, text)
	return id
}

// Update replaces the toast with the given id, e.g. a loading toast that
// turned into a success or an error.
func (c *Center) Update(id string, level Level, text string) {
	if level == LevelError {
		c.logger.Warn(text, zap.String("deal_id", c.dealID))
	}
	c.publish(Notice{ID: id, Kind: KindToast, Level: level, Text: text})
}

// Banner shows or replaces the persistent banner.
func (c *Center) Banner(text string) {
	c.mu.Lock()
	if c.banner == text {
		c.mu.Unlock()
		return
	}
	c.banner = text
	c.mu.Unlock()
	c.publish(Notice{Kind: KindBanner, Level: LevelError, Text: text})
}

// ClearBanner removes the banner because its cause went away.
func (c *Center) ClearBanner() {
	c.clearBanner()
}

// DismissBanner removes the banner on user request. It comes back with the
// next failure.
func (c *Center) DismissBanner() {
	c.clearBanner()
}

func (c *Center) clearBanner() {
	c.mu.Lock()
	if c.banner == "" {
		c.mu.Unlock()
		return
	}
	c.banner = ""
	c.mu.Unlock()
	c.publish(Notice{Kind: KindBannerCleared})
}

// Sticky shows a notice that stays until ClearSticky.
func (c *Center) Sticky(text string) {
	c.mu.Lock()
	if c.sticky == text {
		c.mu.Unlock()
		return
	}
	c.sticky = text
	c.mu.Unlock()
	c.logger.Error(text, zap.String("deal_id", c.dealID))
	c.publish(Notice{Kind: KindSticky, Level: LevelError, Text: text})
}

func (c *Center) ClearSticky() {
	c.mu.Lock()
	if c.sticky == "" {
		c.mu.Unlock()
		return
	}
	c.sticky = ""
	c.mu.Unlock()
	c.publish(Notice{Kind: KindStickyCleared})
}

func (c *Center) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return State{Banner: c.banner, Sticky: c.sticky}
}

func (c *Center) publish(n Notice) {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	n.DealID = c.dealID
	n.At = c.now()
	if c.bus != nil {
		c.bus.Publish(bus.DealTopic(c.dealID), n)
	}
}
