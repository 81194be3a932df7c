// Package chat runs the chat of one deal: initial load, the realtime channel,
// optimistic sends, attachments and deal actions.
package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"medius/internal/auth"
	"medius/internal/bus"
	"medius/internal/domain"
	"medius/internal/notice"
	"medius/internal/realtime"
)

// API is the part of the REST client a session uses.
type API interface {
	GetDeal(ctx context.Context, dealID string) (*domain.Deal, error)
	ChatHistory(ctx context.Context, dealID string) ([]domain.ChatMessage, error)
	ReleaseFunds(ctx context.Context, dealID string) (*domain.Deal, error)
	CancelRequest(ctx context.Context, dealID string) (*domain.Deal, error)
	Upload(ctx context.Context, dealID, filename string, r io.Reader) error
	SignedURL(ctx context.Context, key string) (string, error)
}

// Channel is the realtime connection of a deal. *realtime.Manager
// implements it.
type Channel interface {
	Start(ctx context.Context)
	Reconnect(ctx context.Context)
	Close()
	State() realtime.State
	Send(ctx context.Context, frame any) error
}

// ChannelFactory builds the channel that reports to h.
type ChannelFactory func(h realtime.EventHandler) (Channel, error)

// ManagerChannel returns a factory of realtime managers.
func ManagerChannel(cfg realtime.Config, session auth.Session, opts ...realtime.Option) ChannelFactory {
	return func(h realtime.EventHandler) (Channel, error) {
		return realtime.NewManager(cfg, session, h, opts...)
	}
}

// Opener shows a resolved attachment link, e.g. in a browser.
type Opener interface {
	Open(url string) error
}

type OpenerFunc func(url string) error

func (f OpenerFunc) Open(url string) error { return f(url) }

const (
	ActionRelease = "release"
	ActionCancel  = "cancel"
)

// Toast texts shared with renderers and tests.
const (
	TextNotConnected   = "Chat not connected."
	TextCannotUpload   = "Cannot upload file now."
	TextChatConnected  = "Chat connected"
	TextRefreshNeeded  = "Chat disconnected. Refresh."
	TextFundsReleased  = "Funds Released!"
	TextCancelled      = "Canceled"
	TextCancelRequest  = "Requested"
	TextLinkGenerating = "Generating secure link..."
	TextLinkGenerated  = "Link generated!"
)

const defaultCacheLimit = 500

type Deps struct {
	API     API
	Auth    auth.Session
	Channel ChannelFactory
	Drafts  domain.DraftRepository
	Cache   domain.CacheRepository
	Bus     bus.MessageBus
	Opener  Opener
	Logger  *zap.Logger
	// CacheLimit bounds cached messages per deal.
	CacheLimit int
}

// Snapshot is everything a renderer needs to draw the deal chat.
type Snapshot struct {
	DealID       string               `json:"deal_id"`
	Deal         *domain.Deal         `json:"deal,omitempty"`
	Messages     []domain.ChatMessage `json:"messages"`
	Connection   realtime.Status      `json:"connection"`
	Notices      notice.State         `json:"notices"`
	Draft        string               `json:"draft"`
	Sending      bool                 `json:"sending"`
	Uploading    bool                 `json:"uploading"`
	Action       string               `json:"action,omitempty"`
	HistoryError string               `json:"history_error,omitempty"`
	Stale        bool                 `json:"stale,omitempty"`
}

// Session is the chat of one deal for the signed-in user.
type Session struct {
	dealID     string
	api        API
	auth       auth.Session
	channel    Channel
	cache      domain.CacheRepository
	bus        bus.MessageBus
	opener     Opener
	logger     *zap.Logger
	cacheLimit int
	now        func() time.Time

	thread   *Thread
	composer *Composer
	notices  *notice.Center
	links    singleflight.Group

	uploading atomic.Bool

	mu         sync.Mutex
	user       *domain.User
	deal       *domain.Deal
	historyErr error
	conn       realtime.Status
	action     string
}

func NewSession(dealID string, deps Deps) (*Session, error) {
	if dealID == "" {
		return nil, domain.ErrMissingDealID
	}
	if deps.API == nil || deps.Auth == nil || deps.Channel == nil {
		return nil, fmt.Errorf("chat session: api, auth and channel are required: %w", domain.ErrInvalidInput)
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("chat").With(zap.String("deal_id", dealID))

	s := &Session{
		dealID:     dealID,
		api:        deps.API,
		auth:       deps.Auth,
		cache:      deps.Cache,
		bus:        deps.Bus,
		opener:     deps.Opener,
		logger:     logger,
		cacheLimit: deps.CacheLimit,
		now:        time.Now,
		thread:     NewThread(),
		composer:   NewComposer(dealID, deps.Drafts, logger),
		notices:    notice.NewCenter(dealID, deps.Bus, logger),
		conn:       realtime.Status{State: realtime.StateDisconnected},
	}
	if s.cacheLimit <= 0 {
		s.cacheLimit = defaultCacheLimit
	}

	ch, err := deps.Channel(s)
	if err != nil {
		return nil, fmt.Errorf("create channel: %w", err)
	}
	s.channel = ch
	return s, nil
}

func (s *Session) DealID() string { return s.dealID }

func (s *Session) Composer() *Composer { return s.composer }

func (s *Session) Notices() *notice.Center { return s.notices }

// Load fetches the signed-in user, the deal and its history. The deal and
// the history are fetched concurrently; a failed history leaves the deal
// usable with an empty or cached thread.
func (s *Session) Load(ctx context.Context) error {
	user, err := s.auth.CurrentUser(ctx)
	if err != nil {
		return &LoadError{DealID: s.dealID, Err: fmt.Errorf("current user: %w", err)}
	}

	var (
		deal       *domain.Deal
		history    []domain.ChatMessage
		historyErr error
	)
	var g errgroup.Group
	g.Go(func() error {
		d, err := s.api.GetDeal(ctx, s.dealID)
		if err != nil {
			return err
		}
		deal = d
		return nil
	})
	g.Go(func() error {
		msgs, err := s.api.ChatHistory(ctx, s.dealID)
		if err != nil {
			historyErr = err
			return nil
		}
		history = msgs
		return nil
	})
	loadErr := g.Wait()

	if err := s.composer.Restore(ctx); err != nil {
		s.logger.Warn("restore draft", zap.Error(err))
	}

	if loadErr != nil {
		s.logger.Error("load deal", zap.Error(loadErr))
		return &LoadError{DealID: s.dealID, Err: loadErr, Cached: s.cachedSnapshot(ctx)}
	}

	if historyErr != nil {
		s.logger.Warn("load chat history", zap.Error(historyErr))
		history = s.cachedMessages(ctx)
	}

	s.mu.Lock()
	s.user = user
	s.deal = deal
	s.historyErr = historyErr
	s.mu.Unlock()

	s.thread.Reset(history)
	s.publishDeal(*deal)
	s.publishThread()

	s.cacheDeal(ctx, deal)
	if historyErr == nil {
		s.cacheMessages(ctx, history)
	}
	return nil
}

// Start opens the realtime channel. ctx bounds its lifetime.
func (s *Session) Start(ctx context.Context) {
	s.channel.Start(ctx)
}

// Reconnect is the manual refresh after the channel gave up.
func (s *Session) Reconnect(ctx context.Context) {
	s.notices.ClearSticky()
	s.channel.Reconnect(ctx)
}

// Close closes the channel and cancels any pending reconnect. Requests in
// flight are not aborted.
func (s *Session) Close() {
	s.channel.Close()
}

// Dismiss hides the connection banner.
func (s *Session) Dismiss() {
	s.notices.DismissBanner()
}

func (s *Session) Deal() *domain.Deal {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.deal == nil {
		return nil
	}
	d := *s.deal
	return &d
}

func (s *Session) Messages() []domain.ChatMessage {
	return s.thread.Messages()
}

func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	snap := Snapshot{
		DealID: s.dealID,
		Connection: s.conn,
		Action:     s.action,
	}
	if s.deal != nil {
		d := *s.deal
		snap.Deal = &d
	}
	if s.historyErr != nil {
		snap.HistoryError = errText(s.historyErr, "Failed to load chat history.")
	}
	s.mu.Unlock()

	snap.Messages = s.thread.Messages()
	snap.Notices = s.notices.State()
	snap.Draft = s.composer.Text()
	snap.Sending = s.composer.Sending()
	snap.Uploading = s.uploading.Load()
	return snap
}

// SetDraft updates the composer text.
func (s *Session) SetDraft(ctx context.Context, text string) error {
	return s.composer.SetText(ctx, text)
}

// SendText sets the composer text and sends it.
func (s *Session) SendText(ctx context.Context, text string) error {
	if err := s.composer.SetText(ctx, text); err != nil {
		s.logger.Warn("save draft", zap.Error(err))
	}
	return s.Send(ctx)
}

// Send sends the composer text. A placeholder is shown until the server
// echoes the message; if the send fails the placeholder is removed and the
// composer text restored.
func (s *Session) Send(ctx context.Context) error {
	s.mu.Lock()
	deal, user := s.deal, s.user
	s.mu.Unlock()
	if deal == nil || user == nil {
		return domain.ErrActionNotAllowed
	}
	if deal.IsTerminal() {
		return domain.ErrActionNotAllowed
	}
	if strings.TrimSpace(s.composer.Text()) == "" {
		return domain.ErrEmptyMessage
	}
	if s.composer.Sending() {
		return domain.ErrSendInProgress
	}
	if s.channel.State() != realtime.StateConnected {
		s.notices.Toast(notice.LevelError, TextNotConnected)
		return domain.ErrNotConnected
	}

	original, text, err := s.composer.begin(ctx)
	if err != nil {
		return err
	}
	defer s.composer.end()

	tempID := TempPrefix + uuid.NewString()
	s.thread.AddPending(domain.ChatMessage{
		ID:             tempID,
		SenderID:       user.ID,
		SenderUsername: user.DisplayName(),
		Message:        text,
		CreatedAt:      s.now().UTC().Truncate(time.Millisecond),
		Type:           domain.MessageUser,
	})
	s.notices.ClearBanner()
	s.publishThread()

	dealRef := deal.DealID
	if dealRef == "" {
		dealRef = deal.ID
	}
	frame := realtime.NewSendMessage(dealRef, deal.CounterpartyID(user.ID), text, tempID)
	if err := s.channel.Send(ctx, frame); err != nil {
		msg := errText(err, "Failed")
		s.logger.Warn("send message", zap.Error(err))
		s.thread.Remove(tempID)
		s.composer.restore(ctx, original)
		s.notices.Toast(notice.LevelError, "Message failed: "+msg)
		s.notices.Banner(msg)
		s.publishThread()
		return fmt.Errorf("send message: %w", err)
	}
	return nil
}

// HandleMessage implements realtime.EventHandler.
func (s *Session) HandleMessage(msg domain.ChatMessage) {
	switch s.thread.Apply(msg) {
	case Duplicate:
		return
	case Replaced:
		s.logger.Debug("reconciled placeholder", zap.String("message_id", msg.ID))
	}
	s.publishThread()
	s.cacheMessages(context.Background(), []domain.ChatMessage{msg})
}

// HandleDealUpdate implements realtime.EventHandler. Fields absent from the
// patch keep their current value.
func (s *Session) HandleDealUpdate(patch json.RawMessage) {
	var fields struct {
		Status domain.DealStatus `json:"status"`
	}
	if err := json.Unmarshal(patch, &fields); err != nil {
		s.logger.Warn("decode deal update", zap.Error(err))
		return
	}

	s.mu.Lock()
	if s.deal == nil {
		s.mu.Unlock()
		return
	}
	merged := *s.deal
	if err := json.Unmarshal(patch, &merged); err != nil {
		s.mu.Unlock()
		s.logger.Warn("merge deal update", zap.Error(err))
		return
	}
	s.deal = &merged
	s.mu.Unlock()

	s.publishDeal(merged)
	s.notices.Toast(notice.LevelInfo, "Deal status: "+fields.Status.Label())
	s.cacheDeal(context.Background(), &merged)
}

// HandleServerError implements realtime.EventHandler.
func (s *Session) HandleServerError(msg string) {
	s.notices.Toast(notice.LevelError, "Chat error: "+msg)
	s.notices.Banner(msg)
}

// HandleStatus implements realtime.EventHandler.
func (s *Session) HandleStatus(st realtime.Status) {
	s.mu.Lock()
	s.conn = st
	s.mu.Unlock()

	switch st.State {
	case realtime.StateConnected:
		s.notices.ClearBanner()
		s.notices.ClearSticky()
		s.notices.Toast(notice.LevelSuccess, TextChatConnected)
	case realtime.StateReconnecting:
		s.notices.Banner(st.Err)
	case realtime.StateFailed:
		s.notices.Banner(st.Err)
		if st.Err == realtime.ErrTextExhausted {
			s.notices.Sticky(TextRefreshNeeded)
		}
	}

	ev := StatusEvent{DealID: s.dealID, State: st.State, Attempt: st.Attempt, Error: st.Err}
	if st.RetryIn > 0 {
		ev.RetryIn = st.RetryIn.String()
	}
	s.publish(ev)
}

func (s *Session) publishThread() {
	s.publish(ThreadEvent{DealID: s.dealID, Messages: s.thread.Messages()})
}

func (s *Session) publishDeal(d domain.Deal) {
	s.publish(DealEvent{DealID: s.dealID, Deal: d})
}

func (s *Session) publish(ev any) {
	if s.bus != nil {
		s.bus.Publish(bus.DealTopic(s.dealID), ev)
	}
}

func (s *Session) cacheDeal(ctx context.Context, d *domain.Deal) {
	if s.cache == nil {
		return
	}
	if err := s.cache.SaveDeal(ctx, s.dealID, d); err != nil {
		s.logger.Warn("cache deal", zap.Error(err))
	}
}

func (s *Session) cacheMessages(ctx context.Context, msgs []domain.ChatMessage) {
	if s.cache == nil || len(msgs) == 0 {
		return
	}
	if err := s.cache.SaveMessages(ctx, s.dealID, msgs); err != nil {
		s.logger.Warn("cache messages", zap.Error(err))
		return
	}
	if err := s.cache.PruneOld(ctx, s.dealID, s.cacheLimit); err != nil {
		s.logger.Warn("prune cached messages", zap.Error(err))
	}
}

func (s *Session) cachedMessages(ctx context.Context) []domain.ChatMessage {
	if s.cache == nil {
		return nil
	}
	msgs, err := s.cache.ListMessages(ctx, s.dealID, s.cacheLimit)
	if err != nil {
		s.logger.Warn("read cached messages", zap.Error(err))
		return nil
	}
	return msgs
}

func (s *Session) cachedSnapshot(ctx context.Context) *Snapshot {
	if s.cache == nil {
		return nil
	}
	d, err := s.cache.GetDeal(ctx, s.dealID)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			s.logger.Warn("read cached deal", zap.Error(err))
		}
		return nil
	}
	return &Snapshot{
		DealID:   s.dealID,
		Deal:     d,
		Messages: s.cachedMessages(ctx),
		Stale:    true,
	}
}
