package realtime_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"medius/internal/domain"
	"medius/internal/realtime"
)

const waitFor = 2 * time.Second

type staticSession struct {
	token string
	err   error
}

func (s staticSession) Token(context.Context) (string, error) { return s.token, s.err }
func (s staticSession) CurrentUser(context.Context) (*domain.User, error) {
	return &domain.User{ID: "buyer_1"}, nil
}
func (s staticSession) SignOut(context.Context) error { return nil }

type recorder struct {
	mu       sync.Mutex
	messages []domain.ChatMessage
	patches  []json.RawMessage
	errs     []string
	statuses []realtime.Status
}

func (r *recorder) HandleMessage(msg domain.ChatMessage) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, msg)
}

func (r *recorder) HandleDealUpdate(patch json.RawMessage) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.patches = append(r.patches, patch)
}

func (r *recorder) HandleServerError(msg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errs = append(r.errs, msg)
}

func (r *recorder) HandleStatus(st realtime.Status) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.statuses = append(r.statuses, st)
}

func (r *recorder) last() (realtime.Status, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.statuses) == 0 {
		return realtime.Status{}, false
	}
	return r.statuses[len(r.statuses)-1], true
}

func (r *recorder) lastIs(state realtime.State) func() bool {
	return func() bool {
		st, ok := r.last()
		return ok && st.State == state
	}
}

type fakeTimer struct{ stopped atomic.Bool }

func (t *fakeTimer) Stop() bool { return !t.stopped.Swap(true) }

type scheduled struct {
	delay time.Duration
	fn    func()
	timer *fakeTimer
}

type fakeScheduler struct {
	mu    sync.Mutex
	calls []scheduled
}

func (s *fakeScheduler) AfterFunc(d time.Duration, f func()) realtime.Timer {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := &fakeTimer{}
	s.calls = append(s.calls, scheduled{delay: d, fn: f, timer: t})
	return t
}

func (s *fakeScheduler) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

func (s *fakeScheduler) get(i int) scheduled {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[i]
}

type failingDialer struct{ dials atomic.Int32 }

func (d *failingDialer) DialContext(context.Context, string, http.Header) (*websocket.Conn, *http.Response, error) {
	d.dials.Add(1)
	return nil, nil, errors.New("connection refused")
}

// ctxDialer fails every dial and keeps the contexts it was given.
type ctxDialer struct {
	mu   sync.Mutex
	ctxs []context.Context
}

func (d *ctxDialer) DialContext(ctx context.Context, _ string, _ http.Header) (*websocket.Conn, *http.Response, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.ctxs = append(d.ctxs, ctx)
	return nil, nil, errors.New("connection refused")
}

func (d *ctxDialer) dialed() []context.Context {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]context.Context(nil), d.ctxs...)
}

var testPolicy = realtime.Policy{MaxAttempts: 5, BaseDelay: 10 * time.Millisecond, MaxDelay: time.Second}

func newServer(t *testing.T, onConn func(c *websocket.Conn, r *http.Request)) string {
	t.Helper()
	up := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := up.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer c.Close()
		onConn(c, r)
	}))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/chat"
}

func drain(c *websocket.Conn) {
	for {
		if _, _, err := c.ReadMessage(); err != nil {
			return
		}
	}
}

func newManager(t *testing.T, wsURL string, h realtime.EventHandler, opts ...realtime.Option) *realtime.Manager {
	t.Helper()
	m, err := realtime.NewManager(realtime.Config{
		URL:    wsURL,
		DealID: "deal-1",
		Policy: testPolicy,
	}, staticSession{token: "tok"}, h, opts...)
	require.NoError(t, err)
	t.Cleanup(m.Close)
	return m
}

func TestNewManagerValidates(t *testing.T) {
	_, err := realtime.NewManager(realtime.Config{DealID: "d"}, staticSession{}, &recorder{})
	assert.ErrorIs(t, err, domain.ErrMissingEndpoint)

	_, err = realtime.NewManager(realtime.Config{URL: "ws://x"}, staticSession{}, &recorder{})
	assert.ErrorIs(t, err, domain.ErrMissingDealID)
}

func TestManagerConnects(t *testing.T) {
	query := make(chan url.Values, 1)
	wsURL := newServer(t, func(c *websocket.Conn, r *http.Request) {
		query <- r.URL.Query()
		drain(c)
	})
	rec := &recorder{}
	m := newManager(t, wsURL, rec)
	assert.Equal(t, realtime.StateDisconnected, m.State())

	m.Start(context.Background())

	require.Eventually(t, rec.lastIs(realtime.StateConnected), waitFor, 5*time.Millisecond)
	q := <-query
	assert.Equal(t, "tok", q.Get("token"))
	assert.Equal(t, "deal-1", q.Get("dealId"))
	assert.Equal(t, 0, m.Attempts())

	st, _ := rec.last()
	assert.Empty(t, st.Err)
}

func TestManagerCleanCloseDoesNotReconnect(t *testing.T) {
	wsURL := newServer(t, func(c *websocket.Conn, _ *http.Request) {
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye")
		_ = c.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		drain(c)
	})
	rec := &recorder{}
	sched := &fakeScheduler{}
	m := newManager(t, wsURL, rec, realtime.WithScheduler(sched))

	m.Start(context.Background())

	require.Eventually(t, rec.lastIs(realtime.StateDisconnected), waitFor, 5*time.Millisecond)
	assert.Zero(t, sched.count())
}

func TestManagerAbnormalCloseSchedulesReconnect(t *testing.T) {
	wsURL := newServer(t, func(c *websocket.Conn, _ *http.Request) {
		msg := websocket.FormatCloseMessage(websocket.CloseInternalServerErr, "boom")
		_ = c.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
	})
	rec := &recorder{}
	sched := &fakeScheduler{}
	m := newManager(t, wsURL, rec, realtime.WithScheduler(sched))

	m.Start(context.Background())

	require.Eventually(t, func() bool { return sched.count() == 1 }, waitFor, 5*time.Millisecond)
	assert.Equal(t, testPolicy.BaseDelay, sched.get(0).delay)
	assert.Equal(t, realtime.StateReconnecting, m.State())

	st, _ := rec.last()
	assert.Equal(t, realtime.ErrTextConnection, st.Err)
}

func TestManagerBackoffAndExhaustion(t *testing.T) {
	rec := &recorder{}
	sched := &fakeScheduler{}
	dialer := &failingDialer{}
	m := newManager(t, "ws://chat.invalid/ws", rec,
		realtime.WithScheduler(sched), realtime.WithDialer(dialer))

	m.Start(context.Background())

	for i := 1; i < testPolicy.MaxAttempts; i++ {
		require.Eventually(t, func() bool { return sched.count() == i }, waitFor, 5*time.Millisecond)
		call := sched.get(i - 1)
		assert.Equal(t, testPolicy.Delay(i), call.delay)
		call.fn()
	}

	// two rejected dials wait base*4 before the third
	assert.Equal(t, 4*testPolicy.BaseDelay, sched.get(1).delay)

	assert.Equal(t, testPolicy.MaxAttempts-1, sched.count())
	assert.Equal(t, int32(testPolicy.MaxAttempts), dialer.dials.Load())
	assert.Equal(t, realtime.StateFailed, m.State())

	st, _ := rec.last()
	assert.Equal(t, realtime.ErrTextExhausted, st.Err)
	assert.Equal(t, testPolicy.MaxAttempts, st.Attempt)
}

func TestManagerReconnectAfterExhaustionResetsAttempts(t *testing.T) {
	rec := &recorder{}
	sched := &fakeScheduler{}
	dialer := &failingDialer{}
	m, err := realtime.NewManager(realtime.Config{
		URL:    "ws://chat.invalid/ws",
		DealID: "deal-1",
		Policy: realtime.Policy{MaxAttempts: 1, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond},
	}, staticSession{token: "tok"}, rec, realtime.WithScheduler(sched), realtime.WithDialer(dialer))
	require.NoError(t, err)
	t.Cleanup(m.Close)

	m.Start(context.Background())
	require.Eventually(t, func() bool { return m.State() == realtime.StateFailed }, waitFor, 5*time.Millisecond)

	m.Reconnect(context.Background())
	require.Eventually(t, func() bool { return dialer.dials.Load() == 2 }, waitFor, 5*time.Millisecond)
	require.Eventually(t, func() bool { return m.State() == realtime.StateFailed }, waitFor, 5*time.Millisecond)
	assert.Equal(t, 1, m.Attempts())
	assert.Zero(t, sched.count())
}

func TestManagerReconnectCancelsFailedRun(t *testing.T) {
	dialer := &ctxDialer{}
	m, err := realtime.NewManager(realtime.Config{
		URL:    "ws://chat.invalid/ws",
		DealID: "deal-1",
		Policy: realtime.Policy{MaxAttempts: 1, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond},
	}, staticSession{token: "tok"}, &recorder{}, realtime.WithScheduler(&fakeScheduler{}), realtime.WithDialer(dialer))
	require.NoError(t, err)
	t.Cleanup(m.Close)

	m.Start(context.Background())
	require.Eventually(t, func() bool { return m.State() == realtime.StateFailed }, waitFor, 5*time.Millisecond)
	require.Len(t, dialer.dialed(), 1)
	assert.NoError(t, dialer.dialed()[0].Err())

	m.Reconnect(context.Background())
	require.Eventually(t, func() bool { return len(dialer.dialed()) == 2 }, waitFor, 5*time.Millisecond)
	assert.ErrorIs(t, dialer.dialed()[0].Err(), context.Canceled)
	assert.NoError(t, dialer.dialed()[1].Err())
}

func TestManagerDefaultsOnlyMissingPolicyFields(t *testing.T) {
	sched := &fakeScheduler{}
	m, err := realtime.NewManager(realtime.Config{
		URL:    "ws://chat.invalid/ws",
		DealID: "deal-1",
		Policy: realtime.Policy{BaseDelay: 7 * time.Millisecond, MaxDelay: time.Second},
	}, staticSession{token: "tok"}, &recorder{}, realtime.WithScheduler(sched), realtime.WithDialer(&failingDialer{}))
	require.NoError(t, err)
	t.Cleanup(m.Close)

	m.Start(context.Background())

	require.Eventually(t, func() bool { return sched.count() == 1 }, waitFor, 5*time.Millisecond)
	assert.Equal(t, 14*time.Millisecond, sched.get(0).delay)
}

func TestManagerSignedOutIsTerminal(t *testing.T) {
	rec := &recorder{}
	sched := &fakeScheduler{}
	m, err := realtime.NewManager(realtime.Config{URL: "ws://chat.invalid/ws", DealID: "deal-1", Policy: testPolicy},
		staticSession{err: domain.ErrSignedOut}, rec, realtime.WithScheduler(sched))
	require.NoError(t, err)
	t.Cleanup(m.Close)

	m.Start(context.Background())

	require.Eventually(t, rec.lastIs(realtime.StateFailed), waitFor, 5*time.Millisecond)
	st, _ := rec.last()
	assert.Equal(t, realtime.ErrTextAuth, st.Err)
	assert.Zero(t, sched.count())
}

func TestManagerCloseCancelsPendingReconnect(t *testing.T) {
	rec := &recorder{}
	sched := &fakeScheduler{}
	dialer := &failingDialer{}
	m := newManager(t, "ws://chat.invalid/ws", rec,
		realtime.WithScheduler(sched), realtime.WithDialer(dialer))

	m.Start(context.Background())
	require.Eventually(t, func() bool { return sched.count() == 1 }, waitFor, 5*time.Millisecond)

	m.Close()
	call := sched.get(0)
	assert.True(t, call.timer.stopped.Load())

	// a timer that already fired must not revive the channel
	call.fn()
	assert.Equal(t, int32(1), dialer.dials.Load())
	assert.Equal(t, realtime.StateDisconnected, m.State())
}

func TestManagerCloseSendsNormalClosure(t *testing.T) {
	closeCode := make(chan int, 1)
	wsURL := newServer(t, func(c *websocket.Conn, _ *http.Request) {
		_, _, err := c.ReadMessage()
		var ce *websocket.CloseError
		if errors.As(err, &ce) {
			closeCode <- ce.Code
		}
	})
	rec := &recorder{}
	sched := &fakeScheduler{}
	m := newManager(t, wsURL, rec, realtime.WithScheduler(sched))

	m.Start(context.Background())
	require.Eventually(t, rec.lastIs(realtime.StateConnected), waitFor, 5*time.Millisecond)

	m.Close()

	select {
	case code := <-closeCode:
		assert.Equal(t, websocket.CloseNormalClosure, code)
	case <-time.After(waitFor):
		t.Fatal("server never saw a close frame")
	}
	assert.Equal(t, realtime.StateDisconnected, m.State())
	assert.Zero(t, sched.count())
}

func TestManagerDispatchesEvents(t *testing.T) {
	created := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	wsURL := newServer(t, func(c *websocket.Conn, _ *http.Request) {
		_ = c.WriteMessage(websocket.TextMessage, []byte("not json"))
		_ = c.WriteJSON(map[string]any{"type": "typing"})
		_ = c.WriteJSON(map[string]any{
			"type": "new_message",
			"message": domain.ChatMessage{
				ID: "m1", SenderID: "seller_1", Message: "hi", CreatedAt: created, Type: domain.MessageUser,
			},
		})
		_ = c.WriteJSON(map[string]any{"type": "deal_status_update", "deal": map[string]any{"status": "funded"}})
		_ = c.WriteJSON(map[string]any{"type": "error"})
		_ = c.WriteJSON(map[string]any{"type": "error", "error": "Rate limited"})
		drain(c)
	})
	rec := &recorder{}
	m := newManager(t, wsURL, rec)

	m.Start(context.Background())

	require.Eventually(t, func() bool {
		rec.mu.Lock()
		defer rec.mu.Unlock()
		return len(rec.errs) == 2
	}, waitFor, 5*time.Millisecond)

	rec.mu.Lock()
	defer rec.mu.Unlock()
	require.Len(t, rec.messages, 1)
	assert.Equal(t, "m1", rec.messages[0].ID)
	assert.True(t, created.Equal(rec.messages[0].CreatedAt))
	require.Len(t, rec.patches, 1)
	assert.JSONEq(t, `{"status":"funded"}`, string(rec.patches[0]))
	assert.Equal(t, []string{"Unknown chat server error", "Rate limited"}, rec.errs)
}

func TestManagerSend(t *testing.T) {
	frames := make(chan realtime.SendMessage, 1)
	wsURL := newServer(t, func(c *websocket.Conn, _ *http.Request) {
		var f realtime.SendMessage
		if err := c.ReadJSON(&f); err == nil {
			frames <- f
		}
		drain(c)
	})
	rec := &recorder{}
	m := newManager(t, wsURL, rec)

	err := m.SendChat(context.Background(), "seller_1", "hello", "temp-1")
	assert.ErrorIs(t, err, domain.ErrNotConnected)

	m.Start(context.Background())
	require.Eventually(t, rec.lastIs(realtime.StateConnected), waitFor, 5*time.Millisecond)

	require.NoError(t, m.SendChat(context.Background(), "seller_1", "hello", "temp-1"))
	select {
	case f := <-frames:
		assert.Equal(t, realtime.NewSendMessage("deal-1", "seller_1", "hello", "temp-1"), f)
	case <-time.After(waitFor):
		t.Fatal("frame not received")
	}
}

func TestManagerStartIsIdempotentWhileActive(t *testing.T) {
	var conns atomic.Int32
	wsURL := newServer(t, func(c *websocket.Conn, _ *http.Request) {
		conns.Add(1)
		drain(c)
	})
	rec := &recorder{}
	m := newManager(t, wsURL, rec)

	m.Start(context.Background())
	require.Eventually(t, rec.lastIs(realtime.StateConnected), waitFor, 5*time.Millisecond)
	m.Start(context.Background())

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(1), conns.Load())
}
