package main

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"medius/internal/bus"
	"medius/internal/chat"
	"medius/internal/domain"
	"medius/internal/format"
	"medius/internal/notice"
	"medius/internal/realtime"
)

// renderer prints the deal chat as a running log. Each confirmed message is
// printed once; placeholders are announced when they appear.
type renderer struct {
	out    io.Writer
	userID string
	now    func() time.Time

	mu      sync.Mutex
	printed map[string]bool
	status  domain.DealStatus
}

func newRenderer(out io.Writer, userID string) *renderer {
	return &renderer{
		out:     out,
		userID:  userID,
		now:     time.Now,
		printed: make(map[string]bool),
	}
}

// consume renders bus events until the subscription is closed.
func (r *renderer) consume(sub bus.Subscription) {
	for ev := range sub {
		r.event(ev)
	}
}

func (r *renderer) event(ev any) {
	switch e := ev.(type) {
	case chat.ThreadEvent:
		r.thread(e.Messages)
	case chat.DealEvent:
		r.deal(&e.Deal)
	case chat.StatusEvent:
		r.connection(e)
	case notice.Notice:
		r.notice(e)
	}
}

func (r *renderer) snapshot(s chat.Snapshot) {
	if s.Deal != nil {
		r.deal(s.Deal)
	}
	if s.Stale {
		r.printf("(showing cached copy)\n")
	}
	if s.HistoryError != "" {
		r.printf("! %s\n", s.HistoryError)
	}
	r.thread(s.Messages)
	if s.Notices.Banner != "" {
		r.printf("! %s  (/dismiss)\n", s.Notices.Banner)
	}
	if s.Notices.Sticky != "" {
		r.printf("!! %s  (/refresh)\n", s.Notices.Sticky)
	}
	if s.Draft != "" {
		r.printf("(draft) %s\n", s.Draft)
	}
}

func (r *renderer) thread(msgs []domain.ChatMessage) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range msgs {
		if r.printed[m.ID] {
			continue
		}
		r.printed[m.ID] = true
		if m.Pending {
			fmt.Fprintf(r.out, "  sending: %s\n", m.Message)
			continue
		}
		fmt.Fprintln(r.out, r.line(m))
	}
}

func (r *renderer) line(m domain.ChatMessage) string {
	when := format.TimeAgo(m.CreatedAt, r.now())
	switch m.Type {
	case domain.MessageSystem:
		return fmt.Sprintf("[%s] -- %s --", when, format.PlainText(m.Message))
	case domain.MessageFile:
		return fmt.Sprintf("[%s] %s sent %s (%s)  /open %s", when, r.author(m), m.FileName, format.FileSize(m.FileSize), m.FileURL)
	case domain.MessageTransactionCard:
		amount := "N/A"
		if m.TransactionAmount != nil {
			amount = format.Amount(*m.TransactionAmount, m.TransactionCurrency)
		}
		return fmt.Sprintf("[%s] transaction %s %s -> %s  %s", when, amount, m.TransactionFrom, m.TransactionTo, m.TransactionHash)
	case domain.MessageWalletCard:
		return fmt.Sprintf("[%s] %s wallet %s (%s)", when, r.author(m), m.WalletAddress, m.WalletNetwork)
	default:
		return fmt.Sprintf("[%s] %s: %s", when, r.author(m), m.Message)
	}
}

func (r *renderer) author(m domain.ChatMessage) string {
	if m.SenderID == r.userID {
		return "You"
	}
	if m.SenderUsername != "" {
		return m.SenderUsername
	}
	return "Unknown"
}

// deal prints the header whenever the status changes.
func (r *renderer) deal(d *domain.Deal) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if d.Status == r.status {
		return
	}
	r.status = d.Status
	fmt.Fprintf(r.out, "== %s [%s] %s (%s) ==\n",
		d.Title, d.Status.Label(), format.Amount(d.Amount, d.CryptoType), format.Currency(d.USDValue, "USD"))
	var hints []string
	if chat.CanRelease(d, r.userID) {
		hints = append(hints, "/release")
	}
	if ok, confirming := chat.CancelAction(d, r.userID); ok {
		if confirming {
			hints = append(hints, "/cancel (confirm)")
		} else {
			hints = append(hints, "/cancel")
		}
	}
	if len(hints) > 0 {
		fmt.Fprintf(r.out, "   actions: %s\n", strings.Join(hints, " "))
	}
}

func (r *renderer) connection(e chat.StatusEvent) {
	switch e.State {
	case realtime.StateReconnecting:
		r.printf("~ reconnecting in %s (attempt %d)\n", e.RetryIn, e.Attempt)
	case realtime.StateFailed:
		r.printf("~ connection failed: %s\n", e.Error)
	}
}

func (r *renderer) notice(n notice.Notice) {
	switch n.Kind {
	case notice.KindToast:
		r.printf("%s %s\n", levelMark(n.Level), n.Text)
	case notice.KindBanner:
		r.printf("! %s  (/dismiss)\n", n.Text)
	case notice.KindSticky:
		r.printf("!! %s  (/refresh)\n", n.Text)
	}
}

func levelMark(l notice.Level) string {
	switch l {
	case notice.LevelError:
		return "x"
	case notice.LevelSuccess:
		return "ok"
	case notice.LevelLoading:
		return "..."
	default:
		return "*"
	}
}

func (r *renderer) printf(f string, args ...any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fmt.Fprintf(r.out, f, args...)
}
