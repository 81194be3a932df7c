package main

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"medius/internal/chat"
	"medius/internal/domain"
	"medius/internal/notice"
	"medius/internal/realtime"
)

var now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func testRenderer() (*renderer, *bytes.Buffer) {
	var buf bytes.Buffer
	r := newRenderer(&buf, "buyer_1")
	r.now = func() time.Time { return now }
	return r, &buf
}

func TestRendererPrintsEachMessageOnce(t *testing.T) {
	r, buf := testRenderer()
	msgs := []domain.ChatMessage{
		{ID: "m1", SenderID: "seller_1", SenderUsername: "sue", Message: "hi", CreatedAt: now.Add(-2 * time.Minute), Type: domain.MessageUser},
		{ID: "temp-1", SenderID: "buyer_1", Message: "hello", Pending: true, CreatedAt: now},
	}
	r.event(chat.ThreadEvent{Messages: msgs})
	r.event(chat.ThreadEvent{Messages: append(msgs[:1:1], domain.ChatMessage{
		ID: "m2", SenderID: "buyer_1", Message: "hello", CreatedAt: now, Type: domain.MessageUser,
	})})

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "[2 minutes ago] sue: hi", lines[0])
	assert.Equal(t, "  sending: hello", lines[1])
	assert.Equal(t, "[just now] You: hello", lines[2])
}

func TestRendererMessageKinds(t *testing.T) {
	r, _ := testRenderer()
	amount := 1.5

	assert.Equal(t, "[just now] -- Funds <released> --", r.line(domain.ChatMessage{
		Type: domain.MessageSystem, Message: "<b>Funds</b> &lt;released&gt;", CreatedAt: now,
	}))
	assert.Equal(t, "[just now] sue sent quote.pdf (2.0 KiB)  /open files/quote.pdf", r.line(domain.ChatMessage{
		Type: domain.MessageFile, SenderID: "seller_1", SenderUsername: "sue", FileName: "quote.pdf", FileSize: 2048, FileURL: "files/quote.pdf", CreatedAt: now,
	}))
	assert.Contains(t, r.line(domain.ChatMessage{
		Type: domain.MessageTransactionCard, TransactionAmount: &amount, TransactionCurrency: "eth", TransactionHash: "0xabc", CreatedAt: now,
	}), "transaction 1.5 ETH")
}

func TestRendererDealHeaderAndNotices(t *testing.T) {
	r, buf := testRenderer()
	deal := domain.Deal{Title: "Logo", BuyerID: "buyer_1", SellerID: "seller_1", Status: domain.DealFunded, Amount: 2, CryptoType: "btc"}
	r.event(chat.DealEvent{Deal: deal})
	r.event(chat.DealEvent{Deal: deal})
	r.event(notice.Notice{Kind: notice.KindToast, Level: notice.LevelError, Text: "Chat not connected."})
	r.event(notice.Notice{Kind: notice.KindBannerCleared})
	r.event(chat.StatusEvent{State: realtime.StateReconnecting, Attempt: 2, RetryIn: "2s"})

	out := buf.String()
	assert.Equal(t, 1, strings.Count(out, "== Logo [Funded] 2 BTC (N/A) =="))
	assert.Contains(t, out, "actions: /release /cancel")
	assert.Contains(t, out, "x Chat not connected.")
	assert.Contains(t, out, "~ reconnecting in 2s (attempt 2)")
}

func TestHandleLineCommands(t *testing.T) {
	var buf bytes.Buffer
	quit, err := handleLine(context.Background(), nil, "/help", &buf)
	require.NoError(t, err)
	assert.False(t, quit)
	assert.Contains(t, buf.String(), "/upload <path>")

	buf.Reset()
	quit, err = handleLine(context.Background(), nil, "/nope", &buf)
	require.NoError(t, err)
	assert.False(t, quit)
	assert.Contains(t, buf.String(), "unknown command /nope")

	_, err = handleLine(context.Background(), nil, "/upload", &buf)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	quit, err = handleLine(context.Background(), nil, "/quit", &buf)
	require.NoError(t, err)
	assert.True(t, quit)
}

func TestPrintDashboard(t *testing.T) {
	usd := 1234.5
	var buf bytes.Buffer
	printDashboard(&buf, &dashboard{
		deals: []domain.Deal{{DealID: "D-1", Title: "Logo", Status: domain.DealInProgress, Amount: 0.5, CryptoType: "eth", USDValue: &usd, UpdatedAt: now.Add(-time.Hour)}},
		notifications: []domain.Notification{{ID: "n1", Title: "Funded", Body: "<p>Deal funded</p>", CreatedAt: now.Add(-time.Hour)}},
		stats:         &domain.UserStats{ActiveDeals: 1},
	}, now)

	out := buf.String()
	assert.Contains(t, out, "Active 1")
	assert.Contains(t, out, "DEAL")
	assert.Contains(t, out, "D-1")
	assert.Contains(t, out, "In Progress")
	assert.Contains(t, out, "$1,234.50")
	assert.Contains(t, out, "* Funded  Deal funded")
	assert.Contains(t, out, "Contacts\n  none")
}
