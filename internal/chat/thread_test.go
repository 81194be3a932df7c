package chat_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"medius/internal/chat"
	"medius/internal/domain"
)

func ids(msgs []domain.ChatMessage) []string {
	out := make([]string, len(msgs))
	for i, m := range msgs {
		out[i] = m.ID
	}
	return out
}

func TestThreadApplyReplacesPlaceholderInPlace(t *testing.T) {
	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	th := chat.NewThread()
	th.Reset([]domain.ChatMessage{{ID: "m1", SenderID: "seller_1", CreatedAt: at.Add(-time.Minute)}})
	th.AddPending(domain.ChatMessage{ID: "temp-1", SenderID: "buyer_1", Message: "hi", CreatedAt: at})
	th.AddPending(domain.ChatMessage{ID: "temp-2", SenderID: "buyer_1", Message: "again", CreatedAt: at.Add(time.Second)})

	// same instant in another zone still matches
	echo := domain.ChatMessage{ID: "m2", SenderID: "buyer_1", Message: "hi", CreatedAt: at.In(time.FixedZone("CEST", 7200))}
	assert.Equal(t, chat.Replaced, th.Apply(echo))
	assert.Equal(t, []string{"m1", "m2", "temp-2"}, ids(th.Messages()))
	assert.False(t, th.Messages()[1].Pending)

	assert.Equal(t, chat.Duplicate, th.Apply(echo), "a repeated echo must not replace another placeholder")
	assert.Equal(t, []string{"m1", "m2", "temp-2"}, ids(th.Messages()))
}

func TestThreadApplyPrefersEchoedTempID(t *testing.T) {
	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	th := chat.NewThread()
	th.AddPending(domain.ChatMessage{ID: "temp-a", SenderID: "buyer_1", CreatedAt: at})
	th.AddPending(domain.ChatMessage{ID: "temp-b", SenderID: "buyer_1", CreatedAt: at.Add(time.Second)})

	// server clock differs from ours; the echoed id still finds the placeholder
	res := th.Apply(domain.ChatMessage{ID: "m9", TempID: "temp-b", SenderID: "buyer_1", CreatedAt: at.Add(time.Hour)})
	assert.Equal(t, chat.Replaced, res)
	assert.Equal(t, []string{"temp-a", "m9"}, ids(th.Messages()))
}

func TestThreadApplyEchoAfterBroadcastDropsPlaceholder(t *testing.T) {
	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	th := chat.NewThread()
	th.AddPending(domain.ChatMessage{ID: "temp-1", SenderID: "buyer_1", Message: "hi", CreatedAt: at})

	// the broadcast copy carries a server timestamp and no temp id
	broadcast := domain.ChatMessage{ID: "m1", SenderID: "buyer_1", Message: "hi", CreatedAt: at.Add(time.Second)}
	assert.Equal(t, chat.Appended, th.Apply(broadcast))
	assert.Equal(t, []string{"temp-1", "m1"}, ids(th.Messages()))

	echo := broadcast
	echo.TempID = "temp-1"
	assert.Equal(t, chat.Replaced, th.Apply(echo))
	assert.Equal(t, []string{"m1"}, ids(th.Messages()))

	assert.Equal(t, chat.Duplicate, th.Apply(echo))
	assert.Equal(t, []string{"m1"}, ids(th.Messages()))
}

func TestThreadApplyAppendsUnknown(t *testing.T) {
	th := chat.NewThread()
	th.AddPending(domain.ChatMessage{ID: "temp-1", SenderID: "buyer_1", CreatedAt: time.Unix(100, 0)})

	res := th.Apply(domain.ChatMessage{ID: "m1", SenderID: "seller_1", CreatedAt: time.Unix(100, 0)})
	assert.Equal(t, chat.Appended, res)
	assert.Equal(t, []string{"temp-1", "m1"}, ids(th.Messages()))
	assert.True(t, th.Messages()[0].Pending)
}

func TestThreadSanitizesSystemMessages(t *testing.T) {
	th := chat.NewThread()
	th.Apply(domain.ChatMessage{ID: "s1", Type: domain.MessageSystem, Message: `Deal <b>funded</b><script>x()</script>`})
	th.Apply(domain.ChatMessage{ID: "u1", Type: domain.MessageUser, Message: `<b>as typed</b>`})

	msgs := th.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, "Deal <b>funded</b>", msgs[0].Message)
	assert.Equal(t, "<b>as typed</b>", msgs[1].Message)
}

func TestThreadResetKeepsLiveAndPending(t *testing.T) {
	th := chat.NewThread()
	th.Apply(domain.ChatMessage{ID: "live"})
	th.Apply(domain.ChatMessage{ID: "m2"})
	th.AddPending(domain.ChatMessage{ID: "temp-1"})

	th.Reset([]domain.ChatMessage{{ID: "m1"}, {ID: "m2"}, {ID: "m2"}})

	assert.Equal(t, []string{"m1", "m2", "live", "temp-1"}, ids(th.Messages()))
}

func TestThreadRemove(t *testing.T) {
	th := chat.NewThread()
	th.AddPending(domain.ChatMessage{ID: "temp-1"})
	assert.True(t, th.Remove("temp-1"))
	assert.False(t, th.Remove("temp-1"))
	assert.Zero(t, th.Len())
}
