package chat

import (
	"medius/internal/domain"
	"medius/internal/realtime"
)

// Event types published on the deal's bus topic. notice.Notice values share
// the topic.
const (
	EventThread = "thread"
	EventDeal   = "deal"
	EventStatus = "status"
)

type ThreadEvent struct {
	DealID   string               `json:"deal_id"`
	Messages []domain.ChatMessage `json:"messages"`
}

func (ThreadEvent) EventType() string { return EventThread }

type DealEvent struct {
	DealID string      `json:"deal_id"`
	Deal   domain.Deal `json:"deal"`
}

func (DealEvent) EventType() string { return EventDeal }

type StatusEvent struct {
	DealID  string         `json:"deal_id"`
	State   realtime.State `json:"state"`
	Attempt int            `json:"attempt,omitempty"`
	Error   string         `json:"error,omitempty"`
	RetryIn string         `json:"retry_in,omitempty"`
}

func (StatusEvent) EventType() string { return EventStatus }
