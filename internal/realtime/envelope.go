package realtime

import (
	"encoding/json"
	"errors"
	"fmt"

	"medius/internal/domain"
)

// Envelope types exchanged with the chat endpoint.
const (
	TypeNewMessage       = "new_message"
	TypeDealStatusUpdate = "deal_status_update"
	TypeError            = "error"
	TypeSendMessage      = "send_message"
)

// Envelope is an inbound frame. Only the field matching Type is set.
type Envelope struct {
	Type    string              `json:"type"`
	Message *domain.ChatMessage `json:"message,omitempty"`
	// Deal holds a partial deal; absent fields keep their current value.
	Deal  json.RawMessage `json:"deal,omitempty"`
	Error string          `json:"error,omitempty"`
}

// SendMessage is the outbound chat frame.
type SendMessage struct {
	Type       string `json:"type"`
	ReceiverID string `json:"receiver_id"`
	Message    string `json:"message"`
	DealID     string `json:"deal_id"`
	TempID     string `json:"tempId"`
}

func NewSendMessage(dealID, receiverID, text, tempID string) SendMessage {
	return SendMessage{
		Type:       TypeSendMessage,
		ReceiverID: receiverID,
		Message:    text,
		DealID:     dealID,
		TempID:     tempID,
	}
}

// DecodeEnvelope parses an inbound frame.
func DecodeEnvelope(data []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}
	if env.Type == "" {
		return nil, errors.New("decode envelope: missing type")
	}
	return &env, nil
}
