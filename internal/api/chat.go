package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"medius/internal/domain"
)

// ChatHistory returns the deal thread. A deal without a thread yet is empty,
// not an error.
func (c *Client) ChatHistory(ctx context.Context, dealID string) ([]domain.ChatMessage, error) {
	var out struct {
		Messages []domain.ChatMessage `json:"messages"`
	}
	err := c.getJSON(ctx, "/deals/"+url.PathEscape(dealID)+"/chat", &out)
	if errors.Is(err, domain.ErrNotFound) {
		return []domain.ChatMessage{}, nil
	}
	if err != nil {
		return nil, err
	}
	if out.Messages == nil {
		out.Messages = []domain.ChatMessage{}
	}
	return out.Messages, nil
}

// PostMessage sends a message over REST. The realtime channel is the primary
// path; this exists for non-interactive callers.
func (c *Client) PostMessage(ctx context.Context, dealID, text string) (*domain.ChatMessage, error) {
	body, err := json.Marshal(map[string]string{"message": text})
	if err != nil {
		return nil, err
	}
	var out struct {
		Message *domain.ChatMessage `json:"message"`
	}
	path := "/deals/" + url.PathEscape(dealID) + "/chat"
	if err := c.do(ctx, http.MethodPost, path, bytes.NewReader(body), "application/json", &out); err != nil {
		return nil, err
	}
	if out.Message == nil {
		return nil, fmt.Errorf("post message: empty response")
	}
	return out.Message, nil
}
