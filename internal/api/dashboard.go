package api

import (
	"context"
	"net/url"

	"medius/internal/domain"
)

func (c *Client) ListNotifications(ctx context.Context) ([]domain.Notification, error) {
	var out struct {
		Notifications []domain.Notification `json:"notifications"`
	}
	if err := c.getJSON(ctx, "/notifications", &out); err != nil {
		return nil, err
	}
	return out.Notifications, nil
}

func (c *Client) MarkNotificationRead(ctx context.Context, id string) error {
	return c.postJSON(ctx, "/notifications/"+url.PathEscape(id)+"/read", nil)
}

func (c *Client) ListContacts(ctx context.Context) ([]domain.Contact, error) {
	var out struct {
		Contacts []domain.Contact `json:"contacts"`
	}
	if err := c.getJSON(ctx, "/contacts", &out); err != nil {
		return nil, err
	}
	return out.Contacts, nil
}

func (c *Client) UserStats(ctx context.Context) (*domain.UserStats, error) {
	var out struct {
		Stats domain.UserStats `json:"stats"`
	}
	if err := c.getJSON(ctx, "/users/me/stats", &out); err != nil {
		return nil, err
	}
	return &out.Stats, nil
}
