package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"medius/internal/domain"
)

type dealEnvelope struct {
	Deal *domain.Deal `json:"deal"`
}

// GetDeal fetches a single deal.
func (c *Client) GetDeal(ctx context.Context, dealID string) (*domain.Deal, error) {
	var out dealEnvelope
	if err := c.getJSON(ctx, "/deals/"+url.PathEscape(dealID), &out); err != nil {
		var apiErr *Error
		if errors.As(err, &apiErr) {
			switch apiErr.Status {
			case http.StatusNotFound:
				apiErr.Message = "Deal not found."
			case http.StatusForbidden:
				apiErr.Message = "Unauthorized."
			}
		}
		return nil, err
	}
	if out.Deal == nil {
		return nil, fmt.Errorf("deal %s: empty response", dealID)
	}
	return out.Deal, nil
}

// ListDeals lists the signed-in user's deals for the dashboard.
func (c *Client) ListDeals(ctx context.Context) ([]domain.Deal, error) {
	var out struct {
		Deals []domain.Deal `json:"deals"`
	}
	if err := c.getJSON(ctx, "/deals", &out); err != nil {
		return nil, err
	}
	return out.Deals, nil
}

// ReleaseFunds releases escrowed funds to the seller.
func (c *Client) ReleaseFunds(ctx context.Context, dealID string) (*domain.Deal, error) {
	return c.dealAction(ctx, dealID, "release")
}

// CancelRequest requests cancellation, or confirms the counterparty's request.
func (c *Client) CancelRequest(ctx context.Context, dealID string) (*domain.Deal, error) {
	return c.dealAction(ctx, dealID, "cancel_request")
}

func (c *Client) dealAction(ctx context.Context, dealID, action string) (*domain.Deal, error) {
	var out dealEnvelope
	if err := c.postJSON(ctx, "/deals/"+url.PathEscape(dealID)+"/"+action, &out); err != nil {
		return nil, err
	}
	if out.Deal == nil {
		return nil, fmt.Errorf("%s: empty response", action)
	}
	return out.Deal, nil
}
