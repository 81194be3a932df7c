package httpserver

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"golang.org/x/sync/errgroup"

	"medius/internal/domain"
)

// Dashboard is the part of the Medius API behind the dashboard routes.
// *api.Client implements it.
type Dashboard interface {
	ListDeals(ctx context.Context) ([]domain.Deal, error)
	ListNotifications(ctx context.Context) ([]domain.Notification, error)
	MarkNotificationRead(ctx context.Context, id string) error
	ListContacts(ctx context.Context) ([]domain.Contact, error)
	UserStats(ctx context.Context) (*domain.UserStats, error)
}

type dashboardResponse struct {
	Deals         []domain.Deal         `json:"deals"`
	Notifications []domain.Notification `json:"notifications"`
	Contacts      []domain.Contact      `json:"contacts"`
	Stats         *domain.UserStats     `json:"stats"`
}

// handleDashboard fetches every dashboard panel concurrently. Any failure
// fails the whole response.
// @Summary      Dashboard
// @Tags         dashboard
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  dashboardResponse
// @Failure      502  {object}  map[string]string
// @Router       /dashboard [get]
func handleDashboard(d Dashboard) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var resp dashboardResponse
		g, ctx := errgroup.WithContext(r.Context())
		g.Go(func() (err error) {
			resp.Deals, err = d.ListDeals(ctx)
			return err
		})
		g.Go(func() (err error) {
			resp.Notifications, err = d.ListNotifications(ctx)
			return err
		})
		g.Go(func() (err error) {
			resp.Contacts, err = d.ListContacts(ctx)
			return err
		})
		g.Go(func() (err error) {
			resp.Stats, err = d.UserStats(ctx)
			return err
		})
		if err := g.Wait(); err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

// @Summary      List deals
// @Tags         dashboard
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  map[string][]domain.Deal
// @Router       /deals [get]
func handleListDeals(d Dashboard) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		deals, err := d.ListDeals(r.Context())
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"deals": deals})
	}
}

// @Summary      List notifications
// @Tags         dashboard
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  map[string][]domain.Notification
// @Router       /notifications [get]
func handleListNotifications(d Dashboard) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		items, err := d.ListNotifications(r.Context())
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"notifications": items})
	}
}

// @Summary      Mark a notification read
// @Tags         dashboard
// @Security     BearerAuth
// @Param        notificationID path string true "Notification ID"
// @Success      204
// @Failure      404  {object}  map[string]string
// @Router       /notifications/{notificationID}/read [post]
func handleMarkNotificationRead(d Dashboard) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "notificationID")
		if id == "" {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing notification id"})
			return
		}
		if err := d.MarkNotificationRead(r.Context(), id); err != nil {
			writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// @Summary      List contacts
// @Tags         dashboard
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  map[string][]domain.Contact
// @Router       /contacts [get]
func handleListContacts(d Dashboard) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		contacts, err := d.ListContacts(r.Context())
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"contacts": contacts})
	}
}

// @Summary      User stats
// @Tags         dashboard
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  map[string]domain.UserStats
// @Router       /stats [get]
func handleStats(d Dashboard) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		stats, err := d.UserStats(r.Context())
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"stats": stats})
	}
}
