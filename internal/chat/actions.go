package chat

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"medius/internal/domain"
	"medius/internal/notice"
)

// CanRelease reports whether the user may release the escrowed funds.
func CanRelease(d *domain.Deal, userID string) bool {
	if d == nil || d.RoleOf(userID) != domain.RoleBuyer {
		return false
	}
	switch d.Status {
	case domain.DealFunded, domain.DealInProgress, domain.DealPendingRelease:
		return true
	}
	return false
}

// CancelAction describes the cancel control for the user: whether it is
// enabled and whether using it confirms the other party's request.
func CancelAction(d *domain.Deal, userID string) (allowed, confirming bool) {
	if d == nil || d.IsTerminal() {
		return false, false
	}
	role := d.RoleOf(userID)
	if d.Status == domain.CancelRequestedBy(role) {
		return false, false
	}
	return true, d.Status == domain.CancelRequestedBy(other(role))
}

func other(r domain.Role) domain.Role {
	if r == domain.RoleBuyer {
		return domain.RoleSeller
	}
	return domain.RoleBuyer
}

// ReleaseFunds releases the escrow. The deal is shown as completed right
// away and restored if the request fails.
func (s *Session) ReleaseFunds(ctx context.Context) error {
	s.mu.Lock()
	if s.action != "" {
		s.mu.Unlock()
		return domain.ErrActionInProgress
	}
	if s.user == nil || !CanRelease(s.deal, s.user.ID) {
		s.mu.Unlock()
		return domain.ErrActionNotAllowed
	}
	original, optimistic := s.begin(ActionRelease, domain.DealCompleted)
	s.mu.Unlock()
	s.publishDeal(optimistic)

	updated, err := s.api.ReleaseFunds(ctx, s.dealID)
	if err != nil {
		s.rollback(original)
		s.notices.Toast(notice.LevelError, "Release Failed: "+errText(err, "Failed"))
		return fmt.Errorf("release funds: %w", err)
	}
	s.settle(ctx, updated)
	s.notices.Toast(notice.LevelSuccess, TextFundsReleased)
	return nil
}

// RequestCancel asks to cancel the deal, or confirms the cancellation the
// other party asked for.
func (s *Session) RequestCancel(ctx context.Context) error {
	s.mu.Lock()
	if s.action != "" {
		s.mu.Unlock()
		return domain.ErrActionInProgress
	}
	if s.user == nil {
		s.mu.Unlock()
		return domain.ErrActionNotAllowed
	}
	allowed, confirming := CancelAction(s.deal, s.user.ID)
	if !allowed {
		s.mu.Unlock()
		return domain.ErrActionNotAllowed
	}
	status := domain.DealCanceled
	if !confirming {
		status = domain.CancelRequestedBy(s.deal.RoleOf(s.user.ID))
	}
	original, optimistic := s.begin(ActionCancel, status)
	s.mu.Unlock()
	s.publishDeal(optimistic)

	updated, err := s.api.CancelRequest(ctx, s.dealID)
	if err != nil {
		s.rollback(original)
		s.notices.Toast(notice.LevelError, "Action Failed: "+errText(err, "Failed"))
		return fmt.Errorf("cancel request: %w", err)
	}
	s.settle(ctx, updated)
	if confirming {
		s.notices.Toast(notice.LevelSuccess, TextCancelled)
	} else {
		s.notices.Toast(notice.LevelSuccess, TextCancelRequest)
	}
	return nil
}

// begin marks action in flight and applies the optimistic status. It must be
// called with mu held.
func (s *Session) begin(action string, status domain.DealStatus) (original, optimistic domain.Deal) {
	original = *s.deal
	optimistic = original
	optimistic.Status = status
	s.deal = &optimistic
	s.action = action
	s.logger.Info("deal action", zap.String("action", action), zap.String("status", string(status)))
	return original, optimistic
}

func (s *Session) rollback(original domain.Deal) {
	s.mu.Lock()
	s.deal = &original
	s.action = ""
	s.mu.Unlock()
	s.publishDeal(original)
}

func (s *Session) settle(ctx context.Context, updated *domain.Deal) {
	s.mu.Lock()
	if updated == nil {
		updated = s.deal
	}
	d := *updated
	s.deal = &d
	s.action = ""
	s.mu.Unlock()
	s.publishDeal(d)
	s.cacheDeal(ctx, &d)
}
