package chat_test

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"medius/internal/api"
	"medius/internal/chat"
	"medius/internal/domain"
)

func TestReleaseFundsRollsBackOnFailure(t *testing.T) {
	f := loaded(t, buyer, domain.DealFunded)
	release := make(chan struct{})
	f.api.On("ReleaseFunds", mock.Anything, "deal-1").
		Run(func(mock.Arguments) { <-release }).
		Return(nil, &api.Error{Status: http.StatusConflict, Message: "escrow locked"}).Once()

	done := make(chan error, 1)
	go func() { done <- f.session.ReleaseFunds(context.Background()) }()

	require.Eventually(t, func() bool {
		return f.session.Snapshot().Action == chat.ActionRelease
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, domain.DealCompleted, f.session.Deal().Status, "optimistic status")
	assert.ErrorIs(t, f.session.RequestCancel(context.Background()), domain.ErrActionInProgress)
	assert.ErrorIs(t, f.session.ReleaseFunds(context.Background()), domain.ErrActionInProgress)

	close(release)
	require.Error(t, <-done)

	assert.Equal(t, domain.DealFunded, f.session.Deal().Status)
	assert.Empty(t, f.session.Snapshot().Action)
	assert.Contains(t, f.bus.toasts(), "Release Failed: escrow locked")
	f.api.AssertExpectations(t)
}

func TestReleaseFundsAdoptsServerDeal(t *testing.T) {
	f := loaded(t, buyer, domain.DealPendingRelease)
	updated := testDeal(domain.DealCompleted)
	updated.EscrowAddress = "0xabc"
	f.api.On("ReleaseFunds", mock.Anything, "deal-1").Return(updated, nil).Once()

	require.NoError(t, f.session.ReleaseFunds(context.Background()))

	d := f.session.Deal()
	assert.Equal(t, domain.DealCompleted, d.Status)
	assert.Equal(t, "0xabc", d.EscrowAddress)
	assert.Contains(t, f.bus.toasts(), chat.TextFundsReleased)
}

func TestReleaseFundsOnlyForBuyerOnOpenDeals(t *testing.T) {
	f := loaded(t, seller, domain.DealFunded)
	assert.ErrorIs(t, f.session.ReleaseFunds(context.Background()), domain.ErrActionNotAllowed)

	f = loaded(t, buyer, domain.DealCreated)
	assert.ErrorIs(t, f.session.ReleaseFunds(context.Background()), domain.ErrActionNotAllowed)
	f.api.AssertNotCalled(t, "ReleaseFunds", mock.Anything, mock.Anything)
}

func TestRequestCancel(t *testing.T) {
	tests := []struct {
		name       string
		user       domain.User
		status     domain.DealStatus
		optimistic domain.DealStatus
		toast      string
	}{
		{"buyer requests", buyer, domain.DealFunded, domain.DealCancelRequestedBuyer, chat.TextCancelRequest},
		{"seller requests", seller, domain.DealInProgress, domain.DealCancelRequestedSeller, chat.TextCancelRequest},
		{"buyer confirms seller request", buyer, domain.DealCancelRequestedSeller, domain.DealCanceled, chat.TextCancelled},
		{"seller confirms buyer request", seller, domain.DealCancelRequestedBuyer, domain.DealCanceled, chat.TextCancelled},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := loaded(t, tt.user, tt.status)
			var seen domain.DealStatus
			f.api.On("CancelRequest", mock.Anything, "deal-1").
				Run(func(mock.Arguments) { seen = f.session.Deal().Status }).
				Return(testDeal(tt.optimistic), nil).Once()

			require.NoError(t, f.session.RequestCancel(context.Background()))

			assert.Equal(t, tt.optimistic, seen)
			assert.Equal(t, tt.optimistic, f.session.Deal().Status)
			assert.Contains(t, f.bus.toasts(), tt.toast)
		})
	}
}

func TestRequestCancelNotAllowed(t *testing.T) {
	for _, st := range []domain.DealStatus{domain.DealCompleted, domain.DealCanceled, domain.DealCancelRequestedBuyer} {
		f := loaded(t, buyer, st)
		assert.ErrorIs(t, f.session.RequestCancel(context.Background()), domain.ErrActionNotAllowed, string(st))
		f.api.AssertNotCalled(t, "CancelRequest", mock.Anything, mock.Anything)
	}
}

func TestRequestCancelRollsBack(t *testing.T) {
	f := loaded(t, seller, domain.DealFunded)
	f.api.On("CancelRequest", mock.Anything, "deal-1").
		Return(nil, &api.Error{Status: http.StatusInternalServerError}).Once()

	require.Error(t, f.session.RequestCancel(context.Background()))

	assert.Equal(t, domain.DealFunded, f.session.Deal().Status)
	assert.Contains(t, f.bus.toasts(), "Action Failed: Failed: 500")
}

func TestCancelAction(t *testing.T) {
	allowed, confirming := chat.CancelAction(testDeal(domain.DealCancelRequestedSeller), buyer.ID)
	assert.True(t, allowed)
	assert.True(t, confirming)

	allowed, _ = chat.CancelAction(testDeal(domain.DealCancelRequestedSeller), seller.ID)
	assert.False(t, allowed)

	allowed, _ = chat.CancelAction(nil, buyer.ID)
	assert.False(t, allowed)
}
