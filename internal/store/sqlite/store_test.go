package sqlite_test

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"medius/internal/domain"
	"medius/internal/security"
	"medius/internal/store/sqlite"
)

func openDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sqlite.Open(filepath.Join(t.TempDir(), "cache.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, sqlite.Migrate(db))
	require.NoError(t, sqlite.Migrate(db), "migrations must be idempotent")
	return db
}

func newCipher(t *testing.T) *security.Encryptor {
	t.Helper()
	enc, err := security.NewEncryptor([]byte("test-key"))
	require.NoError(t, err)
	return enc
}

func TestDraftRepo(t *testing.T) {
	ctx := context.Background()
	db := openDB(t)
	repo := sqlite.NewDraftRepo(db, newCipher(t))

	got, err := repo.GetDraft(ctx, "deal-1")
	require.NoError(t, err)
	assert.Empty(t, got)

	require.NoError(t, repo.SaveDraft(ctx, "deal-1", "  half written "))
	require.NoError(t, repo.SaveDraft(ctx, "deal-1", "  fully written "))
	got, err = repo.GetDraft(ctx, "deal-1")
	require.NoError(t, err)
	assert.Equal(t, "  fully written ", got)

	var stored string
	require.NoError(t, db.QueryRow(`SELECT content FROM drafts WHERE deal_id = ?`, "deal-1").Scan(&stored))
	assert.NotContains(t, stored, "written", "drafts are encrypted at rest")

	require.NoError(t, repo.SaveDraft(ctx, "deal-1", ""))
	got, err = repo.GetDraft(ctx, "deal-1")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestCacheRepoDeal(t *testing.T) {
	ctx := context.Background()
	repo := sqlite.NewCacheRepo(openDB(t), newCipher(t))

	_, err := repo.GetDeal(ctx, "D-1")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	usd := 1500.0
	d := &domain.Deal{ID: "deal-1", DealID: "D-1", Title: "Logo design", Status: domain.DealFunded, USDValue: &usd}
	require.NoError(t, repo.SaveDeal(ctx, "D-1", d))
	d.Status = domain.DealCompleted
	require.NoError(t, repo.SaveDeal(ctx, "D-1", d))

	got, err := repo.GetDeal(ctx, "D-1")
	require.NoError(t, err)
	assert.Equal(t, "deal-1", got.ID)
	assert.Equal(t, domain.DealCompleted, got.Status)
	require.NotNil(t, got.USDValue)
	assert.Equal(t, usd, *got.USDValue)

	_, err = repo.GetDeal(ctx, "deal-1")
	assert.ErrorIs(t, err, domain.ErrNotFound, "stored under the route reference only")
}

func TestCacheRepoMessages(t *testing.T) {
	ctx := context.Background()
	repo := sqlite.NewCacheRepo(openDB(t), newCipher(t))
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	var msgs []domain.ChatMessage
	for i := 0; i < 5; i++ {
		msgs = append(msgs, domain.ChatMessage{
			ID:        fmt.Sprintf("m%d", i),
			SenderID:  "u1",
			Message:   fmt.Sprintf("hello %d", i),
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
			Type:      domain.MessageUser,
		})
	}
	msgs = append(msgs, domain.ChatMessage{ID: "temp-x", Message: "pending", Pending: true, CreatedAt: base.Add(time.Hour)})

	require.NoError(t, repo.SaveMessages(ctx, "deal-1", msgs))
	require.NoError(t, repo.SaveMessages(ctx, "deal-1", msgs[:2]))

	all, err := repo.ListMessages(ctx, "deal-1", 0)
	require.NoError(t, err)
	require.Len(t, all, 5)
	assert.Equal(t, "m0", all[0].ID)
	assert.Equal(t, "m4", all[4].ID)
	assert.True(t, base.Equal(all[0].CreatedAt))

	latest, err := repo.ListMessages(ctx, "deal-1", 2)
	require.NoError(t, err)
	require.Len(t, latest, 2)
	assert.Equal(t, []string{"m3", "m4"}, []string{latest[0].ID, latest[1].ID})

	require.NoError(t, repo.PruneOld(ctx, "deal-1", 3))
	kept, err := repo.ListMessages(ctx, "deal-1", 0)
	require.NoError(t, err)
	require.Len(t, kept, 3)
	assert.Equal(t, "m2", kept[0].ID)

	other, err := repo.ListMessages(ctx, "deal-2", 0)
	require.NoError(t, err)
	assert.Empty(t, other)
}
