package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"slices"

	"medius/internal/domain"
)

// CacheRepo keeps the last known deal and its confirmed messages so a deal
// can be shown when the API is unreachable.
type CacheRepo struct {
	db     *sql.DB
	cipher Cipher
}

func NewCacheRepo(db *sql.DB, cipher Cipher) *CacheRepo {
	return &CacheRepo{db: db, cipher: cipher}
}

var _ domain.CacheRepository = (*CacheRepo)(nil)

// SaveDeal stores d under the deal reference it is looked up by, which is not
// necessarily d.ID.
func (r *CacheRepo) SaveDeal(ctx context.Context, dealID string, d *domain.Deal) error {
	enc, err := r.seal(d)
	if err != nil {
		return fmt.Errorf("seal deal: %w", err)
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO deals (deal_id, payload, updated_at)
		VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(deal_id) DO UPDATE SET payload = excluded.payload, updated_at = CURRENT_TIMESTAMP
	`, dealID, enc)
	if err != nil {
		return fmt.Errorf("save deal: %w", err)
	}
	return nil
}

func (r *CacheRepo) GetDeal(ctx context.Context, dealID string) (*domain.Deal, error) {
	var enc string
	err := r.db.QueryRowContext(ctx, `SELECT payload FROM deals WHERE deal_id = ?`, dealID).Scan(&enc)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get deal: %w", err)
	}
	var d domain.Deal
	if err := r.open(enc, &d); err != nil {
		return nil, fmt.Errorf("open deal: %w", err)
	}
	return &d, nil
}

// SaveMessages upserts confirmed messages. Pending placeholders are skipped.
func (r *CacheRepo) SaveMessages(ctx context.Context, dealID string, msgs []domain.ChatMessage) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO messages (deal_id, id, payload, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(deal_id, id) DO UPDATE SET payload = excluded.payload, created_at = excluded.created_at
	`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for i := range msgs {
		m := msgs[i]
		if m.Pending || m.ID == "" {
			continue
		}
		enc, err := r.seal(m)
		if err != nil {
			return fmt.Errorf("seal message %s: %w", m.ID, err)
		}
		if _, err := stmt.ExecContext(ctx, dealID, m.ID, enc, m.CreatedAt.UnixNano()); err != nil {
			return fmt.Errorf("insert message %s: %w", m.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit messages: %w", err)
	}
	return nil
}

// ListMessages returns the newest limit messages in chronological order.
// A limit <= 0 returns all of them.
func (r *CacheRepo) ListMessages(ctx context.Context, dealID string, limit int) ([]domain.ChatMessage, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT payload
		FROM messages
		WHERE deal_id = ?
		ORDER BY created_at DESC, id DESC
		LIMIT ?
	`, dealID, limit)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	var res []domain.ChatMessage
	for rows.Next() {
		var enc string
		if err := rows.Scan(&enc); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		var m domain.ChatMessage
		if err := r.open(enc, &m); err != nil {
			return nil, fmt.Errorf("open message: %w", err)
		}
		res = append(res, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}
	slices.Reverse(res)
	return res, nil
}

// PruneOld keeps only the newest keepLimit messages of the deal.
func (r *CacheRepo) PruneOld(ctx context.Context, dealID string, keepLimit int) error {
	var count int
	if err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM messages WHERE deal_id = ?
	`, dealID).Scan(&count); err != nil {
		return fmt.Errorf("count messages: %w", err)
	}

	if count <= keepLimit {
		return nil
	}

	_, err := r.db.ExecContext(ctx, `
		DELETE FROM messages
		WHERE deal_id = ? AND id IN (
			SELECT id FROM messages
			WHERE deal_id = ?
			ORDER BY created_at ASC, id ASC
			LIMIT ?
		)
	`, dealID, dealID, count-keepLimit)
	if err != nil {
		return fmt.Errorf("delete old messages: %w", err)
	}
	return nil
}

func (r *CacheRepo) seal(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return r.cipher.Encrypt(string(b))
}

func (r *CacheRepo) open(enc string, v any) error {
	plain, err := r.cipher.Decrypt(enc)
	if err != nil {
		return err
	}
	return json.Unmarshal([]byte(plain), v)
}
