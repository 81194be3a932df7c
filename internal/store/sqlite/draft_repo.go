package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"medius/internal/domain"
)

type DraftRepo struct {
	db     *sql.DB
	cipher Cipher
}

func NewDraftRepo(db *sql.DB, cipher Cipher) *DraftRepo {
	return &DraftRepo{db: db, cipher: cipher}
}

var _ domain.DraftRepository = (*DraftRepo)(nil)

// SaveDraft stores content for the deal. Empty content removes the draft.
func (r *DraftRepo) SaveDraft(ctx context.Context, dealID, content string) error {
	if content == "" {
		return r.DeleteDraft(ctx, dealID)
	}
	enc, err := r.cipher.Encrypt(content)
	if err != nil {
		return fmt.Errorf("encrypt draft: %w", err)
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO drafts (deal_id, content, updated_at)
		VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(deal_id) DO UPDATE SET content = excluded.content, updated_at = CURRENT_TIMESTAMP
	`, dealID, enc)
	if err != nil {
		return fmt.Errorf("save draft: %w", err)
	}
	return nil
}

// GetDraft returns the saved draft, or "" when there is none.
func (r *DraftRepo) GetDraft(ctx context.Context, dealID string) (string, error) {
	var enc string
	err := r.db.QueryRowContext(ctx, `SELECT content FROM drafts WHERE deal_id = ?`, dealID).Scan(&enc)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get draft: %w", err)
	}
	plain, err := r.cipher.Decrypt(enc)
	if err != nil {
		return "", fmt.Errorf("decrypt draft: %w", err)
	}
	return plain, nil
}

func (r *DraftRepo) DeleteDraft(ctx context.Context, dealID string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM drafts WHERE deal_id = ?`, dealID); err != nil {
		return fmt.Errorf("delete draft: %w", err)
	}
	return nil
}
