package repository

import (
	"context"
	"database/sql"
	"fmt"
)

// PostgresDialogueSessionRepo はチャット対話セッションをPostgreSQLに保存するリポジトリ。
type PostgresDialogueSessionRepo struct {
	db *sql.DB
}

// NewPostgresDialogueSessionRepo はPostgresDialogueSessionRepoを生成する。
func NewPostgresDialogueSessionRepo(db *sql.DB) *PostgresDialogueSessionRepo {
	return &PostgresDialogueSessionRepo{db: db}
}

// Load はチャットIDのセッションを取得する。
func (r *PostgresDialogueSessionRepo) Load(ctx context.Context, chatID string) (string, []byte, bool, error) {
	var state string
	var payload []byte
	err := r.db.QueryRowContext(ctx,
		`SELECT state, payload FROM dialogue_sessions WHERE chat_id = $1`,
		chatID,
	).Scan(&state, &payload)
	if err == sql.ErrNoRows {
		return "", nil, false, nil
	}
	if err != nil {
		return "", nil, false, fmt.Errorf("対話セッションの取得に失敗しました: %w", err)
	}
	return state, payload, true, nil
}

// Save はセッションを保存する。既存のセッションは上書きする。
func (r *PostgresDialogueSessionRepo) Save(ctx context.Context, chatID, state string, payload []byte) error {
	if len(payload) == 0 {
		payload = []byte("{}")
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO dialogue_sessions (chat_id, state, payload, updated_at)
		 VALUES ($1, $2, $3, NOW())
		 ON CONFLICT (chat_id) DO UPDATE
		 SET state = EXCLUDED.state, payload = EXCLUDED.payload, updated_at = NOW()`,
		chatID, state, payload,
	)
	if err != nil {
		return fmt.Errorf("対話セッションの保存に失敗しました: %w", err)
	}
	return nil
}

// Delete はセッションを削除する。
func (r *PostgresDialogueSessionRepo) Delete(ctx context.Context, chatID string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM dialogue_sessions WHERE chat_id = $1`, chatID); err != nil {
		return fmt.Errorf("対話セッションの削除に失敗しました: %w", err)
	}
	return nil
}

// compile-time interface check
var _ DialogueSessionRepository = (*PostgresDialogueSessionRepo)(nil)
