package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/watchlog/internal/model"
)

// PostgresUserRepo はPostgreSQLを使用したユーザーリポジトリ。
type PostgresUserRepo struct {
	db *sql.DB
}

// NewPostgresUserRepo はPostgresUserRepoを生成する。
func NewPostgresUserRepo(db *sql.DB) *PostgresUserRepo {
	return &PostgresUserRepo{db: db}
}

const userColumns = `id, chat_id, username, first_name, last_name, created_at, updated_at`

func scanUser(s rowScanner, u *model.User) error {
	var username, firstName, lastName sql.NullString
	if err := s.Scan(&u.ID, &u.ChatID, &username, &firstName, &lastName, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return err
	}
	u.Username = nullStringValue(username)
	u.FirstName = nullStringValue(firstName)
	u.LastName = nullStringValue(lastName)
	return nil
}

// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
func (r *PostgresUserRepo) FindByID(ctx context.Context, id int64) (*model.User, error) {
	user := &model.User{}
	err := scanUser(r.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = $1`,
		id,
	), user)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find user by ID: %w", err)
	}

	return user, nil
}

// FindByChatID はチャットIDでユーザーを取得する。見つからない場合はnilを返す。
func (r *PostgresUserRepo) FindByChatID(ctx context.Context, chatID string) (*model.User, error) {
	user := &model.User{}
	err := scanUser(r.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE chat_id = $1`,
		chatID,
	), user)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find user by chat ID: %w", err)
	}

	return user, nil
}

// InsertOrGet はユーザーを登録する。
// chat_idの一意制約に対してON CONFLICT DO NOTHINGで登録するため、
// 同じchat_idで同時に呼ばれても1行のみ作成され、既存行のプロフィールは上書きしない。
func (r *PostgresUserRepo) InsertOrGet(ctx context.Context, user *model.User) (*model.User, bool, error) {
	created := &model.User{}
	err := scanUser(r.db.QueryRowContext(ctx,
		`INSERT INTO users (chat_id, username, first_name, last_name)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (chat_id) DO NOTHING
		 RETURNING `+userColumns,
		user.ChatID, nullString(user.Username), nullString(user.FirstName), nullString(user.LastName),
	), created)

	if err == nil {
		return created, true, nil
	}
	if err != sql.ErrNoRows {
		return nil, false, fmt.Errorf("failed to insert user: %w", err)
	}

	existing, err := r.FindByChatID(ctx, user.ChatID)
	if err != nil {
		return nil, false, err
	}
	if existing == nil {
		return nil, false, fmt.Errorf("conflicting user not found: chat_id=%s", user.ChatID)
	}
	return existing, false, nil
}

// compile-time interface check
var _ UserRepository = (*PostgresUserRepo)(nil)
