package model

import "time"

// User はチャットプラットフォーム経由で利用するユーザーを表す。
// ChatIDは外部チャットプラットフォームのIDで、一度割り当てられたら変更しない。
type User struct {
	ID        int64
	ChatID    string
	Username  string
	FirstName string
	LastName  string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// UserProfile はチャットプラットフォームから得られる表示名のヒントを表す。
// すべてのフィールドは任意。
type UserProfile struct {
	Username  string
	FirstName string
	LastName  string
}
