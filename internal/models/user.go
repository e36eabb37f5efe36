package models

import (
	"time"

	"github.com/google/uuid"
)

const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// User описывает участника платформы. Роль admin даёт права платформы
// (разрешение споров); роль из токена никогда не используется для
// авторизации переходов — она перечитывается из базы.
type User struct {
	ID           uuid.UUID  `db:"id" json:"id"`
	Email        string     `db:"email" json:"email"`
	Username     string     `db:"username" json:"username"`
	PasswordHash string     `db:"password_hash" json:"-"`
	Role         string     `db:"role" json:"role"`
	IsActive     bool       `db:"is_active" json:"is_active"`
	LastLoginAt  *time.Time `db:"last_login_at" json:"last_login_at,omitempty"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time  `db:"updated_at" json:"updated_at"`
}

// Session представляет сохранённую сессию пользователя.
type Session struct {
	ID           uuid.UUID `db:"id" json:"id"`
	UserID       uuid.UUID `db:"user_id" json:"user_id"`
	RefreshToken string    `db:"refresh_token" json:"refresh_token"`
	UserAgent    *string   `db:"user_agent" json:"user_agent,omitempty"`
	IPAddress    *string   `db:"ip_address" json:"ip_address,omitempty"`
	ExpiresAt    time.Time `db:"expires_at" json:"expires_at"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}

// PayoutAccount — подключённый способ выплат продавца. Пока счёт не
// подключён, выплаты в его адрес завершаются ошибкой PAYEE_NOT_READY.
type PayoutAccount struct {
	UserID             uuid.UUID `db:"user_id" json:"user_id"`
	DestinationAccount string    `db:"destination_account" json:"destination_account"`
	BankName           *string   `db:"bank_name" json:"bank_name,omitempty"`
	ConnectedAt        time.Time `db:"connected_at" json:"connected_at"`
}
