package model

import (
	"time"

	"github.com/google/uuid"
)

// Actor is the authenticated caller of a service operation
type Actor struct {
	ID   uuid.UUID
	Role Role
}

func (a Actor) IsAdmin() bool { return a.Role == RoleAdmin }

type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

type RefreshTokenRequest struct {
	RefreshToken string `json:"refresh_token" binding:"required"`
}

type VerifyEmailRequest struct {
	Token string `json:"token" binding:"required"`
}

type TokenResponse struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	TokenType    string    `json:"token_type"`
	ExpiresAt    time.Time `json:"expires_at"`
	User         *User     `json:"user,omitempty"`
}

// LoginLog is one successful login (log_ingresos)
type LoginLog struct {
	ID        uuid.UUID `json:"id" db:"id"`
	UsuarioID uuid.UUID `json:"usuario_id" db:"usuario_id"`
	Email     string    `json:"email" db:"email"`
	Nombre    string    `json:"nombre" db:"nombre"`
	Apellido  string    `json:"apellido" db:"apellido"`
	Role      Role      `json:"role" db:"role"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}
