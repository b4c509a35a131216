package models

import (
	"time"

	"github.com/oklog/ulid/v2"
	"gorm.io/gorm"
)

// User roles
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// Run modes control which console surfaces a user sees
const (
	RunModeStandard = "standard"
	RunModeSimple   = "simple"
)

// BaseModel provides common fields and auto-generated ULID for all models
type BaseModel struct {
	ID        string    `json:"id" gorm:"primaryKey;type:varchar(26)"`
	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
}

// BeforeCreate generates a ULID for the ID field if it's empty
func (b *BaseModel) BeforeCreate(tx *gorm.DB) error {
	if b.ID == "" {
		b.ID = ulid.Make().String()
	}
	return nil
}

// Config represents the global configuration for the single-tenant deployment
// This is a singleton model (only one row should exist)
type Config struct {
	BaseModel
	// Authentication configuration
	JWTSecret string `json:"-" gorm:"type:varchar(64);not null"` // Auto-generated on first setup (64 hex chars)

	// Access token lifetime in minutes
	TokenTTLMinutes int `json:"token_ttl_minutes" gorm:"not null;default:1440"`

	// Registration policy
	RegistrationOpen bool `json:"registration_open" gorm:"not null;default:true"`
	InviteRequired   bool `json:"invite_required" gorm:"not null;default:false"`
	InviteCode       string `json:"-"` // Shared invite code when InviteRequired is set
}

// User represents a console account
type User struct {
	BaseModel
	Email        string `json:"email" gorm:"uniqueIndex;not null"`
	Username     string `json:"username" gorm:"uniqueIndex;not null"`
	PasswordHash string `json:"-" gorm:"not null"`

	Role    string `json:"role" gorm:"not null;default:user"`
	RunMode string `json:"run_mode" gorm:"not null;default:standard"`
	Status  string `json:"status" gorm:"not null;default:active"` // active, disabled

	// Subscription accounting, surfaced in the console dashboard
	Balance     float64 `json:"balance" gorm:"not null;default:0"`
	Concurrency int     `json:"concurrency" gorm:"not null;default:5"`

	// Two-factor authentication
	TOTPSecret    string `json:"-"`
	TOTPEnabled   bool   `json:"totp_enabled" gorm:"not null;default:false"`
	RecoveryCodes string `json:"-" gorm:"type:text"` // JSON array of unused recovery codes
}

// IsAdmin reports whether the user holds the admin role
func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin
}

// TwoFactorChallenge is the short-lived server-side record backing a
// pending 2FA step-up. The temp token is handed to the client after a
// correct password and consumed exactly once by /auth/2fa/verify.
type TwoFactorChallenge struct {
	BaseModel
	TempToken string    `json:"-" gorm:"uniqueIndex;not null;type:varchar(64)"`
	UserID    string    `json:"user_id" gorm:"not null;index"`
	ExpiresAt time.Time `json:"expires_at" gorm:"not null;index"`
}

// Expired reports whether the challenge is past its TTL
func (c *TwoFactorChallenge) Expired() bool {
	return time.Now().After(c.ExpiresAt)
}

// AutoMigrate runs database migrations for all models
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&Config{},
		&User{},
		&TwoFactorChallenge{},
	)
}
