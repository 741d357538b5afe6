package models

import (
	"time"

	"github.com/oklog/ulid/v2"
	"gorm.io/gorm"
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

// User is an account registered with the local identity provider
type User struct {
	BaseModel
	Email        string `json:"email" gorm:"uniqueIndex;not null"`
	PasswordHash string `json:"-" gorm:"not null"`
}

// Profile carries the authorization role of a user. Users without a
// profile row get the default role.
type Profile struct {
	ID        string    `json:"id" gorm:"primaryKey;type:varchar(26)"` // Same as User.ID
	Role      string    `json:"role" gorm:"not null"`
	UpdatedAt time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

// Session is a signed-in device. The refresh token itself is never stored,
// only its SHA-256 digest.
type Session struct {
	BaseModel
	UserID      string    `json:"user_id" gorm:"index;type:varchar(26);not null"`
	RefreshHash string    `json:"-" gorm:"uniqueIndex;type:varchar(64);not null"`
	ExpiresAt   time.Time `json:"expires_at" gorm:"index;not null"`
	LastSeenAt  time.Time `json:"last_seen_at"`

	User User `json:"-" gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE"`
}

// Expired reports whether the session can no longer be refreshed
func (s *Session) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// AutoMigrate runs database migrations for all models
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(&User{}, &Profile{}, &Session{})
}

// FindByID safely finds a record by string ID
func FindByID[T any](db *gorm.DB, id string, model *T) error {
	return db.Where("id = ?", id).First(model).Error
}
