package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// License status values. Transitions are one-way: active licenses may
// become expired or revoked; expired and revoked are terminal.
const (
	StatusActive  = "active"
	StatusExpired = "expired"
	StatusRevoked = "revoked"
)

type Role struct {
	ID   int    `gorm:"primaryKey;autoIncrement" json:"id"`
	Name string `gorm:"uniqueIndex;not null" json:"name"`
}

type AdminUser struct {
	ID           string     `gorm:"type:uuid;primaryKey" json:"id"`
	Email        string     `gorm:"uniqueIndex;not null" json:"email"`
	PasswordHash string     `gorm:"not null" json:"-"`
	IsActive     bool       `gorm:"not null;default:true" json:"is_active"`
	Roles        []Role     `gorm:"many2many:admin_user_roles" json:"roles"`
	LastLogin    *time.Time `json:"last_login,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

func (u *AdminUser) BeforeCreate(tx *gorm.DB) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	return nil
}

type Session struct {
	JTI       string     `gorm:"primaryKey;size:64" json:"jti"`
	AdminID   string     `gorm:"type:uuid;index;not null" json:"admin_id"`
	ExpiresAt time.Time  `gorm:"not null" json:"expires_at"`
	RevokedAt *time.Time `json:"revoked_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

// License is an issued entitlement identified by an opaque key.
// Rows are never deleted; revocation and expiry are recorded in place.
type License struct {
	ID        string     `gorm:"type:uuid;primaryKey" json:"id"`
	Key       string     `gorm:"uniqueIndex;not null" json:"key"`
	Status    string     `gorm:"not null;default:active" json:"status"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
	RevokedAt *time.Time `json:"revoked_at,omitempty"`
	CreatedBy *string    `gorm:"type:uuid" json:"created_by,omitempty"`
	RevokedBy *string    `gorm:"type:uuid" json:"revoked_by,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

func (l *License) BeforeCreate(tx *gorm.DB) error {
	if l.ID == "" {
		l.ID = uuid.NewString()
	}
	return nil
}

// IsExpired reports whether the expiry timestamp has passed. It does not
// consult Status; callers use it to drive the lazy active->expired move.
func (l *License) IsExpired(now time.Time) bool {
	return l.ExpiresAt != nil && now.After(*l.ExpiresAt)
}

// Device is a registered client bound to exactly one license. The unique
// index on DeviceID makes concurrent first activations for the same
// identifier collapse to a single binding.
type Device struct {
	ID            string     `gorm:"type:uuid;primaryKey" json:"id"`
	DeviceID      string     `gorm:"uniqueIndex;not null" json:"device_id"`
	LicenseID     string     `gorm:"type:uuid;index;not null" json:"license_id"`
	DeviceInfo    string     `json:"device_info,omitempty"`
	FCMToken      string     `gorm:"size:255" json:"fcm_token,omitempty"`
	RegisteredAt  time.Time  `json:"registered_at"`
	LastValidated *time.Time `json:"last_validated,omitempty"`
}

func (d *Device) BeforeCreate(tx *gorm.DB) error {
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	return nil
}

type AuditLog struct {
	ID        int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	Action    string    `gorm:"not null" json:"action"`
	Detail    string    `json:"detail,omitempty"`
	LicenseID *string   `gorm:"type:uuid" json:"license_id,omitempty"`
	DeviceID  *string   `json:"device_id,omitempty"`
	AdminID   *string   `gorm:"type:uuid" json:"admin_id,omitempty"`
	Metadata  JSONB     `gorm:"type:jsonb;default:'{}'" json:"metadata"`
	CreatedAt time.Time `json:"created_at"`
}
