package license

import (
	"encoding/json"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"keygate/internal/models"
)

// Audit action tags.
const (
	ActionLicenseCreated   = "license_created"
	ActionLicenseActivated = "license_activated"
	ActionLicenseRevoked   = "license_revoked"
	ActionLicenseExpired   = "license_expired"
	ActionAdminNotify      = "admin_notification"
)

// Recorder appends lifecycle events to the audit log. Appends are
// best-effort and run outside the caller's transaction: a failed audit
// write is logged and swallowed, never propagated into license logic.
type Recorder struct {
	db *gorm.DB
	lg *zap.SugaredLogger
}

func NewRecorder(db *gorm.DB, lg *zap.SugaredLogger) *Recorder {
	return &Recorder{db: db, lg: lg}
}

type AuditRefs struct {
	LicenseID *string
	DeviceID  *string
	AdminID   *string
}

func (r *Recorder) Append(action, detail string, refs AuditRefs, metadata map[string]any) {
	entry := models.AuditLog{
		Action:    action,
		Detail:    detail,
		LicenseID: refs.LicenseID,
		DeviceID:  refs.DeviceID,
		AdminID:   refs.AdminID,
		CreatedAt: time.Now(),
	}
	if metadata != nil {
		if md, err := json.Marshal(metadata); err == nil {
			entry.Metadata = models.JSONB(md)
		}
	}
	if err := r.db.Create(&entry).Error; err != nil {
		r.lg.Warnw("audit append failed", "action", action, "error", err)
	}
}
