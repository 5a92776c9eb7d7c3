package handlers

import (
	"net/http"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"keygate/internal/models"
)

// AuditLogs returns recent lifecycle events, most recent first. The
// console filters by license or device with query params.
func AuditLogs(db *gorm.DB, lg *zap.SugaredLogger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := db.Order("created_at desc").Limit(200)
		if lid := r.URL.Query().Get("license_id"); lid != "" {
			q = q.Where("license_id = ?", lid)
		}
		if did := r.URL.Query().Get("device_id"); did != "" {
			q = q.Where("device_id = ?", did)
		}
		if action := r.URL.Query().Get("action"); action != "" {
			q = q.Where("action = ?", action)
		}
		var logs []models.AuditLog
		_ = q.Find(&logs).Error
		respondJSON(w, logs)
	}
}
