package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"keygate/internal/auth"
	"keygate/internal/license"
	"keygate/internal/models"
)

func ListDevices(db *gorm.DB, lg *zap.SugaredLogger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var ds []models.Device
		q := db.Order("registered_at desc")
		if lid := r.URL.Query().Get("license_id"); lid != "" {
			q = q.Where("license_id = ?", lid)
		}
		_ = q.Find(&ds).Error
		respondJSON(w, ds)
	}
}

// NotifyDevice pushes an admin message to one device. Delivery is
// best-effort; "delivered": false with a 200 means the device has no
// push address or FCM rejected the send.
func NotifyDevice(svc *license.Service, lg *zap.SugaredLogger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		deviceID := chi.URLParam(r, "device_id")
		var req struct {
			Title   string `json:"title"`
			Message string `json:"message"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondError(w, http.StatusBadRequest, "bad_request", err.Error())
			return
		}
		req.Title = strings.TrimSpace(req.Title)
		if req.Title == "" || req.Message == "" {
			respondError(w, http.StatusBadRequest, "missing_fields", "title and message required")
			return
		}
		adminID := auth.Subject(r.Context())
		delivered, err := svc.NotifyDevice(r.Context(), deviceID, adminID, req.Title, req.Message)
		if err != nil {
			if errors.Is(err, license.ErrDeviceNotFound) {
				respondError(w, http.StatusNotFound, "not_found", "not found")
				return
			}
			lg.Errorw("device notify failed", "device_id", deviceID, "error", err)
			respondError(w, http.StatusInternalServerError, "internal_error", "internal server error")
			return
		}
		respondJSON(w, map[string]any{"delivered": delivered})
	}
}

// SendExpiryWarnings sweeps active licenses expiring within the window
// and pushes a warning to their devices.
func SendExpiryWarnings(svc *license.Service, lg *zap.SugaredLogger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			WithinDays int `json:"within_days"`
		}
		// empty body means the default window
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			respondError(w, http.StatusBadRequest, "bad_request", err.Error())
			return
		}
		sum, err := svc.SendExpiryWarnings(r.Context(), req.WithinDays)
		if err != nil {
			lg.Errorw("expiry warning sweep failed", "error", err)
			respondError(w, http.StatusInternalServerError, "internal_error", "internal server error")
			return
		}
		respondJSON(w, sum)
	}
}
