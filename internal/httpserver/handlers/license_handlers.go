package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"keygate/internal/auth"
	"keygate/internal/license"
	"keygate/internal/models"
)

func CreateLicense(svc *license.Service, lg *zap.SugaredLogger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Key          string `json:"key"`
			DurationDays int    `json:"duration_days"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondError(w, http.StatusBadRequest, "bad_request", err.Error())
			return
		}
		req.Key = strings.TrimSpace(req.Key)
		if req.Key == "" {
			respondError(w, http.StatusBadRequest, "missing_fields", "key required")
			return
		}
		if req.DurationDays == 0 {
			req.DurationDays = 7
		}
		adminID := auth.Subject(r.Context())
		l, err := svc.CreateLicense(req.Key, req.DurationDays, adminID)
		if err != nil {
			if errors.Is(err, license.ErrDuplicateKey) {
				respondError(w, http.StatusBadRequest, "duplicate_key", "license key already exists")
				return
			}
			lg.Errorw("license create failed", "key", req.Key, "error", err)
			respondError(w, http.StatusInternalServerError, "internal_error", "internal server error")
			return
		}
		respondJSON(w, l)
	}
}

func ListLicenses(db *gorm.DB, lg *zap.SugaredLogger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var ls []models.License
		q := db.Order("created_at desc")
		if status := r.URL.Query().Get("status"); status != "" {
			q = q.Where("status = ?", status)
		}
		_ = q.Find(&ls).Error
		respondJSON(w, ls)
	}
}

func GetLicense(db *gorm.DB, lg *zap.SugaredLogger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		var l models.License
		if err := db.First(&l, "id = ?", id).Error; err != nil {
			respondError(w, http.StatusNotFound, "not_found", "not found")
			return
		}
		var devices []models.Device
		_ = db.Where("license_id = ?", l.ID).Order("registered_at asc").Find(&devices).Error
		respondJSON(w, map[string]any{"license": l, "devices": devices})
	}
}

func RevokeLicense(svc *license.Service, lg *zap.SugaredLogger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		adminID := auth.Subject(r.Context())
		l, err := svc.RevokeLicense(r.Context(), id, adminID)
		if err != nil {
			if errors.Is(err, license.ErrLicenseNotFound) {
				respondError(w, http.StatusNotFound, "not_found", "not found")
				return
			}
			lg.Errorw("license revoke failed", "license_id", id, "error", err)
			respondError(w, http.StatusInternalServerError, "internal_error", "internal server error")
			return
		}
		respondJSON(w, l)
	}
}
