package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"keygate/internal/license"
)

type activateReq struct {
	LicenseKey string `json:"license_key"`
	DeviceID   string `json:"device_id"`
	DeviceInfo string `json:"device_info,omitempty"`
	FCMToken   string `json:"fcm_token,omitempty"`
}

// Activate handles POST /activate: bind the device to the license and
// hand out a token.
func Activate(svc *license.Service, lg *zap.SugaredLogger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req activateReq
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondError(w, http.StatusBadRequest, "bad_request", "malformed request body")
			return
		}
		req.LicenseKey = strings.TrimSpace(req.LicenseKey)
		req.DeviceID = strings.TrimSpace(req.DeviceID)
		if req.LicenseKey == "" || req.DeviceID == "" {
			respondError(w, http.StatusBadRequest, "missing_fields", "license_key and device_id are required")
			return
		}

		res, err := svc.Activate(req.LicenseKey, req.DeviceID, req.DeviceInfo, req.FCMToken)
		if err != nil {
			switch {
			case errors.Is(err, license.ErrLicenseNotFound):
				respondError(w, http.StatusNotFound, "invalid_license_key", "invalid license key")
			case errors.Is(err, license.ErrLicenseNotActive):
				respondError(w, http.StatusBadRequest, "license_not_active", "license is not active")
			case errors.Is(err, license.ErrLicenseExpired):
				respondError(w, http.StatusBadRequest, "license_expired", "license has expired")
			case errors.Is(err, license.ErrDeviceBoundElsewhere):
				respondError(w, http.StatusBadRequest, "device_bound_elsewhere", "device already registered with different license")
			default:
				lg.Errorw("activate failed", "device_id", req.DeviceID, "error", err)
				respondError(w, http.StatusInternalServerError, "internal_error", "internal server error")
			}
			return
		}

		respondJSON(w, map[string]any{
			"success":        true,
			"token":          res.Token,
			"license_status": res.Status,
			"expires_at":     isoTime(res.ExpiresAt),
		})
	}
}

// Validate handles POST /validate: the bearer token is the one issued at
// activation.
func Validate(svc *license.Service, lg *zap.SugaredLogger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		raw := ""
		if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
			raw = strings.TrimPrefix(h, "Bearer ")
		}

		res, err := svc.Validate(raw)
		if err != nil {
			switch {
			case errors.Is(err, license.ErrTokenMissing):
				respondError(w, http.StatusUnauthorized, "token_missing", "token is missing")
			case errors.Is(err, license.ErrTokenExpired):
				respondError(w, http.StatusUnauthorized, "token_expired", "token has expired")
			case errors.Is(err, license.ErrTokenInvalid):
				respondError(w, http.StatusUnauthorized, "token_invalid", "token is invalid")
			case errors.Is(err, license.ErrDeviceNotFound):
				respondError(w, http.StatusNotFound, "device_not_found", "device not found")
			case errors.Is(err, license.ErrLicenseNotFound):
				respondError(w, http.StatusNotFound, "license_not_found", "license not found")
			case errors.Is(err, license.ErrLicenseNotActive):
				respondStateConflict(w, "license_not_active", "license is not active", res.Status)
			case errors.Is(err, license.ErrLicenseExpired):
				respondStateConflict(w, "license_expired", "license has expired", res.Status)
			default:
				lg.Errorw("validate failed", "error", err)
				respondError(w, http.StatusInternalServerError, "internal_error", "internal server error")
			}
			return
		}

		respondJSON(w, map[string]any{
			"valid":          true,
			"license_status": res.Status,
			"expires_at":     isoTime(res.ExpiresAt),
			"days_remaining": res.DaysRemaining,
		})
	}
}

// respondStateConflict is the 400 shape for validate: the license exists
// but is no longer usable, and the caller wants to know its state.
func respondStateConflict(w http.ResponseWriter, code, msg, status string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusBadRequest)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg, "code": code, "license_status": status})
}

func isoTime(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.UTC().Format(time.RFC3339)
	return &s
}
