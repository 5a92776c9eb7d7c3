package handlers

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"keygate/internal/auth"
	"keygate/internal/models"
)

type loginReq struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func Login(db *gorm.DB, signer *auth.Signer, lg *zap.SugaredLogger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req loginReq
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondError(w, http.StatusBadRequest, "bad_request", err.Error())
			return
		}
		var u models.AdminUser
		if err := db.Preload("Roles").First(&u, "email = ?", strings.ToLower(req.Email)).Error; err != nil {
			respondError(w, http.StatusUnauthorized, "invalid_credentials", "invalid credentials")
			return
		}
		if !u.IsActive {
			respondError(w, http.StatusUnauthorized, "invalid_credentials", "invalid credentials")
			return
		}
		if err := auth.CheckPassword(u.PasswordHash, req.Password); err != nil {
			respondError(w, http.StatusUnauthorized, "invalid_credentials", "invalid credentials")
			return
		}
		var roleNames []string
		for _, role := range u.Roles {
			roleNames = append(roleNames, role.Name)
		}
		jti := uuid.NewString()
		sess := models.Session{
			JTI:       jti,
			AdminID:   u.ID,
			ExpiresAt: time.Now().Add(signer.TTL()),
			CreatedAt: time.Now(),
		}
		if err := db.Create(&sess).Error; err != nil {
			lg.Errorw("session create failed", "admin_id", u.ID, "error", err)
			respondError(w, http.StatusInternalServerError, "internal_error", "internal server error")
			return
		}
		tok, err := signer.Sign(u.ID, jti, roleNames)
		if err != nil {
			respondError(w, http.StatusInternalServerError, "internal_error", "internal server error")
			return
		}
		now := time.Now()
		_ = db.Model(&u).Update("last_login", &now).Error
		respondJSON(w, map[string]any{"token": tok})
	}
}

func Logout(db *gorm.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		jti := auth.FromContext(r.Context()).JWTID
		now := time.Now()
		_ = db.Model(&models.Session{}).Where("jti = ?", jti).Update("revoked_at", &now).Error
		respondJSON(w, map[string]any{"logged_out": true})
	}
}

func Me(db *gorm.DB, lg *zap.SugaredLogger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sub := auth.Subject(r.Context())
		var u models.AdminUser
		if err := db.Preload("Roles").First(&u, "id = ?", sub).Error; err != nil {
			respondError(w, http.StatusNotFound, "not_found", "not found")
			return
		}
		respondJSON(w, map[string]any{
			"id": u.ID, "email": u.Email, "roles": u.Roles, "is_active": u.IsActive,
		})
	}
}

func ChangePassword(db *gorm.DB, lg *zap.SugaredLogger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Current string `json:"current_password"`
			New     string `json:"new_password"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondError(w, http.StatusBadRequest, "bad_request", err.Error())
			return
		}
		if req.New == "" {
			respondError(w, http.StatusBadRequest, "missing_fields", "new_password required")
			return
		}
		sub := auth.Subject(r.Context())
		var u models.AdminUser
		if err := db.First(&u, "id = ?", sub).Error; err != nil {
			respondError(w, http.StatusNotFound, "not_found", "not found")
			return
		}
		if err := auth.CheckPassword(u.PasswordHash, req.Current); err != nil {
			respondError(w, http.StatusUnauthorized, "invalid_credentials", "invalid credentials")
			return
		}
		hash, err := auth.HashPassword(req.New)
		if err != nil {
			respondError(w, http.StatusInternalServerError, "internal_error", "internal server error")
			return
		}
		if err := db.Model(&u).Updates(map[string]any{"password_hash": hash, "updated_at": time.Now()}).Error; err != nil {
			respondError(w, http.StatusInternalServerError, "internal_error", "internal server error")
			return
		}
		respondJSON(w, map[string]any{"updated": true})
	}
}
