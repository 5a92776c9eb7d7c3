package handlers

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"keygate/internal/auth"
	"keygate/internal/models"
)

func ListUsers(db *gorm.DB, lg *zap.SugaredLogger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var users []models.AdminUser
		_ = db.Preload("Roles").Order("created_at desc").Find(&users).Error
		respondJSON(w, users)
	}
}

func CreateUser(db *gorm.DB, lg *zap.SugaredLogger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Email, Password string
			Roles           []string
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondError(w, http.StatusBadRequest, "bad_request", err.Error())
			return
		}
		req.Email = strings.TrimSpace(strings.ToLower(req.Email))
		if req.Email == "" || req.Password == "" {
			respondError(w, http.StatusBadRequest, "missing_fields", "email/password required")
			return
		}
		hash, err := auth.HashPassword(req.Password)
		if err != nil {
			respondError(w, http.StatusInternalServerError, "internal_error", "internal server error")
			return
		}
		u := models.AdminUser{Email: req.Email, PasswordHash: hash, IsActive: true, CreatedAt: time.Now(), UpdatedAt: time.Now()}
		var roles []models.Role
		if len(req.Roles) > 0 {
			_ = db.Where("name IN ?", req.Roles).Find(&roles).Error
		}
		u.Roles = roles
		if err := db.Create(&u).Error; err != nil {
			respondError(w, http.StatusBadRequest, "bad_request", err.Error())
			return
		}
		respondJSON(w, map[string]any{"id": u.ID})
	}
}

func UpdateUser(db *gorm.DB, lg *zap.SugaredLogger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		var req struct {
			Email    *string
			IsActive *bool
			Password *string
			Roles    []string
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondError(w, http.StatusBadRequest, "bad_request", err.Error())
			return
		}
		var u models.AdminUser
		if err := db.Preload("Roles").First(&u, "id = ?", id).Error; err != nil {
			respondError(w, http.StatusNotFound, "not_found", "not found")
			return
		}
		if req.Email != nil {
			u.Email = strings.TrimSpace(strings.ToLower(*req.Email))
		}
		if req.IsActive != nil {
			u.IsActive = *req.IsActive
		}
		if req.Password != nil && *req.Password != "" {
			hash, err := auth.HashPassword(*req.Password)
			if err != nil {
				respondError(w, http.StatusInternalServerError, "internal_error", "internal server error")
				return
			}
			u.PasswordHash = hash
		}
		if req.Roles != nil {
			var roles []models.Role
			_ = db.Where("name IN ?", req.Roles).Find(&roles).Error
			_ = db.Model(&u).Association("Roles").Replace(roles)
		}
		u.UpdatedAt = time.Now()
		if err := db.Save(&u).Error; err != nil {
			respondError(w, http.StatusInternalServerError, "internal_error", "internal server error")
			return
		}
		respondJSON(w, map[string]any{"updated": true})
	}
}

func DeleteUser(db *gorm.DB, lg *zap.SugaredLogger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		if id == auth.Subject(r.Context()) {
			respondError(w, http.StatusBadRequest, "cannot_delete_self", "cannot delete own account")
			return
		}
		if err := db.Delete(&models.AdminUser{}, "id = ?", id).Error; err != nil {
			respondError(w, http.StatusInternalServerError, "internal_error", "internal server error")
			return
		}
		respondJSON(w, map[string]any{"deleted": true})
	}
}
