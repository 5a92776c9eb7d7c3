package license

import (
	"errors"
	"time"

	"gorm.io/gorm"

	"keygate/internal/models"
)

// Store owns license rows and their lifecycle state.
type Store struct {
	db *gorm.DB
}

func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

func (s *Store) FindByKey(key string) (*models.License, error) {
	var l models.License
	if err := s.db.First(&l, "key = ?", key).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrLicenseNotFound
		}
		return nil, err
	}
	return &l, nil
}

func (s *Store) FindByID(id string) (*models.License, error) {
	var l models.License
	if err := s.db.First(&l, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrLicenseNotFound
		}
		return nil, err
	}
	return &l, nil
}

// Create issues a license with the caller-supplied key. Keys are opaque;
// no generation scheme lives here.
func (s *Store) Create(key string, durationDays int, creatorID string) (*models.License, error) {
	var count int64
	if err := s.db.Model(&models.License{}).Where("key = ?", key).Count(&count).Error; err != nil {
		return nil, err
	}
	if count > 0 {
		return nil, ErrDuplicateKey
	}
	l := models.License{
		Key:       key,
		Status:    models.StatusActive,
		CreatedAt: time.Now(),
	}
	if creatorID != "" {
		l.CreatedBy = &creatorID
	}
	if durationDays > 0 {
		exp := time.Now().AddDate(0, 0, durationDays)
		l.ExpiresAt = &exp
	}
	if err := s.db.Create(&l).Error; err != nil {
		return nil, err
	}
	return &l, nil
}

// Revoke moves a license to revoked. Revoking an already-revoked license
// is a no-op: revoked_at and revoked_by keep their first values.
func (s *Store) Revoke(id, revokerID string) (*models.License, error) {
	l, err := s.FindByID(id)
	if err != nil {
		return nil, err
	}
	if l.Status == models.StatusRevoked {
		return l, nil
	}
	now := time.Now()
	l.Status = models.StatusRevoked
	l.RevokedAt = &now
	if revokerID != "" {
		l.RevokedBy = &revokerID
	}
	if err := s.db.Model(l).Updates(map[string]any{
		"status":     l.Status,
		"revoked_at": l.RevokedAt,
		"revoked_by": l.RevokedBy,
	}).Error; err != nil {
		return nil, err
	}
	return l, nil
}

// CheckAndLazilyExpire persists the active->expired transition when the
// expiry timestamp has passed. Every activation and validation path goes
// through here so an overdue license is never treated as active; the
// write happens even when the surrounding call is about to fail.
func (s *Store) CheckAndLazilyExpire(l *models.License) (*models.License, error) {
	if l.Status != models.StatusActive || !l.IsExpired(time.Now()) {
		return l, nil
	}
	l.Status = models.StatusExpired
	if err := s.db.Model(l).Update("status", models.StatusExpired).Error; err != nil {
		return nil, err
	}
	return l, nil
}

// ExpiringWithin lists active licenses whose expiry falls inside the
// window. Used by the expiry-warning sweep.
func (s *Store) ExpiringWithin(days int) ([]models.License, error) {
	now := time.Now()
	until := now.AddDate(0, 0, days)
	var ls []models.License
	err := s.db.
		Where("status = ?", models.StatusActive).
		Where("expires_at IS NOT NULL AND expires_at > ? AND expires_at <= ?", now, until).
		Order("expires_at asc").
		Find(&ls).Error
	return ls, err
}
