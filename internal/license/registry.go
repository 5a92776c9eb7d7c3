package license

import (
	"errors"
	"time"

	"gorm.io/gorm"

	"keygate/internal/models"
)

// Registry owns device rows. A device identifier binds to exactly one
// license at first activation and stays bound forever; there is no
// rebind or release.
type Registry struct {
	db *gorm.DB
}

func NewRegistry(db *gorm.DB) *Registry {
	return &Registry{db: db}
}

func (r *Registry) FindByDeviceID(deviceID string) (*models.Device, error) {
	var d models.Device
	if err := r.db.First(&d, "device_id = ?", deviceID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrDeviceNotFound
		}
		return nil, err
	}
	return &d, nil
}

// Bind registers a device against a license. The caller has already
// checked for an existing binding; the unique index on device_id is the
// backstop when two first activations race, so a constraint violation
// here means the other call won.
func (r *Registry) Bind(deviceID, licenseID, info, fcmToken string) (*models.Device, error) {
	d := models.Device{
		DeviceID:     deviceID,
		LicenseID:    licenseID,
		DeviceInfo:   info,
		FCMToken:     fcmToken,
		RegisteredAt: time.Now(),
	}
	if err := r.db.Create(&d).Error; err != nil {
		return nil, err
	}
	return &d, nil
}

// TouchValidation records a successful validation. A non-empty fcmToken
// refreshes the stored push address so revocation notices stay deliverable.
func (r *Registry) TouchValidation(d *models.Device, fcmToken string) error {
	now := time.Now()
	d.LastValidated = &now
	updates := map[string]any{"last_validated": d.LastValidated}
	if fcmToken != "" && fcmToken != d.FCMToken {
		d.FCMToken = fcmToken
		updates["fcm_token"] = fcmToken
	}
	return r.db.Model(d).Updates(updates).Error
}

// UpdatePushAddress refreshes a device's stored push address.
func (r *Registry) UpdatePushAddress(d *models.Device, fcmToken string) error {
	d.FCMToken = fcmToken
	return r.db.Model(d).Update("fcm_token", fcmToken).Error
}

// BoundTo lists every device bound to a license.
func (r *Registry) BoundTo(licenseID string) ([]models.Device, error) {
	var ds []models.Device
	err := r.db.Where("license_id = ?", licenseID).Order("registered_at asc").Find(&ds).Error
	return ds, err
}
