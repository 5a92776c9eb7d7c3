package license

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"keygate/internal/models"
)

// Notifier is the push-notification collaborator. Delivery is
// best-effort; implementations report outcomes and never return errors
// that could fail a license operation.
type Notifier interface {
	SendToDevice(ctx context.Context, addr, title, body string, data map[string]string) bool
	SendToMany(ctx context.Context, addrs []string, title, body string, data map[string]string) NotifyResult
}

type NotifyResult struct {
	Success int `json:"success"`
	Failure int `json:"failure"`
}

// Service orchestrates the license store, device registry, token issuer,
// audit recorder and push sender behind activate/validate and the admin
// lifecycle operations.
type Service struct {
	store    *Store
	devices  *Registry
	issuer   *Issuer
	audit    *Recorder
	notifier Notifier
	lg       *zap.SugaredLogger
}

func NewService(store *Store, devices *Registry, issuer *Issuer, audit *Recorder, notifier Notifier, lg *zap.SugaredLogger) *Service {
	return &Service{store: store, devices: devices, issuer: issuer, audit: audit, notifier: notifier, lg: lg}
}

func (s *Service) Store() *Store      { return s.store }
func (s *Service) Devices() *Registry { return s.devices }

type ActivationResult struct {
	Token     string
	Status    string
	ExpiresAt *time.Time
}

// Activate binds a device to the license identified by key and issues a
// token. A device already bound to the same license gets a fresh token
// with no new device row or audit entry; a device bound to a different
// license fails without mutating anything.
func (s *Service) Activate(licenseKey, deviceID, deviceInfo, fcmToken string) (ActivationResult, error) {
	l, err := s.store.FindByKey(licenseKey)
	if err != nil {
		return ActivationResult{}, err
	}
	if l.Status == models.StatusExpired {
		return ActivationResult{}, ErrLicenseExpired
	}
	if l.Status != models.StatusActive {
		return ActivationResult{}, ErrLicenseNotActive
	}
	if l, err = s.lazyExpire(l, deviceID); err != nil {
		return ActivationResult{}, err
	}
	if l.Status == models.StatusExpired {
		return ActivationResult{}, ErrLicenseExpired
	}

	existing, err := s.devices.FindByDeviceID(deviceID)
	switch {
	case err == nil:
		if existing.LicenseID != l.ID {
			return ActivationResult{}, ErrDeviceBoundElsewhere
		}
		// re-activation by the already-bound device: idempotent, but a
		// new push address still sticks
		if fcmToken != "" && fcmToken != existing.FCMToken {
			if err := s.devices.UpdatePushAddress(existing, fcmToken); err != nil {
				s.lg.Warnw("push address refresh failed", "device_id", deviceID, "error", err)
			}
		}
	case errors.Is(err, ErrDeviceNotFound):
		if _, bindErr := s.devices.Bind(deviceID, l.ID, deviceInfo, fcmToken); bindErr != nil {
			// Most likely the unique index fired because a concurrent
			// activation bound this device first. Re-read and decide.
			existing, reErr := s.devices.FindByDeviceID(deviceID)
			if reErr != nil {
				return ActivationResult{}, bindErr
			}
			if existing.LicenseID != l.ID {
				return ActivationResult{}, ErrDeviceBoundElsewhere
			}
		} else {
			s.audit.Append(ActionLicenseActivated,
				fmt.Sprintf("Device %s activated license %s", deviceID, licenseKey),
				AuditRefs{LicenseID: &l.ID, DeviceID: &deviceID},
				map[string]any{"license_key": licenseKey})
		}
	default:
		return ActivationResult{}, err
	}

	token, err := s.issuer.Issue(deviceID, l.ID)
	if err != nil {
		return ActivationResult{}, err
	}
	return ActivationResult{Token: token, Status: l.Status, ExpiresAt: l.ExpiresAt}, nil
}

type ValidationResult struct {
	Valid         bool
	Status        string
	ExpiresAt     *time.Time
	DaysRemaining *int
}

// Validate verifies a previously issued token against the current state
// of its license and records the validation on the device. On state
// conflicts the returned result still carries the license status so the
// caller can report it.
func (s *Service) Validate(rawToken string) (ValidationResult, error) {
	claims, err := s.issuer.Verify(rawToken)
	if err != nil {
		return ValidationResult{}, err
	}
	d, err := s.devices.FindByDeviceID(claims.DeviceID)
	if err != nil {
		return ValidationResult{}, err
	}
	l, err := s.store.FindByID(d.LicenseID)
	if err != nil {
		return ValidationResult{}, err
	}
	if l.Status == models.StatusExpired {
		return ValidationResult{Status: l.Status}, ErrLicenseExpired
	}
	if l.Status != models.StatusActive {
		return ValidationResult{Status: l.Status}, ErrLicenseNotActive
	}
	if l, err = s.lazyExpire(l, d.DeviceID); err != nil {
		return ValidationResult{}, err
	}
	if l.Status == models.StatusExpired {
		return ValidationResult{Status: l.Status}, ErrLicenseExpired
	}
	if err := s.devices.TouchValidation(d, ""); err != nil {
		return ValidationResult{}, err
	}
	return ValidationResult{
		Valid:         true,
		Status:        l.Status,
		ExpiresAt:     l.ExpiresAt,
		DaysRemaining: daysRemaining(l.ExpiresAt),
	}, nil
}

// lazyExpire runs the store's expiry check and audits the transition the
// one time it actually happens.
func (s *Service) lazyExpire(l *models.License, deviceID string) (*models.License, error) {
	wasActive := l.Status == models.StatusActive
	l, err := s.store.CheckAndLazilyExpire(l)
	if err != nil {
		return nil, err
	}
	if wasActive && l.Status == models.StatusExpired {
		refs := AuditRefs{LicenseID: &l.ID}
		if deviceID != "" {
			refs.DeviceID = &deviceID
		}
		s.audit.Append(ActionLicenseExpired,
			fmt.Sprintf("License %s expired", l.Key), refs, nil)
	}
	return l, nil
}

func daysRemaining(expiresAt *time.Time) *int {
	if expiresAt == nil {
		return nil
	}
	d := int(time.Until(*expiresAt).Hours() / 24)
	if d < 0 {
		d = 0
	}
	return &d
}

// CreateLicense issues a new license with a caller-supplied opaque key.
// durationDays <= 0 means no expiry.
func (s *Service) CreateLicense(key string, durationDays int, adminID string) (*models.License, error) {
	l, err := s.store.Create(key, durationDays, adminID)
	if err != nil {
		return nil, err
	}
	refs := AuditRefs{LicenseID: &l.ID}
	if adminID != "" {
		refs.AdminID = &adminID
	}
	s.audit.Append(ActionLicenseCreated,
		fmt.Sprintf("License %s created", key), refs,
		map[string]any{"duration_days": durationDays})
	return l, nil
}

// RevokeLicense revokes a license and pushes a notice to every bound
// device that has a push address. Revoking twice is a no-op: no second
// audit entry, no second notification, revoked_at keeps its first value.
func (s *Service) RevokeLicense(ctx context.Context, id, adminID string) (*models.License, error) {
	prior, err := s.store.FindByID(id)
	if err != nil {
		return nil, err
	}
	alreadyRevoked := prior.Status == models.StatusRevoked
	l, err := s.store.Revoke(id, adminID)
	if err != nil {
		return nil, err
	}
	if alreadyRevoked {
		return l, nil
	}

	refs := AuditRefs{LicenseID: &l.ID}
	if adminID != "" {
		refs.AdminID = &adminID
	}
	s.audit.Append(ActionLicenseRevoked,
		fmt.Sprintf("License %s revoked", l.Key), refs, nil)

	devices, err := s.devices.BoundTo(l.ID)
	if err != nil {
		s.lg.Warnw("revocation notice skipped, device lookup failed", "license_id", l.ID, "error", err)
		return l, nil
	}
	var addrs []string
	for _, d := range devices {
		if d.FCMToken != "" {
			addrs = append(addrs, d.FCMToken)
		}
	}
	if len(addrs) > 0 {
		res := s.notifier.SendToMany(ctx, addrs,
			"License Revoked",
			fmt.Sprintf("Your license %s has been revoked. Please contact support.", l.Key),
			map[string]string{"type": "license_revoked", "license_key": l.Key})
		s.lg.Infow("revocation notices sent", "license_id", l.ID, "success", res.Success, "failure", res.Failure)
	}
	return l, nil
}

type ExpiryWarningSummary struct {
	Licenses int          `json:"licenses"`
	Devices  int          `json:"devices"`
	Result   NotifyResult `json:"result"`
}

// SendExpiryWarnings pushes a warning to every device bound to an active
// license expiring within the window. Triggered by an admin call rather
// than a background sweep; lazy expiry stays the only status mutation.
func (s *Service) SendExpiryWarnings(ctx context.Context, withinDays int) (ExpiryWarningSummary, error) {
	if withinDays <= 0 {
		withinDays = 7
	}
	licenses, err := s.store.ExpiringWithin(withinDays)
	if err != nil {
		return ExpiryWarningSummary{}, err
	}
	var sum ExpiryWarningSummary
	sum.Licenses = len(licenses)
	for _, l := range licenses {
		days := daysRemaining(l.ExpiresAt)
		devices, err := s.devices.BoundTo(l.ID)
		if err != nil {
			s.lg.Warnw("expiry warning skipped", "license_id", l.ID, "error", err)
			continue
		}
		for _, d := range devices {
			if d.FCMToken == "" {
				continue
			}
			sum.Devices++
			ok := s.notifier.SendToDevice(ctx, d.FCMToken,
				"License Expiring Soon",
				fmt.Sprintf("Your license %s expires in %d days.", l.Key, *days),
				map[string]string{
					"type":           "license_expiring",
					"license_key":    l.Key,
					"device_id":      d.DeviceID,
					"days_remaining": fmt.Sprintf("%d", *days),
				})
			if ok {
				sum.Result.Success++
			} else {
				sum.Result.Failure++
			}
		}
	}
	return sum, nil
}

// NotifyDevice sends an admin-authored message to one device.
func (s *Service) NotifyDevice(ctx context.Context, deviceID, adminID, title, message string) (bool, error) {
	d, err := s.devices.FindByDeviceID(deviceID)
	if err != nil {
		return false, err
	}
	if d.FCMToken == "" {
		return false, nil
	}
	ok := s.notifier.SendToDevice(ctx, d.FCMToken, title, message,
		map[string]string{"type": "admin_message", "device_id": deviceID})
	refs := AuditRefs{DeviceID: &deviceID}
	if adminID != "" {
		refs.AdminID = &adminID
	}
	s.audit.Append(ActionAdminNotify, title, refs, map[string]any{"delivered": ok})
	return ok, nil
}
