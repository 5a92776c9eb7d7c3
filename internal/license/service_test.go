package license

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"keygate/internal/models"
	"keygate/internal/testutil"
)

type push struct {
	addr  string
	title string
	data  map[string]string
}

type stubNotifier struct {
	pushes []push
	multis [][]string
	fail   bool
}

func (s *stubNotifier) SendToDevice(ctx context.Context, addr, title, body string, data map[string]string) bool {
	s.pushes = append(s.pushes, push{addr: addr, title: title, data: data})
	return !s.fail
}

func (s *stubNotifier) SendToMany(ctx context.Context, addrs []string, title, body string, data map[string]string) NotifyResult {
	s.multis = append(s.multis, addrs)
	if s.fail {
		return NotifyResult{Failure: len(addrs)}
	}
	return NotifyResult{Success: len(addrs)}
}

func newTestService(t *testing.T) (*Service, *gorm.DB, *stubNotifier) {
	t.Helper()
	db := testutil.OpenDB(t)
	lg := zap.NewNop().Sugar()
	n := &stubNotifier{}
	svc := NewService(
		NewStore(db),
		NewRegistry(db),
		NewIssuer("test-secret", 24*time.Hour),
		NewRecorder(db, lg),
		n,
		lg,
	)
	return svc, db, n
}

func countAudit(t *testing.T, db *gorm.DB, action string) int64 {
	t.Helper()
	var n int64
	require.NoError(t, db.Model(&models.AuditLog{}).Where("action = ?", action).Count(&n).Error)
	return n
}

func TestActivateAndValidate(t *testing.T) {
	svc, db, _ := newTestService(t)

	l, err := svc.CreateLicense("ABC123", 7, "")
	require.NoError(t, err)
	assert.Equal(t, models.StatusActive, l.Status)
	require.NotNil(t, l.ExpiresAt)
	assert.WithinDuration(t, time.Now().AddDate(0, 0, 7), *l.ExpiresAt, time.Minute)

	res, err := svc.Activate("ABC123", "dev-1", "test rig", "")
	require.NoError(t, err)
	assert.NotEmpty(t, res.Token)
	assert.Equal(t, models.StatusActive, res.Status)

	val, err := svc.Validate(res.Token)
	require.NoError(t, err)
	assert.True(t, val.Valid)
	assert.Equal(t, models.StatusActive, val.Status)
	require.NotNil(t, val.DaysRemaining)
	assert.Contains(t, []int{6, 7}, *val.DaysRemaining)

	var d models.Device
	require.NoError(t, db.First(&d, "device_id = ?", "dev-1").Error)
	assert.Equal(t, l.ID, d.LicenseID)
	assert.NotNil(t, d.LastValidated)

	assert.EqualValues(t, 1, countAudit(t, db, ActionLicenseActivated))
}

func TestActivateUnknownKey(t *testing.T) {
	svc, _, _ := newTestService(t)
	_, err := svc.Activate("NOPE", "dev-1", "", "")
	assert.ErrorIs(t, err, ErrLicenseNotFound)
}

func TestActivateIdempotentForBoundDevice(t *testing.T) {
	svc, db, _ := newTestService(t)
	_, err := svc.CreateLicense("ABC123", 7, "")
	require.NoError(t, err)

	first, err := svc.Activate("ABC123", "dev-1", "", "")
	require.NoError(t, err)
	second, err := svc.Activate("ABC123", "dev-1", "", "fcm-new")
	require.NoError(t, err)
	assert.NotEmpty(t, second.Token)
	assert.Equal(t, first.Status, second.Status)

	var devices int64
	require.NoError(t, db.Model(&models.Device{}).Where("device_id = ?", "dev-1").Count(&devices).Error)
	assert.EqualValues(t, 1, devices)
	assert.EqualValues(t, 1, countAudit(t, db, ActionLicenseActivated))

	// re-activation refreshed the push address
	var d models.Device
	require.NoError(t, db.First(&d, "device_id = ?", "dev-1").Error)
	assert.Equal(t, "fcm-new", d.FCMToken)
}

func TestActivateDeviceBoundElsewhere(t *testing.T) {
	svc, db, _ := newTestService(t)
	first, err := svc.CreateLicense("ABC123", 7, "")
	require.NoError(t, err)
	_, err = svc.CreateLicense("XYZ999", 7, "")
	require.NoError(t, err)

	_, err = svc.Activate("ABC123", "dev-1", "", "")
	require.NoError(t, err)

	_, err = svc.Activate("XYZ999", "dev-1", "", "")
	assert.ErrorIs(t, err, ErrDeviceBoundElsewhere)

	// binding unchanged
	var d models.Device
	require.NoError(t, db.First(&d, "device_id = ?", "dev-1").Error)
	assert.Equal(t, first.ID, d.LicenseID)
}

func TestConcurrentFirstActivation(t *testing.T) {
	svc, db, _ := newTestService(t)
	keys := []string{"ABC123", "XYZ999"}
	for _, key := range keys {
		_, err := svc.CreateLicense(key, 7, "")
		require.NoError(t, err)
	}

	// two first activations race on the same device identifier; the
	// unique index on device_id decides the winner and the loser falls
	// through the re-read path
	results := make([]error, len(keys))
	var wg sync.WaitGroup
	for i, key := range keys {
		wg.Add(1)
		go func(i int, key string) {
			defer wg.Done()
			_, results[i] = svc.Activate(key, "dev-race", "", "")
		}(i, key)
	}
	wg.Wait()

	var ok, bound int
	for _, err := range results {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, ErrDeviceBoundElsewhere):
			bound++
		default:
			t.Fatalf("unexpected activation error: %v", err)
		}
	}
	assert.Equal(t, 1, ok, "exactly one activation must win")
	assert.Equal(t, 1, bound, "the loser must see the binding conflict")

	// never two bindings for one device
	var devices int64
	require.NoError(t, db.Model(&models.Device{}).Where("device_id = ?", "dev-race").Count(&devices).Error)
	assert.EqualValues(t, 1, devices)
	assert.EqualValues(t, 1, countAudit(t, db, ActionLicenseActivated))
}

func TestActivateLazyExpiry(t *testing.T) {
	svc, db, _ := newTestService(t)
	l, err := svc.CreateLicense("OLD111", 7, "")
	require.NoError(t, err)

	past := time.Now().Add(-time.Hour)
	require.NoError(t, db.Model(&models.License{}).Where("id = ?", l.ID).Update("expires_at", &past).Error)

	_, err = svc.Activate("OLD111", "dev-1", "", "")
	assert.ErrorIs(t, err, ErrLicenseExpired)

	// expiry is persisted even though the call failed
	var stored models.License
	require.NoError(t, db.First(&stored, "id = ?", l.ID).Error)
	assert.Equal(t, models.StatusExpired, stored.Status)
	assert.Nil(t, stored.RevokedAt)
	assert.EqualValues(t, 1, countAudit(t, db, ActionLicenseExpired))

	// second call: same failure, no duplicate audit entry
	_, err = svc.Activate("OLD111", "dev-1", "", "")
	assert.ErrorIs(t, err, ErrLicenseExpired)
	assert.EqualValues(t, 1, countAudit(t, db, ActionLicenseExpired))
}

func TestValidateLazyExpiry(t *testing.T) {
	svc, db, _ := newTestService(t)
	l, err := svc.CreateLicense("SHORT1", 7, "")
	require.NoError(t, err)
	res, err := svc.Activate("SHORT1", "dev-1", "", "")
	require.NoError(t, err)

	past := time.Now().Add(-time.Hour)
	require.NoError(t, db.Model(&models.License{}).Where("id = ?", l.ID).Update("expires_at", &past).Error)

	val, err := svc.Validate(res.Token)
	assert.ErrorIs(t, err, ErrLicenseExpired)
	assert.Equal(t, models.StatusExpired, val.Status)

	var stored models.License
	require.NoError(t, db.First(&stored, "id = ?", l.ID).Error)
	assert.Equal(t, models.StatusExpired, stored.Status)
}

func TestValidateUnknownDevice(t *testing.T) {
	svc, _, _ := newTestService(t)
	issuer := NewIssuer("test-secret", time.Hour)
	tok, err := issuer.Issue("ghost", "no-such-license")
	require.NoError(t, err)

	_, err = svc.Validate(tok)
	assert.ErrorIs(t, err, ErrDeviceNotFound)
}

func TestRevokeThenValidate(t *testing.T) {
	svc, db, n := newTestService(t)
	l, err := svc.CreateLicense("ABC123", 7, "")
	require.NoError(t, err)
	res, err := svc.Activate("ABC123", "dev-1", "", "fcm-token-1")
	require.NoError(t, err)

	_, err = svc.RevokeLicense(context.Background(), l.ID, "")
	require.NoError(t, err)

	val, err := svc.Validate(res.Token)
	assert.ErrorIs(t, err, ErrLicenseNotActive)
	assert.Equal(t, models.StatusRevoked, val.Status)

	// bound device with a push address got the revocation notice
	require.Len(t, n.multis, 1)
	assert.Equal(t, []string{"fcm-token-1"}, n.multis[0])

	var stored models.License
	require.NoError(t, db.First(&stored, "id = ?", l.ID).Error)
	assert.Equal(t, models.StatusRevoked, stored.Status)
	assert.NotNil(t, stored.RevokedAt)
}

func TestRevokeIsIdempotent(t *testing.T) {
	svc, db, n := newTestService(t)
	l, err := svc.CreateLicense("ABC123", 7, "")
	require.NoError(t, err)
	_, err = svc.Activate("ABC123", "dev-1", "", "fcm-token-1")
	require.NoError(t, err)

	first, err := svc.RevokeLicense(context.Background(), l.ID, "")
	require.NoError(t, err)
	firstRevokedAt := *first.RevokedAt

	second, err := svc.RevokeLicense(context.Background(), l.ID, "")
	require.NoError(t, err)
	assert.Equal(t, firstRevokedAt.Unix(), second.RevokedAt.Unix())

	assert.EqualValues(t, 1, countAudit(t, db, ActionLicenseRevoked))
	assert.Len(t, n.multis, 1)
}

func TestCreateDuplicateKey(t *testing.T) {
	svc, _, _ := newTestService(t)
	_, err := svc.CreateLicense("ABC123", 7, "")
	require.NoError(t, err)
	_, err = svc.CreateLicense("ABC123", 30, "")
	assert.ErrorIs(t, err, ErrDuplicateKey)
}

func TestSendExpiryWarnings(t *testing.T) {
	svc, db, n := newTestService(t)
	_, err := svc.CreateLicense("SOON01", 3, "")
	require.NoError(t, err)
	_, err = svc.CreateLicense("LATER1", 60, "")
	require.NoError(t, err)

	_, err = svc.Activate("SOON01", "dev-1", "", "fcm-token-1")
	require.NoError(t, err)
	_, err = svc.Activate("SOON01", "dev-2", "", "") // no push address
	require.NoError(t, err)
	_, err = svc.Activate("LATER1", "dev-3", "", "fcm-token-3")
	require.NoError(t, err)

	sum, err := svc.SendExpiryWarnings(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Licenses)
	assert.Equal(t, 1, sum.Devices)
	assert.Equal(t, 1, sum.Result.Success)

	require.Len(t, n.pushes, 1)
	assert.Equal(t, "fcm-token-1", n.pushes[0].addr)
	assert.Equal(t, "license_expiring", n.pushes[0].data["type"])

	// warnings must not mutate license state
	var stored models.License
	require.NoError(t, db.First(&stored, "key = ?", "SOON01").Error)
	assert.Equal(t, models.StatusActive, stored.Status)
}

func TestNotifyDevice(t *testing.T) {
	svc, db, n := newTestService(t)
	_, err := svc.CreateLicense("ABC123", 7, "")
	require.NoError(t, err)
	_, err = svc.Activate("ABC123", "dev-1", "", "fcm-token-1")
	require.NoError(t, err)

	delivered, err := svc.NotifyDevice(context.Background(), "dev-1", "", "Maintenance", "Back at noon")
	require.NoError(t, err)
	assert.True(t, delivered)
	require.Len(t, n.pushes, 1)
	assert.Equal(t, "Maintenance", n.pushes[0].title)
	assert.EqualValues(t, 1, countAudit(t, db, ActionAdminNotify))

	_, err = svc.NotifyDevice(context.Background(), "ghost", "", "x", "y")
	assert.ErrorIs(t, err, ErrDeviceNotFound)
}
