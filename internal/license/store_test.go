package license

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"keygate/internal/models"
	"keygate/internal/testutil"
)

func TestStoreFindByKeyNotFound(t *testing.T) {
	store := NewStore(testutil.OpenDB(t))
	_, err := store.FindByKey("missing")
	assert.ErrorIs(t, err, ErrLicenseNotFound)
}

func TestStoreCreateWithoutExpiry(t *testing.T) {
	store := NewStore(testutil.OpenDB(t))
	l, err := store.Create("PERM01", 0, "")
	require.NoError(t, err)
	assert.Nil(t, l.ExpiresAt)
	assert.Equal(t, models.StatusActive, l.Status)
}

func TestCheckAndLazilyExpire(t *testing.T) {
	db := testutil.OpenDB(t)
	store := NewStore(db)

	l, err := store.Create("LAZY01", 7, "")
	require.NoError(t, err)

	// future expiry: untouched
	l, err = store.CheckAndLazilyExpire(l)
	require.NoError(t, err)
	assert.Equal(t, models.StatusActive, l.Status)

	past := time.Now().Add(-time.Minute)
	require.NoError(t, db.Model(&models.License{}).Where("id = ?", l.ID).Update("expires_at", &past).Error)
	l.ExpiresAt = &past

	l, err = store.CheckAndLazilyExpire(l)
	require.NoError(t, err)
	assert.Equal(t, models.StatusExpired, l.Status)

	var stored models.License
	require.NoError(t, db.First(&stored, "id = ?", l.ID).Error)
	assert.Equal(t, models.StatusExpired, stored.Status)
}

func TestCheckAndLazilyExpireLeavesRevokedAlone(t *testing.T) {
	db := testutil.OpenDB(t)
	store := NewStore(db)

	l, err := store.Create("REVKD1", 7, "")
	require.NoError(t, err)
	l, err = store.Revoke(l.ID, "")
	require.NoError(t, err)

	past := time.Now().Add(-time.Minute)
	require.NoError(t, db.Model(&models.License{}).Where("id = ?", l.ID).Update("expires_at", &past).Error)
	l.ExpiresAt = &past

	// revoked is terminal; an overdue expiry must not rewrite it
	l, err = store.CheckAndLazilyExpire(l)
	require.NoError(t, err)
	assert.Equal(t, models.StatusRevoked, l.Status)
}
