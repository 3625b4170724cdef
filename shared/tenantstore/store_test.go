package tenantstore

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pavitra93/care-intake-portal/shared/models"
	"github.com/pavitra93/care-intake-portal/shared/remote"
	"github.com/pavitra93/care-intake-portal/shared/remote/remotetest"
	"github.com/pavitra93/care-intake-portal/shared/tenantdata"
)

var errRemoteDown = errors.New("remote unavailable")

func seededStore(t *testing.T) (*Store, *remotetest.Fake) {
	t.Helper()
	fake := remotetest.New()
	fake.Seed(remote.TableTenants,
		tenantdata.TenantToRow(models.Tenant{ID: "t-1", Name: "Acme Care", Status: models.TenantStatusActive, Features: models.DefaultFeatures()}),
		tenantdata.TenantToRow(models.Tenant{ID: "t-2", Name: "Bright Homes", Status: models.TenantStatusTrial, Features: models.DefaultFeatures()}),
	)
	store := New(tenantdata.NewService(fake))
	snap := store.Load(context.Background())
	require.Len(t, snap.Tenants, 2)
	return store, fake
}

func TestStore_UpdateFeaturesSuccessIsVisible(t *testing.T) {
	store, fake := seededStore(t)
	ctx := context.Background()

	features := models.DefaultFeatures()
	features.AccountingSync = true

	updated, err := store.UpdateFeatures(ctx, "t-1", features)
	require.NoError(t, err)
	assert.True(t, updated.Features.AccountingSync)

	got, err := store.Tenant("t-1")
	require.NoError(t, err)
	assert.True(t, got.Features.AccountingSync)

	// remote holds the same value: a reload keeps it
	store.Load(ctx)
	got, err = store.Tenant("t-1")
	require.NoError(t, err)
	assert.True(t, got.Features.AccountingSync)
	assert.Equal(t, 1, fake.Calls(remotetest.OpUpdate))
}

func TestStore_UpdateFeaturesFailureReloads(t *testing.T) {
	store, fake := seededStore(t)
	ctx := context.Background()
	fake.Fail(remotetest.OpUpdate, errRemoteDown)
	selectsBefore := fake.Calls(remotetest.OpSelect)

	features := models.DefaultFeatures()
	features.AccountingSync = true

	_, err := store.UpdateFeatures(ctx, "t-1", features)
	assert.ErrorIs(t, err, errRemoteDown)
	assert.Equal(t, selectsBefore+1, fake.Calls(remotetest.OpSelect), "failure triggers a full reload")

	got, err := store.Tenant("t-1")
	require.NoError(t, err)
	assert.False(t, got.Features.AccountingSync, "snapshot reflects remote truth after the reload")
}

func TestStore_FailedWriteReloadsFullList(t *testing.T) {
	fake := remotetest.New()
	fake.Seed(remote.TableTenants,
		tenantdata.TenantToRow(models.Tenant{ID: "t-1", Name: "Acme Care", Status: models.TenantStatusActive, Features: models.DefaultFeatures()}),
		tenantdata.TenantToRow(models.Tenant{ID: "t-2", Name: "Bright Homes", Status: models.TenantStatusTrial, Features: models.DefaultFeatures()}),
	)
	fake.Restrict("owner-token", "t-1")
	store := New(tenantdata.NewService(fake), WithServiceToken("service-key"))

	owner, cancel := context.WithCancel(remote.WithAccessToken(context.Background(), "owner-token"))
	defer cancel()
	require.Len(t, store.Load(owner).Tenants, 2, "loads read as the service, not the caller")
	require.NoError(t, store.SetActive("other-user", "t-2"))

	fake.Fail(remotetest.OpUpdate, errRemoteDown)
	features := models.DefaultFeatures()
	features.AccountingSync = true
	_, err := store.UpdateFeatures(owner, "t-1", features)
	require.ErrorIs(t, err, errRemoteDown)

	snap := store.Snapshot()
	assert.Len(t, snap.Tenants, 2)
	assert.Equal(t, "t-2", snap.Active["other-user"])

	cancel()
	snap = store.Load(owner)
	assert.Len(t, snap.Tenants, 2, "a cancelled caller does not empty the list")
	assert.Equal(t, "t-2", snap.Active["other-user"])
}

func TestStore_WriteMatchingNoRowsReverts(t *testing.T) {
	store, fake := seededStore(t)
	fake.Restrict("owner-token", "t-1")
	owner := remote.WithAccessToken(context.Background(), "owner-token")

	features := models.DefaultFeatures()
	features.AccountingSync = true
	_, err := store.UpdateFeatures(owner, "t-2", features)
	assert.ErrorIs(t, err, ErrTenantNotFound)
	assert.ErrorIs(t, err, remote.ErrNoRows)

	got, err := store.Tenant("t-2")
	require.NoError(t, err, "the tenant still exists for everyone else")
	assert.False(t, got.Features.AccountingSync, "optimistic change is reverted")

	// removed behind the store's back
	require.NoError(t, fake.Delete(context.Background(), remote.TableTenants, []remote.Filter{remote.Eq("id", "t-1")}))
	assert.ErrorIs(t, store.Delete(context.Background(), "t-1"), ErrTenantNotFound)
	_, err = store.Tenant("t-1")
	assert.ErrorIs(t, err, ErrTenantNotFound)
}

func TestStore_UnknownTenant(t *testing.T) {
	store, fake := seededStore(t)
	ctx := context.Background()

	_, err := store.UpdateStatus(ctx, "missing", models.TenantStatusBeta)
	assert.ErrorIs(t, err, ErrTenantNotFound)
	assert.ErrorIs(t, store.Delete(ctx, "missing"), ErrTenantNotFound)
	assert.Zero(t, fake.Calls(remotetest.OpUpdate))
}

func TestStore_UpdateStatusRejectsUnknownStatus(t *testing.T) {
	store, _ := seededStore(t)
	_, err := store.UpdateStatus(context.Background(), "t-1", "archived")
	assert.ErrorIs(t, err, ErrInvalidStatus)
}

func TestStore_Create(t *testing.T) {
	store, fake := seededStore(t)
	ctx := context.Background()

	created, err := store.Create(ctx, models.NewTenant{Name: "Coastal Care"})
	require.NoError(t, err)
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, models.TenantStatusActive, created.Status)
	assert.Equal(t, models.DefaultBranding(), created.Branding)
	assert.Equal(t, 3, fake.Rows(remote.TableTenants))
	assert.Len(t, store.Snapshot().Tenants, 3)
}

func TestStore_CreateFailureDropsOptimisticEntry(t *testing.T) {
	store, fake := seededStore(t)
	fake.Fail(remotetest.OpInsert, errRemoteDown)

	_, err := store.Create(context.Background(), models.NewTenant{Name: "Coastal Care"})
	assert.ErrorIs(t, err, errRemoteDown)
	assert.Len(t, store.Snapshot().Tenants, 2)
}

func TestStore_DuplicateID(t *testing.T) {
	store, _ := seededStore(t)
	_, err := store.insert(context.Background(), models.Tenant{ID: "t-1", Name: "Again"})
	assert.ErrorIs(t, err, ErrDuplicateTenant)
}

func TestStore_ActiveSelection(t *testing.T) {
	store, _ := seededStore(t)
	ctx := context.Background()

	assert.ErrorIs(t, store.SetActive("u-1", "missing"), ErrTenantNotFound)

	require.NoError(t, store.SetActive("u-1", "t-2"))
	require.NoError(t, store.SetActive("u-2", "t-1"))

	active, ok := store.Active("u-1")
	require.True(t, ok)
	assert.Equal(t, "Bright Homes", active.Name)

	require.NoError(t, store.Delete(ctx, "t-2"))
	_, ok = store.Active("u-1")
	assert.False(t, ok, "selection of a deleted tenant is dropped")

	_, ok = store.Active("u-2")
	assert.True(t, ok)

	store.ClearActive("u-2")
	_, ok = store.Active("u-2")
	assert.False(t, ok)
}

func TestStore_SnapshotsAreCopies(t *testing.T) {
	store, _ := seededStore(t)

	snap := store.Snapshot()
	snap.Tenants[0].Name = "mutated"
	snap.Active["u-9"] = "t-1"

	fresh := store.Snapshot()
	assert.NotEqual(t, "mutated", fresh.Tenants[0].Name)
	assert.NotContains(t, fresh.Active, "u-9")
	assert.Greater(t, fresh.Version, uint64(0))
}

func TestStore_ConcurrentMutators(t *testing.T) {
	store, _ := seededStore(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			status := models.TenantStatusActive
			if i%2 == 0 {
				status = models.TenantStatusBeta
			}
			_, err := store.UpdateStatus(ctx, "t-1", status)
			assert.NoError(t, err)
			_ = store.Snapshot()
		}(i)
	}
	wg.Wait()

	assert.Len(t, store.Snapshot().Tenants, 2)
}
