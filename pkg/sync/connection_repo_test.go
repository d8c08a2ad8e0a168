package sync

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/homekeep/homekeep/internal/test_utils"
)

func setupConnectionRepoTest(t *testing.T) (*ConnectionRepoImpl, context.Context) {
	db := test_utils.SetupTestDB(t)
	test_utils.CreateTestUser(t, db, 1, "Anna")
	test_utils.CreateTestUser(t, db, 2, "Tomek")
	return NewConnectionRepo(db), context.Background()
}

func oauthConnection(userId int) Connection {
	return Connection{
		UserID:     userId,
		CalendarID: "family@group.calendar.google.com",
		Enabled:    true,
		Credentials: OAuthCredentials{
			AccessToken:  "access",
			RefreshToken: "refresh",
			Expiry:       time.Now().Add(time.Hour).Truncate(time.Millisecond),
		},
	}
}

func TestConnectionRepoImpl_Upsert_roundTripsOAuthCredentials(t *testing.T) {
	// Setup
	repo, ctx := setupConnectionRepoTest(t)

	// When
	stored, err := repo.Upsert(ctx, oauthConnection(1))

	// Then
	require.NoError(t, err)
	fetched, err := repo.Get(ctx, stored.ID)
	require.NoError(t, err)
	creds, ok := fetched.Credentials.(OAuthCredentials)
	require.True(t, ok, "expected oauth credentials, got %T", fetched.Credentials)
	assert.Equal(t, "access", creds.AccessToken)
	assert.Equal(t, "refresh", creds.RefreshToken)
	assert.Equal(t, KindOAuth, fetched.Credentials.Kind())
}

func TestConnectionRepoImpl_Upsert_roundTripsServiceAccount(t *testing.T) {
	// Setup
	repo, ctx := setupConnectionRepoTest(t)
	conn := Connection{
		UserID:      1,
		CalendarID:  "family@group.calendar.google.com",
		Enabled:     true,
		Credentials: ServiceAccountCredentials{CredentialsFile: "/etc/homekeep/google.json"},
	}

	// When
	stored, err := repo.Upsert(ctx, conn)

	// Then
	require.NoError(t, err)
	fetched, err := repo.Get(ctx, stored.ID)
	require.NoError(t, err)
	creds, ok := fetched.Credentials.(ServiceAccountCredentials)
	require.True(t, ok, "expected service account credentials, got %T", fetched.Credentials)
	assert.Equal(t, "/etc/homekeep/google.json", creds.CredentialsFile)
}

func TestConnectionRepoImpl_Upsert_secondUpsertKeepsIdentity(t *testing.T) {
	// Setup
	repo, ctx := setupConnectionRepoTest(t)
	first, err := repo.Upsert(ctx, oauthConnection(1))
	require.NoError(t, err)
	require.NoError(t, repo.SaveSyncState(ctx, first.ID, "cursor-1", time.Now()))

	// When: reconnecting replaces the credentials but not the row
	replacement := oauthConnection(1)
	replacement.CalendarID = "other@group.calendar.google.com"
	second, err := repo.Upsert(ctx, replacement)

	// Then
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, "other@group.calendar.google.com", second.CalendarID)
	assert.Equal(t, "cursor-1", second.SyncToken, "sync cursor survives a reconnect")
}

func TestConnectionRepoImpl_SaveSyncState(t *testing.T) {
	// Setup
	repo, ctx := setupConnectionRepoTest(t)
	stored, err := repo.Upsert(ctx, oauthConnection(1))
	require.NoError(t, err)
	assert.Empty(t, stored.SyncToken, "a new connection has no cursor")
	syncedAt := time.Now().Truncate(time.Millisecond)

	// When
	err = repo.SaveSyncState(ctx, stored.ID, "cursor-42", syncedAt)

	// Then
	require.NoError(t, err)
	fetched, err := repo.Get(ctx, stored.ID)
	require.NoError(t, err)
	assert.Equal(t, "cursor-42", fetched.SyncToken)
	assert.Equal(t, syncedAt.UnixMilli(), fetched.LastSyncedAt.UnixMilli())
}

func TestConnectionRepoImpl_ListEnabledForUsers(t *testing.T) {
	// Setup
	repo, ctx := setupConnectionRepoTest(t)
	anna, err := repo.Upsert(ctx, oauthConnection(1))
	require.NoError(t, err)
	tomek, err := repo.Upsert(ctx, oauthConnection(2))
	require.NoError(t, err)
	require.NoError(t, repo.SetEnabled(ctx, tomek.ID, false))

	// When
	connections, err := repo.ListEnabledForUsers(ctx, []int{1, 2})

	// Then: the disabled connection is filtered out
	require.NoError(t, err)
	require.Len(t, connections, 1)
	assert.Equal(t, anna.ID, connections[0].ID)
}

func TestConnectionRepoImpl_UpdateOAuthCredentials(t *testing.T) {
	// Setup
	repo, ctx := setupConnectionRepoTest(t)
	stored, err := repo.Upsert(ctx, oauthConnection(1))
	require.NoError(t, err)
	newExpiry := time.Now().Add(2 * time.Hour).Truncate(time.Millisecond)

	// When
	err = repo.UpdateOAuthCredentials(ctx, stored.ID, OAuthCredentials{
		AccessToken:  "fresh-access",
		RefreshToken: "refresh",
		Expiry:       newExpiry,
	})

	// Then
	require.NoError(t, err)
	fetched, err := repo.Get(ctx, stored.ID)
	require.NoError(t, err)
	creds := fetched.Credentials.(OAuthCredentials)
	assert.Equal(t, "fresh-access", creds.AccessToken)
	assert.Equal(t, newExpiry.UnixMilli(), creds.Expiry.UnixMilli())
}

func TestConnectionRepoImpl_Get_notFound(t *testing.T) {
	repo, ctx := setupConnectionRepoTest(t)

	_, err := repo.Get(ctx, uuid.New())

	assert.ErrorIs(t, err, ErrConnectionNotFound)
}

func TestConnectionRepoImpl_Delete(t *testing.T) {
	// Setup
	repo, ctx := setupConnectionRepoTest(t)
	stored, err := repo.Upsert(ctx, oauthConnection(1))
	require.NoError(t, err)

	// When
	err = repo.Delete(ctx, stored.ID)

	// Then
	require.NoError(t, err)
	_, err = repo.GetForUser(ctx, 1)
	assert.ErrorIs(t, err, ErrConnectionNotFound)
}
