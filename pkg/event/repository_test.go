package event

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/homekeep/homekeep/internal/test_utils"
)

func setupRepositoryTest(t *testing.T) (*RepositoryImpl, context.Context, int) {
	db := test_utils.SetupTestDB(t)
	owner := test_utils.CreateTestUser(t, db, 1, "Anna")
	test_utils.CreateTestUser(t, db, 2, "Tomek")
	return NewRepository(db), context.Background(), owner.Id
}

func testEvent(title string, start time.Time, ownerId int) Event {
	end := start.Add(time.Hour)
	return Event{
		Title:       title,
		Description: "some details",
		StartTime:   start,
		EndTime:     &end,
		Recurrence:  RecurrenceNone,
		Color:       "#aabbcc",
		OwnerID:     ownerId,
	}
}

func TestRepositoryImpl_StoreEvent(t *testing.T) {
	// Setup
	repository, ctx, ownerId := setupRepositoryTest(t)
	baseTime := time.Now().Truncate(time.Millisecond)

	// When
	stored, err := repository.StoreEvent(ctx, testEvent("Dentist", baseTime, ownerId))

	// Then
	require.NoError(t, err)
	fetched, err := repository.GetEvent(ctx, stored.ID)
	require.NoError(t, err)
	assert.Equal(t, "Dentist", fetched.Title)
	assert.Equal(t, "some details", fetched.Description)
	assert.Equal(t, baseTime.UnixMilli(), fetched.StartTime.UnixMilli())
	require.NotNil(t, fetched.EndTime)
	assert.Equal(t, baseTime.Add(time.Hour).UnixMilli(), fetched.EndTime.UnixMilli())
	assert.Equal(t, ownerId, fetched.OwnerID)
}

func TestRepositoryImpl_StoreEvent_allDayWithoutEnd(t *testing.T) {
	// Setup
	repository, ctx, ownerId := setupRepositoryTest(t)
	day := time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC)
	event := Event{Title: "Birthday", StartTime: day, AllDay: true, Recurrence: RecurrenceYearly, OwnerID: ownerId}

	// When
	stored, err := repository.StoreEvent(ctx, event)

	// Then
	require.NoError(t, err)
	fetched, err := repository.GetEvent(ctx, stored.ID)
	require.NoError(t, err)
	assert.True(t, fetched.AllDay)
	assert.Nil(t, fetched.EndTime)
	assert.Equal(t, RecurrenceYearly, fetched.Recurrence)
}

func TestRepositoryImpl_GetEvent_allDayBoundariesComeBackInUTC(t *testing.T) {
	// Setup
	repository, ctx, ownerId := setupRepositoryTest(t)
	start := time.Date(2026, 2, 8, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 0, 2)
	event := Event{Title: "Ski trip", StartTime: start, EndTime: &end, AllDay: true, Recurrence: RecurrenceNone, OwnerID: ownerId}

	// When
	stored, err := repository.StoreEvent(ctx, event)

	// Then
	require.NoError(t, err)
	fetched, err := repository.GetEvent(ctx, stored.ID)
	require.NoError(t, err)
	assert.Equal(t, time.UTC, fetched.StartTime.Location())
	assert.Equal(t, "2026-02-08", fetched.StartTime.Format("2006-01-02"))
	require.NotNil(t, fetched.EndTime)
	assert.Equal(t, time.UTC, fetched.EndTime.Location())
	assert.Equal(t, "2026-02-10", fetched.EndTime.Format("2006-01-02"))
}

func TestRepositoryImpl_GetEvent_notFound(t *testing.T) {
	repository, ctx, _ := setupRepositoryTest(t)

	_, err := repository.GetEvent(ctx, uuid.New())

	assert.ErrorIs(t, err, ErrEventNotFound)
}

func TestRepositoryImpl_GetEvents_includesSharedEvents(t *testing.T) {
	// Setup
	repository, ctx, ownerId := setupRepositoryTest(t)
	baseTime := time.Now().Truncate(time.Millisecond)

	owned := testEvent("Owned", baseTime, ownerId)
	shared := testEvent("Shared with Anna", baseTime.Add(2*time.Hour), 2)
	shared.SharedWith = []int{ownerId}
	unrelated := testEvent("Tomek only", baseTime.Add(3*time.Hour), 2)

	for _, e := range []Event{owned, shared, unrelated} {
		_, err := repository.StoreEvent(ctx, e)
		require.NoError(t, err)
	}

	// When
	events, err := repository.GetEvents(ctx, ownerId, baseTime.Add(-time.Hour), baseTime.Add(24*time.Hour))

	// Then
	require.NoError(t, err)
	titles := make([]string, 0, len(events))
	for _, e := range events {
		titles = append(titles, e.Title)
	}
	assert.ElementsMatch(t, []string{"Owned", "Shared with Anna"}, titles)
}

func TestRepositoryImpl_UpdateEvent(t *testing.T) {
	// Setup
	repository, ctx, ownerId := setupRepositoryTest(t)
	baseTime := time.Now().Truncate(time.Millisecond)
	stored, err := repository.StoreEvent(ctx, testEvent("Before", baseTime, ownerId))
	require.NoError(t, err)

	// When
	stored.Title = "After"
	stored.SharedWith = []int{2}
	err = repository.UpdateEvent(ctx, stored)

	// Then
	require.NoError(t, err)
	fetched, err := repository.GetEvent(ctx, stored.ID)
	require.NoError(t, err)
	assert.Equal(t, "After", fetched.Title)
	assert.Equal(t, []int{2}, fetched.SharedWith)
}

func TestRepositoryImpl_DeleteEvent(t *testing.T) {
	// Setup
	repository, ctx, ownerId := setupRepositoryTest(t)
	stored, err := repository.StoreEvent(ctx, testEvent("Temporary", time.Now(), ownerId))
	require.NoError(t, err)

	// When
	err = repository.DeleteEvent(ctx, stored.ID)

	// Then
	require.NoError(t, err)
	_, err = repository.GetEvent(ctx, stored.ID)
	assert.ErrorIs(t, err, ErrEventNotFound)
}
