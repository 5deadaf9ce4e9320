package main

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// runAdapters exercises the same behavior against every embedded adapter.
// Postgres goes through the dockertest integration suite instead.
func runAdapters(t *testing.T, fn func(t *testing.T, db DB)) {
	t.Run("memory", func(t *testing.T) {
		fn(t, NewMemoryDB())
	})
	t.Run("sqlite", func(t *testing.T) {
		db, err := NewSQLiteDB(":memory:")
		require.NoError(t, err)
		t.Cleanup(func() { db.close() })
		fn(t, db)
	})
}

func TestCreateUserDuplicateEmailDB(t *testing.T) {
	runAdapters(t, func(t *testing.T, db DB) {
		u, err := db.CreateUser("A", "a@x.com", "hash", RoleUser)
		require.NoError(t, err)
		require.NotZero(t, u.ID)
		require.True(t, u.IsActive)

		_, err = db.CreateUser("B", "a@x.com", "hash2", RoleUser)
		require.ErrorIs(t, err, ErrEmailExists)
	})
}

func TestUserLookupAndFlags(t *testing.T) {
	runAdapters(t, func(t *testing.T, db DB) {
		created, err := db.CreateUser("A", "a@x.com", "hash", RoleAdmin)
		require.NoError(t, err)

		u, err := db.GetUserByEmail("a@x.com")
		require.NoError(t, err)
		require.Equal(t, created.ID, u.ID)
		require.Equal(t, RoleAdmin, u.Role)
		require.Nil(t, u.LastLogin)

		missing, err := db.GetUserByEmail("nobody@x.com")
		require.NoError(t, err)
		require.Nil(t, missing)

		require.NoError(t, db.TouchLastLogin(u.ID))
		u, err = db.GetUserByID(u.ID)
		require.NoError(t, err)
		require.NotNil(t, u.LastLogin)

		require.NoError(t, db.SetUserActive(u.ID, false))
		u, err = db.GetUserByID(u.ID)
		require.NoError(t, err)
		require.False(t, u.IsActive)

		n, err := db.CountActiveUsers()
		require.NoError(t, err)
		require.Equal(t, int64(0), n)
	})
}

func TestJournalLifecycle(t *testing.T) {
	runAdapters(t, func(t *testing.T, db DB) {
		u, err := db.CreateUser("A", "a@x.com", "hash", RoleUser)
		require.NoError(t, err)

		j, err := db.CreateJournal(&AudioJournal{
			UserID:   u.ID,
			Title:    "First entry",
			FileURL:  "https://cdn.example.com/a.mp3",
			FileName: "a.mp3",
			FileSize: 2048,
			Format:   "mp3",
			Duration: 30,
			Category: CategoryDaily,
			Tags:     []string{"one", "two"},
		})
		require.NoError(t, err)
		require.NotZero(t, j.ID)
		require.False(t, j.CreatedAt.IsZero())
		require.False(t, j.RecordedAt.IsZero())

		got, err := db.GetJournal(j.ID, u.ID)
		require.NoError(t, err)
		require.Equal(t, "First entry", got.Title)
		require.Equal(t, []string{"one", "two"}, got.Tags)

		// another user's id does not match
		got, err = db.GetJournal(j.ID, u.ID+1)
		require.NoError(t, err)
		require.Nil(t, got)

		j.Title = "Renamed"
		j.Tags = []string{"three"}
		require.NoError(t, db.UpdateJournal(j))
		got, err = db.GetJournal(j.ID, u.ID)
		require.NoError(t, err)
		require.Equal(t, "Renamed", got.Title)
		require.Equal(t, []string{"three"}, got.Tags)

		require.NoError(t, db.SoftDeleteJournal(j.ID, u.ID))
		got, err = db.GetJournal(j.ID, u.ID)
		require.NoError(t, err)
		require.Nil(t, got)
	})
}

func TestListJournalsFilterSearchSort(t *testing.T) {
	runAdapters(t, func(t *testing.T, db DB) {
		u, err := db.CreateUser("A", "a@x.com", "hash", RoleUser)
		require.NoError(t, err)

		seed := []struct {
			title    string
			category string
			duration float64
		}{
			{"Alpha walk", CategoryDaily, 10},
			{"Beta ride", CategoryBestMoments, 30},
			{"Gamma walk", CategoryDaily, 20},
		}
		for _, s := range seed {
			_, err := db.CreateJournal(&AudioJournal{
				UserID: u.ID, Title: s.title, FileURL: "u", FileName: "f.mp3",
				FileSize: 1, Format: "mp3", Duration: s.duration, Category: s.category,
			})
			require.NoError(t, err)
		}

		all, err := db.ListJournals(u.ID, JournalFilter{})
		require.NoError(t, err)
		require.Len(t, all, 3)

		daily, err := db.ListJournals(u.ID, JournalFilter{Category: CategoryDaily})
		require.NoError(t, err)
		require.Len(t, daily, 2)

		walks, err := db.ListJournals(u.ID, JournalFilter{Search: "WALK"})
		require.NoError(t, err)
		require.Len(t, walks, 2)

		byDuration, err := db.ListJournals(u.ID, JournalFilter{SortBy: "duration", Order: "asc"})
		require.NoError(t, err)
		require.Equal(t, "Alpha walk", byDuration[0].Title)
		require.Equal(t, "Beta ride", byDuration[2].Title)

		byTitleDesc, err := db.ListJournals(u.ID, JournalFilter{SortBy: "title"})
		require.NoError(t, err)
		require.Equal(t, "Gamma walk", byTitleDesc[0].Title)
	})
}

func TestAggregations(t *testing.T) {
	runAdapters(t, func(t *testing.T, db DB) {
		u1, err := db.CreateUser("A", "a@x.com", "hash", RoleUser)
		require.NoError(t, err)
		u2, err := db.CreateUser("B", "b@x.com", "hash", RoleUser)
		require.NoError(t, err)

		mk := func(userID int64, size int64, dur float64, format, category string) *AudioJournal {
			j, err := db.CreateJournal(&AudioJournal{
				UserID: userID, Title: "t", FileURL: "u", FileName: "f",
				FileSize: size, Format: format, Duration: dur, Category: category,
			})
			require.NoError(t, err)
			return j
		}
		mk(u1.ID, 100, 10, "mp3", CategoryDaily)
		mk(u1.ID, 200, 20, "wav", CategoryDaily)
		deleted := mk(u1.ID, 999, 99, "mp3", CategoryDaily)
		require.NoError(t, db.SoftDeleteJournal(deleted.ID, u1.ID))
		mk(u2.ID, 300, 30, "mp3", CategoryBestMoments)

		us, err := db.UserStats(u1.ID)
		require.NoError(t, err)
		require.Equal(t, int64(2), us.TotalAudios)
		require.Equal(t, int64(300), us.TotalStorage)
		require.Equal(t, float64(30), us.TotalDuration)
		require.Equal(t, float64(15), us.AvgDuration)
		require.Len(t, us.Categories, 1)
		require.Equal(t, int64(2), us.Categories[0].Count)

		as, err := db.AdminStats()
		require.NoError(t, err)
		require.Equal(t, int64(2), as.TotalUsers)
		require.Equal(t, int64(3), as.TotalAudios)
		require.Equal(t, int64(600), as.TotalBytes)
		require.Equal(t, float64(60), as.TotalDuration)
		require.Equal(t, float64(20), as.AvgDuration)
		require.Len(t, as.Formats, 2)
		require.Equal(t, "mp3", as.Formats[0].Format)
		require.Equal(t, int64(2), as.Formats[0].Count)
		require.Len(t, as.Categories, 2)

		act, err := db.UserActivity(u2.ID)
		require.NoError(t, err)
		require.Equal(t, int64(1), act.AudioCount)
		require.Equal(t, int64(300), act.StorageBytes)
	})
}

func TestEmptyStats(t *testing.T) {
	runAdapters(t, func(t *testing.T, db DB) {
		us, err := db.UserStats(42)
		require.NoError(t, err)
		require.Zero(t, us.TotalAudios)
		require.Zero(t, us.AvgDuration)
		require.Empty(t, us.Categories)

		as, err := db.AdminStats()
		require.NoError(t, err)
		require.Zero(t, as.TotalAudios)
		require.Empty(t, as.Formats)
	})
}
