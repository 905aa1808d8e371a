// ABOUTME: Tests for leaderboard aggregation
// ABOUTME: Covers canonical keys, bucket merging, display labels, and entry replacement
package sync

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stlnu/dealsync/db"
	"github.com/stlnu/dealsync/models"
)

func TestOwnerKey(t *testing.T) {
	assert.Equal(t, "id:901", ownerKey("901", "anna@stl.nu"))
	assert.Equal(t, "email:anna@stl.nu", ownerKey("", "Anna@STL.nu"))
	assert.Equal(t, "unknown::", ownerKey("", ""))
}

func TestDisplayLabel(t *testing.T) {
	mapping := &models.OwnerMapping{
		FirstName:       "Anna",
		LastName:        "Svensson",
		PrimaryTeamName: "Nord",
	}
	assert.Equal(t, "Anna Svensson (Nord)", displayLabel(mapping, "901", ""))

	mapping.PrimaryTeamName = ""
	assert.Equal(t, "Anna Svensson", displayLabel(mapping, "901", ""))

	nameless := &models.OwnerMapping{Email: "anna@stl.nu"}
	assert.Equal(t, "anna@stl.nu", displayLabel(nameless, "901", ""))

	assert.Equal(t, "deal@stl.nu", displayLabel(nil, "901", "deal@stl.nu"))
	assert.Equal(t, "CRM-901", displayLabel(nil, "901", ""))
	assert.Equal(t, "unknown owner", displayLabel(nil, "", ""))
}

func TestDisplayLabelTruncation(t *testing.T) {
	mapping := &models.OwnerMapping{
		FirstName:       strings.Repeat("Å", 40),
		LastName:        strings.Repeat("Ö", 40),
		PrimaryTeamName: "Nord",
	}
	label := displayLabel(mapping, "901", "")
	assert.Equal(t, maxDisplayLabelLen, len([]rune(label)))
}

func TestRecomputeMergesBucketsByOwner(t *testing.T) {
	database := setupTestDB(t)

	contest := &models.Contest{
		Name:      "February",
		StartDate: time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC),
		EndDate:   time.Date(2026, 2, 28, 23, 59, 59, 0, time.UTC),
		IsActive:  true,
	}
	require.NoError(t, db.CreateContest(database, contest))

	// Same salesperson under two raw buckets: one row with id+email, one
	// with id only.
	feb := func(day int, id, extID, email string) {
		require.NoError(t, db.CreateDeal(database, &models.DealRecord{
			ExternalDealID: extID,
			CRMOwnerID:     id,
			OwnerEmail:     email,
			FulfilledDate:  time.Date(2026, 2, day, 12, 0, 0, 0, time.UTC),
		}))
	}
	feb(5, "901", "d-1", "anna@stl.nu")
	feb(6, "901", "d-2", "")
	feb(7, "902", "d-3", "bertil@stl.nu")

	require.NoError(t, db.SaveOwnerMapping(database, &models.OwnerMapping{
		CRMOwnerID:      "901",
		FirstName:       "Anna",
		LastName:        "Svensson",
		PrimaryTeamName: "Nord",
		LastSeen:        time.Now().UTC(),
	}))

	aggregator := NewAggregator(database)
	require.NoError(t, aggregator.Recompute(contest))

	entries, err := db.ListEntriesForContest(database, contest.ID)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	assert.Equal(t, "id:901", entries[0].OwnerKey)
	assert.Equal(t, 2, entries[0].DealsCount, "buckets for the same owner id merge")
	assert.Equal(t, "Anna Svensson (Nord)", entries[0].DisplayLabel)

	assert.Equal(t, "id:902", entries[1].OwnerKey)
	assert.Equal(t, 1, entries[1].DealsCount)
	assert.Equal(t, "bertil@stl.nu", entries[1].DisplayLabel, "no mapping falls back to deal email")
}

func TestRecomputeMergesIdAndEmailBucketsViaMapping(t *testing.T) {
	database := setupTestDB(t)

	contest := &models.Contest{
		Name:      "February",
		StartDate: time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC),
		EndDate:   time.Date(2026, 2, 28, 23, 59, 59, 0, time.UTC),
		IsActive:  true,
	}
	require.NoError(t, db.CreateContest(database, contest))

	// Same salesperson mirrored under an owner id on one deal and only an
	// email on the other
	require.NoError(t, db.CreateDeal(database, &models.DealRecord{
		ExternalDealID: "d-1",
		CRMOwnerID:     "901",
		FulfilledDate:  time.Date(2026, 2, 5, 0, 0, 0, 0, time.UTC),
	}))
	require.NoError(t, db.CreateDeal(database, &models.DealRecord{
		ExternalDealID: "d-2",
		OwnerEmail:     "anna@stl.nu",
		FulfilledDate:  time.Date(2026, 2, 6, 0, 0, 0, 0, time.UTC),
	}))

	require.NoError(t, db.SaveOwnerMapping(database, &models.OwnerMapping{
		CRMOwnerID: "901",
		Email:      "anna@stl.nu",
		FirstName:  "Anna",
		LastName:   "Svensson",
		LastSeen:   time.Now().UTC(),
	}))

	aggregator := NewAggregator(database)
	require.NoError(t, aggregator.Recompute(contest))

	entries, err := db.ListEntriesForContest(database, contest.ID)
	require.NoError(t, err)
	require.Len(t, entries, 1, "mapping joins the id and email buckets")
	assert.Equal(t, "id:901", entries[0].OwnerKey)
	assert.Equal(t, 2, entries[0].DealsCount)
	assert.Equal(t, "Anna Svensson", entries[0].DisplayLabel)
}

func TestRecomputeLinksUserFromMapping(t *testing.T) {
	database := setupTestDB(t)

	user := &models.User{Username: "1234"}
	require.NoError(t, db.CreateUser(database, user))

	contest := &models.Contest{
		Name:      "February",
		StartDate: time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC),
		EndDate:   time.Date(2026, 2, 28, 23, 59, 59, 0, time.UTC),
		IsActive:  true,
	}
	require.NoError(t, db.CreateContest(database, contest))

	require.NoError(t, db.CreateDeal(database, &models.DealRecord{
		ExternalDealID: "d-1",
		CRMOwnerID:     "901",
		FulfilledDate:  time.Date(2026, 2, 5, 0, 0, 0, 0, time.UTC),
	}))
	require.NoError(t, db.SaveOwnerMapping(database, &models.OwnerMapping{
		CRMOwnerID: "901",
		UserID:     &user.ID,
		LastSeen:   time.Now().UTC(),
	}))

	aggregator := NewAggregator(database)
	require.NoError(t, aggregator.Recompute(contest))

	entries, err := db.ListEntriesForContest(database, contest.ID)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.NotNil(t, entries[0].UserID)
	assert.Equal(t, user.ID, *entries[0].UserID)
}

func TestRecomputeReplacesEntriesWholesale(t *testing.T) {
	database := setupTestDB(t)

	contest := &models.Contest{
		Name:      "February",
		StartDate: time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC),
		EndDate:   time.Date(2026, 2, 28, 23, 59, 59, 0, time.UTC),
		IsActive:  true,
	}
	require.NoError(t, db.CreateContest(database, contest))

	// Stale entry for an owner who no longer has deals in the window
	require.NoError(t, db.InsertContestEntry(database, &models.ContestEntry{
		ContestID:    contest.ID,
		OwnerKey:     "id:999",
		DisplayLabel: "Gone",
		DealsCount:   7,
		UpdatedAt:    time.Now().UTC(),
	}))

	require.NoError(t, db.CreateDeal(database, &models.DealRecord{
		ExternalDealID: "d-1",
		CRMOwnerID:     "901",
		FulfilledDate:  time.Date(2026, 2, 5, 0, 0, 0, 0, time.UTC),
	}))

	aggregator := NewAggregator(database)
	require.NoError(t, aggregator.Recompute(contest))

	entries, err := db.ListEntriesForContest(database, contest.ID)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "id:901", entries[0].OwnerKey, "stale entries replaced, not merged")
}

func TestRecomputeActiveContestsSkipsClosed(t *testing.T) {
	database := setupTestDB(t)

	now := time.Now().UTC()
	closed := &models.Contest{
		Name:      "Closed",
		StartDate: now.AddDate(0, 0, -7),
		EndDate:   now.AddDate(0, 0, 7),
		IsActive:  false,
	}
	require.NoError(t, db.CreateContest(database, closed))

	// Frozen standings from when the contest was closed
	require.NoError(t, db.InsertContestEntry(database, &models.ContestEntry{
		ContestID:    closed.ID,
		OwnerKey:     "id:901",
		DisplayLabel: "Anna",
		DealsCount:   3,
		UpdatedAt:    now,
	}))

	aggregator := NewAggregator(database)
	require.NoError(t, aggregator.RecomputeActiveContests(now))

	entries, err := db.ListEntriesForContest(database, closed.ID)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, 3, entries[0].DealsCount, "closed contest standings stay frozen")
}
