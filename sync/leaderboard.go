// ABOUTME: Contest leaderboard aggregation over the deal mirror
// ABOUTME: Canonical owner keys, defensive merge, display labels, wholesale entry replacement
package sync

import (
	"database/sql"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/stlnu/dealsync/db"
	"github.com/stlnu/dealsync/models"
)

const maxDisplayLabelLen = 50

// Aggregator recomputes contest leaderboards from the mirror.
type Aggregator struct {
	db *sql.DB
}

func NewAggregator(database *sql.DB) *Aggregator {
	return &Aggregator{db: database}
}

// RecomputeActiveContests rebuilds the entries of every contest active at
// now. Closed contests keep their last standings untouched.
func (a *Aggregator) RecomputeActiveContests(now time.Time) error {
	contests, err := db.ListActiveContests(a.db, now)
	if err != nil {
		return err
	}

	for _, contest := range contests {
		if err := a.Recompute(&contest); err != nil {
			return fmt.Errorf("failed to recompute contest %s: %w", contest.Name, err)
		}
	}
	return nil
}

// Recompute replaces one contest's entries with standings derived from the
// mirror.
func (a *Aggregator) Recompute(contest *models.Contest) error {
	groups, err := db.GroupDealsByOwner(a.db, contest.StartDate, contest.EndDate)
	if err != nil {
		return err
	}

	standings, err := a.mergeGroups(groups)
	if err != nil {
		return err
	}

	if err := db.DeleteEntriesForContest(a.db, contest.ID); err != nil {
		return err
	}

	now := time.Now().UTC()
	for _, s := range standings {
		entry := &models.ContestEntry{
			ContestID:    contest.ID,
			OwnerKey:     s.key,
			UserID:       s.userID,
			DisplayLabel: s.label,
			DealsCount:   s.count,
			UpdatedAt:    now,
		}
		if err := db.InsertContestEntry(a.db, entry); err != nil {
			return err
		}
	}

	return nil
}

type standing struct {
	key    string
	count  int
	userID *uuid.UUID
	label  string

	mapping *models.OwnerMapping
	ownerID string
	email   string
}

// mergeGroups collapses raw (owner id, email) buckets into one standing per
// canonical owner key. Each bucket is resolved to its owner mapping first and
// keyed on the mapping's identity, so an id-only bucket and an email-only
// bucket belonging to the same salesperson land in one row before counts are
// summed.
func (a *Aggregator) mergeGroups(groups []db.OwnerGroup) ([]standing, error) {
	merged := make(map[string]*standing)
	var order []string

	for _, g := range groups {
		mapping, err := a.lookupMapping(g.CRMOwnerID, g.OwnerEmail)
		if err != nil {
			return nil, err
		}

		ownerID, email := g.CRMOwnerID, g.OwnerEmail
		if mapping != nil {
			ownerID = firstNonEmpty(mapping.CRMOwnerID, ownerID)
			email = firstNonEmpty(mapping.Email, email)
		}

		key := ownerKey(ownerID, email)
		s, ok := merged[key]
		if !ok {
			s = &standing{key: key}
			merged[key] = s
			order = append(order, key)
		}
		s.count += g.DealsCount
		if s.mapping == nil {
			s.mapping = mapping
		}
		if s.ownerID == "" {
			s.ownerID = ownerID
		}
		if s.email == "" {
			s.email = email
		}
	}

	standings := make([]standing, 0, len(merged))
	for _, key := range order {
		s := merged[key]
		if s.mapping != nil {
			s.userID = s.mapping.UserID
		}
		s.label = displayLabel(s.mapping, s.ownerID, s.email)
		standings = append(standings, *s)
	}

	sort.SliceStable(standings, func(i, j int) bool {
		if standings[i].count != standings[j].count {
			return standings[i].count > standings[j].count
		}
		return standings[i].label < standings[j].label
	})

	return standings, nil
}

// ownerKey is the canonical grouping key for one salesperson: owner id when
// present, else lowercased email, else a compound fallback that keeps
// unattributable buckets apart.
func ownerKey(ownerID, email string) string {
	if ownerID != "" {
		return "id:" + ownerID
	}
	if email != "" {
		return "email:" + strings.ToLower(email)
	}
	return fmt.Sprintf("unknown:%s:%s", ownerID, email)
}

func (a *Aggregator) lookupMapping(ownerID, email string) (*models.OwnerMapping, error) {
	if ownerID != "" {
		mapping, err := db.GetOwnerMappingByOwnerID(a.db, ownerID)
		if err != nil || mapping != nil {
			return mapping, err
		}
	}
	if email != "" {
		return db.GetOwnerMappingByEmail(a.db, email)
	}
	return nil, nil
}

// displayLabel builds the public leaderboard label for one salesperson:
// "First Last (Team)" when the mapping has names, else the mapping email,
// else the deal email, else a synthetic owner tag, else a placeholder.
func displayLabel(mapping *models.OwnerMapping, ownerID, email string) string {
	var label string

	if mapping != nil {
		name := strings.TrimSpace(mapping.FirstName + " " + mapping.LastName)
		if name != "" {
			if mapping.PrimaryTeamName != "" {
				label = fmt.Sprintf("%s (%s)", name, mapping.PrimaryTeamName)
			} else {
				label = name
			}
		} else if mapping.Email != "" {
			label = mapping.Email
		}
	}
	if label == "" && email != "" {
		label = email
	}
	if label == "" && ownerID != "" {
		label = "CRM-" + ownerID
	}
	if label == "" {
		label = "unknown owner"
	}

	label = strings.TrimSpace(label)
	if runes := []rune(label); len(runes) > maxDisplayLabelLen {
		label = string(runes[:maxDisplayLabelLen])
	}
	return label
}
