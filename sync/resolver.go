// ABOUTME: Owner resolution linking CRM deals to local user accounts
// ABOUTME: Ordered strategies over mappings, seller numbers, and derived emails
package sync

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/stlnu/dealsync/crm"
	"github.com/stlnu/dealsync/db"
	"github.com/stlnu/dealsync/models"
)

// usernamePattern is the shape of a seller number that doubles as a local
// username.
var usernamePattern = regexp.MustCompile(`^\d{4}$`)

// ExtractEmployeeUsername derives a local username from an email address:
// the local part must match the username pattern and the domain must equal
// the configured one. Returns "" when no username can be derived.
func ExtractEmployeeUsername(email, domain string) string {
	email = strings.TrimSpace(strings.ToLower(email))
	at := strings.IndexByte(email, '@')
	if at <= 0 {
		return ""
	}
	local, host := email[:at], email[at+1:]
	if host != strings.ToLower(domain) {
		return ""
	}
	if !usernamePattern.MatchString(local) {
		return ""
	}
	return local
}

// OwnerResolver links deals to local users and maintains owner mapping rows.
type OwnerResolver struct {
	db     *sql.DB
	cfg    *crm.Config
	client CRMClient
}

func NewOwnerResolver(database *sql.DB, cfg *crm.Config, client CRMClient) *OwnerResolver {
	return &OwnerResolver{db: database, cfg: cfg, client: client}
}

// Resolve returns the local user a deal should be attributed to, or nil when
// no strategy succeeds. The owner mapping row for the deal's owner id is
// refreshed as a side effect; an existing user link on the mapping is never
// overwritten by automatic resolution.
func (r *OwnerResolver) Resolve(ctx context.Context, deal *crm.Deal) (*models.User, error) {
	var owner *crm.Owner
	if deal.OwnerID != "" {
		var err error
		owner, err = r.client.GetOwner(ctx, deal.OwnerID)
		if err != nil {
			return nil, fmt.Errorf("failed to look up owner %s: %w", deal.OwnerID, err)
		}
	}

	user, err := r.resolveUser(deal, owner)
	if err != nil {
		return nil, err
	}

	if deal.OwnerID != "" {
		if err := r.refreshMapping(deal, owner, user); err != nil {
			return nil, err
		}
	}

	return user, nil
}

// resolveUser walks the resolution strategies in order. In seller mode the
// persisted mapping link is ignored for attribution: the seller number on
// the deal is authoritative.
func (r *OwnerResolver) resolveUser(deal *crm.Deal, owner *crm.Owner) (*models.User, error) {
	if r.cfg.ResolutionMode == crm.ResolutionModeOwner && deal.OwnerID != "" {
		mapping, err := db.GetOwnerMappingByOwnerID(r.db, deal.OwnerID)
		if err != nil {
			return nil, err
		}
		if mapping != nil && mapping.UserID != nil {
			user, err := db.GetUser(r.db, *mapping.UserID)
			if err != nil {
				return nil, err
			}
			if user != nil {
				return user, nil
			}
		}
	}

	if usernamePattern.MatchString(deal.SellerID) {
		user, err := db.FindUserByUsername(r.db, deal.SellerID)
		if err != nil {
			return nil, err
		}
		if user != nil {
			return user, nil
		}
	}

	for _, email := range candidateEmails(deal, owner) {
		username := ExtractEmployeeUsername(email, r.cfg.UsernameEmailDomain)
		if username == "" {
			continue
		}
		user, err := db.FindUserByUsername(r.db, username)
		if err != nil {
			return nil, err
		}
		if user != nil {
			return user, nil
		}
	}

	return nil, nil
}

func candidateEmails(deal *crm.Deal, owner *crm.Owner) []string {
	var emails []string
	if owner != nil && owner.Email != "" {
		emails = append(emails, owner.Email)
	}
	if deal.OwnerEmail != "" {
		emails = append(emails, deal.OwnerEmail)
	}
	return emails
}

// refreshMapping upserts the owner mapping row: metadata refreshed with
// first-non-empty precedence (live owner record, then deal hints, then the
// stored value), the user link set only when not already present. When the
// CRM returned no owner record and there is nothing new to store, only the
// last_seen stamp moves.
func (r *OwnerResolver) refreshMapping(deal *crm.Deal, owner *crm.Owner, user *models.User) error {
	now := time.Now().UTC()

	mapping, err := db.GetOwnerMappingByOwnerID(r.db, deal.OwnerID)
	if err != nil {
		return err
	}

	if mapping != nil && owner == nil {
		sameEmail := firstNonEmpty(deal.OwnerEmail, mapping.Email) == mapping.Email
		if sameEmail && (mapping.UserID != nil || user == nil) {
			return db.TouchOwnerMappingSeen(r.db, deal.OwnerID, now)
		}
	}

	if mapping == nil {
		mapping = &models.OwnerMapping{CRMOwnerID: deal.OwnerID}
	}

	if owner != nil {
		mapping.Email = firstNonEmpty(owner.Email, deal.OwnerEmail, mapping.Email)
		mapping.FirstName = firstNonEmpty(owner.FirstName, mapping.FirstName)
		mapping.LastName = firstNonEmpty(owner.LastName, mapping.LastName)
		mapping.PrimaryTeamName = firstNonEmpty(owner.PrimaryTeam, mapping.PrimaryTeamName)
		if len(owner.Teams) > 0 {
			mapping.TeamNames = strings.Join(owner.Teams, " | ")
		}
		mapping.IsArchived = owner.Archived
		mapping.LastOwnerSync = &now
	} else {
		mapping.Email = firstNonEmpty(deal.OwnerEmail, mapping.Email)
	}

	// The link is sticky: only Unlink clears it, and it is never replaced.
	if mapping.UserID == nil && user != nil {
		mapping.UserID = &user.ID
		mapping.Username = user.Username
	}

	mapping.LastSeen = now

	return db.SaveOwnerMapping(r.db, mapping)
}

// Unlink removes the local-account link from an owner mapping.
func (r *OwnerResolver) Unlink(crmOwnerID string) error {
	return db.UnlinkOwnerMapping(r.db, crmOwnerID)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
