// ABOUTME: Data models for the CRM mirror, sync bookkeeping, and contests
// ABOUTME: Defines DealRecord, OwnerMapping, SyncState, SyncRun, Contest, and ContestEntry
package models

import (
	"time"

	"github.com/google/uuid"
)

// DealRecord is one mirrored fulfilled deal. A row exists iff the deal is
// currently classified fulfilled upstream; reconciliation deletes rows for
// deals that move out of a fulfilled stage.
type DealRecord struct {
	ID              uuid.UUID  `json:"id"`
	ExternalDealID  string     `json:"external_deal_id"`
	DealName        string     `json:"deal_name,omitempty"`
	CRMOwnerID      string     `json:"crm_owner_id,omitempty"`
	SellerID        string     `json:"seller_id,omitempty"`
	OwnerEmail      string     `json:"owner_email,omitempty"`
	OwnerUserID     *uuid.UUID `json:"owner_user_id,omitempty"`
	FulfilledDate   time.Time  `json:"fulfilled_date"`
	Amount          *float64   `json:"amount,omitempty"`
	SellerProvision *float64   `json:"seller_provision,omitempty"`
	CurrencyCode    string     `json:"currency_code,omitempty"`
	DealStage       string     `json:"deal_stage,omitempty"`
	LastModified    *time.Time `json:"last_modified,omitempty"`
	PayloadHash     string     `json:"payload_hash,omitempty"`
	FirstSeen       time.Time  `json:"first_seen"`
	LastSeen        time.Time  `json:"last_seen"`
}

// OwnerMapping links an external CRM salesperson identity to a local user
// account and caches the latest profile metadata seen for that owner.
// At most one mapping may link to a given local user.
type OwnerMapping struct {
	ID              uuid.UUID  `json:"id"`
	CRMOwnerID      string     `json:"crm_owner_id"`
	Email           string     `json:"email,omitempty"`
	FirstName       string     `json:"first_name,omitempty"`
	LastName        string     `json:"last_name,omitempty"`
	PrimaryTeamName string     `json:"primary_team_name,omitempty"`
	TeamNames       string     `json:"team_names,omitempty"` // " | " separated
	IsArchived      bool       `json:"is_archived"`
	UserID          *uuid.UUID `json:"user_id,omitempty"`
	Username        string     `json:"username,omitempty"`
	LastSeen        time.Time  `json:"last_seen"`
	LastOwnerSync   *time.Time `json:"last_owner_sync,omitempty"`
}

// SyncState is the resumable checkpoint for one integration.
type SyncState struct {
	IntegrationName    string     `json:"integration_name"`
	LastSuccessfulSync *time.Time `json:"last_successful_sync,omitempty"`
	LastCursor         string     `json:"last_cursor,omitempty"`
	LastAttempt        *time.Time `json:"last_attempt,omitempty"`
	LastError          string     `json:"last_error,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
}

// SyncRun is one append-only audit row per sync invocation.
type SyncRun struct {
	ID            string     `json:"id"` // ULID
	Started       time.Time  `json:"started"`
	Finished      *time.Time `json:"finished,omitempty"`
	Status        string     `json:"status"`
	DealsFetched  int        `json:"deals_fetched"`
	DealsImported int        `json:"deals_imported"`
	DealsUpdated  int        `json:"deals_updated"`
	DealsSkipped  int        `json:"deals_skipped"`
	ErrorMessage  string     `json:"error_message,omitempty"`
}

type Contest struct {
	ID          uuid.UUID `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	StartDate   time.Time `json:"start_date"`
	EndDate     time.Time `json:"end_date"`
	IsActive    bool      `json:"is_active"`
	CreatedAt   time.Time `json:"created_at"`
}

// ContestEntry is one leaderboard row. Entries are a derived view: the
// aggregator deletes and reinserts every entry for an active contest on
// each recalculation.
type ContestEntry struct {
	ID           uuid.UUID  `json:"id"`
	ContestID    uuid.UUID  `json:"contest_id"`
	OwnerKey     string     `json:"owner_key"`
	UserID       *uuid.UUID `json:"user_id,omitempty"`
	DisplayLabel string     `json:"display_label"`
	DealsCount   int        `json:"deals_count"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// User is the local account directory surface consumed by owner resolution.
type User struct {
	ID          uuid.UUID `json:"id"`
	Username    string    `json:"username"`
	Email       string    `json:"email,omitempty"`
	DisplayName string    `json:"display_name,omitempty"`
	Role        string    `json:"role,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// MonthlyRollupRow is one owner's aggregate over a calendar month of
// mirrored deals.
type MonthlyRollupRow struct {
	CRMOwnerID   string   `json:"crm_owner_id,omitempty"`
	OwnerEmail   string   `json:"owner_email,omitempty"`
	DealsCount   int      `json:"deals_count"`
	AmountSum    *float64 `json:"amount_sum,omitempty"`
	ProvisionSum *float64 `json:"provision_sum,omitempty"`
}

// Sync run status constants.
const (
	RunStarted   = "Started"
	RunSucceeded = "Succeeded"
	RunFailed    = "Failed"
)

// IntegrationDeals names the single CRM deal integration tracked in sync_state.
const IntegrationDeals = "CRMDeals"
