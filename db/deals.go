// ABOUTME: Mirrored deal database operations
// ABOUTME: Handles upsert/delete reconciliation rows and aggregate queries over the mirror
package db

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/stlnu/dealsync/models"
)

const dealColumns = `id, external_deal_id, deal_name, crm_owner_id, seller_id, owner_email,
	owner_user_id, fulfilled_date, amount, seller_provision, currency_code, deal_stage,
	last_modified, payload_hash, first_seen, last_seen`

// GetDealByExternalID returns the mirrored row for an external deal id, or nil.
func GetDealByExternalID(db *sql.DB, externalDealID string) (*models.DealRecord, error) {
	row := db.QueryRow(`
		SELECT `+dealColumns+`
		FROM deal_imports WHERE external_deal_id = ?
	`, externalDealID)

	deal, err := scanDeal(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get deal: %w", err)
	}
	return deal, nil
}

// CreateDeal inserts a new mirrored deal row.
func CreateDeal(db *sql.DB, deal *models.DealRecord) error {
	deal.ID = uuid.New()
	now := time.Now().UTC()
	deal.FirstSeen = now
	deal.LastSeen = now

	_, err := db.Exec(`
		INSERT INTO deal_imports (`+dealColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, deal.ID.String(), deal.ExternalDealID, deal.DealName, deal.CRMOwnerID, deal.SellerID,
		deal.OwnerEmail, uuidPtr(deal.OwnerUserID), deal.FulfilledDate, deal.Amount,
		deal.SellerProvision, deal.CurrencyCode, deal.DealStage, deal.LastModified,
		deal.PayloadHash, deal.FirstSeen, deal.LastSeen)

	if err != nil {
		return fmt.Errorf("failed to create deal: %w", err)
	}
	return nil
}

// UpdateDeal overwrites every mutable field of the row keyed by external deal
// id. Overwrites are unconditional so last_seen stays accurate even when the
// payload hash is unchanged.
func UpdateDeal(db *sql.DB, deal *models.DealRecord) error {
	deal.LastSeen = time.Now().UTC()

	_, err := db.Exec(`
		UPDATE deal_imports
		SET deal_name = ?, crm_owner_id = ?, seller_id = ?, owner_email = ?, owner_user_id = ?,
			fulfilled_date = ?, amount = ?, seller_provision = ?, currency_code = ?,
			deal_stage = ?, last_modified = ?, payload_hash = ?, last_seen = ?
		WHERE external_deal_id = ?
	`, deal.DealName, deal.CRMOwnerID, deal.SellerID, deal.OwnerEmail, uuidPtr(deal.OwnerUserID),
		deal.FulfilledDate, deal.Amount, deal.SellerProvision, deal.CurrencyCode,
		deal.DealStage, deal.LastModified, deal.PayloadHash, deal.LastSeen, deal.ExternalDealID)

	if err != nil {
		return fmt.Errorf("failed to update deal: %w", err)
	}
	return nil
}

// DeleteDealByExternalID removes a mirrored deal. Used when a previously
// fulfilled deal moves out of the fulfilled stage set.
func DeleteDealByExternalID(db *sql.DB, externalDealID string) error {
	_, err := db.Exec(`DELETE FROM deal_imports WHERE external_deal_id = ?`, externalDealID)
	if err != nil {
		return fmt.Errorf("failed to delete deal: %w", err)
	}
	return nil
}

// DeleteAllDeals clears the mirror. Only the window rebuild uses this.
func DeleteAllDeals(db *sql.DB) error {
	_, err := db.Exec(`DELETE FROM deal_imports`)
	if err != nil {
		return fmt.Errorf("failed to clear deals: %w", err)
	}
	return nil
}

// OwnerGroup is one (owner id, owner email) bucket of mirrored deals.
type OwnerGroup struct {
	CRMOwnerID string
	OwnerEmail string
	DealsCount int
}

// GroupDealsByOwner groups mirrored deals with a fulfillment date inside
// [start, end] by raw owner id and email. Rows with no ownership signal at
// all are excluded; the aggregator merges the remaining buckets by canonical
// owner key.
func GroupDealsByOwner(db *sql.DB, start, end time.Time) ([]OwnerGroup, error) {
	rows, err := db.Query(`
		SELECT COALESCE(crm_owner_id, ''), COALESCE(owner_email, ''), COUNT(*)
		FROM deal_imports
		WHERE fulfilled_date >= ? AND fulfilled_date <= ?
			AND (COALESCE(crm_owner_id, '') != '' OR COALESCE(owner_email, '') != '')
		GROUP BY COALESCE(crm_owner_id, ''), COALESCE(owner_email, '')
	`, start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to group deals: %w", err)
	}
	defer rows.Close()

	var groups []OwnerGroup
	for rows.Next() {
		var g OwnerGroup
		if err := rows.Scan(&g.CRMOwnerID, &g.OwnerEmail, &g.DealsCount); err != nil {
			return nil, err
		}
		groups = append(groups, g)
	}

	return groups, rows.Err()
}

// MonthlyRollup aggregates mirrored deals fulfilled inside [start, end] per
// raw owner bucket: deal count plus amount and provision sums.
func MonthlyRollup(db *sql.DB, start, end time.Time) ([]models.MonthlyRollupRow, error) {
	rows, err := db.Query(`
		SELECT COALESCE(crm_owner_id, ''), COALESCE(owner_email, ''),
			COUNT(*), SUM(amount), SUM(seller_provision)
		FROM deal_imports
		WHERE fulfilled_date >= ? AND fulfilled_date <= ?
		GROUP BY COALESCE(crm_owner_id, ''), COALESCE(owner_email, '')
		ORDER BY COUNT(*) DESC
	`, start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to compute rollup: %w", err)
	}
	defer rows.Close()

	var rollup []models.MonthlyRollupRow
	for rows.Next() {
		var r models.MonthlyRollupRow
		var amountSum, provisionSum sql.NullFloat64
		if err := rows.Scan(&r.CRMOwnerID, &r.OwnerEmail, &r.DealsCount, &amountSum, &provisionSum); err != nil {
			return nil, err
		}
		if amountSum.Valid {
			r.AmountSum = &amountSum.Float64
		}
		if provisionSum.Valid {
			r.ProvisionSum = &provisionSum.Float64
		}
		rollup = append(rollup, r)
	}

	return rollup, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDeal(row rowScanner) (*models.DealRecord, error) {
	deal := &models.DealRecord{}
	var (
		id          string
		dealName    sql.NullString
		ownerID     sql.NullString
		sellerID    sql.NullString
		ownerEmail  sql.NullString
		ownerUserID sql.NullString
		amount      sql.NullFloat64
		provision   sql.NullFloat64
		currency    sql.NullString
		stage       sql.NullString
		modified    sql.NullTime
		payloadHash sql.NullString
	)

	err := row.Scan(&id, &deal.ExternalDealID, &dealName, &ownerID, &sellerID, &ownerEmail,
		&ownerUserID, &deal.FulfilledDate, &amount, &provision, &currency, &stage,
		&modified, &payloadHash, &deal.FirstSeen, &deal.LastSeen)
	if err != nil {
		return nil, err
	}

	deal.ID, err = uuid.Parse(id)
	if err != nil {
		return nil, err
	}

	deal.DealName = dealName.String
	deal.CRMOwnerID = ownerID.String
	deal.SellerID = sellerID.String
	deal.OwnerEmail = ownerEmail.String
	deal.CurrencyCode = currency.String
	deal.DealStage = stage.String
	deal.PayloadHash = payloadHash.String

	if ownerUserID.Valid {
		if uid, err := uuid.Parse(ownerUserID.String); err == nil {
			deal.OwnerUserID = &uid
		}
	}
	if amount.Valid {
		deal.Amount = &amount.Float64
	}
	if provision.Valid {
		deal.SellerProvision = &provision.Float64
	}
	if modified.Valid {
		deal.LastModified = &modified.Time
	}

	return deal, nil
}

func uuidPtr(id *uuid.UUID) *string {
	if id == nil {
		return nil
	}
	s := id.String()
	return &s
}
