// ABOUTME: Incremental CRM deal sync engine with backfill, reconcile, and rebuild
// ABOUTME: Wraps every run in audit rows and checkpoint updates, never panics out
package sync

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/stlnu/dealsync/crm"
	"github.com/stlnu/dealsync/db"
	"github.com/stlnu/dealsync/models"
)

// CRMClient is the remote API surface the engine needs. *crm.Client
// implements it; tests substitute scripted fakes.
type CRMClient interface {
	FetchDealsPage(ctx context.Context, modifiedSince *time.Time, cursor string, pageSize int) (*crm.DealPage, error)
	SearchDealsByFulfillmentWindow(ctx context.Context, start, end time.Time, cursor string, pageSize int) (*crm.DealPage, error)
	GetOwner(ctx context.Context, ownerID string) (*crm.Owner, error)
	ResetOwnerCache()
}

// StatusChecker classifies raw deal stages as fulfilled or not.
type StatusChecker interface {
	IsFulfilled(stage string) bool
}

// RunResult summarizes one sync invocation for callers.
type RunResult struct {
	Succeeded     bool
	DealsFetched  int
	DealsImported int
	DealsUpdated  int
	DealsSkipped  int
	Message       string
}

// Engine drives the deal mirror: fetch, reconcile, contest sweep,
// leaderboard recompute.
type Engine struct {
	db         *sql.DB
	cfg        *crm.Config
	client     CRMClient
	status     StatusChecker
	resolver   *OwnerResolver
	aggregator *Aggregator
}

func NewEngine(database *sql.DB, cfg *crm.Config, client CRMClient, status StatusChecker) *Engine {
	return &Engine{
		db:         database,
		cfg:        cfg,
		client:     client,
		status:     status,
		resolver:   NewOwnerResolver(database, cfg, client),
		aggregator: NewAggregator(database),
	}
}

// RunIncrementalSync performs one sync run: backfill until the full listing
// has been walked once, incremental by modification time after that. The run
// is recorded in sync_runs and the checkpoint updated; failures are reported
// on the result, never raised.
func (e *Engine) RunIncrementalSync(ctx context.Context) *RunResult {
	if !e.cfg.Enabled {
		return &RunResult{Succeeded: true, Message: "integration disabled, nothing to do"}
	}

	return e.run(ctx, func(ctx context.Context, run *models.SyncRun, state *models.SyncState) error {
		backfill := state.LastSuccessfulSync == nil

		var modifiedSince *time.Time
		cursor := ""
		if backfill {
			cursor = state.LastCursor
		} else {
			modifiedSince = state.LastSuccessfulSync
		}

		budgetExhausted := false
		for page := 0; ; page++ {
			if page >= e.cfg.MaxPagesPerRun {
				budgetExhausted = true
				break
			}

			dealPage, err := e.client.FetchDealsPage(ctx, modifiedSince, cursor, e.cfg.PageSize)
			if err != nil {
				return fmt.Errorf("failed to fetch deals page: %w", err)
			}

			run.DealsFetched += len(dealPage.Deals)
			for i := range dealPage.Deals {
				if err := e.reconcile(ctx, &dealPage.Deals[i], run); err != nil {
					return err
				}
			}

			cursor = dealPage.NextCursor
			if cursor == "" {
				break
			}
		}

		if err := e.sweepActiveContests(ctx, run); err != nil {
			return err
		}
		if err := e.aggregator.RecomputeActiveContests(time.Now().UTC()); err != nil {
			return err
		}

		// The checkpoint only advances once the whole run has succeeded;
		// a failed sweep leaves the old watermark for the retry.
		now := time.Now().UTC()
		if backfill && budgetExhausted && cursor != "" {
			// Listing not finished yet: keep the cursor, stay in backfill
			state.LastCursor = cursor
		} else {
			state.LastSuccessfulSync = &now
			state.LastCursor = ""
		}
		return nil
	})
}

// RebuildCurrentMonthOnly wipes the mirror, owner mappings, and every
// leaderboard entry, then rebuilds from a window search over the current
// calendar month. A recovery tool, not part of the normal schedule.
func (e *Engine) RebuildCurrentMonthOnly(ctx context.Context) *RunResult {
	if !e.cfg.Enabled {
		return &RunResult{Succeeded: true, Message: "integration disabled, nothing to do"}
	}

	return e.run(ctx, func(ctx context.Context, run *models.SyncRun, state *models.SyncState) error {
		if err := db.DeleteAllContestEntries(e.db); err != nil {
			return err
		}
		if err := db.DeleteAllOwnerMappings(e.db); err != nil {
			return err
		}
		if err := db.DeleteAllDeals(e.db); err != nil {
			return err
		}

		start, end := currentMonthWindow(time.Now())
		if err := e.syncWindow(ctx, start, end, run); err != nil {
			return err
		}

		if err := e.aggregator.RecomputeActiveContests(time.Now().UTC()); err != nil {
			return err
		}

		now := time.Now().UTC()
		state.LastSuccessfulSync = &now
		state.LastCursor = ""
		return nil
	})
}

// run wraps one unit of sync work with the run-row lifecycle, checkpoint
// stamping, and panic containment.
func (e *Engine) run(ctx context.Context, work func(context.Context, *models.SyncRun, *models.SyncState) error) (result *RunResult) {
	now := time.Now().UTC()
	run := &models.SyncRun{
		ID:      ulid.Make().String(),
		Started: now,
		Status:  models.RunStarted,
	}
	if err := db.CreateSyncRun(e.db, run); err != nil {
		return &RunResult{Message: fmt.Sprintf("failed to record run: %v", err)}
	}

	state, err := db.GetSyncState(e.db, models.IntegrationDeals)
	if err != nil {
		return e.finishRun(run, nil, err)
	}
	if state == nil {
		state = &models.SyncState{IntegrationName: models.IntegrationDeals, CreatedAt: now}
	}
	state.LastAttempt = &now
	if err := db.SaveSyncState(e.db, state); err != nil {
		return e.finishRun(run, nil, err)
	}

	e.client.ResetOwnerCache()

	defer func() {
		if r := recover(); r != nil {
			result = e.finishRun(run, state, fmt.Errorf("sync panicked: %v", r))
		}
	}()

	return e.finishRun(run, state, work(ctx, run, state))
}

// finishRun closes out the run row and checkpoint and builds the result.
func (e *Engine) finishRun(run *models.SyncRun, state *models.SyncState, workErr error) *RunResult {
	finished := time.Now().UTC()
	run.Finished = &finished

	result := &RunResult{
		DealsFetched:  run.DealsFetched,
		DealsImported: run.DealsImported,
		DealsUpdated:  run.DealsUpdated,
		DealsSkipped:  run.DealsSkipped,
	}

	if workErr != nil {
		run.Status = models.RunFailed
		run.ErrorMessage = workErr.Error()
		result.Message = workErr.Error()
	} else {
		run.Status = models.RunSucceeded
		result.Succeeded = true
		result.Message = fmt.Sprintf("fetched %d, imported %d, updated %d, skipped %d",
			run.DealsFetched, run.DealsImported, run.DealsUpdated, run.DealsSkipped)
	}

	if err := db.UpdateSyncRun(e.db, run); err != nil {
		log.Printf("failed to finalize sync run %s: %v", run.ID, err)
	}

	if state != nil {
		if workErr != nil {
			state.LastError = workErr.Error()
		} else {
			state.LastError = ""
		}
		if err := db.SaveSyncState(e.db, state); err != nil {
			log.Printf("failed to save sync state: %v", err)
		}
	}

	return result
}

// reconcile applies one fetched deal to the mirror.
//
// A deal only keeps a row while it is fulfilled and dated; otherwise any
// existing row is deleted. Deals with no usable seller reference are skipped
// entirely. Everything else is inserted or fully overwritten; the payload
// hash is stored but never used to short-circuit the write.
func (e *Engine) reconcile(ctx context.Context, deal *crm.Deal, run *models.SyncRun) error {
	existing, err := db.GetDealByExternalID(e.db, deal.ExternalID)
	if err != nil {
		return err
	}

	if !e.status.IsFulfilled(deal.Stage) || deal.FulfilledDate == nil {
		if existing != nil {
			if err := db.DeleteDealByExternalID(e.db, deal.ExternalID); err != nil {
				return err
			}
			run.DealsUpdated++
		} else {
			run.DealsSkipped++
		}
		return nil
	}

	if !e.hasSellerReference(deal) {
		run.DealsSkipped++
		return nil
	}

	user, err := e.resolver.Resolve(ctx, deal)
	if err != nil {
		return err
	}

	record := &models.DealRecord{
		ExternalDealID:  deal.ExternalID,
		DealName:        deal.Name,
		CRMOwnerID:      deal.OwnerID,
		SellerID:        deal.SellerID,
		OwnerEmail:      deal.OwnerEmail,
		FulfilledDate:   *deal.FulfilledDate,
		Amount:          deal.Amount,
		SellerProvision: deal.Provision,
		CurrencyCode:    deal.CurrencyCode,
		DealStage:       deal.Stage,
		LastModified:    deal.LastModified,
		PayloadHash:     deal.PayloadHash,
	}
	if user != nil {
		record.OwnerUserID = &user.ID
	}

	if existing != nil {
		record.ID = existing.ID
		record.FirstSeen = existing.FirstSeen
		if err := db.UpdateDeal(e.db, record); err != nil {
			return err
		}
		run.DealsUpdated++
	} else {
		if err := db.CreateDeal(e.db, record); err != nil {
			return err
		}
		run.DealsImported++
	}

	return nil
}

// hasSellerReference is the mode-dependent import gate: owner mode requires
// an owner id on the deal, seller mode a seller number.
func (e *Engine) hasSellerReference(deal *crm.Deal) bool {
	if e.cfg.ResolutionMode == crm.ResolutionModeSeller {
		return deal.SellerID != ""
	}
	return deal.OwnerID != ""
}

// sweepActiveContests window-searches each active contest so deals fulfilled
// inside a contest window are mirrored even when their modification time
// predates the incremental watermark.
func (e *Engine) sweepActiveContests(ctx context.Context, run *models.SyncRun) error {
	contests, err := db.ListActiveContests(e.db, time.Now().UTC())
	if err != nil {
		return err
	}

	for _, contest := range contests {
		if err := e.syncWindow(ctx, contest.StartDate, contest.EndDate, run); err != nil {
			return fmt.Errorf("failed to sweep contest %s: %w", contest.Name, err)
		}
	}
	return nil
}

// syncWindow reconciles every deal the window search returns, page-budgeted.
func (e *Engine) syncWindow(ctx context.Context, start, end time.Time, run *models.SyncRun) error {
	cursor := ""
	for page := 0; page < e.cfg.MaxPagesPerRun; page++ {
		dealPage, err := e.client.SearchDealsByFulfillmentWindow(ctx, start, end, cursor, e.cfg.PageSize)
		if err != nil {
			return fmt.Errorf("failed to search deals by window: %w", err)
		}

		run.DealsFetched += len(dealPage.Deals)
		for i := range dealPage.Deals {
			if err := e.reconcile(ctx, &dealPage.Deals[i], run); err != nil {
				return err
			}
		}

		cursor = dealPage.NextCursor
		if cursor == "" {
			break
		}
	}
	return nil
}

// currentMonthWindow returns the UTC bounds of the calendar month containing
// now, in now's location.
func currentMonthWindow(now time.Time) (time.Time, time.Time) {
	year, month, _ := now.Date()
	start := time.Date(year, month, 1, 0, 0, 0, 0, now.Location())
	end := start.AddDate(0, 1, 0).Add(-time.Second)
	return start.UTC(), end.UTC()
}
