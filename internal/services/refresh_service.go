// Package services – RefreshService
//
// This file implements the price-refresh pipeline: it walks every deal
// eligible for automatic refresh, asks the fetcher for the current price,
// and folds the outcome back into the store.
//
// Outcome semantics per deal:
//   - price changed:  append a history row and move current_price in one
//     transaction, reset the failure counter
//   - price unchanged: touch last_checked only (history stays duplicate-free)
//   - fetch failed:   bump the failure counter, touch last_checked, leave
//     price fields alone; at the configured threshold the deal transitions
//     to broken_link and leaves the refresh set
//
// Deals are fetched concurrently, but each deal is owned by exactly one
// goroutine per run, so two pipeline writes never interleave on the same
// deal. Curator actions can still race an in-flight fetch, so every write
// re-reads the deal inside its transaction and is skipped when the deal has
// left the refresh set in the meantime. A failure on one deal never aborts
// the run. There is no in-run retry; the next scheduled run is the retry.
package services

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/tbourn/go-deal-backend/internal/domain"
	"github.com/tbourn/go-deal-backend/internal/fetch"
	"github.com/tbourn/go-deal-backend/internal/repo"
)

// RefreshOutcome labels what a refresh run did to a single deal.
type RefreshOutcome string

const (
	OutcomeUpdated     RefreshOutcome = "updated"
	OutcomeUnchanged   RefreshOutcome = "unchanged"
	OutcomeFailed      RefreshOutcome = "failed"
	OutcomeDeactivated RefreshOutcome = "deactivated"
)

// RefreshReport summarizes one refresh run.
type RefreshReport struct {
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`

	// Deal ids per outcome bucket. A deal deactivated in this run appears
	// in Deactivated only (its terminal outcome), not also in Failed.
	Updated     []string `json:"updated"`
	Unchanged   []string `json:"unchanged"`
	Failed      []string `json:"failed"`
	Deactivated []string `json:"deactivated"`

	// WriteFailures lists deals whose fetched price could not be persisted.
	// They are surfaced here instead of being silently dropped.
	WriteFailures []string `json:"write_failures,omitempty"`
}

// Total returns the number of deals touched by the run.
func (r *RefreshReport) Total() int {
	return len(r.Updated) + len(r.Unchanged) + len(r.Failed) + len(r.Deactivated) + len(r.WriteFailures)
}

// RefreshService runs the automated price-refresh pipeline.
type RefreshService struct {
	// DB is the GORM handle used for persistence.
	DB *gorm.DB
	// Fetcher retrieves current prices from retailer pages.
	Fetcher fetch.Fetcher

	// FailureThreshold is the number of consecutive failed fetches after
	// which a deal transitions to broken_link. Values < 1 default to 3.
	FailureThreshold int
	// Concurrency bounds the number of in-flight fetches. Values < 1
	// default to 4.
	Concurrency int
	// FetchTimeout bounds each individual fetch. Values <= 0 default to 10s.
	FetchTimeout time.Duration

	// Now supplies the current time; defaults to time.Now when nil.
	Now func() time.Time
}

// NewRefreshService constructs a RefreshService with the given collaborators.
func NewRefreshService(db *gorm.DB, f fetch.Fetcher, threshold, concurrency int, fetchTimeout time.Duration) *RefreshService {
	return &RefreshService{
		DB:               db,
		Fetcher:          f,
		FailureThreshold: threshold,
		Concurrency:      concurrency,
		FetchTimeout:     fetchTimeout,
		Now:              func() time.Time { return time.Now().UTC() },
	}
}

// Run executes one refresh pass over all refreshable deals and returns the
// run report. Only listing the refresh set can fail the run as a whole;
// per-deal errors are absorbed into the report.
func (s *RefreshService) Run(ctx context.Context) (*RefreshReport, error) {
	started := s.now()
	report := &RefreshReport{StartedAt: started}

	deals, err := repo.ListRefreshableDeals(ctx, s.DB)
	if err != nil {
		return nil, err
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency())

	for i := range deals {
		deal := deals[i]
		g.Go(func() error {
			outcome := s.refreshDeal(gctx, deal)
			refreshOutcomes.WithLabelValues(string(outcome)).Inc()
			mu.Lock()
			switch outcome {
			case OutcomeUpdated:
				report.Updated = append(report.Updated, deal.ID)
			case OutcomeUnchanged:
				report.Unchanged = append(report.Unchanged, deal.ID)
			case OutcomeDeactivated:
				report.Deactivated = append(report.Deactivated, deal.ID)
			case outcomeWriteFailed:
				report.WriteFailures = append(report.WriteFailures, deal.ID)
			case outcomeSkipped:
				// Curated away mid-run; nothing was written, nothing to report.
			default:
				report.Failed = append(report.Failed, deal.ID)
			}
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	report.FinishedAt = s.now()
	sortBuckets(report)

	refreshRuns.Inc()
	refreshDuration.Observe(report.FinishedAt.Sub(started).Seconds())
	log.Info().
		Int("total", report.Total()).
		Int("updated", len(report.Updated)).
		Int("unchanged", len(report.Unchanged)).
		Int("failed", len(report.Failed)).
		Int("deactivated", len(report.Deactivated)).
		Int("write_failures", len(report.WriteFailures)).
		Msg("refresh run finished")
	return report, nil
}

// RefreshOne refreshes a single deal on demand (the dashboard's manual
// "re-check" action). Unlike Run it refuses deals outside the refresh set,
// so a broken-link deal must be re-activated first.
func (s *RefreshService) RefreshOne(ctx context.Context, dealID string) (RefreshOutcome, error) {
	deal, err := repo.GetDeal(ctx, s.DB, dealID)
	if err != nil {
		if err == repo.ErrNotFound {
			return "", ErrDealNotFound
		}
		return "", err
	}
	if !deal.Refreshable() {
		return "", ErrNotRefreshable
	}
	outcome := s.refreshDeal(ctx, *deal)
	refreshOutcomes.WithLabelValues(string(outcome)).Inc()
	switch outcome {
	case outcomeWriteFailed:
		return OutcomeFailed, nil
	case outcomeSkipped:
		// The deal left the refresh set between the read and the write.
		return "", ErrNotRefreshable
	}
	return outcome, nil
}

// outcomeWriteFailed is internal to the pipeline: the fetch succeeded but the
// store write did not. Reports expose it through WriteFailures.
const outcomeWriteFailed RefreshOutcome = "write_failed"

// outcomeSkipped is internal to the pipeline: a curator action removed the
// deal from the refresh set while its fetch was in flight, so the write was
// dropped instead of clobbering the curator's change.
const outcomeSkipped RefreshOutcome = "skipped"

// errCuratedAway aborts a write transaction when the re-read shows the deal
// is no longer refreshable.
var errCuratedAway = errors.New("deal left the refresh set mid-run")

// refreshDeal performs the fetch-compare-update cycle for one deal and
// returns its outcome. It never returns an error; failures are folded into
// the outcome so one deal cannot abort the run.
func (s *RefreshService) refreshDeal(ctx context.Context, deal domain.Deal) RefreshOutcome {
	fctx, cancel := context.WithTimeout(ctx, s.fetchTimeout())
	defer cancel()

	now := s.now()
	quote, err := s.Fetcher.Fetch(fctx, deal.Retailer, deal.ProductURL)
	if err != nil {
		return s.recordFailure(ctx, deal, now, err)
	}
	return s.recordQuote(ctx, deal, quote, now)
}

// recordQuote persists the result of a successful fetch. History and
// current_price move together inside one transaction, or not at all. The deal
// is re-read under the transaction so a concurrent curator action (deactivate,
// reactivate) is never overwritten by a write computed from a stale snapshot.
func (s *RefreshService) recordQuote(ctx context.Context, deal domain.Deal, quote fetch.Quote, now time.Time) RefreshOutcome {
	status := domain.StatusActive
	if !quote.Available {
		status = domain.StatusOutOfStock
	}

	var changed bool
	var prevPrice decimal.Decimal
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		fresh, err := repo.GetDeal(ctx, tx, deal.ID)
		if err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return errCuratedAway
			}
			return err
		}
		if !fresh.Refreshable() {
			return errCuratedAway
		}

		prevPrice = fresh.CurrentPrice
		changed = !quote.Price.Equal(fresh.CurrentPrice)
		fields := map[string]any{
			"last_checked":  now,
			"failure_count": 0,
			"status":        status,
		}
		if changed {
			fields["current_price"] = quote.Price
			fields["currency"] = quote.Currency
			if _, err := repo.AppendPricePoint(ctx, tx, deal.ID, quote.Price, now); err != nil {
				return err
			}
		}
		return repo.UpdateDealFields(ctx, tx, deal.ID, fields)
	})
	if errors.Is(err, errCuratedAway) {
		log.Debug().Str("deal_id", deal.ID).Msg("deal left the refresh set mid-run, write skipped")
		return outcomeSkipped
	}
	if err != nil {
		log.Error().Err(err).Str("deal_id", deal.ID).Msg("refresh write failed")
		return outcomeWriteFailed
	}

	if changed {
		log.Info().
			Str("deal_id", deal.ID).
			Str("retailer", deal.Retailer).
			Str("old_price", prevPrice.String()).
			Str("new_price", quote.Price.String()).
			Msg("price changed")
		return OutcomeUpdated
	}
	return OutcomeUnchanged
}

// recordFailure bumps the failure counter and applies the broken-link
// transition at the threshold. Price fields are never touched on failure.
// The counter is recomputed from a fresh read under the transaction so a
// concurrent reactivation (which resets it) is not clobbered.
func (s *RefreshService) recordFailure(ctx context.Context, deal domain.Deal, now time.Time, ferr error) RefreshOutcome {
	var failures int
	var deactivate bool
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		fresh, err := repo.GetDeal(ctx, tx, deal.ID)
		if err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return errCuratedAway
			}
			return err
		}
		if !fresh.Refreshable() {
			return errCuratedAway
		}

		failures = fresh.FailureCount + 1
		fields := map[string]any{
			"failure_count": failures,
			"last_checked":  now,
		}
		deactivate = failures >= s.failureThreshold()
		if deactivate {
			fields["status"] = domain.StatusBrokenLink
		}
		return repo.UpdateDealFields(ctx, tx, deal.ID, fields)
	})
	if errors.Is(err, errCuratedAway) {
		log.Debug().Str("deal_id", deal.ID).Msg("deal left the refresh set mid-run, write skipped")
		return outcomeSkipped
	}
	if err != nil {
		log.Error().Err(err).Str("deal_id", deal.ID).Msg("failure bookkeeping write failed")
		return outcomeWriteFailed
	}

	ev := log.Warn().
		Str("deal_id", deal.ID).
		Str("retailer", deal.Retailer).
		Str("kind", string(fetch.KindOf(ferr))).
		Int("failure_count", failures).
		Err(ferr)
	if deactivate {
		ev.Msg("deal deactivated after repeated fetch failures")
		return OutcomeDeactivated
	}
	ev.Msg("fetch failed")
	return OutcomeFailed
}

func (s *RefreshService) failureThreshold() int {
	if s.FailureThreshold < 1 {
		return 3
	}
	return s.FailureThreshold
}

func (s *RefreshService) concurrency() int {
	if s.Concurrency < 1 {
		return 4
	}
	return s.Concurrency
}

func (s *RefreshService) fetchTimeout() time.Duration {
	if s.FetchTimeout <= 0 {
		return 10 * time.Second
	}
	return s.FetchTimeout
}

func (s *RefreshService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now().UTC()
}

// sortBuckets keeps report ordering deterministic despite concurrent fills.
func sortBuckets(r *RefreshReport) {
	sort.Strings(r.Updated)
	sort.Strings(r.Unchanged)
	sort.Strings(r.Failed)
	sort.Strings(r.Deactivated)
	sort.Strings(r.WriteFailures)
}
