package dossiers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
)

// DefaultPageSize is the listing page size asked to the upstream API.
const DefaultPageSize = 1000

// RecordStore is the persistence the sync needs.
type RecordStore interface {
	TerminalIDs(ctx context.Context) (map[int64]struct{}, error)
	UpsertIfNewer(ctx context.Context, candidate *Dossier) (UpsertOutcome, error)
}

type SyncConfig struct {
	PageSize int
	Logger   *slog.Logger
}

// Syncer copies the upstream dossiers into a RecordStore. One Run walks the
// whole listing then fetches every non-terminal dossier, sequentially.
type Syncer struct {
	client   Client
	store    RecordStore
	pageSize int
	logger   *slog.Logger
}

// RunStats are the counters of one Run.
type RunStats struct {
	RunID           string
	Checked         int // ids found in the listing
	HTTPQueries     int
	Processed       int // created + updated
	Created         int
	Updated         int
	Skipped         int // not newer than the stored version
	SkippedTerminal int // already terminal, not fetched
	Failed          int
	Elapsed         time.Duration
}

func NewSyncer(client Client, store RecordStore, cfg SyncConfig) *Syncer {
	if cfg.PageSize <= 0 {
		cfg.PageSize = DefaultPageSize
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Syncer{client: client, store: store, pageSize: cfg.PageSize, logger: cfg.Logger}
}

func (s *Syncer) Run(ctx context.Context) (RunStats, error) {
	start := time.Now()
	stats := RunStats{RunID: uuid.NewString()}
	err := s.run(ctx, s.logger.With("run_id", stats.RunID), &stats)
	stats.Elapsed = time.Since(start)
	return stats, err
}

func (s *Syncer) run(ctx context.Context, log *slog.Logger, stats *RunStats) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	ids, err := s.fetchIDs(ctx, log, stats)
	if err != nil {
		return err
	}
	stats.Checked = len(ids)
	if len(ids) == 0 {
		log.Info("nothing to sync")
		return nil
	}

	terminal, err := s.store.TerminalIDs(ctx)
	if err != nil {
		return fmt.Errorf("load terminal dossiers: %w", err)
	}

	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return err
		}
		if _, ok := terminal[id]; ok {
			log.Debug("dossier already in a completed state", "ds_id", id)
			stats.SkippedTerminal++
			continue
		}

		outcome, err := s.syncOne(ctx, log, id, stats)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			var mre *MalformedRecordError
			var te *TransportError
			if errors.As(err, &mre) || errors.As(err, &te) {
				log.Warn("dossier not synced", "ds_id", id, "err", err)
				stats.Failed++
				continue
			}
			return err
		}

		switch outcome {
		case OutcomeCreated:
			stats.Created++
			stats.Processed++
		case OutcomeUpdated:
			stats.Updated++
			stats.Processed++
		default:
			stats.Skipped++
		}
	}

	log.Info("sync done",
		"checked", stats.Checked,
		"http_queries", stats.HTTPQueries,
		"created", stats.Created,
		"updated", stats.Updated,
		"skipped", stats.Skipped,
		"skipped_terminal", stats.SkippedTerminal,
		"failed", stats.Failed)
	return nil
}

// fetchIDs walks the listing pages in order and returns the ids in listing
// order, without duplicates.
func (s *Syncer) fetchIDs(ctx context.Context, log *slog.Logger, stats *RunStats) ([]int64, error) {
	page := 1
	listing, err := s.client.ListDossiers(ctx, page, s.pageSize)
	stats.HTTPQueries++
	if err != nil {
		return nil, fmt.Errorf("list dossiers page %d: %w", page, err)
	}
	if listing == nil {
		log.Warn("empty listing response")
		return nil, nil
	}

	seen := make(map[int64]struct{})
	var ids []int64
	collect := func(l *Listing) {
		for _, item := range l.Dossiers {
			if _, ok := seen[item.ID]; ok {
				continue
			}
			seen[item.ID] = struct{}{}
			ids = append(ids, item.ID)
		}
	}
	collect(listing)
	log.Debug("listing page", "page", page, "pages", listing.Pagination.NombreDePage, "items", len(listing.Dossiers))

	for {
		current := listing.Pagination.Page
		if current < page {
			current = page
		}
		if current >= listing.Pagination.NombreDePage {
			break
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		page = current + 1
		listing, err = s.client.ListDossiers(ctx, page, s.pageSize)
		stats.HTTPQueries++
		if err != nil {
			return nil, fmt.Errorf("list dossiers page %d: %w", page, err)
		}
		if listing == nil {
			return nil, fmt.Errorf("%w: empty page %d", ErrMalformedListing, page)
		}
		collect(listing)
		log.Debug("listing page", "page", page, "pages", listing.Pagination.NombreDePage, "items", len(listing.Dossiers))
	}
	return ids, nil
}

func (s *Syncer) syncOne(ctx context.Context, log *slog.Logger, id int64, stats *RunStats) (UpsertOutcome, error) {
	log.Debug("fetching dossier", "ds_id", id)
	raw, err := s.client.GetDossier(ctx, id)
	stats.HTTPQueries++
	if err != nil {
		return OutcomeSkipped, err
	}
	candidate, err := BuildDossier(raw)
	if err != nil {
		var mre *MalformedRecordError
		if errors.As(err, &mre) && mre.DSID == 0 {
			mre.DSID = id
		}
		return OutcomeSkipped, err
	}
	if candidate.DSID != id {
		return OutcomeSkipped, malformed(id, "detail returned dossier %d", candidate.DSID)
	}
	outcome, err := s.store.UpsertIfNewer(ctx, candidate)
	if err != nil {
		return OutcomeSkipped, err
	}
	if outcome != OutcomeSkipped {
		log.Info("storing dossier", "ds_id", id, "outcome", outcome.String(), "status", candidate.Status)
	}
	return outcome, nil
}

// WriteSummary prints the end-of-run report.
func (st RunStats) WriteSummary(w io.Writer) error {
	_, err := fmt.Fprintf(w, "%s\n%d - number of dossiers checked\n%d - number of HTTP queries performed\n%d - number of dossiers processed\n%d - number of dossiers failed\nDone.\n",
		strings.Repeat("-", 80), st.Checked, st.HTTPQueries, st.Processed, st.Failed)
	return err
}
