package dossiers

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"os"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// UpsertOutcome tells what UpsertIfNewer did with a candidate.
type UpsertOutcome int

const (
	OutcomeSkipped UpsertOutcome = iota
	OutcomeCreated
	OutcomeUpdated
)

func (o UpsertOutcome) String() string {
	switch o {
	case OutcomeCreated:
		return "created"
	case OutcomeUpdated:
		return "updated"
	default:
		return "skipped"
	}
}

// Store persists dossiers in SQLite.
type Store struct {
	db     *gorm.DB
	logger *slog.Logger
}

func OpenDB(path string) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.New(log.New(os.Stderr, "", log.LstdFlags), logger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  logger.Warn,
			IgnoreRecordNotFoundError: true,
		}),
	})
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(&Dossier{}); err != nil {
		return nil, err
	}
	return db, nil
}

// OpenStore opens (and migrates) the database at path.
func OpenStore(path string, l *slog.Logger) (*Store, error) {
	db, err := OpenDB(path)
	if err != nil {
		return nil, fmt.Errorf("open store %s: %w", path, err)
	}
	return NewStore(db, l), nil
}

func NewStore(db *gorm.DB, l *slog.Logger) *Store {
	if l == nil {
		l = slog.Default()
	}
	return &Store{db: db, logger: l}
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	err = sqlDB.Close()
	s.db = nil
	return err
}

// FindByDSID returns nil, nil when no dossier has that id.
func (s *Store) FindByDSID(ctx context.Context, dsID int64) (*Dossier, error) {
	var d Dossier
	err := s.db.WithContext(ctx).Where("ds_id = ?", dsID).First(&d).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// UpsertIfNewer inserts candidate, or replaces the stored dossier with the
// same DSID when candidate.UpdatedAt is strictly later. A missing UpdatedAt
// is older than any date. Stored dossiers in a terminal status are kept.
// On update, candidate receives the stored ID and CreatedAt.
func (s *Store) UpsertIfNewer(ctx context.Context, candidate *Dossier) (UpsertOutcome, error) {
	outcome := OutcomeSkipped
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing Dossier
		err := tx.Where("ds_id = ?", candidate.DSID).First(&existing).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			candidate.ID = 0
			if err := tx.Create(candidate).Error; err != nil {
				return err
			}
			outcome = OutcomeCreated
			return nil
		}
		if err != nil {
			return err
		}
		if existing.Status.IsTerminal() || !isNewer(candidate.UpdatedAt, existing.UpdatedAt) {
			return nil
		}
		candidate.ID = existing.ID
		candidate.CreatedAt = existing.CreatedAt
		if err := tx.Save(candidate).Error; err != nil {
			return err
		}
		outcome = OutcomeUpdated
		return nil
	})
	if err != nil {
		return OutcomeSkipped, fmt.Errorf("upsert dossier %d: %w", candidate.DSID, err)
	}
	return outcome, nil
}

// isNewer orders nil before every date.
func isNewer(candidate, stored *time.Time) bool {
	if candidate == nil {
		return false
	}
	if stored == nil {
		return true
	}
	return candidate.After(*stored)
}

// TerminalIDs returns the DSIDs of dossiers in a terminal status.
func (s *Store) TerminalIDs(ctx context.Context) (map[int64]struct{}, error) {
	var ids []int64
	err := s.db.WithContext(ctx).Model(&Dossier{}).
		Where("status IN ?", TerminalStatuses).
		Pluck("ds_id", &ids).Error
	if err != nil {
		return nil, err
	}
	out := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		out[id] = struct{}{}
	}
	return out, nil
}

type statusCount struct {
	Status Status
	Total  int64
}

// CountByStatus counts dossiers per status. Every status is present.
func (s *Store) CountByStatus(ctx context.Context) (map[Status]int64, error) {
	var rows []statusCount
	err := s.db.WithContext(ctx).Model(&Dossier{}).
		Select("status, count(*) AS total").
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make(map[Status]int64, len(Statuses))
	for _, st := range Statuses {
		out[st] = 0
	}
	for _, r := range rows {
		out[r.Status] = r.Total
	}
	return out, nil
}

// Count returns the number of dossiers, restricted to statuses when given.
func (s *Store) Count(ctx context.Context, statuses ...Status) (int64, error) {
	q := s.db.WithContext(ctx).Model(&Dossier{})
	if len(statuses) > 0 {
		q = q.Where("status IN ?", statuses)
	}
	var n int64
	err := q.Count(&n).Error
	return n, err
}
