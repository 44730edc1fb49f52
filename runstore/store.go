// Package runstore records pipeline run history in SQLite, one row per
// run, updated at every coordinator state transition. It exists so an
// operator can answer "how far did run X get, and why did it stop"
// after the process that executed the run is gone.
package runstore

import (
	"context"
	"errors"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/babyforge/babyforge/types"
)

// Record is one pipeline run's persisted state.
type Record struct {
	ID            string `gorm:"primaryKey;size:64"`
	Status        string `gorm:"index;size:32"`
	FailedStage   int
	FailureReason string
	Stage1Model   string
	Stage2Model   string
	Stage3Model   string
	Stage1Path    string
	Stage2Path    string
	Stage3Path    string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// TableName sets the table name explicitly.
func (Record) TableName() string { return "pipeline_runs" }

// Transition is one observed status change, kept so tests and operators
// can reconstruct the exact path a run took through the state machine.
type Transition struct {
	ID        uint   `gorm:"primaryKey;autoIncrement"`
	RunID     string `gorm:"index;size:64"`
	Status    string `gorm:"size:32"`
	CreatedAt time.Time
}

// TableName sets the table name explicitly.
func (Transition) TableName() string { return "pipeline_run_transitions" }

// Store persists run records.
type Store struct {
	db *gorm.DB
}

// Open opens (and migrates) the SQLite database at path. ":memory:" is
// accepted for tests.
func Open(path string) (*Store, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, types.NewError(types.ErrStorage, "open run store").WithCause(err)
	}
	if err := db.AutoMigrate(&Record{}, &Transition{}); err != nil {
		return nil, types.NewError(types.ErrStorage, "migrate run store").WithCause(err)
	}
	return &Store{db: db}, nil
}

// Save inserts or updates the run record and appends a transition row.
func (s *Store) Save(ctx context.Context, rec *Record) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Save(rec).Error; err != nil {
			return err
		}
		return tx.Create(&Transition{RunID: rec.ID, Status: rec.Status}).Error
	})
}

// Get fetches one run record by id.
func (s *Store) Get(ctx context.Context, id string) (*Record, error) {
	var rec Record
	err := s.db.WithContext(ctx).First(&rec, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, types.NewError(types.ErrStorage, "run not found: "+id)
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// List returns all runs, newest first.
func (s *Store) List(ctx context.Context) ([]Record, error) {
	var recs []Record
	err := s.db.WithContext(ctx).Order("created_at DESC").Find(&recs).Error
	return recs, err
}

// Transitions returns the status history of one run in observation order.
func (s *Store) Transitions(ctx context.Context, runID string) ([]string, error) {
	var rows []Transition
	if err := s.db.WithContext(ctx).
		Where("run_id = ?", runID).
		Order("id ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	statuses := make([]string, len(rows))
	for i, r := range rows {
		statuses[i] = r.Status
	}
	return statuses, nil
}
