// Package history persists completed items so they can be queried and
// exported after they leave the belt.
package history

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"sync"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/tphakala/qcline/internal/classifier"
	"github.com/tphakala/qcline/internal/errors"
	"github.com/tphakala/qcline/internal/line"
	"github.com/tphakala/qcline/internal/logger"
)

// DefaultDSN keeps history in a shared in-memory SQLite database.
const DefaultDSN = "file:qcline?mode=memory&cache=shared"

// DefaultListLimit caps List when the filter sets no limit. WriteCSV is not
// capped.
const DefaultListLimit = 500

// CSVHeader is the first row written by WriteCSV.
var CSVHeader = []string{
	"id", "lane", "profile", "diameter", "target_height", "measured_height",
	"softness", "status", "bin", "reason", "timestamp",
}

// Record is the stored form of a completed item.
type Record struct {
	ID             uint      `gorm:"primaryKey" json:"-"`
	ItemID         uint64    `gorm:"index" json:"id"`
	Lane           string    `gorm:"index;size:64" json:"lane"`
	Profile        string    `gorm:"size:64" json:"profile"`
	Diameter       float64   `json:"diameter"`
	TargetHeight   float64   `json:"target_height"`
	MeasuredHeight float64   `json:"measured_height"`
	Softness       float64   `json:"softness"`
	Verdict        string    `gorm:"index;size:32" json:"status"`
	Bin            string    `gorm:"size:32" json:"bin"`
	Reason         string    `json:"reason"`
	SpawnedAt      float64   `json:"spawned_at"`   // simulation clock, seconds
	CompletedAt    float64   `json:"completed_at"` // simulation clock, seconds
	Timestamp      time.Time `gorm:"index" json:"timestamp"`
}

// TableName overrides GORM's pluralised default.
func (Record) TableName() string { return "item_history" }

// Filter narrows List and WriteCSV. Zero values match everything.
type Filter struct {
	Lane    string
	Verdict classifier.Verdict
	Limit   int
}

// Store is a GORM backed item history. It implements line.HistorySink.
type Store struct {
	db  *gorm.DB
	log logger.Logger

	mu sync.Mutex // serialises writes; SQLite allows one writer
}

var _ line.HistorySink = (*Store)(nil)

// Open connects to dsn (DefaultDSN when empty) and migrates the schema.
func Open(dsn string, slowQuery time.Duration) (*Store, error) {
	if dsn == "" {
		dsn = DefaultDSN
	}
	log := logger.Global().Module("history")

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.NewGormLoggerAdapter(log, slowQuery),
	})
	if err != nil {
		return nil, errors.New(err).
			Component("history").
			Category(errors.CategoryDatabase).
			Context("operation", "open").
			Build()
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, errors.New(err).
			Component("history").
			Category(errors.CategoryDatabase).
			Context("operation", "pool").
			Build()
	}
	// A memory database lives only as long as one connection holds it
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(&Record{}); err != nil {
		return nil, errors.New(err).
			Component("history").
			Category(errors.CategoryDatabase).
			Context("operation", "migrate").
			Build()
	}

	log.Info("item history opened", logger.String("dsn", dsn))
	return &Store{db: db, log: log}, nil
}

// RecordCompleted stores a completed item.
func (s *Store) RecordCompleted(item line.CompletedItem) error {
	return s.Save(&Record{
		ItemID:         uint64(item.ID),
		Lane:           item.Lane,
		Profile:        item.Profile,
		Diameter:       item.Diameter,
		TargetHeight:   item.TargetHeight,
		MeasuredHeight: item.Height,
		Softness:       item.Softness,
		Verdict:        string(item.Verdict),
		Bin:            string(item.Bin),
		Reason:         item.Reason,
		SpawnedAt:      item.CreatedAt,
		CompletedAt:    item.CompletedAt,
		Timestamp:      item.Timestamp,
	})
}

// Save inserts rec.
func (s *Store) Save(rec *Record) error {
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.db.Create(rec).Error; err != nil {
		return errors.New(err).
			Component("history").
			Category(errors.CategoryDatabase).
			Context("operation", "save").
			Context("lane", rec.Lane).
			Build()
	}
	return nil
}

// List returns matching records, newest first.
func (s *Store) List(f Filter) ([]Record, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = DefaultListLimit
	}

	return s.find(f, limit, "list")
}

// find runs the filtered query newest first. A limit <= 0 returns every row.
func (s *Store) find(f Filter, limit int, op string) ([]Record, error) {
	q := s.query(f).Order("id DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}

	var records []Record
	if err := q.Find(&records).Error; err != nil {
		return nil, errors.New(err).
			Component("history").
			Category(errors.CategoryDatabase).
			Context("operation", op).
			Build()
	}
	return records, nil
}

// Count returns the number of matching records.
func (s *Store) Count(f Filter) (int64, error) {
	var n int64
	if err := s.query(f).Count(&n).Error; err != nil {
		return 0, errors.New(err).
			Component("history").
			Category(errors.CategoryDatabase).
			Context("operation", "count").
			Build()
	}
	return n, nil
}

func (s *Store) query(f Filter) *gorm.DB {
	q := s.db.Model(&Record{})
	if f.Lane != "" {
		q = q.Where("lane = ?", f.Lane)
	}
	if f.Verdict != "" {
		q = q.Where("verdict = ?", string(f.Verdict))
	}
	return q
}

// Reset deletes every record.
func (s *Store) Reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.db.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&Record{}).Error; err != nil {
		return errors.New(err).
			Component("history").
			Category(errors.CategoryDatabase).
			Context("operation", "reset").
			Build()
	}
	s.log.Info("item history cleared")
	return nil
}

// WriteCSV writes matching records, newest first, with CSVHeader. Unlike
// List, a zero Limit exports every matching record.
func (s *Store) WriteCSV(w io.Writer, f Filter) error {
	records, err := s.find(f, f.Limit, "export")
	if err != nil {
		return err
	}
	return EncodeCSV(w, records)
}

// EncodeCSV writes records in export format.
func EncodeCSV(w io.Writer, records []Record) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(CSVHeader); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	for i := range records {
		r := &records[i]
		row := []string{
			strconv.FormatUint(r.ItemID, 10),
			r.Lane,
			r.Profile,
			formatFloat(r.Diameter),
			formatFloat(r.TargetHeight),
			formatFloat(r.MeasuredHeight),
			formatFloat(r.Softness),
			r.Verdict,
			r.Bin,
			r.Reason,
			r.Timestamp.UTC().Format(time.RFC3339),
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write csv row %d: %w", r.ItemID, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}

// Close releases the database connection.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
