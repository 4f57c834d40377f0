package records

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"voice-banking/pkg/utils"
)

// Store persists call history and tickets through gorm (sqlite or postgres).
type Store struct {
	db    *gorm.DB
	clock func() time.Time
}

// Open opens the database for driver/dsn and migrates the tables.
func Open(driver, dsn string) (*Store, error) {
	db, err := utils.OpenGorm(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open records store: %w", err)
	}
	return New(db)
}

func New(db *gorm.DB) (*Store, error) {
	s := &Store{db: db, clock: time.Now}
	if err := s.db.AutoMigrate(&callRow{}, &ticketRow{}); err != nil {
		return nil, fmt.Errorf("migrate records: %w", err)
	}
	return s, nil
}

// DB exposes the handle so other gorm repositories can share the connection.
func (s *Store) DB() *gorm.DB { return s.db }

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// SaveCall inserts or replaces the record of a finished call.
func (s *Store) SaveCall(ctx context.Context, r CallRecord) error {
	if strings.TrimSpace(r.CallID) == "" {
		return ErrInvalidArgument
	}
	row, err := callRowFromRecord(r)
	if err != nil {
		return fmt.Errorf("encode transcript: %w", err)
	}
	if err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(&row).Error; err != nil {
		return fmt.Errorf("save call: %w", err)
	}
	return nil
}

// GetCall returns one call including its transcript.
func (s *Store) GetCall(ctx context.Context, callID string) (CallRecord, error) {
	var row callRow
	err := s.db.WithContext(ctx).Where("call_id = ?", callID).Take(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return CallRecord{}, ErrNotFound
		}
		return CallRecord{}, fmt.Errorf("get call: %w", err)
	}
	return row.toRecord(true)
}

// ListCalls returns calls newest first, without transcripts.
func (s *Store) ListCalls(ctx context.Context, f HistoryFilter) ([]CallRecord, error) {
	q := s.db.WithContext(ctx).Model(&callRow{})
	if f.CustomerID != "" {
		q = q.Where("customer_id = ?", f.CustomerID)
	}
	if f.Status != "" {
		q = q.Where("status = ?", string(f.Status))
	}
	if !f.From.IsZero() {
		q = q.Where("started_at >= ?", f.From.UTC())
	}
	if !f.To.IsZero() {
		q = q.Where("started_at < ?", f.To.UTC())
	}
	if f.Offset > 0 {
		q = q.Offset(f.Offset)
	}

	var rows []callRow
	if err := q.Order("started_at DESC").Limit(f.limit()).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list calls: %w", err)
	}
	out := make([]CallRecord, 0, len(rows))
	for _, row := range rows {
		rec, err := row.toRecord(false)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

// CreateTicket stores a ticket and returns it with id and timestamp filled.
func (s *Store) CreateTicket(ctx context.Context, t Ticket) (Ticket, error) {
	t.Kind = strings.TrimSpace(t.Kind)
	if t.CallID == "" || t.Kind == "" {
		return Ticket{}, ErrInvalidArgument
	}
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = s.clock().UTC()
	}
	row := ticketRow{
		ID:          t.ID,
		CallID:      t.CallID,
		CustomerID:  t.CustomerID,
		Kind:        t.Kind,
		Description: t.Description,
		CreatedAt:   t.CreatedAt,
	}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return Ticket{}, fmt.Errorf("create ticket: %w", err)
	}
	return t, nil
}

// ListTickets returns tickets created in [from, to), newest first. Zero
// bounds are open.
func (s *Store) ListTickets(ctx context.Context, from, to time.Time) ([]Ticket, error) {
	q := s.db.WithContext(ctx).Model(&ticketRow{})
	if !from.IsZero() {
		q = q.Where("created_at >= ?", from.UTC())
	}
	if !to.IsZero() {
		q = q.Where("created_at < ?", to.UTC())
	}
	var rows []ticketRow
	if err := q.Order("created_at DESC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list tickets: %w", err)
	}
	out := make([]Ticket, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toTicket())
	}
	return out, nil
}

// CallsBetween returns every call started in [from, to) without transcripts.
// It is meant for aggregation and is not paginated.
func (s *Store) CallsBetween(ctx context.Context, from, to time.Time) ([]CallRecord, error) {
	var rows []callRow
	if err := s.db.WithContext(ctx).
		Select("call_id", "customer_id", "verified", "final_flow", "escalated", "status", "end_reason", "message_count", "started_at", "ended_at").
		Where("started_at >= ? AND started_at < ?", from.UTC(), to.UTC()).
		Order("started_at ASC").
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("calls between: %w", err)
	}
	out := make([]CallRecord, 0, len(rows))
	for _, row := range rows {
		rec, err := row.toRecord(false)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}
