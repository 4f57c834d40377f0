package audit

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"
)

type eventRow struct {
	ID          string    `gorm:"primaryKey;size:64"`
	Type        string    `gorm:"size:64;not null;index"`
	CallID      string    `gorm:"size:64;index"`
	CustomerID  string    `gorm:"size:64"`
	ActorUserID string    `gorm:"size:191"`
	ActorRole   string    `gorm:"size:64"`
	IPAddress   string    `gorm:"size:64"`
	Message     string    `gorm:"type:text"`
	Metadata    string    `gorm:"type:text"`
	CreatedAt   time.Time `gorm:"not null;index"`
}

func (eventRow) TableName() string { return "audit_events" }

// GormRepo persists audit events through gorm. Insert-only.
type GormRepo struct {
	db *gorm.DB
}

func NewGormRepo(db *gorm.DB) (*GormRepo, error) {
	if err := db.AutoMigrate(&eventRow{}); err != nil {
		return nil, fmt.Errorf("migrate audit_events: %w", err)
	}
	return &GormRepo{db: db}, nil
}

func (r *GormRepo) Append(ctx context.Context, e Event) error {
	row := eventRow{
		ID:          e.ID,
		Type:        string(e.Type),
		CallID:      e.CallID,
		CustomerID:  e.CustomerID,
		ActorUserID: e.ActorUserID,
		ActorRole:   e.ActorRole,
		IPAddress:   e.IPAddress,
		Message:     e.Message,
		Metadata:    e.Metadata,
		CreatedAt:   e.CreatedAt,
	}
	if err := r.db.WithContext(ctx).Create(&row).Error; err != nil {
		return fmt.Errorf("append audit event: %w", err)
	}
	return nil
}

// ForCall returns a call's events in insertion time order.
func (r *GormRepo) ForCall(ctx context.Context, callID string) ([]Event, error) {
	var rows []eventRow
	if err := r.db.WithContext(ctx).
		Where("call_id = ?", callID).
		Order("created_at ASC").
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list audit events: %w", err)
	}
	out := make([]Event, 0, len(rows))
	for _, row := range rows {
		out = append(out, Event{
			ID:          row.ID,
			Type:        EventType(row.Type),
			CallID:      row.CallID,
			CustomerID:  row.CustomerID,
			ActorUserID: row.ActorUserID,
			ActorRole:   row.ActorRole,
			IPAddress:   row.IPAddress,
			Message:     row.Message,
			Metadata:    row.Metadata,
			CreatedAt:   row.CreatedAt,
		})
	}
	return out, nil
}
