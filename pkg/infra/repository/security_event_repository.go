package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/fastbreak-labs/courtguard/pkg/types"
)

// SecurityEventRow is the persisted shape of a security event. Categories
// and reasons are stored as comma-joined text; the table exists for offline
// abuse review, not for queries on individual categories.
type SecurityEventRow struct {
	ID               string    `gorm:"primaryKey"`
	UserID           string    `gorm:"index"`
	Timestamp        time.Time `gorm:"index"`
	Verdict          string
	Categories       string
	RedactionReasons string
	ExecutorFailed   bool
	LatencyMicros    int64
}

func (SecurityEventRow) TableName() string {
	return "security_events"
}

type SecurityEventRepository struct {
	db *gorm.DB
}

func NewSecurityEventRepository(db *gorm.DB) (*SecurityEventRepository, error) {
	if err := db.AutoMigrate(&SecurityEventRow{}); err != nil {
		return nil, fmt.Errorf("failed to migrate security_events: %w", err)
	}
	return &SecurityEventRepository{db: db}, nil
}

func (r *SecurityEventRepository) Save(ctx context.Context, event types.SecurityEvent) error {
	categories := make([]string, len(event.Categories))
	for i, c := range event.Categories {
		categories[i] = string(c)
	}

	row := SecurityEventRow{
		ID:               event.ID,
		UserID:           event.UserID,
		Timestamp:        event.Timestamp,
		Verdict:          string(event.Verdict),
		Categories:       strings.Join(categories, ","),
		RedactionReasons: strings.Join(event.RedactionReasons, ","),
		ExecutorFailed:   event.ExecutorFailed,
		LatencyMicros:    event.LatencyMicros,
	}
	if err := r.db.WithContext(ctx).Create(&row).Error; err != nil {
		return fmt.Errorf("failed to insert security event: %w", err)
	}
	return nil
}
