// Package collector is a development ingestion sink. It accepts the
// requests the SDK sends, checks them against the wire contract and keeps
// the received records in SQLite.
package collector

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"clickstream/internal/events"
)

// ErrInvalidRecord is returned for records that cannot be stored.
var ErrInvalidRecord = errors.New("invalid record")

// ReceivedEvent is a record accepted by the collector.
type ReceivedEvent struct {
	ID         uint   `gorm:"primaryKey"`
	EventID    string `gorm:"uniqueIndex;not null"`
	AppID      string `gorm:"index"`
	EventType  string `gorm:"index"`
	UniqueID   string `gorm:"index"`
	Platform   string
	SequenceID int64
	Timestamp  int64     `gorm:"index"`
	Payload    string    `gorm:"type:text;not null"`
	ReceivedAt time.Time `gorm:"index;not null"`
}

// Models lists the tables the collector migrates.
func Models() []any {
	return []any{&ReceivedEvent{}}
}

// Bundle is one decoded request.
type Bundle struct {
	AppID      string
	Platform   string
	SequenceID int64
	Records    []json.RawMessage
}

// SaveResult counts what SaveBundle did with the records of a bundle.
type SaveResult struct {
	Stored     int
	Duplicates int
	Types      map[string]int
}

// SaveBundle stores every record of b. Records whose event id is already
// stored are ignored.
func SaveBundle(db *gorm.DB, logger *slog.Logger, b Bundle, receivedAt time.Time) (SaveResult, error) {
	result := SaveResult{Types: make(map[string]int)}

	rows := make([]ReceivedEvent, 0, len(b.Records))
	for i, raw := range b.Records {
		var record events.AnalyticsEvent
		if err := json.Unmarshal(raw, &record); err != nil {
			return result, fmt.Errorf("%w: record %d: %v", ErrInvalidRecord, i, err)
		}
		if record.EventID == "" {
			return result, fmt.Errorf("%w: record %d has no event_id", ErrInvalidRecord, i)
		}
		rows = append(rows, ReceivedEvent{
			EventID:    record.EventID,
			AppID:      b.AppID,
			EventType:  record.EventType,
			UniqueID:   record.UniqueID,
			Platform:   b.Platform,
			SequenceID: b.SequenceID,
			Timestamp:  record.Timestamp,
			Payload:    string(raw),
			ReceivedAt: receivedAt.UTC(),
		})
	}

	err := db.Transaction(func(tx *gorm.DB) error {
		for _, row := range rows {
			res := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "event_id"}},
				DoNothing: true,
			}).Create(&row)
			if res.Error != nil {
				return fmt.Errorf("failed to store event %s: %w", row.EventID, res.Error)
			}
			if res.RowsAffected == 0 {
				result.Duplicates++
				continue
			}
			result.Stored++
			result.Types[row.EventType]++
		}
		return nil
	})
	if err != nil {
		logger.Error("Failed to store bundle", slog.Int64("sequence_id", b.SequenceID), slog.Any("error", err))
		return SaveResult{Types: map[string]int{}}, err
	}
	return result, nil
}

// TypeCount is the number of stored events of one type.
type TypeCount struct {
	EventType string `json:"event_type"`
	Count     int64  `json:"count"`
}

// CountByType returns stored event counts grouped by event type, most
// frequent first.
func CountByType(db *gorm.DB, appID string) ([]TypeCount, error) {
	query := db.Model(&ReceivedEvent{}).
		Select("event_type, COUNT(*) AS count").
		Group("event_type").
		Order("count DESC, event_type")
	if appID != "" {
		query = query.Where("app_id = ?", appID)
	}

	var counts []TypeCount
	if err := query.Scan(&counts).Error; err != nil {
		return nil, fmt.Errorf("failed to count events: %w", err)
	}
	return counts, nil
}

// FindByEventID returns the stored event with the given id.
func FindByEventID(db *gorm.DB, eventID string) (*ReceivedEvent, error) {
	var event ReceivedEvent
	if err := db.Where("event_id = ?", eventID).First(&event).Error; err != nil {
		return nil, err
	}
	return &event, nil
}
