package recorder

import (
	"encoding/json"
	"fmt"
	"sort"

	"clickstream/internal/storage"
)

// OutboxEntry is a serialized record waiting in the immediate outbox.
type OutboxEntry struct {
	EventID   string
	EventType string
	Timestamp int64
	Payload   string
}

// LoadOutbox returns the immediate outbox entries ordered by timestamp.
// Entries whose payload cannot be decoded are returned with a zero
// timestamp and no type.
func LoadOutbox(store storage.Store) ([]OutboxEntry, error) {
	raw, err := loadOutboxMap(store)
	if err != nil {
		return nil, err
	}

	entries := make([]OutboxEntry, 0, len(raw))
	for id, payload := range raw {
		entry := OutboxEntry{EventID: id, Payload: payload}
		var head struct {
			EventType string `json:"event_type"`
			Timestamp int64  `json:"timestamp"`
		}
		if err := json.Unmarshal([]byte(payload), &head); err == nil {
			entry.EventType = head.EventType
			entry.Timestamp = head.Timestamp
		}
		entries = append(entries, entry)
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Timestamp != entries[j].Timestamp {
			return entries[i].Timestamp < entries[j].Timestamp
		}
		return entries[i].EventID < entries[j].EventID
	})
	return entries, nil
}

// LoadBuffer returns the pending batch buffer without its closing suffix.
func LoadBuffer(store storage.Store) (string, error) {
	buf, err := store.Get(storage.KeyBufferedEvents)
	if err != nil {
		return "", fmt.Errorf("failed to read batch buffer: %w", err)
	}
	return buf, nil
}

func loadOutboxMap(store storage.Store) (map[string]string, error) {
	outbox := map[string]string{}
	if _, err := storage.GetJSON(store, storage.KeyImmediateEvents, &outbox); err != nil {
		return nil, err
	}
	return outbox, nil
}

func saveOutboxMap(store storage.Store, outbox map[string]string) error {
	if len(outbox) == 0 {
		return store.Delete(storage.KeyImmediateEvents)
	}
	return storage.SetJSON(store, storage.KeyImmediateEvents, outbox)
}
