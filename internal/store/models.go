package store

import (
	"encoding/json"
	"fmt"
	"time"
)

// Instants are stored as RFC3339 UTC text (ISO-8601). A single fixed layout
// keeps string comparison in SQL equivalent to instant comparison.
func encodeTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func decodeTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("decode scheduled_at: %w", err)
	}
	return t.UTC(), nil
}

// Mention lists are stored as a JSON array in one TEXT column, preserving
// order and duplicates.
func encodeMentions(ids []string) (string, error) {
	if len(ids) == 0 {
		return "[]", nil
	}
	b, err := json.Marshal(ids)
	if err != nil {
		return "", fmt.Errorf("encode mention_user_ids: %w", err)
	}
	return string(b), nil
}

func decodeMentions(s string) ([]string, error) {
	if s == "" || s == "[]" {
		return nil, nil
	}
	var ids []string
	if err := json.Unmarshal([]byte(s), &ids); err != nil {
		return nil, fmt.Errorf("decode mention_user_ids: %w", err)
	}
	return ids, nil
}
