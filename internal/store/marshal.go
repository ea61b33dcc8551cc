package store

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/tojkuv/LifeSignal-sub007/internal/contact"
)

// marshalRecord converts a record to JSON TEXT for storage.
// HTML escaping is disabled so names containing '<' or '&' are stored as typed.
func marshalRecord(r contact.Record) (string, error) {
	s, err := encodeJSON(r)
	if err != nil {
		return "", fmt.Errorf("marshal record %s: %w", r.ID, err)
	}
	return s, nil
}

func unmarshalRecord(data string) (contact.Record, error) {
	var r contact.Record
	if err := json.Unmarshal([]byte(data), &r); err != nil {
		return contact.Record{}, fmt.Errorf("unmarshal record: %w", err)
	}
	return r, nil
}

func marshalProfile(p contact.Profile) (string, error) {
	s, err := encodeJSON(p)
	if err != nil {
		return "", fmt.Errorf("marshal profile: %w", err)
	}
	return s, nil
}

func unmarshalProfile(data string) (contact.Profile, error) {
	var p contact.Profile
	if err := json.Unmarshal([]byte(data), &p); err != nil {
		return contact.Profile{}, fmt.Errorf("unmarshal profile: %w", err)
	}
	return p, nil
}

func marshalRoles(r contact.Roles) (string, error) {
	return encodeJSON(r)
}

func unmarshalRoles(data string) (contact.Roles, error) {
	var r contact.Roles
	if err := json.Unmarshal([]byte(data), &r); err != nil {
		return contact.Roles{}, fmt.Errorf("unmarshal roles: %w", err)
	}
	return r, nil
}

func encodeJSON(v any) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return "", err
	}
	// Encoder adds a trailing newline, remove it
	return strings.TrimSpace(buf.String()), nil
}

// formatTime renders t as RFC 3339 with nanoseconds in UTC; zero is "".
func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse time %q: %w", s, err)
	}
	return t, nil
}
