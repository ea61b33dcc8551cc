package store

import (
	"strings"
	"testing"
	"time"
)

func TestMarshalRecord_NoHTMLEscaping(t *testing.T) {
	r := createTestRecord("alice", "bob")
	r.Name = "Tom & Jerry <3"

	data, err := marshalRecord(r)
	if err != nil {
		t.Fatalf("marshalRecord() failed: %v", err)
	}
	if !strings.Contains(data, "Tom & Jerry <3") {
		t.Errorf("name was escaped: %s", data)
	}
	if strings.HasSuffix(data, "\n") {
		t.Error("trailing newline not trimmed")
	}
}

func TestMarshalRecord_OmitsZeroTimes(t *testing.T) {
	data, err := marshalRecord(createTestRecord("alice", "bob"))
	if err != nil {
		t.Fatalf("marshalRecord() failed: %v", err)
	}
	if strings.Contains(data, "last_check_in") {
		t.Errorf("absent check-in should be omitted: %s", data)
	}
}

func TestFormatParseTime(t *testing.T) {
	if got := formatTime(time.Time{}); got != "" {
		t.Errorf("formatTime(zero) = %q, want empty", got)
	}
	parsed, err := parseTime("")
	if err != nil || !parsed.IsZero() {
		t.Errorf("parseTime(\"\") = %v, %v", parsed, err)
	}

	loc := time.FixedZone("CET", 3600)
	in := time.Date(2026, 5, 6, 7, 8, 9, 123456789, loc)
	out, err := parseTime(formatTime(in))
	if err != nil {
		t.Fatalf("parseTime() failed: %v", err)
	}
	if !out.Equal(in) {
		t.Errorf("round trip = %v, want %v", out, in)
	}
	if out.Location() != time.UTC {
		t.Errorf("location = %v, want UTC", out.Location())
	}

	if _, err := parseTime("yesterday"); err == nil {
		t.Error("parseTime accepted garbage")
	}
}
