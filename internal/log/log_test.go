package log

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	cases := []struct {
		in      string
		want    slog.Level
		wantErr bool
	}{
		{"", slog.LevelInfo, false},
		{"DEBUG", slog.LevelDebug, false},
		{"warn", slog.LevelWarn, false},
		{"error", slog.LevelError, false},
		{"trace", slog.LevelInfo, true},
	}
	for _, tc := range cases {
		got, err := ParseLevel(tc.in)
		if (err != nil) != tc.wantErr || got != tc.want {
			t.Errorf("ParseLevel(%q) = %v, %v", tc.in, got, err)
		}
	}
}

func TestLoggerAddsComponent(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Level: slog.LevelInfo, Component: ComponentLedger, Output: &buf})
	l.Info("Transaction created", FieldTransactionID, 7)
	l.Debug("hidden")

	out := buf.String()
	if !strings.Contains(out, "component=ledger") || !strings.Contains(out, "transaction_id=7") {
		t.Fatalf("unexpected output: %s", out)
	}
	if strings.Contains(out, "hidden") {
		t.Fatalf("debug record should be filtered: %s", out)
	}
}

func TestFromContext(t *testing.T) {
	if got := FromContext(context.Background()); got.Component() != "unknown" {
		t.Fatalf("expected fallback logger, got %q", got.Component())
	}
	l := New(DefaultConfig()).WithComponent(ComponentAuth)
	if got := FromContext(NewContext(context.Background(), l)); got != l {
		t.Fatal("expected stored logger")
	}
}

func TestStructuredLoggerLevels(t *testing.T) {
	var buf bytes.Buffer
	sl := NewStructuredLogger(New(Config{Level: slog.LevelDebug, Output: &buf}))
	r := httptest.NewRequest("GET", "/api/transactions?type=EXPENSE", nil)

	sl.LogHTTPEnd(context.Background(), r, "req_1", 404, 3, "10.0.0.1")
	sl.LogHTTPEnd(context.Background(), r, "req_2", 500, 3, "10.0.0.1")
	sl.LogError(context.Background(), "Store failure", errors.New("boom"), ComponentStorage, OpList, nil)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected 3 records, got %d: %s", len(lines), buf.String())
	}
	if !strings.Contains(lines[0], "level=WARN") || !strings.Contains(lines[0], "request_id=req_1") {
		t.Errorf("unexpected 4xx record: %s", lines[0])
	}
	if !strings.Contains(lines[1], "level=ERROR") || !strings.Contains(lines[1], "status_code=500") {
		t.Errorf("unexpected 5xx record: %s", lines[1])
	}
	if !strings.Contains(lines[2], "component=storage") || !strings.Contains(lines[2], "error=boom") {
		t.Errorf("unexpected error record: %s", lines[2])
	}
}
