package main

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	reporting "marketplace-settlement/internal/reporting/domain"
)

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd(&out)
	cmd.SetArgs(append([]string{"--env-file", ""}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func TestConfigCheckMasksSecrets(t *testing.T) {
	t.Setenv("MP_ACCESS_TOKEN", "")
	path := filepath.Join(t.TempDir(), "settlement.yaml")
	content := "payments:\n  access_token: APP_USR-secret\nreporting:\n  commission_rate: \"0.15\"\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	out, err := runCLI(t, "--config", path, "config", "check")
	if err != nil {
		t.Fatalf("config check: %v", err)
	}
	if !strings.HasPrefix(out, "# config ok") || strings.Contains(out, "APP_USR") {
		t.Fatalf("unexpected output:\n%s", out)
	}
	if !strings.Contains(out, "access_token: '***'") && !strings.Contains(out, `access_token: "***"`) {
		t.Fatalf("expected masked token in output:\n%s", out)
	}
}

func TestConfigCheckInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settlement.yaml")
	if err := os.WriteFile(path, []byte("reporting:\n  commission_rate: \"2\"\n"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := runCLI(t, "--config", path, "config", "check"); err == nil || !strings.Contains(err.Error(), "commission_rate") {
		t.Fatalf("expected commission error, got %v", err)
	}
}

func TestReportFlagValidation(t *testing.T) {
	if _, err := runCLI(t, "report"); err == nil || !strings.Contains(err.Error(), "--vendor") {
		t.Fatalf("expected vendor error, got %v", err)
	}
	if _, err := runCLI(t, "report", "--vendor", "v1", "--format", "csv"); err == nil || !strings.Contains(err.Error(), "csv") {
		t.Fatalf("expected format error, got %v", err)
	}
	if _, err := runCLI(t, "report", "--vendor", "v1", "--month", "2026-13"); !errors.Is(err, reporting.ErrInvalidPeriod) {
		t.Fatalf("expected period error, got %v", err)
	}
}

func TestParsePeriod(t *testing.T) {
	now := time.Date(2026, 4, 17, 9, 0, 0, 0, time.UTC)

	p, err := parsePeriod("", "", "", now)
	if err != nil || !p.From.Equal(time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)) || !p.To.Equal(time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("default period: %+v err=%v", p, err)
	}
	p, err = parsePeriod("2026-12", "", "", now)
	if err != nil || !p.To.Equal(time.Date(2027, 1, 1, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("december: %+v err=%v", p, err)
	}
	p, err = parsePeriod("", "2026-03-10", "2026-03-20", now)
	if err != nil || p.To.Sub(p.From) != 10*24*time.Hour {
		t.Fatalf("range: %+v err=%v", p, err)
	}

	for _, tc := range []struct{ month, from, to string }{
		{"2026-03", "2026-03-01", ""},
		{"", "2026-03-20", "2026-03-10"},
		{"", "2026-03-01", ""},
		{"03/2026", "", ""},
	} {
		if _, err := parsePeriod(tc.month, tc.from, tc.to, now); err == nil {
			t.Fatalf("expected error for %+v", tc)
		}
	}
}

func TestOutboxReplayRequiresEventID(t *testing.T) {
	if _, err := runCLI(t, "outbox", "replay"); err == nil {
		t.Fatalf("expected argument error")
	}
	out, err := runCLI(t, "outbox", "--help")
	if err != nil {
		t.Fatalf("help: %v", err)
	}
	for _, sub := range []string{"status", "dlq", "replay", "purge"} {
		if !strings.Contains(out, sub) {
			t.Fatalf("expected %q in help:\n%s", sub, out)
		}
	}
}
