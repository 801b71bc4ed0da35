package services

import (
	"context"
	"errors"
	"testing"
	"time"

	domain "github.com/Anthobetto/UNMI-sub001/internal/domain"
)

type stubHealthRepository struct {
	report domain.SystemHealthReport
	err    error
	calls  int
}

func (s *stubHealthRepository) Collect(context.Context) (domain.SystemHealthReport, error) {
	s.calls++
	return s.report, s.err
}

func TestNewReadinessReporterRequiresChecks(t *testing.T) {
	if _, err := NewReadinessReporter(ReadinessReporterDeps{}); err == nil {
		t.Fatal("expected error without dependency checks")
	}
}

func TestReadinessReporterStampsBuildMetadata(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	now := start.Add(5*time.Minute + 400*time.Millisecond)
	repo := &stubHealthRepository{report: domain.SystemHealthReport{
		Status:  domain.HealthStatusOK,
		Version: "stale",
		Checks:  map[string]domain.SystemHealthCheck{"firestore": {Status: domain.HealthStatusOK}},
	}}

	reporter, err := NewReadinessReporter(ReadinessReporterDeps{
		Checks: repo,
		Clock:  func() time.Time { return now },
		Build:  BuildInfo{Version: "1.2.3", CommitSHA: "abc123", Environment: "prod", StartedAt: start},
	})
	if err != nil {
		t.Fatalf("new reporter: %v", err)
	}

	report, err := reporter.Report(context.Background())
	if err != nil {
		t.Fatalf("report: %v", err)
	}
	if report.Version != "1.2.3" || report.CommitSHA != "abc123" || report.Environment != "prod" {
		t.Fatalf("expected build metadata from the binary, got %+v", report)
	}
	if report.Uptime != 5*time.Minute {
		t.Fatalf("expected rounded uptime 5m, got %s", report.Uptime)
	}
	if !report.GeneratedAt.Equal(now) {
		t.Fatalf("expected generatedAt %s, got %s", now, report.GeneratedAt)
	}
	if repo.calls != 1 {
		t.Fatalf("expected one collect call, got %d", repo.calls)
	}
}

func TestReadinessReporterStatus(t *testing.T) {
	cases := []struct {
		name   string
		report domain.SystemHealthReport
		want   string
	}{
		{
			name:   "collector status wins",
			report: domain.SystemHealthReport{Status: domain.HealthStatusError, Checks: map[string]domain.SystemHealthCheck{"pubsub": {Status: domain.HealthStatusOK}}},
			want:   domain.HealthStatusError,
		},
		{
			name: "worst check when unset",
			report: domain.SystemHealthReport{Checks: map[string]domain.SystemHealthCheck{
				"pubsub":        {Status: domain.HealthStatusDegraded},
				"secretManager": {Status: domain.HealthStatusOK},
			}},
			want: domain.HealthStatusDegraded,
		},
		{
			name:   "unknown check status degrades",
			report: domain.SystemHealthReport{Checks: map[string]domain.SystemHealthCheck{"pubsub": {}}},
			want:   domain.HealthStatusDegraded,
		},
		{
			name:   "no checks is ok",
			report: domain.SystemHealthReport{},
			want:   domain.HealthStatusOK,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			reporter, err := NewReadinessReporter(ReadinessReporterDeps{Checks: &stubHealthRepository{report: tc.report}})
			if err != nil {
				t.Fatalf("new reporter: %v", err)
			}
			report, err := reporter.Report(context.Background())
			if err != nil {
				t.Fatalf("report: %v", err)
			}
			if report.Status != tc.want {
				t.Fatalf("expected %s, got %s", tc.want, report.Status)
			}
			if report.Checks == nil {
				t.Fatal("expected non-nil checks map")
			}
		})
	}
}

func TestReadinessReporterPropagatesCollectError(t *testing.T) {
	boom := errors.New("collect failed")
	reporter, err := NewReadinessReporter(ReadinessReporterDeps{Checks: &stubHealthRepository{err: boom}})
	if err != nil {
		t.Fatalf("new reporter: %v", err)
	}
	if _, err := reporter.Report(context.Background()); !errors.Is(err, boom) {
		t.Fatalf("expected %v, got %v", boom, err)
	}
}

func TestBuildInfoUptimeAt(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	if got := (BuildInfo{}).UptimeAt(start); got != 0 {
		t.Fatalf("expected zero uptime without start time, got %s", got)
	}
	if got := (BuildInfo{StartedAt: start}).UptimeAt(start.Add(-time.Second)); got != 0 {
		t.Fatalf("expected zero uptime for clock skew, got %s", got)
	}
	if got := (BuildInfo{StartedAt: start}).UptimeAt(start.Add(90 * time.Second)); got != 90*time.Second {
		t.Fatalf("expected 1m30s, got %s", got)
	}
}
