package services

import (
	"context"
	"errors"
	"time"

	domain "github.com/Anthobetto/UNMI-sub001/internal/domain"
	"github.com/Anthobetto/UNMI-sub001/internal/repositories"
)

// BuildInfo describes the running binary.
type BuildInfo struct {
	Version     string
	CommitSHA   string
	Environment string
	StartedAt   time.Time
}

// UptimeAt returns how long the process has been running at now, rounded to whole seconds.
func (b BuildInfo) UptimeAt(now time.Time) time.Duration {
	if b.StartedAt.IsZero() || now.Before(b.StartedAt) {
		return 0
	}
	return now.Sub(b.StartedAt).Round(time.Second)
}

// ReadinessReporterDeps wires a ReadinessReporter.
type ReadinessReporterDeps struct {
	Checks repositories.HealthRepository
	Build  BuildInfo
	Clock  func() time.Time
}

// ReadinessReporter runs dependency checks and stamps the result with build metadata.
type ReadinessReporter struct {
	checks repositories.HealthRepository
	build  BuildInfo
	now    func() time.Time
}

var _ ReadinessService = (*ReadinessReporter)(nil)

// NewReadinessReporter constructs a ReadinessReporter. A missing start time is taken as now.
func NewReadinessReporter(deps ReadinessReporterDeps) (*ReadinessReporter, error) {
	if deps.Checks == nil {
		return nil, errors.New("readiness: dependency checks are required")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	now := func() time.Time { return clock().UTC() }

	build := deps.Build
	if build.StartedAt.IsZero() {
		build.StartedAt = now()
	}
	return &ReadinessReporter{checks: deps.Checks, build: build, now: now}, nil
}

// Report collects the dependency checks. Build metadata always comes from the running binary.
// The collector's status wins; when it leaves one unset the worst check status is used, with
// unknown check statuses counting as degraded.
func (r *ReadinessReporter) Report(ctx context.Context) (SystemHealthReport, error) {
	report, err := r.checks.Collect(ctx)
	if err != nil {
		return SystemHealthReport{}, err
	}

	now := r.now()
	if report.GeneratedAt.IsZero() {
		report.GeneratedAt = now
	} else {
		report.GeneratedAt = report.GeneratedAt.UTC()
	}
	report.Version = r.build.Version
	report.CommitSHA = r.build.CommitSHA
	report.Environment = r.build.Environment
	report.Uptime = r.build.UptimeAt(now)

	if report.Checks == nil {
		report.Checks = map[string]domain.SystemHealthCheck{}
	}
	if report.Status == "" {
		report.Status = worstStatus(report.Checks)
	}
	return report, nil
}

func worstStatus(checks map[string]domain.SystemHealthCheck) string {
	status := domain.HealthStatusOK
	for _, check := range checks {
		switch check.Status {
		case domain.HealthStatusOK:
		case domain.HealthStatusError:
			return domain.HealthStatusError
		default:
			status = domain.HealthStatusDegraded
		}
	}
	return status
}
