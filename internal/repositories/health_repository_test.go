package repositories

import (
	"context"
	"errors"
	"testing"
	"time"

	domain "github.com/Anthobetto/UNMI-sub001/internal/domain"
)

func TestDependencyHealthRepositoryCollectSuccess(t *testing.T) {
	now := time.Date(2024, time.June, 1, 12, 0, 0, 0, time.UTC)
	repo, err := NewDependencyHealthRepository([]DependencyCheck{
		{Name: "firestore", Critical: true, Check: func(context.Context) error { return nil }},
		{Name: "pubsub", Check: func(context.Context) error { return nil }},
	}, WithDependencyClock(func() time.Time { return now }))
	if err != nil {
		t.Fatalf("NewDependencyHealthRepository: %v", err)
	}

	report, err := repo.Collect(context.Background())
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if report.Status != domain.HealthStatusOK || len(report.Checks) != 2 {
		t.Fatalf("unexpected report %+v", report)
	}
	for name, check := range report.Checks {
		if check.Status != domain.HealthStatusOK || !check.CheckedAt.Equal(now) {
			t.Fatalf("unexpected check %s: %+v", name, check)
		}
	}
	if !report.GeneratedAt.Equal(now) {
		t.Fatalf("expected generatedAt %s, got %s", now, report.GeneratedAt)
	}
}

func TestDependencyHealthRepositoryStatusAggregation(t *testing.T) {
	boom := errors.New("boom")
	cases := []struct {
		name     string
		critical bool
		want     string
	}{
		{name: "non critical failure degrades", critical: false, want: domain.HealthStatusDegraded},
		{name: "critical failure errors", critical: true, want: domain.HealthStatusError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			repo, err := NewDependencyHealthRepository([]DependencyCheck{
				{Name: "secretManager", Critical: tc.critical, Check: func(context.Context) error { return boom }},
				{Name: "firestore", Critical: true, Check: func(context.Context) error { return nil }},
			})
			if err != nil {
				t.Fatalf("NewDependencyHealthRepository: %v", err)
			}
			report, err := repo.Collect(context.Background())
			if err != nil {
				t.Fatalf("Collect: %v", err)
			}
			if report.Status != tc.want {
				t.Fatalf("expected %s, got %s", tc.want, report.Status)
			}
			if check := report.Checks["secretManager"]; check.Detail != "boom" || check.Status != tc.want {
				t.Fatalf("unexpected check %+v", check)
			}
		})
	}
}

func TestDependencyHealthRepositoryCollectTimeout(t *testing.T) {
	repo, err := NewDependencyHealthRepository([]DependencyCheck{{
		Name:     "firestore",
		Timeout:  5 * time.Millisecond,
		Critical: true,
		Check: func(ctx context.Context) error {
			<-ctx.Done()
			return ctx.Err()
		},
	}})
	if err != nil {
		t.Fatalf("NewDependencyHealthRepository: %v", err)
	}

	report, err := repo.Collect(context.Background())
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}
	check := report.Checks["firestore"]
	if report.Status != domain.HealthStatusError || check.Detail != "timeout" {
		t.Fatalf("expected timeout error, got %+v", check)
	}
}

func TestDependencyHealthRepositoryDefaultTimeout(t *testing.T) {
	var deadline time.Duration
	repo, err := NewDependencyHealthRepository([]DependencyCheck{{
		Name: "secretManager",
		Check: func(ctx context.Context) error {
			d, ok := ctx.Deadline()
			if !ok {
				return errors.New("no deadline")
			}
			deadline = time.Until(d)
			return nil
		},
	}}, WithDependencyTimeout(250*time.Millisecond))
	if err != nil {
		t.Fatalf("NewDependencyHealthRepository: %v", err)
	}

	report, err := repo.Collect(context.Background())
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if report.Status != domain.HealthStatusOK {
		t.Fatalf("unexpected report %+v", report)
	}
	if deadline <= 0 || deadline > 250*time.Millisecond {
		t.Fatalf("expected the configured default timeout to bound the check, got %s", deadline)
	}
}

func TestNewDependencyHealthRepositoryValidatesChecks(t *testing.T) {
	noop := func(context.Context) error { return nil }
	cases := map[string][]DependencyCheck{
		"empty":     nil,
		"no name":   {{Name: " ", Check: noop}},
		"no func":   {{Name: "firestore"}},
		"duplicate": {{Name: "a", Check: noop}, {Name: "a", Check: noop}},
	}
	for name, checks := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := NewDependencyHealthRepository(checks); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}
