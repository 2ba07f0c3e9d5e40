package health

import (
	"context"

	"github.com/kailas-cloud/tablekit/internal/db"
)

// Status represents the aggregated health status.
type Status string

const (
	// Healthy indicates all components are operational.
	Healthy Status = "ok"
	// Degraded indicates partial failure.
	Degraded Status = "degraded"
	// Unhealthy indicates the database is unreachable.
	Unhealthy Status = "error"
)

// CheckResult represents an individual component health check outcome.
type CheckResult string

const (
	// CheckOK indicates a passing health check.
	CheckOK CheckResult = "ok"
	// CheckError indicates a failing health check.
	CheckError CheckResult = "error"
	// CheckMissing indicates a doctype index that has not been created.
	CheckMissing CheckResult = "missing"
)

// Report aggregates health check results.
type Report struct {
	Status Status
	Checks map[string]CheckResult
}

// Service coordinates health checks.
type Service struct {
	db       DBPinger
	indexes  IndexChecker
	doctypes []string
}

// New creates a Service. indexes can be nil; otherwise the index of every doctype is checked.
func New(dbp DBPinger, indexes IndexChecker, doctypes []string) *Service {
	return &Service{db: dbp, indexes: indexes, doctypes: doctypes}
}

// Check runs health checks against all components.
func (s *Service) Check(ctx context.Context) Report {
	checks := make(map[string]CheckResult)

	if err := s.db.Ping(ctx); err != nil {
		checks["database"] = CheckError
		return Report{Status: Unhealthy, Checks: checks}
	}
	checks["database"] = CheckOK

	if s.indexes != nil {
		for _, name := range s.doctypes {
			key := "index:" + name
			exists, err := s.indexes.IndexExists(ctx, db.IndexName(name))
			switch {
			case err != nil:
				checks[key] = CheckError
			case !exists:
				checks[key] = CheckMissing
			default:
				checks[key] = CheckOK
			}
		}
	}

	status := Healthy
	for _, v := range checks {
		if v != CheckOK {
			status = Degraded
			break
		}
	}

	return Report{Status: status, Checks: checks}
}
