package watch

import (
	"sync"
	"time"

	"github.com/replug/replug/pkg/advisor"
	"github.com/replug/replug/pkg/fix"
	"github.com/replug/replug/pkg/policy"
)

// CheckReport is the outcome of one re-validation pass.
type CheckReport struct {
	// Reason names what triggered the check: "startup", "config",
	// "manifest", or "config+manifest".
	Reason string `json:"reason"`

	// CheckedAt is when the check started.
	CheckedAt time.Time `json:"checked_at"`

	// Healthy is true when no leg of the check raised an issue.
	Healthy bool `json:"healthy"`

	// Issues flattens every problem the check found.
	Issues []string `json:"issues,omitempty"`

	// Validation is the advisor's view of the config, absent when the
	// config was unreadable.
	Validation *advisor.ValidationReport `json:"validation,omitempty"`

	// Policy is the gate evaluation result, absent when no engine is
	// attached or evaluation itself failed.
	Policy *policy.Result `json:"policy,omitempty"`

	// Verification is the applied-state flag check.
	Verification *fix.VerificationReport `json:"verification,omitempty"`

	// Duration is how long the check took.
	Duration time.Duration `json:"duration"`
}

// Status tracks daemon state for the HTTP surface. Handlers read it
// concurrently with the check loop, so every access goes through the
// lock.
type Status struct {
	mu          sync.RWMutex
	startedAt   time.Time
	watching    []string
	checksTotal int
	last        *CheckReport
}

// NewStatus creates a status tracker for the given watched paths.
func NewStatus(watching []string) *Status {
	return &Status{
		startedAt: time.Now().UTC(),
		watching:  watching,
	}
}

// Record stores the latest check report.
func (s *Status) Record(report *CheckReport) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.checksTotal++
	s.last = report
}

// LastReport returns the most recent check report, or nil before the
// first check completes.
func (s *Status) LastReport() *CheckReport {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.last
}

// Snapshot is a point-in-time copy of the daemon state, safe to
// serialize outside the lock.
type Snapshot struct {
	StartedAt   time.Time    `json:"started_at"`
	Uptime      string       `json:"uptime"`
	Watching    []string     `json:"watching"`
	ChecksTotal int          `json:"checks_total"`
	Healthy     bool         `json:"healthy"`
	LastCheck   *CheckReport `json:"last_check,omitempty"`
}

// Snapshot captures the current state.
func (s *Status) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return Snapshot{
		StartedAt:   s.startedAt,
		Uptime:      time.Since(s.startedAt).Round(time.Second).String(),
		Watching:    append([]string(nil), s.watching...),
		ChecksTotal: s.checksTotal,
		Healthy:     s.last != nil && s.last.Healthy,
		LastCheck:   s.last,
	}
}
