package fix

import (
	"context"

	"github.com/replug/replug/pkg/stores"
	"github.com/replug/replug/pkg/telemetry"
)

// Flag keys shared by the gate and the verifier.
const (
	// FlagFixApplied marks a completed fix. It is written to both the
	// durable and the session store so a restart of the runtime within
	// one boot does not retrigger the fix.
	FlagFixApplied = "plugin_fix_applied"

	// FlagRuntimeLoaded records that the runtime actually loaded units
	// during the fix. It is session-scoped: it describes this boot, not
	// history, so it lives in the session store only.
	FlagRuntimeLoaded = "plugin_runtime_loaded"
)

// flagSet is the value stored for a raised flag.
const flagSet = "1"

// Gate decides whether the fix needs to run. It consults two flag tiers:
// the durable store, which survives restarts, and the session store, which
// is cleared when the process exits. The fix is suppressed when either
// tier carries the applied flag.
type Gate struct {
	durable stores.FlagStore
	session stores.FlagStore
	log     *telemetry.Logger
}

// NewGate creates a gate over the two flag tiers.
func NewGate(durable, session stores.FlagStore, log *telemetry.Logger) *Gate {
	return &Gate{
		durable: durable,
		session: session,
		log:     log.NewComponentLogger("gate"),
	}
}

// ShouldRun reports whether the fix needs to run. It answers false only
// when the applied flag is raised in the durable or the session store.
// A store read failure degrades that tier to "not set": the other tier
// can still suppress, and an unreadable gate never suppresses the fix.
func (g *Gate) ShouldRun(ctx context.Context) (bool, error) {
	var readErr error

	value, ok, err := g.durable.GetFlag(ctx, FlagFixApplied)
	if err != nil {
		readErr = NewOpenFailure("durable gate flag unreadable", err).WithCode(ErrCodeFlagStore)
	} else if ok && value == flagSet {
		g.log.Debugf("Fix suppressed by durable flag")
		return false, nil
	}

	value, ok, err = g.session.GetFlag(ctx, FlagFixApplied)
	if err != nil {
		if readErr == nil {
			readErr = NewOpenFailure("session gate flag unreadable", err).WithCode(ErrCodeFlagStore)
		}
	} else if ok && value == flagSet {
		g.log.Debugf("Fix suppressed by session flag")
		return false, readErr
	}

	return true, readErr
}

// MarkApplied raises the applied flag in both stores.
func (g *Gate) MarkApplied(ctx context.Context) error {
	if err := g.durable.SetFlag(ctx, FlagFixApplied, flagSet); err != nil {
		return NewOpenFailure("failed to mark fix applied in durable store", err).WithCode(ErrCodeFlagStore)
	}
	if err := g.session.SetFlag(ctx, FlagFixApplied, flagSet); err != nil {
		return NewOpenFailure("failed to mark fix applied in session store", err).WithCode(ErrCodeFlagStore)
	}
	g.log.Debugf("Fix marked applied")
	return nil
}

// MarkRuntimeLoaded raises the session-scoped runtime-loaded signal.
// The orchestrator calls this once the reload sequence reports units
// loaded; the verifier checks it afterwards.
func (g *Gate) MarkRuntimeLoaded(ctx context.Context) error {
	if err := g.session.SetFlag(ctx, FlagRuntimeLoaded, flagSet); err != nil {
		return NewOpenFailure("failed to mark runtime loaded", err).WithCode(ErrCodeFlagStore)
	}
	return nil
}

// Reset clears the applied flag in both stores and drops the
// runtime-loaded signal, re-arming the gate. Resetting an already
// clear gate is a no-op.
func (g *Gate) Reset(ctx context.Context) error {
	if err := g.durable.RemoveFlag(ctx, FlagFixApplied); err != nil {
		return NewOpenFailure("failed to reset durable gate flag", err).WithCode(ErrCodeFlagStore)
	}
	if err := g.session.RemoveFlag(ctx, FlagFixApplied); err != nil {
		return NewOpenFailure("failed to reset session gate flag", err).WithCode(ErrCodeFlagStore)
	}
	if err := g.session.RemoveFlag(ctx, FlagRuntimeLoaded); err != nil {
		return NewOpenFailure("failed to reset runtime-loaded signal", err).WithCode(ErrCodeFlagStore)
	}
	g.log.Debugf("Gate reset")
	return nil
}
