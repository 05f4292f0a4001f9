// Package stats holds the process-wide operation counters. The ledger is
// an explicitly owned object injected into the agent and the recovery
// engine; only those two write, everyone else reads snapshots.
package stats

import (
	"sync"

	"base-lp-agent/internal/domain"
)

// RecoveryOutcome describes how one recovery chain ended.
type RecoveryOutcome struct {
	// Corrective is true when a non-manual action ran successfully.
	Corrective bool
	// Manual is true when the manual-intervention report completed the
	// chain.
	Manual bool
}

// Ledger counts flows and recovery outcomes.
type Ledger struct {
	mu    sync.Mutex
	stats domain.OperationStats
}

// NewLedger creates a zeroed ledger.
func NewLedger() *Ledger {
	return &Ledger{}
}

// RecordFlowStart counts one flow invocation. Called once at flow entry.
func (l *Ledger) RecordFlowStart() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.stats.Total++
}

// RecordFlowSuccess counts one successful terminal outcome.
func (l *Ledger) RecordFlowSuccess() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.stats.Successful++
}

// RecordFlowFailure counts one failed terminal outcome.
func (l *Ledger) RecordFlowFailure() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.stats.Failed++
}

// RecordRecovery counts one recovery chain invocation and its outcome.
func (l *Ledger) RecordRecovery(outcome RecoveryOutcome) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.stats.Recovery.TotalErrors++
	if outcome.Corrective {
		l.stats.Recovery.RecoveredErrors++
	}
	if outcome.Manual {
		l.stats.Recovery.ManualInterventions++
	}
}

// Snapshot returns a copy of the current counters.
func (l *Ledger) Snapshot() domain.OperationStats {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.stats
}

// Reset clears every counter. Explicit operation; counters are never
// reset implicitly.
func (l *Ledger) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.stats = domain.OperationStats{}
}
