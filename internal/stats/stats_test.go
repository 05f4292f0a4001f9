package stats

import "testing"

func TestLedger_FlowCountersInvariant(t *testing.T) {
	l := NewLedger()

	l.RecordFlowStart()
	l.RecordFlowSuccess()
	l.RecordFlowStart()
	l.RecordFlowFailure()
	l.RecordFlowStart()
	l.RecordFlowSuccess()

	s := l.Snapshot()
	if s.Total != 3 || s.Successful != 2 || s.Failed != 1 {
		t.Errorf("unexpected counters: %+v", s)
	}
	if s.Total != s.Successful+s.Failed {
		t.Errorf("total %d != successful %d + failed %d", s.Total, s.Successful, s.Failed)
	}
}

func TestLedger_RecoveryCounters(t *testing.T) {
	l := NewLedger()

	l.RecordRecovery(RecoveryOutcome{Corrective: true})
	l.RecordRecovery(RecoveryOutcome{Manual: true})
	l.RecordRecovery(RecoveryOutcome{Manual: true})

	s := l.Snapshot()
	if s.Recovery.TotalErrors != 3 {
		t.Errorf("expected 3 total errors, got %d", s.Recovery.TotalErrors)
	}
	if s.Recovery.RecoveredErrors != 1 {
		t.Errorf("expected 1 recovered error, got %d", s.Recovery.RecoveredErrors)
	}
	if s.Recovery.ManualInterventions != 2 {
		t.Errorf("expected 2 manual interventions, got %d", s.Recovery.ManualInterventions)
	}
}

func TestLedger_SnapshotIsCopy(t *testing.T) {
	l := NewLedger()
	l.RecordFlowStart()

	s := l.Snapshot()
	s.Total = 99

	if got := l.Snapshot().Total; got != 1 {
		t.Errorf("snapshot mutation leaked into ledger: total %d", got)
	}
}

func TestLedger_Reset(t *testing.T) {
	l := NewLedger()
	l.RecordFlowStart()
	l.RecordFlowFailure()
	l.RecordRecovery(RecoveryOutcome{Manual: true})

	l.Reset()

	s := l.Snapshot()
	if s.Total != 0 || s.Failed != 0 || s.Recovery.TotalErrors != 0 {
		t.Errorf("expected zeroed counters after reset, got %+v", s)
	}
}
