package arena

import "testing"

// TestDynamicCriterionFullCollection_S6: with no arena headroom left,
// the policy must start a full collection with reason DYNAMIC-CRITERION
// condemning everything currently committed.
func TestDynamicCriterionFullCollection_S6(t *testing.T) {
	a := mustCreateArena(t, ClassVM, 1<<20, Config{})

	a.mu.Lock()
	a.spareCommitted = 0
	a.committed = 100 << 20
	a.commitLimit = a.committed // arenaAvail == 0
	a.mu.Unlock()
	a.AddGenChain(&GenChain{Gens: []Generation{{Mortality: 0.1}}})

	trace, started := a.PolicyStartTrace()
	if !started {
		t.Fatalf("expected PolicyStartTrace to start a trace")
	}
	if trace.Reason != ReasonDynamicCriterion {
		t.Fatalf("expected ReasonDynamicCriterion, got %v", trace.Reason)
	}
	if trace.CondemnedBytes != 100<<20 {
		t.Fatalf("expected to condemn everything (100 MiB), condemned %d", trace.CondemnedBytes)
	}
}

func TestChainDeferralStartsTrace(t *testing.T) {
	a := mustCreateArena(t, ClassVM, 1<<20, Config{CommitLimit: 1 << 40})
	ch := &GenChain{
		Gens:       []Generation{{Capacity: 1 << 20}},
		WorkFactor: 2,
		DeferralTime: func(c *GenChain, a *Arena) float64 {
			return -1
		},
	}
	a.AddGenChain(ch)

	trace, started := a.PolicyStartTrace()
	if !started {
		t.Fatalf("expected PolicyStartTrace to start a trace")
	}
	if trace.Reason != ReasonChainDeferral {
		t.Fatalf("expected ReasonChainDeferral, got %v", trace.Reason)
	}
	if trace.CondemnedBytes != 1<<20 {
		t.Fatalf("expected to condemn generation 0's capacity, got %d", trace.CondemnedBytes)
	}
	if want := uint64(2 << 20); trace.Work != want {
		t.Fatalf("expected work %d, got %d", want, trace.Work)
	}
}

func TestPolicyNoTraceWhenHeadroomAmple(t *testing.T) {
	a := mustCreateArena(t, ClassVM, 1<<20, Config{CommitLimit: 1 << 40})
	if _, started := a.PolicyStartTrace(); started {
		t.Fatalf("expected no trace to start with ample headroom and no chains")
	}
}

func TestPolicyClearsEmergencyFlag(t *testing.T) {
	a := mustCreateArena(t, ClassVM, 1<<20, Config{CommitLimit: 1 << 40})
	a.mu.Lock()
	a.emergencyTrace = true
	a.mu.Unlock()

	trace, started := a.PolicyStartTrace()
	if !started || trace.Reason != ReasonDynamicCriterion {
		t.Fatalf("expected an emergency-forced dynamic-criterion trace")
	}

	a.mu.Lock()
	flag := a.emergencyTrace
	a.mu.Unlock()
	if flag {
		t.Fatalf("expected the emergency flag to be cleared after PolicyStartTrace")
	}
}
