package pathing

import (
	"errors"
	"fmt"
	"testing"

	"github.com/sirupsen/logrus"

	"pathcraft.ai/internal/sim/mathx"
	"pathcraft.ai/internal/sim/nav"
)

func TestResolveFailureLeavesPathUntouched(t *testing.T) {
	_, r, env, hook := newTestPipeline(t, QueryFunc(nil), Config{}, "E1")
	existing := []mathx.Vec3{mathx.V(1, 0, 1)}
	env.paths["E1"] = existing
	seq := r.Issue("E1")

	for _, err := range []error{nav.ErrSnapshotUnavailable, fmt.Errorf("wrapped: %w", nav.ErrNoPath)} {
		hook.Reset()
		got := r.Resolve(Completion{Owner: "E1", Seq: seq, Err: err})
		want := OutcomeNoPath
		if errors.Is(err, nav.ErrSnapshotUnavailable) {
			want = OutcomeSnapshotUnavailable
		}
		if got.Outcome != want {
			t.Fatalf("err=%v outcome=%v want %v", err, got.Outcome, want)
		}
		if p := env.paths["E1"]; len(p) != 1 || p[0] != existing[0] {
			t.Fatalf("path modified on failure: %v", p)
		}
		last := hook.LastEntry()
		if last == nil || last.Level != logrus.WarnLevel {
			t.Fatalf("expected a warning, got %+v", last)
		}
	}
	if env.sets != 0 {
		t.Fatalf("sets=%d", env.sets)
	}
}

func TestSupersededFailureLogsAtTrace(t *testing.T) {
	_, r, env, hook := newTestPipeline(t, QueryFunc(nil), Config{}, "E1")
	old := r.Issue("E1")
	r.Issue("E1")

	got := r.Resolve(Completion{Owner: "E1", Seq: old, Err: nav.ErrNoPath})
	if got.Outcome != OutcomeNoPath {
		t.Fatalf("outcome=%v", got.Outcome)
	}
	if env.sets != 0 {
		t.Fatalf("sets=%d", env.sets)
	}
	for _, e := range hook.AllEntries() {
		if e.Level <= logrus.WarnLevel {
			t.Fatalf("superseded failure logged at %v: %s", e.Level, e.Message)
		}
	}
	if last := hook.LastEntry(); last == nil || last.Level != logrus.TraceLevel {
		t.Fatalf("expected a trace entry, got %+v", last)
	}
}

func TestResolveMissingOwnerIsSilent(t *testing.T) {
	_, r, env, hook := newTestPipeline(t, QueryFunc(nil), Config{}, "E1")
	seq := r.Issue("GONE")
	got := r.Resolve(Completion{Owner: "GONE", Seq: seq, Path: []mathx.Vec3{{}, mathx.V(1, 0, 0)}})
	if got.Outcome != OutcomeMissingOwner {
		t.Fatalf("outcome=%v", got.Outcome)
	}
	if env.sets != 0 {
		t.Fatalf("install for missing owner")
	}
	for _, e := range hook.AllEntries() {
		if e.Level <= logrus.WarnLevel {
			t.Fatalf("missing owner should not warn: %+v", e)
		}
	}
}

func TestResolveSingleWaypointInstallsEmptyPath(t *testing.T) {
	_, r, env, _ := newTestPipeline(t, QueryFunc(nil), Config{}, "E1")
	env.paths["E1"] = []mathx.Vec3{mathx.V(9, 0, 9)}
	seq := r.Issue("E1")
	got := r.Resolve(Completion{Owner: "E1", Seq: seq, Path: []mathx.Vec3{mathx.V(2, 0, 2)}})
	if got.Outcome != OutcomeApplied {
		t.Fatalf("outcome=%v", got.Outcome)
	}
	if p, ok := env.paths["E1"]; !ok || len(p) != 0 {
		t.Fatalf("expected empty installed path, got %v", p)
	}
}

func TestResolveDoesNotAliasQueryResult(t *testing.T) {
	_, r, env, _ := newTestPipeline(t, QueryFunc(nil), Config{}, "E1")
	seq := r.Issue("E1")
	src := []mathx.Vec3{{}, mathx.V(1, 0, 0), mathx.V(2, 0, 0)}
	r.Resolve(Completion{Owner: "E1", Seq: seq, Path: src})
	src[1] = mathx.V(99, 0, 99)
	if env.paths["E1"][0] != mathx.V(1, 0, 0) {
		t.Fatalf("installed path aliases the query result")
	}
}

func TestIssueAndForget(t *testing.T) {
	r := NewResolver(newFakeEntities(), nil)
	if r.Issue("A") != 1 || r.Issue("A") != 2 || r.Issue("B") != 1 {
		t.Fatalf("unexpected sequence numbers")
	}
	r.Forget("A")
	if r.Latest("A") != 0 {
		t.Fatalf("Forget should reset tracking")
	}
}

func TestOutcomeText(t *testing.T) {
	b, _ := OutcomeStale.MarshalText()
	if string(b) != "STALE" || Outcome(0).String() != "UNKNOWN" {
		t.Fatalf("unexpected outcome text %q", b)
	}
}

func TestOutcomeUnmarshalText(t *testing.T) {
	var o Outcome
	if err := o.UnmarshalText([]byte("SNAPSHOT_UNAVAILABLE")); err != nil || o != OutcomeSnapshotUnavailable {
		t.Fatalf("o=%v err=%v", o, err)
	}
	if err := o.UnmarshalText([]byte("UNKNOWN")); err == nil {
		t.Fatalf("expected error for unknown outcome")
	}
}
