package pipeline

import (
	"fmt"
	"testing"
	"time"

	"go-sim-loop/internal/logging"
	"go-sim-loop/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestTracker(variants int) *Tracker {
	return NewTracker(variants, NewLoopTracker(nil, logging.Discard()), logging.Discard())
}

// verdictFor builds a verdict for id in the family of "root".
func verdictFor(id string, passed bool, value *float64, at time.Time) model.Verdict {
	origin := model.OriginSystem
	parent := ""
	if id == "root" {
		origin = model.OriginUser
	} else {
		parent = "root"
	}
	return model.Verdict{
		ExecutionResult: model.ExecutionResult{
			Request: model.Request{RequestID: id, ParentID: parent, Origin: origin},
			Status:  model.StatusCompleted,
		},
		Validation: model.Validation{Passed: passed, CalculatedValue: value, ValidatedAt: at},
	}
}

func withoutTimestamp(s model.FamilySnapshot) model.FamilySnapshot {
	s.UpdatedAt = time.Time{}
	return s
}

func TestTracker_RecordIsIdempotent(t *testing.T) {
	tr := newTestTracker(3)
	v := verdictFor("root_gen_1", true, ptr(1.4), validatedAt)

	first, dup := tr.Record(v)
	assert.False(t, dup)
	second, dup := tr.Record(v)
	assert.True(t, dup)
	assert.Equal(t, withoutTimestamp(first), withoutTimestamp(second))
	assert.Equal(t, 1, second.ReportedCount)
}

func TestTracker_MergeCommutes(t *testing.T) {
	verdicts := []model.Verdict{
		verdictFor("root", false, ptr(1.0), validatedAt),
		verdictFor("root_gen_1", true, ptr(1.3), validatedAt.Add(time.Second)),
		verdictFor("root_gen_2", true, ptr(1.3), validatedAt.Add(2*time.Second)),
		verdictFor("root_gen_3", false, nil, validatedAt.Add(3*time.Second)),
	}

	var want model.FamilySnapshot
	for i, order := range permutations(len(verdicts)) {
		tr := newTestTracker(3)
		var snap model.FamilySnapshot
		for _, idx := range order {
			snap, _ = tr.Record(verdicts[idx])
		}
		if i == 0 {
			want = withoutTimestamp(snap)
			continue
		}
		require.Equal(t, want, withoutTimestamp(snap), "order %v", order)
	}

	assert.True(t, want.FamilyPassed)
	require.NotNil(t, want.BestMember)
	// equal values: the earlier validation wins
	assert.Equal(t, "root_gen_1", want.BestMember.RequestID)
	assert.Equal(t, 2, want.PassedCount)
	assert.Equal(t, 4, want.ReportedCount)
	assert.True(t, want.Settled)
}

func TestTracker_PassedIsMonotonic(t *testing.T) {
	tr := newTestTracker(3)
	tr.Record(verdictFor("root", false, ptr(1.0), validatedAt))
	snap, _ := tr.Record(verdictFor("root_gen_2", true, ptr(1.5), validatedAt))
	require.True(t, snap.FamilyPassed)

	for _, v := range []model.Verdict{
		verdictFor("root_gen_1", false, ptr(0.2), validatedAt),
		verdictFor("root_gen_3", true, ptr(1.25), validatedAt),
		verdictFor("root_gen_2", false, ptr(0.1), validatedAt.Add(time.Hour)),
	} {
		snap, _ = tr.Record(v)
		assert.True(t, snap.FamilyPassed)
		require.NotNil(t, snap.BestMember)
		assert.Equal(t, "root_gen_2", snap.BestMember.RequestID)
		assert.Equal(t, 1.5, snap.BestMember.ObservedValue)
	}

	// a later verdict replaces the member view but not the aggregate
	m, ok := snap.Member("root_gen_2")
	require.True(t, ok)
	assert.False(t, m.Passed)
}

func TestTracker_BestTieBreaksOnID(t *testing.T) {
	tr := newTestTracker(3)
	tr.Record(verdictFor("root_gen_3", true, ptr(2), validatedAt))
	snap, _ := tr.Record(verdictFor("root_gen_2", true, ptr(2), validatedAt))
	assert.Equal(t, "root_gen_2", snap.BestMember.RequestID)
}

func TestTracker_Settled(t *testing.T) {
	tr := newTestTracker(2)
	tr.RegisterRequest(model.Request{RequestID: "root", Origin: model.OriginUser})

	_, ok := tr.GetFamily("root")
	assert.False(t, ok, "unknown until the first verdict")
	snap, ok := tr.Members("root")
	require.True(t, ok)
	assert.Equal(t, 0, snap.ReportedCount)
	assert.Len(t, snap.Members, 1)
	assert.False(t, snap.Settled)
	assert.Equal(t, 1, snap.ExpectedMembers)
	assert.Equal(t, 1, snap.PendingMembers)

	snap, _ = tr.Record(verdictFor("root", false, ptr(0.5), validatedAt))
	assert.False(t, snap.Settled)
	assert.Equal(t, 3, snap.ExpectedMembers)
	assert.Equal(t, 2, snap.PendingMembers)

	snap, _ = tr.Record(verdictFor("root_gen_1", false, ptr(0.6), validatedAt))
	assert.False(t, snap.Settled)
	snap, _ = tr.Record(verdictFor("root_gen_2", false, ptr(0.7), validatedAt))
	assert.True(t, snap.Settled)
	assert.False(t, snap.FamilyPassed)
	assert.Nil(t, snap.BestMember)
	assert.Equal(t, 0, snap.PendingMembers)
}

func TestTracker_RootResolution(t *testing.T) {
	tr := newTestTracker(3)
	tr.RegisterRequest(model.Request{RequestID: "abc", Origin: model.OriginUser})
	tr.RegisterRequest(model.Request{RequestID: "v-1", RootID: "abc", ParentID: "abc", Origin: model.OriginSystem})

	assert.Equal(t, "abc", tr.RootOf("abc"))
	assert.Equal(t, "abc", tr.RootOf("v-1"))
	assert.Equal(t, "xyz", tr.RootOf("xyz_gen_4"))
	assert.Equal(t, "unknown", tr.RootOf("unknown"))

	_, ok := tr.GetFamily("xyz")
	assert.False(t, ok)
}

func TestTracker_WatchFiresOnChange(t *testing.T) {
	tr := newTestTracker(3)
	ch := tr.Watch("root")
	select {
	case <-ch:
		t.Fatal("watch fired without a change")
	default:
	}

	tr.Record(verdictFor("root", true, ptr(3), validatedAt))
	select {
	case <-ch:
	case <-time.After(time.Second):
		t.Fatal("watch did not fire")
	}
}

func TestTracker_WatchDoesNotCreateFamilies(t *testing.T) {
	tr := newTestTracker(3)
	for i := 0; i < 100; i++ {
		tr.Watch(fmt.Sprintf("nobody-%d", i))
	}
	assert.Equal(t, 0, tr.Len())
	_, ok := tr.Members("nobody-1")
	assert.False(t, ok)

	// a known family hands out its own channel
	tr.Record(verdictFor("root", false, ptr(1), validatedAt))
	known := tr.Watch("root")
	other := tr.Watch("elsewhere")
	tr.RegisterRequest(model.Request{RequestID: "elsewhere", Origin: model.OriginUser})
	select {
	case <-other:
	case <-time.After(time.Second):
		t.Fatal("watch of an untracked root did not fire on creation")
	}
	select {
	case <-known:
		t.Fatal("unrelated family fired the watch")
	default:
	}
	assert.Equal(t, 2, tr.Len())
}

func TestTracker_EqualTimestampVerdictsCommute(t *testing.T) {
	a := verdictFor("root_gen_1", false, ptr(0.3), validatedAt)
	a.Validation.Reason = "0.3 below 1"
	b := verdictFor("root_gen_1", false, ptr(0.6), validatedAt)
	b.Validation.Reason = "0.6 below 1"
	c := verdictFor("root_gen_1", false, ptr(0.6), validatedAt)
	c.Validation.Reason = "observed 0.6"

	var want model.FamilyMember
	for i, order := range permutations(3) {
		tr := newTestTracker(3)
		var snap model.FamilySnapshot
		for _, idx := range order {
			snap, _ = tr.Record([]model.Verdict{a, b, c}[idx])
		}
		m, ok := snap.Member("root_gen_1")
		require.True(t, ok)
		if i == 0 {
			want = m
			continue
		}
		assert.Equal(t, want, m, "order %v", order)
	}
	require.NotNil(t, want.ObservedValue)
	assert.Equal(t, 0.6, *want.ObservedValue)
	assert.Equal(t, "observed 0.6", want.Reason)
}

func TestTracker_Hydrate(t *testing.T) {
	passed, failed := true, false
	at := validatedAt
	tr := newTestTracker(2)
	tr.Hydrate([]model.RunRecord{
		{RequestID: "root", RootID: "root", Origin: model.OriginUser, Passed: &failed, CalculatedValue: ptr(0.5), ValidatedAt: &at},
		{RequestID: "root_gen_1", RootID: "root", ParentID: "root", Origin: model.OriginSystem, Passed: &passed, CalculatedValue: ptr(1.5), ValidatedAt: &at},
		{RequestID: "root_gen_2", RootID: "root", ParentID: "root", Origin: model.OriginSystem},
		{RequestID: "other", RootID: "other", Origin: model.OriginUser},
	})

	snap, ok := tr.GetFamily("root")
	require.True(t, ok)
	assert.True(t, snap.FamilyPassed)
	assert.Equal(t, 2, snap.ReportedCount)
	assert.Len(t, snap.Members, 3)
	assert.Equal(t, "root_gen_1", snap.BestMember.RequestID)

	tracked, passedFamilies := tr.Counts()
	assert.Equal(t, 2, tracked)
	assert.Equal(t, 1, passedFamilies)
}

func permutations(n int) [][]int {
	var out [][]int
	var rec func(cur []int, used []bool)
	rec = func(cur []int, used []bool) {
		if len(cur) == n {
			out = append(out, append([]int(nil), cur...))
			return
		}
		for i := 0; i < n; i++ {
			if used[i] {
				continue
			}
			used[i] = true
			rec(append(cur, i), used)
			used[i] = false
		}
	}
	rec(nil, make([]bool, n))
	return out
}
