package pipeline

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"go-sim-loop/internal/bus"
	"go-sim-loop/internal/model"
)

// Tracker aggregates verdicts into run families keyed by root id. Each family
// has its own lock; the outer lock only guards the maps.
type Tracker struct {
	mu       sync.RWMutex
	families map[string]*family
	roots    map[string]string // member id -> root id
	created  chan struct{}     // closed and replaced when a family is created

	variants int
	metrics  *LoopTracker
	logger   *slog.Logger
	now      func() time.Time
}

type family struct {
	mu        sync.Mutex
	rootID    string
	members   map[string]*model.FamilyMember
	passed    bool
	best      *model.BestMember
	updatedAt time.Time
	changed   chan struct{} // closed and replaced on every change
}

// NewTracker creates a tracker expecting variants siblings per failed root.
func NewTracker(variants int, metrics *LoopTracker, logger *slog.Logger) *Tracker {
	return &Tracker{
		families: make(map[string]*family),
		roots:    make(map[string]string),
		created:  make(chan struct{}),
		variants: variants,
		metrics:  metrics,
		logger:   logger.With("component", "tracker"),
		now:      time.Now,
	}
}

// family returns the aggregate for rootID, creating it when asked to.
func (t *Tracker) family(rootID string, create bool) *family {
	t.mu.RLock()
	f, ok := t.families[rootID]
	t.mu.RUnlock()
	if ok || !create {
		return f
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if f, ok = t.families[rootID]; ok {
		return f
	}
	f = &family{
		rootID:  rootID,
		members: make(map[string]*model.FamilyMember),
		changed: make(chan struct{}),
	}
	t.families[rootID] = f
	close(t.created)
	t.created = make(chan struct{})
	return f
}

func (t *Tracker) index(memberID, rootID string) {
	t.mu.Lock()
	t.roots[memberID] = rootID
	t.mu.Unlock()
}

// RootOf resolves the family root of a request id.
func (t *Tracker) RootOf(requestID string) string {
	t.mu.RLock()
	root, ok := t.roots[requestID]
	t.mu.RUnlock()
	if ok {
		return root
	}
	return model.RootFromID(requestID)
}

// RegisterRequest adds a submitted request as a pending member. Members that
// already exist are left untouched.
func (t *Tracker) RegisterRequest(req model.Request) {
	root := req.FamilyRoot()
	t.index(req.RequestID, root)

	f := t.family(root, true)
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.members[req.RequestID]; ok {
		return
	}
	f.members[req.RequestID] = &model.FamilyMember{
		RequestID: req.RequestID,
		ParentID:  req.ParentID,
		Origin:    req.Origin,
	}
	f.touch(t.now())
}

// Record merges a verdict into its family and returns the new snapshot. The
// merge is idempotent and independent of arrival order. duplicate is true when
// the verdict was already recorded.
func (t *Tracker) Record(v model.Verdict) (snap model.FamilySnapshot, duplicate bool) {
	root := v.FamilyRoot()
	t.index(v.RequestID, root)

	member := model.FamilyMember{
		RequestID:     v.RequestID,
		ParentID:      v.ParentID,
		Origin:        v.Origin,
		Reported:      true,
		Passed:        v.Validation.Passed,
		ObservedValue: v.Validation.CalculatedValue,
		Reason:        v.Validation.Reason,
		ValidatedAt:   v.Validation.ValidatedAt,
	}

	f := t.family(root, true)
	f.mu.Lock()
	wasPassed := f.passed
	duplicate = f.merge(member, t.now())
	snap = f.snapshot(t.variants)
	f.mu.Unlock()

	if duplicate {
		t.metrics.DuplicateVerdict()
	}
	if snap.FamilyPassed && !wasPassed {
		attrs := []any{"root_id", root, "passed_by", v.RequestID}
		if snap.BestMember != nil {
			attrs = append(attrs, "best_value", snap.BestMember.ObservedValue)
		}
		t.logger.Info("family passed", attrs...)
	}
	return snap, duplicate
}

// merge applies a reported member. Caller holds f.mu.
func (f *family) merge(m model.FamilyMember, now time.Time) (duplicate bool) {
	cur, ok := f.members[m.RequestID]
	if ok && cur.Reported && sameVerdict(*cur, m) {
		return true
	}
	if !ok || !cur.Reported || newer(m, *cur) {
		if ok && m.ParentID == "" {
			m.ParentID = cur.ParentID
		}
		f.members[m.RequestID] = &m
	}

	if m.Passed {
		f.passed = true
		if m.ObservedValue != nil {
			candidate := model.BestMember{RequestID: m.RequestID, ObservedValue: *m.ObservedValue, ValidatedAt: m.ValidatedAt}
			if f.best == nil || better(candidate, *f.best) {
				f.best = &candidate
			}
		}
	}
	f.touch(now)
	return false
}

func (f *family) touch(now time.Time) {
	f.updatedAt = now.UTC()
	close(f.changed)
	f.changed = make(chan struct{})
}

func sameVerdict(a, b model.FamilyMember) bool {
	if a.Passed != b.Passed || !a.ValidatedAt.Equal(b.ValidatedAt) || a.Reason != b.Reason {
		return false
	}
	if (a.ObservedValue == nil) != (b.ObservedValue == nil) {
		return false
	}
	return a.ObservedValue == nil || *a.ObservedValue == *b.ObservedValue
}

// newer orders two verdicts of the same member: later validation wins, then a
// pass, then the higher observed value, then the greater reason.
func newer(a, b model.FamilyMember) bool {
	if !a.ValidatedAt.Equal(b.ValidatedAt) {
		return a.ValidatedAt.After(b.ValidatedAt)
	}
	if a.Passed != b.Passed {
		return a.Passed
	}
	switch {
	case a.ObservedValue == nil && b.ObservedValue != nil:
		return false
	case a.ObservedValue != nil && b.ObservedValue == nil:
		return true
	case a.ObservedValue != nil && *a.ObservedValue != *b.ObservedValue:
		return *a.ObservedValue > *b.ObservedValue
	}
	return a.Reason > b.Reason
}

// better orders best-member candidates: higher value, then earlier
// validation, then smaller id.
func better(a, b model.BestMember) bool {
	if a.ObservedValue != b.ObservedValue {
		return a.ObservedValue > b.ObservedValue
	}
	if !a.ValidatedAt.Equal(b.ValidatedAt) {
		return a.ValidatedAt.Before(b.ValidatedAt)
	}
	return a.RequestID < b.RequestID
}

// snapshot copies the aggregate. Caller holds f.mu.
func (f *family) snapshot(variants int) model.FamilySnapshot {
	s := model.FamilySnapshot{
		RootID:       f.rootID,
		Members:      make([]model.FamilyMember, 0, len(f.members)),
		FamilyPassed: f.passed,
		UpdatedAt:    f.updatedAt,
	}
	if f.best != nil {
		b := *f.best
		s.BestMember = &b
	}

	reportedVariants := 0
	for _, m := range f.members {
		s.Members = append(s.Members, *m)
		if !m.Reported {
			continue
		}
		s.ReportedCount++
		if m.Passed {
			s.PassedCount++
		}
		if m.RequestID != f.rootID {
			reportedVariants++
		}
	}
	sort.Slice(s.Members, func(i, j int) bool { return s.Members[i].RequestID < s.Members[j].RequestID })

	root, known := f.members[f.rootID]
	rootFailed := known && root.Reported && !root.Passed
	s.ExpectedMembers = 1
	if rootFailed && root.Origin == model.OriginUser {
		s.ExpectedMembers += variants
	}
	s.PendingMembers = max(s.ExpectedMembers-s.ReportedCount, 0)
	s.Settled = s.FamilyPassed ||
		(rootFailed && (root.Origin != model.OriginUser || reportedVariants >= variants))
	return s
}

// GetFamily returns a snapshot of the family rooted at rootID. ok is false
// until a verdict of the family has been recorded.
func (t *Tracker) GetFamily(rootID string) (model.FamilySnapshot, bool) {
	snap, ok := t.Members(rootID)
	if !ok || snap.ReportedCount == 0 {
		return model.FamilySnapshot{}, false
	}
	return snap, true
}

// Members returns a snapshot of the family rooted at rootID including members
// that are registered but not yet reported. ok is false for a root nothing is
// known about.
func (t *Tracker) Members(rootID string) (model.FamilySnapshot, bool) {
	f := t.family(rootID, false)
	if f == nil {
		return model.FamilySnapshot{}, false
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.members) == 0 {
		return model.FamilySnapshot{}, false
	}
	return f.snapshot(t.variants), true
}

// Watch returns a channel closed on the next change to the family of rootID.
// For a root that is not tracked yet the channel closes when any family is
// created, so callers re-check rather than assume their family changed.
func (t *Tracker) Watch(rootID string) <-chan struct{} {
	t.mu.RLock()
	f, ok := t.families[rootID]
	created := t.created
	t.mu.RUnlock()
	if !ok {
		return created
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.changed
}

func (t *Tracker) tracked(rootID string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	_, ok := t.families[rootID]
	return ok
}

// Len returns the number of families held, including ones with only pending
// members.
func (t *Tracker) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.families)
}

// Counts returns how many families are tracked and how many have passed.
func (t *Tracker) Counts() (tracked, passed int) {
	t.mu.RLock()
	families := make([]*family, 0, len(t.families))
	for _, f := range t.families {
		families = append(families, f)
	}
	t.mu.RUnlock()

	for _, f := range families {
		f.mu.Lock()
		if len(f.members) > 0 {
			tracked++
			if f.passed {
				passed++
			}
		}
		f.mu.Unlock()
	}
	return tracked, passed
}

// Hydrate rebuilds families from stored runs.
func (t *Tracker) Hydrate(runs []model.RunRecord) {
	for _, r := range runs {
		req := model.Request{RequestID: r.RequestID, ParentID: r.ParentID, RootID: r.RootID, Origin: r.Origin}
		t.RegisterRequest(req)
		if r.Passed == nil {
			continue
		}
		v := model.Verdict{
			ExecutionResult: model.ExecutionResult{Request: req},
			Validation: model.Validation{
				Passed:          *r.Passed,
				CalculatedValue: r.CalculatedValue,
				Reason:          r.Reason,
			},
		}
		if r.ValidatedAt != nil {
			v.Validation.ValidatedAt = *r.ValidatedAt
		}
		t.Record(v)
	}
}

// HandleRequest registers requests published on the requests topic.
func (t *Tracker) HandleRequest(_ context.Context, msg bus.Message) error {
	var req model.Request
	if err := bus.Decode(msg, &req); err != nil {
		t.metrics.RecordError("tracker", msg.Key, "decode", err, false)
		return nil
	}
	t.RegisterRequest(req)
	return nil
}

// HandleVerdict records verdicts from either validation topic.
func (t *Tracker) HandleVerdict(_ context.Context, msg bus.Message) error {
	var v model.Verdict
	if err := bus.Decode(msg, &v); err != nil {
		t.metrics.RecordError("tracker", msg.Key, "decode", err, false)
		return nil
	}
	snap, duplicate := t.Record(v)
	t.logger.Debug("verdict recorded",
		"request_id", v.RequestID,
		"root_id", snap.RootID,
		"passed", v.Validation.Passed,
		"duplicate", duplicate,
		"reported", snap.ReportedCount,
		"settled", snap.Settled)
	return nil
}
