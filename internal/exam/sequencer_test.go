package exam_test

import (
	"testing"
	"time"

	"github.com/mind-engage/mindengage-exams/internal/exam"
)

func TestUnlockedWithoutOrderLock(t *testing.T) {
	h := newHarness(t)
	m1, _ := h.publish(t, "One", singleChoice(nil))
	m2, _ := h.publish(t, "Two", singleChoice(nil))
	g, a := h.assign(t, false, true, m1.ID, m2.ID)

	ok, err := h.eng.Sequencer.IsModuleUnlockedForUser(h.ctx, g.ID, m2.ID, taker)
	if err != nil || !ok {
		t.Fatalf("unlocked = %v, %v; want true", ok, err)
	}
	if _, err := h.eng.Tracker.GetOrCreateProgress(h.ctx, taker, a.ID, m2.ID); err != nil {
		t.Fatalf("start second module out of order: %v", err)
	}
}

func TestOrderLockNeedsPriorCompletion(t *testing.T) {
	h := newHarness(t)
	m1, _ := h.publish(t, "One", singleChoice(nil))
	m2, _ := h.publish(t, "Two", singleChoice(nil))
	m3, _ := h.publish(t, "Three", singleChoice(nil))
	g, a := h.assign(t, true, false, m1.ID, m2.ID, m3.ID)

	unlocked := func(moduleID string) bool {
		t.Helper()
		ok, err := h.eng.Sequencer.IsModuleUnlockedForUser(h.ctx, g.ID, moduleID, taker)
		if err != nil {
			t.Fatal(err)
		}
		return ok
	}
	if !unlocked(m1.ID) || unlocked(m2.ID) || unlocked(m3.ID) {
		t.Fatal("only the first member should be open")
	}
	_, err := h.eng.Tracker.GetOrCreateProgress(h.ctx, taker, a.ID, m2.ID)
	wantErr(t, err, exam.ErrLocked)

	p1, err := h.eng.Tracker.GetOrCreateProgress(h.ctx, taker, a.ID, m1.ID)
	if err != nil {
		t.Fatal(err)
	}
	if unlocked(m2.ID) {
		t.Fatal("started but not completed module unlocked the next one")
	}
	c, err := h.eng.Tracker.CompleteModule(h.ctx, p1.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !c.Members[1].Unlocked || c.Members[2].Unlocked {
		t.Fatalf("members after completion = %+v", c.Members)
	}
	if !unlocked(m2.ID) || unlocked(m3.ID) {
		t.Fatal("completing the first member should open only the second")
	}
	if _, err := h.eng.Tracker.GetOrCreateProgress(h.ctx, taker, a.ID, m2.ID); err != nil {
		t.Fatalf("start second module: %v", err)
	}
}

func TestWaitModuleCompletionHoldsUntilDurationElapses(t *testing.T) {
	h := newHarness(t)
	m1, _ := h.publish(t, "Timed", singleChoice(intp(10)))
	m2, _ := h.publish(t, "Next", singleChoice(nil))
	g, a := h.assign(t, true, true, m1.ID, m2.ID)

	p, err := h.eng.Tracker.GetOrCreateProgress(h.ctx, taker, a.ID, m1.ID)
	if err != nil {
		t.Fatal(err)
	}
	h.clock.advance(2 * time.Minute)
	if _, err := h.eng.Tracker.CompleteModule(h.ctx, p.ID); err != nil {
		t.Fatal(err)
	}

	h.clock.advance(7*time.Minute + 59*time.Second)
	ok, err := h.eng.Sequencer.IsModuleUnlockedForUser(h.ctx, g.ID, m2.ID, taker)
	if err != nil || ok {
		t.Fatalf("unlocked = %v, %v before the first module's time ran out", ok, err)
	}
	states, err := h.eng.Sequencer.GetGroupMemberStates(h.ctx, taker, a.ID, g.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !states[0].Completed || states[1].Unlocked {
		t.Fatalf("states = %+v", states)
	}

	h.clock.advance(time.Second)
	ok, err = h.eng.Sequencer.IsModuleUnlockedForUser(h.ctx, g.ID, m2.ID, taker)
	if err != nil || !ok {
		t.Fatalf("unlocked = %v, %v once the duration elapsed", ok, err)
	}
}

func TestUnlockCheckUnknownIDs(t *testing.T) {
	h := newHarness(t)
	m1, _ := h.publish(t, "One", singleChoice(nil))
	g, _ := h.assign(t, true, false, m1.ID)

	_, err := h.eng.Sequencer.IsModuleUnlockedForUser(h.ctx, "missing", m1.ID, taker)
	wantErr(t, err, exam.ErrNotFound)
	_, err = h.eng.Sequencer.IsModuleUnlockedForUser(h.ctx, g.ID, "missing", taker)
	wantErr(t, err, exam.ErrNotFound)
}

func TestSwapOrder(t *testing.T) {
	h := newHarness(t)
	m1, _ := h.publish(t, "One", singleChoice(nil))
	m2, _ := h.publish(t, "Two", singleChoice(nil))
	g, _ := h.assign(t, true, false, m1.ID, m2.ID)

	swapped, err := h.eng.Sequencer.SwapOrder(h.ctx, g.ID, g.Members[0].ID, g.Members[1].ID)
	if err != nil {
		t.Fatal(err)
	}
	if swapped.Members[0].ModuleID != m2.ID || swapped.Members[0].OrderNumber != 1 ||
		swapped.Members[1].ModuleID != m1.ID || swapped.Members[1].OrderNumber != 2 {
		t.Fatalf("members after swap = %+v", swapped.Members)
	}
	ok, err := h.eng.Sequencer.IsModuleUnlockedForUser(h.ctx, g.ID, m2.ID, taker)
	if err != nil || !ok {
		t.Fatalf("new first member locked: %v, %v", ok, err)
	}

	m3, _ := h.publish(t, "Three", singleChoice(nil))
	other, _ := h.assign(t, false, false, m3.ID)
	_, err = h.eng.Sequencer.SwapOrder(h.ctx, g.ID, g.Members[0].ID, other.Members[0].ID)
	wantErr(t, err, exam.ErrValidation)

	after, err := h.eng.Sequencer.GetGroup(h.ctx, g.ID)
	if err != nil {
		t.Fatal(err)
	}
	if after.Members[0].ModuleID != m2.ID {
		t.Fatalf("failed swap changed order: %+v", after.Members)
	}
}

func TestAddAndRemoveMembers(t *testing.T) {
	h := newHarness(t)
	var ids []string
	for _, title := range []string{"A", "B", "C", "D"} {
		m, _ := h.publish(t, title, singleChoice(nil))
		ids = append(ids, m.ID)
	}
	g, _ := h.assign(t, true, false, ids...)
	for i, m := range g.Members {
		if m.OrderNumber != i+1 || m.ModuleID != ids[i] {
			t.Fatalf("member %d = %+v", i, m)
		}
	}

	_, err := h.eng.Sequencer.AddMember(h.ctx, g.ID, ids[0])
	wantErr(t, err, exam.ErrConflict)
	_, err = h.eng.Sequencer.AddMember(h.ctx, g.ID, "missing")
	wantErr(t, err, exam.ErrNotFound)

	after, err := h.eng.Sequencer.RemoveMember(h.ctx, g.ID, g.Members[1].ID)
	if err != nil {
		t.Fatal(err)
	}
	want := []string{ids[0], ids[2], ids[3]}
	if len(after.Members) != len(want) {
		t.Fatalf("members = %+v", after.Members)
	}
	for i, m := range after.Members {
		if m.OrderNumber != i+1 || m.ModuleID != want[i] {
			t.Fatalf("member %d after removal = %+v", i, m)
		}
	}

	added, err := h.eng.Sequencer.AddMember(h.ctx, g.ID, ids[1])
	if err != nil {
		t.Fatal(err)
	}
	if added.OrderNumber != 4 {
		t.Fatalf("re-added member order = %d, want 4", added.OrderNumber)
	}
}

func TestGroupMemberStatesChecksAssignment(t *testing.T) {
	h := newHarness(t)
	m1, _ := h.publish(t, "One", singleChoice(nil))
	g1, a1 := h.assign(t, false, false, m1.ID)
	g2, _ := h.assign(t, false, false, m1.ID)

	_, err := h.eng.Sequencer.GetGroupMemberStates(h.ctx, taker, a1.ID, g2.ID)
	wantErr(t, err, exam.ErrValidation)
	_, err = h.eng.Sequencer.GetGroupMemberStates(h.ctx, "stranger", a1.ID, g1.ID)
	wantErr(t, err, exam.ErrNotFound)

	states, err := h.eng.Sequencer.GetGroupMemberStates(h.ctx, taker, a1.ID, g1.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(states) != 1 || !states[0].Unlocked || states[0].Completed {
		t.Fatalf("states = %+v", states)
	}
}

func TestCompletionCountsAcrossAssignments(t *testing.T) {
	h := newHarness(t)
	m1, _ := h.publish(t, "Reading", singleChoice(nil))
	m2, _ := h.publish(t, "Writing", singleChoice(nil))
	_, a1 := h.assign(t, false, false, m1.ID)
	g2, a2 := h.assign(t, true, false, m1.ID, m2.ID)

	p1, err := h.eng.Tracker.GetOrCreateProgress(h.ctx, taker, a1.ID, m1.ID)
	if err != nil {
		t.Fatal(err)
	}
	// one attempt per taker and version, whichever assignment asks
	shared, err := h.eng.Tracker.GetOrCreateProgress(h.ctx, taker, a2.ID, m1.ID)
	if err != nil {
		t.Fatal(err)
	}
	if shared.ID != p1.ID {
		t.Fatalf("second assignment got progress %s, want %s", shared.ID, p1.ID)
	}
	if _, err := h.eng.Tracker.CompleteModule(h.ctx, p1.ID); err != nil {
		t.Fatal(err)
	}

	states, err := h.eng.Sequencer.GetGroupMemberStates(h.ctx, taker, a2.ID, g2.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !states[0].Completed || !states[1].Unlocked {
		t.Fatalf("states in second assignment = %+v", states)
	}
	ok, err := h.eng.Sequencer.IsModuleUnlockedForUser(h.ctx, g2.ID, m2.ID, taker)
	if err != nil || !ok {
		t.Fatalf("unlocked = %v, %v; want true", ok, err)
	}
	p2, err := h.eng.Tracker.GetOrCreateProgress(h.ctx, taker, a2.ID, m2.ID)
	if err != nil {
		t.Fatalf("start next module in second assignment: %v", err)
	}
	if p2.AssignmentID != a2.ID {
		t.Fatalf("progress assignment = %s, want %s", p2.AssignmentID, a2.ID)
	}
}

func TestCreateAssignmentValidation(t *testing.T) {
	h := newHarness(t)
	g, err := h.eng.Sequencer.CreateGroup(h.ctx, exam.Group{Title: "g"})
	if err != nil {
		t.Fatal(err)
	}
	now := h.clock.now
	_, err = h.eng.Sequencer.CreateAssignment(h.ctx, exam.Assignment{GroupID: g.ID, StartAt: now, EndAt: now, ExamTakers: []string{taker}})
	wantErr(t, err, exam.ErrValidation)
	_, err = h.eng.Sequencer.CreateAssignment(h.ctx, exam.Assignment{GroupID: g.ID, StartAt: now, EndAt: now.Add(time.Hour), ExamTakers: []string{" "}})
	wantErr(t, err, exam.ErrValidation)
	_, err = h.eng.Sequencer.CreateAssignment(h.ctx, exam.Assignment{GroupID: "missing", StartAt: now, EndAt: now.Add(time.Hour), ExamTakers: []string{taker}})
	wantErr(t, err, exam.ErrNotFound)

	a, err := h.eng.Sequencer.CreateAssignment(h.ctx, exam.Assignment{
		GroupID:    g.ID,
		StartAt:    now,
		EndAt:      now.Add(time.Hour),
		ExamTakers: []string{taker, taker, "taker-2"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(a.ExamTakers) != 2 {
		t.Fatalf("takers = %v", a.ExamTakers)
	}
}
