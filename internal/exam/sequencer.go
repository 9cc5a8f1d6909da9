package exam

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mind-engage/mindengage-exams/internal/db"
)

// Sequencer decides which group members an exam taker may open and keeps
// member order numbers contiguous.
type Sequencer struct {
	deps
	store *SQLStore
}

func NewSequencer(store *SQLStore, opts ...Option) *Sequencer {
	return &Sequencer{deps: newDeps(opts), store: store}
}

// IsModuleUnlockedForUser reports whether the taker may open moduleID in the
// group. Without an order lock every member is open.
func (s *Sequencer) IsModuleUnlockedForUser(ctx context.Context, groupID, moduleID, examTakerID string) (bool, error) {
	g, err := s.store.getGroup(ctx, s.store.db, groupID)
	if err != nil {
		return false, wrapStore("unlock check", err)
	}
	ok, err := s.unlocked(ctx, s.store.db, g, moduleID, examTakerID, s.now())
	if err != nil {
		return false, wrapStore("unlock check", err)
	}
	return ok, nil
}

func (s *Sequencer) unlocked(ctx context.Context, q db.Querier, g Group, moduleID, takerID string, now time.Time) (bool, error) {
	if !hasModule(g, moduleID) {
		return false, fmt.Errorf("%w: module %s is not a member of group %s", ErrNotFound, moduleID, g.ID)
	}
	if !g.IsMemberOrderLocked {
		return true, nil
	}
	for _, m := range g.Members {
		if m.ModuleID == moduleID {
			break
		}
		ok, err := s.satisfied(ctx, q, g, m.ModuleID, takerID, now)
		if err != nil || !ok {
			return false, err
		}
	}
	return true, nil
}

// satisfied reports whether a prior member no longer blocks later ones: it is
// completed and, when the group waits for module completion, its full
// duration has run out.
func (s *Sequencer) satisfied(ctx context.Context, q db.Querier, g Group, moduleID, takerID string, now time.Time) (bool, error) {
	done, err := s.store.completedProgress(ctx, q, takerID, moduleID)
	if err != nil || len(done) == 0 {
		return false, err
	}
	if !g.WaitModuleCompletion {
		return true, nil
	}
	for _, p := range done {
		b := ComputeRemaining(p.StartedAt, p.DurationMinutes, now)
		if !b.Timed || b.IsExpired {
			return true, nil
		}
	}
	return false, nil
}

func (s *Sequencer) memberStates(ctx context.Context, q db.Querier, g Group, takerID string, now time.Time) ([]MemberState, error) {
	out := make([]MemberState, 0, len(g.Members))
	open := true
	for _, m := range g.Members {
		done, err := s.store.completedProgress(ctx, q, takerID, m.ModuleID)
		if err != nil {
			return nil, err
		}
		st := MemberState{
			MemberID:    m.ID,
			ModuleID:    m.ModuleID,
			OrderNumber: m.OrderNumber,
			Unlocked:    open || !g.IsMemberOrderLocked,
			Completed:   len(done) > 0,
		}
		out = append(out, st)
		if g.IsMemberOrderLocked && open {
			ok, err := s.satisfied(ctx, q, g, m.ModuleID, takerID, now)
			if err != nil {
				return nil, err
			}
			open = ok
		}
	}
	return out, nil
}

// GetGroupMemberStates returns the per-member unlocked/completed flags for a
// taker within an assignment.
func (s *Sequencer) GetGroupMemberStates(ctx context.Context, examTakerID, assignmentID, groupID string) ([]MemberState, error) {
	a, err := s.store.getAssignment(ctx, s.store.db, assignmentID)
	if err != nil {
		return nil, wrapStore("member states", err)
	}
	if a.GroupID != groupID {
		return nil, fmt.Errorf("%w: assignment %s is not for group %s", ErrValidation, assignmentID, groupID)
	}
	if !a.hasTaker(examTakerID) {
		return nil, fmt.Errorf("%w: exam taker %s in assignment %s", ErrNotFound, examTakerID, assignmentID)
	}
	g, err := s.store.getGroup(ctx, s.store.db, groupID)
	if err != nil {
		return nil, wrapStore("member states", err)
	}
	states, err := s.memberStates(ctx, s.store.db, g, examTakerID, s.now())
	if err != nil {
		return nil, wrapStore("member states", err)
	}
	return states, nil
}

// SwapOrder exchanges the order numbers of two members of the same group.
func (s *Sequencer) SwapOrder(ctx context.Context, groupID, memberAID, memberBID string) (Group, error) {
	var out Group
	err := s.store.tx(ctx, func(tx *sql.Tx) error {
		if err := s.store.lockGroup(ctx, tx, groupID); err != nil {
			return err
		}
		a, err := s.store.getMember(ctx, tx, memberAID)
		if err != nil {
			return err
		}
		b, err := s.store.getMember(ctx, tx, memberBID)
		if err != nil {
			return err
		}
		if a.GroupID != groupID || b.GroupID != groupID {
			return fmt.Errorf("%w: members %s and %s are not both in group %s", ErrValidation, a.ID, b.ID, groupID)
		}
		if a.ID != b.ID {
			// park a outside the unique range while b takes its slot
			if err := s.store.setMemberOrder(ctx, tx, a.ID, -1); err != nil {
				return err
			}
			if err := s.store.setMemberOrder(ctx, tx, b.ID, a.OrderNumber); err != nil {
				return err
			}
			if err := s.store.setMemberOrder(ctx, tx, a.ID, b.OrderNumber); err != nil {
				return err
			}
		}
		out, err = s.store.getGroup(ctx, tx, groupID)
		return err
	})
	if err != nil {
		return Group{}, wrapStore("swap order", err)
	}
	return out, nil
}

func (s *Sequencer) CreateGroup(ctx context.Context, g Group) (Group, error) {
	g.ID = uuid.NewString()
	g.Title = strings.TrimSpace(g.Title)
	g.Members = []GroupMember{}
	if err := s.store.insertGroup(ctx, s.store.db, g, s.now()); err != nil {
		return Group{}, fmt.Errorf("exam: create group: %w", err)
	}
	return g, nil
}

func (s *Sequencer) GetGroup(ctx context.Context, groupID string) (Group, error) {
	g, err := s.store.getGroup(ctx, s.store.db, groupID)
	if err != nil {
		return Group{}, wrapStore("get group", err)
	}
	return g, nil
}

// AddMember appends a module to the end of the group's order.
func (s *Sequencer) AddMember(ctx context.Context, groupID, moduleID string) (GroupMember, error) {
	var out GroupMember
	err := s.store.tx(ctx, func(tx *sql.Tx) error {
		if err := s.store.lockGroup(ctx, tx, groupID); err != nil {
			return err
		}
		if _, err := s.store.getModule(ctx, tx, moduleID); err != nil {
			return err
		}
		g, err := s.store.getGroup(ctx, tx, groupID)
		if err != nil {
			return err
		}
		for _, m := range g.Members {
			if m.ModuleID == moduleID {
				return fmt.Errorf("%w: module %s is already in group %s", ErrConflict, moduleID, groupID)
			}
		}
		out = GroupMember{ID: uuid.NewString(), GroupID: groupID, ModuleID: moduleID, OrderNumber: len(g.Members) + 1}
		return s.store.insertMember(ctx, tx, out)
	})
	if err != nil {
		return GroupMember{}, wrapStore("add member", err)
	}
	return out, nil
}

// RemoveMember deletes a member and closes the gap it leaves in the order.
func (s *Sequencer) RemoveMember(ctx context.Context, groupID, memberID string) (Group, error) {
	var out Group
	err := s.store.tx(ctx, func(tx *sql.Tx) error {
		if err := s.store.lockGroup(ctx, tx, groupID); err != nil {
			return err
		}
		m, err := s.store.getMember(ctx, tx, memberID)
		if err != nil {
			return err
		}
		if m.GroupID != groupID {
			return fmt.Errorf("%w: member %s is not in group %s", ErrValidation, memberID, groupID)
		}
		if err := s.store.deleteMember(ctx, tx, memberID); err != nil {
			return err
		}
		g, err := s.store.getGroup(ctx, tx, groupID)
		if err != nil {
			return err
		}
		// members come back ordered, so shifting down never collides
		for i := range g.Members {
			want := i + 1
			if g.Members[i].OrderNumber != want {
				if err := s.store.setMemberOrder(ctx, tx, g.Members[i].ID, want); err != nil {
					return err
				}
				g.Members[i].OrderNumber = want
			}
		}
		out = g
		return nil
	})
	if err != nil {
		return Group{}, wrapStore("remove member", err)
	}
	return out, nil
}

// CreateAssignment assigns a group to a set of exam takers for a time window.
func (s *Sequencer) CreateAssignment(ctx context.Context, a Assignment) (Assignment, error) {
	if !a.EndAt.After(a.StartAt) {
		return Assignment{}, fmt.Errorf("%w: assignment must end after it starts", ErrValidation)
	}
	seen := map[string]bool{}
	takers := make([]string, 0, len(a.ExamTakers))
	for _, t := range a.ExamTakers {
		t = strings.TrimSpace(t)
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		takers = append(takers, t)
	}
	if len(takers) == 0 {
		return Assignment{}, fmt.Errorf("%w: assignment needs at least one exam taker", ErrValidation)
	}
	a.ID = uuid.NewString()
	a.ExamTakers = takers
	a.StartAt, a.EndAt = a.StartAt.UTC(), a.EndAt.UTC()
	err := s.store.tx(ctx, func(tx *sql.Tx) error {
		if _, err := s.store.getGroup(ctx, tx, a.GroupID); err != nil {
			return err
		}
		return s.store.insertAssignment(ctx, tx, a, s.now())
	})
	if err != nil {
		return Assignment{}, wrapStore("create assignment", err)
	}
	return a, nil
}
