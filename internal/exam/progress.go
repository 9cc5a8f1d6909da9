package exam

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/mind-engage/mindengage-exams/internal/db"
	"github.com/mind-engage/mindengage-exams/internal/grading"
	syncx "github.com/mind-engage/mindengage-exams/internal/sync"
)

// Tracker owns exam taker attempts: lazy creation against a pinned version,
// completion and the read-only taker projection.
type Tracker struct {
	deps
	store *SQLStore
	seq   *Sequencer
}

func NewTracker(store *SQLStore, seq *Sequencer, opts ...Option) *Tracker {
	return &Tracker{deps: newDeps(opts), store: store, seq: seq}
}

// GetOrCreateProgress returns the taker's attempt on a module within an
// assignment, starting one on the latest published version if none exists.
func (t *Tracker) GetOrCreateProgress(ctx context.Context, examTakerID, assignmentID, moduleID string) (Progress, error) {
	var out Progress
	err := t.store.tx(ctx, func(tx *sql.Tx) error {
		a, err := t.store.getAssignment(ctx, tx, assignmentID)
		if err != nil {
			return err
		}
		if !a.hasTaker(examTakerID) {
			return fmt.Errorf("%w: exam taker %s in assignment %s", ErrNotFound, examTakerID, assignmentID)
		}
		if p, ok, err := t.store.findProgress(ctx, tx, examTakerID, assignmentID, moduleID); err != nil {
			return err
		} else if ok {
			out, err = t.withResponses(ctx, tx, p)
			return err
		}

		now := t.now()
		if now.Before(a.StartAt) || now.After(a.EndAt) {
			return fmt.Errorf("%w: assignment %s is open from %s to %s", ErrLocked, assignmentID,
				a.StartAt.Format(time.RFC3339), a.EndAt.Format(time.RFC3339))
		}
		g, err := t.store.getGroup(ctx, tx, a.GroupID)
		if err != nil {
			return err
		}
		ok, err := t.seq.unlocked(ctx, tx, g, moduleID, examTakerID, now)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: module %s is not unlocked for exam taker %s", ErrLocked, moduleID, examTakerID)
		}

		vid, err := t.store.latestPublishedID(ctx, tx, moduleID)
		if err != nil {
			return err
		}
		v, err := t.store.getVersionHeader(ctx, tx, vid, false)
		if err != nil {
			return err
		}
		p := Progress{
			ID:              uuid.NewString(),
			ExamTakerID:     examTakerID,
			AssignmentID:    assignmentID,
			ModuleID:        moduleID,
			ModuleVersionID: v.ID,
			DurationMinutes: v.DurationMinutes,
			StartedAt:       now,
			Responses:       map[string]Response{},
		}
		created, err := t.store.insertProgress(ctx, tx, p)
		if err != nil {
			return err
		}
		if !created {
			// another request started the same attempt first
			existing, ok, err := t.store.findProgressByVersion(ctx, tx, examTakerID, v.ID)
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("%w: progress for exam taker %s on version %s", ErrConflict, examTakerID, v.ID)
			}
			out, err = t.withResponses(ctx, tx, existing)
			return err
		}
		t.log.Info("progress started", "progress_id", p.ID, "exam_taker_id", examTakerID,
			"module_id", moduleID, "version_id", v.ID)
		out = p
		return nil
	})
	if err != nil {
		return Progress{}, wrapStore("get or create progress", err)
	}
	return out, nil
}

// CompleteModule closes an attempt. Completing twice returns the first
// completion unchanged. An attempt whose budget already ran out is closed at
// the instant it expired.
func (t *Tracker) CompleteModule(ctx context.Context, progressID string) (Completion, error) {
	var out Completion
	first := false
	err := t.store.tx(ctx, func(tx *sql.Tx) error {
		p, err := t.store.getProgress(ctx, tx, progressID, true)
		if err != nil {
			return err
		}
		now := t.now()
		if !p.Completed() {
			at := now
			if end, timed := deadline(p.StartedAt, p.DurationMinutes); timed && end.Before(now) {
				at = end
			}
			if err := t.store.setCompleted(ctx, tx, p.ID, at); err != nil {
				return err
			}
			p.CompletedAt = &at
			first = true
		}
		if p, err = t.withResponses(ctx, tx, p); err != nil {
			return err
		}
		v, err := t.store.getVersion(ctx, tx, p.ModuleVersionID, false)
		if err != nil {
			return err
		}
		out = Completion{Progress: p}
		out.Answered, out.Correct, err = t.score(ctx, v, p.Responses)
		if err != nil {
			return err
		}

		a, err := t.store.getAssignment(ctx, tx, p.AssignmentID)
		if err != nil {
			return err
		}
		g, err := t.store.getGroup(ctx, tx, a.GroupID)
		if err != nil {
			return err
		}
		out.Members, err = t.seq.memberStates(ctx, tx, g, p.ExamTakerID, now)
		if err != nil {
			return err
		}
		if !first {
			return nil
		}
		ev, err := syncx.NewEvent(syncx.TypeModuleCompleted, p.ID, map[string]any{
			"exam_taker_id": p.ExamTakerID,
			"assignment_id": p.AssignmentID,
			"module_id":     p.ModuleID,
			"version_id":    p.ModuleVersionID,
			"completed_at":  p.CompletedAt,
			"answered":      out.Answered,
			"correct":       out.Correct,
			"members":       out.Members,
		})
		if err != nil {
			return err
		}
		return t.events.Append(ctx, tx, ev)
	})
	if err != nil {
		return Completion{}, wrapStore("complete module", err)
	}
	if first {
		t.log.Info("module completed", "progress_id", progressID, "exam_taker_id", out.Progress.ExamTakerID,
			"answered", out.Answered, "correct", out.Correct)
	}
	return out, nil
}

// score counts answered questions and the ones the correctness check accepts.
func (t *Tracker) score(ctx context.Context, v Version, responses map[string]Response) (answered, correct int, err error) {
	for _, q := range v.Questions {
		r, ok := responses[q.ID]
		if !ok {
			continue
		}
		answered++
		gq := grading.Q{Type: string(q.Type)}
		for _, a := range q.Answers {
			if a.IsCorrect {
				gq.CorrectIDs = append(gq.CorrectIDs, a.ID)
			}
			if q.Type == FreeText {
				gq.Accepted = append(gq.Accepted, a.Text)
			}
		}
		res, err := t.checker.Check(ctx, gq, grading.R{SelectedIDs: r.SelectedAnswerIDs, Text: r.TextResponse})
		if err != nil {
			return 0, 0, fmt.Errorf("check question %s: %w", q.ID, err)
		}
		if res.Correct {
			correct++
		}
	}
	return answered, correct, nil
}

// GetModuleVersionForExamTaker builds the taker's read-only view of a
// published version. It never creates or changes progress.
func (t *Tracker) GetModuleVersionForExamTaker(ctx context.Context, examTakerID, assignmentID, versionID string) (TakerView, error) {
	q := t.store.db
	a, err := t.store.getAssignment(ctx, q, assignmentID)
	if err != nil {
		return TakerView{}, wrapStore("taker view", err)
	}
	if !a.hasTaker(examTakerID) {
		return TakerView{}, fmt.Errorf("%w: exam taker %s in assignment %s", ErrNotFound, examTakerID, assignmentID)
	}
	v, err := t.store.getVersion(ctx, q, versionID, false)
	if err != nil {
		return TakerView{}, wrapStore("taker view", err)
	}
	if !v.IsPublished {
		return TakerView{}, notFound("version", versionID)
	}
	g, err := t.store.getGroup(ctx, q, a.GroupID)
	if err != nil {
		return TakerView{}, wrapStore("taker view", err)
	}
	if !hasModule(g, v.ModuleID) {
		return TakerView{}, fmt.Errorf("%w: module %s in assignment %s", ErrNotFound, v.ModuleID, assignmentID)
	}

	now := t.now()
	view := TakerView{Budget: ComputeRemaining(now, v.DurationMinutes, now)}
	p, ok, err := t.store.findProgressByVersion(ctx, q, examTakerID, versionID)
	if err != nil {
		return TakerView{}, wrapStore("taker view", err)
	}
	if ok {
		if p, err = t.withResponses(ctx, q, p); err != nil {
			return TakerView{}, wrapStore("taker view", err)
		}
		view.Progress = &p
		view.StartedAt = &p.StartedAt
		view.Budget = ComputeRemaining(p.StartedAt, p.DurationMinutes, now)
	}
	view.Version, err = t.redact(v)
	if err != nil {
		return TakerView{}, fmt.Errorf("exam: taker view: %w", err)
	}
	return view, nil
}

// redact strips answer keys and resolves attachment URLs.
func (t *Tracker) redact(v Version) (Version, error) {
	qs := make([]Question, 0, len(v.Questions))
	for _, q := range v.Questions {
		var err error
		if q.AttachmentURLs, err = t.resolve(q.Attachments); err != nil {
			return Version{}, err
		}
		answers := []Answer{}
		if q.Type != FreeText {
			for _, a := range q.Answers {
				a.IsCorrect = false
				if a.AttachmentURLs, err = t.resolve(a.Attachments); err != nil {
					return Version{}, err
				}
				answers = append(answers, a)
			}
		}
		q.Answers = answers
		qs = append(qs, q)
	}
	v.Questions = qs
	return v, nil
}

func (t *Tracker) resolve(keys []string) ([]string, error) {
	if t.files == nil || len(keys) == 0 {
		return nil, nil
	}
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		u, err := t.files.SignedURL(k)
		if err != nil {
			return nil, fmt.Errorf("attachment %s: %w", k, err)
		}
		out = append(out, u)
	}
	return out, nil
}

// GetProgress returns an attempt with its current responses.
func (t *Tracker) GetProgress(ctx context.Context, progressID string) (Progress, error) {
	p, err := t.store.getProgress(ctx, t.store.db, progressID, false)
	if err != nil {
		return Progress{}, wrapStore("get progress", err)
	}
	p, err = t.withResponses(ctx, t.store.db, p)
	if err != nil {
		return Progress{}, wrapStore("get progress", err)
	}
	return p, nil
}

func (t *Tracker) withResponses(ctx context.Context, q db.Querier, p Progress) (Progress, error) {
	r, err := t.store.loadResponses(ctx, q, p.ID)
	if err != nil {
		return Progress{}, err
	}
	p.Responses = r
	return p, nil
}

func hasModule(g Group, moduleID string) bool {
	for _, m := range g.Members {
		if m.ModuleID == moduleID {
			return true
		}
	}
	return false
}
