package exam

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/mind-engage/mindengage-exams/internal/db"
)

// AnswerProcessor records taker responses against an open attempt.
type AnswerProcessor struct {
	deps
	store *SQLStore
}

func NewAnswerProcessor(store *SQLStore, opts ...Option) *AnswerProcessor {
	return &AnswerProcessor{deps: newDeps(opts), store: store}
}

// SubmitAnswer replaces the response to one question. The progress row stays
// locked for the whole call so a concurrent completion either lands before
// (and the submission is refused) or after it.
func (p *AnswerProcessor) SubmitAnswer(ctx context.Context, progressID, questionID string, payload Payload) (Response, error) {
	var out Response
	err := p.store.tx(ctx, func(tx *sql.Tx) error {
		pr, err := p.store.getProgress(ctx, tx, progressID, true)
		if err != nil {
			return err
		}
		if pr.Completed() {
			return fmt.Errorf("%w: progress %s is completed", ErrLocked, progressID)
		}
		now := p.now()
		if ComputeRemaining(pr.StartedAt, pr.DurationMinutes, now).IsExpired {
			return fmt.Errorf("%w: progress %s", ErrExpired, progressID)
		}
		q, err := p.question(ctx, tx, pr.ModuleVersionID, questionID)
		if err != nil {
			return err
		}
		r, err := checkPayload(q, payload)
		if err != nil {
			return err
		}
		r.RespondedAt = now
		if err := p.store.upsertResponse(ctx, tx, progressID, r); err != nil {
			return err
		}
		out = r
		return nil
	})
	if err != nil {
		return Response{}, wrapStore("submit answer", err)
	}
	p.log.Debug("answer recorded", "progress_id", progressID, "question_id", questionID)
	return out, nil
}

func (p *AnswerProcessor) question(ctx context.Context, q db.Querier, versionID, questionID string) (Question, error) {
	owner, err := p.store.questionVersion(ctx, q, questionID)
	if err != nil {
		return Question{}, err
	}
	if owner != versionID {
		return Question{}, fmt.Errorf("%w: question %s belongs to version %s, not %s", ErrConflict, questionID, owner, versionID)
	}
	qs, err := p.store.loadQuestions(ctx, q, versionID)
	if err != nil {
		return Question{}, err
	}
	for _, qq := range qs {
		if qq.ID == questionID {
			return qq, nil
		}
	}
	return Question{}, notFound("question", questionID)
}

// checkPayload validates a submission against the question's type and
// normalises it into a response.
func checkPayload(q Question, in Payload) (Response, error) {
	bad := func(format string, args ...any) error {
		return fmt.Errorf("%w: question %s: %s", ErrValidation, q.ID, fmt.Sprintf(format, args...))
	}
	r := Response{QuestionID: q.ID}
	switch q.Type {
	case SingleChoice, MultipleChoice:
		if in.TextResponse != nil {
			return Response{}, bad("choice questions take answer ids, not text")
		}
		if q.Type == SingleChoice && len(in.SelectedAnswerIDs) != 1 {
			return Response{}, bad("single choice takes exactly one answer, got %d", len(in.SelectedAnswerIDs))
		}
		seen := map[string]bool{}
		for _, id := range in.SelectedAnswerIDs {
			if seen[id] {
				continue
			}
			if _, ok := q.answer(id); !ok {
				return Response{}, bad("answer %s is not an option", id)
			}
			seen[id] = true
			r.SelectedAnswerIDs = append(r.SelectedAnswerIDs, id)
		}
	case FreeText:
		if len(in.SelectedAnswerIDs) > 0 {
			return Response{}, bad("free text takes text, not answer ids")
		}
		if in.TextResponse == nil || strings.TrimSpace(*in.TextResponse) == "" {
			return Response{}, bad("text response is empty")
		}
		r.TextResponse = *in.TextResponse
	default:
		return Response{}, bad("unknown question type %q", q.Type)
	}
	return r, nil
}
