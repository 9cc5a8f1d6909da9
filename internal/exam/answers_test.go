package exam_test

import (
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/mind-engage/mindengage-exams/internal/exam"
)

func TestSingleChoicePayloads(t *testing.T) {
	h := newHarness(t)
	v, p := h.start(t, singleChoice(intp(10)))
	q := v.Questions[0]
	a, b := q.Answers[0].ID, q.Answers[1].ID

	bad := []exam.Payload{
		{},
		{SelectedAnswerIDs: []string{a, b}},
		{SelectedAnswerIDs: []string{"not-an-option"}},
		{SelectedAnswerIDs: []string{a}, TextResponse: strp("Paris")},
		{SelectedAnswerIDs: []string{b, b}},
	}
	for i, pl := range bad {
		if _, err := h.eng.Answers.SubmitAnswer(h.ctx, p.ID, q.ID, pl); err == nil {
			t.Fatalf("payload %d accepted", i)
		} else {
			wantErr(t, err, exam.ErrValidation)
		}
	}

	if _, err := h.eng.Answers.SubmitAnswer(h.ctx, p.ID, q.ID, exam.Payload{SelectedAnswerIDs: []string{a}}); err != nil {
		t.Fatal(err)
	}
	got, err := h.eng.Tracker.GetProgress(h.ctx, p.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(got.Responses) != 1 {
		t.Fatalf("responses = %+v, want one", got.Responses)
	}
	if ids := got.Responses[q.ID].SelectedAnswerIDs; len(ids) != 1 || ids[0] != a {
		t.Fatalf("stored ids = %v, want [%s]", ids, a)
	}
}

func TestMultipleChoiceCollapsesDuplicates(t *testing.T) {
	h := newHarness(t)
	v, p := h.start(t, mixedContent(nil))
	q := v.Questions[1]
	two, three := q.Answers[0].ID, q.Answers[1].ID

	r, err := h.eng.Answers.SubmitAnswer(h.ctx, p.ID, q.ID, exam.Payload{SelectedAnswerIDs: []string{three, two, three}})
	if err != nil {
		t.Fatal(err)
	}
	got := append([]string(nil), r.SelectedAnswerIDs...)
	sort.Strings(got)
	want := []string{two, three}
	sort.Strings(want)
	if len(got) != 2 || got[0] != want[0] || got[1] != want[1] {
		t.Fatalf("selected = %v, want %v", got, want)
	}

	// clearing every option is a valid answer
	if _, err := h.eng.Answers.SubmitAnswer(h.ctx, p.ID, q.ID, exam.Payload{}); err != nil {
		t.Fatalf("empty selection rejected: %v", err)
	}
	_, err = h.eng.Answers.SubmitAnswer(h.ctx, p.ID, q.ID, exam.Payload{SelectedAnswerIDs: []string{"x"}})
	wantErr(t, err, exam.ErrValidation)
}

func TestFreeTextPayloads(t *testing.T) {
	h := newHarness(t)
	v, p := h.start(t, mixedContent(nil))
	q := v.Questions[2]

	_, err := h.eng.Answers.SubmitAnswer(h.ctx, p.ID, q.ID, exam.Payload{TextResponse: strp("   ")})
	wantErr(t, err, exam.ErrValidation)
	_, err = h.eng.Answers.SubmitAnswer(h.ctx, p.ID, q.ID, exam.Payload{})
	wantErr(t, err, exam.ErrValidation)
	_, err = h.eng.Answers.SubmitAnswer(h.ctx, p.ID, q.ID, exam.Payload{SelectedAnswerIDs: []string{"x"}, TextResponse: strp("Pacific")})
	wantErr(t, err, exam.ErrValidation)

	r, err := h.eng.Answers.SubmitAnswer(h.ctx, p.ID, q.ID, exam.Payload{TextResponse: strp("  pacific ")})
	if err != nil {
		t.Fatal(err)
	}
	if r.TextResponse != "  pacific " {
		t.Fatalf("text = %q", r.TextResponse)
	}
	c, err := h.eng.Tracker.CompleteModule(h.ctx, p.ID)
	if err != nil {
		t.Fatal(err)
	}
	if c.Answered != 1 || c.Correct != 1 {
		t.Fatalf("answered=%d correct=%d, want 1/1", c.Answered, c.Correct)
	}
}

func TestSubmitAfterCompletionIsLocked(t *testing.T) {
	h := newHarness(t)
	v, p := h.start(t, singleChoice(nil))
	if _, err := h.eng.Tracker.CompleteModule(h.ctx, p.ID); err != nil {
		t.Fatal(err)
	}
	q := v.Questions[0]
	_, err := h.eng.Answers.SubmitAnswer(h.ctx, p.ID, q.ID, exam.Payload{SelectedAnswerIDs: []string{q.Answers[0].ID}})
	wantErr(t, err, exam.ErrLocked)

	// completion wins over payload problems
	_, err = h.eng.Answers.SubmitAnswer(h.ctx, p.ID, "missing", exam.Payload{})
	wantErr(t, err, exam.ErrLocked)
}

func TestSubmitAfterExpiry(t *testing.T) {
	h := newHarness(t)
	v, p := h.start(t, singleChoice(intp(10)))
	q := v.Questions[0]
	ok := exam.Payload{SelectedAnswerIDs: []string{q.Answers[0].ID}}

	h.clock.advance(9*time.Minute + 59*time.Second)
	if _, err := h.eng.Answers.SubmitAnswer(h.ctx, p.ID, q.ID, ok); err != nil {
		t.Fatalf("submit with one second left: %v", err)
	}
	h.clock.advance(time.Second)
	_, err := h.eng.Answers.SubmitAnswer(h.ctx, p.ID, q.ID, ok)
	wantErr(t, err, exam.ErrExpired)
}

func TestUntimedNeverExpires(t *testing.T) {
	h := newHarness(t)
	v, p := h.start(t, singleChoice(nil))
	h.clock.advance(30 * 24 * time.Hour)
	q := v.Questions[0]
	if _, err := h.eng.Answers.SubmitAnswer(h.ctx, p.ID, q.ID, exam.Payload{SelectedAnswerIDs: []string{q.Answers[1].ID}}); err != nil {
		t.Fatal(err)
	}
}

func TestSubmitUnknownIDs(t *testing.T) {
	h := newHarness(t)
	v, p := h.start(t, singleChoice(nil))

	_, err := h.eng.Answers.SubmitAnswer(h.ctx, "missing", v.Questions[0].ID, exam.Payload{})
	wantErr(t, err, exam.ErrNotFound)

	_, err = h.eng.Answers.SubmitAnswer(h.ctx, p.ID, "missing", exam.Payload{})
	wantErr(t, err, exam.ErrNotFound)
}

func TestConcurrentSubmissionsAllKept(t *testing.T) {
	h := newHarness(t)
	v, p := h.start(t, mixedContent(intp(30)))
	single, multi, free := v.Questions[0], v.Questions[1], v.Questions[2]
	payloads := map[string]exam.Payload{
		single.ID: {SelectedAnswerIDs: []string{single.Answers[0].ID}},
		multi.ID:  {SelectedAnswerIDs: []string{multi.Answers[0].ID, multi.Answers[1].ID}},
		free.ID:   {TextResponse: strp("Pacific")},
	}

	var wg sync.WaitGroup
	errs := make(chan error, len(payloads))
	for qid, pl := range payloads {
		wg.Add(1)
		go func(qid string, pl exam.Payload) {
			defer wg.Done()
			_, err := h.eng.Answers.SubmitAnswer(h.ctx, p.ID, qid, pl)
			errs <- err
		}(qid, pl)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatal(err)
		}
	}

	got, err := h.eng.Tracker.GetProgress(h.ctx, p.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(got.Responses) != len(payloads) {
		t.Fatalf("kept %d responses, want %d", len(got.Responses), len(payloads))
	}
}

func TestSubmitRacingCompletion(t *testing.T) {
	for i := 0; i < 20; i++ {
		h := newHarness(t)
		v, p := h.start(t, singleChoice(intp(10)))
		q := v.Questions[0]

		var (
			wg          sync.WaitGroup
			submitErr   error
			completeErr error
			done        exam.Completion
		)
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, submitErr = h.eng.Answers.SubmitAnswer(h.ctx, p.ID, q.ID, exam.Payload{SelectedAnswerIDs: []string{q.Answers[0].ID}})
		}()
		go func() {
			defer wg.Done()
			done, completeErr = h.eng.Tracker.CompleteModule(h.ctx, p.ID)
		}()
		wg.Wait()
		if completeErr != nil {
			t.Fatal(completeErr)
		}

		got, err := h.eng.Tracker.GetProgress(h.ctx, p.ID)
		if err != nil {
			t.Fatal(err)
		}
		_, kept := got.Responses[q.ID]
		switch {
		case submitErr == nil:
			if !kept || done.Answered != 1 {
				t.Fatalf("run %d: accepted submission missing from completed attempt (answered=%d)", i, done.Answered)
			}
		case errors.Is(submitErr, exam.ErrLocked):
			if kept || done.Answered != 0 {
				t.Fatalf("run %d: rejected submission was stored", i)
			}
		default:
			t.Fatalf("run %d: submit error = %v, want nil or ErrLocked", i, submitErr)
		}
	}
}
