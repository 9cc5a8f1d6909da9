package http

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/mind-engage/mindengage-exams/internal/exam"
	"github.com/mind-engage/mindengage-exams/internal/rbac"
)

// Clients are expected to submit an answer when the taker leaves a question,
// submits or completes; every call is stored atomically on its own.
type submitAnswerRequest struct {
	SelectedAnswerIDs []string `json:"selected_answer_ids" validate:"omitempty,max=100,dive,required"`
	TextResponse      *string  `json:"text_response" validate:"omitempty,max=10000"`
}

// StartProgressHandler serves POST /assignments/{assignmentID}/modules/{moduleID}/progress.
func StartProgressHandler(tr *exam.Tracker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, err := tr.GetOrCreateProgress(r.Context(), examTakerID(r),
			chi.URLParam(r, "assignmentID"), chi.URLParam(r, "moduleID"))
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, p)
	}
}

func TakerVersionHandler(tr *exam.Tracker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		view, err := tr.GetModuleVersionForExamTaker(r.Context(), examTakerID(r),
			chi.URLParam(r, "assignmentID"), chi.URLParam(r, "versionID"))
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, view)
	}
}

func GetProgressHandler(tr *exam.Tracker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, ok := ownedProgress(w, r, tr)
		if !ok {
			return
		}
		writeJSON(w, http.StatusOK, p)
	}
}

func SubmitAnswerHandler(tr *exam.Tracker, ap *exam.AnswerProcessor) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req submitAnswerRequest
		if !decode(w, r, &req) {
			return
		}
		p, ok := ownedProgress(w, r, tr)
		if !ok {
			return
		}
		resp, err := ap.SubmitAnswer(r.Context(), p.ID, chi.URLParam(r, "questionID"), exam.Payload{
			SelectedAnswerIDs: req.SelectedAnswerIDs,
			TextResponse:      req.TextResponse,
		})
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func CompleteModuleHandler(tr *exam.Tracker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, ok := ownedProgress(w, r, tr)
		if !ok {
			return
		}
		c, err := tr.CompleteModule(r.Context(), p.ID)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, c)
	}
}

func MemberStatesHandler(seq *exam.Sequencer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		states, err := seq.GetGroupMemberStates(r.Context(), examTakerID(r),
			chi.URLParam(r, "assignmentID"), chi.URLParam(r, "groupID"))
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, states)
	}
}

// ownedProgress loads {progressID}. Exam takers only see their own attempts;
// another taker's progress reads as missing.
func ownedProgress(w http.ResponseWriter, r *http.Request, tr *exam.Tracker) (exam.Progress, bool) {
	id := chi.URLParam(r, "progressID")
	p, err := tr.GetProgress(r.Context(), id)
	if err == nil && !rbac.CanOpenAttempt(r.Context(), p.ExamTakerID) {
		err = fmt.Errorf("%w: progress %s", exam.ErrNotFound, id)
	}
	if err != nil {
		writeError(w, r, err)
		return exam.Progress{}, false
	}
	return p, true
}

// examTakerID is the caller's token subject.
func examTakerID(r *http.Request) string {
	return rbac.PrincipalFromContext(r.Context()).Subject
}
