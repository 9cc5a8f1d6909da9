package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/mind-engage/mindengage-exams/internal/exam"
)

type createModuleRequest struct {
	Title string `json:"title" validate:"required,max=200"`
}

type answerDTO struct {
	ID          string   `json:"id"`
	Text        string   `json:"text" validate:"max=4000"`
	IsCorrect   bool     `json:"is_correct"`
	Attachments []string `json:"attachments" validate:"omitempty,dive,required"`
}

type questionDTO struct {
	ID          string            `json:"id"`
	Text        string            `json:"text" validate:"max=10000"`
	Type        exam.QuestionType `json:"type" validate:"required"`
	Attachments []string          `json:"attachments" validate:"omitempty,dive,required"`
	Answers     []answerDTO       `json:"answers" validate:"dive"`
}

// contentRequest is the body of draft create and update.
type contentRequest struct {
	DurationMinutes *int          `json:"duration_minutes" validate:"omitempty,gt=0,lte=1440"`
	Questions       []questionDTO `json:"questions" validate:"max=500,dive"`
}

func (c contentRequest) content() exam.Content {
	out := exam.Content{DurationMinutes: c.DurationMinutes, Questions: make([]exam.Question, 0, len(c.Questions))}
	for _, q := range c.Questions {
		eq := exam.Question{ID: q.ID, Text: q.Text, Type: q.Type, Attachments: q.Attachments}
		for _, a := range q.Answers {
			eq.Answers = append(eq.Answers, exam.Answer{ID: a.ID, Text: a.Text, IsCorrect: a.IsCorrect, Attachments: a.Attachments})
		}
		out.Questions = append(out.Questions, eq)
	}
	return out
}

func CreateModuleHandler(reg *exam.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req createModuleRequest
		if !decode(w, r, &req) {
			return
		}
		m, err := reg.CreateModule(r.Context(), req.Title)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, m)
	}
}

func ListModulesHandler(reg *exam.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		list, err := reg.ListModules(r.Context())
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, list)
	}
}

func CreateDraftHandler(reg *exam.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req contentRequest
		if !decode(w, r, &req) {
			return
		}
		v, err := reg.CreateDraftVersion(r.Context(), chi.URLParam(r, "moduleID"), req.content())
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, v)
	}
}

func UpdateDraftHandler(reg *exam.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req contentRequest
		if !decode(w, r, &req) {
			return
		}
		v, err := reg.UpdateDraft(r.Context(), chi.URLParam(r, "versionID"), req.content())
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, v)
	}
}

func PublishVersionHandler(reg *exam.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		v, err := reg.PublishVersion(r.Context(), chi.URLParam(r, "versionID"))
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, v)
	}
}

func LatestPublishedHandler(reg *exam.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		v, err := reg.GetLatestPublished(r.Context(), chi.URLParam(r, "moduleID"))
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, v)
	}
}

func GetVersionHandler(reg *exam.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		v, err := reg.GetVersion(r.Context(), chi.URLParam(r, "versionID"))
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, v)
	}
}
