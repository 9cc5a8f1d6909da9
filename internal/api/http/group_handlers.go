package http

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/mind-engage/mindengage-exams/internal/exam"
)

type createGroupRequest struct {
	Title                string `json:"title" validate:"required,max=200"`
	WaitModuleCompletion bool   `json:"wait_module_completion"`
	IsMemberOrderLocked  bool   `json:"is_member_order_locked"`
}

type addMemberRequest struct {
	ModuleID string `json:"module_id" validate:"required"`
}

type swapRequest struct {
	MemberAID string `json:"member_a_id" validate:"required"`
	MemberBID string `json:"member_b_id" validate:"required,nefield=MemberAID"`
}

type createAssignmentRequest struct {
	GroupID    string    `json:"group_id" validate:"required"`
	StartAt    time.Time `json:"start_at" validate:"required"`
	EndAt      time.Time `json:"end_at" validate:"required,gtfield=StartAt"`
	ExamTakers []string  `json:"exam_takers" validate:"required,min=1,max=5000,dive,required"`
}

func CreateGroupHandler(seq *exam.Sequencer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req createGroupRequest
		if !decode(w, r, &req) {
			return
		}
		g, err := seq.CreateGroup(r.Context(), exam.Group{
			Title:                req.Title,
			WaitModuleCompletion: req.WaitModuleCompletion,
			IsMemberOrderLocked:  req.IsMemberOrderLocked,
		})
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, g)
	}
}

func GetGroupHandler(seq *exam.Sequencer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		g, err := seq.GetGroup(r.Context(), chi.URLParam(r, "groupID"))
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, g)
	}
}

func AddMemberHandler(seq *exam.Sequencer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req addMemberRequest
		if !decode(w, r, &req) {
			return
		}
		m, err := seq.AddMember(r.Context(), chi.URLParam(r, "groupID"), req.ModuleID)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, m)
	}
}

func RemoveMemberHandler(seq *exam.Sequencer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		g, err := seq.RemoveMember(r.Context(), chi.URLParam(r, "groupID"), chi.URLParam(r, "memberID"))
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, g)
	}
}

func SwapOrderHandler(seq *exam.Sequencer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req swapRequest
		if !decode(w, r, &req) {
			return
		}
		g, err := seq.SwapOrder(r.Context(), chi.URLParam(r, "groupID"), req.MemberAID, req.MemberBID)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, g)
	}
}

func CreateAssignmentHandler(seq *exam.Sequencer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req createAssignmentRequest
		if !decode(w, r, &req) {
			return
		}
		a, err := seq.CreateAssignment(r.Context(), exam.Assignment{
			GroupID:    req.GroupID,
			StartAt:    req.StartAt,
			EndAt:      req.EndAt,
			ExamTakers: req.ExamTakers,
		})
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, a)
	}
}
