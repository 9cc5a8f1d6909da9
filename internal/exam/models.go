package exam

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// QuestionType is the closed set of supported question kinds.
type QuestionType string

const (
	SingleChoice   QuestionType = "single_choice"
	MultipleChoice QuestionType = "multiple_choice"
	FreeText       QuestionType = "free_text"
)

// ParseQuestionType resolves the names and legacy numeric codes clients send.
func ParseQuestionType(s string) (QuestionType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "single_choice", "singlechoice", "single", "mcq_single", "0":
		return SingleChoice, nil
	case "multiple_choice", "multiplechoice", "multiple", "mcq_multi", "1":
		return MultipleChoice, nil
	case "free_text", "freetext", "text", "short_word", "2":
		return FreeText, nil
	}
	return "", fmt.Errorf("%w: unknown question type %q", ErrValidation, s)
}

func (t *QuestionType) UnmarshalJSON(b []byte) error {
	var raw any
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	var s string
	switch v := raw.(type) {
	case string:
		s = v
	case float64:
		s = fmt.Sprintf("%d", int(v))
	default:
		return fmt.Errorf("%w: question type must be a string or number", ErrValidation)
	}
	qt, err := ParseQuestionType(s)
	if err != nil {
		return err
	}
	*t = qt
	return nil
}

type Module struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
}

type ModuleSummary struct {
	ID                string `json:"id"`
	Title             string `json:"title"`
	LatestNumber      int    `json:"latest_number"`
	LatestPublishedID string `json:"latest_published_id,omitempty"`
	PublishedVersions int    `json:"published_versions"`
	DraftVersions     int    `json:"draft_versions"`
}

type Answer struct {
	ID             string   `json:"id"`
	Text           string   `json:"text"`
	IsCorrect      bool     `json:"is_correct,omitempty"`
	Attachments    []string `json:"attachments,omitempty"`
	AttachmentURLs []string `json:"attachment_urls,omitempty"`
}

type Question struct {
	ID             string       `json:"id"`
	VersionID      string       `json:"version_id,omitempty"`
	Position       int          `json:"position"`
	Text           string       `json:"text"`
	Type           QuestionType `json:"type"`
	Attachments    []string     `json:"attachments,omitempty"`
	AttachmentURLs []string     `json:"attachment_urls,omitempty"`
	Answers        []Answer     `json:"answers"`
}

func (q Question) answer(id string) (Answer, bool) {
	for _, a := range q.Answers {
		if a.ID == id {
			return a, true
		}
	}
	return Answer{}, false
}

type Version struct {
	ID              string     `json:"id"`
	ModuleID        string     `json:"module_id"`
	Number          int        `json:"number"`
	IsPublished     bool       `json:"is_published"`
	DurationMinutes *int       `json:"duration_minutes,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	PublishedAt     *time.Time `json:"published_at,omitempty"`
	Questions       []Question `json:"questions"`
}

// Content is the editable part of a draft version.
type Content struct {
	DurationMinutes *int       `json:"duration_minutes,omitempty"`
	Questions       []Question `json:"questions"`
}

type Response struct {
	QuestionID        string    `json:"question_id"`
	SelectedAnswerIDs []string  `json:"selected_answer_ids,omitempty"`
	TextResponse      string    `json:"text_response,omitempty"`
	RespondedAt       time.Time `json:"responded_at"`
}

// Payload is what a taker submits for one question. Exactly one of the two
// fields is meaningful depending on the question type.
type Payload struct {
	SelectedAnswerIDs []string `json:"selected_answer_ids,omitempty"`
	TextResponse      *string  `json:"text_response,omitempty"`
}

type Progress struct {
	ID              string              `json:"id"`
	ExamTakerID     string              `json:"exam_taker_id"`
	AssignmentID    string              `json:"assignment_id"`
	ModuleID        string              `json:"module_id"`
	ModuleVersionID string              `json:"module_version_id"`
	DurationMinutes *int                `json:"duration_minutes,omitempty"`
	StartedAt       time.Time           `json:"started_at"`
	CompletedAt     *time.Time          `json:"completed_at,omitempty"`
	Responses       map[string]Response `json:"responses"`
}

func (p Progress) Completed() bool { return p.CompletedAt != nil }

type Group struct {
	ID                   string        `json:"id"`
	Title                string        `json:"title"`
	WaitModuleCompletion bool          `json:"wait_module_completion"`
	IsMemberOrderLocked  bool          `json:"is_member_order_locked"`
	Members              []GroupMember `json:"members"`
}

type GroupMember struct {
	ID          string `json:"id"`
	GroupID     string `json:"group_id"`
	ModuleID    string `json:"module_id"`
	OrderNumber int    `json:"order_number"`
}

type Assignment struct {
	ID         string    `json:"id"`
	GroupID    string    `json:"group_id"`
	StartAt    time.Time `json:"start_at"`
	EndAt      time.Time `json:"end_at"`
	ExamTakers []string  `json:"exam_takers"`
}

func (a Assignment) hasTaker(id string) bool {
	for _, t := range a.ExamTakers {
		if t == id {
			return true
		}
	}
	return false
}

type MemberState struct {
	MemberID    string `json:"member_id"`
	ModuleID    string `json:"module_id"`
	OrderNumber int    `json:"order_number"`
	Unlocked    bool   `json:"unlocked"`
	Completed   bool   `json:"completed"`
}

// TakerView is the read-only projection served to an exam taker: content
// without answer keys plus the server-computed time budget.
type TakerView struct {
	Version   Version    `json:"version"`
	Progress  *Progress  `json:"progress,omitempty"`
	StartedAt *time.Time `json:"started_at,omitempty"`
	Budget    Budget     `json:"budget"`
}

// Completion is returned by CompleteModule.
type Completion struct {
	Progress Progress      `json:"progress"`
	Answered int           `json:"answered"`
	Correct  int           `json:"correct"`
	Members  []MemberState `json:"members,omitempty"`
}
