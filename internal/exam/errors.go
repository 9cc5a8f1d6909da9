package exam

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrValidation        = errors.New("validation failed")
	ErrNotFound          = errors.New("not found")
	ErrConflict          = errors.New("conflict")
	ErrLocked            = errors.New("locked")
	ErrExpired           = errors.New("time budget expired")
	ErrStructuralPublish = errors.New("version failed publish validation")
)

// QuestionIssue names one reason a question blocks publishing.
type QuestionIssue struct {
	QuestionID string `json:"question_id"`
	Position   int    `json:"position"`
	Reason     string `json:"reason"`
}

// PublishError lists every structural problem found in a version.
type PublishError struct {
	VersionID string          `json:"version_id"`
	Issues    []QuestionIssue `json:"issues"`
}

func (e *PublishError) Error() string {
	parts := make([]string, 0, len(e.Issues))
	for _, is := range e.Issues {
		if is.QuestionID == "" {
			parts = append(parts, is.Reason)
			continue
		}
		parts = append(parts, fmt.Sprintf("question %s (#%d): %s", is.QuestionID, is.Position, is.Reason))
	}
	return fmt.Sprintf("%s: version %s: %s", ErrStructuralPublish, e.VersionID, strings.Join(parts, "; "))
}

func (e *PublishError) Is(target error) bool { return target == ErrStructuralPublish }

func notFound(kind, id string) error {
	return fmt.Errorf("%w: %s %s", ErrNotFound, kind, id)
}

func isDomain(err error) bool {
	for _, e := range []error{ErrValidation, ErrNotFound, ErrConflict, ErrLocked, ErrExpired, ErrStructuralPublish} {
		if errors.Is(err, e) {
			return true
		}
	}
	return false
}
