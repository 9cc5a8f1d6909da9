package exam

import (
	"fmt"
	"strings"
)

// typeRule holds the per-type content rules applied at publish time.
type typeRule struct {
	// correct reports a problem with the number of correct answers, or "".
	correct func(n int) string
	// implicitCorrect marks every listed answer acceptable.
	implicitCorrect bool
}

var typeRules = map[QuestionType]typeRule{
	SingleChoice: {correct: func(n int) string {
		if n != 1 {
			return fmt.Sprintf("single choice needs exactly one correct answer, has %d", n)
		}
		return ""
	}},
	MultipleChoice: {correct: func(n int) string {
		if n < 1 {
			return "multiple choice needs at least one correct answer"
		}
		return ""
	}},
	FreeText: {implicitCorrect: true, correct: func(n int) string {
		if n < 1 {
			return "free text needs at least one acceptable answer"
		}
		return ""
	}},
}

// validateForPublish collects every structural issue of v. An empty result
// means v can be published.
func validateForPublish(v Version) []QuestionIssue {
	if len(v.Questions) == 0 {
		return []QuestionIssue{{Reason: "version has no questions"}}
	}
	var issues []QuestionIssue
	add := func(q Question, reason string) {
		issues = append(issues, QuestionIssue{QuestionID: q.ID, Position: q.Position, Reason: reason})
	}
	for _, q := range v.Questions {
		if strings.TrimSpace(q.Text) == "" && len(q.Attachments) == 0 {
			add(q, "question has neither text nor attachments")
		}
		rule, ok := typeRules[q.Type]
		if !ok {
			add(q, fmt.Sprintf("unknown question type %q", q.Type))
			continue
		}
		if len(q.Answers) == 0 {
			add(q, "question has no answers")
			continue
		}
		correct := 0
		for _, a := range q.Answers {
			if a.IsCorrect || rule.implicitCorrect {
				correct++
			}
		}
		if msg := rule.correct(correct); msg != "" {
			add(q, msg)
		}
	}
	return issues
}
