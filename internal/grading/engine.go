package grading

import (
	"context"
	"errors"
)

// Q is the minimal view of a question needed to check a response.
type Q struct {
	Type       string
	CorrectIDs []string // answer ids marked correct (choice questions)
	Accepted   []string // acceptable texts (free text)
}

// R is a stored response: selected answer ids or free text.
type R struct {
	SelectedIDs []string
	Text        string
}

// Result is the outcome of checking a single response.
type Result struct {
	Correct  bool
	Feedback []string
}

// Checker routes by question type to the correct Strategy.
type Checker interface {
	Check(ctx context.Context, q Q, r R) (Result, error)
}

// Strategy checks a single question type.
type Strategy interface {
	Check(ctx context.Context, q Q, r R) (Result, error)
}

var ErrUnknownType = errors.New("grading: no strategy for question type")

type defaultChecker struct {
	strategies map[string]Strategy
}

func (c *defaultChecker) Check(ctx context.Context, q Q, r R) (Result, error) {
	s, ok := c.strategies[q.Type]
	if !ok {
		return Result{Feedback: []string{"no strategy available"}}, ErrUnknownType
	}
	return s.Check(ctx, q, r)
}

// NewDefaultChecker installs the built-in strategies keyed by the exam
// package's question type names.
func NewDefaultChecker() Checker {
	return &defaultChecker{
		strategies: map[string]Strategy{
			"single_choice":   singleChoiceStrategy{},
			"multiple_choice": multipleChoiceStrategy{},
			"free_text":       freeTextStrategy{},
		},
	}
}

type singleChoiceStrategy struct{}

func (singleChoiceStrategy) Check(_ context.Context, q Q, r R) (Result, error) {
	if len(r.SelectedIDs) != 1 {
		return Result{}, nil
	}
	for _, k := range q.CorrectIDs {
		if r.SelectedIDs[0] == k {
			return Result{Correct: true}, nil
		}
	}
	return Result{}, nil
}

// multipleChoiceStrategy requires the selected set to equal the correct set.
type multipleChoiceStrategy struct{}

func (multipleChoiceStrategy) Check(_ context.Context, q Q, r R) (Result, error) {
	if setEqual(toSet(q.CorrectIDs), toSet(r.SelectedIDs)) {
		return Result{Correct: true}, nil
	}
	return Result{}, nil
}

type freeTextStrategy struct{}

func (freeTextStrategy) Check(_ context.Context, q Q, r R) (Result, error) {
	if Matches(r.Text, q.Accepted) {
		return Result{Correct: true}, nil
	}
	return Result{}, nil
}

func toSet(arr []string) map[string]struct{} {
	m := make(map[string]struct{}, len(arr))
	for _, s := range arr {
		m[s] = struct{}{}
	}
	return m
}

func setEqual(a, b map[string]struct{}) bool {
	if len(a) != len(b) {
		return false
	}
	for k := range a {
		if _, ok := b[k]; !ok {
			return false
		}
	}
	return true
}
