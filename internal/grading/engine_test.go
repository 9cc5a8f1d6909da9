package grading

import (
	"context"
	"errors"
	"testing"
)

func TestNormalize(t *testing.T) {
	cases := map[string]string{
		"  Paris ":        "paris",
		"New\t  York":     "new york",
		"":                "",
		"   ":             "",
		"ÉCOLE normale  ": "école normale",
	}
	for in, want := range cases {
		if got := Normalize(in); got != want {
			t.Errorf("Normalize(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestChecker(t *testing.T) {
	c := NewDefaultChecker()
	ctx := context.Background()

	tests := []struct {
		name string
		q    Q
		r    R
		want bool
	}{
		{"single correct", Q{Type: "single_choice", CorrectIDs: []string{"a"}}, R{SelectedIDs: []string{"a"}}, true},
		{"single wrong", Q{Type: "single_choice", CorrectIDs: []string{"a"}}, R{SelectedIDs: []string{"b"}}, false},
		{"single two picks", Q{Type: "single_choice", CorrectIDs: []string{"a"}}, R{SelectedIDs: []string{"a", "b"}}, false},
		{"multi exact", Q{Type: "multiple_choice", CorrectIDs: []string{"a", "c"}}, R{SelectedIDs: []string{"c", "a"}}, true},
		{"multi partial", Q{Type: "multiple_choice", CorrectIDs: []string{"a", "c"}}, R{SelectedIDs: []string{"a"}}, false},
		{"free text case", Q{Type: "free_text", Accepted: []string{"Paris", "Lutetia"}}, R{Text: "  paris "}, true},
		{"free text miss", Q{Type: "free_text", Accepted: []string{"Paris"}}, R{Text: "London"}, false},
		{"free text empty", Q{Type: "free_text", Accepted: []string{""}}, R{Text: "  "}, false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			res, err := c.Check(ctx, tc.q, tc.r)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if res.Correct != tc.want {
				t.Fatalf("Correct = %v, want %v", res.Correct, tc.want)
			}
		})
	}
}

func TestCheckerUnknownType(t *testing.T) {
	_, err := NewDefaultChecker().Check(context.Background(), Q{Type: "essay"}, R{})
	if !errors.Is(err, ErrUnknownType) {
		t.Fatalf("expected ErrUnknownType, got %v", err)
	}
}
