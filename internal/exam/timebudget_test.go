package exam

import (
	"testing"
	"time"
)

func TestComputeRemaining(t *testing.T) {
	start := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	ten := 10

	tests := []struct {
		name string
		dur  *int
		now  time.Time
		want Budget
	}{
		{"past the end", &ten, start.Add(11 * time.Minute), Budget{RemainingSeconds: 0, IsExpired: true, Timed: true}},
		{"one minute left", &ten, start.Add(9 * time.Minute), Budget{RemainingSeconds: 60, Timed: true}},
		{"exactly at the end", &ten, start.Add(10 * time.Minute), Budget{IsExpired: true, Timed: true}},
		{"partial seconds floor", &ten, start.Add(90*time.Second + 900*time.Millisecond), Budget{RemainingSeconds: 510, Timed: true}},
		{"clock behind start", &ten, start.Add(-time.Minute), Budget{RemainingSeconds: 600, Timed: true}},
		{"untimed", nil, start.Add(1000 * time.Hour), Budget{}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := ComputeRemaining(start, tc.dur, tc.now); got != tc.want {
				t.Fatalf("ComputeRemaining = %+v, want %+v", got, tc.want)
			}
		})
	}
}

func TestDeadline(t *testing.T) {
	start := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	five := 5
	end, ok := deadline(start, &five)
	if !ok || !end.Equal(start.Add(5*time.Minute)) {
		t.Fatalf("deadline = %v %v", end, ok)
	}
	if _, ok := deadline(start, nil); ok {
		t.Fatal("untimed module has a deadline")
	}
}

func TestParseQuestionType(t *testing.T) {
	cases := map[string]QuestionType{
		"single_choice": SingleChoice,
		"SingleChoice":  SingleChoice,
		"0":             SingleChoice,
		"multiple":      MultipleChoice,
		"1":             MultipleChoice,
		" free_text ":   FreeText,
		"2":             FreeText,
	}
	for in, want := range cases {
		got, err := ParseQuestionType(in)
		if err != nil || got != want {
			t.Errorf("ParseQuestionType(%q) = %q, %v; want %q", in, got, err, want)
		}
	}
	if _, err := ParseQuestionType("essay"); err == nil {
		t.Error("unknown type accepted")
	}

	var qt QuestionType
	if err := qt.UnmarshalJSON([]byte(`2`)); err != nil || qt != FreeText {
		t.Errorf("numeric json = %q, %v", qt, err)
	}
	if err := qt.UnmarshalJSON([]byte(`"multiple_choice"`)); err != nil || qt != MultipleChoice {
		t.Errorf("string json = %q, %v", qt, err)
	}
	if err := qt.UnmarshalJSON([]byte(`true`)); err == nil {
		t.Error("bool type accepted")
	}
}
