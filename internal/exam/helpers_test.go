package exam_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/mind-engage/mindengage-exams/internal/db"
	"github.com/mind-engage/mindengage-exams/internal/exam"
	syncx "github.com/mind-engage/mindengage-exams/internal/sync"
)

const taker = "taker-1"

type clock struct{ now time.Time }

func (c *clock) Now() time.Time          { return c.now }
func (c *clock) advance(d time.Duration) { c.now = c.now.Add(d) }

// mapCache is an in-process ListingCache that counts hits. onMiss, when set,
// runs once on the next miss.
type mapCache struct {
	data   map[string][]byte
	hits   int
	onMiss func()
}

func newMapCache() *mapCache { return &mapCache{data: map[string][]byte{}} }

func (c *mapCache) Get(_ context.Context, key string, dst any) (bool, error) {
	raw, ok := c.data[key]
	if !ok {
		if f := c.onMiss; f != nil {
			c.onMiss = nil
			f()
		}
		return false, nil
	}
	c.hits++
	return true, json.Unmarshal(raw, dst)
}

func (c *mapCache) Set(_ context.Context, key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	c.data[key] = raw
	return nil
}

func (c *mapCache) DeletePrefix(_ context.Context, prefix string) error {
	for k := range c.data {
		if strings.HasPrefix(k, prefix) {
			delete(c.data, k)
		}
	}
	return nil
}

type harness struct {
	ctx    context.Context
	eng    *exam.Engine
	store  *exam.SQLStore
	events *syncx.EventRepo
	cache  *mapCache
	clock  *clock
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	ctx := context.Background()
	sqlDB, err := db.Open(ctx, db.DriverSQLite, ":memory:")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = sqlDB.Close() })

	h := &harness{
		ctx:    ctx,
		events: syncx.NewEventRepo(sqlDB, "test"),
		cache:  newMapCache(),
		store:  exam.NewSQLStore(sqlDB, db.DriverSQLite),
		clock:  &clock{now: time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)},
	}
	h.eng = exam.NewEngine(h.store,
		exam.WithClock(h.clock.Now),
		exam.WithEvents(h.events),
		exam.WithCache(h.cache),
		exam.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)
	return h
}

func intp(n int) *int { return &n }

func strp(s string) *string { return &s }

// singleChoice is one SingleChoice question: Paris is correct, Lyon is not.
func singleChoice(duration *int) exam.Content {
	return exam.Content{
		DurationMinutes: duration,
		Questions: []exam.Question{{
			Text: "Capital of France?",
			Type: exam.SingleChoice,
			Answers: []exam.Answer{
				{Text: "Paris", IsCorrect: true},
				{Text: "Lyon"},
			},
		}},
	}
}

func mixedContent(duration *int) exam.Content {
	return exam.Content{
		DurationMinutes: duration,
		Questions: []exam.Question{
			{
				Text: "Pick one",
				Type: exam.SingleChoice,
				Answers: []exam.Answer{
					{Text: "yes", IsCorrect: true},
					{Text: "no"},
				},
			},
			{
				Text: "Pick primes",
				Type: exam.MultipleChoice,
				Answers: []exam.Answer{
					{Text: "2", IsCorrect: true},
					{Text: "3", IsCorrect: true},
					{Text: "4"},
				},
			},
			{
				Text: "Largest ocean?",
				Type: exam.FreeText,
				Answers: []exam.Answer{
					{Text: "Pacific"},
					{Text: "Pacific Ocean"},
				},
			},
		},
	}
}

// publish creates a module and publishes one version of it.
func (h *harness) publish(t *testing.T, title string, c exam.Content) (exam.Module, exam.Version) {
	t.Helper()
	m, err := h.eng.Registry.CreateModule(h.ctx, title)
	if err != nil {
		t.Fatalf("create module: %v", err)
	}
	d, err := h.eng.Registry.CreateDraftVersion(h.ctx, m.ID, c)
	if err != nil {
		t.Fatalf("create draft: %v", err)
	}
	v, err := h.eng.Registry.PublishVersion(h.ctx, d.ID)
	if err != nil {
		t.Fatalf("publish: %v", err)
	}
	return m, v
}

// assign puts modules into a new group and assigns it to the test taker for
// the next day.
func (h *harness) assign(t *testing.T, locked, wait bool, moduleIDs ...string) (exam.Group, exam.Assignment) {
	t.Helper()
	g, err := h.eng.Sequencer.CreateGroup(h.ctx, exam.Group{
		Title:                "block",
		IsMemberOrderLocked:  locked,
		WaitModuleCompletion: wait,
	})
	if err != nil {
		t.Fatalf("create group: %v", err)
	}
	for _, id := range moduleIDs {
		if _, err := h.eng.Sequencer.AddMember(h.ctx, g.ID, id); err != nil {
			t.Fatalf("add member: %v", err)
		}
	}
	a, err := h.eng.Sequencer.CreateAssignment(h.ctx, exam.Assignment{
		GroupID:    g.ID,
		StartAt:    h.clock.now.Add(-time.Hour),
		EndAt:      h.clock.now.Add(24 * time.Hour),
		ExamTakers: []string{taker},
	})
	if err != nil {
		t.Fatalf("create assignment: %v", err)
	}
	g, err = h.eng.Sequencer.GetGroup(h.ctx, g.ID)
	if err != nil {
		t.Fatalf("get group: %v", err)
	}
	return g, a
}

// start publishes a module, assigns it alone and opens a progress on it.
func (h *harness) start(t *testing.T, c exam.Content) (exam.Version, exam.Progress) {
	t.Helper()
	m, v := h.publish(t, "Module", c)
	_, a := h.assign(t, false, false, m.ID)
	p, err := h.eng.Tracker.GetOrCreateProgress(h.ctx, taker, a.ID, m.ID)
	if err != nil {
		t.Fatalf("start progress: %v", err)
	}
	return v, p
}

func wantErr(t *testing.T, err, target error) {
	t.Helper()
	if !errors.Is(err, target) {
		t.Fatalf("err = %v, want %v", err, target)
	}
}
