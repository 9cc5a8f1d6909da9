package exam

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/mind-engage/mindengage-exams/internal/grading"
	syncx "github.com/mind-engage/mindengage-exams/internal/sync"
)

// deps are the collaborators shared by every service.
type deps struct {
	now     Clock
	log     *slog.Logger
	events  EventAppender
	cache   ListingCache
	files   AttachmentResolver
	checker grading.Checker
}

type Option func(*deps)

func WithClock(c Clock) Option                    { return func(d *deps) { d.now = c } }
func WithLogger(l *slog.Logger) Option            { return func(d *deps) { d.log = l } }
func WithEvents(e EventAppender) Option           { return func(d *deps) { d.events = e } }
func WithCache(c ListingCache) Option             { return func(d *deps) { d.cache = c } }
func WithAttachments(r AttachmentResolver) Option { return func(d *deps) { d.files = r } }

func newDeps(opts []Option) deps {
	d := deps{now: utcNow, log: slog.Default(), events: noEvents{}, checker: grading.NewDefaultChecker()}
	for _, o := range opts {
		o(&d)
	}
	return d
}

const modulesListKey = "modules:list"

// Registry owns the draft/publish lifecycle of module versions.
type Registry struct {
	deps
	store *SQLStore

	// gen counts listing invalidations; a read that overlaps one is not cached.
	gen atomic.Uint64
}

func NewRegistry(store *SQLStore, opts ...Option) *Registry {
	return &Registry{deps: newDeps(opts), store: store}
}

func (r *Registry) CreateModule(ctx context.Context, title string) (Module, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return Module{}, fmt.Errorf("%w: module title is required", ErrValidation)
	}
	m := Module{ID: uuid.NewString(), Title: title, CreatedAt: r.now()}
	if err := r.store.insertModule(ctx, r.store.db, m); err != nil {
		return Module{}, fmt.Errorf("exam: create module: %w", err)
	}
	r.invalidate(ctx)
	return m, nil
}

// ListModules serves module summaries through the listing cache.
func (r *Registry) ListModules(ctx context.Context) ([]ModuleSummary, error) {
	gen := r.gen.Load()
	if r.cache != nil {
		var cached []ModuleSummary
		hit, err := r.cache.Get(ctx, modulesListKey, &cached)
		if err != nil {
			r.log.Warn("module list cache read failed", "err", err)
		} else if hit {
			return cached, nil
		}
	}
	list, err := r.store.listModuleSummaries(ctx, r.store.db)
	if err != nil {
		return nil, fmt.Errorf("exam: list modules: %w", err)
	}
	if r.cache != nil && r.gen.Load() == gen {
		if err := r.cache.Set(ctx, modulesListKey, list); err != nil {
			r.log.Warn("module list cache write failed", "err", err)
		}
		// an invalidation that ran between the check and the write may have
		// been overwritten
		if r.gen.Load() != gen {
			r.invalidate(ctx)
		}
	}
	return list, nil
}

// CreateDraftVersion adds a new unpublished version to a module. Every
// question and answer receives a fresh id.
func (r *Registry) CreateDraftVersion(ctx context.Context, moduleID string, c Content) (Version, error) {
	c, err := prepareContent(c, nil)
	if err != nil {
		return Version{}, err
	}
	var out Version
	err = r.store.tx(ctx, func(tx *sql.Tx) error {
		if _, err := r.store.getModule(ctx, tx, moduleID); err != nil {
			return err
		}
		n, err := r.store.nextVersionNumber(ctx, tx, moduleID)
		if err != nil {
			return err
		}
		v := Version{
			ID:              uuid.NewString(),
			ModuleID:        moduleID,
			Number:          n,
			DurationMinutes: c.DurationMinutes,
			CreatedAt:       r.now(),
			Questions:       c.Questions,
		}
		for i := range v.Questions {
			v.Questions[i].VersionID = v.ID
		}
		if err := r.store.insertVersion(ctx, tx, v); err != nil {
			return err
		}
		out = v
		return nil
	})
	if err != nil {
		return Version{}, wrapStore("create draft", err)
	}
	r.invalidate(ctx)
	r.log.Info("draft version created", "module_id", moduleID, "version_id", out.ID, "number", out.Number)
	return out, nil
}

// UpdateDraft replaces the content of an unpublished version.
func (r *Registry) UpdateDraft(ctx context.Context, versionID string, c Content) (Version, error) {
	var out Version
	err := r.store.tx(ctx, func(tx *sql.Tx) error {
		cur, err := r.store.getVersion(ctx, tx, versionID, true)
		if err != nil {
			return err
		}
		if cur.IsPublished {
			return fmt.Errorf("%w: version %s is published and cannot change", ErrConflict, versionID)
		}
		c, err := prepareContent(c, ownedIDs(cur))
		if err != nil {
			return err
		}
		if err := r.store.replaceDraftContent(ctx, tx, versionID, c); err != nil {
			return err
		}
		cur.DurationMinutes = c.DurationMinutes
		cur.Questions = c.Questions
		for i := range cur.Questions {
			cur.Questions[i].VersionID = versionID
		}
		out = cur
		return nil
	})
	if err != nil {
		return Version{}, wrapStore("update draft", err)
	}
	r.invalidate(ctx)
	return out, nil
}

// PublishVersion validates and publishes a draft in one transaction, so no
// reader observes a half-published version.
func (r *Registry) PublishVersion(ctx context.Context, versionID string) (Version, error) {
	var out Version
	err := r.store.tx(ctx, func(tx *sql.Tx) error {
		v, err := r.store.getVersion(ctx, tx, versionID, true)
		if err != nil {
			return err
		}
		if v.IsPublished {
			return fmt.Errorf("%w: version %s is already published", ErrConflict, versionID)
		}
		if issues := validateForPublish(v); len(issues) > 0 {
			return &PublishError{VersionID: versionID, Issues: issues}
		}
		at := r.now()
		if err := r.store.markPublished(ctx, tx, versionID, at); err != nil {
			return err
		}
		v.IsPublished = true
		v.PublishedAt = &at
		ev, err := syncx.NewEvent(syncx.TypeVersionPublished, v.ID, map[string]any{
			"module_id": v.ModuleID,
			"number":    v.Number,
		})
		if err != nil {
			return err
		}
		if err := r.events.Append(ctx, tx, ev); err != nil {
			return err
		}
		out = v
		return nil
	})
	if err != nil {
		return Version{}, wrapStore("publish", err)
	}
	r.invalidate(ctx)
	r.log.Info("version published", "module_id", out.ModuleID, "version_id", out.ID, "number", out.Number)
	return out, nil
}

// GetLatestPublished returns the most recently created published version.
func (r *Registry) GetLatestPublished(ctx context.Context, moduleID string) (Version, error) {
	if _, err := r.store.getModule(ctx, r.store.db, moduleID); err != nil {
		return Version{}, wrapStore("latest published", err)
	}
	id, err := r.store.latestPublishedID(ctx, r.store.db, moduleID)
	if err != nil {
		return Version{}, wrapStore("latest published", err)
	}
	v, err := r.store.getVersion(ctx, r.store.db, id, false)
	if err != nil {
		return Version{}, wrapStore("latest published", err)
	}
	return v, nil
}

// GetVersion returns a version with its answer keys.
func (r *Registry) GetVersion(ctx context.Context, versionID string) (Version, error) {
	v, err := r.store.getVersion(ctx, r.store.db, versionID, false)
	if err != nil {
		return Version{}, wrapStore("get version", err)
	}
	return v, nil
}

func (r *Registry) invalidate(ctx context.Context) {
	r.gen.Add(1)
	if r.cache == nil {
		return
	}
	if err := r.cache.DeletePrefix(ctx, "modules:"); err != nil {
		r.log.Warn("module list cache invalidation failed", "err", err)
	}
}

// ownedIDs lists the question and answer ids already stored for a draft.
func ownedIDs(v Version) map[string]bool {
	ids := map[string]bool{}
	for _, q := range v.Questions {
		ids[q.ID] = true
		for _, a := range q.Answers {
			ids[a.ID] = true
		}
	}
	return ids
}

// prepareContent checks the editable fields and assigns ids and positions.
// Ids in keep are preserved; any other id is replaced so drafts never share
// rows with another version.
func prepareContent(c Content, keep map[string]bool) (Content, error) {
	if c.DurationMinutes != nil && *c.DurationMinutes <= 0 {
		return Content{}, fmt.Errorf("%w: duration_minutes must be positive", ErrValidation)
	}
	seen := map[string]bool{}
	fresh := func(id string) string {
		if id != "" && keep[id] && !seen[id] {
			seen[id] = true
			return id
		}
		id = uuid.NewString()
		seen[id] = true
		return id
	}
	out := Content{DurationMinutes: c.DurationMinutes, Questions: make([]Question, 0, len(c.Questions))}
	for i, q := range c.Questions {
		if _, ok := typeRules[q.Type]; !ok {
			return Content{}, fmt.Errorf("%w: question #%d has unknown type %q", ErrValidation, i, q.Type)
		}
		q.ID = fresh(q.ID)
		q.Position = i
		answers := make([]Answer, 0, len(q.Answers))
		for _, a := range q.Answers {
			a.ID = fresh(a.ID)
			if typeRules[q.Type].implicitCorrect {
				a.IsCorrect = true
			}
			answers = append(answers, a)
		}
		q.Answers = answers
		out.Questions = append(out.Questions, q)
	}
	return out, nil
}

// wrapStore leaves domain errors untouched and tags infrastructure failures.
func wrapStore(op string, err error) error {
	if isDomain(err) {
		return err
	}
	return fmt.Errorf("exam: %s: %w", op, err)
}
