package exam

// Engine bundles the services over one store so callers wire them once.
type Engine struct {
	Registry  *Registry
	Tracker   *Tracker
	Answers   *AnswerProcessor
	Sequencer *Sequencer
}

func NewEngine(store *SQLStore, opts ...Option) *Engine {
	seq := NewSequencer(store, opts...)
	return &Engine{
		Registry:  NewRegistry(store, opts...),
		Tracker:   NewTracker(store, seq, opts...),
		Answers:   NewAnswerProcessor(store, opts...),
		Sequencer: seq,
	}
}
