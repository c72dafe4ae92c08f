package transcription

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/rs/zerolog"

	"github.com/wendysoncomercial-beep/transcricao-voz-0800/internal/types"
)

var (
	// ErrWorkerClosed is returned when the engine process is gone
	ErrWorkerClosed = errors.New("transcription worker closed")
	// ErrStreamConsumed is yielded when a segment stream is ranged a second time
	ErrStreamConsumed = errors.New("segment stream already consumed")
)

// Engine turns an audio file into a lazy segment stream
type Engine interface {
	Transcribe(ctx context.Context, audioPath string, cfg types.TranscriptionConfig) (Stream, error)
	Close() error
}

// Stream is the result of one transcription call. Segments may be ranged once.
// Close releases the engine and must be called even if Segments was fully consumed.
type Stream interface {
	Info() types.TranscriptionInfo
	Segments() types.SegmentSeq
	Close() error
}

// Factory loads an engine for a model size
type Factory func(modelSize string) (Engine, error)

type aliveChecker interface {
	Alive() bool
}

// Manager owns the loaded engines. Callers hold a lease while they use an engine; a
// model size change loads a new engine and the previous one is closed once its last
// lease is released.
type Manager struct {
	factory Factory
	logger  zerolog.Logger

	mu      sync.Mutex
	current *loadedEngine
	retired []*loadedEngine
}

type loadedEngine struct {
	model  string
	engine Engine
	refs   int
}

// NewManager creates a manager that loads engines lazily
func NewManager(factory Factory, logger zerolog.Logger) *Manager {
	return &Manager{factory: factory, logger: logger}
}

// Acquire leases the engine for modelSize, loading it on first use. release must be
// called once the caller has finished every transcription on it.
func (m *Manager) Acquire(modelSize string) (Engine, func(), error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if cur := m.current; cur != nil && cur.model == modelSize {
		if ac, ok := cur.engine.(aliveChecker); !ok || ac.Alive() {
			cur.refs++
			return cur.engine, m.releaser(cur), nil
		}
		m.logger.Warn().Str("model", modelSize).Msg("Engine worker died, reloading")
	}

	if m.current != nil {
		m.retire(m.current)
		m.current = nil
	}

	m.logger.Info().Str("model", modelSize).Msg("Loading transcription engine")
	engine, err := m.factory(modelSize)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load model %s: %w", modelSize, err)
	}
	le := &loadedEngine{model: modelSize, engine: engine, refs: 1}
	m.current = le
	return engine, m.releaser(le), nil
}

// retire closes le now when nobody holds it, otherwise on its last release. mu is held.
func (m *Manager) retire(le *loadedEngine) {
	if le.refs > 0 {
		m.retired = append(m.retired, le)
		return
	}
	m.closeEngine(le)
}

func (m *Manager) releaser(le *loadedEngine) func() {
	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			defer m.mu.Unlock()
			le.refs--
			if le.refs > 0 || le == m.current {
				return
			}
			if i := slices.Index(m.retired, le); i >= 0 {
				m.retired = slices.Delete(m.retired, i, i+1)
				m.closeEngine(le)
			}
		})
	}
}

func (m *Manager) closeEngine(le *loadedEngine) {
	if err := le.engine.Close(); err != nil {
		m.logger.Warn().Err(err).Str("model", le.model).Msg("Failed to close previous engine")
	}
}

// Close shuts down every loaded engine, leased or not
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var errs []error
	for _, le := range m.retired {
		errs = append(errs, le.engine.Close())
	}
	m.retired = nil
	if m.current != nil {
		errs = append(errs, m.current.engine.Close())
		m.current = nil
	}
	return errors.Join(errs...)
}

type staticStream struct {
	info     types.TranscriptionInfo
	segments []types.Segment

	mu       sync.Mutex
	consumed bool
}

// NewStaticStream wraps already decoded segments in a single-pass Stream
func NewStaticStream(info types.TranscriptionInfo, segments []types.Segment) Stream {
	return &staticStream{info: info, segments: segments}
}

func (s *staticStream) Info() types.TranscriptionInfo { return s.info }

func (s *staticStream) Segments() types.SegmentSeq {
	return func(yield func(types.Segment, error) bool) {
		s.mu.Lock()
		consumed := s.consumed
		s.consumed = true
		s.mu.Unlock()
		if consumed {
			yield(types.Segment{}, ErrStreamConsumed)
			return
		}
		for _, seg := range s.segments {
			if !yield(seg, nil) {
				return
			}
		}
	}
}

func (s *staticStream) Close() error { return nil }
