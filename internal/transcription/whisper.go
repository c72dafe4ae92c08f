package transcription

import (
	"bufio"
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/wendysoncomercial-beep/transcricao-voz-0800/internal/types"
)

//go:embed assets/faster_whisper_worker.py
var workerScript []byte

// WorkerConfig selects the Python interpreter and model placement
type WorkerConfig struct {
	Python      string
	Model       string
	Device      string // auto|cpu|cuda
	ComputeType string // empty picks float16 on cuda, int8 on cpu
	ModelDir    string
}

// message is one line of the worker protocol
type message struct {
	Type    string `json:"type"`
	ID      string `json:"id,omitempty"`
	Message string `json:"message,omitempty"`

	Device      string `json:"device,omitempty"`
	ComputeType string `json:"compute_type,omitempty"`

	Language            string  `json:"language,omitempty"`
	LanguageProbability float64 `json:"language_probability,omitempty"`
	Duration            float64 `json:"duration,omitempty"`
	DurationAfterVAD    float64 `json:"duration_after_vad,omitempty"`

	Start float64 `json:"start,omitempty"`
	End   float64 `json:"end,omitempty"`
	Text  string  `json:"text,omitempty"`
}

type requestOptions struct {
	types.TranscriptionConfig
	VADParameters  *types.VADParameters `json:"vad_parameters,omitempty"`
	WordTimestamps bool                 `json:"word_timestamps"`
}

type request struct {
	ID      string         `json:"id"`
	Audio   string         `json:"audio"`
	Options requestOptions `json:"options"`
}

func newRequest(audioPath string, cfg types.TranscriptionConfig) request {
	return request{
		ID:    uuid.New().String(),
		Audio: audioPath,
		Options: requestOptions{
			TranscriptionConfig: cfg,
			VADParameters:       cfg.VADParameters(),
		},
	}
}

// WhisperWorker is a long-lived faster-whisper process holding one loaded model.
// Requests are serialized: a stream holds the worker until it is closed.
type WhisperWorker struct {
	model       string
	device      string
	computeType string
	logger      zerolog.Logger

	mu     sync.Mutex // held for the lifetime of one stream
	w      io.Writer
	r      *bufio.Reader
	stop   func() error
	broken atomic.Bool
}

// StartWhisperWorker launches the helper and waits until the model is loaded
func StartWhisperWorker(cfg WorkerConfig, logger zerolog.Logger) (*WhisperWorker, error) {
	python := cfg.Python
	if python == "" {
		python = "python3"
	}
	device := cfg.Device
	if device == "" {
		device = "auto"
	}

	scriptFile, err := os.CreateTemp("", "faster_whisper_worker-*.py")
	if err != nil {
		return nil, fmt.Errorf("write helper script: %w", err)
	}
	scriptPath := scriptFile.Name()
	if _, err := scriptFile.Write(workerScript); err != nil {
		scriptFile.Close()
		os.Remove(scriptPath)
		return nil, fmt.Errorf("write helper script: %w", err)
	}
	scriptFile.Close()

	args := []string{scriptPath, "--model", cfg.Model, "--device", device}
	if cfg.ComputeType != "" {
		args = append(args, "--compute-type", cfg.ComputeType)
	}
	if cfg.ModelDir != "" {
		args = append(args, "--download-root", cfg.ModelDir)
	}

	cmd := exec.Command(python, args...)
	cmd.Env = os.Environ()
	stderr, err := cmd.StderrPipe()
	if err != nil {
		os.Remove(scriptPath)
		return nil, err
	}
	stdin, err := cmd.StdinPipe()
	if err != nil {
		os.Remove(scriptPath)
		return nil, err
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		os.Remove(scriptPath)
		return nil, err
	}
	if err := cmd.Start(); err != nil {
		os.Remove(scriptPath)
		return nil, fmt.Errorf("failed to start %s: %w", python, err)
	}

	stderrDone := make(chan struct{})
	go func() {
		defer close(stderrDone)
		logStderr(stderr, logger)
	}()

	stop := func() error {
		stdin.Close()
		if cmd.Process != nil {
			cmd.Process.Kill()
		}
		// Wait closes the pipe, so the reader has to drain first
		<-stderrDone
		err := cmd.Wait()
		os.Remove(scriptPath)
		if _, ok := err.(*exec.ExitError); ok {
			return nil
		}
		return err
	}

	w, err := newWhisperWorker(cfg.Model, stdin, stdout, stop, logger)
	if err != nil {
		stop()
		return nil, err
	}
	logger.Info().
		Str("model", cfg.Model).
		Str("device", w.device).
		Str("compute_type", w.computeType).
		Msg("faster-whisper model loaded")
	return w, nil
}

// WorkerFactory returns a Factory that starts one worker per model size using base for
// everything but the model
func WorkerFactory(base WorkerConfig, logger zerolog.Logger) Factory {
	return func(modelSize string) (Engine, error) {
		cfg := base
		cfg.Model = modelSize
		w, err := StartWhisperWorker(cfg, logger)
		if err != nil {
			return nil, err
		}
		return w, nil
	}
}

// newWhisperWorker performs the ready handshake over an established pipe pair
func newWhisperWorker(model string, w io.Writer, r io.Reader, stop func() error, logger zerolog.Logger) (*WhisperWorker, error) {
	ww := &WhisperWorker{
		model:  model,
		logger: logger,
		w:      w,
		r:      bufio.NewReaderSize(r, 64*1024),
		stop:   stop,
	}
	msg, err := ww.read()
	if err != nil {
		return nil, fmt.Errorf("worker handshake: %w", err)
	}
	switch msg.Type {
	case "ready":
		ww.device = msg.Device
		ww.computeType = msg.ComputeType
		return ww, nil
	case "error":
		return nil, fmt.Errorf("worker failed to load model %s: %s", model, msg.Message)
	default:
		return nil, fmt.Errorf("worker handshake: unexpected %q message", msg.Type)
	}
}

// Device reports where the model runs
func (ww *WhisperWorker) Device() string { return ww.device }

// ComputeType reports the model precision
func (ww *WhisperWorker) ComputeType() string { return ww.computeType }

// Alive is false once the protocol broke or the worker was closed
func (ww *WhisperWorker) Alive() bool {
	return !ww.broken.Load()
}

// Transcribe sends one request and returns once the engine reported the audio info
func (ww *WhisperWorker) Transcribe(ctx context.Context, audioPath string, cfg types.TranscriptionConfig) (Stream, error) {
	absPath, err := filepath.Abs(audioPath)
	if err != nil {
		return nil, fmt.Errorf("failed to get absolute path: %w", err)
	}

	ww.mu.Lock()
	if ww.broken.Load() {
		ww.mu.Unlock()
		return nil, ErrWorkerClosed
	}
	if err := ctx.Err(); err != nil {
		ww.mu.Unlock()
		return nil, err
	}

	req := newRequest(absPath, cfg)
	line, err := json.Marshal(req)
	if err != nil {
		ww.mu.Unlock()
		return nil, err
	}
	if _, err := ww.w.Write(append(line, '\n')); err != nil {
		ww.broken.Store(true)
		ww.mu.Unlock()
		return nil, fmt.Errorf("send request: %w", err)
	}

	ww.logger.Debug().Str("request_id", req.ID).Str("file", absPath).Msg("Transcription request sent")

	msg, err := ww.read()
	if err != nil {
		ww.broken.Store(true)
		ww.mu.Unlock()
		return nil, fmt.Errorf("read info: %w", err)
	}
	switch msg.Type {
	case "info":
	case "error":
		ww.mu.Unlock()
		return nil, fmt.Errorf("transcription failed: %s", msg.Message)
	default:
		ww.broken.Store(true)
		ww.mu.Unlock()
		return nil, fmt.Errorf("unexpected %q message before info", msg.Type)
	}

	return &workerStream{
		ctx:    ctx,
		worker: ww,
		info: types.TranscriptionInfo{
			Language:            msg.Language,
			LanguageProbability: msg.LanguageProbability,
			Duration:            msg.Duration,
			DurationAfterVAD:    msg.DurationAfterVAD,
		},
	}, nil
}

// Close stops the worker process
func (ww *WhisperWorker) Close() error {
	ww.mu.Lock()
	defer ww.mu.Unlock()
	return ww.shutdown()
}

func (ww *WhisperWorker) shutdown() error {
	ww.broken.Store(true)
	if ww.stop == nil {
		return nil
	}
	stop := ww.stop
	ww.stop = nil
	return stop()
}

func (ww *WhisperWorker) read() (message, error) {
	line, err := ww.r.ReadBytes('\n')
	if err != nil {
		if err == io.EOF {
			return message{}, ErrWorkerClosed
		}
		return message{}, err
	}
	var msg message
	if err := json.Unmarshal(line, &msg); err != nil {
		return message{}, fmt.Errorf("bad worker message %q: %w", string(line), err)
	}
	return msg, nil
}

// workerStream reads segment messages while holding the worker lock
type workerStream struct {
	ctx    context.Context
	worker *WhisperWorker
	info   types.TranscriptionInfo

	consumed bool
	finished bool
	released bool
}

func (s *workerStream) Info() types.TranscriptionInfo { return s.info }

func (s *workerStream) Segments() types.SegmentSeq {
	return func(yield func(types.Segment, error) bool) {
		if s.consumed || s.released {
			yield(types.Segment{}, ErrStreamConsumed)
			return
		}
		s.consumed = true

		for !s.finished {
			if err := s.ctx.Err(); err != nil {
				s.abort()
				yield(types.Segment{}, err)
				return
			}
			seg, err := s.next()
			if err != nil {
				yield(types.Segment{}, err)
				return
			}
			if s.finished {
				return
			}
			if !yield(seg, nil) {
				s.drain()
				return
			}
		}
	}
}

// next returns the following segment, setting finished at the end marker
func (s *workerStream) next() (types.Segment, error) {
	msg, err := s.worker.read()
	if err != nil {
		s.worker.broken.Store(true)
		s.finished = true
		return types.Segment{}, err
	}
	switch msg.Type {
	case "segment":
		return types.Segment{Start: msg.Start, End: msg.End, Text: msg.Text}, nil
	case "done":
		s.finished = true
		return types.Segment{}, nil
	case "error":
		s.finished = true
		return types.Segment{}, fmt.Errorf("transcription failed: %s", msg.Message)
	default:
		s.worker.broken.Store(true)
		s.finished = true
		return types.Segment{}, fmt.Errorf("unexpected %q message in stream", msg.Type)
	}
}

func (s *workerStream) drain() {
	for !s.finished {
		if _, err := s.next(); err != nil {
			return
		}
	}
}

// abort kills the worker; the engine cannot be interrupted mid-request
func (s *workerStream) abort() {
	s.finished = true
	s.worker.shutdown()
}

// Close drains any unread segments and releases the worker
func (s *workerStream) Close() error {
	if s.released {
		return nil
	}
	s.drain()
	s.released = true
	s.worker.mu.Unlock()
	return nil
}

// logStderr logs the helper's diagnostics one line at a time until r is closed
func logStderr(r io.Reader, logger zerolog.Logger) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		logger.Debug().Str("source", "faster-whisper").Msg(line)
	}
	if err := scanner.Err(); err != nil {
		logger.Debug().Err(err).Str("source", "faster-whisper").Msg("stderr reader stopped")
	}
}
