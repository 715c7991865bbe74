// Package pipeline drives the ordered consensus stage sequence
// Generator → Refiner → Validator → Curator, or a single ad-hoc stage on
// the direct path. Each stage selects its own model, streams its answer,
// and hands every chunk to the inline operation extractor through an
// ordered worker so extraction sees chunks in arrival order while
// dispatch stays off the streaming hot path.
package pipeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/normanking/quorum/internal/extract"
	"github.com/normanking/quorum/internal/llm"
	"github.com/normanking/quorum/internal/selection"
)

// StageResult is the externally observable record of one completed stage.
type StageResult struct {
	Stage            selection.Stage `json:"stage"`
	Prompt           string          `json:"prompt"`
	Answer           string          `json:"answer"`
	Model            string          `json:"model"`
	ConversationID   string          `json:"conversation_id"`
	Timestamp        time.Time       `json:"timestamp"`
	PromptTokens     int             `json:"prompt_tokens,omitempty"`
	CompletionTokens int             `json:"completion_tokens,omitempty"`
	Duration         time.Duration   `json:"duration"`
}

// StreamCallbacks is the streaming surface exposed to consumers (rendering
// layer, logger, automation). Every method returns an error so a consumer
// failure surfaces instead of being swallowed; a non-nil return aborts the
// stage.
type StreamCallbacks interface {
	OnStageStart(stage selection.Stage, modelID string) error
	OnStageChunk(stage selection.Stage, chunk string, runningTotal int) error
	OnStageProgress(stage selection.Stage, info string) error
	OnStageComplete(stage selection.Stage, result *StageResult) error
	OnError(stage selection.Stage, err error) error
}

// OperationExecutor receives finalized inline operations extracted from the
// stage streams. Implementations run outside this package (filesystem
// writer, dry-run logger, review queue).
type OperationExecutor interface {
	Execute(ctx context.Context, op extract.Operation) error
}

// NoopCallbacks satisfies StreamCallbacks and does nothing. Useful when a
// caller only wants the returned StageResults.
type NoopCallbacks struct{}

func (NoopCallbacks) OnStageStart(selection.Stage, string) error           { return nil }
func (NoopCallbacks) OnStageChunk(selection.Stage, string, int) error      { return nil }
func (NoopCallbacks) OnStageProgress(selection.Stage, string) error        { return nil }
func (NoopCallbacks) OnStageComplete(selection.Stage, *StageResult) error  { return nil }
func (NoopCallbacks) OnError(selection.Stage, error) error                 { return nil }

// Config holds executor tuning knobs.
type Config struct {
	// MaxTokens and Temperature are passed through to every stage request.
	MaxTokens   int
	Temperature float64

	// ChunkQueueSize bounds the per-stage extraction queue. A full queue
	// applies backpressure to the stream rather than dropping chunks.
	ChunkQueueSize int
}

// DefaultConfig returns executor defaults.
func DefaultConfig() Config {
	return Config{
		MaxTokens:      4096,
		Temperature:    0.7,
		ChunkQueueSize: 64,
	}
}

// Executor runs the consensus pipeline.
type Executor struct {
	selector  *selection.Selector
	provider  llm.Provider
	ops       OperationExecutor
	callbacks StreamCallbacks
	config    Config
}

// NewExecutor creates a pipeline executor. ops may be nil, in which case
// extracted operations are logged and discarded. callbacks may be nil.
func NewExecutor(selector *selection.Selector, provider llm.Provider, ops OperationExecutor, callbacks StreamCallbacks, cfg Config) *Executor {
	if callbacks == nil {
		callbacks = NoopCallbacks{}
	}
	defaults := DefaultConfig()
	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = defaults.MaxTokens
	}
	if cfg.Temperature == 0 {
		cfg.Temperature = defaults.Temperature
	}
	if cfg.ChunkQueueSize == 0 {
		cfg.ChunkQueueSize = defaults.ChunkQueueSize
	}

	return &Executor{
		selector:  selector,
		provider:  provider,
		ops:       ops,
		callbacks: callbacks,
		config:    cfg,
	}
}

// ═══════════════════════════════════════════════════════════════════════════════
// PIPELINE RUNS
// ═══════════════════════════════════════════════════════════════════════════════

// Run executes the full four-stage pipeline on one request. Each stage's
// answer feeds the next stage's prompt; all completed StageResults so far
// are returned alongside a stage error.
func (e *Executor) Run(ctx context.Context, conversationID, request string, criteria selection.Criteria) ([]StageResult, error) {
	results := make([]StageResult, 0, len(selection.PipelineStages))

	var previous string
	for _, stage := range selection.PipelineStages {
		prompt := stagePrompt(stage, request, previous)
		result, err := e.runStage(ctx, conversationID, stage, stageSystemPrompt(stage), prompt, criteria)
		if err != nil {
			return results, fmt.Errorf("stage %s: %w", stage, err)
		}
		results = append(results, *result)
		previous = result.Answer
	}

	return results, nil
}

// RunDirect executes a single ad-hoc stage drawing from the generator pool,
// bypassing the consensus sequence.
func (e *Executor) RunDirect(ctx context.Context, conversationID, request string, criteria selection.Criteria) (*StageResult, error) {
	result, err := e.runStage(ctx, conversationID, selection.StageDirect, stageSystemPrompt(selection.StageDirect), request, criteria)
	if err != nil {
		return nil, fmt.Errorf("stage %s: %w", selection.StageDirect, err)
	}
	return result, nil
}

// runStage selects a model, streams one completion, and fans chunks out to
// the callbacks and the extraction worker. Exactly one of OnStageComplete
// or OnError fires per stage.
func (e *Executor) runStage(ctx context.Context, conversationID string, stage selection.Stage, systemPrompt, prompt string, criteria selection.Criteria) (*StageResult, error) {
	candidate, err := e.selector.SelectOptimalModel(ctx, conversationID, stage, criteria)
	if err != nil {
		e.fireError(stage, err)
		return nil, err
	}

	if err := e.callbacks.OnStageStart(stage, candidate.ExternalID()); err != nil {
		return nil, fmt.Errorf("stage start callback: %w", err)
	}
	if err := e.callbacks.OnStageProgress(stage, "model selected: "+candidate.ExternalID()); err != nil {
		return nil, fmt.Errorf("stage progress callback: %w", err)
	}

	worker := e.startExtractionWorker(ctx, stage)
	defer worker.stop()

	req := &llm.ChatRequest{
		Model:        candidate.ExternalID(),
		SystemPrompt: systemPrompt,
		Messages:     []llm.Message{{Role: "user", Content: prompt}},
		MaxTokens:    e.config.MaxTokens,
		Temperature:  e.config.Temperature,
	}

	runningTotal := 0
	start := time.Now()
	resp, err := e.provider.ChatStream(ctx, req, func(token string) error {
		runningTotal += len(token)
		if err := e.callbacks.OnStageChunk(stage, token, runningTotal); err != nil {
			return err
		}
		return worker.enqueue(ctx, token)
	})
	if err != nil {
		e.fireError(stage, err)
		return nil, err
	}

	worker.stop()

	result := &StageResult{
		Stage:            stage,
		Prompt:           prompt,
		Answer:           resp.Content,
		Model:            candidate.ExternalID(),
		ConversationID:   conversationID,
		Timestamp:        start.UTC(),
		PromptTokens:     resp.PromptTokens,
		CompletionTokens: resp.CompletionTokens,
		Duration:         time.Since(start),
	}

	if err := e.callbacks.OnStageComplete(stage, result); err != nil {
		return nil, fmt.Errorf("stage complete callback: %w", err)
	}

	log.Debug().Str("stage", string(stage)).
		Str("model", result.Model).
		Int("chars", runningTotal).
		Dur("duration", result.Duration).
		Msg("stage completed")

	return result, nil
}

// fireError reports a stage failure through the callback surface. The
// callback's own error is logged, not propagated; the original stage error
// takes precedence.
func (e *Executor) fireError(stage selection.Stage, err error) {
	if cbErr := e.callbacks.OnError(stage, err); cbErr != nil {
		log.Warn().Err(cbErr).Str("stage", string(stage)).Msg("error callback failed")
	}
}

// ═══════════════════════════════════════════════════════════════════════════════
// ORDERED EXTRACTION WORKER
// ═══════════════════════════════════════════════════════════════════════════════

// extractionWorker drains one stage's chunks in arrival order through a
// single goroutine. Ordering matters: the extractor's state machine is
// line-buffered across chunk boundaries, so reordered chunks would corrupt
// headers and fences.
type extractionWorker struct {
	chunks chan string
	done   chan struct{}
	once   sync.Once
}

func (e *Executor) startExtractionWorker(ctx context.Context, stage selection.Stage) *extractionWorker {
	w := &extractionWorker{
		chunks: make(chan string, e.config.ChunkQueueSize),
		done:   make(chan struct{}),
	}

	go func() {
		defer close(w.done)
		ex := extract.New()
		for chunk := range w.chunks {
			op, ok := ex.Feed(chunk)
			for ok {
				e.dispatch(ctx, stage, op)
				op, ok = ex.Feed("")
			}
		}
		if op, ok := ex.Flush(); ok {
			e.dispatch(ctx, stage, op)
		}
	}()

	return w
}

// enqueue hands one chunk to the worker, blocking for backpressure but
// releasing on cancellation.
func (w *extractionWorker) enqueue(ctx context.Context, chunk string) error {
	select {
	case w.chunks <- chunk:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// stop closes the queue and waits for the worker to drain. Safe to call
// more than once.
func (w *extractionWorker) stop() {
	w.once.Do(func() { close(w.chunks) })
	<-w.done
}

// dispatch hands a finalized operation to the external executor. Dispatch
// failures are logged with the target path; they never interrupt the stream.
func (e *Executor) dispatch(ctx context.Context, stage selection.Stage, op *extract.Operation) {
	if e.ops == nil {
		log.Info().Str("stage", string(stage)).
			Str("verb", string(op.Verb)).
			Str("path", op.Path).
			Msg("extracted operation (no executor configured)")
		return
	}
	if err := e.ops.Execute(ctx, *op); err != nil {
		log.Error().Err(err).Str("stage", string(stage)).
			Str("verb", string(op.Verb)).
			Str("path", op.Path).
			Msg("operation dispatch failed")
	}
}
