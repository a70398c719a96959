// Package pipeline answers questions by retrieving context, composing a prompt, and generating a reply.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hyperjump/medibot/internal/generation"
	"github.com/hyperjump/medibot/internal/models"
	"github.com/hyperjump/medibot/internal/prompt"
	"github.com/hyperjump/medibot/pkg/utils"
	"go.uber.org/zap"
)

// Stage is a step of one query.
type Stage string

const (
	StageIdle       Stage = "idle"
	StageRetrieving Stage = "retrieving"
	StageComposing  Stage = "composing"
	StageGenerating Stage = "generating"
	StageDone       Stage = "done"
	StageErrored    Stage = "errored"
)

// EmptyContextPolicy decides what happens when retrieval finds nothing relevant.
type EmptyContextPolicy string

const (
	// PolicyShortCircuit answers with InsufficientContextAnswer without calling the generator.
	PolicyShortCircuit EmptyContextPolicy = "short_circuit"
	// PolicyDisclaimer generates from a context-free prompt that tells the model to say so.
	PolicyDisclaimer EmptyContextPolicy = "disclaimer"
)

// InsufficientContextAnswer is the short-circuit reply.
const InsufficientContextAnswer = "I couldn't find information about this in the reference documents, so I can't answer it."

// Retriever finds the context for a question.
type Retriever interface {
	Retrieve(ctx context.Context, query string, k int, minScore float64) (models.RetrievedContext, error)
}

// Options configures a Pipeline. Every field is explicit.
type Options struct {
	TopK            int
	MinScore        float64
	MaxPromptLength int
	HistoryTurns    int
	EmptyContext    EmptyContextPolicy
	Sessions        SessionLimits
}

// StageObserver is told each stage a query enters.
type StageObserver func(sessionID string, stage Stage)

// Pipeline runs queries against shared components. Sessions run concurrently; queries within one session do not.
type Pipeline struct {
	retriever Retriever
	composer  *prompt.Composer
	generator generation.Generator
	opts      Options
	sessions  *SessionStore
	observer  StageObserver
	logger    *zap.Logger
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithLogger sets the pipeline's logger.
func WithLogger(l *zap.Logger) Option {
	return func(p *Pipeline) { p.logger = l }
}

// WithStageObserver registers fn to observe stage transitions.
func WithStageObserver(fn StageObserver) Option {
	return func(p *Pipeline) { p.observer = fn }
}

// New validates opts and wires the components.
func New(retriever Retriever, composer *prompt.Composer, generator generation.Generator, opts Options, options ...Option) (*Pipeline, error) {
	if retriever == nil || composer == nil || generator == nil {
		return nil, fmt.Errorf("%w: retriever, composer and generator are required", models.ErrInvalidParameter)
	}
	if opts.TopK <= 0 {
		return nil, fmt.Errorf("%w: top_k must be positive, got %d", models.ErrInvalidParameter, opts.TopK)
	}
	if opts.MaxPromptLength <= 0 {
		return nil, fmt.Errorf("%w: max prompt length must be positive, got %d", models.ErrInvalidParameter, opts.MaxPromptLength)
	}
	if opts.HistoryTurns < 0 {
		return nil, fmt.Errorf("%w: history turns cannot be negative", models.ErrInvalidParameter)
	}
	if opts.Sessions.MaxSessions < 0 || opts.Sessions.IdleTTL < 0 {
		return nil, fmt.Errorf("%w: session limits cannot be negative", models.ErrInvalidParameter)
	}
	switch opts.EmptyContext {
	case PolicyShortCircuit, PolicyDisclaimer:
	default:
		return nil, fmt.Errorf("%w: unknown empty context policy %q", models.ErrInvalidParameter, opts.EmptyContext)
	}
	p := &Pipeline{
		retriever: retriever,
		composer:  composer,
		generator: generator,
		opts:      opts,
		sessions:  NewSessionStore(opts.HistoryTurns, opts.Sessions),
	}
	for _, opt := range options {
		opt(p)
	}
	p.logger = utils.OrNop(p.logger)
	return p, nil
}

// Answer runs question in sessionID and returns the complete answer. An empty sessionID starts a new session.
// Failures are reported in the answer, never as a Go error.
func (p *Pipeline) Answer(ctx context.Context, question, sessionID string) *models.Answer {
	return p.run(ctx, question, sessionID, nil)
}

// AnswerStream is Answer with the generated text also passed to onFragment as it arrives.
func (p *Pipeline) AnswerStream(ctx context.Context, question, sessionID string, onFragment func(string)) *models.Answer {
	if onFragment == nil {
		onFragment = func(string) {}
	}
	return p.run(ctx, question, sessionID, onFragment)
}

// History returns a session's recorded turns.
func (p *Pipeline) History(sessionID string) []models.Turn {
	return p.sessions.History(sessionID)
}

// Reset clears a session's history and reports whether it existed.
func (p *Pipeline) Reset(sessionID string) bool {
	return p.sessions.Reset(sessionID)
}

// Model names the generator in use.
func (p *Pipeline) Model() string {
	return p.generator.Model()
}

type run struct {
	p         *Pipeline
	sessionID string
	stage     Stage
	start     time.Time
}

func (r *run) enter(stage Stage) {
	r.p.logger.Debug("pipeline stage", zap.String("session", r.sessionID), zap.String("from", string(r.stage)), zap.String("to", string(stage)))
	r.stage = stage
	if r.p.observer != nil {
		r.p.observer(r.sessionID, stage)
	}
}

func (p *Pipeline) run(ctx context.Context, question, sessionID string, onFragment func(string)) *models.Answer {
	if sessionID == "" {
		sessionID = uuid.NewString()
	}
	r := &run{p: p, sessionID: sessionID, stage: StageIdle, start: time.Now()}

	q := models.Query{Question: question, SessionID: sessionID}
	if err := q.Validate(); err != nil {
		return r.fail(err, nil)
	}
	if err := ctx.Err(); err != nil {
		return r.fail(err, nil)
	}
	sess := p.sessions.acquire(sessionID)
	defer p.sessions.release(sess)
	if err := sess.lock(ctx); err != nil {
		return r.fail(err, nil)
	}
	defer sess.unlock()
	history := p.sessions.snapshot(sess)

	r.enter(StageRetrieving)
	retrieved, err := p.retriever.Retrieve(ctx, q.Question, p.opts.TopK, p.opts.MinScore)
	if err != nil {
		return r.fail(err, nil)
	}

	r.enter(StageComposing)
	status := models.StatusAnswered
	var composed *prompt.Prompt
	if retrieved.Empty() {
		status = models.StatusInsufficientContext
		if p.opts.EmptyContext == PolicyShortCircuit {
			p.logger.Info("no relevant context, short-circuiting", zap.String("session", sessionID))
			return r.done(sess, q.Question, InsufficientContextAnswer, status, nil, false)
		}
		composed, err = p.composer.ComposeWithoutContext(q.Question, history, p.opts.MaxPromptLength)
	} else {
		composed, err = p.composer.Compose(q.Question, retrieved, history, p.opts.MaxPromptLength)
	}
	if err != nil {
		return r.fail(err, retrieved)
	}
	if composed.Truncated() {
		p.logger.Info("prompt truncated",
			zap.String("session", sessionID),
			zap.Int("dropped_examples", composed.DroppedExamples),
			zap.Int("dropped_turns", composed.DroppedTurns),
			zap.Int("dropped_chunks", composed.DroppedChunks),
			zap.Int("length", composed.Length()),
		)
	}

	r.enter(StageGenerating)
	text, err := p.generate(ctx, composed, onFragment)
	if err != nil {
		return r.fail(err, composed.Context)
	}
	return r.done(sess, q.Question, text, status, composed.Context, composed.Truncated())
}

func (p *Pipeline) generate(ctx context.Context, composed *prompt.Prompt, onFragment func(string)) (string, error) {
	if onFragment == nil {
		return p.generator.Generate(ctx, composed)
	}
	stream, err := p.generator.Stream(ctx, composed)
	if err != nil {
		return "", err
	}
	var text []byte
	for tok := range stream {
		if tok.Err != nil {
			return "", tok.Err
		}
		text = append(text, tok.Text...)
		onFragment(tok.Text)
	}
	// A stream closes early on cancellation without an error token.
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return string(text), nil
}

func (r *run) done(sess *session, question, text string, status models.AnswerStatus, retrieved models.RetrievedContext, truncated bool) *models.Answer {
	r.p.sessions.append(sess, models.Turn{Question: question, Answer: text})
	r.enter(StageDone)
	elapsed := time.Since(r.start)
	r.p.logger.Info("question answered",
		zap.String("session", r.sessionID),
		zap.String("status", string(status)),
		zap.Int("chunks", len(retrieved)),
		zap.Duration("duration", elapsed),
	)
	return &models.Answer{
		Text:      text,
		Status:    status,
		Context:   retrieved,
		SessionID: r.sessionID,
		Truncated: truncated,
		QueryTime: elapsed.Milliseconds(),
	}
}

func (r *run) fail(err error, retrieved models.RetrievedContext) *models.Answer {
	reason := models.ReasonFor(err)
	if reason == models.ReasonInternal && r.stage == StageGenerating && errors.Is(err, context.DeadlineExceeded) {
		// The caller's own deadline ran out mid-stream.
		err = fmt.Errorf("%w: %v", models.ErrGenerationTimeout, err)
		reason = models.ReasonGenerationTimeout
	}
	failedAt := r.stage
	r.enter(StageErrored)
	elapsed := time.Since(r.start)
	level := r.p.logger.Warn
	if reason == models.ReasonInternal {
		level = r.p.logger.Error
	}
	level("question failed",
		zap.String("session", r.sessionID),
		zap.String("stage", string(failedAt)),
		zap.String("reason", string(reason)),
		zap.Duration("duration", elapsed),
		zap.Error(err),
	)
	return &models.Answer{
		Text:      Apology(reason),
		Status:    models.StatusFailed,
		Reason:    reason,
		Context:   retrieved,
		SessionID: r.sessionID,
		QueryTime: elapsed.Milliseconds(),
		Err:       err,
	}
}

// Apology is the user-facing text of a failed answer.
func Apology(reason models.FailureReason) string {
	switch reason {
	case models.ReasonGenerationTimeout:
		return "Sorry, the answer took too long to generate. Please try again."
	case models.ReasonGenerationUnavailable:
		return "Sorry, the answering service is unavailable right now. Please try again later."
	case models.ReasonEmbeddingUnavailable:
		return "Sorry, your question could not be processed right now. Please try again later."
	case models.ReasonIndexUnavailable:
		return "Sorry, the reference documents are not available. Build or reload the index and try again."
	case models.ReasonInvalidRequest:
		return "Sorry, that question can't be answered. Questions must be non-empty and reasonably short."
	case models.ReasonCancelled:
		return "The question was cancelled."
	default:
		return "Sorry, something went wrong while answering your question."
	}
}
