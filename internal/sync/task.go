package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/stacklok/thv-confd/internal/command"
	"github.com/stacklok/thv-confd/internal/config"
	"github.com/stacklok/thv-confd/internal/plugin"
	"github.com/stacklok/thv-confd/internal/render"
	"github.com/stacklok/thv-confd/internal/status"
	"github.com/stacklok/thv-confd/internal/sync/writer"
	"github.com/stacklok/thv-confd/internal/telemetry"
	"github.com/stacklok/thv-confd/internal/tracing"
)

const (
	// TracerName is the name used for the tick tracer
	TracerName = "github.com/stacklok/thv-confd/sync"

	// DefaultCheckTimeout bounds a check command
	DefaultCheckTimeout = 30 * time.Second
)

// TickResult describes a finished tick
type TickResult struct {
	// ID identifies the tick in logs, traces and the status API
	ID string

	// Outcome of the tick
	Outcome Outcome

	// Reason is the change detection decision, empty when the tick failed before deciding
	Reason Reason

	// Err is set for failed outcomes
	Err *Error

	// Reload delivers the reload command result once the command exits.
	// It is nil unless the outcome is OutcomeRender, and closed without a
	// value when no reload command is configured.
	Reload <-chan command.Result
}

// Task runs the fetch, decide, render, write, reload and sleep cycle of one plugin
type Task struct {
	plugin plugin.Plugin
	spec   *plugin.Spec

	loader  render.Loader
	writer  writer.Writer
	runner  command.Runner
	status  status.Store
	metrics *telemetry.TickMetrics
	tracer  trace.Tracer
	logger  *slog.Logger

	interval     time.Duration
	tickTimeout  time.Duration
	checkTimeout time.Duration
	wake         <-chan struct{}

	// state is only touched by the goroutine running ticks
	state State
}

// TaskOption configures a Task
type TaskOption func(*Task)

// WithLoader sets the template loader. Defaults to the OS filesystem under the default template directory.
func WithLoader(loader render.Loader) TaskOption {
	return func(t *Task) {
		t.loader = loader
	}
}

// WithWriter sets the output writer. Defaults to the OS filesystem.
func WithWriter(w writer.Writer) TaskOption {
	return func(t *Task) {
		t.writer = w
	}
}

// WithRunner sets the command runner used for check and reload commands
func WithRunner(runner command.Runner) TaskOption {
	return func(t *Task) {
		t.runner = runner
	}
}

// WithStatusStore sets the store the task reports its status to
func WithStatusStore(store status.Store) TaskOption {
	return func(t *Task) {
		t.status = store
	}
}

// WithTickMetrics sets the tick metrics
func WithTickMetrics(metrics *telemetry.TickMetrics) TaskOption {
	return func(t *Task) {
		t.metrics = metrics
	}
}

// WithTracer sets the tracer used for tick spans
func WithTracer(tracer trace.Tracer) TaskOption {
	return func(t *Task) {
		t.tracer = tracer
	}
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) TaskOption {
	return func(t *Task) {
		t.logger = logger
	}
}

// WithDefaultInterval sets the interval used when the plugin does not choose its own
func WithDefaultInterval(interval time.Duration) TaskOption {
	return func(t *Task) {
		t.interval = interval
	}
}

// WithTickTimeout bounds each tick. Zero disables the bound.
func WithTickTimeout(timeout time.Duration) TaskOption {
	return func(t *Task) {
		t.tickTimeout = timeout
	}
}

// WithCheckTimeout bounds the check command
func WithCheckTimeout(timeout time.Duration) TaskOption {
	return func(t *Task) {
		t.checkTimeout = timeout
	}
}

// WithWake sets a channel that ends the sleep between two ticks early
func WithWake(wake <-chan struct{}) TaskOption {
	return func(t *Task) {
		t.wake = wake
	}
}

// NewTask creates a task for p. A plugin without a valid Spec is a configuration error.
func NewTask(p plugin.Plugin, opts ...TaskOption) (*Task, error) {
	if p == nil {
		return nil, &plugin.ConfigurationError{Err: errors.New("plugin is nil")}
	}
	spec := p.Spec()
	if spec == nil {
		return nil, &plugin.ConfigurationError{Plugin: p.Name(), Err: errors.New("plugin has no spec")}
	}
	if spec.TemplateSource == "" {
		return nil, &plugin.ConfigurationError{
			Plugin: p.Name(), Field: "templateSource", Err: errors.New("a template source is required"),
		}
	}
	if spec.Destination == "" {
		return nil, &plugin.ConfigurationError{
			Plugin: p.Name(), Field: "destination", Err: errors.New("a destination is required"),
		}
	}

	if spec.Mode == 0 {
		withMode := *spec
		withMode.Mode = plugin.DefaultMode
		spec = &withMode
	}

	t := &Task{
		plugin:       p,
		spec:         spec,
		checkTimeout: DefaultCheckTimeout,
	}
	for _, opt := range opts {
		opt(t)
	}

	if t.loader == nil {
		t.loader = render.NewLoader(nil, config.DefaultTemplateDir)
	}
	if t.writer == nil {
		t.writer = writer.NewWriter(nil)
	}
	if t.runner == nil {
		t.runner = command.NewRunner()
	}
	if t.tracer == nil {
		t.tracer = otel.Tracer(TracerName)
	}
	if t.logger == nil {
		t.logger = slog.Default()
	}
	t.logger = t.logger.With("plugin", p.Name())
	t.interval = plugin.IntervalOf(p, t.interval)

	return t, nil
}

// Name returns the plugin name
func (t *Task) Name() string {
	return t.plugin.Name()
}

// Spec returns the plugin spec
func (t *Task) Spec() *plugin.Spec {
	return t.spec
}

// Interval returns the sleep between two ticks
func (t *Task) Interval() time.Duration {
	return t.interval
}

// State returns a copy of the change detection state. It must not be called
// while Run is active.
func (t *Task) State() State {
	return t.state.Clone()
}

// Run ticks until ctx is cancelled. A failing or panicking tick never ends the loop.
func (t *Task) Run(ctx context.Context) error {
	t.logger.InfoContext(ctx, "Starting plugin task",
		"destination", t.spec.Destination,
		"interval", t.interval)

	for {
		if ctx.Err() != nil {
			break
		}
		t.safeTick(ctx)
		if !t.sleep(ctx) {
			break
		}
	}

	t.logger.InfoContext(ctx, "Plugin task stopped")
	return nil
}

// safeTick runs a tick and contains any panic escaping it
func (t *Task) safeTick(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			t.logger.ErrorContext(ctx, "Tick panicked", "panic", r)
		}
	}()
	t.Tick(ctx)
}

// sleep waits for the interval, a wake signal or cancellation. It returns false on cancellation.
func (t *Task) sleep(ctx context.Context) bool {
	t.logger.DebugContext(ctx, "Sleeping", "interval", t.interval)

	timer := time.NewTimer(t.interval)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	case _, ok := <-t.wake:
		if !ok {
			// A closed wake channel would spin; fall back to the timer
			t.wake = nil
			select {
			case <-ctx.Done():
				return false
			case <-timer.C:
				return true
			}
		}
		t.logger.DebugContext(ctx, "Woken up early")
		return true
	}
}

// Tick performs one fetch, decide, render, write and reload cycle
func (t *Task) Tick(ctx context.Context) TickResult {
	result := TickResult{ID: uuid.NewString()}
	logger := t.logger.With("tick_id", result.ID)

	if t.tickTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.tickTimeout)
		defer cancel()
	}

	ctx, span := tracing.StartSpan(ctx, t.tracer, "confd.tick",
		trace.WithAttributes(
			tracing.AttrPlugin.String(t.Name()),
			tracing.AttrTickID.String(result.ID),
			tracing.AttrDestination.String(t.spec.Destination),
		),
	)
	defer span.End()

	t.markSyncing(result.ID)
	defer func() {
		t.finish(ctx, logger, span, &result)
	}()

	// Fetch
	data, err := t.fetch(ctx)
	if err != nil {
		result.Outcome = OutcomeFetchFailed
		result.Err = newError(OutcomeFetchFailed, err, "failed to fetch data")
		return result
	}
	if data == nil {
		data = map[string]any{}
	}

	// Decide
	templateText := ""
	if _, custom := t.plugin.(plugin.Renderer); !custom {
		templateText, err = t.loader.Load(t.spec.TemplateSource)
		if err != nil {
			t.state.LastData = data
			result.Outcome = OutcomeRenderFailed
			result.Err = newError(OutcomeRenderFailed, err, "failed to load template %s", t.spec.TemplateSource)
			return result
		}
	}

	result.Reason = Decide(&t.state, data, templateText)
	span.SetAttributes(tracing.AttrReason.String(result.Reason.String()))
	if !result.Reason.ShouldRender() {
		t.state.LastData = data
		result.Outcome = OutcomeSkip
		return result
	}

	start := time.Now()

	// Render
	output, err := t.render(ctx, templateText, data)
	if err != nil {
		t.state.LastData = data
		result.Outcome = OutcomeRenderFailed
		result.Err = newError(OutcomeRenderFailed, err, "failed to render %s", t.spec.TemplateSource)
		return result
	}

	// Write, with the check command gating activation when configured.
	// State keeps describing the active destination, so a rejected or unwritten
	// output is rendered and checked again on the next tick.
	if failure := t.write(ctx, logger, []byte(output)); failure != nil {
		result.Outcome = failure.Outcome
		result.Err = failure
		return result
	}

	renderedAt := time.Now()
	t.metrics.RecordRenderDuration(ctx, t.Name(), renderedAt.Sub(start))
	t.metrics.RecordLastRender(ctx, t.Name(), renderedAt)

	// Reload
	result.Reload = t.reload(ctx, logger)

	t.state.LastTemplate = &templateText
	t.state.LastData = data
	result.Outcome = OutcomeRender
	return result
}

// Preview fetches and renders once without touching the destination, the
// change detection state or the status store
func (t *Task) Preview(ctx context.Context) (string, error) {
	data, err := t.fetch(ctx)
	if err != nil {
		return "", newError(OutcomeFetchFailed, err, "failed to fetch data")
	}
	if data == nil {
		data = map[string]any{}
	}

	templateText := ""
	if _, custom := t.plugin.(plugin.Renderer); !custom {
		templateText, err = t.loader.Load(t.spec.TemplateSource)
		if err != nil {
			return "", newError(OutcomeRenderFailed, err, "failed to load template %s", t.spec.TemplateSource)
		}
	}

	output, err := t.render(ctx, templateText, data)
	if err != nil {
		return "", newError(OutcomeRenderFailed, err, "failed to render %s", t.spec.TemplateSource)
	}
	return output, nil
}

// fetch calls the plugin and converts a panic into an error
func (t *Task) fetch(ctx context.Context) (data map[string]any, err error) {
	defer recoverInto(&err)
	return t.plugin.Fetch(ctx)
}

// render uses the plugin's own renderer when it has one
func (t *Task) render(ctx context.Context, templateText string, data map[string]any) (output string, err error) {
	defer recoverInto(&err)
	if r, ok := t.plugin.(plugin.Renderer); ok {
		return r.Render(ctx, data)
	}
	return render.Render(t.spec.TemplateSource, templateText, data)
}

func (t *Task) write(ctx context.Context, logger *slog.Logger, content []byte) *Error {
	dest := t.spec.Destination

	if t.spec.CheckCommand == "" {
		if err := t.writer.Write(ctx, dest, content, t.spec.Mode); err != nil {
			return newError(OutcomeWriteFailed, err, "failed to write %s", dest)
		}
		return nil
	}

	staged, err := t.writer.Stage(ctx, dest, content, t.spec.Mode)
	if err != nil {
		return newError(OutcomeWriteFailed, err, "failed to stage %s", dest)
	}

	checkCtx, cancel := context.WithTimeout(ctx, t.checkTimeout)
	defer cancel()

	check := t.runner.Run(checkCtx, t.spec.CheckCommand)
	if !check.Success() {
		if err := t.writer.Discard(ctx, dest); err != nil {
			logger.WarnContext(ctx, "Failed to discard staged output", "staged", staged, "error", err)
		}
		return newError(OutcomeCheckFailed, check.Err, "check command rejected %s", staged)
	}
	logger.DebugContext(ctx, "Check command passed", "duration", check.Duration)

	if err := t.writer.Commit(ctx, dest); err != nil {
		return newError(OutcomeWriteFailed, err, "failed to activate %s", dest)
	}
	return nil
}

// reload starts the reload command and records its result once it exits
func (t *Task) reload(ctx context.Context, logger *slog.Logger) <-chan command.Result {
	forwarded := make(chan command.Result, 1)
	if t.spec.ReloadCommand == "" {
		close(forwarded)
		return forwarded
	}

	logger.InfoContext(ctx, "Running reload command", "command", t.spec.ReloadCommand)
	results := t.runner.Invoke(ctx, t.spec.ReloadCommand)

	recordCtx := context.WithoutCancel(ctx)
	go func() {
		defer close(forwarded)
		res, ok := <-results
		if !ok {
			return
		}
		if res.Success() {
			logger.DebugContext(recordCtx, "Reload command finished", "duration", res.Duration)
		} else {
			logger.WarnContext(recordCtx, "Reload command failed",
				"command", res.Command,
				"exit_code", res.ExitCode,
				"duration", res.Duration,
				"error", res.Err)
		}
		t.metrics.RecordReload(recordCtx, t.Name(), res.Success())
		t.updateStatus(recordCtx, func(st *status.PluginStatus) {
			now := time.Now()
			st.LastReload = &now
			st.LastReloadResult = reloadResult(res)
		})
		forwarded <- res
	}()

	return forwarded
}

func reloadResult(res command.Result) string {
	if res.Success() {
		return "success"
	}
	return fmt.Sprintf("failure: %v", res.Err)
}

func (t *Task) markSyncing(tickID string) {
	t.updateStatus(context.Background(), func(st *status.PluginStatus) {
		st.Phase = status.PhaseSyncing
		st.LastTickID = tickID
	})
}

// finish logs the tick and reports it to metrics, tracing and the status store
func (t *Task) finish(ctx context.Context, logger *slog.Logger, span trace.Span, result *TickResult) {
	outcome := result.Outcome
	span.SetAttributes(tracing.AttrOutcome.String(string(outcome)))
	t.metrics.RecordTick(ctx, t.Name(), string(outcome))

	switch {
	case result.Err != nil:
		tracing.RecordError(span, result.Err, result.Err.Message)
		logger.ErrorContext(ctx, "Tick failed",
			"outcome", outcome,
			"reason", result.Reason,
			"error", result.Err)
	case outcome == OutcomeRender:
		span.SetStatus(codes.Ok, "")
		logger.InfoContext(ctx, "Configuration rendered",
			"reason", result.Reason,
			"destination", t.spec.Destination)
	default:
		span.SetStatus(codes.Ok, "")
		logger.DebugContext(ctx, "Configuration up to date", "reason", result.Reason)
	}

	now := time.Now()
	t.updateStatus(ctx, func(st *status.PluginStatus) {
		st.TickCount++
		st.LastTick = &now
		st.LastTickID = result.ID
		st.LastOutcome = string(outcome)
		if result.Reason != "" {
			st.LastReason = result.Reason.String()
		}
		if result.Err != nil {
			st.Phase = status.PhaseFailed
			st.Message = result.Err.Message
			st.ConsecutiveFailures++
			return
		}
		st.Phase = status.PhaseComplete
		st.ConsecutiveFailures = 0
		if outcome == OutcomeRender {
			st.RenderCount++
			st.LastRender = &now
			st.Message = fmt.Sprintf("Rendered %s (%s)", t.spec.Destination, result.Reason)
		} else {
			st.Message = fmt.Sprintf("Skipped (%s)", result.Reason)
		}
	})
}

func (t *Task) updateStatus(ctx context.Context, fn func(*status.PluginStatus)) {
	if t.status == nil {
		return
	}
	if err := t.status.Update(t.Name(), fn); err != nil {
		t.logger.WarnContext(ctx, "Failed to update plugin status", "error", err)
	}
}
