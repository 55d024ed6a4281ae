package pipeline

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"

	"github.com/vbonduro/caloriesnap/internal/domain"
)

// ErrClosed is returned by Submit after Close.
var ErrClosed = errors.New("pipeline closed")

// ingestor is the subset of ingest.Ingestor that Orchestrator requires.
type ingestor interface {
	Ingest(declaredType string, r io.Reader) (*domain.ImageAsset, error)
}

// runner is the subset of Runner that Orchestrator requires.
type runner interface {
	Run(ctx context.Context, asset *domain.ImageAsset, progress func(domain.Stage)) (Result, error)
}

// Orchestrator owns the pipeline state for one user. Each Submit starts a new
// run; updates from any earlier run are discarded.
type Orchestrator struct {
	ingestor ingestor
	runner   runner
	logger   *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	state   domain.PipelineState
	subs    map[int]chan domain.PipelineState
	nextSub int
	closed  bool
}

func NewOrchestrator(ingestor ingestor, runner runner, logger *slog.Logger) *Orchestrator {
	ctx, cancel := context.WithCancel(context.Background())
	return &Orchestrator{
		ingestor: ingestor,
		runner:   runner,
		logger:   logger,
		ctx:      ctx,
		cancel:   cancel,
		state:    domain.PipelineState{Status: domain.StatusIdle},
		subs:     make(map[int]chan domain.PipelineState),
	}
}

// Submit validates the upload and, if it is an image, starts a run in the
// background. Validation errors are returned and also recorded as the state's
// Notice.
func (o *Orchestrator) Submit(declaredType string, r io.Reader) error {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return ErrClosed
	}
	runID := o.state.Run + 1
	o.setLocked(domain.PipelineState{Status: domain.StatusIdle, Run: runID})
	o.mu.Unlock()

	logger := o.logger.With("run_id", runID)

	asset, err := o.ingestor.Ingest(declaredType, r)
	if err != nil {
		logger.Info("upload rejected", "declared_type", declaredType, "error", err)
		o.apply(runID, domain.PipelineState{Status: domain.StatusIdle, Notice: err.Error()})
		return err
	}

	o.mu.Lock()
	if o.closed || o.state.Run != runID {
		o.mu.Unlock()
		logger.Debug("upload superseded before run started")
		return nil
	}
	o.setLocked(domain.PipelineState{Status: domain.StatusProcessing, Run: runID, Stage: domain.StageIdentifying})
	o.wg.Add(1)
	o.mu.Unlock()

	logger.Info("run started", "media_type", asset.MediaType())
	go o.execute(runID, asset, logger)
	return nil
}

func (o *Orchestrator) execute(runID uint64, asset *domain.ImageAsset, logger *slog.Logger) {
	defer o.wg.Done()

	progress := func(stage domain.Stage) {
		o.apply(runID, domain.PipelineState{Status: domain.StatusProcessing, Stage: stage})
	}

	res, err := o.runner.Run(o.ctx, asset, progress)
	if err != nil {
		msg := "Failed to identify food items: " + err.Error()
		var se *StageError
		if errors.As(err, &se) {
			msg = se.Message()
		}
		logger.Warn("run failed", "error", err)
		o.apply(runID, domain.PipelineState{Status: domain.StatusFailed, Error: msg})
		return
	}

	logger.Info("run succeeded", "items", len(res.Items), "estimated", res.Estimate != nil)
	o.apply(runID, domain.PipelineState{
		Status:    domain.StatusSucceeded,
		FoodItems: res.Items,
		Estimate:  res.Estimate,
	})
}

// apply installs next as the current state if runID is still the latest run.
func (o *Orchestrator) apply(runID uint64, next domain.PipelineState) bool {
	o.mu.Lock()
	defer o.mu.Unlock()

	if runID != o.state.Run {
		o.logger.Debug("update dropped", "run_id", runID, "current_run", o.state.Run,
			"status", next.Status, "error", domain.ErrStaleResponse)
		return false
	}
	next.Run = runID
	o.setLocked(next)
	return true
}

// setLocked must be called with mu held.
func (o *Orchestrator) setLocked(next domain.PipelineState) {
	o.state = next.Clone()
	for _, ch := range o.subs {
		publish(ch, o.state.Clone())
	}
}

// publish replaces any undelivered snapshot in ch with s. Only the
// orchestrator sends on ch, and always under mu, so the second send never
// blocks.
func publish(ch chan domain.PipelineState, s domain.PipelineState) {
	select {
	case ch <- s:
	default:
		select {
		case <-ch:
		default:
		}
		ch <- s
	}
}

// State returns a snapshot of the current state.
func (o *Orchestrator) State() domain.PipelineState {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state.Clone()
}

// Subscribe returns a channel that receives the current state immediately and
// then every change. A slow reader only ever sees the latest snapshot. The
// channel is closed by the returned func or by Close.
func (o *Orchestrator) Subscribe() (<-chan domain.PipelineState, func()) {
	ch := make(chan domain.PipelineState, 1)

	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		close(ch)
		return ch, func() {}
	}
	id := o.nextSub
	o.nextSub++
	o.subs[id] = ch
	ch <- o.state.Clone()

	return ch, func() {
		o.mu.Lock()
		defer o.mu.Unlock()
		if c, ok := o.subs[id]; ok {
			delete(o.subs, id)
			close(c)
		}
	}
}

// Close cancels in-flight runs, waits for them to return and closes every
// subscriber channel. It is safe to call more than once.
func (o *Orchestrator) Close() {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return
	}
	o.closed = true
	o.mu.Unlock()

	o.cancel()
	o.wg.Wait()

	o.mu.Lock()
	defer o.mu.Unlock()
	for id, ch := range o.subs {
		delete(o.subs, id)
		close(ch)
	}
}
