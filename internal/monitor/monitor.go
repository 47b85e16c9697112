// Package monitor runs the fixed-delay poll loop that keeps the container and
// transfer collections fresh and renders a snapshot after every cycle.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/whole-tale/girder-wt-data-manager/internal/collection"
	"github.com/whole-tale/girder-wt-data-manager/internal/constants"
	"github.com/whole-tale/girder-wt-data-manager/internal/events"
	"github.com/whole-tale/girder-wt-data-manager/internal/logging"
	"github.com/whole-tale/girder-wt-data-manager/internal/metrics"
	"github.com/whole-tale/girder-wt-data-manager/internal/models"
	"github.com/whole-tale/girder-wt-data-manager/internal/transfer"
)

// Collection names, as used in events, logs and metrics.
const (
	ContainersName = "containers"
	TransfersName  = "transfers"
)

// State is the monitor's lifecycle state.
type State int

const (
	StateIdle State = iota
	StatePolling
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StatePolling:
		return "polling"
	case StateStopped:
		return "stopped"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

var (
	ErrAlreadyStarted = errors.New("monitor is already running")
	ErrStopped        = errors.New("monitor has been stopped")
)

// Source lists the remote resources. *api.Client satisfies it.
type Source interface {
	ListContainers(ctx context.Context) ([]models.ContainerRecord, error)
	ListTransfers(ctx context.Context, sessionID string) ([]models.TransferRecord, error)
}

// Snapshot is what one cycle hands to the Renderer.
type Snapshot struct {
	Generation  uint64 // cycle number, starting at 1
	Containers  []models.ContainerRecord
	Transfers   []models.AnnotatedTransfer
	Errors      []error // refresh and annotation failures of this cycle
	Placeholder bool    // the synthetic transfer was injected
	At          time.Time
}

// Renderer displays a snapshot. Render must not call Monitor.Stop.
type Renderer interface {
	Render(Snapshot) error
}

// RendererFunc adapts a function to Renderer.
type RendererFunc func(Snapshot) error

func (f RendererFunc) Render(s Snapshot) error { return f(s) }

// Options configures a Monitor.
type Options struct {
	// Interval is the delay between the end of one cycle and the start of
	// the next. Defaults to constants.DefaultPollInterval.
	Interval time.Duration

	// Placeholder injects a synthetic transfer into rendered snapshots when
	// the listing is empty or does not already start with it.
	Placeholder bool

	// SessionID restricts transfers to one session.
	SessionID string

	Clock   Clock
	Bus     *events.EventBus
	Metrics *metrics.Metrics
	Logger  *logging.Logger
}

// Monitor owns the container and transfer collections and drives the poll loop.
type Monitor struct {
	containers *collection.Collection[models.ContainerRecord]
	transfers  *collection.Collection[models.TransferRecord]
	renderer   Renderer
	opts       Options
	log        *logging.Logger

	mu         sync.Mutex
	state      State
	timer      Timer
	ctx        context.Context
	cancel     context.CancelFunc
	inflight   sync.WaitGroup
	generation uint64
	done       chan struct{}
}

// New creates an idle monitor.
func New(src Source, r Renderer, opts Options) *Monitor {
	if opts.Interval <= 0 {
		opts.Interval = constants.DefaultPollInterval
	}
	if opts.Clock == nil {
		opts.Clock = RealClock()
	}
	log := opts.Logger
	if log == nil {
		log = logging.NewNopLogger()
	}
	sessionID := opts.SessionID

	return &Monitor{
		containers: collection.New(ContainersName, src.ListContainers, opts.Bus),
		transfers: collection.New(TransfersName, func(ctx context.Context) ([]models.TransferRecord, error) {
			return src.ListTransfers(ctx, sessionID)
		}, opts.Bus),
		renderer: r,
		opts:     opts,
		log:      log.Named("monitor"),
		done:     make(chan struct{}),
	}
}

// Containers returns the container collection.
func (m *Monitor) Containers() *collection.Collection[models.ContainerRecord] { return m.containers }

// Transfers returns the transfer collection.
func (m *Monitor) Transfers() *collection.Collection[models.TransferRecord] { return m.transfers }

// State returns the current lifecycle state.
func (m *Monitor) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Done is closed once the monitor has stopped and no cycle is running.
func (m *Monitor) Done() <-chan struct{} { return m.done }

// Start moves the monitor from idle to polling and schedules the first
// cycle immediately. Cancelling ctx stops the monitor.
func (m *Monitor) Start(ctx context.Context) error {
	m.mu.Lock()
	switch m.state {
	case StatePolling:
		m.mu.Unlock()
		return ErrAlreadyStarted
	case StateStopped:
		m.mu.Unlock()
		return ErrStopped
	}

	m.ctx, m.cancel = context.WithCancel(ctx)
	m.state = StatePolling
	m.timer = m.opts.Clock.AfterFunc(0, m.runCycle)
	m.mu.Unlock()

	m.log.Info().
		Dur("interval", m.opts.Interval).
		Bool("placeholder", m.opts.Placeholder).
		Msg("Monitor starting")
	m.opts.Bus.PublishStateChange(StateIdle.String(), StatePolling.String())

	go func() {
		<-m.ctx.Done()
		m.Stop()
	}()
	return nil
}

// Stop disarms the pending cycle, cancels any in-flight refresh and waits
// for the running cycle to finish. It is safe to call more than once.
func (m *Monitor) Stop() {
	m.mu.Lock()
	if m.state == StateStopped {
		m.mu.Unlock()
		return
	}
	prev := m.state
	m.state = StateStopped
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
	if m.cancel != nil {
		m.cancel()
	}
	m.mu.Unlock()

	m.inflight.Wait()

	m.log.Info().Uint64("cycles", m.Generation()).Msg("Monitor stopped")
	m.opts.Bus.PublishStateChange(prev.String(), StateStopped.String())
	close(m.done)
}

// Generation returns the number of cycles run so far.
func (m *Monitor) Generation() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.generation
}

// runCycle is the timer callback. The next cycle is armed only after this
// one completes, so cycles never overlap.
func (m *Monitor) runCycle() {
	m.mu.Lock()
	if m.state != StatePolling {
		m.mu.Unlock()
		return
	}
	m.inflight.Add(1)
	ctx := m.ctx
	m.mu.Unlock()

	_, _ = m.Tick(ctx)

	m.mu.Lock()
	if m.state == StatePolling {
		m.timer = m.opts.Clock.AfterFunc(m.opts.Interval, m.runCycle)
	}
	m.mu.Unlock()
	m.inflight.Done()
}

// Tick runs one cycle: refresh both collections concurrently, build the
// snapshot and render it. Refresh failures are reported and recorded in the
// snapshot; the collections keep their previous records. The returned error
// joins every failure of the cycle.
func (m *Monitor) Tick(ctx context.Context) (Snapshot, error) {
	start := m.opts.Clock.Now()

	m.mu.Lock()
	m.generation++
	gen := m.generation
	m.mu.Unlock()

	var containersErr, transfersErr error
	var g errgroup.Group
	g.Go(func() error {
		containersErr = m.refresh(ctx, ContainersName, m.containers.Refresh, m.containers.Len)
		return nil
	})
	g.Go(func() error {
		transfersErr = m.refresh(ctx, TransfersName, m.transfers.Refresh, m.transfers.Len)
		return nil
	})
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return Snapshot{Generation: gen, At: start}, err
	}

	var refreshErrs []error
	for _, err := range []error{containersErr, transfersErr} {
		if err != nil {
			refreshErrs = append(refreshErrs, err)
		}
	}
	snap := m.snapshot(gen, start)
	snap.Errors = append(refreshErrs, snap.Errors...)

	errs := append([]error(nil), snap.Errors...)
	if err := m.renderer.Render(snap); err != nil {
		m.log.Error().Err(err).Uint64("cycle", gen).Msg("Render failed")
		errs = append(errs, fmt.Errorf("render: %w", err))
	}

	elapsed := m.opts.Clock.Now().Sub(start)
	summary := transfer.Summarize(snap.Transfers)
	byStatus := make(map[string]int, len(summary.ByStatus))
	for status, n := range summary.ByStatus {
		byStatus[status.String()] = n
	}
	m.opts.Metrics.ObserveTick(elapsed, byStatus)
	m.opts.Bus.Publish(&events.TickEvent{
		BaseEvent:  events.BaseEvent{EventType: events.EventTick, Time: start},
		Generation: gen,
		Containers: len(snap.Containers),
		Transfers:  len(snap.Transfers),
		Errors:     len(snap.Errors),
		Duration:   elapsed,
	})

	return snap, errors.Join(errs...)
}

func (m *Monitor) refresh(ctx context.Context, name string, refresh func(context.Context) error, size func() int) error {
	start := m.opts.Clock.Now()
	err := refresh(ctx)
	m.opts.Metrics.ObserveRefresh(name, m.opts.Clock.Now().Sub(start), size(), err)
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		// Stopping; not a server failure
		return err
	}

	m.log.Warn().Err(err).Str("collection", name).Msg("Refresh failed, keeping previous records")
	m.opts.Bus.PublishRefreshFailed(name, err)
	return err
}

// snapshot builds the view state from the collections' current records.
func (m *Monitor) snapshot(gen uint64, at time.Time) Snapshot {
	snap := Snapshot{
		Generation: gen,
		Containers: m.containers.All(),
		At:         at,
	}

	recs := m.transfers.All()
	if m.opts.Placeholder && needsPlaceholder(recs) {
		recs = append([]models.TransferRecord{PlaceholderTransfer()}, recs...)
		snap.Placeholder = true
	}

	annotated, errs := transfer.AnnotateAll(recs)
	for _, err := range errs {
		m.log.Error().Err(err).Msg("Dropping transfer that cannot be annotated")
	}
	snap.Transfers = annotated
	snap.Errors = append(snap.Errors, errs...)
	return snap
}

func needsPlaceholder(recs []models.TransferRecord) bool {
	return len(recs) == 0 || recs[0].ID != constants.PlaceholderTransferID
}

// PlaceholderTransfer returns the synthetic record shown when placeholder
// data is enabled: half of a 100 byte transfer in progress.
func PlaceholderTransfer() models.TransferRecord {
	size, transferred := int64(100), int64(50)
	return models.TransferRecord{
		ID:          constants.PlaceholderTransferID,
		Status:      models.TransferTransferring,
		Size:        &size,
		Transferred: &transferred,
		Path:        constants.PlaceholderPath,
	}
}
