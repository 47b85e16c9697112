// Package dispatch sends one-shot commands to the data manager and reports
// their outcome on the event bus. It never touches the monitor's collections;
// the next poll cycle observes whatever a command changed.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"

	"github.com/whole-tale/girder-wt-data-manager/internal/api"
	"github.com/whole-tale/girder-wt-data-manager/internal/events"
	"github.com/whole-tale/girder-wt-data-manager/internal/logging"
	"github.com/whole-tale/girder-wt-data-manager/internal/metrics"
)

// Kind identifies a command.
type Kind string

const (
	KindCreateContainer Kind = "create_container"
	KindStartContainer  Kind = "start_container"
	KindStopContainer   Kind = "stop_container"
	KindRemoveContainer Kind = "remove_container"
	KindDeleteSessions  Kind = "delete_sessions"
	KindCreateTestItems Kind = "create_test_items"
)

// completions maps each kind to the name of its completion event.
var completions = map[Kind]string{
	KindCreateContainer: "container_created",
	KindStartContainer:  "container_started",
	KindStopContainer:   "container_stopped",
	KindRemoveContainer: "container_removed",
	KindDeleteSessions:  "sessions_deleted",
	KindCreateTestItems: "test_items_created",
}

var (
	ErrUnknownCommand = errors.New("unknown command")
	ErrMissingID      = errors.New("container id is required")
)

// Command is one request to the data manager. ID is used by the container
// lifecycle commands, DataSet by create.
type Command struct {
	Kind    Kind
	ID      string
	DataSet string
}

func CreateContainer(dataSet string) Command { return Command{Kind: KindCreateContainer, DataSet: dataSet} }
func StartContainer(id string) Command       { return Command{Kind: KindStartContainer, ID: id} }
func StopContainer(id string) Command        { return Command{Kind: KindStopContainer, ID: id} }
func RemoveContainer(id string) Command      { return Command{Kind: KindRemoveContainer, ID: id} }
func DeleteSessions() Command                { return Command{Kind: KindDeleteSessions} }
func CreateTestItems() Command               { return Command{Kind: KindCreateTestItems} }

// CompletionEvent returns the name published when the command succeeds.
func (c Command) CompletionEvent() string { return completions[c.Kind] }

// Validate checks that the command is known and has the arguments it needs.
func (c Command) Validate() error {
	if _, ok := completions[c.Kind]; !ok {
		return fmt.Errorf("%w: %q", ErrUnknownCommand, c.Kind)
	}
	switch c.Kind {
	case KindStartContainer, KindStopContainer, KindRemoveContainer:
		if c.ID == "" {
			return fmt.Errorf("%s: %w", c.Kind, ErrMissingID)
		}
	}
	return nil
}

func (c Command) String() string {
	if c.ID != "" {
		return string(c.Kind) + " " + c.ID
	}
	return string(c.Kind)
}

// Client is the subset of *api.Client the dispatcher uses.
type Client interface {
	CreateContainer(ctx context.Context, dataSet string) (*api.Response, error)
	StartContainer(ctx context.Context, id string) (*api.Response, error)
	StopContainer(ctx context.Context, id string) (*api.Response, error)
	RemoveContainer(ctx context.Context, id string) (*api.Response, error)
	DeleteSessions(ctx context.Context) (*api.Response, error)
	CreateTestItems(ctx context.Context) (*api.Response, error)
}

// Result is the outcome of a successful command.
type Result struct {
	Command    Command
	Event      string
	StatusCode int
	Body       json.RawMessage
}

// Options configures a Dispatcher. All fields are optional.
type Options struct {
	Bus     *events.EventBus
	Metrics *metrics.Metrics
	Logger  *logging.Logger
}

// Dispatcher sends commands. It is safe for concurrent use.
type Dispatcher struct {
	client  Client
	bus     *events.EventBus
	metrics *metrics.Metrics
	log     *logging.Logger
}

// New creates a dispatcher over client.
func New(client Client, opts Options) *Dispatcher {
	log := opts.Logger
	if log == nil {
		log = logging.NewNopLogger()
	}
	return &Dispatcher{
		client:  client,
		bus:     opts.Bus,
		metrics: opts.Metrics,
		log:     log.Named("dispatch"),
	}
}

// Send issues exactly one request for cmd. On success it publishes a
// command_completed event carrying the response body. On failure it publishes
// command_failed and, when the server sent a structured error, logs each
// trace frame.
func (d *Dispatcher) Send(ctx context.Context, cmd Command) (Result, error) {
	if err := cmd.Validate(); err != nil {
		return Result{}, err
	}

	resp, err := d.do(ctx, cmd)
	d.metrics.ObserveCommand(string(cmd.Kind), err)
	if err != nil {
		return Result{}, d.fail(cmd, err)
	}

	res := Result{
		Command:    cmd,
		Event:      cmd.CompletionEvent(),
		StatusCode: resp.StatusCode,
		Body:       resp.Body,
	}
	d.log.Info().
		Str("command", string(cmd.Kind)).
		Str("id", cmd.ID).
		Int("status", resp.StatusCode).
		Msg(res.Event)
	d.bus.Publish(&events.CommandCompletedEvent{
		BaseEvent:  events.BaseEvent{EventType: events.EventCommandCompleted, Time: time.Now()},
		Command:    string(cmd.Kind),
		Name:       res.Event,
		TargetID:   cmd.ID,
		StatusCode: resp.StatusCode,
		Body:       resp.Body,
	})
	return res, nil
}

func (d *Dispatcher) do(ctx context.Context, cmd Command) (*api.Response, error) {
	switch cmd.Kind {
	case KindCreateContainer:
		return d.client.CreateContainer(ctx, cmd.DataSet)
	case KindStartContainer:
		return d.client.StartContainer(ctx, cmd.ID)
	case KindStopContainer:
		return d.client.StopContainer(ctx, cmd.ID)
	case KindRemoveContainer:
		return d.client.RemoveContainer(ctx, cmd.ID)
	case KindDeleteSessions:
		return d.client.DeleteSessions(ctx)
	case KindCreateTestItems:
		return d.client.CreateTestItems(ctx)
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownCommand, cmd.Kind)
}

// fail reports a failed command and returns the error handed to the caller.
func (d *Dispatcher) fail(cmd Command, err error) error {
	ev := &events.CommandFailedEvent{
		BaseEvent: events.BaseEvent{EventType: events.EventCommandFailed, Time: time.Now()},
		Command:   string(cmd.Kind),
		TargetID:  cmd.ID,
		Error:     err,
	}

	apiErr, ok := api.AsError(err)
	if ok {
		ev.StatusCode = apiErr.StatusCode
	}
	if ok && apiErr.Structured() {
		ev.Message = apiErr.Message
		ev.Trace = apiErr.TraceLines()

		d.log.Error().
			Str("command", string(cmd.Kind)).
			Str("id", cmd.ID).
			Int("status", apiErr.StatusCode).
			Str("type", apiErr.Type).
			Msg(apiErr.Message)
		for _, line := range ev.Trace {
			d.log.Error().Bool("trace", true).Msg(line)
		}
		d.bus.Publish(ev)
		return fmt.Errorf("%s failed: %w", cmd, err)
	}

	d.log.Error().Err(err).Str("command", string(cmd.Kind)).Str("id", cmd.ID).Msg("Command failed")
	d.bus.Publish(ev)
	return fmt.Errorf("%s failed: %w", cmd, err)
}
