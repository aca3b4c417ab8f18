// Package snippet interrupts a zone to play a short notification and then
// restores what was playing before.
package snippet

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/strefethen/sonos-broker-go/internal/metrics"
	"github.com/strefethen/sonos-broker-go/internal/speaker"
)

const (
	// DefaultTimeout bounds the wait for the notification to finish.
	DefaultTimeout = 120 * time.Second

	// unwindTimeout bounds the restore stages once the wait is over.
	unwindTimeout = 30 * time.Second
)

// ErrInvalidRequest is returned for a request without a uri.
var ErrInvalidRequest = errors.New("snippet request requires a uri")

// Step names one stage of an override.
type Step string

const (
	StepSnapshot       Step = "snapshot"
	StepStopCurrent    Step = "stop_current"
	StepSetVolume      Step = "set_volume"
	StepPlay           Step = "play"
	StepWait           Step = "wait"
	StepStopMembers    Step = "stop_members"
	StepRestore        Step = "restore"
	StepRestoreVolumes Step = "restore_volumes"
)

// End reasons of the wait stage.
const (
	EndFinished  = "finished"
	EndStopped   = "stopped"
	EndTimeout   = "timeout"
	EndCancelled = "cancelled"
	EndSkipped   = "skipped"
)

// Request describes one override.
type Request struct {
	URI string `json:"uri"`
	// Volume for the notification. -1 keeps the current volume.
	Volume       int           `json:"volume"`
	GroupCommand bool          `json:"group_command"`
	FadeIn       bool          `json:"fade_in"`
	Timeout      time.Duration `json:"-"`
}

// Execution records how an override went. Failures are listed here rather
// than returned.
type Execution struct {
	ID           string    `json:"id"`
	ZoneUID      string    `json:"zone_uid"`
	RequestedUID string    `json:"requested_uid"`
	URI          string    `json:"uri"`
	StartedAt    time.Time `json:"started_at"`
	FinishedAt   time.Time `json:"finished_at"`
	Steps        []Step    `json:"steps"`
	Errors       []string  `json:"errors,omitempty"`
	EndReason    string    `json:"end_reason"`
}

func (e *Execution) step(s Step) {
	e.Steps = append(e.Steps, s)
}

type waiter struct {
	done       chan string
	once       sync.Once
	mu         sync.Mutex
	sawPlaying bool
}

func (w *waiter) finish(reason string) {
	w.once.Do(func() {
		w.done <- reason
		close(w.done)
	})
}

// Controller runs overrides, at most one per zone at a time.
type Controller struct {
	registry *speaker.Registry
	lock     *ZoneLock
	timeout  time.Duration
	logger   *log.Logger

	mu      sync.Mutex
	waiters map[string]*waiter
	last    map[string]*Execution
}

// NewController creates a controller. timeout <= 0 uses DefaultTimeout.
func NewController(registry *speaker.Registry, timeout time.Duration, logger *log.Logger) *Controller {
	if logger == nil {
		logger = log.Default()
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Controller{
		registry: registry,
		lock:     NewZoneLock(logger),
		timeout:  timeout,
		logger:   logger,
		waiters:  make(map[string]*waiter),
		last:     make(map[string]*Execution),
	}
}

// Lock exposes the zone lock for status reporting.
func (c *Controller) Lock() *ZoneLock { return c.lock }

// Play runs an override on the zone of uid. It blocks while another override
// holds the zone. Only lookup, validation and lock errors are returned.
func (c *Controller) Play(ctx context.Context, uid string, req Request) (*Execution, error) {
	if req.URI == "" {
		return nil, ErrInvalidRequest
	}
	target, err := c.registry.Lookup(uid)
	if err != nil {
		return nil, err
	}
	zone := target.CoordinatorUID()
	exec := &Execution{
		ID:           uuid.NewString(),
		ZoneUID:      zone,
		RequestedUID: target.UID(),
		URI:          req.URI,
	}

	err = c.lock.WithLock(ctx, zone, exec.ID, func() error {
		c.run(ctx, target, req, exec)
		return nil
	})
	if err != nil {
		metrics.SnippetRuns.WithLabelValues("lock_timeout").Inc()
		return nil, err
	}

	c.mu.Lock()
	c.last[zone] = exec
	c.mu.Unlock()
	return exec, nil
}

func (c *Controller) run(ctx context.Context, target *speaker.Speaker, req Request, exec *Execution) {
	exec.StartedAt = time.Now()
	defer func() {
		exec.FinishedAt = time.Now()
		metrics.SnippetDuration.Observe(exec.FinishedAt.Sub(exec.StartedAt).Seconds())
		metrics.SnippetRuns.WithLabelValues(metrics.Result(joinErrors(exec.Errors))).Inc()
		c.logger.Printf("SNIPPET: %s on zone %s ended (%s) after %v with %d errors",
			exec.ID, exec.ZoneUID, exec.EndReason, exec.FinishedAt.Sub(exec.StartedAt).Round(time.Millisecond), len(exec.Errors))
	}()

	coord := target.Coordinator()
	var members []*speaker.Speaker
	for _, uid := range coord.Members() {
		if m := c.registry.Get(uid); m != nil {
			members = append(members, m)
		}
	}
	volumeTargets := []*speaker.Speaker{target}
	if req.GroupCommand {
		volumeTargets = append([]*speaker.Speaker{coord}, members...)
	}
	saved := make(map[string]int, len(volumeTargets))
	for _, s := range volumeTargets {
		saved[s.UID()] = s.GetInt(speaker.PropVolume)
	}
	fail := func(step Step, err error) {
		exec.Errors = append(exec.Errors, fmt.Sprintf("%s: %v", step, err))
		c.logger.Printf("SNIPPET: %s %s on %s: %v", exec.ID, step, exec.ZoneUID, err)
	}

	exec.step(StepSnapshot)
	snap, err := coord.Device().Snapshot(ctx)
	if err != nil {
		fail(StepSnapshot, err)
	}

	exec.step(StepStopCurrent)
	if err := coord.Set(ctx, speaker.PropStop, true, speaker.SetOptions{Trigger: true}); err != nil {
		fail(StepStopCurrent, err)
	}

	if req.Volume >= 0 {
		exec.step(StepSetVolume)
		for _, s := range volumeTargets {
			if err := s.Set(ctx, speaker.PropVolume, req.Volume, speaker.SetOptions{Trigger: true}); err != nil {
				fail(StepSetVolume, err)
			}
		}
	}

	w := c.register(exec.ZoneUID)
	exec.step(StepPlay)
	if err := coord.PlayURI(ctx, req.URI); err != nil {
		fail(StepPlay, err)
		exec.EndReason = EndSkipped
	} else {
		exec.step(StepWait)
		exec.EndReason = c.wait(ctx, w, req.Timeout)
	}
	c.unregister(exec.ZoneUID, w)

	unwind, cancel := context.WithTimeout(context.WithoutCancel(ctx), unwindTimeout)
	defer cancel()

	exec.step(StepStopMembers)
	for _, m := range members {
		if err := m.Device().Stop(unwind); err != nil {
			fail(StepStopMembers, fmt.Errorf("%s: %w", m.UID(), err))
		}
	}
	if err := coord.Device().Stop(unwind); err != nil {
		fail(StepStopMembers, fmt.Errorf("%s: %w", coord.UID(), err))
	}

	if snap != nil {
		exec.step(StepRestore)
		if err := coord.Device().Restore(unwind, snap); err != nil {
			fail(StepRestore, err)
		}
	}

	exec.step(StepRestoreVolumes)
	for _, s := range volumeTargets {
		if err := restoreVolume(unwind, s, saved[s.UID()], req.FadeIn); err != nil {
			fail(StepRestoreVolumes, err)
		}
	}
}

func restoreVolume(ctx context.Context, s *speaker.Speaker, volume int, fadeIn bool) error {
	if !fadeIn {
		return s.Set(ctx, speaker.PropVolume, volume, speaker.SetOptions{Trigger: true})
	}
	if err := s.Set(ctx, speaker.PropVolume, 0, speaker.SetOptions{Trigger: true}); err != nil {
		return err
	}
	if err := s.Device().RampVolume(ctx, volume); err != nil {
		return &speaker.ActionError{Op: "ramp volume", UID: s.UID(), Err: err}
	}
	return s.Set(ctx, speaker.PropVolume, volume, speaker.SetOptions{})
}

func (c *Controller) wait(ctx context.Context, w *waiter, timeout time.Duration) string {
	if timeout <= 0 {
		timeout = c.timeout
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case reason := <-w.done:
		return reason
	case <-ctx.Done():
		return EndCancelled
	case <-timer.C:
		return EndTimeout
	}
}

func (c *Controller) register(zone string) *waiter {
	w := &waiter{done: make(chan string, 1)}
	c.mu.Lock()
	c.waiters[zone] = w
	c.mu.Unlock()
	return w
}

func (c *Controller) unregister(zone string, w *waiter) {
	c.mu.Lock()
	if c.waiters[zone] == w {
		delete(c.waiters, zone)
	}
	c.mu.Unlock()
}

func (c *Controller) waiterFor(uid string) *waiter {
	zone := speaker.NormalizeUID(uid)
	if s := c.registry.Get(uid); s != nil {
		zone = s.CoordinatorUID()
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.waiters[zone]
}

// Stop ends the wait of an override running on the zone of uid.
// It reports whether an override was waiting.
func (c *Controller) Stop(uid string) bool {
	w := c.waiterFor(uid)
	if w == nil {
		return false
	}
	w.finish(EndStopped)
	return true
}

// ObserveTransport feeds coordinator transport states to a waiting override.
// The wait ends once the notification has played and then stopped.
func (c *Controller) ObserveTransport(uid, state string) {
	w := c.waiterFor(uid)
	if w == nil {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	switch state {
	case speaker.TransportPlaying:
		w.sawPlaying = true
	case speaker.TransportStopped, speaker.TransportPaused:
		if w.sawPlaying {
			w.finish(EndFinished)
		}
	}
}

// Running reports whether an override holds the zone of uid.
func (c *Controller) Running(uid string) bool {
	zone := speaker.NormalizeUID(uid)
	if s := c.registry.Get(uid); s != nil {
		zone = s.CoordinatorUID()
	}
	return c.lock.IsLocked(zone)
}

// Last returns the most recent finished override of a zone.
func (c *Controller) Last(zone string) *Execution {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.last[speaker.NormalizeUID(zone)]
}

func joinErrors(msgs []string) error {
	if len(msgs) == 0 {
		return nil
	}
	errs := make([]error, len(msgs))
	for i, m := range msgs {
		errs[i] = errors.New(m)
	}
	return errors.Join(errs...)
}
