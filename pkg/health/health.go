// Package health serves the liveness and readiness endpoints of the back office.
//
// Checks run in the background and flip state only after a run of
// consecutive results, so a single slow ping does not take the instance out
// of rotation. Readiness additionally follows the serving state: an instance
// is not ready while starting or draining, regardless of its checks.
package health

import (
	"context"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"golang.org/x/sync/errgroup"
)

// CheckFunc reports whether a dependency is usable. A nil error means healthy.
type CheckFunc func(ctx context.Context) error

// Kind selects the endpoint a check contributes to.
type Kind uint8

const (
	// Liveness checks decide whether the process should be restarted.
	Liveness Kind = iota
	// Readiness checks decide whether the instance receives traffic.
	Readiness
)

// State is the serving state of the instance.
type State uint8

const (
	StateStarting State = iota
	StateServing
	StateDraining
)

func (s State) String() string {
	switch s {
	case StateServing:
		return "serving"
	case StateDraining:
		return "draining"
	default:
		return "starting"
	}
}

// Check describes a registered check.
type Check struct {
	Name    string
	Kind    Kind
	Timeout time.Duration
	Func    CheckFunc
	// FailAfter consecutive failures mark the check unhealthy. Defaults to 3.
	FailAfter int
	// RecoverAfter consecutive passes mark it healthy again. Defaults to 1.
	RecoverAfter int
	// Required checks report unhealthy until their first pass.
	Required bool
}

type checkState struct {
	Check

	healthy bool
	lastErr error
	fails   int
	passes  int
}

// Health tracks check results and the serving state.
type Health struct {
	interval time.Duration

	mu     sync.RWMutex
	state  State
	checks []*checkState
}

// New returns a Health in StateStarting that runs checks every interval.
func New(interval time.Duration) *Health {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	return &Health{interval: interval}
}

// Register adds a check. Checks registered after Run has started are
// reported but never executed.
func (h *Health) Register(c Check) {
	if c.Timeout <= 0 {
		c.Timeout = time.Second
	}
	if c.FailAfter < 1 {
		c.FailAfter = 3
	}
	if c.RecoverAfter < 1 {
		c.RecoverAfter = 1
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.checks = append(h.checks, &checkState{Check: c, healthy: !c.Required})
}

// Serving marks the instance as accepting traffic.
func (h *Health) Serving() { h.setState(StateServing) }

// Drain marks the instance as shutting down. Readiness fails from now on.
func (h *Health) Drain() { h.setState(StateDraining) }

func (h *Health) setState(s State) {
	h.mu.Lock()
	h.state = s
	h.mu.Unlock()
}

// State returns the current serving state.
func (h *Health) State() State {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.state
}

// Run executes every registered check on its own ticker until ctx is done.
func (h *Health) Run(ctx context.Context) error {
	h.mu.RLock()
	checks := slices.Clone(h.checks)
	h.mu.RUnlock()

	g, ctx := errgroup.WithContext(ctx)
	for _, p := range checks {
		g.Go(func() error {
			ticker := time.NewTicker(h.interval)
			defer ticker.Stop()
			for {
				h.runOnce(ctx, p)
				select {
				case <-ctx.Done():
					return nil
				case <-ticker.C:
				}
			}
		})
	}
	return g.Wait()
}

func (h *Health) runOnce(ctx context.Context, p *checkState) {
	checkCtx, cancel := context.WithTimeout(ctx, p.Timeout)
	err := p.Func(checkCtx)
	cancel()
	if err != nil && ctx.Err() != nil {
		// Shutdown interrupted the check; keep the last verdict.
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	p.lastErr = err
	if err != nil {
		p.passes = 0
		p.fails++
		if p.fails >= p.FailAfter {
			p.healthy = false
		}
		return
	}
	p.fails = 0
	p.passes++
	if p.passes >= p.RecoverAfter {
		p.healthy = true
	}
}

// Report is a snapshot of one endpoint.
type Report struct {
	State State
	// Checks maps check names to "ok" or the failure reason.
	Checks  map[string]string
	Healthy bool
}

// Snapshot returns the current verdict for kind. Readiness also requires
// StateServing.
func (h *Health) Snapshot(kind Kind) Report {
	h.mu.RLock()
	defer h.mu.RUnlock()

	rep := Report{State: h.state, Checks: make(map[string]string), Healthy: true}
	for _, p := range h.checks {
		if p.Kind != kind {
			continue
		}
		switch {
		case p.healthy:
			rep.Checks[p.Name] = "ok"
		case p.lastErr != nil:
			rep.Checks[p.Name] = p.lastErr.Error()
			rep.Healthy = false
		default:
			rep.Checks[p.Name] = "not checked yet"
			rep.Healthy = false
		}
	}
	if kind == Readiness && h.state != StateServing {
		rep.Healthy = false
	}
	return rep
}

// ServeLive serves /livez.
func (h *Health) ServeLive(w http.ResponseWriter, _ *http.Request) {
	writeReport(w, h.Snapshot(Liveness), "Alive.", "Unhealthy.")
}

// ServeReady serves /readyz.
func (h *Health) ServeReady(w http.ResponseWriter, _ *http.Request) {
	rep := h.Snapshot(Readiness)
	failMsg := "Unhealthy."
	switch rep.State {
	case StateStarting:
		failMsg = "Starting."
	case StateDraining:
		failMsg = "Draining."
	}
	writeReport(w, rep, "Ready.", failMsg)
}

// writeReport encodes rep in the API envelope.
func writeReport(w http.ResponseWriter, rep Report, okMsg, failMsg string) {
	e := jx.GetEncoder()
	defer jx.PutEncoder(e)

	status, msg := http.StatusOK, okMsg
	if !rep.Healthy {
		status, msg = http.StatusServiceUnavailable, failMsg
	}

	names := make([]string, 0, len(rep.Checks))
	for name := range rep.Checks {
		names = append(names, name)
	}
	slices.Sort(names)

	e.Obj(func(e *jx.Encoder) {
		e.Field("isSuccess", func(e *jx.Encoder) { e.Bool(rep.Healthy) })
		e.Field("message", func(e *jx.Encoder) { e.Str(msg) })
		e.Field("result", func(e *jx.Encoder) {
			e.Obj(func(e *jx.Encoder) {
				e.Field("state", func(e *jx.Encoder) { e.Str(rep.State.String()) })
				e.Field("checks", func(e *jx.Encoder) {
					e.Obj(func(e *jx.Encoder) {
						for _, name := range names {
							e.Field(name, func(e *jx.Encoder) { e.Str(rep.Checks[name]) })
						}
					})
				})
			})
		})
	})

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_, _ = w.Write(e.Bytes())
}

// ErrUnhealthy is returned by Wait when the deadline passes first.
var ErrUnhealthy = errors.New("readiness checks did not pass")

// Wait blocks until every readiness check passes or ctx is done. It lets
// startup fail fast when a required dependency never comes up.
func (h *Health) Wait(ctx context.Context, poll time.Duration) error {
	ticker := time.NewTicker(poll)
	defer ticker.Stop()
	for {
		if h.checksPass(Readiness) {
			return nil
		}
		select {
		case <-ctx.Done():
			return errors.Wrap(ErrUnhealthy, ctx.Err().Error())
		case <-ticker.C:
		}
	}
}

func (h *Health) checksPass(kind Kind) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, p := range h.checks {
		if p.Kind == kind && !p.healthy {
			return false
		}
	}
	return true
}
