// Package health probes the external sinks a run is configured to use so a
// misconfigured Postgres, Redis, Kafka or Pushgateway is found before a long
// verification rather than after it.
package health

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"
)

// Status is the state of one probed component or of the whole report.
type Status string

const (
	StatusUp   Status = "up"
	StatusDown Status = "down"
)

// Probe reports a component as down by returning an error.
type Probe func(ctx context.Context) error

// Component is the outcome of one probe.
type Component struct {
	Name    string        `json:"name"`
	Status  Status        `json:"status"`
	Message string        `json:"message,omitempty"`
	Latency time.Duration `json:"latency"`
}

// Report lists components in name order. Status is down if any component is.
type Report struct {
	Status     Status      `json:"status"`
	Components []Component `json:"components"`
}

// Checker holds the probes registered for the enabled sinks.
type Checker struct {
	mu      sync.Mutex
	probes  map[string]Probe
	timeout time.Duration
	logger  *slog.Logger
}

// NewChecker creates a Checker that bounds every probe by timeout.
func NewChecker(timeout time.Duration) *Checker {
	return &Checker{
		probes:  make(map[string]Probe),
		timeout: timeout,
		logger:  slog.Default().With("component", "health"),
	}
}

func (c *Checker) Register(name string, probe Probe) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.probes[name] = probe
}

// Run executes all probes concurrently.
func (c *Checker) Run(ctx context.Context) Report {
	c.mu.Lock()
	names := make([]string, 0, len(c.probes))
	for name := range c.probes {
		names = append(names, name)
	}
	probes := make(map[string]Probe, len(c.probes))
	for name, p := range c.probes {
		probes[name] = p
	}
	c.mu.Unlock()
	sort.Strings(names)

	components := make([]Component, len(names))
	var wg sync.WaitGroup
	for i, name := range names {
		wg.Add(1)
		go func(i int, name string) {
			defer wg.Done()
			components[i] = c.probe(ctx, name, probes[name])
		}(i, name)
	}
	wg.Wait()

	report := Report{Status: StatusUp, Components: components}
	for _, comp := range components {
		if comp.Status == StatusDown {
			report.Status = StatusDown
		}
	}
	return report
}

func (c *Checker) probe(ctx context.Context, name string, p Probe) Component {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}
	start := time.Now()
	err := p(ctx)
	comp := Component{Name: name, Status: StatusUp, Latency: time.Since(start).Round(time.Millisecond)}
	if err != nil {
		comp.Status = StatusDown
		comp.Message = err.Error()
		c.logger.Warn("probe failed", "target", name, "error", err)
	}
	return comp
}
