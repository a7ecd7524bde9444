package health

import (
	"context"
	"fmt"
	"sync"
	"time"

	"dwiju-assistant/backend/pkg/logger"
)

// Status represents the health status of a component
type Status string

const (
	// StatusUp indicates a component is working correctly
	StatusUp Status = "up"
	// StatusDown indicates a component is not working
	StatusDown Status = "down"
	// StatusDegraded indicates a component is working but with reduced functionality
	StatusDegraded Status = "degraded"
)

// Component represents a system component that can be health-checked
type Component struct {
	Name        string    `json:"name"`
	Status      Status    `json:"status"`
	Description string    `json:"description,omitempty"`
	Error       string    `json:"error,omitempty"`
	Critical    bool      `json:"critical"`
	LastChecked time.Time `json:"lastChecked"`
}

// Check represents a health check function
type Check func(ctx context.Context) (Status, string, error)

// Report is the aggregate health of the process.
type Report struct {
	Status     string                `json:"status"`
	Timestamp  time.Time             `json:"timestamp"`
	Version    string                `json:"version"`
	Components map[string]*Component `json:"components"`
}

// Checker manages health checks for the system
type Checker struct {
	checks      map[string]Check
	components  map[string]*Component
	checkPeriod time.Duration
	timeout     time.Duration
	version     string
	mutex       sync.RWMutex
	log         *logger.Logger
	onChange    func(healthy bool)
}

// NewChecker creates a new health checker
func NewChecker(log *logger.Logger, version string, checkPeriod time.Duration) *Checker {
	if log == nil {
		log = logger.GetGlobal()
	}
	if checkPeriod <= 0 {
		checkPeriod = 30 * time.Second
	}
	checker := &Checker{
		checks:      make(map[string]Check),
		components:  make(map[string]*Component),
		checkPeriod: checkPeriod,
		timeout:     5 * time.Second,
		version:     version,
		log:         log,
	}

	checker.RegisterCheck("self", false, func(context.Context) (Status, string, error) {
		return StatusUp, "Health checker is running", nil
	})

	return checker
}

// OnChange registers fn to be called after every run with the overall result.
func (c *Checker) OnChange(fn func(healthy bool)) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.onChange = fn
}

// RegisterCheck registers a new health check. A critical component that is
// down makes the whole system unhealthy.
func (c *Checker) RegisterCheck(name string, critical bool, check Check) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.checks[name] = check
	c.components[name] = &Component{
		Name:        name,
		Status:      StatusDown,
		Description: "Not checked yet",
		Critical:    critical,
	}
}

// RunChecks executes all registered health checks
func (c *Checker) RunChecks(ctx context.Context) {
	c.mutex.RLock()
	checks := make(map[string]Check, len(c.checks))
	for name, check := range c.checks {
		checks[name] = check
	}
	c.mutex.RUnlock()

	type result struct {
		status Status
		desc   string
		err    error
	}
	results := make(map[string]result, len(checks))
	for name, check := range checks {
		checkCtx, cancel := context.WithTimeout(ctx, c.timeout)
		status, desc, err := check(checkCtx)
		cancel()
		results[name] = result{status, desc, err}
	}

	c.mutex.Lock()
	now := time.Now()
	for name, r := range results {
		component := c.components[name]
		component.Status = r.status
		component.Description = r.desc
		component.LastChecked = now

		if r.err != nil {
			component.Error = r.err.Error()
			c.log.Error("health check failed",
				"component", name,
				"status", string(r.status),
				"error", r.err.Error(),
			)
		} else {
			component.Error = ""
			c.log.Debug("health check completed",
				"component", name,
				"status", string(r.status),
			)
		}
	}
	onChange := c.onChange
	c.mutex.Unlock()

	if onChange != nil {
		onChange(c.IsSystemHealthy())
	}
}

// Start runs the checks immediately and then every checkPeriod until ctx ends.
func (c *Checker) Start(ctx context.Context) {
	go func() {
		c.RunChecks(ctx)

		ticker := time.NewTicker(c.checkPeriod)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				c.RunChecks(ctx)
			}
		}
	}()
}

// GetStatus returns a copy of the current component states.
func (c *Checker) GetStatus() map[string]*Component {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	result := make(map[string]*Component, len(c.components))
	for k, v := range c.components {
		componentCopy := *v
		result[k] = &componentCopy
	}

	return result
}

// IsSystemHealthy returns true if no critical component is down.
func (c *Checker) IsSystemHealthy() bool {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	for _, component := range c.components {
		if component.Critical && component.Status == StatusDown {
			return false
		}
	}

	return true
}

// Report snapshots the current state.
func (c *Checker) Report() Report {
	status := "ok"
	if !c.IsSystemHealthy() {
		status = "unhealthy"
	}
	return Report{
		Status:     status,
		Timestamp:  time.Now(),
		Version:    c.version,
		Components: c.GetStatus(),
	}
}

// RegisterDatabaseCheck registers a critical database check.
func (c *Checker) RegisterDatabaseCheck(ping func(ctx context.Context) error) {
	c.RegisterCheck("database", true, func(ctx context.Context) (Status, string, error) {
		if err := ping(ctx); err != nil {
			return StatusDown, "Database connection failed", err
		}
		return StatusUp, "Database connection is established", nil
	})
}

// RegisterRedisCheck registers a non-critical redis check. Rate limiting
// falls back to allowing requests when redis is down.
func (c *Checker) RegisterRedisCheck(ping func(ctx context.Context) error) {
	c.RegisterCheck("redis", false, func(ctx context.Context) (Status, string, error) {
		if err := ping(ctx); err != nil {
			return StatusDegraded, "Redis is unreachable", err
		}
		return StatusUp, "Redis is reachable", nil
	})
}

// RegisterProviderCheck reports whether the text-generation provider has
// credentials. It never calls the provider.
func (c *Checker) RegisterProviderCheck(name string, configured bool) {
	c.RegisterCheck("provider", false, func(context.Context) (Status, string, error) {
		if !configured {
			return StatusDegraded, fmt.Sprintf("%s credentials are not configured", name), nil
		}
		return StatusUp, fmt.Sprintf("%s credentials are configured", name), nil
	})
}
