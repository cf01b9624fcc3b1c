// Package health checks that the identity storage is reachable and migrated.
//
//	m := health.NewManager(version, health.WithTimeout(2*time.Second))
//	m.Register(health.NewDatabaseChecker(db))
//	m.Register(health.NewSchemaChecker(db, desc.Tables()))
//	report := m.Check(ctx)
package health

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"gorm.io/gorm"
)

// Status represents the health status of a component.
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
)

// Check is the result of a single health check.
type Check struct {
	Name      string        `json:"name"`
	Status    Status        `json:"status"`
	Message   string        `json:"message,omitempty"`
	Latency   time.Duration `json:"-"`
	LatencyMs int64         `json:"latency_ms"`
}

// Report is the combined result of every registered check.
type Report struct {
	Status    Status    `json:"status"`
	Version   string    `json:"version"`
	Timestamp time.Time `json:"timestamp"`
	Checks    []Check   `json:"checks"`
}

// Checker performs one health check.
type Checker interface {
	Name() string
	Check(ctx context.Context) *Check
}

// Manager runs registered checkers concurrently under a shared timeout.
type Manager struct {
	mu       sync.RWMutex
	checkers []Checker
	version  string
	timeout  time.Duration
}

// ManagerOption configures the Manager.
type ManagerOption func(*Manager)

func NewManager(version string, opts ...ManagerOption) *Manager {
	m := &Manager{version: version, timeout: 5 * time.Second}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// WithTimeout sets the check timeout.
func WithTimeout(d time.Duration) ManagerOption {
	return func(m *Manager) { m.timeout = d }
}

func (m *Manager) Register(c Checker) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.checkers = append(m.checkers, c)
}

// Check runs every checker and folds the results into a report. Checks are
// sorted by name.
func (m *Manager) Check(ctx context.Context) *Report {
	m.mu.RLock()
	checkers := append([]Checker(nil), m.checkers...)
	m.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	results := make([]Check, len(checkers))
	var wg sync.WaitGroup
	for i, c := range checkers {
		wg.Add(1)
		go func(i int, c Checker) {
			defer wg.Done()
			start := time.Now()
			check := c.Check(ctx)
			if check == nil {
				check = &Check{Name: c.Name(), Status: StatusUnhealthy}
			}
			check.Latency = time.Since(start)
			check.LatencyMs = check.Latency.Milliseconds()
			results[i] = *check
		}(i, c)
	}
	wg.Wait()

	sort.Slice(results, func(i, j int) bool { return results[i].Name < results[j].Name })

	report := &Report{
		Status:    StatusHealthy,
		Version:   m.version,
		Timestamp: time.Now(),
		Checks:    results,
	}
	for _, c := range results {
		switch c.Status {
		case StatusUnhealthy:
			report.Status = StatusUnhealthy
		case StatusDegraded:
			if report.Status != StatusUnhealthy {
				report.Status = StatusDegraded
			}
		}
	}
	return report
}

// ---- Built-in checkers ----

type databaseChecker struct {
	db *gorm.DB
}

// NewDatabaseChecker pings the connection pool behind db.
func NewDatabaseChecker(db *gorm.DB) Checker {
	return databaseChecker{db: db}
}

func (databaseChecker) Name() string { return "database" }

func (c databaseChecker) Check(ctx context.Context) *Check {
	sqlDB, err := c.db.DB()
	if err == nil {
		err = sqlDB.PingContext(ctx)
	}
	if err != nil {
		return &Check{Name: c.Name(), Status: StatusUnhealthy, Message: err.Error()}
	}
	return &Check{Name: c.Name(), Status: StatusHealthy}
}

type schemaChecker struct {
	db     *gorm.DB
	tables []string
}

// NewSchemaChecker reports the mapped tables that do not exist yet. Missing
// tables degrade rather than fail, since migration can still fix them.
func NewSchemaChecker(db *gorm.DB, tables []string) Checker {
	return schemaChecker{db: db, tables: tables}
}

func (schemaChecker) Name() string { return "schema" }

func (c schemaChecker) Check(ctx context.Context) *Check {
	migrator := c.db.WithContext(ctx).Migrator()
	var missing []string
	for _, t := range c.tables {
		if !migrator.HasTable(t) {
			missing = append(missing, t)
		}
	}
	if len(missing) > 0 {
		return &Check{
			Name:    c.Name(),
			Status:  StatusDegraded,
			Message: fmt.Sprintf("missing tables: %s", strings.Join(missing, ", ")),
		}
	}
	return &Check{Name: c.Name(), Status: StatusHealthy}
}
