package jobs

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/maltedev/catalog-crawler/internal/crawler"
)

var (
	ErrRunInProgress = errors.New("a crawl is already running")
	ErrRunNotFound   = errors.New("run not found")
	ErrClosed        = errors.New("job manager is closed")
)

const (
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
	StatusCancelled = "cancelled"
)

// RunFunc performs one full crawl, reporting progress as it goes.
type RunFunc func(ctx context.Context, onProgress func(crawler.Progress)) (crawler.Stats, error)

// Run represents one crawl started through the manager
type Run struct {
	ID          string        `json:"id"`
	Status      string        `json:"status"`
	State       string        `json:"state"`
	Page        int           `json:"page"`
	Product     string        `json:"product,omitempty"`
	Stats       crawler.Stats `json:"stats"`
	StartedAt   time.Time     `json:"started_at"`
	CompletedAt *time.Time    `json:"completed_at,omitempty"`
	Error       string        `json:"error,omitempty"`
}

// Manager runs at most one crawl at a time in the background.
type Manager struct {
	run    RunFunc
	logger *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	closed  bool
	current *Run
	runs    map[string]*Run
	latest  string
}

func NewManager(run RunFunc, logger *slog.Logger) *Manager {
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		run:    run,
		logger: logger.With("component", "job_manager"),
		ctx:    ctx,
		cancel: cancel,
		runs:   make(map[string]*Run),
	}
}

// Start launches a crawl unless one is already running.
func (m *Manager) Start() (Run, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return Run{}, ErrClosed
	}
	if m.current != nil {
		return Run{}, ErrRunInProgress
	}

	run := &Run{
		ID:        uuid.New().String(),
		Status:    StatusRunning,
		State:     crawler.StateAuthenticating.String(),
		StartedAt: time.Now(),
	}
	m.current = run
	m.runs[run.ID] = run
	m.latest = run.ID

	m.wg.Add(1)
	go m.execute(run)

	m.logger.Info("run started", "id", run.ID)
	return *run, nil
}

func (m *Manager) execute(run *Run) {
	defer m.wg.Done()

	stats, err := m.run(m.ctx, func(p crawler.Progress) {
		m.mu.Lock()
		defer m.mu.Unlock()
		run.State = p.State.String()
		run.Page = p.Page
		run.Product = p.Product
		run.Stats = p.Stats
	})

	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	run.Stats = stats
	run.CompletedAt = &now
	switch {
	case err == nil:
		run.Status = StatusCompleted
	case errors.Is(err, context.Canceled):
		run.Status = StatusCancelled
		run.Error = err.Error()
	default:
		run.Status = StatusFailed
		run.Error = err.Error()
	}
	m.current = nil

	if err != nil {
		m.logger.Error("run failed", "id", run.ID, "status", run.Status, "error", err)
		return
	}
	m.logger.Info("run completed", "id", run.ID, "products", stats.Products)
}

func (m *Manager) Get(id string) (Run, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	run, ok := m.runs[id]
	if !ok {
		return Run{}, ErrRunNotFound
	}
	return *run, nil
}

func (m *Manager) Latest() (Run, error) {
	m.mu.Lock()
	id := m.latest
	m.mu.Unlock()

	if id == "" {
		return Run{}, ErrRunNotFound
	}
	return m.Get(id)
}

// Wait blocks until no run is in flight.
func (m *Manager) Wait() {
	m.wg.Wait()
}

// Close cancels a running crawl and waits for it to stop.
func (m *Manager) Close() {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()

	m.cancel()
	m.wg.Wait()
}
