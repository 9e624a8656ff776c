package routine

import (
	"context"
	"errors"
	"sync"
)

// Handler runs work bound to a key specific context.
// Returning an error triggers the Task OnError hook.
type Handler func(ctx context.Context) error

var (
	ErrEmptyKey        = errors.New("routine manager: empty key")
	ErrNilHandler      = errors.New("routine manager: nil handler")
	ErrRoutineExists   = errors.New("routine manager: routine already running")
	ErrRoutineNotFound = errors.New("routine manager: routine not found")
	ErrNilTask         = errors.New("routine manager: nil task")
)

// Manager runs at most one goroutine per key and tracks its lifetime.
type Manager struct {
	baseCtx context.Context
	mu      sync.RWMutex
	tasks   map[string]*Task
}

// Task wraps a handler, its runtime state, and lifecycle callbacks.
type Task struct {
	Key     string
	Handler Handler

	OnDone  func(key string)
	OnError func(key string, err error)

	cancel context.CancelFunc
	done   chan struct{}
}

func NewManager(ctx context.Context) *Manager {
	if ctx == nil {
		ctx = context.Background()
	}
	return &Manager{
		baseCtx: ctx,
		tasks:   make(map[string]*Task),
	}
}

// Go starts a bare key/handler pair.
func (m *Manager) Go(key string, handler Handler) error {
	if handler == nil {
		return ErrNilHandler
	}
	return m.RunTask(&Task{Key: key, Handler: handler})
}

// RunTask starts the task unless another task with the same key is running.
func (m *Manager) RunTask(task *Task) error {
	if task == nil {
		return ErrNilTask
	}
	if task.Key == "" {
		return ErrEmptyKey
	}
	if task.Handler == nil {
		return ErrNilHandler
	}

	m.mu.Lock()
	if _, exists := m.tasks[task.Key]; exists {
		m.mu.Unlock()
		return ErrRoutineExists
	}
	ctx, cancel := context.WithCancel(m.baseCtx)
	task.cancel = cancel
	task.done = make(chan struct{})
	m.tasks[task.Key] = task
	m.mu.Unlock()

	go m.run(ctx, task)
	return nil
}

// Running reports whether a task is registered under key.
func (m *Manager) Running(key string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.tasks[key]
	return ok
}

// Stop cancels the task without waiting for it to return. It is safe to call
// from inside the task's own handler.
func (m *Manager) Stop(key string) error {
	task, err := m.lookup(key)
	if err != nil {
		return err
	}
	task.cancel()
	return nil
}

// Shutdown cancels the task and blocks until its handler has returned.
func (m *Manager) Shutdown(key string) error {
	task, err := m.lookup(key)
	if err != nil {
		return err
	}
	task.cancel()
	<-task.done
	return nil
}

// ShutdownAll cancels every running task and waits for all of them.
func (m *Manager) ShutdownAll() error {
	m.mu.RLock()
	tasks := make([]*Task, 0, len(m.tasks))
	for _, t := range m.tasks {
		tasks = append(tasks, t)
	}
	m.mu.RUnlock()

	for _, t := range tasks {
		t.cancel()
	}
	for _, t := range tasks {
		<-t.done
	}
	return nil
}

func (m *Manager) lookup(key string) (*Task, error) {
	if key == "" {
		return nil, ErrEmptyKey
	}
	m.mu.RLock()
	task, ok := m.tasks[key]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrRoutineNotFound
	}
	return task, nil
}

func (m *Manager) run(ctx context.Context, task *Task) {
	defer func() {
		m.cleanup(task)
		close(task.done)
		if task.OnDone != nil {
			task.OnDone(task.Key)
		}
	}()
	if err := task.Handler(ctx); err != nil && task.OnError != nil {
		task.OnError(task.Key, err)
	}
}

func (m *Manager) cleanup(task *Task) {
	m.mu.Lock()
	if current, ok := m.tasks[task.Key]; ok && current == task {
		delete(m.tasks, task.Key)
	}
	m.mu.Unlock()
}
