package platform

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"
)

// Supervisor restarts failed long-running tasks with exponential backoff.
// It keeps the simulation's side services (observer streaming, artifact
// flushing) alive without taking the whole process down on one failure.

type Policy struct {
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	BackoffFactor  float64
	// MaxRestarts bounds restarts per task; zero means unbounded.
	MaxRestarts int
}

type RestartPolicy string

const (
	// RestartAlways restarts the task whether it returned an error or not.
	RestartAlways RestartPolicy = "always"
	// RestartOnFailure restarts only when the task returned a non-nil error.
	RestartOnFailure RestartPolicy = "on_failure"
	// RestartNever runs the task at most once.
	RestartNever RestartPolicy = "never"
)

type ChildSpec struct {
	Name    string
	Restart RestartPolicy
}

type ChildStatus struct {
	Name            string        `json:"name"`
	RestartPolicy   RestartPolicy `json:"restart_policy"`
	RestartCount    int           `json:"restart_count"`
	LastError       string        `json:"last_error,omitempty"`
	PermanentFailed bool          `json:"permanent_failed"`
}

type Hooks struct {
	OnRestart          func(name string, err error, restartCount int)
	OnPermanentFailure func(name string, err error, restartCount int)
}

func defaultPolicy() Policy {
	return Policy{
		InitialBackoff: 10 * time.Millisecond,
		MaxBackoff:     200 * time.Millisecond,
		BackoffFactor:  2.0,
	}
}

func normalizePolicy(policy Policy) Policy {
	def := defaultPolicy()
	if policy.InitialBackoff <= 0 {
		policy.InitialBackoff = def.InitialBackoff
	}
	if policy.MaxBackoff <= 0 {
		policy.MaxBackoff = def.MaxBackoff
	}
	if policy.MaxBackoff < policy.InitialBackoff {
		policy.MaxBackoff = policy.InitialBackoff
	}
	if policy.BackoffFactor < 1 {
		policy.BackoffFactor = def.BackoffFactor
	}
	return policy
}

type Supervisor struct {
	policy Policy
	hooks  Hooks

	mu       sync.Mutex
	tasks    map[string]*task
	finished map[string]ChildStatus
}

type task struct {
	cancel context.CancelFunc
	done   chan struct{}
	spec   ChildSpec

	restartCount    int
	lastErr         error
	permanentFailed bool
}

func NewSupervisor(policy Policy) *Supervisor {
	return NewSupervisorWithHooks(policy, Hooks{})
}

func NewSupervisorWithHooks(policy Policy, hooks Hooks) *Supervisor {
	return &Supervisor{
		policy:   normalizePolicy(policy),
		hooks:    hooks,
		tasks:    make(map[string]*task),
		finished: make(map[string]ChildStatus),
	}
}

func (s *Supervisor) Start(name string, run func(ctx context.Context) error) error {
	return s.StartSpec(ChildSpec{Name: name, Restart: RestartAlways}, run)
}

func (s *Supervisor) StartSpec(spec ChildSpec, run func(ctx context.Context) error) error {
	if spec.Name == "" {
		return errors.New("task name is required")
	}
	if run == nil {
		return errors.New("task runner is required")
	}
	switch spec.Restart {
	case RestartAlways, RestartOnFailure, RestartNever:
	default:
		spec.Restart = RestartAlways
	}

	s.mu.Lock()
	if _, exists := s.tasks[spec.Name]; exists {
		s.mu.Unlock()
		return fmt.Errorf("task already running: %s", spec.Name)
	}
	delete(s.finished, spec.Name)
	ctx, cancel := context.WithCancel(context.Background())
	tk := &task{
		cancel: cancel,
		done:   make(chan struct{}),
		spec:   spec,
	}
	s.tasks[spec.Name] = tk
	s.mu.Unlock()

	go s.runTask(ctx, tk, run)
	return nil
}

func (s *Supervisor) runTask(ctx context.Context, tk *task, run func(ctx context.Context) error) {
	name := tk.spec.Name
	defer func() {
		s.mu.Lock()
		if current, ok := s.tasks[name]; ok && current == tk {
			if tk.permanentFailed || tk.restartCount > 0 || tk.lastErr != nil {
				s.finished[name] = s.statusLocked(tk)
			}
			delete(s.tasks, name)
		}
		s.mu.Unlock()
		close(tk.done)
	}()

	backoff := s.policy.InitialBackoff

	for {
		err := run(ctx)
		if ctx.Err() != nil {
			return
		}
		if !shouldRestart(tk.spec.Restart, err) {
			s.mu.Lock()
			tk.lastErr = err
			s.mu.Unlock()
			return
		}

		s.mu.Lock()
		tk.lastErr = err
		restarts := tk.restartCount
		s.mu.Unlock()

		if s.policy.MaxRestarts > 0 && restarts >= s.policy.MaxRestarts {
			s.mu.Lock()
			tk.permanentFailed = true
			s.mu.Unlock()
			if s.hooks.OnPermanentFailure != nil {
				s.hooks.OnPermanentFailure(name, err, restarts)
			}
			return
		}

		restarts++
		s.mu.Lock()
		tk.restartCount = restarts
		s.mu.Unlock()
		if s.hooks.OnRestart != nil {
			s.hooks.OnRestart(name, err, restarts)
		}

		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
		next := time.Duration(float64(backoff) * s.policy.BackoffFactor)
		if next > s.policy.MaxBackoff {
			next = s.policy.MaxBackoff
		}
		backoff = next
	}
}

func shouldRestart(policy RestartPolicy, err error) bool {
	switch policy {
	case RestartAlways:
		return true
	case RestartOnFailure:
		return err != nil
	case RestartNever:
		return false
	default:
		return true
	}
}

func (s *Supervisor) Stop(name string) {
	s.mu.Lock()
	tk, ok := s.tasks[name]
	delete(s.finished, name)
	s.mu.Unlock()
	if !ok {
		return
	}
	tk.cancel()
	<-tk.done
}

func (s *Supervisor) StopAll() {
	s.mu.Lock()
	tasks := make([]*task, 0, len(s.tasks))
	for _, tk := range s.tasks {
		tasks = append(tasks, tk)
	}
	s.finished = make(map[string]ChildStatus)
	s.mu.Unlock()

	for _, tk := range tasks {
		tk.cancel()
	}
	for _, tk := range tasks {
		<-tk.done
	}
}

func (s *Supervisor) Tasks() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	names := make([]string, 0, len(s.tasks))
	for name := range s.tasks {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (s *Supervisor) Children() []ChildStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	names := make([]string, 0, len(s.tasks)+len(s.finished))
	for name := range s.tasks {
		names = append(names, name)
	}
	for name := range s.finished {
		if _, active := s.tasks[name]; active {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]ChildStatus, 0, len(names))
	for _, name := range names {
		if tk, ok := s.tasks[name]; ok {
			out = append(out, s.statusLocked(tk))
			continue
		}
		if finished, ok := s.finished[name]; ok {
			out = append(out, finished)
		}
	}
	return out
}

func (s *Supervisor) statusLocked(tk *task) ChildStatus {
	status := ChildStatus{
		Name:            tk.spec.Name,
		RestartPolicy:   tk.spec.Restart,
		RestartCount:    tk.restartCount,
		PermanentFailed: tk.permanentFailed,
	}
	if tk.lastErr != nil {
		status.LastError = tk.lastErr.Error()
	}
	return status
}
