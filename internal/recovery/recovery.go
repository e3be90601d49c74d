// Package recovery implements the scheduled-retry orchestrator for external
// dependencies (policy registry, Redis registry, transport), grounded on
// original_source/recovery_orchestrator.py's RecoveryOrchestrator: a
// priority min-heap of tasks, popped by a single poll loop, each retried
// with exponential/linear/immediate/manual backoff until it succeeds or
// exhausts its attempt budget.
package recovery

import (
	"container/heap"
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/acgs2/agentbus/internal/errs"
)

// Strategy is the backoff policy applied between retry attempts.
type Strategy string

const (
	StrategyExponential Strategy = "exponential"
	StrategyLinear      Strategy = "linear"
	StrategyImmediate   Strategy = "immediate"
	StrategyManual      Strategy = "manual"
)

// State is a RecoveryTask's lifecycle state.
type State string

const (
	StatePending   State = "pending"
	StateRetrying  State = "retrying"
	StateSucceeded State = "succeeded"
	StateFailed    State = "failed"
)

// Policy configures one task's backoff shape, mirroring RecoveryPolicy.
type Policy struct {
	Strategy         Strategy
	InitialDelay     time.Duration
	MaxDelay         time.Duration
	Multiplier       float64
	MaxRetryAttempts int
}

// DefaultPolicy mirrors RecoveryPolicy's dataclass defaults.
func DefaultPolicy() Policy {
	return Policy{
		Strategy:         StrategyExponential,
		InitialDelay:     time.Second,
		MaxDelay:         5 * time.Minute,
		Multiplier:       2.0,
		MaxRetryAttempts: 5,
	}
}

// Probe reports whether the guarded service is healthy again. A Probe must
// not block indefinitely; it is called with the orchestrator's per-attempt
// context.
type Probe func(ctx context.Context) error

// Task is one service's pending recovery, ordered in the heap by Priority
// (lower value = serviced first) and then by NextAttemptAt.
type Task struct {
	Service       string
	Priority      int
	Policy        Policy
	Probe         Probe
	AttemptCount  int
	NextAttemptAt time.Time
	State         State

	index int // heap.Interface bookkeeping
}

// delay computes the wait before the task's next attempt, per
// RecoveryOrchestrator's exact formula:
// exponential: initial_delay * multiplier^(n-1), capped at max_delay.
// linear: initial_delay * n.
func (t *Task) delay() time.Duration {
	n := t.AttemptCount
	if n < 1 {
		n = 1
	}
	switch t.Policy.Strategy {
	case StrategyImmediate:
		return 0
	case StrategyLinear:
		return t.Policy.InitialDelay * time.Duration(n)
	case StrategyManual:
		return t.Policy.MaxDelay
	default: // exponential
		d := float64(t.Policy.InitialDelay)
		for i := 1; i < n; i++ {
			d *= t.Policy.Multiplier
		}
		capped := float64(t.Policy.MaxDelay)
		if d > capped {
			d = capped
		}
		return time.Duration(d)
	}
}

// taskHeap implements container/heap.Interface, the idiomatic Go
// replacement for Python's heapq against @dataclass(order=True) — see
// DESIGN.md's internal/recovery entry for the stdlib justification.
type taskHeap []*Task

func (h taskHeap) Len() int { return len(h) }
func (h taskHeap) Less(i, j int) bool {
	if h[i].Priority != h[j].Priority {
		return h[i].Priority < h[j].Priority
	}
	return h[i].NextAttemptAt.Before(h[j].NextAttemptAt)
}
func (h taskHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}
func (h *taskHeap) Push(x any) {
	t := x.(*Task)
	t.index = len(*h)
	*h = append(*h, t)
}
func (h *taskHeap) Pop() any {
	old := *h
	n := len(old)
	t := old[n-1]
	old[n-1] = nil
	t.index = -1
	*h = old[:n-1]
	return t
}

// Orchestrator owns the min-heap and the single poll loop that drives
// retries.
type Orchestrator struct {
	mu         sync.Mutex
	heap       taskHeap
	byName     map[string]*Task
	lastErrors map[string]error
	logger     *zap.Logger
	pollEvery  time.Duration

	stop chan struct{}
	done chan struct{}
}

// New constructs an Orchestrator. pollEvery bounds how often the poll loop
// wakes to check for due tasks; a nil logger falls back to zap.NewNop().
func New(pollEvery time.Duration, logger *zap.Logger) *Orchestrator {
	if pollEvery <= 0 {
		pollEvery = time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{
		byName:     make(map[string]*Task),
		lastErrors: make(map[string]error),
		logger:     logger,
		pollEvery:  pollEvery,
	}
}

// Register adds a service under recovery supervision. Re-registering a
// service name replaces its task.
func (o *Orchestrator) Register(service string, priority int, policy Policy, probe Probe) {
	o.mu.Lock()
	defer o.mu.Unlock()

	task := &Task{
		Service:       service,
		Priority:      priority,
		Policy:        policy,
		Probe:         probe,
		State:         StatePending,
		NextAttemptAt: time.Now(),
	}
	if existing, ok := o.byName[service]; ok && existing.index >= 0 && existing.index < len(o.heap) {
		heap.Remove(&o.heap, existing.index)
	}
	o.byName[service] = task
	heap.Push(&o.heap, task)
}

// State reports a registered service's current recovery state.
func (o *Orchestrator) State(service string) (State, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	t, ok := o.byName[service]
	if !ok {
		return "", false
	}
	return t.State, true
}

// LastError reports the most recent probe failure for service (wrapped in
// errs.ErrRecoveryExhausted once its retry budget is used up), or nil if
// its most recent attempt succeeded or it was never registered.
func (o *Orchestrator) LastError(service string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.lastErrors[service]
}

func (o *Orchestrator) recordError(service string, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if err == nil {
		delete(o.lastErrors, service)
		return
	}
	o.lastErrors[service] = err
}

// Start launches the poll loop as a background goroutine; Stop cancels it.
func (o *Orchestrator) Start(ctx context.Context) {
	o.mu.Lock()
	if o.stop != nil {
		o.mu.Unlock()
		return
	}
	o.stop = make(chan struct{})
	o.done = make(chan struct{})
	o.mu.Unlock()

	go o.run(ctx)
}

func (o *Orchestrator) run(ctx context.Context) {
	defer close(o.done)
	ticker := time.NewTicker(o.pollEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-o.stop:
			return
		case <-ticker.C:
			o.tick(ctx)
		}
	}
}

// tick pops every task whose NextAttemptAt is due and probes it. A task
// rescheduled with a zero delay (StrategyImmediate) is due again at once,
// so it is probed again within the same tick.
func (o *Orchestrator) tick(ctx context.Context) {
	for {
		task := o.popDue()
		if task == nil {
			return
		}
		o.attempt(ctx, task)
	}
}

func (o *Orchestrator) popDue() *Task {
	o.mu.Lock()
	defer o.mu.Unlock()
	if len(o.heap) == 0 {
		return nil
	}
	top := o.heap[0]
	if top.NextAttemptAt.After(time.Now()) {
		return nil
	}
	return heap.Pop(&o.heap).(*Task)
}

func (o *Orchestrator) attempt(ctx context.Context, task *Task) {
	task.AttemptCount++
	err := task.Probe(ctx)
	if err == nil {
		task.State = StateSucceeded
		o.recordError(task.Service, nil)
		o.logger.Info("recovery task succeeded",
			zap.String("service", task.Service),
			zap.Int("attempts", task.AttemptCount))
		o.forget(task)
		return
	}

	if task.AttemptCount >= task.Policy.MaxRetryAttempts {
		task.State = StateFailed
		o.recordError(task.Service, fmt.Errorf("%w: service %s: %w", errs.ErrRecoveryExhausted, task.Service, err))
		o.logger.Error("recovery task exhausted retries",
			zap.String("service", task.Service),
			zap.Int("attempts", task.AttemptCount),
			zap.Error(err))
		o.forget(task)
		return
	}
	o.recordError(task.Service, err)

	task.State = StateRetrying
	task.NextAttemptAt = time.Now().Add(task.delay())
	o.logger.Warn("recovery task failed, scheduling retry",
		zap.String("service", task.Service),
		zap.Int("attempt", task.AttemptCount),
		zap.Duration("next_delay", task.delay()),
		zap.Error(err))

	o.mu.Lock()
	heap.Push(&o.heap, task)
	o.mu.Unlock()
}

func (o *Orchestrator) forget(task *Task) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.byName, task.Service)
}

// Stop cancels the poll loop and waits for it to exit.
func (o *Orchestrator) Stop() {
	o.mu.Lock()
	stop := o.stop
	done := o.done
	o.stop = nil
	o.mu.Unlock()

	if stop == nil {
		return
	}
	close(stop)
	<-done
}
