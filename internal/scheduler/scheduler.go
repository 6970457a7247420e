// Package scheduler executa jobs recorrentes entre tenants (limpeza de janelas,
// expurgo de cache, relatório de uso) sobre expressões cron.
//
// Um job nunca roda em paralelo consigo mesmo: se o disparo anterior ainda não
// terminou, o novo é descartado e registrado em log.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	cron "gopkg.in/robfig/cron.v2"
)

var (
	ErrStarted        = errors.New("scheduler already started")
	ErrUnknownJob     = errors.New("unknown job")
	ErrAlreadyRunning = errors.New("job already running")
)

// Job é uma unidade recorrente. Spec aceita o formato do robfig/cron
// (seis campos com segundos ou descritores como "@every 1m").
type Job struct {
	Name string
	Spec string
	Run  func(ctx context.Context) error
}

type entry struct {
	job      Job
	schedule cron.Schedule
	running  atomic.Bool
}

type Scheduler struct {
	cron   *cron.Cron
	logger *zap.Logger

	mu      sync.Mutex
	entries map[string]*entry
	started bool
	stopped bool
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

func New(logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		cron:    cron.New(),
		logger:  logger,
		entries: make(map[string]*entry),
		ctx:     context.Background(),
	}
}

// Register valida e guarda o job. Deve ser chamado antes de Start.
func (s *Scheduler) Register(job Job) error {
	if job.Name == "" {
		return errors.New("job name is required")
	}
	if job.Run == nil {
		return fmt.Errorf("job %q has no run func", job.Name)
	}
	schedule, err := cron.Parse(job.Spec)
	if err != nil {
		return fmt.Errorf("job %q: invalid spec %q: %w", job.Name, job.Spec, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return ErrStarted
	}
	if _, dup := s.entries[job.Name]; dup {
		return fmt.Errorf("job %q already registered", job.Name)
	}
	s.entries[job.Name] = &entry{job: job, schedule: schedule}
	return nil
}

// Start agenda todos os jobs registrados. ctx é repassado às execuções e
// cancelado por Stop.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return ErrStarted
	}
	s.started = true
	s.ctx, s.cancel = context.WithCancel(ctx)

	for _, e := range s.entries {
		e := e // per-iteration copy: go directive is 1.21 (pre-1.22 loopvar semantics)
		s.cron.Schedule(e.schedule, cron.FuncJob(func() {
			if err := s.run(e); err != nil && !errors.Is(err, ErrAlreadyRunning) {
				s.logger.Error("scheduled job failed", zap.String("job", e.job.Name), zap.Error(err))
			}
		}))
		s.logger.Info("job scheduled", zap.String("job", e.job.Name), zap.String("spec", e.job.Spec))
	}
	s.cron.Start()
	return nil
}

// RunNow executa o job imediatamente, respeitando a regra de não sobreposição.
func (s *Scheduler) RunNow(name string) error {
	s.mu.Lock()
	e, ok := s.entries[name]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownJob, name)
	}
	return s.run(e)
}

func (s *Scheduler) run(e *entry) (err error) {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return nil
	}
	s.wg.Add(1)
	ctx := s.ctx
	s.mu.Unlock()
	defer s.wg.Done()

	if !e.running.CompareAndSwap(false, true) {
		s.logger.Warn("job still running, skipping", zap.String("job", e.job.Name))
		return ErrAlreadyRunning
	}
	defer e.running.Store(false)

	defer func() {
		if rec := recover(); rec != nil {
			s.logger.Error("job panicked", zap.String("job", e.job.Name), zap.Any("panic", rec))
			err = fmt.Errorf("job %q panicked: %v", e.job.Name, rec)
		}
	}()

	start := time.Now()
	err = e.job.Run(ctx)
	s.logger.Debug("job finished",
		zap.String("job", e.job.Name),
		zap.Duration("duration", time.Since(start)),
		zap.Error(err))
	return err
}

// Jobs lista os nomes registrados.
func (s *Scheduler) Jobs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.entries))
	for name := range s.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Stop interrompe os disparos, cancela o ctx dos jobs e espera os que estão
// em execução.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	if s.cancel != nil {
		s.cancel()
	}
	s.mu.Unlock()

	s.cron.Stop()
	s.wg.Wait()
}
