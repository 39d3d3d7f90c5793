package jobs

import (
	"context"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog/log"

	"github.com/openclaw/pairing-relay/internal/hub"
	"github.com/openclaw/pairing-relay/internal/service"
)

const taskTimeout = 30 * time.Second

// Task is one periodic maintenance step. Run returns how many items it
// removed.
type Task struct {
	Name     string
	Interval time.Duration
	Run      func(ctx context.Context) (int64, error)
}

// Sweeper runs each task on its own interval, once immediately at start.
// Tasks must be idempotent.
type Sweeper struct {
	tasks []Task
	clock clock.Clock
	done  chan struct{}
	wg    sync.WaitGroup
	once  sync.Once
}

func NewSweeper(clk clock.Clock, tasks ...Task) *Sweeper {
	return &Sweeper{
		tasks: tasks,
		clock: clk,
		done:  make(chan struct{}),
	}
}

func (s *Sweeper) Start() {
	for _, task := range s.tasks {
		// Tickers are created here, not in the goroutine, so a mock clock
		// advanced right after Start still fires them.
		ticker := s.clock.Ticker(task.Interval)
		s.wg.Add(1)
		go s.run(task, ticker)
		log.Info().Str("task", task.Name).Dur("interval", task.Interval).Msg("sweeper task started")
	}
}

func (s *Sweeper) Stop() {
	s.once.Do(func() {
		close(s.done)
		s.wg.Wait()
		log.Info().Msg("sweeper stopped")
	})
}

func (s *Sweeper) run(task Task, ticker *clock.Ticker) {
	defer s.wg.Done()
	defer ticker.Stop()

	s.runTask(task)

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			s.runTask(task)
		}
	}
}

func (s *Sweeper) runTask(task Task) {
	ctx, cancel := context.WithTimeout(context.Background(), taskTimeout)
	defer cancel()

	count, err := task.Run(ctx)
	if err != nil {
		log.Error().Err(err).Msgf("failed to sweep %s", task.Name)
	} else if count > 0 {
		log.Info().Int64("count", count).Msgf("swept %s", task.Name)
	}
}

// SessionSweep expires pairing codes. The registry is only touched from the
// hub loop, so the sweep is submitted there.
func SessionSweep(h *hub.Hub, registry *service.Registry, interval time.Duration) Task {
	return Task{
		Name:     "expired sessions",
		Interval: interval,
		Run: func(ctx context.Context) (int64, error) {
			var n int
			err := h.Call(ctx, func() { n = registry.SweepExpired() })
			return int64(n), err
		},
	}
}

// RateLimitPrune forgets idle origins. The limiter does its own locking.
func RateLimitPrune(limiter service.JoinLimiter, interval time.Duration) Task {
	return Task{
		Name:     "rate limit entries",
		Interval: interval,
		Run:      limiter.Prune,
	}
}
