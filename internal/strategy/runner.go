package strategy

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/arbdiscovery/internal/domain"
)

// Result is what one strategy found on one match.
type Result struct {
	Info       domain.MatchInfo
	StrategyID domain.StrategyID
	Candidates []domain.Candidate
}

// RunnerOptions selects how strategies are scheduled.
type RunnerOptions struct {
	// Parallel runs each strategy on its own long-lived worker.
	Parallel bool
	// AsyncCross runs the cross-handicap detector in the background and
	// applies its result on a later cycle.
	AsyncCross bool
	// DeadBallOnly skips matches that are in play.
	DeadBallOnly bool
}

type job struct {
	views []domain.MatchView
	avail domain.Availability
}

// worker owns one strategy. At most one job is outstanding at a time.
type worker struct {
	s       Strategy
	jobs    chan job
	results chan []Result
	pending bool
}

func newWorker(s Strategy) *worker {
	return &worker{s: s, jobs: make(chan job, 1), results: make(chan []Result, 1)}
}

func (w *worker) run(ctx context.Context, logger *slog.Logger) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case j := <-w.jobs:
			res := spotAll(w.s, j, logger)
			select {
			case w.results <- res:
			case <-ctx.Done():
				return nil
			}
		}
	}
}

// submit hands j to the worker unless a job is already pending.
func (w *worker) submit(j job) bool {
	if w.pending {
		return false
	}
	select {
	case w.jobs <- j:
		w.pending = true
		return true
	default:
		return false
	}
}

// poll takes a finished result without blocking.
func (w *worker) poll() ([]Result, bool) {
	if !w.pending {
		return nil, false
	}
	select {
	case r := <-w.results:
		w.pending = false
		return r, true
	default:
		return nil, false
	}
}

func (w *worker) wait(ctx context.Context) ([]Result, error) {
	if !w.pending {
		return nil, nil
	}
	select {
	case r := <-w.results:
		w.pending = false
		return r, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Runner executes the enabled strategies once per discovery cycle. Run is
// called from a single goroutine; Start runs the background workers.
type Runner struct {
	inline  []Strategy
	workers []*worker
	cross   *worker
	opts    RunnerOptions
	logger  *slog.Logger
	now     func() time.Time
}

// NewRunner assigns each strategy to inline, worker or async execution.
func NewRunner(strategies []Strategy, opts RunnerOptions, logger *slog.Logger) *Runner {
	r := &Runner{
		opts:   opts,
		logger: logger.With(slog.String("component", "strategy_runner")),
		now:    time.Now,
	}
	for _, s := range strategies {
		switch {
		case opts.AsyncCross && s.ID() == domain.StrategyCrossHandicap:
			r.cross = newWorker(s)
		case opts.Parallel:
			r.workers = append(r.workers, newWorker(s))
		default:
			r.inline = append(r.inline, s)
		}
	}
	return r
}

// SetClock overrides the discovery timestamp source.
func (r *Runner) SetClock(now func() time.Time) { r.now = now }

// Start runs the background workers until ctx is done. It returns at once
// when every strategy runs inline.
func (r *Runner) Start(ctx context.Context) error {
	all := r.workers
	if r.cross != nil {
		all = append(append([]*worker(nil), all...), r.cross)
	}
	if len(all) == 0 {
		return nil
	}
	r.logger.Info("strategy workers started", slog.Int("workers", len(all)))
	defer r.logger.Info("strategy workers stopped")

	g, gctx := errgroup.WithContext(ctx)
	for _, w := range all {
		g.Go(func() error { return w.run(gctx, r.logger) })
	}
	return g.Wait()
}

// Run spots opportunities on views and returns them best first. A pending
// cross-handicap result from an earlier cycle is included once it is ready.
func (r *Runner) Run(ctx context.Context, views []domain.MatchView, avail domain.Availability) ([]domain.Opportunity, error) {
	if r.opts.DeadBallOnly {
		views = deadBall(views)
	}
	j := job{views: views, avail: avail.Clone()}

	for _, w := range r.workers {
		w.submit(j)
	}
	var results []Result
	for _, s := range r.inline {
		results = append(results, spotAll(s, j, r.logger)...)
	}
	for _, w := range r.workers {
		res, err := w.wait(ctx)
		if err != nil {
			return nil, fmt.Errorf("strategy: wait %s: %w", w.s.Name(), err)
		}
		results = append(results, res...)
	}
	if r.cross != nil {
		if res, ok := r.cross.poll(); ok {
			results = append(results, res...)
		} else if !r.cross.pending {
			r.cross.submit(j)
		}
	}
	return toOpportunities(results, r.now()), nil
}

func deadBall(views []domain.MatchView) []domain.MatchView {
	out := views[:0:0]
	for _, v := range views {
		if !v.Running() {
			out = append(out, v)
		}
	}
	return out
}

func spotAll(s Strategy, j job, logger *slog.Logger) []Result {
	var out []Result
	for _, v := range j.views {
		if c := spotOne(s, v, j.avail, logger); len(c) > 0 {
			out = append(out, Result{Info: v.Info, StrategyID: s.ID(), Candidates: c})
		}
	}
	return out
}

// spotOne runs s on a single match. A panic drops that match only.
func spotOne(s Strategy, v domain.MatchView, avail domain.Availability, logger *slog.Logger) (c []domain.Candidate) {
	defer func() {
		if rec := recover(); rec != nil {
			logger.Error("strategy panicked",
				slog.String("strategy", s.Name()),
				slog.String("match_id", v.Info.MatchID),
				slog.Any("panic", rec),
			)
			c = nil
		}
	}()
	return s.Spot(v, avail)
}

func toOpportunities(results []Result, at time.Time) []domain.Opportunity {
	var out []domain.Opportunity
	for _, res := range results {
		m := domain.NewOpportunityMatch(res.Info)
		for _, c := range res.Candidates {
			out = append(out, domain.Opportunity{
				Match:      m,
				StrategyID: res.StrategyID,
				OccurredAt: at,
				Profit:     c.Profit,
				Selections: c.Selections,
			})
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Profit > out[j].Profit })
	return out
}
