package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"freelance-market/internal/config"
	"freelance-market/internal/domain"
	"freelance-market/pkg/logger"

	"github.com/robfig/cron/v3"
	"github.com/sourcegraph/conc/panics"
	"github.com/sourcegraph/conc/pool"
)

type SchedulerOptions struct {
	Spec             string
	Workers          int
	SweepTimeout     time.Duration
	EndingSoonWindow time.Duration
	InstanceID       string
}

func SchedulerOptionsFromConfig(cfg *config.Config) SchedulerOptions {
	return SchedulerOptions{
		Spec:             cfg.Scheduler.Spec,
		Workers:          cfg.Scheduler.Workers,
		SweepTimeout:     cfg.Scheduler.SweepTimeout,
		EndingSoonWindow: cfg.Scheduler.EndingSoonWindow,
		InstanceID:       cfg.Instance.ID,
	}
}

// SweepReport summarizes one sweep.
type SweepReport struct {
	Examined   int
	Opened     int
	Closed     int
	EndingSoon int
	Failed     int
	// Skipped is set when another instance holds the scheduler leadership.
	Skipped bool
}

// CronLifecycleScheduler periodically moves due auctions through their lifecycle.
type CronLifecycleScheduler struct {
	cron     *cron.Cron
	store    domain.Store
	notifier *LifecycleNotifier
	ledger   domain.ReminderLedger
	leader   domain.LeaderElection
	opts     SchedulerOptions
	now      func() time.Time
	log      logger.Logger
}

// NewCronLifecycleScheduler builds the scheduler. A nil leader makes every
// sweep run, which is only correct for a single instance.
func NewCronLifecycleScheduler(store domain.Store, notifier *LifecycleNotifier, ledger domain.ReminderLedger,
	leader domain.LeaderElection, opts SchedulerOptions, log logger.Logger) *CronLifecycleScheduler {
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	if opts.Spec == "" {
		opts.Spec = "@every 30s"
	}

	cl := cronLogger{log: log}
	return &CronLifecycleScheduler{
		cron: cron.New(
			cron.WithSeconds(),
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		store:    store,
		notifier: notifier,
		ledger:   ledger,
		leader:   leader,
		opts:     opts,
		now:      time.Now,
		log:      log,
	}
}

func (s *CronLifecycleScheduler) Start(ctx context.Context) error {
	s.log.Info("Starting auction lifecycle scheduler", "spec", s.opts.Spec, "workers", s.opts.Workers)

	_, err := s.cron.AddFunc(s.opts.Spec, func() {
		s.runSweep(ctx)
	})
	if err != nil {
		return fmt.Errorf("scheduler: register sweep %q: %w", s.opts.Spec, err)
	}

	s.cron.Start()
	return nil
}

// Stop prevents new sweeps and waits for the running one to return.
func (s *CronLifecycleScheduler) Stop() error {
	s.log.Info("Stopping auction lifecycle scheduler")
	<-s.cron.Stop().Done()
	return nil
}

func (s *CronLifecycleScheduler) runSweep(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, s.opts.SweepTimeout)
	defer cancel()

	started := time.Now()
	report, err := s.Sweep(ctx)
	if err != nil {
		s.log.Error("Lifecycle sweep failed", "error", err)
		return
	}
	if report.Skipped {
		s.log.Debug("Lifecycle sweep skipped, not the leader", "instance_id", s.opts.InstanceID)
		return
	}

	s.log.Info("Lifecycle sweep finished",
		"examined", report.Examined,
		"opened", report.Opened,
		"closed", report.Closed,
		"ending_soon", report.EndingSoon,
		"failed", report.Failed,
		"duration", time.Since(started))
}

// Sweep applies the due transition to every due auction. Auctions are
// processed concurrently and one auction's failure is counted, logged and
// otherwise ignored. Only failures that prevent the sweep as a whole are returned.
func (s *CronLifecycleScheduler) Sweep(ctx context.Context) (SweepReport, error) {
	var report SweepReport

	if s.leader != nil {
		isLeader, err := s.leader.IsLeader(ctx, s.opts.InstanceID)
		if err != nil {
			return report, fmt.Errorf("scheduler: leadership check: %w", err)
		}
		if !isLeader {
			report.Skipped = true
			return report, nil
		}
	}

	now := s.now()
	due, err := s.store.Repositories().Auctions.ListDue(ctx, now, s.opts.EndingSoonWindow)
	if err != nil {
		return report, fmt.Errorf("scheduler: list due auctions: %w", err)
	}
	report.Examined = len(due)

	var mu sync.Mutex
	p := pool.New().WithMaxGoroutines(s.opts.Workers)
	for _, auction := range due {
		p.Go(func() {
			event, err := s.advanceSafely(ctx, auction.ID, now)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				report.Failed++
				s.log.Error("Failed to advance auction", "auction_id", auction.ID, "error", err)
				return
			}
			switch event {
			case domain.EventOpened:
				report.Opened++
			case domain.EventClosed:
				report.Closed++
			case domain.EventEndingSoon:
				report.EndingSoon++
			}
		})
	}
	p.Wait()

	return report, nil
}

func (s *CronLifecycleScheduler) advanceSafely(ctx context.Context, auctionID string, now time.Time) (event domain.EventKind, err error) {
	var pc panics.Catcher
	pc.Try(func() {
		event, err = s.advance(ctx, auctionID, now)
	})
	if r := pc.Recovered(); r != nil {
		return "", fmt.Errorf("advance auction %s: %w", auctionID, r.AsError())
	}
	return event, err
}

// advance re-evaluates the auction on the locked row so a concurrent user
// action or another sweep cannot apply the same transition twice. It returns
// the announced event, or "" when nothing was due any more.
func (s *CronLifecycleScheduler) advance(ctx context.Context, auctionID string, now time.Time) (domain.EventKind, error) {
	var (
		tr       domain.Transition
		due      bool
		snapshot *domain.Auction
	)
	err := s.store.WithinTx(ctx, func(ctx context.Context, repos domain.Repositories) error {
		auction, err := repos.Auctions.GetAuctionForUpdate(ctx, auctionID)
		if err != nil {
			return err
		}
		tr, due = domain.NextTransition(auction, now, s.opts.EndingSoonWindow)
		snapshot = auction
		if !due || !tr.ChangesStatus() {
			return nil
		}

		if err := auction.Advance(tr.To, now); err != nil {
			return err
		}
		if err := repos.Auctions.UpdateAuction(ctx, auction); err != nil {
			return err
		}
		return repos.History.AppendStatusChange(ctx, &domain.StatusChange{
			AuctionID: auctionID,
			From:      tr.From,
			To:        tr.To,
			Cause:     domain.CauseScheduler,
			At:        now,
		})
	})
	if errors.Is(err, domain.ErrNotFound) {
		// deleted after it was listed
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("advance auction %s: %w", auctionID, err)
	}
	if !due {
		return "", nil
	}

	if tr.Event == domain.EventEndingSoon {
		first, err := s.ledger.MarkEndingSoon(ctx, auctionID, snapshot.EndDate)
		if err != nil {
			return "", fmt.Errorf("advance auction %s: ending soon mark: %w", auctionID, err)
		}
		if !first {
			return "", nil
		}
	}

	s.notifier.Announce(ctx, tr.Event, snapshot)
	s.log.Info("Auction advanced", "auction_id", auctionID, "event", tr.Event, "status", snapshot.Status)
	return tr.Event, nil
}

// cronLogger routes cron's own messages through the service logger.
type cronLogger struct {
	log logger.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}
