package bot

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/adhocore/gronx"
	"github.com/dustin/go-humanize"

	"github.com/five82/rikipost/internal/state"
)

// DefaultInterval is the pause between ticks without a cron expression.
const DefaultInterval = 2 * time.Hour

// Store persists the ledger and history between ticks.
type Store interface {
	LoadLedger() (state.Ledger, error)
	Commit(l state.Ledger, rec state.PublishRecord) error
}

// Schedule decides when ticks run. A non-empty Cron wins over Interval.
type Schedule struct {
	Interval        time.Duration
	Cron            string
	PostImmediately bool
}

// Next returns the first tick time after after.
func (s Schedule) Next(after time.Time) (time.Time, error) {
	if s.Cron != "" {
		next, err := gronx.NextTickAfter(s.Cron, after, false)
		if err != nil {
			return time.Time{}, fmt.Errorf("next tick for %q: %w", s.Cron, err)
		}
		return next, nil
	}
	interval := s.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	return after.Add(interval), nil
}

// Run loads the ledger and ticks on sched until ctx is cancelled. Ticks never
// overlap; a failed tick is logged and the loop carries on. Slots missed while
// the process was behind are dropped, so at most one tick runs per slot.
func (b *Bot) Run(ctx context.Context, store Store, sched Schedule) error {
	ledger, err := store.LoadLedger()
	if err != nil {
		return fmt.Errorf("load ledger: %w", err)
	}
	ledgerSize.Set(float64(ledger.Len()))
	b.logger.Info("bot started", "ledger_size", ledger.Len(), "cron", sched.Cron, "interval", sched.Interval)

	if sched.PostImmediately {
		res, _ := b.RunOnce(ctx, store, ledger)
		ledger = res.Ledger
	}

	base := b.now()
	for {
		now := b.now()
		at, err := nextSlot(sched, base, now)
		if err != nil {
			return err
		}
		b.logger.Info("next tick scheduled", "at", at.Format(time.RFC3339), "in", humanize.RelTime(at, now, "ago", "from now"))

		timer := time.NewTimer(max(at.Sub(now), 0))
		select {
		case <-ctx.Done():
			timer.Stop()
			b.logger.Info("bot stopping")
			return nil
		case <-timer.C:
		}
		res, _ := b.RunOnce(ctx, store, ledger)
		ledger = res.Ledger
		base = at
	}
}

// nextSlot returns the slot after base, or the first slot after now when that
// one has already passed.
func nextSlot(sched Schedule, base, now time.Time) (time.Time, error) {
	at, err := sched.Next(base)
	if err != nil {
		return time.Time{}, err
	}
	if at.After(now) {
		return at, nil
	}
	return sched.Next(now)
}

// RunOnce runs one tick and commits its result. Result.Ledger is the one
// later ticks must use: it includes a published image even when persisting it
// failed, so the process never repeats it. On a failed tick it is the input
// ledger.
func (b *Bot) RunOnce(ctx context.Context, store Store, ledger state.Ledger) (Result, error) {
	started := time.Now()
	res, err := b.Tick(ctx, ledger)
	tickDuration.Observe(time.Since(started).Seconds())
	if err != nil {
		stage := "unknown"
		var tickErr *TickError
		if errors.As(err, &tickErr) {
			stage = string(tickErr.Stage)
		}
		ticksTotal.WithLabelValues(stage).Inc()
		b.logger.Error("tick failed", "stage", stage, "error", err)
		return Result{Ledger: ledger}, err
	}

	if err := store.Commit(res.Ledger, res.Record); err != nil {
		ticksTotal.WithLabelValues(string(StageRecording)).Inc()
		b.logger.Error("status published but state was not saved", "vk_id", res.Record.Image.VKID, "status_id", res.Record.RemotePostID, "error", err)
		return res, &TickError{Stage: StageRecording, Err: err}
	}
	ticksTotal.WithLabelValues(string(StageDone)).Inc()
	ledgerSize.Set(float64(res.Ledger.Len()))
	lastPublished.Set(float64(res.Record.PublishedAt.Unix()))
	return res, nil
}
