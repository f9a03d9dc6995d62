/*
scheduler.go - Monthly fee aggregation scheduler

PURPOSE:
  Runs the monthly fee aggregation on a cron schedule, aggregating the
  previous calendar month. The default schedule fires shortly after
  month-start, when the prior month's membership is final.

DESIGN:
  - robfig/cron with a Recover chain so a panicking job cannot take the
    process down
  - Regeneration is wholesale per month, so re-running a job is safe
  - ErrNoEligibleMembers is logged and otherwise ignored: an empty roster
    is a valid state, not a failure

USAGE:
  scheduler := NewFeeScheduler(feeService, "0 2 1 * *")
  scheduler.Start()
  // ... later
  scheduler.Stop()

SEE ALSO:
  - fees/aggregate.go: GenerateMonthly and PreviousMonth
  - cmd/server/main.go: wiring and the enable flag
*/
package api

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/warp/benefit-engine/fees"
)

// FeeScheduler triggers monthly fee aggregation on a cron schedule.
type FeeScheduler struct {
	Fees     *fees.Service
	Schedule string

	cron *cron.Cron
}

// NewFeeScheduler creates a scheduler for the given cron expression.
func NewFeeScheduler(feeService *fees.Service, schedule string) *FeeScheduler {
	return &FeeScheduler{
		Fees:     feeService,
		Schedule: schedule,
		cron:     cron.New(cron.WithChain(cron.Recover(cron.DefaultLogger))),
	}
}

// Start registers the job and begins the cron loop.
func (fs *FeeScheduler) Start() error {
	if _, err := fs.cron.AddFunc(fs.Schedule, fs.runOnce); err != nil {
		return err
	}
	fs.cron.Start()
	log.Printf("[Scheduler] Fee aggregation scheduled: %q", fs.Schedule)
	return nil
}

// Stop halts the cron loop and waits for a running job to finish.
func (fs *FeeScheduler) Stop() {
	ctx := fs.cron.Stop()
	<-ctx.Done()
	log.Println("[Scheduler] Stopped")
}

func (fs *FeeScheduler) runOnce() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	yearMonth := fees.PreviousMonth(time.Now())
	count, err := fs.Fees.GenerateMonthly(ctx, yearMonth)
	if errors.Is(err, fees.ErrNoEligibleMembers) {
		log.Printf("[Scheduler] No eligible members for %s, nothing generated", yearMonth)
		return
	}
	if err != nil {
		log.Printf("[Scheduler] Fee aggregation for %s failed: %v", yearMonth, err)
		return
	}
	log.Printf("[Scheduler] Aggregated fees for %s: %d companies", yearMonth, count)
}
