package jobs

import (
	"context"
	"log"
	"time"

	"github.com/aurumpay/backend/internal/config"
	"github.com/aurumpay/backend/internal/models"
	"github.com/aurumpay/backend/internal/services/gate"
	"github.com/aurumpay/backend/internal/services/movement"
	"github.com/aurumpay/backend/internal/services/reconciliation"
	"github.com/go-co-op/gocron"
	"github.com/google/uuid"
)

// Scheduler runs the periodic reconciliation and expiry sweeps. Both
// paths call the same service code as the request handlers.
type Scheduler struct {
	scheduler *gocron.Scheduler
	reconSvc  *reconciliation.Service
	movement  *movement.Service
	gateSvc   *gate.Service
	cfg       config.ReconciliationConfig
}

// NewScheduler creates a new job scheduler
func NewScheduler(reconSvc *reconciliation.Service, movementSvc *movement.Service, gateSvc *gate.Service, cfg config.ReconciliationConfig) *Scheduler {
	return &Scheduler{
		scheduler: gocron.NewScheduler(time.UTC),
		reconSvc:  reconSvc,
		movement:  movementSvc,
		gateSvc:   gateSvc,
		cfg:       cfg,
	}
}

// Start schedules all recurring jobs and starts the scheduler in the
// background
func (s *Scheduler) Start() error {
	if _, err := s.scheduler.Every(1).Day().At(s.cfg.ScheduleTime).Do(s.runReconciliation); err != nil {
		return err
	}

	if _, err := s.scheduler.Every(5).Minutes().Do(s.runExpirySweep); err != nil {
		return err
	}

	s.scheduler.StartAsync()
	log.Printf("Job scheduler started: daily reconciliation at %s UTC, expiry sweep every 5 minutes", s.cfg.ScheduleTime)
	return nil
}

// Stop stops the scheduler
func (s *Scheduler) Stop() {
	s.scheduler.Stop()
}

// runReconciliation generates the daily scheduled report. A partial
// snapshot aborts with no report; the next tick retries.
func (s *Scheduler) runReconciliation() {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	report, err := s.reconSvc.Generate(ctx, uuid.Nil, models.ReportSourceScheduled)
	if err != nil {
		log.Printf("Scheduled reconciliation failed: %v", err)
		return
	}

	log.Printf("Scheduled reconciliation for %s: status=%s delta=%s grams",
		report.ReportDate.Format("2006-01-02"), report.Status, report.DeltaGrams.String())
}

// runExpirySweep expires overdue pending requests and stale gate tickets
func (s *Scheduler) runExpirySweep() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	expired, err := s.movement.ExpireStale(ctx)
	if err != nil {
		log.Printf("Request expiry sweep failed: %v", err)
	} else if expired > 0 {
		log.Printf("Expired %d overdue money-movement requests", expired)
	}

	tickets, err := s.gateSvc.ExpireStaleTickets(ctx)
	if err != nil {
		log.Printf("Gate ticket expiry sweep failed: %v", err)
	} else if tickets > 0 {
		log.Printf("Invalidated %d expired gate tickets", tickets)
	}
}
