package worker

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"refgate-bot/internal/models"
	"refgate-bot/internal/relay"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Retractor removes a delivered copy from the recipient's chat.
type Retractor interface {
	Retract(ctx context.Context, d relay.Delivered) error
}

// Scheduler deletes delivered content once its exposure window ends.
//
// Every pending retraction is a row in the retractions table plus an
// in-process timer. The timer handles the normal case; the periodic sweep
// picks up rows whose timer was lost to a restart. Whoever deletes the row
// first performs the retraction, so each one runs at most once.
type Scheduler struct {
	DB             *gorm.DB
	Retractor      Retractor
	SweepEvery     time.Duration
	RetractTimeout time.Duration
	now            func() time.Time

	mu      sync.Mutex
	timers  map[string]*time.Timer
	stopped bool
}

func NewScheduler(db *gorm.DB, r Retractor, sweepEvery time.Duration) *Scheduler {
	return &Scheduler{
		DB:             db,
		Retractor:      r,
		SweepEvery:     sweepEvery,
		RetractTimeout: 15 * time.Second,
		now:            time.Now,
		timers:         make(map[string]*time.Timer),
	}
}

// Schedule records d for retraction after delay and returns without waiting.
func (s *Scheduler) Schedule(ctx context.Context, d relay.Delivered, delay time.Duration) error {
	if delay < 0 {
		delay = 0
	}
	now := s.clock()
	deliveredAt := d.DeliveredAt
	if deliveredAt.IsZero() {
		deliveredAt = now
	}

	row := models.Retraction{
		ID:          uuid.NewString(),
		ChatID:      d.Recipient,
		MessageID:   d.MessageID,
		DeliveredAt: deliveredAt.UTC(),
		DueAt:       now.Add(delay).UTC(),
	}
	if err := s.DB.WithContext(ctx).Create(&row).Error; err != nil {
		return fmt.Errorf("schedule retraction: %w", err)
	}

	s.arm(row.ID, delay)
	return nil
}

// Run sweeps due retractions every SweepEvery until ctx ends. Timers still
// pending at that point are dropped; their rows wait for the next process.
func (s *Scheduler) Run(ctx context.Context) error {
	log.Println("Retraction worker started")
	defer s.stopTimers()

	// Run once at start
	s.sweepAndLog(ctx)

	if s.SweepEvery <= 0 {
		<-ctx.Done()
		return nil
	}

	ticker := time.NewTicker(s.SweepEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.sweepAndLog(ctx)
		}
	}
}

// Sweep retracts every row that is already due and reports how many it ran.
func (s *Scheduler) Sweep(ctx context.Context) (int, error) {
	var ids []string
	err := s.DB.WithContext(ctx).Model(&models.Retraction{}).
		Where("due_at <= ?", s.clock().UTC()).
		Order("due_at").
		Limit(500).
		Pluck("id", &ids).Error
	if err != nil {
		return 0, fmt.Errorf("query due retractions: %w", err)
	}

	n := 0
	for _, id := range ids {
		if ctx.Err() != nil {
			break
		}
		if s.fire(id) {
			n++
		}
	}
	return n, nil
}

// Pending counts retractions not yet performed.
func (s *Scheduler) Pending(ctx context.Context) (int64, error) {
	var n int64
	if err := s.DB.WithContext(ctx).Model(&models.Retraction{}).Count(&n).Error; err != nil {
		return 0, err
	}
	return n, nil
}

func (s *Scheduler) sweepAndLog(ctx context.Context) {
	n, err := s.Sweep(ctx)
	if err != nil {
		log.Printf("Retraction sweep failed: %v", err)
		return
	}
	if n > 0 {
		log.Printf("Retraction sweep removed %d overdue messages", n)
	}
}

func (s *Scheduler) arm(id string, delay time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}
	if s.timers == nil {
		s.timers = make(map[string]*time.Timer)
	}
	s.timers[id] = time.AfterFunc(delay, func() {
		s.mu.Lock()
		delete(s.timers, id)
		s.mu.Unlock()
		s.fire(id)
	})
}

func (s *Scheduler) stopTimers() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = true
	for id, t := range s.timers {
		t.Stop()
		delete(s.timers, id)
	}
}

// fire claims the row by deleting it and, if the claim wins, retracts.
// Retraction errors (already deleted, chat gone) are logged and dropped.
func (s *Scheduler) fire(id string) bool {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout())
	defer cancel()

	var row models.Retraction
	if err := s.DB.WithContext(ctx).Where("id = ?", id).First(&row).Error; err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			log.Printf("Failed to load retraction %s: %v", id, err)
		}
		return false
	}

	res := s.DB.WithContext(ctx).Where("id = ?", id).Delete(&models.Retraction{})
	if res.Error != nil {
		log.Printf("Failed to claim retraction %s: %v", id, res.Error)
		return false
	}
	if res.RowsAffected != 1 {
		return false
	}

	err := s.Retractor.Retract(ctx, relay.Delivered{
		Recipient:   row.ChatID,
		MessageID:   row.MessageID,
		DeliveredAt: row.DeliveredAt,
	})
	if err != nil {
		log.Printf("Retraction of message %d in chat %d skipped: %v", row.MessageID, row.ChatID, err)
	}
	return true
}

func (s *Scheduler) timeout() time.Duration {
	if s.RetractTimeout <= 0 {
		return 15 * time.Second
	}
	return s.RetractTimeout
}

func (s *Scheduler) clock() time.Time {
	if s.now == nil {
		return time.Now()
	}
	return s.now()
}
