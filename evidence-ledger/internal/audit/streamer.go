package audit

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/Kaaval/Main/evidence-ledger/internal/canonical"
	"github.com/Kaaval/Main/evidence-ledger/internal/metrics"
	"github.com/Kaaval/Main/evidence-ledger/internal/models"
	"github.com/Kaaval/Main/evidence-ledger/internal/store"
)

// Producer is the subset of producer behavior the streamer needs.
type Producer interface {
	Produce(ctx context.Context, key []byte, value []byte) (partition int, offset int64, producedAt time.Time, err error)
	Close() error
}

type StreamerConfig struct {
	// BatchSize is how many outbox rows are claimed at once.
	BatchSize int

	// PollInterval is the wait when there is no work or the claim failed.
	PollInterval time.Duration

	// MaxConcurrency bounds concurrent processing of a claimed batch.
	MaxConcurrency int
}

// Streamer hands ledger entries to the external ledger. The outbox table is
// the source of truth: rows are claimed, published to Kafka, archived to S3,
// and marked done or failed so failed rows are picked up again.
type Streamer struct {
	store    store.OutboxStore
	producer Producer
	archiver Archiver
	cfg      StreamerConfig
	wg       sync.WaitGroup
}

// NewStreamer builds a streamer. archiver may be nil when no archive bucket
// is configured.
func NewStreamer(s store.OutboxStore, producer Producer, archiver Archiver, cfg StreamerConfig) *Streamer {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 10
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 3 * time.Second
	}
	if cfg.MaxConcurrency <= 0 {
		cfg.MaxConcurrency = 5
	}
	return &Streamer{
		store:    s,
		producer: producer,
		archiver: archiver,
		cfg:      cfg,
	}
}

// Run polls the outbox until ctx is cancelled.
func (s *Streamer) Run(ctx context.Context) error {
	log.Printf("[audit.streamer] starting (batch=%d, concurrency=%d)", s.cfg.BatchSize, s.cfg.MaxConcurrency)
	defer log.Printf("[audit.streamer] stopped")
	defer func() {
		s.wg.Wait()
		if s.producer != nil {
			_ = s.producer.Close()
		}
	}()

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		n, err := s.RunOnce(ctx)
		if err != nil {
			log.Printf("[audit.streamer] claim pending: %v", err)
		}
		if err != nil || n == 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(s.cfg.PollInterval):
			}
		}
	}
}

// RunOnce claims one batch and processes it with bounded concurrency. It
// returns the number of entries claimed.
func (s *Streamer) RunOnce(ctx context.Context) (int, error) {
	entries, err := s.store.ClaimPendingOutbox(ctx, s.cfg.BatchSize)
	if err != nil {
		return 0, err
	}

	sem := make(chan struct{}, s.cfg.MaxConcurrency)
	for _, e := range entries {
		sem <- struct{}{}
		s.wg.Add(1)
		go func(e models.AuditEntry) {
			defer func() {
				<-sem
				s.wg.Done()
			}()
			if err := s.processEntry(ctx, e); err != nil {
				log.Printf("[audit.streamer] process entry %s error: %v", e.ID, err)
			}
		}(e)
	}
	s.wg.Wait()
	return len(entries), nil
}

// processEntry publishes then archives one entry and records the outcome.
func (s *Streamer) processEntry(parent context.Context, e models.AuditEntry) error {
	ctx, cancel := context.WithTimeout(parent, 30*time.Second)
	defer cancel()

	fail := func(stage string, err error) error {
		metrics.OutboxFailed(parent)
		msg := fmt.Sprintf("%s: %v", stage, err)
		if markErr := s.store.MarkOutboxResult(parent, e.ID, "", false, msg); markErr != nil {
			log.Printf("[audit.streamer] mark entry %s failed: %v", e.ID, markErr)
		}
		return fmt.Errorf("%s: %w", stage, err)
	}

	body, err := canonical.MarshalCanonical(envelope(e))
	if err != nil {
		return fail("canonicalize envelope", err)
	}

	// key by case so one case's entries stay ordered on a partition
	key := e.CaseID
	if key == "" {
		key = e.ID
	}
	_, _, producedAt, err := s.producer.Produce(ctx, []byte(key), body)
	if err != nil {
		return fail("kafka produce", err)
	}

	archiveKey := ""
	if s.archiver != nil {
		if archiveKey, err = s.archiver.Archive(ctx, e, body); err != nil {
			return fail("s3 archive", err)
		}
	}

	if err := s.store.MarkOutboxResult(parent, e.ID, archiveKey, true, ""); err != nil {
		return fmt.Errorf("mark entry published: %w", err)
	}
	metrics.OutboxPublished(parent)
	log.Printf("[audit.streamer] entry %s published: produced_at=%s archive_key=%q",
		e.ID, producedAt.Format(time.RFC3339Nano), archiveKey)
	return nil
}
