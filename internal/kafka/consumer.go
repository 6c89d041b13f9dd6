package kafka

import (
	"context"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// Handler harus return nil hanya jika proses sukses & boleh commit offset.
type Handler func(ctx context.Context, m kafka.Message) error

type ConsumerOptions struct {
	Workers int
	// attempts per message before it is logged as dead and committed
	MaxAttempts int
	// first retry delay, doubled on every attempt
	Backoff time.Duration
}

type Consumer struct {
	r    *kafka.Reader
	opts ConsumerOptions
	log  *zap.Logger
}

func NewConsumer(brokers []string, group, topic string, opts ConsumerOptions, logger *zap.Logger) *Consumer {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        brokers,
		GroupID:        group,
		Topic:          topic,
		MinBytes:       1,
		MaxBytes:       10e6,
		CommitInterval: 0, // manual commit
	})
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Consumer{r: r, opts: opts.withDefaults(), log: logger}
}

func (o ConsumerOptions) withDefaults() ConsumerOptions {
	if o.Workers <= 0 {
		o.Workers = 1
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = 3
	}
	if o.Backoff <= 0 {
		o.Backoff = 200 * time.Millisecond
	}
	return o
}

// Start fetches messages and fans them out to the workers until ctx ends.
// A message is committed once handled or once its attempts run out, so one
// bad message cannot stall the partition.
func (c *Consumer) Start(ctx context.Context, h Handler) error {
	defer c.r.Close()

	jobs := make(chan kafka.Message, 1024)
	done := make(chan struct{})
	go func() {
		defer close(done)
		c.runWorkers(ctx, jobs, h)
	}()
	defer func() { <-done }()

	// dispatcher loop
	for {
		m, err := c.r.FetchMessage(ctx)
		if err != nil {
			close(jobs)
			// kecilkan noise saat shutdown
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		select {
		case jobs <- m:
		case <-ctx.Done():
			close(jobs)
			return nil
		}
	}
}

func (c *Consumer) runWorkers(ctx context.Context, jobs <-chan kafka.Message, h Handler) {
	finished := make(chan struct{}, c.opts.Workers)
	for i := 0; i < c.opts.Workers; i++ {
		go func(id int) {
			defer func() { finished <- struct{}{} }()
			for m := range jobs {
				if err := Deliver(ctx, h, m, c.opts.MaxAttempts, c.opts.Backoff); err != nil {
					if ctx.Err() != nil {
						// leave uncommitted for the next member of the group
						continue
					}
					c.log.Error("message dead after retries",
						zap.Int("worker", id),
						zap.String("topic", m.Topic),
						zap.Int("partition", m.Partition),
						zap.Int64("offset", m.Offset),
						zap.Error(err),
					)
				}
				if err := c.r.CommitMessages(ctx, m); err != nil && ctx.Err() == nil {
					c.log.Warn("commit failed", zap.Int64("offset", m.Offset), zap.Error(err))
				}
			}
		}(i)
	}
	for i := 0; i < c.opts.Workers; i++ {
		<-finished
	}
}

// Deliver calls h until it succeeds, attempts run out or ctx ends, waiting
// backoff, 2*backoff, ... between attempts. It returns the last error.
func Deliver(ctx context.Context, h Handler, m kafka.Message, attempts int, backoff time.Duration) error {
	var err error
	wait := backoff
	for attempt := 1; attempt <= attempts; attempt++ {
		if err = h(ctx, m); err == nil {
			return nil
		}
		if attempt == attempts {
			break
		}
		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return err
		case <-t.C:
		}
		wait *= 2
	}
	return err
}
