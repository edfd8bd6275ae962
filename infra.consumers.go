package main

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Delays applied between failing queue pops, doubled on each consecutive failure.
const (
	popRetryMinDelay = 100 * time.Millisecond
	popRetryMaxDelay = 5 * time.Second
)

type Consumer interface {
	Consume(ctx context.Context, qids ...string) error
}

type journalConsumer struct {
	logger   *zap.Logger
	queue    Queuer
	journal  Journal
	minDelay time.Duration
	maxDelay time.Duration
}

// NewJournalConsumer returns a consumer which moves queued events into the journal.
func NewJournalConsumer(logger *zap.Logger, q Queuer, journal Journal) Consumer {
	return &journalConsumer{logger, q, journal, popRetryMinDelay, popRetryMaxDelay}
}

// Consume pops events until the context is done. A failing queue is retried
// with a growing delay so an unreachable redis does not spin the loop.
func (jc *journalConsumer) Consume(ctx context.Context, qids ...string) error {
	delay := jc.minDelay
	for {
		qid, event, err := jc.queue.Pop(ctx, qids...)
		if err != nil && ctx.Err() != nil {
			jc.logger.Info("consumer: queue pop call: context is done: exit", zap.String("reason", ctx.Err().Error()))
			return nil
		}

		if err != nil {
			jc.logger.Error("consumer: error on queue pop call", zap.Duration("retry.in", delay), zap.Error(err))
			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				jc.logger.Info("consumer: waiting retry: context is done: exit", zap.String("reason", ctx.Err().Error()))
				return nil
			case <-timer.C:
			}
			delay = min(2*delay, jc.maxDelay)
			continue
		}
		delay = jc.minDelay

		switch qid {
		case EventUserSignedUp, EventBookCreated, EventBookBorrowed:
			if err = jc.journal.Append(ctx, event); err != nil {
				jc.logger.Error("consumer: failed to append event", zap.Any("event", event), zap.Error(err))
			}
		default:
			jc.logger.Warn("consumer: received event on unknown queue id", zap.String("qid", qid), zap.Any("event", event))
		}
	}
}
