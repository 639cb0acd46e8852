package mailer

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

type queuedMessage struct {
	cfg     *Config
	msg     Message
	retries int
}

type Queue struct {
	mailer   *Mailer
	ch       chan queuedMessage
	rate     time.Duration
	maxRetry int
	backoff  time.Duration
	onResult func(ok bool)
}

func NewQueue(m *Mailer, rate time.Duration, bufferSize, maxRetry int) *Queue {
	return &Queue{
		mailer:   m,
		ch:       make(chan queuedMessage, bufferSize),
		rate:     rate,
		maxRetry: maxRetry,
		backoff:  5 * time.Second,
		onResult: func(bool) {},
	}
}

// OnResult registers a callback invoked after every final delivery outcome.
func (q *Queue) OnResult(fn func(ok bool)) {
	q.onResult = fn
}

// Start processes queued messages at the configured rate until ctx is cancelled.
// On shutdown it drains any remaining messages before returning.
func (q *Queue) Start(ctx context.Context) {
	ticker := time.NewTicker(q.rate)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			q.drain()
			return
		case <-ticker.C:
			select {
			case item := <-q.ch:
				q.attempt(ctx, item)
			default:
				// no message ready; wait for next tick
			}
		}
	}
}

// Enqueue adds a message for delivery through cfg. Bodies must already be
// encrypted when the recipient has a key.
func (q *Queue) Enqueue(cfg *Config, msg Message) error {
	select {
	case q.ch <- queuedMessage{cfg: cfg, msg: msg}:
		return nil
	default:
		return fmt.Errorf("mailer: queue full, message not queued")
	}
}

// attempt sends a message, scheduling a context-aware retry with backoff on failure.
func (q *Queue) attempt(ctx context.Context, item queuedMessage) {
	err := q.mailer.Send(item.cfg, item.msg)
	if err == nil {
		q.onResult(true)
		return
	}

	if item.retries >= q.maxRetry {
		slog.Error("mailer: message dropped after max retries", "host", item.cfg.Host, "err", err)
		q.onResult(false)
		return
	}

	item.retries++
	backoff := time.Duration(item.retries) * q.backoff
	slog.Warn("mailer: send failed, retrying with backoff", "host", item.cfg.Host, "retry", item.retries, "backoff", backoff, "err", err)

	go func() {
		select {
		case <-time.After(backoff):
			select {
			case q.ch <- item:
			default:
				slog.Error("mailer: requeue failed, queue full, message dropped", "host", item.cfg.Host)
				q.onResult(false)
			}
		case <-ctx.Done():
			slog.Warn("mailer: retry cancelled during shutdown", "host", item.cfg.Host)
		}
	}()
}

// drain flushes remaining queued messages on shutdown, best-effort.
func (q *Queue) drain() {
	for {
		select {
		case item := <-q.ch:
			err := q.mailer.Send(item.cfg, item.msg)
			if err != nil {
				slog.Error("mailer: drain send failed", "host", item.cfg.Host, "err", err)
			}
			q.onResult(err == nil)
		default:
			return
		}
	}
}
