// Package worker records relayed turns off the relay's hot path.
//
// Each job is stored with the configured storage.Driver and then announced on
// the configured eventstream.Publisher. Neither step can slow down or fail the
// stream the UI is reading.
package worker

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/papercomputeco/typhoon/pkg/eventstream"
	"github.com/papercomputeco/typhoon/pkg/storage"
)

var (
	defaultNumWorkers   uint = 3
	defaultJobQueueSize uint = 256
	defaultJobTimeout        = 10 * time.Second
)

// Job is one finished relay to record.
type Job struct {
	Turn *storage.Turn

	// Path is the relay route that served the turn.
	Path string

	// HTTPStatus is the status the UI received.
	HTTPStatus int
}

// Config is the configuration options for the worker pool.
type Config struct {
	// Driver stores turns.
	Driver storage.Driver

	// Publisher announces stored turns. Optional.
	Publisher eventstream.Publisher

	// NumWorkers is the number of background workers in the pool.
	NumWorkers uint

	// QueueSize is the capacity of the buffered job channel (defaults to 256).
	QueueSize uint

	// JobTimeout bounds the storage and publish calls of one job.
	JobTimeout time.Duration

	Logger *zap.Logger
}

// Pool processes jobs asynchronously.
type Pool struct {
	config *Config
	queue  chan Job
	wg     sync.WaitGroup
	logger *zap.Logger
}

// NewPool creates a Pool and starts its workers.
func NewPool(c *Config) (*Pool, error) {
	if c.Driver == nil {
		return nil, fmt.Errorf("worker pool requires a storage driver")
	}
	if c.NumWorkers == 0 {
		c.NumWorkers = defaultNumWorkers
	}
	if c.QueueSize == 0 {
		c.QueueSize = defaultJobQueueSize
	}
	if c.JobTimeout == 0 {
		c.JobTimeout = defaultJobTimeout
	}
	if c.NumWorkers > uint(math.MaxInt) {
		return nil, fmt.Errorf("NumWorkers %d exceeds max int", c.NumWorkers)
	}
	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}

	wp := &Pool{
		config: c,
		queue:  make(chan Job, c.QueueSize),
		logger: c.Logger,
	}

	wp.wg.Add(int(c.NumWorkers))
	for i := range c.NumWorkers {
		go wp.worker(i)
	}

	return wp, nil
}

// Enqueue submits a job. It returns false, dropping the job, when the queue
// is full.
func (p *Pool) Enqueue(job Job) bool {
	if job.Turn == nil {
		p.logger.Warn("job without a turn dropped", zap.String("path", job.Path))
		return false
	}

	select {
	case p.queue <- job:
		p.logger.Debug("job queued",
			zap.String("turn_id", job.Turn.ID),
			zap.String("status", string(job.Turn.Status)),
		)
		return true
	default:
		p.logger.Error("job not queued, queue full, job dropped",
			zap.String("turn_id", job.Turn.ID),
			zap.String("path", job.Path),
		)
		return false
	}
}

// Close stops accepting jobs and waits for queued jobs to finish. Call it
// after the HTTP server has stopped.
func (p *Pool) Close() {
	close(p.queue)
	p.wg.Wait()
}

func (p *Pool) worker(id uint) {
	defer p.wg.Done()
	p.logger.Debug("worker started", zap.Uint("worker_id", id))

	for job := range p.queue {
		p.processJob(job)
	}

	p.logger.Debug("worker stopped", zap.Uint("worker_id", id))
}

func (p *Pool) processJob(job Job) {
	ctx, cancel := context.WithTimeout(context.Background(), p.config.JobTimeout)
	defer cancel()

	if err := p.config.Driver.Put(ctx, job.Turn); err != nil {
		p.logger.Error("storing turn failed",
			zap.String("turn_id", job.Turn.ID),
			zap.Error(err),
		)
		return
	}

	p.logger.Info("turn stored",
		zap.String("turn_id", job.Turn.ID),
		zap.String("status", string(job.Turn.Status)),
		zap.String("source", string(job.Turn.Source)),
		zap.Int("tokens", job.Turn.Tokens),
		zap.Duration("duration", job.Turn.Duration()),
	)

	if p.config.Publisher == nil {
		return
	}

	event := eventstream.NewTurnRelayedEvent(job.Turn, job.Path, job.HTTPStatus)
	if err := p.config.Publisher.PublishTurn(ctx, event); err != nil {
		p.logger.Warn("publishing turn event failed",
			zap.String("turn_id", job.Turn.ID),
			zap.Error(err),
		)
	}
}
