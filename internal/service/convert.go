// Package service contains background workers used by the HTTP handlers
package service

import (
	"context"
	"errors"
	"fmt"
	"image/gif"
	"image/jpeg"
	"image/png"
	"io"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/sergioamr/img-api/internal/media"
	"github.com/sergioamr/img-api/internal/metrics"

	"go.uber.org/zap"
	"golang.org/x/image/bmp"
)

var (
	ErrQueueFull         = errors.New("job queue full")
	ErrUnsupportedTarget = errors.New("unsupported target format")
)

var contentTypes = map[string]string{
	"png":  "image/png",
	"jpg":  "image/jpeg",
	"jpeg": "image/jpeg",
	"gif":  "image/gif",
	"bmp":  "image/bmp",
}

// TargetFormat normalizes a requested conversion format and returns the
// content type it is served with.
func TargetFormat(format string) (string, string, error) {
	format = strings.ToLower(strings.TrimPrefix(format, "."))

	ct, ok := contentTypes[format]
	if !ok {
		return "", "", ErrUnsupportedTarget
	}

	return format, ct, nil
}

type ConvertJob struct {
	ID        string
	UserID    string
	Source    io.Reader
	SourceExt string
	Format    string
	Output    io.Writer
	Ctx       context.Context
	Done      chan error
}

type JobQueue struct {
	jobs    chan *ConvertJob
	running atomic.Int32
	workers int
	wg      sync.WaitGroup
	once    sync.Once
}

// NewJobQueue initializes a new job queue that limits the
// max amount of jobs that can be queued at once
func NewJobQueue(workers, maxJobs int) *JobQueue {
	if workers <= 0 {
		workers = 1
	}

	zap.L().Debug("Initializing job queue", zap.Int("workers", workers), zap.Int("max_jobs", maxJobs))

	return &JobQueue{
		jobs:    make(chan *ConvertJob, maxJobs),
		workers: workers,
	}
}

func (q *JobQueue) StartWorkerPool() {
	for i := 0; i < q.workers; i++ {
		q.wg.Add(1)
		go q.worker()
	}
}

// Stop stops accepting jobs and waits for queued ones to finish.
func (q *JobQueue) Stop() {
	q.once.Do(func() { close(q.jobs) })
	q.wg.Wait()
}

// Running returns the number of queued and in-flight jobs.
func (q *JobQueue) Running() int32 {
	return q.running.Load()
}

func (q *JobQueue) worker() {
	defer q.wg.Done()

	for job := range q.jobs {
		err := job.Ctx.Err()
		if err == nil {
			err = runConvertJob(job)
		}

		q.running.Add(-1)

		job.Done <- err
		close(job.Done)

		if err != nil {
			metrics.Conversions.WithLabelValues(job.Format, "error").Inc()
			zap.L().Error("Conversion job finished with an error",
				zap.String("user_id", job.UserID),
				zap.String("job_id", job.ID),
				zap.Error(err))
		} else {
			metrics.Conversions.WithLabelValues(job.Format, "ok").Inc()
			zap.L().Debug("Conversion job finished successfully", zap.String("job_id", job.ID))
		}
	}
}

// Enqueue hands job to the pool. Done must be buffered so a worker never
// blocks on a caller that stopped waiting.
func (q *JobQueue) Enqueue(job *ConvertJob) error {
	if _, _, err := TargetFormat(job.Format); err != nil {
		return err
	}

	q.running.Add(1)

	select {
	case q.jobs <- job:
		zap.L().Debug("New conversion job enqueued", zap.Int32("enqueued", q.running.Load()), zap.String("user_id", job.UserID))
		return nil
	default:
		q.running.Add(-1)
		return ErrQueueFull
	}
}

// Convert enqueues a job and waits for it or for ctx to end.
func (q *JobQueue) Convert(ctx context.Context, job *ConvertJob) error {
	job.Ctx = ctx
	job.Done = make(chan error, 1)

	if err := q.Enqueue(job); err != nil {
		return err
	}

	select {
	case err := <-job.Done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func runConvertJob(job *ConvertJob) error {
	img, err := media.Decode(job.Source, job.SourceExt)
	if err != nil {
		return fmt.Errorf("failed to decode source image, %w", err)
	}

	if err := job.Ctx.Err(); err != nil {
		return err
	}

	format, _, _ := TargetFormat(job.Format)

	switch format {
	case "png":
		err = png.Encode(job.Output, img)
	case "jpg", "jpeg":
		err = jpeg.Encode(job.Output, img, &jpeg.Options{Quality: 90})
	case "gif":
		err = gif.Encode(job.Output, img, nil)
	case "bmp":
		err = bmp.Encode(job.Output, img)
	}
	if err != nil {
		return fmt.Errorf("failed to encode %s, %w", format, err)
	}

	return nil
}
