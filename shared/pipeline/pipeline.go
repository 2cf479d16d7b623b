// Package pipeline runs the loader over every segment in a directory with a
// fixed pool of workers.
package pipeline

import (
	"context"
	"fmt"
	"path/filepath"
	"runtime"
	"sort"
	"time"

	"github.com/helloharbor/harbor-workers/cap-alerts/shared/archive"
	"github.com/helloharbor/harbor-workers/cap-alerts/shared/loader"
	"github.com/helloharbor/harbor-workers/cap-alerts/shared/metrics"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

const defaultProgressInterval = 5 * time.Second

type State string

const (
	StatePending   State = "pending"
	StateRunning   State = "running"
	StateCompleted State = "completed"
	StateFailed    State = "failed"
)

// Session is a store session owned by exactly one worker.
type Session interface {
	loader.Session
	Close() error
}

// OpenSession is called once per worker.
type OpenSession func(ctx context.Context) (Session, error)

type Config struct {
	Dir              string
	Pattern          string
	Workers          int
	ProgressInterval time.Duration
}

type FileStatus struct {
	Path      string
	State     State
	Completed int
	Total     int
	Result    loader.Result
	Err       error
}

type Summary struct {
	Files     []FileStatus
	Attempted int
	Failed    int
	Loaded    int
}

// JobError is returned when at least one file failed. File is the first
// failed file in discovery order.
type JobError struct {
	File        string
	FailedFiles int
	Err         error
}

func (e *JobError) Error() string {
	return fmt.Sprintf("%d file(s) failed, first %s: %s", e.FailedFiles, filepath.Base(e.File), e.Err)
}

func (e *JobError) Unwrap() error { return e.Err }

type Pipeline struct {
	cfg     Config
	open    OpenSession
	log     log.FieldLogger
	metrics *metrics.Loader
}

func New(cfg Config, open OpenSession, logger log.FieldLogger, m *metrics.Loader) *Pipeline {
	if cfg.Pattern == "" {
		cfg.Pattern = archive.DefaultPattern
	}
	if cfg.ProgressInterval <= 0 {
		cfg.ProgressInterval = defaultProgressInterval
	}
	return &Pipeline{cfg: cfg, open: open, log: logger, metrics: m}
}

// Discover lists the segments in dir matching pattern, sorted by name.
func Discover(dir, pattern string) ([]string, error) {
	files, err := filepath.Glob(filepath.Join(dir, pattern))
	if err != nil {
		return nil, err
	}
	sort.Strings(files)
	return files, nil
}

// update is the only message workers send; the aggregator owns all status.
type update struct {
	idx       int
	state     State
	completed int
	total     int
	result    loader.Result
	err       error
}

// Run loads every discovered file and returns once all of them are terminal.
func (p *Pipeline) Run(ctx context.Context) (Summary, error) {
	files, err := Discover(p.cfg.Dir, p.cfg.Pattern)
	if err != nil {
		return Summary{}, err
	}
	if len(files) == 0 {
		p.log.WithField("dir", p.cfg.Dir).Warn("no segment files found")
		return Summary{}, nil
	}

	workers := p.cfg.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	if workers > len(files) {
		workers = len(files)
	}

	statuses := make([]FileStatus, len(files))
	tasks := make(chan int, len(files))
	for i, f := range files {
		statuses[i] = FileStatus{Path: f, State: StatePending}
		tasks <- i
	}
	close(tasks)

	p.log.WithFields(log.Fields{
		"files":   len(files),
		"workers": workers,
	}).Info("starting load")

	updates := make(chan update, 256)
	done := make(chan struct{})
	go func() {
		p.aggregate(statuses, updates)
		close(done)
	}()

	var g errgroup.Group
	for w := 0; w < workers; w++ {
		g.Go(func() error {
			return p.work(ctx, files, tasks, updates)
		})
	}
	workErr := g.Wait()
	close(updates)
	<-done

	// only reachable when a worker could not open its session
	for i := range statuses {
		if statuses[i].State == StatePending || statuses[i].State == StateRunning {
			statuses[i].State = StateFailed
			statuses[i].Err = workErr
		}
	}

	return summarize(statuses)
}

func (p *Pipeline) work(ctx context.Context, files []string, tasks <-chan int, updates chan<- update) error {
	sess, err := p.open(ctx)
	if err != nil {
		p.log.WithError(err).Error("could not open store session")
		return err
	}
	defer sess.Close()

	ld := loader.New(sess, p.log, p.metrics)
	for idx := range tasks {
		updates <- update{idx: idx, state: StateRunning}
		res, err := ld.LoadFile(ctx, files[idx], func(completed, total int) {
			updates <- update{idx: idx, state: StateRunning, completed: completed, total: total}
		})
		state := StateCompleted
		if err != nil {
			state = StateFailed
			p.log.WithField("file", filepath.Base(files[idx])).WithError(err).Error("file failed")
		}
		updates <- update{idx: idx, state: state, completed: res.Attempted, total: res.Attempted, result: res, err: err}
	}
	return nil
}

func (p *Pipeline) aggregate(statuses []FileStatus, updates <-chan update) {
	ticker := time.NewTicker(p.cfg.ProgressInterval)
	defer ticker.Stop()

	for {
		select {
		case u, ok := <-updates:
			if !ok {
				return
			}
			s := &statuses[u.idx]
			s.State = u.state
			if u.completed > s.Completed {
				s.Completed = u.completed
			}
			if u.total > s.Total {
				s.Total = u.total
			}
			if u.state == StateCompleted || u.state == StateFailed {
				s.Result = u.result
				s.Err = u.err
			}
		case <-ticker.C:
			p.logProgress(statuses)
		}
	}
}

func (p *Pipeline) logProgress(statuses []FileStatus) {
	var done, completed, total int
	for _, s := range statuses {
		if s.State == StateCompleted || s.State == StateFailed {
			done++
		}
		completed += s.Completed
		total += s.Total
	}
	p.log.WithFields(log.Fields{
		"filesDone":    done,
		"files":        len(statuses),
		"records":      completed,
		"recordsKnown": total,
	}).Info("progress")
}

func summarize(statuses []FileStatus) (Summary, error) {
	sum := Summary{Files: statuses}
	var jobErr *JobError
	for _, s := range statuses {
		sum.Attempted += s.Result.Attempted
		sum.Failed += s.Result.Failed
		sum.Loaded += s.Result.Loaded
		if s.State != StateFailed {
			continue
		}
		if jobErr == nil {
			jobErr = &JobError{File: s.Path, Err: s.Err}
		}
		jobErr.FailedFiles++
	}
	if jobErr != nil {
		return sum, jobErr
	}
	return sum, nil
}
