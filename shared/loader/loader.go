// Package loader loads one archive segment into the store, one transaction
// per alert.
package loader

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/helloharbor/harbor-workers/cap-alerts/shared/archive"
	"github.com/helloharbor/harbor-workers/cap-alerts/shared/capxml"
	"github.com/helloharbor/harbor-workers/cap-alerts/shared/metrics"
	"github.com/helloharbor/harbor-workers/cap-alerts/shared/models"
	"github.com/helloharbor/harbor-workers/cap-alerts/shared/normalizer"
	"github.com/helloharbor/harbor-workers/cap-alerts/shared/store"
	log "github.com/sirupsen/logrus"
)

// Session is the part of store.Session the loader needs.
type Session interface {
	InsertAlert(ctx context.Context, a *models.Alert) (int64, error)
	Ping(ctx context.Context) error
}

// Result counts records in one file. Loaded is always Attempted - Failed.
type Result struct {
	Attempted int
	Failed    int
	Loaded    int
}

// ProgressFunc receives (completed, total) after every record. completed
// never decreases.
type ProgressFunc func(completed, total int)

type Loader struct {
	session Session
	norm    *normalizer.Normalizer
	log     log.FieldLogger
	metrics *metrics.Loader
}

func New(session Session, logger log.FieldLogger, m *metrics.Loader) *Loader {
	return &Loader{
		session: session,
		norm:    normalizer.New(logger),
		log:     logger,
		metrics: m,
	}
}

// LoadFile loads every record of the segment at path. Record failures are
// counted and logged; the returned error is a *FileError and is only set
// when the file as a whole could not be processed.
func (l *Loader) LoadFile(ctx context.Context, path string, progress ProgressFunc) (res Result, err error) {
	start := time.Now()
	fileLog := l.log.WithField("file", filepath.Base(path))
	defer func() {
		state := "completed"
		if err != nil {
			state = "failed"
		}
		l.metrics.FileDone(state, time.Since(start))
	}()

	total, err := archive.Count(path)
	if err != nil {
		return res, &FileError{File: path, Err: err}
	}
	if progress != nil {
		progress(0, total)
	}

	for rec, readErr := range archive.Records(path) {
		if readErr != nil {
			return res, &FileError{File: path, Err: readErr}
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return res, &FileError{File: path, Err: ctxErr}
		}

		res.Attempted++
		recErr := l.loadRecord(ctx, path, rec)
		if recErr != nil {
			res.Failed++
			l.metrics.RecordFailed(string(recErr.Stage))
			fileLog.WithFields(log.Fields{
				"line":       recErr.Line,
				"identifier": recErr.Identifier,
				"stage":      recErr.Stage,
			}).Error(recErr.Err)
		} else {
			res.Loaded++
			l.metrics.RecordLoaded()
		}

		if total < res.Attempted {
			total = res.Attempted
		}
		if progress != nil {
			progress(res.Attempted, total)
		}

		if recErr != nil && errors.Is(recErr, store.ErrConnUnusable) {
			return res, &FileError{File: path, Err: recErr}
		}
	}

	fileLog.WithFields(log.Fields{
		"attempted": res.Attempted,
		"failed":    res.Failed,
		"loaded":    res.Loaded,
		"duration":  time.Since(start).String(),
	}).Info("loaded file")

	return res, nil
}

func (l *Loader) loadRecord(ctx context.Context, path string, rec archive.Record) *RecordError {
	fail := func(stage Stage, id string, err error) *RecordError {
		return &RecordError{File: path, Line: rec.Line, Identifier: id, Stage: stage, Err: err}
	}

	msg, err := archive.Message(rec.Raw)
	if err != nil {
		return fail(StageDecode, "", err)
	}

	alert, err := l.norm.Normalize(msg)
	if err != nil {
		var id string
		var normErr *normalizer.Error
		if errors.As(err, &normErr) {
			id = normErr.Identifier
		}
		var syntaxErr *capxml.SyntaxError
		if errors.As(err, &syntaxErr) {
			return fail(StageDecode, id, err)
		}
		return fail(StageNormalize, id, err)
	}

	if _, err := l.session.InsertAlert(ctx, alert); err != nil {
		if !errors.Is(err, store.ErrDuplicateAlert) {
			if pingErr := l.session.Ping(ctx); pingErr != nil {
				err = fmt.Errorf("%w (ping: %s): %w", store.ErrConnUnusable, pingErr, err)
			}
		}
		return fail(StagePersist, alert.Identifier, err)
	}
	return nil
}
