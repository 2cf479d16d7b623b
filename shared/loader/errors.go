package loader

import (
	"fmt"
	"path/filepath"
)

// Stage is the step of record processing that failed.
type Stage string

const (
	StageDecode    Stage = "decode"
	StageNormalize Stage = "normalize"
	StagePersist   Stage = "persist"
)

// RecordError is one record that could not be loaded. The rest of the file
// is still processed.
type RecordError struct {
	File       string
	Line       int
	Identifier string
	Stage      Stage
	Err        error
}

func (e *RecordError) Error() string {
	if e.Identifier != "" {
		return fmt.Sprintf("%s:%d (%s) %s: %s", filepath.Base(e.File), e.Line, e.Identifier, e.Stage, e.Err)
	}
	return fmt.Sprintf("%s:%d %s: %s", filepath.Base(e.File), e.Line, e.Stage, e.Err)
}

func (e *RecordError) Unwrap() error { return e.Err }

// FileError aborts the rest of a file.
type FileError struct {
	File string
	Err  error
}

func (e *FileError) Error() string {
	return fmt.Sprintf("%s: %s", filepath.Base(e.File), e.Err)
}

func (e *FileError) Unwrap() error { return e.Err }
