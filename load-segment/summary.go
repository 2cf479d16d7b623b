package main

import (
	"github.com/helloharbor/harbor-workers/cap-alerts/shared/loader"
)

// loadSummary is published to SNS after every segment.
type loadSummary struct {
	TraceID   string `json:"traceId"`
	Bucket    string `json:"bucket"`
	Key       string `json:"key"`
	Attempted int    `json:"attempted"`
	Failed    int    `json:"failed"`
	Loaded    int    `json:"loaded"`
	Error     string `json:"error,omitempty"`
}

func (s *loadSummary) set(res loader.Result, err error) {
	s.TraceID = traceID
	s.Attempted = res.Attempted
	s.Failed = res.Failed
	s.Loaded = res.Loaded
	if err != nil {
		s.Error = err.Error()
	}
}
