package datarecording

import (
	"os"
	"strings"
	"time"
)

type runInfo struct {
	Property string
	Value    string
}

// A RunLogger records metadata about one simulation run, such as the
// command line and start and end times, into the run_info table.
type RunLogger struct {
	tableName string
	recorder  DataRecorder
	entries   []runInfo
}

// NewRunLogger creates a RunLogger writing through the given recorder.
func NewRunLogger(recorder DataRecorder) *RunLogger {
	return &RunLogger{
		tableName: "run_info",
		recorder:  recorder,
	}
}

const runTimeFormat = "2006-01-02 15:04:05.000000000"

// Start records the command line and the start time of the run.
func (r *RunLogger) Start() {
	r.entries = append(r.entries,
		runInfo{"Start Time", time.Now().Format(runTimeFormat)},
		runInfo{"Command", strings.Join(os.Args, " ")},
	)

	if cwd, err := os.Getwd(); err == nil {
		r.entries = append(r.entries, runInfo{"Working Directory", cwd})
	}
}

// End records the end time and writes all collected entries.
func (r *RunLogger) End() {
	r.entries = append(r.entries,
		runInfo{"End Time", time.Now().Format(runTimeFormat)})

	r.recorder.CreateTable(r.tableName, runInfo{})
	for _, entry := range r.entries {
		r.recorder.InsertData(r.tableName, entry)
	}
	r.recorder.Flush()
}
