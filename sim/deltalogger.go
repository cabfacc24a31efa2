package sim

import "log"

// A DeltaLogger is a hook that writes one line per delta round, useful when
// debugging why a design does not settle.
type DeltaLogger struct {
	*log.Logger
	timeTeller interface{ CurrentTime() VTimeInSec }
}

// NewDeltaLogger creates a DeltaLogger reporting times from t.
func NewDeltaLogger(
	logger *log.Logger,
	t interface{ CurrentTime() VTimeInSec },
) *DeltaLogger {
	return &DeltaLogger{Logger: logger, timeTeller: t}
}

// Func writes a line when a delta round commits.
func (l *DeltaLogger) Func(ctx HookCtx) {
	if ctx.Pos != HookPosAfterCommit {
		return
	}
	l.Printf("%.10f, delta committed, changed %v",
		l.timeTeller.CurrentTime(), ctx.Detail)
}
