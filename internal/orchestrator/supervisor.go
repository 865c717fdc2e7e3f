package orchestrator

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/rs/zerolog"
)

const (
	supervisorBackoffBase = 2 * time.Second
	supervisorMaxBackoff  = 2 * time.Minute
)

// Supervise runs fn in a restart loop: if fn panics or returns an error, the
// panic/error is logged and fn is restarted after a capped exponential
// backoff, until ctx is cancelled. A clean fn return (nil error, no panic)
// ends the loop without restarting. Use for a goroutine whose failure should
// degrade to "briefly offline and retrying" rather than take the process
// down, e.g. a venue stream consumer or a scanner worker.
func Supervise(ctx context.Context, name string, log zerolog.Logger, fn func(ctx context.Context) error) {
	attempt := 0
	for {
		if ctx.Err() != nil {
			return
		}

		err := runSupervised(ctx, fn)
		if err == nil {
			return
		}
		if ctx.Err() != nil {
			return
		}

		attempt++
		backoff := supervisorBackoffBase * time.Duration(1<<uint(attempt-1))
		if backoff > supervisorMaxBackoff {
			backoff = supervisorMaxBackoff
		}
		log.Error().Err(err).Str("worker", name).Int("attempt", attempt).
			Dur("backoff", backoff).Msg("supervisor: worker crashed, restarting")

		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
	}
}

// runSupervised recovers a panic from fn and turns it into an error so the
// caller's restart loop treats panics and returned errors uniformly.
func runSupervised(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &panicError{value: r, stack: debug.Stack()}
		}
	}()
	return fn(ctx)
}

type panicError struct {
	value interface{}
	stack []byte
}

func (p *panicError) Error() string {
	return "panic: " + formatPanicValue(p.value) + "\n" + string(p.stack)
}

func formatPanicValue(v interface{}) string {
	if err, ok := v.(error); ok {
		return err.Error()
	}
	return fmt.Sprintf("%v", v)
}
