package windows

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/mohammed1916/marine-anomaly/internal/errors"
	"github.com/mohammed1916/marine-anomaly/internal/events"
)

// Unit is one processing unit of a multi-unit run.
type Unit struct {
	Key Key

	// Load returns the events of the unit. It is called once, when the
	// unit is scheduled.
	Load func(ctx context.Context) (*events.Events, error)
}

// UnitResult reports the outcome of one unit.
type UnitResult struct {
	Key      Key
	Windows  int
	Duration time.Duration
	Err      error
}

// RunUnits processes units with at most parallel units in flight. Units are
// independent: a failing unit does not stop the others. Results are returned
// in input order; the error joins every unit error.
func (w *Writer) RunUnits(ctx context.Context, units []Unit, opts Options, parallel int) ([]UnitResult, error) {
	if parallel <= 0 {
		parallel = 1
	}
	seen := make(map[Key]bool, len(units))
	for _, u := range units {
		if seen[u.Key] {
			return nil, errors.NewInvalidArgument("unit", u.Key.String(), "listed twice")
		}
		seen[u.Key] = true
	}

	sem := semaphore.NewWeighted(int64(parallel))
	results := make([]UnitResult, len(units))
	done := make(chan struct{}, len(units))

	started := 0
	for i, u := range units {
		results[i].Key = u.Key
		if err := sem.Acquire(ctx, 1); err != nil {
			results[i].Err = fmt.Errorf("unit %s: %w", u.Key, err)
			continue
		}
		started++
		go func() {
			defer func() {
				sem.Release(1)
				done <- struct{}{}
			}()
			began := time.Now()
			n, err := w.runUnit(ctx, u, opts)
			results[i] = UnitResult{Key: u.Key, Windows: n, Duration: time.Since(began), Err: err}
			if err != nil {
				w.log.Error("unit failed", "unit", u.Key.String(), "error", err)
			}
		}()
	}
	for ; started > 0; started-- {
		<-done
	}

	var errs []error
	for _, r := range results {
		if r.Err != nil {
			errs = append(errs, r.Err)
		}
	}
	return results, errors.Join(errs...)
}

func (w *Writer) runUnit(ctx context.Context, u Unit, opts Options) (int, error) {
	ev, err := u.Load(ctx)
	if err != nil {
		return 0, fmt.Errorf("unit %s: load: %w", u.Key, err)
	}
	return w.ExtractAndPersist(ctx, ev, opts, u.Key)
}
