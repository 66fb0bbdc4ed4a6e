package alerts

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Evaluator decides, for each evaluation of one Key, whether to emit an
// initial notification, a reminder, a recovery notice, or nothing, and
// commits the updated Record to the Store. Evaluations for the same Key are
// serialized; distinct Keys may evaluate concurrently.
type Evaluator struct {
	store Store
	log   *zap.Logger

	mu    sync.Mutex
	locks map[Key]*sync.Mutex
}

func NewEvaluator(store Store, logger *zap.Logger) *Evaluator {
	return &Evaluator{
		store: store,
		log:   logger,
		locks: make(map[Key]*sync.Mutex),
	}
}

func (e *Evaluator) keyLock(key Key) *sync.Mutex {
	e.mu.Lock()
	defer e.mu.Unlock()
	l, ok := e.locks[key]
	if !ok {
		l = &sync.Mutex{}
		e.locks[key] = l
	}
	return l
}

// Evaluate runs the decision algorithm for one (key, cycle) pair. message
// describes the problem and is carried into initial/reminder notifications.
//
// The returned Notification is valid even when err is non-nil: a failed
// Record write must not swallow a user-visible alert. The caller dispatches
// the notification and logs the error.
func (e *Evaluator) Evaluate(ctx context.Context, key Key, isProblem bool, value, threshold float64, message string, now time.Time, settings Settings) (Notification, error) {
	none := Notification{Kind: KindNone, Key: key}

	if !settings.Enabled {
		// Skip entirely; the record is left as-is so re-enabling the type
		// resumes the lifecycle where it stopped.
		return none, nil
	}

	l := e.keyLock(key)
	l.Lock()
	defer l.Unlock()

	rec, err := e.store.Load(ctx, key)
	if err != nil {
		return none, fmt.Errorf("load record %q: %w", key, err)
	}

	if !isProblem {
		if rec == nil || !rec.Active {
			return none, nil
		}
		// Recovery transition, exactly once per active->inactive.
		duration := now.Sub(rec.FirstTriggeredAt)
		updated := *rec
		updated.Active = false
		updated.LastValue = value
		n := none
		if settings.NotifyRecovery {
			n = Notification{
				Kind:      KindRecovery,
				Key:       key,
				Message:   message,
				Value:     value,
				Threshold: threshold,
				Duration:  duration,
			}
		}
		if err := e.store.Save(ctx, key, updated); err != nil {
			return n, fmt.Errorf("save record %q: %w", key, err)
		}
		return n, nil
	}

	if rec == nil || !rec.Active {
		// New occurrence.
		updated := Record{
			Active:           true,
			FirstTriggeredAt: now,
			LastNotifiedAt:   now,
			LastValue:        value,
		}
		n := Notification{
			Kind:      KindInitial,
			Key:       key,
			Message:   message,
			Value:     value,
			Threshold: threshold,
		}
		if err := e.store.Save(ctx, key, updated); err != nil {
			return n, fmt.Errorf("save record %q: %w", key, err)
		}
		return n, nil
	}

	// Continuing occurrence: reminder only when the interval is set and has
	// elapsed. A negative elapsed (clock skew) counts as not elapsed.
	if settings.ReminderInterval <= 0 {
		return none, nil
	}
	elapsed := now.Sub(rec.LastNotifiedAt)
	if elapsed < settings.ReminderInterval {
		return none, nil
	}
	updated := *rec
	updated.LastNotifiedAt = now
	updated.LastValue = value
	updated.ReminderCount++
	n := Notification{
		Kind:          KindReminder,
		Key:           key,
		Message:       message,
		Value:         value,
		Threshold:     threshold,
		ReminderCount: updated.ReminderCount,
	}
	if err := e.store.Save(ctx, key, updated); err != nil {
		return n, fmt.Errorf("save record %q: %w", key, err)
	}
	return n, nil
}

// Acknowledge clears a key's active flag without emitting a recovery
// notice. Used for manual operator acknowledgment (e.g. the /ack bot
// command); a no-op when the key has no active record.
func (e *Evaluator) Acknowledge(ctx context.Context, key Key) error {
	l := e.keyLock(key)
	l.Lock()
	defer l.Unlock()

	rec, err := e.store.Load(ctx, key)
	if err != nil {
		return fmt.Errorf("load record %q: %w", key, err)
	}
	if rec == nil || !rec.Active {
		return nil
	}
	updated := *rec
	updated.Active = false
	if err := e.store.Save(ctx, key, updated); err != nil {
		return fmt.Errorf("save record %q: %w", key, err)
	}
	e.log.Info("alert acknowledged", zap.String("key", string(key)))
	return nil
}

// ActiveKeys lists keys whose records are currently active, for the bot's
// /ack listing.
func (e *Evaluator) ActiveKeys(ctx context.Context) ([]Key, error) {
	all, err := e.store.LoadAll(ctx)
	if err != nil {
		return nil, err
	}
	keys := make([]Key, 0, len(all))
	for k, rec := range all {
		if rec.Active {
			keys = append(keys, k)
		}
	}
	return keys, nil
}
