package data

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/pashagolub/prefrank/pkg/logging"
	"github.com/pashagolub/prefrank/pkg/rating"
)

// Error types for session management
var (
	ErrAborted           = errors.New("comparison session aborted")
	ErrAlreadyRated      = errors.New("item is already rated")
	ErrPrompterRequired  = errors.New("a prompter is required to run a session")
	ErrInvalidSessionRun = errors.New("invalid session run")
)

// Prompt is one comparison offered to the user
type Prompt struct {
	SessionID      string
	Round          int // 1-based
	Bucket         rating.Bucket
	Target         Entry
	Opponent       Entry
	WinProbability float64 // Model's estimate that the target is preferred
}

// Prompter is the UI collaborator: it shows two entries and returns the
// result from the target's side (WinA means the target was preferred).
// Returning ErrAborted ends the session without error.
type Prompter interface {
	Prompt(ctx context.Context, p Prompt) (rating.Result, error)
}

// RunInfo identifies a session run for observers
type RunInfo struct {
	SessionID string
	TargetID  string
	Model     rating.ModelKind
	MediaType MediaType
	StartedAt time.Time
}

// Observer receives session lifecycle events. Observer failures are logged
// and never interrupt a session.
type Observer interface {
	SessionStarted(info RunInfo, session rating.Session) error
	OutcomeApplied(info RunInfo, outcome rating.Outcome, target, opponent rating.Item) error
	SessionFinished(info RunInfo, session rating.Session) error
}

// RunResult is what a finished session leaves behind
type RunResult struct {
	Info    RunInfo
	Session rating.Session
	Target  Entry
}

// Runner drives one rating.Session against storage and a prompter. The library
// is re-read before every selection and both updated entries are written back
// after every applied outcome.
type Runner struct {
	storage   Storage
	engine    rating.Config
	prompter  Prompter
	observers []Observer
	logger    zerolog.Logger
	now       func() time.Time
}

// RunnerOption customises a Runner
type RunnerOption func(*Runner)

// WithObservers registers lifecycle observers
func WithObservers(observers ...Observer) RunnerOption {
	return func(r *Runner) { r.observers = append(r.observers, observers...) }
}

// WithLogger overrides the component logger
func WithLogger(l zerolog.Logger) RunnerOption {
	return func(r *Runner) { r.logger = l }
}

// WithClock overrides the timestamp source
func WithClock(now func() time.Time) RunnerOption {
	return func(r *Runner) { r.now = now }
}

// NewRunner validates the engine configuration and builds a runner
func NewRunner(storage Storage, engine rating.Config, prompter Prompter, opts ...RunnerOption) (*Runner, error) {
	if storage == nil {
		return nil, fmt.Errorf("%w: storage is nil", ErrInvalidSessionRun)
	}
	if prompter == nil {
		return nil, ErrPrompterRequired
	}
	if err := engine.Validate(); err != nil {
		return nil, err
	}
	r := &Runner{
		storage:  storage,
		engine:   engine,
		prompter: prompter,
		logger:   logging.Component("runner"),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Rate runs a comparison session for targetID, starting from the sentiment
// bucket. The target must exist in storage and not be rated yet. On return the
// target is marked rated unless the session was aborted.
func (r *Runner) Rate(ctx context.Context, targetID string, sentiment rating.Bucket) (*RunResult, error) {
	model, err := r.engine.NewModel(r.engine.Model)
	if err != nil {
		return nil, err
	}
	eval := r.engine.Evaluator()
	selector := rating.Selector{Model: model}

	target, err := r.storage.Get(ctx, targetID)
	if err != nil {
		return nil, err
	}
	if target.Rated() {
		return nil, fmt.Errorf("%w: %s", ErrAlreadyRated, targetID)
	}

	session, err := rating.NewSession(targetID, sentiment)
	if err != nil {
		return nil, err
	}

	info := RunInfo{
		SessionID: uuid.NewString(),
		TargetID:  targetID,
		Model:     model.Kind(),
		MediaType: target.MediaType,
		StartedAt: r.now(),
	}
	log := r.logger.With().Str("session", info.SessionID).Str("target", targetID).Logger()
	log.Info().Str("sentiment", string(sentiment)).Str("model", string(info.Model)).Msg("session started")
	r.notify(log, func(o Observer) error { return o.SessionStarted(info, session) })

	var runErr error
	for !session.Stopped() {
		if err := ctx.Err(); err != nil {
			session, runErr = session.Abort(), err
			break
		}

		lib, err := r.storage.Load(ctx)
		if err != nil {
			return nil, err
		}
		if target, err = lib.Get(targetID); err != nil {
			return nil, err
		}

		var opponent rating.Item
		bucket := session.NextBucket()
		session, opponent, err = session.NextOpponent(lib.Corpus(target.MediaType), selector)
		if errors.Is(err, rating.ErrNoOpponent) {
			log.Debug().Str("reason", string(session.Reason)).Msg("no opponent left")
			break
		}
		if err != nil {
			return nil, err
		}
		opponentEntry, err := lib.Get(opponent.ID)
		if err != nil {
			return nil, err
		}

		result, err := r.prompter.Prompt(ctx, Prompt{
			SessionID:      info.SessionID,
			Round:          len(session.History) + 1,
			Bucket:         bucket,
			Target:         target,
			Opponent:       opponentEntry,
			WinProbability: rating.WinProbability(target.Item, opponent, model),
		})
		if errors.Is(err, ErrAborted) || errors.Is(err, context.Canceled) {
			session = session.Abort()
			if !errors.Is(err, ErrAborted) {
				runErr = err
			}
			break
		}
		if err != nil {
			return nil, fmt.Errorf("prompt failed: %w", err)
		}

		outcome := rating.Outcome{
			ItemAID:   targetID,
			ItemBID:   opponent.ID,
			Result:    result,
			Timestamp: r.now(),
		}
		next, newTarget, newOpponent, err := session.Record(outcome, target.Item, opponent, model, eval)
		if err != nil {
			return nil, err
		}

		target.Item, opponentEntry.Item = newTarget, newOpponent
		written, err := r.storage.Put(ctx, target, opponentEntry)
		if err != nil {
			// Nothing was written; the session state is left as it was
			log.Warn().Err(err).Str("opponent", opponent.ID).Msg("outcome not persisted")
			return nil, err
		}
		target = written[0]
		session = next

		log.Debug().
			Str("opponent", opponent.ID).
			Str("result", string(result)).
			Float64("rating", rating.DisplayRating(target.Item, model)).
			Float64("lower", session.Lower).
			Float64("upper", session.Upper).
			Msg("outcome applied")
		r.notify(log, func(o Observer) error { return o.OutcomeApplied(info, outcome, newTarget, newOpponent) })
	}

	if session.Reason != rating.ReasonAborted {
		if target, err = r.markRated(ctx, targetID); err != nil {
			return nil, err
		}
	}

	log.Info().
		Str("reason", string(session.Reason)).
		Int("comparisons", len(session.History)).
		Float64("rating", rating.DisplayRating(target.Item, model)).
		Msg("session finished")
	r.notify(log, func(o Observer) error { return o.SessionFinished(info, session) })

	return &RunResult{Info: info, Session: session, Target: target}, runErr
}

// markRated re-reads the target so the write carries its latest version
func (r *Runner) markRated(ctx context.Context, targetID string) (Entry, error) {
	target, err := r.storage.Get(ctx, targetID)
	if err != nil {
		return Entry{}, err
	}
	at := r.now()
	target.RatedAt = &at
	written, err := r.storage.Put(ctx, target)
	if err != nil {
		return Entry{}, err
	}
	return written[0], nil
}

func (r *Runner) notify(log zerolog.Logger, fn func(Observer) error) {
	for _, o := range r.observers {
		if err := fn(o); err != nil {
			log.Warn().Err(err).Msg("session observer failed")
		}
	}
}
