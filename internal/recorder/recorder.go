package recorder

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jwebster45206/arq-village/internal/inference"
	"github.com/jwebster45206/arq-village/internal/services/events"
	"github.com/jwebster45206/arq-village/pkg/activity"
	"github.com/jwebster45206/arq-village/pkg/storage"
)

// Archiver keeps a durable copy of every entry.
type Archiver interface {
	Write(e activity.Entry) error
}

// UsageCounter counts answered inference attempts per source.
type UsageCounter interface {
	IncrementUsage(ctx context.Context, source string) error
}

// Recorder fans activity entries out to the capped Redis log, the archive and
// the event stream. Failures are logged and never returned to the caller;
// a lost log line must not stop Arq from walking.
type Recorder struct {
	store     storage.Storage
	publisher events.Publisher
	archive   Archiver
	usage     UsageCounter
	logger    *slog.Logger
	now       func() time.Time
}

func New(store storage.Storage, publisher events.Publisher, logger *slog.Logger) *Recorder {
	if publisher == nil {
		publisher = events.Discard{}
	}
	return &Recorder{
		store:     store,
		publisher: publisher,
		logger:    logger,
		now:       time.Now,
	}
}

// WithArchive enables the on-disk archive.
func (r *Recorder) WithArchive(a Archiver) *Recorder {
	r.archive = a
	return r
}

// WithUsage enables per-source usage counting in AttemptHook.
func (r *Recorder) WithUsage(u UsageCounter) *Recorder {
	r.usage = u
	return r
}

// Log records a new entry of the given kind.
func (r *Recorder) Log(ctx context.Context, kind activity.Kind, text string) activity.Entry {
	e := activity.NewEntry(kind, text, r.now())
	r.Record(ctx, e)
	return e
}

// Logf is Log with formatting.
func (r *Recorder) Logf(ctx context.Context, kind activity.Kind, format string, args ...any) activity.Entry {
	return r.Log(ctx, kind, fmt.Sprintf(format, args...))
}

// Record stores an already built entry.
func (r *Recorder) Record(ctx context.Context, e activity.Entry) {
	// the request that produced the entry may be finishing
	ctx = context.WithoutCancel(ctx)

	if err := r.store.AppendActivity(ctx, e); err != nil {
		r.logger.Error("Failed to store activity", "error", err, "kind", e.Kind)
	}
	if r.archive != nil {
		if err := r.archive.Write(e); err != nil {
			r.logger.Error("Failed to archive activity", "error", err, "kind", e.Kind)
		}
	}
	if err := r.publisher.Publish(ctx, events.EventTypeActivityLogged, e); err != nil {
		r.logger.Warn("Failed to publish activity", "error", err, "kind", e.Kind)
	}
}

// AttemptHook is registered with the inference router. Answered attempts bump
// the usage counter of their source; answers and exhaustion also land in the
// activity log.
func (r *Recorder) AttemptHook(ctx context.Context, a inference.Attempt) {
	switch {
	case a.Outcome.Answered():
		if r.usage != nil {
			if err := r.usage.IncrementUsage(context.WithoutCancel(ctx), string(a.Source)); err != nil {
				r.logger.Error("Failed to increment usage", "error", err, "source", a.Source)
			}
		}
		r.Log(ctx, activity.KindInference, describeAttempt(a))
	case a.Outcome == inference.OutcomeExhausted:
		r.Log(ctx, activity.KindInference, fmt.Sprintf("No provider answered the %s request", a.Tier))
	}
}

func describeAttempt(a inference.Attempt) string {
	switch a.Outcome {
	case inference.OutcomeRetrySuccess:
		return fmt.Sprintf("%s answered the %s request on retry (%dms)", a.Source, a.Tier, a.Duration.Milliseconds())
	case inference.OutcomeCanned:
		return fmt.Sprintf("%s kept answering in the wrong script; used a stock %s reply", a.Source, a.Tier)
	default:
		return fmt.Sprintf("%s answered the %s request (%dms)", a.Source, a.Tier, a.Duration.Milliseconds())
	}
}
