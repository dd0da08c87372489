package reflection

import (
	"context"
	"errors"
	"fmt"

	"github.com/MarcoPoloResearchLab/daybook/backend/internal/insight"
	"github.com/MarcoPoloResearchLab/daybook/backend/internal/journal"
	"github.com/MarcoPoloResearchLab/daybook/backend/internal/transcript"
	"go.uber.org/zap"
)

// Outcome is the terminal state of one reflection run.
type Outcome string

const (
	// OutcomeNoData means no day record or no transcript content existed;
	// callers report success with a "no data found" message.
	OutcomeNoData Outcome = "no-data"
	// OutcomeProcessed means the reflection was generated and written.
	OutcomeProcessed Outcome = "processed"
	// OutcomeSkipped means another run already claimed this day key.
	OutcomeSkipped Outcome = "skipped"
)

var (
	errMissingJournal  = errors.New("reflection: journal store is required")
	errMissingEnricher = errors.New("reflection: enricher is required")
	errMissingWriter   = errors.New("reflection: result writer is required")
	// ErrReadFailed wraps journal read errors so trigger handlers can map
	// them to a distinct status message.
	ErrReadFailed = errors.New("reflection: reading day record failed")
	// ErrWriteFailed wraps destination write errors.
	ErrWriteFailed = errors.New("reflection: writing result failed")
)

// Enricher is the slice of the insight processor the pipeline needs.
type Enricher interface {
	Process(ctx context.Context, transcript string) insight.Result
}

// ResultWriter persists an enrichment result under its day key. Writes are
// idempotent: reprocessing a day overwrites the previous result.
type ResultWriter interface {
	Write(ctx context.Context, userID transcript.UserID, date transcript.Date, result insight.Result) error
}

// RunMarker guards against a scheduled run and an on-demand run processing
// the same day twice. Claim reports whether this run owns the day key.
type RunMarker interface {
	Claim(ctx context.Context, dayKey string) (bool, error)
	Release(ctx context.Context, dayKey string) error
}

// Service runs the daily pipeline: read the aggregated day, enrich the joined
// transcript, write the result.
type Service struct {
	journal  journal.Store
	enricher Enricher
	writer   ResultWriter
	marker   RunMarker
	logger   *zap.Logger
}

// ServiceConfig describes the dependencies for a Service. Marker is optional;
// without one every run proceeds.
type ServiceConfig struct {
	Journal  journal.Store
	Enricher Enricher
	Writer   ResultWriter
	Marker   RunMarker
	Logger   *zap.Logger
}

// NewService constructs a Service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Journal == nil {
		return nil, errMissingJournal
	}
	if cfg.Enricher == nil {
		return nil, errMissingEnricher
	}
	if cfg.Writer == nil {
		return nil, errMissingWriter
	}
	marker := cfg.Marker
	if marker == nil {
		marker = NopMarker{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		journal:  cfg.Journal,
		enricher: cfg.Enricher,
		writer:   cfg.Writer,
		marker:   marker,
		logger:   logger,
	}, nil
}

// Run processes one (user, date) pair. force bypasses the run marker so a day
// can be reprocessed deliberately.
func (s *Service) Run(ctx context.Context, userID transcript.UserID, date transcript.Date, force bool) (Outcome, error) {
	dayKey := transcript.DayKey(userID, date)

	record, found, err := s.journal.LoadDay(ctx, userID, date)
	if err != nil {
		s.logger.Error("failed to read day record", zap.String("day_key", dayKey), zap.Error(err))
		return "", fmt.Errorf("%w: %v", ErrReadFailed, err)
	}
	if !found {
		s.logger.Info("no day record found", zap.String("day_key", dayKey))
		return OutcomeNoData, nil
	}

	fullTranscript := journal.JoinTranscripts(record)
	if fullTranscript == "" {
		s.logger.Info("day record has no transcript content", zap.String("day_key", dayKey))
		return OutcomeNoData, nil
	}

	if !force {
		claimed, err := s.marker.Claim(ctx, dayKey)
		if err != nil {
			// Marker trouble must not block the pipeline; worst case is a
			// duplicate run, which the idempotent write absorbs.
			s.logger.Warn("run marker unavailable", zap.String("day_key", dayKey), zap.Error(err))
		} else if !claimed {
			s.logger.Info("day already processed, skipping", zap.String("day_key", dayKey))
			return OutcomeSkipped, nil
		}
	}

	result := s.enricher.Process(ctx, fullTranscript)

	if err := s.writer.Write(ctx, userID, date, result); err != nil {
		s.logger.Error("failed to write reflection", zap.String("day_key", dayKey), zap.Error(err))
		if !force {
			if releaseErr := s.marker.Release(ctx, dayKey); releaseErr != nil {
				s.logger.Warn("failed to release run marker", zap.String("day_key", dayKey), zap.Error(releaseErr))
			}
		}
		return "", fmt.Errorf("%w: %v", ErrWriteFailed, err)
	}

	s.logger.Info("reflection processed",
		zap.String("day_key", dayKey),
		zap.Int("fragments", len(record.Fragments)),
		zap.Int("transcript_chars", len(fullTranscript)))
	return OutcomeProcessed, nil
}
