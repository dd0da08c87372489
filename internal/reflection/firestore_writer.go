package reflection

import (
	"context"
	"errors"
	"fmt"

	"cloud.google.com/go/firestore"
	"github.com/MarcoPoloResearchLab/daybook/backend/internal/insight"
	"github.com/MarcoPoloResearchLab/daybook/backend/internal/transcript"
	"go.uber.org/zap"
)

var errMissingFirestoreClient = errors.New("reflection: firestore client is required")

// FirestoreWriter stores reflection results one document per day key,
// stamping processed_at server-side. Setting the same key again replaces the
// previous result, which is what reprocessing wants.
type FirestoreWriter struct {
	client     *firestore.Client
	collection string
	logger     *zap.Logger
}

// FirestoreWriterConfig describes the dependencies for a FirestoreWriter.
type FirestoreWriterConfig struct {
	Client     *firestore.Client
	Collection string
	Logger     *zap.Logger
}

// NewFirestoreWriter constructs a FirestoreWriter.
func NewFirestoreWriter(cfg FirestoreWriterConfig) (*FirestoreWriter, error) {
	if cfg.Client == nil {
		return nil, errMissingFirestoreClient
	}
	collection := cfg.Collection
	if collection == "" {
		collection = "daily_reflections"
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FirestoreWriter{client: cfg.Client, collection: collection, logger: logger}, nil
}

// Write sets the reflection document, merging in the processed_at marker.
func (w *FirestoreWriter) Write(ctx context.Context, userID transcript.UserID, date transcript.Date, result insight.Result) error {
	dayKey := transcript.DayKey(userID, date)

	document := make(map[string]any, len(result)+1)
	for key, value := range result {
		document[key] = value
	}
	document["processed_at"] = firestore.ServerTimestamp

	if _, err := w.client.Collection(w.collection).Doc(dayKey).Set(ctx, document, firestore.MergeAll); err != nil {
		return fmt.Errorf("reflection: firestore write %s: %w", dayKey, err)
	}

	w.logger.Info("reflection written", zap.String("day_key", dayKey), zap.String("collection", w.collection))
	return nil
}
