package journal

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/MarcoPoloResearchLab/daybook/backend/internal/transcript"
	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

var errMissingFirestoreClient = errors.New("journal: firestore client is required")

// FirestoreStore keeps day records in a Firestore collection, one document per
// day key. Appends rely on ArrayUnion so concurrent webhook deliveries merge
// server-side instead of read-modify-write.
type FirestoreStore struct {
	client     *firestore.Client
	collection string
	logger     *zap.Logger
}

// FirestoreStoreConfig describes the dependencies for a FirestoreStore.
type FirestoreStoreConfig struct {
	Client     *firestore.Client
	Collection string
	Logger     *zap.Logger
}

// NewFirestoreStore constructs a FirestoreStore.
func NewFirestoreStore(cfg FirestoreStoreConfig) (*FirestoreStore, error) {
	if cfg.Client == nil {
		return nil, errMissingFirestoreClient
	}
	collection := cfg.Collection
	if collection == "" {
		collection = "raw_memories"
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FirestoreStore{client: cfg.Client, collection: collection, logger: logger}, nil
}

// fragmentDocument is the wire shape of one fragment inside the memories
// array. Timestamps stay native so Firestore stores them as Timestamp values.
type fragmentDocument struct {
	MemoryID    string         `firestore:"memory_id"`
	Transcript  string         `firestore:"transcript"`
	StartedAt   *time.Time     `firestore:"started_at"`
	FinishedAt  *time.Time     `firestore:"finished_at"`
	Geolocation map[string]any `firestore:"geolocation"`
}

type dayDocument struct {
	Memories          []fragmentDocument `firestore:"memories"`
	LastWebhookUpdate time.Time          `firestore:"last_webhook_update"`
}

// AppendFragment merge-sets the day document, appending to the memories array
// and stamping last_webhook_update server-side. Only those two fields are
// touched; anything else on the document survives.
func (s *FirestoreStore) AppendFragment(ctx context.Context, userID transcript.UserID, date transcript.Date, fragment transcript.Fragment) error {
	dayKey := transcript.DayKey(userID, date)

	entry := fragmentDocument{
		MemoryID:   fragment.MemoryID.String(),
		Transcript: fragment.Transcript,
		StartedAt:  fragment.StartedAt,
		FinishedAt: fragment.FinishedAt,
	}
	if fragment.Geolocation != nil {
		entry.Geolocation = map[string]any{
			"latitude":  fragment.Geolocation.Latitude,
			"longitude": fragment.Geolocation.Longitude,
		}
	}

	_, err := s.client.Collection(s.collection).Doc(dayKey).Set(ctx, map[string]any{
		"memories":            firestore.ArrayUnion(entry),
		"last_webhook_update": firestore.ServerTimestamp,
	}, firestore.MergeAll)
	if err != nil {
		return fmt.Errorf("journal: firestore append %s: %w", dayKey, err)
	}

	s.logger.Info("journal fragment appended",
		zap.String("day_key", dayKey),
		zap.String("memory_id", fragment.MemoryID.String()))
	return nil
}

// LoadDay fetches the day document, reporting absence through the second
// return value.
func (s *FirestoreStore) LoadDay(ctx context.Context, userID transcript.UserID, date transcript.Date) (DayRecord, bool, error) {
	dayKey := transcript.DayKey(userID, date)

	snapshot, err := s.client.Collection(s.collection).Doc(dayKey).Get(ctx)
	if status.Code(err) == codes.NotFound {
		return DayRecord{}, false, nil
	}
	if err != nil {
		return DayRecord{}, false, fmt.Errorf("journal: firestore load %s: %w", dayKey, err)
	}

	var document dayDocument
	if err := snapshot.DataTo(&document); err != nil {
		return DayRecord{}, false, fmt.Errorf("journal: firestore decode %s: %w", dayKey, err)
	}

	record := DayRecord{
		UserID:     userID,
		Date:       date,
		Fragments:  make([]transcript.Fragment, 0, len(document.Memories)),
		LastUpdate: document.LastWebhookUpdate,
	}
	for _, entry := range document.Memories {
		fragment := transcript.Fragment{
			MemoryID:   transcript.MemoryID(entry.MemoryID),
			Transcript: entry.Transcript,
			StartedAt:  entry.StartedAt,
			FinishedAt: entry.FinishedAt,
		}
		if entry.Geolocation != nil {
			latitude, latOK := entry.Geolocation["latitude"].(float64)
			longitude, lonOK := entry.Geolocation["longitude"].(float64)
			if latOK && lonOK {
				fragment.Geolocation = &transcript.Geolocation{Latitude: latitude, Longitude: longitude}
			}
		}
		record.Fragments = append(record.Fragments, fragment)
	}
	return record, true, nil
}
