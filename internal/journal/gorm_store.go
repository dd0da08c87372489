package journal

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MarcoPoloResearchLab/daybook/backend/internal/transcript"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var errMissingDatabase = errors.New("journal: database handle is required")

// GormStore persists day records in the service's SQLite database. It is the
// default store for self-hosted deployments and for tests.
type GormStore struct {
	db     *gorm.DB
	clock  func() time.Time
	logger *zap.Logger
}

// GormStoreConfig describes the dependencies for a GormStore.
type GormStoreConfig struct {
	Database *gorm.DB
	Clock    func() time.Time
	Logger   *zap.Logger
}

// NewGormStore constructs a GormStore.
func NewGormStore(cfg GormStoreConfig) (*GormStore, error) {
	if cfg.Database == nil {
		return nil, errMissingDatabase
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GormStore{db: cfg.Database, clock: clock, logger: logger}, nil
}

// AppendFragment inserts the fragment as a new row and refreshes the day
// record timestamp. The fragment write is a single INSERT, so concurrent
// deliveries for one day key interleave without losing entries.
func (s *GormStore) AppendFragment(ctx context.Context, userID transcript.UserID, date transcript.Date, fragment transcript.Fragment) error {
	dayKey := transcript.DayKey(userID, date)
	now := s.clock().UTC()

	row := FragmentRow{
		DayKey:     dayKey,
		MemoryID:   fragment.MemoryID.String(),
		Transcript: fragment.Transcript,
		StartedAt:  fragment.StartedAt,
		FinishedAt: fragment.FinishedAt,
		ReceivedAt: now,
	}
	if fragment.Geolocation != nil {
		latitude := fragment.Geolocation.Latitude
		longitude := fragment.Geolocation.Longitude
		row.Latitude = &latitude
		row.Longitude = &longitude
	}

	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return fmt.Errorf("journal: append fragment: %w", err)
	}

	day := DayRow{
		DayKey:            dayKey,
		UserID:            userID.String(),
		Date:              date.String(),
		LastWebhookUpdate: now,
	}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "day_key"}},
		DoUpdates: clause.Assignments(map[string]any{"last_webhook_update": now}),
	}).Create(&day).Error
	if err != nil {
		return fmt.Errorf("journal: upsert day record: %w", err)
	}

	s.logger.Info("journal fragment appended",
		zap.String("day_key", dayKey),
		zap.String("memory_id", fragment.MemoryID.String()),
		zap.Int("transcript_chars", len(fragment.Transcript)))
	return nil
}

// LoadDay returns the day record for the given key, reporting absence through
// the second return value.
func (s *GormStore) LoadDay(ctx context.Context, userID transcript.UserID, date transcript.Date) (DayRecord, bool, error) {
	dayKey := transcript.DayKey(userID, date)

	var day DayRow
	err := s.db.WithContext(ctx).Where("day_key = ?", dayKey).Take(&day).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return DayRecord{}, false, nil
	}
	if err != nil {
		return DayRecord{}, false, fmt.Errorf("journal: load day record: %w", err)
	}

	var rows []FragmentRow
	if err := s.db.WithContext(ctx).Where("day_key = ?", dayKey).Order("seq asc").Find(&rows).Error; err != nil {
		return DayRecord{}, false, fmt.Errorf("journal: load fragments: %w", err)
	}

	record := DayRecord{
		UserID:     userID,
		Date:       date,
		Fragments:  make([]transcript.Fragment, 0, len(rows)),
		LastUpdate: day.LastWebhookUpdate,
	}
	for _, row := range rows {
		fragment := transcript.Fragment{
			MemoryID:   transcript.MemoryID(row.MemoryID),
			Transcript: row.Transcript,
			StartedAt:  row.StartedAt,
			FinishedAt: row.FinishedAt,
		}
		if row.Latitude != nil && row.Longitude != nil {
			fragment.Geolocation = &transcript.Geolocation{
				Latitude:  *row.Latitude,
				Longitude: *row.Longitude,
			}
		}
		record.Fragments = append(record.Fragments, fragment)
	}
	return record, true, nil
}
