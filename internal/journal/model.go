package journal

import (
	"context"
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/daybook/backend/internal/transcript"
)

// FragmentSeparator joins per-fragment transcripts when a whole day is handed
// to the enrichment processor.
const FragmentSeparator = "\n\n---\n\n"

// DayRecord is the accumulated set of fragments for one user on one calendar
// date. Fragments appear in append order; duplicates from webhook retries are
// kept as delivered.
type DayRecord struct {
	UserID     transcript.UserID
	Date       transcript.Date
	Fragments  []transcript.Fragment
	LastUpdate time.Time
}

// Store is the aggregate store contract. Appends must be atomic with respect
// to the fragment collection so concurrent webhook deliveries for the same
// day key never lose fragments.
type Store interface {
	AppendFragment(ctx context.Context, userID transcript.UserID, date transcript.Date, fragment transcript.Fragment) error
	LoadDay(ctx context.Context, userID transcript.UserID, date transcript.Date) (DayRecord, bool, error)
}

// JoinTranscripts concatenates the record's non-empty fragment transcripts
// with an explicit separator, preserving append order.
func JoinTranscripts(record DayRecord) string {
	texts := make([]string, 0, len(record.Fragments))
	for _, fragment := range record.Fragments {
		if fragment.Transcript == "" {
			continue
		}
		texts = append(texts, fragment.Transcript)
	}
	return strings.Join(texts, FragmentSeparator)
}

// DayRow tracks one journal day per user. Appends touch only the update
// timestamp here; fragment content lives in FragmentRow.
type DayRow struct {
	DayKey            string    `gorm:"column:day_key;primaryKey;size:190;not null"`
	UserID            string    `gorm:"column:user_id;size:190;not null;index:idx_journal_days_user"`
	Date              string    `gorm:"column:date;size:10;not null"`
	LastWebhookUpdate time.Time `gorm:"column:last_webhook_update;not null"`
}

// TableName provides the explicit table binding for GORM.
func (DayRow) TableName() string {
	return "journal_days"
}

// FragmentRow is an append-only fragment entry. The auto-increment sequence
// preserves delivery order and makes each append a single atomic INSERT.
type FragmentRow struct {
	Sequence   uint64     `gorm:"column:seq;primaryKey;autoIncrement"`
	DayKey     string     `gorm:"column:day_key;size:190;not null;index:idx_journal_fragments_day"`
	MemoryID   string     `gorm:"column:memory_id;size:190;not null"`
	Transcript string     `gorm:"column:transcript;type:text;not null"`
	StartedAt  *time.Time `gorm:"column:started_at"`
	FinishedAt *time.Time `gorm:"column:finished_at"`
	Latitude   *float64   `gorm:"column:latitude"`
	Longitude  *float64   `gorm:"column:longitude"`
	ReceivedAt time.Time  `gorm:"column:received_at;not null"`
}

// TableName provides the explicit table binding for GORM.
func (FragmentRow) TableName() string {
	return "journal_fragments"
}
