package transcript

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

const maxIdentifierLength = 190

var (
	// ErrInvalidUserID indicates that a user identifier is empty or exceeds storage bounds.
	ErrInvalidUserID = errors.New("transcript: invalid user id")
	// ErrInvalidMemoryID indicates that a memory identifier is empty or exceeds storage bounds.
	ErrInvalidMemoryID = errors.New("transcript: invalid memory id")
)

// UserID represents a validated wearable-platform user identifier.
type UserID string

// NewUserID validates raw input and returns a UserID.
func NewUserID(rawInput string) (UserID, error) {
	trimmed := strings.TrimSpace(rawInput)
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidUserID)
	}
	if len(trimmed) > maxIdentifierLength {
		return "", fmt.Errorf("%w: exceeds %d characters", ErrInvalidUserID, maxIdentifierLength)
	}
	return UserID(trimmed), nil
}

// String returns the underlying string identifier.
func (id UserID) String() string {
	return string(id)
}

// MemoryID identifies a single recording on the wearable platform. Payloads
// that omit it receive a generated identifier at ingestion time.
type MemoryID string

// NewMemoryID validates raw input and returns a MemoryID.
func NewMemoryID(rawInput string) (MemoryID, error) {
	trimmed := strings.TrimSpace(rawInput)
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidMemoryID)
	}
	if len(trimmed) > maxIdentifierLength {
		return "", fmt.Errorf("%w: exceeds %d characters", ErrInvalidMemoryID, maxIdentifierLength)
	}
	return MemoryID(trimmed), nil
}

// String returns the underlying string identifier.
func (id MemoryID) String() string {
	return string(id)
}

// Geolocation carries the optional recording location from the webhook payload.
type Geolocation struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Segment is one element of the payload's segment list. Fields beyond text are
// ignored during extraction but tolerated during decoding.
type Segment struct {
	Text any `json:"text"`
}

// Payload models the inbound webhook body. The platform has shipped two
// shapes: the memory-creation shape with transcript_segments plus metadata,
// and a legacy shape carrying only a segments list.
type Payload struct {
	ID                 string       `json:"id"`
	StartedAt          string       `json:"started_at"`
	FinishedAt         string       `json:"finished_at"`
	Geolocation        *Geolocation `json:"geolocation"`
	TranscriptSegments []Segment    `json:"transcript_segments"`
	LegacySegments     []Segment    `json:"segments"`
}

// Fragment is one webhook delivery's extracted transcript plus metadata. It is
// ephemeral: it exists only until appended to a day record.
type Fragment struct {
	MemoryID    MemoryID
	Transcript  string
	StartedAt   *time.Time
	FinishedAt  *time.Time
	Geolocation *Geolocation
}

// EventTime returns the timestamp that determines the fragment's day bucket:
// finished_at when present, otherwise started_at, otherwise nil.
func (f Fragment) EventTime() *time.Time {
	if f.FinishedAt != nil {
		return f.FinishedAt
	}
	return f.StartedAt
}
