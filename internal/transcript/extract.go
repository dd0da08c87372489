package transcript

import (
	"strings"
	"time"
)

// Extraction reports what Extract recovered from a payload. Skipped counts
// segment elements whose text field was absent or not a string; callers log a
// warning when it is non-zero but extraction itself never fails.
type Extraction struct {
	Text        string
	Skipped     int
	ListMissing bool
}

// Extract joins the text of every valid segment with a single space, in list
// order. The memory-creation shape (transcript_segments) takes precedence;
// the legacy shape (segments) is consulted when it is absent. A missing or
// malformed list yields an empty transcript rather than an error so the
// webhook sender is never retried over a payload quirk.
func Extract(payload Payload) Extraction {
	segments := payload.TranscriptSegments
	if segments == nil {
		segments = payload.LegacySegments
	}
	if segments == nil {
		return Extraction{ListMissing: true}
	}

	texts := make([]string, 0, len(segments))
	skipped := 0
	for _, segment := range segments {
		text, ok := segment.Text.(string)
		if !ok {
			skipped++
			continue
		}
		texts = append(texts, text)
	}

	return Extraction{
		Text:    strings.TrimSpace(strings.Join(texts, " ")),
		Skipped: skipped,
	}
}

// ParseFragment builds a Fragment from a decoded payload. The extraction
// report is returned so callers can log missing or skipped segments.
// Timestamps that do not parse as RFC 3339 are dropped with the parse error
// reported through the final return value; the fragment itself is still
// usable.
func ParseFragment(payload Payload, fallbackID MemoryID) (Fragment, Extraction, error) {
	fragment := Fragment{
		MemoryID:    fallbackID,
		Geolocation: payload.Geolocation,
	}

	if id, err := NewMemoryID(payload.ID); err == nil {
		fragment.MemoryID = id
	}

	extraction := Extract(payload)
	fragment.Transcript = extraction.Text

	var firstErr error
	if payload.StartedAt != "" {
		if parsed, err := parseTimestamp(payload.StartedAt); err == nil {
			fragment.StartedAt = &parsed
		} else if firstErr == nil {
			firstErr = err
		}
	}
	if payload.FinishedAt != "" {
		if parsed, err := parseTimestamp(payload.FinishedAt); err == nil {
			fragment.FinishedAt = &parsed
		} else if firstErr == nil {
			firstErr = err
		}
	}

	return fragment, extraction, firstErr
}

func parseTimestamp(value string) (time.Time, error) {
	parsed, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}, err
	}
	return parsed.UTC(), nil
}
