package journal

import (
	"testing"

	"github.com/MarcoPoloResearchLab/daybook/backend/internal/transcript"
)

func TestJoinTranscriptsUsesSeparator(t *testing.T) {
	record := DayRecord{
		Fragments: []transcript.Fragment{
			{Transcript: "morning standup"},
			{Transcript: "lunch with sam"},
		},
	}

	joined := JoinTranscripts(record)
	expected := "morning standup\n\n---\n\nlunch with sam"
	if joined != expected {
		t.Fatalf("unexpected joined transcript: %q", joined)
	}
}

func TestJoinTranscriptsSkipsEmptyFragments(t *testing.T) {
	record := DayRecord{
		Fragments: []transcript.Fragment{
			{Transcript: ""},
			{Transcript: "only content"},
			{Transcript: ""},
		},
	}

	if joined := JoinTranscripts(record); joined != "only content" {
		t.Fatalf("unexpected joined transcript: %q", joined)
	}
}

func TestJoinTranscriptsEmptyRecord(t *testing.T) {
	if joined := JoinTranscripts(DayRecord{}); joined != "" {
		t.Fatalf("expected empty transcript, got %q", joined)
	}
}
