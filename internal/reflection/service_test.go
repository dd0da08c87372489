package reflection

import (
	"context"
	"errors"
	"testing"

	"github.com/MarcoPoloResearchLab/daybook/backend/internal/insight"
	"github.com/MarcoPoloResearchLab/daybook/backend/internal/journal"
	"github.com/MarcoPoloResearchLab/daybook/backend/internal/transcript"
)

type fakeJournal struct {
	record journal.DayRecord
	found  bool
	err    error
}

func (f *fakeJournal) AppendFragment(ctx context.Context, userID transcript.UserID, date transcript.Date, fragment transcript.Fragment) error {
	return nil
}

func (f *fakeJournal) LoadDay(ctx context.Context, userID transcript.UserID, date transcript.Date) (journal.DayRecord, bool, error) {
	return f.record, f.found, f.err
}

type fakeEnricher struct {
	result     insight.Result
	calls      int
	transcript string
}

func (f *fakeEnricher) Process(ctx context.Context, text string) insight.Result {
	f.calls++
	f.transcript = text
	return f.result
}

type fakeWriter struct {
	written insight.Result
	calls   int
	err     error
}

func (f *fakeWriter) Write(ctx context.Context, userID transcript.UserID, date transcript.Date, result insight.Result) error {
	f.calls++
	if f.err != nil {
		return f.err
	}
	f.written = result
	return nil
}

type fakeMarker struct {
	claimed  bool
	claimErr error
	claims   int
	releases int
}

func (f *fakeMarker) Claim(ctx context.Context, dayKey string) (bool, error) {
	f.claims++
	return f.claimed, f.claimErr
}

func (f *fakeMarker) Release(ctx context.Context, dayKey string) error {
	f.releases++
	return nil
}

func mustUserID(t *testing.T, value string) transcript.UserID {
	t.Helper()
	id, err := transcript.NewUserID(value)
	if err != nil {
		t.Fatalf("unexpected user id error: %v", err)
	}
	return id
}

func mustDate(t *testing.T, value string) transcript.Date {
	t.Helper()
	date, err := transcript.NewDate(value)
	if err != nil {
		t.Fatalf("unexpected date error: %v", err)
	}
	return date
}

func newTestService(t *testing.T, store journal.Store, enricher Enricher, writer ResultWriter, marker RunMarker) *Service {
	t.Helper()
	service, err := NewService(ServiceConfig{
		Journal:  store,
		Enricher: enricher,
		Writer:   writer,
		Marker:   marker,
	})
	if err != nil {
		t.Fatalf("unexpected service error: %v", err)
	}
	return service
}

func dayWith(texts ...string) journal.DayRecord {
	record := journal.DayRecord{}
	for _, text := range texts {
		record.Fragments = append(record.Fragments, transcript.Fragment{Transcript: text})
	}
	return record
}

func TestRunProcessesAggregatedDay(t *testing.T) {
	store := &fakeJournal{record: dayWith("morning", "evening"), found: true}
	enricher := &fakeEnricher{result: insight.Result{"summary": "a good day"}}
	writer := &fakeWriter{}
	service := newTestService(t, store, enricher, writer, nil)

	outcome, err := service.Run(context.Background(), mustUserID(t, "U123"), mustDate(t, "2024-01-01"), false)
	if err != nil {
		t.Fatalf("unexpected run error: %v", err)
	}
	if outcome != OutcomeProcessed {
		t.Fatalf("unexpected outcome: %s", outcome)
	}
	if enricher.transcript != "morning\n\n---\n\nevening" {
		t.Fatalf("unexpected joined transcript: %q", enricher.transcript)
	}
	if writer.calls != 1 || writer.written.String("summary") != "a good day" {
		t.Fatalf("unexpected write: calls=%d written=%#v", writer.calls, writer.written)
	}
}

func TestRunReportsNoDataForMissingDay(t *testing.T) {
	store := &fakeJournal{found: false}
	enricher := &fakeEnricher{}
	writer := &fakeWriter{}
	service := newTestService(t, store, enricher, writer, nil)

	outcome, err := service.Run(context.Background(), mustUserID(t, "U123"), mustDate(t, "2024-01-01"), false)
	if err != nil {
		t.Fatalf("unexpected run error: %v", err)
	}
	if outcome != OutcomeNoData {
		t.Fatalf("unexpected outcome: %s", outcome)
	}
	if enricher.calls != 0 {
		t.Fatalf("expected no enrichment for missing day")
	}
}

func TestRunReportsNoDataForEmptyTranscripts(t *testing.T) {
	store := &fakeJournal{record: dayWith("", ""), found: true}
	enricher := &fakeEnricher{}
	writer := &fakeWriter{}
	service := newTestService(t, store, enricher, writer, nil)

	outcome, err := service.Run(context.Background(), mustUserID(t, "U123"), mustDate(t, "2024-01-01"), false)
	if err != nil {
		t.Fatalf("unexpected run error: %v", err)
	}
	if outcome != OutcomeNoData {
		t.Fatalf("unexpected outcome: %s", outcome)
	}
	if writer.calls != 0 {
		t.Fatalf("expected no write for empty day")
	}
}

func TestRunWrapsReadFailure(t *testing.T) {
	store := &fakeJournal{err: errors.New("connection reset")}
	service := newTestService(t, store, &fakeEnricher{}, &fakeWriter{}, nil)

	_, err := service.Run(context.Background(), mustUserID(t, "U123"), mustDate(t, "2024-01-01"), false)
	if !errors.Is(err, ErrReadFailed) {
		t.Fatalf("expected read failure, got %v", err)
	}
}

func TestRunWrapsWriteFailureAndReleasesMarker(t *testing.T) {
	store := &fakeJournal{record: dayWith("content"), found: true}
	writer := &fakeWriter{err: errors.New("permission denied")}
	marker := &fakeMarker{claimed: true}
	service := newTestService(t, store, &fakeEnricher{result: insight.Result{}}, writer, marker)

	_, err := service.Run(context.Background(), mustUserID(t, "U123"), mustDate(t, "2024-01-01"), false)
	if !errors.Is(err, ErrWriteFailed) {
		t.Fatalf("expected write failure, got %v", err)
	}
	if marker.releases != 1 {
		t.Fatalf("expected marker release after write failure, got %d", marker.releases)
	}
}

func TestRunSkipsWhenDayAlreadyClaimed(t *testing.T) {
	store := &fakeJournal{record: dayWith("content"), found: true}
	enricher := &fakeEnricher{}
	marker := &fakeMarker{claimed: false}
	service := newTestService(t, store, enricher, &fakeWriter{}, marker)

	outcome, err := service.Run(context.Background(), mustUserID(t, "U123"), mustDate(t, "2024-01-01"), false)
	if err != nil {
		t.Fatalf("unexpected run error: %v", err)
	}
	if outcome != OutcomeSkipped {
		t.Fatalf("unexpected outcome: %s", outcome)
	}
	if enricher.calls != 0 {
		t.Fatalf("expected no enrichment for claimed day")
	}
}

func TestRunForceBypassesMarker(t *testing.T) {
	store := &fakeJournal{record: dayWith("content"), found: true}
	marker := &fakeMarker{claimed: false}
	writer := &fakeWriter{}
	service := newTestService(t, store, &fakeEnricher{result: insight.Result{}}, writer, marker)

	outcome, err := service.Run(context.Background(), mustUserID(t, "U123"), mustDate(t, "2024-01-01"), true)
	if err != nil {
		t.Fatalf("unexpected run error: %v", err)
	}
	if outcome != OutcomeProcessed {
		t.Fatalf("unexpected outcome: %s", outcome)
	}
	if marker.claims != 0 {
		t.Fatalf("expected marker to be bypassed, got %d claims", marker.claims)
	}
}

func TestRunProceedsWhenMarkerUnavailable(t *testing.T) {
	store := &fakeJournal{record: dayWith("content"), found: true}
	marker := &fakeMarker{claimErr: errors.New("redis down")}
	writer := &fakeWriter{}
	service := newTestService(t, store, &fakeEnricher{result: insight.Result{}}, writer, marker)

	outcome, err := service.Run(context.Background(), mustUserID(t, "U123"), mustDate(t, "2024-01-01"), false)
	if err != nil {
		t.Fatalf("unexpected run error: %v", err)
	}
	if outcome != OutcomeProcessed {
		t.Fatalf("unexpected outcome: %s", outcome)
	}
	if writer.calls != 1 {
		t.Fatalf("expected write despite marker failure")
	}
}
