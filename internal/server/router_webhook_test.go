package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/MarcoPoloResearchLab/daybook/backend/internal/dispatch"
	"github.com/MarcoPoloResearchLab/daybook/backend/internal/insight"
	"github.com/MarcoPoloResearchLab/daybook/backend/internal/journal"
	"github.com/MarcoPoloResearchLab/daybook/backend/internal/notion"
	"github.com/MarcoPoloResearchLab/daybook/backend/internal/reflection"
	"github.com/MarcoPoloResearchLab/daybook/backend/internal/transcript"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

const samplePayload = `{
	"id": "mem-1",
	"started_at": "2024-01-01T10:00:00Z",
	"finished_at": "2024-01-01T10:05:00Z",
	"transcript_segments": [{"text": "hello"}, {"text": "world"}]
}`

type appendCall struct {
	userID   transcript.UserID
	date     transcript.Date
	fragment transcript.Fragment
}

type fakeJournalStore struct {
	mu      sync.Mutex
	appends []appendCall
	record  journal.DayRecord
	found   bool
	err     error
}

func (s *fakeJournalStore) AppendFragment(_ context.Context, userID transcript.UserID, date transcript.Date, fragment transcript.Fragment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.appends = append(s.appends, appendCall{userID: userID, date: date, fragment: fragment})
	return nil
}

func (s *fakeJournalStore) LoadDay(context.Context, transcript.UserID, transcript.Date) (journal.DayRecord, bool, error) {
	return s.record, s.found, s.err
}

type fakeEnricher struct {
	result insight.Result
	calls  int
}

func (e *fakeEnricher) Process(_ context.Context, _ string) insight.Result {
	e.calls++
	return e.result
}

type fakePages struct {
	content notion.PageContent
	err     error
	calls   int
}

func (p *fakePages) CreatePage(_ context.Context, content notion.PageContent) (string, error) {
	p.calls++
	p.content = content
	if p.err != nil {
		return "", p.err
	}
	return "page-1", nil
}

type reflectCall struct {
	userID transcript.UserID
	date   transcript.Date
	force  bool
}

type fakeReflections struct {
	outcome reflection.Outcome
	err     error
	calls   []reflectCall
}

func (r *fakeReflections) Run(_ context.Context, userID transcript.UserID, date transcript.Date, force bool) (reflection.Outcome, error) {
	r.calls = append(r.calls, reflectCall{userID: userID, date: date, force: force})
	if r.err != nil {
		return "", r.err
	}
	return r.outcome, nil
}

type enqueueCall struct {
	userID string
	date   string
	force  bool
}

type fakeEnqueuer struct {
	err   error
	calls []enqueueCall
}

func (e *fakeEnqueuer) EnqueueDailyReflection(userID, date string, force bool) error {
	e.calls = append(e.calls, enqueueCall{userID: userID, date: date, force: force})
	return e.err
}

type testRig struct {
	router      http.Handler
	queue       *dispatch.Queue
	store       *fakeJournalStore
	enricher    *fakeEnricher
	pages       *fakePages
	reflections *fakeReflections
	enqueuer    *fakeEnqueuer
}

func newTestRig(testContext *testing.T) *testRig {
	testContext.Helper()
	gin.SetMode(gin.TestMode)

	clock := func() time.Time {
		return time.Date(2024, 3, 15, 21, 0, 0, 0, time.UTC)
	}
	bucketer, err := transcript.NewBucketer(time.UTC, transcript.BoundaryRuleSameDay, clock)
	if err != nil {
		testContext.Fatalf("failed to build bucketer: %v", err)
	}

	rig := &testRig{
		queue:       dispatch.NewQueue(dispatch.Config{}),
		store:       &fakeJournalStore{},
		enricher:    &fakeEnricher{result: insight.Result{"title": "Morning Walk", "summary": "a walk", "emoji": "🌅"}},
		pages:       &fakePages{},
		reflections: &fakeReflections{outcome: reflection.OutcomeProcessed},
		enqueuer:    &fakeEnqueuer{},
	}

	router, err := NewHTTPHandler(Dependencies{
		Journal:        rig.store,
		Queue:          rig.queue,
		Bucketer:       bucketer,
		MemoryEnricher: rig.enricher,
		Pages:          rig.pages,
		Reflections:    rig.reflections,
		Enqueuer:       rig.enqueuer,
		DefaultUserID:  "default-user",
	})
	if err != nil {
		testContext.Fatalf("failed to build handler: %v", err)
	}
	rig.router = router
	return rig
}

func (rig *testRig) do(method, target, body string) *httptest.ResponseRecorder {
	recorder := httptest.NewRecorder()
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	request := httptest.NewRequest(method, target, reader)
	if body != "" {
		request.Header.Set("Content-Type", "application/json")
	}
	rig.router.ServeHTTP(recorder, request)
	return recorder
}

func TestMemoryWebhookQueuesFragment(testContext *testing.T) {
	rig := newTestRig(testContext)

	recorder := rig.do(http.MethodPost, "/memory_webhook?uid=U123", samplePayload)

	if recorder.Code != http.StatusOK {
		testContext.Fatalf("expected ok status, got %d: %s", recorder.Code, recorder.Body.String())
	}
	expected := `{"message":"Memory received and queued for processing."}`
	if recorder.Body.String() != expected {
		testContext.Fatalf("unexpected response body: %s", recorder.Body.String())
	}

	rig.queue.Drain()

	if len(rig.store.appends) != 1 {
		testContext.Fatalf("expected 1 journal append, got %d", len(rig.store.appends))
	}
	call := rig.store.appends[0]
	if call.userID.String() != "U123" {
		testContext.Fatalf("unexpected user id %q", call.userID)
	}
	if call.date.String() != "2024-01-01" {
		testContext.Fatalf("unexpected date %q", call.date)
	}
	if call.fragment.Transcript != "hello world" {
		testContext.Fatalf("unexpected transcript %q", call.fragment.Transcript)
	}
	if call.fragment.MemoryID.String() != "mem-1" {
		testContext.Fatalf("unexpected memory id %q", call.fragment.MemoryID)
	}
}

func TestMemoryWebhookFallsBackToClockDate(testContext *testing.T) {
	rig := newTestRig(testContext)

	body := `{"transcript_segments": [{"text": "untimed"}]}`
	recorder := rig.do(http.MethodPost, "/memory_webhook?uid=U123", body)

	if recorder.Code != http.StatusOK {
		testContext.Fatalf("expected ok status, got %d", recorder.Code)
	}

	rig.queue.Drain()

	if len(rig.store.appends) != 1 {
		testContext.Fatalf("expected 1 journal append, got %d", len(rig.store.appends))
	}
	call := rig.store.appends[0]
	if call.date.String() != "2024-03-15" {
		testContext.Fatalf("expected clock date, got %q", call.date)
	}
	if call.fragment.MemoryID.String() == "" {
		testContext.Fatal("expected generated memory id")
	}
}

func TestMemoryWebhookHonorsDateOverride(testContext *testing.T) {
	rig := newTestRig(testContext)

	recorder := rig.do(http.MethodPost, "/memory_webhook?uid=U123&date=2024-02-29", samplePayload)

	if recorder.Code != http.StatusOK {
		testContext.Fatalf("expected ok status, got %d", recorder.Code)
	}

	rig.queue.Drain()

	if len(rig.store.appends) != 1 {
		testContext.Fatalf("expected 1 journal append, got %d", len(rig.store.appends))
	}
	if rig.store.appends[0].date.String() != "2024-02-29" {
		testContext.Fatalf("expected override date, got %q", rig.store.appends[0].date)
	}
}

func TestMemoryWebhookRejectsBadDateOverride(testContext *testing.T) {
	rig := newTestRig(testContext)

	recorder := rig.do(http.MethodPost, "/memory_webhook?uid=U123&date=Feb+29", samplePayload)

	if recorder.Code != http.StatusBadRequest {
		testContext.Fatalf("expected bad request status, got %d", recorder.Code)
	}
	rig.queue.Drain()
	if len(rig.store.appends) != 0 {
		testContext.Fatalf("expected no journal appends, got %d", len(rig.store.appends))
	}
}

func TestMemoryWebhookRequiresUserID(testContext *testing.T) {
	rig := newTestRig(testContext)

	recorder := rig.do(http.MethodPost, "/memory_webhook", samplePayload)

	if recorder.Code != http.StatusBadRequest {
		testContext.Fatalf("expected bad request status, got %d", recorder.Code)
	}
	expected := `{"error":"uid query parameter is required"}`
	if recorder.Body.String() != expected {
		testContext.Fatalf("unexpected response body: %s", recorder.Body.String())
	}
}

func TestMemoryWebhookRejectsMalformedJSON(testContext *testing.T) {
	rig := newTestRig(testContext)

	recorder := rig.do(http.MethodPost, "/memory_webhook?uid=U123", "{not json")

	if recorder.Code != http.StatusBadRequest {
		testContext.Fatalf("expected bad request status, got %d", recorder.Code)
	}
	if len(rig.store.appends) != 0 {
		testContext.Fatalf("expected no journal appends, got %d", len(rig.store.appends))
	}
}

func TestNotionWebhookCreatesPage(testContext *testing.T) {
	rig := newTestRig(testContext)

	recorder := rig.do(http.MethodPost, "/webhook?uid=U123", samplePayload)

	if recorder.Code != http.StatusOK {
		testContext.Fatalf("expected ok status, got %d: %s", recorder.Code, recorder.Body.String())
	}

	var response map[string]string
	if err := json.Unmarshal(recorder.Body.Bytes(), &response); err != nil {
		testContext.Fatalf("failed to decode response: %v", err)
	}
	if response["title_used"] != "Morning Walk" {
		testContext.Fatalf("unexpected title %q", response["title_used"])
	}
	if response["message"] != "Memory received. Notion page created." {
		testContext.Fatalf("unexpected message %q", response["message"])
	}

	if rig.enricher.calls != 1 {
		testContext.Fatalf("expected 1 enrichment call, got %d", rig.enricher.calls)
	}
	if rig.pages.calls != 1 {
		testContext.Fatalf("expected 1 page creation, got %d", rig.pages.calls)
	}
	if rig.pages.content.Transcript != "hello world" {
		testContext.Fatalf("unexpected page transcript %q", rig.pages.content.Transcript)
	}
	if rig.pages.content.StartedAt == nil || !rig.pages.content.StartedAt.Equal(time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)) {
		testContext.Fatalf("unexpected page start time %v", rig.pages.content.StartedAt)
	}
}

func TestNotionWebhookAcknowledgesWriteFailure(testContext *testing.T) {
	rig := newTestRig(testContext)
	rig.pages.err = errors.New("notion down")

	recorder := rig.do(http.MethodPost, "/webhook?uid=U123", samplePayload)

	if recorder.Code != http.StatusOK {
		testContext.Fatalf("expected ok status despite write failure, got %d: %s", recorder.Code, recorder.Body.String())
	}
	expected := `{"message":"Memory received. Failed to create Notion page.","title_used":"Morning Walk"}`
	if recorder.Body.String() != expected {
		testContext.Fatalf("unexpected response body: %s", recorder.Body.String())
	}
}

func TestNotionWebhookUnavailableWithoutClients(testContext *testing.T) {
	gin.SetMode(gin.TestMode)
	queue := dispatch.NewQueue(dispatch.Config{})
	bucketer, err := transcript.NewBucketer(time.UTC, transcript.BoundaryRuleSameDay, time.Now)
	if err != nil {
		testContext.Fatalf("failed to build bucketer: %v", err)
	}

	router, err := NewHTTPHandler(Dependencies{
		Journal:  &fakeJournalStore{},
		Queue:    queue,
		Bucketer: bucketer,
	})
	if err != nil {
		testContext.Fatalf("failed to build handler: %v", err)
	}

	recorder := httptest.NewRecorder()
	request := httptest.NewRequest(http.MethodPost, "/webhook?uid=U123", strings.NewReader(samplePayload))
	request.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(recorder, request)

	if recorder.Code != http.StatusInternalServerError {
		testContext.Fatalf("expected internal error status, got %d", recorder.Code)
	}
	expected := `{"error":"notion_pipeline_unavailable"}`
	if recorder.Body.String() != expected {
		testContext.Fatalf("unexpected response body: %s", recorder.Body.String())
	}
}

func TestMemoryWebhookAcknowledgesWhenQueueIsFull(testContext *testing.T) {
	gin.SetMode(gin.TestMode)
	queue := dispatch.NewQueue(dispatch.Config{BufferSize: 1})
	bucketer, err := transcript.NewBucketer(time.UTC, transcript.BoundaryRuleSameDay, time.Now)
	if err != nil {
		testContext.Fatalf("failed to build bucketer: %v", err)
	}
	store := &fakeJournalStore{}

	router, err := NewHTTPHandler(Dependencies{
		Journal:  store,
		Queue:    queue,
		Bucketer: bucketer,
	})
	if err != nil {
		testContext.Fatalf("failed to build handler: %v", err)
	}

	// No worker drains the single-slot buffer, so the second delivery drops.
	expected := `{"message":"Memory received and queued for processing."}`
	for attempt := 0; attempt < 2; attempt++ {
		recorder := httptest.NewRecorder()
		request := httptest.NewRequest(http.MethodPost, "/memory_webhook?uid=U123", strings.NewReader(samplePayload))
		request.Header.Set("Content-Type", "application/json")
		router.ServeHTTP(recorder, request)

		if recorder.Code != http.StatusOK {
			testContext.Fatalf("attempt %d: expected ok status, got %d: %s", attempt, recorder.Code, recorder.Body.String())
		}
		if recorder.Body.String() != expected {
			testContext.Fatalf("attempt %d: unexpected response body: %s", attempt, recorder.Body.String())
		}
	}

	if queue.Dropped() != 1 {
		testContext.Fatalf("expected 1 dropped task, got %d", queue.Dropped())
	}
}

func TestMemoryWebhookWarnsOnMissingSegmentsList(testContext *testing.T) {
	gin.SetMode(gin.TestMode)
	core, logs := observer.New(zapcore.WarnLevel)
	bucketer, err := transcript.NewBucketer(time.UTC, transcript.BoundaryRuleSameDay, time.Now)
	if err != nil {
		testContext.Fatalf("failed to build bucketer: %v", err)
	}

	router, err := NewHTTPHandler(Dependencies{
		Journal:  &fakeJournalStore{},
		Queue:    dispatch.NewQueue(dispatch.Config{}),
		Bucketer: bucketer,
		Logger:   zap.New(core),
	})
	if err != nil {
		testContext.Fatalf("failed to build handler: %v", err)
	}

	recorder := httptest.NewRecorder()
	request := httptest.NewRequest(http.MethodPost, "/memory_webhook?uid=U123", strings.NewReader(`{"id": "mem-9"}`))
	request.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(recorder, request)

	if recorder.Code != http.StatusOK {
		testContext.Fatalf("expected ok status, got %d: %s", recorder.Code, recorder.Body.String())
	}
	entries := logs.FilterMessage("payload missing transcript segments list").All()
	if len(entries) != 1 {
		testContext.Fatalf("expected a missing-list warning, got %d entries", len(entries))
	}
}

func TestMemoryWebhookWarnsOnSkippedSegments(testContext *testing.T) {
	gin.SetMode(gin.TestMode)
	core, logs := observer.New(zapcore.WarnLevel)
	bucketer, err := transcript.NewBucketer(time.UTC, transcript.BoundaryRuleSameDay, time.Now)
	if err != nil {
		testContext.Fatalf("failed to build bucketer: %v", err)
	}

	router, err := NewHTTPHandler(Dependencies{
		Journal:  &fakeJournalStore{},
		Queue:    dispatch.NewQueue(dispatch.Config{}),
		Bucketer: bucketer,
		Logger:   zap.New(core),
	})
	if err != nil {
		testContext.Fatalf("failed to build handler: %v", err)
	}

	body := `{"transcript_segments": [{"text": "hi"}, {"text": 5}]}`
	recorder := httptest.NewRecorder()
	request := httptest.NewRequest(http.MethodPost, "/memory_webhook?uid=U123", strings.NewReader(body))
	request.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(recorder, request)

	if recorder.Code != http.StatusOK {
		testContext.Fatalf("expected ok status, got %d: %s", recorder.Code, recorder.Body.String())
	}
	entries := logs.FilterMessage("skipped transcript segments without text").All()
	if len(entries) != 1 {
		testContext.Fatalf("expected a skipped-segments warning, got %d entries", len(entries))
	}
	if skipped := entries[0].ContextMap()["skipped"]; skipped != int64(1) {
		testContext.Fatalf("unexpected skipped count: %v", skipped)
	}
}

func TestHealthReportsQueueDepth(testContext *testing.T) {
	rig := newTestRig(testContext)

	recorder := rig.do(http.MethodGet, "/", "")

	if recorder.Code != http.StatusOK {
		testContext.Fatalf("expected ok status, got %d", recorder.Code)
	}

	var response map[string]any
	if err := json.Unmarshal(recorder.Body.Bytes(), &response); err != nil {
		testContext.Fatalf("failed to decode response: %v", err)
	}
	if response["status"] != "ok" {
		testContext.Fatalf("unexpected status %v", response["status"])
	}
	if _, ok := response["queue_depth"]; !ok {
		testContext.Fatal("expected queue_depth in health response")
	}
}
