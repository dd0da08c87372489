package server

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/daybook/backend/internal/dispatch"
	"github.com/MarcoPoloResearchLab/daybook/backend/internal/insight"
	"github.com/MarcoPoloResearchLab/daybook/backend/internal/journal"
	"github.com/MarcoPoloResearchLab/daybook/backend/internal/notion"
	"github.com/MarcoPoloResearchLab/daybook/backend/internal/reflection"
	"github.com/MarcoPoloResearchLab/daybook/backend/internal/transcript"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	errMissingJournalStore = errors.New("journal store dependency required")
	errMissingQueue        = errors.New("dispatch queue dependency required")
)

// MemoryEnricher produces per-memory insight results for the Notion pipeline.
type MemoryEnricher interface {
	Process(ctx context.Context, transcript string) insight.Result
}

// PageCreator writes one memory page to the Notion destination.
type PageCreator interface {
	CreatePage(ctx context.Context, content notion.PageContent) (string, error)
}

// ReflectionRunner triggers the daily reflection pipeline for one day.
type ReflectionRunner interface {
	Run(ctx context.Context, userID transcript.UserID, date transcript.Date, force bool) (reflection.Outcome, error)
}

// ReflectionEnqueuer hands a reflection run to the task queue instead of
// running it inline.
type ReflectionEnqueuer interface {
	EnqueueDailyReflection(userID, date string, force bool) error
}

// Dependencies wires the HTTP surface. MemoryEnricher, Pages and Reflections
// are optional; endpoints that need an absent client answer 500 so deliveries
// surface the misconfiguration instead of silently dropping data.
type Dependencies struct {
	Journal        journal.Store
	Queue          *dispatch.Queue
	Bucketer       transcript.Bucketer
	MemoryEnricher MemoryEnricher
	Pages          PageCreator
	Reflections    ReflectionRunner
	Enqueuer       ReflectionEnqueuer
	DefaultUserID  string
	Logger         *zap.Logger
}

// NewHTTPHandler builds the gin router for the webhook service.
func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	if deps.Journal == nil {
		return nil, errMissingJournalStore
	}
	if deps.Queue == nil {
		return nil, errMissingQueue
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders: []string{"Authorization", "Content-Type"},
		MaxAge:       12 * time.Hour,
	}))

	handler := &httpHandler{
		journal:       deps.Journal,
		queue:         deps.Queue,
		bucketer:      deps.Bucketer,
		enricher:      deps.MemoryEnricher,
		pages:         deps.Pages,
		reflections:   deps.Reflections,
		enqueuer:      deps.Enqueuer,
		defaultUserID: deps.DefaultUserID,
		logger:        logger,
	}

	router.GET("/", handler.handleHealth)
	router.POST("/webhook", handler.handleNotionWebhook)
	router.POST("/memory_webhook", handler.handleMemoryWebhook)
	router.GET("/reflect", handler.handleReflect)
	router.POST("/reflect", handler.handleReflect)

	return router, nil
}

type httpHandler struct {
	journal       journal.Store
	queue         *dispatch.Queue
	bucketer      transcript.Bucketer
	enricher      MemoryEnricher
	pages         PageCreator
	reflections   ReflectionRunner
	enqueuer      ReflectionEnqueuer
	defaultUserID string
	logger        *zap.Logger
}

func (h *httpHandler) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":      "ok",
		"queue_depth": h.queue.Depth(),
	})
}

func (h *httpHandler) handleNotionWebhook(c *gin.Context) {
	userID, ok := h.requireUserID(c)
	if !ok {
		return
	}
	if h.enricher == nil || h.pages == nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "notion_pipeline_unavailable"})
		return
	}

	var payload transcript.Payload
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	fragment, extraction, err := transcript.ParseFragment(payload, fallbackMemoryID())
	if err != nil {
		h.logger.Warn("memory timestamps unreadable, continuing without them",
			zap.String("user_id", userID.String()), zap.Error(err))
	}
	h.warnExtractionGaps(userID, extraction)

	result := h.enricher.Process(c.Request.Context(), fragment.Transcript)

	content := notion.PageContent{
		Result:     result,
		StartedAt:  fragment.StartedAt,
		FinishedAt: fragment.FinishedAt,
		Location:   fragment.Geolocation,
		Transcript: fragment.Transcript,
	}

	// A failed page write is reported in the acknowledgement body, not the
	// status code, so the sender does not redeliver the memory.
	status := "Notion page created."
	if _, err := h.pages.CreatePage(c.Request.Context(), content); err != nil {
		h.logger.Error("failed to create notion page",
			zap.String("user_id", userID.String()), zap.Error(err))
		status = "Failed to create Notion page."
	}

	c.JSON(http.StatusOK, gin.H{
		"message":    "Memory received. " + status,
		"title_used": content.Title(),
	})
}

func (h *httpHandler) handleMemoryWebhook(c *gin.Context) {
	userID, ok := h.requireUserID(c)
	if !ok {
		return
	}

	var payload transcript.Payload
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	fragment, extraction, err := transcript.ParseFragment(payload, fallbackMemoryID())
	if err != nil {
		h.logger.Warn("memory timestamps unreadable, continuing without them",
			zap.String("user_id", userID.String()), zap.Error(err))
	}
	h.warnExtractionGaps(userID, extraction)

	date := h.bucketer.FragmentDate(fragment)
	if rawDate := strings.TrimSpace(c.Query("date")); rawDate != "" {
		// Reprocessing support: an explicit date pins the bucket.
		parsed, err := transcript.NewDate(rawDate)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "date must be formatted YYYY-MM-DD"})
			return
		}
		date = parsed
	}
	dayKey := transcript.DayKey(userID, date)

	accepted := h.queue.Enqueue(dispatch.Task{
		Name: "journal append " + dayKey,
		Run: func(taskCtx context.Context) error {
			return h.journal.AppendFragment(taskCtx, userID, date, fragment)
		},
	})
	if !accepted {
		// The queue logged the drop; the sender is still acknowledged so the
		// device does not redeliver into a saturated buffer.
		h.logger.Error("journal append dropped",
			zap.String("user_id", userID.String()), zap.String("day_key", dayKey))
	}

	c.JSON(http.StatusOK, gin.H{"message": "Memory received and queued for processing."})
}

func (h *httpHandler) handleReflect(c *gin.Context) {
	if h.reflections == nil {
		c.String(http.StatusInternalServerError, "Reflection pipeline unavailable.")
		return
	}

	rawUserID := strings.TrimSpace(c.Query("uid"))
	if rawUserID == "" {
		rawUserID = h.defaultUserID
	}
	userID, err := transcript.NewUserID(rawUserID)
	if err != nil {
		c.String(http.StatusBadRequest, "A valid uid query parameter is required.")
		return
	}

	date := h.bucketer.ScheduledDate()
	if rawDate := strings.TrimSpace(c.Query("date")); rawDate != "" {
		parsed, err := transcript.NewDate(rawDate)
		if err != nil {
			c.String(http.StatusBadRequest, "Date must be formatted YYYY-MM-DD.")
			return
		}
		date = parsed
	}

	force := strings.EqualFold(c.Query("force"), "true")

	if strings.EqualFold(c.Query("async"), "true") && h.enqueuer != nil {
		if err := h.enqueuer.EnqueueDailyReflection(userID.String(), date.String(), force); err != nil {
			h.logger.Error("failed to enqueue reflection",
				zap.String("user_id", userID.String()), zap.String("date", date.String()), zap.Error(err))
			c.String(http.StatusInternalServerError, "Reflection could not be queued for %s.", date)
			return
		}
		c.String(http.StatusAccepted, "Reflection queued for %s.", date)
		return
	}

	outcome, err := h.reflections.Run(c.Request.Context(), userID, date, force)
	if err != nil {
		h.logger.Error("reflection run failed",
			zap.String("user_id", userID.String()), zap.String("date", date.String()), zap.Error(err))
		c.String(http.StatusInternalServerError, "Reflection failed for %s.", date)
		return
	}

	switch outcome {
	case reflection.OutcomeNoData:
		c.String(http.StatusOK, "No journal data found for %s.", date)
	case reflection.OutcomeSkipped:
		c.String(http.StatusOK, "Reflection for %s was already processed.", date)
	default:
		c.String(http.StatusOK, "Reflection processed for %s.", date)
	}
}

func (h *httpHandler) warnExtractionGaps(userID transcript.UserID, extraction transcript.Extraction) {
	if extraction.ListMissing {
		h.logger.Warn("payload missing transcript segments list",
			zap.String("user_id", userID.String()))
		return
	}
	if extraction.Skipped > 0 {
		h.logger.Warn("skipped transcript segments without text",
			zap.String("user_id", userID.String()), zap.Int("skipped", extraction.Skipped))
	}
}

// Payloads without an id still need a stable fragment identifier.
func fallbackMemoryID() transcript.MemoryID {
	return transcript.MemoryID(uuid.NewString())
}

func (h *httpHandler) requireUserID(c *gin.Context) (transcript.UserID, bool) {
	userID, err := transcript.NewUserID(c.Query("uid"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "uid query parameter is required"})
		return "", false
	}
	return userID, true
}
