package notion

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jomei/notionapi"
	"go.uber.org/zap"
)

var (
	errMissingToken      = errors.New("notion: api token is required")
	errMissingDatabaseID = errors.New("notion: database id is required")
	errMissingPageAPI    = errors.New("notion: page api is required")
)

// PageAPI is the slice of the Notion client the writer needs.
type PageAPI interface {
	Create(ctx context.Context, request *notionapi.PageCreateRequest) (*notionapi.Page, error)
}

// Writer creates one page per processed memory in a fixed database.
// Destination unavailability is logged and surfaced as an error for the
// caller to fold into a status message; it never panics the request path.
type Writer struct {
	pages      PageAPI
	databaseID string
	logger     *zap.Logger
}

// WriterConfig describes the dependencies for a Writer.
type WriterConfig struct {
	Pages      PageAPI
	DatabaseID string
	Logger     *zap.Logger
}

// NewWriter constructs a Writer from an already-built page API.
func NewWriter(cfg WriterConfig) (*Writer, error) {
	if cfg.Pages == nil {
		return nil, errMissingPageAPI
	}
	if strings.TrimSpace(cfg.DatabaseID) == "" {
		return nil, errMissingDatabaseID
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Writer{pages: cfg.Pages, databaseID: cfg.DatabaseID, logger: logger}, nil
}

// NewWriterFromToken constructs a Writer backed by the official API client.
func NewWriterFromToken(token, databaseID string, logger *zap.Logger) (*Writer, error) {
	if strings.TrimSpace(token) == "" {
		return nil, errMissingToken
	}
	client := notionapi.NewClient(notionapi.Token(token))
	return NewWriter(WriterConfig{Pages: client.Page, DatabaseID: databaseID, Logger: logger})
}

// CreatePage writes the memory page and returns its identifier.
func (w *Writer) CreatePage(ctx context.Context, content PageContent) (string, error) {
	request := BuildCreateRequest(w.databaseID, content)

	page, err := w.pages.Create(ctx, request)
	if err != nil {
		w.logger.Error("notion page creation failed",
			zap.String("database_id", w.databaseID),
			zap.String("title", content.Title()),
			zap.Error(err))
		return "", fmt.Errorf("notion: create page: %w", err)
	}

	w.logger.Info("notion page created",
		zap.String("page_id", page.ID.String()),
		zap.String("title", content.Title()))
	return page.ID.String(), nil
}
