package notion

import (
	"fmt"
	"time"

	"github.com/MarcoPoloResearchLab/daybook/backend/internal/insight"
	"github.com/MarcoPoloResearchLab/daybook/backend/internal/transcript"
	"github.com/jomei/notionapi"
)

// maxBlockLength is the destination API's per-block character ceiling;
// oversized paragraphs are rejected, so transcripts are split below it.
const maxBlockLength = 1990

const titlePropertyName = "Name"

// PageContent carries everything rendered onto one memory page: the
// enrichment result plus the original fragment metadata and raw transcript.
type PageContent struct {
	Result     insight.Result
	StartedAt  *time.Time
	FinishedAt *time.Time
	Location   *transcript.Geolocation
	Transcript string
}

// Title returns the indexed page title, with a default for records that lost
// theirs to an upstream failure.
func (c PageContent) Title() string {
	if title := c.Result.String("title"); title != "" {
		return title
	}
	return "Untitled Memory"
}

func (c PageContent) emoji() string {
	if emoji := c.Result.String("emoji"); emoji != "" {
		return emoji
	}
	return "📄"
}

// BuildCreateRequest assembles the page-create payload: a single title
// property, the emoji icon, and everything else as body blocks.
func BuildCreateRequest(databaseID string, content PageContent) *notionapi.PageCreateRequest {
	emoji := notionapi.Emoji(content.emoji())
	return &notionapi.PageCreateRequest{
		Parent: notionapi.Parent{
			Type:       notionapi.ParentTypeDatabaseID,
			DatabaseID: notionapi.DatabaseID(databaseID),
		},
		Icon: &notionapi.Icon{
			Type:  "emoji",
			Emoji: &emoji,
		},
		Properties: notionapi.Properties{
			titlePropertyName: notionapi.TitleProperty{
				Title: richText(content.Title()),
			},
		},
		Children: BuildBlocks(content),
	}
}

// BuildBlocks renders the page body: summary, action items, details, then the
// full transcript in bounded chunks.
func BuildBlocks(content PageContent) []notionapi.Block {
	summary := content.Result.String("summary")
	if summary == "" {
		summary = "No summary available."
	}
	category := content.Result.String("category")
	if category == "" {
		category = "Uncategorized"
	}

	actionItems := "None"
	if items := content.Result.StringList("action_items"); len(items) > 0 {
		actionItems = ""
		for i, item := range items {
			if i > 0 {
				actionItems += "\n"
			}
			actionItems += "- " + item
		}
	}

	blocks := []notionapi.Block{
		heading("Summary"),
		paragraph(summary),
		heading("Action Items"),
		paragraph(actionItems),
		heading("Details"),
		paragraph("Category: " + category),
		paragraph(dateLine(content.StartedAt, content.FinishedAt)),
		paragraph("Location: " + locationLine(content.Location)),
		heading("Full Transcript"),
	}

	if content.Transcript == "" {
		return append(blocks, paragraph("(No transcript extracted)"))
	}
	for _, chunk := range chunkText(content.Transcript, maxBlockLength) {
		blocks = append(blocks, paragraph(chunk))
	}
	return blocks
}

func dateLine(startedAt, finishedAt *time.Time) string {
	if startedAt == nil {
		return "No start date"
	}
	line := "Started: " + startedAt.Format(time.RFC3339)
	if finishedAt != nil && !finishedAt.Equal(*startedAt) {
		line += "\nEnded: " + finishedAt.Format(time.RFC3339)
	}
	return line
}

func locationLine(location *transcript.Geolocation) string {
	if location == nil {
		return "No location data"
	}
	return fmt.Sprintf("Lat: %v, Lon: %v", location.Latitude, location.Longitude)
}

// chunkText splits text into pieces no longer than limit characters. The API
// counts characters, not bytes, so splits land on rune boundaries.
func chunkText(text string, limit int) []string {
	if limit <= 0 || text == "" {
		return nil
	}
	runes := []rune(text)
	chunks := make([]string, 0, len(runes)/limit+1)
	for start := 0; start < len(runes); start += limit {
		end := start + limit
		if end > len(runes) {
			end = len(runes)
		}
		chunks = append(chunks, string(runes[start:end]))
	}
	return chunks
}

func heading(text string) notionapi.Block {
	return notionapi.Heading2Block{
		BasicBlock: notionapi.BasicBlock{
			Object: notionapi.ObjectTypeBlock,
			Type:   notionapi.BlockTypeHeading2,
		},
		Heading2: notionapi.Heading{RichText: richText(text)},
	}
}

func paragraph(text string) notionapi.Block {
	return notionapi.ParagraphBlock{
		BasicBlock: notionapi.BasicBlock{
			Object: notionapi.ObjectTypeBlock,
			Type:   notionapi.BlockTypeParagraph,
		},
		Paragraph: notionapi.Paragraph{RichText: richText(text)},
	}
}

func richText(text string) []notionapi.RichText {
	return []notionapi.RichText{
		{
			Type: notionapi.ObjectTypeText,
			Text: &notionapi.Text{Content: text},
		},
	}
}
