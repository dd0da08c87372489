package insight

import "strings"

// transcriptPlaceholder marks where the transcript is spliced into a profile's
// prompt template.
const transcriptPlaceholder = "{{TRANSCRIPT}}"

// Profile names a completion schema: the instruction pair sent to the model,
// the keys the returned JSON object must carry, which of those keys are
// list-typed, and the fixed fallback record substituted when the model cannot
// produce valid output. The two deployed schemas are configuration profiles of
// one processor, not separate components.
type Profile struct {
	Name              string
	SystemInstruction string
	PromptTemplate    string
	RequiredKeys      []string
	ListKeys          []string
	MaxTokens         int
	Temperature       float32
	Fallback          map[string]any
}

// Prompt renders the profile's user prompt for the given transcript.
func (p Profile) Prompt(transcript string) string {
	return strings.ReplaceAll(p.PromptTemplate, transcriptPlaceholder, transcript)
}

// FallbackResult returns a fresh copy of the profile's fallback record so
// callers can annotate it without sharing state.
func (p Profile) FallbackResult() Result {
	result := make(Result, len(p.Fallback))
	for key, value := range p.Fallback {
		result[key] = value
	}
	return result
}

// MemoryProfileV1 is the short-form per-memory schema used by the Notion
// page pipeline.
func MemoryProfileV1() Profile {
	return Profile{
		Name:              "memory-v1",
		SystemInstruction: "You are an AI assistant skilled at analyzing transcripts and outputting structured JSON data.",
		PromptTemplate: `Analyze the following conversation transcript and provide the following details in JSON format:
1.  "title": A concise and descriptive title (max 10 words).
2.  "summary": A brief summary (2-4 sentences).
3.  "action_items": A JSON array of strings for any action items or tasks mentioned. If none, infer potential next steps or return an empty array [].
4.  "category": Suggest a single, relevant category (e.g., "Work Meeting", "Personal Catch-up", "Planning", "Ideas", "Support Call", "Shopping", "Travel").
5.  "emoji": Suggest a single standard emoji that best represents the conversation.

Transcript:
"{{TRANSCRIPT}}"

Return ONLY the JSON object. Example:
{
  "title": "Weekend Plan Discussion",
  "summary": "Discussed plans for the weekend hike.",
  "action_items": ["Check weather forecast", "Pack snacks"],
  "category": "Planning",
  "emoji": "⛰️"
}`,
		RequiredKeys: []string{"title", "summary", "action_items", "category", "emoji"},
		ListKeys:     []string{"action_items"},
		MaxTokens:    400,
		Temperature:  0.5,
		Fallback: map[string]any{
			"title":        "Processing Failed / No Transcript",
			"summary":      "Could not process transcript.",
			"action_items": []any{},
			"category":     "Uncategorized",
			"emoji":        "❓",
		},
	}
}

// DailyProfileV2 is the long-form daily-reflection schema used by the
// scheduled pipeline.
func DailyProfileV2() Profile {
	return Profile{
		Name:              "daily-v2",
		SystemInstruction: "You are an AI assistant analyzing daily conversation transcripts. Output structured JSON containing insightful summaries, actionable items, learned concepts, and supportive advice.",
		PromptTemplate: `Analyze the following conversation transcript(s) from an entire day and provide the following details in JSON format:
1.  "daily_emoji": Suggest a single standard emoji that best represents the overall day's mood or primary theme.
2.  "summary": A brief summary (2-4 sentences) capturing the essence or main activities of the day based on the conversations.
3.  "gratitude_points": A JSON array of 2-3 specific strings highlighting positive moments, interactions, or accomplishments mentioned that the user could be grateful for.
4.  "learned_terms": A JSON array of objects. Identify unique jargon, technical terms, names, or concepts mentioned. For each, provide a brief definition/context suitable for a quick reminder. Format: [{"term": "...", "definition": "..."}]. Limit to 3-5 key terms.
5.  "little_things": A JSON array of objects. Identify small, potentially actionable observations or mentions about preferences, desires, or needs of the user or others mentioned (e.g., someone liking donuts, needing milk). Format: [{"mention": "...", "suggested_action": "..."}]. Limit to 2-4 items. Generate a concise 'suggested_action' for each.
6.  "mentor_advice": Provide a single, constructive, and concise piece of advice (1-2 sentences) based on the day's conversations, focusing on communication, productivity, goals, or well-being. Be supportive but direct.
7.  "action_items": A JSON array of strings, listing clear, concrete action items or tasks explicitly mentioned for the user or assigned to them. Do not include the 'suggested_action' from 'little_things' here.

Transcript(s):
"{{TRANSCRIPT}}"

Return ONLY the valid JSON object. Ensure all keys are present, even if arrays are empty ([]).`,
		RequiredKeys: []string{"daily_emoji", "summary", "gratitude_points", "learned_terms", "little_things", "mentor_advice", "action_items"},
		ListKeys:     []string{"gratitude_points", "learned_terms", "little_things", "action_items"},
		MaxTokens:    1000,
		Temperature:  0.6,
		Fallback: map[string]any{
			"daily_emoji":      "⚠️",
			"summary":          "AI Processing Failed",
			"gratitude_points": []any{},
			"learned_terms":    []any{},
			"little_things":    []any{},
			"mentor_advice":    "Could not generate advice.",
			"action_items":     []any{},
		},
	}
}

// ProfileByName resolves a configured profile name, defaulting to daily-v2.
func ProfileByName(name string) (Profile, bool) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "memory-v1":
		return MemoryProfileV1(), true
	case "daily-v2", "":
		return DailyProfileV2(), true
	default:
		return Profile{}, false
	}
}
