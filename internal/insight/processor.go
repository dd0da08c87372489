package insight

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"
)

var errMissingCompletionClient = errors.New("insight: completion client is required")

// Result is the normalized enrichment record. After Process returns, every
// required key of the active profile is present and every list-typed key holds
// a list.
type Result map[string]any

// String returns the value at key when it is a string.
func (r Result) String(key string) string {
	value, _ := r[key].(string)
	return value
}

// StringList returns the value at key coerced to a string slice; non-string
// elements are dropped.
func (r Result) StringList(key string) []string {
	raw, ok := r[key].([]any)
	if !ok {
		return nil
	}
	values := make([]string, 0, len(raw))
	for _, element := range raw {
		if text, ok := element.(string); ok {
			values = append(values, text)
		}
	}
	return values
}

// CompletionRequest is one call to the completion API. The profile supplies
// everything except the transcript-bearing prompt.
type CompletionRequest struct {
	SystemInstruction string
	Prompt            string
	MaxTokens         int
	Temperature       float32
}

// CompletionClient abstracts the text-completion API. Implementations must
// request JSON-formatted output and return the raw response text.
type CompletionClient interface {
	Complete(ctx context.Context, request CompletionRequest) (string, error)
}

// Processor turns a transcript into a validated Result for one profile.
// Content failures (transport errors, unparseable or incomplete JSON) never
// escape: they collapse into the profile's fallback record, with the failure
// visible in the record's own fields. Calling Process twice with the same
// transcript is safe; output varies only with model nondeterminism.
type Processor struct {
	client  CompletionClient
	profile Profile
	logger  *zap.Logger
}

// ProcessorConfig describes the dependencies for a Processor.
type ProcessorConfig struct {
	Client  CompletionClient
	Profile Profile
	Logger  *zap.Logger
}

// NewProcessor constructs a Processor.
func NewProcessor(cfg ProcessorConfig) (*Processor, error) {
	if cfg.Client == nil {
		return nil, errMissingCompletionClient
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Processor{client: cfg.Client, profile: cfg.Profile, logger: logger}, nil
}

// Profile exposes the active profile, mainly for callers that render
// destination content from its schema.
func (p *Processor) Profile() Profile {
	return p.profile
}

// Process runs the request/validate/fallback operation. An empty transcript
// skips the API call entirely: the model has nothing to analyze and the call
// would only cost money.
func (p *Processor) Process(ctx context.Context, transcript string) Result {
	if transcript == "" {
		p.logger.Warn("skipping completion call for empty transcript",
			zap.String("profile", p.profile.Name))
		return p.profile.FallbackResult()
	}

	response, err := p.client.Complete(ctx, CompletionRequest{
		SystemInstruction: p.profile.SystemInstruction,
		Prompt:            p.profile.Prompt(transcript),
		MaxTokens:         p.profile.MaxTokens,
		Temperature:       p.profile.Temperature,
	})
	if err != nil {
		p.logger.Error("completion call failed",
			zap.String("profile", p.profile.Name),
			zap.Error(err))
		result := p.profile.FallbackResult()
		annotateFailure(result, p.profile, fmt.Sprintf("Error: %v", err))
		return result
	}

	result, err := p.validate(response)
	if err != nil {
		p.logger.Error("completion response rejected",
			zap.String("profile", p.profile.Name),
			zap.Error(err))
		return p.profile.FallbackResult()
	}

	p.logger.Info("transcript processed",
		zap.String("profile", p.profile.Name),
		zap.Int("transcript_chars", len(transcript)))
	return result
}

// validate parses the raw response, checks the required-key set, and applies
// the list-leniency policy: a list-typed key of the wrong shape degrades to an
// empty list while scalar keys must simply be present. A parse failure is not
// retried.
func (p *Processor) validate(response string) (Result, error) {
	var parsed map[string]any
	if err := json.Unmarshal([]byte(response), &parsed); err != nil {
		return nil, fmt.Errorf("insight: invalid completion JSON: %w", err)
	}

	for _, key := range p.profile.RequiredKeys {
		if _, present := parsed[key]; !present {
			return nil, fmt.Errorf("insight: completion JSON missing required key %q", key)
		}
	}

	for _, key := range p.profile.ListKeys {
		if _, ok := parsed[key].([]any); !ok {
			p.logger.Warn("coercing non-list field to empty list",
				zap.String("profile", p.profile.Name),
				zap.String("key", key))
			parsed[key] = []any{}
		}
	}

	return Result(parsed), nil
}

// annotateFailure surfaces a transport error in the fallback record's own
// fields, matching each schema's error shape.
func annotateFailure(result Result, profile Profile, message string) {
	switch profile.Name {
	case "memory-v1":
		result["title"] = "OpenAI Error"
		result["summary"] = message
		result["category"] = "Error"
		result["emoji"] = "❗️"
	default:
		result["summary"] = "AI Processing Failed"
	}
}
