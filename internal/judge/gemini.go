/*
Package judge asks Gemini whether an extracted articulation entry pairs
related courses, and for corrections when the parse looks wrong.
*/
package judge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"articulator/internal"
	"articulator/internal/config"
	"articulator/internal/logging"
	"articulator/internal/ratelimit"
)

var ErrEmptyResponse = errors.New("empty judge response")

// generator is the part of the genai Models service the judge uses.
type generator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

type Gemini struct {
	gen     generator
	model   string
	limiter *ratelimit.RateLimiter
	logger  *zap.Logger
}

var systemInstruction = `
You review course articulation entries scraped from transfer agreement pages.
Each entry pairs a community college course (source) with a university course
(destination). The scraper may have put a course on the wrong side, read a
unit count as a course code, or glued a code into a course name.

Decide:
- valid: the entry is a plausible articulation as written.
- coursesRelated: the two courses cover related subject matter.
- codesMatchNames: each code looks like it belongs with its name.
- shouldSwap: the source and destination courses are on the wrong sides.
- correctedSourceCode, correctedSourceName, correctedDestCode, correctedDestName:
  only when a field is clearly wrong, written for the entry after any swap.
  Leave empty otherwise.
- relationshipType: AND when all grouped courses are required, OR when any one
  suffices, empty when unsure.
- explanation: one short sentence.
`

func New(ctx context.Context, cfg config.Config, logger *zap.Logger) (*Gemini, error) {
	if err := cfg.Require("GEMINI_API_KEY", cfg.GeminiAPIKey); err != nil {
		return nil, err
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.GeminiAPIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}
	return newGemini(client.Models, cfg.GeminiModel, ratelimit.NewRateLimiter(cfg.JudgeRateLimitRPS), logger), nil
}

func newGemini(gen generator, model string, limiter *ratelimit.RateLimiter, logger *zap.Logger) *Gemini {
	if model == "" {
		model = "gemini-2.5-flash"
	}
	return &Gemini{gen: gen, model: model, limiter: limiter, logger: logging.OrNop(logger)}
}

// Judge makes one call for one entry. It does not retry.
func (g *Gemini) Judge(ctx context.Context, req internal.JudgeRequest) (internal.Judgment, error) {
	if err := g.limiter.WaitTurn(ctx); err != nil {
		return internal.Judgment{}, err
	}

	payload, err := json.MarshalIndent(req, "", "  ")
	if err != nil {
		return internal.Judgment{}, err
	}
	prompt := fmt.Sprintf("Review this articulation entry:\n\n%s", payload)

	resp, err := g.gen.GenerateContent(ctx, g.model, genai.Text(prompt), &genai.GenerateContentConfig{
		SystemInstruction: &genai.Content{Parts: []*genai.Part{{Text: systemInstruction}}},
		ResponseMIMEType:  "application/json",
		ResponseSchema:    responseSchema(),
	})
	if err != nil {
		return internal.Judgment{}, fmt.Errorf("gemini API call failed: %w", err)
	}
	if resp == nil {
		return internal.Judgment{}, ErrEmptyResponse
	}

	j, err := parseJudgment(resp.Text())
	if err != nil {
		return internal.Judgment{}, err
	}
	g.logger.Debug("entry judged",
		zap.String("source", req.SourceCode),
		zap.String("dest", req.DestCode),
		zap.Bool("valid", j.Valid),
		zap.Bool("related", j.CoursesRelated),
		zap.Bool("swap", j.ShouldSwap),
	)
	return j, nil
}

func parseJudgment(text string) (internal.Judgment, error) {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	text = strings.TrimSpace(text)
	if text == "" {
		return internal.Judgment{}, ErrEmptyResponse
	}

	var j internal.Judgment
	if err := json.Unmarshal([]byte(text), &j); err != nil {
		return internal.Judgment{}, fmt.Errorf("failed to unmarshal judge response: %w. Raw text: %s", err, text)
	}
	switch rel := internal.Relationship(strings.ToUpper(strings.TrimSpace(string(j.RelationshipType)))); rel {
	case internal.RelationshipAnd, internal.RelationshipOr:
		j.RelationshipType = rel
	default:
		j.RelationshipType = ""
	}
	return j, nil
}

func responseSchema() *genai.Schema {
	str := func(desc string) *genai.Schema { return &genai.Schema{Type: genai.TypeString, Description: desc} }
	boolean := func(desc string) *genai.Schema { return &genai.Schema{Type: genai.TypeBoolean, Description: desc} }

	return &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"valid":               boolean("The entry is a plausible articulation as written."),
			"coursesRelated":      boolean("The two courses cover related subject matter."),
			"codesMatchNames":     boolean("Each course code belongs with its name."),
			"shouldSwap":          boolean("Source and destination are on the wrong sides."),
			"correctedSourceCode": str("Corrected source course code, or empty."),
			"correctedSourceName": str("Corrected source course name, or empty."),
			"correctedDestCode":   str("Corrected destination course code, or empty."),
			"correctedDestName":   str("Corrected destination course name, or empty."),
			"relationshipType":    {Type: genai.TypeString, Enum: []string{"AND", "OR"}, Description: "Group relationship when the entry is part of a group."},
			"explanation":         str("One short sentence."),
		},
		Required: []string{"valid", "coursesRelated", "codesMatchNames", "shouldSwap", "explanation"},
	}
}
