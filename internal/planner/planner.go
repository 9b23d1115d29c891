package planner

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrNoJSON indicates the model reply contained no parseable JSON object.
var ErrNoJSON = errors.New("no json object in model response")

// generator is the minimal text-generation surface the Service depends on.
type generator interface {
	GenerateContent(ctx context.Context, prompt string) (string, error)
}

// AdjustmentInput carries the context assembled for the model.
type AdjustmentInput struct {
	Goal           string
	RecentSummary  string
	ClientFeedback string
}

// Adjustment is a single proposed change to the plan.
type Adjustment struct {
	Day    string `json:"day"`
	Change string `json:"change"`
	Reason string `json:"reason"`
}

// PlanAdjustment is the structured result extracted from the model text.
type PlanAdjustment struct {
	Summary     string       `json:"summary"`
	Adjustments []Adjustment `json:"adjustments"`
}

// Service builds prompts, calls the generator, and parses the reply.
type Service struct {
	gen generator
}

// NewService constructs a Service.
func NewService(gen generator) *Service {
	return &Service{gen: gen}
}

// AdjustPlan asks the model for plan adjustments and parses the JSON reply.
func (s *Service) AdjustPlan(ctx context.Context, input AdjustmentInput) (*PlanAdjustment, error) {
	prompt := fmt.Sprintf(planAdjustmentPrompt, input.Goal, input.RecentSummary, input.ClientFeedback)

	text, err := s.gen.GenerateContent(ctx, prompt)
	if err != nil {
		return nil, err
	}

	raw, err := extractJSONObject(text)
	if err != nil {
		return nil, err
	}

	var adjustment PlanAdjustment
	if err := json.Unmarshal([]byte(raw), &adjustment); err != nil {
		return nil, fmt.Errorf("parse plan adjustment: %w", err)
	}
	return &adjustment, nil
}

// extractJSONObject pulls the first balanced top-level JSON object out of
// free-form model text. Models wrap replies in prose or markdown fences often
// enough that trusting the raw reply is not an option.
func extractJSONObject(text string) (string, error) {
	start := strings.Index(text, "{")
	if start < 0 {
		return "", ErrNoJSON
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		c := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return text[start : i+1], nil
			}
		}
	}
	return "", ErrNoJSON
}
