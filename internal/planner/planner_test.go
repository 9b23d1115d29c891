package planner

import (
	"context"
	"errors"
	"strings"
	"testing"
)

type fakeGenerator struct {
	reply  string
	err    error
	prompt string
}

func (f *fakeGenerator) GenerateContent(ctx context.Context, prompt string) (string, error) {
	f.prompt = prompt
	return f.reply, f.err
}

func TestAdjustPlanParsesFencedReply(t *testing.T) {
	gen := &fakeGenerator{reply: "Here is the adjusted plan:\n```json\n" +
		`{"summary":"ease off this week","adjustments":[{"day":"wednesday","change":"replace tempo with easy 40min","reason":"elevated fatigue"}]}` +
		"\n```\nLet me know if you need more."}
	svc := NewService(gen)

	result, err := svc.AdjustPlan(context.Background(), AdjustmentInput{
		Goal:           "sub-4 marathon",
		RecentSummary:  "missed long run, two easy runs completed",
		ClientFeedback: "legs feel heavy",
	})
	if err != nil {
		t.Fatalf("adjust plan: %v", err)
	}
	if result.Summary != "ease off this week" {
		t.Fatalf("unexpected summary: %q", result.Summary)
	}
	if len(result.Adjustments) != 1 || result.Adjustments[0].Day != "wednesday" {
		t.Fatalf("unexpected adjustments: %+v", result.Adjustments)
	}

	for _, fragment := range []string{"sub-4 marathon", "missed long run", "legs feel heavy"} {
		if !strings.Contains(gen.prompt, fragment) {
			t.Fatalf("prompt missing %q:\n%s", fragment, gen.prompt)
		}
	}
}

func TestAdjustPlanNoJSON(t *testing.T) {
	svc := NewService(&fakeGenerator{reply: "I cannot adjust the plan right now."})

	_, err := svc.AdjustPlan(context.Background(), AdjustmentInput{Goal: "10k", RecentSummary: "ok week"})
	if !errors.Is(err, ErrNoJSON) {
		t.Fatalf("expected ErrNoJSON, got %v", err)
	}
}

func TestAdjustPlanPropagatesGeneratorError(t *testing.T) {
	want := errors.New("quota exceeded")
	svc := NewService(&fakeGenerator{err: want})

	_, err := svc.AdjustPlan(context.Background(), AdjustmentInput{Goal: "10k", RecentSummary: "ok week"})
	if !errors.Is(err, want) {
		t.Fatalf("expected generator error, got %v", err)
	}
}

func TestExtractJSONObject(t *testing.T) {
	cases := []struct {
		name    string
		text    string
		want    string
		wantErr bool
	}{
		{"bare object", `{"a":1}`, `{"a":1}`, false},
		{"object in prose", `sure: {"a":{"b":2}} done`, `{"a":{"b":2}}`, false},
		{"braces inside strings", `{"a":"}{"}`, `{"a":"}{"}`, false},
		{"escaped quote", `{"a":"say \"hi\" {now}"}`, `{"a":"say \"hi\" {now}"}`, false},
		{"no object", "plain text", "", true},
		{"unbalanced", `{"a":1`, "", true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := extractJSONObject(tc.text)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %q", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("extract: %v", err)
			}
			if got != tc.want {
				t.Fatalf("got %q want %q", got, tc.want)
			}
		})
	}
}
