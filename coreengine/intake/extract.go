// Package intake turns uploaded documents into scenario inputs: it detects
// the document type, extracts numeric facts, builds constraints and vendor
// proposals, and loads scenario files.
package intake

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"github.com/jeeves-cluster-organization/consensusai/coreengine/llm"
	"github.com/jeeves-cluster-organization/consensusai/coreengine/scenario"
	"github.com/jeeves-cluster-organization/consensusai/coreengine/typeutil"
)

// DetectDocumentType classifies a document by its file name.
func DetectDocumentType(name string) scenario.DocumentType {
	lower := strings.ToLower(name)
	switch {
	case containsAny(lower, "contract", "msa", "agreement"):
		return scenario.DocumentContract
	case containsAny(lower, "rfp", "proposal", "bid"):
		return scenario.DocumentRFP
	case containsAny(lower, "policy", "compliance", "rule"):
		return scenario.DocumentPolicy
	default:
		return scenario.DocumentSpec
	}
}

func containsAny(s string, needles ...string) bool {
	for _, n := range needles {
		if strings.Contains(s, n) {
			return true
		}
	}
	return false
}

// FactExtractor pulls decision-relevant facts out of a document.
type FactExtractor interface {
	Extract(ctx context.Context, name string, content string) ([]scenario.Fact, error)
}

// =============================================================================
// KEYWORD EXTRACTOR
// =============================================================================

// KeywordExtractor derives facts from file name keywords. It never fails and
// always returns at least one fact.
type KeywordExtractor struct{}

type keywordRule struct {
	keywords []string
	fact     scenario.Fact
}

var keywordRules = []keywordRule{
	{[]string{"budget", "finance"}, scenario.Fact{
		Field: scenario.MetricBudget, Value: 75000, Confidence: 0.98,
		OriginalText: "Total authorized expenditure shall not exceed $75,000 USD including expenses.",
	}},
	{[]string{"schedule", "timeline"}, scenario.Fact{
		Field: scenario.MetricTimeline, Value: 45, Confidence: 0.92,
		OriginalText: "All deliverables must be completed within 45 calendar days of signature.",
	}},
	{[]string{"quality", "qa"}, scenario.Fact{
		Field: scenario.MetricQuality, Value: 90, Confidence: 0.88,
		OriginalText: "Minimum acceptance score for QA audit is 90/100.",
	}},
	{[]string{"risk", "sla"}, scenario.Fact{
		Field: scenario.MetricRisk, Value: 10, Confidence: 0.95,
		OriginalText: "Risk tolerance index must stay below 10% for critical path items.",
	}},
}

var defaultFact = scenario.Fact{
	Field: scenario.MetricBudget, Value: 50000, Confidence: 0.85,
	OriginalText: "Standard allocation: $50,000",
}

// Extract implements FactExtractor.
func (KeywordExtractor) Extract(_ context.Context, name string, _ string) ([]scenario.Fact, error) {
	lower := strings.ToLower(name)
	var facts []scenario.Fact
	for _, rule := range keywordRules {
		if containsAny(lower, rule.keywords...) {
			facts = append(facts, rule.fact)
		}
	}
	if len(facts) == 0 {
		facts = append(facts, defaultFact)
	}
	return facts, nil
}

// =============================================================================
// LLM EXTRACTOR
// =============================================================================

// maxContentChars bounds how much document text is sent to the model.
const maxContentChars = 2000

// FactSchema is the structured output requested from Gemini.
var FactSchema = &genai.Schema{
	Type: genai.TypeObject,
	Properties: map[string]*genai.Schema{
		"extractedFacts": {
			Type: genai.TypeArray,
			Items: &genai.Schema{
				Type: genai.TypeObject,
				Properties: map[string]*genai.Schema{
					"field": {
						Type:        genai.TypeString,
						Description: "Metric the fact constrains",
						Enum:        []string{"budget", "timeline", "quality", "risk"},
					},
					"value":        {Type: genai.TypeNumber, Description: "Numeric value: dollars, days, 0-100 score or percent"},
					"originalText": {Type: genai.TypeString, Description: "Quote justifying the value"},
					"confidence":   {Type: genai.TypeNumber, Description: "Extraction confidence in [0,1]"},
				},
				Required: []string{"field", "value", "originalText"},
			},
		},
	},
	Required: []string{"extractedFacts"},
}

// GeminiExtractor asks an LLM to extract facts from the file name and the
// beginning of the document.
type GeminiExtractor struct {
	provider llm.Provider
	model    string
}

// NewGeminiExtractor creates an extractor over provider. An empty model uses
// the provider default.
func NewGeminiExtractor(provider llm.Provider, model string) *GeminiExtractor {
	return &GeminiExtractor{provider: provider, model: model}
}

func extractionPrompt(name, content string) string {
	if len(content) > maxContentChars {
		content = content[:maxContentChars]
	}
	var b strings.Builder
	b.WriteString("You are an AI Document Auditor.\n")
	fmt.Fprintf(&b, "Extract decision-relevant metrics from this document: %s\n\n", name)
	if strings.TrimSpace(content) != "" {
		fmt.Fprintf(&b, "DOCUMENT EXCERPT:\n%s\n\n", content)
	}
	b.WriteString(`Return the following metrics in JSON if you can infer them:
- budget (numerical value)
- timeline (number of days)
- quality (0-100 score)
- risk (0-100 score)
- A specific quote justifying each.

Return format:
{"extractedFacts": [{"field": "budget", "value": 75000, "originalText": "...", "confidence": 0.9}]}
`)
	return b.String()
}

// Extract implements FactExtractor.
func (e *GeminiExtractor) Extract(ctx context.Context, name string, content string) ([]scenario.Fact, error) {
	text, err := e.provider.Generate(ctx, e.model, extractionPrompt(name, content), map[string]any{
		"json_mode":   true,
		"schema":      FactSchema,
		"temperature": 0.1,
	})
	if err != nil {
		return nil, err
	}
	return ParseFacts(text)
}

// ParseFacts decodes an extraction response. Facts with unknown fields or
// non-numeric values are dropped; an object without extractedFacts is an error.
func ParseFacts(text string) ([]scenario.Fact, error) {
	obj, err := decodeObject(text)
	if err != nil {
		return nil, err
	}
	items, ok := typeutil.SafeSlice(obj["extractedFacts"])
	if !ok {
		return nil, fmt.Errorf("extraction response has no extractedFacts")
	}

	facts := make([]scenario.Fact, 0, len(items))
	for _, item := range items {
		m, ok := typeutil.SafeMapStringAny(item)
		if !ok {
			continue
		}
		field, err := scenario.MetricFromString(typeutil.SafeStringDefault(m["field"], ""))
		if err != nil {
			continue
		}
		value, ok := typeutil.SafeFloat64(m["value"])
		if !ok || value < 0 {
			continue
		}
		confidence, _ := typeutil.SafeFloat64(m["confidence"])
		facts = append(facts, scenario.Fact{
			Field:        field,
			Value:        value,
			Confidence:   confidence,
			OriginalText: typeutil.SafeStringDefault(m["originalText"], typeutil.SafeStringDefault(m["original_text"], "")),
		})
	}
	return facts, nil
}
