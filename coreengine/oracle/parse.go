package oracle

import (
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/jeeves-cluster-organization/consensusai/coreengine/agents"
	"github.com/jeeves-cluster-organization/consensusai/coreengine/negotiation"
	"github.com/jeeves-cluster-organization/consensusai/coreengine/scenario"
	"github.com/jeeves-cluster-organization/consensusai/coreengine/typeutil"
)

// MalformedResponseError reports model output that could not be used.
// It matches negotiation.ErrMalformedResponse under errors.Is.
type MalformedResponseError struct {
	Kind   string // "agent" or "coordinator"
	Reason string
	Raw    string
}

func (e *MalformedResponseError) Error() string {
	return fmt.Sprintf("malformed %s response: %s", e.Kind, e.Reason)
}

func (e *MalformedResponseError) Unwrap() error {
	return negotiation.ErrMalformedResponse
}

// maxRawBytes bounds MalformedResponseError.Raw.
const maxRawBytes = 200

func malformed(kind, raw, format string, args ...any) error {
	return &MalformedResponseError{Kind: kind, Reason: fmt.Sprintf(format, args...), Raw: truncateRunes(raw, maxRawBytes)}
}

// truncateRunes cuts s to at most n bytes without splitting a UTF-8 sequence.
func truncateRunes(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

// stripFences removes markdown code fences around model output.
func stripFences(text string) string {
	text = strings.TrimSpace(text)
	text = strings.ReplaceAll(text, "```json", "")
	text = strings.ReplaceAll(text, "```JSON", "")
	text = strings.ReplaceAll(text, "```", "")
	return strings.TrimSpace(text)
}

// extractJSONObject returns the first balanced JSON object in text that
// decodes. Braces inside string literals are ignored.
func extractJSONObject(text string) (map[string]any, error) {
	var result map[string]any
	if err := json.Unmarshal([]byte(text), &result); err == nil {
		return result, nil
	}

	for start := strings.IndexByte(text, '{'); start >= 0; {
		depth, inString, escaped := 0, false, false
		end := -1
	scan:
		for i := start; i < len(text); i++ {
			c := text[i]
			switch {
			case escaped:
				escaped = false
			case inString && c == '\\':
				escaped = true
			case c == '"':
				inString = !inString
			case inString:
			case c == '{':
				depth++
			case c == '}':
				depth--
				if depth == 0 {
					end = i
					break scan
				}
			}
		}
		if end < 0 {
			break
		}
		if err := json.Unmarshal([]byte(text[start:end+1]), &result); err == nil {
			return result, nil
		}
		next := strings.IndexByte(text[start+1:], '{')
		if next < 0 {
			break
		}
		start += next + 1
	}
	return nil, fmt.Errorf("no valid JSON object found in response")
}

// ParseAgentResponse decodes an agent evaluation. decision must be accept or
// reject and content must be non-empty; evidence is optional.
func ParseAgentResponse(text string) (agents.Response, error) {
	obj, err := extractJSONObject(stripFences(text))
	if err != nil {
		return agents.Response{}, malformed("agent", text, "%v", err)
	}

	raw, ok := typeutil.SafeString(obj["decision"])
	if !ok {
		return agents.Response{}, malformed("agent", text, "missing decision")
	}
	decision, err := agents.DecisionFromString(raw)
	if err != nil {
		return agents.Response{}, malformed("agent", text, "%v", err)
	}

	content := strings.TrimSpace(typeutil.SafeStringDefault(obj["content"], ""))
	if content == "" {
		return agents.Response{}, malformed("agent", text, "missing content")
	}

	return agents.Response{
		Decision: decision,
		Content:  content,
		Evidence: parseEvidence(obj["evidence"]),
	}, nil
}

func parseEvidence(value any) []agents.Evidence {
	items, ok := typeutil.SafeSlice(value)
	if !ok {
		return nil
	}
	var out []agents.Evidence
	for _, item := range items {
		if quote, ok := typeutil.SafeString(item); ok && quote != "" {
			out = append(out, agents.Evidence{Quote: quote})
			continue
		}
		m, ok := typeutil.SafeMapStringAny(item)
		if !ok {
			continue
		}
		ev := agents.Evidence{
			DocumentID:  typeutil.SafeStringDefault(m["document_id"], typeutil.SafeStringDefault(m["documentId"], "")),
			Quote:       typeutil.SafeStringDefault(m["quote"], ""),
			Explanation: typeutil.SafeStringDefault(m["explanation"], ""),
		}
		if ev.Quote != "" {
			out = append(out, ev)
		}
	}
	return out
}

// ParseVerdict decodes a coordinator synthesis. summary and converged are
// required; nextProposal fields are optional and read leniently.
func ParseVerdict(text string) (negotiation.Verdict, error) {
	obj, err := extractJSONObject(stripFences(text))
	if err != nil {
		return negotiation.Verdict{}, malformed("coordinator", text, "%v", err)
	}

	summary := strings.TrimSpace(typeutil.SafeStringDefault(obj["summary"], ""))
	if summary == "" {
		return negotiation.Verdict{}, malformed("coordinator", text, "missing summary")
	}
	converged, ok := typeutil.SafeBool(obj["converged"])
	if !ok {
		return negotiation.Verdict{}, malformed("coordinator", text, "converged must be a boolean")
	}

	verdict := negotiation.Verdict{Summary: summary, Converged: converged}
	next, ok := typeutil.SafeMapStringAny(obj["nextProposal"])
	if !ok {
		next, ok = typeutil.SafeMapStringAny(obj["next_proposal"])
	}
	if ok {
		pp := &scenario.PartialProposal{
			Budget:   optionalFloat(next["budget"]),
			Timeline: optionalFloat(next["timeline"]),
			Quality:  optionalFloat(next["quality"]),
			Risk:     optionalFloat(next["risk"]),
		}
		if !pp.IsEmpty() {
			verdict.NextProposal = pp
		}
	}
	return verdict, nil
}

func optionalFloat(value any) *float64 {
	f, ok := typeutil.SafeFloat64(value)
	if !ok {
		return nil
	}
	return &f
}
