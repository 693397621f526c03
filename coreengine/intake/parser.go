package intake

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/jeeves-cluster-organization/consensusai/coreengine/logging"
	"github.com/jeeves-cluster-organization/consensusai/coreengine/scenario"
)

var errNoJSON = errors.New("no JSON object in response")

// decodeObject reads the outermost {...} span of model output.
func decodeObject(text string) (map[string]any, error) {
	start := strings.IndexByte(text, '{')
	end := strings.LastIndexByte(text, '}')
	if start < 0 || end <= start {
		return nil, errNoJSON
	}
	var obj map[string]any
	if err := json.Unmarshal([]byte(text[start:end+1]), &obj); err != nil {
		return nil, err
	}
	return obj, nil
}

// Parser turns raw documents into scenario documents. When the primary
// extractor fails, the keyword extractor supplies the facts.
type Parser struct {
	primary  FactExtractor
	fallback FactExtractor
	logger   logging.Logger
	now      func() time.Time
}

// NewParser creates a parser. A nil primary uses keyword extraction only.
func NewParser(primary FactExtractor, logger logging.Logger) *Parser {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Parser{
		primary:  primary,
		fallback: KeywordExtractor{},
		logger:   logger.Bind("component", "intake"),
		now:      time.Now,
	}
}

// Parse extracts facts from a document and returns it ready for use.
func (p *Parser) Parse(ctx context.Context, name string, content string) scenario.Document {
	doc := scenario.Document{
		ID:         uuid.New().String(),
		Name:       name,
		Type:       DetectDocumentType(name),
		UploadedAt: p.now().UTC().Format(time.RFC3339),
		Status:     scenario.DocumentReady,
	}

	if p.primary != nil {
		facts, err := p.primary.Extract(ctx, name, content)
		if err == nil {
			doc.Facts = facts
			p.logger.Info("document_parsed", "document", name, "type", string(doc.Type), "facts", len(facts))
			return doc
		}
		p.logger.Warn("extraction_failed_falling_back", "document", name, "error", err.Error())
	}

	// KeywordExtractor never fails.
	doc.Facts, _ = p.fallback.Extract(ctx, name, content)
	p.logger.Info("document_parsed", "document", name, "type", string(doc.Type), "facts", len(doc.Facts), "fallback", true)
	return doc
}
