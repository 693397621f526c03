// Package scenario defines the immutable negotiation context and the numeric
// proposal vector that agents negotiate over.
package scenario

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/google/uuid"
)

// =============================================================================
// MODULE KINDS
// =============================================================================

// ModuleKind selects the decision context and the executive summary template.
type ModuleKind string

const (
	ModuleGeneral          ModuleKind = "general"
	ModuleVendorEval       ModuleKind = "vendor_eval"
	ModuleRoadmapPRD       ModuleKind = "roadmap_prd"
	ModulePolicyCompliance ModuleKind = "policy_compliance"
	ModuleProjectPlanning  ModuleKind = "project_planning"
)

// AllModuleKinds returns every module kind in declaration order.
func AllModuleKinds() []ModuleKind {
	return []ModuleKind{
		ModuleGeneral,
		ModuleVendorEval,
		ModuleRoadmapPRD,
		ModulePolicyCompliance,
		ModuleProjectPlanning,
	}
}

// ModuleKindFromString parses a module kind. Empty input maps to general.
func ModuleKindFromString(s string) (ModuleKind, error) {
	s = strings.TrimSpace(strings.ToLower(s))
	if s == "" {
		return ModuleGeneral, nil
	}
	for _, k := range AllModuleKinds() {
		if string(k) == s {
			return k, nil
		}
	}
	return "", fmt.Errorf("unknown module kind %q", s)
}

// =============================================================================
// METRICS
// =============================================================================

// Metric names one dimension of the proposal vector.
type Metric string

const (
	MetricBudget   Metric = "budget"
	MetricTimeline Metric = "timeline"
	MetricQuality  Metric = "quality"
	MetricRisk     Metric = "risk"
)

// AllMetrics returns the four metrics in canonical order.
func AllMetrics() []Metric {
	return []Metric{MetricBudget, MetricTimeline, MetricQuality, MetricRisk}
}

// MetricFromString parses a metric name.
func MetricFromString(s string) (Metric, error) {
	switch Metric(strings.TrimSpace(strings.ToLower(s))) {
	case MetricBudget:
		return MetricBudget, nil
	case MetricTimeline:
		return MetricTimeline, nil
	case MetricQuality:
		return MetricQuality, nil
	case MetricRisk:
		return MetricRisk, nil
	}
	return "", fmt.Errorf("unknown metric %q", s)
}

// =============================================================================
// CONSTRAINTS & PRIORITIES
// =============================================================================

// Constraints are the hard limits of a scenario.
type Constraints struct {
	Budget     float64 `json:"budget" yaml:"budget" toml:"budget"`                // ceiling, USD
	Timeline   float64 `json:"timeline" yaml:"timeline" toml:"timeline"`          // ceiling, days
	QualityMin float64 `json:"quality_min" yaml:"quality_min" toml:"quality_min"` // floor, 0-100
	RiskMax    float64 `json:"risk_max" yaml:"risk_max" toml:"risk_max"`          // ceiling, 0-100
}

// Satisfies reports whether value meets the constraint on metric.
func (c Constraints) Satisfies(metric Metric, value float64) bool {
	switch metric {
	case MetricBudget:
		return value <= c.Budget
	case MetricTimeline:
		return value <= c.Timeline
	case MetricQuality:
		return value >= c.QualityMin
	case MetricRisk:
		return value <= c.RiskMax
	}
	return false
}

// Count returns how many of the four constraints the vector meets and violates.
func (c Constraints) Count(p ProposalVector) (met, violated int) {
	for _, m := range AllMetrics() {
		if c.Satisfies(m, p.Get(m)) {
			met++
		} else {
			violated++
		}
	}
	return met, violated
}

// Priorities are the weights of each metric, each in [1,10].
type Priorities struct {
	Budget   float64 `json:"budget" yaml:"budget" toml:"budget"`
	Timeline float64 `json:"timeline" yaml:"timeline" toml:"timeline"`
	Quality  float64 `json:"quality" yaml:"quality" toml:"quality"`
	Risk     float64 `json:"risk" yaml:"risk" toml:"risk"`
}

// Weight returns the priority of metric.
func (p Priorities) Weight(metric Metric) float64 {
	switch metric {
	case MetricBudget:
		return p.Budget
	case MetricTimeline:
		return p.Timeline
	case MetricQuality:
		return p.Quality
	case MetricRisk:
		return p.Risk
	}
	return 0
}

// Highest returns the metric with the largest weight. Ties resolve in
// canonical metric order.
func (p Priorities) Highest() Metric {
	best := MetricBudget
	for _, m := range AllMetrics()[1:] {
		if p.Weight(m) > p.Weight(best) {
			best = m
		}
	}
	return best
}

// Lowest returns the metric with the smallest weight. Ties resolve in
// canonical metric order.
func (p Priorities) Lowest() Metric {
	worst := MetricBudget
	for _, m := range AllMetrics()[1:] {
		if p.Weight(m) < p.Weight(worst) {
			worst = m
		}
	}
	return worst
}

// =============================================================================
// PROPOSAL VECTOR
// =============================================================================

// ProposalVector is the numeric compromise under negotiation.
type ProposalVector struct {
	Budget   float64 `json:"budget" yaml:"budget" toml:"budget"`
	Timeline float64 `json:"timeline" yaml:"timeline" toml:"timeline"`
	Quality  float64 `json:"quality" yaml:"quality" toml:"quality"`
	Risk     float64 `json:"risk" yaml:"risk" toml:"risk"`
}

// Get returns the value of metric.
func (p ProposalVector) Get(metric Metric) float64 {
	switch metric {
	case MetricBudget:
		return p.Budget
	case MetricTimeline:
		return p.Timeline
	case MetricQuality:
		return p.Quality
	case MetricRisk:
		return p.Risk
	}
	return 0
}

// With returns a copy of p with metric set to value.
func (p ProposalVector) With(metric Metric, value float64) ProposalVector {
	switch metric {
	case MetricBudget:
		p.Budget = value
	case MetricTimeline:
		p.Timeline = value
	case MetricQuality:
		p.Quality = value
	case MetricRisk:
		p.Risk = value
	}
	return p
}

// PartialProposal is a coordinator adjustment. Nil fields are absent.
type PartialProposal struct {
	Budget   *float64 `json:"budget,omitempty"`
	Timeline *float64 `json:"timeline,omitempty"`
	Quality  *float64 `json:"quality,omitempty"`
	Risk     *float64 `json:"risk,omitempty"`
}

// IsEmpty reports whether no field is present.
func (pp *PartialProposal) IsEmpty() bool {
	return pp == nil || (pp.Budget == nil && pp.Timeline == nil && pp.Quality == nil && pp.Risk == nil)
}

// Apply overwrites the fields of p present in pp. Non-finite and negative
// values are treated as absent.
func (p ProposalVector) Apply(pp *PartialProposal) ProposalVector {
	if pp == nil {
		return p
	}
	set := func(dst *float64, v *float64) {
		if v == nil || math.IsNaN(*v) || math.IsInf(*v, 0) || *v < 0 {
			return
		}
		*dst = *v
	}
	set(&p.Budget, pp.Budget)
	set(&p.Timeline, pp.Timeline)
	set(&p.Quality, pp.Quality)
	set(&p.Risk, pp.Risk)
	return p
}

// =============================================================================
// DOCUMENTS & VENDORS
// =============================================================================

// DocumentType classifies an uploaded artifact.
type DocumentType string

const (
	DocumentContract DocumentType = "contract"
	DocumentRFP      DocumentType = "rfp"
	DocumentPolicy   DocumentType = "policy"
	DocumentSpec     DocumentType = "spec"
)

// DocumentStatus tracks intake progress.
type DocumentStatus string

const (
	DocumentProcessing DocumentStatus = "processing"
	DocumentReady      DocumentStatus = "ready"
	DocumentError      DocumentStatus = "error"
)

// Fact is a structured value extracted from a document.
type Fact struct {
	Field        Metric  `json:"field" yaml:"field" toml:"field"`
	Value        float64 `json:"value" yaml:"value" toml:"value"`
	Confidence   float64 `json:"confidence,omitempty" yaml:"confidence,omitempty" toml:"confidence,omitempty"`
	OriginalText string  `json:"original_text" yaml:"original_text" toml:"original_text"`
}

// Document is an ingested supporting artifact.
type Document struct {
	ID         string         `json:"id" yaml:"id" toml:"id"`
	Name       string         `json:"name" yaml:"name" toml:"name"`
	Type       DocumentType   `json:"type" yaml:"type" toml:"type"`
	UploadedAt string         `json:"uploaded_at,omitempty" yaml:"uploaded_at,omitempty" toml:"uploaded_at,omitempty"`
	Status     DocumentStatus `json:"status" yaml:"status" toml:"status"`
	Facts      []Fact         `json:"facts,omitempty" yaml:"facts,omitempty" toml:"facts,omitempty"`
}

// VendorFact is a quote cited in the vendor report.
type VendorFact struct {
	Field Metric  `json:"field" yaml:"field" toml:"field"`
	Value float64 `json:"value" yaml:"value" toml:"value"`
	Quote string  `json:"quote" yaml:"quote" toml:"quote"`
}

// VendorProposal is a candidate vector in comparison mode.
type VendorProposal struct {
	ID         string         `json:"id" yaml:"id" toml:"id"`
	VendorName string         `json:"vendor_name" yaml:"vendor_name" toml:"vendor_name"`
	DocumentID string         `json:"document_id,omitempty" yaml:"document_id,omitempty" toml:"document_id,omitempty"`
	Metrics    ProposalVector `json:"metrics" yaml:"metrics" toml:"metrics"`
	Facts      []VendorFact   `json:"facts,omitempty" yaml:"facts,omitempty" toml:"facts,omitempty"`
}

// =============================================================================
// SCENARIO
// =============================================================================

// Scenario is the negotiation context. The engine never mutates it.
type Scenario struct {
	ID          string           `json:"id" yaml:"id" toml:"id"`
	Title       string           `json:"title" yaml:"title" toml:"title"`
	Description string           `json:"description" yaml:"description" toml:"description"`
	Module      ModuleKind       `json:"module" yaml:"module" toml:"module"`
	Documents   []Document       `json:"documents,omitempty" yaml:"documents,omitempty" toml:"documents,omitempty"`
	Vendors     []VendorProposal `json:"vendors,omitempty" yaml:"vendors,omitempty" toml:"vendors,omitempty"`
	Constraints Constraints      `json:"constraints" yaml:"constraints" toml:"constraints"`
	Priorities  Priorities       `json:"priorities" yaml:"priorities" toml:"priorities"`
}

// Validation errors.
var (
	ErrMissingTitle      = errors.New("scenario: title is required")
	ErrNoVendors         = errors.New("scenario: vendor_eval requires at least one vendor proposal")
	ErrDuplicateVendor   = errors.New("scenario: duplicate vendor id")
	ErrInvalidPriority   = errors.New("scenario: priority must be within [1,10]")
	ErrInvalidConstraint = errors.New("scenario: constraints must be finite and non-negative")
)

// Normalize fills defaults: a missing ID, an empty module, missing vendor IDs.
func (s *Scenario) Normalize() {
	if s.ID == "" {
		s.ID = uuid.New().String()
	}
	if s.Module == "" {
		s.Module = ModuleGeneral
	}
	for i := range s.Vendors {
		if s.Vendors[i].ID == "" {
			s.Vendors[i].ID = uuid.New().String()
		}
	}
}

// Validate checks the scenario invariants.
func (s *Scenario) Validate() error {
	if strings.TrimSpace(s.Title) == "" {
		return ErrMissingTitle
	}
	if _, err := ModuleKindFromString(string(s.Module)); err != nil {
		return fmt.Errorf("scenario: %w", err)
	}
	for _, m := range AllMetrics() {
		w := s.Priorities.Weight(m)
		if w < 1 || w > 10 {
			return fmt.Errorf("%w: %s=%v", ErrInvalidPriority, m, w)
		}
	}
	for _, v := range []float64{s.Constraints.Budget, s.Constraints.Timeline, s.Constraints.QualityMin, s.Constraints.RiskMax} {
		if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
			return ErrInvalidConstraint
		}
	}
	if s.Module == ModuleVendorEval && len(s.Vendors) == 0 {
		return ErrNoVendors
	}
	seen := make(map[string]struct{}, len(s.Vendors))
	for _, v := range s.Vendors {
		if _, dup := seen[v.ID]; dup {
			return fmt.Errorf("%w: %s", ErrDuplicateVendor, v.ID)
		}
		seen[v.ID] = struct{}{}
	}
	return nil
}

// IsComparison reports whether the scenario ranks vendors.
func (s *Scenario) IsComparison() bool {
	return s.Module == ModuleVendorEval && len(s.Vendors) > 0
}

// Clone returns a deep copy.
func (s *Scenario) Clone() *Scenario {
	if s == nil {
		return nil
	}
	c := *s
	if s.Documents != nil {
		c.Documents = make([]Document, len(s.Documents))
		for i, d := range s.Documents {
			d.Facts = append([]Fact(nil), d.Facts...)
			c.Documents[i] = d
		}
	}
	if s.Vendors != nil {
		c.Vendors = make([]VendorProposal, len(s.Vendors))
		for i, v := range s.Vendors {
			v.Facts = append([]VendorFact(nil), v.Facts...)
			c.Vendors[i] = v
		}
	}
	return &c
}
