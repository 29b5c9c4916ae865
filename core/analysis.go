package core

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Scope lists what a project includes and excludes.
type Scope struct {
	InScope    []string `json:"inScope"`
	OutOfScope []string `json:"outOfScope"`
}

// Stakeholder is a party with an interest in the project.
type Stakeholder struct {
	Name     string `json:"name"`
	Role     string `json:"role"`
	Interest string `json:"interest,omitempty"`
}

// Milestone is a dated checkpoint on the timeline.
type Milestone struct {
	Name        string `json:"name"`
	Date        string `json:"date,omitempty"`
	Description string `json:"description,omitempty"`
}

// Timeline is the project schedule as stated by the document.
type Timeline struct {
	StartDate  string      `json:"startDate,omitempty"`
	EndDate    string      `json:"endDate,omitempty"`
	Milestones []Milestone `json:"milestones"`
}

// Resource is a people, budget or tooling requirement.
type Resource struct {
	Type        string `json:"type"`
	Description string `json:"description"`
	Quantity    string `json:"quantity,omitempty"`
}

// Risk is an identified project risk.
type Risk struct {
	Description string `json:"description"`
	Impact      string `json:"impact"`
	Likelihood  string `json:"likelihood"`
	Mitigation  string `json:"mitigation,omitempty"`
}

// KPI is a measurable indicator of success.
type KPI struct {
	Name        string `json:"name"`
	Target      string `json:"target,omitempty"`
	Measurement string `json:"measurement,omitempty"`
}

// StructuredAnalysis is the project analysis produced by the language model.
type StructuredAnalysis struct {
	Objectives      []string          `json:"objectives"`
	Scope           Scope             `json:"scope"`
	Stakeholders    []Stakeholder     `json:"stakeholders"`
	Timeline        Timeline          `json:"timeline"`
	Resources       []Resource        `json:"resources"`
	Risks           []Risk            `json:"risks"`
	Dependencies    []string          `json:"dependencies"`
	SuccessCriteria []string          `json:"successCriteria"`
	KPIs            []KPI             `json:"kpis"`
	Confidence      *float64          `json:"confidence,omitempty"`
	ExtractedFields map[string]string `json:"extractedFields,omitempty"`
}

// AnalysisFields are the keys every analysis document must contain.
var AnalysisFields = []string{
	"objectives",
	"scope",
	"stakeholders",
	"timeline",
	"resources",
	"risks",
	"dependencies",
	"successCriteria",
	"kpis",
}

var ratings = map[string]bool{"low": true, "medium": true, "high": true}

// ParseStructuredAnalysis decodes and validates raw JSON in one step.
func ParseStructuredAnalysis(raw []byte) (*StructuredAnalysis, error) {
	var keys map[string]json.RawMessage
	if err := json.Unmarshal(raw, &keys); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidAnalysis, err)
	}
	for _, field := range AnalysisFields {
		v, ok := keys[field]
		if !ok || string(v) == "null" {
			return nil, fmt.Errorf("%w: %w: %s", ErrInvalidAnalysis, ErrMissingField, field)
		}
	}

	var analysis StructuredAnalysis
	if err := json.Unmarshal(raw, &analysis); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidAnalysis, err)
	}
	if err := analysis.Validate(); err != nil {
		return nil, err
	}
	return &analysis, nil
}

// Validate checks value constraints of a decoded analysis.
func (a *StructuredAnalysis) Validate() error {
	if a.Confidence != nil && (*a.Confidence < 0 || *a.Confidence > 1) {
		return fmt.Errorf("%w: %w: %v", ErrInvalidAnalysis, ErrConfidenceRange, *a.Confidence)
	}
	for i := range a.Risks {
		risk := &a.Risks[i]
		risk.Impact = strings.ToLower(strings.TrimSpace(risk.Impact))
		risk.Likelihood = strings.ToLower(strings.TrimSpace(risk.Likelihood))
		if !ratings[risk.Impact] {
			return fmt.Errorf("%w: %w: risks[%d].impact=%q", ErrInvalidAnalysis, ErrInvalidRating, i, risk.Impact)
		}
		if !ratings[risk.Likelihood] {
			return fmt.Errorf("%w: %w: risks[%d].likelihood=%q", ErrInvalidAnalysis, ErrInvalidRating, i, risk.Likelihood)
		}
	}
	return nil
}

// Completeness is the fraction of analysis sections that carry content.
func (a *StructuredAnalysis) Completeness() float64 {
	present := 0
	for _, ok := range []bool{
		len(a.Objectives) > 0,
		len(a.Scope.InScope) > 0 || len(a.Scope.OutOfScope) > 0,
		len(a.Stakeholders) > 0,
		a.Timeline.StartDate != "" || a.Timeline.EndDate != "" || len(a.Timeline.Milestones) > 0,
		len(a.Resources) > 0,
		len(a.Risks) > 0,
		len(a.Dependencies) > 0,
		len(a.SuccessCriteria) > 0,
		len(a.KPIs) > 0,
	} {
		if ok {
			present++
		}
	}
	return float64(present) / float64(len(AnalysisFields))
}

// ConfidenceScore prefers the model-reported confidence and falls back to
// section completeness.
func (a *StructuredAnalysis) ConfidenceScore() float64 {
	if a.Confidence != nil {
		return *a.Confidence
	}
	return a.Completeness()
}
