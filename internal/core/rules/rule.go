// Package rules holds rule definitions and the instances bound from them.
package rules

import (
	"fmt"
	"strings"

	"github.com/aevon-lab/rules-engine/internal/core/expression"
)

// Template ids understood by the engine.
const (
	TemplateAnyFault        = "rule-template-any-fault"
	TemplateUnchanging      = "rule-template-unchanging"
	TemplateCalculatedPoint = "rule-template-calculated-point"
)

// KnownTemplate reports whether id names a supported template.
func KnownTemplate(id string) bool {
	switch id {
	case TemplateAnyFault, TemplateUnchanging, TemplateCalculatedPoint:
		return true
	}
	return false
}

// Well known parameter and element ids.
const (
	ResultField = "result"
	SensorField = "sensor"

	ElementHours      = "hours"
	ElementPercentage = "percentage"
	ElementTolerance  = "tolerance"
)

// Rule is an authored rule definition. Rules are immutable once loaded.
type Rule struct {
	ID             string
	Name           string
	Category       string
	TemplateID     string
	PrimaryModelID string
	Parameters     []RuleParameter
	ImpactScores   []RuleParameter
	Elements       []RuleUIElement
	Fingerprint    string // SHA-256 of the raw YAML file
}

// RuleParameter is one named expression of a rule. FieldID is the variable
// name later parameters and templates refer to.
type RuleParameter struct {
	Name            string                    `yaml:"name"`
	FieldID         string                    `yaml:"field_id"`
	PointExpression string                    `yaml:"expression"`
	Units           string                    `yaml:"units"`
	Cumulative      expression.CumulativeType `yaml:"cumulative"`
}

// RuleUIElement is an author supplied setting such as "over how many hours".
type RuleUIElement struct {
	ID    string  `yaml:"id"`
	Name  string  `yaml:"name"`
	Value float64 `yaml:"value"`
	Text  string  `yaml:"text"`
}

// Element returns the numeric value of the element with the given id.
func (r *Rule) Element(id string) (float64, bool) {
	for _, e := range r.Elements {
		if strings.EqualFold(e.ID, id) {
			return e.Value, true
		}
	}
	return 0, false
}

// Parameter returns the parameter with the given field id.
func (r *Rule) Parameter(fieldID string) (RuleParameter, bool) {
	for _, p := range r.Parameters {
		if strings.EqualFold(p.FieldID, fieldID) {
			return p, true
		}
	}
	return RuleParameter{}, false
}

// Validate checks the rule is structurally sound: known template, unique
// field ids and parseable expressions.
func (r *Rule) Validate() error {
	if r.ID == "" {
		return fmt.Errorf("rule id must not be empty")
	}
	if !KnownTemplate(r.TemplateID) {
		return fmt.Errorf("rule %q: unsupported template %q", r.ID, r.TemplateID)
	}
	if r.PrimaryModelID == "" && r.TemplateID != TemplateCalculatedPoint {
		return fmt.Errorf("rule %q: primary_model_id must not be empty", r.ID)
	}
	if len(r.Parameters) == 0 {
		return fmt.Errorf("rule %q: at least one parameter is required", r.ID)
	}

	seen := make(map[string]bool)
	for _, group := range [][]RuleParameter{r.Parameters, r.ImpactScores} {
		for _, p := range group {
			if p.FieldID == "" {
				return fmt.Errorf("rule %q: parameter %q has no field_id", r.ID, p.Name)
			}
			key := strings.ToLower(p.FieldID)
			if seen[key] {
				return fmt.Errorf("rule %q: duplicate field_id %q", r.ID, p.FieldID)
			}
			seen[key] = true
			if _, err := expression.Parse(p.PointExpression); err != nil {
				return fmt.Errorf("rule %q: parameter %q: %w", r.ID, p.FieldID, err)
			}
			if _, ok := expression.Cumulatives[p.Cumulative]; !ok && p.Cumulative != expression.CumulativeNone {
				return fmt.Errorf("rule %q: parameter %q: unknown cumulative type %q", r.ID, p.FieldID, p.Cumulative)
			}
		}
	}

	switch r.TemplateID {
	case TemplateAnyFault, TemplateCalculatedPoint:
		if _, ok := r.Parameter(ResultField); !ok {
			return fmt.Errorf("rule %q: template %s requires a %q parameter", r.ID, r.TemplateID, ResultField)
		}
	case TemplateUnchanging:
		if _, ok := r.Parameter(SensorField); !ok {
			return fmt.Errorf("rule %q: template %s requires a %q parameter", r.ID, r.TemplateID, SensorField)
		}
		if h, ok := r.Element(ElementHours); !ok || h <= 0 {
			return fmt.Errorf("rule %q: template %s requires a positive %q element", r.ID, r.TemplateID, ElementHours)
		}
	}
	return nil
}

// GlobalVariable is a shared expression. With parameters it expands as a
// macro call; without, any variable of the same name is replaced by its body.
type GlobalVariable struct {
	Name       string
	Params     []string
	Expression string
}

// Macro compiles g into an expression macro.
func (g GlobalVariable) Macro() (expression.Macro, error) {
	return expression.ParseMacro(g.Name, g.Params, g.Expression)
}
