package rules

import (
	"github.com/aevon-lab/rules-engine/internal/core/expression"
)

// Status flags on a bound rule instance. The zero value is a valid instance.
type Status uint8

const (
	StatusValid         Status = 0
	StatusBindingFailed Status = 1 << iota
	StatusCircularReference
	StatusNoInputs
)

func (s Status) Has(flag Status) bool { return s&flag != 0 }

func (s Status) String() string {
	if s == StatusValid {
		return "valid"
	}
	var parts []string
	if s.Has(StatusBindingFailed) {
		parts = append(parts, "binding_failed")
	}
	if s.Has(StatusCircularReference) {
		parts = append(parts, "circular_reference")
	}
	if s.Has(StatusNoInputs) {
		parts = append(parts, "no_inputs")
	}
	out := parts[0]
	for _, p := range parts[1:] {
		out += "|" + p
	}
	return out
}

// BoundParameter is a parameter whose expression has been bound to twins.
type BoundParameter struct {
	Name       string
	FieldID    string
	Expr       expression.Expr
	Units      string
	Cumulative expression.CumulativeType
}

// PointExpression renders the bound expression in canonical form.
func (p BoundParameter) PointExpression() string {
	return expression.Serialize(p.Expr)
}

// PointEntity is a capability twin a rule instance reads from.
type PointEntity struct {
	TwinID      string `json:"twin_id"`
	TrendID     string `json:"trend_id,omitempty"`
	ExternalID  string `json:"external_id,omitempty"`
	ConnectorID string `json:"connector_id,omitempty"`
	ModelID     string `json:"model_id,omitempty"`
	Unit        string `json:"unit,omitempty"`
}

// RuleInstance is a rule bound to one twin. It is created once by the
// binding resolver and never mutated while actors run.
type RuleInstance struct {
	ID             string
	RuleID         string
	TemplateID     string
	EquipmentID    string
	PrimaryModelID string
	Parameters     []BoundParameter
	ImpactScores   []BoundParameter
	Elements       []RuleUIElement
	Points         []PointEntity
	Status         Status
	// OutputTwinID is set for calculated points: results are published as
	// telemetry for this twin.
	OutputTwinID string
	Fingerprint  string
}

// InstanceID builds the id of the instance of rule on equipment.
func InstanceID(equipmentID, ruleID string) string {
	return equipmentID + "_" + ruleID
}

// IsCalculatedPoint reports whether the instance publishes its result.
func (ri *RuleInstance) IsCalculatedPoint() bool {
	return ri.TemplateID == TemplateCalculatedPoint
}

// Valid reports whether the instance can run.
func (ri *RuleInstance) Valid() bool {
	return ri.Status == StatusValid
}

// Element returns the numeric value of an element.
func (ri *RuleInstance) Element(id string) (float64, bool) {
	r := Rule{Elements: ri.Elements}
	return r.Element(id)
}

// Parameter returns the bound parameter with the given field id.
func (ri *RuleInstance) Parameter(fieldID string) (BoundParameter, bool) {
	for _, p := range ri.Parameters {
		if p.FieldID == fieldID {
			return p, true
		}
	}
	return BoundParameter{}, false
}

// Inputs returns the twin ids read by the instance, in order of appearance.
func (ri *RuleInstance) Inputs() []string {
	var out []string
	seen := make(map[string]bool)
	for _, group := range [][]BoundParameter{ri.Parameters, ri.ImpactScores} {
		for _, p := range group {
			for _, id := range expression.Points(p.Expr) {
				if !seen[id] {
					seen[id] = true
					out = append(out, id)
				}
			}
		}
	}
	return out
}

// Failures returns the canonical text of every failed parameter.
func (ri *RuleInstance) Failures() []string {
	var out []string
	for _, p := range ri.Parameters {
		if f := expression.FirstFailure(p.Expr); f != nil {
			out = append(out, p.FieldID+": "+expression.Serialize(f))
		}
	}
	return out
}
