package binding

import (
	"strconv"
	"strings"
	"time"

	"github.com/aevon-lab/rules-engine/internal/core/rules"
	"github.com/aevon-lab/rules-engine/internal/core/timeseries"
)

// HierarchyRelationships are the relationship types followed from a twin
// towards its ancestors.
var HierarchyRelationships = []string{"isPartOf", "isContainedIn", "locatedIn", "isCapabilityOf", "includedIn"}

func isHierarchy(relType string) bool {
	for _, r := range HierarchyRelationships {
		if strings.EqualFold(r, relType) {
			return true
		}
	}
	return false
}

// Relationship is a directed edge from a twin to Target.
type Relationship struct {
	Type   string `yaml:"type" json:"type"`
	Target string `yaml:"target" json:"target"`
}

// Twin is a node of the twin graph as the resolver sees it.
type Twin struct {
	ID            string            `yaml:"id" json:"id"`
	ModelID       string            `yaml:"model_id" json:"model_id"`
	Name          string            `yaml:"name" json:"name,omitempty"`
	Relationships []Relationship    `yaml:"relationships" json:"relationships,omitempty"`
	TrendID       string            `yaml:"trend_id" json:"trend_id,omitempty"`
	ExternalID    string            `yaml:"external_id" json:"external_id,omitempty"`
	ConnectorID   string            `yaml:"connector_id" json:"connector_id,omitempty"`
	TrendInterval time.Duration     `yaml:"trend_interval" json:"trend_interval,omitempty"`
	Unit          string            `yaml:"unit" json:"unit,omitempty"`
	Properties    map[string]string `yaml:"properties" json:"properties,omitempty"`
	// Expression makes the twin a calculated point evaluated against its parent.
	Expression string `yaml:"expression" json:"expression,omitempty"`
	Cumulative string `yaml:"cumulative" json:"cumulative,omitempty"`
}

// IsCalculatedPoint reports whether the twin's value is computed.
func (t *Twin) IsCalculatedPoint() bool {
	return strings.TrimSpace(t.Expression) != ""
}

// Parent returns the target of the first hierarchy relationship.
func (t *Twin) Parent() (string, bool) {
	for _, r := range t.Relationships {
		if isHierarchy(r.Type) {
			return r.Target, true
		}
	}
	return "", false
}

// Property reads a named property for client side FINDALL filters.
func (t *Twin) Property(name string) (string, bool) {
	switch strings.ToLower(name) {
	case "id", "$dtid":
		return t.ID, true
	case "model", "modelid", "$model":
		return t.ModelID, true
	case "name":
		return t.Name, t.Name != ""
	case "unit":
		return t.Unit, t.Unit != ""
	case "trendinterval":
		if t.TrendInterval == 0 {
			return "", false
		}
		return strconv.FormatFloat(t.TrendInterval.Seconds(), 'f', -1, 64), true
	}
	for k, v := range t.Properties {
		if strings.EqualFold(k, name) {
			return v, true
		}
	}
	return "", false
}

// PointEntity describes the twin as an input of a rule instance.
func (t *Twin) PointEntity() rules.PointEntity {
	return rules.PointEntity{
		TwinID:      t.ID,
		TrendID:     t.TrendID,
		ExternalID:  t.ExternalID,
		ConnectorID: t.ConnectorID,
		ModelID:     t.ModelID,
		Unit:        t.Unit,
	}
}

// Metadata describes the twin's time series.
func (t *Twin) Metadata() timeseries.Metadata {
	return timeseries.Metadata{
		TwinID:        t.ID,
		TrendID:       t.TrendID,
		ExternalID:    t.ExternalID,
		ConnectorID:   t.ConnectorID,
		ModelID:       t.ModelID,
		Unit:          t.Unit,
		TrendInterval: t.TrendInterval,
	}
}
