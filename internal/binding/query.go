package binding

import (
	"fmt"
	"strings"
)

// Query limits. The resolver's Options override them.
const (
	DefaultHops = 5
	DefaultTop  = 1001
)

// TwinQuery selects twins of one of Models that sit at most Hops hierarchy
// edges below one of Ancestors. With no ancestors every twin of the models
// matches.
type TwinQuery struct {
	Models    []string
	Ancestors []string
	Hops      int
	Top       int
}

func (q TwinQuery) normalized() TwinQuery {
	if q.Hops <= 0 {
		q.Hops = DefaultHops
	}
	if q.Top <= 0 {
		q.Top = DefaultTop
	}
	return q
}

// String renders the query in the digital twins query language. The text is
// deterministic and doubles as the cache key.
func (q TwinQuery) String() string {
	q = q.normalized()
	var sb strings.Builder
	fmt.Fprintf(&sb, "SELECT TOP(%d) twin FROM DIGITALTWINS", q.Top)

	var where []string
	if len(q.Ancestors) > 0 {
		fmt.Fprintf(&sb, " MATCH (twin)-[:%s*..%d]->(ancestor)", strings.Join(HierarchyRelationships, "|"), q.Hops)
		if len(q.Ancestors) == 1 {
			where = append(where, fmt.Sprintf("ancestor.$dtId = '%s'", q.Ancestors[0]))
		} else {
			where = append(where, fmt.Sprintf("ancestor.$dtId IN [%s]", quoteList(q.Ancestors)))
		}
	} else {
		sb.WriteString(" twin")
	}

	models := make([]string, len(q.Models))
	for i, m := range q.Models {
		models[i] = fmt.Sprintf("IS_OF_MODEL(twin, '%s')", m)
	}
	switch len(models) {
	case 0:
	case 1:
		where = append(where, models[0])
	default:
		where = append(where, "("+strings.Join(models, " OR ")+")")
	}

	if len(where) > 0 {
		sb.WriteString(" WHERE ")
		sb.WriteString(strings.Join(where, " AND "))
	}
	return sb.String()
}

func quoteList(items []string) string {
	quoted := make([]string, len(items))
	for i, it := range items {
		quoted[i] = "'" + it + "'"
	}
	return strings.Join(quoted, ", ")
}
