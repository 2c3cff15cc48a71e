package binding

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/aevon-lab/rules-engine/internal/core/expression"
	"github.com/aevon-lab/rules-engine/internal/core/rules"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	modelAHU         = "dtmi:com:example:AirHandlingUnit;1"
	modelSensor      = "dtmi:com:example:Sensor;1"
	modelTemperature = "dtmi:com:example:TemperatureSensor;1"
	modelHumidity    = "dtmi:com:example:HumiditySensor;1"
)

func loadGraph(t *testing.T) *InMemoryModelService {
	t.Helper()
	svc, err := LoadModelService("testdata/twins.yaml")
	require.NoError(t, err)
	return svc
}

func newResolver(t *testing.T, svc ModelService, opts Options, globals ...rules.GlobalVariable) *Resolver {
	t.Helper()
	r, err := NewResolver(svc, opts, globals)
	require.NoError(t, err)
	return r
}

// bindOne binds a single result parameter against twinID and returns the
// canonical text of the bound expression.
func bindOne(t *testing.T, r *Resolver, svc ModelService, twinID, expr string) (string, *rules.RuleInstance) {
	t.Helper()
	twin, err := svc.GetTwin(context.Background(), twinID)
	require.NoError(t, err)
	rule := &rules.Rule{
		ID:             "r",
		TemplateID:     rules.TemplateAnyFault,
		PrimaryModelID: twin.ModelID,
		Parameters:     []rules.RuleParameter{{Name: "Result", FieldID: rules.ResultField, PointExpression: expr}},
	}
	ri, err := r.Bind(context.Background(), rule, twin)
	require.NoError(t, err)
	return expression.Serialize(ri.Parameters[0].Expr), ri
}

func TestTwinQuery_String(t *testing.T) {
	q := TwinQuery{Models: []string{modelTemperature}, Ancestors: []string{"ahu1"}}
	assert.Equal(t,
		"SELECT TOP(1001) twin FROM DIGITALTWINS MATCH (twin)-[:isPartOf|isContainedIn|locatedIn|isCapabilityOf|includedIn*..5]->(ancestor) "+
			"WHERE ancestor.$dtId = 'ahu1' AND IS_OF_MODEL(twin, '"+modelTemperature+"')",
		q.String())
	assert.Equal(t, q.String(), q.String())

	multi := TwinQuery{Models: []string{"a", "b"}, Ancestors: []string{"x", "y"}, Hops: 2, Top: 10}
	assert.Equal(t,
		"SELECT TOP(10) twin FROM DIGITALTWINS MATCH (twin)-[:isPartOf|isContainedIn|locatedIn|isCapabilityOf|includedIn*..2]->(ancestor) "+
			"WHERE ancestor.$dtId IN ['x', 'y'] AND (IS_OF_MODEL(twin, 'a') OR IS_OF_MODEL(twin, 'b'))",
		multi.String())

	assert.Equal(t, "SELECT TOP(1001) twin FROM DIGITALTWINS twin WHERE IS_OF_MODEL(twin, 'a')",
		TwinQuery{Models: []string{"a"}}.String())
}

func TestModelService_Query(t *testing.T) {
	svc := loadGraph(t)
	ctx := context.Background()

	ids, err := svc.QueryAncestors(ctx, modelSensor, 5, "ahu1")
	require.NoError(t, err)
	assert.Equal(t, []string{"ahu1-rat", "ahu1-sat"}, ids)

	ahus, err := svc.Query(ctx, TwinQuery{Models: []string{"dtmi:com:example:Equipment;1"}})
	require.NoError(t, err)
	require.Len(t, ahus, 2)
	assert.Equal(t, "ahu1", ahus[0].ID)

	capped, err := svc.Query(ctx, TwinQuery{Models: []string{"dtmi:com:example:Capability;1"}, Top: 3})
	require.NoError(t, err)
	assert.Len(t, capped, 3)

	_, err = svc.GetTwin(ctx, "nope")
	assert.Error(t, err)

	assert.Len(t, svc.CalculatedPoints(), 3)
}

func TestBind_Expressions(t *testing.T) {
	svc := loadGraph(t)
	r := newResolver(t, svc, Options{})

	tests := []struct {
		name string
		twin string
		expr string
		want string
	}{
		{"this", "ahu1", "this", "[ahu1]"},
		{"twin id", "ahu1", "[ahu1-sat] > 20", "[ahu1-sat] > 20"},
		{"model picks first capability", "ahu1", "[" + modelTemperature + "]", "[ahu1-rat]"},
		{"findall many", "ahu1", "FINDALL([" + modelTemperature + "] & UNDER(this))", "{[ahu1-rat], [ahu1-sat]}"},
		{"findall client filter", "ahu1", "FINDALL(t, [" + modelTemperature + "] & UNDER(this) & t.unit == \"degC\")", "[ahu1-sat]"},
		{"findall property filter", "ahu1", "FINDALL(t, [" + modelSensor + "] & UNDER([ahu1]) & t.position == 'supply')", "[ahu1-sat]"},
		{"findall IS", "ahu2", "FINDALL(IS([" + modelTemperature + "]) & UNDER(this))", "[ahu2-sat]"},
		{"option skips failure", "ahu1", "OPTION([nope], [ahu1-sp])", "[ahu1-sp]"},
		{"tolerant option keeps what binds", "ahu1", "TOLERANTOPTION([nope], [ahu1-sp], [ahu1-sat] + 1)", "TOLERANTOPTION([ahu1-sp], [ahu1-sat] + 1)"},
		{"tolerant option of constants", "ahu1", "TOLERANTOPTION([nope], 2, 3)", "2"},
		{"period argument", "ahu1", "AVERAGE([ahu1-sat], 1h, -1d) > 20", "AVERAGE([ahu1-sat], 1h, -1d) > 20"},
		{"constant folded", "ahu1", "1 + 1", "2"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ri := bindOne(t, r, svc, tt.twin, tt.expr)
			assert.Equal(t, tt.want, got)
			assert.False(t, ri.Status.Has(rules.StatusBindingFailed), ri.Failures())
		})
	}
}

func TestBind_Failures(t *testing.T) {
	svc := loadGraph(t)
	r := newResolver(t, svc, Options{})

	tests := []struct {
		name   string
		twin   string
		expr   string
		prefix string
	}{
		{"client filter without variable", "ahu1",
			"OPTION(FINDALL([" + modelTemperature + "] & UNDER(this) & t.unit == \"degC\"))",
			`FAILED("First argument must be a variable"`},
		{"no model", "ahu1", "FINDALL(UNDER(this))", `FAILED("At least one model query is required in FINDALL"`},
		{"no results", "ahu1", "FINDALL([" + modelHumidity + "] & UNDER(this))",
			`FAILED("No results found for query 'SELECT TOP(1001) twin FROM DIGITALTWINS MATCH`},
		{"bracket model no results", "ahu1", "[" + modelHumidity + "]", `FAILED("No results found for query '`},
		{"unknown twin", "ahu1", "[nope] > 1", `FAILED("Twin not found: nope",[nope]) > 1`},
		{"under outside findall", "ahu1", "UNDER(this)", `FAILED("UNDER is only valid inside FINDALL"`},
		{"tolerant option with nothing bound", "ahu1", "TOLERANTOPTION([nope], [gone])", `TOLERANTOPTION(FAILED("Twin not found: nope",[nope]), FAILED("Twin not found: gone"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ri := bindOne(t, r, svc, tt.twin, tt.expr)
			assert.True(t, strings.HasPrefix(got, tt.prefix), got)
			assert.True(t, ri.Status.Has(rules.StatusBindingFailed))
			assert.False(t, ri.Valid())
		})
	}
}

func TestBind_Hops(t *testing.T) {
	svc := loadGraph(t)
	expr := "FINDALL([" + modelHumidity + "] & UNDER(this))"

	got, _ := bindOne(t, newResolver(t, svc, Options{}), svc, "bldg1", expr)
	assert.True(t, strings.HasPrefix(got, `FAILED("No results found`), got)

	got, ri := bindOne(t, newResolver(t, svc, Options{Hops: 6}), svc, "bldg1", expr)
	assert.Equal(t, "[shelf1-rh]", got)
	assert.True(t, ri.Valid())
}

func TestBind_ParametersAndGlobals(t *testing.T) {
	svc := loadGraph(t)
	r := newResolver(t, svc, Options{},
		rules.GlobalVariable{Name: "OFFSET", Expression: "5"},
		rules.GlobalVariable{Name: "macro1", Params: []string{"x"}, Expression: "x + 5"},
	)
	twin, err := svc.GetTwin(context.Background(), "ahu1")
	require.NoError(t, err)

	rule := &rules.Rule{
		ID:             "deviation",
		TemplateID:     rules.TemplateAnyFault,
		PrimaryModelID: modelAHU,
		Parameters: []rules.RuleParameter{
			{Name: "Supply", FieldID: "sat", PointExpression: "[ahu1-sat]"},
			{Name: "Doubled", FieldID: "doubled", PointExpression: "[sat] * 2"},
			{Name: "Macro", FieldID: "limit", PointExpression: "macro1(10)"},
			{Name: "Result", FieldID: rules.ResultField, PointExpression: "sat - [ahu1-sp] > OFFSET"},
		},
		ImpactScores: []rules.RuleParameter{
			{Name: "Cost", FieldID: "cost", PointExpression: "doubled * 3"},
		},
	}
	ri, err := r.Bind(context.Background(), rule, twin)
	require.NoError(t, err)

	got := make(map[string]string)
	for _, p := range append(ri.Parameters, ri.ImpactScores...) {
		got[p.FieldID] = expression.Serialize(p.Expr)
	}
	assert.Equal(t, map[string]string{
		"sat":     "[ahu1-sat]",
		"doubled": "sat * 2",
		"limit":   "15",
		"result":  "(sat - [ahu1-sp]) > 5",
		"cost":    "doubled * 3",
	}, got)

	assert.Equal(t, "ahu1_deviation", ri.ID)
	assert.Equal(t, "ahu1", ri.EquipmentID)
	assert.True(t, ri.Valid())
	assert.Equal(t, []string{"ahu1-sat", "ahu1-sp"}, ri.Inputs())
	require.Len(t, ri.Points, 2)
	assert.Equal(t, "degC", ri.Points[0].Unit)
}

func TestBind_NoInputs(t *testing.T) {
	svc := loadGraph(t)
	_, ri := bindOne(t, newResolver(t, svc, Options{}), svc, "ahu1", "1 > 2")
	assert.True(t, ri.Status.Has(rules.StatusNoInputs))
	assert.False(t, ri.Valid())
}

func TestBindCalculatedPoint(t *testing.T) {
	svc := loadGraph(t)
	r := newResolver(t, svc, Options{})
	twin, err := svc.GetTwin(context.Background(), "ahu1-calc")
	require.NoError(t, err)

	ri, err := r.BindCalculatedPoint(context.Background(), twin)
	require.NoError(t, err)
	assert.Equal(t, "ahu1-calc", ri.ID)
	assert.Equal(t, "ahu1-calc", ri.OutputTwinID)
	assert.Equal(t, "ahu1", ri.EquipmentID)
	assert.Equal(t, rules.TemplateCalculatedPoint, ri.TemplateID)
	assert.True(t, ri.IsCalculatedPoint())
	assert.Equal(t, []string{"ahu1-sat", "ahu1-sp"}, ri.Inputs())
	assert.True(t, ri.Valid())
}

func TestGenerate(t *testing.T) {
	svc := loadGraph(t)
	r := newResolver(t, svc, Options{Concurrency: 3})

	ruleList := []rules.Rule{
		{
			ID: "high-sat", TemplateID: rules.TemplateAnyFault, PrimaryModelID: modelAHU,
			Parameters: []rules.RuleParameter{{Name: "Result", FieldID: rules.ResultField, PointExpression: "[" + modelTemperature + "] > 30"}},
		},
		{
			ID: "deviation", TemplateID: rules.TemplateAnyFault, PrimaryModelID: modelAHU,
			Parameters: []rules.RuleParameter{{Name: "Result", FieldID: rules.ResultField, PointExpression: "[ahu1-calc] > 2"}},
		},
	}
	instances, graph, err := r.Generate(context.Background(), ruleList, svc.CalculatedPoints())
	require.NoError(t, err)

	ids := make([]string, len(instances))
	byID := make(map[string]*rules.RuleInstance)
	for i, ri := range instances {
		ids[i] = ri.ID
		byID[ri.ID] = ri
	}
	assert.Equal(t, []string{
		"ahu1-calc", "ahu1_deviation", "ahu1_high-sat", "ahu2_deviation", "ahu2_high-sat", "loop-a", "loop-b",
	}, ids)

	assert.Equal(t, "[ahu2-sat] > 30", expression.Serialize(byID["ahu2_high-sat"].Parameters[0].Expr))

	for _, id := range []string{"loop-a", "loop-b"} {
		ri := byID[id]
		assert.True(t, ri.Status.Has(rules.StatusCircularReference), id)
		assert.True(t, strings.HasPrefix(expression.Serialize(ri.Parameters[0].Expr), `FAILED("Circular references are not allowed",`))
	}
	assert.Equal(t, "FAILED('Circular references are not allowed',[loop-b] + 1)", expression.Format(byID["loop-a"].Parameters[0].Expr))

	assert.Equal(t, 0, graph.Rank("ahu1-calc"))
	assert.Equal(t, 1, graph.Rank("ahu1_deviation"))
	assert.Equal(t, 1, graph.Rank("ahu2_deviation"))
	assert.Equal(t, 2, graph.CyclicCount())
	assert.Len(t, graph.Order(), 5)

	hits, misses := r.cache.stats()
	assert.Positive(t, hits)
	assert.Positive(t, misses)
}

func TestGenerate_Cancelled(t *testing.T) {
	svc := loadGraph(t)
	r := newResolver(t, svc, Options{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err := r.Generate(ctx, []rules.Rule{{ID: "x", TemplateID: rules.TemplateAnyFault, PrimaryModelID: modelAHU,
		Parameters: []rules.RuleParameter{{FieldID: rules.ResultField, PointExpression: "this"}}}}, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestNewResolver_BadGlobal(t *testing.T) {
	_, err := NewResolver(loadGraph(t), Options{}, []rules.GlobalVariable{{Name: "bad", Params: []string{"x"}, Expression: "x +"}})
	assert.Error(t, err)
}
