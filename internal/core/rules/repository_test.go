package rules_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	coreerrors "github.com/aevon-lab/rules-engine/internal/core/errors"
	"github.com/aevon-lab/rules-engine/internal/core/expression"
	"github.com/aevon-lab/rules-engine/internal/core/rules"
	"github.com/stretchr/testify/require"
)

// writeRule is a test helper that writes a single rule YAML file into dir.
func writeRule(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

const anyFaultYAML = `
id: "high-temp"
name: "High zone temperature"
template: "rule-template-any-fault"
primary_model_id: "dtmi:com:willowinc:VAV;1"
parameters:
  - name: "Zone temperature"
    field_id: "temp"
    expression: "OPTION([dtmi:com:willowinc:ZoneAirTemperatureSensor;1])"
    units: "degC"
  - name: "Result"
    field_id: "result"
    expression: "temp > 26"
elements:
  - id: "hours"
    name: "Over how many hours"
    value: 1
`

const accumulateYAML = `
id: "airflow-total"
template: "rule-template-calculated-point"
primary_model_id: "dtmi:com:willowinc:VAV;1"
parameters:
  - name: "Total airflow"
    field_id: "result"
    expression: "[dtmi:com:willowinc:DischargeAirFlowSensor;1]"
    cumulative: "accumulatetimeminutes"
`

func TestFileSystemRuleRepository_LoadAndList(t *testing.T) {
	dir := t.TempDir()
	writeRule(t, dir, "high_temp.yaml", anyFaultYAML)
	writeRule(t, dir, "airflow.yml", accumulateYAML)
	writeRule(t, dir, "notes.txt", "ignored")
	writeRule(t, dir, "macro.yaml", `
kind: global
name: macro1
params: [x]
expression: "x + 5"
`)

	repo, err := rules.NewFileSystemRuleRepository(dir)
	require.NoError(t, err)

	all, err := repo.List(context.Background(), "")
	require.NoError(t, err)
	require.Len(t, all, 2)
	require.Equal(t, "airflow-total", all[0].ID)
	require.Equal(t, "high-temp", all[1].ID)

	faults, err := repo.List(context.Background(), rules.TemplateAnyFault)
	require.NoError(t, err)
	require.Len(t, faults, 1)

	rule, err := repo.Get(context.Background(), "high-temp")
	require.NoError(t, err)
	require.Len(t, rule.Fingerprint, 64)
	hours, ok := rule.Element("HOURS")
	require.True(t, ok)
	require.Equal(t, 1.0, hours)

	calc, err := repo.Get(context.Background(), "airflow-total")
	require.NoError(t, err)
	require.Equal(t, "airflow-total", calc.Name, "name defaults to id")
	require.Equal(t, expression.AccumulateTimeMinutes, calc.Parameters[0].Cumulative)

	globals := repo.Globals()
	require.Len(t, globals, 1)
	m, err := globals[0].Macro()
	require.NoError(t, err)
	require.Equal(t, "MACRO1", m.Name)
}

func TestFileSystemRuleRepository_GetMissing(t *testing.T) {
	repo, err := rules.NewFileSystemRuleRepository(t.TempDir())
	require.NoError(t, err)

	_, err = repo.Get(context.Background(), "nope")
	require.ErrorIs(t, err, coreerrors.ErrNotFound)
}

func TestFileSystemRuleRepository_MissingDirIsEmpty(t *testing.T) {
	repo, err := rules.NewFileSystemRuleRepository(filepath.Join(t.TempDir(), "absent"))
	require.NoError(t, err)
	require.Empty(t, repo.GetRules())
}

func TestFileSystemRuleRepository_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{
			name: "unknown template",
			content: `
id: "r1"
template: "rule-template-nope"
primary_model_id: "dtmi:x;1"
parameters: [{field_id: result, expression: "true"}]
`,
		},
		{
			name: "bad expression",
			content: `
id: "r1"
template: "rule-template-any-fault"
primary_model_id: "dtmi:x;1"
parameters: [{field_id: result, expression: "1 +"}]
`,
		},
		{
			name: "missing result",
			content: `
id: "r1"
template: "rule-template-any-fault"
primary_model_id: "dtmi:x;1"
parameters: [{field_id: temp, expression: "[t]"}]
`,
		},
		{
			name: "duplicate field id",
			content: `
id: "r1"
template: "rule-template-any-fault"
primary_model_id: "dtmi:x;1"
parameters:
  - {field_id: result, expression: "true"}
  - {field_id: RESULT, expression: "false"}
`,
		},
		{
			name: "unchanging without hours",
			content: `
id: "r1"
template: "rule-template-unchanging"
primary_model_id: "dtmi:x;1"
parameters: [{field_id: sensor, expression: "[t]"}]
`,
		},
		{
			name: "unknown cumulative",
			content: `
id: "r1"
template: "rule-template-any-fault"
primary_model_id: "dtmi:x;1"
parameters: [{field_id: result, expression: "true", cumulative: "integrate"}]
`,
		},
		{
			name:    "unknown kind",
			content: "kind: widget\nid: r1\n",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			dir := t.TempDir()
			writeRule(t, dir, "bad.yaml", tc.content)
			_, err := rules.NewFileSystemRuleRepository(dir)
			require.ErrorIs(t, err, coreerrors.ErrInvalidRule)
		})
	}
}

func TestFileSystemRuleRepository_DuplicateID(t *testing.T) {
	dir := t.TempDir()
	writeRule(t, dir, "a.yaml", anyFaultYAML)
	writeRule(t, dir, "b.yaml", anyFaultYAML)

	_, err := rules.NewFileSystemRuleRepository(dir)
	require.ErrorIs(t, err, coreerrors.ErrInvalidRule)
	require.Contains(t, err.Error(), "duplicate rule id")
}
