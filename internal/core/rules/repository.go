package rules

import (
	"context"
	"crypto/sha256"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	coreerrors "github.com/aevon-lab/rules-engine/internal/core/errors"
	"github.com/aevon-lab/rules-engine/internal/core/expression"
	"gopkg.in/yaml.v3"
)

const (
	kindRule   = "rule"
	kindGlobal = "global"
)

// rawDocument is the on-disk YAML shape. kind selects between a rule and a
// global variable; it defaults to rule.
type rawDocument struct {
	Kind           string          `yaml:"kind"`
	ID             string          `yaml:"id"`
	Name           string          `yaml:"name"`
	Category       string          `yaml:"category"`
	Template       string          `yaml:"template"`
	PrimaryModelID string          `yaml:"primary_model_id"`
	Parameters     []RuleParameter `yaml:"parameters"`
	ImpactScores   []RuleParameter `yaml:"impact_scores"`
	Elements       []RuleUIElement `yaml:"elements"`
	Params         []string        `yaml:"params"`
	Expression     string          `yaml:"expression"`
}

// Repository defines read access to rule definitions.
type Repository interface {
	// Get returns the rule with the given id, or an error wrapping ErrNotFound.
	Get(ctx context.Context, id string) (*Rule, error)

	// List returns all rules, optionally filtered by template id.
	List(ctx context.Context, templateID string) ([]Rule, error)

	// GetRules returns all rules sorted by id.
	GetRules() []Rule

	// Globals returns the shared global variables and macros.
	Globals() []GlobalVariable
}

// FileSystemRuleRepository loads rules and globals from *.yaml files in a
// directory, one document per file. Files are read once at startup.
type FileSystemRuleRepository struct {
	dir     string
	rules   map[string]Rule
	globals map[string]GlobalVariable
}

// NewFileSystemRuleRepository creates a repository and eagerly loads every
// file in dir. Any malformed or invalid file fails the load.
func NewFileSystemRuleRepository(dir string) (*FileSystemRuleRepository, error) {
	repo := &FileSystemRuleRepository{
		dir:     dir,
		rules:   make(map[string]Rule),
		globals: make(map[string]GlobalVariable),
	}
	if err := repo.load(); err != nil {
		return nil, err
	}
	return repo, nil
}

func (r *FileSystemRuleRepository) load() error {
	info, err := os.Stat(r.dir)
	if os.IsNotExist(err) {
		return nil // no rules directory: zero rules configured
	}
	if err != nil {
		return fmt.Errorf("rule dir: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("rule path %q is not a directory", r.dir)
	}

	entries, err := os.ReadDir(r.dir)
	if err != nil {
		return fmt.Errorf("reading rule dir: %w", err)
	}

	for _, e := range entries {
		if e.IsDir() || (!strings.HasSuffix(e.Name(), ".yaml") && !strings.HasSuffix(e.Name(), ".yml")) {
			continue
		}
		path := filepath.Join(r.dir, e.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("reading rule file %s: %w", path, err)
		}
		if err := r.loadDocument(path, data); err != nil {
			return err
		}
	}
	return nil
}

func (r *FileSystemRuleRepository) loadDocument(path string, data []byte) error {
	var raw rawDocument
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("parsing rule file %s: %w", path, err)
	}

	switch strings.ToLower(raw.Kind) {
	case "", kindRule:
		if raw.ID == "" {
			return nil // empty or comment-only file
		}
		rule := Rule{
			ID:             raw.ID,
			Name:           raw.Name,
			Category:       raw.Category,
			TemplateID:     raw.Template,
			PrimaryModelID: raw.PrimaryModelID,
			Parameters:     raw.Parameters,
			ImpactScores:   raw.ImpactScores,
			Elements:       raw.Elements,
			Fingerprint:    fmt.Sprintf("%x", sha256.Sum256(data)),
		}
		if rule.Name == "" {
			rule.Name = rule.ID
		}
		for _, group := range [][]RuleParameter{rule.Parameters, rule.ImpactScores} {
			for i := range group {
				ct, err := expression.ParseCumulativeType(string(group[i].Cumulative))
				if err != nil {
					return fmt.Errorf("%w: rule %q: %v", coreerrors.ErrInvalidRule, raw.ID, err)
				}
				group[i].Cumulative = ct
			}
		}
		if err := rule.Validate(); err != nil {
			return fmt.Errorf("%w: %v", coreerrors.ErrInvalidRule, err)
		}
		if _, exists := r.rules[rule.ID]; exists {
			return fmt.Errorf("%w: rule %q: duplicate rule id (check multiple YAML files)", coreerrors.ErrInvalidRule, rule.ID)
		}
		r.rules[rule.ID] = rule

	case kindGlobal:
		g := GlobalVariable{Name: raw.Name, Params: raw.Params, Expression: raw.Expression}
		if g.Name == "" {
			return fmt.Errorf("%w: global in %s has no name", coreerrors.ErrInvalidRule, path)
		}
		if _, err := g.Macro(); err != nil {
			return fmt.Errorf("%w: global %q: %v", coreerrors.ErrInvalidRule, g.Name, err)
		}
		key := strings.ToUpper(g.Name)
		if _, exists := r.globals[key]; exists {
			return fmt.Errorf("%w: global %q: duplicate name", coreerrors.ErrInvalidRule, g.Name)
		}
		r.globals[key] = g

	default:
		return fmt.Errorf("%w: %s: unknown kind %q", coreerrors.ErrInvalidRule, path, raw.Kind)
	}
	return nil
}

// Get returns the rule with the given id.
func (r *FileSystemRuleRepository) Get(_ context.Context, id string) (*Rule, error) {
	rule, ok := r.rules[id]
	if !ok {
		return nil, fmt.Errorf("rule %q: %w", id, coreerrors.ErrNotFound)
	}
	return &rule, nil
}

// List returns all rules, optionally filtered by template id.
func (r *FileSystemRuleRepository) List(_ context.Context, templateID string) ([]Rule, error) {
	var out []Rule
	for _, rule := range r.GetRules() {
		if templateID != "" && rule.TemplateID != templateID {
			continue
		}
		out = append(out, rule)
	}
	return out, nil
}

// GetRules returns all rules sorted by id.
func (r *FileSystemRuleRepository) GetRules() []Rule {
	rules := make([]Rule, 0, len(r.rules))
	for _, rule := range r.rules {
		rules = append(rules, rule)
	}
	sort.Slice(rules, func(i, j int) bool { return rules[i].ID < rules[j].ID })
	return rules
}

// Globals returns the global variables sorted by name.
func (r *FileSystemRuleRepository) Globals() []GlobalVariable {
	out := make([]GlobalVariable, 0, len(r.globals))
	for _, g := range r.globals {
		out = append(out, g)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
