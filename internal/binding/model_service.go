package binding

import (
	"context"
	"fmt"
	"os"
	"sort"

	coreerrors "github.com/aevon-lab/rules-engine/internal/core/errors"
	"gopkg.in/yaml.v3"
)

// ModelService answers twin graph questions during binding.
type ModelService interface {
	// QueryAncestors returns the ids of twins of modelID at most hops
	// hierarchy edges below rootID, sorted.
	QueryAncestors(ctx context.Context, modelID string, hops int, rootID string) ([]string, error)

	// GetTwin returns one twin or an error wrapping ErrNotFound.
	GetTwin(ctx context.Context, id string) (*Twin, error)

	// Query runs a twin query. Results are sorted by id and capped at q.Top.
	Query(ctx context.Context, q TwinQuery) ([]*Twin, error)
}

// Model is an entry of the ontology. A twin of a model is also of every
// model it extends.
type Model struct {
	ID      string   `yaml:"id"`
	Extends []string `yaml:"extends"`
}

// graphFile is the YAML shape of a twin graph.
type graphFile struct {
	Models []Model `yaml:"models"`
	Twins  []*Twin `yaml:"twins"`
}

// InMemoryModelService serves a static twin graph. It is read only after
// construction and safe for concurrent use.
type InMemoryModelService struct {
	twins    map[string]*Twin
	children map[string][]string
	extends  map[string][]string
}

// NewInMemoryModelService indexes twins and models.
func NewInMemoryModelService(twins []*Twin, models []Model) (*InMemoryModelService, error) {
	s := &InMemoryModelService{
		twins:    make(map[string]*Twin, len(twins)),
		children: make(map[string][]string),
		extends:  make(map[string][]string, len(models)),
	}
	for _, m := range models {
		s.extends[m.ID] = m.Extends
	}
	for _, t := range twins {
		if t.ID == "" {
			return nil, fmt.Errorf("twin without id (model %q)", t.ModelID)
		}
		if _, dup := s.twins[t.ID]; dup {
			return nil, fmt.Errorf("duplicate twin %q", t.ID)
		}
		s.twins[t.ID] = t
	}
	for _, t := range twins {
		for _, r := range t.Relationships {
			if isHierarchy(r.Type) {
				s.children[r.Target] = append(s.children[r.Target], t.ID)
			}
		}
	}
	for k := range s.children {
		sort.Strings(s.children[k])
	}
	return s, nil
}

// LoadModelService reads a twin graph from a YAML file.
func LoadModelService(path string) (*InMemoryModelService, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading twin graph %s: %w", path, err)
	}
	var g graphFile
	if err := yaml.Unmarshal(data, &g); err != nil {
		return nil, fmt.Errorf("parsing twin graph %s: %w", path, err)
	}
	return NewInMemoryModelService(g.Twins, g.Models)
}

func (s *InMemoryModelService) GetTwin(_ context.Context, id string) (*Twin, error) {
	t, ok := s.twins[id]
	if !ok {
		return nil, fmt.Errorf("twin %q: %w", id, coreerrors.ErrNotFound)
	}
	return t, nil
}

func (s *InMemoryModelService) QueryAncestors(ctx context.Context, modelID string, hops int, rootID string) ([]string, error) {
	twins, err := s.Query(ctx, TwinQuery{Models: []string{modelID}, Ancestors: []string{rootID}, Hops: hops})
	if err != nil {
		return nil, err
	}
	ids := make([]string, len(twins))
	for i, t := range twins {
		ids[i] = t.ID
	}
	return ids, nil
}

func (s *InMemoryModelService) Query(ctx context.Context, q TwinQuery) ([]*Twin, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	q = q.normalized()

	var candidates []string
	if len(q.Ancestors) == 0 {
		candidates = make([]string, 0, len(s.twins))
		for id := range s.twins {
			candidates = append(candidates, id)
		}
	} else {
		seen := make(map[string]bool)
		for _, a := range q.Ancestors {
			for _, id := range s.descendants(a, q.Hops) {
				if !seen[id] {
					seen[id] = true
					candidates = append(candidates, id)
				}
			}
		}
	}
	sort.Strings(candidates)

	var out []*Twin
	for _, id := range candidates {
		t := s.twins[id]
		if t == nil || !s.matchesAny(t.ModelID, q.Models) {
			continue
		}
		out = append(out, t)
		if len(out) == q.Top {
			break
		}
	}
	return out, nil
}

// Twins returns every twin sorted by id.
func (s *InMemoryModelService) Twins() []*Twin {
	out := make([]*Twin, 0, len(s.twins))
	for _, t := range s.twins {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// CalculatedPoints returns the twins with an expression, sorted by id.
func (s *InMemoryModelService) CalculatedPoints() []*Twin {
	var out []*Twin
	for _, t := range s.Twins() {
		if t.IsCalculatedPoint() {
			out = append(out, t)
		}
	}
	return out
}

// descendants walks hierarchy edges down from root, at most hops deep.
func (s *InMemoryModelService) descendants(root string, hops int) []string {
	var out []string
	seen := map[string]bool{root: true}
	frontier := []string{root}
	for depth := 0; depth < hops && len(frontier) > 0; depth++ {
		var next []string
		for _, id := range frontier {
			for _, c := range s.children[id] {
				if seen[c] {
					continue
				}
				seen[c] = true
				out = append(out, c)
				next = append(next, c)
			}
		}
		frontier = next
	}
	return out
}

func (s *InMemoryModelService) matchesAny(modelID string, models []string) bool {
	if len(models) == 0 {
		return true
	}
	for _, m := range models {
		if s.isOfModel(modelID, m, 0) {
			return true
		}
	}
	return false
}

func (s *InMemoryModelService) isOfModel(modelID, want string, depth int) bool {
	if modelID == want {
		return true
	}
	if depth > 16 {
		return false
	}
	for _, parent := range s.extends[modelID] {
		if s.isOfModel(parent, want, depth+1) {
			return true
		}
	}
	return false
}
