// Package binding resolves rule expressions against the twin graph once per
// rule instance. Failures are recorded as FAILED nodes in the bound
// expressions; only cancellation aborts a bind.
package binding

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	coreerrors "github.com/aevon-lab/rules-engine/internal/core/errors"
	"github.com/aevon-lab/rules-engine/internal/core/expression"
	"github.com/aevon-lab/rules-engine/internal/core/rules"
)

// Failure reasons recorded in FAILED nodes.
const (
	ReasonFirstArgVariable = "First argument must be a variable"
	ReasonModelRequired    = "At least one model query is required in FINDALL"
	ReasonCircular         = "Circular references are not allowed"
)

const defaultConcurrency = 8

// Options tunes graph queries and generation.
type Options struct {
	Hops        int
	Top         int
	Concurrency int
}

func (o Options) normalized() Options {
	n := o
	if n.Hops <= 0 {
		n.Hops = DefaultHops
	}
	if n.Top <= 0 {
		n.Top = DefaultTop
	}
	if n.Concurrency <= 0 {
		n.Concurrency = defaultConcurrency
	}
	return n
}

// Resolver binds rules to twins. It is safe for concurrent use; graph
// answers are cached for the resolver's lifetime.
type Resolver struct {
	models  ModelService
	opts    Options
	macros  map[string]expression.Macro
	globals map[string]expression.Expr
	cache   *queryCache
}

// NewResolver compiles the global variables and macros.
func NewResolver(models ModelService, opts Options, globals []rules.GlobalVariable) (*Resolver, error) {
	r := &Resolver{
		models:  models,
		opts:    opts.normalized(),
		macros:  make(map[string]expression.Macro),
		globals: make(map[string]expression.Expr),
		cache:   newQueryCache(),
	}
	for _, g := range globals {
		m, err := g.Macro()
		if err != nil {
			return nil, fmt.Errorf("global %q: %w", g.Name, err)
		}
		if len(g.Params) == 0 {
			r.globals[m.Name] = m.Body
			continue
		}
		r.macros[m.Name] = m
	}
	return r, nil
}

type bindContext struct {
	ctx   context.Context
	this  *Twin
	scope map[string]expression.Expr
}

// Bind evaluates the rule's parameters in order against twin. Each
// parameter may refer to earlier ones by name; `this` is the twin unless a
// parameter shadows it.
func (r *Resolver) Bind(ctx context.Context, rule *rules.Rule, twin *Twin) (*rules.RuleInstance, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	ri := &rules.RuleInstance{
		ID:             rules.InstanceID(twin.ID, rule.ID),
		RuleID:         rule.ID,
		TemplateID:     rule.TemplateID,
		EquipmentID:    twin.ID,
		PrimaryModelID: rule.PrimaryModelID,
		Elements:       rule.Elements,
		Fingerprint:    rule.Fingerprint,
	}
	bc := &bindContext{ctx: ctx, this: twin, scope: make(map[string]expression.Expr)}
	ri.Parameters = r.bindParameters(bc, rule.Parameters)
	ri.ImpactScores = r.bindParameters(bc, rule.ImpactScores)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	for _, id := range ri.Inputs() {
		if t, err := r.twin(ctx, id); err == nil {
			ri.Points = append(ri.Points, t.PointEntity())
		}
	}
	if len(ri.Failures()) > 0 {
		ri.Status |= rules.StatusBindingFailed
	}
	if len(ri.Inputs()) == 0 {
		ri.Status |= rules.StatusNoInputs
	}
	return ri, nil
}

// BindCalculatedPoint binds a twin carrying an expression. The expression is
// evaluated against the twin's parent and the result is published as the
// twin's own telemetry.
func (r *Resolver) BindCalculatedPoint(ctx context.Context, twin *Twin) (*rules.RuleInstance, error) {
	this := twin
	if parentID, ok := twin.Parent(); ok {
		if parent, err := r.twin(ctx, parentID); err == nil {
			this = parent
		}
	}

	param := rules.RuleParameter{Name: twin.ID, FieldID: rules.ResultField, PointExpression: twin.Expression}
	cumulative, cumErr := expression.ParseCumulativeType(twin.Cumulative)
	param.Cumulative = cumulative

	rule := &rules.Rule{
		ID:             twin.ID,
		Name:           twin.Name,
		TemplateID:     rules.TemplateCalculatedPoint,
		PrimaryModelID: this.ModelID,
		Parameters:     []rules.RuleParameter{param},
	}
	ri, err := r.Bind(ctx, rule, this)
	if err != nil {
		return nil, err
	}
	ri.ID = twin.ID
	ri.OutputTwinID = twin.ID
	if cumErr != nil {
		ri.Parameters[0].Expr = expression.Fail(cumErr.Error(), ri.Parameters[0].Expr)
		ri.Status |= rules.StatusBindingFailed
	}
	return ri, nil
}

func (r *Resolver) bindParameters(bc *bindContext, params []rules.RuleParameter) []rules.BoundParameter {
	out := make([]rules.BoundParameter, 0, len(params))
	for _, p := range params {
		e, err := expression.Parse(p.PointExpression)
		if err != nil {
			e = expression.Fail("Invalid expression: "+err.Error(), &expression.Text{Value: p.PointExpression})
		} else {
			e = expression.Optimize(r.bind(bc, r.expandGlobals(e, bc.scope)))
		}
		out = append(out, rules.BoundParameter{
			Name:       p.Name,
			FieldID:    p.FieldID,
			Expr:       e,
			Units:      p.Units,
			Cumulative: p.Cumulative,
		})
		bc.scope[p.FieldID] = e
	}
	return out
}

// maxGlobalDepth bounds nested global substitution.
const maxGlobalDepth = 8

func (r *Resolver) expandGlobals(e expression.Expr, scope map[string]expression.Expr) expression.Expr {
	for i := 0; i < maxGlobalDepth; i++ {
		changed := false
		e = expression.Rewrite(e, func(n expression.Expr) expression.Expr {
			v, ok := n.(*expression.Variable)
			if !ok {
				return n
			}
			if _, shadowed := scope[v.Name]; shadowed {
				return n
			}
			if g, ok := r.globals[strings.ToUpper(v.Name)]; ok {
				changed = true
				return g
			}
			return n
		})
		e = expression.ExpandMacros(e, r.macros)
		if !changed {
			break
		}
	}
	return e
}

func (r *Resolver) bind(bc *bindContext, e expression.Expr) expression.Expr {
	switch n := e.(type) {
	case *expression.Variable:
		if _, ok := bc.scope[n.Name]; ok {
			return n
		}
		if strings.EqualFold(n.Name, "this") {
			return &expression.Point{ID: bc.this.ID}
		}
		return n
	case *expression.Point:
		return r.bindPoint(bc, n)
	case *expression.Call:
		switch strings.ToUpper(n.Name) {
		case "FINDALL":
			return r.bindFindAll(bc, n)
		case "OPTION":
			return r.bindOption(bc, n)
		case "TOLERANTOPTION":
			return r.bindTolerantOption(bc, n)
		case "UNDER", "IS":
			return expression.Fail(strings.ToUpper(n.Name)+" is only valid inside FINDALL", n)
		}
		return &expression.Call{Name: n.Name, Args: r.bindAll(bc, n.Args)}
	case *expression.Unary:
		return &expression.Unary{Op: n.Op, Operand: r.bind(bc, n.Operand)}
	case *expression.Binary:
		return &expression.Binary{Op: n.Op, Left: r.bind(bc, n.Left), Right: r.bind(bc, n.Right)}
	case *expression.Array:
		return &expression.Array{Items: r.bindAll(bc, n.Items)}
	case *expression.Property:
		return &expression.Property{Target: r.bind(bc, n.Target), Name: n.Name}
	}
	return e
}

func (r *Resolver) bindAll(bc *bindContext, items []expression.Expr) []expression.Expr {
	out := make([]expression.Expr, len(items))
	for i, it := range items {
		out[i] = r.bind(bc, it)
	}
	return out
}

func isModelID(id string) bool {
	return strings.HasPrefix(strings.ToLower(id), "dtmi:") || strings.Contains(id, ";")
}

// bindPoint resolves a bracketed name: an earlier parameter, a model (the
// first matching capability under this) or a twin id.
func (r *Resolver) bindPoint(bc *bindContext, n *expression.Point) expression.Expr {
	if _, ok := bc.scope[n.ID]; ok {
		return &expression.Variable{Name: n.ID}
	}
	if isModelID(n.ID) {
		ids, err := r.ancestors(bc.ctx, n.ID, bc.this.ID)
		if err != nil {
			return expression.Fail(err.Error(), n)
		}
		if len(ids) == 0 {
			q := TwinQuery{Models: []string{n.ID}, Ancestors: []string{bc.this.ID}, Hops: r.opts.Hops, Top: r.opts.Top}
			return expression.Fail(fmt.Sprintf("No results found for query '%s'", q), n)
		}
		return &expression.Point{ID: ids[0]}
	}
	t, err := r.twin(bc.ctx, n.ID)
	if errors.Is(err, coreerrors.ErrNotFound) {
		return expression.Fail("Twin not found: "+n.ID, n)
	}
	if err != nil {
		return expression.Fail(err.Error(), n)
	}
	return &expression.Point{ID: t.ID}
}

// bindOption keeps the first alternative that binds without failure, else
// the first failure.
func (r *Resolver) bindOption(bc *bindContext, n *expression.Call) expression.Expr {
	var firstFailed *expression.Failed
	for _, a := range n.Args {
		b := r.bind(bc, a)
		f := expression.FirstFailure(b)
		if f == nil {
			return b
		}
		if firstFailed == nil {
			firstFailed = f
		}
	}
	if firstFailed == nil {
		return expression.Fail("OPTION requires at least one alternative", n)
	}
	return firstFailed
}

// bindTolerantOption keeps every alternative that binds so the one in use
// can change at run time. Constant alternatives collapse to the first one.
// When nothing binds the failures are kept and the instance fails.
func (r *Resolver) bindTolerantOption(bc *bindContext, n *expression.Call) expression.Expr {
	var bound, failed []expression.Expr
	constant := true
	for _, a := range n.Args {
		b := r.bind(bc, a)
		if expression.FirstFailure(b) != nil {
			failed = append(failed, b)
			continue
		}
		switch b.(type) {
		case *expression.Number, *expression.Bool, *expression.Text:
		default:
			constant = false
		}
		bound = append(bound, b)
	}
	switch {
	case len(bound) > 0 && constant:
		return bound[0]
	case len(bound) > 0:
		return &expression.Call{Name: n.Name, Args: bound}
	case len(failed) == 1:
		return failed[0]
	case len(failed) == 0:
		return expression.Fail("TOLERANTOPTION requires at least one alternative", n)
	}
	return &expression.Call{Name: n.Name, Args: failed}
}

// bindFindAll turns FINDALL(var?, filter) into the matching points. Model
// and UNDER terms of the filter become the graph query; any other term is
// checked per twin and needs the variable to refer to the candidate.
func (r *Resolver) bindFindAll(bc *bindContext, n *expression.Call) expression.Expr {
	var varName string
	var filter expression.Expr
	switch len(n.Args) {
	case 1:
		filter = n.Args[0]
	case 2:
		v, ok := n.Args[0].(*expression.Variable)
		if !ok {
			return expression.Fail(ReasonFirstArgVariable, n)
		}
		varName, filter = v.Name, n.Args[1]
	default:
		return expression.Fail("FINDALL expects a filter", n)
	}

	q := TwinQuery{Hops: r.opts.Hops, Top: r.opts.Top}
	var client []expression.Expr
	for _, term := range conjunction(filter) {
		switch t := term.(type) {
		case *expression.Point:
			if isModelID(t.ID) {
				q.Models = append(q.Models, t.ID)
				continue
			}
		case *expression.Call:
			switch strings.ToUpper(t.Name) {
			case "IS":
				for _, a := range t.Args {
					p, ok := a.(*expression.Point)
					if !ok || !isModelID(p.ID) {
						return expression.Fail("IS expects a model", n)
					}
					q.Models = append(q.Models, p.ID)
				}
				continue
			case "UNDER":
				for _, a := range t.Args {
					id, ok := r.underTarget(bc, a)
					if !ok {
						return expression.Fail("UNDER could not resolve "+expression.Serialize(a), n)
					}
					q.Ancestors = append(q.Ancestors, id)
				}
				continue
			}
		}
		client = append(client, term)
	}

	if len(client) > 0 && varName == "" {
		return expression.Fail(ReasonFirstArgVariable, n)
	}
	if len(q.Models) == 0 {
		return expression.Fail(ReasonModelRequired, n)
	}

	twins, err := r.query(bc.ctx, q)
	if err != nil {
		return expression.Fail(err.Error(), n)
	}
	var points []expression.Expr
	for _, t := range twins {
		if matches(varName, client, t) {
			points = append(points, &expression.Point{ID: t.ID})
		}
	}
	switch len(points) {
	case 0:
		return expression.Fail(fmt.Sprintf("No results found for query '%s'", q), n)
	case 1:
		return points[0]
	}
	return &expression.Array{Items: points}
}

func (r *Resolver) underTarget(bc *bindContext, e expression.Expr) (string, bool) {
	name := ""
	switch n := e.(type) {
	case *expression.Variable:
		name = n.Name
	case *expression.Point:
		name = n.ID
	default:
		return "", false
	}
	if bound, ok := bc.scope[name]; ok {
		p, ok := bound.(*expression.Point)
		if !ok {
			return "", false
		}
		return p.ID, true
	}
	if strings.EqualFold(name, "this") {
		return bc.this.ID, true
	}
	if _, isVar := e.(*expression.Variable); isVar {
		return "", false
	}
	t, err := r.twin(bc.ctx, name)
	if err != nil {
		return "", false
	}
	return t.ID, true
}

// conjunction flattens a chain of & into its terms.
func conjunction(e expression.Expr) []expression.Expr {
	if b, ok := e.(*expression.Binary); ok && b.Op == "&" {
		return append(conjunction(b.Left), conjunction(b.Right)...)
	}
	return []expression.Expr{e}
}

// twinScope exposes a candidate twin to client side filter terms: the
// variable itself is the twin id and var.prop reads a property.
type twinScope struct {
	varName string
	twin    *Twin
}

func (s twinScope) Variable(name string) (expression.Value, bool) {
	if name == s.varName {
		return expression.TextValue(s.twin.ID), true
	}
	prop, ok := strings.CutPrefix(name, s.varName+".")
	if !ok {
		return expression.Undefined, false
	}
	raw, ok := s.twin.Property(prop)
	if !ok {
		return expression.Undefined, false
	}
	if f, err := strconv.ParseFloat(raw, 64); err == nil {
		return expression.NumberValue(f), true
	}
	return expression.TextValue(raw), true
}

func (twinScope) Point(string) (expression.Value, bool) { return expression.Undefined, false }

func matches(varName string, terms []expression.Expr, t *Twin) bool {
	scope := twinScope{varName: varName, twin: t}
	for _, term := range terms {
		flat := expression.Rewrite(term, func(n expression.Expr) expression.Expr {
			if p, ok := n.(*expression.Property); ok {
				if v, ok := p.Target.(*expression.Variable); ok && v.Name == varName {
					return &expression.Variable{Name: varName + "." + p.Name}
				}
			}
			return n
		})
		ok, known := expression.Evaluate(flat, scope).Truth()
		if !known || !ok {
			return false
		}
	}
	return true
}

func (r *Resolver) twin(ctx context.Context, id string) (*Twin, error) {
	v, err := r.cache.do("twin|"+id, func() (any, error) {
		return r.models.GetTwin(ctx, id)
	})
	if err != nil {
		return nil, err
	}
	return v.(*Twin), nil
}

func (r *Resolver) ancestors(ctx context.Context, modelID, rootID string) ([]string, error) {
	key := fmt.Sprintf("under|%s|%d|%s", modelID, r.opts.Hops, rootID)
	v, err := r.cache.do(key, func() (any, error) {
		return r.models.QueryAncestors(ctx, modelID, r.opts.Hops, rootID)
	})
	if err != nil {
		return nil, err
	}
	return v.([]string), nil
}

func (r *Resolver) query(ctx context.Context, q TwinQuery) ([]*Twin, error) {
	v, err := r.cache.do(q.String(), func() (any, error) {
		return r.models.Query(ctx, q)
	})
	if err != nil {
		return nil, err
	}
	return v.([]*Twin), nil
}
