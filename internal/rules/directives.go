package rules

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
	"github.com/kanadia-gov/kestrel/internal/domain"
)

// DirectiveEngine evaluates operator-configured CEL screening directives
// against entry records. A directive whose expression holds contributes its
// configured outcome to resolution alongside the built-in rules.
type DirectiveEngine struct {
	mu         sync.RWMutex
	env        *cel.Env
	compiled   map[string]*compiledDirective
	maxWorkers int
}

type compiledDirective struct {
	directive *domain.Directive
	program   cel.Program
}

// NewDirectiveEngine creates a directive engine.
func NewDirectiveEngine(maxWorkers int) (*DirectiveEngine, error) {
	if maxWorkers <= 0 {
		maxWorkers = 10
	}

	// CEL environment exposing the entry record fields
	env, err := cel.NewEnv(
		cel.Variable("entry", cel.MapType(cel.StringType, cel.DynType)),
		cel.Variable("first_name", cel.StringType),
		cel.Variable("last_name", cel.StringType),
		cel.Variable("passport", cel.StringType),
		cel.Variable("birth_date", cel.StringType),
		cel.Variable("entry_reason", cel.StringType),
		cel.Variable("home_country", cel.StringType),
		cel.Variable("from_country", cel.StringType),
		cel.Variable("via_country", cel.StringType),
		cel.Variable("has_via", cel.BoolType),
		cel.Variable("has_visa", cel.BoolType),
		cel.Variable("visa_code", cel.StringType),
		cel.Variable("visa_date", cel.StringType),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	return &DirectiveEngine{
		env:        env,
		compiled:   make(map[string]*compiledDirective),
		maxWorkers: maxWorkers,
	}, nil
}

// Validate compiles a directive without mutating the loaded set.
func (e *DirectiveEngine) Validate(d *domain.Directive) error {
	if d == nil {
		return fmt.Errorf("directive is required")
	}

	e.mu.RLock()
	defer e.mu.RUnlock()

	_, err := e.compile(d)
	return err
}

// Load compiles and loads a directive into the engine.
func (e *DirectiveEngine) Load(d *domain.Directive) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	compiled, err := e.compile(d)
	if err != nil {
		return err
	}

	e.compiled[d.ID] = compiled
	return nil
}

// Reload clears all loaded directives and loads the given set (hot reload).
func (e *DirectiveEngine) Reload(directives []*domain.Directive) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	loaded := make(map[string]*compiledDirective)
	for _, d := range directives {
		if !d.Enabled {
			continue
		}
		compiled, err := e.compile(d)
		if err != nil {
			return err
		}
		loaded[d.ID] = compiled
	}

	e.compiled = loaded
	return nil
}

// Count returns the number of loaded directives.
func (e *DirectiveEngine) Count() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.compiled)
}

// Loaded returns the currently loaded directive configurations.
func (e *DirectiveEngine) Loaded() []*domain.Directive {
	e.mu.RLock()
	defer e.mu.RUnlock()

	directives := make([]*domain.Directive, 0, len(e.compiled))
	for _, c := range e.compiled {
		directives = append(directives, c.directive)
	}
	return directives
}

// EvaluateAll evaluates every loaded directive against the record in
// parallel. A directive that fails to evaluate contributes NoDecision with
// the error as its reason; directives never decide on faults.
func (e *DirectiveEngine) EvaluateAll(ctx context.Context, rec *domain.EntryRecord) []domain.RuleResult {
	e.mu.RLock()
	directives := make([]*compiledDirective, 0, len(e.compiled))
	for _, c := range e.compiled {
		directives = append(directives, c)
	}
	e.mu.RUnlock()

	if len(directives) == 0 {
		return nil
	}

	activation := activationFor(rec)

	results := make([]domain.RuleResult, len(directives))
	var wg sync.WaitGroup

	sem := make(chan struct{}, e.maxWorkers)

	for i, c := range directives {
		wg.Add(1)
		go func(idx int, c *compiledDirective) {
			defer wg.Done()

			sem <- struct{}{}
			defer func() { <-sem }()

			results[idx] = e.evaluate(c, activation)
		}(i, c)
	}

	wg.Wait()

	return results
}

func (e *DirectiveEngine) evaluate(c *compiledDirective, activation map[string]any) domain.RuleResult {
	start := time.Now()

	result := domain.RuleResult{
		Rule:    "directive:" + c.directive.ID,
		Outcome: domain.OutcomeNone,
	}

	out, _, err := c.program.Eval(activation)
	if err != nil {
		result.Reason = fmt.Sprintf("evaluation error: %v", err)
		result.ProcessMs = time.Since(start).Milliseconds()
		return result
	}

	if matched, ok := out.(types.Bool); ok && bool(matched) {
		result.Outcome = c.directive.Outcome
		result.Reason = c.directive.Name
	}
	result.ProcessMs = time.Since(start).Milliseconds()

	return result
}

func (e *DirectiveEngine) compile(d *domain.Directive) (*compiledDirective, error) {
	switch d.Outcome {
	case domain.OutcomeReject, domain.OutcomeSecondary, domain.OutcomeQuarantine:
	default:
		return nil, fmt.Errorf("directive %s: outcome must be Reject, Secondary, or Quarantine, got %q", d.ID, d.Outcome)
	}

	ast, issues := e.env.Compile(d.Expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("failed to compile directive %s: %w", d.ID, issues.Err())
	}

	if ast.OutputType() != cel.BoolType {
		return nil, fmt.Errorf("directive %s: expression must return bool, got %s", d.ID, ast.OutputType())
	}

	program, err := e.env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to create program for directive %s: %w", d.ID, err)
	}

	return &compiledDirective{
		directive: d,
		program:   program,
	}, nil
}

// activationFor flattens an entry record into CEL activation variables.
func activationFor(rec *domain.EntryRecord) map[string]any {
	viaCountry := ""
	if rec.Via != nil {
		viaCountry = rec.Via.Country
	}
	visaCode, visaDate := "", ""
	if rec.Visa != nil {
		visaCode = rec.Visa.Code
		visaDate = rec.Visa.Date
	}

	return map[string]any{
		"entry": map[string]any{
			"first_name":   rec.FirstName,
			"last_name":    rec.LastName,
			"passport":     rec.Passport,
			"entry_reason": rec.EntryReason,
			"home_country": rec.Home.Country,
			"from_country": rec.From.Country,
		},
		"first_name":   rec.FirstName,
		"last_name":    rec.LastName,
		"passport":     rec.Passport,
		"birth_date":   rec.BirthDate,
		"entry_reason": rec.EntryReason,
		"home_country": rec.Home.Country,
		"from_country": rec.From.Country,
		"via_country":  viaCountry,
		"has_via":      rec.Via != nil,
		"has_visa":     rec.Visa != nil,
		"visa_code":    visaCode,
		"visa_date":    visaDate,
	}
}

// Close cleans up the engine.
func (e *DirectiveEngine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.compiled = make(map[string]*compiledDirective)
	return nil
}
