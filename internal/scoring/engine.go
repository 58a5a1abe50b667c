// Package scoring provides the CEL-based transaction risk scoring engine.
package scoring

import (
	"fmt"
	"math"
	"time"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
	"github.com/google/cel-go/common/types/ref"
	"github.com/opensource-finance/kestrel/internal/domain"
)

// MaxScore is the upper bound of every risk score.
const MaxScore = 100

// Options controls how an Engine is built.
type Options struct {
	// SimulationBias adds the fraud-label factor. Only generators set it;
	// a production engine never reads the label.
	SimulationBias bool

	// EnablePatternBreak loads the pattern_break factor.
	EnablePatternBreak bool

	// PatternBreakMultiple is the amount/average ratio that counts as a break.
	PatternBreakMultiple float64

	// Location used to derive the local hour. Nil means the timestamp's own zone.
	Location *time.Location
}

// DefaultOptions returns the production options.
func DefaultOptions() Options {
	return Options{PatternBreakMultiple: 5}
}

// OptionsFromConfig builds Options from the scoring configuration.
func OptionsFromConfig(cfg domain.ScoringConfig) (Options, error) {
	opts := DefaultOptions()
	opts.EnablePatternBreak = cfg.EnablePatternBreak
	if cfg.PatternBreakMultiple > 0 {
		opts.PatternBreakMultiple = cfg.PatternBreakMultiple
	}
	if cfg.Timezone != "" {
		loc, err := time.LoadLocation(cfg.Timezone)
		if err != nil {
			return opts, fmt.Errorf("failed to load timezone %q: %w", cfg.Timezone, err)
		}
		opts.Location = loc
	}
	return opts, nil
}

// Engine scores transaction features against a compiled factor table.
// It is immutable after construction and safe for concurrent use.
type Engine struct {
	env     *cel.Env
	factors []*compiledFactor
	opts    Options
}

type compiledFactor struct {
	Factor    Factor
	condition cel.Program
	addend    cel.Program
}

// Hit records one factor that contributed to a score.
type Hit struct {
	Factor string            `json:"factor"`
	Reason domain.ReasonCode `json:"reason,omitempty"`
	Points float64           `json:"points"`
}

// Result is the full outcome of scoring one set of features.
type Result struct {
	Score   int                 `json:"risk_score"`
	Reasons []domain.ReasonCode `json:"reason_codes"`
	Hits    []Hit               `json:"hits"`
	Raw     float64             `json:"raw_sum"`
}

// New creates an engine with the default factor table.
func New(opts Options) (*Engine, error) {
	return NewWithFactors(opts, DefaultFactors())
}

// NewSimulationEngine creates an engine that also applies the fraud-label bias.
// It exists for synthetic data generation only.
func NewSimulationEngine(opts Options) (*Engine, error) {
	opts.SimulationBias = true
	return New(opts)
}

// NewWithFactors creates an engine over a custom factor table.
// Factors are evaluated in slice order.
func NewWithFactors(opts Options, factors []Factor) (*Engine, error) {
	if opts.PatternBreakMultiple <= 0 {
		opts.PatternBreakMultiple = DefaultOptions().PatternBreakMultiple
	}

	env, err := newEnv()
	if err != nil {
		return nil, err
	}

	e := &Engine{env: env, opts: opts}
	for _, f := range factors {
		if f.SimulationOnly && !opts.SimulationBias {
			continue
		}
		if f.Reason == domain.ReasonPatternBreak && !opts.EnablePatternBreak {
			continue
		}
		compiled, err := e.compile(f)
		if err != nil {
			return nil, err
		}
		e.factors = append(e.factors, compiled)
	}
	return e, nil
}

func newEnv() (*cel.Env, error) {
	env, err := cel.NewEnv(
		cel.Variable("amount", cel.DoubleType),
		cel.Variable("merchant_risk", cel.DoubleType),
		cel.Variable("velocity_10min", cel.IntType),
		cel.Variable("device_change", cel.BoolType),
		cel.Variable("geo_distance_km", cel.DoubleType),
		cel.Variable("channel", cel.StringType),
		cel.Variable("local_hour", cel.IntType),
		cel.Variable("avg_amount_30d", cel.DoubleType),
		cel.Variable("pattern_break_multiple", cel.DoubleType),
		cel.Variable("is_fraud", cel.BoolType),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}
	return env, nil
}

// Validate compiles a factor without loading it.
func (e *Engine) Validate(f Factor) error {
	_, err := e.compile(f)
	return err
}

// Factors returns the loaded factor table in evaluation order.
func (e *Engine) Factors() []Factor {
	out := make([]Factor, 0, len(e.factors))
	for _, cf := range e.factors {
		out = append(out, cf.Factor)
	}
	return out
}

// SimulationBias reports whether the engine reads the fraud label.
func (e *Engine) SimulationBias() bool {
	return e.opts.SimulationBias
}

// Score returns the risk score and the ordered reason codes for f.
func (e *Engine) Score(f domain.Features) (int, []domain.ReasonCode, error) {
	res, err := e.Evaluate(f)
	if err != nil {
		return 0, nil, err
	}
	return res.Score, res.Reasons, nil
}

// Evaluate scores f and reports every factor that fired.
func (e *Engine) Evaluate(f domain.Features) (*Result, error) {
	f, err := f.Normalize()
	if err != nil {
		return nil, err
	}

	activation := e.activation(f)
	res := &Result{Reasons: []domain.ReasonCode{}}

	for _, cf := range e.factors {
		fired, err := evalBool(cf.condition, activation)
		if err != nil {
			return nil, fmt.Errorf("factor %s condition: %w", cf.Factor.Name, err)
		}
		if !fired {
			continue
		}
		points, err := evalNumber(cf.addend, activation)
		if err != nil {
			return nil, fmt.Errorf("factor %s addend: %w", cf.Factor.Name, err)
		}
		if points == 0 {
			continue
		}

		res.Raw += points
		res.Hits = append(res.Hits, Hit{Factor: cf.Factor.Name, Reason: cf.Factor.Reason, Points: points})
		if cf.Factor.Reason != "" {
			res.Reasons = append(res.Reasons, cf.Factor.Reason)
		}
	}

	res.Score = clampScore(res.Raw)
	return res, nil
}

func (e *Engine) activation(f domain.Features) map[string]any {
	ts := f.Timestamp
	if e.opts.Location != nil {
		ts = ts.In(e.opts.Location)
	}

	isFraud := false
	if e.opts.SimulationBias && f.FraudLabel != nil {
		isFraud = *f.FraudLabel
	}

	return map[string]any{
		"amount":                 f.Amount,
		"merchant_risk":          f.MerchantRisk,
		"velocity_10min":         int64(f.Velocity10Min),
		"device_change":          f.DeviceChange,
		"geo_distance_km":        f.GeoDistanceKm,
		"channel":                string(f.Channel),
		"local_hour":             int64(ts.Hour()),
		"avg_amount_30d":         f.AvgAmount30d,
		"pattern_break_multiple": e.opts.PatternBreakMultiple,
		"is_fraud":               isFraud,
	}
}

func (e *Engine) compile(f Factor) (*compiledFactor, error) {
	if f.Name == "" {
		return nil, fmt.Errorf("factor name is required")
	}
	if f.Reason != "" && !f.Reason.Valid() {
		return nil, fmt.Errorf("factor %s: unknown reason code %q", f.Name, f.Reason)
	}

	cond, err := e.program(f.Name, f.Condition, cel.BoolType)
	if err != nil {
		return nil, err
	}
	addend, err := e.program(f.Name, f.Addend, cel.DoubleType, cel.IntType)
	if err != nil {
		return nil, err
	}
	return &compiledFactor{Factor: f, condition: cond, addend: addend}, nil
}

func (e *Engine) program(name, expr string, allowed ...*cel.Type) (cel.Program, error) {
	ast, issues := e.env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("failed to compile factor %s: %w", name, issues.Err())
	}

	ok := false
	for _, t := range allowed {
		if ast.OutputType() == t {
			ok = true
		}
	}
	if !ok {
		return nil, fmt.Errorf("factor %s: expression %q returns %s", name, expr, ast.OutputType())
	}

	program, err := e.env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to create program for factor %s: %w", name, err)
	}
	return program, nil
}

func evalBool(p cel.Program, activation map[string]any) (bool, error) {
	out, _, err := p.Eval(activation)
	if err != nil {
		return false, err
	}
	b, ok := out.(types.Bool)
	if !ok {
		return false, fmt.Errorf("expected bool, got %s", out.Type())
	}
	return bool(b), nil
}

func evalNumber(p cel.Program, activation map[string]any) (float64, error) {
	out, _, err := p.Eval(activation)
	if err != nil {
		return 0, err
	}
	return toNumber(out)
}

func toNumber(val ref.Val) (float64, error) {
	switch v := val.(type) {
	case types.Double:
		f := float64(v)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return 0, fmt.Errorf("addend is not finite")
		}
		return f, nil
	case types.Int:
		return float64(v), nil
	default:
		return 0, fmt.Errorf("expected number, got %s", val.Type())
	}
}

// clampScore applies round(clamp(sum, 0, 100)).
func clampScore(sum float64) int {
	if sum < 0 {
		sum = 0
	}
	if sum > MaxScore {
		sum = MaxScore
	}
	return int(math.Round(sum))
}
