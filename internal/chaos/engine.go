// internal/chaos/engine.go
package chaos

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Experiment is a fault-injection test against the loyalty pipeline:
// validate steady state, inject the fault, observe, roll back, then check
// the hypothesis.
type Experiment struct {
	Name        string
	Hypothesis  string
	SteadyState []Metric
	Method      []Action
	Rollback    []Action
	Validation  []Assertion
	Duration    time.Duration
	BlastRadius float64 // fraction of the system affected, 0.0 to 1.0
}

// Metric is a measurable system property sampled during an experiment.
type Metric struct {
	Name      string
	Query     func(context.Context) (float64, error)
	Threshold Threshold
}

type Threshold struct {
	Operator string // >, <, >=, <=, ==
	Value    float64
}

// Action injects or removes a fault.
type Action struct {
	Type    string
	Target  string
	Execute func(context.Context) error
}

// Assertion checks the final value of a metric after rollback.
type Assertion struct {
	Metric    string
	Condition func(float64) bool
	Message   string
}

type Violation struct {
	MetricName string    `json:"metric_name"`
	Expected   float64   `json:"expected"`
	Actual     float64   `json:"actual"`
	Timestamp  time.Time `json:"timestamp"`
}

type Sample struct {
	Timestamp time.Time `json:"timestamp"`
	Value     float64   `json:"value"`
}

// Result captures one experiment run.
type Result struct {
	ExperimentName   string              `json:"experiment_name"`
	StartTime        time.Time           `json:"start_time"`
	Duration         time.Duration       `json:"duration"`
	SteadyStateValid bool                `json:"steady_state_valid"`
	HypothesisHeld   bool                `json:"hypothesis_held"`
	Violations       []Violation         `json:"violations"`
	Samples          map[string][]Sample `json:"samples"`
	Errors           []string            `json:"errors"`
}

// Engine runs experiments sequentially and keeps their results.
type Engine struct {
	tracer      trace.Tracer
	db          *sql.DB
	experiments []Experiment

	mu      sync.Mutex
	results []Result
}

func NewEngine(db *sql.DB) *Engine {
	return &Engine{
		tracer: otel.Tracer("autosphere/chaos"),
		db:     db,
	}
}

func (e *Engine) Register(exp Experiment) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.experiments = append(e.experiments, exp)
}

func (e *Engine) Experiments() []Experiment {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.experiments
}

// Run executes a single experiment through all five phases.
func (e *Engine) Run(ctx context.Context, exp Experiment) (*Result, error) {
	ctx, span := e.tracer.Start(ctx, "chaos.run",
		trace.WithAttributes(attribute.String("experiment.name", exp.Name)),
	)
	defer span.End()

	result := &Result{
		ExperimentName: exp.Name,
		StartTime:      time.Now(),
		Samples:        make(map[string][]Sample),
	}

	span.AddEvent("validating_steady_state")
	if violations := e.checkSteadyState(ctx, exp.SteadyState); len(violations) > 0 {
		result.Violations = violations
		return result, errors.New("steady state invalid, aborting experiment")
	}
	result.SteadyStateValid = true

	span.AddEvent("injecting_fault")
	for _, action := range exp.Method {
		if err := action.Execute(ctx); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", action.Target, err))
			span.RecordError(err)
		}
	}

	span.AddEvent("observing")
	e.observe(ctx, exp, result)

	span.AddEvent("rolling_back")
	for _, action := range exp.Rollback {
		if err := action.Execute(ctx); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("rollback %s: %v", action.Target, err))
			span.RecordError(err)
		}
	}

	span.AddEvent("validating_hypothesis")
	result.HypothesisHeld = e.checkAssertions(exp.Validation, result)
	result.Duration = time.Since(result.StartTime)

	e.mu.Lock()
	e.results = append(e.results, *result)
	e.mu.Unlock()

	span.SetAttributes(
		attribute.Bool("hypothesis.held", result.HypothesisHeld),
		attribute.Int("violations", len(result.Violations)),
	)
	return result, nil
}

func (e *Engine) observe(ctx context.Context, exp Experiment, result *Result) {
	observeCtx, cancel := context.WithTimeout(ctx, exp.Duration)
	defer cancel()

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-observeCtx.Done():
			return
		case <-ticker.C:
			for _, metric := range exp.SteadyState {
				value, err := metric.Query(ctx)
				if err != nil {
					result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", metric.Name, err))
					continue
				}
				result.Samples[metric.Name] = append(result.Samples[metric.Name], Sample{
					Timestamp: time.Now(),
					Value:     value,
				})
				if !metric.Threshold.holds(value) {
					result.Violations = append(result.Violations, Violation{
						MetricName: metric.Name,
						Expected:   metric.Threshold.Value,
						Actual:     value,
						Timestamp:  time.Now(),
					})
				}
			}
		}
	}
}

func (e *Engine) checkSteadyState(ctx context.Context, metrics []Metric) []Violation {
	var violations []Violation
	for _, metric := range metrics {
		value, err := metric.Query(ctx)
		if err != nil {
			violations = append(violations, Violation{
				MetricName: metric.Name,
				Expected:   metric.Threshold.Value,
				Actual:     -1,
				Timestamp:  time.Now(),
			})
			continue
		}
		if !metric.Threshold.holds(value) {
			violations = append(violations, Violation{
				MetricName: metric.Name,
				Expected:   metric.Threshold.Value,
				Actual:     value,
				Timestamp:  time.Now(),
			})
		}
	}
	return violations
}

func (e *Engine) checkAssertions(assertions []Assertion, result *Result) bool {
	for _, assertion := range assertions {
		samples := result.Samples[assertion.Metric]
		if len(samples) == 0 {
			return false
		}
		final := samples[len(samples)-1].Value
		if !assertion.Condition(final) {
			return false
		}
	}
	return true
}

func (t Threshold) holds(value float64) bool {
	switch t.Operator {
	case ">":
		return value > t.Value
	case "<":
		return value < t.Value
	case ">=":
		return value >= t.Value
	case "<=":
		return value <= t.Value
	case "==":
		return value == t.Value
	default:
		return false
	}
}

// RunAll executes every registered experiment in order, printing a summary
// per run.
func (e *Engine) RunAll(ctx context.Context) error {
	experiments := e.Experiments()
	for i, exp := range experiments {
		fmt.Printf("\n🔬 Experiment %d/%d: %s\n", i+1, len(experiments), exp.Name)
		fmt.Printf("💡 Hypothesis: %s\n", exp.Hypothesis)

		result, err := e.Run(ctx, exp)
		if err != nil {
			fmt.Printf("❌ Experiment failed: %v\n", err)
			continue
		}
		printResult(result)
	}
	return nil
}

func printResult(result *Result) {
	if result.HypothesisHeld {
		fmt.Printf("✅ Hypothesis held\n")
	} else {
		fmt.Printf("❌ Hypothesis violated\n")
	}
	for _, v := range result.Violations {
		fmt.Printf("   - %s: expected %.2f, got %.2f\n", v.MetricName, v.Expected, v.Actual)
	}
	fmt.Printf("📊 Duration: %s\n", result.Duration)
}
