// rewrite/pkg/runtime/engine.go

package runtime

import (
	"net/http"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"rgehrsitz/rewrite/pkg/logging"
	"rgehrsitz/rewrite/pkg/rewrite"
)

// Observer receives execution events. Implementations must be safe for
// concurrent use.
type Observer interface {
	ObserveExecution(ruleset string, outcome Outcome, signal Signal, elapsed time.Duration)
	ObserveScopeActivation(scope string)
}

// Engine executes compiled rulesets. A single Engine is shared by all requests;
// it holds no per-request state.
type Engine struct {
	logger   zerolog.Logger
	observer Observer

	totalExecutions   atomic.Int64
	totalMatched      atomic.Int64
	totalNotMatched   atomic.Int64
	totalErrored      atomic.Int64
	totalFatal        atomic.Int64
	totalInstructions atomic.Int64
	lastExecution     atomic.Int64
}

type Option func(*Engine)

func WithLogger(logger zerolog.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

func WithObserver(observer Observer) Option {
	return func(e *Engine) { e.observer = observer }
}

func NewEngine(opts ...Option) *Engine {
	e := &Engine{logger: logging.Component("vm")}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Execute runs rs against req from its first instruction. It never blocks and
// performs at most rs.Len() steps.
func (e *Engine) Execute(req rewrite.Request, rs *rewrite.Ruleset) Outcome {
	outcome, _ := e.execute(req, rs)
	return outcome
}

// Run executes rulesets in order until one reports NotMatched or Errored.
func (e *Engine) Run(req rewrite.Request, rulesets []*rewrite.Ruleset) Outcome {
	for _, rs := range rulesets {
		if outcome := e.Execute(req, rs); outcome != Matched {
			return outcome
		}
	}
	return Matched
}

func (e *Engine) execute(req rewrite.Request, rs *rewrite.Ruleset) (Outcome, Signal) {
	start := time.Now()
	outcome, signal := Matched, SignalContinue
	executed := 0

loop:
	for i := 0; i < rs.Len(); i++ {
		instr := rs.At(i)
		executed++

		signal = e.step(req, instr)
		switch signal {
		case SignalContinue:
			continue
		case SignalStopRuleset:
			outcome = Matched
		case SignalStopAll:
			outcome = NotMatched
		case SignalFatal:
			e.logger.Error().
				Str("ruleset", rs.Name()).
				Int("index", i).
				Str("instruction", rewrite.Format(instr)).
				Msg("Fatal signal, aborting request")
			req.Abort(http.StatusInternalServerError)
			outcome = Errored
		case SignalStopParsing:
			e.logger.Warn().
				Str("ruleset", rs.Name()).
				Int("index", i).
				Msg("Stop-parsing signal during execution")
			outcome = Errored
		}
		break loop
	}

	elapsed := time.Since(start)
	e.record(outcome, signal, executed)
	if e.observer != nil {
		e.observer.ObserveExecution(rs.Name(), outcome, signal, elapsed)
	}
	e.logger.Debug().
		Str("ruleset", rs.Name()).
		Str("outcome", outcome.String()).
		Str("signal", signal.String()).
		Int("executed", executed).
		Dur("elapsed", elapsed).
		Msg("Ruleset executed")
	return outcome, signal
}

// step evaluates a single instruction.
func (e *Engine) step(req rewrite.Request, instr rewrite.Instruction) Signal {
	switch in := instr.(type) {
	case rewrite.Nop:
		return SignalContinue

	case rewrite.SetBool:
		return e.set(req, in.Var, rewrite.BoolValue(in.Value))
	case rewrite.SetInt:
		return e.set(req, in.Var, rewrite.IntValue(in.Value))
	case rewrite.SetString:
		return e.set(req, in.Var, rewrite.StringValue(in.Value))

	case rewrite.IsEqualBool:
		return e.compare(req, in.Var, rewrite.BoolValue(in.Value), true)
	case rewrite.IsEqualInt:
		return e.compare(req, in.Var, rewrite.IntValue(in.Value), true)
	case rewrite.IsEqualString:
		return e.compare(req, in.Var, rewrite.StringValue(in.Value), true)
	case rewrite.IsNotEqualBool:
		return e.compare(req, in.Var, rewrite.BoolValue(in.Value), false)
	case rewrite.IsNotEqualInt:
		return e.compare(req, in.Var, rewrite.IntValue(in.Value), false)
	case rewrite.IsNotEqualString:
		return e.compare(req, in.Var, rewrite.StringValue(in.Value), false)

	case rewrite.Call:
		if in.Callback == nil {
			return e.invariant(instr, "CALL without callback")
		}
		result := in.Callback.Call(req)
		if result == rewrite.ResultError {
			e.logger.Warn().Str("callback", in.Callback.ID).Msg("Callback reported an error")
		}
		return callSignal(result)

	case rewrite.ActivateScope:
		if in.Scope == nil {
			return e.invariant(instr, "ACTIVATE_SCOPE without scope")
		}
		req.Activator().Activate(in.Scope)
		if req.Scopes().Add(in.Scope) && e.observer != nil {
			e.observer.ObserveScopeActivation(in.Scope.Name())
		}
		return SignalContinue

	case rewrite.StopAll:
		return SignalStopAll

	case rewrite.SetVariable, rewrite.IsEqualVariable, rewrite.IsNotEqualVariable:
		e.logger.Warn().Str("opcode", instr.Opcode().String()).Msg("Reserved opcode executed as NOP")
		return SignalContinue

	default:
		return e.invariant(instr, "unknown instruction")
	}
}

func (e *Engine) set(req rewrite.Request, v *rewrite.Variable, val rewrite.Value) Signal {
	if v.Type() != val.Type() {
		return e.mismatch(v, val)
	}
	if !v.Set(req, val) {
		e.logger.Warn().Str("variable", v.Name()).Msg("Variable write failed")
		return SignalFatal
	}
	return SignalContinue
}

func (e *Engine) compare(req rewrite.Request, v *rewrite.Variable, literal rewrite.Value, wantEqual bool) Signal {
	val, ok := v.Get(req)
	if !ok {
		e.logger.Warn().Str("variable", v.Name()).Msg("Variable read failed")
		return SignalFatal
	}
	if val.Type() != literal.Type() || v.Type() != literal.Type() {
		return e.mismatch(v, val)
	}
	if val.Equal(literal) != wantEqual {
		return SignalStopRuleset
	}
	return SignalContinue
}

func (e *Engine) mismatch(v *rewrite.Variable, val rewrite.Value) Signal {
	logging.LogError(e.logger, logging.NewError(logging.ErrorTypeInvariant, "operand type does not match variable", nil,
		map[string]interface{}{
			"variable":      v.Name(),
			"declared_type": v.Type().String(),
			"value_type":    val.Type().String(),
		}))
	return SignalFatal
}

func (e *Engine) invariant(instr rewrite.Instruction, msg string) Signal {
	logging.LogError(e.logger, logging.NewError(logging.ErrorTypeInvariant, msg, nil,
		map[string]interface{}{"opcode": instr.Opcode().String()}))
	return SignalFatal
}

func (e *Engine) record(outcome Outcome, signal Signal, executed int) {
	e.totalExecutions.Add(1)
	e.totalInstructions.Add(int64(executed))
	e.lastExecution.Store(time.Now().UnixNano())
	switch outcome {
	case Matched:
		e.totalMatched.Add(1)
	case NotMatched:
		e.totalNotMatched.Add(1)
	case Errored:
		e.totalErrored.Add(1)
	}
	if signal == SignalFatal {
		e.totalFatal.Add(1)
	}
}

// GetStats returns a snapshot of the engine counters.
func (e *Engine) GetStats() map[string]interface{} {
	var last time.Time
	if ns := e.lastExecution.Load(); ns != 0 {
		last = time.Unix(0, ns)
	}
	return map[string]interface{}{
		"TotalExecutions":   e.totalExecutions.Load(),
		"TotalMatched":      e.totalMatched.Load(),
		"TotalNotMatched":   e.totalNotMatched.Load(),
		"TotalErrored":      e.totalErrored.Load(),
		"TotalFatal":        e.totalFatal.Load(),
		"TotalInstructions": e.totalInstructions.Load(),
		"LastExecutionTime": last,
	}
}
