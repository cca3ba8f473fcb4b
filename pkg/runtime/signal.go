// rewrite/pkg/runtime/signal.go

package runtime

import (
	"fmt"

	"rgehrsitz/rewrite/pkg/rewrite"
)

// Signal is the control-flow verdict of one instruction.
type Signal int8

const (
	SignalContinue Signal = iota
	// SignalStopRuleset ends the current ruleset; it still counts as matched.
	SignalStopRuleset
	// SignalStopAll ends the ruleset and tells the caller to try no further rulesets.
	SignalStopAll
	// SignalStopParsing aborts a compile or self-test pass.
	SignalStopParsing
	// SignalFatal is unrecoverable and turns into a server error response.
	SignalFatal
)

func (s Signal) String() string {
	switch s {
	case SignalContinue:
		return "continue"
	case SignalStopRuleset:
		return "stop_ruleset"
	case SignalStopAll:
		return "stop_all"
	case SignalStopParsing:
		return "stop_parsing"
	case SignalFatal:
		return "fatal"
	default:
		return fmt.Sprintf("Signal(%d)", int8(s))
	}
}

// Outcome is what Execute reports for one ruleset.
type Outcome int8

const (
	Matched Outcome = iota
	NotMatched
	Errored
)

func (o Outcome) String() string {
	switch o {
	case Matched:
		return "matched"
	case NotMatched:
		return "not_matched"
	case Errored:
		return "errored"
	default:
		return fmt.Sprintf("Outcome(%d)", int8(o))
	}
}

// callSignal maps a native callback result onto VM control flow.
func callSignal(r rewrite.Result) Signal {
	switch r {
	case rewrite.ResultMatched:
		return SignalContinue
	case rewrite.ResultNotMatched:
		return SignalStopRuleset
	case rewrite.ResultAbort:
		return SignalStopParsing
	default:
		return SignalFatal
	}
}
