// File: internal/script/runner.go
package script

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/stepwright/stepwright/api/schemas"
	"github.com/stepwright/stepwright/internal/config"
)

// Dispatcher is the slice of a session the runner needs. *session.Session
// satisfies it.
type Dispatcher interface {
	Dispatch(ctx context.Context, req *schemas.StepRequest) schemas.StepResult
}

// StepOutcome records one executed step of a script run.
type StepOutcome struct {
	Index  int                `json:"index"`
	Action schemas.ActionKind `json:"action"`
	Result schemas.StepResult `json:"result"`
}

// Runner feeds a script's steps through one session, in order.
type Runner struct {
	cfg     config.ScriptConfig
	log     *zap.Logger
	limiter *rate.Limiter
}

// NewRunner builds a runner. A positive pace caps dispatched steps per
// second; zero runs unthrottled.
func NewRunner(cfg config.ScriptConfig, log *zap.Logger) *Runner {
	r := &Runner{cfg: cfg, log: log.Named("script")}
	if cfg.Pace > 0 {
		r.limiter = rate.NewLimiter(rate.Limit(cfg.Pace), 1)
	}
	return r
}

// Run dispatches every step of the script against sess. Execution stops at
// the first failure unless keep_going is set; fatal failures always stop
// the run. The returned outcomes cover every step that was dispatched.
func (r *Runner) Run(ctx context.Context, sess Dispatcher, sc *Script) ([]StepOutcome, error) {
	outcomes := make([]StepOutcome, 0, len(sc.Steps))
	r.log.Info("script started",
		zap.String("script", sc.Name), zap.Int("steps", len(sc.Steps)))

	for i := range sc.Steps {
		step := &sc.Steps[i]
		if r.limiter != nil {
			if err := r.limiter.Wait(ctx); err != nil {
				return outcomes, fmt.Errorf("script canceled while pacing: %w", err)
			}
		}

		res := sess.Dispatch(ctx, step)
		outcomes = append(outcomes, StepOutcome{Index: i + 1, Action: step.Action, Result: res})

		if res.OK {
			r.log.Debug("step succeeded",
				zap.Int("step", i+1),
				zap.String("action", string(step.Action)),
				zap.Duration("elapsed", res.Elapsed.Std()))
			continue
		}

		r.log.Warn("step failed",
			zap.Int("step", i+1),
			zap.String("action", string(step.Action)),
			zap.Error(res.Error))
		if res.Error != nil && res.Error.Fatal() {
			return outcomes, fmt.Errorf("step %d (%s) failed fatally: %w", i+1, step.Action, res.Error)
		}
		if !r.cfg.KeepGoing {
			return outcomes, fmt.Errorf("step %d (%s) failed: %w", i+1, step.Action, res.Error)
		}
	}

	r.log.Info("script finished", zap.String("script", sc.Name), zap.Int("steps", len(outcomes)))
	return outcomes, nil
}
