package booking

import (
	"context"
	"fmt"

	"github.com/iliyamo/flashsale-booking/internal/metrics"
)

// hook is one post-commit side effect.
type hook struct {
	name string
	fn   func(ctx context.Context) error
}

// afterCommit runs hooks in order on a background goroutine.  The hooks
// get a context detached from the request, bounded by HookTimeout.  A
// failing or panicking hook is logged and the next one still runs.
func (o *Orchestrator) afterCommit(ctx context.Context, hooks ...hook) {
	if len(hooks) == 0 {
		return
	}
	hctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.cfg.HookTimeout)
	o.hooks.Add(1)
	go func() {
		defer o.hooks.Done()
		defer cancel()
		for _, h := range hooks {
			if err := o.runHook(hctx, h); err != nil {
				metrics.HookFailures.WithLabelValues(h.name).Inc()
				o.logger.WithField("component", "booking").WithField("hook", h.name).
					WithError(err).Error("post-commit hook failed")
			}
		}
	}()
}

func (o *Orchestrator) runHook(ctx context.Context, h hook) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return h.fn(ctx)
}
