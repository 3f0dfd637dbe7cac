// Package router maps task kinds to their registered evaluators. Adding a
// new kind means implementing evaluators.Evaluator and registering it here;
// nothing in the coordinator changes.
package router

import (
	"ace-pipeline/internal/common/errors"
	"ace-pipeline/internal/common/logger"
	"ace-pipeline/internal/evaluators"
	"ace-pipeline/internal/models"
)

// Router holds the kind registry. It is populated at startup and read-only
// afterwards, so no locking is needed on the dispatch path.
type Router struct {
	registry map[models.TaskKind]evaluators.Evaluator
	logger   logger.Logger
}

func New(log logger.Logger) *Router {
	return &Router{
		registry: make(map[models.TaskKind]evaluators.Evaluator),
		logger:   log,
	}
}

// Register binds an evaluator to its declared kind. A second registration for
// the same kind replaces the first; the last registration wins.
func (r *Router) Register(e evaluators.Evaluator) {
	r.registry[e.Kind()] = e
	r.logger.Info("evaluator registered", map[string]interface{}{
		"kind": string(e.Kind()),
	})
}

// Route returns the evaluator for a task's kind, or an UNSUPPORTED_KIND
// error. That error is never retryable: redelivering the same task cannot
// grow the registry.
func (r *Router) Route(task *models.Task) (evaluators.Evaluator, error) {
	e, ok := r.registry[task.Kind]
	if !ok {
		return nil, errors.NewUnsupportedKindError(string(task.Kind))
	}
	return e, nil
}

// Kinds returns the registered kinds in canonical order.
func (r *Router) Kinds() []models.TaskKind {
	out := make([]models.TaskKind, 0, len(r.registry))
	for _, kind := range models.KnownKinds {
		if _, ok := r.registry[kind]; ok {
			out = append(out, kind)
		}
	}
	for kind := range r.registry {
		known := false
		for _, k := range models.KnownKinds {
			if k == kind {
				known = true
				break
			}
		}
		if !known {
			out = append(out, kind)
		}
	}
	return out
}
