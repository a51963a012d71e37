// Package core holds the transactional working-set store, the rules engine
// guarding its commits, and the service facade the UI layer calls. One
// service method exists per user intent; cache invalidation and event
// publication happen inside the service so call sites cannot skip them.
package core

import (
	"context"

	"flockcore/pkg/domain"
)

// Rule defines an evaluation executed within a transaction boundary.
type Rule interface {
	Name() string
	Evaluate(ctx context.Context, view TransactionView, changes []domain.Change) (domain.Result, error)
}

// RulesEngine orchestrates rule evaluation.
type RulesEngine struct {
	rules []Rule
}

// NewRulesEngine constructs an empty engine instance.
func NewRulesEngine() *RulesEngine {
	return &RulesEngine{}
}

// NewDefaultRulesEngine builds a rules engine with the built-in policy set.
func NewDefaultRulesEngine() *RulesEngine {
	engine := NewRulesEngine()
	engine.Register(NewGroupNameCoverageRule())
	engine.Register(NewRecordLinkageRule())
	engine.Register(NewExcludedReferenceRule())
	return engine
}

// Register appends a rule to the engine.
func (e *RulesEngine) Register(rule Rule) {
	e.rules = append(e.rules, rule)
}

// Evaluate executes all registered rules and aggregates their results.
func (e *RulesEngine) Evaluate(ctx context.Context, view TransactionView, changes []domain.Change) (domain.Result, error) {
	var combined domain.Result
	for _, rule := range e.rules {
		res, err := rule.Evaluate(ctx, view, changes)
		if err != nil {
			return domain.Result{}, err
		}
		combined.Merge(res)
	}
	return combined, nil
}
