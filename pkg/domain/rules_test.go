package domain

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func TestResultMergeAndBlocking(t *testing.T) {
	var result Result
	result.Merge(Result{Violations: []Violation{{Rule: "warn", Severity: SeverityWarn}}})
	if result.HasBlocking() {
		t.Fatalf("expected no blocking violations")
	}
	result.Merge(Result{Violations: []Violation{{Rule: "block", Severity: SeverityBlock, Message: "boom"}}})
	if !result.HasBlocking() {
		t.Fatalf("expected blocking violation")
	}
	err := RuleViolationError{Result: result}
	if !strings.Contains(err.Error(), "block: boom") {
		t.Fatalf("expected blocking rule in error string, got %q", err.Error())
	}
}

func TestResultMergeEmptyInput(t *testing.T) {
	original := Result{Violations: []Violation{{Rule: "existing", Severity: SeverityWarn}}}
	original.Merge(Result{})
	if len(original.Violations) != 1 || original.Violations[0].Rule != "existing" {
		t.Fatalf("expected original violations to remain, got %+v", original.Violations)
	}
}

func TestRuleViolationErrorWithoutBlocking(t *testing.T) {
	err := RuleViolationError{}
	if err.Error() != "transaction blocked by rules" {
		t.Fatalf("unexpected message %q", err.Error())
	}
}

func TestRulesEngineEvaluate(t *testing.T) {
	engine := NewRulesEngine()
	engine.Register(staticRule{name: "warn"})
	engine.Register(staticRule{name: "second"})
	res, err := engine.Evaluate(context.Background(), emptyView{}, nil)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if len(res.Violations) != 2 {
		t.Fatalf("expected two violations, got %d", len(res.Violations))
	}
	if got := engine.Rules(); len(got) != 2 || got[0] != "warn" || got[1] != "second" {
		t.Fatalf("unexpected rule names %v", got)
	}
}

func TestRulesEngineEvaluateWrapsError(t *testing.T) {
	sentinel := errors.New("broken")
	engine := NewRulesEngine()
	engine.Register(staticRule{name: "failing", err: sentinel})
	_, err := engine.Evaluate(context.Background(), emptyView{}, nil)
	if !errors.Is(err, sentinel) {
		t.Fatalf("expected wrapped sentinel, got %v", err)
	}
	if !strings.Contains(err.Error(), "rule failing") {
		t.Fatalf("expected rule name in error, got %v", err)
	}
}

type staticRule struct {
	name string
	err  error
}

func (r staticRule) Name() string { return r.name }

func (r staticRule) Evaluate(context.Context, RuleView, []Event) (Result, error) {
	if r.err != nil {
		return Result{}, r.err
	}
	return Result{Violations: []Violation{{Rule: r.name, Severity: SeverityWarn}}}, nil
}

type emptyView struct{}

func (emptyView) NextKittyID() EntityID              { return 0 }
func (emptyView) ListKitties() []Kitty               { return nil }
func (emptyView) ListOwnership() []Ownership         { return nil }
func (emptyView) ListParentage() []Parentage         { return nil }
func (emptyView) FindKitty(EntityID) (Kitty, bool)   { return Kitty{}, false }
func (emptyView) OwnerOf(EntityID) (AccountID, bool) { return 0, false }
func (emptyView) ParentsOf(EntityID) (Parents, bool) { return Parents{}, false }
