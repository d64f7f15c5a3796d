package core

import (
	"context"
	"fmt"
	"kittycore/internal/dna"
	"kittycore/pkg/domain"
)

// LineageIntegrityRule enforces parentage constraints: both parents exist,
// differ and predate the child. Children bred in the current transaction must
// carry only bits present in one of their parents.
func LineageIntegrityRule() domain.Rule {
	return lineageIntegrityRule{}
}

type lineageIntegrityRule struct{}

func (lineageIntegrityRule) Name() string { return "lineage_integrity" }

func (lineageIntegrityRule) Evaluate(_ context.Context, view domain.RuleView, events []domain.Event) (domain.Result, error) {
	res := domain.Result{}

	for _, record := range view.ListParentage() {
		child, parents := record.Child, record.Parents
		if _, ok := view.FindKitty(child); !ok {
			res.Violations = append(res.Violations, lineageViolation(child, fmt.Sprintf("parentage recorded for missing kitty %d", child)))
			continue
		}
		if parents.A == parents.B {
			res.Violations = append(res.Violations, lineageViolation(child, fmt.Sprintf("kitty %d lists parent %d twice", child, parents.A)))
		}
		for _, parentID := range []domain.EntityID{parents.A, parents.B} {
			if _, ok := view.FindKitty(parentID); !ok {
				res.Violations = append(res.Violations, lineageViolation(child, fmt.Sprintf("kitty %d references missing parent %d", child, parentID)))
				continue
			}
			if parentID >= child {
				res.Violations = append(res.Violations, lineageViolation(child, fmt.Sprintf("kitty %d parent %d does not predate it", child, parentID)))
			}
		}
	}

	for _, event := range events {
		bred, ok := event.(domain.KittyBred)
		if !ok {
			continue
		}
		a, okA := view.FindKitty(bred.ParentA)
		b, okB := view.FindKitty(bred.ParentB)
		if !okA || !okB {
			continue
		}
		if !dna.Inherits(bred.DNA, a.DNA, b.DNA) {
			res.Violations = append(res.Violations, lineageViolation(bred.ChildID, fmt.Sprintf("kitty %d dna is not inherited from %d and %d", bred.ChildID, bred.ParentA, bred.ParentB)))
		}
	}

	return res, nil
}

func lineageViolation(id domain.EntityID, message string) domain.Violation {
	return domain.Violation{
		Rule:     "lineage_integrity",
		Severity: domain.SeverityBlock,
		Message:  message,
		Entity:   domain.EntityParentage,
		EntityID: id,
	}
}
