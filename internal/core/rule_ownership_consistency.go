package core

import (
	"context"
	"fmt"
	"kittycore/pkg/domain"
)

// OwnershipConsistencyRule blocks commits where the ownership index and the
// kitty set disagree: every kitty has exactly one owner record and every
// owner record names an existing kitty.
func OwnershipConsistencyRule() domain.Rule {
	return ownershipConsistencyRule{}
}

type ownershipConsistencyRule struct{}

func (ownershipConsistencyRule) Name() string { return "ownership_consistency" }

func (ownershipConsistencyRule) Evaluate(_ context.Context, view domain.RuleView, _ []domain.Event) (domain.Result, error) {
	res := domain.Result{}
	for _, kitty := range view.ListKitties() {
		if _, ok := view.OwnerOf(kitty.ID); !ok {
			res.Violations = append(res.Violations, domain.Violation{
				Rule:     "ownership_consistency",
				Severity: domain.SeverityBlock,
				Message:  fmt.Sprintf("kitty %d has no owner", kitty.ID),
				Entity:   domain.EntityKitty,
				EntityID: kitty.ID,
			})
		}
	}
	for _, record := range view.ListOwnership() {
		if _, ok := view.FindKitty(record.ID); !ok {
			res.Violations = append(res.Violations, domain.Violation{
				Rule:     "ownership_consistency",
				Severity: domain.SeverityBlock,
				Message:  fmt.Sprintf("owner %d recorded for missing kitty %d", record.Owner, record.ID),
				Entity:   domain.EntityOwnership,
				EntityID: record.ID,
			})
		}
	}
	return res, nil
}
