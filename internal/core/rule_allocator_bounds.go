package core

import (
	"context"
	"fmt"
	"kittycore/pkg/domain"
)

// AllocatorBoundsRule blocks commits containing a kitty whose id was not yet
// issued by the allocator.
func AllocatorBoundsRule() domain.Rule {
	return allocatorBoundsRule{}
}

type allocatorBoundsRule struct{}

func (allocatorBoundsRule) Name() string { return "allocator_bounds" }

func (allocatorBoundsRule) Evaluate(_ context.Context, view domain.RuleView, _ []domain.Event) (domain.Result, error) {
	res := domain.Result{}
	next := view.NextKittyID()
	for _, kitty := range view.ListKitties() {
		if kitty.ID < next {
			continue
		}
		res.Violations = append(res.Violations, domain.Violation{
			Rule:     "allocator_bounds",
			Severity: domain.SeverityBlock,
			Message:  fmt.Sprintf("kitty %d not below allocator counter %d", kitty.ID, next),
			Entity:   domain.EntityAllocator,
			EntityID: kitty.ID,
		})
	}
	return res, nil
}
