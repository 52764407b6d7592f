package pricing

import (
	"fmt"
	"strings"

	"github.com/VSydorenko/simplyCMS-core-sub001/internal/domain"
)

// Forest is an assembled discount configuration ready for evaluation.
type Forest struct {
	Roots    []domain.DiscountGroup
	Warnings []domain.EvaluationWarning
}

// BuildForest assembles flat storage rows into a group forest. Groups are indexed by
// id and linked through a parent to children adjacency before any recursion happens.
// Rows whose parent, group or discount is missing are dropped with a warning, as is
// every group and discount below an orphaned group. Groups that can only be reached
// through a parent loop make the whole snapshot invalid.
func BuildForest(rows domain.DiscountRows) (Forest, error) {
	forest := Forest{
		Roots:    make([]domain.DiscountGroup, 0),
		Warnings: make([]domain.EvaluationWarning, 0),
	}
	orphan := func(groupID, discountID, format string, args ...any) {
		forest.Warnings = append(forest.Warnings, domain.EvaluationWarning{
			Code:       domain.WarningOrphanRow,
			GroupID:    groupID,
			DiscountID: discountID,
			Message:    fmt.Sprintf(format, args...),
		})
	}

	groupIdx := make(map[string]int, len(rows.Groups))
	for i, row := range rows.Groups {
		if _, dup := groupIdx[row.ID]; dup {
			orphan(row.ID, "", "duplicate group row %q ignored", row.ID)
			continue
		}
		groupIdx[row.ID] = i
	}

	children := make(map[int][]int, len(rows.Groups))
	roots := make([]int, 0)
	for i, row := range rows.Groups {
		if groupIdx[row.ID] != i {
			continue
		}
		if row.ParentID == "" {
			roots = append(roots, i)
			continue
		}
		parent, ok := groupIdx[row.ParentID]
		if !ok {
			orphan(row.ID, "", "group %q references missing parent %q", row.ID, row.ParentID)
			continue
		}
		children[parent] = append(children[parent], i)
	}

	targets := make(map[string][]domain.DiscountTarget)
	for _, row := range rows.Targets {
		targets[row.DiscountID] = append(targets[row.DiscountID], domain.DiscountTarget{
			Type:     domain.TargetType(strings.ToLower(strings.TrimSpace(row.TargetType))),
			TargetID: row.TargetID,
		})
	}
	conditions := make(map[string][]domain.Condition)
	for _, row := range rows.Conditions {
		conditions[row.DiscountID] = append(conditions[row.DiscountID], DecodeCondition(row))
	}

	discountIDs := make(map[string]struct{}, len(rows.Discounts))
	discounts := make(map[int][]domain.Discount)
	for _, row := range rows.Discounts {
		idx, ok := groupIdx[row.GroupID]
		if !ok {
			orphan("", row.ID, "discount %q references missing group %q", row.ID, row.GroupID)
			continue
		}
		discountIDs[row.ID] = struct{}{}
		discounts[idx] = append(discounts[idx], domain.Discount{
			ID:         row.ID,
			GroupID:    row.GroupID,
			Name:       row.Name,
			Type:       domain.DiscountType(strings.ToLower(strings.TrimSpace(row.Type))),
			Value:      row.Value,
			Priority:   row.Priority,
			IsActive:   row.IsActive,
			StartsAt:   row.StartsAt,
			EndsAt:     row.EndsAt,
			Targets:    targets[row.ID],
			Conditions: conditions[row.ID],
		})
	}
	for _, row := range rows.Targets {
		if _, ok := discountIDs[row.DiscountID]; !ok {
			orphan("", row.DiscountID, "target %q references missing discount %q", row.ID, row.DiscountID)
		}
	}
	for _, row := range rows.Conditions {
		if _, ok := discountIDs[row.DiscountID]; !ok {
			orphan("", row.DiscountID, "condition %q references missing discount %q", row.ID, row.DiscountID)
		}
	}

	reached := make([]bool, len(rows.Groups))
	var build func(idx int) domain.DiscountGroup
	build = func(idx int) domain.DiscountGroup {
		reached[idx] = true
		row := rows.Groups[idx]
		node := domain.DiscountGroup{
			ID:          row.ID,
			Name:        row.Name,
			Operator:    domain.GroupOperator(strings.ToLower(strings.TrimSpace(row.Operator))),
			IsActive:    row.IsActive,
			Priority:    row.Priority,
			StartsAt:    row.StartsAt,
			EndsAt:      row.EndsAt,
			PriceTierID: row.PriceTierID,
			Discounts:   discounts[idx],
		}
		for _, child := range children[idx] {
			node.Children = append(node.Children, build(child))
		}
		return node
	}
	for _, idx := range roots {
		forest.Roots = append(forest.Roots, build(idx))
	}

	for i, row := range rows.Groups {
		if reached[i] || groupIdx[row.ID] != i {
			continue
		}
		if onCycle(rows.Groups, groupIdx, i) {
			return Forest{}, fmt.Errorf("%w: group %q", ErrGroupCycle, row.ID)
		}
		if _, ok := groupIdx[row.ParentID]; ok {
			orphan(row.ID, "", "group %q is unreachable: an ancestor references a missing parent", row.ID)
		}
		for _, d := range discounts[i] {
			orphan(row.ID, d.ID, "discount %q belongs to unreachable group %q", d.ID, row.ID)
		}
	}
	return forest, nil
}

// onCycle walks parent links from start and reports whether they loop.
// A walk that ends at a missing parent belongs to an orphaned subtree instead.
func onCycle(groups []domain.DiscountGroupRow, index map[string]int, start int) bool {
	seen := map[int]struct{}{start: {}}
	current := start
	for {
		parentID := groups[current].ParentID
		if parentID == "" {
			return false
		}
		parent, ok := index[parentID]
		if !ok {
			return false
		}
		if _, loop := seen[parent]; loop {
			return true
		}
		seen[parent] = struct{}{}
		current = parent
	}
}

// RootsForTier keeps the roots that apply to priceTierID. Roots without a tier apply
// to every tier; the result never aliases roots.
func RootsForTier(roots []domain.DiscountGroup, priceTierID string) []domain.DiscountGroup {
	scoped := make([]domain.DiscountGroup, 0, len(roots))
	for _, root := range roots {
		if root.PriceTierID != "" && root.PriceTierID != priceTierID {
			continue
		}
		scoped = append(scoped, root)
	}
	return scoped
}
