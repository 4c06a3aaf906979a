package service

import "sitebuilder/internal/domain"

// ─────────────────────────────────────────────────────────────
// Plan Quota Guard — pure policy over the dynamic block count
// ─────────────────────────────────────────────────────────────

// CanAddDynamic reports whether a page that currently holds
// dynamicCount dynamic blocks may gain one more under the given tier.
// Fixed sections must not be included in dynamicCount. Unlimited tiers
// always allow; unknown tiers deny growth.
func CanAddDynamic(dynamicCount int, tier domain.PlanTier, plans domain.PlanTable) bool {
	limits, ok := plans[tier]
	if !ok {
		return false
	}
	if limits.Unlimited() {
		return true
	}
	return dynamicCount < limits.MaxDynamicBlocks
}

// AtLimit reports whether the tier's dynamic-block ceiling is reached.
func AtLimit(dynamicCount int, tier domain.PlanTier, plans domain.PlanTable) bool {
	return !CanAddDynamic(dynamicCount, tier, plans)
}
