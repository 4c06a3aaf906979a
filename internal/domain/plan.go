package domain

// PlanTier is the billing tier an editing session operates under.
type PlanTier string

const (
	PlanFree      PlanTier = "free"
	PlanStarter   PlanTier = "starter"
	PlanPro       PlanTier = "pro"
	PlanUnlimited PlanTier = "unlimited"
)

// PlanLimits caps structural mutations for a tier. MaxDynamicBlocks < 0
// means no ceiling. Fixed sections never count against the limit.
type PlanLimits struct {
	MaxDynamicBlocks int `json:"maxDynamicBlocks" yaml:"max_dynamic_blocks"`
}

// Unlimited reports whether the tier has no dynamic-block ceiling.
func (l PlanLimits) Unlimited() bool {
	return l.MaxDynamicBlocks < 0
}

// PlanTable maps each tier to its limits. Treated as immutable
// configuration data, supplied by the registry.
type PlanTable map[PlanTier]PlanLimits
