package valueobjects

import (
	"fmt"
	"strings"
)

type PlanTier string

const (
	PlanTierFree       PlanTier = "free"
	PlanTierBasic      PlanTier = "basic"
	PlanTierPremium    PlanTier = "premium"
	PlanTierEnterprise PlanTier = "enterprise"
)

// monthly booking quota per tier
var tierQuota = map[PlanTier]int{
	PlanTierFree:       30,
	PlanTierBasic:      300,
	PlanTierPremium:    1500,
	PlanTierEnterprise: 10000,
}

func ParsePlanTier(value string) (PlanTier, error) {
	t := PlanTier(strings.ToLower(strings.TrimSpace(value)))
	if _, ok := tierQuota[t]; !ok {
		return "", fmt.Errorf("invalid plan tier: %q", value)
	}
	return t, nil
}

func (t PlanTier) String() string {
	return string(t)
}

func (t PlanTier) IsValid() bool {
	_, ok := tierQuota[t]
	return ok
}

func (t PlanTier) IsFree() bool {
	return t == PlanTierFree
}

// Quota returns the booking quota granted by the tier.
func (t PlanTier) Quota() int {
	return tierQuota[t]
}
