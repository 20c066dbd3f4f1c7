package tenant

import (
	"fmt"
	"strings"
	"time"

	subvo "github.com/bookwise-inc/bookwise/internal/domain/subscription/valueobjects"
)

// Tenant is a business account. Billing only reads its contact details and
// writes its effective plan and booking quota.
type Tenant struct {
	id           uint
	name         string
	contactEmail string
	planTier     subvo.PlanTier
	quotaLimit   int
	createdAt    time.Time
	updatedAt    time.Time
}

func NewTenant(name, contactEmail string, now time.Time) (*Tenant, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("tenant name is required")
	}
	if !strings.Contains(contactEmail, "@") {
		return nil, fmt.Errorf("invalid contact email %q", contactEmail)
	}
	return &Tenant{
		name:         name,
		contactEmail: contactEmail,
		planTier:     subvo.PlanTierFree,
		quotaLimit:   subvo.PlanTierFree.Quota(),
		createdAt:    now,
		updatedAt:    now,
	}, nil
}

func ReconstructTenant(id uint, name, contactEmail string, tier subvo.PlanTier, quota int, createdAt, updatedAt time.Time) *Tenant {
	return &Tenant{
		id:           id,
		name:         name,
		contactEmail: contactEmail,
		planTier:     tier,
		quotaLimit:   quota,
		createdAt:    createdAt,
		updatedAt:    updatedAt,
	}
}

func (t *Tenant) ID() uint                 { return t.id }
func (t *Tenant) Name() string             { return t.name }
func (t *Tenant) ContactEmail() string     { return t.contactEmail }
func (t *Tenant) PlanTier() subvo.PlanTier { return t.planTier }
func (t *Tenant) QuotaLimit() int          { return t.quotaLimit }
func (t *Tenant) CreatedAt() time.Time     { return t.createdAt }
func (t *Tenant) UpdatedAt() time.Time     { return t.updatedAt }

func (t *Tenant) SetID(id uint) {
	t.id = id
}
