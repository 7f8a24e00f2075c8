package domain

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Tenant is a customer organization. MFARequired is the tenant's own policy; it is independent of
// whether any individual user has enrolled.
type Tenant struct {
	ID          string
	Name        string
	MFARequired bool
	Plan        Plan
	Features    Features
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Validate validates the tenant for persistence. Returns an error describing the first validation failure.
func (t *Tenant) Validate() error {
	if t.Name == "" {
		return errors.New("name is required")
	}
	if t.ID == GlobalScopeID {
		return fmt.Errorf("tenant id %q is reserved", GlobalScopeID)
	}
	if t.Plan == "" {
		t.Plan = PlanFree
	}
	if !t.Plan.Valid() {
		return fmt.Errorf("invalid plan %q", t.Plan)
	}
	return nil
}

// GlobalScopeID is reserved for superadmin (control-plane) assertions and can never name a tenant.
const GlobalScopeID = "GLOBAL"

// Plan is the closed set of billing plans.
type Plan string

const (
	PlanFree       Plan = "free"
	PlanPro        Plan = "pro"
	PlanEnterprise Plan = "enterprise"
)

func (p Plan) Valid() bool {
	switch p {
	case PlanFree, PlanPro, PlanEnterprise:
		return true
	}
	return false
}

// Features is the closed set of per-tenant feature flags.
type Features struct {
	Tickets     bool `json:"tickets"`
	Monitoring  bool `json:"monitoring"`
	Evidence    bool `json:"evidence"`
	SiteBuilder bool `json:"site_builder"`
}

// featureOverrides is the stored shape; absent keys keep the plan default.
type featureOverrides struct {
	Tickets     *bool `json:"tickets,omitempty"`
	Monitoring  *bool `json:"monitoring,omitempty"`
	Evidence    *bool `json:"evidence,omitempty"`
	SiteBuilder *bool `json:"site_builder,omitempty"`
}

// DefaultFeatures returns the features a plan includes.
func DefaultFeatures(p Plan) Features {
	switch p {
	case PlanEnterprise:
		return Features{Tickets: true, Monitoring: true, Evidence: true, SiteBuilder: true}
	case PlanPro:
		return Features{Tickets: true, Monitoring: true, Evidence: true}
	default:
		return Features{Tickets: true}
	}
}

// ParseFeatures decodes stored feature overrides on top of the plan defaults.
// Unknown keys are rejected so a typo never silently disables or enables a feature.
func ParseFeatures(p Plan, raw []byte) (Features, error) {
	f := DefaultFeatures(p)
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || string(raw) == "null" {
		return f, nil
	}
	var o featureOverrides
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&o); err != nil {
		return Features{}, fmt.Errorf("invalid tenant features: %w", err)
	}
	merge(&f.Tickets, o.Tickets)
	merge(&f.Monitoring, o.Monitoring)
	merge(&f.Evidence, o.Evidence)
	merge(&f.SiteBuilder, o.SiteBuilder)
	return f, nil
}

// MarshalOverrides encodes f as the overrides relative to the plan defaults.
func MarshalOverrides(p Plan, f Features) ([]byte, error) {
	d := DefaultFeatures(p)
	var o featureOverrides
	if f.Tickets != d.Tickets {
		o.Tickets = ptr(f.Tickets)
	}
	if f.Monitoring != d.Monitoring {
		o.Monitoring = ptr(f.Monitoring)
	}
	if f.Evidence != d.Evidence {
		o.Evidence = ptr(f.Evidence)
	}
	if f.SiteBuilder != d.SiteBuilder {
		o.SiteBuilder = ptr(f.SiteBuilder)
	}
	return json.Marshal(o)
}

func merge(dst *bool, v *bool) {
	if v != nil {
		*dst = *v
	}
}

func ptr[T any](v T) *T { return &v }
