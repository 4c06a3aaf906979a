package registry

import (
	"fmt"
	"os"
	"sync"

	"gopkg.in/yaml.v3"

	"sitebuilder/internal/domain"
)

// ─────────────────────────────────────────────────────────────
// Section Catalog — static rules for every section type
// ─────────────────────────────────────────────────────────────
//
// The composer treats section definitions and the plan quota table as
// immutable configuration data. Defaults are compiled in; deployments
// may override both with a YAML file (see LoadFile and Watch).

// Registry holds the section definitions, the canonical section order,
// and the plan quota table. Safe for concurrent readers.
type Registry struct {
	mu    sync.RWMutex
	defs  map[domain.SectionKey]domain.SectionDef
	order []domain.SectionKey
	plans domain.PlanTable
}

// catalogFile is the YAML override shape.
type catalogFile struct {
	Sections []domain.SectionDef                  `yaml:"sections"`
	Plans    map[domain.PlanTier]domain.PlanLimits `yaml:"plans"`
}

// Default returns the built-in catalog: menu/hero/footer are fixed, menu
// is head-pinned and footer tail-pinned, everything else is dynamic.
func Default() *Registry {
	r := &Registry{}
	r.install([]domain.SectionDef{
		{Key: domain.SectionMenu, Fixed: true, Removable: false, Duplicable: false, Pinned: domain.PinnedHead},
		{Key: domain.SectionHero, Fixed: true, Removable: false, Duplicable: false},
		{Key: domain.SectionAbout, Removable: true, Duplicable: true},
		{Key: domain.SectionFeatures, Removable: true, Duplicable: true},
		{Key: domain.SectionGallery, Removable: true, Duplicable: true},
		{Key: domain.SectionPricing, Removable: true, Duplicable: false},
		{Key: domain.SectionTestimonials, Removable: true, Duplicable: true},
		{Key: domain.SectionFAQ, Removable: true, Duplicable: true},
		{Key: domain.SectionContact, Removable: false, Duplicable: false},
		{Key: domain.SectionFooter, Fixed: true, Removable: false, Duplicable: false, Pinned: domain.PinnedTail},
	}, domain.PlanTable{
		domain.PlanFree:      {MaxDynamicBlocks: 2},
		domain.PlanStarter:   {MaxDynamicBlocks: 5},
		domain.PlanPro:       {MaxDynamicBlocks: 12},
		domain.PlanUnlimited: {MaxDynamicBlocks: -1},
	})
	return r
}

func (r *Registry) install(defs []domain.SectionDef, plans domain.PlanTable) {
	m := make(map[domain.SectionKey]domain.SectionDef, len(defs))
	order := make([]domain.SectionKey, 0, len(defs))
	for _, d := range defs {
		m[d.Key] = d
		order = append(order, d.Key)
	}
	r.mu.Lock()
	r.defs = m
	r.order = order
	r.plans = plans
	r.mu.Unlock()
}

// LoadFile replaces the catalog with the contents of a YAML override
// file. The current catalog stays in place when the file is invalid.
func (r *Registry) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read catalog: %w", err)
	}
	var f catalogFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("parse catalog: %w", err)
	}
	if err := validate(f); err != nil {
		return fmt.Errorf("catalog %s: %w", path, err)
	}
	plans := f.Plans
	if len(plans) == 0 {
		r.mu.RLock()
		plans = r.plans
		r.mu.RUnlock()
	}
	r.install(f.Sections, plans)
	return nil
}

func validate(f catalogFile) error {
	if len(f.Sections) == 0 {
		return fmt.Errorf("no sections defined")
	}
	seen := make(map[domain.SectionKey]bool, len(f.Sections))
	for _, d := range f.Sections {
		if d.Key == "" {
			return fmt.Errorf("section with empty key")
		}
		if seen[d.Key] {
			return fmt.Errorf("duplicate section %q", d.Key)
		}
		seen[d.Key] = true
		switch d.Pinned {
		case domain.PinnedNone, domain.PinnedHead, domain.PinnedTail:
		default:
			return fmt.Errorf("section %q: unknown pinned slot %q", d.Key, d.Pinned)
		}
		if d.Pinned != domain.PinnedNone && !d.Fixed {
			return fmt.Errorf("section %q: pinned sections must be fixed", d.Key)
		}
	}
	for tier := range f.Plans {
		if tier == "" {
			return fmt.Errorf("plan with empty tier")
		}
	}
	return nil
}

// Def returns the definition for a section key.
func (r *Registry) Def(key domain.SectionKey) (domain.SectionDef, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.defs[key]
	return d, ok
}

// IsFixed reports whether the section is structurally fixed. Unknown
// sections are treated as dynamic so they still count against quota.
func (r *Registry) IsFixed(key domain.SectionKey) bool {
	d, ok := r.Def(key)
	return ok && d.Fixed
}

// CanonicalOrder returns the default ordering of all known sections.
func (r *Registry) CanonicalOrder() []domain.SectionKey {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.SectionKey, len(r.order))
	copy(out, r.order)
	return out
}

// Limits returns the quota limits for a plan tier.
func (r *Registry) Limits(tier domain.PlanTier) (domain.PlanLimits, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	l, ok := r.plans[tier]
	return l, ok
}

// Plans returns a copy of the plan quota table.
func (r *Registry) Plans() domain.PlanTable {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(domain.PlanTable, len(r.plans))
	for k, v := range r.plans {
		out[k] = v
	}
	return out
}
