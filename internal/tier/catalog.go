package tier

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

// PlanSpec é a entrada de um plano no arquivo de catálogo.
type PlanSpec struct {
	Name        string         `yaml:"name"`
	Description string         `yaml:"description,omitempty"`
	RateLimits  map[string]int `yaml:"rate_limits"`
	Features    []string       `yaml:"features"`
}

type catalogFile struct {
	DefaultPlan string            `yaml:"default_plan"`
	Plans       []PlanSpec        `yaml:"plans"`
	Tenants     map[string]string `yaml:"tenants"`
}

// Assignments resolve tenant -> nome do plano.
// Deve retornar ErrTenantNotFound quando o tenant não tem assinatura.
type Assignments interface {
	PlanFor(ctx context.Context, tenantID string) (string, error)
}

// StaticAssignments é o mapeamento fixo declarado no próprio catálogo.
type StaticAssignments map[string]string

func (s StaticAssignments) PlanFor(_ context.Context, tenantID string) (string, error) {
	if plan, ok := s[tenantID]; ok {
		return plan, nil
	}
	return "", ErrTenantNotFound
}

// Catalog guarda os planos em memória e resolve o plano de cada tenant via
// Assignments. Tenant sem assinatura recebe o default_plan.
type Catalog struct {
	defaultPlan string
	plans       map[string]Profile
	assignments Assignments
}

func LoadCatalog(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read tier catalog: %w", err)
	}
	return ParseCatalog(data)
}

func ParseCatalog(data []byte) (*Catalog, error) {
	var f catalogFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse tier catalog: %w", err)
	}
	if err := validateCatalog(f); err != nil {
		return nil, fmt.Errorf("invalid tier catalog: %w", err)
	}

	c := &Catalog{
		defaultPlan: f.DefaultPlan,
		plans:       make(map[string]Profile, len(f.Plans)),
		assignments: StaticAssignments(f.Tenants),
	}
	for _, p := range f.Plans {
		c.plans[p.Name] = Profile{Plan: p.Name, RateLimits: p.RateLimits, Features: p.Features}
	}
	return c, nil
}

// validateCatalog exige nomes únicos, limite "default" não negativo em todo
// plano e que default_plan e assinaturas apontem para planos existentes.
func validateCatalog(f catalogFile) error {
	if len(f.Plans) == 0 {
		return errors.New("no plans defined")
	}

	seen := make(map[string]bool, len(f.Plans))
	for i, p := range f.Plans {
		if p.Name == "" {
			return fmt.Errorf("plan at index %d has empty name", i)
		}
		if seen[p.Name] {
			return fmt.Errorf("duplicate plan name %q", p.Name)
		}
		seen[p.Name] = true

		if _, ok := p.RateLimits[DefaultCategory]; !ok {
			return fmt.Errorf("plan %q has no %q rate limit", p.Name, DefaultCategory)
		}
		for cat, n := range p.RateLimits {
			if n < 0 {
				return fmt.Errorf("plan %q has negative limit for %q", p.Name, cat)
			}
		}
	}

	if f.DefaultPlan != "" && !seen[f.DefaultPlan] {
		return fmt.Errorf("default_plan %q is not defined", f.DefaultPlan)
	}
	for tenantID, plan := range f.Tenants {
		if !seen[plan] {
			return fmt.Errorf("tenant %q assigned to unknown plan %q", tenantID, plan)
		}
	}
	return nil
}

// WithAssignments devolve uma cópia do catálogo que resolve assinaturas pela
// fonte informada (ex.: Postgres) em vez do mapa do arquivo.
func (c *Catalog) WithAssignments(a Assignments) *Catalog {
	cp := *c
	cp.assignments = a
	return &cp
}

func (c *Catalog) Profile(ctx context.Context, tenantID string) (Profile, error) {
	plan, err := c.assignments.PlanFor(ctx, tenantID)
	switch {
	case errors.Is(err, ErrTenantNotFound):
		if c.defaultPlan == "" {
			return Profile{}, fmt.Errorf("tenant %q: %w", tenantID, ErrTenantNotFound)
		}
		plan = c.defaultPlan
	case err != nil:
		return Profile{}, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}

	p, ok := c.plans[plan]
	if !ok {
		return Profile{}, fmt.Errorf("%w: tenant %q assigned to unknown plan %q", ErrUnavailable, tenantID, plan)
	}
	return p, nil
}

func (c *Catalog) Plans() []string {
	names := make([]string, 0, len(c.plans))
	for name := range c.plans {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (c *Catalog) DefaultPlan() string { return c.defaultPlan }
