package store

import (
	"fmt"
	"os"
	"sort"
	"sync"

	"upets/platform-service/internal/models"

	"gopkg.in/yaml.v3"
)

var defaultPlans = []models.Plan{
	{Type: models.QRTypeBasic, MonthlyPrice: 1500.00, Description: "Basic tag with public contact page"},
	{Type: models.QRTypePremium, MonthlyPrice: 3000.00, Description: "Premium tag with scan alerts and medical notes"},
	{Type: models.QRTypeInstitutional, MonthlyPrice: 5000.00, Description: "Institutional tag for shelters and clinics"},
}

// PlanTable maps plan types to their monthly price.
type PlanTable struct {
	mu    sync.RWMutex
	plans map[string]models.Plan
}

func DefaultPlans() *PlanTable {
	table := &PlanTable{plans: make(map[string]models.Plan, len(defaultPlans))}
	for _, plan := range defaultPlans {
		table.plans[plan.Type] = plan
	}
	return table
}

type planFile struct {
	Plans []models.Plan `yaml:"plans"`
}

// LoadPlans reads a YAML plan file and overlays it on the defaults.
// An empty path returns the defaults.
func LoadPlans(path string) (*PlanTable, error) {
	table := DefaultPlans()
	if path == "" {
		return table, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read plans file: %w", err)
	}
	var file planFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse plans file: %w", err)
	}
	for _, plan := range file.Plans {
		if !models.ValidQRType(plan.Type) {
			return nil, invalid("plans", "unknown plan type %q", plan.Type)
		}
		if plan.MonthlyPrice < 0 {
			return nil, invalid("plans", "negative price for %q", plan.Type)
		}
		table.plans[plan.Type] = plan
	}
	return table, nil
}

func (t *PlanTable) Price(planType string) (float64, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	plan, ok := t.plans[planType]
	return plan.MonthlyPrice, ok
}

func (t *PlanTable) List() []models.Plan {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]models.Plan, 0, len(t.plans))
	for _, plan := range t.plans {
		out = append(out, plan)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].MonthlyPrice < out[j].MonthlyPrice
	})
	return out
}
