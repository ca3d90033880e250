// Package store provides an in-memory budget.TxStore for tests and demos.
package store

import (
	"context"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/warp/paa-engine/budget"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

// Memory implements budget.TxStore, budget.CenterDirectory and
// budget.TemplateStore. WithTx holds the lock for the whole callback and
// restores a snapshot if the callback fails.
type Memory struct {
	mu    sync.Mutex
	state *state
	now   func() time.Time
}

type templateKey struct {
	CenterID    string
	KeyActivity string
	MeansType   string
}

type state struct {
	budgets   map[string]budget.Budget
	revenue   map[string][]budget.RevenueSource
	lines     map[string][]budget.ExpenseLine
	centers   map[string]budget.Center
	templates map[templateKey]budget.ActivityTemplate
}

func newState() *state {
	return &state{
		budgets:   make(map[string]budget.Budget),
		revenue:   make(map[string][]budget.RevenueSource),
		lines:     make(map[string][]budget.ExpenseLine),
		centers:   make(map[string]budget.Center),
		templates: make(map[templateKey]budget.ActivityTemplate),
	}
}

func (s *state) clone() *state {
	c := newState()
	for k, v := range s.budgets {
		c.budgets[k] = v
	}
	for k, v := range s.revenue {
		c.revenue[k] = append([]budget.RevenueSource(nil), v...)
	}
	for k, v := range s.lines {
		c.lines[k] = append([]budget.ExpenseLine(nil), v...)
	}
	for k, v := range s.centers {
		c.centers[k] = v
	}
	for k, v := range s.templates {
		c.templates[k] = v
	}
	return c
}

func NewMemory() *Memory {
	return &Memory{state: newState(), now: time.Now}
}

// WithTx runs fn against a view of the store. Nothing fn wrote survives an error.
func (m *Memory) WithTx(_ context.Context, fn func(budget.Store) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	snapshot := m.state.clone()
	if err := fn(&view{s: m.state}); err != nil {
		m.state = snapshot
		return err
	}
	return nil
}

func (m *Memory) locked(fn func(v *view) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return fn(&view{s: m.state})
}

func (m *Memory) CreateBudget(ctx context.Context, b *budget.Budget) error {
	return m.locked(func(v *view) error { return v.CreateBudget(ctx, b) })
}

func (m *Memory) GetBudget(ctx context.Context, id string) (*budget.Budget, error) {
	var out *budget.Budget
	err := m.locked(func(v *view) error {
		var err error
		out, err = v.GetBudget(ctx, id)
		return err
	})
	return out, err
}

func (m *Memory) UpdateBudget(ctx context.Context, b *budget.Budget) error {
	return m.locked(func(v *view) error { return v.UpdateBudget(ctx, b) })
}

func (m *Memory) DeleteBudget(ctx context.Context, id string) error {
	return m.locked(func(v *view) error { return v.DeleteBudget(ctx, id) })
}

func (m *Memory) ListBudgets(ctx context.Context, filter budget.BudgetFilter) ([]budget.Budget, error) {
	var out []budget.Budget
	err := m.locked(func(v *view) error {
		var err error
		out, err = v.ListBudgets(ctx, filter)
		return err
	})
	return out, err
}

func (m *Memory) MaxCodeSequence(ctx context.Context, prefix string) (int, error) {
	var n int
	err := m.locked(func(v *view) error {
		var err error
		n, err = v.MaxCodeSequence(ctx, prefix)
		return err
	})
	return n, err
}

func (m *Memory) ReplaceRevenue(ctx context.Context, budgetID string, sources []budget.RevenueSource) error {
	return m.locked(func(v *view) error { return v.ReplaceRevenue(ctx, budgetID, sources) })
}

func (m *Memory) ReplaceExpenseLines(ctx context.Context, budgetID string, lines []budget.ExpenseLine) error {
	return m.locked(func(v *view) error { return v.ReplaceExpenseLines(ctx, budgetID, lines) })
}

func (m *Memory) AddExpenseLine(ctx context.Context, line budget.ExpenseLine) error {
	return m.locked(func(v *view) error { return v.AddExpenseLine(ctx, line) })
}

func (m *Memory) DeleteExpenseLine(ctx context.Context, budgetID, lineID string) error {
	return m.locked(func(v *view) error { return v.DeleteExpenseLine(ctx, budgetID, lineID) })
}

// =============================================================================
// CENTERS
// =============================================================================

func (m *Memory) SaveCenter(_ context.Context, c budget.Center) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = m.now().UTC()
	}
	m.state.centers[c.ID] = c
	return nil
}

func (m *Memory) GetCenter(_ context.Context, id string) (*budget.Center, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.state.centers[id]
	if !ok {
		return nil, nil
	}
	return &c, nil
}

// =============================================================================
// ACTIVITY TEMPLATES
// =============================================================================

func (m *Memory) RecordUsage(_ context.Context, centerID string, line budget.ExpenseLine) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	k := templateKey{CenterID: centerID, KeyActivity: line.KeyActivity, MeansType: line.MeansType}
	t, ok := m.state.templates[k]
	if !ok {
		t = budget.ActivityTemplate{
			CenterID:          centerID,
			KeyActivity:       line.KeyActivity,
			MeansType:         line.MeansType,
			NomenclatureCode:  line.NomenclatureCode,
			NomenclatureLabel: line.NomenclatureLabel,
			FinancingCategory: line.FinancingCategory,
		}
	}
	t.UsageCount++
	t.LastUsedAt = m.now().UTC()
	m.state.templates[k] = t
	return nil
}

func (m *Memory) Suggest(_ context.Context, centerID, query string, limit int) ([]budget.ActivityTemplate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	q := strings.ToLower(query)
	var out []budget.ActivityTemplate
	for k, t := range m.state.templates {
		if k.CenterID != centerID {
			continue
		}
		if q != "" &&
			!strings.Contains(strings.ToLower(t.KeyActivity), q) &&
			!strings.Contains(strings.ToLower(t.MeansType), q) {
			continue
		}
		out = append(out, t)
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].UsageCount != out[j].UsageCount {
			return out[i].UsageCount > out[j].UsageCount
		}
		if out[i].KeyActivity != out[j].KeyActivity {
			return out[i].KeyActivity < out[j].KeyActivity
		}
		return out[i].MeansType < out[j].MeansType
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// =============================================================================
// VIEW - budget.Store over unlocked state
// =============================================================================

type view struct {
	s *state
}

func (v *view) CreateBudget(_ context.Context, b *budget.Budget) error {
	for _, existing := range v.s.budgets {
		if existing.Code == b.Code {
			return budget.ErrDuplicateCode
		}
	}
	header := *b
	header.Revenue, header.Lines = nil, nil
	header.Version = 1
	v.s.budgets[b.ID] = header
	b.Version = 1
	return nil
}

func (v *view) GetBudget(_ context.Context, id string) (*budget.Budget, error) {
	header, ok := v.s.budgets[id]
	if !ok {
		return nil, nil
	}
	b := header
	b.Revenue = append([]budget.RevenueSource{}, v.s.revenue[id]...)
	b.Lines = append([]budget.ExpenseLine{}, v.s.lines[id]...)
	return &b, nil
}

func (v *view) UpdateBudget(_ context.Context, b *budget.Budget) error {
	stored, ok := v.s.budgets[b.ID]
	if !ok || stored.Version != b.Version {
		return budget.ErrConcurrentModification
	}
	b.Version++
	header := *b
	header.Revenue, header.Lines = nil, nil
	v.s.budgets[b.ID] = header
	return nil
}

func (v *view) DeleteBudget(_ context.Context, id string) error {
	delete(v.s.budgets, id)
	delete(v.s.revenue, id)
	delete(v.s.lines, id)
	return nil
}

func (v *view) ListBudgets(_ context.Context, f budget.BudgetFilter) ([]budget.Budget, error) {
	var out []budget.Budget
	for _, b := range v.s.budgets {
		if f.CenterID != "" && b.CenterID != f.CenterID {
			continue
		}
		if f.Status != "" && b.Status != f.Status {
			continue
		}
		if f.FiscalYear != 0 && b.FiscalYear != f.FiscalYear {
			continue
		}
		if f.CreatedBy != "" && b.CreatedBy != f.CreatedBy {
			continue
		}
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].Code > out[j].Code
	})
	return out, nil
}

func (v *view) MaxCodeSequence(_ context.Context, prefix string) (int, error) {
	highest := 0
	for _, b := range v.s.budgets {
		suffix, ok := strings.CutPrefix(b.Code, prefix)
		if !ok {
			continue
		}
		if n, err := strconv.Atoi(suffix); err == nil && n > highest {
			highest = n
		}
	}
	return highest, nil
}

func (v *view) ReplaceRevenue(_ context.Context, budgetID string, sources []budget.RevenueSource) error {
	v.s.revenue[budgetID] = append([]budget.RevenueSource{}, sources...)
	return nil
}

func (v *view) ReplaceExpenseLines(_ context.Context, budgetID string, lines []budget.ExpenseLine) error {
	v.s.lines[budgetID] = append([]budget.ExpenseLine{}, lines...)
	return nil
}

func (v *view) AddExpenseLine(_ context.Context, line budget.ExpenseLine) error {
	v.s.lines[line.BudgetID] = append(v.s.lines[line.BudgetID], line)
	return nil
}

func (v *view) DeleteExpenseLine(_ context.Context, budgetID, lineID string) error {
	lines := v.s.lines[budgetID]
	for i, l := range lines {
		if l.ID == lineID {
			v.s.lines[budgetID] = append(lines[:i:i], lines[i+1:]...)
			return nil
		}
	}
	return nil
}

var (
	_ budget.TxStore         = (*Memory)(nil)
	_ budget.CenterDirectory = (*Memory)(nil)
	_ budget.TemplateStore   = (*Memory)(nil)
)
