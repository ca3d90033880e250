/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:

	Provides pre-built scenarios that populate the database with realistic
	data for demos and frontend work. Every budget goes through the engine,
	so codes, totals, coverage and templates are produced exactly as in
	production.

AVAILABLE SCENARIOS:

	health-district:  Three centers, no budgets
	covered-draft:    One center with a fully covered DRAFT budget
	review-queue:     Budgets in every reachable status
	template-history: Several budgets whose lines feed activity suggestions

DEMO ACTORS:

	owner-demo     CENTER_OWNER
	reviewer-demo  REVIEWER

USAGE VIA API:

	POST /api/scenarios/load
	{"scenario_id": "review-queue"}

NOTE:

	Scenarios reset the database. The routes are only mounted when the
	server runs with -scenarios.

SEE ALSO:
  - handlers.go: Budget handlers
  - budget/engine.go: Lifecycle operations used by the loaders
*/
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/warp/paa-engine/budget"
)

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

var scenarios = []ScenarioDTO{
	{
		ID:          "health-district",
		Name:        "Health District",
		Description: "Three registered centers and no budgets yet",
	},
	{
		ID:          "covered-draft",
		Name:        "Covered Draft",
		Description: "One DRAFT budget whose PBF and state lines are fully covered",
	},
	{
		ID:          "review-queue",
		Name:        "Review Queue",
		Description: "Budgets in DRAFT, PENDING_VALIDATION, VALIDATED and REJECTED",
	},
	{
		ID:          "template-history",
		Name:        "Template History",
		Description: "Repeated activities so suggestions have usage counts",
	},
}

var (
	demoOwner    = budget.Actor{ID: "owner-demo", Roles: []budget.Role{budget.RoleCenterOwner}}
	demoReviewer = budget.Actor{ID: "reviewer-demo", Roles: []budget.Role{budget.RoleReviewer}}

	demoCenters = []budget.Center{
		{ID: "center-kalinzi", Code: "CS-041", Name: "Centre de Santé Kalinzi"},
		{ID: "center-mubuga", Code: "CS-107", Name: "Centre de Santé Mubuga"},
		{ID: "center-gitega", Code: "HD-002", Name: "Hôpital de District Gitega"},
	}
)

// ListScenarios returns available scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, scenarios)
}

// GetCurrentScenario returns the currently loaded scenario, if any.
func (h *Handler) GetCurrentScenario(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	current := h.currentScenario
	h.mu.Unlock()

	for _, s := range scenarios {
		if s.ID == current {
			writeJSON(w, http.StatusOK, s)
			return
		}
	}
	writeJSON(w, http.StatusOK, nil)
}

// LoadScenario resets the database and loads a predefined scenario.
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if !decodeBody(w, r, &req) {
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if err := h.loadScenario(r.Context(), req.ScenarioID); err != nil {
		if errors.Is(err, errUnknownScenario) {
			writeError(w, http.StatusBadRequest, "Unknown scenario", nil)
			return
		}
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to load scenario: %v", err), err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "loaded", "scenario": req.ScenarioID})
}

var errUnknownScenario = errors.New("unknown scenario")

// loadScenario must be called with h.mu held.
func (h *Handler) loadScenario(ctx context.Context, id string) error {
	var load func(context.Context) error
	switch id {
	case "health-district":
		load = h.loadHealthDistrictScenario
	case "covered-draft":
		load = h.loadCoveredDraftScenario
	case "review-queue":
		load = h.loadReviewQueueScenario
	case "template-history":
		load = h.loadTemplateHistoryScenario
	default:
		return errUnknownScenario
	}

	if err := h.Store.Reset(ctx); err != nil {
		return fmt.Errorf("reset database: %w", err)
	}
	h.currentScenario = ""

	if err := load(ctx); err != nil {
		return err
	}
	h.currentScenario = id
	return nil
}

// =============================================================================
// SCENARIO LOADERS
// =============================================================================

func (h *Handler) loadHealthDistrictScenario(ctx context.Context) error {
	for _, c := range demoCenters {
		if err := h.Store.SaveCenter(ctx, c); err != nil {
			return fmt.Errorf("save center %s: %w", c.ID, err)
		}
	}
	return nil
}

func (h *Handler) loadCoveredDraftScenario(ctx context.Context) error {
	if err := h.loadHealthDistrictScenario(ctx); err != nil {
		return err
	}
	_, err := h.createDemoBudget(ctx, "center-kalinzi", "Plan d'action annuel 2025", 2025)
	return err
}

func (h *Handler) loadReviewQueueScenario(ctx context.Context) error {
	if err := h.loadHealthDistrictScenario(ctx); err != nil {
		return err
	}

	// DRAFT
	if _, err := h.createDemoBudget(ctx, "center-kalinzi", "PAA Kalinzi 2025", 2025); err != nil {
		return err
	}

	// PENDING_VALIDATION
	pending, err := h.createDemoBudget(ctx, "center-mubuga", "PAA Mubuga 2025", 2025)
	if err != nil {
		return err
	}
	if _, err := h.Engine.Submit(ctx, demoOwner, pending.ID); err != nil {
		return fmt.Errorf("submit %s: %w", pending.Code, err)
	}

	// VALIDATED
	validated, err := h.createDemoBudget(ctx, "center-gitega", "PAA Gitega 2025", 2025)
	if err != nil {
		return err
	}
	if _, err := h.Engine.Submit(ctx, demoOwner, validated.ID); err != nil {
		return fmt.Errorf("submit %s: %w", validated.Code, err)
	}
	if _, err := h.Engine.Validate(ctx, demoReviewer, validated.ID); err != nil {
		return fmt.Errorf("validate %s: %w", validated.Code, err)
	}

	// REJECTED
	rejected, err := h.createDemoBudget(ctx, "center-gitega", "PAA Gitega 2025 (investissements)", 2025)
	if err != nil {
		return err
	}
	if _, err := h.Engine.Submit(ctx, demoOwner, rejected.ID); err != nil {
		return fmt.Errorf("submit %s: %w", rejected.Code, err)
	}
	if _, err := h.Engine.Reject(ctx, demoReviewer, rejected.ID, "Justifier le coût unitaire du carburant"); err != nil {
		return fmt.Errorf("reject %s: %w", rejected.Code, err)
	}
	return nil
}

func (h *Handler) loadTemplateHistoryScenario(ctx context.Context) error {
	if err := h.loadHealthDistrictScenario(ctx); err != nil {
		return err
	}
	for year := 2023; year <= 2025; year++ {
		name := fmt.Sprintf("PAA Kalinzi %d", year)
		if _, err := h.createDemoBudget(ctx, "center-kalinzi", name, year); err != nil {
			return err
		}
	}
	return nil
}

// createDemoBudget creates a covered OPERATING budget owned by demoOwner.
func (h *Handler) createDemoBudget(ctx context.Context, centerID, name string, year int) (*budget.Budget, error) {
	header := budget.Header{
		Name:        name,
		Description: "Budget de fonctionnement",
		FiscalYear:  year,
		Kind:        budget.KindOperating,
	}
	b, err := h.Engine.Create(ctx, demoOwner, centerID, header, demoRevenue(), demoLines())
	if err != nil {
		return nil, fmt.Errorf("create budget %q: %w", name, err)
	}
	return b, nil
}

func demoRevenue() []budget.RevenueSource {
	return []budget.RevenueSource{
		{FundingType: budget.FundingPerformanceBased, Nature: "Subsides FBP", Amount: decimal.NewFromInt(2_000_000)},
		{FundingType: budget.FundingStateBudget, Nature: "Dotation Etat", Amount: decimal.NewFromInt(1_500_000)},
		{FundingType: budget.FundingOwnResources, Nature: "Recettes propres", Amount: decimal.NewFromInt(600_000)},
	}
}

func demoLines() []budget.ExpenseLine {
	n := decimal.NewFromInt
	return []budget.ExpenseLine{
		{
			KeyActivity: "Consultations curatives", MeansType: "Carburant",
			Quantity: n(20), Frequency: n(12), UnitCost: n(3_500),
			NomenclatureCode: "6061", NomenclatureLabel: "Carburant et lubrifiants",
			FinancingCategory: budget.CategoryPBF,
		},
		{
			KeyActivity: "Vaccination", MeansType: "Primes de motivation",
			Quantity: n(6), Frequency: n(12), UnitCost: n(15_000),
			NomenclatureCode: "6413", NomenclatureLabel: "Primes",
			FinancingCategory: budget.CategoryPBF,
		},
		{
			KeyActivity: "Maintenance", MeansType: "Pièces de rechange",
			Quantity: n(4), Frequency: n(4), UnitCost: n(50_000),
			NomenclatureCode: "6155", NomenclatureLabel: "Entretien matériel",
			FinancingCategory: budget.CategoryStateBudget,
		},
		{
			KeyActivity: "Gestion", MeansType: "Fournitures de bureau",
			Quantity: n(10), Frequency: n(12), UnitCost: n(4_000),
			NomenclatureCode: "6064", NomenclatureLabel: "Fournitures",
			FinancingCategory: budget.CategoryOwnResources,
		},
	}
}
