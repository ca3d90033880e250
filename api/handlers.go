/*
handlers.go - HTTP API handlers for the budget engine

PURPOSE:
  Exposes the budget lifecycle engine via REST API. Handles HTTP
  request/response, JSON serialization, and delegates to budget.Engine.

ENDPOINTS:
  Centers:
    GET    /api/centers                         List centers
    POST   /api/centers                         Register a center (ADMIN)
    GET    /api/centers/{id}                    Get center
    GET    /api/centers/{id}/activity-templates Suggest templates (?q=)

  Budgets:
    GET    /api/budgets                         List (?center_id=&status=&fiscal_year=&created_by=)
    POST   /api/budgets                         Create
    POST   /api/budgets/preview                 Totals and coverage of an unsaved payload
    GET    /api/budgets/{id}                    Get with collections
    PUT    /api/budgets/{id}                    Update (partial)
    DELETE /api/budgets/{id}                    Delete (ADMIN)
    GET    /api/budgets/{id}/summary            Totals and coverage
    POST   /api/budgets/{id}/lines              Add one expense line
    DELETE /api/budgets/{id}/lines/{lineID}     Remove one expense line
    POST   /api/budgets/{id}/submit             DRAFT → PENDING_VALIDATION
    POST   /api/budgets/{id}/validate           PENDING_VALIDATION → VALIDATED
    POST   /api/budgets/{id}/reject             PENDING_VALIDATION → REJECTED

ERROR HANDLING:
  Engine errors are classified with budget.KindOf:
  - 400: invalid_content (coverage violations listed in "violations")
  - 403: unauthorized
  - 404: not_found
  - 409: invalid_state, conflict
  - 500: internal
  401 is returned by the auth middleware before a handler runs.

SEE ALSO:
  - dto.go: Request/response data structures
  - auth.go: Bearer token middleware
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"sync"

	"github.com/go-chi/chi/v5"

	"github.com/warp/paa-engine/budget"
	"github.com/warp/paa-engine/log"
	"github.com/warp/paa-engine/store/sqlite"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Engine *budget.Engine
	Store  *sqlite.Store

	mu              sync.Mutex
	currentScenario string
}

// NewHandler creates a new handler over engine and the store backing it.
func NewHandler(engine *budget.Engine, store *sqlite.Store) *Handler {
	return &Handler{Engine: engine, Store: store}
}

// Health reports liveness.
// GET /api/health
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// =============================================================================
// CENTER HANDLERS
// =============================================================================

// ListCenters returns all centers.
// GET /api/centers
func (h *Handler) ListCenters(w http.ResponseWriter, r *http.Request) {
	centers, err := h.Store.ListCenters(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list centers", err)
		return
	}

	dtos := make([]CenterDTO, len(centers))
	for i, c := range centers {
		dtos[i] = toCenterDTO(c)
	}
	writeJSON(w, http.StatusOK, map[string]any{"centers": dtos})
}

// CreateCenter registers or renames a center.
// POST /api/centers
func (h *Handler) CreateCenter(w http.ResponseWriter, r *http.Request) {
	if !ActorFrom(r.Context()).Has(budget.RoleAdmin) {
		writeError(w, http.StatusForbidden, "Only administrators may register centers", nil)
		return
	}

	var req CreateCenterRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.ID == "" || req.Code == "" || req.Name == "" {
		writeError(w, http.StatusBadRequest, "id, code and name are required", nil)
		return
	}

	center := budget.Center{ID: req.ID, Code: req.Code, Name: req.Name}
	if err := h.Store.SaveCenter(r.Context(), center); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to save center", err)
		return
	}
	writeJSON(w, http.StatusCreated, toCenterDTO(center))
}

// GetCenter returns a single center.
// GET /api/centers/{id}
func (h *Handler) GetCenter(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	center, err := h.Store.GetCenter(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get center", err)
		return
	}
	if center == nil {
		writeError(w, http.StatusNotFound, "Center not found", nil)
		return
	}
	writeJSON(w, http.StatusOK, toCenterDTO(*center))
}

// SuggestTemplates returns the center's most used activity templates.
// GET /api/centers/{id}/activity-templates?q=
func (h *Handler) SuggestTemplates(w http.ResponseWriter, r *http.Request) {
	templates, err := h.Engine.Suggest(r.Context(), chi.URLParam(r, "id"), r.URL.Query().Get("q"))
	if err != nil {
		writeEngineError(w, r, err)
		return
	}

	dtos := make([]TemplateDTO, len(templates))
	for i, t := range templates {
		dtos[i] = toTemplateDTO(t)
	}
	writeJSON(w, http.StatusOK, map[string]any{"templates": dtos})
}

// =============================================================================
// BUDGET READS
// =============================================================================

// ListBudgets returns budget headers, newest first.
// GET /api/budgets
func (h *Handler) ListBudgets(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := budget.BudgetFilter{
		CenterID:  q.Get("center_id"),
		Status:    budget.Status(q.Get("status")),
		CreatedBy: q.Get("created_by"),
	}
	if filter.Status != "" && !filter.Status.Valid() {
		writeError(w, http.StatusBadRequest, "Unknown status", nil)
		return
	}
	if year := q.Get("fiscal_year"); year != "" {
		y, err := strconv.Atoi(year)
		if err != nil {
			writeError(w, http.StatusBadRequest, "fiscal_year must be a number", err)
			return
		}
		filter.FiscalYear = y
	}

	budgets, err := h.Engine.List(r.Context(), filter)
	if err != nil {
		writeEngineError(w, r, err)
		return
	}

	dtos := make([]BudgetDTO, len(budgets))
	for i := range budgets {
		dtos[i] = toBudgetDTO(&budgets[i])
	}
	writeJSON(w, http.StatusOK, map[string]any{"budgets": dtos})
}

// GetBudget returns a budget with its revenue sources and expense lines.
// GET /api/budgets/{id}
func (h *Handler) GetBudget(w http.ResponseWriter, r *http.Request) {
	b, err := h.Engine.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toBudgetDTO(b))
}

// GetSummary returns totals and coverage of a stored budget. An uncovered
// budget is still a 200.
// GET /api/budgets/{id}/summary
func (h *Handler) GetSummary(w http.ResponseWriter, r *http.Request) {
	s, err := h.Engine.Summary(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, SummaryDTO{
		BudgetID:      s.BudgetID,
		Code:          s.Code,
		Name:          s.Name,
		FiscalYear:    s.FiscalYear,
		Status:        string(s.Status),
		CenterID:      s.CenterID,
		DeclaredTotal: s.DeclaredTotal,
		TotalsDTO:     toTotalsDTO(s.Totals),
	})
}

// PreviewBudget computes totals and coverage without saving.
// POST /api/budgets/preview
func (h *Handler) PreviewBudget(w http.ResponseWriter, r *http.Request) {
	var req PreviewRequest
	if !decodeBody(w, r, &req) {
		return
	}

	sources, err := toRevenueSources(req.RevenueSources)
	if err != nil {
		writeEngineError(w, r, err)
		return
	}
	lines, err := toExpenseLines(req.ExpenseLines)
	if err != nil {
		writeEngineError(w, r, err)
		return
	}

	totals, err := h.Engine.Preview(sources, lines)
	if err != nil {
		writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toTotalsDTO(*totals))
}

// =============================================================================
// BUDGET WRITES
// =============================================================================

// CreateBudget creates a DRAFT budget with a freshly minted code.
// POST /api/budgets
func (h *Handler) CreateBudget(w http.ResponseWriter, r *http.Request) {
	var req CreateBudgetRequest
	if !decodeBody(w, r, &req) {
		return
	}

	sources, err := toRevenueSources(req.RevenueSources)
	if err != nil {
		writeEngineError(w, r, err)
		return
	}
	lines, err := toExpenseLines(req.ExpenseLines)
	if err != nil {
		writeEngineError(w, r, err)
		return
	}

	header := budget.Header{
		Name:        req.Name,
		Description: req.Description,
		FiscalYear:  req.FiscalYear,
		Kind:        budget.Kind(req.BudgetKind),
	}
	b, err := h.Engine.Create(r.Context(), ActorFrom(r.Context()), req.CenterID, header, sources, lines)
	if err != nil {
		writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toBudgetDTO(b))
}

// UpdateBudget applies a partial update.
// PUT /api/budgets/{id}
func (h *Handler) UpdateBudget(w http.ResponseWriter, r *http.Request) {
	var req UpdateBudgetRequest
	if !decodeBody(w, r, &req) {
		return
	}

	in := budget.UpdateInput{}
	if req.Name != nil || req.Description != nil || req.FiscalYear != nil || req.BudgetKind != nil {
		patch := &budget.HeaderPatch{
			Name:        req.Name,
			Description: req.Description,
			FiscalYear:  req.FiscalYear,
		}
		if req.BudgetKind != nil {
			kind := budget.Kind(*req.BudgetKind)
			patch.Kind = &kind
		}
		in.Header = patch
	}
	if req.RevenueSources != nil {
		sources, err := toRevenueSources(*req.RevenueSources)
		if err != nil {
			writeEngineError(w, r, err)
			return
		}
		in.Revenue = sources
	}
	if req.ExpenseLines != nil {
		lines, err := toExpenseLines(*req.ExpenseLines)
		if err != nil {
			writeEngineError(w, r, err)
			return
		}
		in.Lines = lines
	}

	b, err := h.Engine.Update(r.Context(), ActorFrom(r.Context()), chi.URLParam(r, "id"), in)
	if err != nil {
		writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toBudgetDTO(b))
}

// DeleteBudget removes a budget that was never approved.
// DELETE /api/budgets/{id}
func (h *Handler) DeleteBudget(w http.ResponseWriter, r *http.Request) {
	if err := h.Engine.Delete(r.Context(), ActorFrom(r.Context()), chi.URLParam(r, "id")); err != nil {
		writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// AddExpenseLine appends one expense line.
// POST /api/budgets/{id}/lines
func (h *Handler) AddExpenseLine(w http.ResponseWriter, r *http.Request) {
	var req ExpenseLineInput
	if !decodeBody(w, r, &req) {
		return
	}

	line, err := toExpenseLine("expense_line", req)
	if err != nil {
		writeEngineError(w, r, err)
		return
	}

	b, err := h.Engine.AddExpenseLine(r.Context(), ActorFrom(r.Context()), chi.URLParam(r, "id"), line)
	if err != nil {
		writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toBudgetDTO(b))
}

// RemoveExpenseLine deletes one expense line.
// DELETE /api/budgets/{id}/lines/{lineID}
func (h *Handler) RemoveExpenseLine(w http.ResponseWriter, r *http.Request) {
	b, err := h.Engine.RemoveExpenseLine(r.Context(), ActorFrom(r.Context()),
		chi.URLParam(r, "id"), chi.URLParam(r, "lineID"))
	if err != nil {
		writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toBudgetDTO(b))
}

// =============================================================================
// WORKFLOW
// =============================================================================

// SubmitBudget sends a draft for review.
// POST /api/budgets/{id}/submit
func (h *Handler) SubmitBudget(w http.ResponseWriter, r *http.Request) {
	b, err := h.Engine.Submit(r.Context(), ActorFrom(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toBudgetDTO(b))
}

// ValidateBudget approves a pending budget.
// POST /api/budgets/{id}/validate
func (h *Handler) ValidateBudget(w http.ResponseWriter, r *http.Request) {
	b, err := h.Engine.Validate(r.Context(), ActorFrom(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toBudgetDTO(b))
}

// RejectBudget returns a pending budget to its owner. The body is optional.
// POST /api/budgets/{id}/reject
func (h *Handler) RejectBudget(w http.ResponseWriter, r *http.Request) {
	var req RejectBudgetRequest
	if r.ContentLength != 0 {
		if !decodeBody(w, r, &req) {
			return
		}
	}

	b, err := h.Engine.Reject(r.Context(), ActorFrom(r.Context()), chi.URLParam(r, "id"), req.Reason)
	if err != nil {
		writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toBudgetDTO(b))
}

// =============================================================================
// RESPONSE HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// writeEngineError maps an engine error onto its HTTP status.
func writeEngineError(w http.ResponseWriter, r *http.Request, err error) {
	kind := budget.KindOf(err)
	resp := ErrorResponse{Error: err.Error(), Kind: string(kind)}

	var coverage *budget.CoverageError
	if errors.As(err, &coverage) {
		resp.Violations = toViolationDTOs(coverage.Violations)
	}

	status := statusForKind(kind)
	if status == http.StatusInternalServerError {
		log.FromContext(r.Context()).ErrorContext(r.Context(), "Request failed",
			log.FieldPath, r.URL.Path,
			log.FieldError, err)
		resp.Error = "internal error"
	}
	writeJSON(w, status, resp)
}

func statusForKind(kind budget.ErrorKind) int {
	switch kind {
	case budget.KindInvalidContent:
		return http.StatusBadRequest
	case budget.KindUnauthorized:
		return http.StatusForbidden
	case budget.KindNotFound:
		return http.StatusNotFound
	case budget.KindInvalidState, budget.KindConflict:
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{
			Error:   "Invalid request body",
			Kind:    string(budget.KindInvalidContent),
			Details: err.Error(),
		})
		return false
	}
	return true
}
