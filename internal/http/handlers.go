package http

import (
	"context"
	"net/http"

	"budgets/internal/core"
	applog "budgets/internal/log"
)

// BudgetService is the subset of services.BudgetService the API calls.
type BudgetService interface {
	EnsureUser(ctx context.Context, email string) (core.User, error)
	CreateBudget(ctx context.Context, email, name string, amount core.Money, emoji string) (core.Budget, error)
	ListBudgetsForUser(ctx context.Context, email string) ([]core.BudgetWithTransactions, error)
	GetBudgetWithTransactions(ctx context.Context, budgetID string) (core.BudgetWithTransactions, error)
	AddTransaction(ctx context.Context, budgetID string, amount core.Money, description string) (core.Transaction, error)
	DeleteBudget(ctx context.Context, budgetID string) error
	DeleteTransaction(ctx context.Context, transactionID string) error
	ListTransactionsForUserInPeriod(ctx context.Context, email, period string) ([]core.BudgetTransaction, error)
	Overview(ctx context.Context, email string) (core.Overview, error)
	Ping(ctx context.Context) error
}

// writeError logs err and writes the JSON error body. Client errors log at
// Warn, server errors at Error.
func writeError(w http.ResponseWriter, r *http.Request, op string, err error) {
	ctx := r.Context()
	logger := applog.FromContext(ctx)
	fields := applog.NewFields().WithError(err).WithOperation(op).ToSlice()
	if StatusForError(err) >= http.StatusInternalServerError {
		logger.ErrorContext(ctx, "Request failed", fields...)
	} else {
		logger.WarnContext(ctx, "Request rejected", fields...)
	}
	ErrorResponse(err).Write(w)
}

func (s *Server) handleEnsureUser(w http.ResponseWriter, r *http.Request) {
	var req ensureUserRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, "ensure_user", err)
		return
	}
	u, err := s.svc.EnsureUser(r.Context(), sanitizeInput(req.Email))
	if err != nil {
		writeError(w, r, "ensure_user", err)
		return
	}
	NewJSONResponse().Body(toUser(u)).Write(w)
}

func (s *Server) handleListBudgets(w http.ResponseWriter, r *http.Request) {
	email, err := pathParam(r, "email")
	if err != nil {
		writeError(w, r, "list_budgets", err)
		return
	}
	budgets, err := s.svc.ListBudgetsForUser(r.Context(), email)
	if err != nil {
		writeError(w, r, "list_budgets", err)
		return
	}
	NewJSONResponse().Body(toBudgets(budgets)).Write(w)
}

func (s *Server) handleCreateBudget(w http.ResponseWriter, r *http.Request) {
	email, err := pathParam(r, "email")
	if err != nil {
		writeError(w, r, "create_budget", err)
		return
	}
	var req createBudgetRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, "create_budget", err)
		return
	}
	amount, err := req.Amount.Money()
	if err != nil {
		writeError(w, r, "create_budget", err)
		return
	}
	b, err := s.svc.CreateBudget(r.Context(), email, sanitizeInput(req.Name), amount, sanitizeInput(req.Emoji))
	if err != nil {
		writeError(w, r, "create_budget", err)
		return
	}
	NewJSONResponse().
		Status(http.StatusCreated).
		Header("Location", "/budgets/"+b.ID).
		Body(toBudget(b)).
		Write(w)
}

func (s *Server) handleListTransactions(w http.ResponseWriter, r *http.Request) {
	email, err := pathParam(r, "email")
	if err != nil {
		writeError(w, r, "list_transactions", err)
		return
	}
	txs, err := s.svc.ListTransactionsForUserInPeriod(r.Context(), email, periodParam(r))
	if err != nil {
		writeError(w, r, "list_transactions", err)
		return
	}
	NewJSONResponse().Body(toBudgetTransactions(txs)).Write(w)
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	email, err := pathParam(r, "email")
	if err != nil {
		writeError(w, r, "dashboard", err)
		return
	}
	ov, err := s.svc.Overview(r.Context(), email)
	if err != nil {
		writeError(w, r, "dashboard", err)
		return
	}
	NewJSONResponse().Body(toOverview(ov)).Write(w)
}

func (s *Server) handleGetBudget(w http.ResponseWriter, r *http.Request) {
	id, err := pathParam(r, "id")
	if err != nil {
		writeError(w, r, "get_budget", err)
		return
	}
	b, err := s.svc.GetBudgetWithTransactions(r.Context(), id)
	if err != nil {
		writeError(w, r, "get_budget", err)
		return
	}
	NewJSONResponse().Body(toBudgetWithTransactions(b)).Write(w)
}

func (s *Server) handleDeleteBudget(w http.ResponseWriter, r *http.Request) {
	id, err := pathParam(r, "id")
	if err != nil {
		writeError(w, r, "delete_budget", err)
		return
	}
	if err := s.svc.DeleteBudget(r.Context(), id); err != nil {
		writeError(w, r, "delete_budget", err)
		return
	}
	NewJSONResponse().Status(http.StatusNoContent).Write(w)
}

func (s *Server) handleAddTransaction(w http.ResponseWriter, r *http.Request) {
	id, err := pathParam(r, "id")
	if err != nil {
		writeError(w, r, "add_transaction", err)
		return
	}
	var req addTransactionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, "add_transaction", err)
		return
	}
	amount, err := req.Amount.Money()
	if err != nil {
		writeError(w, r, "add_transaction", err)
		return
	}
	tx, err := s.svc.AddTransaction(r.Context(), id, amount, sanitizeInput(req.Description))
	if err != nil {
		writeError(w, r, "add_transaction", err)
		return
	}
	NewJSONResponse().Status(http.StatusCreated).Body(toTransaction(tx)).Write(w)
}

func (s *Server) handleDeleteTransaction(w http.ResponseWriter, r *http.Request) {
	id, err := pathParam(r, "id")
	if err != nil {
		writeError(w, r, "delete_transaction", err)
		return
	}
	if err := s.svc.DeleteTransaction(r.Context(), id); err != nil {
		writeError(w, r, "delete_transaction", err)
		return
	}
	NewJSONResponse().Status(http.StatusNoContent).Write(w)
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	NewJSONResponse().Body(map[string]string{"status": "ok"}).Write(w)
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.Ping(r.Context()); err != nil {
		writeError(w, r, "ready", err)
		return
	}
	NewJSONResponse().Body(map[string]string{"status": "ready"}).Write(w)
}
