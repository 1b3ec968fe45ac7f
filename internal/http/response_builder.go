package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"revenue/internal/auth"
	"revenue/internal/core"
	applog "revenue/internal/log"
	"revenue/internal/storage"
)

// GenericErrorMessage is the only text a client sees for unexpected failures.
const GenericErrorMessage = "Something went wrong, please try again"

type (
	errorResponse struct {
		Error string `json:"error"`
		Field string `json:"field,omitempty"`
	}

	entryResponse struct {
		ID          string    `json:"id"`
		Kind        core.Kind `json:"kind"`
		Amount      string    `json:"amount"`
		AmountCents int64     `json:"amount_cents"`
		Description string    `json:"description"`
		Date        string    `json:"date"`
		CreatedAt   time.Time `json:"created_at"`
		UpdatedAt   time.Time `json:"updated_at"`
	}

	entryListResponse struct {
		Entries    []entryResponse `json:"entries"`
		Total      string          `json:"total"`
		MonthTotal string          `json:"month_total"`
		Year       int             `json:"year"`
		Month      int             `json:"month"`
	}

	totalResponse struct {
		Kind  core.Kind `json:"kind"`
		Total string    `json:"total"`
		Year  int       `json:"year,omitempty"`
		Month int       `json:"month,omitempty"`
	}

	sessionResponse struct {
		UserID    string    `json:"user_id"`
		Email     string    `json:"email"`
		Token     string    `json:"token"`
		ExpiresAt time.Time `json:"expires_at"`
	}

	profileResponse struct {
		ID        string    `json:"id"`
		Email     string    `json:"email"`
		Name      string    `json:"name"`
		CreatedAt time.Time `json:"created_at"`
	}

	summaryResponse struct {
		TotalIncome   string  `json:"total_income"`
		TotalExpenses string  `json:"total_expenses"`
		NetProfit     string  `json:"net_profit"`
		ProfitMargin  float64 `json:"profit_margin"`
	}

	monthResponse struct {
		Year     int    `json:"year"`
		Month    int    `json:"month"`
		Income   string `json:"income"`
		Expenses string `json:"expenses"`
		Net      string `json:"net"`
	}

	reportResponse struct {
		Year   int             `json:"year"`
		Months []monthResponse `json:"months"`
	}
)

func newEntryResponse(e core.Entry) entryResponse {
	return entryResponse{
		ID:          e.ID,
		Kind:        e.Kind,
		Amount:      e.Amount.String(),
		AmountCents: e.Amount.Cents,
		Description: e.Description,
		Date:        e.Date,
		CreatedAt:   e.CreatedAt,
		UpdatedAt:   e.UpdatedAt,
	}
}

func newEntryListResponse(entries []core.Entry, year, month int) entryListResponse {
	resp := entryListResponse{
		Entries:    make([]entryResponse, 0, len(entries)),
		Total:      core.Total(entries).String(),
		MonthTotal: core.MonthlyTotal(entries, year, month).String(),
		Year:       year,
		Month:      month,
	}
	for _, e := range entries {
		resp.Entries = append(resp.Entries, newEntryResponse(e))
	}
	return resp
}

func newSessionResponse(s auth.Session, t auth.Token) sessionResponse {
	return sessionResponse{UserID: s.UserID, Email: s.Email, Token: t.Value, ExpiresAt: t.ExpiresAt}
}

func newProfileResponse(p core.Profile) profileResponse {
	return profileResponse{ID: p.ID, Email: p.Email, Name: p.Name, CreatedAt: p.CreatedAt}
}

func newSummaryResponse(s core.Summary) summaryResponse {
	return summaryResponse{
		TotalIncome:   s.TotalIncome.String(),
		TotalExpenses: s.TotalExpenses.String(),
		NetProfit:     s.NetProfit.String(),
		ProfitMargin:  s.ProfitMargin,
	}
}

func newReportResponse(year int, rows []core.MonthSummary) reportResponse {
	resp := reportResponse{Year: year, Months: make([]monthResponse, 0, len(rows))}
	for _, m := range rows {
		resp.Months = append(resp.Months, monthResponse{
			Year:     m.Year,
			Month:    m.Month,
			Income:   m.Income.String(),
			Expenses: m.Expenses.String(),
			Net:      m.Net.String(),
		})
	}
	return resp
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps err onto a status code. Unexpected errors are logged with
// the request logger and answered with GenericErrorMessage.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var ve *core.ValidationError
	switch {
	case errors.As(err, &ve):
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Error: ve.Err.Error(), Field: ve.Field})
	case errors.Is(err, ErrMalformedBody):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
	case errors.Is(err, auth.ErrNotAuthenticated):
		w.Header().Set("WWW-Authenticate", `Bearer realm="revenue"`)
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: err.Error()})
	case errors.Is(err, auth.ErrInvalidCredentials):
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: err.Error()})
	case errors.Is(err, auth.ErrEmailTaken):
		writeJSON(w, http.StatusConflict, errorResponse{Error: err.Error(), Field: "email"})
	case errors.Is(err, storage.ErrNotFound), errors.Is(err, core.ErrInvalidKind):
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "not found"})
	default:
		applog.FromContext(r.Context()).ErrorContext(r.Context(), "Request failed",
			applog.FieldError, err,
			applog.FieldErrorType, applog.ErrorTypeInternal,
			applog.FieldMethod, r.Method,
			applog.FieldPath, r.URL.Path)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: GenericErrorMessage})
	}
}
