package http

import (
	"net/http"

	"revenue/internal/auth"
	"revenue/internal/core"
)

func (s *Server) handleSignUp(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := s.decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	session, token, err := s.auth.SignUp(r.Context(), req.Email, req.Password, req.Name)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, newSessionResponse(session, token))
}

func (s *Server) handleSignIn(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := s.decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	session, token, err := s.auth.SignIn(r.Context(), req.Email, req.Password)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newSessionResponse(session, token))
}

func (s *Server) handleSignOut(w http.ResponseWriter, r *http.Request) {
	if err := s.auth.SignOut(r.Context(), bearerToken(r)); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleProfile(w http.ResponseWriter, r *http.Request, session auth.Session) {
	profile, err := s.auth.Profile(r.Context(), session)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newProfileResponse(profile))
}

func (s *Server) handleUpdateProfile(w http.ResponseWriter, r *http.Request, session auth.Session) {
	var req profileRequest
	if err := s.decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	profile, err := s.auth.UpdateProfile(r.Context(), session, req.Name)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newProfileResponse(profile))
}

// handleList returns the entries with their grand total and the total of
// the requested month, the current month by default.
func (s *Server) handleList(kind core.Kind) sessionHandler {
	return func(w http.ResponseWriter, r *http.Request, session auth.Session) {
		period, err := ParsePeriod(r.URL.Query())
		if err != nil {
			writeError(w, r, err)
			return
		}
		if period.IsZero() {
			now := s.now().UTC()
			period = Period{Year: now.Year(), Month: int(now.Month())}
		}
		if period.Month < 1 || period.Month > 12 {
			writeError(w, r, &core.ValidationError{Field: "month", Err: errMonthRange})
			return
		}

		entries, err := s.ledger.List(r.Context(), session, kind)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, newEntryListResponse(entries, period.Year, period.Month))
	}
}

func (s *Server) handleCreate(kind core.Kind) sessionHandler {
	return func(w http.ResponseWriter, r *http.Request, session auth.Session) {
		in, err := s.entryInput(w, r)
		if err != nil {
			writeError(w, r, err)
			return
		}

		entry, err := s.ledger.Create(r.Context(), session, kind, in)
		if err != nil {
			writeError(w, r, err)
			return
		}
		w.Header().Set("Location", "/api/"+kind.Collection()+"/"+entry.ID)
		writeJSON(w, http.StatusCreated, newEntryResponse(entry))
	}
}

func (s *Server) handleGet(kind core.Kind) sessionHandler {
	return func(w http.ResponseWriter, r *http.Request, session auth.Session) {
		entry, err := s.ledger.Get(r.Context(), session, kind, r.PathValue("id"))
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, newEntryResponse(entry))
	}
}

func (s *Server) handleUpdate(kind core.Kind) sessionHandler {
	return func(w http.ResponseWriter, r *http.Request, session auth.Session) {
		in, err := s.entryInput(w, r)
		if err != nil {
			writeError(w, r, err)
			return
		}

		entry, err := s.ledger.Update(r.Context(), session, kind, r.PathValue("id"), in)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, newEntryResponse(entry))
	}
}

func (s *Server) handleDelete(kind core.Kind) sessionHandler {
	return func(w http.ResponseWriter, r *http.Request, session auth.Session) {
		if err := s.ledger.Delete(r.Context(), session, kind, r.PathValue("id")); err != nil {
			writeError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// handleTotal returns the grand total, or the monthly total when both year
// and month are given.
func (s *Server) handleTotal(kind core.Kind) sessionHandler {
	return func(w http.ResponseWriter, r *http.Request, session auth.Session) {
		period, err := ParsePeriod(r.URL.Query())
		if err != nil {
			writeError(w, r, err)
			return
		}

		var total core.Money
		switch {
		case period.IsZero():
			total, err = s.ledger.Total(r.Context(), session, kind)
		case period.Month == 0:
			err = &core.ValidationError{Field: "month", Err: errRequired}
		default:
			total, err = s.ledger.MonthlyTotal(r.Context(), session, kind, period.Year, period.Month)
		}
		if err != nil {
			writeError(w, r, err)
			return
		}

		writeJSON(w, http.StatusOK, totalResponse{
			Kind:  kind,
			Total: total.String(),
			Year:  period.Year,
			Month: period.Month,
		})
	}
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request, session auth.Session) {
	summary, err := s.ledger.Dashboard(r.Context(), session)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newSummaryResponse(summary))
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request, session auth.Session) {
	year, err := intParam(r.URL.Query(), "year")
	if err != nil {
		writeError(w, r, err)
		return
	}
	if year == 0 {
		year = s.now().UTC().Year()
	}

	rows, err := s.ledger.Report(r.Context(), session, year)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newReportResponse(year, rows))
}

func (s *Server) entryInput(w http.ResponseWriter, r *http.Request) (core.EntryInput, error) {
	var req entryRequest
	if err := s.decodeJSON(w, r, &req); err != nil {
		return core.EntryInput{}, err
	}
	return req.input()
}
