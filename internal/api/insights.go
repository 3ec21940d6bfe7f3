package api

import (
	"net/http"
	"strconv"

	"github.com/yohanns/storefront/internal/apperr"
	"github.com/yohanns/storefront/internal/insights"
)

// scope resolves the branch the caller may see, honoring ?branch_id.
func (s *Server) scope(r *http.Request) (insights.Scope, error) {
	var requested *int64
	if v := r.URL.Query().Get("branch_id"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return insights.Scope{}, apperr.Invalid("Invalid branch_id")
		}
		requested = &id
	}
	return s.svc.Insights.ResolveScope(r.Context(), principal(r), requested)
}

func (s *Server) dashboardSummary(w http.ResponseWriter, r *http.Request) {
	sc, err := s.scope(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	sum, err := s.svc.Insights.Summary(r.Context(), sc)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

func (s *Server) aiHealth(w http.ResponseWriter, _ *http.Request) {
	if s.svc.Insights == nil {
		writeJSON(w, http.StatusOK, insights.Health{Success: true})
		return
	}
	writeJSON(w, http.StatusOK, s.svc.Insights.Health())
}

func (s *Server) aiAnalytics(w http.ResponseWriter, r *http.Request) {
	if s.svc.Insights == nil {
		s.writeError(w, r, apperr.Unavailable("AI analytics is not configured"))
		return
	}
	var q insights.Question
	if err := decode(r, &q); err != nil {
		s.writeError(w, r, err)
		return
	}
	sc, err := s.scope(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	ans, err := s.svc.Insights.Ask(r.Context(), sc, q)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ans)
}

// analytics adapts a scoped report to a {success, data} handler.
func (s *Server) analytics(report func(r *http.Request, sc insights.Scope) (any, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sc, err := s.scope(r)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		data, err := report(r, sc)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "data": data})
	}
}

func (s *Server) analyticsDashboard(r *http.Request, sc insights.Scope) (any, error) {
	return s.svc.Insights.Dashboard(r.Context(), sc)
}

func (s *Server) salesTrends(r *http.Request, sc insights.Scope) (any, error) {
	return s.svc.Insights.SalesTrends(r.Context(), sc, queryInt(r, "period", 30))
}

func (s *Server) productPerformance(r *http.Request, sc insights.Scope) (any, error) {
	return s.svc.Insights.ProductPerformance(r.Context(), sc)
}

func (s *Server) customerAnalytics(r *http.Request, sc insights.Scope) (any, error) {
	return s.svc.Insights.CustomerAnalytics(r.Context(), sc)
}

func (s *Server) salesForecast(r *http.Request, sc insights.Scope) (any, error) {
	return s.svc.Insights.Forecast(r.Context(), sc, insights.ParseRange(r.URL.Query().Get("range")))
}

func (s *Server) geographicDistribution(r *http.Request, sc insights.Scope) (any, error) {
	return s.svc.Insights.GeographicDistribution(r.Context(), sc)
}
