package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/Marvins20/ai-ethics-multiagents/internal/ingest"
	"github.com/Marvins20/ai-ethics-multiagents/internal/models"
	"github.com/Marvins20/ai-ethics-multiagents/internal/rag"
	"github.com/Marvins20/ai-ethics-multiagents/internal/refs"
)

type riskSearchRequest struct {
	Query string `json:"query"`
	TopK  int    `json:"top_k"`
}

func (s *Server) handleSearchRisks(w http.ResponseWriter, r *http.Request) {
	if s.deps.Risks == nil {
		s.respondError(w, http.StatusNotImplemented, "risk search not enabled")
		return
	}
	var req riskSearchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		s.respondError(w, http.StatusBadRequest, "query is required")
		return
	}
	s.logger.Debug("risk search request", zap.String("query", req.Query), zap.Int("top_k", req.TopK))
	answer, err := s.deps.Risks.Search(r.Context(), req.Query, s.topK(req.TopK))
	switch {
	case errors.Is(err, rag.ErrRetrieverUnavailable):
		s.respondJSON(w, http.StatusServiceUnavailable, answer)
	case err != nil:
		s.logger.Error("risk search failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
	default:
		s.respondJSON(w, http.StatusOK, answer)
	}
}

type incidentSearchRequest struct {
	ProjectDescription string   `json:"project_description"`
	Action             string   `json:"action"`
	Actions            []string `json:"actions"`
	TopK               int      `json:"top_k"`
}

type actionResponse struct {
	Action string     `json:"action"`
	Answer rag.Answer `json:"answer"`
	Error  string     `json:"error,omitempty"`
}

func (s *Server) handleSearchIncidents(w http.ResponseWriter, r *http.Request) {
	if s.deps.Incidents == nil {
		s.respondError(w, http.StatusNotImplemented, "incident search not enabled")
		return
	}
	var req incidentSearchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.ProjectDescription) == "" {
		s.respondError(w, http.StatusBadRequest, "project_description is required")
		return
	}
	topK := s.topK(req.TopK)

	if len(req.Actions) > 0 {
		s.logger.Debug("incident search request", zap.Int("actions", len(req.Actions)), zap.Int("top_k", topK))
		results := s.deps.Incidents.SearchActions(r.Context(), req.ProjectDescription, req.Actions, topK)
		out := make([]actionResponse, len(results))
		for i, res := range results {
			out[i] = actionResponse{Action: res.Action, Answer: res.Answer}
			if res.Err != nil {
				out[i].Error = res.Err.Error()
			}
		}
		s.respondJSON(w, http.StatusOK, map[string]interface{}{"results": out})
		return
	}

	s.logger.Debug("incident search request", zap.String("action", req.Action), zap.Int("top_k", topK))
	answer, err := s.deps.Incidents.Search(r.Context(), req.ProjectDescription, req.Action, topK)
	if err != nil {
		s.logger.Error("incident search failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, answer)
}

type resolveRequest struct {
	// References is either a serialized list ("5,7", "[5, 7]", "['5']") or a JSON array.
	References json.RawMessage `json:"references"`
}

func (s *Server) handleResolveReports(w http.ResponseWriter, r *http.Request) {
	if s.deps.Resolver == nil {
		s.respondError(w, http.StatusNotImplemented, "report resolution not enabled")
		return
	}
	var req resolveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || len(req.References) == 0 {
		s.respondError(w, http.StatusBadRequest, "references is required")
		return
	}

	var (
		records []models.Report
		format  refs.ListFormat
		err     error
	)
	var text string
	if json.Unmarshal(req.References, &text) == nil {
		records, format, err = s.deps.Resolver.ResolveString(r.Context(), text)
	} else {
		var values []any
		dec := json.NewDecoder(strings.NewReader(string(req.References)))
		dec.UseNumber()
		if err := dec.Decode(&values); err != nil {
			s.respondError(w, http.StatusBadRequest, "references must be a string or an array")
			return
		}
		format = refs.FormatJSON
		records, err = s.deps.Resolver.Resolve(r.Context(), values)
	}

	switch {
	case errors.Is(err, refs.ErrUnparsable):
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	case errors.Is(err, refs.ErrStoreNotInitialized):
		s.respondError(w, http.StatusServiceUnavailable, err.Error())
		return
	case err != nil:
		s.logger.Error("resolve failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if records == nil {
		records = []models.Report{}
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"format":  format,
		"count":   len(records),
		"reports": records,
	})
}

func (s *Server) handleListTools(w http.ResponseWriter, r *http.Request) {
	if s.deps.Tools == nil {
		s.respondError(w, http.StatusNotImplemented, "tools not enabled")
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"tools": s.deps.Tools.Tools()})
}

func (s *Server) handleCallTool(w http.ResponseWriter, r *http.Request) {
	if s.deps.Tools == nil {
		s.respondError(w, http.StatusNotImplemented, "tools not enabled")
		return
	}
	name := chi.URLParam(r, "name")
	args := map[string]any{}
	dec := json.NewDecoder(r.Body)
	dec.UseNumber()
	if err := dec.Decode(&args); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	s.logger.Debug("tool call", zap.String("tool", name))
	out, err := s.deps.Tools.Call(r.Context(), name, args)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, rag.ErrRetrieverUnavailable) {
			status = http.StatusServiceUnavailable
		}
		s.logger.Error("tool call failed", zap.String("tool", name), zap.Error(err))
		s.respondJSON(w, status, map[string]string{"tool": name, "output": out, "error": err.Error()})
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"tool": name, "output": out})
}

type ingestRequest struct {
	Collection string `json:"collection"`
}

type ingestResponse struct {
	Name       string `json:"name"`
	Collection string `json:"collection,omitempty"`
	Entries    int    `json:"entries"`
	Error      string `json:"error,omitempty"`
}

func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	if s.deps.Ingest == nil {
		s.respondError(w, http.StatusNotImplemented, "ingestion not enabled")
		return
	}
	var req ingestRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.respondError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}
	s.logger.Info("ingest request", zap.String("collection", req.Collection))
	results, err := s.deps.Ingest.Ingest(r.Context(), req.Collection)
	if err != nil && len(results) == 0 {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"results": ingestResults(results)})
}

func ingestResults(results []ingest.Result) []ingestResponse {
	out := make([]ingestResponse, len(results))
	for i, r := range results {
		out[i] = ingestResponse{Name: r.Name, Collection: r.Collection, Entries: r.Entries}
		if r.Err != nil {
			out[i].Error = r.Err.Error()
		}
	}
	return out
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if s.deps.Status == nil {
		s.respondError(w, http.StatusNotImplemented, "status not enabled")
		return
	}
	st, err := s.deps.Status.Status(r.Context())
	if err != nil {
		s.logger.Error("status failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, st)
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}
