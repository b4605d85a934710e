// Package api exposes parsing, enrichment and changeset management over HTTP.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/sells-group/address-helper/internal/dataset"
	"github.com/sells-group/address-helper/internal/enrich"
	"github.com/sells-group/address-helper/internal/model"
	"github.com/sells-group/address-helper/internal/parser"
	"github.com/sells-group/address-helper/pkg/egrn"
)

// maxBatchIDs caps the primitives accepted by one enrich request.
const maxBatchIDs = 5000

// Config wires the server dependencies.
type Config struct {
	Store     dataset.Store
	Requester egrn.Requester
	// Batch holds the batch settings; Requester, Dataset and Writer are
	// filled per request.
	Batch          enrich.Options
	AllowedOrigins []string
}

// Server serves the HTTP API.
type Server struct {
	cfg Config
	log *zap.Logger
}

// New creates a server.
func New(cfg Config) *Server {
	if len(cfg.AllowedOrigins) == 0 {
		cfg.AllowedOrigins = []string{"*"}
	}
	return &Server{cfg: cfg, log: zap.L().With(zap.String("component", "api"))}
}

// Router builds the route tree.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.logRequests)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.cfg.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", s.health)
	r.Route("/v1", func(r chi.Router) {
		r.Post("/parse", s.parse)
		r.Get("/streets", s.streets)
		r.Post("/enrich", s.enrich)
		r.Get("/changesets", s.listChangesets)
		r.Get("/changesets/{id}", s.getChangeset)
		r.Post("/changesets/{id}/undo", s.undoChangeset)
	})
	return r
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.log.Debug("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("elapsed", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type parseRequest struct {
	Address string `json:"address"`
}

type parseResponse struct {
	Address     string `json:"address"`
	Street      string `json:"street"`
	Extracted   string `json:"extracted"`
	HouseNumber string `json:"housenumber"`
}

func (s *Server) parse(w http.ResponseWriter, r *http.Request) {
	var req parseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Address == "" {
		writeError(w, http.StatusBadRequest, "address is required")
		return
	}

	streets, err := parser.NewStreetParser(r.Context(), s.cfg.Store, s.cfg.Batch.StreetPatterns)
	if err != nil {
		s.internalError(w, "build street index", err)
		return
	}
	sp := streets.Parse(req.Address)
	writeJSON(w, http.StatusOK, parseResponse{
		Address:     req.Address,
		Street:      sp.Name,
		Extracted:   sp.Extracted,
		HouseNumber: parser.NewHouseNumberParser(s.cfg.Batch.HousePatterns).Parse(req.Address),
	})
}

func (s *Server) streets(w http.ResponseWriter, r *http.Request) {
	streets, err := parser.NewStreetParser(r.Context(), s.cfg.Store, s.cfg.Batch.StreetPatterns)
	if err != nil {
		s.internalError(w, "build street index", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"streets": streets.Streets()})
}

type enrichRequest struct {
	IDs   []string `json:"ids"`
	Apply bool     `json:"apply"`
}

type enrichResponse struct {
	Requested   int                  `json:"requested"`
	Skipped     []string             `json:"skipped"`
	Proposals   []enrich.Proposal    `json:"proposals"`
	ChangesetID string               `json:"changeset_id,omitempty"`
	Applied     bool                 `json:"applied"`
	Unresolved  []enrich.StreetCount `json:"unresolved"`
}

func (s *Server) enrich(w http.ResponseWriter, r *http.Request) {
	var req enrichRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.IDs) == 0 {
		writeError(w, http.StatusBadRequest, "ids are required")
		return
	}
	if len(req.IDs) > maxBatchIDs {
		writeError(w, http.StatusBadRequest, "too many ids, max "+strconv.Itoa(maxBatchIDs))
		return
	}

	prims, err := s.cfg.Store.GetPrimitives(r.Context(), req.IDs)
	if err != nil {
		s.internalError(w, "load primitives", err)
		return
	}

	opts := s.cfg.Batch
	opts.Requester = s.cfg.Requester
	opts.Dataset = s.cfg.Store
	opts.Writer = nil
	if req.Apply {
		opts.Writer = s.cfg.Store
	}

	batch, err := enrich.NewBatch(prims, opts)
	if err != nil {
		s.internalError(w, "create batch", err)
		return
	}
	res, err := batch.Load(r.Context(), nil)
	if err != nil {
		s.internalError(w, "run batch", err)
		return
	}

	resp := enrichResponse{
		Requested:  res.Requested,
		Skipped:    nonNil(res.Skipped),
		Proposals:  res.Proposals(),
		Applied:    res.Applied,
		Unresolved: res.UnresolvedStreets(),
	}
	if resp.Proposals == nil {
		resp.Proposals = []enrich.Proposal{}
	}
	if res.Applied {
		resp.ChangesetID = res.Changeset.ID
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) listChangesets(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := dataset.ChangesetFilter{IncludeUndone: q.Get("include_undone") == "true"}
	var err error
	if filter.Limit, err = intParam(q.Get("limit")); err != nil {
		writeError(w, http.StatusBadRequest, "invalid limit")
		return
	}
	if filter.Offset, err = intParam(q.Get("offset")); err != nil {
		writeError(w, http.StatusBadRequest, "invalid offset")
		return
	}

	list, err := s.cfg.Store.ListChangesets(r.Context(), filter)
	if err != nil {
		s.internalError(w, "list changesets", err)
		return
	}
	if list == nil {
		list = []model.Changeset{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"changesets": list})
}

func (s *Server) getChangeset(w http.ResponseWriter, r *http.Request) {
	cs, err := s.cfg.Store.GetChangeset(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.storeError(w, "get changeset", err)
		return
	}
	writeJSON(w, http.StatusOK, cs)
}

func (s *Server) undoChangeset(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.cfg.Store.UndoChangeset(r.Context(), id); err != nil {
		s.storeError(w, "undo changeset", err)
		return
	}
	s.log.Info("changeset undone", zap.String("id", id))
	writeJSON(w, http.StatusOK, map[string]string{"status": "undone", "id": id})
}

func (s *Server) storeError(w http.ResponseWriter, action string, err error) {
	switch {
	case errors.Is(err, dataset.ErrNotFound):
		writeError(w, http.StatusNotFound, "changeset not found")
	case errors.Is(err, dataset.ErrAlreadyUndone):
		writeError(w, http.StatusConflict, "changeset already undone")
	default:
		s.internalError(w, action, err)
	}
}

func (s *Server) internalError(w http.ResponseWriter, action string, err error) {
	s.log.Error("api: "+action, zap.Error(err))
	writeError(w, http.StatusInternalServerError, action+" failed")
}

func intParam(v string) (int, error) {
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, errors.New("invalid")
	}
	return n, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
