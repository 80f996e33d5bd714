package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"sort"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/nidhogg/nuka-dialogue/internal/agent"
	"github.com/nidhogg/nuka-dialogue/internal/app"
	"github.com/nidhogg/nuka-dialogue/internal/dialogue"
	"github.com/nidhogg/nuka-dialogue/internal/memory"
	"github.com/nidhogg/nuka-dialogue/internal/provider"
	"go.uber.org/zap"
)

// Handler exposes a running simulation over HTTP.
type Handler struct {
	app    *app.App
	logger *zap.Logger
}

// NewHandler creates a new API handler.
func NewHandler(a *app.App, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{app: a, logger: logger}
}

// Router builds the chi router with all routes.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type"},
		AllowCredentials: false,
	}))

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", h.healthCheck)
		r.Get("/providers", h.listProviders)

		r.Get("/agents", h.listAgents)
		r.Get("/agents/{name}/summary", h.agentSummary)
		r.Get("/agents/{name}/memories", h.agentMemories)
		r.Post("/agents/{name}/observe", h.observe)
		r.Post("/agents/{name}/react", h.react)

		r.Post("/sim/inject", h.inject)
		r.Post("/sim/tick", h.tick)
		r.Post("/sim/reset", h.reset)
		r.Get("/sim/status", h.status)
		r.Get("/sim/transcript", h.transcript)
	})
	r.Handle("/metrics", h.app.Metrics.Handler())

	return r
}

func (h *Handler) healthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "service": "nuka-dialogue"})
}

type providerInfo struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

func (h *Handler) listProviders(w http.ResponseWriter, r *http.Request) {
	ps := h.app.Router.ListProviders()
	out := make([]providerInfo, 0, len(ps))
	for _, p := range ps {
		out = append(out, providerInfo{ID: p.ID(), Name: p.Name()})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	writeJSON(w, http.StatusOK, out)
}

type agentInfo struct {
	Name        string       `json:"name"`
	Traits      string       `json:"traits"`
	Status      agent.Status `json:"status"`
	Memories    int          `json:"memories"`
	Reflections int          `json:"reflections"`
	Aggregate   float64      `json:"aggregate_importance"`
}

func describe(a *agent.Agent) agentInfo {
	return agentInfo{
		Name:        a.Name(),
		Traits:      a.Persona().Traits,
		Status:      a.Status(),
		Memories:    a.Memory().Stream().Len(),
		Reflections: a.Memory().Passes(),
		Aggregate:   a.Memory().Aggregate(),
	}
}

func (h *Handler) listAgents(w http.ResponseWriter, r *http.Request) {
	out := make([]agentInfo, 0, len(h.app.Agents))
	for _, a := range h.app.Agents {
		out = append(out, describe(a))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) lookup(w http.ResponseWriter, r *http.Request) (*agent.Agent, bool) {
	name := chi.URLParam(r, "name")
	a, ok := h.app.Agent(name)
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "agent not found"})
	}
	return a, ok
}

func (h *Handler) agentSummary(w http.ResponseWriter, r *http.Request) {
	a, ok := h.lookup(w, r)
	if !ok {
		return
	}
	force := r.URL.Query().Get("force") == "true"
	summary, err := a.Summary(r.Context(), force)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"name": a.Name(), "summary": summary})
}

func (h *Handler) agentMemories(w http.ResponseWriter, r *http.Request) {
	a, ok := h.lookup(w, r)
	if !ok {
		return
	}
	q := r.URL.Query().Get("q")
	k := 10
	if s := r.URL.Query().Get("k"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "k must be a positive integer"})
			return
		}
		k = n
	}

	// Without a query, list the newest records and leave access times alone.
	if q == "" {
		writeJSON(w, http.StatusOK, a.Memory().Stream().Recent(k))
		return
	}
	results, err := a.Memory().Stream().Query(r.Context(), q, k)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if results == nil {
		results = []memory.Retrieved{}
	}
	writeJSON(w, http.StatusOK, results)
}

type observeRequest struct {
	Content string `json:"content"`
}

func (h *Handler) observe(w http.ResponseWriter, r *http.Request) {
	a, ok := h.lookup(w, r)
	if !ok {
		return
	}
	var req observeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	if err := a.Observe(r.Context(), req.Content); err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, describe(a))
}

type reactRequest struct {
	Observation string `json:"observation"`
}

func (h *Handler) react(w http.ResponseWriter, r *http.Request) {
	a, ok := h.lookup(w, r)
	if !ok {
		return
	}
	var req reactRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	keepGoing, utterance, err := a.React(r.Context(), req.Observation)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"continue": keepGoing, "utterance": utterance})
}

type injectRequest struct {
	Name    string `json:"name"`
	Message string `json:"message"`
}

func (h *Handler) inject(w http.ResponseWriter, r *http.Request) {
	var req injectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	if req.Message == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "message is required"})
		return
	}
	if req.Name == "" {
		req.Name = h.app.Config.Simulation.Narrator
	}
	turn, err := h.app.Sim.Inject(r.Context(), req.Name, req.Message)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, turn)
}

type tickRequest struct {
	Turns int `json:"turns"`
}

func (h *Handler) tick(w http.ResponseWriter, r *http.Request) {
	req := tickRequest{Turns: 1}
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
			return
		}
	}
	if req.Turns <= 0 {
		req.Turns = 1
	}
	turns, err := h.app.Sim.Run(r.Context(), req.Turns)
	if err != nil {
		h.logger.Warn("tick failed", zap.Int("completed", len(turns)), zap.Error(err))
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, turns)
}

func (h *Handler) reset(w http.ResponseWriter, r *http.Request) {
	if err := h.app.Sim.Reset(r.Context()); err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"step": h.app.Sim.Step(), "run_id": h.app.Sim.RunID()})
}

func (h *Handler) status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"run_id":     h.app.Sim.RunID(),
		"step":       h.app.Sim.Step(),
		"world_time": h.app.Clock.Now(),
		"roster":     h.app.Sim.Roster(),
		"policy":     h.app.Config.Simulation.Policy,
	})
}

// transcript serves the run's turns from Redis when the bus is connected,
// otherwise from the in-process history.
func (h *Handler) transcript(w http.ResponseWriter, r *http.Request) {
	if h.app.Bus != nil {
		msgs, err := h.app.Bus.History(r.Context(), h.app.Sim.RunID(), 1000)
		if err == nil {
			writeJSON(w, http.StatusOK, msgs)
			return
		}
		h.logger.Warn("transcript read from redis failed", zap.Error(err))
	}
	runID := h.app.Sim.RunID()
	out := []dialogue.Turn{}
	for _, t := range h.app.History.Turns() {
		if t.RunID == runID {
			out = append(out, t)
		}
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, dialogue.ErrUnknownAgent):
		status = http.StatusNotFound
	case errors.Is(err, memory.ErrEmptyContent):
		status = http.StatusBadRequest
	case errors.Is(err, dialogue.ErrInvalidSelection):
		status = http.StatusConflict
	case errors.Is(err, provider.ErrProviderUnavailable):
		status = http.StatusBadGateway
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
