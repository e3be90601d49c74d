// Package devserver is a local policy-registry stand-in for integration
// tests: it serves the same GET /policies/{id} shape
// pkg/policyclient.HTTPClient expects, backed by an in-memory store an
// operator or test can populate over HTTP, grounded on teacher
// core/noa.go's gin router + corsMiddleware construction generalized to
// gorilla/mux + rs/cors (per SPEC_FULL.md §10's separate debug-server
// requirement, distinct from cmd/agentbusd's gin ops surface).
package devserver

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gorilla/mux"
	"github.com/rs/cors"

	"github.com/acgs2/agentbus/pkg/policyclient"
)

// Server holds registered policy documents in memory and exposes them over
// HTTP for a policyclient.HTTPClient pointed at it.
type Server struct {
	mu       sync.RWMutex
	policies map[string]policyclient.Policy
}

// New constructs an empty Server.
func New() *Server {
	return &Server{policies: make(map[string]policyclient.Policy)}
}

// Put registers (or replaces) a policy document in-process, without going
// through HTTP — handy for test setup.
func (s *Server) Put(p policyclient.Policy) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.policies[p.ID] = p
}

// Handler returns the CORS-wrapped mux.Router serving the registry API.
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/policies/{id}", s.getPolicy).Methods(http.MethodGet)
	r.HandleFunc("/policies/{id}", s.putPolicy).Methods(http.MethodPut)
	r.HandleFunc("/policies/{id}", s.deletePolicy).Methods(http.MethodDelete)

	c := cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Origin", "Content-Type", "Accept", "X-Internal-API-Key"},
	})
	return c.Handler(r)
}

func (s *Server) getPolicy(w http.ResponseWriter, req *http.Request) {
	id := mux.Vars(req)["id"]
	s.mu.RLock()
	policy, ok := s.policies[id]
	s.mu.RUnlock()
	if !ok {
		http.Error(w, "policy not found", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(policy)
}

func (s *Server) putPolicy(w http.ResponseWriter, req *http.Request) {
	id := mux.Vars(req)["id"]
	var policy policyclient.Policy
	if err := json.NewDecoder(req.Body).Decode(&policy); err != nil {
		http.Error(w, "invalid policy document: "+err.Error(), http.StatusBadRequest)
		return
	}
	policy.ID = id
	s.Put(policy)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) deletePolicy(w http.ResponseWriter, req *http.Request) {
	id := mux.Vars(req)["id"]
	s.mu.Lock()
	delete(s.policies, id)
	s.mu.Unlock()
	w.WriteHeader(http.StatusNoContent)
}
