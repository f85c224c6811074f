package httpapi

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
)

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.writeSuccess(w, s.controller.Status(r.Context()))
}

func (s *Server) handleSetMode(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Mode string `json:"mode"`
	}
	if err := decodeBody(r, &req); err != nil {
		s.writeJSON(w, http.StatusBadRequest, apiResponse{Success: false, Error: "invalid request body"})
		return
	}
	switch req.Mode {
	case "rule", "global", "direct":
	default:
		s.writeJSON(w, http.StatusBadRequest, apiResponse{
			Success: false, Error: fmt.Sprintf("unknown mode %q", req.Mode)})
		return
	}
	if err := s.controller.SetMode(r.Context(), req.Mode); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeSuccess(w, map[string]string{"mode": req.Mode})
}

func (s *Server) handleSetTun(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Enable bool `json:"enable"`
	}
	if err := decodeBody(r, &req); err != nil {
		s.writeJSON(w, http.StatusBadRequest, apiResponse{Success: false, Error: "invalid request body"})
		return
	}
	if err := s.controller.SetTun(r.Context(), req.Enable); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeSuccess(w, map[string]bool{"enable": req.Enable})
}

func (s *Server) handleSetSystemProxy(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Enable bool `json:"enable"`
	}
	if err := decodeBody(r, &req); err != nil {
		s.writeJSON(w, http.StatusBadRequest, apiResponse{Success: false, Error: "invalid request body"})
		return
	}
	if err := s.controller.SetSystemProxy(req.Enable); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeSuccess(w, map[string]bool{"enable": req.Enable})
}

func (s *Server) handleRestartKernel(w http.ResponseWriter, _ *http.Request) {
	if err := s.controller.RestartKernel(); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeSuccess(w, map[string]string{"status": "restarting"})
}

func (s *Server) handleGetProxies(w http.ResponseWriter, r *http.Request) {
	proxies, err := s.controller.Proxies(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeSuccess(w, proxies)
}

func (s *Server) handleSelectProxy(w http.ResponseWriter, r *http.Request) {
	group := chi.URLParam(r, "group")
	var req struct {
		Name string `json:"name"`
	}
	if err := decodeBody(r, &req); err != nil || req.Name == "" {
		s.writeJSON(w, http.StatusBadRequest, apiResponse{Success: false, Error: "proxy name required"})
		return
	}
	if err := s.controller.SelectProxy(r.Context(), group, req.Name); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeSuccess(w, map[string]string{"group": group, "name": req.Name})
}

func (s *Server) handleGroupDelay(w http.ResponseWriter, r *http.Request) {
	group := chi.URLParam(r, "group")
	if err := s.controller.Client().GroupDelayTest(r.Context(), group); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeSuccess(w, map[string]string{"group": group})
}

func (s *Server) handleGetConnections(w http.ResponseWriter, r *http.Request) {
	info, err := s.controller.Client().GetConnections(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeSuccess(w, info)
}

func (s *Server) handleCloseAllConnections(w http.ResponseWriter, r *http.Request) {
	if err := s.controller.Client().CloseAllConnections(r.Context()); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeSuccess(w, nil)
}

func (s *Server) handleCloseConnection(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.controller.Client().CloseConnection(r.Context(), id); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeSuccess(w, nil)
}

func (s *Server) handleGetRules(w http.ResponseWriter, r *http.Request) {
	rules, err := s.controller.Client().GetRules(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeSuccess(w, rules)
}

func (s *Server) handleQueryDNS(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("name")
	if name == "" {
		s.writeJSON(w, http.StatusBadRequest, apiResponse{Success: false, Error: "query name required"})
		return
	}
	answer, err := s.controller.Client().QueryDNS(r.Context(), name)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeSuccess(w, answer)
}

func (s *Server) handleGetProxyProviders(w http.ResponseWriter, r *http.Request) {
	providers, err := s.controller.Client().GetProxyProviders(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeSuccess(w, providers)
}

func (s *Server) handleUpdateProxyProvider(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if err := s.controller.Client().UpdateProxyProvider(r.Context(), name); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeSuccess(w, map[string]string{"name": name})
}

func (s *Server) handleGetRuleProviders(w http.ResponseWriter, r *http.Request) {
	providers, err := s.controller.Client().GetRuleProviders(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeSuccess(w, providers)
}

func (s *Server) handleUpdateRuleProvider(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if err := s.controller.Client().UpdateRuleProvider(r.Context(), name); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeSuccess(w, map[string]string{"name": name})
}

func (s *Server) handleReload(w http.ResponseWriter, r *http.Request) {
	if err := s.controller.Client().Reload(r.Context()); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeSuccess(w, nil)
}

func (s *Server) handleUpdateGeo(w http.ResponseWriter, r *http.Request) {
	if err := s.controller.Client().UpdateGeo(r.Context()); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeSuccess(w, nil)
}

func (s *Server) handleFlushFakeIP(w http.ResponseWriter, r *http.Request) {
	if err := s.controller.Client().FlushFakeIP(r.Context()); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeSuccess(w, nil)
}

func (s *Server) handleForceGC(w http.ResponseWriter, r *http.Request) {
	if err := s.controller.Client().ForceGC(r.Context()); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeSuccess(w, nil)
}

func (s *Server) handleGetLogs(w http.ResponseWriter, _ *http.Request) {
	s.writeSuccess(w, s.controller.Logs().Recent())
}

func (s *Server) handleGetStats(w http.ResponseWriter, _ *http.Request) {
	s.writeSuccess(w, s.controller.Stats().History())
}

func (s *Server) handleGetStatsToday(w http.ResponseWriter, _ *http.Request) {
	s.writeSuccess(w, s.controller.Stats().Today())
}

func (s *Server) handleGetTraffic(w http.ResponseWriter, _ *http.Request) {
	s.writeSuccess(w, s.controller.TrafficSamples())
}

func (s *Server) handleGetTrafficLive(w http.ResponseWriter, _ *http.Request) {
	s.writeSuccess(w, s.controller.Traffic().History())
}

func (s *Server) handleListProfiles(w http.ResponseWriter, _ *http.Request) {
	s.writeSuccess(w, map[string]interface{}{
		"profiles": s.controller.Profiles().List(),
		"active":   s.controller.Profiles().Active(),
	})
}

func (s *Server) handleAddProfile(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name"`
		URL  string `json:"url"`
	}
	if err := decodeBody(r, &req); err != nil || req.URL == "" {
		s.writeJSON(w, http.StatusBadRequest, apiResponse{Success: false, Error: "profile url required"})
		return
	}
	if req.Name == "" {
		req.Name = req.URL
	}
	p, err := s.controller.Profiles().Add(req.Name, req.URL)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, apiResponse{Success: true, Data: p})
}

func (s *Server) handleDeleteProfile(w http.ResponseWriter, r *http.Request) {
	if err := s.controller.Profiles().Delete(chi.URLParam(r, "id")); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeSuccess(w, nil)
}

func (s *Server) handleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	p, err := s.controller.UpdateProfile(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeSuccess(w, p)
}

func (s *Server) handleActivateProfile(w http.ResponseWriter, r *http.Request) {
	if err := s.controller.ActivateProfile(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeSuccess(w, nil)
}
