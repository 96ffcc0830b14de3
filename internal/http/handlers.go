package http

import (
	"net/http"
	"time"

	"sourverse/internal/services"
)

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	a, err := s.accounts.Register(r.Context(), services.RegisterInput{
		Email:             req.Email,
		Password:          req.Password,
		Name:              req.Name,
		Location:          req.Location,
		EnergyPreferences: req.EnergyPreferences,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, registerResponse{Message: "User registered successfully", UserID: a.ID})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	sess, err := s.accounts.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, loginResponse{
		Token:     sess.Token,
		UserID:    sess.UserID,
		ExpiresAt: sess.ExpiresAt.UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleProfile(w http.ResponseWriter, r *http.Request) {
	a, err := s.accounts.Profile(r.Context(), userID(r, r.URL.Query().Get("userId")))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newAccountView(a))
}

func (s *Server) handleCreateProject(w http.ResponseWriter, r *http.Request) {
	var req projectRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	p, err := s.projects.Create(r.Context(), services.CreateProjectInput{
		Name:            req.Name,
		Location:        req.Location,
		Capacity:        req.Capacity,
		ExpectedReturn:  req.ExpectedReturn,
		TotalInvestment: req.TotalInvestment,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, newProjectView(p))
}

func (s *Server) handleListProjects(w http.ResponseWriter, r *http.Request) {
	projects, err := s.projects.List(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newProjectViews(projects))
}

func (s *Server) handleWallet(w http.ResponseWriter, r *http.Request) {
	balance, err := s.accounts.Balance(r.Context(), userID(r, r.URL.Query().Get("userId")))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, balanceResponse{Balance: balance})
}

func (s *Server) handleTopUp(w http.ResponseWriter, r *http.Request) {
	var req topUpRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	id := userID(r, req.UserID)
	if err := requireID("userId", id); err != nil {
		s.writeError(w, r, err)
		return
	}

	balance, err := s.accounts.TopUp(r.Context(), id, req.Amount)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, balanceResponse{Message: "Funds added successfully", Balance: balance})
}

func (s *Server) handleInvest(w http.ResponseWriter, r *http.Request) {
	var req investRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	id := userID(r, req.UserID)
	if err := requireID("userId", id); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := requireID("projectId", req.ProjectID); err != nil {
		s.writeError(w, r, err)
		return
	}

	res, err := s.investments.Invest(r.Context(), id, req.ProjectID, req.Amount)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, balanceResponse{Message: "Investment successful", Balance: res.Balance})
}

func (s *Server) handleInvestments(w http.ResponseWriter, r *http.Request) {
	projects, err := s.accounts.Investments(r.Context(), userID(r, r.URL.Query().Get("userId")))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newProjectViews(projects))
}
