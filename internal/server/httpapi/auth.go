package httpapi

import (
	"net/http"

	"github.com/dmitrijs2005/authkeeper/internal/server/gate"
	"github.com/dmitrijs2005/authkeeper/internal/server/models"
)

func (s *Server) register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decode(r, &req); err != nil {
		writeError(r.Context(), w, s.logger, err)
		return
	}

	account, err := s.auth.Register(r.Context(), req.Email, req.Password, models.RoleUser)
	if err != nil {
		writeError(r.Context(), w, s.logger, err)
		return
	}

	writeJSON(w, http.StatusCreated, accountResponse{
		AccountID:      account.ID,
		Email:          account.Email,
		Role:           string(account.Role),
		EmailConfirmed: account.EmailConfirmed,
	})
}

func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decode(r, &req); err != nil {
		writeError(r.Context(), w, s.logger, err)
		return
	}

	res, err := s.auth.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		writeError(r.Context(), w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, newAuthResponse(res))
}

func (s *Server) refresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := decode(r, &req); err != nil {
		writeError(r.Context(), w, s.logger, err)
		return
	}

	res, err := s.auth.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		writeError(r.Context(), w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, newAuthResponse(res))
}

func (s *Server) logout(w http.ResponseWriter, r *http.Request) {
	p, err := gate.RequireAuth(r.Context())
	if err != nil {
		writeError(r.Context(), w, s.logger, err)
		return
	}

	if err := s.auth.Logout(r.Context(), p.Subject); err != nil {
		writeError(r.Context(), w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{Message: "logged out"})
}

func (s *Server) forgotPassword(w http.ResponseWriter, r *http.Request) {
	var req forgotPasswordRequest
	if err := decode(r, &req); err != nil {
		writeError(r.Context(), w, s.logger, err)
		return
	}

	code, err := s.auth.RequestResetCode(r.Context(), req.Email)
	if err != nil {
		writeError(r.Context(), w, s.logger, err)
		return
	}

	resp := messageResponse{Message: "reset code sent"}
	if s.opts.ExposeResetCode {
		resp.Code = code
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) resetPassword(w http.ResponseWriter, r *http.Request) {
	var req resetPasswordRequest
	if err := decode(r, &req); err != nil {
		writeError(r.Context(), w, s.logger, err)
		return
	}

	if err := s.auth.ResetPassword(r.Context(), req.Email, req.Code, req.NewPassword); err != nil {
		writeError(r.Context(), w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{Message: "password updated"})
}
