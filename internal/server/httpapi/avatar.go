package httpapi

import (
	"net/http"
	"strconv"

	"github.com/dmitrijs2005/authkeeper/internal/common"
	"github.com/dmitrijs2005/authkeeper/internal/server/gate"
)

func (s *Server) avatarUploadURL(w http.ResponseWriter, r *http.Request) {
	p, err := gate.RequireAuth(r.Context())
	if err != nil {
		writeError(r.Context(), w, s.logger, err)
		return
	}

	q := r.URL.Query()
	length, err := strconv.ParseInt(q.Get("contentLength"), 10, 64)
	if err != nil {
		writeError(r.Context(), w, s.logger, common.NewError(common.ErrorInvalidInput, "contentLength must be a number"))
		return
	}

	up, err := s.avatars.CreateUploadURL(r.Context(), p.AccountID, q.Get("contentType"), length)
	if err != nil {
		writeError(r.Context(), w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, uploadURLResponse{PutURL: up.PutURL, Key: up.Key, PublicURL: up.PublicURL})
}

func (s *Server) avatarCommit(w http.ResponseWriter, r *http.Request) {
	p, err := gate.RequireAuth(r.Context())
	if err != nil {
		writeError(r.Context(), w, s.logger, err)
		return
	}

	var req commitAvatarRequest
	if err := decode(r, &req); err != nil {
		writeError(r.Context(), w, s.logger, err)
		return
	}

	profile, err := s.avatars.Commit(r.Context(), p.AccountID, req.Key, req.ETag)
	if err != nil {
		writeError(r.Context(), w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, avatarResponse{
		AvatarURL:  profile.AvatarURL,
		AvatarKey:  profile.AvatarKey,
		AvatarETag: profile.AvatarETag,
	})
}

func (s *Server) avatarDelete(w http.ResponseWriter, r *http.Request) {
	p, err := gate.RequireAuth(r.Context())
	if err != nil {
		writeError(r.Context(), w, s.logger, err)
		return
	}

	if err := s.avatars.Delete(r.Context(), p.AccountID); err != nil {
		writeError(r.Context(), w, s.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
