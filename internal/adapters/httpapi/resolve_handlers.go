package httpapi

import (
	"errors"
	"io/fs"
	"net/http"
	"path"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/usgin/modelmanager/internal/core/domain"
)

// resolve answers a URI of a register with a 303 to the representation the
// client asked for.
func (h *Handler) resolve(w http.ResponseWriter, r *http.Request) {
	register := chi.URLParam(r, "register")
	target, err := h.resolver.Resolve(r.Context(), register, chi.URLParam(r, "*"), r.Header.Get("Accept"))
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			h.writeError(w, http.StatusNotFound, "no rewrite rule matches "+r.URL.Path)
			return
		}
		h.handleDomainError(w, err)
		return
	}
	h.log.Debug("uri resolved", zap.String("register", register), zap.String("path", r.URL.Path), zap.String("target", target))
	http.Redirect(w, r, target, http.StatusSeeOther)
}

func (h *Handler) serveFile(w http.ResponseWriter, r *http.Request) {
	name := path.Clean(strings.TrimPrefix(chi.URLParam(r, "*"), "/"))
	if !fs.ValidPath(name) || name == "." {
		h.writeError(w, http.StatusNotFound, "file not found")
		return
	}
	fsys := h.files.FS(r.Context())
	if info, err := fs.Stat(fsys, name); err != nil || info.IsDir() {
		h.writeError(w, http.StatusNotFound, "file not found")
		return
	}
	http.ServeFileFS(w, r, fsys, name)
}
