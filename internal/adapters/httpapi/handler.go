package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/usgin/modelmanager/internal/core/domain"
	"github.com/usgin/modelmanager/internal/core/ports"
	"github.com/usgin/modelmanager/internal/core/usecase"
)

const (
	maxJSONBodySize   = 1 << 20
	maxUploadBodySize = 32 << 20
	recentModelCount  = 3
)

type Handler struct {
	catalog    *usecase.CatalogService
	presenter  *usecase.Presenter
	schemas    *usecase.SchemaService
	validation *usecase.ValidationService
	resolver   *usecase.ResolverService
	files      ports.FileStorage
	log        *zap.Logger
}

func NewHandler(
	catalog *usecase.CatalogService,
	presenter *usecase.Presenter,
	schemas *usecase.SchemaService,
	validation *usecase.ValidationService,
	resolver *usecase.ResolverService,
	files ports.FileStorage,
	log *zap.Logger,
) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{
		catalog:    catalog,
		presenter:  presenter,
		schemas:    schemas,
		validation: validation,
		resolver:   resolver,
		files:      files,
		log:        log,
	}
}

func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(h.logRequests)

	r.Get("/healthz", h.healthz)
	r.Handle("/metrics", promhttp.Handler())

	r.Get("/contentmodels.json", h.listModels)
	r.Get("/contentmodels/recent.json", h.recentModels)
	r.Get("/contentmodel/{id}.json", h.getModel)
	r.Get("/modelversion/{id}/fields.json", h.versionFields)
	r.Get("/modelversion/{id}/typedetails.json", h.versionTypeDetails)

	r.Route("/admin", func(ar chi.Router) {
		ar.Post("/contentmodels", h.createModel)
		ar.Put("/contentmodels/{id}", h.updateModel)
		ar.Delete("/contentmodels/{id}", h.deleteModel)
		ar.Post("/contentmodels/{id}/versions", h.createVersion)
		ar.Put("/modelversions/{id}", h.updateVersion)
		ar.Delete("/modelversions/{id}", h.deleteVersion)
	})

	r.Route("/validate", func(vr chi.Router) {
		vr.Get("/wfs/capabilities", h.capabilities)
		vr.Post("/wfs", h.validateWFS)
		vr.Post("/cm", h.validateCSV)
		vr.Post("/dl_csv", h.downloadCSV)
	})

	r.Get("/uri-gin/{register}/*", h.resolve)
	r.Get("/files/*", h.serveFile)

	return r
}

func (h *Handler) healthz(w http.ResponseWriter, _ *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		h.log.Info("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Int("bytes", ww.BytesWritten()),
			zap.Duration("duration", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, body any) {
	data, err := json.Marshal(body)
	if err != nil {
		h.log.Error("encode json response", zap.Error(err))
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(append(data, '\n')); err != nil {
		h.log.Warn("write response", zap.Error(err))
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]any{"error": message})
}

func (h *Handler) handleDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		h.writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrDuplicateLabel):
		h.writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, domain.ErrInvalidTitle),
		errors.Is(err, domain.ErrInvalidLabel),
		errors.Is(err, domain.ErrInvalidVersion):
		h.writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrSchema):
		h.writeError(w, http.StatusUnprocessableEntity, err.Error())
	default:
		h.log.Error("request failed", zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

func (h *Handler) parseID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		h.writeError(w, http.StatusBadRequest, "id must be a positive integer")
		return 0, false
	}
	return id, true
}
