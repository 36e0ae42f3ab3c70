package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"

	"github.com/usgin/modelmanager/internal/core/domain"
	"github.com/usgin/modelmanager/internal/core/usecase"
)

type modelRequest struct {
	Title       string `json:"title"`
	Label       string `json:"label"`
	Description string `json:"description"`
	Discussion  string `json:"discussion"`
	Status      string `json:"status"`
}

// uploadFields names the multipart parts carrying version files.
var uploadFields = map[string]usecase.FileKind{
	"xsd_file": usecase.FileXSD,
	"xls_file": usecase.FileXLS,
	"sld_file": usecase.FileSLD,
	"lyr_file": usecase.FileLYR,
}

func (h *Handler) listModels(w http.ResponseWriter, r *http.Request) {
	models, err := h.catalog.ListModels(r.Context())
	if err != nil {
		h.handleDomainError(w, err)
		return
	}
	views := make([]usecase.ModelView, 0, len(models))
	for _, m := range models {
		views = append(views, h.presenter.Model(r.Context(), m))
	}
	h.writeJSON(w, http.StatusOK, views)
}

func (h *Handler) recentModels(w http.ResponseWriter, r *http.Request) {
	n := recentModelCount
	if raw := r.URL.Query().Get("n"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			h.writeError(w, http.StatusBadRequest, "n must be a positive integer")
			return
		}
		n = parsed
	}
	models, err := h.catalog.RecentModels(r.Context(), n)
	if err != nil {
		h.handleDomainError(w, err)
		return
	}
	views := make([]usecase.ModelView, 0, len(models))
	for _, m := range models {
		views = append(views, h.presenter.Model(r.Context(), m))
	}
	h.writeJSON(w, http.StatusOK, views)
}

func (h *Handler) getModel(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseID(w, r)
	if !ok {
		return
	}
	m, err := h.catalog.GetModel(r.Context(), id)
	if err != nil {
		h.handleDomainError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, h.presenter.Model(r.Context(), m))
}

func (h *Handler) versionFields(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseID(w, r)
	if !ok {
		return
	}
	v, _, err := h.catalog.GetVersion(r.Context(), id)
	if err != nil {
		h.handleDomainError(w, err)
		return
	}
	fields, err := h.schemas.Fields(r.Context(), v)
	if err != nil {
		h.handleDomainError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, fields)
}

func (h *Handler) versionTypeDetails(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseID(w, r)
	if !ok {
		return
	}
	v, _, err := h.catalog.GetVersion(r.Context(), id)
	if err != nil {
		h.handleDomainError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, h.schemas.TypeDetails(r.Context(), v))
}

func (h *Handler) createModel(w http.ResponseWriter, r *http.Request) {
	h.saveModel(w, r, 0)
}

func (h *Handler) updateModel(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseID(w, r)
	if !ok {
		return
	}
	h.saveModel(w, r, id)
}

func (h *Handler) saveModel(w http.ResponseWriter, r *http.Request, id int64) {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBodySize)
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	var req modelRequest
	if err := decoder.Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}

	m, err := h.catalog.SaveModel(r.Context(), domain.ContentModel{
		ID:          id,
		Title:       req.Title,
		Label:       req.Label,
		Description: req.Description,
		Discussion:  req.Discussion,
		Status:      req.Status,
	})
	if err != nil {
		h.handleDomainError(w, err)
		return
	}
	status := http.StatusOK
	if id == 0 {
		status = http.StatusCreated
	}
	h.writeJSON(w, status, h.presenter.Model(r.Context(), m))
}

func (h *Handler) deleteModel(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseID(w, r)
	if !ok {
		return
	}
	deleted, err := h.catalog.DeleteModel(r.Context(), id)
	if err != nil {
		h.handleDomainError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]bool{"deleted": deleted})
}

func (h *Handler) createVersion(w http.ResponseWriter, r *http.Request) {
	modelID, ok := h.parseID(w, r)
	if !ok {
		return
	}
	h.saveVersion(w, r, domain.ModelVersion{ContentModelID: modelID})
}

func (h *Handler) updateVersion(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseID(w, r)
	if !ok {
		return
	}
	current, _, err := h.catalog.GetVersion(r.Context(), id)
	if err != nil {
		h.handleDomainError(w, err)
		return
	}
	h.saveVersion(w, r, domain.ModelVersion{ID: id, ContentModelID: current.ContentModelID})
}

// saveVersion reads a multipart form with the version number, an optional
// sample WFS request and the model files.
func (h *Handler) saveVersion(w http.ResponseWriter, r *http.Request, v domain.ModelVersion) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBodySize)
	if err := r.ParseMultipartForm(maxUploadBodySize); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}
	defer r.MultipartForm.RemoveAll()

	v.Version = r.FormValue("version")
	v.SampleWFSRequest = r.FormValue("sample_wfs_request")

	var uploads []usecase.VersionFile
	for field, kind := range uploadFields {
		file, header, err := r.FormFile(field)
		if errors.Is(err, http.ErrMissingFile) {
			continue
		}
		if err != nil {
			h.writeError(w, http.StatusBadRequest, "invalid upload "+field)
			return
		}
		defer file.Close()
		uploads = append(uploads, usecase.VersionFile{Kind: kind, Filename: header.Filename, Content: file})
	}

	saved, err := h.catalog.SaveVersion(r.Context(), v, uploads)
	if err != nil {
		h.handleDomainError(w, err)
		return
	}
	_, m, err := h.catalog.GetVersion(r.Context(), saved.ID)
	if err != nil {
		h.handleDomainError(w, err)
		return
	}
	status := http.StatusOK
	if v.ID == 0 {
		status = http.StatusCreated
	}
	h.writeJSON(w, status, h.presenter.Version(r.Context(), m, saved))
}

func (h *Handler) deleteVersion(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseID(w, r)
	if !ok {
		return
	}
	deleted, err := h.catalog.DeleteVersion(r.Context(), id)
	if err != nil {
		h.handleDomainError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]bool{"deleted": deleted})
}

func readUpload(file multipart.File) ([]byte, error) {
	defer file.Close()
	return io.ReadAll(file)
}
