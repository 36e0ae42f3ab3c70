package httpapi

import (
	"bytes"
	"encoding/csv"
	"net/http"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/usgin/modelmanager/internal/core/domain"
)

type wfsValidationResponse struct {
	domain.ValidationReport
	FeatureType      string `json:"feature_type"`
	NumberOfFeatures int    `json:"number_of_features"`
	VersionID        int64  `json:"version_id"`
	WFSBaseURL       string `json:"wfs_base_url"`
}

type csvValidationResponse struct {
	domain.CSVResult
	DataCorrected string `json:"data_corrected"`
	Filepath      string `json:"filepath"`
}

func (h *Handler) capabilities(w http.ResponseWriter, r *http.Request) {
	report := h.validation.Capabilities(r.Context(), r.URL.Query().Get("url"))
	h.writeJSON(w, http.StatusOK, report)
}

// validateWFS reads url, feature_type, number_of_features and version from a
// form. Data problems are reported in the body with status 200.
func (h *Handler) validateWFS(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBodySize)
	if err := r.ParseForm(); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid form")
		return
	}
	versionID, err := strconv.ParseInt(r.PostFormValue("version"), 10, 64)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "version must be a model version id")
		return
	}
	count := domain.UnboundedFeatures
	if raw := r.PostFormValue("number_of_features"); raw != "" {
		if count, err = strconv.Atoi(raw); err != nil {
			h.writeError(w, http.StatusBadRequest, "number_of_features must be an integer")
			return
		}
	}

	req := domain.FeatureRequest{
		CapabilitiesURL: r.PostFormValue("url"),
		FeatureType:     r.PostFormValue("feature_type"),
		Count:           count,
		VersionID:       versionID,
	}
	report, err := h.validation.ValidateWFS(r.Context(), req)
	if err != nil {
		h.handleDomainError(w, err)
		return
	}
	base, _, _ := strings.Cut(report.URL, "?")
	h.writeJSON(w, http.StatusOK, wfsValidationResponse{
		ValidationReport: report,
		FeatureType:      req.FeatureType,
		NumberOfFeatures: count,
		VersionID:        versionID,
		WFSBaseURL:       base,
	})
}

// validateCSV takes a multipart upload in "file" plus version and
// feature_type fields.
func (h *Handler) validateCSV(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBodySize)
	if err := r.ParseMultipartForm(maxUploadBodySize); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}
	defer r.MultipartForm.RemoveAll()

	versionID, err := strconv.ParseInt(r.FormValue("version"), 10, 64)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "version must be a model version id")
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "file is required")
		return
	}
	content, err := readUpload(file)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "could not read upload")
		return
	}

	upload := domain.CSVUpload{Filename: header.Filename, Content: content}
	result, err := h.validation.ValidateCSV(r.Context(), upload, versionID, r.FormValue("feature_type"))
	if err != nil {
		h.handleDomainError(w, err)
		return
	}
	corrected, err := encodeCSV(result.CorrectedRows)
	if err != nil {
		h.log.Warn("encode corrected csv", zap.Error(err))
	}
	h.writeJSON(w, http.StatusOK, csvValidationResponse{
		CSVResult:     result,
		DataCorrected: corrected,
		Filepath:      header.Filename,
	})
}

// downloadCSV re-emits the corrected data posted in new_data as a CSV
// attachment.
func (h *Handler) downloadCSV(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBodySize)
	if err := r.ParseForm(); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid form")
		return
	}
	reader := csv.NewReader(strings.NewReader(r.PostFormValue("new_data")))
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	rows, err := reader.ReadAll()
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "new_data is not valid csv")
		return
	}
	out, err := encodeCSV(rows)
	if err != nil {
		h.handleDomainError(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="CorrectedData.csv"`)
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte(out)); err != nil {
		h.log.Warn("write csv", zap.Error(err))
	}
}

func encodeCSV(rows [][]string) (string, error) {
	var buf bytes.Buffer
	cw := csv.NewWriter(&buf)
	cw.UseCRLF = true
	if err := cw.WriteAll(rows); err != nil {
		return "", err
	}
	return buf.String(), nil
}
