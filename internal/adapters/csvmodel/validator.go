package csvmodel

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/usgin/modelmanager/internal/core/domain"
	"github.com/usgin/modelmanager/internal/core/ports"
)

const (
	// maxFieldNameLength is the longest column name a shapefile keeps.
	maxFieldNameLength = 10
	defaultSRS         = "EPSG:4326"
	srsColumn          = "SRS"
	utf8BOM            = "\ufeff"
)

// Validator checks CSV uploads against a layer of a content model version.
// Every problem is reported inside the result.
type Validator struct {
	log *zap.Logger
}

func NewValidator(log *zap.Logger) *Validator {
	if log == nil {
		log = zap.NewNop()
	}
	return &Validator{log: log}
}

func (v *Validator) Validate(_ context.Context, upload domain.CSVUpload, target domain.CSVTarget) domain.CSVResult {
	if !strings.EqualFold(filepath.Ext(upload.Filename), ".csv") {
		return invalid("Only CSV files may be validated.")
	}
	if !utf8.Valid(upload.Content) {
		return invalid(fmt.Sprintf("%s: %s is not UTF-8 encoded text", domain.ErrUploadFormat, upload.Filename))
	}
	fields, ok := target.Layers[target.Layer]
	if !ok {
		return invalid(fmt.Sprintf("%s: %q is not a layer of %s (known layers: %s)",
			domain.ErrUnknownLayer, target.Layer, target.VersionURI, strings.Join(layerNames(target.Layers), ", ")))
	}

	rows, err := readRows(upload.Content)
	if err != nil {
		return invalid(fmt.Sprintf("%s: %v", domain.ErrUploadFormat, err))
	}
	if len(rows) == 0 {
		return invalid(fmt.Sprintf("%s: %s has no header row", domain.ErrUploadFormat, upload.Filename))
	}

	res := domain.CSVResult{Valid: true, Messages: []string{}, LongFieldNames: []string{}, SpatialReference: defaultSRS}
	header, headerMsgs, ok := matchHeader(rows[0], fields)
	res.Messages = append(res.Messages, headerMsgs...)
	if !ok {
		res.Valid = false
	}
	for _, name := range header {
		if utf8.RuneCountInString(name) > maxFieldNameLength {
			res.LongFieldNames = append(res.LongFieldNames, name)
		}
	}

	sch, err := compiledRowSchema(fields)
	if err != nil {
		v.log.Error("compile csv row schema", zap.String("layer", target.Layer), zap.Error(err))
		return invalid(fmt.Sprintf("%s: %v", domain.ErrSchema, err))
	}

	kinds := make(map[string]kind, len(fields))
	for _, f := range fields {
		kinds[f.Name] = kindOf(f.Type)
	}

	res.CorrectedRows = [][]string{header}
	srsIndex := indexOf(header, srsColumn)
	for i, row := range rows[1:] {
		line := i + 2
		corrected := make([]string, len(header))
		record := map[string]any{}
		for col := range header {
			cell := ""
			if col < len(row) {
				cell = strings.TrimSpace(row[col])
			}
			corrected[col] = cell
			if k, known := kinds[header[col]]; known && cell != "" {
				record[header[col]] = typedValue(cell, k)
			}
		}
		if len(row) > len(header) {
			res.Valid = false
			res.Messages = append(res.Messages, fmt.Sprintf("Row %d: %d values for %d columns", line, len(row), len(header)))
		}
		if srsIndex >= 0 && res.SpatialReference == defaultSRS && corrected[srsIndex] != "" {
			res.SpatialReference = corrected[srsIndex]
		}

		if err := runValidation(sch, record); err != nil {
			res.Valid = false
			var violation *domain.ErrSchemaViolation
			if errors.As(err, &violation) {
				for _, msg := range violation.Errors {
					res.Messages = append(res.Messages, fmt.Sprintf("Row %d: %s", line, msg))
				}
			} else {
				res.Messages = append(res.Messages, fmt.Sprintf("Row %d: %v", line, err))
			}
		}
		res.CorrectedRows = append(res.CorrectedRows, corrected)
	}

	if len(rows) == 1 {
		res.Valid = false
		res.Messages = append(res.Messages, "The file has no data rows.")
	}
	return res
}

func invalid(msg string) domain.CSVResult {
	return domain.CSVResult{Messages: []string{msg}, LongFieldNames: []string{}, SpatialReference: defaultSRS}
}

func readRows(content []byte) ([][]string, error) {
	content = bytes.TrimPrefix(content, []byte(utf8BOM))
	r := csv.NewReader(bytes.NewReader(content))
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	var rows [][]string
	for {
		rec, err := r.Read()
		if err == io.EOF {
			return rows, nil
		}
		if err != nil {
			return nil, err
		}
		if len(rec) == 1 && strings.TrimSpace(rec[0]) == "" {
			continue
		}
		rows = append(rows, rec)
	}
}

// matchHeader maps header cells onto schema field names. Case and
// surrounding space differences are corrected with a message; unknown
// columns and missing required fields make the upload invalid.
func matchHeader(raw []string, fields []domain.FieldInfo) ([]string, []string, bool) {
	byFold := make(map[string]string, len(fields))
	for _, f := range fields {
		byFold[strings.ToLower(f.Name)] = f.Name
	}

	ok := true
	var msgs []string
	header := make([]string, len(raw))
	present := map[string]bool{}
	for i, cell := range raw {
		name := strings.TrimSpace(cell)
		if canonical, known := byFold[strings.ToLower(name)]; known {
			if canonical != cell {
				msgs = append(msgs, fmt.Sprintf("Field name %q corrected to %q", cell, canonical))
			}
			name = canonical
		} else if !strings.EqualFold(name, srsColumn) {
			ok = false
			msgs = append(msgs, fmt.Sprintf("Field %q is not part of the content model", name))
		}
		header[i] = name
		present[name] = true
	}
	for _, f := range fields {
		if !f.Optional && !present[f.Name] {
			ok = false
			msgs = append(msgs, fmt.Sprintf("Required field %q is missing", f.Name))
		}
	}
	return header, msgs, ok
}

func indexOf(list []string, name string) int {
	for i, s := range list {
		if strings.EqualFold(s, name) {
			return i
		}
	}
	return -1
}

func layerNames(layers map[string][]domain.FieldInfo) []string {
	out := make([]string, 0, len(layers))
	for name := range layers {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

var _ ports.CSVValidator = (*Validator)(nil)
