package csvmodel

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	santhosh "github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/usgin/modelmanager/internal/core/domain"
)

// kind is the JSON type a schema field maps to.
type kind string

const (
	kindString  kind = "string"
	kindNumber  kind = "number"
	kindInteger kind = "integer"
	kindBoolean kind = "boolean"
)

func kindOf(xsdType string) kind {
	switch strings.ToLower(xsdType) {
	case "double", "float", "decimal":
		return kindNumber
	case "int", "integer", "long", "short", "byte",
		"positiveinteger", "nonnegativeinteger", "negativeinteger", "nonpositiveinteger",
		"unsignedint", "unsignedlong", "unsignedshort", "unsignedbyte":
		return kindInteger
	case "boolean":
		return kindBoolean
	default:
		return kindString
	}
}

// rowSchema builds a JSON Schema describing one CSV row of a layer.
func rowSchema(fields []domain.FieldInfo) (json.RawMessage, error) {
	props := make(map[string]any, len(fields))
	required := []string{}
	for _, f := range fields {
		props[f.Name] = map[string]any{"type": string(kindOf(f.Type))}
		if !f.Optional {
			required = append(required, f.Name)
		}
	}
	return json.Marshal(map[string]any{
		"type":       "object",
		"properties": props,
		"required":   required,
	})
}

func compiledRowSchema(fields []domain.FieldInfo) (*santhosh.Schema, error) {
	raw, err := rowSchema(fields)
	if err != nil {
		return nil, err
	}
	return compileSchema(raw)
}

func compileSchema(schemaJSON json.RawMessage) (*santhosh.Schema, error) {
	compiler := santhosh.NewCompiler()
	compiler.Draft = santhosh.Draft7
	if err := compiler.AddResource("row.json", bytes.NewReader(schemaJSON)); err != nil {
		return nil, err
	}
	return compiler.Compile("row.json")
}

// typedValue converts a cell to the JSON type of its field. Cells that do not
// convert are kept as strings so validation reports them.
func typedValue(cell string, k kind) any {
	switch k {
	case kindNumber, kindInteger:
		if n, err := strconv.ParseFloat(cell, 64); err == nil {
			return n
		}
	case kindBoolean:
		if b, err := strconv.ParseBool(cell); err == nil {
			return b
		}
	}
	return cell
}

// runValidation validates a row against a compiled schema.
func runValidation(sch *santhosh.Schema, row map[string]any) error {
	data, err := json.Marshal(row)
	if err != nil {
		return fmt.Errorf("marshal row: %w", err)
	}
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("unmarshal row: %w", err)
	}
	if err := sch.Validate(v); err != nil {
		var ve *santhosh.ValidationError
		if errors.As(err, &ve) {
			return &domain.ErrSchemaViolation{Errors: collectValidationErrors(ve)}
		}
		return &domain.ErrSchemaViolation{Errors: []string{err.Error()}}
	}
	return nil
}

func collectValidationErrors(ve *santhosh.ValidationError) []string {
	var msgs []string
	for _, cause := range ve.Causes {
		msgs = append(msgs, collectValidationErrors(cause)...)
	}
	if len(ve.Causes) == 0 {
		field := strings.TrimPrefix(ve.InstanceLocation, "/")
		if field == "" {
			msgs = append(msgs, ve.Message)
		} else {
			msgs = append(msgs, field+": "+ve.Message)
		}
	}
	return msgs
}
