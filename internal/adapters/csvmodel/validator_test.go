package csvmodel

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/usgin/modelmanager/internal/core/domain"
)

func faultTarget() domain.CSVTarget {
	return domain.CSVTarget{
		VersionURI: "http://models.example.org/uri-gin/usgin/dataschema/activefault/1.0",
		Layer:      "ActiveFault",
		Layers: map[string][]domain.FieldInfo{
			"ActiveFault": {
				{Name: "OBJECTID", Type: "int"},
				{Name: "Name", Type: "string"},
				{Name: "LengthKilometers", Type: "double", Optional: true},
				{Name: "Active", Type: "boolean", Optional: true},
			},
			"Borehole": {{Name: "HeaderURI", Type: "anyURI"}},
		},
	}
}

func validate(t *testing.T, name, content string) domain.CSVResult {
	t.Helper()
	return NewValidator(nil).Validate(context.Background(), domain.CSVUpload{Filename: name, Content: []byte(content)}, faultTarget())
}

func TestValidCSV(t *testing.T) {
	res := validate(t, "faults.csv", "OBJECTID,Name,LengthKilometers,Active,SRS\n1,Sand Hollow,12.5,true,EPSG:26912\n2, Hurricane ,,false,\n")

	assert.True(t, res.Valid, "messages: %v", res.Messages)
	assert.Empty(t, res.Messages)
	assert.Equal(t, "EPSG:26912", res.SpatialReference)
	assert.Equal(t, []string{"LengthKilometers"}, res.LongFieldNames)
	require.Len(t, res.CorrectedRows, 3)
	assert.Equal(t, []string{"2", "Hurricane", "", "false", ""}, res.CorrectedRows[2])
}

func TestCSVRowErrors(t *testing.T) {
	res := validate(t, "faults.CSV", "OBJECTID,Name,LengthKilometers\nx,Sand Hollow,long\n2,,1\n")

	assert.False(t, res.Valid)
	assert.Equal(t, "EPSG:4326", res.SpatialReference)
	joined := strings.Join(res.Messages, "\n")
	assert.Contains(t, joined, "Row 2: OBJECTID")
	assert.Contains(t, joined, "Row 2: LengthKilometers")
	assert.Contains(t, joined, "Row 3:")
	assert.Contains(t, joined, "Name")
}

func TestCSVHeaderCorrections(t *testing.T) {
	res := validate(t, "faults.csv", "objectid, name ,Colour\n1,Sand Hollow,red\n")

	assert.False(t, res.Valid)
	assert.Equal(t, []string{"OBJECTID", "Name", "Colour"}, res.CorrectedRows[0])
	assert.Contains(t, res.Messages, `Field name "objectid" corrected to "OBJECTID"`)
	assert.Contains(t, res.Messages, `Field "Colour" is not part of the content model`)
}

func TestCSVMissingRequiredColumn(t *testing.T) {
	res := validate(t, "faults.csv", "OBJECTID\n1\n")

	assert.False(t, res.Valid)
	assert.Contains(t, res.Messages, `Required field "Name" is missing`)
}

func TestCSVRejectsBadUploads(t *testing.T) {
	cases := map[string]struct {
		name    string
		content string
		want    string
	}{
		"not csv":     {"faults.xls", "OBJECTID,Name\n1,a\n", "Only CSV files may be validated."},
		"not utf-8":   {"faults.csv", "OBJECTID,Name\n1,\xff\xfe\n", domain.ErrUploadFormat.Error()},
		"empty":       {"faults.csv", "", domain.ErrUploadFormat.Error()},
		"header only": {"faults.csv", "OBJECTID,Name\n", "no data rows"},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			res := validate(t, tc.name, tc.content)
			assert.False(t, res.Valid)
			require.NotEmpty(t, res.Messages)
			assert.Contains(t, strings.Join(res.Messages, "\n"), tc.want)
		})
	}
}

func TestCSVUnknownLayer(t *testing.T) {
	target := faultTarget()
	target.Layer = "Volcano"

	res := NewValidator(nil).Validate(context.Background(), domain.CSVUpload{Filename: "v.csv", Content: []byte("a\n1\n")}, target)

	assert.False(t, res.Valid)
	require.Len(t, res.Messages, 1)
	assert.Contains(t, res.Messages[0], domain.ErrUnknownLayer.Error())
	assert.Contains(t, res.Messages[0], "ActiveFault, Borehole")
}
