package domain

// UnboundedFeatures requests every feature of a type from a WFS.
const UnboundedFeatures = 99

// FieldInfo describes one element of a schema sequence.
type FieldInfo struct {
	Name        string  `json:"name"`
	Type        string  `json:"type"`
	Optional    bool    `json:"optional"`
	Description *string `json:"description"`
}

type TypeDetails struct {
	Namespace string `json:"namespace"`
	TypeName  string `json:"typename"`
	Prefix    string `json:"prefix"`
	LayerName string `json:"layername"`
}

type CapabilitiesReport struct {
	URL          string   `json:"url"`
	Valid        bool     `json:"valid"`
	Version      string   `json:"version"`
	FeatureTypes []string `json:"feature_types"`
	Errors       []string `json:"errors"`
}

type FeatureRequest struct {
	CapabilitiesURL string
	FeatureType     string
	Count           int
	VersionID       int64
}

type ValidationReport struct {
	URL             string   `json:"url"`
	Valid           bool     `json:"valid"`
	Errors          []string `json:"errors"`
	Count           int      `json:"count"`
	ValidCount      int      `json:"valid_count"`
	InvalidCount    int      `json:"invalid_count"`
	InvalidElements []string `json:"invalid_elements"`
}

type CSVUpload struct {
	Filename string
	Content  []byte
}

// CSVTarget is the model version a CSV upload is checked against. Layers maps
// each layer name declared by the version schema to its fields.
type CSVTarget struct {
	VersionURI string
	Layer      string
	Layers     map[string][]FieldInfo
}

type CSVResult struct {
	Valid            bool       `json:"valid"`
	Messages         []string   `json:"messages"`
	CorrectedRows    [][]string `json:"corrected_rows,omitempty"`
	LongFieldNames   []string   `json:"long_field_names"`
	SpatialReference string     `json:"srs"`
}
