package wfs

import (
	"context"
	"fmt"
	"net/http"
	"slices"
	"strconv"
	"strings"

	"github.com/antchfx/xmlquery"
	"github.com/antchfx/xpath"

	"github.com/usgin/modelmanager/internal/core/domain"
)

// State is a step of the capabilities state machine.
type State int

const (
	StateUnfetched State = iota
	StateFetched
	StateParsed
	StateVersionDetected
	StateFeatureTypesExtracted
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateUnfetched:
		return "unfetched"
	case StateFetched:
		return "fetched"
	case StateParsed:
		return "parsed"
	case StateVersionDetected:
		return "version-detected"
	case StateFeatureTypesExtracted:
		return "feature-types-extracted"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

const (
	nsWFS    = "http://www.opengis.net/wfs"
	nsWFS20  = "http://www.opengis.net/wfs/2.0"
	nsOWS    = "http://www.opengis.net/ows"
	nsOWS11  = "http://www.opengis.net/ows/1.1"
	nsXLink  = "http://www.w3.org/1999/xlink"
	typeList = "//wfs:FeatureTypeList/wfs:FeatureType/wfs:Name"

	endpointV100 = "string(//wfs:Capability/wfs:Request/wfs:GetFeature/wfs:DCPType/wfs:HTTP/wfs:Get/@onlineResource)"
	endpointOWS  = `string(//ows:OperationsMetadata/ows:Operation[@name="GetFeature"]/ows:DCP/ows:HTTP/ows:Get/@xlink:href)`
)

// protocols maps each recognised WFS version to the namespaces its
// capabilities document uses.
var protocols = map[string]map[string]string{
	"1.0.0": {"wfs": nsWFS, "ows": nsOWS, "xlink": nsXLink},
	"1.1.0": {"wfs": nsWFS, "ows": nsOWS, "xlink": nsXLink},
	"2.0.0": {"wfs": nsWFS20, "ows": nsOWS11, "xlink": nsXLink},
}

// Capabilities is one WFS GetCapabilities document. It performs at most one
// request; every failure is recorded in its error list and leaves it in
// StateFailed.
type Capabilities struct {
	url          string
	client       *http.Client
	state        State
	root         *xmlquery.Node
	version      string
	featureTypes []string
	errs         []error
}

func NewCapabilities(capabilitiesURL string, client *http.Client) *Capabilities {
	return &Capabilities{
		url:          capabilitiesURL,
		client:       client,
		featureTypes: []string{},
	}
}

// Load walks the state machine up to feature type extraction. Calling it
// again is a no-op.
func (c *Capabilities) Load(ctx context.Context) {
	if c.state != StateUnfetched {
		return
	}
	raw, err := fetch(ctx, c.client, c.url)
	if err != nil {
		c.fail(err)
		return
	}
	c.state = StateFetched

	root, err := parse(raw)
	if err != nil {
		c.fail(err)
		return
	}
	c.root = root
	c.state = StateParsed

	c.version = root.SelectAttr("version")
	ns, ok := protocols[c.version]
	if !ok {
		c.fail(fmt.Errorf("%w: could not determine WFS version (got %q)", domain.ErrCapabilities, c.version))
		return
	}
	c.state = StateVersionDetected

	expr, err := xpath.CompileWithNS(typeList, ns)
	if err != nil {
		c.fail(fmt.Errorf("%w: %v", domain.ErrXPath, err))
		return
	}
	for _, n := range xmlquery.QuerySelectorAll(root, expr) {
		if name := strings.TrimSpace(n.InnerText()); name != "" {
			c.featureTypes = append(c.featureTypes, name)
		}
	}
	c.state = StateFeatureTypesExtracted
}

func (c *Capabilities) fail(err error) {
	c.errs = append(c.errs, err)
	c.state = StateFailed
}

func (c *Capabilities) URL() string            { return c.url }
func (c *Capabilities) State() State           { return c.state }
func (c *Capabilities) Version() string        { return c.version }
func (c *Capabilities) FeatureTypes() []string { return c.featureTypes }

// Valid reports whether the document was loaded without error.
func (c *Capabilities) Valid() bool { return c.state == StateFeatureTypesExtracted }

func (c *Capabilities) Errors() []string {
	out := make([]string, 0, len(c.errs))
	for _, err := range c.errs {
		out = append(out, err.Error())
	}
	return out
}

// GetFeatureURL builds the GetFeature request for featureType. It reports
// false when the document is invalid or does not offer featureType. A count
// of domain.UnboundedFeatures requests every feature.
func (c *Capabilities) GetFeatureURL(featureType string, count int) (string, bool) {
	if !c.Valid() || !slices.Contains(c.featureTypes, featureType) {
		return "", false
	}
	base, err := c.endpoint()
	if err != nil {
		c.fail(err)
		return "", false
	}

	sep := "?"
	if strings.Contains(base, "?") {
		sep = "&"
		if strings.HasSuffix(base, "?") || strings.HasSuffix(base, "&") {
			sep = ""
		}
	}
	q := "service=WFS&version=" + c.version + "&request=GetFeature&typename=" + featureType
	if count != domain.UnboundedFeatures {
		q += "&maxfeatures=" + strconv.Itoa(count)
	}
	return base + sep + q, true
}

// endpoint reads the advertised GetFeature GET address.
func (c *Capabilities) endpoint() (string, error) {
	query := endpointOWS
	if c.version == "1.0.0" {
		query = endpointV100
	}
	expr, err := xpath.CompileWithNS(query, protocols[c.version])
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrXPath, err)
	}
	base, _ := expr.Evaluate(xmlquery.CreateXPathNavigator(c.root)).(string)
	base = strings.TrimSpace(base)
	if base == "" {
		return "", fmt.Errorf("%w: could not determine the GetFeature URL", domain.ErrCapabilities)
	}
	return base, nil
}

func (c *Capabilities) Report() domain.CapabilitiesReport {
	return domain.CapabilitiesReport{
		URL:          c.url,
		Valid:        c.Valid(),
		Version:      c.version,
		FeatureTypes: c.featureTypes,
		Errors:       c.Errors(),
	}
}
