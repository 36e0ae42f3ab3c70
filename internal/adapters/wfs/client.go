package wfs

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/usgin/modelmanager/internal/core/domain"
	"github.com/usgin/modelmanager/internal/core/ports"
)

const defaultFetchTimeout = 30 * time.Second

// Client validates WFS services. Every call builds fresh Capabilities and
// GetFeature values, so no state is shared between requests.
type Client struct {
	http *http.Client
	log  *zap.Logger
}

// NewClient returns a Client whose requests expire after timeout. A zero or
// negative timeout falls back to 30 s.
func NewClient(timeout time.Duration, log *zap.Logger) *Client {
	if timeout <= 0 {
		timeout = defaultFetchTimeout
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{http: &http.Client{Timeout: timeout}, log: log}
}

func (c *Client) Capabilities(ctx context.Context, url string) domain.CapabilitiesReport {
	caps := NewCapabilities(url, c.http)
	caps.Load(ctx)
	if !caps.Valid() {
		c.log.Debug("capabilities invalid", zap.String("url", url), zap.Strings("errors", caps.Errors()))
	}
	return caps.Report()
}

func (c *Client) ValidateFeatures(ctx context.Context, req domain.FeatureRequest, schema ports.ElementValidator) domain.ValidationReport {
	caps := NewCapabilities(req.CapabilitiesURL, c.http)
	caps.Load(ctx)

	count := req.Count
	if count <= 0 {
		count = domain.UnboundedFeatures
	}
	gf := NewGetFeature(caps, req.FeatureType, count, c.http)
	if gf.URL == "" {
		errs := caps.Errors()
		if caps.Valid() {
			errs = append(errs, fmt.Sprintf("%s: feature type %q is not offered by %s", domain.ErrCapabilities, req.FeatureType, req.CapabilitiesURL))
		}
		return (&Results{Errors: errs}).Report("")
	}

	c.log.Debug("get feature", zap.String("url", gf.URL))
	return gf.Validate(ctx, schema).Report(gf.URL)
}

var _ ports.WFSClient = (*Client)(nil)
