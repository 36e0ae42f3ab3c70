package usecase

import (
	"context"
	"regexp"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"go.uber.org/zap"

	"github.com/usgin/modelmanager/internal/core/domain"
)

var anchorTag = regexp.MustCompile(`<a([^>]*)>`)
var targetAttr = regexp.MustCompile(`target=["'][^"']*["']`)

var nbsp = strings.NewReplacer("&nbsp;", " ", "\u00a0", " ")

type ModelView struct {
	ID               int64         `json:"id"`
	Title            string        `json:"title"`
	URI              string        `json:"uri"`
	Label            string        `json:"label"`
	Description      string        `json:"description"`
	Discussion       string        `json:"discussion"`
	Status           string        `json:"status"`
	DescriptionClean string        `json:"description_clean"`
	DiscussionClean  string        `json:"discussion_clean"`
	StatusClean      string        `json:"status_clean"`
	DateUpdated      *string       `json:"date_updated"`
	LatestVersion    string        `json:"latest_version,omitempty"`
	HTML             string        `json:"html,omitempty"`
	JSON             string        `json:"json,omitempty"`
	RuleLink         string        `json:"rewrite_rule,omitempty"`
	Versions         []VersionView `json:"versions"`
}

type VersionView struct {
	ID               int64              `json:"id"`
	URI              string             `json:"uri"`
	Version          string             `json:"version"`
	DateCreated      string             `json:"date_created"`
	XSDFilePath      string             `json:"xsd_file_path"`
	XLSFilePath      string             `json:"xls_file_path"`
	SLDFilePath      string             `json:"sld_file_path,omitempty"`
	LYRFilePath      string             `json:"lyr_file_path,omitempty"`
	SampleWFSRequest string             `json:"sample_wfs_request"`
	FieldInfo        []domain.FieldInfo `json:"field_info"`
}

// Presenter renders catalog entities as JSON views.
type Presenter struct {
	links   domain.Links
	schemas *SchemaService
	policy  *bluemonday.Policy
	log     *zap.Logger
}

func NewPresenter(links domain.Links, schemas *SchemaService, log *zap.Logger) *Presenter {
	if log == nil {
		log = zap.NewNop()
	}
	policy := bluemonday.NewPolicy()
	policy.RequireParseableURLs(true)
	policy.AllowRelativeURLs(true)
	policy.AllowURLSchemes("mailto", "http", "https")
	policy.AllowAttrs("href", "title", "target").OnElements("a")
	return &Presenter{links: links, schemas: schemas, policy: policy, log: log}
}

func (p *Presenter) Links() domain.Links {
	return p.links
}

// CleanText strips every tag except anchors and turns &nbsp; into spaces.
func (p *Presenter) CleanText(s string) string {
	return nbsp.Replace(p.policy.Sanitize(s))
}

// AddTargetToAnchors sets target on every anchor, replacing any existing one.
func AddTargetToAnchors(s, target string) string {
	attr := "target='" + target + "'"
	return anchorTag.ReplaceAllStringFunc(s, func(tag string) string {
		attrs := anchorTag.FindStringSubmatch(tag)[1]
		if targetAttr.MatchString(attrs) {
			return "<a" + targetAttr.ReplaceAllString(attrs, attr) + ">"
		}
		return "<a" + attrs + " " + attr + ">"
	})
}

func (p *Presenter) cleanForEmbed(s string) string {
	return AddTargetToAnchors(p.CleanText(s), "_blank")
}

func (p *Presenter) Model(ctx context.Context, m domain.ContentModel) ModelView {
	view := ModelView{
		ID:               m.ID,
		Title:            m.Title,
		URI:              p.links.ModelURI(m),
		Label:            m.Label,
		Description:      m.Description,
		Discussion:       m.Discussion,
		Status:           m.Status,
		DescriptionClean: p.cleanForEmbed(m.Description),
		DiscussionClean:  p.cleanForEmbed(m.Discussion),
		StatusClean:      p.cleanForEmbed(m.Status),
		LatestVersion:    m.LatestVersionNumber(),
		HTML:             p.links.ModelHTML(m),
		JSON:             p.links.ModelJSON(m),
		Versions:         make([]VersionView, 0, len(m.Versions)),
	}
	if updated := m.DateUpdated(); updated != nil {
		s := updated.UTC().Format(time.RFC3339)
		view.DateUpdated = &s
	}
	if m.RewriteRuleID != nil {
		view.RuleLink = domain.RuleEditLink(*m.RewriteRuleID)
	}
	for _, v := range m.Versions {
		view.Versions = append(view.Versions, p.Version(ctx, m, v))
	}
	return view
}

func (p *Presenter) Version(ctx context.Context, m domain.ContentModel, v domain.ModelVersion) VersionView {
	view := VersionView{
		ID:               v.ID,
		URI:              p.links.VersionURI(m, v),
		Version:          v.Version,
		DateCreated:      v.CreatedAt.UTC().Format(time.RFC3339),
		XSDFilePath:      p.links.FileURL(v.XSDFile),
		XLSFilePath:      p.links.FileURL(v.XLSFile),
		SLDFilePath:      p.links.FileURL(v.SLDFile),
		LYRFilePath:      p.links.FileURL(v.LYRFile),
		SampleWFSRequest: v.SampleWFSRequest,
		FieldInfo:        []domain.FieldInfo{},
	}
	if p.schemas != nil {
		fields, err := p.schemas.Fields(ctx, v)
		if err != nil {
			p.log.Warn("read field info", zap.Int64("version_id", v.ID), zap.Error(err))
		} else {
			view.FieldInfo = fields
		}
	}
	return view
}
