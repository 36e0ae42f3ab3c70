package domain

import "time"

type URIRegister struct {
	ID            int64
	Label         string
	URL           string
	CanBeResolved bool
}

type MediaType struct {
	ID            int64  `json:"-"`
	MimeType      string `json:"mime_type"`
	FileExtension string `json:"extension"`
}

var (
	MediaXSD  = MediaType{MimeType: "application/xml", FileExtension: "xsd"}
	MediaXLS  = MediaType{MimeType: "application/vnd.ms-excel", FileExtension: "xls"}
	MediaHTML = MediaType{MimeType: "text/html", FileExtension: "html"}
	MediaJSON = MediaType{MimeType: "text/json", FileExtension: "json"}
)

// Same compares media types by value, ignoring the storage identifier.
func (m MediaType) Same(o MediaType) bool {
	return m.MimeType == o.MimeType && m.FileExtension == o.FileExtension
}

type RewriteRule struct {
	ID          int64
	RegisterID  int64
	Label       string
	Description string
	Pattern     string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

type AcceptMapping struct {
	ID         int64
	RuleID     int64
	Media      MediaType
	RedirectTo string
}

// MediaTarget is a desired mapping before it is stored.
type MediaTarget struct {
	Media      MediaType `json:"media"`
	RedirectTo string    `json:"redirect_to"`
}

type OwnerKind string

const (
	OwnerContentModel OwnerKind = "content_model"
	OwnerModelVersion OwnerKind = "model_version"
)

// RuleOwner is an entity that owns exactly one rewrite rule.
type RuleOwner interface {
	Kind() OwnerKind
	OwnerID() int64
	RuleID() *int64
	DisplayName() string
	RegexPattern() string
	MediaTargets(links Links) []MediaTarget
}

// ModelOwner wraps a content model. Model.Versions must be loaded for the
// file mappings of the latest version to be derived.
type ModelOwner struct {
	Model ContentModel
}

func (o ModelOwner) Kind() OwnerKind      { return OwnerContentModel }
func (o ModelOwner) OwnerID() int64       { return o.Model.ID }
func (o ModelOwner) RuleID() *int64       { return o.Model.RewriteRuleID }
func (o ModelOwner) DisplayName() string  { return o.Model.Title }
func (o ModelOwner) RegexPattern() string { return o.Model.RegexPattern() }

func (o ModelOwner) MediaTargets(links Links) []MediaTarget {
	targets := []MediaTarget{
		{Media: MediaHTML, RedirectTo: links.ModelHTML(o.Model)},
		{Media: MediaJSON, RedirectTo: links.ModelJSON(o.Model)},
	}
	if latest := o.Model.LatestVersion(); latest != nil {
		targets = append(targets,
			MediaTarget{Media: MediaXLS, RedirectTo: links.FileURL(latest.XLSFile)},
			MediaTarget{Media: MediaXSD, RedirectTo: links.FileURL(latest.XSDFile)},
		)
	}
	return targets
}

type VersionOwner struct {
	Version ModelVersion
	Model   ContentModel
}

func (o VersionOwner) Kind() OwnerKind     { return OwnerModelVersion }
func (o VersionOwner) OwnerID() int64      { return o.Version.ID }
func (o VersionOwner) RuleID() *int64      { return o.Version.RewriteRuleID }
func (o VersionOwner) DisplayName() string { return o.Version.DisplayName(o.Model) }

func (o VersionOwner) RegexPattern() string {
	return o.Model.VersionRegexPattern(o.Version.Version)
}

func (o VersionOwner) MediaTargets(links Links) []MediaTarget {
	return []MediaTarget{
		{Media: MediaXLS, RedirectTo: links.FileURL(o.Version.XLSFile)},
		{Media: MediaXSD, RedirectTo: links.FileURL(o.Version.XSDFile)},
		{Media: MediaHTML, RedirectTo: links.ModelHTML(o.Model)},
		{Media: MediaJSON, RedirectTo: links.ModelJSON(o.Model)},
	}
}

var (
	_ RuleOwner = ModelOwner{}
	_ RuleOwner = VersionOwner{}
)

func RuleDescription(owner RuleOwner) string {
	return "Redirection rule for " + owner.DisplayName()
}
