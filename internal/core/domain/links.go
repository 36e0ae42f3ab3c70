package domain

import (
	"strconv"
	"strings"
)

// FileLocator maps a stored file path to a public URL.
type FileLocator interface {
	URL(path string) string
}

// Links derives the stable public URLs of models, versions and their files.
type Links struct {
	BaseURL       string
	RegisterLabel string
	Files         FileLocator
}

func (l Links) base() string {
	return strings.TrimRight(l.BaseURL, "/")
}

func (l Links) contentModelURL(m ContentModel, ext string) string {
	if m.ID == 0 {
		return ""
	}
	return l.base() + "/contentmodel/" + strconv.FormatInt(m.ID, 10) + "." + ext
}

// ModelHTML is empty until the model has been stored and has an identifier.
func (l Links) ModelHTML(m ContentModel) string { return l.contentModelURL(m, "html") }
func (l Links) ModelJSON(m ContentModel) string { return l.contentModelURL(m, "json") }
func (l Links) ModelAtom(m ContentModel) string { return l.contentModelURL(m, "xml") }

func (l Links) ModelPrettyHTML(m ContentModel) string {
	return l.base() + "/models/#" + m.Label
}

func (l Links) RelativeURI(m ContentModel) string {
	return "/uri-gin/" + l.RegisterLabel + "/" + m.StrippedRegex()
}

func (l Links) ModelURI(m ContentModel) string {
	return l.base() + l.RelativeURI(m)
}

func (l Links) VersionURI(m ContentModel, v ModelVersion) string {
	return strings.TrimRight(l.ModelURI(m), "/") + "/" + v.Version
}

// FileURL returns the absolute URL of a stored file, or "" for an empty path.
func (l Links) FileURL(path string) string {
	if path == "" || l.Files == nil {
		return ""
	}
	u := l.Files.URL(path)
	if strings.HasPrefix(u, "http://") || strings.HasPrefix(u, "https://") {
		return u
	}
	return l.base() + "/" + strings.TrimLeft(u, "/")
}

func (l Links) LatestXSD(m ContentModel) string {
	if v := m.LatestVersion(); v != nil {
		return l.FileURL(v.XSDFile)
	}
	return ""
}

func (l Links) LatestXLS(m ContentModel) string {
	if v := m.LatestVersion(); v != nil {
		return l.FileURL(v.XLSFile)
	}
	return ""
}

func RuleEditLink(ruleID int64) string {
	return "/admin/uriredirect/rewriterule/" + strconv.FormatInt(ruleID, 10)
}
