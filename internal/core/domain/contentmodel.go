package domain

import (
	"path"
	"regexp"
	"sort"
	"strings"
	"time"
)

var (
	labelPattern   = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9_-]*$`)
	versionPattern = regexp.MustCompile(`^[0-9a-zA-Z][0-9a-zA-Z._-]{0,9}$`)
	majorPattern   = regexp.MustCompile(`\d*\.\d{1}`)
	slugStrip      = regexp.MustCompile(`[^\w\s-]`)
	slugCollapse   = regexp.MustCompile(`[-\s]+`)
)

// ContentModel is a named, versioned data schema. Versions is ordered by
// version string when loaded from storage.
type ContentModel struct {
	ID            int64
	Title         string
	Label         string
	Description   string
	Discussion    string
	Status        string
	RewriteRuleID *int64
	Versions      []ModelVersion
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

type ModelVersion struct {
	ID               int64
	ContentModelID   int64
	Version          string
	CreatedAt        time.Time
	XSDFile          string
	XLSFile          string
	SLDFile          string
	LYRFile          string
	SampleWFSRequest string
	RewriteRuleID    *int64
}

func (m ContentModel) Validate() error {
	if strings.TrimSpace(m.Title) == "" {
		return ErrInvalidTitle
	}
	return ValidateLabel(m.Label)
}

func ValidateLabel(label string) error {
	if !labelPattern.MatchString(label) {
		return ErrInvalidLabel
	}
	return nil
}

func (v ModelVersion) Validate() error {
	if !versionPattern.MatchString(v.Version) {
		return ErrInvalidVersion
	}
	return nil
}

// LatestVersion returns the version created most recently, or nil when the
// model has none.
func (m ContentModel) LatestVersion() *ModelVersion {
	var latest *ModelVersion
	for i := range m.Versions {
		v := &m.Versions[i]
		if latest == nil || v.CreatedAt.After(latest.CreatedAt) {
			latest = v
		}
	}
	return latest
}

func (m ContentModel) LatestVersionNumber() string {
	if v := m.LatestVersion(); v != nil {
		return v.Version
	}
	return ""
}

// DateUpdated is the creation time of the latest version.
func (m ContentModel) DateUpdated() *time.Time {
	if v := m.LatestVersion(); v != nil {
		t := v.CreatedAt
		return &t
	}
	return nil
}

// RecentVersions returns up to n versions, newest first.
func (m ContentModel) RecentVersions(n int) []ModelVersion {
	out := make([]ModelVersion, len(m.Versions))
	copy(out, m.Versions)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if n >= 0 && len(out) > n {
		out = out[:n]
	}
	return out
}

// FolderPath is the storage folder for every file of the model.
func (m ContentModel) FolderPath() string {
	return Slugify(m.Title)
}

func (m ContentModel) StrippedRegex() string {
	return "dataschema/" + m.Label + "/"
}

func (m ContentModel) RegexPattern() string {
	return `^` + m.StrippedRegex() + `(\.[a-zA-Z]{3,4}|/)?$`
}

func (m ContentModel) VersionRegexPattern(version string) string {
	return `^` + strings.TrimRight(m.StrippedRegex(), "/") + "/" + version + `(\.[a-zA-Z]{3,4}|/)?$`
}

func (v ModelVersion) DisplayName(m ContentModel) string {
	return m.Title + " v. " + v.Version
}

// MajorVersion returns the version up to its first decimal ("1.23" gives "1.2").
func (v ModelVersion) MajorVersion() string {
	return majorPattern.FindString(v.Version)
}

// FilePath places an uploaded file under the model folder and version.
func (v ModelVersion) FilePath(m ContentModel, filename string) string {
	return m.FolderPath() + "/" + v.Version + "/" + path.Base(filename)
}

func (v ModelVersion) XSDFilename() string { return baseName(v.XSDFile) }
func (v ModelVersion) XLSFilename() string { return baseName(v.XLSFile) }
func (v ModelVersion) SLDFilename() string { return baseName(v.SLDFile) }
func (v ModelVersion) LYRFilename() string { return baseName(v.LYRFile) }

func baseName(p string) string {
	if p == "" {
		return ""
	}
	return path.Base(p)
}

// Slugify lowercases s, drops punctuation and joins words with hyphens.
func Slugify(s string) string {
	s = strings.ToLower(strings.TrimSpace(slugStrip.ReplaceAllString(s, "")))
	return slugCollapse.ReplaceAllString(s, "-")
}
