package wfs

import (
	"regexp"

	"github.com/usgin/modelmanager/internal/core/domain"
	"github.com/usgin/modelmanager/internal/core/ports"
)

// Element is one selected feature, serialized as a standalone document.
type Element struct {
	ID         string
	Doc        []byte
	Namespaces map[string]string // prefix → uri
}

type Outcome struct {
	Element Element
	Valid   bool
}

// Results aggregates the validation of a set of elements.
type Results struct {
	Valid    bool
	Count    int
	Outcomes []Outcome
	Errors   []string
}

// NewResults validates every element in order. Validity is the AND over all
// elements and is false when there are none.
func NewResults(elements []Element, schema ports.ElementValidator) *Results {
	if len(elements) == 0 {
		return failedResults(domain.ErrNoElements)
	}

	r := &Results{Valid: true, Count: len(elements), Outcomes: make([]Outcome, 0, len(elements))}
	var log []string
	for _, el := range elements {
		msgs := schema.ValidateElement(el.Doc)
		valid := len(msgs) == 0
		if !valid {
			r.Valid = false
		}
		r.Outcomes = append(r.Outcomes, Outcome{Element: el, Valid: valid})
		for _, msg := range msgs {
			log = append(log, prefixNamespaces(msg, el.Namespaces))
		}
	}
	r.Errors = dedupe(log)
	return r
}

func failedResults(err error) *Results {
	return &Results{Errors: []string{err.Error()}}
}

func (r *Results) ValidCount() int {
	n := 0
	for _, o := range r.Outcomes {
		if o.Valid {
			n++
		}
	}
	return n
}

func (r *Results) InvalidCount() int { return len(r.Outcomes) - r.ValidCount() }

func (r *Results) InvalidElements() []Element {
	var out []Element
	for _, o := range r.Outcomes {
		if !o.Valid {
			out = append(out, o.Element)
		}
	}
	return out
}

func (r *Results) Report(url string) domain.ValidationReport {
	invalid := []string{}
	for _, el := range r.InvalidElements() {
		invalid = append(invalid, el.ID)
	}
	errs := r.Errors
	if errs == nil {
		errs = []string{}
	}
	return domain.ValidationReport{
		URL:             url,
		Valid:           r.Valid,
		Errors:          errs,
		Count:           r.Count,
		ValidCount:      r.ValidCount(),
		InvalidCount:    r.InvalidCount(),
		InvalidElements: invalid,
	}
}

var clarkName = regexp.MustCompile(`\{([^{}]*)\}`)

// prefixNamespaces rewrites {uri}local tokens to prefix:local.
func prefixNamespaces(msg string, namespaces map[string]string) string {
	if len(namespaces) == 0 {
		return msg
	}
	byURI := make(map[string]string, len(namespaces))
	for prefix, uri := range namespaces {
		if prev, ok := byURI[uri]; prefix != "" && (!ok || prefix < prev) {
			byURI[uri] = prefix
		}
	}
	return clarkName.ReplaceAllStringFunc(msg, func(tok string) string {
		uri := tok[1 : len(tok)-1]
		if prefix, ok := byURI[uri]; ok {
			return prefix + ":"
		}
		return tok
	})
}

func dedupe(msgs []string) []string {
	seen := make(map[string]struct{}, len(msgs))
	out := make([]string, 0, len(msgs))
	for _, m := range msgs {
		if _, ok := seen[m]; ok {
			continue
		}
		seen[m] = struct{}{}
		out = append(out, m)
	}
	return out
}
