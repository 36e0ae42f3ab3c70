package usecase

import (
	"context"
	"fmt"
	"mime"
	"path"
	"regexp"
	"strings"
	"sync"

	"github.com/usgin/modelmanager/internal/core/domain"
	"github.com/usgin/modelmanager/internal/core/ports"
)

// ResolverService answers URI lookups against the rewrite rules of a register.
type ResolverService struct {
	store    ports.Store
	patterns sync.Map // key: pattern → *regexp.Regexp
}

func NewResolverService(store ports.Store) *ResolverService {
	return &ResolverService{store: store}
}

// Resolve finds the rule of register matching uriPath and picks a mapping by
// the path extension, then by accept, then falls back to HTML.
func (s *ResolverService) Resolve(ctx context.Context, register, uriPath, accept string) (string, error) {
	uriPath = strings.TrimPrefix(uriPath, "/")

	var target string
	err := s.store.ReadTX(ctx, func(tx ports.Tx) error {
		reg, err := tx.URIs().GetRegisterByLabel(ctx, register)
		if err != nil {
			return err
		}
		if !reg.CanBeResolved {
			return domain.ErrNotFound
		}
		rules, err := tx.URIs().RulesByRegister(ctx, reg.ID)
		if err != nil {
			return err
		}
		for _, rule := range rules {
			re, err := s.compile(rule.Pattern)
			if err != nil || !re.MatchString(uriPath) {
				continue
			}
			mappings, err := tx.URIs().Mappings(ctx, rule.ID)
			if err != nil {
				return err
			}
			if m, ok := pickMapping(mappings, uriPath, accept); ok {
				target = m.RedirectTo
				return nil
			}
		}
		return domain.ErrNotFound
	})
	if err != nil {
		return "", err
	}
	return target, nil
}

func (s *ResolverService) compile(pattern string) (*regexp.Regexp, error) {
	if cached, ok := s.patterns.Load(pattern); ok {
		return cached.(*regexp.Regexp), nil
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("compile rule pattern: %w", err)
	}
	s.patterns.Store(pattern, re)
	return re, nil
}

func pickMapping(mappings []domain.AcceptMapping, uriPath, accept string) (domain.AcceptMapping, bool) {
	if len(mappings) == 0 {
		return domain.AcceptMapping{}, false
	}
	if ext := strings.TrimPrefix(path.Ext(uriPath), "."); ext != "" {
		for _, m := range mappings {
			if strings.EqualFold(m.Media.FileExtension, ext) {
				return m, true
			}
		}
	}
	for _, part := range strings.Split(accept, ",") {
		mt, _, err := mime.ParseMediaType(strings.TrimSpace(part))
		if err != nil {
			continue
		}
		for _, m := range mappings {
			if m.Media.MimeType == mt {
				return m, true
			}
		}
	}
	for _, m := range mappings {
		if m.Media.Same(domain.MediaHTML) {
			return m, true
		}
	}
	return mappings[0], true
}
