package usecase

import (
	"bytes"
	"context"
	"io"
	"io/fs"
	"sort"
	"testing/fstest"
	"time"

	"github.com/usgin/modelmanager/internal/core/domain"
	"github.com/usgin/modelmanager/internal/core/ports"
)

// memStore is an in-memory ports.Store. Transactions are not isolated; a
// failed WriteTX is not rolled back.
type memStore struct {
	models    map[int64]domain.ContentModel
	versions  map[int64]domain.ModelVersion
	registers map[int64]domain.URIRegister
	media     map[int64]domain.MediaType
	rules     map[int64]domain.RewriteRule
	mappings  map[int64]domain.AcceptMapping
	events    []domain.EventEnvelope
	nextID    int64
	clock     time.Time
}

func newMemStore() *memStore {
	return &memStore{
		models:    map[int64]domain.ContentModel{},
		versions:  map[int64]domain.ModelVersion{},
		registers: map[int64]domain.URIRegister{},
		media:     map[int64]domain.MediaType{},
		rules:     map[int64]domain.RewriteRule{},
		mappings:  map[int64]domain.AcceptMapping{},
		clock:     time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func (s *memStore) id() int64 {
	s.nextID++
	return s.nextID
}

func (s *memStore) ReadTX(_ context.Context, fn func(tx ports.Tx) error) error  { return fn(s) }
func (s *memStore) WriteTX(_ context.Context, fn func(tx ports.Tx) error) error { return fn(s) }

func (s *memStore) Catalog() ports.CatalogRepository { return s }
func (s *memStore) URIs() ports.URIRegistry          { return s }
func (s *memStore) Outbox() ports.OutboxWriter       { return s }

func (s *memStore) ListModels(ctx context.Context) ([]domain.ContentModel, error) {
	out := make([]domain.ContentModel, 0, len(s.models))
	for id := range s.models {
		m, _ := s.GetModel(ctx, id)
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Title < out[j].Title })
	return out, nil
}

func (s *memStore) GetModel(_ context.Context, id int64) (domain.ContentModel, error) {
	m, ok := s.models[id]
	if !ok {
		return domain.ContentModel{}, domain.ErrNotFound
	}
	m.Versions = nil
	for _, v := range s.versions {
		if v.ContentModelID == id {
			m.Versions = append(m.Versions, v)
		}
	}
	sort.Slice(m.Versions, func(i, j int) bool { return m.Versions[i].Version < m.Versions[j].Version })
	return m, nil
}

func (s *memStore) GetModelByLabel(ctx context.Context, label string) (domain.ContentModel, error) {
	for id, m := range s.models {
		if m.Label == label {
			return s.GetModel(ctx, id)
		}
	}
	return domain.ContentModel{}, domain.ErrNotFound
}

func (s *memStore) SaveModel(_ context.Context, m domain.ContentModel) (domain.ContentModel, error) {
	if m.ID == 0 {
		m.ID = s.id()
	}
	m.Versions = nil
	s.models[m.ID] = m
	return m, nil
}

func (s *memStore) DeleteModel(_ context.Context, id int64) (bool, error) {
	_, ok := s.models[id]
	delete(s.models, id)
	return ok, nil
}

func (s *memStore) GetVersion(_ context.Context, id int64) (domain.ModelVersion, error) {
	v, ok := s.versions[id]
	if !ok {
		return domain.ModelVersion{}, domain.ErrNotFound
	}
	return v, nil
}

func (s *memStore) LatestVersion(ctx context.Context, modelID int64) (domain.ModelVersion, error) {
	m, err := s.GetModel(ctx, modelID)
	if err != nil {
		return domain.ModelVersion{}, err
	}
	if latest := m.LatestVersion(); latest != nil {
		return *latest, nil
	}
	return domain.ModelVersion{}, domain.ErrNotFound
}

func (s *memStore) SaveVersion(_ context.Context, v domain.ModelVersion) (domain.ModelVersion, error) {
	if v.ID == 0 {
		v.ID = s.id()
		s.clock = s.clock.Add(time.Hour)
		v.CreatedAt = s.clock
	}
	s.versions[v.ID] = v
	return v, nil
}

func (s *memStore) DeleteVersion(_ context.Context, id int64) (bool, error) {
	_, ok := s.versions[id]
	delete(s.versions, id)
	return ok, nil
}

func (s *memStore) AttachRule(_ context.Context, kind domain.OwnerKind, ownerID, ruleID int64) error {
	switch kind {
	case domain.OwnerContentModel:
		m := s.models[ownerID]
		m.RewriteRuleID = &ruleID
		s.models[ownerID] = m
	case domain.OwnerModelVersion:
		v := s.versions[ownerID]
		v.RewriteRuleID = &ruleID
		s.versions[ownerID] = v
	}
	return nil
}

func (s *memStore) EnsureRegister(_ context.Context, reg domain.URIRegister) (domain.URIRegister, error) {
	for _, r := range s.registers {
		if r.Label == reg.Label {
			return r, nil
		}
	}
	reg.ID = s.id()
	s.registers[reg.ID] = reg
	return reg, nil
}

func (s *memStore) GetRegisterByLabel(_ context.Context, label string) (domain.URIRegister, error) {
	for _, r := range s.registers {
		if r.Label == label {
			return r, nil
		}
	}
	return domain.URIRegister{}, domain.ErrNotFound
}

func (s *memStore) EnsureMediaType(_ context.Context, media domain.MediaType) (domain.MediaType, error) {
	for _, m := range s.media {
		if m.Same(media) {
			return m, nil
		}
	}
	media.ID = s.id()
	s.media[media.ID] = media
	return media, nil
}

func (s *memStore) GetRule(_ context.Context, id int64) (domain.RewriteRule, error) {
	r, ok := s.rules[id]
	if !ok {
		return domain.RewriteRule{}, domain.ErrNotFound
	}
	return r, nil
}

func (s *memStore) SaveRule(_ context.Context, rule domain.RewriteRule) (domain.RewriteRule, error) {
	if rule.ID == 0 {
		rule.ID = s.id()
	}
	s.rules[rule.ID] = rule
	return rule, nil
}

func (s *memStore) DeleteRule(_ context.Context, id int64) (bool, error) {
	_, ok := s.rules[id]
	delete(s.rules, id)
	for mid, m := range s.mappings {
		if m.RuleID == id {
			delete(s.mappings, mid)
		}
	}
	return ok, nil
}

func (s *memStore) RulesByRegister(_ context.Context, registerID int64) ([]domain.RewriteRule, error) {
	var out []domain.RewriteRule
	for _, r := range s.rules {
		if r.RegisterID == registerID {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *memStore) FindRuleByPattern(_ context.Context, registerID int64, pattern string) (domain.RewriteRule, error) {
	for _, r := range s.rules {
		if r.RegisterID == registerID && r.Pattern == pattern {
			return r, nil
		}
	}
	return domain.RewriteRule{}, domain.ErrNotFound
}

func (s *memStore) UpsertMapping(_ context.Context, mapping domain.AcceptMapping) (domain.AcceptMapping, error) {
	for id, m := range s.mappings {
		if m.RuleID == mapping.RuleID && m.Media.ID == mapping.Media.ID {
			mapping.ID = id
			s.mappings[id] = mapping
			return mapping, nil
		}
	}
	mapping.ID = s.id()
	s.mappings[mapping.ID] = mapping
	return mapping, nil
}

func (s *memStore) PruneMappings(_ context.Context, ruleID int64, keep []int64) error {
	kept := map[int64]bool{}
	for _, id := range keep {
		kept[id] = true
	}
	for id, m := range s.mappings {
		if m.RuleID == ruleID && !kept[m.Media.ID] {
			delete(s.mappings, id)
		}
	}
	return nil
}

func (s *memStore) Mappings(_ context.Context, ruleID int64) ([]domain.AcceptMapping, error) {
	var out []domain.AcceptMapping
	for _, m := range s.mappings {
		if m.RuleID == ruleID {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Media.ID < out[j].Media.ID })
	return out, nil
}

func (s *memStore) Append(_ context.Context, _ string, event domain.EventEnvelope) error {
	s.events = append(s.events, event)
	return nil
}

// memFiles is an in-memory ports.FileStorage.
type memFiles struct {
	data map[string][]byte
}

func newMemFiles() *memFiles {
	return &memFiles{data: map[string][]byte{}}
}

func (f *memFiles) Save(_ context.Context, path string, r io.Reader) error {
	b, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	f.data[path] = b
	return nil
}

func (f *memFiles) Open(_ context.Context, path string) (io.ReadCloser, error) {
	b, ok := f.data[path]
	if !ok {
		return nil, fs.ErrNotExist
	}
	return io.NopCloser(bytes.NewReader(b)), nil
}

func (f *memFiles) Delete(_ context.Context, path string) error {
	delete(f.data, path)
	return nil
}

func (f *memFiles) URL(path string) string { return "/files/" + path }

func (f *memFiles) FS(context.Context) fs.FS {
	out := fstest.MapFS{}
	for p, b := range f.data {
		out[p] = &fstest.MapFile{Data: b}
	}
	return out
}

var (
	_ ports.Store       = (*memStore)(nil)
	_ ports.FileStorage = (*memFiles)(nil)
)
