package xmlschema

import (
	"bytes"
	"context"
	"io"
	"io/fs"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"testing/fstest"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/usgin/modelmanager/internal/core/domain"
)

const activeFaultXSD = `<?xml version="1.0" encoding="UTF-8"?>
<xs:schema xmlns:xs="http://www.w3.org/2001/XMLSchema" xmlns:aasg="http://example.org/activefault"
    targetNamespace="http://example.org/activefault" elementFormDefault="qualified">
  <xs:element name="ActiveFault" type="aasg:ActiveFaultType"/>
  <xs:complexType name="ActiveFaultType">
    <xs:sequence>
      <xs:element name="Name" type="xs:string">
        <xs:annotation><xs:documentation>Name of the fault</xs:documentation></xs:annotation>
      </xs:element>
      <xs:element name="Length" type="xs:double" minOccurs="0"/>
      <xs:element name="Confidence" minOccurs="0">
        <xs:simpleType>
          <xs:restriction base="xs:string">
            <xs:enumeration value="high"/>
            <xs:enumeration value="low"/>
          </xs:restriction>
        </xs:simpleType>
      </xs:element>
    </xs:sequence>
  </xs:complexType>
</xs:schema>`

const siteXSD = `<?xml version="1.0" encoding="UTF-8"?>
<xs:schema xmlns:xs="http://www.w3.org/2001/XMLSchema" xmlns:gml="http://www.opengis.net/gml"
    targetNamespace="http://example.org/site" elementFormDefault="qualified">
  <xs:import namespace="http://www.opengis.net/gml" schemaLocation="http://schemas.opengis.net/gml/3.1.1/base/gml.xsd"/>
  <xs:element name="Site">
    <xs:complexType>
      <xs:sequence>
        <xs:element ref="gml:pos"/>
      </xs:sequence>
    </xs:complexType>
  </xs:element>
</xs:schema>`

const bundledGML = `<?xml version="1.0" encoding="UTF-8"?>
<xs:schema xmlns:xs="http://www.w3.org/2001/XMLSchema"
    targetNamespace="http://www.opengis.net/gml" elementFormDefault="qualified">
  <xs:element name="pos" type="xs:string"/>
</xs:schema>`

// mapStorage is a ports.FileStorage over a MapFS.
type mapStorage struct {
	files fstest.MapFS
}

func newMapStorage(files map[string]string) *mapStorage {
	s := &mapStorage{files: fstest.MapFS{}}
	for name, data := range files {
		s.files[name] = &fstest.MapFile{Data: []byte(data)}
	}
	return s
}

func (s *mapStorage) Save(_ context.Context, path string, r io.Reader) error {
	b, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	s.files[path] = &fstest.MapFile{Data: b}
	return nil
}

func (s *mapStorage) Open(_ context.Context, path string) (io.ReadCloser, error) {
	f, ok := s.files[path]
	if !ok {
		return nil, fs.ErrNotExist
	}
	return io.NopCloser(bytes.NewReader(f.Data)), nil
}

func (s *mapStorage) Delete(_ context.Context, path string) error {
	delete(s.files, path)
	return nil
}

func (s *mapStorage) URL(path string) string   { return "/files/" + path }
func (s *mapStorage) FS(context.Context) fs.FS { return s.files }

func TestResolverValidatesElements(t *testing.T) {
	files := newMapStorage(map[string]string{"active-fault/1.0/ActiveFault.xsd": activeFaultXSD})
	r := NewResolver(files, nil, time.Second, zap.NewNop())

	v, err := r.Resolve(context.Background(), "active-fault/1.0/ActiveFault.xsd")
	require.NoError(t, err)

	valid := `<aasg:ActiveFault xmlns:aasg="http://example.org/activefault"><aasg:Name>Sand Hollow</aasg:Name><aasg:Length>1.5</aasg:Length></aasg:ActiveFault>`
	assert.Empty(t, v.ValidateElement([]byte(valid)))

	invalid := `<aasg:ActiveFault xmlns:aasg="http://example.org/activefault"><aasg:Name>Sand Hollow</aasg:Name><aasg:Length>long</aasg:Length></aasg:ActiveFault>`
	assert.NotEmpty(t, v.ValidateElement([]byte(invalid)))
}

func TestResolverCachesUntilInvalidated(t *testing.T) {
	files := newMapStorage(map[string]string{"a/1.0/A.xsd": activeFaultXSD})
	r := NewResolver(files, nil, time.Second, zap.NewNop())
	ctx := context.Background()

	first, err := r.Resolve(ctx, "a/1.0/A.xsd")
	require.NoError(t, err)
	second, err := r.Resolve(ctx, "a/1.0/A.xsd")
	require.NoError(t, err)
	assert.Same(t, first, second)

	r.Invalidate("a/1.0/A.xsd")
	third, err := r.Resolve(ctx, "a/1.0/A.xsd")
	require.NoError(t, err)
	assert.NotSame(t, first, third)
}

func TestResolverRejectsBrokenSchemas(t *testing.T) {
	files := newMapStorage(map[string]string{
		"a/1.0/Malformed.xsd": `<xs:schema xmlns:xs="http://www.w3.org/2001/XMLSchema"><xs:element`,
		"a/1.0/Invalid.xsd":   `<xs:schema xmlns:xs="http://www.w3.org/2001/XMLSchema"><xs:element name="a" type="xs:nothing"/></xs:schema>`,
	})
	r := NewResolver(files, nil, time.Second, zap.NewNop())

	for _, name := range []string{"a/1.0/Malformed.xsd", "a/1.0/Invalid.xsd", "a/1.0/Missing.xsd"} {
		_, err := r.Resolve(context.Background(), name)
		assert.ErrorIs(t, err, domain.ErrSchema, name)
	}
}

func TestResolverServesGMLFromBundle(t *testing.T) {
	files := newMapStorage(map[string]string{"site/1.0/Site.xsd": siteXSD})
	bundle := fstest.MapFS{
		"schemas.opengis.net/gml/3.1.1/base/gml.xsd": &fstest.MapFile{Data: []byte(bundledGML)},
	}
	// Any request leaving the process would fail the test.
	r := NewResolver(files, bundle, time.Millisecond, zap.NewNop())

	v, err := r.Resolve(context.Background(), "site/1.0/Site.xsd")
	require.NoError(t, err)

	doc := `<s:Site xmlns:s="http://example.org/site" xmlns:gml="http://www.opengis.net/gml"><gml:pos>1 2</gml:pos></s:Site>`
	assert.Empty(t, v.ValidateElement([]byte(doc)))
}

func TestResolverRequiresBundleForGML(t *testing.T) {
	files := newMapStorage(map[string]string{"site/1.0/Site.xsd": siteXSD})
	r := NewResolver(files, nil, time.Millisecond, zap.NewNop())

	_, err := r.Resolve(context.Background(), "site/1.0/Site.xsd")
	assert.ErrorIs(t, err, domain.ErrSchema)
}

func TestResolverFetchesOtherRemoteSchemas(t *testing.T) {
	var requests int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		_, _ = w.Write([]byte(strings.Replace(bundledGML, "http://www.opengis.net/gml", "http://example.org/types", 1)))
	}))
	defer srv.Close()

	xsdDoc := `<xs:schema xmlns:xs="http://www.w3.org/2001/XMLSchema" xmlns:t="http://example.org/types"
    targetNamespace="http://example.org/site" elementFormDefault="qualified">
  <xs:import namespace="http://example.org/types" schemaLocation="` + srv.URL + `/types.xsd"/>
  <xs:element name="Site"><xs:complexType><xs:sequence><xs:element ref="t:pos"/></xs:sequence></xs:complexType></xs:element>
</xs:schema>`
	files := newMapStorage(map[string]string{"Site.xsd": xsdDoc})
	r := NewResolver(files, fstest.MapFS{}, time.Second, zap.NewNop())

	v, err := r.Resolve(context.Background(), "Site.xsd")
	require.NoError(t, err)
	assert.Equal(t, 1, requests)

	doc := `<s:Site xmlns:s="http://example.org/site" xmlns:t="http://example.org/types"><t:pos>x</t:pos></s:Site>`
	assert.Empty(t, v.ValidateElement([]byte(doc)))
}

func TestRewriteLocations(t *testing.T) {
	in := `<xs:import schemaLocation="http://schemas.opengis.net/gml/3.1.1/base/gml.xsd"/>` +
		`<xs:include schemaLocation='https://example.org/a/b.xsd?x=1'/>` +
		`<xs:include schemaLocation="local.xsd"/>`

	got := string(rewriteLocations([]byte(in), "model/1.0"))
	assert.Contains(t, got, `schemaLocation="../../remote/http/schemas.opengis.net/gml/3.1.1/base/gml.xsd"`)
	assert.Contains(t, got, `schemaLocation='../../remote/https/example.org/a/b.xsd'`)
	assert.Contains(t, got, `schemaLocation="local.xsd"`)

	got = string(rewriteLocations([]byte(in), "."))
	assert.Contains(t, got, `schemaLocation="remote/http/schemas.opengis.net/gml/3.1.1/base/gml.xsd"`)
}

func TestFieldsDescribeSequenceElements(t *testing.T) {
	fields, err := Introspector{}.Fields([]byte(activeFaultXSD))
	require.NoError(t, err)
	require.Len(t, fields, 3)

	assert.Equal(t, "Name", fields[0].Name)
	assert.Equal(t, "string", fields[0].Type)
	assert.False(t, fields[0].Optional)
	require.NotNil(t, fields[0].Description)
	assert.Equal(t, "Name of the fault", *fields[0].Description)

	assert.Equal(t, "double", fields[1].Type)
	assert.True(t, fields[1].Optional)
	assert.Nil(t, fields[1].Description)

	assert.Equal(t, "Confidence", fields[2].Name)
	assert.Equal(t, "string", fields[2].Type)

	_, err = Introspector{}.Fields([]byte("<xs:schema"))
	assert.ErrorIs(t, err, domain.ErrSchema)
}

func TestTypeDetails(t *testing.T) {
	got := Introspector{}.TypeDetails([]byte(activeFaultXSD))
	assert.Equal(t, domain.TypeDetails{
		Namespace: "http://example.org/activefault",
		TypeName:  "aasg:ActiveFault",
		Prefix:    "aasg",
		LayerName: "ActiveFault",
	}, got)

	assert.Equal(t, domain.TypeDetails{}, Introspector{}.TypeDetails([]byte("not xml <")))
	assert.Equal(t, domain.TypeDetails{}, Introspector{}.TypeDetails([]byte(`<xs:schema xmlns:xs="http://www.w3.org/2001/XMLSchema"/>`)))
}

func TestLayerFieldsFollowNamedTypes(t *testing.T) {
	layers, err := Introspector{}.LayerFields([]byte(activeFaultXSD))
	require.NoError(t, err)
	require.Contains(t, layers, "ActiveFault")
	assert.Len(t, layers["ActiveFault"], 3)

	layers, err = Introspector{}.LayerFields([]byte(siteXSD))
	require.NoError(t, err)
	require.Len(t, layers["Site"], 1)
	assert.Equal(t, "pos", layers["Site"][0].Name)
}
