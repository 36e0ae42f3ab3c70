package storage

import (
	"bytes"
	"context"
	"errors"
	"io"
	"io/fs"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalSaveReplacesInPlace(t *testing.T) {
	ctx := context.Background()
	l, err := NewLocal(t.TempDir(), "http://models.example.org/media/")
	require.NoError(t, err)

	require.NoError(t, l.Save(ctx, "active-fault/1.0/ActiveFault.xsd", strings.NewReader("first")))
	require.NoError(t, l.Save(ctx, "active-fault/1.0/ActiveFault.xsd", strings.NewReader("second")))

	got, err := fs.ReadFile(l.FS(ctx), "active-fault/1.0/ActiveFault.xsd")
	require.NoError(t, err)
	assert.Equal(t, "second", string(got))

	entries, err := fs.ReadDir(l.FS(ctx), "active-fault/1.0")
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temporary upload files must not remain")

	assert.Equal(t, "http://models.example.org/media/active-fault/1.0/ActiveFault.xsd", l.URL("active-fault/1.0/ActiveFault.xsd"))
}

func TestLocalOpenAndDelete(t *testing.T) {
	ctx := context.Background()
	l, err := NewLocal(t.TempDir(), "/files")
	require.NoError(t, err)

	require.NoError(t, l.Save(ctx, "m/1.0/a.xls", strings.NewReader("xls")))
	rc, err := l.Open(ctx, "m/1.0/a.xls")
	require.NoError(t, err)
	data, _ := io.ReadAll(rc)
	_ = rc.Close()
	assert.Equal(t, "xls", string(data))

	require.NoError(t, l.Delete(ctx, "m/1.0/a.xls"))
	require.NoError(t, l.Delete(ctx, "m/1.0/a.xls"))
	_, err = l.Open(ctx, "m/1.0/a.xls")
	assert.ErrorIs(t, err, fs.ErrNotExist)
}

func TestLocalRejectsEscapingPaths(t *testing.T) {
	l, err := NewLocal(t.TempDir(), "/files")
	require.NoError(t, err)

	for _, p := range []string{"../outside.xsd", "/etc/passwd", "", "a/../../b"} {
		err := l.Save(context.Background(), p, strings.NewReader("x"))
		assert.ErrorIs(t, err, fs.ErrInvalid, p)
	}
}

type fakeS3 struct {
	objects map[string][]byte
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.objects[*in.Key] = data
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	data, ok := f.objects[*in.Key]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

func (f *fakeS3) DeleteObject(_ context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	delete(f.objects, *in.Key)
	return &s3.DeleteObjectOutput{}, nil
}

func TestS3StoreServesObjectsAsFS(t *testing.T) {
	ctx := context.Background()
	store := newS3(&fakeS3{objects: map[string][]byte{}}, "models", "https://cdn.example.org/")

	require.NoError(t, store.Save(ctx, "m/1.0/M.xsd", strings.NewReader("<xs:schema/>")))
	assert.Equal(t, "https://cdn.example.org/m/1.0/M.xsd", store.URL("m/1.0/M.xsd"))

	data, err := fs.ReadFile(store.FS(ctx), "m/1.0/M.xsd")
	require.NoError(t, err)
	assert.Equal(t, "<xs:schema/>", string(data))

	f, err := store.FS(ctx).Open("m/1.0/M.xsd")
	require.NoError(t, err)
	info, err := f.Stat()
	require.NoError(t, err)
	assert.Equal(t, "M.xsd", info.Name())
	assert.EqualValues(t, len("<xs:schema/>"), info.Size())

	require.NoError(t, store.Delete(ctx, "m/1.0/M.xsd"))
	_, err = store.Open(ctx, "m/1.0/M.xsd")
	assert.True(t, errors.Is(err, fs.ErrNotExist))
}
