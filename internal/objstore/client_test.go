package objstore

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeS3 struct {
	objects map[string][]byte
	getErr  error
	putErr  error
	lastPut *s3.PutObjectInput
}

func newFakeS3() *fakeS3 {
	return &fakeS3{objects: make(map[string][]byte)}
}

func (f *fakeS3) GetObject(ctx context.Context, in *s3.GetObjectInput, opts ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	b, ok := f.objects[*in.Key]
	if !ok {
		return nil, &s3types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(b))}, nil
}

func (f *fakeS3) PutObject(ctx context.Context, in *s3.PutObjectInput, opts ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.putErr != nil {
		return nil, f.putErr
	}
	b, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.objects[*in.Key] = b
	f.lastPut = in
	return &s3.PutObjectOutput{}, nil
}

func TestGetRoundTrip(t *testing.T) {
	api := newFakeS3()
	api.objects["a/b.json"] = []byte(`{"ok":true}`)

	c := &Client{api: api, bucket: "proj"}
	body, err := c.Get(context.Background(), "a/b.json")
	require.NoError(t, err)
	assert.Equal(t, `{"ok":true}`, string(body))
}

func TestGetAbsentObjectIsErrNotExist(t *testing.T) {
	c := &Client{api: newFakeS3(), bucket: "proj"}
	_, err := c.Get(context.Background(), "missing.json")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotExist)
}

type fakeAPIError struct{ code string }

func (e fakeAPIError) Error() string                 { return e.code }
func (e fakeAPIError) ErrorCode() string             { return e.code }
func (e fakeAPIError) ErrorMessage() string          { return e.code }
func (e fakeAPIError) ErrorFault() smithy.ErrorFault { return smithy.FaultClient }

func TestGetMapsCompatNotFoundVariants(t *testing.T) {
	for _, err := range []error{
		&s3types.NoSuchKey{},
		fakeAPIError{code: "NoSuchKey"},
		fakeAPIError{code: "NotFound"},
		errors.New("operation error S3: GetObject, http status code: 404"),
	} {
		api := newFakeS3()
		api.getErr = err
		c := &Client{api: api, bucket: "proj"}
		_, got := c.Get(context.Background(), "k")
		assert.ErrorIs(t, got, ErrNotExist, "input error: %v", err)
	}
}

func TestGetOtherErrorsAreNotErrNotExist(t *testing.T) {
	api := newFakeS3()
	api.getErr = fakeAPIError{code: "AccessDenied"}

	c := &Client{api: api, bucket: "proj"}
	_, err := c.Get(context.Background(), "k")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotExist)
	assert.Contains(t, err.Error(), "s3://proj/k")
}

func TestPutWritesBody(t *testing.T) {
	api := newFakeS3()
	c := &Client{api: api, bucket: "proj"}

	require.NoError(t, c.Put(context.Background(), "out.json", []byte("payload")))
	assert.Equal(t, []byte("payload"), api.objects["out.json"])
	assert.Equal(t, "proj", *api.lastPut.Bucket)
}

func TestPutErrorIsWrapped(t *testing.T) {
	api := newFakeS3()
	api.putErr = errors.New("SlowDown")

	c := &Client{api: api, bucket: "proj"}
	err := c.Put(context.Background(), "out.json", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "s3://proj/out.json")
}

func TestOCICompatEndpoint(t *testing.T) {
	assert.Equal(t,
		"https://mytenancy.compat.objectstorage.eu-frankfurt-1.oraclecloud.com",
		OCICompatEndpoint("mytenancy", "eu-frankfurt-1"))
}

func TestMemCopiesOnReadAndWrite(t *testing.T) {
	m := NewMem()
	body := []byte("abc")
	require.NoError(t, m.Put(context.Background(), "k", body))
	body[0] = 'z'

	got, err := m.Get(context.Background(), "k")
	require.NoError(t, err)
	assert.Equal(t, "abc", string(got))

	got[0] = 'z'
	again, err := m.Get(context.Background(), "k")
	require.NoError(t, err)
	assert.Equal(t, "abc", string(again))
}

func TestMemFailPut(t *testing.T) {
	m := NewMem()
	m.FailPut = errors.New("quota exceeded")
	assert.Error(t, m.Put(context.Background(), "k", nil))

	m.Seed("k", []byte("v"))
	got, err := m.Get(context.Background(), "k")
	require.NoError(t, err)
	assert.Equal(t, "v", string(got))
}
