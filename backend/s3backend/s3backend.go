// Package s3backend is a Backend that stores the whole database object
// in S3, registered under the "s3" scheme (s3://bucket/key).
//
// S3 objects are not byte-range-writable in place, so this backend
// stages the object in memory (an rrd file is fixed-size and bounded at
// creation time, so this is the same tradeoff the teacher's PAM format
// makes when buffering a recordio block before it flushes — see
// encoding/pam/fieldio/writer.go) and flushes the full object back to
// S3 exactly once, on Close.
package s3backend

import (
	"bytes"
	"io/ioutil"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/grailbio/rrd/backend"
	"github.com/pkg/errors"
)

func init() {
	backend.RegisterFactory("s3", factory{})
}

type factory struct{}

func splitBucketKey(opaque string) (bucket, key string) {
	for i := 0; i < len(opaque); i++ {
		if opaque[i] == '/' {
			return opaque[:i], opaque[i+1:]
		}
	}
	return opaque, ""
}

func newClient() (*s3.S3, error) {
	sess, err := session.NewSession()
	if err != nil {
		return nil, errors.Wrap(err, "s3backend: new session")
	}
	return s3.New(sess), nil
}

func (factory) Open(uri backend.URI, readOnly bool) (backend.Backend, error) {
	cli, err := newClient()
	if err != nil {
		return nil, err
	}
	bucket, key := splitBucketKey(uri.Opaque)
	out, err := cli.GetObject(&s3.GetObjectInput{Bucket: aws.String(bucket), Key: aws.String(key)})
	if err != nil {
		return nil, errors.Wrapf(err, "s3backend: get s3://%s", uri.Opaque)
	}
	defer out.Body.Close() // nolint: errcheck
	data, err := ioutil.ReadAll(out.Body)
	if err != nil {
		return nil, errors.Wrapf(err, "s3backend: read s3://%s", uri.Opaque)
	}
	return &Backend{cli: cli, uri: uri, bucket: bucket, key: key, buf: data, readOnly: readOnly}, nil
}

func (factory) Create(uri backend.URI, size int64) (backend.Backend, error) {
	cli, err := newClient()
	if err != nil {
		return nil, err
	}
	bucket, key := splitBucketKey(uri.Opaque)
	return &Backend{cli: cli, uri: uri, bucket: bucket, key: key, buf: make([]byte, size), dirty: true}, nil
}

func (factory) Exists(uri backend.URI) bool {
	cli, err := newClient()
	if err != nil {
		return false
	}
	bucket, key := splitBucketKey(uri.Opaque)
	_, err = cli.HeadObject(&s3.HeadObjectInput{Bucket: aws.String(bucket), Key: aws.String(key)})
	return err == nil
}

func (factory) ShouldValidateHeader(uri backend.URI) bool { return true }

// Backend is a Backend that stages a single S3 object in memory and
// flushes it whole on Close.
type Backend struct {
	cli      *s3.S3
	uri      backend.URI
	bucket   string
	key      string
	buf      []byte
	readOnly bool
	dirty    bool
}

func (b *Backend) SetLength(n int64) error {
	if int64(len(b.buf)) == n {
		return nil
	}
	newBuf := make([]byte, n)
	copy(newBuf, b.buf)
	b.buf = newBuf
	b.dirty = true
	return nil
}

func (b *Backend) ReadAt(offset int64, buf []byte) error {
	if offset < 0 || offset+int64(len(buf)) > int64(len(b.buf)) {
		return errors.Errorf("s3backend: read [%d,%d) out of bounds (len=%d)", offset, offset+int64(len(buf)), len(b.buf))
	}
	copy(buf, b.buf[offset:offset+int64(len(buf))])
	return nil
}

func (b *Backend) WriteAt(offset int64, buf []byte) error {
	if b.readOnly {
		return errors.New("s3backend: read-only")
	}
	if offset < 0 || offset+int64(len(buf)) > int64(len(b.buf)) {
		return errors.Errorf("s3backend: write [%d,%d) out of bounds (len=%d)", offset, offset+int64(len(buf)), len(b.buf))
	}
	copy(b.buf[offset:offset+int64(len(buf))], buf)
	b.dirty = true
	return nil
}

func (b *Backend) ReadAll() ([]byte, error) {
	out := make([]byte, len(b.buf))
	copy(out, b.buf)
	return out, nil
}

func (b *Backend) Close() error {
	if b.readOnly || !b.dirty {
		return nil
	}
	_, err := b.cli.PutObject(&s3.PutObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(b.key),
		Body:   bytes.NewReader(b.buf),
	})
	if err != nil {
		return errors.Wrapf(err, "s3backend: put s3://%s", b.uri.Opaque)
	}
	b.dirty = false
	return nil
}

func (b *Backend) Path() string     { return b.uri.String() }
func (b *Backend) URI() backend.URI { return b.uri }
