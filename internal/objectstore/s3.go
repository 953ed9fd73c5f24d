package objectstore

import (
	"bytes"
	"io"
	"io/ioutil"
	"net/http"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/nicolagi/dedupvfs/internal/hash"
	"github.com/pkg/errors"
)

// S3Store stores blobs as objects in a bucket, keyed by digest. It
// implements the same Store contract as DiskStore so a deployment can
// point EntityFiles at durable object storage instead of local disk.
type S3Store struct {
	client *s3.S3
	bucket string
}

var _ Store = (*S3Store)(nil)

// S3Config carries the subset of configuration needed to construct an
// S3Store.
type S3Config struct {
	Region  string
	Bucket  string
	Profile string
}

// NewS3Store constructs an S3-backed Store. maxRetries governs the AWS SDK's
// own retry policy for transient network failures.
func NewS3Store(c S3Config) (*S3Store, error) {
	const maxRetries = 16
	sess, err := session.NewSession(&aws.Config{
		Region:      aws.String(c.Region),
		Credentials: credentials.NewSharedCredentials("", c.Profile),
		MaxRetries:  aws.Int(maxRetries),
	})
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return &S3Store{
		client: s3.New(sess),
		bucket: c.Bucket,
	}, nil
}

func (s *S3Store) Exists(d hash.Digest) (bool, error) {
	_, err := s.client.HeadObject(&s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(string(d)),
	})
	if err == nil {
		return true, nil
	}
	if rfErr, ok := err.(awserr.RequestFailure); ok && rfErr.StatusCode() == http.StatusNotFound {
		return false, nil
	}
	return false, errors.WithStack(err)
}

func (s *S3Store) Add(d hash.Digest, src io.Reader) error {
	const method = "S3Store.Add"
	if exists, err := s.Exists(d); err != nil {
		return err
	} else if exists {
		return errorf(method, "%q: %w", d, ErrExists)
	}
	b, err := ioutil.ReadAll(src)
	if err != nil {
		return errorf(method, "reading source for %q: %v", d, err)
	}
	_, err = s.client.PutObject(&s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(string(d)),
		Body:   bytes.NewReader(b),
	})
	if err != nil {
		return errors.WithStack(err)
	}
	return nil
}

func (s *S3Store) Remove(d hash.Digest) error {
	if exists, err := s.Exists(d); err != nil {
		return err
	} else if !exists {
		return errorf("S3Store.Remove", "%q: %w", d, ErrNotFound)
	}
	if _, err := s.client.DeleteObject(&s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(string(d)),
	}); err != nil {
		return errors.WithStack(err)
	}
	return nil
}

// ForEach pages through the bucket listing and calls cb for every object
// whose key is digest-shaped. Listing is synchronous: the whole system is
// single-threaded, so there is nothing for a producer goroutine to overlap
// with.
func (s *S3Store) ForEach(cb func(hash.Digest) error) error {
	input := &s3.ListObjectsInput{
		Bucket: aws.String(s.bucket),
	}
	for {
		output, err := s.client.ListObjects(input)
		if err != nil {
			return errors.WithStack(err)
		}
		for _, o := range output.Contents {
			key := aws.StringValue(o.Key)
			if !hash.Valid(key) {
				continue
			}
			if err := cb(hash.Digest(key)); err != nil {
				return err
			}
		}
		if !aws.BoolValue(output.IsTruncated) || len(output.Contents) == 0 {
			break
		}
		// NextMarker is only set when a delimiter is used; otherwise the
		// last key of this page is the marker for the next one.
		if output.NextMarker != nil {
			input.Marker = output.NextMarker
		} else {
			input.Marker = output.Contents[len(output.Contents)-1].Key
		}
	}
	return nil
}

func (s *S3Store) Open(d hash.Digest) (io.ReadCloser, error) {
	const method = "S3Store.Open"
	output, err := s.client.GetObject(&s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(string(d)),
	})
	if err != nil {
		if rfErr, ok := err.(awserr.RequestFailure); ok && rfErr.StatusCode() == http.StatusNotFound {
			return nil, errorf(method, "%q: %w", d, ErrNotFound)
		}
		return nil, errors.WithStack(err)
	}
	return output.Body, nil
}
