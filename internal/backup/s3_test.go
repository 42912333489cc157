package backup

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeS3 struct {
	putErr     error
	presignErr error
	bucket     string
	key        string
	body       []byte
}

func (f *fakeS3) PutObject(ctx context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.putErr != nil {
		return nil, f.putErr
	}
	f.bucket, f.key = aws.ToString(in.Bucket), aws.ToString(in.Key)
	f.body, _ = io.ReadAll(in.Body)
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) PresignGetObject(ctx context.Context, in *s3.GetObjectInput, _ ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
	if f.presignErr != nil {
		return nil, f.presignErr
	}
	return &v4.PresignedHTTPRequest{URL: "https://example.test/" + aws.ToString(in.Key)}, nil
}

func newFakeSink(f *fakeS3) *S3Sink {
	return &S3Sink{bucket: "backups", client: f, presigner: f, now: func() time.Time { return fixedNow }}
}

func TestS3Sink_Put(t *testing.T) {
	f := &fakeS3{}
	key, url, err := newFakeSink(f).Put(context.Background(), Archive{Name: "b.zip", Data: []byte("zip")})
	require.NoError(t, err)

	assert.Equal(t, "backups/2024/05/06/b.zip", key)
	assert.Equal(t, "https://example.test/backups/2024/05/06/b.zip", url)
	assert.Equal(t, "backups", f.bucket)
	assert.Equal(t, []byte("zip"), f.body)
}

func TestS3Sink_PutErrors(t *testing.T) {
	_, _, err := newFakeSink(&fakeS3{putErr: errors.New("denied")}).Put(context.Background(), Archive{Name: "b.zip"})
	require.ErrorContains(t, err, "denied")

	key, _, err := newFakeSink(&fakeS3{presignErr: errors.New("no creds")}).Put(context.Background(), Archive{Name: "b.zip"})
	require.ErrorContains(t, err, "no creds")
	assert.NotEmpty(t, key, "object was uploaded")
}

func TestNewS3Sink_ConfigError(t *testing.T) {
	orig := loadDefaultAWSConfig
	t.Cleanup(func() { loadDefaultAWSConfig = orig })
	loadDefaultAWSConfig = func(ctx context.Context, optFns ...func(*awsconfig.LoadOptions) error) (aws.Config, error) {
		return aws.Config{}, errors.New("config-fail")
	}

	_, err := NewS3Sink(context.Background(), S3Config{Bucket: "b", Region: "us-east-1"})
	require.ErrorContains(t, err, "config-fail")
}

func TestNewS3Sink(t *testing.T) {
	orig := loadDefaultAWSConfig
	t.Cleanup(func() { loadDefaultAWSConfig = orig })
	var lo awsconfig.LoadOptions
	loadDefaultAWSConfig = func(ctx context.Context, optFns ...func(*awsconfig.LoadOptions) error) (aws.Config, error) {
		for _, fn := range optFns {
			require.NoError(t, fn(&lo))
		}
		return aws.Config{Region: lo.Region}, nil
	}

	sink, err := NewS3Sink(context.Background(), S3Config{Bucket: "b", Region: "eu-west-1", Endpoint: "http://127.0.0.1:9000", AccessKey: "k", SecretKey: "s"})
	require.NoError(t, err)
	assert.Equal(t, "eu-west-1", lo.Region)
	assert.NotNil(t, lo.Credentials)
	assert.NotNil(t, sink.client)
	assert.True(t, S3Config{Bucket: "b"}.Enabled())
	assert.False(t, S3Config{}.Enabled())
}
