package render

import (
	"context"
	"mime"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
	"gitlab.com/tozd/go/errors"

	"github.com/walteh/projectmill/pkg/config"
)

// ObjectUploader is the part of the S3 upload manager the uploader uses
type ObjectUploader interface {
	Upload(ctx context.Context, input *s3.PutObjectInput, opts ...func(*manager.Uploader)) (*manager.UploadOutput, error)
}

// ☁️ S3Uploader puts exports under s3://Bucket/Prefix
type S3Uploader struct {
	Bucket string
	Prefix string
	Client ObjectUploader
	Sleep  Sleeper
}

// ParseS3URL splits s3://bucket/prefix into its parts
func ParseS3URL(raw string) (bucket, prefix string, err error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", "", errors.Errorf("parsing S3 URL: %w", err)
	}
	if u.Scheme != "s3" || u.Host == "" {
		return "", "", errors.Errorf("invalid S3 URL %q: want s3://bucket[/prefix]", raw)
	}
	return u.Host, strings.Trim(u.Path, "/"), nil
}

// NewS3Uploader builds an uploader for target using the default AWS
// credential chain
func NewS3Uploader(ctx context.Context, target string) (*S3Uploader, error) {
	bucket, prefix, err := ParseS3URL(target)
	if err != nil {
		return nil, err
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, errors.Errorf("loading AWS config: %w", err)
	}
	return &S3Uploader{
		Bucket: bucket,
		Prefix: prefix,
		Client: manager.NewUploader(s3.NewFromConfig(cfg)),
	}, nil
}

// Key is the object key of file
func (u *S3Uploader) Key(file string) string {
	return path.Join(u.Prefix, filepath.Base(file))
}

func contentType(file string) string {
	if t := mime.TypeByExtension(filepath.Ext(file)); t != "" {
		return t
	}
	return "application/octet-stream"
}

// retryableS3 reports whether S3 asked us to come back later
func retryableS3(err error) bool {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "ServiceUnavailable", "SlowDown":
			return true
		}
	}
	return serviceUnavailable.MatchString(err.Error())
}

func (u *S3Uploader) Upload(ctx context.Context, p config.Project, file string) error {
	sleep := u.Sleep
	if sleep == nil {
		sleep = Sleep
	}
	key := u.Key(file)
	return retry(ctx, sleep, func(attempt int) (bool, error) {
		f, err := os.Open(file)
		if err != nil {
			return false, errors.Errorf("opening %s: %w", file, err)
		}
		defer f.Close()

		_, err = u.Client.Upload(ctx, &s3.PutObjectInput{
			Bucket:      aws.String(u.Bucket),
			Key:         aws.String(key),
			Body:        f,
			ContentType: aws.String(contentType(file)),
		})
		if err != nil {
			return retryableS3(err), errors.Errorf("putting s3://%s/%s: %w", u.Bucket, key, err)
		}
		return false, nil
	})
}
