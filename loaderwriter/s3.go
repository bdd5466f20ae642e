package loaderwriter

import (
	"bytes"
	"context"
	"errors"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/sharedcode/tiercache"
)

const largeObjectMinSize = 10 * 1024 * 1024

// S3LoaderWriter is a tiercache.LoaderWriter backed by an S3 bucket
// (GetObject/PutObject/DeleteObjects, with a manager.Uploader path for
// writing large objects; reads always use GetObject), generalized to
// arbitrary (K, V) via Codec/KeyFunc.
type S3LoaderWriter[K comparable, V any] struct {
	client *s3.Client
	bucket string
	prefix string
	codec  Codec[V]
	keyFn  KeyFunc[K]
}

// NewS3LoaderWriter builds an S3LoaderWriter over an already-configured
// *s3.Client.
func NewS3LoaderWriter[K comparable, V any](client *s3.Client, bucket, prefix string, keyFn KeyFunc[K], codec Codec[V]) *S3LoaderWriter[K, V] {
	if codec == nil {
		codec = JSONCodec[V]{}
	}
	return &S3LoaderWriter[K, V]{client: client, bucket: bucket, prefix: prefix, codec: codec, keyFn: keyFn}
}

func (s *S3LoaderWriter[K, V]) objectKey(k K) string {
	return s.prefix + s.keyFn(k)
}

// Load implements tiercache.LoaderWriter.
func (s *S3LoaderWriter[K, V]) Load(ctx context.Context, key K) (V, bool, error) {
	var zero V
	result, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.objectKey(key)),
	})
	if err != nil {
		var nsk *types.NoSuchKey
		if errors.As(err, &nsk) {
			return zero, false, nil
		}
		return zero, false, err
	}
	defer result.Body.Close()
	data, err := io.ReadAll(result.Body)
	if err != nil {
		return zero, false, err
	}
	v, err := s.codec.Decode(data)
	if err != nil {
		return zero, false, err
	}
	return v, true, nil
}

// LoadAll implements tiercache.LoaderWriter by issuing a GetObject per key
// (S3 has no native multi-key get), collecting per-key failures into a
// BulkError like aws_s3.cachedBucket.fetch does.
func (s *S3LoaderWriter[K, V]) LoadAll(ctx context.Context, keys []K) (map[K]V, error) {
	out := make(map[K]V, len(keys))
	failures := make(map[K]error)
	successes := make(map[K]struct{})
	for _, k := range keys {
		v, found, err := s.Load(ctx, k)
		if err != nil {
			failures[k] = err
			continue
		}
		if found {
			out[k] = v
		}
		successes[k] = struct{}{}
	}
	if len(failures) > 0 {
		return out, tiercache.NewBulkError(tiercache.Loading, successes, failures)
	}
	return out, nil
}

// Write implements tiercache.LoaderWriter, using the multipart manager.
// Uploader for values at or above largeObjectMinSize, mirroring
// S3Bucket.Add's large-vs-small split.
func (s *S3LoaderWriter[K, V]) Write(ctx context.Context, key K, value V) error {
	data, err := s.codec.Encode(value)
	if err != nil {
		return err
	}
	if len(data) >= largeObjectMinSize {
		uploader := manager.NewUploader(s.client, func(u *manager.Uploader) { u.PartSize = largeObjectMinSize })
		_, err := uploader.Upload(ctx, &s3.PutObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(s.objectKey(key)),
			Body:   bytes.NewReader(data),
		})
		return err
	}
	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.objectKey(key)),
		Body:   bytes.NewReader(data),
	})
	return err
}

// WriteAll implements tiercache.LoaderWriter.
func (s *S3LoaderWriter[K, V]) WriteAll(ctx context.Context, entries map[K]V) error {
	successes := make(map[K]struct{})
	failures := make(map[K]error)
	for k, v := range entries {
		if err := s.Write(ctx, k, v); err != nil {
			failures[k] = err
			continue
		}
		successes[k] = struct{}{}
	}
	if len(failures) > 0 {
		return tiercache.NewBulkError(tiercache.Writing, successes, failures)
	}
	return nil
}

// Delete implements tiercache.LoaderWriter.
func (s *S3LoaderWriter[K, V]) Delete(ctx context.Context, key K) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.objectKey(key)),
	})
	return err
}

// DeleteAll implements tiercache.LoaderWriter using a single DeleteObjects
// call, mirroring S3Bucket.Remove.
func (s *S3LoaderWriter[K, V]) DeleteAll(ctx context.Context, keys []K) error {
	if len(keys) == 0 {
		return nil
	}
	byRendered := make(map[string]K, len(keys))
	objectIds := make([]types.ObjectIdentifier, 0, len(keys))
	for _, k := range keys {
		ok := s.objectKey(k)
		byRendered[ok] = k
		objectIds = append(objectIds, types.ObjectIdentifier{Key: aws.String(ok)})
	}
	output, err := s.client.DeleteObjects(ctx, &s3.DeleteObjectsInput{
		Bucket: aws.String(s.bucket),
		Delete: &types.Delete{Objects: objectIds},
	})
	if err != nil {
		return err
	}
	if len(output.Errors) == 0 {
		return nil
	}
	successes := make(map[K]struct{})
	for _, k := range keys {
		successes[k] = struct{}{}
	}
	failures := make(map[K]error, len(output.Errors))
	for _, e := range output.Errors {
		k, ok := byRendered[aws.ToString(e.Key)]
		if !ok {
			continue
		}
		delete(successes, k)
		failures[k] = errors.New(aws.ToString(e.Message))
	}
	return tiercache.NewBulkError(tiercache.Writing, successes, failures)
}

func init() {
	tiercache.RegisterLoaderWriterFactory[string, string](tiercache.S3Backend, func(cfg tiercache.BackendConfig) (tiercache.LoaderWriter[string, string], error) {
		sdkConfig, err := awsconfig.LoadDefaultConfig(context.Background(), awsconfig.WithRegion(cfg.S3.Region))
		if err != nil {
			return nil, err
		}
		client := s3.NewFromConfig(sdkConfig)
		return NewS3LoaderWriter[string, string](client, cfg.S3.Bucket, cfg.S3.Prefix, func(k string) string { return k }, JSONCodec[string]{}), nil
	})
}
