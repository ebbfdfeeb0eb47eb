////////////////////////////////////////////////////////////////////////////////
// Copyright © 2024 quorumchat developers                                     //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

package blobstore

import (
	"bytes"
	"context"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	jww "github.com/spf13/jwalterweatherman"
	"golang.org/x/sync/errgroup"
)

// Error messages.
const (
	loadAWSConfigErr = "failed to load S3 configuration: %+v"
	putObjectErr     = "failed to store blob %s: %+v"
	getObjectErr     = "failed to fetch blob %s: %+v"
	readObjectErr    = "failed to read blob %s body: %+v"
)

// S3Config configures the S3-compatible adapter. Endpoint may point at any
// S3-compatible object store; path-style addressing is used so self-hosted
// deployments work without wildcard DNS.
type S3Config struct {
	Region    string
	Endpoint  string
	Bucket    string
	AccessKey string
	SecretKey string
}

// S3Adapter stores each payload as one object in an S3-compatible bucket.
// References are the generated object keys.
type S3Adapter struct {
	client *s3.Client
	bucket string
}

// NewS3Adapter builds an adapter from the given configuration.
func NewS3Adapter(ctx context.Context, cfg S3Config) (*S3Adapter, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.Region),
		awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(
				cfg.AccessKey, cfg.SecretKey, "")),
	)
	if err != nil {
		return nil, errors.Errorf(loadAWSConfigErr, err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = true
	})

	return &S3Adapter{client: client, bucket: cfg.Bucket}, nil
}

// Upload stores every payload under a fresh object key. Objects are written
// in parallel; the returned references preserve payload order.
func (a *S3Adapter) Upload(ctx context.Context, payloads [][]byte) (
	[]Reference, error) {
	if len(payloads) == 0 {
		return nil, EmptyUploadErr
	}

	refs := make([]Reference, len(payloads))
	eg, egCtx := errgroup.WithContext(ctx)
	for i, payload := range payloads {
		key := uuid.NewString()
		refs[i] = Reference(key)
		eg.Go(func() error {
			_, err := a.client.PutObject(egCtx, &s3.PutObjectInput{
				Bucket: aws.String(a.bucket),
				Key:    aws.String(key),
				Body:   bytes.NewReader(payload),
			})
			if err != nil {
				return errors.Errorf(putObjectErr, key, err)
			}
			return nil
		})
	}

	if err := eg.Wait(); err != nil {
		return nil, err
	}

	jww.DEBUG.Printf("[BLOB] Stored %d objects in bucket %q",
		len(payloads), a.bucket)
	return refs, nil
}

// Download fetches each object in parallel, preserving reference order.
func (a *S3Adapter) Download(ctx context.Context, refs []Reference) (
	[][]byte, error) {
	payloads := make([][]byte, len(refs))

	eg, egCtx := errgroup.WithContext(ctx)
	for i, ref := range refs {
		eg.Go(func() error {
			out, err := a.client.GetObject(egCtx, &s3.GetObjectInput{
				Bucket: aws.String(a.bucket),
				Key:    aws.String(string(ref)),
			})
			if err != nil {
				return errors.Errorf(getObjectErr, ref, err)
			}
			defer out.Body.Close()

			payload, err := io.ReadAll(out.Body)
			if err != nil {
				return errors.Errorf(readObjectErr, ref, err)
			}
			payloads[i] = payload
			return nil
		})
	}

	if err := eg.Wait(); err != nil {
		return nil, err
	}
	return payloads, nil
}
