package reporting

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path"

	"cloud.google.com/go/storage"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
)

const archivePrefix = "reports"

// archiveKey returns the object name for event, e.g.
// reports/2024/05/01/20240501T101500Z-<uuid>.json.
func archiveKey(event Event) string {
	t := event.Time.UTC()
	name := fmt.Sprintf("%s-%s.json", t.Format("20060102T150405Z"), uuid.NewString())
	return path.Join(archivePrefix, t.Format("2006/01/02"), name)
}

func archivePayload(event Event) ([]byte, error) {
	return json.Marshal(struct {
		Time   string      `json:"time"`
		Report interface{} `json:"report"`
	}{
		Time:   event.Time.UTC().Format("2006-01-02T15:04:05Z07:00"),
		Report: event.Report,
	})
}

// GCSSink archives failure reports as JSON objects in a Google Cloud Storage
// bucket. Successful reports are not archived.
type GCSSink struct {
	Client     *storage.Client // GCS client instance
	BucketName string          // Name of the GCS bucket
}

func (g *GCSSink) Name() string {
	return "gcs"
}

func (g *GCSSink) Send(ctx context.Context, event Event) error {
	if event.Report.IsOK() {
		return nil
	}
	payload, err := archivePayload(event)
	if err != nil {
		return err
	}
	w := g.Client.Bucket(g.BucketName).Object(archiveKey(event)).NewWriter(ctx)
	w.ContentType = "application/json"
	if _, err := w.Write(payload); err != nil {
		_ = w.Close()
		return err
	}
	return w.Close()
}

// S3PutObjectAPI is the part of the S3 client used by S3Sink.
type S3PutObjectAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Sink archives failure reports as JSON objects in an S3 bucket.
// Successful reports are not archived.
type S3Sink struct {
	Client     S3PutObjectAPI // S3 client instance
	BucketName string         // Name of the S3 bucket
}

func (s *S3Sink) Name() string {
	return "s3"
}

func (s *S3Sink) Send(ctx context.Context, event Event) error {
	if event.Report.IsOK() {
		return nil
	}
	payload, err := archivePayload(event)
	if err != nil {
		return err
	}
	_, err = s.Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.BucketName),
		Key:         aws.String(archiveKey(event)),
		Body:        bytes.NewReader(payload),
		ContentType: aws.String("application/json"),
	})
	return err
}
