package objstore

import (
	"bytes"
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/goverify/goverify/internal/pkg/instrument"
	"github.com/goverify/goverify/internal/pkg/storage"
)

type Objstore struct {
	client storage.Storage
	bucket string
	ins    instrument.Instrumentation
}

func NewObjstore(client storage.Storage, bucket string, ins instrument.Instrumentation) *Objstore {
	return &Objstore{
		client: client,
		bucket: bucket,
		ins:    ins,
	}
}

func (s *Objstore) Put(ctx context.Context, key string, data []byte) error {
	ctx, span := s.ins.Tracer("audit.outbound.objstore").Start(ctx, "Put")
	defer span.End()

	span.SetAttributes(
		attribute.String("object.bucket", s.bucket),
		attribute.String("object.key", key),
		attribute.Int("object.size", len(data)),
	)

	_, err := s.client.PutObject(ctx, s.bucket, key, bytes.NewReader(data), storage.PutOptions{
		Size:        int64(len(data)),
		ContentType: "application/x-ndjson",
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	return nil
}
