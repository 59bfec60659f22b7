package usecase

import (
	"context"
	"time"

	"github.com/goverify/goverify/internal/audit/entity"
	"github.com/goverify/goverify/internal/pkg/clock"
	"github.com/goverify/goverify/internal/pkg/config"
	"github.com/goverify/goverify/internal/pkg/idempotency"
	"github.com/goverify/goverify/internal/pkg/instrument"
	"github.com/goverify/goverify/internal/pkg/uid"
	"github.com/goverify/goverify/internal/pkg/validator"
	"go.opentelemetry.io/otel/trace"
)

type repoDB interface {
	CreateAttempt(ctx context.Context, rec entity.AttemptRecord) error
	ListAttemptsBefore(ctx context.Context, cutoff time.Time, limit int32) ([]entity.AttemptRecord, error)
	DeleteAttemptsByIDs(ctx context.Context, ids []int64) (int64, error)
}

type repoObjstore interface {
	Put(ctx context.Context, key string, data []byte) error
}

type Usecase struct {
	repoDB       repoDB
	repoObjstore repoObjstore
	idemp        idempotency.Idempotency
	cfg          config.Config
	uid          uid.NumberID
	clock        clock.Clocker
	validator    validator.Validator
	ins          instrument.Instrumentation
}

type Dependency struct {
	RepoDB       repoDB
	RepoObjstore repoObjstore
	Idempotency  idempotency.Idempotency
	Config       config.Config
	UID          uid.NumberID
	Clock        clock.Clocker
	Validator    validator.Validator
	Instrument   instrument.Instrumentation
}

func New(dep Dependency) *Usecase {
	return &Usecase{
		repoDB:       dep.RepoDB,
		repoObjstore: dep.RepoObjstore,
		idemp:        dep.Idempotency,
		cfg:          dep.Config,
		uid:          dep.UID,
		clock:        dep.Clock,
		validator:    dep.Validator,
		ins:          dep.Instrument,
	}
}

func (s *Usecase) startSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	return s.ins.Tracer("audit.usecase").Start(ctx, name)
}
