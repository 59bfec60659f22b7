package audit

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/goverify/goverify/internal/audit/inbound"
	"github.com/goverify/goverify/internal/audit/outbound/db"
	"github.com/goverify/goverify/internal/audit/outbound/objstore"
	"github.com/goverify/goverify/internal/audit/usecase"
	"github.com/goverify/goverify/internal/pkg/clock"
	"github.com/goverify/goverify/internal/pkg/config"
	"github.com/goverify/goverify/internal/pkg/goroutine"
	"github.com/goverify/goverify/internal/pkg/idempotency"
	"github.com/goverify/goverify/internal/pkg/instrument"
	"github.com/goverify/goverify/internal/pkg/messaging"
	"github.com/goverify/goverify/internal/pkg/storage"
	"github.com/goverify/goverify/internal/pkg/uid"
	"github.com/goverify/goverify/internal/pkg/validator"
)

type Dependency struct {
	Ctx         context.Context
	DBConn      *pgxpool.Pool
	Storage     storage.Storage
	Messaging   messaging.Messaging
	Idempotency idempotency.Idempotency
	Config      config.Config
	Instrument  instrument.Instrumentation
	UID         uid.NumberID
	UUID        uid.StringID
	Clock       clock.Clocker
	Goroutine   *goroutine.Manager
	Validator   validator.Validator
}

func New(dep Dependency) error {
	dbAudit := db.NewDB(dep.DBConn, dep.Instrument)
	repoObjstore := objstore.NewObjstore(
		dep.Storage,
		dep.Config.GetString("modules.audit.archive_bucket"),
		dep.Instrument,
	)

	uc := usecase.New(usecase.Dependency{
		RepoDB:       dbAudit,
		RepoObjstore: repoObjstore,
		Idempotency:  dep.Idempotency,
		Config:       dep.Config,
		UID:          dep.UID,
		Clock:        dep.Clock,
		Validator:    dep.Validator,
		Instrument:   dep.Instrument,
	})

	if dep.Ctx != nil {
		inbound.RegisterMQConsumer(dep.Ctx, dep.Config, dep.Goroutine, dep.Messaging, dep.UUID, uc, dep.Instrument)
		inbound.RegisterArchiveJob(dep.Ctx, dep.Config, dep.Goroutine, uc)
	}

	return nil
}
