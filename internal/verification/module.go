package verification

import (
	"context"

	"github.com/goverify/goverify/internal/pkg/clock"
	"github.com/goverify/goverify/internal/pkg/config"
	"github.com/goverify/goverify/internal/pkg/goroutine"
	"github.com/goverify/goverify/internal/pkg/hash"
	"github.com/goverify/goverify/internal/pkg/idempotency"
	"github.com/goverify/goverify/internal/pkg/instrument"
	"github.com/goverify/goverify/internal/pkg/messaging"
	"github.com/goverify/goverify/internal/pkg/mfa"
	"github.com/goverify/goverify/internal/pkg/totp"
	"github.com/goverify/goverify/internal/pkg/uid"
	"github.com/goverify/goverify/internal/pkg/validator"
	"github.com/goverify/goverify/internal/verification/inbound"
	"github.com/goverify/goverify/internal/verification/outbound/db"
	"github.com/goverify/goverify/internal/verification/outbound/mq"
	"github.com/goverify/goverify/internal/verification/usecase"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

type Dependency struct {
	Ctx             context.Context
	DBConn          *pgxpool.Pool              `validate:"required"`
	CacheConn       *redis.Client              `validate:"required"`
	Goroutine       *goroutine.Manager         `validate:"required"`
	Idempotency     idempotency.Idempotency    `validate:"required"`
	Messaging       messaging.Messaging        `validate:"required"`
	Config          config.Config              `validate:"required"`
	Instrument      instrument.Instrumentation `validate:"required"`
	UID             uid.NumberID               `validate:"required"`
	OID             uid.StringID               `validate:"required"`
	HMAC            hash.Hash                  `validate:"required"`
	Argon2ID        hash.Hash                  `validate:"required"`
	MFAEncryptor    mfa.Encryptor              `validate:"required"`
	MFARecoveryCode mfa.RecoveryCodeGenerator  `validate:"required"`
	MFACode         mfa.CodeGenerator          `validate:"required"`
	Clock           clock.Clocker              `validate:"required"`
	Totp            totp.OTP                   `validate:"required"`
	Validator       validator.Validator        `validate:"required"`
}

// Usecase is the module's operation surface, exposed so callers embedding
// the engine can drive it directly.
type Usecase = usecase.Usecase

func New(dep Dependency) (*Usecase, error) {
	if err := dep.Validator.Validate(dep); err != nil {
		return nil, err
	}

	dbVerif := db.NewDB(dep.DBConn, dep.Instrument)
	repoMsg := mq.NewMessaging(dep.Messaging, dep.Instrument)

	uc := usecase.New(usecase.Dependency{
		RepoDB:          dbVerif,
		RepoMessaging:   repoMsg,
		Idempotency:     dep.Idempotency,
		Validator:       dep.Validator,
		Config:          dep.Config,
		HMAC:            dep.HMAC,
		Argon2ID:        dep.Argon2ID,
		MFAEncryptor:    dep.MFAEncryptor,
		MFARecoveryCode: dep.MFARecoveryCode,
		MFACode:         dep.MFACode,
		UID:             dep.UID,
		OID:             dep.OID,
		Totp:            dep.Totp,
		Clock:           dep.Clock,
		Instrument:      dep.Instrument,
		Goroutine:       dep.Goroutine,
	})

	if dep.Ctx != nil {
		inbound.RegisterCleanupJob(dep.Ctx, dep.Config, dep.Goroutine, uc)
	}

	return uc, nil
}
