package app

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/goverify/goverify/internal/pkg/clock"
	"github.com/goverify/goverify/internal/pkg/config"
	"github.com/goverify/goverify/internal/pkg/goroutine"
	"github.com/goverify/goverify/internal/pkg/hash"
	"github.com/goverify/goverify/internal/pkg/idempotency"
	"github.com/goverify/goverify/internal/pkg/instrument"
	"github.com/goverify/goverify/internal/pkg/mail"
	"github.com/goverify/goverify/internal/pkg/messaging"
	"github.com/goverify/goverify/internal/pkg/mfa"
	"github.com/goverify/goverify/internal/pkg/storage"
	"github.com/goverify/goverify/internal/pkg/totp"
	"github.com/goverify/goverify/internal/pkg/uid"
	"github.com/goverify/goverify/internal/pkg/validator"
	"github.com/goverify/goverify/internal/verification"
)

// App wires dependencies and manages service lifecycle.
type App struct {
	ctx    context.Context
	cancel context.CancelFunc

	// configuration
	config config.Config
	ins    instrument.Instrumentation

	// libraries
	goroutine       *goroutine.Manager
	validator       validator.Validator
	clock           clock.Clocker
	hmac            hash.Hash
	argon2id        hash.Hash
	uid             uid.NumberID
	oid             uid.StringID
	uuid            uid.StringID
	totp            totp.OTP
	mfaEncryptor    mfa.Encryptor
	mfaRecoveryCode mfa.RecoveryCodeGenerator
	mfaCode         mfa.CodeGenerator

	// resources
	dbConn    *pgxpool.Pool
	cacheConn *redis.Client
	idemp     idempotency.Idempotency
	mail      mail.Mail
	messaging messaging.Messaging
	storage   storage.Storage

	// modules
	verification *verification.Usecase

	//
	closers []struct {
		name string
		fn   func(context.Context) error
	}
}

// New initializes the application with default wiring and returns an App instance.
func New() *App {
	ctx, cancel := context.WithCancel(context.Background())
	app := &App{
		ctx:    ctx,
		cancel: cancel,
	}

	app.initConfig()
	app.initInstrument()
	app.initLibraries()
	app.initDatabase()
	app.initCache()
	app.initMail()
	app.initStorage()
	app.initMessaging()
	app.initModules()
	app.initClosers()

	return app
}

// Verification exposes the verification engine for embedders driving the
// operations directly instead of going through messaging.
func (a *App) Verification() *verification.Usecase {
	return a.verification
}
