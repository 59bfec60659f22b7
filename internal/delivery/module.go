package delivery

import (
	"context"

	"github.com/goverify/goverify/internal/delivery/inbound"
	"github.com/goverify/goverify/internal/delivery/outbound/db"
	"github.com/goverify/goverify/internal/delivery/outbound/email"
	"github.com/goverify/goverify/internal/delivery/outbound/sms"
	"github.com/goverify/goverify/internal/delivery/usecase"
	"github.com/goverify/goverify/internal/pkg/clock"
	"github.com/goverify/goverify/internal/pkg/config"
	"github.com/goverify/goverify/internal/pkg/goroutine"
	"github.com/goverify/goverify/internal/pkg/instrument"
	"github.com/goverify/goverify/internal/pkg/mail"
	"github.com/goverify/goverify/internal/pkg/messaging"
	"github.com/goverify/goverify/internal/pkg/uid"
	"github.com/goverify/goverify/internal/pkg/validator"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Dependency struct {
	Ctx        context.Context
	DBConn     *pgxpool.Pool
	Messaging  messaging.Messaging
	Config     config.Config
	Instrument instrument.Instrumentation
	UID        uid.NumberID
	UUID       uid.StringID
	Clock      clock.Clocker
	Goroutine  *goroutine.Manager
	Validator  validator.Validator
	Mail       mail.Mail
}

func New(dep Dependency) error {
	dbDelivery := db.NewDB(dep.DBConn, dep.Instrument)
	repoMail := email.New(dep.Mail, dep.Instrument)
	repoSMS := sms.New(
		dep.Config.GetString("modules.delivery.sms_base_url"),
		dep.Config.GetString("modules.delivery.sms_api_key"),
		dep.Instrument,
	)

	uc := usecase.New(usecase.Dependency{
		RepoDB:     dbDelivery,
		RepoMail:   repoMail,
		RepoSMS:    repoSMS,
		Config:     dep.Config,
		UID:        dep.UID,
		Clock:      dep.Clock,
		Validator:  dep.Validator,
		Instrument: dep.Instrument,
	})

	if dep.Ctx != nil {
		inbound.RegisterMQConsumer(dep.Ctx, dep.Config, dep.Goroutine, dep.Messaging, dep.UUID, uc, dep.Instrument)
	}

	return nil
}
