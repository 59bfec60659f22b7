package app

import (
	"log/slog"
	"os"

	"github.com/goverify/goverify/internal/audit"
	"github.com/goverify/goverify/internal/delivery"
	"github.com/goverify/goverify/internal/verification"
)

func (a *App) initModules() {
	if a.config.GetBool("modules.verification.enabled") {
		uc, err := verification.New(verification.Dependency{
			Ctx:             a.ctx,
			DBConn:          a.dbConn,
			CacheConn:       a.cacheConn,
			Goroutine:       a.goroutine,
			Idempotency:     a.idemp,
			Messaging:       a.messaging,
			Config:          a.config,
			Instrument:      a.ins,
			UID:             a.uid,
			OID:             a.oid,
			HMAC:            a.hmac,
			Argon2ID:        a.argon2id,
			MFAEncryptor:    a.mfaEncryptor,
			MFARecoveryCode: a.mfaRecoveryCode,
			MFACode:         a.mfaCode,
			Clock:           a.clock,
			Totp:            a.totp,
			Validator:       a.validator,
		})
		if err != nil {
			slog.Error("failed to init module verification", "error", err)
			os.Exit(1)
		}
		a.verification = uc
	}

	if a.config.GetBool("modules.delivery.enabled") {
		if err := delivery.New(delivery.Dependency{
			Ctx:        a.ctx,
			DBConn:     a.dbConn,
			Messaging:  a.messaging,
			Config:     a.config,
			Instrument: a.ins,
			UID:        a.uid,
			UUID:       a.uuid,
			Clock:      a.clock,
			Goroutine:  a.goroutine,
			Validator:  a.validator,
			Mail:       a.mail,
		}); err != nil {
			slog.Error("failed to init module delivery", "error", err)
			os.Exit(1)
		}
	}

	if a.config.GetBool("modules.audit.enabled") {
		if err := audit.New(audit.Dependency{
			Ctx:         a.ctx,
			DBConn:      a.dbConn,
			Storage:     a.storage,
			Messaging:   a.messaging,
			Idempotency: a.idemp,
			Config:      a.config,
			Instrument:  a.ins,
			UID:         a.uid,
			UUID:        a.uuid,
			Clock:       a.clock,
			Goroutine:   a.goroutine,
			Validator:   a.validator,
		}); err != nil {
			slog.Error("failed to init module audit", "error", err)
			os.Exit(1)
		}
	}
}
