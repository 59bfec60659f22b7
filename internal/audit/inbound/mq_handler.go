package inbound

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/goverify/goverify/internal/audit/usecase"
	"github.com/goverify/goverify/internal/pkg/instrument"
	"github.com/goverify/goverify/internal/pkg/messaging"
	"github.com/goverify/goverify/internal/pkg/uid"
	"github.com/goverify/goverify/internal/shared/event"
)

const keyOfCorrelationID string = "cID"

type uc interface {
	ConsumeAttempt(ctx context.Context, in usecase.ConsumeAttemptInput) error
	Archive(ctx context.Context) error
}

type MQHandler struct {
	uc   uc
	uuid uid.StringID
	ins  instrument.Instrumentation
}

func (h *MQHandler) ensureCorrelationID(ctx context.Context, headers []messaging.Header) context.Context {
	for i := range headers {
		if headers[i].Key == keyOfCorrelationID {
			return instrument.SetCorrelationID(ctx, string(headers[i].Value))
		}
	}
	return instrument.SetCorrelationID(ctx, h.uuid.Generate())
}

func (h *MQHandler) VerificationAttemptAudit(ctx context.Context, msg messaging.Message) error {
	ctx = h.ensureCorrelationID(ctx, msg.Headers())

	ctx, span := h.ins.Tracer("audit.inbound.mq").Start(ctx, "VerificationAttemptAudit")
	defer span.End()

	body := msg.Body()
	slog.InfoContext(ctx, "consume: verification attempt", "msg", string(body))

	var payload event.VerificationAttemptMessage
	if err := json.Unmarshal(body, &payload); err != nil {
		slog.ErrorContext(ctx, "failed to parse message body of verification attempt", "error", err)
		return nil
	}

	if err := h.uc.ConsumeAttempt(ctx, usecase.ConsumeAttemptInput{
		AccountID:  payload.AccountID,
		Method:     payload.Method,
		Accepted:   payload.Accepted,
		OccurredAt: payload.OccurredAt,
	}); err != nil {
		slog.ErrorContext(ctx, "failed to consume verification attempt", "account_id", payload.AccountID, "error", err)
		return err
	}

	return nil
}
