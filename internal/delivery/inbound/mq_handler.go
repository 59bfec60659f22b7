package inbound

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/goverify/goverify/internal/delivery/usecase"
	"github.com/goverify/goverify/internal/pkg/instrument"
	"github.com/goverify/goverify/internal/pkg/messaging"
	"github.com/goverify/goverify/internal/pkg/uid"
	"github.com/goverify/goverify/internal/shared/event"
)

const keyOfCorrelationID string = "cID"

type uc interface {
	ConsumeCodeIssued(ctx context.Context, in usecase.ConsumeCodeIssuedInput) error
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

func (h *MQHandler) CodeIssuedDelivery(ctx context.Context, msg messaging.Message) error {
	ctx = h.ensureCorrelationID(ctx, msg.Headers())

	ctx, span := h.ins.Tracer("delivery.inbound.mq").Start(ctx, "CodeIssuedDelivery")
	defer span.End()

	body := msg.Body()
	// The body carries the plaintext code, so only its size is logged.
	slog.InfoContext(ctx, "consume: verification code issued", "msg_size", len(body))

	var payload event.CodeIssuedMessage
	if err := json.Unmarshal(body, &payload); err != nil {
		slog.ErrorContext(ctx, "failed to parse message body of code issued", "error", err)
		return nil
	}

	if err := h.uc.ConsumeCodeIssued(ctx, usecase.ConsumeCodeIssuedInput{
		SessionID: payload.SessionID,
		AccountID: payload.AccountID,
		Purpose:   payload.Purpose,
		Channel:   payload.Channel,
		Target:    payload.Target,
		Code:      payload.Code,
		ExpiresAt: payload.ExpiresAt,
	}); err != nil {
		slog.ErrorContext(ctx, "failed to consume code issued", "session_id", payload.SessionID, "error", err)
		return err
	}

	return nil
}
