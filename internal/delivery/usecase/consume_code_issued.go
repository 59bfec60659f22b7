package usecase

import (
	"context"
	"log/slog"
	"time"

	"github.com/goverify/goverify/internal/delivery/entity"
	"github.com/goverify/goverify/internal/pkg/mail"
	"github.com/sethvargo/go-retry"
)

type ConsumeCodeIssuedInput struct {
	SessionID int64  `validate:"required,gt=0"`
	AccountID string `validate:"required,max=100"`
	Purpose   string `validate:"required,max=50"`
	Channel   string `validate:"required,oneof=email sms"`
	Target    string `validate:"required,max=255"`
	Code      string `validate:"required,min=4,max=10"`
	ExpiresAt int64  `validate:"required,gt=0"`
}

// ConsumeCodeIssued pushes a freshly issued verification code out over the
// session's channel. Delivery failures are recorded on the log row and
// absorbed; the account can always ask for a resend.
func (s *Usecase) ConsumeCodeIssued(ctx context.Context, in ConsumeCodeIssuedInput) error {
	ctx, span := s.startSpan(ctx, "ConsumeCodeIssued")
	defer span.End()

	if err := s.validator.Validate(in); err != nil {
		slog.ErrorContext(ctx, "Validation failed", "error", err)
		return nil
	}

	dl := entity.DeliveryLog{
		ID:        s.uid.Generate(),
		SessionID: in.SessionID,
		AccountID: in.AccountID,
		Channel:   in.Channel,
		Target:    in.Target,
		Status:    entity.DeliveryStatusQueued,
		CreatedAt: s.clock.Now(),
	}
	if err := s.repoDB.CreateDeliveryLog(ctx, dl); err != nil {
		slog.ErrorContext(ctx, "failed to repo create delivery log", "session_id", in.SessionID, "error", err)
		return err
	}

	var sendErr error
	switch in.Channel {
	case "email":
		sendErr = s.sendEmail(ctx, in)
	case "sms":
		sendErr = s.sendSMS(ctx, in)
	}

	status, errMsg := entity.DeliveryStatusSent, ""
	if sendErr != nil {
		status, errMsg = entity.DeliveryStatusFailed, sendErr.Error()
		slog.ErrorContext(ctx, "failed to deliver verification code", "session_id", in.SessionID, "channel", in.Channel, "error", sendErr)
	}

	if err := s.repoDB.UpdateDeliveryLogStatus(ctx, dl.ID, status, errMsg); err != nil {
		slog.ErrorContext(ctx, "failed to repo update delivery log", "delivery_log_id", dl.ID, "error", err)
	}

	return nil
}

func (s *Usecase) sendEmail(ctx context.Context, in ConsumeCodeIssuedInput) error {
	body, err := s.renderTemplate("email_body", s.cfg.GetString("modules.delivery.email_body_template"), s.templateData(in))
	if err != nil {
		return err
	}

	return s.withRetry(ctx, func(ctx context.Context) error {
		return retry.RetryableError(s.repoMail.Send(ctx, mail.Message{
			To:       []string{in.Target},
			Subject:  s.cfg.GetString("modules.delivery.email_subject"),
			HTMLBody: body,
		}))
	})
}

func (s *Usecase) sendSMS(ctx context.Context, in ConsumeCodeIssuedInput) error {
	message, err := s.renderTemplate("sms_body", s.cfg.GetString("modules.delivery.sms_template"), s.templateData(in))
	if err != nil {
		return err
	}

	return s.withRetry(ctx, func(ctx context.Context) error {
		return retry.RetryableError(s.repoSMS.Send(ctx, in.Target, message))
	})
}

// withRetry runs fn under capped exponential backoff. Every provider error
// is treated as transient; the cap keeps the consumer from stalling.
func (s *Usecase) withRetry(ctx context.Context, fn func(context.Context) error) error {
	backoff := retry.NewExponential(500 * time.Millisecond)
	backoff = retry.WithMaxRetries(3, backoff)

	return retry.Do(ctx, backoff, fn)
}

func (s *Usecase) templateData(in ConsumeCodeIssuedInput) map[string]any {
	return map[string]any{
		"code":       in.Code,
		"purpose":    in.Purpose,
		"expires_at": time.Unix(in.ExpiresAt, 0).UTC().Format(time.RFC1123),
	}
}
