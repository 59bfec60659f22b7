package usecase

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/goverify/goverify/internal/delivery/entity"
	"github.com/goverify/goverify/internal/pkg/config"
	"github.com/goverify/goverify/internal/pkg/instrument"
	"github.com/goverify/goverify/internal/pkg/mail"
	"github.com/goverify/goverify/internal/pkg/validator"
)

var testNow = time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

type fakeClock struct{ now time.Time }

func (c *fakeClock) Now() time.Time { return c.now }

type seqNumberID struct{ next int64 }

func (s *seqNumberID) Generate() int64 {
	s.next++
	return s.next
}

type fakeRepoDB struct {
	created []entity.DeliveryLog
	updates []struct {
		id     int64
		status entity.DeliveryStatus
		errMsg string
	}
}

func (f *fakeRepoDB) CreateDeliveryLog(_ context.Context, dl entity.DeliveryLog) error {
	f.created = append(f.created, dl)
	return nil
}

func (f *fakeRepoDB) UpdateDeliveryLogStatus(_ context.Context, id int64, status entity.DeliveryStatus, errMsg string) error {
	f.updates = append(f.updates, struct {
		id     int64
		status entity.DeliveryStatus
		errMsg string
	}{id, status, errMsg})
	return nil
}

type fakeRepoMail struct {
	sent    []mail.Message
	sendErr error
}

func (f *fakeRepoMail) Send(_ context.Context, msg mail.Message) error {
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, msg)
	return nil
}

type fakeRepoSMS struct {
	to      []string
	message []string
}

func (f *fakeRepoSMS) Send(_ context.Context, to, message string) error {
	f.to = append(f.to, to)
	f.message = append(f.message, message)
	return nil
}

const testConfigYAML = `
modules:
  delivery:
    email_subject: Your verification code
    email_body_template: "<p>Your code is <b>{{.code}}</b>.</p>"
    sms_template: "Your code is {{.code}}"
`

func newTestUsecase(t *testing.T) (*Usecase, *fakeRepoDB, *fakeRepoMail, *fakeRepoSMS) {
	t.Helper()

	v10, err := validator.NewV10Validator()
	if err != nil {
		t.Fatalf("NewV10Validator() error = %v", err)
	}

	cfg, err := config.NewViperFromBytes("yaml", []byte(testConfigYAML))
	if err != nil {
		t.Fatalf("NewViperFromBytes() error = %v", err)
	}
	t.Cleanup(func() { cfg.Close() })

	db := &fakeRepoDB{}
	ml := &fakeRepoMail{}
	sms := &fakeRepoSMS{}

	uc := New(Dependency{
		RepoDB:     db,
		RepoMail:   ml,
		RepoSMS:    sms,
		Config:     cfg,
		UID:        &seqNumberID{},
		Clock:      &fakeClock{now: testNow},
		Validator:  v10,
		Instrument: instrument.NewNoop(),
	})

	return uc, db, ml, sms
}

func validInput() ConsumeCodeIssuedInput {
	return ConsumeCodeIssuedInput{
		SessionID: 11,
		AccountID: "acc-1",
		Purpose:   "password_reset",
		Channel:   "email",
		Target:    "user@example.com",
		Code:      "482916",
		ExpiresAt: testNow.Add(10 * time.Minute).Unix(),
	}
}

func TestUsecase_ConsumeCodeIssued(t *testing.T) {
	t.Run("delivers over email and marks the log sent", func(t *testing.T) {
		// Arrange
		uc, db, ml, _ := newTestUsecase(t)

		// Act
		err := uc.ConsumeCodeIssued(context.Background(), validInput())

		// Assert
		if err != nil {
			t.Fatalf("ConsumeCodeIssued() error = %v", err)
		}
		if len(ml.sent) != 1 {
			t.Fatalf("emails sent = %d, want 1", len(ml.sent))
		}
		if !strings.Contains(ml.sent[0].HTMLBody, "482916") {
			t.Fatalf("email body = %q, want the code rendered", ml.sent[0].HTMLBody)
		}
		if len(db.created) != 1 || db.created[0].Status != entity.DeliveryStatusQueued {
			t.Fatalf("created logs = %+v, want one queued", db.created)
		}
		if len(db.updates) != 1 || db.updates[0].status != entity.DeliveryStatusSent {
			t.Fatalf("updates = %+v, want one sent", db.updates)
		}
	})

	t.Run("delivers over sms", func(t *testing.T) {
		// Arrange
		uc, _, _, sms := newTestUsecase(t)
		in := validInput()
		in.Channel = "sms"
		in.Target = "+15550100"

		// Act
		err := uc.ConsumeCodeIssued(context.Background(), in)

		// Assert
		if err != nil {
			t.Fatalf("ConsumeCodeIssued() error = %v", err)
		}
		if len(sms.to) != 1 || sms.to[0] != "+15550100" {
			t.Fatalf("sms recipients = %v, want the session target", sms.to)
		}
		if sms.message[0] != "Your code is 482916" {
			t.Fatalf("sms message = %q", sms.message[0])
		}
	})

	t.Run("records the failure and absorbs it", func(t *testing.T) {
		// Arrange
		uc, db, ml, _ := newTestUsecase(t)
		ml.sendErr = errors.New("smtp unavailable")

		// Act
		err := uc.ConsumeCodeIssued(context.Background(), validInput())

		// Assert
		if err != nil {
			t.Fatalf("ConsumeCodeIssued() error = %v, want nil on send failure", err)
		}
		if len(db.updates) != 1 || db.updates[0].status != entity.DeliveryStatusFailed {
			t.Fatalf("updates = %+v, want one failed", db.updates)
		}
		if !strings.Contains(db.updates[0].errMsg, "smtp unavailable") {
			t.Fatalf("error message = %q", db.updates[0].errMsg)
		}
	})

	t.Run("drops malformed events without redelivery", func(t *testing.T) {
		// Arrange
		uc, db, _, _ := newTestUsecase(t)
		in := validInput()
		in.Channel = "carrier-pigeon"

		// Act
		err := uc.ConsumeCodeIssued(context.Background(), in)

		// Assert
		if err != nil {
			t.Fatalf("ConsumeCodeIssued() error = %v, want nil for invalid payload", err)
		}
		if len(db.created) != 0 {
			t.Fatalf("created logs = %d, want none", len(db.created))
		}
	})
}
