package usecase

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/goverify/goverify/internal/audit/entity"
	"github.com/goverify/goverify/internal/pkg/config"
	"github.com/goverify/goverify/internal/pkg/idempotency"
	"github.com/goverify/goverify/internal/pkg/instrument"
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
	created    []entity.AttemptRecord
	listed     []entity.AttemptRecord
	listCutoff time.Time
	deletedIDs []int64
}

func (f *fakeRepoDB) CreateAttempt(_ context.Context, rec entity.AttemptRecord) error {
	f.created = append(f.created, rec)
	return nil
}

func (f *fakeRepoDB) ListAttemptsBefore(_ context.Context, cutoff time.Time, _ int32) ([]entity.AttemptRecord, error) {
	f.listCutoff = cutoff
	out := f.listed
	f.listed = nil
	return out, nil
}

func (f *fakeRepoDB) DeleteAttemptsByIDs(_ context.Context, ids []int64) (int64, error) {
	f.deletedIDs = append(f.deletedIDs, ids...)
	return int64(len(ids)), nil
}

type fakeObjstore struct {
	keys   []string
	bodies [][]byte
}

func (f *fakeObjstore) Put(_ context.Context, key string, data []byte) error {
	f.keys = append(f.keys, key)
	f.bodies = append(f.bodies, data)
	return nil
}

type fakeIdempotency struct {
	err error
}

func (f *fakeIdempotency) Acquire(ctx context.Context, key string, lockDuration time.Duration) (idempotency.State, error) {
	return idempotency.StateNone, nil
}

func (f *fakeIdempotency) MarkCompleted(ctx context.Context, key string, ttl time.Duration) error {
	return nil
}

func (f *fakeIdempotency) MarkFailed(ctx context.Context, key string, ttl time.Duration) error {
	return nil
}

func (f *fakeIdempotency) Exec(ctx context.Context, key string, fn func(context.Context) error, opts ...idempotency.Option) error {
	if f.err != nil {
		return f.err
	}
	return fn(ctx)
}

const testConfigYAML = `
modules:
  audit:
    retention_days: 90
    archive_lock_ttl_seconds: 120
`

func newTestEnv(t *testing.T) (*Usecase, *fakeRepoDB, *fakeObjstore, *fakeIdempotency) {
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
	store := &fakeObjstore{}
	idemp := &fakeIdempotency{}

	uc := New(Dependency{
		RepoDB:       db,
		RepoObjstore: store,
		Idempotency:  idemp,
		Config:       cfg,
		UID:          &seqNumberID{},
		Clock:        &fakeClock{now: testNow},
		Validator:    v10,
		Instrument:   instrument.NewNoop(),
	})

	return uc, db, store, idemp
}

func TestUsecase_ConsumeAttempt(t *testing.T) {
	t.Run("records a valid attempt", func(t *testing.T) {
		// Arrange
		uc, db, _, _ := newTestEnv(t)

		// Act
		err := uc.ConsumeAttempt(context.Background(), ConsumeAttemptInput{
			AccountID:  "acc-1",
			Method:     "totp",
			Accepted:   true,
			OccurredAt: testNow.Unix(),
		})

		// Assert
		if err != nil {
			t.Fatalf("ConsumeAttempt() error = %v", err)
		}
		if len(db.created) != 1 {
			t.Fatalf("created records = %d, want 1", len(db.created))
		}
		rec := db.created[0]
		if rec.AccountID != "acc-1" || rec.Method != "totp" || !rec.Accepted {
			t.Fatalf("record = %+v", rec)
		}
		if !rec.OccurredAt.Equal(testNow) {
			t.Fatalf("occurred at = %v, want %v", rec.OccurredAt, testNow)
		}
	})

	t.Run("drops a malformed event without redelivery", func(t *testing.T) {
		// Arrange
		uc, db, _, _ := newTestEnv(t)

		// Act
		err := uc.ConsumeAttempt(context.Background(), ConsumeAttemptInput{
			AccountID: "acc-1",
			Method:    "carrier-pigeon",
		})

		// Assert
		if err != nil {
			t.Fatalf("ConsumeAttempt() error = %v, want nil for invalid payload", err)
		}
		if len(db.created) != 0 {
			t.Fatalf("created records = %d, want none", len(db.created))
		}
	})
}

func TestUsecase_Archive(t *testing.T) {
	t.Run("moves old records into an ndjson object", func(t *testing.T) {
		// Arrange
		uc, db, store, _ := newTestEnv(t)
		db.listed = []entity.AttemptRecord{
			{ID: 101, AccountID: "acc-1", Method: "totp", Accepted: true, OccurredAt: testNow.AddDate(0, -4, 0)},
			{ID: 102, AccountID: "acc-2", Method: "session", Accepted: false, OccurredAt: testNow.AddDate(0, -4, 0)},
		}

		// Act
		err := uc.Archive(context.Background())

		// Assert
		if err != nil {
			t.Fatalf("Archive() error = %v", err)
		}
		if want := testNow.Add(-90 * 24 * time.Hour); !db.listCutoff.Equal(want) {
			t.Fatalf("cutoff = %v, want %v", db.listCutoff, want)
		}
		if len(store.keys) != 1 || !strings.HasPrefix(store.keys[0], "attempts/") {
			t.Fatalf("object keys = %v, want one under attempts/", store.keys)
		}
		lines := strings.Split(strings.TrimRight(string(store.bodies[0]), "\n"), "\n")
		if len(lines) != 2 {
			t.Fatalf("ndjson lines = %d, want 2", len(lines))
		}
		if !strings.Contains(lines[0], `"account_id":"acc-1"`) {
			t.Fatalf("first line = %q", lines[0])
		}
		if got, want := db.deletedIDs, []int64{101, 102}; len(got) != 2 || got[0] != want[0] || got[1] != want[1] {
			t.Fatalf("deleted ids = %v, want %v", got, want)
		}
	})

	t.Run("does nothing when no records are old enough", func(t *testing.T) {
		// Arrange
		uc, db, store, _ := newTestEnv(t)

		// Act
		err := uc.Archive(context.Background())

		// Assert
		if err != nil {
			t.Fatalf("Archive() error = %v", err)
		}
		if len(store.keys) != 0 || len(db.deletedIDs) != 0 {
			t.Fatal("archive ran on an empty backlog")
		}
	})

	t.Run("skips quietly when another instance holds the lock", func(t *testing.T) {
		// Arrange
		uc, _, _, idemp := newTestEnv(t)
		idemp.err = idempotency.ErrAlreadyInProgress

		// Act
		err := uc.Archive(context.Background())

		// Assert
		if err != nil {
			t.Fatalf("Archive() error = %v, want nil on lock contention", err)
		}
	})
}
