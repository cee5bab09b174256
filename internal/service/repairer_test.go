package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/textmend/textmend/internal/models"
	"github.com/textmend/textmend/pkg/encoding"
)

type fakeRepo struct {
	entries  []models.RepairEntry
	repaired map[int64]string
	encoding map[int64]string
	errored  map[int64]string
	reverted []int64
}

func newFakeRepo(entries ...models.RepairEntry) *fakeRepo {
	return &fakeRepo{
		entries:  entries,
		repaired: map[int64]string{},
		encoding: map[int64]string{},
		errored:  map[int64]string{},
	}
}

func (f *fakeRepo) FetchAndClaim(ctx context.Context, batchSize int) ([]models.RepairEntry, error) {
	if len(f.entries) > batchSize {
		return f.entries[:batchSize], nil
	}
	return f.entries, nil
}

func (f *fakeRepo) MarkRepaired(ctx context.Context, id int64, fixed string, encoding string, replaced int) error {
	f.repaired[id] = fixed
	f.encoding[id] = encoding
	return nil
}

func (f *fakeRepo) MarkAsError(ctx context.Context, id int64, errLog string) error {
	f.errored[id] = errLog
	return nil
}

func (f *fakeRepo) MarkManyAsPending(ctx context.Context, ids []int64, note string, strategy models.RevertStrategy) error {
	f.reverted = append(f.reverted, ids...)
	return nil
}

type fakeBroker struct {
	published []models.RepairEvent
	failAfter int // publish calls to accept before failing; -1 never fails
}

func (f *fakeBroker) Publish(ctx context.Context, routingKey, correlationID string, payload any) error {
	if f.failAfter >= 0 && len(f.published) >= f.failAfter {
		return errors.New("broker gone")
	}
	f.published = append(f.published, payload.(models.RepairEvent))
	return nil
}

func (f *fakeBroker) IsHealthy() bool { return true }

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestProcessNextBatchRepairsEntries(t *testing.T) {
	t.Parallel()

	repo := newFakeRepo(
		models.RepairEntry{ID: 1, CorrelationID: "c1", RawText: []byte("Se\xF1or")},
		models.RepairEntry{ID: 2, CorrelationID: "c2", RawText: []byte("Smart \x93quotes\x94")},
		models.RepairEntry{ID: 3, CorrelationID: "c3", RawText: []byte("already fine")},
	)
	broker := &fakeBroker{failAfter: -1}
	svc := NewRepairService(repo, broker, nil, 7, discard())

	if err := svc.ProcessNextBatch(context.Background(), 10); err != nil {
		t.Fatalf("ProcessNextBatch error: %v", err)
	}

	wantFixed := map[int64]string{
		1: "Señor",
		2: "Smart “quotes”",
		3: "already fine",
	}
	if diff := cmp.Diff(wantFixed, repo.repaired); diff != "" {
		t.Errorf("repaired texts mismatch (-want +got):\n%s", diff)
	}

	wantEnc := map[int64]string{
		1: "ISO-8859-1",
		2: "Windows-1252",
		3: "UTF-8",
	}
	if diff := cmp.Diff(wantEnc, repo.encoding); diff != "" {
		t.Errorf("detected encodings mismatch (-want +got):\n%s", diff)
	}

	if len(broker.published) != 3 {
		t.Fatalf("published %d events, want 3", len(broker.published))
	}
	if got := broker.published[0]; got.FixedText != "Señor" || got.CorrelationID != "c1" || got.UnitID != 7 {
		t.Errorf("unexpected first event: %+v", got)
	}
}

func TestProcessNextBatchBrokerFailureRevertsRemainder(t *testing.T) {
	t.Parallel()

	repo := newFakeRepo(
		models.RepairEntry{ID: 1, CorrelationID: "c1", RawText: []byte("Se\xF1or")},
		models.RepairEntry{ID: 2, CorrelationID: "c2", RawText: []byte("na\xEFve")},
		models.RepairEntry{ID: 3, CorrelationID: "c3", RawText: []byte("\xE9t\xE9")},
	)
	broker := &fakeBroker{failAfter: 1}
	svc := NewRepairService(repo, broker, nil, 1, discard())

	err := svc.ProcessNextBatch(context.Background(), 10)
	if err == nil {
		t.Fatal("ProcessNextBatch returned nil, want broker failure")
	}

	// First entry went through fully; the failing entry keeps its repaired
	// row, and only the untouched tail goes back to pending.
	if diff := cmp.Diff([]int64{3}, repo.reverted); diff != "" {
		t.Errorf("reverted ids mismatch (-want +got):\n%s", diff)
	}
}

func TestProcessNextBatchHonorsShutdown(t *testing.T) {
	t.Parallel()

	repo := newFakeRepo(
		models.RepairEntry{ID: 1, CorrelationID: "c1", RawText: []byte("Se\xF1or")},
		models.RepairEntry{ID: 2, CorrelationID: "c2", RawText: []byte("na\xEFve")},
	)
	broker := &fakeBroker{failAfter: -1}
	svc := NewRepairService(repo, broker, nil, 1, discard())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := svc.ProcessNextBatch(ctx, 10)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("ProcessNextBatch error = %v, want context.Canceled", err)
	}
	if diff := cmp.Diff([]int64{1, 2}, repo.reverted); diff != "" {
		t.Errorf("reverted ids mismatch (-want +got):\n%s", diff)
	}
	if len(broker.published) != 0 {
		t.Errorf("published %d events after shutdown, want 0", len(broker.published))
	}
}

func TestCountReplaced(t *testing.T) {
	t.Parallel()

	// High bytes count only for the single-byte encodings.
	if got := countReplaced([]byte("Se\xF1or"), encoding.Latin1); got != 1 {
		t.Errorf("countReplaced = %d, want 1", got)
	}
	if got := countReplaced([]byte("café"), encoding.UTF8); got != 0 {
		t.Errorf("countReplaced for UTF-8 = %d, want 0", got)
	}
	if got := countReplaced([]byte{0x81}, encoding.Unknown); got != 0 {
		t.Errorf("countReplaced for Unknown = %d, want 0", got)
	}
}
