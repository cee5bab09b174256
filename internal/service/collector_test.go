package service

import (
	"context"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/textmend/textmend/internal/models"
)

type fakeLegacyRepo struct {
	pages map[string][]models.SuspectRow // keyed by watermark argument
}

func (f *fakeLegacyRepo) FetchSuspectRows(ctx context.Context, query string, args ...any) ([]models.SuspectRow, error) {
	after := args[1].(string)
	return f.pages[after], nil
}

type fakeRequestBroker struct {
	requests []models.RepairRequest
}

func (f *fakeRequestBroker) Publish(ctx context.Context, routingKey, correlationID string, payload any) error {
	f.requests = append(f.requests, payload.(models.RepairRequest))
	return nil
}

func (f *fakeRequestBroker) IsHealthy() bool { return true }

func TestCollectorPublishesOnlyMisencodedRows(t *testing.T) {
	t.Parallel()

	repo := &fakeLegacyRepo{pages: map[string][]models.SuspectRow{
		"": {
			{PKValue: "1", RawText: []byte("clean ascii")},
			{PKValue: "2", RawText: []byte("Cliente: Jo\xE3o")},
			{PKValue: "3", RawText: []byte("ok too")},
			{PKValue: "4", RawText: []byte("Obs: \x93urgente\x94")},
		},
	}}
	broker := &fakeRequestBroker{}

	svc := NewCollectorService(repo, broker, 3, "OBSERVACAO", "TEXTO", "ID_OBS", "SELECT ...", false, discard())

	if err := svc.processPage(context.Background()); err != nil {
		t.Fatalf("processPage error: %v", err)
	}

	var pks []string
	for _, r := range broker.requests {
		pks = append(pks, r.PKValue)
		if r.UnitID != 3 || r.TableName != "OBSERVACAO" || r.ColumnName != "TEXTO" {
			t.Errorf("bad request metadata: %+v", r)
		}
		if r.EventID == "" {
			t.Error("request missing event id")
		}
	}
	if diff := cmp.Diff([]string{"2", "4"}, pks); diff != "" {
		t.Errorf("published pks mismatch (-want +got):\n%s", diff)
	}

	if svc.lastPK != "4" {
		t.Errorf("watermark = %q, want %q", svc.lastPK, "4")
	}
}

func TestCollectorDryRunPublishesNothing(t *testing.T) {
	t.Parallel()

	repo := &fakeLegacyRepo{pages: map[string][]models.SuspectRow{
		"": {
			{PKValue: "1", RawText: []byte("Cliente: Jo\xE3o")},
			{PKValue: "2", RawText: []byte("Obs: \x93urgente\x94")},
		},
	}}
	broker := &fakeRequestBroker{}

	svc := NewCollectorService(repo, broker, 3, "OBSERVACAO", "TEXTO", "ID_OBS", "SELECT ...", true, discard())

	if err := svc.processPage(context.Background()); err != nil {
		t.Fatalf("processPage error: %v", err)
	}
	if len(broker.requests) != 0 {
		t.Errorf("dry run published %d requests, want 0", len(broker.requests))
	}
	if svc.lastPK != "2" {
		t.Errorf("watermark = %q, want %q", svc.lastPK, "2")
	}
}

func TestCollectorResetsWatermarkAtEndOfTable(t *testing.T) {
	t.Parallel()

	repo := &fakeLegacyRepo{pages: map[string][]models.SuspectRow{}}
	broker := &fakeRequestBroker{}

	svc := NewCollectorService(repo, broker, 1, "CLIENTES", "OBS", "ID_CLIENTE", "SELECT ...", false, discard())
	svc.lastPK = "999"

	if err := svc.processPage(context.Background()); err != nil {
		t.Fatalf("processPage error: %v", err)
	}
	if svc.lastPK != "" {
		t.Errorf("watermark = %q, want reset to empty", svc.lastPK)
	}
	if len(broker.requests) != 0 {
		t.Errorf("published %d requests from empty page, want 0", len(broker.requests))
	}
}
