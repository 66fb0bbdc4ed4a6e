package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/savergiggio/Telgram-Server-Monitoring/internal/alerts"
)

func openTestStore(t *testing.T) (*Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "alerts.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s, path
}

func TestLoadAbsent(t *testing.T) {
	s, _ := openTestStore(t)
	rec, err := s.Load(context.Background(), alerts.KeyCPU)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if rec != nil {
		t.Fatalf("got %+v, want nil for an absent key", rec)
	}
}

func TestSaveLoadRoundtrip(t *testing.T) {
	s, _ := openTestStore(t)
	ctx := context.Background()

	first := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	want := alerts.Record{
		Active:           true,
		FirstTriggeredAt: first,
		LastNotifiedAt:   first.Add(2 * time.Hour),
		LastValue:        93.5,
		ReminderCount:    2,
	}
	if err := s.Save(ctx, alerts.DiskKey("/data"), want); err != nil {
		t.Fatalf("save: %v", err)
	}

	got, err := s.Load(ctx, alerts.DiskKey("/data"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got == nil {
		t.Fatal("record missing after save")
	}
	if !got.FirstTriggeredAt.Equal(want.FirstTriggeredAt) || !got.LastNotifiedAt.Equal(want.LastNotifiedAt) {
		t.Fatalf("timestamps: got %+v, want %+v", got, want)
	}
	if got.Active != want.Active || got.LastValue != want.LastValue || got.ReminderCount != want.ReminderCount {
		t.Fatalf("got %+v, want %+v", got, want)
	}
}

func TestSaveIsUpsert(t *testing.T) {
	s, _ := openTestStore(t)
	ctx := context.Background()
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	rec := alerts.Record{Active: true, FirstTriggeredAt: now, LastNotifiedAt: now, LastValue: 91}
	if err := s.Save(ctx, alerts.KeyCPU, rec); err != nil {
		t.Fatalf("save: %v", err)
	}

	rec.LastNotifiedAt = now.Add(time.Hour)
	rec.ReminderCount = 1
	if err := s.Save(ctx, alerts.KeyCPU, rec); err != nil {
		t.Fatalf("second save: %v", err)
	}

	got, _ := s.Load(ctx, alerts.KeyCPU)
	if got.ReminderCount != 1 || !got.LastNotifiedAt.Equal(now.Add(time.Hour)) {
		t.Fatalf("after upsert: %+v", got)
	}

	all, err := s.LoadAll(ctx)
	if err != nil {
		t.Fatalf("loadall: %v", err)
	}
	if len(all) != 1 {
		t.Fatalf("got %d rows after upserting one key, want 1", len(all))
	}
}

func TestSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "alerts.db")
	ctx := context.Background()
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	s, err := Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	rec := alerts.Record{Active: true, FirstTriggeredAt: now, LastNotifiedAt: now, LastValue: 95}
	if err := s.Save(ctx, alerts.SSHKey("10.0.0.9", "deploy"), rec); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	s, err = Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s.Close()

	got, err := s.Load(ctx, alerts.SSHKey("10.0.0.9", "deploy"))
	if err != nil {
		t.Fatalf("load after reopen: %v", err)
	}
	if got == nil || !got.Active || !got.FirstTriggeredAt.Equal(now) {
		t.Fatalf("after reopen: %+v", got)
	}
}

func TestZeroTimesRoundtripAsZero(t *testing.T) {
	s, _ := openTestStore(t)
	ctx := context.Background()

	if err := s.Save(ctx, alerts.KeyInternet, alerts.Record{}); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, err := s.Load(ctx, alerts.KeyInternet)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !got.FirstTriggeredAt.IsZero() || !got.LastNotifiedAt.IsZero() {
		t.Fatalf("zero timestamps came back as %+v", got)
	}
}

func TestDelete(t *testing.T) {
	s, _ := openTestStore(t)
	ctx := context.Background()

	if err := s.Save(ctx, alerts.KeyRAM, alerts.Record{Active: true}); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := s.Delete(ctx, alerts.KeyRAM); err != nil {
		t.Fatalf("delete: %v", err)
	}
	rec, err := s.Load(ctx, alerts.KeyRAM)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if rec != nil {
		t.Fatalf("record survived delete: %+v", rec)
	}

	// Deleting an absent key is fine.
	if err := s.Delete(ctx, alerts.KeyRAM); err != nil {
		t.Fatalf("delete absent: %v", err)
	}
}
