package storage

import (
	"errors"
	"path/filepath"
	"testing"

	"dataclean/internal"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func mustAddFile(t *testing.T, db *DB, name string) internal.File {
	t.Helper()
	f, err := db.AddFile(internal.File{
		Name:     name,
		Type:     internal.FileExcel,
		Sheets:   []internal.Sheet{{Name: "Sheet1", Headers: []string{"a", "b"}, RowCount: 3}},
		Position: internal.Position{X: 10, Y: 20},
		Size:     internal.Size{Width: 500, Height: 350},
	})
	if err != nil {
		t.Fatalf("add file: %v", err)
	}
	return f
}

func TestAddAndListFiles(t *testing.T) {
	db := openTestDB(t)
	a := mustAddFile(t, db, "a.xlsx")
	b := mustAddFile(t, db, "b.xlsx")
	if a.ID == "" || a.ID == b.ID {
		t.Fatalf("ids must be unique and non-empty: %q %q", a.ID, b.ID)
	}
	if a.ActiveSheet != "Sheet1" {
		t.Fatalf("active sheet defaults to the first sheet, got %q", a.ActiveSheet)
	}

	files, err := db.ListFiles()
	if err != nil {
		t.Fatal(err)
	}
	if len(files) != 2 || files[0].ID != a.ID || files[1].ID != b.ID {
		t.Fatalf("files not in insertion order: %+v", files)
	}
	if files[0].Sheets[0].RowCount != 3 || files[0].Position.X != 10 {
		t.Fatalf("file fields not round-tripped: %+v", files[0])
	}

	got, err := db.GetFile("missing")
	if err != nil || got != nil {
		t.Fatalf("missing file should be nil, nil; got %v %v", got, err)
	}
}

func TestRemoveFileCascadesFlows(t *testing.T) {
	db := openTestDB(t)
	src := mustAddFile(t, db, "src.xlsx")
	mid := mustAddFile(t, db, "mid.json")
	other := mustAddFile(t, db, "other.json")

	if _, err := db.AddFlow(src.ID, mid.ID, "提取", internal.FlowTransform); err != nil {
		t.Fatal(err)
	}
	if _, err := db.AddFlow(mid.ID, other.ID, "转换", internal.FlowTransform); err != nil {
		t.Fatal(err)
	}
	if _, err := db.AddFlow(src.ID, other.ID, "提取", internal.FlowTransform); err != nil {
		t.Fatal(err)
	}

	removed, err := db.RemoveFile(mid.ID)
	if err != nil {
		t.Fatal(err)
	}
	if removed != 2 {
		t.Fatalf("removed=%d want 2", removed)
	}

	flows, err := db.ListFlows()
	if err != nil {
		t.Fatal(err)
	}
	if len(flows) != 1 || flows[0].From != src.ID || flows[0].To != other.ID {
		t.Fatalf("unexpected remaining flows: %+v", flows)
	}
	for _, f := range flows {
		if f.From == mid.ID || f.To == mid.ID {
			t.Fatalf("orphan flow left behind: %+v", f)
		}
	}

	if _, err := db.RemoveFile(mid.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("second remove should be ErrNotFound, got %v", err)
	}
}

func TestRemoveFlow(t *testing.T) {
	db := openTestDB(t)
	src := mustAddFile(t, db, "src.xlsx")
	dst := mustAddFile(t, db, "dst.json")
	fl, err := db.AddFlow(src.ID, dst.ID, "提取", internal.FlowTransform)
	if err != nil {
		t.Fatal(err)
	}
	if err := db.RemoveFlow(fl.ID); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if err := db.RemoveFlow(fl.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("second remove err=%v", err)
	}
	flows, _ := db.ListFlows()
	files, _ := db.ListFiles()
	if len(flows) != 0 || len(files) != 2 {
		t.Fatalf("flows=%d files=%d", len(flows), len(files))
	}
}

func TestAddFlowRequiresEndpoints(t *testing.T) {
	db := openTestDB(t)
	src := mustAddFile(t, db, "src.xlsx")
	if _, err := db.AddFlow(src.ID, "nope", "提取", internal.FlowTransform); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestUpdateFile(t *testing.T) {
	db := openTestDB(t)
	f := mustAddFile(t, db, "a.xlsx")
	f.Sheets[0].StructureAnalysis = &internal.StructureAnalysis{
		SheetType:  internal.SheetStandard,
		Fields:     []string{"a", "b"},
		Confidence: 0.8,
		Status:     internal.StatusCompleted,
	}
	if err := db.UpdateFile(f); err != nil {
		t.Fatal(err)
	}
	got, err := db.GetFile(f.ID)
	if err != nil || got == nil {
		t.Fatalf("get: %v", err)
	}
	if got.Sheets[0].StructureAnalysis == nil || got.Sheets[0].StructureAnalysis.Status != internal.StatusCompleted {
		t.Fatalf("analysis not persisted: %+v", got.Sheets[0])
	}

	if err := db.UpdateFile(internal.File{ID: "missing"}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestRunsAndMetadata(t *testing.T) {
	db := openTestDB(t)
	err := db.InsertRun(RunRecord{
		TraceID: "abc",
		Command: "提取机票数据",
		Intent:  internal.Intent{Type: internal.IntentExtract, Confidence: 0.95},
		Success: true,
		Timings: map[string]float64{"totalMs": 12},
		Counts:  map[string]int{"extracted": 2},
	})
	if err != nil {
		t.Fatal(err)
	}
	runs, err := db.ListRuns(10)
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 1 || !runs[0].Success || runs[0].Counts["extracted"] != 2 || runs[0].Intent.Type != internal.IntentExtract {
		t.Fatalf("unexpected runs: %+v", runs)
	}

	if err := db.SetMetadata("k", "v1"); err != nil {
		t.Fatal(err)
	}
	if err := db.SetMetadata("k", "v2"); err != nil {
		t.Fatal(err)
	}
	v, err := db.GetMetadata("k")
	if err != nil || v == nil || *v != "v2" {
		t.Fatalf("metadata=%v err=%v", v, err)
	}
}

func TestAttachments(t *testing.T) {
	db := openTestDB(t)
	email, err := db.UpsertEmail("imap", "<m1@x>", "对账单", "a@b", "2024-01-01T00:00:00Z", "h", "/raw/h.eml", "fetched")
	if err != nil {
		t.Fatal(err)
	}
	inserted, err := db.RecordAttachment(email.ID, "bill.xlsx", "/inbox/bill.xlsx", "f1")
	if err != nil || !inserted {
		t.Fatalf("first record: %v %v", inserted, err)
	}
	inserted, err = db.RecordAttachment(email.ID, "bill.xlsx", "/inbox/bill.xlsx", "f1")
	if err != nil || inserted {
		t.Fatalf("duplicate record should be ignored: %v %v", inserted, err)
	}
	has, err := db.HasAttachment(email.ID, "bill.xlsx")
	if err != nil || !has {
		t.Fatalf("HasAttachment=%v err=%v", has, err)
	}
}
