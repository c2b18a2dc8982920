package pipeline

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/xuri/excelize/v2"

	"dataclean/internal"
	"dataclean/internal/analysis"
	"dataclean/internal/apperr"
	"dataclean/internal/config"
	"dataclean/internal/llm"
	"dataclean/internal/storage"
)

type testSheet struct {
	name   string
	rows   [][]any
	hidden bool
}

func newTestService(t *testing.T) (*Service, *storage.DB, string) {
	t.Helper()
	tmp := t.TempDir()
	db, err := storage.Open(filepath.Join(tmp, "app.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })
	cfg := config.Config{
		DataDir:   tmp,
		ExportDir: filepath.Join(tmp, "exports"),
		InboxDir:  filepath.Join(tmp, "inbox"),
		MaxFileMB: 50,
	}
	svc := NewService(db, cfg, Options{Logger: slog.New(slog.NewTextHandler(io.Discard, nil))})
	return svc, db, tmp
}

func writeWorkbook(t *testing.T, path string, sheets ...testSheet) {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()
	for i, sh := range sheets {
		if i == 0 {
			if err := f.SetSheetName("Sheet1", sh.name); err != nil {
				t.Fatal(err)
			}
		} else if _, err := f.NewSheet(sh.name); err != nil {
			t.Fatal(err)
		}
		for r, row := range sh.rows {
			cell, _ := excelize.CoordinatesToCellName(1, r+1)
			values := row
			if err := f.SetSheetRow(sh.name, cell, &values); err != nil {
				t.Fatal(err)
			}
		}
	}
	for _, sh := range sheets {
		if sh.hidden {
			if err := f.SetSheetVisible(sh.name, false); err != nil {
				t.Fatal(err)
			}
		}
	}
	if err := f.SaveAs(path); err != nil {
		t.Fatal(err)
	}
}

func flightRows(n int) [][]any {
	rows := [][]any{{"日期", "航班", "金额"}}
	for i := 0; i < n; i++ {
		rows = append(rows, []any{fmt.Sprintf("2024-01-%02d", i+1), fmt.Sprintf("CA%d", 1000+i), 500 + i})
	}
	return rows
}

func importAll(t *testing.T, svc *Service, paths ...string) []internal.File {
	t.Helper()
	out := []internal.File{}
	for _, p := range paths {
		f, err := svc.Import(context.Background(), p)
		if err != nil {
			t.Fatalf("import %s: %v", p, err)
		}
		out = append(out, f)
	}
	return out
}

func TestImport(t *testing.T) {
	svc, _, tmp := newTestService(t)
	path := filepath.Join(tmp, "trip.xlsx")
	writeWorkbook(t, path,
		testSheet{name: "机票明细", rows: flightRows(12)},
		testSheet{name: "备注", rows: [][]any{{"说明"}}, hidden: true},
	)
	second := filepath.Join(tmp, "other.xlsx")
	writeWorkbook(t, second, testSheet{name: "Sheet1", rows: flightRows(1)})

	files := importAll(t, svc, path, path, path, second)
	f := files[0]
	if f.Type != internal.FileExcel || len(f.Sheets) != 2 || f.RowCount != 12 {
		t.Fatalf("unexpected file: type=%s sheets=%d rows=%d", f.Type, len(f.Sheets), f.RowCount)
	}
	sh := f.Sheets[0]
	if strings.Join(sh.Headers, ",") != "日期,航班,金额" || sh.RowCount != 12 || len(sh.SampleRows) != 12 {
		t.Fatalf("unexpected sheet: %+v", sh)
	}
	if sh.ColumnTypes[0] != internal.ColumnDate || sh.ColumnTypes[2] != internal.ColumnNumber {
		t.Fatalf("column types=%v", sh.ColumnTypes)
	}
	if sh.StructureAnalysis == nil || sh.StructureAnalysis.Status != internal.StatusCompleted || sh.StructureAnalysis.HeaderRow != 0 {
		t.Fatalf("analysis=%+v", sh.StructureAnalysis)
	}
	if !f.Sheets[1].Hidden {
		t.Fatal("hidden sheet flag lost")
	}

	want := []internal.Position{{X: 100, Y: 100}, {X: 700, Y: 100}, {X: 1300, Y: 100}, {X: 100, Y: 550}}
	for i, f := range files {
		if f.Position != want[i] {
			t.Fatalf("file %d at %+v want %+v", i, f.Position, want[i])
		}
		if f.Size.Width != 500 || f.Size.Height != 350 {
			t.Fatalf("file %d size %+v", i, f.Size)
		}
	}
}

func TestImportErrors(t *testing.T) {
	svc, _, tmp := newTestService(t)
	svc.cfg.MaxFileMB = 1

	big := filepath.Join(tmp, "big.csv")
	if err := os.WriteFile(big, make([]byte, 1<<20+1), 0o644); err != nil {
		t.Fatal(err)
	}
	doc := filepath.Join(tmp, "notes.docx")
	if err := os.WriteFile(doc, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	cases := []struct {
		path string
		code apperr.Code
	}{
		{filepath.Join(tmp, "missing.xlsx"), apperr.FileNotFound},
		{big, apperr.FileTooLarge},
		{doc, apperr.FileFormatInvalid},
	}
	for _, tc := range cases {
		t.Run(filepath.Base(tc.path), func(t *testing.T) {
			_, err := svc.Import(context.Background(), tc.path)
			res := apperr.FromError(err, apperr.SystemUnknown)
			if res.ErrorCode != tc.code {
				t.Fatalf("code=%s want %s (err=%v)", res.ErrorCode, tc.code, err)
			}
		})
	}
}

func TestExtractTwoFiles(t *testing.T) {
	svc, db, tmp := newTestService(t)
	a := filepath.Join(tmp, "a.xlsx")
	b := filepath.Join(tmp, "b.xlsx")
	writeWorkbook(t, a, testSheet{name: "机票明细", rows: flightRows(5)}, testSheet{name: "酒店", rows: flightRows(20)})
	writeWorkbook(t, b, testSheet{name: "国内机票", rows: flightRows(3)})
	files := importAll(t, svc, a, b)

	res := svc.Execute(context.Background(), "提取机票数据", files)
	if !res.Success {
		t.Fatalf("extract failed: %s", res.Message)
	}
	want := "已成功提取 2 个文件，共 8 行数据：\n- a.xlsx/机票明细: 5 行\n- b.xlsx/国内机票: 3 行"
	if res.Message != want {
		t.Fatalf("message=%q", res.Message)
	}
	data := res.Data.(map[string]any)
	if data["count"] != 2 || data["totalRows"] != 8 {
		t.Fatalf("data=%v", data)
	}

	all, err := db.ListFiles()
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 4 {
		t.Fatalf("files=%d want 4", len(all))
	}
	derivedA, derivedB := all[2], all[3]
	if derivedA.Name != "机票_a_机票明细.json" || derivedB.Name != "机票_b_国内机票.json" {
		t.Fatalf("names %q %q", derivedA.Name, derivedB.Name)
	}
	if derivedA.Position != (internal.Position{X: 100 + 500 + 150, Y: 100}) {
		t.Fatalf("first derived at %+v", derivedA.Position)
	}
	if derivedB.Position != (internal.Position{X: 700 + 500 + 150, Y: 100 + 100}) {
		t.Fatalf("second derived at %+v", derivedB.Position)
	}
	if derivedA.Sheets[0].Name != "Data" || derivedA.Sheets[0].RowCount != 5 || len(derivedA.Sheets[0].SampleRows) != 5 {
		t.Fatalf("derived sheet=%+v", derivedA.Sheets[0])
	}
	blob, err := os.ReadFile(derivedA.Path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(blob), `"航班": "CA1000"`) {
		t.Fatalf("derived json:\n%s", blob)
	}

	flows, err := db.ListFlows()
	if err != nil {
		t.Fatal(err)
	}
	if len(flows) != 2 {
		t.Fatalf("flows=%d want 2", len(flows))
	}
	if flows[0].From != files[0].ID || flows[0].To != derivedA.ID || flows[1].From != files[1].ID || flows[1].To != derivedB.ID {
		t.Fatalf("flows=%+v", flows)
	}
	for _, fl := range flows {
		if fl.Label != "提取" || fl.Kind != internal.FlowTransform {
			t.Fatalf("flow=%+v", fl)
		}
	}

	// Removing a source leaves no edge pointing at it.
	if res := svc.RemoveFile(files[0].ID); !res.Success {
		t.Fatalf("remove: %s", res.Message)
	}
	flows, _ = db.ListFlows()
	for _, fl := range flows {
		if fl.From == files[0].ID || fl.To == files[0].ID {
			t.Fatalf("orphan flow %+v", fl)
		}
	}
	if res := svc.RemoveFile(files[0].ID); res.ErrorCode != apperr.FileNotFound {
		t.Fatalf("second remove=%+v", res)
	}
}

func TestExtractSingleSheetMessage(t *testing.T) {
	svc, _, tmp := newTestService(t)
	p := filepath.Join(tmp, "bill.xlsx")
	writeWorkbook(t, p, testSheet{name: "明细", rows: flightRows(15)}, testSheet{name: "汇总", rows: flightRows(2)})
	files := importAll(t, svc, p)

	// No target: only sheets with more than ten rows qualify.
	res := svc.Execute(context.Background(), "导出", files)
	if !res.Success || res.Message != "已提取 明细 的 15 行数据" {
		t.Fatalf("res=%+v", res)
	}
}

func TestHiddenSheetsNeverSelected(t *testing.T) {
	svc, _, tmp := newTestService(t)
	p := filepath.Join(tmp, "mixed.xlsx")
	writeWorkbook(t, p,
		testSheet{name: "封面", rows: [][]any{{"报告"}}},
		testSheet{name: "机票", rows: flightRows(30), hidden: true},
	)
	files := importAll(t, svc, p)

	for _, cmd := range []string{"提取机票数据", "导出"} {
		t.Run(cmd, func(t *testing.T) {
			res := svc.Execute(context.Background(), cmd, files)
			if res.Success || res.ErrorCode != apperr.TargetNotFound {
				t.Fatalf("res=%+v", res)
			}
			if !strings.Contains(res.Message, "可用的 sheets: 封面") || strings.Contains(res.Message, "sheets: 封面, 机票") {
				t.Fatalf("message=%q", res.Message)
			}
		})
	}
}

func TestExecuteFailures(t *testing.T) {
	svc, _, _ := newTestService(t)

	res := svc.Execute(context.Background(), "提取机票数据", nil)
	if res.ErrorCode != apperr.FileNotFound || !strings.Contains(res.Message, "请先拖拽上传 Excel 或 CSV 文件") {
		t.Fatalf("no files: %+v", res)
	}

	pathless := []internal.File{{
		ID:     "f1",
		Name:   "a.xlsx",
		Sheets: []internal.Sheet{{Name: "机票", RowCount: 50}},
	}}
	res = svc.Execute(context.Background(), "提取机票数据", pathless)
	if res.ErrorCode != apperr.AgentExecutionFailed || !strings.Contains(res.Message, "请检查文件是否可以正常打开") {
		t.Fatalf("pathless: %+v", res)
	}
}

func TestBands(t *testing.T) {
	svc, db, tmp := newTestService(t)
	p := filepath.Join(tmp, "a.xlsx")
	writeWorkbook(t, p, testSheet{name: "机票", rows: flightRows(3)})
	files := importAll(t, svc, p)

	res := svc.Execute(context.Background(), "今天天气怎么样", files)
	if res.Success || !strings.HasPrefix(res.Message, "无法确定您的意图（置信度 0%）") {
		t.Fatalf("clarify: %+v", res)
	}

	res = svc.Execute(context.Background(), "给我机票", files)
	if !res.Success {
		t.Fatalf("disclose: %+v", res)
	}
	if !strings.HasPrefix(res.Message, "已提取 机票 的 3 行数据") ||
		!strings.HasSuffix(res.Message, "\n\n💡 提示: 系统以 60% 的置信度识别您的意图为\"提取数据(机票)\"，如果不正确请尝试更明确的指令（如\"提取机票数据\"）。") {
		t.Fatalf("disclose message=%q", res.Message)
	}

	res = svc.Execute(context.Background(), "提取机票数据", files)
	if !res.Success || strings.Contains(res.Message, "💡") {
		t.Fatalf("execute: %+v", res)
	}

	runs, err := db.ListRuns(10)
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 3 || runs[2].Success || !runs[1].Success || runs[0].Intent.Type != internal.IntentExtract {
		t.Fatalf("runs=%+v", runs)
	}
}

func TestAnalyzeAndTransform(t *testing.T) {
	svc, db, tmp := newTestService(t)
	p := filepath.Join(tmp, "a.xlsx")
	rows := flightRows(4)
	rows = append(rows, rows[len(rows)-1])
	writeWorkbook(t, p, testSheet{name: "机票", rows: rows})
	files := importAll(t, svc, p)

	res := svc.Execute(context.Background(), "分析数据质量", files)
	if !res.Success {
		t.Fatalf("analyze: %+v", res)
	}
	reports := res.Data.(map[string]any)["sheets"].([]SheetReport)
	if len(reports) != 1 || reports[0].RowCount != 5 || reports[0].DuplicateRows != 1 || reports[0].Sampled {
		t.Fatalf("reports=%+v", reports)
	}
	if !strings.Contains(res.Message, "a.xlsx/机票: 5 行，质量 92 分") {
		t.Fatalf("analyze message=%q", res.Message)
	}

	res = svc.Execute(context.Background(), "转成 CSV", files)
	if !res.Success || res.Message != "已将 a.xlsx/机票 转换为 CSV，共 5 行数据" {
		t.Fatalf("transform: %+v", res)
	}
	all, _ := db.ListFiles()
	derived := all[len(all)-1]
	if derived.Name != "a_机票.csv" || derived.Type != internal.FileCSV {
		t.Fatalf("derived=%s %s", derived.Name, derived.Type)
	}
	blob, err := os.ReadFile(derived.Path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(string(blob), "\xef\xbb\xbf\"日期\",\"航班\",\"金额\"") {
		t.Fatalf("csv head=%q", blob[:40])
	}
	flows, _ := db.ListFlows()
	if len(flows) != 1 || flows[0].Label != "转换" {
		t.Fatalf("flows=%+v", flows)
	}

	// The converted file reads back under the sheet name the CSV loader uses.
	if derived.ActiveSheet != "a_机票" || derived.Sheets[0].Name != "a_机票" {
		t.Fatalf("derived sheet=%q active=%q", derived.Sheets[0].Name, derived.ActiveSheet)
	}
	res = svc.Export(derived.ID, "json", "")
	if !res.Success {
		t.Fatalf("export converted csv: %+v", res)
	}
	if got := res.Data.(ExportResult); got.RowCount != 5 || got.Format != "json" {
		t.Fatalf("export=%+v", got)
	}
}

func TestExport(t *testing.T) {
	svc, _, tmp := newTestService(t)
	p := filepath.Join(tmp, "a.xlsx")
	writeWorkbook(t, p, testSheet{name: "机票", rows: flightRows(2)})
	f := importAll(t, svc, p)[0]

	out := filepath.Join(tmp, "out", "a.xlsx")
	res := svc.Export(f.ID, "xlsx", out)
	if !res.Success {
		t.Fatalf("export: %+v", res)
	}
	if got := res.Data.(ExportResult); got.RowCount != 2 || got.Path != out {
		t.Fatalf("export data=%+v", got)
	}
	if _, err := os.Stat(out); err != nil {
		t.Fatal(err)
	}

	if res := svc.Export(f.ID, "yaml", ""); res.ErrorCode != apperr.FileFormatInvalid {
		t.Fatalf("bad format: %+v", res)
	}
	if res := svc.Export("missing", "json", ""); res.ErrorCode != apperr.FileNotFound {
		t.Fatalf("missing: %+v", res)
	}
}

func rawMessage(subject string, attachments map[string]string) []byte {
	var b strings.Builder
	b.WriteString("From: sender@example.com\r\nTo: inbox@example.com\r\n")
	b.WriteString("Subject: " + subject + "\r\n")
	b.WriteString("MIME-Version: 1.0\r\nContent-Type: multipart/mixed; boundary=\"XX\"\r\n\r\n")
	b.WriteString("--XX\r\nContent-Type: text/plain; charset=utf-8\r\n\r\nsee attached\r\n")
	for name, body := range attachments {
		b.WriteString("--XX\r\nContent-Type: application/octet-stream\r\n")
		b.WriteString("Content-Disposition: attachment; filename=\"" + name + "\"\r\n")
		b.WriteString("Content-Transfer-Encoding: base64\r\n\r\n")
		b.WriteString(base64.StdEncoding.EncodeToString([]byte(body)) + "\r\n")
	}
	b.WriteString("--XX--\r\n")
	return []byte(b.String())
}

func TestIngestMailAttachments(t *testing.T) {
	svc, db, tmp := newTestService(t)
	raw := rawMessage("statement", map[string]string{
		"bill.csv":   "日期,航班,金额\n2024-01-01,CA1,100\n2024-01-02,CA2,200\n",
		"notes.docx": "ignored",
	})
	rawPath := filepath.Join(tmp, "m1.eml")
	if err := os.WriteFile(rawPath, raw, 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := db.UpsertEmail("imap", "<m1@example.com>", "statement", "sender@example.com", "2024-01-01T00:00:00Z", "h1", rawPath, MailFetched); err != nil {
		t.Fatal(err)
	}

	emails, imported, err := svc.IngestPending(context.Background(), 10, "")
	if err != nil {
		t.Fatal(err)
	}
	if emails != 1 || imported != 1 {
		t.Fatalf("emails=%d imported=%d", emails, imported)
	}
	files, _ := db.ListFiles()
	if len(files) != 1 || files[0].Type != internal.FileCSV || files[0].RowCount != 2 {
		t.Fatalf("files=%+v", files)
	}

	email, err := db.MustEmailByProviderMessageID("imap", "<m1@example.com>")
	if err != nil {
		t.Fatal(err)
	}
	if email.Status != MailIngested {
		t.Fatalf("status=%s", email.Status)
	}
	again, err := svc.IngestEmail(context.Background(), email)
	if err != nil {
		t.Fatal(err)
	}
	if len(again.Imported) != 0 || again.Known != 1 {
		t.Fatalf("attachment imported twice: %+v", again)
	}
	if email, _ = db.MustEmailByProviderMessageID("imap", "<m1@example.com>"); email.Status != MailIngested {
		t.Fatalf("status after re-ingest=%s", email.Status)
	}
}

func TestFromConfig(t *testing.T) {
	_, db, tmp := newTestService(t)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	cases := []struct {
		provider string
		wantErr  bool
	}{
		{"local", false},
		{"openai", false},
		{"carrier-pigeon", true},
	}
	for _, tc := range cases {
		t.Run(tc.provider, func(t *testing.T) {
			cfg := config.Config{DataDir: tmp, AIProvider: tc.provider, IntentExecuteThreshold: 0.8, IntentDiscloseThreshold: 0.5}
			svc, err := FromConfig(db, cfg, logger)
			if (err != nil) != tc.wantErr {
				t.Fatalf("err=%v", err)
			}
			if err == nil && svc.Policy().ExecuteThreshold != 0.8 {
				t.Fatalf("policy=%+v", svc.Policy())
			}
		})
	}
}

type cannedProvider struct{ reply string }

func (p cannedProvider) Name() string { return "canned" }

func (p cannedProvider) Complete(context.Context, llm.Request) (string, error) {
	return p.reply, nil
}

func TestExtractUsesInferredHeaderRow(t *testing.T) {
	svc, _, tmp := newTestService(t)
	svc.analyzer = analysis.New(analysis.Config{
		Provider: cannedProvider{reply: `{"sheets":[{"name":"机票","type":"standard","headerRow":1,"fields":["日期","金额"],"confidence":0.9}]}`},
		Logger:   svc.logger,
	})

	p := filepath.Join(tmp, "report.xlsx")
	rows := [][]any{{"2024 年度机票报销"}, {"日期", "金额"}}
	for i := 0; i < 4; i++ {
		rows = append(rows, []any{fmt.Sprintf("2024-02-%02d", i+1), 100 * (i + 1)})
	}
	writeWorkbook(t, p, testSheet{name: "机票", rows: rows})
	files := importAll(t, svc, p)
	if a := files[0].Sheets[0].StructureAnalysis; a == nil || a.HeaderRow != 1 {
		t.Fatalf("analysis=%+v", a)
	}

	res := svc.Execute(context.Background(), "提取机票数据", files)
	if !res.Success || !strings.HasPrefix(res.Message, "已提取 机票 的 4 行数据") {
		t.Fatalf("extract: %+v", res)
	}
	derived := res.Data.(map[string]any)["results"].([]DerivedSheet)[0]
	f, err := svc.File(derived.NewFileID)
	if err != nil {
		t.Fatal(err)
	}
	if got := strings.Join(f.Sheets[0].Headers, ","); got != "日期,金额" {
		t.Fatalf("headers=%s", got)
	}
	if f.RowCount != 4 {
		t.Fatalf("rows=%d", f.RowCount)
	}
}
