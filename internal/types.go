package internal

import "time"

type Cell struct {
	Value   any    `json:"value"`
	Formula string `json:"formula,omitempty"`
	MergeID string `json:"mergeId,omitempty"`
}

// MergeRange is an inclusive rectangle of merged cells.
type MergeRange struct {
	StartRow int `json:"startRow"`
	StartCol int `json:"startCol"`
	EndRow   int `json:"endRow"`
	EndCol   int `json:"endCol"`
}

func (m MergeRange) Contains(row, col int) bool {
	return row >= m.StartRow && row <= m.EndRow && col >= m.StartCol && col <= m.EndCol
}

// RawSheetData is the cell grid handed to structure inference. Inference
// only reads it.
type RawSheetData struct {
	Cells  [][]Cell     `json:"cells"`
	Merges []MergeRange `json:"merges"`
}

type SheetType string

const (
	SheetStandard  SheetType = "standard"
	SheetIrregular SheetType = "irregular"
	SheetUnknown   SheetType = "unknown"
)

type AnalysisStatus string

const (
	StatusPending   AnalysisStatus = "pending"
	StatusAnalyzing AnalysisStatus = "analyzing"
	StatusCompleted AnalysisStatus = "completed"
	StatusFailed    AnalysisStatus = "failed"
)

type HeaderRegion struct {
	StartRow int `json:"startRow"`
	EndRow   int `json:"endRow"`
	StartCol int `json:"startCol"`
	EndCol   int `json:"endCol"`
}

type FieldHierarchy struct {
	FullPath    string `json:"fullPath"`
	DisplayName string `json:"displayName"`
	Parent      string `json:"parent,omitempty"`
	ColumnIndex int    `json:"columnIndex"`
	Level       int    `json:"level"`
}

type StructureAnalysis struct {
	SheetType      SheetType        `json:"sheetType"`
	Reason         string           `json:"reason,omitempty"`
	HeaderRow      int              `json:"headerRow"`
	DataStartRow   int              `json:"dataStartRow"`
	Fields         []string         `json:"fields"`
	Confidence     float64          `json:"confidence"`
	Status         AnalysisStatus   `json:"status"`
	Error          string           `json:"error,omitempty"`
	HeaderRegion   *HeaderRegion    `json:"headerRegion,omitempty"`
	FieldHierarchy []FieldHierarchy `json:"fieldHierarchy,omitempty"`
	RawHeaders     [][]string       `json:"rawHeaders,omitempty"`
}

type ColumnType string

const (
	ColumnString  ColumnType = "string"
	ColumnNumber  ColumnType = "number"
	ColumnDate    ColumnType = "date"
	ColumnBoolean ColumnType = "boolean"
	ColumnMixed   ColumnType = "mixed"
	ColumnEmpty   ColumnType = "empty"
)

type Sheet struct {
	Name              string             `json:"name"`
	Headers           []string           `json:"headers"`
	RowCount          int                `json:"rowCount"`
	ColumnTypes       []ColumnType       `json:"columnTypes,omitempty"`
	SampleRows        [][]any            `json:"sampleRows,omitempty"`
	Hidden            bool               `json:"hidden,omitempty"`
	RawData           *RawSheetData      `json:"rawData,omitempty"`
	StructureAnalysis *StructureAnalysis `json:"structureAnalysis,omitempty"`
}

type FileType string

const (
	FileExcel FileType = "excel"
	FileCSV   FileType = "csv"
	FileJSON  FileType = "json"
)

type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

type Size struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// File is a card on the canvas. Path is empty when the bytes were never
// persisted where the reader can reopen them.
type File struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Type        FileType  `json:"type"`
	Path        string    `json:"path,omitempty"`
	Sheets      []Sheet   `json:"sheets"`
	ActiveSheet string    `json:"activeSheet"`
	Position    Position  `json:"position"`
	Size        Size      `json:"size"`
	Quality     int       `json:"quality"`
	RowCount    int       `json:"rowCount"`
	CreatedAt   time.Time `json:"createdAt"`
}

type FlowKind string

const (
	FlowTransform FlowKind = "transform"
	FlowMerge     FlowKind = "merge"
	FlowFilter    FlowKind = "filter"
	FlowAggregate FlowKind = "aggregate"
)

// Flow is a provenance edge from a source file to a file derived from it.
type Flow struct {
	ID    string   `json:"id"`
	From  string   `json:"from"`
	To    string   `json:"to"`
	Label string   `json:"label"`
	Kind  FlowKind `json:"type"`
}

type IntentType string

const (
	IntentExtract   IntentType = "extract"
	IntentAnalyze   IntentType = "analyze"
	IntentTransform IntentType = "transform"
	IntentUnknown   IntentType = "unknown"
)

type Intent struct {
	Type       IntentType `json:"type"`
	Target     string     `json:"target,omitempty"`
	Confidence float64    `json:"confidence"`
	Reason     string     `json:"reason"`
}

type EmailRow struct {
	ID         int
	Provider   string
	MessageID  string
	Subject    string
	Sender     string
	ReceivedAt string
	Hash       string
	Status     string
	RawRef     string
}

type FetchedMailMessage struct {
	Provider   string
	MessageID  string
	Subject    string
	From       string
	ReceivedAt string
	Raw        []byte
}
