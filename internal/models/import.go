package models

import (
	"encoding/json"
	"time"
)

// ImportStatus is the persisted lifecycle state of an import job.
type ImportStatus int

const (
	ImportPending    ImportStatus = 1
	ImportInProgress ImportStatus = 2
	ImportError      ImportStatus = 3
	ImportSuccess    ImportStatus = 4
)

// Label is the text shown by the polling UI.
func (s ImportStatus) Label() string {
	switch s {
	case ImportPending:
		return "Pending"
	case ImportInProgress:
		return "In progress"
	case ImportError:
		return "Error"
	case ImportSuccess:
		return "Success"
	default:
		return "Unknown"
	}
}

func (s ImportStatus) IsTerminal() bool {
	return s == ImportError || s == ImportSuccess
}

// ImportKind distinguishes a full catalog import from a stock-only update.
type ImportKind int

const (
	KindCatalogUpsert ImportKind = 1
	KindStockUpdate   ImportKind = 2
)

func (k ImportKind) String() string {
	switch k {
	case KindCatalogUpsert:
		return "catalog"
	case KindStockUpdate:
		return "stock"
	default:
		return "unknown"
	}
}

type ImportJob struct {
	ID              int64           `json:"id"`
	Kind            ImportKind      `json:"kind"`
	CollectionID    *int64          `json:"collection_id,omitempty"`
	ColumnMapping   json.RawMessage `json:"column_mapping,omitempty"`
	Status          ImportStatus    `json:"status"`
	Progress        string          `json:"progress"`
	SpreadsheetKey  string          `json:"-"`
	SpreadsheetName string          `json:"spreadsheet_name,omitempty"`
	ArchiveKey      string          `json:"-"`
	ArchiveName     string          `json:"archive_name,omitempty"`
	AvailableAt     time.Time       `json:"available_at"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// HasSpreadsheet reports whether a spreadsheet blob was attached at submission.
func (j *ImportJob) HasSpreadsheet() bool { return j.SpreadsheetKey != "" }

func (j *ImportJob) HasArchive() bool { return j.ArchiveKey != "" }
