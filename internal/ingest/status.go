package ingest

import (
	"fmt"
	"time"
)

// ProcessStatus is the per-file outcome of Process.
type ProcessStatus string

const (
	StatusProcessed      ProcessStatus = "processed_successfully"
	StatusNotInStaging   ProcessStatus = "file_not_found_in_staging"
	StatusNoContent      ProcessStatus = "processing_no_content"
	StatusProcessError   ProcessStatus = "processing_error"
	StatusIndexedNotMove ProcessStatus = "indexed_not_archived"
)

// DeleteStatus is the per-file outcome of Delete.
type DeleteStatus string

const (
	StatusDeleted         DeleteStatus = "deleted_successfully"
	StatusNotInStorage    DeleteStatus = "not_found_in_storage"
	StatusStorageError    DeleteStatus = "error_deleting_from_storage"
	StatusEmbeddingsError DeleteStatus = "error_deleting_embeddings"
)

// StagedFile is a file received but not yet indexed.
type StagedFile struct {
	TenantID    string `json:"user_id"`
	Filename    string `json:"filename"`
	StagingPath string `json:"staged_path"`
	Size        int64  `json:"size"`
	Message     string `json:"message"`
}

// FileProcessStatus reports what Process did with one file.
type FileProcessStatus struct {
	Filename     string        `json:"filename"`
	Status       ProcessStatus `json:"status"`
	Message      string        `json:"message,omitempty"`
	TotalChunks  int           `json:"total_chunks_processed"`
	TableChunks  int           `json:"table_chunks_extracted"`
	TextSections int           `json:"text_sections_extracted"`
}

// ProcessReport aggregates a Process call. Files keep the request order.
type ProcessReport struct {
	TenantID       string              `json:"user_id"`
	OverallMessage string              `json:"overall_message"`
	Files          []FileProcessStatus `json:"files_status"`
	TotalChunks    int                 `json:"total_chunks_processed"`
	TableChunks    int                 `json:"table_chunks_extracted"`
	TextSections   int                 `json:"text_sections_extracted"`
}

func (r *ProcessReport) summarize() {
	ok := 0
	for _, f := range r.Files {
		r.TotalChunks += f.TotalChunks
		r.TableChunks += f.TableChunks
		r.TextSections += f.TextSections
		if f.Status == StatusProcessed {
			ok++
		}
	}
	switch {
	case ok == len(r.Files):
		r.OverallMessage = fmt.Sprintf("All %d file(s) processed and indexed successfully.", ok)
	default:
		r.OverallMessage = fmt.Sprintf("Processed %d of %d file(s); see per-file status.", ok, len(r.Files))
	}
}

// FileDeleteStatus reports what Delete did with one file. The flags make
// the partial outcomes explicit.
type FileDeleteStatus struct {
	Filename          string       `json:"filename"`
	Status            DeleteStatus `json:"status"`
	Message           string       `json:"message,omitempty"`
	EmbeddingsRemoved bool         `json:"embeddings_removed"`
	ChunksRemoved     int          `json:"chunks_removed"`
	FileRemoved       bool         `json:"file_removed"`
}

// DeleteReport aggregates a Delete call.
type DeleteReport struct {
	TenantID       string             `json:"user_id"`
	OverallMessage string             `json:"overall_message"`
	Files          []FileDeleteStatus `json:"files_status"`
}

func (r *DeleteReport) summarize() {
	allOK, anyErr := true, false
	for _, f := range r.Files {
		if f.Status != StatusDeleted {
			allOK = false
		}
		if f.Status == StatusStorageError || f.Status == StatusEmbeddingsError {
			anyErr = true
		}
	}
	switch {
	case allOK:
		r.OverallMessage = fmt.Sprintf("All %d file(s) and their embeddings deleted successfully.", len(r.Files))
	case anyErr:
		r.OverallMessage = "Deletion process completed with some errors."
	default:
		r.OverallMessage = fmt.Sprintf("Deletion process completed for %d file(s).", len(r.Files))
	}
}

// Stage names the directory a listed file lives in.
type Stage string

const (
	StageStaged    Stage = "staged"
	StageProcessed Stage = "processed"
)

// FileInfo describes one file of a tenant.
type FileInfo struct {
	Filename   string    `json:"filename"`
	Size       int64     `json:"size"`
	ModifiedAt time.Time `json:"modified_at"`
	FileType   string    `json:"file_type"`
	Stage      Stage     `json:"stage"`
	State      State     `json:"state,omitempty"`
	ChunkCount int       `json:"chunk_count"`
	LastError  string    `json:"last_error,omitempty"`
}
