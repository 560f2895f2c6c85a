package domain

import (
	"io"
	"time"
)

type AnalysisMode string

const (
	AnalysisBasic AnalysisMode = "basic"
	AnalysisSuper AnalysisMode = "super"
)

func ParseAnalysisMode(raw string) (AnalysisMode, bool) {
	switch AnalysisMode(raw) {
	case AnalysisBasic, "":
		return AnalysisBasic, true
	case AnalysisSuper:
		return AnalysisSuper, true
	default:
		return "", false
	}
}

// UploadFile is one multipart part sent to the analysis API.
type UploadFile struct {
	Filename string
	Body     io.Reader
}

type AnalysisRequest struct {
	Mode        AnalysisMode
	Editais     []UploadFile
	Attachments []UploadFile
}

type PDFOutput struct {
	URL      string `json:"url"`
	Filename string `json:"filename,omitempty"`
}

type AnalysisResult struct {
	JobID  string     `json:"job_id"`
	Report string     `json:"report"`
	PDF    *PDFOutput `json:"pdf,omitempty"`
}

// AnalysisOutcome is what an analysis run ends with once its job stops.
type AnalysisOutcome struct {
	JobID    string
	Status   StatusKind
	Result   *AnalysisResult
	Failure  string
	Finished time.Time
}

// CatsSyncStart is the response of a CAT sync request. Servers without async
// support answer synchronously, in which case JobID is empty and Result holds
// the response body.
type CatsSyncStart struct {
	JobID  string
	Result map[string]any
}

type CatsSyncOutcome struct {
	JobID     string
	Status    StatusKind
	Processed int
	Failure   string
	// Resumed is set when a pending sync was followed instead of starting one.
	Resumed bool
}
