package usecase

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/kirillkom/edital-watch/internal/core/domain"
)

func pollOnlyOptions() WatchOptions {
	return WatchOptions{TrySSE: BoolPtr(false), Clock: newFakeClock()}
}

func pdfFile(name string) domain.UploadFile {
	return domain.UploadFile{Filename: name, Body: strings.NewReader("%PDF-1.7")}
}

func TestAnalyzeStartBasicKeepsFirstEdital(t *testing.T) {
	api := &analysisAPIFake{startJobID: "job-77"}
	current := &currentJobFake{}
	uc := NewAnalyzeEditalUseCase(api, nil, &fakeFetcher{}, current, nil, pollOnlyOptions())

	jobID, err := uc.Start(context.Background(), domain.AnalysisRequest{
		Editais:     []domain.UploadFile{pdfFile("edital.pdf"), pdfFile("anexo-edital.PDF")},
		Attachments: []domain.UploadFile{pdfFile("planilha.pdf")},
	})
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if jobID != "job-77" {
		t.Fatalf("expected job-77, got %q", jobID)
	}
	if len(api.started) != 1 {
		t.Fatalf("expected one start call, got %d", len(api.started))
	}
	sent := api.started[0]
	if sent.Mode != domain.AnalysisBasic || len(sent.Editais) != 1 || len(sent.Attachments) != 0 {
		t.Fatalf("unexpected request sent: %+v", sent)
	}
	if current.jobID != "job-77" {
		t.Fatalf("expected current job to be saved, got %q", current.jobID)
	}
}

func TestAnalyzeStartSuperSendsAttachments(t *testing.T) {
	api := &analysisAPIFake{startJobID: "job-1"}
	uc := NewAnalyzeEditalUseCase(api, nil, &fakeFetcher{}, nil, nil, pollOnlyOptions())

	_, err := uc.Start(context.Background(), domain.AnalysisRequest{
		Mode:        domain.AnalysisSuper,
		Editais:     []domain.UploadFile{pdfFile("a.pdf"), pdfFile("b.pdf")},
		Attachments: []domain.UploadFile{{Filename: "termo.docx", Body: strings.NewReader("x")}},
	})
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	sent := api.started[0]
	if len(sent.Editais) != 2 || len(sent.Attachments) != 1 {
		t.Fatalf("unexpected request sent: %+v", sent)
	}
}

func TestAnalyzeStartValidatesInput(t *testing.T) {
	uc := NewAnalyzeEditalUseCase(&analysisAPIFake{startJobID: "x"}, nil, &fakeFetcher{}, nil, nil, pollOnlyOptions())

	cases := []domain.AnalysisRequest{
		{},
		{Editais: []domain.UploadFile{{Filename: "edital.docx"}}},
		{Mode: "turbo", Editais: []domain.UploadFile{pdfFile("a.pdf")}},
	}
	for _, req := range cases {
		if _, err := uc.Start(context.Background(), req); !errors.Is(err, domain.ErrInvalidInput) {
			t.Fatalf("request %+v: expected ErrInvalidInput, got %v", req, err)
		}
	}
}

func TestAnalyzeStartRejectsMissingJobID(t *testing.T) {
	uc := NewAnalyzeEditalUseCase(&analysisAPIFake{}, nil, &fakeFetcher{}, nil, nil, pollOnlyOptions())

	_, err := uc.Start(context.Background(), domain.AnalysisRequest{Editais: []domain.UploadFile{pdfFile("a.pdf")}})
	if !errors.Is(err, domain.ErrInvalidPayload) {
		t.Fatalf("expected ErrInvalidPayload, got %v", err)
	}
}

func TestAnalyzeAwaitDoneFetchesResult(t *testing.T) {
	api := &analysisAPIFake{result: &domain.AnalysisResult{
		Report: "# Relatório",
		PDF:    &domain.PDFOutput{URL: "/files/r.pdf", Filename: "r.pdf"},
	}}
	current := &currentJobFake{jobID: "job-5"}
	fetcher := &fakeFetcher{handler: func(_ context.Context, jobID string, _ int) (*domain.JobStatus, error) {
		return status(jobID, domain.StatusDone, 100), nil
	}}
	uc := NewAnalyzeEditalUseCase(api, nil, fetcher, current, nil, pollOnlyOptions())

	var mu sync.Mutex
	var seen []domain.Snapshot
	outcome, err := uc.Await(context.Background(), "", func(s domain.Snapshot) {
		mu.Lock()
		seen = append(seen, s)
		mu.Unlock()
	})
	if err != nil {
		t.Fatalf("Await() error = %v", err)
	}
	if outcome.JobID != "job-5" || outcome.Status != domain.StatusDone {
		t.Fatalf("unexpected outcome: %+v", outcome)
	}
	if outcome.Result == nil || outcome.Result.Report != "# Relatório" {
		t.Fatalf("expected report, got %+v", outcome.Result)
	}
	if current.cleared != 1 {
		t.Fatalf("expected current job cleared once, got %d", current.cleared)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(seen) == 0 || !seen[len(seen)-1].Terminal() {
		t.Fatalf("expected final snapshot to reach onUpdate, got %+v", seen)
	}
}

func TestAnalyzeAwaitErrorBuildsFailure(t *testing.T) {
	api := &analysisAPIFake{}
	current := &currentJobFake{jobID: "job-5"}
	fetcher := &fakeFetcher{handler: func(_ context.Context, jobID string, _ int) (*domain.JobStatus, error) {
		return &domain.JobStatus{ID: jobID, Status: domain.StatusError, Error: "<b>PDF</b>   protegido"}, nil
	}}
	uc := NewAnalyzeEditalUseCase(api, nil, fetcher, current, nil, pollOnlyOptions())

	outcome, err := uc.Await(context.Background(), "job-5", nil)
	if err != nil {
		t.Fatalf("Await() error = %v", err)
	}
	if outcome.Failure != "Falha: PDF protegido" {
		t.Fatalf("unexpected failure text %q", outcome.Failure)
	}
	if api.resultCalls != 0 {
		t.Fatalf("result must not be fetched for failed jobs")
	}
	if current.cleared != 1 {
		t.Fatalf("expected current job cleared")
	}
}

func TestAnalyzeAwaitResultFailure(t *testing.T) {
	api := &analysisAPIFake{resultErr: errors.New("boom")}
	current := &currentJobFake{jobID: "job-5"}
	fetcher := &fakeFetcher{handler: func(_ context.Context, jobID string, _ int) (*domain.JobStatus, error) {
		return status(jobID, domain.StatusDone, 100), nil
	}}
	uc := NewAnalyzeEditalUseCase(api, nil, fetcher, current, nil, pollOnlyOptions())

	outcome, err := uc.Await(context.Background(), "job-5", nil)
	if err == nil {
		t.Fatalf("expected error")
	}
	if outcome == nil || outcome.Failure != "Falha ao obter resultado final." {
		t.Fatalf("unexpected outcome %+v", outcome)
	}
	if current.cleared != 1 {
		t.Fatalf("expected current job cleared")
	}
}

func TestAnalyzeAwaitNotFoundClearsCurrentJob(t *testing.T) {
	current := &currentJobFake{jobID: "job-old"}
	fetcher := &fakeFetcher{handler: func(context.Context, string, int) (*domain.JobStatus, error) {
		return nil, domain.ErrJobNotFound
	}}
	uc := NewAnalyzeEditalUseCase(&analysisAPIFake{}, nil, fetcher, current, nil, pollOnlyOptions())

	_, err := uc.Await(context.Background(), "", nil)
	if !errors.Is(err, domain.ErrJobNotFound) {
		t.Fatalf("expected ErrJobNotFound, got %v", err)
	}
	if current.jobID != "" {
		t.Fatalf("expected current job cleared, got %q", current.jobID)
	}
}

func TestAnalyzeAwaitWithoutJob(t *testing.T) {
	uc := NewAnalyzeEditalUseCase(&analysisAPIFake{}, nil, &fakeFetcher{}, &currentJobFake{}, nil, pollOnlyOptions())

	if _, err := uc.Await(context.Background(), "", nil); !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestAnalyzeDownloadReport(t *testing.T) {
	api := &analysisAPIFake{pdf: "%PDF-report"}
	storage := &storageFake{}
	uc := NewAnalyzeEditalUseCase(api, nil, &fakeFetcher{}, nil, storage, pollOnlyOptions())

	path, err := uc.DownloadReport(context.Background(), domain.PDFOutput{URL: "/files/x.pdf", Filename: "../../etc/Relatório final"})
	if err != nil {
		t.Fatalf("DownloadReport() error = %v", err)
	}
	if path != "/reports/Relatório final.pdf" {
		t.Fatalf("unexpected path %q", path)
	}
	if storage.files["Relatório final.pdf"] != "%PDF-report" {
		t.Fatalf("unexpected stored body %+v", storage.files)
	}
	if len(api.pdfURLs) != 1 || api.pdfURLs[0] != "/files/x.pdf" {
		t.Fatalf("unexpected download calls %v", api.pdfURLs)
	}
}

func TestFailureMessage(t *testing.T) {
	cases := []struct {
		status domain.JobStatus
		want   string
	}{
		{domain.JobStatus{Error: "timeout no OCR"}, "Falha: timeout no OCR"},
		{domain.JobStatus{Phase: "extração"}, "Falha na análise: extração"},
		{domain.JobStatus{}, "Falha na análise."},
	}
	for _, tc := range cases {
		if got := FailureMessage(tc.status); got != tc.want {
			t.Fatalf("FailureMessage(%+v) = %q, want %q", tc.status, got, tc.want)
		}
	}
}

func TestSanitizeReportFilename(t *testing.T) {
	cases := map[string]string{
		"":                     DefaultReportFilename,
		"relatorio.pdf":        "relatorio.pdf",
		`C:\tmp\saida`:         "saida.pdf",
		"a/b/../c?.pdf":        "c_.pdf",
		"..":                   DefaultReportFilename,
		"Relatório Final.PDF":  "Relatório Final.PDF",
	}
	for in, want := range cases {
		if got := SanitizeReportFilename(in); got != want {
			t.Fatalf("SanitizeReportFilename(%q) = %q, want %q", in, got, want)
		}
	}
}
