package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/kirillkom/edital-watch/internal/core/domain"
	"github.com/kirillkom/edital-watch/internal/core/ports"
)

const DefaultReportFilename = "Relatorio_de_Viabilidade.pdf"

var (
	htmlTagPattern      = regexp.MustCompile(`<[^>]+>`)
	whitespacePattern   = regexp.MustCompile(`\s+`)
	unsafeFilenameChars = regexp.MustCompile(`[^\p{L}\p{N}._ -]+`)
)

type AnalyzeEditalUseCase struct {
	api     ports.AnalysisAPI
	stream  ports.StatusStream
	fetcher ports.StatusFetcher
	current ports.CurrentJobStore
	storage ports.ObjectStorage
	opts    WatchOptions
}

var _ ports.EditalAnalyzer = (*AnalyzeEditalUseCase)(nil)

func NewAnalyzeEditalUseCase(
	api ports.AnalysisAPI,
	stream ports.StatusStream,
	fetcher ports.StatusFetcher,
	current ports.CurrentJobStore,
	storage ports.ObjectStorage,
	opts WatchOptions,
) *AnalyzeEditalUseCase {
	return &AnalyzeEditalUseCase{
		api:     api,
		stream:  stream,
		fetcher: fetcher,
		current: current,
		storage: storage,
		opts:    opts,
	}
}

// Start uploads the edital files and records the returned job as the current one.
func (uc *AnalyzeEditalUseCase) Start(ctx context.Context, req domain.AnalysisRequest) (string, error) {
	prepared, err := prepareAnalysisRequest(req)
	if err != nil {
		return "", err
	}

	jobID, err := uc.api.StartAnalysis(ctx, prepared)
	if err != nil {
		return "", fmt.Errorf("start analysis: %w", err)
	}
	jobID = strings.TrimSpace(jobID)
	if jobID == "" {
		return "", domain.WrapError(domain.ErrInvalidPayload, "start analysis", errors.New("response has no job id"))
	}

	if uc.current != nil {
		if err := uc.current.Save(jobID); err != nil {
			uc.logger().Warn("current_job_save_failed", "job_id", jobID, "error", err)
		}
	}
	return jobID, nil
}

// Await follows jobID until it stops. An empty jobID resumes the current job.
// The current job is cleared once the job reached a terminal status or is gone.
func (uc *AnalyzeEditalUseCase) Await(ctx context.Context, jobID string, onUpdate func(domain.Snapshot)) (*domain.AnalysisOutcome, error) {
	jobID = strings.TrimSpace(jobID)
	if jobID == "" && uc.current != nil {
		saved, err := uc.current.Load()
		if err != nil {
			return nil, fmt.Errorf("load current job: %w", err)
		}
		jobID = saved
	}
	if jobID == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "await analysis", errors.New("no job to follow"))
	}

	watcher, err := NewJobWatcher(uc.stream, uc.fetcher, uc.opts)
	if err != nil {
		return nil, err
	}
	snap, err := awaitJob(ctx, watcher, jobID, onUpdate)
	if err != nil {
		return nil, err
	}

	if snap.Err != nil {
		if snap.Err.Kind == domain.WatchErrNotFound {
			uc.clearCurrent(jobID)
		}
		return nil, snap.Err
	}
	if !snap.Terminal() {
		return nil, fmt.Errorf("await analysis %s: session ended without a final status", jobID)
	}

	defer uc.clearCurrent(jobID)
	outcome := &domain.AnalysisOutcome{
		JobID:    jobID,
		Status:   snap.Status.Status,
		Finished: snap.UpdatedAt,
	}
	if snap.Status.Status == domain.StatusError {
		outcome.Failure = FailureMessage(*snap.Status)
		return outcome, nil
	}

	result, err := uc.api.GetAnalysisResult(ctx, jobID)
	if err != nil {
		outcome.Failure = "Falha ao obter resultado final."
		return outcome, fmt.Errorf("get analysis result: %w", err)
	}
	outcome.Result = result
	return outcome, nil
}

// DownloadReport fetches the generated PDF and stores it locally, returning
// where it was written.
func (uc *AnalyzeEditalUseCase) DownloadReport(ctx context.Context, pdf domain.PDFOutput) (string, error) {
	if strings.TrimSpace(pdf.URL) == "" {
		return "", domain.WrapError(domain.ErrInvalidInput, "download report", errors.New("pdf url is empty"))
	}
	if uc.storage == nil {
		return "", errors.New("download report: storage is not configured")
	}

	body, err := uc.api.DownloadPDF(ctx, pdf.URL)
	if err != nil {
		return "", fmt.Errorf("download report: %w", err)
	}
	defer body.Close()

	path, err := uc.storage.Save(ctx, SanitizeReportFilename(pdf.Filename), body)
	if err != nil {
		return "", fmt.Errorf("save report: %w", err)
	}
	return path, nil
}

func (uc *AnalyzeEditalUseCase) clearCurrent(jobID string) {
	if uc.current == nil {
		return
	}
	saved, err := uc.current.Load()
	if err != nil || saved != jobID {
		return
	}
	if err := uc.current.Clear(); err != nil {
		uc.logger().Warn("current_job_clear_failed", "job_id", jobID, "error", err)
	}
}

func (uc *AnalyzeEditalUseCase) logger() *slog.Logger {
	if uc.opts.Logger != nil {
		return uc.opts.Logger
	}
	return slog.Default()
}

func prepareAnalysisRequest(req domain.AnalysisRequest) (domain.AnalysisRequest, error) {
	mode, ok := domain.ParseAnalysisMode(string(req.Mode))
	if !ok {
		return req, domain.WrapError(domain.ErrInvalidInput, "start analysis", fmt.Errorf("unknown mode %q", req.Mode))
	}
	if len(req.Editais) == 0 {
		return req, domain.WrapError(domain.ErrInvalidInput, "start analysis", errors.New("select at least one edital PDF"))
	}
	for _, f := range req.Editais {
		if !strings.EqualFold(filepath.Ext(f.Filename), ".pdf") {
			return req, domain.WrapError(domain.ErrInvalidInput, "start analysis", fmt.Errorf("edital %q is not a PDF", f.Filename))
		}
	}

	out := domain.AnalysisRequest{Mode: mode, Editais: req.Editais}
	if mode == domain.AnalysisBasic {
		out.Editais = req.Editais[:1]
	} else {
		out.Attachments = req.Attachments
	}
	return out, nil
}

// FailureMessage is the user-facing text for a job that ended with an error.
func FailureMessage(st domain.JobStatus) string {
	if msg := cleanErrorMessage(st.Error); msg != "" {
		return "Falha: " + msg
	}
	if st.Phase != "" {
		return "Falha na análise: " + st.Phase
	}
	return "Falha na análise."
}

func cleanErrorMessage(msg string) string {
	msg = htmlTagPattern.ReplaceAllString(msg, " ")
	return strings.TrimSpace(whitespacePattern.ReplaceAllString(msg, " "))
}

// SanitizeReportFilename keeps a safe base name ending in .pdf.
func SanitizeReportFilename(name string) string {
	name = filepath.Base(strings.ReplaceAll(strings.TrimSpace(name), "\\", "/"))
	name = unsafeFilenameChars.ReplaceAllString(name, "_")
	name = strings.Trim(name, ". ")
	if name == "" || name == "_" {
		return DefaultReportFilename
	}
	if !strings.EqualFold(filepath.Ext(name), ".pdf") {
		name += ".pdf"
	}
	return name
}
