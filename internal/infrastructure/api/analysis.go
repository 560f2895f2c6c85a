package api

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/kirillkom/edital-watch/internal/core/domain"
	"github.com/kirillkom/edital-watch/internal/core/ports"
)

var errNotAnObject = errors.New("expected a JSON object")

type AnalysisService struct {
	client *Client
}

var _ ports.AnalysisAPI = (*AnalysisService)(nil)

func NewAnalysisService(client *Client) *AnalysisService {
	return &AnalysisService{client: client}
}

// StartAnalysis uploads edital PDFs as "editalPdf" parts and attachments as
// "arquivos[]" parts.
func (s *AnalysisService) StartAnalysis(ctx context.Context, req domain.AnalysisRequest) (string, error) {
	body, contentType, err := encodeAnalysisForm(req)
	if err != nil {
		return "", err
	}

	var response struct {
		JobID looseID `json:"jobId"`
	}
	err = s.client.doJSON(ctx, request{
		operation:   opStartAnalysis,
		method:      http.MethodPost,
		url:         s.client.ResolveURL(s.client.paths.AnalysisStart),
		body:        body,
		contentType: contentType,
	}, &response)
	if err != nil {
		return "", err
	}
	return string(response.JobID), nil
}

func (s *AnalysisService) GetAnalysisResult(ctx context.Context, jobID string) (*domain.AnalysisResult, error) {
	var response struct {
		Report string            `json:"report"`
		PDF    *domain.PDFOutput `json:"pdf"`
	}
	err := s.client.doJSON(ctx, request{
		operation: opAnalysisResult,
		method:    http.MethodGet,
		url:       s.client.ResolveURL(ExpandPath(s.client.paths.AnalysisResult, jobID)),
	}, &response)
	if err != nil {
		return nil, err
	}

	result := &domain.AnalysisResult{JobID: jobID, Report: response.Report}
	if response.PDF != nil && strings.TrimSpace(response.PDF.URL) != "" {
		result.PDF = response.PDF
	}
	return result, nil
}

// DownloadPDF fetches a report PDF with the bearer token. rawURL may be
// absolute or relative to the API base.
func (s *AnalysisService) DownloadPDF(ctx context.Context, rawURL string) (io.ReadCloser, error) {
	target := s.client.ResolveURL(rawURL)
	if _, err := url.Parse(target); err != nil {
		return nil, domain.WrapError(domain.ErrInvalidInput, opDownloadPDF, err)
	}
	return s.client.doStream(ctx, request{
		operation: opDownloadPDF,
		method:    http.MethodGet,
		url:       target,
		accept:    "application/pdf",
	})
}

func encodeAnalysisForm(req domain.AnalysisRequest) ([]byte, string, error) {
	var buf bytes.Buffer
	form := multipart.NewWriter(&buf)

	write := func(field string, files []domain.UploadFile) error {
		for _, f := range files {
			part, err := form.CreateFormFile(field, f.Filename)
			if err != nil {
				return fmt.Errorf("create form part %s: %w", field, err)
			}
			if f.Body == nil {
				continue
			}
			if _, err := io.Copy(part, f.Body); err != nil {
				return fmt.Errorf("copy %s: %w", f.Filename, err)
			}
		}
		return nil
	}

	if err := write("editalPdf", req.Editais); err != nil {
		return nil, "", err
	}
	if req.Mode == domain.AnalysisSuper {
		if err := write("arquivos[]", req.Attachments); err != nil {
			return nil, "", err
		}
	}
	if err := form.WriteField("mode", string(req.Mode)); err != nil {
		return nil, "", fmt.Errorf("write mode field: %w", err)
	}
	if err := form.Close(); err != nil {
		return nil, "", fmt.Errorf("close form: %w", err)
	}
	return buf.Bytes(), form.FormDataContentType(), nil
}

// looseID accepts job ids encoded as strings or numbers.
type looseID string

func (id *looseID) UnmarshalJSON(data []byte) error {
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "null" {
		*id = ""
		return nil
	}
	if unquoted, err := strconv.Unquote(trimmed); err == nil {
		*id = looseID(strings.TrimSpace(unquoted))
		return nil
	}
	if _, err := strconv.ParseFloat(trimmed, 64); err != nil {
		return fmt.Errorf("job id: unexpected value %s", trimmed)
	}
	*id = looseID(trimmed)
	return nil
}
