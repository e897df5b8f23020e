package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	resumatchErrors "resumatch/internal/errors"
	"resumatch/internal/progress"
	"resumatch/internal/stream"
	"resumatch/internal/types"
)

// Submission modes, also used as the "mode" metric attribute
const (
	ModeStream   = "stream"
	ModeFallback = "fallback"
)

const eventStreamContentType = "text/event-stream"

// SubmitAnalysis uploads req and reports progress to obs until exactly one
// terminal callback. It blocks until then.
//
// The streaming endpoint is tried first. When it is missing (404, 405, 501)
// and fallback is enabled, the blocking endpoint is used with simulated
// progress. A 2xx answer that is not an event stream is read as the blocking
// result itself. A failed stream is not retried.
func (c *Client) SubmitAnalysis(ctx context.Context, req types.AnalysisRequest, obs stream.Observer) {
	obs = stream.Guard(obs)

	if err := validateAnalysisRequest(req); err != nil {
		obs.OnError(err)
		return
	}

	if c.cfg.StreamTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.StreamTimeout)
		defer cancel()
	}

	src, mode, err := c.openAnalysis(ctx, req)
	obs = c.observability.InstrumentObserver(ctx, obs, mode)
	if err != nil {
		obs.OnError(err)
		return
	}

	c.logger.Debug("Analysis submitted", "mode", mode, "resume", req.ResumeFilename)
	src.Stream(ctx, obs)
}

// AnalyzeAndWait submits req and returns the decoded complete payload.
// onFrame, when non-nil, receives every intermediate frame. When the payload
// only carries an id, the full result is fetched.
func (c *Client) AnalyzeAndWait(ctx context.Context, req types.AnalysisRequest, onFrame func(stream.Frame)) (*types.AnalysisSubmission, error) {
	var (
		data   json.RawMessage
		failed error
	)
	c.SubmitAnalysis(ctx, req, stream.ObserverFuncs{
		Frame:    onFrame,
		Complete: func(d json.RawMessage) { data = d },
		Error:    func(err error) { failed = err },
	})
	if failed != nil {
		return nil, failed
	}

	submission, err := DecodeSubmission(data)
	if err != nil {
		return nil, err
	}

	if submission.Result == nil && submission.AnalysisID != 0 {
		result, err := c.GetAnalysis(ctx, submission.AnalysisID)
		if err != nil {
			return submission, fmt.Errorf("analysis %d finished but could not be fetched: %w", submission.AnalysisID, err)
		}
		submission.Result = result
	}
	return submission, nil
}

// DecodeSubmission reads a complete payload. It accepts either
// {"analysis_id": n, "result": {...}} or a bare analysis result.
func DecodeSubmission(data json.RawMessage) (*types.AnalysisSubmission, error) {
	if len(bytes.TrimSpace(data)) == 0 || bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		return nil, resumatchErrors.NewStreamError(resumatchErrors.ErrCodeInvalidFormat,
			"analysis finished without a result payload", nil)
	}

	var probe map[string]json.RawMessage
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, resumatchErrors.NewStreamError(resumatchErrors.ErrCodeInvalidFormat,
			"analysis result is not a JSON object", err)
	}

	if _, ok := probe["analysis_id"]; ok {
		var submission types.AnalysisSubmission
		if err := json.Unmarshal(data, &submission); err != nil {
			return nil, resumatchErrors.NewStreamError(resumatchErrors.ErrCodeInvalidFormat,
				"invalid analysis submission payload", err)
		}
		if submission.Result != nil && submission.Result.ID == 0 {
			submission.Result.ID = submission.AnalysisID
		}
		return &submission, nil
	}

	if _, ok := probe["match_score"]; ok {
		var result types.AnalysisResult
		if err := json.Unmarshal(data, &result); err != nil {
			return nil, resumatchErrors.NewStreamError(resumatchErrors.ErrCodeInvalidFormat,
				"invalid analysis result payload", err)
		}
		return &types.AnalysisSubmission{AnalysisID: result.ID, Result: &result}, nil
	}

	return nil, resumatchErrors.NewStreamError(resumatchErrors.ErrCodeInvalidFormat,
		"analysis payload has neither analysis_id nor match_score", nil)
}

// GetAnalysis fetches a stored analysis
func (c *Client) GetAnalysis(ctx context.Context, id int64) (*types.AnalysisResult, error) {
	var result types.AnalysisResult
	path := "/api/analysis/" + strconv.FormatInt(id, 10)
	if err := c.doJSON(ctx, http.MethodGet, path, nil, nil, &result, true); err != nil {
		return nil, err
	}
	if result.ID == 0 {
		result.ID = id
	}
	return &result, nil
}

// ListAnalyses returns the analysis history, newest first as sent by the backend
func (c *Client) ListAnalyses(ctx context.Context) ([]types.AnalysisSummary, error) {
	var list []types.AnalysisSummary
	if err := c.doJSON(ctx, http.MethodGet, "/api/analysis", nil, nil, &list, true); err != nil {
		return nil, err
	}
	return list, nil
}

func validateAnalysisRequest(req types.AnalysisRequest) error {
	if len(req.Resume) == 0 {
		return resumatchErrors.NewValidationError(resumatchErrors.ErrCodeInvalidRequest, "resume file is empty", nil)
	}
	if strings.TrimSpace(req.JobDescription) == "" {
		return resumatchErrors.NewValidationError(resumatchErrors.ErrCodeInvalidRequest, "job description is empty", nil)
	}
	return nil
}

// openAnalysis returns the source that will deliver the analysis and the
// mode it runs in
func (c *Client) openAnalysis(ctx context.Context, req types.AnalysisRequest) (stream.Source, string, error) {
	body, contentType, err := encodeAnalysisForm(req)
	if err != nil {
		return nil, ModeStream, err
	}
	newBody := func() io.Reader { return bytes.NewReader(body) }

	resp, err := c.do(ctx, request{
		method:      http.MethodPost,
		path:        "/api/analysis/stream",
		body:        newBody,
		contentType: contentType,
		accept:      eventStreamContentType,
		auth:        true,
		streaming:   true,
	})
	if err != nil {
		var apiErr *APIError
		if c.cfg.FallbackToBlocking && errors.As(err, &apiErr) && streamingUnsupported(apiErr.StatusCode) {
			c.logger.Info("Streaming endpoint unavailable, using blocking analysis",
				"status", apiErr.StatusCode)
			return c.blockingSource(func(ctx context.Context) (json.RawMessage, error) {
				return c.postBlockingAnalysis(ctx, newBody, contentType)
			}), ModeFallback, nil
		}
		return nil, ModeStream, err
	}

	if isEventStream(resp.Header.Get("Content-Type")) {
		return stream.NewReaderSource(resp.Body, c.channel), ModeStream, nil
	}

	if !c.cfg.FallbackToBlocking {
		resp.Body.Close()
		return nil, ModeStream, resumatchErrors.NewStreamError(resumatchErrors.ErrCodeInvalidFormat,
			"backend did not answer with an event stream", nil).
			WithContext("content_type", resp.Header.Get("Content-Type"))
	}

	c.logger.Info("Backend answered without an event stream, reading blocking result",
		"content_type", resp.Header.Get("Content-Type"))
	return c.blockingSource(func(ctx context.Context) (json.RawMessage, error) {
		return readJSONBody(resp)
	}), ModeFallback, nil
}

func (c *Client) blockingSource(run func(ctx context.Context) (json.RawMessage, error)) stream.Source {
	sim := progress.NewSimulator()
	if c.simulation.Interval > 0 {
		sim.Interval = c.simulation.Interval
	}
	if c.simulation.Step > 0 {
		sim.Step = c.simulation.Step
	}
	if c.simulation.Ceiling > 0 {
		sim.Ceiling = c.simulation.Ceiling
	}
	return &progress.Source{Simulator: sim, Run: run}
}

func (c *Client) postBlockingAnalysis(ctx context.Context, body func() io.Reader, contentType string) (json.RawMessage, error) {
	resp, err := c.do(ctx, request{
		method:      http.MethodPost,
		path:        "/api/analysis",
		body:        body,
		contentType: contentType,
		auth:        true,
		streaming:   true,
	})
	if err != nil {
		return nil, err
	}
	return readJSONBody(resp)
}

func readJSONBody(resp *http.Response) (json.RawMessage, error) {
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resumatchErrors.NewNetworkError(resumatchErrors.ErrCodeAPIRequestFailed,
			"failed to read analysis response", err)
	}
	if !json.Valid(data) {
		return nil, resumatchErrors.NewNetworkError(resumatchErrors.ErrCodeInvalidFormat,
			"analysis response is not valid JSON", nil)
	}
	return json.RawMessage(data), nil
}

func streamingUnsupported(status int) bool {
	return status == http.StatusNotFound ||
		status == http.StatusMethodNotAllowed ||
		status == http.StatusNotImplemented
}

func isEventStream(contentType string) bool {
	mediaType, _, err := mime.ParseMediaType(contentType)
	return err == nil && mediaType == eventStreamContentType
}

// encodeAnalysisForm builds the multipart body shared by both endpoints
func encodeAnalysisForm(req types.AnalysisRequest) ([]byte, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	filename := filepath.Base(req.ResumeFilename)
	if filename == "." || filename == "/" || filename == "" {
		filename = "resume"
	}

	part, err := w.CreateFormFile("resume", filename)
	if err != nil {
		return nil, "", resumatchErrors.NewInternalError(resumatchErrors.ErrCodeInvalidRequest, "failed to encode resume", err)
	}
	if _, err := part.Write(req.Resume); err != nil {
		return nil, "", resumatchErrors.NewInternalError(resumatchErrors.ErrCodeInvalidRequest, "failed to encode resume", err)
	}

	fields := []struct {
		name  string
		value string
	}{
		{"job_description", req.JobDescription},
		{"generate_feedback", strconv.FormatBool(req.GenerateFeedback)},
		{"generate_optimized_resume", strconv.FormatBool(req.GenerateOptimizedResume)},
		{"generate_cover_letter", strconv.FormatBool(req.GenerateCoverLetter)},
	}
	for _, f := range fields {
		if err := w.WriteField(f.name, f.value); err != nil {
			return nil, "", resumatchErrors.NewInternalError(resumatchErrors.ErrCodeInvalidRequest,
				"failed to encode form field "+f.name, err)
		}
	}

	if err := w.Close(); err != nil {
		return nil, "", resumatchErrors.NewInternalError(resumatchErrors.ErrCodeInvalidRequest, "failed to encode form", err)
	}
	return buf.Bytes(), w.FormDataContentType(), nil
}
