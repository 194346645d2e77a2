package bentengo

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// JobStatus is the lifecycle state of an analysis job.
type JobStatus string

const (
	StatusPending   JobStatus = "pending"
	StatusRunning   JobStatus = "running"
	StatusCompleted JobStatus = "completed"
	StatusFailed    JobStatus = "failed"
)

// AnalysisRequest is the payload for submitting a new analysis job.
type AnalysisRequest struct {
	Input      string         `json:"input"`
	Parameters map[string]any `json:"parameters,omitempty"`
}

// AnalysisJob is the typed result of job operations. Stale marks data served
// from the fallback store; a Pending status with an empty ID means the write
// was queued for replay rather than delivered.
type AnalysisJob struct {
	ID        string          `json:"id"`
	Status    JobStatus       `json:"status"`
	Input     string          `json:"input,omitempty"`
	Result    json.RawMessage `json:"result,omitempty"`
	Error     string          `json:"error,omitempty"`
	CreatedAt string          `json:"created_at,omitempty"`
	UpdatedAt string          `json:"updated_at,omitempty"`
	Stale     bool            `json:"-"`
}

// ToolRequest is the payload for invoking a tool through the orchestration API.
type ToolRequest struct {
	Tool      string         `json:"tool"`
	Arguments map[string]any `json:"arguments,omitempty"`
}

// ToolResponse is the typed result of a tool invocation.
type ToolResponse struct {
	Tool   string          `json:"tool"`
	Output json.RawMessage `json:"output,omitempty"`
	Error  string          `json:"error,omitempty"`
	Stale  bool            `json:"-"`
}

// Facade is the typed request surface callers invoke. It routes application
// requests and tool requests through the resilient client and translates
// internal error shapes into the small caller-facing taxonomy; raw transport
// errors never escape it.
type Facade struct {
	client      *Client
	appBaseURL  string
	toolBaseURL string
}

// NewFacade wraps a client with the application API and tool API base URLs.
func NewFacade(client *Client, appBaseURL, toolBaseURL string) *Facade {
	return &Facade{
		client:      client,
		appBaseURL:  strings.TrimRight(appBaseURL, "/"),
		toolBaseURL: strings.TrimRight(toolBaseURL, "/"),
	}
}

// Client returns the underlying resilient client.
func (f *Facade) Client() *Client {
	return f.client
}

// SubmitAnalysisJob submits a new analysis job. When the backend is
// unreachable the job is queued for replay and returned with StatusPending.
func (f *Facade) SubmitAnalysisJob(ctx context.Context, req AnalysisRequest) (*AnalysisJob, error) {
	if strings.TrimSpace(req.Input) == "" {
		return nil, &RequestError{
			Type:    ErrorTypeValidation,
			Message: "analysis input must not be empty",
		}
	}

	resp, err := f.postJSON(ctx, f.appBaseURL+"/jobs", req)
	if err != nil {
		return nil, translateError(err)
	}

	if resp.Source == SourceQueued {
		return &AnalysisJob{Status: StatusPending, Input: req.Input}, nil
	}

	var job AnalysisJob
	if err := json.Unmarshal(resp.Body, &job); err != nil {
		return nil, decodeError(resp.Endpoint, err)
	}
	job.Stale = resp.Degraded()
	return &job, nil
}

// FetchAnalysisJob fetches one job by id, degrading to last-known-good data
// when the backend is unavailable.
func (f *Facade) FetchAnalysisJob(ctx context.Context, id string) (*AnalysisJob, error) {
	if strings.TrimSpace(id) == "" {
		return nil, &RequestError{
			Type:    ErrorTypeValidation,
			Message: "job id must not be empty",
		}
	}

	resp, err := f.client.Get(ctx, f.appBaseURL+"/jobs/"+url.PathEscape(id))
	if err != nil {
		return nil, translateError(err)
	}

	var job AnalysisJob
	if err := json.Unmarshal(resp.Body, &job); err != nil {
		return nil, decodeError(resp.Endpoint, err)
	}
	job.Stale = resp.Degraded()
	return &job, nil
}

// ListAnalysisJobs lists all jobs, degrading to last-known-good data when the
// backend is unavailable.
func (f *Facade) ListAnalysisJobs(ctx context.Context) ([]AnalysisJob, error) {
	resp, err := f.client.Get(ctx, f.appBaseURL+"/jobs")
	if err != nil {
		return nil, translateError(err)
	}

	var jobs []AnalysisJob
	if err := json.Unmarshal(resp.Body, &jobs); err != nil {
		return nil, decodeError(resp.Endpoint, err)
	}
	if resp.Degraded() {
		for i := range jobs {
			jobs[i].Stale = true
		}
	}
	return jobs, nil
}

// SendToolRequest invokes a tool through the orchestration API.
func (f *Facade) SendToolRequest(ctx context.Context, req ToolRequest) (*ToolResponse, error) {
	if strings.TrimSpace(req.Tool) == "" {
		return nil, &RequestError{
			Type:    ErrorTypeValidation,
			Message: "tool name must not be empty",
		}
	}

	resp, err := f.postJSON(ctx, f.toolBaseURL+"/tools/invoke", req)
	if err != nil {
		return nil, translateError(err)
	}

	if resp.Source == SourceQueued {
		return &ToolResponse{Tool: req.Tool}, nil
	}

	var out ToolResponse
	if err := json.Unmarshal(resp.Body, &out); err != nil {
		return nil, decodeError(resp.Endpoint, err)
	}
	out.Stale = resp.Degraded()
	return &out, nil
}

func (f *Facade) postJSON(ctx context.Context, url string, payload any) (*Response, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, &RequestError{
			Type:    ErrorTypeValidation,
			Message: "encode request payload",
			Cause:   err,
		}
	}
	return f.client.Post(ctx, url, "application/json", bytes.NewReader(body))
}

// translateError guarantees every surfaced error is a *RequestError from the
// caller-facing taxonomy.
func translateError(err error) error {
	var reqErr *RequestError
	if errors.As(err, &reqErr) {
		return reqErr
	}
	return &RequestError{
		Type:    ErrorTypeNetwork,
		Message: "request failed",
		Cause:   err,
	}
}

func decodeError(endpoint string, err error) error {
	return &RequestError{
		Type:     ErrorTypeValidation,
		Message:  fmt.Sprintf("decode response from %s", endpoint),
		Endpoint: endpoint,
		Cause:    err,
	}
}
