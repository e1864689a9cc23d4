package transcode

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-hclog"
	"github.com/tidwall/gjson"

	"xdao.co/mediacid/media"
)

// RequestIDHeader carries a per-request uuid so service logs can be correlated.
const RequestIDHeader = "X-Request-ID"

// maxResponseBytes bounds how much of a response body is read.
const maxResponseBytes = 4 << 20

// SubmitRequest asks the service to transcode a source blob.
type SubmitRequest struct {
	SourceCID string   `json:"cid"`
	Formats   []string `json:"formats,omitempty"`
	Encrypted bool     `json:"isEncrypted"`
	UseGPU    bool     `json:"useGpu"`
}

// PollResponse is one observation of a job.
type PollResponse struct {
	Progress int
	// HasMetadata is true when the response carried a metadata array, even an empty one.
	HasMetadata bool
	Metadata    []media.Entry
}

// Service is the transcoding service as seen by the Tracker.
type Service interface {
	Submit(ctx context.Context, req SubmitRequest) (taskID string, err error)
	// Poll returns ErrNotMaterialized while the service does not know taskID.
	Poll(ctx context.Context, taskID string) (PollResponse, error)
}

type ClientOptions struct {
	BaseURL    string
	Token      string
	Timeout    time.Duration
	HTTPClient *http.Client
	Logger     hclog.Logger
}

// Client talks to the transcoding service over HTTP.
type Client struct {
	base   *url.URL
	token  string
	http   *http.Client
	logger hclog.Logger
}

var _ Service = (*Client)(nil)

func NewClient(opts ClientOptions) (*Client, error) {
	if strings.TrimSpace(opts.BaseURL) == "" {
		return nil, errors.New("transcode: base URL is required")
	}
	base, err := url.Parse(strings.TrimRight(opts.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("transcode: parse base URL: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("transcode: unsupported base URL scheme %q", base.Scheme)
	}
	hc := opts.HTTPClient
	if hc == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		hc = &http.Client{Timeout: timeout}
	}
	logger := opts.Logger
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &Client{base: base, token: opts.Token, http: hc, logger: logger.Named("transcode-client")}, nil
}

func (c *Client) endpoint(parts ...string) string {
	u := *c.base
	segs := []string{strings.TrimRight(u.Path, "/")}
	for _, p := range parts {
		segs = append(segs, url.PathEscape(p))
	}
	u.Path = strings.Join(segs, "/")
	return u.String()
}

func (c *Client) do(ctx context.Context, method, target string, body []byte) (int, []byte, error) {
	var rd io.Reader
	if body != nil {
		rd = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, rd)
	if err != nil {
		return 0, nil, err
	}
	reqID := uuid.NewString()
	req.Header.Set(RequestIDHeader, reqID)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return resp.StatusCode, nil, err
	}
	c.logger.Trace("request", "method", method, "url", target, "status", resp.StatusCode, "request_id", reqID)
	return resp.StatusCode, data, nil
}

// Submit posts a transcode request and returns the service's task id.
func (c *Client) Submit(ctx context.Context, req SubmitRequest) (string, error) {
	if req.SourceCID == "" {
		return "", errors.New("transcode: source CID is required")
	}
	body, err := json.Marshal(req)
	if err != nil {
		return "", err
	}
	status, data, err := c.do(ctx, http.MethodPost, c.endpoint("transcode"), body)
	if err != nil {
		return "", transportError("submit", err)
	}
	if status != http.StatusOK && status != http.StatusCreated && status != http.StatusAccepted {
		return "", serviceError("submit", status, data)
	}
	taskID := gjson.GetBytes(data, "taskId").String()
	if taskID == "" {
		return "", &Error{Kind: KindService, StatusCode: status, Message: "submit response carries no taskId"}
	}
	return taskID, nil
}

// Poll fetches the job state for taskID.
func (c *Client) Poll(ctx context.Context, taskID string) (PollResponse, error) {
	if taskID == "" {
		return PollResponse{}, errors.New("transcode: task id is required")
	}
	status, data, err := c.do(ctx, http.MethodGet, c.endpoint("transcode", taskID), nil)
	if err != nil {
		return PollResponse{}, transportError("poll", err)
	}
	switch {
	case status == http.StatusNotFound:
		return PollResponse{}, ErrNotMaterialized
	case status != http.StatusOK:
		e := serviceError("poll", status, data)
		e.TaskID = taskID
		return PollResponse{}, e
	}
	return parsePollBody(taskID, data)
}

func parsePollBody(taskID string, data []byte) (PollResponse, error) {
	if !gjson.ValidBytes(data) {
		return PollResponse{}, &Error{Kind: KindService, TaskID: taskID, StatusCode: http.StatusOK, Message: "poll response is not JSON"}
	}
	progress := gjson.GetBytes(data, "progress")
	if !progress.Exists() {
		return PollResponse{}, &Error{Kind: KindService, TaskID: taskID, StatusCode: http.StatusOK, Message: "poll response carries no progress"}
	}
	out := PollResponse{Progress: clampProgress(progress.Int())}
	meta := gjson.GetBytes(data, "metadata")
	if meta.IsArray() {
		out.HasMetadata = true
		if err := json.Unmarshal([]byte(meta.Raw), &out.Metadata); err != nil {
			return PollResponse{}, &Error{Kind: KindService, TaskID: taskID, StatusCode: http.StatusOK, Message: "decode metadata", Cause: err}
		}
	}
	return out, nil
}

func clampProgress(p int64) int {
	switch {
	case p < 0:
		return 0
	case p > 100:
		return 100
	}
	return int(p)
}

func transportError(op string, err error) error {
	return &Error{Kind: KindTransport, Message: op + " request failed", Cause: err}
}

func serviceError(op string, status int, body []byte) *Error {
	msg := op + " rejected"
	if m := gjson.GetBytes(body, "error").String(); m != "" {
		msg += ": " + m
	}
	return &Error{Kind: KindService, StatusCode: status, Message: msg}
}
