package services

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/charmbracelet/log"
	"github.com/desertthunder/witx/internal/models"
	"github.com/desertthunder/witx/internal/shared"
	"github.com/desertthunder/witx/internal/wiql"
	"golang.org/x/oauth2"
)

var _ Tracker = (*AzureDevOpsService)(nil)

// AzureDevOpsOpts configures an [AzureDevOpsService].
type AzureDevOpsOpts struct {
	BaseURL    string        // Collection or organization URL, e.g. https://dev.azure.com/contoso
	Token      string        // Personal access token or bearer token
	Auth       string        // pat (default), bearer or none
	HTTPClient *http.Client  // Base client (default: http.Client with Timeout)
	Timeout    time.Duration // Per-request timeout (default: 30s)
	MaxRetries int           // Retries for transient failures, 0 disables
	Logger     *log.Logger
}

// AzureDevOpsService implements [Tracker] against the Azure DevOps / TFS work item tracking REST API.
//
// One service is bound to one instance and is shared by every call to that instance.
type AzureDevOpsService struct {
	baseURL    string
	token      string
	auth       string
	httpClient *http.Client
	maxRetries int
	logger     *log.Logger
	newBackOff func() backoff.BackOff
}

// StatusError is a non-2xx response from the service.
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("API error %d: %s", e.StatusCode, e.Message)
}

// NewAzureDevOpsService creates a client for the instance at opts.BaseURL.
func NewAzureDevOpsService(opts AzureDevOpsOpts) (*AzureDevOpsService, error) {
	u, err := url.Parse(strings.TrimSpace(opts.BaseURL))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("%w: invalid instance url %q", shared.ErrInvalidArgument, opts.BaseURL)
	}

	if opts.Auth == "" {
		opts.Auth = AuthPAT
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}

	base := opts.HTTPClient
	if base == nil {
		base = &http.Client{Timeout: opts.Timeout}
	}

	client := base
	switch opts.Auth {
	case AuthPAT:
		if opts.Token == "" {
			return nil, fmt.Errorf("%w: personal access token required for %s", shared.ErrMissingCredentials, u.String())
		}
	case AuthBearer:
		if opts.Token == "" {
			return nil, fmt.Errorf("%w: bearer token required for %s", shared.ErrMissingCredentials, u.String())
		}
		ctx := context.WithValue(context.Background(), oauth2.HTTPClient, base)
		client = oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: opts.Token, TokenType: "Bearer"}))
		client.Timeout = base.Timeout
	case AuthNone:
	default:
		return nil, fmt.Errorf("%w: unknown auth scheme %q", shared.ErrInvalidArgument, opts.Auth)
	}

	return &AzureDevOpsService{
		baseURL:    strings.TrimSuffix(u.String(), "/"),
		token:      opts.Token,
		auth:       opts.Auth,
		httpClient: client,
		maxRetries: opts.MaxRetries,
		logger:     shared.WithLogger(opts.Logger, "instance", u.Host),
		newBackOff: func() backoff.BackOff {
			bo := backoff.NewExponentialBackOff()
			bo.InitialInterval = 500 * time.Millisecond
			bo.MaxInterval = 10 * time.Second
			return bo
		},
	}, nil
}

// Name returns the instance URL.
func (s *AzureDevOpsService) Name() string { return s.baseURL }

// Query runs a WIQL query, then fetches the matching work items with all fields and relations.
func (s *AzureDevOpsService) Query(ctx context.Context, query string) ([]models.WorkRecord, error) {
	if _, err := wiql.Parse(query); err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrRemoteQuery, err)
	}

	respBody, err := s.doRequest(ctx, http.MethodPost, "/_apis/wit/wiql", WIQLQueryRequest{Query: query}, "application/json", true)
	if err != nil {
		return nil, fmt.Errorf("%w: WIQL query failed: %w", shared.ErrRemoteQuery, err)
	}

	var queryResp WIQLQueryResponse
	if err := json.Unmarshal(respBody, &queryResp); err != nil {
		return nil, fmt.Errorf("%w: failed to parse WIQL response: %v", shared.ErrRemoteQuery, err)
	}

	records := make([]models.WorkRecord, 0, len(queryResp.WorkItems))
	if len(queryResp.WorkItems) == 0 {
		return records, nil
	}

	ids := make([]string, len(queryResp.WorkItems))
	for i, ref := range queryResp.WorkItems {
		ids[i] = strconv.Itoa(ref.ID)
	}

	for start := 0; start < len(ids); start += MaxBatchSize {
		end := min(start+MaxBatchSize, len(ids))
		path := fmt.Sprintf("/_apis/wit/workitems?ids=%s&$expand=all", strings.Join(ids[start:end], ","))

		respBody, err := s.doRequest(ctx, http.MethodGet, path, nil, "", true)
		if err != nil {
			return nil, fmt.Errorf("%w: failed to fetch work items batch: %w", shared.ErrRemoteQuery, err)
		}

		var batch WorkItemBatchResponse
		if err := json.Unmarshal(respBody, &batch); err != nil {
			return nil, fmt.Errorf("%w: failed to parse work items response: %v", shared.ErrRemoteQuery, err)
		}

		for _, wi := range batch.Value {
			records = append(records, wi.toRecord())
		}
	}

	s.logger.Debug("query complete", "records", len(records))
	return records, nil
}

// Create creates a work item of recordType in project from a JSON-patch document of field values.
func (s *AzureDevOpsService) Create(ctx context.Context, fields map[string]any, recordType, project string) (*models.Handle, error) {
	if recordType == "" || project == "" {
		return nil, fmt.Errorf("%w: record type and project are required", shared.ErrRemoteWrite)
	}

	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	sort.Strings(names)

	ops := make([]PatchOperation, 0, len(names))
	for _, name := range names {
		ops = append(ops, PatchOperation{Op: "add", Path: "/fields/" + name, Value: fields[name]})
	}

	path := fmt.Sprintf("/%s/_apis/wit/workitems/$%s", url.PathEscape(project), url.PathEscape(recordType))
	respBody, err := s.doRequest(ctx, http.MethodPost, path, ops, JSONPatchContent, false)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create %s: %w", shared.ErrRemoteWrite, recordType, err)
	}

	var wi WorkItem
	if err := json.Unmarshal(respBody, &wi); err != nil {
		return nil, fmt.Errorf("%w: failed to parse create response: %v", shared.ErrRemoteWrite, err)
	}

	handle := wi.toHandle(project)
	if handle.Type == "" {
		handle.Type = recordType
	}
	return handle, nil
}

// AddRelation appends a relation of kind on source pointing at target.
func (s *AzureDevOpsService) AddRelation(ctx context.Context, source, target models.Handle, kind string) error {
	if target.URL == "" {
		return fmt.Errorf("%w: relation target %s has no url", shared.ErrRemoteWrite, target)
	}

	ops := []PatchOperation{{
		Op:    "add",
		Path:  "/relations/-",
		Value: RelationValue{Rel: kind, URL: target.URL},
	}}

	path := fmt.Sprintf("/_apis/wit/workitems/%d", source.ID)
	if _, err := s.doRequest(ctx, http.MethodPatch, path, ops, JSONPatchContent, false); err != nil {
		return fmt.Errorf("%w: failed to link %s to %s: %w", shared.ErrRemoteWrite, source, target, err)
	}
	return nil
}

// doRequest performs an authenticated request, retrying transient failures.
//
// Transport errors and gateway failures are only retried when idempotent is set since the server may have applied
// the request. Throttling and unavailable responses are retried for every request.
func (s *AzureDevOpsService) doRequest(ctx context.Context, method, path string, body any, contentType string, idempotent bool) ([]byte, error) {
	var payload []byte
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		payload = data
	}

	separator := "?"
	if strings.Contains(path, "?") {
		separator = "&"
	}
	reqURL := s.baseURL + path + separator + "api-version=" + APIVersion

	var respBody []byte
	attempt := 0
	operation := func() error {
		attempt++

		var reader io.Reader
		if payload != nil {
			reader = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, method, reqURL, reader)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("failed to create request: %w", err))
		}
		s.authorize(req)
		req.Header.Set("Accept", "application/json")
		if contentType != "" {
			req.Header.Set("Content-Type", contentType)
		}

		resp, err := s.httpClient.Do(req)
		if err != nil {
			if !idempotent || ctx.Err() != nil {
				return backoff.Permanent(fmt.Errorf("request failed: %w", err))
			}
			s.logger.Warn("request failed, retrying", "method", method, "path", path, "attempt", attempt, "error", err)
			return fmt.Errorf("request failed: %w", err)
		}
		defer resp.Body.Close()

		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("failed to read response: %w", err))
		}

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			statusErr := &StatusError{StatusCode: resp.StatusCode, Message: errorMessage(data)}
			if retryableStatus(resp.StatusCode, idempotent) {
				s.logger.Warn("transient response, retrying", "method", method, "path", path, "status", resp.StatusCode, "attempt", attempt)
				return statusErr
			}
			return backoff.Permanent(statusErr)
		}

		respBody = data
		return nil
	}

	bo := backoff.WithContext(backoff.WithMaxRetries(s.newBackOff(), uint64(s.maxRetries)), ctx)
	if err := backoff.Retry(operation, bo); err != nil {
		var perm *backoff.PermanentError
		if errors.As(err, &perm) {
			return nil, perm.Err
		}
		return nil, err
	}

	s.logger.Debug("request complete", "method", method, "path", path, "attempts", attempt)
	return respBody, nil
}

func (s *AzureDevOpsService) authorize(req *http.Request) {
	if s.auth != AuthPAT {
		return
	}
	auth := base64.StdEncoding.EncodeToString([]byte(":" + s.token))
	req.Header.Set("Authorization", "Basic "+auth)
}

// retryableStatus reports whether a response status is worth another attempt.
// A 502 or 504 may arrive after a write was applied, so those are retried for idempotent requests only.
func retryableStatus(code int, idempotent bool) bool {
	switch code {
	case http.StatusTooManyRequests, http.StatusServiceUnavailable:
		return true
	case http.StatusBadGateway, http.StatusGatewayTimeout:
		return idempotent
	default:
		return false
	}
}

func errorMessage(body []byte) string {
	var apiErr apiError
	if err := json.Unmarshal(body, &apiErr); err == nil && apiErr.Message != "" {
		return apiErr.Message
	}
	msg := strings.TrimSpace(string(body))
	if len(msg) > 200 {
		msg = msg[:200]
	}
	return msg
}
