// Package lamapi provides the client facade for the KG lookup service.
package lamapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"runtime/debug"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/alligator-inc/alligator-engine/pkg/logging"
	"github.com/alligator-inc/alligator-engine/pkg/models"
	"github.com/alligator-inc/alligator-engine/pkg/retry"
)

// kgKeys are the KG-name keys a reply may nest its payload under; the client
// unwraps the first matching one.
var kgKeys = []string{"wikidata", "dbpedia", "crunchbase"}

// Recorder persists client error log entries. Implemented by the log
// repository; a nop recorder is used in units.
type Recorder interface {
	Record(ctx context.Context, entry *models.LogDoc)
}

// API is the operation surface the pipeline stages depend on. Every call is
// idempotent; a permanently failed call yields its zero result and an error
// that callers may log with more context, but downstream stages treat the
// missing data as "no data" and never fail the page because of it.
type API interface {
	Lookup(ctx context.Context, text string, providedIDs []string, kg string, limit int) ([]LookupCandidate, error)
	Labels(ctx context.Context, ids []string) (map[string]string, error)
	Types(ctx context.Context, ids []string) (map[string][]models.CandidateType, error)
	Predicates(ctx context.Context, ids []string) (map[string]map[string][]string, error)
	Objects(ctx context.Context, ids []string) (map[string][]string, error)
	Literals(ctx context.Context, ids []string) (map[string]map[string][]string, error)
	ColumnAnalysis(ctx context.Context, columns map[string][]string) (map[string]ColumnClassification, error)
	LiteralRecognizer(ctx context.Context, cells []string) (map[string]CellClassification, error)
}

// httpError is a reply with a non-2xx status. 5xx and 429 are transient.
type httpError struct {
	status int
	body   string
}

func (e *httpError) Error() string {
	return fmt.Sprintf("lookup service returned status %d: %s", e.status, e.body)
}

func (e *httpError) IsRetryable() bool {
	return e.status >= 500 || e.status == http.StatusTooManyRequests
}

// permanentError marks malformed upstream data (non-JSON, schema mismatch);
// it is never retried.
type permanentError struct {
	msg string
}

func (e *permanentError) Error() string     { return e.msg }
func (e *permanentError) IsRetryable() bool { return false }

// Config holds client construction parameters.
type Config struct {
	BaseURL string
	Token   string
	KG      string // default KG when a call does not carry one
	// MaxConcurrentRequests bounds in-flight HTTP calls across all goroutines
	// sharing this client.
	MaxConcurrentRequests int
	// Timeout is the total deadline for one HTTP call.
	Timeout time.Duration
	// Retry overrides the backoff policy; nil uses retry.DefaultConfig.
	Retry *retry.Config
}

// Client talks to the lookup service over HTTP with bounded concurrency and
// exponential-backoff retries.
type Client struct {
	httpClient *http.Client
	baseURL    string
	token      string
	kg         string
	sem        *semaphore.Weighted
	retryCfg   *retry.Config
	recorder   Recorder
	logger     *zap.Logger
}

var _ API = (*Client)(nil)

// NewClient creates a lookup-service client.
func NewClient(cfg *Config, recorder Recorder, logger *zap.Logger) *Client {
	maxConcurrent := cfg.MaxConcurrentRequests
	if maxConcurrent < 1 {
		maxConcurrent = 50
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 1000 * time.Second
	}
	kg := cfg.KG
	if kg == "" {
		kg = "wikidata"
	}
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    cfg.BaseURL,
		token:      cfg.Token,
		kg:         kg,
		sem:        semaphore.NewWeighted(int64(maxConcurrent)),
		retryCfg:   cfg.Retry,
		recorder:   recorder,
		logger:     logger.Named("lamapi"),
	}
}

// Lookup retrieves ranked candidates for a cell text by label/alias.
// providedIDs are pre-known entity ids passed to the service as hints.
func (c *Client) Lookup(ctx context.Context, text string, providedIDs []string, kg string, limit int) ([]LookupCandidate, error) {
	if kg == "" {
		kg = c.kg
	}
	params := map[string]string{
		"token":  c.token,
		"name":   text,
		"ngrams": "false",
		"fuzzy":  "false",
		"kg":     kg,
		"limit":  fmt.Sprintf("%d", limit),
	}
	if len(providedIDs) > 0 {
		params["ids"] = strings.Join(providedIDs, " ")
	}

	raw, err := c.submitGet(ctx, pathLookup, params)
	if err != nil {
		return nil, err
	}

	var candidates []LookupCandidate
	if err := json.Unmarshal(raw, &candidates); err != nil {
		return nil, c.malformed(ctx, http.MethodGet, pathLookup, params, "", err)
	}
	return candidates, nil
}

// Labels resolves entity ids to their labels.
func (c *Client) Labels(ctx context.Context, ids []string) (map[string]string, error) {
	out := make(map[string]string)
	if err := c.entityPost(ctx, pathLabels, ids, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Types resolves entity ids to their KG classes.
func (c *Client) Types(ctx context.Context, ids []string) (map[string][]models.CandidateType, error) {
	out := make(map[string][]models.CandidateType)
	if err := c.entityPost(ctx, pathTypes, ids, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Predicates resolves, for each entity id, the related entity ids it connects
// to and the predicates of each connection.
func (c *Client) Predicates(ctx context.Context, ids []string) (map[string]map[string][]string, error) {
	out := make(map[string]map[string][]string)
	if err := c.entityPost(ctx, pathPredicates, ids, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Objects resolves entity ids to the ids of the objects they link to.
func (c *Client) Objects(ctx context.Context, ids []string) (map[string][]string, error) {
	out := make(map[string][]string)
	if err := c.entityPost(ctx, pathObjects, ids, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Literals resolves entity ids to their literal values keyed by predicate.
func (c *Client) Literals(ctx context.Context, ids []string) (map[string]map[string][]string, error) {
	out := make(map[string]map[string][]string)
	if err := c.entityPost(ctx, pathLiterals, ids, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// ColumnAnalysis classifies whole column projections into NE/LIT with a
// literal datatype. Keys of columns are column indexes as strings.
func (c *Client) ColumnAnalysis(ctx context.Context, columns map[string][]string) (map[string]ColumnClassification, error) {
	params := map[string]string{"token": c.token}
	raw, err := c.submitPost(ctx, pathColumnAnalysis, params, columns)
	if err != nil {
		return nil, err
	}

	out := make(map[string]ColumnClassification)
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, c.malformed(ctx, http.MethodPost, pathColumnAnalysis, params, string(raw), err)
	}
	return out, nil
}

// LiteralRecognizer classifies individual cell values; used as the fallback
// when column analysis was not invoked or gave no verdict for a column.
func (c *Client) LiteralRecognizer(ctx context.Context, cells []string) (map[string]CellClassification, error) {
	params := map[string]string{"token": c.token}
	raw, err := c.submitPost(ctx, pathLiteralRecognizer, params, cells)
	if err != nil {
		return nil, err
	}

	out := make(map[string]CellClassification)
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, c.malformed(ctx, http.MethodPost, pathLiteralRecognizer, params, string(raw), err)
	}
	return out, nil
}

// entityPost is the shared shape of the entity endpoints: ids in, a map keyed
// by id out, token and kg as parameters.
func (c *Client) entityPost(ctx context.Context, endpoint string, ids []string, out any) error {
	if len(ids) == 0 {
		return nil
	}
	params := map[string]string{"token": c.token, "kg": c.kg}
	raw, err := c.submitPost(ctx, endpoint, params, ids)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return c.malformed(ctx, http.MethodPost, endpoint, params, string(raw), err)
	}
	return nil
}

func (c *Client) submitGet(ctx context.Context, endpoint string, params map[string]string) (json.RawMessage, error) {
	return c.submit(ctx, http.MethodGet, endpoint, params, nil)
}

// submitPost sends the payload wrapped as {"json": payload}, the body shape
// every POST endpoint of the service expects.
func (c *Client) submitPost(ctx context.Context, endpoint string, params map[string]string, payload any) (json.RawMessage, error) {
	body, err := json.Marshal(map[string]any{"json": payload})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request body: %w", err)
	}
	return c.submit(ctx, http.MethodPost, endpoint, params, body)
}

// submit performs one HTTP call under the global semaphore with retries.
// On permanent failure it records a log entry and returns the error; the
// caller's result stays empty so downstream stages see "no data".
func (c *Client) submit(ctx context.Context, method, endpoint string, params map[string]string, body []byte) (json.RawMessage, error) {
	endpointURL, err := buildURL(c.baseURL, endpoint)
	if err != nil {
		return nil, err
	}

	if err := c.sem.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("failed to acquire request slot: %w", err)
	}
	defer c.sem.Release(1)

	raw, err := retry.DoWithResult(ctx, c.retryCfg, func() (json.RawMessage, error) {
		return c.doOnce(ctx, method, endpointURL, params, body)
	})
	if err != nil {
		c.recordFailure(ctx, method, endpointURL, params, body, err)
		return nil, err
	}
	return raw, nil
}

func (c *Client) doOnce(ctx context.Context, method, endpointURL string, params map[string]string, body []byte) (json.RawMessage, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpointURL, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	q := url.Values{}
	for k, v := range params {
		q.Set(k, v)
	}
	req.URL.RawQuery = q.Encode()

	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to call lookup service: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, &httpError{status: resp.StatusCode, body: truncate(string(respBody), 512)}
	}

	if !strings.Contains(resp.Header.Get("Content-Type"), "application/json") {
		return nil, &permanentError{msg: fmt.Sprintf("non-JSON reply (content-type %q)", resp.Header.Get("Content-Type"))}
	}

	return unwrapKG(respBody)
}

// unwrapKG peels the KG-name envelope off a reply when present.
func unwrapKG(body []byte) (json.RawMessage, error) {
	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(body, &envelope); err != nil {
		// Top level is not an object (e.g. a bare candidate array); pass through.
		return body, nil
	}
	for _, kg := range kgKeys {
		if nested, ok := envelope[kg]; ok {
			return nested, nil
		}
	}
	return body, nil
}

// malformed records a schema-mismatch failure and wraps it as permanent.
func (c *Client) malformed(ctx context.Context, method, endpoint string, params map[string]string, body string, err error) error {
	perm := &permanentError{msg: fmt.Sprintf("unexpected %s reply shape: %v", endpoint, err)}
	c.recordFailure(ctx, method, endpoint, params, []byte(body), perm)
	return perm
}

// recordFailure logs a permanently failed call to both zap and the log
// collection, with the token redacted.
func (c *Client) recordFailure(ctx context.Context, method, endpointURL string, params map[string]string, body []byte, err error) {
	safeParams := logging.SanitizeParams(params)
	safeURL := logging.SanitizeURL(endpointURL)

	c.logger.Error("lookup service call failed",
		zap.String("method", method),
		zap.String("url", safeURL),
		zap.Any("params", safeParams),
		zap.String("error", logging.SanitizeError(err)),
	)

	if c.recorder == nil {
		return
	}
	c.recorder.Record(ctx, &models.LogDoc{
		Type:       classify(err),
		Method:     method,
		URL:        safeURL,
		Params:     safeParams,
		Body:       truncate(string(body), 2048),
		Error:      logging.SanitizeError(err),
		StackTrace: string(debug.Stack()),
	})
}

func classify(err error) string {
	var he *httpError
	if errors.As(err, &he) && he.status == http.StatusBadGateway {
		return "Bad Gateway"
	}
	return "generic"
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
