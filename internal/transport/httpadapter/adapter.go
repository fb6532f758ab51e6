// Package httpadapter is a generic JSON-over-HTTP platform adapter for
// remote APIs with the common {"size": N, "rows": [...]} collection
// shape. Per-platform field mapping stays outside the sync core; this
// adapter covers platforms whose payloads already use the generic
// field names (see convert.go).
package httpadapter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"golang.org/x/time/rate"
	"google.golang.org/protobuf/types/known/structpb"

	contracts "github.com/murkotick/marketplace-sync-service/internal/app/sync/contracts"
	"github.com/murkotick/marketplace-sync-service/internal/app/sync/domain"
)

// Config configures one platform endpoint.
type Config struct {
	Platform string
	Kind     domain.Kind
	BaseURL  string
	Token    string

	// Timeout for individual requests (default: 30s).
	Timeout time.Duration

	// RateLimit requests per second at the transport level (default:
	// 10). This smooths individual requests; batch-level dispatch
	// limits belong to the request pool.
	RateLimit float64

	// RateBurst maximum burst size (default: 5).
	RateBurst int

	// CodeFilterKey is the query key for external-code lookups; empty
	// disables the capability.
	CodeFilterKey string

	// AttributeFilterKeys maps designated attribute ids to filter keys.
	AttributeFilterKeys map[string]string

	// Transport allows injecting a custom HTTP transport (for tests).
	Transport http.RoundTripper
}

// Adapter implements the full capability set against one endpoint.
type Adapter struct {
	cfg        Config
	httpClient *http.Client
	limiter    *rate.Limiter
}

// New validates the endpoint configuration once.
func New(cfg Config) (*Adapter, error) {
	if cfg.Platform == "" {
		return nil, fmt.Errorf("httpadapter: platform name is required")
	}
	if cfg.Kind == "" {
		return nil, fmt.Errorf("httpadapter: entity kind is required")
	}
	if _, err := url.Parse(cfg.BaseURL); err != nil || cfg.BaseURL == "" {
		return nil, fmt.Errorf("httpadapter: invalid base url %q", cfg.BaseURL)
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.RateLimit == 0 {
		cfg.RateLimit = 10.0
	}
	if cfg.RateBurst == 0 {
		cfg.RateBurst = 5
	}

	return &Adapter{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: cfg.Transport,
		},
		limiter: rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.RateBurst),
	}, nil
}

func (a *Adapter) Platform() string {
	return a.cfg.Platform
}

func (a *Adapter) Kind() domain.Kind {
	return a.cfg.Kind
}

func (a *Adapter) CodeFilterKey() string {
	return a.cfg.CodeFilterKey
}

func (a *Adapter) AttributeFilterKey(attributeID string) (string, bool) {
	key, ok := a.cfg.AttributeFilterKeys[attributeID]
	return key, ok
}

// FetchAll pulls one page of the kind's collection.
func (a *Adapter) FetchAll(ctx context.Context, paging contracts.Paging) (*contracts.RawPage, error) {
	q := url.Values{}
	addPaging(q, paging)
	return a.fetch(ctx, q)
}

// FetchByFilter pulls one page of records matching any of the values
// on the given filter key.
func (a *Adapter) FetchByFilter(ctx context.Context, key string, values []string, paging contracts.Paging) (*contracts.RawPage, error) {
	q := url.Values{}
	for _, v := range values {
		q.Add(key, v)
	}
	addPaging(q, paging)
	return a.fetch(ctx, q)
}

// Create posts the payload batch; the response carries one row per
// payload, success or structured error.
func (a *Adapter) Create(ctx context.Context, payloads []*domain.CreatePayload) (*contracts.RawPage, error) {
	body := make([]map[string]interface{}, len(payloads))
	for i, p := range payloads {
		body[i] = createBody(p)
	}
	return a.write(ctx, http.MethodPost, body)
}

// Update puts the payload batch, same response shape as Create.
func (a *Adapter) Update(ctx context.Context, payloads []*domain.UpdatePayload) (*contracts.RawPage, error) {
	body := make([]map[string]interface{}, len(payloads))
	for i, p := range payloads {
		body[i] = updateBody(p)
	}
	return a.write(ctx, http.MethodPut, body)
}

func (a *Adapter) fetch(ctx context.Context, q url.Values) (*contracts.RawPage, error) {
	raw, err := a.do(ctx, http.MethodGet, a.collectionURL(q), nil)
	if err != nil {
		return nil, err
	}
	return parsePage(raw)
}

func (a *Adapter) write(ctx context.Context, method string, body interface{}) (*contracts.RawPage, error) {
	encoded, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("httpadapter: encode request: %w", err)
	}
	raw, err := a.do(ctx, method, a.collectionURL(nil), bytes.NewReader(encoded))
	if err != nil {
		return nil, err
	}
	return parseRows(raw)
}

func (a *Adapter) collectionURL(q url.Values) string {
	u := a.cfg.BaseURL + "/" + string(a.cfg.Kind)
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	return u
}

// do executes one request under the transport rate limiter. Non-2xx
// responses become RemoteCallError values carrying captured
// diagnostics only.
func (a *Adapter) do(ctx context.Context, method, rawURL string, body io.Reader) ([]byte, error) {
	if err := a.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, method, rawURL, body)
	if err != nil {
		return nil, fmt.Errorf("httpadapter: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if a.cfg.Token != "" {
		req.Header.Set("Authorization", "Bearer "+a.cfg.Token)
	}

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, &domain.RemoteCallError{Message: err.Error()}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &domain.RemoteCallError{StatusCode: resp.StatusCode, Message: err.Error()}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &domain.RemoteCallError{
			StatusCode: resp.StatusCode,
			Message:    http.StatusText(resp.StatusCode),
			APIErrors:  parseAPIErrors(data),
		}
	}
	return data, nil
}

func addPaging(q url.Values, paging contracts.Paging) {
	if paging.Limit > 0 {
		q.Set("limit", strconv.Itoa(paging.Limit))
	}
	if paging.Offset > 0 {
		q.Set("offset", strconv.Itoa(paging.Offset))
	}
}

// parsePage decodes the {"size": N, "rows": [...]} collection shape.
func parsePage(data []byte) (*contracts.RawPage, error) {
	var envelope struct {
		Size int               `json:"size"`
		Rows []json.RawMessage `json:"rows"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, fmt.Errorf("httpadapter: decode page: %w", err)
	}

	items, err := toStructs(envelope.Rows)
	if err != nil {
		return nil, err
	}
	return &contracts.RawPage{Items: items, Size: envelope.Size}, nil
}

// parseRows decodes a bare row array, the shape of batched write
// responses.
func parseRows(data []byte) (*contracts.RawPage, error) {
	var rows []json.RawMessage
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, fmt.Errorf("httpadapter: decode rows: %w", err)
	}
	items, err := toStructs(rows)
	if err != nil {
		return nil, err
	}
	return &contracts.RawPage{Items: items, Size: len(items)}, nil
}

func toStructs(rows []json.RawMessage) ([]*structpb.Struct, error) {
	items := make([]*structpb.Struct, 0, len(rows))
	for _, row := range rows {
		var m map[string]interface{}
		if err := json.Unmarshal(row, &m); err != nil {
			return nil, fmt.Errorf("httpadapter: decode row: %w", err)
		}
		item, err := structpb.NewStruct(m)
		if err != nil {
			return nil, fmt.Errorf("httpadapter: raw row: %w", err)
		}
		items = append(items, item)
	}
	return items, nil
}

func parseAPIErrors(data []byte) []domain.APIError {
	var envelope struct {
		Errors []struct {
			Code      string `json:"code"`
			Error     string `json:"error"`
			Parameter string `json:"parameter"`
		} `json:"errors"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil
	}
	out := make([]domain.APIError, 0, len(envelope.Errors))
	for _, e := range envelope.Errors {
		out = append(out, domain.APIError{Code: e.Code, Message: e.Error, Parameter: e.Parameter})
	}
	return out
}
