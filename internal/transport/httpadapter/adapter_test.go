package httpadapter

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	contracts "github.com/murkotick/marketplace-sync-service/internal/app/sync/contracts"
	"github.com/murkotick/marketplace-sync-service/internal/app/sync/domain"
)

func newTestAdapter(t *testing.T, srv *httptest.Server) *Adapter {
	t.Helper()
	a, err := New(Config{
		Platform:      "fakeplace",
		Kind:          domain.KindOrder,
		BaseURL:       srv.URL,
		Token:         "secret-token",
		CodeFilterKey: "externalCode",
		AttributeFilterKeys: map[string]string{
			"attr-origin": "originRef",
		},
		RateLimit: 1000,
		RateBurst: 1000,
	})
	require.NoError(t, err)
	return a
}

func TestNewValidation(t *testing.T) {
	_, err := New(Config{Kind: domain.KindOrder, BaseURL: "https://x"})
	assert.Error(t, err)

	_, err = New(Config{Platform: "p", BaseURL: "https://x"})
	assert.Error(t, err)

	_, err = New(Config{Platform: "p", Kind: domain.KindOrder})
	assert.Error(t, err)
}

func TestCapabilityKeys(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()
	a := newTestAdapter(t, srv)

	assert.Equal(t, "fakeplace", a.Platform())
	assert.Equal(t, domain.KindOrder, a.Kind())
	assert.Equal(t, "externalCode", a.CodeFilterKey())

	key, ok := a.AttributeFilterKey("attr-origin")
	assert.True(t, ok)
	assert.Equal(t, "originRef", key)

	_, ok = a.AttributeFilterKey("attr-unknown")
	assert.False(t, ok)
}

func TestFetchAll(t *testing.T) {
	var gotPath, gotAuth string
	var gotQuery map[string][]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		gotQuery = r.URL.Query()
		_, _ = w.Write([]byte(`{"size": 2, "rows": [
			{"id": "t-1", "article": "A-1", "price": 10.5},
			{"id": "t-2", "article": "A-2", "price": "20.75"}
		]}`))
	}))
	defer srv.Close()
	a := newTestAdapter(t, srv)

	page, err := a.FetchAll(context.Background(), contracts.Paging{Limit: 100, Offset: 200})
	require.NoError(t, err)

	assert.Equal(t, "/order", gotPath)
	assert.Equal(t, "Bearer secret-token", gotAuth)
	assert.Equal(t, []string{"100"}, gotQuery["limit"])
	assert.Equal(t, []string{"200"}, gotQuery["offset"])

	assert.Equal(t, 2, page.Size)
	require.Len(t, page.Items, 2)

	e, err := a.ConvertEntity(page.Items[1])
	require.NoError(t, err)
	assert.Equal(t, "t-2", e.ID)
	assert.Equal(t, "A-2", e.Article)
	require.NotNil(t, e.Price)
	assert.True(t, e.Price.Equal(decimal.RequireFromString("20.75")))
	assert.Same(t, page.Items[1], e.Original)
}

func TestFetchByFilter(t *testing.T) {
	var gotQuery map[string][]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query()
		_, _ = w.Write([]byte(`{"size": 1, "rows": [{"id": "t-1", "externalCode": "X1"}]}`))
	}))
	defer srv.Close()
	a := newTestAdapter(t, srv)

	page, err := a.FetchByFilter(context.Background(), "externalCode", []string{"X1", "X2"}, contracts.Paging{Limit: 50})
	require.NoError(t, err)

	// Repeated query params, one per filter value.
	assert.Equal(t, []string{"X1", "X2"}, gotQuery["externalCode"])
	assert.Equal(t, []string{"50"}, gotQuery["limit"])
	require.Len(t, page.Items, 1)
}

func TestCreateSerializesPayloads(t *testing.T) {
	var gotMethod string
	var gotBody []map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		data, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(data, &gotBody))
		_, _ = w.Write([]byte(`[{"id": "t-new"}]`))
	}))
	defer srv.Close()
	a := newTestAdapter(t, srv)

	moment := time.Date(2024, 5, 2, 10, 30, 0, 0, time.UTC)
	price := decimal.RequireFromString("15.40")
	page, err := a.Create(context.Background(), []*domain.CreatePayload{{
		Kind:         domain.KindOrder,
		SourceID:     "src-1",
		Article:      "A-1",
		ExternalCode: "X-1",
		Status:       "created",
		Moment:       &moment,
		Price:        &price,
		Attributes:   map[string]string{"attr-origin": "src-1"},
	}})
	require.NoError(t, err)

	assert.Equal(t, http.MethodPost, gotMethod)
	require.Len(t, gotBody, 1)
	body := gotBody[0]
	assert.Equal(t, "A-1", body["article"])
	assert.Equal(t, "X-1", body["externalCode"])
	assert.Equal(t, "created", body["status"])
	assert.Equal(t, "2024-05-02T10:30:00Z", body["moment"])
	assert.Equal(t, "15.40", body["price"])
	assert.NotContains(t, body, "shipmentDate")
	assert.NotContains(t, body, "id")

	require.Len(t, page.Items, 1)
	assert.Equal(t, 1, page.Size)
}

func TestUpdateSerializesSparseFields(t *testing.T) {
	var gotMethod string
	var gotBody []map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		data, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(data, &gotBody))
		_, _ = w.Write([]byte(`[{"id": "tgt-1"}]`))
	}))
	defer srv.Close()
	a := newTestAdapter(t, srv)

	status := "delivery"
	_, err := a.Update(context.Background(), []*domain.UpdatePayload{{
		Kind:     domain.KindOrder,
		SourceID: "src-1",
		TargetID: "tgt-1",
		Status:   &status,
	}})
	require.NoError(t, err)

	assert.Equal(t, http.MethodPut, gotMethod)
	require.Len(t, gotBody, 1)
	body := gotBody[0]
	assert.Equal(t, "tgt-1", body["id"])
	assert.Equal(t, "delivery", body["status"])
	assert.NotContains(t, body, "description")
	assert.NotContains(t, body, "price")
}

func TestNonSuccessStatusBecomesRemoteCallError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"errors": [{"code": "3006", "error": "article required", "parameter": "article"}]}`))
	}))
	defer srv.Close()
	a := newTestAdapter(t, srv)

	_, err := a.FetchAll(context.Background(), contracts.Paging{})
	require.Error(t, err)

	var rcErr *domain.RemoteCallError
	require.ErrorAs(t, err, &rcErr)
	assert.Equal(t, http.StatusUnprocessableEntity, rcErr.StatusCode)
	require.Len(t, rcErr.APIErrors, 1)
	assert.Equal(t, "3006", rcErr.APIErrors[0].Code)
	assert.Equal(t, "article required", rcErr.APIErrors[0].Message)
	assert.Equal(t, "article", rcErr.APIErrors[0].Parameter)
	assert.Equal(t, domain.KindAPI, domain.Classify(err))
}

func TestMalformedPage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`not json`))
	}))
	defer srv.Close()
	a := newTestAdapter(t, srv)

	_, err := a.FetchAll(context.Background(), contracts.Paging{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode page")
}
