package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rpattn/restfilter/internal/domain"
	"github.com/rpattn/restfilter/internal/schema"
	"github.com/rpattn/restfilter/internal/service"
	"github.com/rpattn/restfilter/internal/store"
	"github.com/rpattn/restfilter/internal/store/memory"
)

var (
	customers = domain.EntitySchema{
		Name:  "customers",
		Table: "customers",
		Columns: []domain.Column{
			{Name: "id", Type: domain.ColumnTypeNumeric},
			{Name: "name", Type: domain.ColumnTypeText},
			{Name: "tier", Type: domain.ColumnTypeNumeric},
		},
		Fillable: []string{"name", "tier"},
		Relations: []domain.Relation{
			{Name: "orders", Target: "orders", Cardinality: domain.CardinalityHasMany, ForeignKey: "customer_id"},
		},
	}
	orders = domain.EntitySchema{
		Name:  "orders",
		Table: "orders",
		Columns: []domain.Column{
			{Name: "id", Type: domain.ColumnTypeNumeric},
			{Name: "customer_id", Type: domain.ColumnTypeNumeric},
			{Name: "total", Type: domain.ColumnTypeDecimal},
		},
		Fillable: []string{"customer_id", "total"},
	}
)

func newServer(t *testing.T, st store.Store) *httptest.Server {
	t.Helper()
	registry := schema.NewRegistry().MustRegister(customers, orders)
	if st == nil {
		st = memory.New(registry, nil)
	}
	svc := service.New(registry, st)

	ctx := context.Background()
	for i, name := range []string{"Acme", "Globex", "Initech"} {
		_, err := svc.Create(ctx, "customers", domain.Record{"name": name, "tier": i + 1})
		require.NoError(t, err)
	}
	_, err := svc.Create(ctx, "orders", domain.Record{"customer_id": 1, "total": 99.5})
	require.NoError(t, err)

	srv := httptest.NewServer(NewHTTPHandler(svc))
	t.Cleanup(srv.Close)
	return srv
}

func do(t *testing.T, method, url, body string) (*http.Response, map[string]any) {
	t.Helper()
	req, err := http.NewRequest(method, url, strings.NewReader(body))
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var decoded map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&decoded))
	return resp, decoded
}

func TestHandler_Index(t *testing.T) {
	srv := newServer(t, nil)

	resp, body := do(t, http.MethodGet, srv.URL+"/api/customers?tier[]=1&tier[]=3&orderByDesc=id", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
	assert.EqualValues(t, 2, body["count"])
	assert.Nil(t, body["per_page"])

	data := body["data"].([]any)
	require.Len(t, data, 2)
	assert.Equal(t, "Initech", data[0].(map[string]any)["name"])
}

func TestHandler_IndexPaginated(t *testing.T) {
	srv := newServer(t, nil)

	resp, body := do(t, http.MethodGet, srv.URL+"/api/customers?limit=2&page=2", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.EqualValues(t, 3, body["count"])
	assert.EqualValues(t, 1, body["filter"])
	assert.EqualValues(t, 2, body["per_page"])
	assert.EqualValues(t, 1, body["page"])
	assert.EqualValues(t, 2, body["pages"])
}

func TestHandler_Show(t *testing.T) {
	srv := newServer(t, nil)

	resp, body := do(t, http.MethodGet, srv.URL+"/api/customers/1?with=orders", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Acme", body["name"])
	assert.Len(t, body["orders"], 1)

	resp, body = do(t, http.MethodGet, srv.URL+"/api/customers/42", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, domain.ErrNotFound.Error(), body["message"])
}

func TestHandler_Writes(t *testing.T) {
	srv := newServer(t, nil)

	resp, body := do(t, http.MethodPost, srv.URL+"/api/customers", `{"name":"Umbrella","tier":2}`)
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, "record created", body["message"])

	resp, body = do(t, http.MethodPut, srv.URL+"/api/customers/4", `{"name":"Umbrella Corp"}`)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "record updated", body["message"])

	_, body = do(t, http.MethodGet, srv.URL+"/api/customers/4", "")
	assert.Equal(t, "Umbrella Corp", body["name"])

	resp, _ = do(t, http.MethodDelete, srv.URL+"/api/customers/4", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = do(t, http.MethodPut, srv.URL+"/api/customers/4", `{"name":"x"}`)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, _ = do(t, http.MethodDelete, srv.URL+"/api/customers/4", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestHandler_InvalidPayload(t *testing.T) {
	srv := newServer(t, nil)

	resp, body := do(t, http.MethodPost, srv.URL+"/api/customers", `{"name":`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, body["message"], "invalid payload")
}

func TestHandler_UnknownEntity(t *testing.T) {
	srv := newServer(t, nil)

	resp, body := do(t, http.MethodGet, srv.URL+"/api/unicorns", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Contains(t, body["message"], "unknown entity")
}

type failingStore struct {
	store.Store
	err error
}

func (f failingStore) Insert(ctx context.Context, entity domain.EntitySchema, data domain.Record) (domain.Record, error) {
	if entity.Name == "orders" && data["total"] == "13" {
		return nil, f.err
	}
	return f.Store.Insert(ctx, entity, data)
}

func TestHandler_StoreFailureIs500(t *testing.T) {
	registry := schema.NewRegistry().MustRegister(customers, orders)
	st := failingStore{Store: memory.New(registry, nil), err: errors.New("connection reset")}
	srv := newServer(t, st)

	resp, body := do(t, http.MethodPost, srv.URL+"/api/orders", `{"customer_id":1,"total":13}`)
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Contains(t, body["message"], "connection reset")
}
