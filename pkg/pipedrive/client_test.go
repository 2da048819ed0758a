package pipedrive

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/reengage-cli/internal/resilience"
)

func fastRetry() Option {
	return WithRetry(resilience.RetryConfig{MaxAttempts: 3, InitialBackoff: time.Millisecond, MaxBackoff: 2 * time.Millisecond})
}

func newTestClient(t *testing.T, h http.HandlerFunc, opts ...Option) Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewClient("pd-token", append([]Option{WithBaseURL(srv.URL), fastRetry()}, opts...)...)
}

func TestListDeals_PaginatesAndFilters(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		assert.Equal(t, "/deals", r.URL.Path)
		assert.Equal(t, "pd-token", r.Header.Get("x-api-token"))
		assert.Equal(t, "85", r.URL.Query().Get("stage_id"))
		assert.Equal(t, "open", r.URL.Query().Get("status"))
		assert.Equal(t, "2", r.URL.Query().Get("limit"))

		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Query().Get("start") {
		case "0":
			_, _ = w.Write([]byte(`{"success":true,"data":[{"id":1},{"id":2}],"additional_data":{"pagination":{"start":0,"limit":2,"more_items_in_collection":true,"next_start":2}}}`))
		case "2":
			_, _ = w.Write([]byte(`{"success":true,"data":[{"id":3}],"additional_data":{"pagination":{"start":2,"limit":2,"more_items_in_collection":false}}}`))
		default:
			t.Errorf("unexpected start %q", r.URL.Query().Get("start"))
		}
	}, WithPageLimit(2))

	deals, err := c.ListDeals(context.Background(), ListDealsParams{StageID: 85, Status: "open"})
	require.NoError(t, err)
	require.Len(t, deals, 3)
	assert.Equal(t, int64(1), deals[0].ID())
	assert.Equal(t, int64(3), deals[2].ID())
	assert.Equal(t, int32(2), calls.Load())
}

func TestListDeals_NullData(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"success":true,"data":null,"additional_data":{"pagination":{"more_items_in_collection":false}}}`))
	})

	deals, err := c.ListDeals(context.Background(), ListDealsParams{StageID: 90, Status: "open"})
	require.NoError(t, err)
	assert.Empty(t, deals)
}

func TestGetDeal(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/deals/42", r.URL.Path)
		_, _ = w.Write([]byte(`{"success":true,"data":{"id":42,"title":"Acme","stage_id":85,"abc123":"7"}}`))
	})

	deal, err := c.GetDeal(context.Background(), 42)
	require.NoError(t, err)
	assert.Equal(t, int64(42), deal.ID())
	assert.Equal(t, "Acme", deal["title"])
	assert.Equal(t, "7", deal["abc123"])
}

func TestUpdateDeal_SendsJSONBody(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		assert.Equal(t, "/deals/7", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "Subject", body["title_key"])
		assert.InDelta(t, 2, body["step_key"], 0.0001)

		_, _ = w.Write([]byte(`{"success":true,"data":{"id":7}}`))
	})

	err := c.UpdateDeal(context.Background(), 7, map[string]any{"title_key": "Subject", "step_key": 2})
	require.NoError(t, err)
}

func TestListNotesAndAddNote(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/notes", r.URL.Path)
		switch r.Method {
		case http.MethodGet:
			assert.Equal(t, "11", r.URL.Query().Get("deal_id"))
			_, _ = w.Write([]byte(`{"success":true,"data":[{"id":1,"deal_id":11,"content":"<p>Ata</p>"}]}`))
		case http.MethodPost:
			var body map[string]any
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.Equal(t, "copiada", body["content"])
			assert.InDelta(t, 12, body["deal_id"], 0.0001)
			_, _ = w.Write([]byte(`{"success":true,"data":{"id":2}}`))
		}
	})

	notes, err := c.ListNotes(context.Background(), 11)
	require.NoError(t, err)
	require.Len(t, notes, 1)
	assert.Equal(t, "<p>Ata</p>", notes[0].Content)

	require.NoError(t, c.AddNote(context.Background(), 12, "copiada"))
}

func TestListDealFields_FlexibleOptionIDs(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/dealFields", r.URL.Path)
		_, _ = w.Write([]byte(`{"success":true,"data":[
			{"id":1,"key":"label","name":"Etiqueta","field_type":"set","options":[{"id":5,"label":"A"},{"id":"6","label":"B"}]},
			{"id":2,"key":"title","name":"Título","field_type":"varchar","options":null}
		]}`))
	})

	fields, err := c.ListDealFields(context.Background())
	require.NoError(t, err)
	require.Len(t, fields, 2)
	require.Len(t, fields[0].Options, 2)
	assert.Equal(t, FlexString("5"), fields[0].Options[0].ID)
	assert.Equal(t, FlexString("6"), fields[0].Options[1].ID)
	assert.Empty(t, fields[1].Options)
}

func TestListStages(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/stages", r.URL.Path)
		_, _ = w.Write([]byte(`{"success":true,"data":[{"id":85,"name":"Retomada 1","pipeline_id":3,"order_nr":1}]}`))
	})

	stages, err := c.ListStages(context.Background())
	require.NoError(t, err)
	require.Len(t, stages, 1)
	assert.Equal(t, "Retomada 1", stages[0].Name)
}

func TestRetriesTransientStatus(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte(`{"success":false,"error":"rate limited"}`))
			return
		}
		_, _ = w.Write([]byte(`{"success":true,"data":{"id":1}}`))
	})

	_, err := c.GetDeal(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, int32(3), calls.Load())
}

func TestDoesNotRetryClientError(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"success":false,"error":"Deal not found"}`))
	})

	_, err := c.GetDeal(context.Background(), 99)
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)
	assert.Contains(t, apiErr.Body, "Deal not found")
}

func TestSuccessFalseIsError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"success":false,"error":"field is read-only"}`))
	})

	err := c.UpdateDeal(context.Background(), 1, map[string]any{"x": 1})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "field is read-only")
}

func TestContextCancellation(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"success":true,"data":{}}`))
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.GetDeal(ctx, 1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "send request")
}

func TestCircuitBreakerRejects(t *testing.T) {
	var calls atomic.Int32
	cb := resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{FailureThreshold: 1, ResetTimeout: time.Hour})
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}, WithCircuitBreaker(cb), WithRetry(resilience.RetryConfig{MaxAttempts: 1}))

	_, err := c.GetDeal(context.Background(), 1)
	require.Error(t, err)
	_, err = c.GetDeal(context.Background(), 1)
	assert.ErrorIs(t, err, resilience.ErrCircuitOpen)
	assert.Equal(t, int32(1), calls.Load())
}

func TestNewClient_Defaults(t *testing.T) {
	t.Parallel()
	c := NewClient("tok", WithRateLimit(4))
	hc := c.(*httpClient)
	assert.Equal(t, "tok", hc.token)
	assert.Equal(t, defaultBaseURL, hc.baseURL)
	assert.Equal(t, defaultPageLimit, hc.pageLimit)
	assert.NotNil(t, hc.limiter)
	assert.Equal(t, 3, hc.retry.MaxAttempts)
}

func TestFlexString(t *testing.T) {
	var v struct {
		A FlexString `json:"a"`
		B FlexString `json:"b"`
		C FlexString `json:"c"`
		D FlexString `json:"d"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"a":12,"b":"34","c":null,"d":1.5}`), &v))
	assert.Equal(t, FlexString("12"), v.A)
	assert.Equal(t, FlexString("34"), v.B)
	assert.Equal(t, FlexString(""), v.C)
	assert.Equal(t, FlexString("1.5"), v.D)
}
