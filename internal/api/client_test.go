package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"finsession/internal/core"
)

type staticToken string

func (s staticToken) Token(context.Context) (string, bool) { return string(s), s != "" }

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	c, err := New(srv.URL+"/api", WithTokenSource(staticToken("tok-123")))
	require.NoError(t, err)
	return c
}

func writeJSON(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(body))
}

func TestRequestHeaders(t *testing.T) {
	var gotAuth, gotID, gotPath string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotID = r.Header.Get(HeaderRequestID)
		gotPath = r.URL.Path
		writeJSON(w, http.StatusOK, `{"statusCode":200,"result":[]}`)
	})

	_, err := c.ListAccounts(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Bearer tok-123", gotAuth)
	assert.NotEmpty(t, gotID)
	assert.Equal(t, "/api/accounts", gotPath)
}

func TestEnvelopePayload(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		want    core.Money
		wantErr bool
	}{
		{"result", `{"result":{"netBalance":10}}`, core.Money{Cents: 1000}, false},
		{"data", `{"data":{"netBalance":20}}`, core.Money{Cents: 2000}, false},
		{"result wins over data", `{"result":{"netBalance":1},"data":{"netBalance":2}}`, core.Money{Cents: 100}, false},
		{"null result falls back to data", `{"result":null,"data":{"netBalance":3}}`, core.Money{Cents: 300}, false},
		{"neither", `{"statusCode":200,"message":"ok"}`, core.Money{}, true},
		{"not json", `<html>`, core.Money{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				writeJSON(w, http.StatusOK, tt.body)
			})
			got, err := c.AccountSummary(context.Background())
			if tt.wantErr {
				var perr *ParseError
				require.ErrorAs(t, err, &perr)
				assert.Equal(t, "accounts", perr.Resource)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.NetBalance)
		})
	}
}

func TestListCategoriesShapes(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		want    int
		wantErr bool
	}{
		{"array", `{"data":[{"id":"c1","name":"Food"},{"id":"c2","name":"Rent"}]}`, 2, false},
		{"wrapped", `{"data":{"categories":[{"id":"c1","name":"Food"}]}}`, 1, false},
		{"empty array", `{"result":[]}`, 0, false},
		{"object without categories", `{"data":{"items":[]}}`, 0, true},
		{"scalar", `{"data":"nope"}`, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				writeJSON(w, http.StatusOK, tt.body)
			})
			got, err := c.ListCategories(context.Background())
			if tt.wantErr {
				var perr *ParseError
				assert.ErrorAs(t, err, &perr)
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, got)
			assert.Len(t, got, tt.want)
		})
	}
}

func TestErrorNormalization(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantMsg string
	}{
		{"message from body", http.StatusBadRequest, `{"statusCode":400,"message":"Amount too large"}`, "Amount too large"},
		{"status text fallback", http.StatusBadGateway, `upstream down`, "Bad Gateway"},
		{"unauthorized", http.StatusUnauthorized, `{"message":"Token expired"}`, "Token expired"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				writeJSON(w, tt.status, tt.body)
			})
			_, err := c.ListBudgets(context.Background())
			var apiErr *Error
			require.ErrorAs(t, err, &apiErr)
			assert.Equal(t, tt.status, apiErr.StatusCode)
			assert.Equal(t, tt.wantMsg, apiErr.Message)
			assert.Equal(t, tt.wantMsg, Message(err))
			assert.Equal(t, tt.status == http.StatusUnauthorized, IsUnauthorized(err))
		})
	}
}

func TestTransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := srv.URL
	srv.Close()

	c, err := New(url)
	require.NoError(t, err)
	_, err = c.ListAccounts(context.Background())
	var apiErr *Error
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, 0, apiErr.StatusCode)
	assert.NotEmpty(t, apiErr.Message)
}

func TestCancelledContext(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, `{"result":[]}`)
	})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.ListAccounts(ctx)
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestValidationFailureSendsNothing(t *testing.T) {
	var hits atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		writeJSON(w, http.StatusCreated, `{"result":{}}`)
	})

	_, err := c.CreateTransaction(context.Background(), core.TransactionInput{AccountID: "a1"})
	var verr *core.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Fields, "amount")
	assert.Zero(t, hits.Load())
}

func TestCreateSendsBody(t *testing.T) {
	var got map[string]any
	var method string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		method = r.Method
		_ = json.NewDecoder(r.Body).Decode(&got)
		writeJSON(w, http.StatusCreated, `{"result":{"id":"cat-9","name":"Pets","type":"expense"}}`)
	})

	cat, err := c.CreateCategory(context.Background(), core.CategoryInput{Name: "Pets", Type: core.Expense, Color: "#ff8800"})
	require.NoError(t, err)
	assert.Equal(t, http.MethodPost, method)
	assert.Equal(t, "Pets", got["name"])
	assert.Equal(t, "cat-9", cat.ID)
}

func TestUpdateAndDelete(t *testing.T) {
	var method, path string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		method, path = r.Method, r.URL.Path
		w.WriteHeader(http.StatusNoContent)
	})

	require.NoError(t, c.DeleteBudget(context.Background(), "b-7"))
	assert.Equal(t, http.MethodDelete, method)
	assert.Equal(t, "/api/budgets/b-7", path)

	assert.ErrorIs(t, c.DeleteAccount(context.Background(), ""), ErrMissingID)
	_, err := c.UpdateTransfer(context.Background(), "", core.TransferInput{})
	assert.ErrorIs(t, err, ErrMissingID)
}

func TestListTransactionsQuery(t *testing.T) {
	var query map[string]string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		query = map[string]string{}
		for k := range r.URL.Query() {
			query[k] = r.URL.Query().Get(k)
		}
		writeJSON(w, http.StatusOK, `{"result":[]}`)
	})

	r := core.MonthRange(time.Date(2026, 2, 10, 0, 0, 0, 0, time.UTC))
	_, err := c.ListTransactions(context.Background(), r, core.Expense)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"startDate": "2026-02-01", "endDate": "2026-02-28", "type": "expense"}, query)

	_, err = c.ListTransactions(context.Background(), core.DateRange{}, "")
	assert.ErrorIs(t, err, ErrInvalidArgs)
}

func TestPeriodQuery(t *testing.T) {
	at := time.Date(2026, 10, 15, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		period core.Period
		want   map[string]string
	}{
		{core.Daily, map[string]string{"period": "daily", "date": "2026-10-15"}},
		{core.Monthly, map[string]string{"period": "monthly", "year": "2026", "month": "10"}},
		{core.Yearly, map[string]string{"period": "yearly", "year": "2026"}},
	}
	for _, tt := range tests {
		t.Run(string(tt.period), func(t *testing.T) {
			q, err := periodQuery(tt.period, at)
			require.NoError(t, err)
			got := map[string]string{}
			for k := range q {
				got[k] = q.Get(k)
			}
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := periodQuery("weekly", at)
	assert.ErrorIs(t, err, ErrInvalidArgs)
	_, err = periodQuery(core.Monthly, time.Time{})
	assert.ErrorIs(t, err, ErrInvalidArgs)
}

func TestNewRejectsRelativeURL(t *testing.T) {
	_, err := New("/api")
	assert.Error(t, err)
}
