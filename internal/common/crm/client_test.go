// internal/common/crm/client_test.go
package crm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crm-intake-workers/internal/common/auth"
	"crm-intake-workers/internal/common/errors"
	httpclient "crm-intake-workers/internal/common/http"
)

// ==========================
// Test Helper Functions
// ==========================

const (
	testGatewayToken = "test-token"
	testTokenPath    = "/open-auth/selfAppAuth/base/v1/getAccessToken"
)

// gatewayCall records one request the fake gateway served.
type gatewayCall struct {
	method string
	path   string
	query  url.Values
	body   map[string]interface{}
}

// newTestGateway serves the token endpoint itself and hands every other
// request to respond, recording it in calls.
func newTestGateway(t *testing.T, calls *[]gatewayCall, respond func(call gatewayCall) (int, string)) (*Client, func()) {
	t.Helper()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")

		if r.URL.Path == testTokenPath {
			fmt.Fprintf(w, `{"code":"00000","message":"ok","data":{"access_token":%q,"expire":7200}}`, testGatewayToken)
			return
		}

		call := gatewayCall{
			method: r.Method,
			path:   r.URL.Path,
			query:  r.URL.Query(),
		}
		if raw, err := io.ReadAll(r.Body); err == nil && len(raw) > 0 {
			decoder := json.NewDecoder(bytes.NewReader(raw))
			decoder.UseNumber()
			_ = decoder.Decode(&call.body)
		}
		*calls = append(*calls, call)

		status, body := respond(call)
		w.WriteHeader(status)
		fmt.Fprint(w, body)
	}))

	tokens := auth.NewTokenService(server.URL, "gw-key", "gw-secret", httpclient.NewClient(5*time.Second))
	client := NewClient(server.URL, tokens, httpclient.NewClient(5*time.Second))
	return client, server.Close
}

func successEnvelope(data string) string {
	return `{"code":"00000","message":"成功","data":` + data + `}`
}

// ==========================
// Core Functionality Tests
// ==========================

func TestClient_AttachesAccessToken(t *testing.T) {
	var calls []gatewayCall
	client, closeServer := newTestGateway(t, &calls, func(call gatewayCall) (int, string) {
		return http.StatusOK, successEnvelope(`{}`)
	})
	defer closeServer()

	_, err := client.CustomerDuplicateCheck(context.Background(), map[string]interface{}{"action": "browse"})

	require.NoError(t, err)
	require.Len(t, calls, 1)
	assert.Equal(t, http.MethodPost, calls[0].method)
	assert.Equal(t, pathCustomerDuplicateCheck, calls[0].path)
	assert.Equal(t, testGatewayToken, calls[0].query.Get("access_token"))
	assert.Equal(t, "browse", calls[0].body["action"])
}

func TestClient_PreservesLargeIdentifiers(t *testing.T) {
	var calls []gatewayCall
	client, closeServer := newTestGateway(t, &calls, func(call gatewayCall) (int, string) {
		return http.StatusOK, successEnvelope(`{"id":1587859872035110919}`)
	})
	defer closeServer()

	resp, err := client.CreateOpportunity(context.Background(), map[string]interface{}{})

	require.NoError(t, err)
	data, ok := resp["data"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "1587859872035110919", asString(data["id"]))
}

func TestClient_SuccessCodes(t *testing.T) {
	tests := []struct {
		name     string
		envelope string
		wantErr  bool
	}{
		{"standard code", `{"code":"00000","data":{}}`, false},
		{"numeric 200", `{"code":200,"data":{}}`, false},
		{"string 200", `{"code":"200","data":{}}`, false},
		{"code 200000", `{"code":"200000","data":{}}`, false},
		{"business error", `{"code":"90001","message":"参数错误","data":null}`, true},
		{"numeric error", `{"code":500,"message":"error"}`, true},
		{"missing code", `{"message":"error"}`, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls []gatewayCall
			client, closeServer := newTestGateway(t, &calls, func(call gatewayCall) (int, string) {
				return http.StatusOK, tt.envelope
			})
			defer closeServer()

			_, err := client.SaveTask(context.Background(), map[string]interface{}{})

			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

// ==========================
// Error Handling Tests
// ==========================

func TestClient_HTTPStatusError(t *testing.T) {
	var calls []gatewayCall
	client, closeServer := newTestGateway(t, &calls, func(call gatewayCall) (int, string) {
		return http.StatusServiceUnavailable, "gateway down"
	})
	defer closeServer()

	_, err := client.SubmitCustomerApplication(context.Background(), map[string]interface{}{})

	require.Error(t, err)
	var stdErr *errors.StandardError
	require.ErrorAs(t, err, &stdErr)
	assert.Equal(t, errors.ErrCodeExternalService, stdErr.Code)
	assert.True(t, stdErr.Retryable)
	assert.Contains(t, stdErr.Details, "HTTP 503")
	assert.Contains(t, stdErr.Details, pathCustomerApplicationSave)
}

func TestClient_GatewayErrorKeepsBody(t *testing.T) {
	var calls []gatewayCall
	client, closeServer := newTestGateway(t, &calls, func(call gatewayCall) (int, string) {
		return http.StatusOK, `{"code":"999","message":"該客戶已存在"}`
	})
	defer closeServer()

	_, err := client.SubmitCustomerApplication(context.Background(), map[string]interface{}{})

	require.Error(t, err)
	var stdErr *errors.StandardError
	require.ErrorAs(t, err, &stdErr)
	assert.Equal(t, errors.ErrCodeExternalService, stdErr.Code)
	assert.Contains(t, stdErr.Details, "該客戶已存在")
}

func TestClient_MalformedResponse(t *testing.T) {
	var calls []gatewayCall
	client, closeServer := newTestGateway(t, &calls, func(call gatewayCall) (int, string) {
		return http.StatusOK, "<html>proxy error</html>"
	})
	defer closeServer()

	_, err := client.SaveTask(context.Background(), map[string]interface{}{})

	require.Error(t, err)
	var stdErr *errors.StandardError
	require.ErrorAs(t, err, &stdErr)
	assert.Contains(t, stdErr.Details, "malformed response")
}

func TestClient_UnserializableBody(t *testing.T) {
	var calls []gatewayCall
	client, closeServer := newTestGateway(t, &calls, func(call gatewayCall) (int, string) {
		return http.StatusOK, successEnvelope(`{}`)
	})
	defer closeServer()

	_, err := client.SaveTask(context.Background(), map[string]interface{}{"bad": make(chan int)})

	require.Error(t, err)
	var stdErr *errors.StandardError
	require.ErrorAs(t, err, &stdErr)
	assert.Equal(t, errors.ErrCodeSerialization, stdErr.Code)
	assert.Empty(t, calls)
}

// ==========================
// Endpoint Shape Tests
// ==========================

func TestClient_ListOpportunities_BuildsFilter(t *testing.T) {
	var calls []gatewayCall
	client, closeServer := newTestGateway(t, &calls, func(call gatewayCall) (int, string) {
		return http.StatusOK, successEnvelope(`{"recordList":[]}`)
	})
	defer closeServer()

	filter := &ListFilter{Field: "customer.code", Operator: "eq", Value: "C45636"}
	_, err := client.ListOpportunities(context.Background(), filter, 1, 10)

	require.NoError(t, err)
	require.Len(t, calls, 1)
	assert.Equal(t, pathOpportunityList, calls[0].path)
	assert.Equal(t, json.Number("1"), calls[0].body["pageIndex"])
	assert.Equal(t, json.Number("10"), calls[0].body["pageSize"])

	vos, ok := calls[0].body["simpleVOs"].([]interface{})
	require.True(t, ok)
	require.Len(t, vos, 1)
	vo := vos[0].(map[string]interface{})
	assert.Equal(t, "customer.code", vo["field"])
	assert.Equal(t, "eq", vo["op"])
	assert.Equal(t, "C45636", vo["value1"])
}

func TestClient_GetOpportunityDetail_FallsBackToPost(t *testing.T) {
	var calls []gatewayCall
	client, closeServer := newTestGateway(t, &calls, func(call gatewayCall) (int, string) {
		if call.method == http.MethodGet {
			return http.StatusMethodNotAllowed, "method not allowed"
		}
		return http.StatusOK, successEnvelope(`{"id":"777001"}`)
	})
	defer closeServer()

	resp, err := client.GetOpportunityDetail(context.Background(), "777001")

	require.NoError(t, err)
	require.Len(t, calls, 2)
	assert.Equal(t, http.MethodGet, calls[0].method)
	assert.Equal(t, http.MethodPost, calls[1].method)
	assert.Equal(t, "777001", calls[1].query.Get("id"))
	assert.Equal(t, "777001", calls[1].body["id"])

	data := resp["data"].(map[string]interface{})
	assert.Equal(t, "777001", data["id"])
}

func TestClient_GetCustomerDetail_Params(t *testing.T) {
	var calls []gatewayCall
	client, closeServer := newTestGateway(t, &calls, func(call gatewayCall) (int, string) {
		return http.StatusOK, successEnvelope(`{"id":"42"}`)
	})
	defer closeServer()

	_, err := client.GetCustomerDetail(context.Background(), "42", "2816765183021312")

	require.NoError(t, err)
	require.Len(t, calls, 1)
	assert.Equal(t, http.MethodGet, calls[0].method)
	assert.Equal(t, pathCustomerDetail, calls[0].path)
	assert.Equal(t, "42", calls[0].query.Get("id"))
	assert.Equal(t, "2816765183021312", calls[0].query.Get("orgId"))
}

// ==========================
// Customer Lookup Tests
// ==========================

func TestClient_LookupCustomerByCode(t *testing.T) {
	tests := []struct {
		name      string
		code      string
		pages     []string
		wantID    string
		wantCalls int
	}{
		{
			name: "code filter hit",
			code: "C45636",
			pages: []string{
				`{"recordList":[{"customer":{"code":"C45636","name":"大豐銀行","id":1587859872035110919}}]}`,
			},
			wantID:    "1587859872035110919",
			wantCalls: 1,
		},
		{
			name: "falls back to name search",
			code: "C45636",
			pages: []string{
				`{"recordList":[]}`,
				`{"recordList":[{"customerName":"C45636 大豐銀行","customerId":"999888"}]}`,
			},
			wantID:    "999888",
			wantCalls: 2,
		},
		{
			name: "lowercase input matches",
			code: "c45636",
			pages: []string{
				`{"recordList":[{"customer_name":"C45636 分行","customer_id":777001}]}`,
			},
			wantID:    "777001",
			wantCalls: 1,
		},
		{
			name: "customer as scalar id",
			code: "C45636",
			pages: []string{
				`{"recordList":[{"customerName":"C45636","customer":1655434173036888070}]}`,
			},
			wantID:    "1655434173036888070",
			wantCalls: 1,
		},
		{
			name: "ignores records for other customers",
			code: "C45636",
			pages: []string{
				`{"recordList":[{"customerName":"C99999 別家公司","customerId":"111"}]}`,
				`{"recordList":[{"customerName":"C88888 另一家","customerId":"222"}]}`,
			},
			wantID:    "",
			wantCalls: 2,
		},
		{
			name: "clean miss",
			code: "C45636",
			pages: []string{
				`{"recordList":[]}`,
				`{"recordList":[]}`,
			},
			wantID:    "",
			wantCalls: 2,
		},
		{
			name:      "empty code short-circuits",
			code:      "   ",
			pages:     nil,
			wantID:    "",
			wantCalls: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls []gatewayCall
			client, closeServer := newTestGateway(t, &calls, func(call gatewayCall) (int, string) {
				page := len(calls) - 1
				if page < len(tt.pages) {
					return http.StatusOK, successEnvelope(tt.pages[page])
				}
				return http.StatusOK, successEnvelope(`{"recordList":[]}`)
			})
			defer closeServer()

			id, err := client.LookupCustomerByCode(context.Background(), tt.code)

			assert.NoError(t, err)
			assert.Equal(t, tt.wantID, id)
			assert.Len(t, calls, tt.wantCalls)
		})
	}
}

func TestClient_LookupCustomerByCode_UsesBothFilters(t *testing.T) {
	var calls []gatewayCall
	client, closeServer := newTestGateway(t, &calls, func(call gatewayCall) (int, string) {
		return http.StatusOK, successEnvelope(`{"recordList":[]}`)
	})
	defer closeServer()

	_, err := client.LookupCustomerByCode(context.Background(), "c45636")

	require.NoError(t, err)
	require.Len(t, calls, 2)

	first := calls[0].body["simpleVOs"].([]interface{})[0].(map[string]interface{})
	assert.Equal(t, "customer.code", first["field"])
	assert.Equal(t, "eq", first["op"])
	assert.Equal(t, "C45636", first["value1"])

	second := calls[1].body["simpleVOs"].([]interface{})[0].(map[string]interface{})
	assert.Equal(t, "customer.name", second["field"])
	assert.Equal(t, "like", second["op"])
	assert.Equal(t, "C45636", second["value1"])
}

func TestClient_LookupCustomerByCode_TransportError(t *testing.T) {
	var calls []gatewayCall
	client, closeServer := newTestGateway(t, &calls, func(call gatewayCall) (int, string) {
		return http.StatusBadGateway, "bad gateway"
	})
	defer closeServer()

	id, err := client.LookupCustomerByCode(context.Background(), "C45636")

	assert.Empty(t, id)
	require.Error(t, err)
	var stdErr *errors.StandardError
	require.ErrorAs(t, err, &stdErr)
	assert.Equal(t, errors.ErrCodeExternalService, stdErr.Code)
}
