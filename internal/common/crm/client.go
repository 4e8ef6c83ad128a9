// internal/common/crm/client.go

// Package crm talks to the CRM gateway: a thin JSON client over the gateway
// envelope plus the backend service the submission pipeline drives.
package crm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"crm-intake-workers/internal/common/auth"
	"crm-intake-workers/internal/common/errors"
	httpclient "crm-intake-workers/internal/common/http"
)

// Gateway endpoint paths.
const (
	pathCustomerDuplicateCheck   = "/yonbip/crm/bill/custcheckrepeat"
	pathCustomerApplicationSave  = "/yonbip/crm/custaddapply/save"
	pathCustomerApplicationAudit = "/yonbip/crm/customeraddapply/audit"
	pathCustomerDetail           = "/yonbip/crm/customer/getbyid"
	pathOpportunityCreate        = "/yonbip/crm/bill/opptsave"
	pathOpportunityList          = "/yonbip/crm/oppt/bill/list"
	pathOpportunityDetail        = "/yonbip/crm/oppt/getbyid"
	pathTaskSave                 = "/yonbip/crm/task/save"
)

// Client is the CRM gateway HTTP client. Every request carries an
// access_token query parameter from the token service, and every response is
// a {code, message, data} envelope.
type Client struct {
	gatewayURL string
	tokens     *auth.TokenService
	httpClient *httpclient.Client
}

// ListFilter narrows a list endpoint with one simpleVO condition.
type ListFilter struct {
	Field    string
	Operator string
	Value    string
}

// NewClient creates a gateway client.
func NewClient(gatewayURL string, tokens *auth.TokenService, httpClient *httpclient.Client) *Client {
	return &Client{
		gatewayURL: strings.TrimSuffix(gatewayURL, "/"),
		tokens:     tokens,
		httpClient: httpClient,
	}
}

// do executes one gateway call and returns the decoded envelope. Identifier
// fields survive as json.Number so 64-bit CRM ids never lose precision.
func (c *Client) do(ctx context.Context, method, path string, params url.Values, body interface{}) (map[string]interface{}, error) {
	token, err := c.tokens.Token(ctx)
	if err != nil {
		return nil, err
	}

	query := url.Values{}
	query.Set("access_token", token)
	for key, values := range params {
		for _, value := range values {
			query.Add(key, value)
		}
	}

	var reader io.Reader
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return nil, errors.NewSerializationError("gateway request body", err)
		}
		reader = bytes.NewReader(jsonData)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.gatewayURL+path+"?"+query.Encode(), reader)
	if err != nil {
		return nil, errors.NewExternalServiceError("crm-gateway", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errors.NewExternalServiceError("crm-gateway", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.NewExternalServiceError("crm-gateway", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, errors.NewExternalServiceError("crm-gateway",
			fmt.Errorf("HTTP %d calling %s: %s", resp.StatusCode, path, string(respBody)))
	}

	decoder := json.NewDecoder(bytes.NewReader(respBody))
	decoder.UseNumber()
	var envelope map[string]interface{}
	if err := decoder.Decode(&envelope); err != nil {
		return nil, errors.NewExternalServiceError("crm-gateway",
			fmt.Errorf("malformed response from %s: %s", path, string(respBody)))
	}

	if !isSuccessCode(envelope["code"]) {
		return nil, errors.NewExternalServiceError("crm-gateway",
			fmt.Errorf("gateway error calling %s: %s", path, string(respBody)))
	}

	return envelope, nil
}

// isSuccessCode accepts the gateway's success code spellings.
func isSuccessCode(code interface{}) bool {
	switch asString(code) {
	case "00000", "200", "200000":
		return true
	default:
		return false
	}
}

// CustomerDuplicateCheck runs the customer duplicate-check rule.
func (c *Client) CustomerDuplicateCheck(ctx context.Context, body map[string]interface{}) (map[string]interface{}, error) {
	return c.do(ctx, http.MethodPost, pathCustomerDuplicateCheck, nil, body)
}

// SubmitCustomerApplication submits a customer-add application.
func (c *Client) SubmitCustomerApplication(ctx context.Context, body map[string]interface{}) (map[string]interface{}, error) {
	return c.do(ctx, http.MethodPost, pathCustomerApplicationSave, nil, body)
}

// AuditCustomerApplication approves a submitted customer-add application.
func (c *Client) AuditCustomerApplication(ctx context.Context, body map[string]interface{}) (map[string]interface{}, error) {
	return c.do(ctx, http.MethodPost, pathCustomerApplicationAudit, nil, body)
}

// CreateOpportunity creates a sales opportunity.
func (c *Client) CreateOpportunity(ctx context.Context, body map[string]interface{}) (map[string]interface{}, error) {
	return c.do(ctx, http.MethodPost, pathOpportunityCreate, nil, body)
}

// ListOpportunities pages the opportunity list, optionally filtered.
func (c *Client) ListOpportunities(ctx context.Context, filter *ListFilter, page, pageSize int) (map[string]interface{}, error) {
	body := map[string]interface{}{
		"pageIndex": page,
		"pageSize":  pageSize,
	}
	if filter != nil {
		body["simpleVOs"] = []map[string]interface{}{
			{
				"field":  filter.Field,
				"op":     filter.Operator,
				"value1": filter.Value,
			},
		}
	}
	return c.do(ctx, http.MethodPost, pathOpportunityList, nil, body)
}

// GetOpportunityDetail fetches one opportunity. Some gateway deployments
// serve the detail endpoint as GET, others as POST; fall back accordingly.
func (c *Client) GetOpportunityDetail(ctx context.Context, opportunityID string) (map[string]interface{}, error) {
	params := url.Values{}
	params.Set("id", opportunityID)

	resp, err := c.do(ctx, http.MethodGet, pathOpportunityDetail, params, nil)
	if err == nil {
		return resp, nil
	}
	if ctx.Err() != nil {
		return nil, err
	}
	return c.do(ctx, http.MethodPost, pathOpportunityDetail, params, map[string]interface{}{"id": opportunityID})
}

// SaveTask creates one follow-up task.
func (c *Client) SaveTask(ctx context.Context, body map[string]interface{}) (map[string]interface{}, error) {
	return c.do(ctx, http.MethodPost, pathTaskSave, nil, body)
}

// GetCustomerDetail fetches one customer record.
func (c *Client) GetCustomerDetail(ctx context.Context, customerID, orgID string) (map[string]interface{}, error) {
	params := url.Values{}
	params.Set("id", customerID)
	if orgID != "" {
		params.Set("orgId", orgID)
	}
	return c.do(ctx, http.MethodGet, pathCustomerDetail, params, nil)
}

// LookupCustomerByCode searches the opportunity list for a record belonging
// to the customer code and returns that customer's identifier. A clean miss
// returns empty without error; only transport failures error.
func (c *Client) LookupCustomerByCode(ctx context.Context, customerCode string) (string, error) {
	code := strings.ToUpper(strings.TrimSpace(customerCode))
	if code == "" {
		return "", nil
	}

	attempts := []ListFilter{
		{Field: "customer.code", Operator: "eq", Value: code},
		{Field: "customer.name", Operator: "like", Value: code},
	}

	var lastErr error
	for i := range attempts {
		resp, err := c.ListOpportunities(ctx, &attempts[i], 1, 10)
		if err != nil {
			if ctx.Err() != nil {
				return "", err
			}
			lastErr = err
			continue
		}
		if id := customerIDFromRecords(recordList(resp), code); id != "" {
			return id, nil
		}
	}

	return "", lastErr
}

// recordList digs data.recordList out of a list envelope.
func recordList(envelope map[string]interface{}) []map[string]interface{} {
	data, ok := envelope["data"].(map[string]interface{})
	if !ok {
		return nil
	}
	raw, ok := data["recordList"].([]interface{})
	if !ok {
		return nil
	}
	records := make([]map[string]interface{}, 0, len(raw))
	for _, entry := range raw {
		if record, ok := entry.(map[string]interface{}); ok {
			records = append(records, record)
		}
	}
	return records
}

// customerIDFromRecords returns the customer id of the first record that
// actually mentions the code, so a "like" search never picks a stranger.
func customerIDFromRecords(records []map[string]interface{}, codeUpper string) string {
	for _, record := range records {
		if !recordMatchesCode(record, codeUpper) {
			continue
		}
		if id := recordCustomerID(record); id != "" {
			return id
		}
	}
	return ""
}

func recordMatchesCode(record map[string]interface{}, codeUpper string) bool {
	candidates := []interface{}{
		record["customerCode"],
		record["customer_code"],
		record["customerName"],
		record["customer_name"],
		record["name"],
	}
	if block, ok := record["customer"].(map[string]interface{}); ok {
		candidates = append(candidates, block["code"], block["name"])
	}
	for _, candidate := range candidates {
		if text, ok := candidate.(string); ok && strings.Contains(strings.ToUpper(text), codeUpper) {
			return true
		}
	}
	return false
}

func recordCustomerID(record map[string]interface{}) string {
	for _, key := range []string{"customer", "customerId", "customer_id", "customerID"} {
		if id := asString(record[key]); id != "" {
			return id
		}
	}
	if block, ok := record["customer"].(map[string]interface{}); ok {
		return asString(block["id"])
	}
	return ""
}

// asString renders scalar envelope values; json.Number keeps full precision.
func asString(value interface{}) string {
	switch v := value.(type) {
	case string:
		return v
	case json.Number:
		return v.String()
	case float64:
		return fmt.Sprintf("%.0f", v)
	case int:
		return fmt.Sprintf("%d", v)
	default:
		return ""
	}
}
