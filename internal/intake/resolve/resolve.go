// internal/intake/resolve/resolve.go

// Package resolve picks identifiers out of the submission context and step
// responses through an ordered resolver chain.
package resolve

import (
	"encoding/json"
	"strconv"

	"crm-intake-workers/internal/common/errors"
	"crm-intake-workers/internal/intake/note"
	"crm-intake-workers/internal/intake/submission"
)

// Resolver is one identifier source. Fn reports the identifier it observed,
// or false when the source has nothing.
type Resolver struct {
	Name string
	Fn   func(sctx *submission.Context, response map[string]interface{}) (string, bool)
}

// Chain evaluates resolvers in order and short-circuits on the first hit.
// A chain holds no per-run state and is safe to share.
type Chain struct {
	identifier string
	resolvers  []Resolver
}

func NewChain(identifier string, resolvers ...Resolver) *Chain {
	return &Chain{identifier: identifier, resolvers: resolvers}
}

// Resolve walks the chain. When every source comes up empty it fails with
// IDENTIFIER_UNRESOLVED, its metadata recording what each source saw so the
// operator can tell which link broke.
func (c *Chain) Resolve(sctx *submission.Context, response map[string]interface{}) (string, error) {
	observed := make(map[string]interface{}, len(c.resolvers))
	for _, r := range c.resolvers {
		value, ok := r.Fn(sctx, response)
		if ok && value != "" {
			return value, nil
		}
		observed[r.Name] = value
	}
	return "", errors.NewIdentifierUnresolvedError(c.identifier, observed)
}

// LookupFunc resolves a customer code to the CRM internal id. False means
// the code matched nothing. Implementations own their timeout behavior.
type LookupFunc func(code string) (string, bool)

// CustomerIDChain is the canonical customer id chain: the submission context
// first, then the id echoed under the response's data.customer, then a
// lookup by customer code. The echoed id ranks below the context because
// production responses have been seen echoing a different customer.
func CustomerIDChain(lookup LookupFunc) *Chain {
	return NewChain(string(note.KeyCustomerID),
		Resolver{
			Name: "context.customerId",
			Fn: func(sctx *submission.Context, _ map[string]interface{}) (string, bool) {
				return sctx.Get(note.KeyCustomerID)
			},
		},
		Resolver{
			Name: "response.data.customer",
			Fn: func(_ *submission.Context, response map[string]interface{}) (string, bool) {
				return ResponseCustomerID(response)
			},
		},
		Resolver{
			Name: "lookup.customerCode",
			Fn: func(sctx *submission.Context, _ map[string]interface{}) (string, bool) {
				if lookup == nil {
					return "", false
				}
				code, ok := sctx.Get(note.KeyCustomerCode)
				if !ok {
					return "", false
				}
				return lookup(code)
			},
		},
	)
}

// ResponseCustomerID digs data.customer out of a response envelope.
func ResponseCustomerID(response map[string]interface{}) (string, bool) {
	data, ok := response["data"].(map[string]interface{})
	if !ok {
		return "", false
	}
	return stringValue(data["customer"])
}

// ApplicationCustomerID digs the created customer's id out of a
// customer-application response. The gateway spells it several ways, both
// at the top of data and nested under newBizObject.
func ApplicationCustomerID(response map[string]interface{}) (string, bool) {
	data, ok := response["data"].(map[string]interface{})
	if !ok {
		return "", false
	}

	sections := []map[string]interface{}{data}
	if nested, ok := data["newBizObject"].(map[string]interface{}); ok {
		sections = append(sections, nested)
	}

	for _, section := range sections {
		if block, ok := section["customer"].(map[string]interface{}); ok {
			if id, ok := stringValue(block["id"]); ok {
				return id, true
			}
		}
		for _, key := range []string{"customerId", "customerID", "custId", "custID"} {
			if id, ok := stringValue(section[key]); ok {
				return id, true
			}
		}
	}
	return "", false
}

// stringValue folds the id shapes the CRM returns onto a string. Numbers
// arrive as json.Number when the client decodes with UseNumber; the float64
// case only covers callers that decoded without it.
func stringValue(v interface{}) (string, bool) {
	switch t := v.(type) {
	case string:
		return t, t != ""
	case json.Number:
		return t.String(), true
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), true
	}
	return "", false
}
