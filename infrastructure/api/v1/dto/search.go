// Package dto holds request and response bodies of the v1 API.
package dto

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrInvalidQuery indicates a search query that is neither text nor a vector.
var ErrInvalidQuery = errors.New("query must be a string or an array of numbers")

// SearchRequest is the body of POST /api/v1/tables/{name}/search.
type SearchRequest struct {
	Query  json.RawMessage `json:"query"`
	Column string          `json:"column,omitempty"`
	Limit  int             `json:"limit,omitempty"`
	Metric string          `json:"metric,omitempty"`
	Select []string        `json:"select,omitempty"`
}

// QueryValue decodes the query as a string, or as a vector when it is a
// JSON array.
func (r SearchRequest) QueryValue() (any, error) {
	raw := bytes.TrimSpace(r.Query)
	if len(raw) == 0 {
		return nil, ErrInvalidQuery
	}
	switch raw[0] {
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidQuery, err)
		}
		return s, nil
	case '[':
		var v []float64
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidQuery, err)
		}
		return v, nil
	default:
		return nil, ErrInvalidQuery
	}
}
