// Package fetcher provides the retrying JSON HTTP client used by the harvesters.
package fetcher

import "context"

// Client is the interface the harvesters depend on for upstream API calls.
type Client interface {
	// GetJSON performs a GET with query params and decodes the JSON response into out.
	GetJSON(ctx context.Context, url string, params map[string]string, headers map[string]string, out any) error

	// PostJSON performs a POST with a JSON body and decodes the JSON response into out.
	PostJSON(ctx context.Context, url string, body any, headers map[string]string, out any) error
}
