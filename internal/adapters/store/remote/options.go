package remote

import "net/http"

// Option applies a configuration option to the Store.
type Option func(*Store)

// WithHTTPClient replaces the underlying HTTP client. Tests point this at
// an httptest server's client.
func WithHTTPClient(client *http.Client) Option {
	return func(s *Store) {
		if client != nil {
			s.client = client
		}
	}
}
