package transmit

import "strings"

// Endpoint is one remote delivery target. The set of endpoints is fixed for
// the engine's lifetime.
type Endpoint struct {
	URL     string
	Headers map[string]string
}

// Key is the watermark-store identity of the endpoint. Case differences in
// the address map to the same delivery target.
func (e Endpoint) Key() string {
	return strings.ToLower(e.URL)
}

func (e Endpoint) String() string {
	return e.URL
}
