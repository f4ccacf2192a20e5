package llmcache

import "encoding/json"

// Envelope is what every call site returns to its client, whichever path
// produced the result.
type Envelope struct {
	Result json.RawMessage `json:"result"`
	Cached bool            `json:"cached"`
}

func hit(result json.RawMessage) Envelope {
	return Envelope{Result: result, Cached: true}
}

func fresh(result json.RawMessage) Envelope {
	return Envelope{Result: result, Cached: false}
}
