// Package llm provides the typed representations of Ollama inference API
// requests and responses exchanged by the client, the proxy and the CLI.
package llm

// ErrorResponse is the body the Ollama API sends when a request fails, both as
// a whole (non-2xx) response and as an in-band record in a stream.
type ErrorResponse struct {
	Error string `json:"error"`
}
