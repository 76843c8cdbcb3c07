package types

// Event is a structured record of a state change emitted by the engine. The
// attribute map holds stringified payload fields so downstream consumers do
// not need to understand engine internals.
type Event struct {
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes"`
}
