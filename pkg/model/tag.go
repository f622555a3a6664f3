package model

// ParsedTag is a single tool invocation recovered from model output
type ParsedTag struct {
	Name       string            `json:"name"`
	Attributes map[string]string `json:"attributes"`
	Content    string            `json:"content"`
}

// Attr returns the attribute value and whether it was present
func (t ParsedTag) Attr(key string) (string, bool) {
	v, ok := t.Attributes[key]
	return v, ok
}

// AgentOutput is the structured form of one model reply. Tags are kept in
// document order; that order is the dispatch order.
type AgentOutput struct {
	Tags []ParsedTag `json:"tags"`

	// Response is nil when the reply carried no response block
	Response *string `json:"response,omitempty"`

	// ResponseChannel is the optional channel attribute of the response block
	ResponseChannel string `json:"response_channel,omitempty"`
}
