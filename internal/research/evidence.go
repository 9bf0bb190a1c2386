package research

import (
	"bytes"
	"encoding/json"
	"strings"
)

// EvidenceItem is one summarized page.
type EvidenceItem struct {
	URL     string `json:"URL"`
	Summary string `json:"summary"`
}

// Evidence accumulates across rounds in loop order and never shrinks.
// Repeated URLs are kept.
type Evidence []EvidenceItem

// Serialize renders the evidence as 4-space indented JSON. An empty set is
// rendered as [].
func (e Evidence) Serialize() (string, error) {
	if e == nil {
		e = Evidence{}
	}
	return marshalIndent(e)
}

// URLs lists the evidence URLs in order.
func (e Evidence) URLs() []string {
	out := make([]string, len(e))
	for i, item := range e {
		out[i] = item.URL
	}
	return out
}

func marshalIndent(v interface{}) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "    ")
	if err := enc.Encode(v); err != nil {
		return "", err
	}
	return strings.TrimSuffix(buf.String(), "\n"), nil
}
