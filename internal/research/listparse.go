package research

import (
	"encoding/json"
	"errors"
	"fmt"

	"deepsearch-workers/internal/common/validation"
)

var ErrParse = errors.New("RESEARCH_PARSE_FAILED")

type ListKind int

const (
	ParsedList ListKind = iota
	NotAList
)

// ListResult is the outcome of NormalizeList. Err is set when Kind is
// NotAList.
type ListResult struct {
	Kind  ListKind
	Items []string
	Err   error
}

// NormalizeList recovers a JSON array of strings from a model reply. The only
// corrections attempted are adding a leading "[" when the reply does not
// start with one and a trailing "]" when it does not end with one. Nothing is
// trimmed. Anything that is still not an array of strings is NotAList.
func NormalizeList(reply string) ListResult {
	if reply == "" {
		return ListResult{Kind: NotAList, Err: fmt.Errorf("%w: empty reply", ErrParse)}
	}

	text := reply
	if text[0] != '[' {
		text = "[" + text
	}
	if text[len(text)-1] != ']' {
		text = text + "]"
	}

	items, err := parseStringList(text)
	if err != nil {
		return ListResult{Kind: NotAList, Err: err}
	}
	return ListResult{Kind: ParsedList, Items: items}
}

// ParseURLList parses a URL selection reply, which must already be a JSON
// array of strings.
func ParseURLList(reply string) ([]string, error) {
	return parseStringList(reply)
}

func parseStringList(text string) ([]string, error) {
	result, err := validation.ValidateJSON(validation.StringListSchema, []byte(text))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParse, err)
	}
	if !result.Valid {
		return nil, fmt.Errorf("%w: %s", ErrParse, result.Error())
	}

	var items []string
	if err := json.Unmarshal([]byte(text), &items); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParse, err)
	}
	if items == nil {
		items = []string{}
	}
	return items, nil
}
