package matching

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// ErrMalformedResponse marks oracle output that does not have the expected shape.
var ErrMalformedResponse = errors.New("malformed oracle response")

const responseSchemaJSON = `{
  "type": "object",
  "required": ["similar_ticket_ids"],
  "properties": {
    "similar_ticket_ids": {
      "type": "array",
      "items": {"type": "integer"}
    }
  }
}`

var responseSchema = mustSchema(responseSchemaJSON)

func mustSchema(doc string) *gojsonschema.Schema {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(doc))
	if err != nil {
		panic(fmt.Sprintf("matching: invalid response schema: %v", err))
	}
	return schema
}

type rankResponse struct {
	SimilarTicketIDs []json.Number `json:"similar_ticket_ids"`
}

// ParseResponse validates raw oracle content and returns the identifiers in
// the order given. An empty list is a valid answer.
func ParseResponse(content string) ([]int64, error) {
	doc := []byte(stripFence(content))
	if len(doc) == 0 {
		return nil, fmt.Errorf("%w: empty content", ErrMalformedResponse)
	}

	res, err := responseSchema.Validate(gojsonschema.NewBytesLoader(doc))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if !res.Valid() {
		var msgs []string
		for i, e := range res.Errors() {
			if i >= 5 {
				break
			}
			msgs = append(msgs, e.String())
		}
		return nil, fmt.Errorf("%w: %s", ErrMalformedResponse, strings.Join(msgs, "; "))
	}

	dec := json.NewDecoder(bytes.NewReader(doc))
	dec.UseNumber()
	var parsed rankResponse
	if err := dec.Decode(&parsed); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}

	ids := make([]int64, 0, len(parsed.SimilarTicketIDs))
	for _, n := range parsed.SimilarTicketIDs {
		id, err := toInt64(n)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// toInt64 accepts integral numbers written with a fractional part, e.g. 3.0.
func toInt64(n json.Number) (int64, error) {
	if id, err := n.Int64(); err == nil {
		return id, nil
	}
	f, err := n.Float64()
	if err != nil || f != math.Trunc(f) || f >= math.MaxInt64 || f < math.MinInt64 {
		return 0, fmt.Errorf("identifier %q is not an integer", n.String())
	}
	return int64(f), nil
}

func stripFence(content string) string {
	s := strings.TrimSpace(content)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimPrefix(s, "json")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
