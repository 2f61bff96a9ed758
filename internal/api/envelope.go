package api

import (
	"bytes"
	"encoding/json"
	"errors"

	"finsession/internal/core"
)

var (
	errNoPayload      = errors.New("envelope has neither result nor data")
	errCategoriesForm = errors.New("categories payload is neither a list nor an object with categories")
)

// envelope is the wrapper every API response uses. The payload is result
// when present, otherwise data.
type envelope struct {
	StatusCode int             `json:"statusCode"`
	Message    string          `json:"message"`
	Result     json.RawMessage `json:"result"`
	Data       json.RawMessage `json:"data"`
}

func present(raw json.RawMessage) bool {
	return len(raw) > 0 && !bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}

func (e envelope) payload() (json.RawMessage, error) {
	switch {
	case present(e.Result):
		return e.Result, nil
	case present(e.Data):
		return e.Data, nil
	default:
		return nil, errNoPayload
	}
}

func unwrap(body []byte) (json.RawMessage, error) {
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, err
	}
	return env.payload()
}

// errorMessage pulls the message from an error body, if it has one.
func errorMessage(body []byte) string {
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return ""
	}
	return env.Message
}

// categoryList accepts the two shapes the categories endpoint returns: a
// bare array or an object holding the array under "categories".
type categoryList []core.Category

func (l *categoryList) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 {
		return errCategoriesForm
	}
	switch b[0] {
	case '[':
		var items []core.Category
		if err := json.Unmarshal(b, &items); err != nil {
			return err
		}
		*l = items
		return nil
	case '{':
		var wrapped struct {
			Categories *[]core.Category `json:"categories"`
		}
		if err := json.Unmarshal(b, &wrapped); err != nil {
			return err
		}
		if wrapped.Categories == nil {
			return errCategoriesForm
		}
		*l = *wrapped.Categories
		return nil
	default:
		return errCategoriesForm
	}
}
