// Package websearch implements search.Provider over keyed search APIs.
package websearch

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/FranksOps/leadgen/internal/retry"
	"github.com/FranksOps/leadgen/internal/search"
	"github.com/FranksOps/leadgen/pkg/httpclient"
)

// Kind selects a keyed search API.
type Kind string

const (
	SerperKind Kind = "serper"
	BraveKind  Kind = "brave"
)

var ErrUnsupportedProvider = errors.New("unsupported search provider")

// New builds the provider for kind. A nil client gets a default httpclient.
func New(kind Kind, apiKey string, client *httpclient.Client) (search.Provider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("%s: api key is required", kind)
	}
	if client == nil {
		var err error
		if client, err = httpclient.New(httpclient.Config{}); err != nil {
			return nil, err
		}
	}
	switch kind {
	case SerperKind:
		return &Serper{APIKey: apiKey, Client: client}, nil
	case BraveKind:
		return &Brave{APIKey: apiKey, Client: client}, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedProvider, kind)
	}
}

func classifyErr(err error) error {
	var se *httpclient.StatusError
	if errors.As(err, &se) {
		if se.Temporary() {
			return retry.Transient(err)
		}
		return err
	}
	if retry.IsTransient(err) {
		return retry.Transient(err)
	}
	return err
}

// decodeEach unmarshals every item into a T. Items that do not fit T are
// dropped so one bad entry does not cost the whole page.
func decodeEach[T any](items []json.RawMessage) []T {
	out := make([]T, 0, len(items))
	for _, raw := range items {
		var v T
		if err := json.Unmarshal(raw, &v); err != nil {
			continue
		}
		out = append(out, v)
	}
	return out
}
