package service

import (
	"encoding/json"
	"fmt"
	"net/url"

	"github.com/go-playground/validator/v10"

	"github.com/sumire/setlist/internal/domain"
)

var stateValidate = validator.New()

// EncodeState serializes an OauthState for the provider's `state` parameter:
// JSON, then percent-encoding so the value survives the query string.
func EncodeState(st domain.OauthState) (string, error) {
	raw, err := json.Marshal(st)
	if err != nil {
		return "", fmt.Errorf("marshal oauth state: %w", err)
	}
	return url.QueryEscape(string(raw)), nil
}

// DecodeState reverses EncodeState and validates the result. Malformed
// encodings and values outside the accepted lang/provider enumerations fail
// with a plain error; the callback handler decides how to surface it.
func DecodeState(raw string) (domain.OauthState, error) {
	unescaped, err := url.QueryUnescape(raw)
	if err != nil {
		return domain.OauthState{}, fmt.Errorf("unescape oauth state: %w", err)
	}

	var st domain.OauthState
	if err := json.Unmarshal([]byte(unescaped), &st); err != nil {
		return domain.OauthState{}, fmt.Errorf("unmarshal oauth state: %w", err)
	}

	if err := stateValidate.Struct(st); err != nil {
		return domain.OauthState{}, fmt.Errorf("invalid oauth state: %w", err)
	}
	return st, nil
}
