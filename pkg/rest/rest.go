// Package rest has the JSON envelope helpers shared by HTTP handlers.
package rest

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
)

const maxBodyBytes = 1 << 20

var ErrEmptyBody = errors.New("request body is empty")

type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	State   any    `json:"state,omitempty"`
}

type Envelope struct {
	Data  any        `json:"data,omitempty"`
	Error *ErrorBody `json:"error,omitempty"`
}

// ReadJSON decodes a size-limited request body into v.
func ReadJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return ErrEmptyBody
		}
		return fmt.Errorf("failed to decode request body: %w", err)
	}
	return nil
}

func WriteJSON(w http.ResponseWriter, status int, v any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(v)
}

func WriteData(w http.ResponseWriter, status int, data any) error {
	return WriteJSON(w, status, Envelope{Data: data})
}

func WriteError(w http.ResponseWriter, status int, body ErrorBody) error {
	return WriteJSON(w, status, Envelope{Error: &body})
}
