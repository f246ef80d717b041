package httpclient

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	apperrors "github.com/utafrali/showcase-search/pkg/errors"
)

// envelope matches the {"error": {"code", "message"}} body written by
// httputil.WriteError on the other side.
type envelope struct {
	Error *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// ParseResponseError consumes and closes a non-2xx response body and turns
// it into an error. Structured bodies keep their code and message.
func ParseResponseError(resp *http.Response, service string) error {
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("%s returned status %d (read body: %w)", service, resp.StatusCode, err)
	}

	var env envelope
	if json.Unmarshal(body, &env) == nil && env.Error != nil {
		return mapStatus(resp.StatusCode, env.Error.Code, env.Error.Message, service)
	}
	return fmt.Errorf("%s returned status %d: %s", service, resp.StatusCode, string(body))
}

func mapStatus(status int, code, message, service string) error {
	msg := service + ": " + message

	switch {
	case status == http.StatusNotFound:
		return apperrors.NotFound(service, message)
	case status == http.StatusBadRequest || status == http.StatusUnprocessableEntity:
		return apperrors.InvalidInput(msg)
	case status == http.StatusConflict:
		return apperrors.Conflict(msg)
	case status == http.StatusServiceUnavailable:
		return apperrors.Unavailable(service, fmt.Errorf("%s: %s", code, message))
	case status >= http.StatusInternalServerError:
		return fmt.Errorf("%s server error (%d/%s): %s", service, status, code, message)
	default:
		return &apperrors.AppError{Code: code, Message: msg, Status: status}
	}
}
