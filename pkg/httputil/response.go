package httputil

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/tablerohq/tablero/pkg/api"
)

// maxErrorBody bounds how much of a failure body is read for a message.
const maxErrorBody = 64 << 10

// DecodeJSON decodes a 2xx response body into dest. For non-2xx responses
// it returns the *api.Error parsed from the body. The body is always
// consumed and closed.
func DecodeJSON(resp *http.Response, dest interface{}) error {
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return ParseError(resp)
	}
	defer DrainAndClose(resp.Body)
	if dest == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// ParseError builds an *api.Error from a failure response. The message is
// taken from a {"message": ...} body, a plain string body, or the HTTP
// status text, in that order.
func ParseError(resp *http.Response) *api.Error {
	defer DrainAndClose(resp.Body)

	apiErr := &api.Error{StatusCode: resp.StatusCode}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if err != nil || len(body) == 0 {
		apiErr.Message = http.StatusText(resp.StatusCode)
		return apiErr
	}

	var payload struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if jsonErr := json.Unmarshal(body, &payload); jsonErr == nil {
		switch {
		case payload.Message != "":
			apiErr.Message = payload.Message
			return apiErr
		case payload.Error != "":
			apiErr.Message = payload.Error
			return apiErr
		}
	}

	if text := strings.TrimSpace(string(body)); text != "" && !strings.HasPrefix(text, "{") {
		apiErr.Message = text
		return apiErr
	}
	apiErr.Message = http.StatusText(resp.StatusCode)
	return apiErr
}

// ErrorMessage extracts a message suitable for end users from any error
// produced by the SDK's HTTP layer.
func ErrorMessage(err error) string {
	if err == nil {
		return ""
	}
	var apiErr *api.Error
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		return apiErr.Message
	}
	return err.Error()
}

// DrainAndClose consumes the remainder of a response body and closes it so
// the underlying connection can be reused.
func DrainAndClose(body io.ReadCloser) {
	if body == nil {
		return
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(body, maxErrorBody))
	_ = body.Close()
}
