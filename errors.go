package salt

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// defaultStatusMessages are used when the server returns an error response
// without a usable message.
var defaultStatusMessages = map[int]string{
	http.StatusBadRequest:          "It seems there was a problem with your input.",
	http.StatusUnauthorized:        "You are not authenticated. Please log in first.",
	http.StatusForbidden:           "You are not allowed to perform this action.",
	http.StatusNotFound:            "The required API endpoint could not be found. Please contact SALT.",
	http.StatusInternalServerError: "An internal server error has occurred. Please contact SALT.",
}

// APIError is returned when the server responds with a status code of 400 or
// above. The message is taken from a "message" or "error" member of the JSON
// response body, falling back to a generic per-status message.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return e.Message
}

// checkResponse returns an *APIError if the response has an error status
// code. In that case the response body is consumed and closed.
func checkResponse(resp *http.Response) error {
	if resp.StatusCode < 400 {
		return nil
	}
	defer resp.Body.Close()

	var message string
	body, err := io.ReadAll(resp.Body)
	if err == nil {
		var payload struct {
			Message string `json:"message"`
			Error   string `json:"error"`
		}
		if json.Unmarshal(body, &payload) == nil {
			if payload.Message != "" {
				message = payload.Message
			} else if payload.Error != "" {
				message = payload.Error
			}
		}
	}

	if message == "" {
		message = defaultStatusMessages[resp.StatusCode]
	}
	if message == "" {
		message = fmt.Sprintf("The request failed with a status code %d.", resp.StatusCode)
	}

	return &APIError{StatusCode: resp.StatusCode, Message: message}
}
