package models

// ErrorResponse is the JSON body of every non-2xx API response.
type ErrorResponse struct {
	Message string `json:"message"`
}
