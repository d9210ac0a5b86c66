package core

import (
	"bufio"
	"bytes"
	"net/http"

	"bacman/logger"
	"bacman/models"
)

// AnalyzeResponse extracts the status code and total byte length of a raw response.
// An absent response is unknown with length 0; an unparseable one is unknown but keeps
// its measured length.
func AnalyzeResponse(raw []byte) models.ResponseSummary {
	if len(raw) == 0 {
		return models.UnknownSummary()
	}
	summary := models.ResponseSummary{StatusCode: models.StatusUnknown, ByteLength: int64(len(raw))}

	// Only the status line and headers are needed; the body is never read.
	resp, err := http.ReadResponse(bufio.NewReader(bytes.NewReader(raw)), nil)
	if err != nil {
		logger.Debug("AnalyzeResponse: could not parse response (%d bytes): %v", len(raw), err)
		return summary
	}
	resp.Body.Close()
	if resp.StatusCode < 100 || resp.StatusCode > 999 {
		logger.Debug("AnalyzeResponse: status %d out of range, treating as unknown", resp.StatusCode)
		return summary
	}
	summary.StatusCode = resp.StatusCode
	return summary
}
