package core

import (
	"bufio"
	"bytes"
	"compress/flate"
	"compress/gzip"
	"fmt"
	"io"
	"net/http"
	"strings"

	"bacman/logger"

	"github.com/andybalholm/brotli"
)

const previewLimit = 4096

// decodeBody undoes the Content-Encoding of a response body. Unknown encodings are
// returned as is.
func decodeBody(encoding string, body io.Reader) ([]byte, error) {
	switch strings.ToLower(strings.TrimSpace(encoding)) {
	case "br":
		return io.ReadAll(brotli.NewReader(body))
	case "gzip", "x-gzip":
		gz, err := gzip.NewReader(body)
		if err != nil {
			return nil, fmt.Errorf("gzip reader: %w", err)
		}
		defer gz.Close()
		return io.ReadAll(gz)
	case "deflate":
		fr := flate.NewReader(body)
		defer fr.Close()
		return io.ReadAll(fr)
	default:
		return io.ReadAll(body)
	}
}

// ResponsePreview renders the status line, headers and decoded body of a raw response,
// truncated to limit bytes of body. Unparseable input is previewed verbatim.
func ResponsePreview(raw []byte, limit int) string {
	if len(raw) == 0 {
		return ""
	}
	resp, err := http.ReadResponse(bufio.NewReader(bytes.NewReader(raw)), nil)
	if err != nil {
		return truncateUTF8(raw, limit)
	}
	defer resp.Body.Close()

	var sb strings.Builder
	fmt.Fprintf(&sb, "%s %s\n", resp.Proto, resp.Status)
	resp.Header.Write(&sb)
	sb.WriteString("\n")

	body, err := decodeBody(resp.Header.Get("Content-Encoding"), resp.Body)
	if err != nil {
		logger.Debug("ResponsePreview: could not decode %q body: %v", resp.Header.Get("Content-Encoding"), err)
	}
	sb.WriteString(truncateUTF8(body, limit))
	return sb.String()
}

func truncateUTF8(b []byte, limit int) string {
	if limit > 0 && len(b) > limit {
		return strings.ToValidUTF8(string(b[:limit]), "") + "\n...[truncated]"
	}
	return strings.ToValidUTF8(string(b), "")
}
