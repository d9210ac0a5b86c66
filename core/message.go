package core

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	"bacman/models"
)

var ErrMalformedRequest = errors.New("malformed HTTP request")

// BuildHTTPMessage assembles a raw HTTP/1.x request from its request line, headers and body.
func BuildHTTPMessage(requestLine string, headers []models.HeaderLine, body []byte) []byte {
	var buf bytes.Buffer
	buf.Grow(len(requestLine) + len(body) + 64*len(headers))
	buf.WriteString(requestLine)
	buf.WriteString("\r\n")
	for _, h := range headers {
		buf.WriteString(h.String())
		buf.WriteString("\r\n")
	}
	buf.WriteString("\r\n")
	buf.Write(body)
	return buf.Bytes()
}

func splitHead(raw []byte) (head string, body []byte, ok bool) {
	if i := bytes.Index(raw, []byte("\r\n\r\n")); i >= 0 {
		return string(raw[:i]), raw[i+4:], true
	}
	if i := bytes.Index(raw, []byte("\n\n")); i >= 0 {
		return string(raw[:i]), raw[i+2:], true
	}
	return "", nil, false
}

// ParseRawRequest splits raw request bytes into a RequestRecord bound to service.
// Header order and duplicates are preserved; folded continuation lines are joined.
func ParseRawRequest(service models.Service, raw []byte) (models.RequestRecord, error) {
	head, body, ok := splitHead(raw)
	if !ok {
		// Header-only message without the terminating blank line.
		head = strings.TrimRight(string(raw), "\r\n")
		body = nil
	}
	lines := strings.Split(strings.ReplaceAll(head, "\r\n", "\n"), "\n")
	if len(lines) == 0 || strings.TrimSpace(lines[0]) == "" {
		return models.RequestRecord{}, fmt.Errorf("%w: missing request line", ErrMalformedRequest)
	}

	parts := strings.Fields(lines[0])
	if len(parts) != 3 || !strings.HasPrefix(parts[2], "HTTP/") {
		return models.RequestRecord{}, fmt.Errorf("%w: bad request line %q", ErrMalformedRequest, lines[0])
	}

	rec := models.RequestRecord{
		Method:  parts[0],
		Target:  parts[1],
		Proto:   parts[2],
		Service: service,
	}
	for _, line := range lines[1:] {
		if line == "" {
			continue
		}
		if (line[0] == ' ' || line[0] == '\t') && len(rec.Headers) > 0 {
			last := &rec.Headers[len(rec.Headers)-1]
			last.Value = strings.TrimSpace(last.Value + " " + strings.TrimSpace(line))
			continue
		}
		name, value, found := strings.Cut(line, ":")
		if !found || strings.TrimSpace(name) == "" {
			return models.RequestRecord{}, fmt.Errorf("%w: bad header line %q", ErrMalformedRequest, line)
		}
		rec.Headers = append(rec.Headers, models.HeaderLine{Name: strings.TrimSpace(name), Value: strings.TrimSpace(value)})
	}
	if len(body) > 0 {
		rec.Body = append([]byte(nil), body...)
	}

	lowerTarget := strings.ToLower(rec.Target)
	if strings.HasPrefix(lowerTarget, "http://") || strings.HasPrefix(lowerTarget, "https://") {
		rec.URL = rec.Target
	} else {
		rec.URL = service.BaseURL() + rec.Target
	}
	return rec, nil
}
