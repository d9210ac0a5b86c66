package core

import (
	"context"
	"errors"
	"testing"

	"bacman/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReplayExecutor_SendsRewrittenMessage(t *testing.T) {
	rec, err := ParseRawRequest(httpsService, []byte("PUT /items/9 HTTP/1.1\r\nHost: api.example.com\r\nCookie: a\r\nContent-Length: 4\r\n\r\nbody"))
	require.NoError(t, err)
	headers := SubstituteHeaders(rec.Headers, []models.HeaderLine{hl("Cookie", "b")})

	var gotService models.Service
	var gotRaw string
	exec := &ReplayExecutor{Sender: SenderFunc(func(ctx context.Context, s models.Service, raw []byte) ([]byte, error) {
		gotService = s
		gotRaw = string(raw)
		return []byte("HTTP/1.1 200 OK\r\nContent-Length: 2\r\n\r\nok"), nil
	})}

	sum := exec.Replay(context.Background(), rec, headers)

	assert.Equal(t, httpsService, gotService)
	assert.Equal(t, "PUT /items/9 HTTP/1.1\r\nHost: api.example.com\r\nContent-Length: 4\r\nCookie: b\r\n\r\nbody", gotRaw)
	assert.Equal(t, 200, sum.StatusCode)
	assert.Equal(t, int64(len("HTTP/1.1 200 OK\r\nContent-Length: 2\r\n\r\nok")), sum.ByteLength)
}

func TestReplayExecutor_FailuresAreUnknown(t *testing.T) {
	rec, err := ParseRawRequest(httpsService, []byte("GET / HTTP/1.1\r\nHost: h\r\n\r\n"))
	require.NoError(t, err)

	failing := &ReplayExecutor{Sender: SenderFunc(func(context.Context, models.Service, []byte) ([]byte, error) {
		return nil, errors.New("connection reset by peer")
	})}
	assert.Equal(t, models.UnknownSummary(), failing.Replay(context.Background(), rec, rec.Headers))

	_, err = failing.Capture(context.Background(), rec, rec.Headers)
	assert.ErrorContains(t, err, "connection reset by peer")

	empty := &ReplayExecutor{Sender: SenderFunc(func(context.Context, models.Service, []byte) ([]byte, error) {
		return nil, nil
	})}
	assert.Equal(t, models.UnknownSummary(), empty.Replay(context.Background(), rec, rec.Headers))

	var nilExec *ReplayExecutor
	_, err = nilExec.Capture(context.Background(), rec, rec.Headers)
	assert.ErrorIs(t, err, ErrNoSender)
	assert.Equal(t, models.UnknownSummary(), (&ReplayExecutor{}).Replay(context.Background(), rec, rec.Headers))
}

func TestReplayExecutor_ReplayWithEvidence(t *testing.T) {
	rec, err := ParseRawRequest(httpsService, []byte("GET /me HTTP/1.1\r\nHost: h\r\n\r\n"))
	require.NoError(t, err)

	ok := &ReplayExecutor{Sender: staticSender(resp200)}
	out := ok.ReplayWithEvidence(context.Background(), rec, rec.Headers)
	assert.NoError(t, out.Err)
	assert.Equal(t, resp200, string(out.Raw))
	assert.Equal(t, ok.Replay(context.Background(), rec, rec.Headers), out.Summary)
	assert.Equal(t, 200, out.Summary.StatusCode)

	failing := &ReplayExecutor{Sender: SenderFunc(func(context.Context, models.Service, []byte) ([]byte, error) {
		return nil, errors.New("i/o timeout")
	})}
	out = failing.ReplayWithEvidence(context.Background(), rec, rec.Headers)
	assert.ErrorContains(t, out.Err, "i/o timeout")
	assert.Nil(t, out.Raw)
	assert.Equal(t, models.UnknownSummary(), out.Summary)
}
