package core

import (
	"bytes"
	"compress/gzip"
	"encoding/json"
	"strconv"
	"strings"
	"sync"
	"testing"

	"bacman/models"

	"github.com/andybalholm/brotli"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResultLog_SnapshotSortedAndBounded(t *testing.T) {
	l := NewResultLog(3)
	for _, seq := range []int64{5, 2, 4, 1, 3} {
		l.Push(models.ProbeResult{SequenceID: seq})
	}
	assert.Equal(t, 3, l.Len())

	snap := l.Snapshot()
	require.Len(t, snap, 3)
	// The oldest arrivals (5, 2) were evicted.
	assert.Equal(t, []int64{1, 3, 4}, []int64{snap[0].SequenceID, snap[1].SequenceID, snap[2].SequenceID})

	snap[0].SequenceID = 99
	assert.Equal(t, int64(1), l.Snapshot()[0].SequenceID)
}

func TestResultLog_EmptySnapshotIsNotNil(t *testing.T) {
	snap := NewResultLog(0).Snapshot()
	assert.NotNil(t, snap)
	assert.Empty(t, snap)

	b, err := json.Marshal(snap)
	require.NoError(t, err)
	assert.JSONEq(t, "[]", string(b))
}

func TestResultLog_ConcurrentPush(t *testing.T) {
	l := NewResultLog(0)
	var wg sync.WaitGroup
	for i := 1; i <= 50; i++ {
		wg.Add(1)
		go func(i int64) {
			defer wg.Done()
			l.Push(models.ProbeResult{SequenceID: i})
		}(int64(i))
	}
	wg.Wait()
	snap := l.Snapshot()
	require.Len(t, snap, 50)
	for i, r := range snap {
		assert.Equal(t, int64(i+1), r.SequenceID)
	}
}

func TestMultiSink(t *testing.T) {
	a, b := NewResultLog(0), NewResultLog(0)
	var got []int64
	m := MultiSink{a, nil, b, SinkFunc(func(r models.ProbeResult) { got = append(got, r.SequenceID) })}
	m.Push(models.ProbeResult{SequenceID: 7})
	assert.Equal(t, 1, a.Len())
	assert.Equal(t, 1, b.Len())
	assert.Equal(t, []int64{7}, got)
}

func TestResponsePreview(t *testing.T) {
	t.Run("plain", func(t *testing.T) {
		p := ResponsePreview([]byte("HTTP/1.1 200 OK\r\nContent-Type: text/plain\r\nContent-Length: 5\r\n\r\nhello"), 100)
		assert.True(t, strings.HasPrefix(p, "HTTP/1.1 200 OK\n"))
		assert.Contains(t, p, "Content-Type: text/plain")
		assert.True(t, strings.HasSuffix(p, "\nhello"))
	})

	t.Run("gzip", func(t *testing.T) {
		var buf bytes.Buffer
		zw := gzip.NewWriter(&buf)
		_, _ = zw.Write([]byte(`{"owner":"userA"}`))
		require.NoError(t, zw.Close())
		raw := "HTTP/1.1 200 OK\r\nContent-Encoding: gzip\r\nContent-Length: " + strconv.Itoa(buf.Len()) + "\r\n\r\n" + buf.String()
		assert.Contains(t, ResponsePreview([]byte(raw), 100), `{"owner":"userA"}`)
	})

	t.Run("brotli", func(t *testing.T) {
		var buf bytes.Buffer
		bw := brotli.NewWriter(&buf)
		_, _ = bw.Write([]byte("secret invoice"))
		require.NoError(t, bw.Close())
		raw := "HTTP/1.1 200 OK\r\nContent-Encoding: br\r\nContent-Length: " + strconv.Itoa(buf.Len()) + "\r\n\r\n" + buf.String()
		assert.Contains(t, ResponsePreview([]byte(raw), 100), "secret invoice")
	})

	t.Run("truncated", func(t *testing.T) {
		body := strings.Repeat("a", 50)
		raw := "HTTP/1.1 200 OK\r\nContent-Length: 50\r\n\r\n" + body
		p := ResponsePreview([]byte(raw), 10)
		assert.Contains(t, p, strings.Repeat("a", 10)+"\n...[truncated]")
		assert.NotContains(t, p, strings.Repeat("a", 11))
	})

	t.Run("unparseable and empty", func(t *testing.T) {
		assert.Equal(t, "garbage", ResponsePreview([]byte("garbage"), 100))
		assert.Empty(t, ResponsePreview(nil, 100))
	})
}
