package publish

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type uploadCall struct {
	command      string
	segmentIndex int
	bodyLen      int
}

// uploadServer plays the platform side of the upload session and records
// every call in order.
type uploadServer struct {
	t     *testing.T
	calls []uploadCall

	// statusResponses are served to successive STATUS polls.
	statusResponses []string
	statusServed    int

	finalizeResponse string
	appendStatus     int
}

func (s *uploadServer) handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			s.calls = append(s.calls, uploadCall{command: r.URL.Query().Get("command")})
			resp := s.statusResponses[s.statusServed]
			if s.statusServed < len(s.statusResponses)-1 {
				s.statusServed++
			}
			fmt.Fprint(w, resp)
			return
		}

		contentType := r.Header.Get("Content-Type")
		if contentType == "application/x-www-form-urlencoded" {
			require.NoError(s.t, r.ParseForm())
			command := r.PostFormValue("command")
			s.calls = append(s.calls, uploadCall{command: command})
			switch command {
			case "INIT":
				fmt.Fprint(w, `{"media_id_string": "710511363345354753"}`)
			case "FINALIZE":
				fmt.Fprint(w, s.finalizeResponse)
			}
			return
		}

		// multipart APPEND
		require.NoError(s.t, r.ParseMultipartForm(32<<20))
		segment, err := strconv.Atoi(r.FormValue("segment_index"))
		require.NoError(s.t, err)
		file, _, err := r.FormFile("media")
		require.NoError(s.t, err)
		data, err := io.ReadAll(file)
		require.NoError(s.t, err)
		s.calls = append(s.calls, uploadCall{
			command:      r.FormValue("command"),
			segmentIndex: segment,
			bodyLen:      len(data),
		})
		if s.appendStatus != 0 {
			w.WriteHeader(s.appendStatus)
			return
		}
		fmt.Fprint(w, `{}`)
	}
}

func newTestUploader(t *testing.T, server *uploadServer) (*chunkUploader, *httptest.Server) {
	ts := httptest.NewServer(server.handler())
	t.Cleanup(ts.Close)

	u := &chunkUploader{
		log:       slog.New(slog.NewTextHandler(io.Discard, nil)),
		client:    ts.Client(),
		uploadURL: ts.URL,
		sleep:     func(time.Duration) {},
	}
	return u, ts
}

func TestUploadChunksInOrder(t *testing.T) {
	server := &uploadServer{t: t, finalizeResponse: `{"media_id_string": "710511363345354753"}`}
	u, _ := newTestUploader(t, server)

	// 12 MiB splits into two full chunks plus a 2 MiB tail.
	data := make([]byte, 12*1024*1024)
	mediaID, err := u.Upload(context.Background(), data, "image/jpeg")
	require.NoError(t, err)
	assert.Equal(t, "710511363345354753", mediaID)

	var commands []string
	for _, call := range server.calls {
		commands = append(commands, call.command)
	}
	assert.Equal(t, []string{"INIT", "APPEND", "APPEND", "APPEND", "FINALIZE"}, commands)

	appends := server.calls[1:4]
	assert.Equal(t, 0, appends[0].segmentIndex)
	assert.Equal(t, 1, appends[1].segmentIndex)
	assert.Equal(t, 2, appends[2].segmentIndex)
	assert.Equal(t, chunkSize, appends[0].bodyLen)
	assert.Equal(t, chunkSize, appends[1].bodyLen)
	assert.Equal(t, 2*1024*1024, appends[2].bodyLen)
}

func TestUploadPollsUntilProcessed(t *testing.T) {
	server := &uploadServer{
		t:                t,
		finalizeResponse: `{"media_id_string": "1", "processing_info": {"state": "pending", "check_after_secs": 5}}`,
		statusResponses: []string{
			`{"media_id_string": "1", "processing_info": {"state": "in_progress", "check_after_secs": 2}}`,
			`{"media_id_string": "1", "processing_info": {"state": "succeeded"}}`,
		},
	}

	ts := httptest.NewServer(server.handler())
	t.Cleanup(ts.Close)

	var slept []time.Duration
	u := &chunkUploader{
		log:       slog.New(slog.NewTextHandler(io.Discard, nil)),
		client:    ts.Client(),
		uploadURL: ts.URL,
		sleep:     func(d time.Duration) { slept = append(slept, d) },
	}

	_, err := u.Upload(context.Background(), []byte("tiny"), "image/png")
	require.NoError(t, err)

	polls := 0
	for _, call := range server.calls {
		if call.command == "STATUS" {
			polls++
		}
	}
	assert.Equal(t, 2, polls)
	assert.Equal(t, []time.Duration{5 * time.Second, 2 * time.Second}, slept)
}

func TestUploadProcessingFailureKeepsPayload(t *testing.T) {
	server := &uploadServer{
		t:                t,
		finalizeResponse: `{"media_id_string": "1", "processing_info": {"state": "failed", "check_after_secs": 0}}`,
	}
	u, _ := newTestUploader(t, server)

	_, err := u.Upload(context.Background(), []byte("tiny"), "image/png")
	require.Error(t, err)

	var uploadErr *UploadError
	require.ErrorAs(t, err, &uploadErr)
	assert.Equal(t, stateFailed, uploadErr.State)

	// The platform response survives verbatim inside the payload.
	var payload map[string]any
	require.NoError(t, json.Unmarshal([]byte(uploadErr.Payload), &payload))
	assert.Equal(t, "failed", payload["state"])
}

func TestUploadGivesUpAfterMaxChecks(t *testing.T) {
	server := &uploadServer{
		t:                t,
		finalizeResponse: `{"media_id_string": "1", "processing_info": {"state": "pending", "check_after_secs": 1}}`,
		statusResponses: []string{
			`{"media_id_string": "1", "processing_info": {"state": "in_progress", "check_after_secs": 1}}`,
		},
	}
	u, _ := newTestUploader(t, server)

	_, err := u.Upload(context.Background(), []byte("tiny"), "image/png")
	require.Error(t, err)

	var uploadErr *UploadError
	require.ErrorAs(t, err, &uploadErr)
	assert.Equal(t, stateProcessing, uploadErr.State)

	polls := 0
	for _, call := range server.calls {
		if call.command == "STATUS" {
			polls++
		}
	}
	assert.Equal(t, maxStatusChecks, polls)
}

func TestUploadAppendFailureAborts(t *testing.T) {
	server := &uploadServer{t: t, appendStatus: http.StatusBadRequest}
	u, _ := newTestUploader(t, server)

	_, err := u.Upload(context.Background(), []byte("tiny"), "image/png")
	require.Error(t, err)

	var uploadErr *UploadError
	require.ErrorAs(t, err, &uploadErr)
	assert.Equal(t, stateAppending, uploadErr.State)

	for _, call := range server.calls {
		assert.NotEqual(t, "FINALIZE", call.command, "session must abort before FINALIZE")
	}
}
