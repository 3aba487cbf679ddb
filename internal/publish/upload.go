package publish

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/FurmanovVitaliy/logger"
)

const (
	// chunkSize is the APPEND segment size. The platform caps segments at
	// 5 MiB for images.
	chunkSize = 5 * 1024 * 1024
	// maxStatusChecks bounds the FINALIZE polling loop.
	maxStatusChecks = 60

	mediaUploadURL = "https://upload.twitter.com/1.1/media/upload.json"
)

// Upload session phases, in the order the state machine walks them.
const (
	stateInitialized = "initialized"
	stateAppending   = "appending"
	stateFinalizing  = "finalizing"
	stateProcessing  = "processing"
	stateSucceeded   = "succeeded"
	stateFailed      = "failed"
)

// chunkUploader runs the INIT / APPEND / FINALIZE / STATUS upload
// session. The http.Client must sign requests with the connection's
// OAuth1 pair; the bearer token is not accepted on this endpoint.
type chunkUploader struct {
	log       *slog.Logger
	client    *http.Client
	uploadURL string
	sleep     func(time.Duration)
}

func newChunkUploader(log *slog.Logger, client *http.Client) *chunkUploader {
	return &chunkUploader{
		log:       log,
		client:    client,
		uploadURL: mediaUploadURL,
		sleep:     time.Sleep,
	}
}

type uploadStatus struct {
	MediaID        string `json:"media_id_string"`
	ProcessingInfo *struct {
		State          string `json:"state"`
		CheckAfterSecs int    `json:"check_after_secs"`
	} `json:"processing_info"`
}

// Upload pushes the image through a full upload session and returns the
// platform media id. Any phase failure aborts the session.
func (u *chunkUploader) Upload(ctx context.Context, data []byte, mediaType string) (string, error) {
	log := u.log.With(
		logger.StringAttr("op", "publish.chunkUploader.Upload"),
		slog.Int("total_bytes", len(data)),
	)

	mediaID, err := u.initialize(ctx, len(data), mediaType)
	if err != nil {
		return "", err
	}
	log = log.With(logger.StringAttr("media_id", mediaID))
	log.Debug("upload session initialized")

	if err := u.appendChunks(ctx, mediaID, data); err != nil {
		return "", err
	}

	status, err := u.finalize(ctx, mediaID)
	if err != nil {
		return "", err
	}

	if status.ProcessingInfo != nil {
		if err := u.awaitProcessing(ctx, mediaID, status); err != nil {
			return "", err
		}
	}

	log.Info("media uploaded")
	return mediaID, nil
}

func (u *chunkUploader) initialize(ctx context.Context, totalBytes int, mediaType string) (string, error) {
	form := url.Values{
		"command":     {"INIT"},
		"total_bytes": {strconv.Itoa(totalBytes)},
		"media_type":  {mediaType},
	}

	var status uploadStatus
	if err := u.postForm(ctx, stateInitialized, form, &status); err != nil {
		return "", err
	}
	if status.MediaID == "" {
		return "", &UploadError{Platform: "twitter", State: stateInitialized, Payload: "response missing media id"}
	}
	return status.MediaID, nil
}

// appendChunks streams the payload in ascending segment order. Segment
// indices must be contiguous from zero or FINALIZE rejects the session.
func (u *chunkUploader) appendChunks(ctx context.Context, mediaID string, data []byte) error {
	for segment := 0; segment*chunkSize < len(data); segment++ {
		start := segment * chunkSize
		end := start + chunkSize
		if end > len(data) {
			end = len(data)
		}

		var buf bytes.Buffer
		w := multipart.NewWriter(&buf)
		_ = w.WriteField("command", "APPEND")
		_ = w.WriteField("media_id", mediaID)
		_ = w.WriteField("segment_index", strconv.Itoa(segment))
		part, err := w.CreateFormFile("media", "media")
		if err != nil {
			return &UploadError{Platform: "twitter", State: stateAppending, Payload: err.Error()}
		}
		if _, err := part.Write(data[start:end]); err != nil {
			return &UploadError{Platform: "twitter", State: stateAppending, Payload: err.Error()}
		}
		if err := w.Close(); err != nil {
			return &UploadError{Platform: "twitter", State: stateAppending, Payload: err.Error()}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.uploadURL, &buf)
		if err != nil {
			return &UploadError{Platform: "twitter", State: stateAppending, Payload: err.Error()}
		}
		req.Header.Set("Content-Type", w.FormDataContentType())

		resp, err := u.client.Do(req)
		if err != nil {
			return &UploadError{Platform: "twitter", State: stateAppending, Payload: err.Error()}
		}
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		resp.Body.Close()
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return &UploadError{Platform: "twitter", State: stateAppending, Payload: string(body)}
		}

		u.log.Debug("chunk appended",
			logger.StringAttr("media_id", mediaID),
			slog.Int("segment_index", segment),
			slog.Int("bytes", end-start),
		)
	}
	return nil
}

func (u *chunkUploader) finalize(ctx context.Context, mediaID string) (uploadStatus, error) {
	form := url.Values{
		"command":  {"FINALIZE"},
		"media_id": {mediaID},
	}

	var status uploadStatus
	if err := u.postForm(ctx, stateFinalizing, form, &status); err != nil {
		return uploadStatus{}, err
	}
	return status, nil
}

// awaitProcessing polls STATUS until the platform reports success or
// failure, honoring the suggested check_after_secs delay and giving up
// after maxStatusChecks polls.
func (u *chunkUploader) awaitProcessing(ctx context.Context, mediaID string, status uploadStatus) error {
	for checks := 0; ; checks++ {
		switch status.ProcessingInfo.State {
		case "succeeded":
			return nil
		case "failed":
			payload, _ := json.Marshal(status.ProcessingInfo)
			return &UploadError{Platform: "twitter", State: stateFailed, Payload: string(payload)}
		}

		if checks >= maxStatusChecks {
			return &UploadError{Platform: "twitter", State: stateProcessing, Payload: fmt.Sprintf("gave up after %d status checks", maxStatusChecks)}
		}

		wait := status.ProcessingInfo.CheckAfterSecs
		if wait <= 0 {
			wait = 1
		}
		u.sleep(time.Duration(wait) * time.Second)

		q := url.Values{
			"command":  {"STATUS"},
			"media_id": {mediaID},
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.uploadURL+"?"+q.Encode(), nil)
		if err != nil {
			return &UploadError{Platform: "twitter", State: stateProcessing, Payload: err.Error()}
		}
		resp, err := u.client.Do(req)
		if err != nil {
			return &UploadError{Platform: "twitter", State: stateProcessing, Payload: err.Error()}
		}
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		resp.Body.Close()
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return &UploadError{Platform: "twitter", State: stateProcessing, Payload: string(body)}
		}

		status = uploadStatus{}
		if err := json.Unmarshal(body, &status); err != nil {
			return &UploadError{Platform: "twitter", State: stateProcessing, Payload: err.Error()}
		}
		if status.ProcessingInfo == nil {
			// No processing block means the platform is done with it.
			return nil
		}
	}
}

func (u *chunkUploader) postForm(ctx context.Context, state string, form url.Values, dst *uploadStatus) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.uploadURL, bytes.NewBufferString(form.Encode()))
	if err != nil {
		return &UploadError{Platform: "twitter", State: state, Payload: err.Error()}
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := u.client.Do(req)
	if err != nil {
		return &UploadError{Platform: "twitter", State: state, Payload: err.Error()}
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &UploadError{Platform: "twitter", State: state, Payload: string(body)}
	}
	if err := json.Unmarshal(body, dst); err != nil {
		return &UploadError{Platform: "twitter", State: state, Payload: err.Error()}
	}
	return nil
}
