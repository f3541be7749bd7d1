package ingest

import (
	"context"
	"io"
	"net/http"

	"github.com/Dhivyaa21/pull-request-notifier-for-bitbucket/internal/domain"
	"github.com/Dhivyaa21/pull-request-notifier-for-bitbucket/internal/metrics"
)

// EventSink receives validated events from ingest interfaces.
// Params: request-scoped context and decoded event payload.
// Returns: nothing; evaluation outcomes never propagate to the source.
type EventSink interface {
	OnPullRequestEvent(ctx context.Context, event domain.Event)
}

// SnapshotRecorder observes pull-request snapshots from inbound events.
// Optional; used to feed the event-backed pull request cache.
type SnapshotRecorder interface {
	Put(pr domain.PullRequest)
}

// HTTPHandler decodes webhook payloads and forwards them to sink.
// Params: sink receives validated events, max body limits payload size.
// Returns: HTTP handler for the webhook endpoint.
type HTTPHandler struct {
	sink        EventSink
	recorder    SnapshotRecorder
	maxBodySize int64
}

// NewHTTPHandler creates the webhook HTTP handler.
// Params: sink, optional snapshot recorder, and max body size in bytes.
// Returns: configured handler.
func NewHTTPHandler(sink EventSink, recorder SnapshotRecorder, maxBodySize int64) *HTTPHandler {
	return &HTTPHandler{sink: sink, recorder: recorder, maxBodySize: maxBodySize}
}

// ServeHTTP handles one incoming webhook request. Accepts either a
// single event object or a non-empty array. Evaluation runs
// synchronously on the request; the response reports acceptance, not
// dispatch success.
// Params: HTTP request/response writer pair.
// Returns: writes status code according to decode/evaluation.
func (h *HTTPHandler) ServeHTTP(writer http.ResponseWriter, request *http.Request) {
	if request.Method != http.MethodPost {
		writer.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	request.Body = http.MaxBytesReader(writer, request.Body, h.maxBodySize)
	defer request.Body.Close()
	body, err := io.ReadAll(request.Body)
	if err != nil {
		metrics.EventsRejected.WithLabelValues("http").Inc()
		writer.WriteHeader(http.StatusBadRequest)
		return
	}

	events, err := decodeEventPayload(body)
	if err != nil {
		metrics.EventsRejected.WithLabelValues("http").Inc()
		writer.WriteHeader(http.StatusBadRequest)
		return
	}
	for _, event := range events {
		metrics.EventsReceived.WithLabelValues(string(event.Action), "http").Inc()
		if h.recorder != nil {
			h.recorder.Put(event.PullRequest)
		}
		h.sink.OnPullRequestEvent(request.Context(), event)
	}
	writer.WriteHeader(http.StatusAccepted)
}
