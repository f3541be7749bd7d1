package ingest

import (
	"testing"

	"github.com/Dhivyaa21/pull-request-notifier-for-bitbucket/internal/domain"
)

func TestDecodeEventPayloadSingle(t *testing.T) {
	t.Parallel()

	events, err := decodeEventPayload([]byte(testEventJSON(4)))
	if err != nil {
		t.Fatalf("decode single payload: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("expected one event, got %d", len(events))
	}
	if events[0].PullRequest.ID != 4 {
		t.Fatalf("unexpected pr id %d", events[0].PullRequest.ID)
	}
}

func TestDecodeEventPayloadBatchNormalizesTags(t *testing.T) {
	t.Parallel()

	payload := []byte(`[{"action":"merged","pull_request":{"repo_id":"acme/widgets","id":1,"state":"merged"}},{"action":"declined","pull_request":{"repo_id":"acme/widgets","id":2,"state":"declined"}}]`)
	events, err := decodeEventPayload(payload)
	if err != nil {
		t.Fatalf("decode batch payload: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected two events, got %d", len(events))
	}
	if events[0].Action != domain.ActionMerged || events[0].PullRequest.State != domain.StateMerged {
		t.Fatalf("first event not normalized: %+v", events[0])
	}
	if events[1].Action != domain.ActionDeclined {
		t.Fatalf("second event not normalized: %+v", events[1])
	}
}

func TestDecodeEventPayloadRejectsInvalidBatchMember(t *testing.T) {
	t.Parallel()

	payload := []byte(`[{"action":"opened","pull_request":{"repo_id":"acme/widgets","id":1,"state":"OPEN"}},{"action":"opened","pull_request":{"repo_id":"","id":2,"state":"OPEN"}}]`)
	if _, err := decodeEventPayload(payload); err == nil {
		t.Fatalf("expected invalid member rejection")
	}
}

func TestReleaseDecodeScratchDropsOversizedBuffer(t *testing.T) {
	t.Parallel()

	scratch := &decodeScratch{
		events: make([]domain.Event, 0, maxPooledBatchCapacity+1),
	}
	releaseDecodeScratch(scratch)
	if cap(scratch.events) > maxPooledBatchCapacity {
		t.Fatalf("expected capped pooled capacity, got %d", cap(scratch.events))
	}
}
