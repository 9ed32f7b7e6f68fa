package web

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/sse"

	"github.com/smazurov/glcapture/internal/events"
	"github.com/smazurov/glcapture/internal/logging"
	"github.com/smazurov/glcapture/internal/metrics"
	"github.com/smazurov/glcapture/internal/version"
)

const frameWait = 2 * time.Second

func (r *Renderer) registerRoutes() {
	huma.Register(r.api, huma.Operation{
		OperationID: "get-status",
		Method:      http.MethodGet,
		Path:        "/api/status",
		Summary:     "Status",
		Description: "Capture session state, counters and sensor control state",
		Tags:        []string{"capture"},
	}, func(ctx context.Context, input *struct{}) (*StatusResponse, error) {
		body := r.status()
		stats := metrics.GetCaptureStats()
		body.FramesDequeued = stats.FramesDequeued
		body.FramesRendered = stats.FramesRendered
		body.FPS = stats.FPS
		body.LastSequence = stats.LastSequence
		body.BuffersRequested = stats.BuffersRequested
		body.BuffersGranted = stats.BuffersGranted
		return &StatusResponse{Body: body}, nil
	})

	huma.Register(r.api, huma.Operation{
		OperationID:   "post-keys",
		Method:        http.MethodPost,
		Path:          "/api/keys",
		Summary:       "Send keys",
		Description:   "Queue a key sequence for the capture loop, as if typed on the display",
		Tags:          []string{"control"},
		DefaultStatus: http.StatusAccepted,
		Errors:        []int{429},
	}, func(ctx context.Context, input *KeysInput) (*KeysResponse, error) {
		if !r.keys.Push(input.Body.Keys) {
			return nil, huma.Error429TooManyRequests("key queue is full")
		}
		resp := &KeysResponse{}
		resp.Body.Queued = true
		return resp, nil
	})

	huma.Register(r.api, huma.Operation{
		OperationID: "get-frame",
		Method:      http.MethodGet,
		Path:        "/api/frame",
		Summary:     "Preview frame",
		Description: "JPEG snapshot of the next captured frame",
		Tags:        []string{"capture"},
		Errors:      []int{503},
	}, func(ctx context.Context, input *FrameInput) (*FrameResponse, error) {
		if input.Cached {
			if b, seq, _, ok := r.snap.cached(); ok {
				return frameResponse(b, seq), nil
			}
		}

		waitCtx, cancel := context.WithTimeout(ctx, frameWait)
		defer cancel()
		b, seq, ok := r.snap.next(waitCtx)
		if !ok {
			return nil, huma.Error503ServiceUnavailable("no frame captured within " + frameWait.String())
		}
		return frameResponse(b, seq), nil
	})

	huma.Register(r.api, huma.Operation{
		OperationID: "get-version",
		Method:      http.MethodGet,
		Path:        "/api/version",
		Summary:     "Version",
		Description: "Get application version information",
		Tags:        []string{"system"},
	}, func(ctx context.Context, input *struct{}) (*VersionResponse, error) {
		return &VersionResponse{Body: version.Get()}, nil
	})

	r.registerSSERoutes()
}

func frameResponse(b []byte, seq uint32) *FrameResponse {
	return &FrameResponse{
		ContentType:  "image/jpeg",
		CacheControl: "no-cache",
		Sequence:     strconv.FormatUint(uint64(seq), 10),
		Body:         b,
	}
}

func (r *Renderer) registerSSERoutes() {
	sse.Register(r.api, huma.Operation{
		OperationID: "events-stream",
		Method:      http.MethodGet,
		Path:        "/api/events",
		Summary:     "Event stream",
		Description: "Session state, buffer pool, frame statistics and sensor control events",
		Tags:        []string{"events"},
	}, sseEventTypes, func(ctx context.Context, _ *struct{}, send sse.Sender) {
		if r.eventBus == nil {
			<-ctx.Done()
			return
		}

		eventCh := make(chan any, 16)
		unsubscribers := []func(){
			events.SubscribeToChannel[events.SessionStateChangedEvent](r.eventBus, eventCh),
			events.SubscribeToChannel[events.BufferPoolEvent](r.eventBus, eventCh),
			events.SubscribeToChannel[events.FrameStatsEvent](r.eventBus, eventCh),
			events.SubscribeToChannel[events.FocusChangedEvent](r.eventBus, eventCh),
			events.SubscribeToChannel[events.TestPatternChangedEvent](r.eventBus, eventCh),
			events.SubscribeToChannel[events.DeviceRemovedEvent](r.eventBus, eventCh),
		}
		defer func() {
			for _, unsub := range unsubscribers {
				unsub()
			}
		}()

		for {
			select {
			case <-ctx.Done():
				return
			case event := <-eventCh:
				if err := send.Data(event); err != nil {
					return
				}
			}
		}
	})

	sse.Register(r.api, huma.Operation{
		OperationID: "logs-stream",
		Method:      http.MethodGet,
		Path:        "/api/logs",
		Summary:     "Log stream",
		Description: "Recent log entries followed by new ones as they are written",
		Tags:        []string{"logs"},
	}, map[string]any{
		"message": events.LogEntryEvent{},
	}, func(ctx context.Context, _ *struct{}, send sse.Sender) {
		// Subscribe before replaying so nothing is lost in between; the
		// sequence number drops entries already replayed.
		var eventCh chan any
		if r.eventBus != nil {
			eventCh = make(chan any, 100)
			unsubscribe := events.SubscribeToChannel[events.LogEntryEvent](r.eventBus, eventCh)
			defer unsubscribe()
		}

		var lastSeq uint64
		if buffer := logging.GetBuffer(); buffer != nil {
			for _, entry := range buffer.Snapshot() {
				if err := send.Data(logEvent(entry)); err != nil {
					return
				}
				lastSeq = entry.Seq
			}
		}

		for {
			select {
			case <-ctx.Done():
				return
			case ev := <-eventCh:
				if e, ok := ev.(events.LogEntryEvent); ok && e.Seq <= lastSeq {
					continue
				}
				if err := send.Data(ev); err != nil {
					return
				}
			}
		}
	})
}

func logEvent(entry logging.LogEntry) events.LogEntryEvent {
	return events.LogEntryEvent{
		Seq:        entry.Seq,
		Timestamp:  entry.Timestamp.Format(time.RFC3339Nano),
		Level:      entry.Level,
		Module:     entry.Module,
		Message:    entry.Message,
		Attributes: entry.Attributes,
	}
}
