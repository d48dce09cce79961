package agentcore

import (
	"context"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/corevox/noia/internal/bus"
	"github.com/corevox/noia/internal/realtime"
)

// itemTracking holds the per-response-item bookkeeping the receive loop
// needs across the OutputStreamingStarted/Delta/Finished sequence for one
// item id.
type itemTracking struct {
	functionName string
	functionArgs *strings.Builder
}

// receiveLoop has the lifetime of the remote session, not of a single Run
// call. It dispatches every server event variant and drains output audio to
// whichever speaker (if any) is currently registered.
func (a *Agent) receiveLoop(ctx context.Context, events <-chan realtime.ServerEvent, errs <-chan error, done chan struct{}) {
	defer close(done)

	items := make(map[string]*itemTracking)

	for {
		select {
		case <-ctx.Done():
			return
		case err, ok := <-errs:
			if !ok {
				continue
			}
			a.logf(logrus.ErrorLevel, "session error: %v", err)
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			a.handleServerEvent(ctx, ev, items)
		}
	}
}

func (a *Agent) handleServerEvent(ctx context.Context, ev realtime.ServerEvent, items map[string]*itemTracking) {
	switch ev.Type {
	case realtime.EventSessionStarted:
		a.logf(logrus.InfoLevel, "session started: %s", ev.SessionID)

	case realtime.EventOutputStreamingStarted:
		a.ps.onOutputStarted(ev.ItemID)
		items[ev.ItemID] = &itemTracking{functionName: ev.FunctionName, functionArgs: &strings.Builder{}}
		a.bus.PublishFrom(bus.KindSpeakingStarted, "agentcore")

	case realtime.EventOutputDelta:
		if len(ev.AudioBytes) > 0 {
			chunks := a.ps.appendOutputAudio(ev.AudioBytes)
			a.speaker.writeChunks(chunks)
		}
		if ev.FunctionArguments != "" {
			if it, ok := items[ev.ItemID]; ok {
				it.functionArgs.WriteString(ev.FunctionArguments)
			}
		}

	case realtime.EventOutputStreamingFinished:
		a.finishOutputItem(ctx, ev, items)

	case realtime.EventInputAudioTranscriptionFinished:
		a.logf(logrus.InfoLevel, "transcript: %s", ev.Transcript)

	case realtime.EventResponseFinished:
		a.finishResponse(ev)

	case realtime.EventError:
		a.logf(logrus.WarnLevel, "remote error: %s", ev.ErrorMessage)
	}
}

func (a *Agent) finishOutputItem(ctx context.Context, ev realtime.ServerEvent, items map[string]*itemTracking) {
	it, tracked := items[ev.ItemID]
	delete(items, ev.ItemID)

	if ev.FunctionCallID == "" {
		return
	}

	fnName := ev.FunctionName
	argsJSON := ""
	if tracked {
		if fnName == "" {
			fnName = it.functionName
		}
		argsJSON = it.functionArgs.String()
	}

	a.bus.PublishFrom(bus.KindFunctionInvoking, "agentcore")
	a.mu.Lock()
	session := a.session
	a.mu.Unlock()
	if session == nil {
		return
	}

	out := a.registry.InvokeFunction(ctx, fnName, ev.FunctionCallID, argsJSON)
	if err := session.AddItem(out); err != nil {
		a.logf(logrus.WarnLevel, "addItem: %v", err)
	}
	a.bus.PublishFrom(bus.KindFunctionInvoked, "agentcore")
}

func (a *Agent) finishResponse(ev realtime.ServerEvent) {
	flush, residual := a.ps.onResponseFinished()
	if flush && len(residual) > 0 {
		a.speaker.writeChunks([][]byte{residual})
	}

	if speaker := a.speaker.get(); speaker != nil {
		speaker.FlushAsync(context.Background())
	}

	a.bus.PublishFrom(bus.KindSpeakingStopped, "agentcore")
	a.stateCB.call(StateSpeakingStopped)

	for _, it := range ev.CreatedItems {
		if it.FunctionName != "" {
			a.ps.setWaitingForResponse(time.Now())
			a.mu.Lock()
			session := a.session
			a.mu.Unlock()
			if session != nil {
				if err := session.StartResponse(); err != nil {
					a.logf(logrus.WarnLevel, "startResponse (tool re-arm): %v", err)
				}
			}
			return
		}
	}
}
