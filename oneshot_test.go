package corerpc

import (
	"context"
	"testing"
	"time"

	"github.com/corerpc/corerpc/codes"
	"github.com/corerpc/corerpc/status"
	"github.com/corerpc/corerpc/transport/inprocess"
)

func TestOneShotExecutorAcceptedResponse(t *testing.T) {
	ct, st := inprocess.NewChannel(0)
	serveScripted(st, func(attempt int) scriptedOutcome { return acceptOutcome("hello") })

	req := ClientRequest{Producer: SingleMessageProducer(&echoMessage{Text: "ping"})}
	opts := baseCallOptions()

	var gotText string
	err := OneShotExecutor{}.Execute(context.Background(), ct, testMethod, req, opts, nil, func(ctx context.Context, resp *StreamingResponse) error {
		if !resp.Accepted {
			t.Fatalf("resp.Accepted = false, want true (RejectErr=%v)", resp.RejectErr)
		}
		msg, err, ok := resp.Body.Recv(ctx)
		if !ok {
			t.Fatalf("Body.Recv() ok = false, err = %v", err)
		}
		gotText = msg.(*echoMessage).Text
		_, err, ok = resp.Body.Recv(ctx)
		if ok || err != nil {
			t.Fatalf("Body.Recv() after single message = (%v, %v), want clean end", err, ok)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if gotText != "hello" {
		t.Errorf("got %q, want %q", gotText, "hello")
	}
}

func TestOneShotExecutorRejectedResponse(t *testing.T) {
	ct, st := inprocess.NewChannel(0)
	serveScripted(st, func(attempt int) scriptedOutcome { return rejectOutcome(codes.NotFound, nil) })

	req := ClientRequest{Producer: SingleMessageProducer(&echoMessage{Text: "ping"})}
	opts := baseCallOptions()

	var handlerCalled bool
	err := OneShotExecutor{}.Execute(context.Background(), ct, testMethod, req, opts, nil, func(ctx context.Context, resp *StreamingResponse) error {
		handlerCalled = true
		if resp.Accepted {
			t.Fatal("resp.Accepted = true, want false")
		}
		if status.Code(resp.RejectErr) != codes.NotFound {
			t.Errorf("code = %v, want NotFound", status.Code(resp.RejectErr))
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if !handlerCalled {
		t.Error("handler was not called")
	}
}

func TestOneShotExecutorDeadlineExceeded(t *testing.T) {
	// No ServerTransport is ever served on this channel, so OpenStream
	// blocks on the unbuffered accept handoff until the deadline fires.
	ct, _ := inprocess.NewChannel(0)
	req := ClientRequest{Producer: SingleMessageProducer(&echoMessage{Text: "ping"})}
	opts := baseCallOptions()
	opts.Timeout = Timeout(10 * time.Millisecond)

	err := OneShotExecutor{}.Execute(context.Background(), ct, testMethod, req, opts, nil, func(ctx context.Context, resp *StreamingResponse) error {
		t.Fatal("handler should not be called when the stream is never opened before the deadline")
		return nil
	})
	if err == nil {
		t.Fatal("Execute() error = nil, want DeadlineExceeded")
	}
	if status.Code(err) != codes.DeadlineExceeded {
		t.Errorf("code = %v, want DeadlineExceeded", status.Code(err))
	}
}
