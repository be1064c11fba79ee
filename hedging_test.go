package corerpc

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/corerpc/corerpc/codes"
	"github.com/corerpc/corerpc/serviceconfig"
	"github.com/corerpc/corerpc/status"
	"github.com/corerpc/corerpc/transport/inprocess"
)

func TestHedgingExecutorSecondAttemptWins(t *testing.T) {
	ct, st := inprocess.NewChannel(0)
	serveScripted(st, func(attempt int) scriptedOutcome {
		if attempt == 1 {
			time.Sleep(50 * time.Millisecond)
		}
		return acceptOutcome(fmt.Sprintf("attempt-%d", attempt))
	})

	req := ClientRequest{Producer: SingleMessageProducer(&echoMessage{Text: "ping"})}
	opts := baseCallOptions()
	opts.Hedging = &serviceconfig.HedgingPolicy{
		MaxAttempts:         2,
		HedgingDelay:        10 * time.Millisecond,
		NonFatalStatusCodes: []codes.Code{codes.Unavailable},
	}

	var gotText string
	err := HedgingExecutor{}.Execute(context.Background(), ct, testMethod, req, opts, nil, func(ctx context.Context, resp *StreamingResponse) error {
		if !resp.Accepted {
			t.Fatalf("resp.Accepted = false, want true (RejectErr=%v)", resp.RejectErr)
		}
		msg, _, ok := resp.Body.Recv(ctx)
		if !ok {
			t.Fatal("Body.Recv() ok = false")
		}
		gotText = msg.(*echoMessage).Text
		return nil
	})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if gotText != "attempt-2" {
		t.Errorf("got %q, want %q (the faster attempt should win)", gotText, "attempt-2")
	}
}

func TestHedgingExecutorNonFatalContinuesToNextAttempt(t *testing.T) {
	ct, st := inprocess.NewChannel(0)
	serveScripted(st, func(attempt int) scriptedOutcome {
		if attempt == 1 {
			return rejectOutcome(codes.Unavailable, nil)
		}
		return acceptOutcome("second")
	})

	req := ClientRequest{Producer: SingleMessageProducer(&echoMessage{Text: "ping"})}
	opts := baseCallOptions()
	opts.Hedging = &serviceconfig.HedgingPolicy{
		MaxAttempts:         2,
		HedgingDelay:        5 * time.Millisecond,
		NonFatalStatusCodes: []codes.Code{codes.Unavailable},
	}

	var gotText string
	err := HedgingExecutor{}.Execute(context.Background(), ct, testMethod, req, opts, nil, func(ctx context.Context, resp *StreamingResponse) error {
		if !resp.Accepted {
			t.Fatalf("resp.Accepted = false, want true (RejectErr=%v)", resp.RejectErr)
		}
		msg, _, ok := resp.Body.Recv(ctx)
		if !ok {
			t.Fatal("Body.Recv() ok = false")
		}
		gotText = msg.(*echoMessage).Text
		return nil
	})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if gotText != "second" {
		t.Errorf("got %q, want %q", gotText, "second")
	}
}

func TestHedgingExecutorFatalCodeCancelsSiblings(t *testing.T) {
	ct, st := inprocess.NewChannel(0)
	var secondAttemptOpened int32
	serveScripted(st, func(attempt int) scriptedOutcome {
		if attempt == 1 {
			return rejectOutcome(codes.PermissionDenied, nil)
		}
		atomic.AddInt32(&secondAttemptOpened, 1)
		time.Sleep(100 * time.Millisecond)
		return acceptOutcome("late")
	})

	req := ClientRequest{Producer: SingleMessageProducer(&echoMessage{Text: "ping"})}
	opts := baseCallOptions()
	opts.Hedging = &serviceconfig.HedgingPolicy{
		MaxAttempts:         3,
		HedgingDelay:        5 * time.Millisecond,
		NonFatalStatusCodes: []codes.Code{codes.Unavailable},
	}

	var handlerCalled bool
	err := HedgingExecutor{}.Execute(context.Background(), ct, testMethod, req, opts, nil, func(ctx context.Context, resp *StreamingResponse) error {
		handlerCalled = true
		return nil
	})
	if err == nil {
		t.Fatal("Execute() error = nil, want PermissionDenied")
	}
	if status.Code(err) != codes.PermissionDenied {
		t.Errorf("code = %v, want PermissionDenied", status.Code(err))
	}
	if handlerCalled {
		t.Error("handler should not be called when a fatal error wins")
	}
}
