package corerpc

import (
	"context"
	"testing"

	"github.com/corerpc/corerpc/codes"
	"github.com/corerpc/corerpc/metadata"
	"github.com/corerpc/corerpc/transport"
	"github.com/corerpc/corerpc/transport/inprocess"
)

func TestRouterUnarySuccess(t *testing.T) {
	ct, st := inprocess.NewChannel(0)
	router := NewRouter()
	router.Register(testMethod, testCodec, newEchoFactory(), func(ctx context.Context, req *ServerRequest) (*ServerResponse, error) {
		msg, err, ok := req.Body.Recv(ctx)
		if !ok {
			t.Fatalf("Body.Recv() ok = false, err = %v", err)
		}
		in := msg.(*echoMessage)
		return &ServerResponse{
			Metadata: metadata.MD{},
			Producer: SingleMessageProducer(&echoMessage{Text: "echo:" + in.Text}),
			Trailer:  metadata.MD{},
		}, nil
	})
	go router.Serve(context.Background(), st)

	ctx := context.Background()
	stream, err := ct.OpenStream(ctx, testMethod)
	if err != nil {
		t.Fatalf("OpenStream() error = %v", err)
	}
	stream.Outbound.Send(ctx, transport.Part{Kind: transport.PartMetadata, Metadata: metadata.MD{}})
	data, _ := testCodec.Marshal(&echoMessage{Text: "hi"})
	stream.Outbound.Send(ctx, transport.Part{Kind: transport.PartMessage, Message: data})
	stream.Outbound.Close()

	first, err := stream.Inbound.Recv(ctx)
	if err != nil || first.Kind != transport.PartMetadata {
		t.Fatalf("first part = (%+v, %v), want metadata", first, err)
	}
	second, err := stream.Inbound.Recv(ctx)
	if err != nil || second.Kind != transport.PartMessage {
		t.Fatalf("second part = (%+v, %v), want message", second, err)
	}
	var out echoMessage
	if err := testCodec.Unmarshal(second.Message, &out); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if out.Text != "echo:hi" {
		t.Errorf("got %q, want %q", out.Text, "echo:hi")
	}
	third, err := stream.Inbound.Recv(ctx)
	if err != nil || third.Kind != transport.PartStatus || third.Status.Code() != codes.OK {
		t.Fatalf("third part = (%+v, %v), want OK status", third, err)
	}
}

func TestRouterUnknownMethodIsUnimplemented(t *testing.T) {
	ct, st := inprocess.NewChannel(0)
	router := NewRouter()
	go router.Serve(context.Background(), st)

	ctx := context.Background()
	stream, err := ct.OpenStream(ctx, testMethod)
	if err != nil {
		t.Fatalf("OpenStream() error = %v", err)
	}
	stream.Outbound.Send(ctx, transport.Part{Kind: transport.PartMetadata, Metadata: metadata.MD{}})
	stream.Outbound.Close()

	part, err := stream.Inbound.Recv(ctx)
	if err != nil {
		t.Fatalf("Recv() error = %v", err)
	}
	if part.Kind != transport.PartStatus || part.Status.Code() != codes.Unimplemented {
		t.Fatalf("part = %+v, want trailers-only Unimplemented", part)
	}
}

func TestRouterEnforcesSingleMessageForUnary(t *testing.T) {
	ct, st := inprocess.NewChannel(0)
	router := NewRouter()
	router.Register(testMethod, testCodec, newEchoFactory(), func(ctx context.Context, req *ServerRequest) (*ServerResponse, error) {
		req.Body.Recv(ctx)
		_, err, ok := req.Body.Recv(ctx)
		if !ok && err != nil {
			return nil, err
		}
		return &ServerResponse{Metadata: metadata.MD{}}, nil
	})
	go router.Serve(context.Background(), st)

	ctx := context.Background()
	stream, err := ct.OpenStream(ctx, testMethod)
	if err != nil {
		t.Fatalf("OpenStream() error = %v", err)
	}
	stream.Outbound.Send(ctx, transport.Part{Kind: transport.PartMetadata, Metadata: metadata.MD{}})
	data, _ := testCodec.Marshal(&echoMessage{Text: "one"})
	stream.Outbound.Send(ctx, transport.Part{Kind: transport.PartMessage, Message: data})
	stream.Outbound.Send(ctx, transport.Part{Kind: transport.PartMessage, Message: data})
	stream.Outbound.Close()

	first, err := stream.Inbound.Recv(ctx)
	if err != nil {
		t.Fatalf("Recv() error = %v", err)
	}
	if first.Kind != transport.PartStatus || first.Status.Code() != codes.Internal {
		t.Fatalf("part = %+v, want trailers-only Internal (more than one request message)", first)
	}
}
