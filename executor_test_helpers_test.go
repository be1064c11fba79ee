package corerpc

import (
	"context"

	"github.com/corerpc/corerpc/codes"
	"github.com/corerpc/corerpc/encoding"
	_ "github.com/corerpc/corerpc/encoding/jsoncodec"
	"github.com/corerpc/corerpc/metadata"
	"github.com/corerpc/corerpc/status"
	"github.com/corerpc/corerpc/transport"
)

var testCodec = encoding.GetCodec("json")

var testMethod = transport.MethodDescriptor{Service: "test.Echo", Method: "Say"}

type echoMessage struct {
	Text string
}

func newEchoFactory() MessageFactory {
	return func() interface{} { return new(echoMessage) }
}

// scriptedOutcome is one server-side reply a test's fake handler produces
// for a given attempt, either a trailers-only rejection or an accepted
// single-message response.
type scriptedOutcome struct {
	accept        bool
	payload       string
	trailer       metadata.MD
	rejectCode    codes.Code
	rejectTrailer metadata.MD
}

func acceptOutcome(payload string) scriptedOutcome {
	return scriptedOutcome{accept: true, payload: payload}
}

func rejectOutcome(code codes.Code, trailer metadata.MD) scriptedOutcome {
	return scriptedOutcome{rejectCode: code, rejectTrailer: trailer}
}

func (o scriptedOutcome) write(ctx context.Context, out transport.Outbound) {
	if !o.accept {
		out.Send(ctx, transport.Part{Kind: transport.PartStatus, Metadata: o.rejectTrailer, Status: status.New(o.rejectCode, "scripted rejection")})
		out.Close()
		return
	}
	out.Send(ctx, transport.Part{Kind: transport.PartMetadata, Metadata: metadata.MD{}})
	data, _ := testCodec.Marshal(echoMessage{Text: o.payload})
	out.Send(ctx, transport.Part{Kind: transport.PartMessage, Message: data})
	out.Send(ctx, transport.Part{Kind: transport.PartStatus, Metadata: o.trailer, Status: status.New(codes.OK, "")})
	out.Close()
}

// serveScripted serves st forever (until its channel is closed), calling
// script with the 1-indexed attempt number derived from each incoming
// stream's grpc-previous-rpc-attempts metadata to decide how to respond.
func serveScripted(st transport.ServerTransport, script func(attempt int) scriptedOutcome) {
	go st.Serve(context.Background(), func(stream *transport.RPCStream, _ *transport.ServerContext) {
		ctx := context.Background()
		first, err := stream.Inbound.Recv(ctx)
		if err != nil {
			return
		}
		previous, _ := first.Metadata.PreviousRPCAttempts()
		attempt := previous + 1
		for {
			if _, err := stream.Inbound.Recv(ctx); err != nil {
				break
			}
		}
		script(attempt).write(ctx, stream.Outbound)
	})
}

func baseCallOptions() CallOptions {
	return CallOptions{
		Codec:      testCodec,
		NewMessage: newEchoFactory(),
	}
}
