package corerpc

import (
	"context"
	"fmt"
	"io"

	"github.com/corerpc/corerpc/codes"
	"github.com/corerpc/corerpc/encoding"
	"github.com/corerpc/corerpc/metadata"
	"github.com/corerpc/corerpc/status"
	"github.com/corerpc/corerpc/transport"
)

// Encoder serializes one caller message into wire bytes.
type Encoder func(msg interface{}) ([]byte, error)

// Decoder deserializes wire bytes into a message produced by newMessage.
type Decoder func(data []byte, newMessage MessageFactory) (interface{}, error)

// codecEncoder adapts an encoding.Codec to an Encoder.
func codecEncoder(c encoding.Codec) Encoder {
	return c.Marshal
}

// codecDecoder adapts an encoding.Codec to a Decoder.
func codecDecoder(c encoding.Codec) Decoder {
	return func(data []byte, newMessage MessageFactory) (interface{}, error) {
		msg := newMessage()
		if err := c.Unmarshal(data, msg); err != nil {
			return nil, err
		}
		return msg, nil
	}
}

// rawBytesEncoder treats msg as already-serialized wire bytes, passing it
// through unchanged. It is used by the retry and hedging executors when
// replaying from the replay buffer, which stores messages pre-encoded —
// encoding them again through the caller's codec would double-encode.
func rawBytesEncoder() Encoder {
	return func(msg interface{}) ([]byte, error) {
		b, ok := msg.([]byte)
		if !ok {
			return nil, fmt.Errorf("corerpc: replay producer received non-[]byte message %T", msg)
		}
		return b, nil
	}
}

// Execute drives a single opened RPCStream to completion for one attempt
//. It concurrently writes req's metadata and messages onto
// stream.Outbound and reads stream.Inbound, classifying the first inbound
// part to produce a StreamingResponse. It is called once per attempt by
// every AttemptExecutor.
func Execute(ctx context.Context, req ClientRequest, attempt int, encode Encoder, decode Decoder, newMessage MessageFactory, stream *transport.RPCStream) (*StreamingResponse, error) {
	reqMD := req.Metadata.Clone()
	if attempt > 1 {
		reqMD.SetPreviousRPCAttempts(attempt - 1)
	}

	go writeRequest(ctx, stream.Outbound, reqMD, req.Producer, encode)

	first, err := stream.Inbound.Recv(ctx)
	if err != nil {
		if err == io.EOF {
			if ctx.Err() != nil {
				return rejected(status.New(codeFromContextErr(ctx.Err()), ctx.Err().Error()).Err()), nil
			}
			return rejected(status.New(codes.Internal, "corerpc: transport bug: empty response stream").Err()), nil
		}
		return rejected(status.ToRPCError(err)), nil
	}

	switch first.Kind {
	case transport.PartMetadata:
		body := newBody()
		go pumpBody(ctx, stream.Inbound, decode, newMessage, body)
		return &StreamingResponse{Accepted: true, Metadata: first.Metadata, Body: body}, nil
	case transport.PartStatus:
		return rejected(first.Status.WithMetadata(first.Metadata).Err()), nil
	default:
		return rejected(status.New(codes.Internal, "corerpc: transport bug: message received before metadata").Err()), nil
	}
}

func rejected(err error) *StreamingResponse {
	return &StreamingResponse{Accepted: false, RejectErr: err}
}

// writeRequest sends req's metadata followed by its producer's messages
// onto out, finishing the outbound half on return regardless of outcome.
// Its error is not surfaced directly — a write failure manifests to the
// caller as a failed or incomplete Recv on the paired Inbound, since both
// directions share the same underlying stream.
func writeRequest(ctx context.Context, out transport.Outbound, md metadata.MD, producer RequestProducer, encode Encoder) error {
	defer out.Close()
	if err := out.Send(ctx, transport.Part{Kind: transport.PartMetadata, Metadata: md}); err != nil {
		return err
	}
	if producer == nil {
		return nil
	}
	return producer(ctx, func(msg interface{}) error {
		data, err := encode(msg)
		if err != nil {
			return err
		}
		return out.Send(ctx, transport.Part{Kind: transport.PartMessage, Message: data})
	})
}

// pumpBody reads the remainder of an accepted response's inbound parts,
// zero or more messages followed by exactly one terminal status, into
// body, guaranteeing exactly one terminal event.
func pumpBody(ctx context.Context, in transport.Inbound, decode Decoder, newMessage MessageFactory, body *Body) {
	for {
		part, err := in.Recv(ctx)
		if err != nil {
			if err == io.EOF {
				body.finish(metadata.MD{}, status.New(codes.Internal, "corerpc: transport bug: response stream ended without a status").Err())
				return
			}
			body.finish(metadata.MD{}, status.ToRPCError(err))
			return
		}
		switch part.Kind {
		case transport.PartMessage:
			msg, err := decode(part.Message, newMessage)
			if err != nil {
				body.finish(metadata.MD{}, status.Wrap(codes.Unknown, err.Error(), metadata.MD{}, err))
				return
			}
			if !body.push(ctx, msg) {
				return
			}
		case transport.PartStatus:
			if part.Status.Code() == codes.OK {
				body.finish(part.Metadata, nil)
			} else {
				body.finish(part.Metadata, part.Status.WithMetadata(part.Metadata).Err())
			}
			return
		default:
			body.finish(metadata.MD{}, status.New(codes.Internal, "corerpc: transport bug: duplicate metadata part").Err())
			return
		}
	}
}
