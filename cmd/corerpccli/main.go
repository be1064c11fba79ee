// Command corerpccli is a runnable smoke test of the corerpc public API:
// it stands up a demo echo service on the in-process transport fixture
// and either serves it until interrupted or dials it and prints the
// result of one call. It is not a generated-stub CLI.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"

	"github.com/alexflint/go-arg"

	"github.com/corerpc/corerpc"
	"github.com/corerpc/corerpc/encoding"
	_ "github.com/corerpc/corerpc/encoding/jsoncodec"
	"github.com/corerpc/corerpc/resolver"
	"github.com/corerpc/corerpc/transport"
	"github.com/corerpc/corerpc/transport/inprocess"
)

// echoMessage is the demo request/response shape, a plain Go struct so the
// JSON codec can (de)serialize it without a protoc pipeline.
type echoMessage struct {
	Text string `json:"text"`
}

var sayMethod = transport.MethodDescriptor{Service: "demo.Echo", Method: "Say"}
var streamMethod = transport.MethodDescriptor{Service: "demo.Echo", Method: "Stream", StreamingServer: true}

func newEchoRouter() *corerpc.Router {
	r := corerpc.NewRouter()
	r.Register(sayMethod, jsonCodec(), newEchoMessage, func(ctx context.Context, req *corerpc.ServerRequest) (*corerpc.ServerResponse, error) {
		msg, _, ok := req.Body.Recv(ctx)
		if !ok {
			return &corerpc.ServerResponse{}, nil
		}
		in := msg.(*echoMessage)
		return &corerpc.ServerResponse{
			Producer: corerpc.SingleMessageProducer(&echoMessage{Text: "echo: " + in.Text}),
		}, nil
	})
	r.Register(streamMethod, jsonCodec(), newEchoMessage, func(ctx context.Context, req *corerpc.ServerRequest) (*corerpc.ServerResponse, error) {
		msg, _, ok := req.Body.Recv(ctx)
		if !ok {
			return &corerpc.ServerResponse{}, nil
		}
		in := msg.(*echoMessage)
		return &corerpc.ServerResponse{
			Producer: func(ctx context.Context, send func(interface{}) error) error {
				for i := 1; i <= 3; i++ {
					if err := send(&echoMessage{Text: fmt.Sprintf("echo %d: %s", i, in.Text)}); err != nil {
						return err
					}
				}
				return nil
			},
		}, nil
	})
	return r
}

func jsonCodec() encoding.Codec {
	c := encoding.GetCodec("json")
	if c == nil {
		log.Fatal("corerpccli: json codec not registered")
	}
	return c
}

func newEchoMessage() interface{} { return &echoMessage{} }

type cmdServeArgs struct{}

type cmdCallArgs struct {
	Message   string `arg:"positional" default:"hello" help:"message to echo"`
	Streaming bool   `help:"call the server-streaming Stream method instead of the unary Say"`
}

type allArgs struct {
	Serve *cmdServeArgs `arg:"subcommand:serve" help:"start the demo echo service and block until interrupted"`
	Call  *cmdCallArgs  `arg:"subcommand:call" help:"start the demo echo service and perform one call against it"`
}

func main() {
	var args allArgs
	p, err := arg.NewParser(arg.Config{}, &args)
	if err != nil {
		log.Fatalf("corerpccli: failed to create arg parser: %s", err)
	}
	if err := p.Parse(os.Args[1:]); err != nil {
		if err == arg.ErrHelp {
			p.WriteHelp(os.Stdout)
			return
		}
		fmt.Printf("error: %v\n", err)
		p.WriteUsage(os.Stdout)
		os.Exit(1)
	}

	switch {
	case args.Serve != nil:
		cmdServe()
	case args.Call != nil:
		cmdCall(args.Call)
	default:
		p.WriteHelp(os.Stdout)
	}
}

func cmdServe() {
	ct, st := inprocess.NewChannel(0)
	defer ct.Close()
	defer st.Close()

	router := newEchoRouter()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	fmt.Println("corerpccli: serving demo.Echo on the in-process transport fixture, Ctrl+C to stop")
	if err := router.Serve(ctx, st); err != nil && ctx.Err() == nil {
		log.Fatalf("corerpccli: Serve: %v", err)
	}
}

func cmdCall(args *cmdCallArgs) {
	ct, st := inprocess.NewChannel(0)
	defer ct.Close()
	defer st.Close()

	router := newEchoRouter()
	go router.Serve(context.Background(), st)

	cc, err := corerpc.Dial("inprocess:///demo.Echo",
		corerpc.WithInsecure(),
		corerpc.WithCodec(jsonCodec()),
		corerpc.WithResolvedTransport(resolver.Address{Addr: "local"}, ct),
	)
	if err != nil {
		log.Fatalf("corerpccli: Dial: %v", err)
	}
	defer cc.Close()

	ctx := context.Background()
	if !args.Streaming {
		var reply echoMessage
		if err := cc.Invoke(ctx, sayMethod, &echoMessage{Text: args.Message}, &reply); err != nil {
			log.Fatalf("corerpccli: Invoke: %v", err)
		}
		fmt.Println(reply.Text)
		return
	}

	err = cc.Execute(ctx, streamMethod, corerpc.ClientRequest{
		Producer: corerpc.SingleMessageProducer(&echoMessage{Text: args.Message}),
	}, func(ctx context.Context, resp *corerpc.StreamingResponse) error {
		if !resp.Accepted {
			return resp.RejectErr
		}
		for {
			msg, recvErr, ok := resp.Body.Recv(ctx)
			if !ok {
				return recvErr
			}
			fmt.Println(msg.(*echoMessage).Text)
		}
	}, func(o *corerpc.CallOptions) { o.NewMessage = newEchoMessage })
	if err != nil {
		log.Fatalf("corerpccli: Execute: %v", err)
	}
}
