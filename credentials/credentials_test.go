package credentials

import (
	"context"
	"net"
	"testing"
)

func TestInsecureHandshakeRoundTrip(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	creds := NewInsecure()
	go creds.ServerHandshake(server)

	conn, auth, err := creds.ClientHandshake(context.Background(), "localhost:0", client)
	if err != nil {
		t.Fatalf("ClientHandshake() error = %v", err)
	}
	if conn != client {
		t.Error("insecure ClientHandshake should return the connection unchanged")
	}
	if auth.AuthType() != "insecure" {
		t.Errorf("AuthType() = %q, want insecure", auth.AuthType())
	}
}

func TestInsecureCloneAndInfo(t *testing.T) {
	creds := NewInsecure()
	if creds.Clone().Info().SecurityProtocol != "insecure" {
		t.Error("Clone() should preserve SecurityProtocol")
	}
	if err := creds.OverrideServerName("anything"); err != nil {
		t.Errorf("OverrideServerName() error = %v", err)
	}
}
