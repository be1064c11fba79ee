// Package credentials implements the transport-security contracts corerpc
// depends on without terminating TLS in the core engine itself: a
// Transport implementation consults these to authenticate a connection.
package credentials

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"net"
	"os"
	"strings"
)

// alpnProtoStr are the application-level protocols corerpc negotiates.
var alpnProtoStr = []string{"h2"}

// PerRPCCredentials attaches security metadata to every RPC, e.g. a bearer
// token, refreshed as needed.
type PerRPCCredentials interface {
	// GetRequestMetadata returns metadata to attach to the outgoing RPC
	// whose target URI is uri.
	GetRequestMetadata(ctx context.Context, uri ...string) (map[string]string, error)
	// RequireTransportSecurity reports whether these credentials must only
	// be used over a secure channel.
	RequireTransportSecurity() bool
}

// ProtocolInfo describes the wire and security protocol in use.
type ProtocolInfo struct {
	ProtocolVersion  string
	SecurityProtocol string
	SecurityVersion  string
	ServerName       string
}

// AuthInfo is the result of a successful handshake.
type AuthInfo interface {
	AuthType() string
}

// TransportCredentials performs the handshake a Transport implementation
// uses to authenticate a raw connection, client- or server-side.
type TransportCredentials interface {
	ClientHandshake(ctx context.Context, authority string, conn net.Conn) (net.Conn, AuthInfo, error)
	ServerHandshake(conn net.Conn) (net.Conn, AuthInfo, error)
	Info() ProtocolInfo
	Clone() TransportCredentials
	OverrideServerName(name string) error
}

// insecureAuthInfo is the AuthInfo returned by the insecure credentials.
type insecureAuthInfo struct{}

func (insecureAuthInfo) AuthType() string { return "insecure" }

type insecureCreds struct{}

func (insecureCreds) ClientHandshake(_ context.Context, _ string, conn net.Conn) (net.Conn, AuthInfo, error) {
	return conn, insecureAuthInfo{}, nil
}

func (insecureCreds) ServerHandshake(conn net.Conn) (net.Conn, AuthInfo, error) {
	return conn, insecureAuthInfo{}, nil
}

func (insecureCreds) Info() ProtocolInfo {
	return ProtocolInfo{SecurityProtocol: "insecure"}
}

func (insecureCreds) Clone() TransportCredentials { return insecureCreds{} }

func (insecureCreds) OverrideServerName(string) error { return nil }

// NewInsecure returns TransportCredentials whose handshake is a no-op,
// for use with the in-process transport fixture and local testing.
func NewInsecure() TransportCredentials { return insecureCreds{} }

// TLSInfo is the AuthInfo produced by a TLS handshake.
type TLSInfo struct {
	State tls.ConnectionState
}

func (t TLSInfo) AuthType() string { return "tls" }

type tlsCreds struct {
	config *tls.Config
}

func (c *tlsCreds) Info() ProtocolInfo {
	return ProtocolInfo{
		SecurityProtocol: "tls",
		SecurityVersion:  "1.2",
		ServerName:       c.config.ServerName,
	}
}

func (c *tlsCreds) ClientHandshake(ctx context.Context, authority string, rawConn net.Conn) (net.Conn, AuthInfo, error) {
	cfg := c.config.Clone()
	if cfg.ServerName == "" {
		if colon := strings.LastIndex(authority, ":"); colon != -1 {
			cfg.ServerName = authority[:colon]
		} else {
			cfg.ServerName = authority
		}
	}
	conn := tls.Client(rawConn, cfg)
	errCh := make(chan error, 1)
	go func() { errCh <- conn.Handshake() }()
	select {
	case err := <-errCh:
		if err != nil {
			return nil, nil, err
		}
	case <-ctx.Done():
		return nil, nil, ctx.Err()
	}
	return conn, TLSInfo{conn.ConnectionState()}, nil
}

func (c *tlsCreds) ServerHandshake(rawConn net.Conn) (net.Conn, AuthInfo, error) {
	conn := tls.Server(rawConn, c.config)
	if err := conn.Handshake(); err != nil {
		return nil, nil, err
	}
	return conn, TLSInfo{conn.ConnectionState()}, nil
}

func (c *tlsCreds) Clone() TransportCredentials {
	return NewTLS(c.config)
}

func (c *tlsCreds) OverrideServerName(serverName string) error {
	c.config.ServerName = serverName
	return nil
}

// NewTLS constructs TransportCredentials from a *tls.Config.
func NewTLS(c *tls.Config) TransportCredentials {
	tc := &tlsCreds{config: c.Clone()}
	tc.config.NextProtos = alpnProtoStr
	return tc
}

// NewClientTLSFromCert builds client TLS credentials that trust cp,
// optionally overriding the server name used for certificate verification.
func NewClientTLSFromCert(cp *x509.CertPool, serverNameOverride string) TransportCredentials {
	return NewTLS(&tls.Config{ServerName: serverNameOverride, RootCAs: cp})
}

// NewClientTLSFromFile builds client TLS credentials that trust the
// certificate(s) PEM-encoded in certFile.
func NewClientTLSFromFile(certFile, serverNameOverride string) (TransportCredentials, error) {
	b, err := os.ReadFile(certFile)
	if err != nil {
		return nil, err
	}
	cp := x509.NewCertPool()
	if !cp.AppendCertsFromPEM(b) {
		return nil, fmt.Errorf("credentials: failed to append certificates from %s", certFile)
	}
	return NewTLS(&tls.Config{ServerName: serverNameOverride, RootCAs: cp}), nil
}

// NewServerTLSFromCert builds server TLS credentials presenting cert.
func NewServerTLSFromCert(cert *tls.Certificate) TransportCredentials {
	return NewTLS(&tls.Config{Certificates: []tls.Certificate{*cert}})
}

// NewServerTLSFromFile builds server TLS credentials from a cert/key pair
// on disk.
func NewServerTLSFromFile(certFile, keyFile string) (TransportCredentials, error) {
	cert, err := tls.LoadX509KeyPair(certFile, keyFile)
	if err != nil {
		return nil, err
	}
	return NewTLS(&tls.Config{Certificates: []tls.Certificate{cert}}), nil
}
