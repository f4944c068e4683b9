package comm

import (
	"time"

	"crypto/tls"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/encoding/gzip"
	"google.golang.org/grpc/keepalive"
)

// Set the maximum number of bytes a message is allowed to
// carry to (16 * 1024 * 1024 B) + 2048 B (buffer) > 16 MiB.
// Symmetric - send and receive option.
var maxMsgSize = 16779264

// transportCredentials uses the internal TLS config if
// supplied and falls back to plain connections otherwise.
func transportCredentials(tlsConfig *tls.Config) credentials.TransportCredentials {

	if tlsConfig == nil {
		return insecure.NewCredentials()
	}

	return credentials.NewTLS(tlsConfig)
}

// ServerOptions returns a list of gRPC server
// options that a replica uses to accept gossip.
func ServerOptions(tlsConfig *tls.Config) []grpc.ServerOption {

	enfPolicy := keepalive.EnforcementPolicy{
		// Clients connecting to this replica should wait
		// at least 10 seconds before sending a keepalive.
		MinTime: 10 * time.Second,
		// Expect keepalives even when no streams are active.
		PermitWithoutStream: true,
	}

	kaParams := keepalive.ServerParameters{
		// The replica will ping the other one after
		// 30 seconds of inactivity for keepalive.
		Time: 30 * time.Second,
		// If no response to such keepalive ping is received
		// after 20 seconds, the connection is closed.
		Timeout: 20 * time.Second,
	}

	return []grpc.ServerOption{
		grpc.Creds(transportCredentials(tlsConfig)),
		grpc.KeepaliveEnforcementPolicy(enfPolicy),
		grpc.KeepaliveParams(kaParams),
		grpc.MaxRecvMsgSize(maxMsgSize),
		grpc.MaxSendMsgSize(maxMsgSize),
	}
}

// ClientOptions defines gRPC options for connection
// attempts from one replica to another.
func ClientOptions(tlsConfig *tls.Config) []grpc.DialOption {

	// These call options will be used for every call
	// via this connection.
	callOpts := []grpc.CallOption{
		// Use the JSON codec and GZIP for compression.
		grpc.CallContentSubtype(codecName),
		grpc.UseCompressor(gzip.Name),
		// Set maximum receive and send sizes.
		grpc.MaxCallRecvMsgSize(maxMsgSize),
		grpc.MaxCallSendMsgSize(maxMsgSize),
	}

	kaParams := keepalive.ClientParameters{
		// The client will ping the other replica after
		// 30 seconds of inactivity for keepalive.
		Time: 30 * time.Second,
		// If no response to such keepalive ping is received
		// after 20 seconds, the connection is closed.
		Timeout: 20 * time.Second,
		// Expect keepalives even when no streams are active.
		PermitWithoutStream: true,
	}

	return []grpc.DialOption{
		grpc.WithDefaultCallOptions(callOpts...),
		grpc.WithKeepaliveParams(kaParams),
		grpc.WithTransportCredentials(transportCredentials(tlsConfig)),
	}
}
