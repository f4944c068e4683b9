package crypto

import (
	"path/filepath"
	"testing"
	"time"

	"crypto/tls"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestInternalTLSHandshake issues certificates for two
// replicas and lets them complete a mutual handshake.
func TestInternalTLSHandshake(t *testing.T) {

	dir := t.TempDir()

	pki, err := NewPKI(time.Now().Add(-time.Minute), time.Hour, 2048)
	require.NoError(t, err)
	require.NoError(t, pki.WriteRoot(dir))

	serverCert, serverKey, err := pki.IssueNodeCert(dir, "root-1", []string{"root-1", "127.0.0.1"})
	require.NoError(t, err)

	clientCert, clientKey, err := pki.IssueNodeCert(dir, "leaf-1", []string{"leaf-1"})
	require.NoError(t, err)

	rootCert := filepath.Join(dir, "root-cert.pem")

	serverConf, err := NewInternalTLSConfig(serverCert, serverKey, rootCert)
	require.NoError(t, err)

	clientConf, err := NewInternalTLSConfig(clientCert, clientKey, rootCert)
	require.NoError(t, err)
	clientConf.ServerName = "root-1"

	listener, err := tls.Listen("tcp", "127.0.0.1:0", serverConf)
	require.NoError(t, err)
	defer listener.Close()

	type result struct {
		conn *tls.Conn
		err  error
	}

	accepted := make(chan result, 1)
	go func() {
		conn, err := listener.Accept()
		if err != nil {
			accepted <- result{err: err}
			return
		}
		tlsConn := conn.(*tls.Conn)
		accepted <- result{conn: tlsConn, err: tlsConn.Handshake()}
	}()

	client, err := tls.Dial("tcp", listener.Addr().String(), clientConf)
	require.NoError(t, err)
	defer client.Close()

	res := <-accepted
	require.NoError(t, res.err)
	defer res.conn.Close()

	server := res.conn
	state := server.ConnectionState()
	require.Len(t, state.PeerCertificates, 1)
	assert.Equal(t, "leaf-1", state.PeerCertificates[0].Subject.CommonName)
}

func TestNewInternalTLSConfigErrors(t *testing.T) {

	dir := t.TempDir()

	_, err := NewInternalTLSConfig("cert.pem", "key.pem", filepath.Join(dir, "missing.pem"))
	assert.Error(t, err)

	pki, err := NewPKI(time.Now(), time.Hour, 2048)
	require.NoError(t, err)
	require.NoError(t, pki.WriteRoot(dir))

	// Root is fine but the replica key pair is missing.
	_, err = NewInternalTLSConfig(filepath.Join(dir, "nope-cert.pem"), filepath.Join(dir, "nope-key.pem"), filepath.Join(dir, "root-cert.pem"))
	assert.Error(t, err)
}
