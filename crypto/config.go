package crypto

import (
	"fmt"

	"crypto/tls"
	"crypto/x509"
	"io/ioutil"
)

// Functions

// NewInternalTLSConfig returns a TLS config that is
// already configured completely for use by replicas to
// gossip with each other. It defines very strict defaults
// and requires all replicas to verify each other by TLS means.
func NewInternalTLSConfig(certPath string, keyPath string, rootCertPath string) (*tls.Config, error) {

	var err error

	// Define very strict defaults for internal TLS usage.
	// Good parts of them were taken from the excellent post:
	// "Achieving a Perfect SSL Labs Score with Go":
	// https://blog.bracelab.com/achieving-perfect-ssl-labs-score-with-go
	config := &tls.Config{
		RootCAs:          x509.NewCertPool(),
		ClientCAs:        x509.NewCertPool(),
		ClientAuth:       tls.RequireAndVerifyClientCert,
		Certificates:     make([]tls.Certificate, 1),
		MinVersion:       tls.VersionTLS12,
		CurvePreferences: []tls.CurveID{tls.CurveP521, tls.CurveP384, tls.CurveP256},
		CipherSuites: []uint16{
			tls.TLS_ECDHE_RSA_WITH_AES_256_GCM_SHA384,
			tls.TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256,
			tls.TLS_ECDHE_ECDSA_WITH_AES_256_GCM_SHA384,
			tls.TLS_ECDHE_ECDSA_WITH_AES_128_GCM_SHA256,
		},
	}

	// Read in root certificate in PEM format supplied
	// via path in arguments.
	rootCert, err := ioutil.ReadFile(rootCertPath)
	if err != nil {
		return nil, fmt.Errorf("[crypto.NewInternalTLSConfig] Reading root certificate into memory failed with: %v", err)
	}

	// Append root certificate to root CA pool.
	if ok := config.RootCAs.AppendCertsFromPEM(rootCert); !ok {
		return nil, fmt.Errorf("[crypto.NewInternalTLSConfig] Failed to append root certificate from '%s' to root CA pool", rootCertPath)
	}

	// Append root certificate to client CA pool.
	if ok := config.ClientCAs.AppendCertsFromPEM(rootCert); !ok {
		return nil, fmt.Errorf("[crypto.NewInternalTLSConfig] Failed to append root certificate from '%s' to client CA pool", rootCertPath)
	}

	// Put certificate specified via arguments as the
	// only certificate into config.
	config.Certificates[0], err = tls.LoadX509KeyPair(certPath, keyPath)
	if err != nil {
		return nil, fmt.Errorf("[crypto.NewInternalTLSConfig] Failed to load TLS cert and key: %v", err)
	}

	return config, nil
}
