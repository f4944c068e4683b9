package crypto

import (
	"fmt"
	"net"
	"os"
	"time"

	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"path/filepath"
)

// Structs

// PKI holds the root certificate and key that sign
// the certificates of all replicas of a deployment.
type PKI struct {
	cert      *x509.Certificate
	certDER   []byte
	key       *rsa.PrivateKey
	rsaBits   int
	notBefore time.Time
	notAfter  time.Time
}

// Functions

// certTemplate returns a certificate template that
// has all default values for our certificates already set.
func certTemplate(notBefore time.Time, notAfter time.Time) (*x509.Certificate, error) {

	// For serial number generation we need a biggest
	// number to mark the range of the serial number.
	serialNumberLimit := new(big.Int).Lsh(big.NewInt(1), 128)

	// Now generate that random number.
	serialNumber, err := rand.Int(rand.Reader, serialNumberLimit)
	if err != nil {
		return nil, fmt.Errorf("[crypto.certTemplate] Could not generate random serial number: %v", err)
	}

	return &x509.Certificate{
		SignatureAlgorithm:    x509.SHA512WithRSA,
		SerialNumber:          serialNumber,
		Subject:               pkix.Name{Organization: []string{"Handoff counter internal PKI"}},
		NotBefore:             notBefore,
		NotAfter:              notAfter,
		BasicConstraintsValid: true,
	}, nil
}

// NewPKI generates a fresh root key pair and a self-signed
// root certificate valid from notBefore for validFor.
func NewPKI(notBefore time.Time, validFor time.Duration, rsaBits int) (*PKI, error) {

	key, err := rsa.GenerateKey(rand.Reader, rsaBits)
	if err != nil {
		return nil, fmt.Errorf("[crypto.NewPKI] Failed to generate root key: %v", err)
	}

	template, err := certTemplate(notBefore, notBefore.Add(validFor))
	if err != nil {
		return nil, err
	}

	// Set specific certificate values for a root certificate.
	template.IsCA = true
	template.KeyUsage = x509.KeyUsageDigitalSignature | x509.KeyUsageKeyEncipherment | x509.KeyUsageCertSign
	template.ExtKeyUsage = []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth, x509.ExtKeyUsageClientAuth}

	certDER, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	if err != nil {
		return nil, fmt.Errorf("[crypto.NewPKI] Failed to create root certificate: %v", err)
	}

	// Parse root certificate again so that we can sign with it.
	cert, err := x509.ParseCertificate(certDER)
	if err != nil {
		return nil, fmt.Errorf("[crypto.NewPKI] Failed to parse root certificate: %v", err)
	}

	return &PKI{
		cert:      cert,
		certDER:   certDER,
		key:       key,
		rsaBits:   rsaBits,
		notBefore: notBefore,
		notAfter:  notBefore.Add(validFor),
	}, nil
}

// WriteRoot stores root-cert.pem and root-key.pem in dir.
func (p *PKI) WriteRoot(dir string) error {

	err := writePEM(filepath.Join(dir, "root-cert.pem"), "CERTIFICATE", p.certDER, 0644)
	if err != nil {
		return err
	}

	return writePEM(filepath.Join(dir, "root-key.pem"), "RSA PRIVATE KEY", x509.MarshalPKCS1PrivateKey(p.key), 0600)
}

// IssueNodeCert generates a key pair for replica name,
// signs its certificate with the root and stores both as
// <name>-cert.pem and <name>-key.pem in dir. hosts may
// contain IP addresses and DNS names.
func (p *PKI) IssueNodeCert(dir string, name string, hosts []string) (string, string, error) {

	key, err := rsa.GenerateKey(rand.Reader, p.rsaBits)
	if err != nil {
		return "", "", fmt.Errorf("[crypto.IssueNodeCert] Failed to generate key for %s: %v", name, err)
	}

	template, err := certTemplate(p.notBefore, p.notAfter)
	if err != nil {
		return "", "", err
	}

	// Set specific certificate values for a replica certificate.
	template.Subject.CommonName = name
	template.KeyUsage = x509.KeyUsageDigitalSignature | x509.KeyUsageKeyEncipherment
	template.ExtKeyUsage = []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth, x509.ExtKeyUsageClientAuth}

	for _, host := range hosts {
		if ip := net.ParseIP(host); ip != nil {
			template.IPAddresses = append(template.IPAddresses, ip)
		} else {
			template.DNSNames = append(template.DNSNames, host)
		}
	}

	certDER, err := x509.CreateCertificate(rand.Reader, template, p.cert, &key.PublicKey, p.key)
	if err != nil {
		return "", "", fmt.Errorf("[crypto.IssueNodeCert] Failed to create certificate for %s: %v", name, err)
	}

	certPath := filepath.Join(dir, fmt.Sprintf("%s-cert.pem", name))
	keyPath := filepath.Join(dir, fmt.Sprintf("%s-key.pem", name))

	if err := writePEM(certPath, "CERTIFICATE", certDER, 0644); err != nil {
		return "", "", err
	}

	if err := writePEM(keyPath, "RSA PRIVATE KEY", x509.MarshalPKCS1PrivateKey(key), 0600); err != nil {
		return "", "", err
	}

	return certPath, keyPath, nil
}

// writePEM encodes der as PEM block of type blockType
// and saves it to stable storage at path.
func writePEM(path string, blockType string, der []byte, perm os.FileMode) error {

	file, err := os.OpenFile(path, (os.O_WRONLY | os.O_CREATE | os.O_TRUNC), perm)
	if err != nil {
		return fmt.Errorf("[crypto.writePEM] Failed to open file '%s': %v", path, err)
	}
	defer file.Close()

	if err := pem.Encode(file, &pem.Block{Type: blockType, Bytes: der}); err != nil {
		return fmt.Errorf("[crypto.writePEM] Failed to write PEM block to '%s': %v", path, err)
	}

	return file.Sync()
}
