package tlsauth

import (
	"crypto/x509"
	"errors"
	"slices"
	"strings"
	"time"

	"github.com/neighborhoods/docker-oversip/uri"
)

//go:generate go tool mockgen -destination=../internal/testutil/sipmock/tlsauth.go -package=sipmock . IdentityExtractor,Validator

// Validation error codes.
const (
	ErrorCodeEmptyChain       = "empty_chain"
	ErrorCodeUnknownAuthority = "unknown_authority"
	ErrorCodeExpired          = "expired"
	ErrorCodeHostname         = "hostname"
	ErrorCodeInvalid          = "invalid"
)

// Result is the outcome of a certificate chain validation.
type Result struct {
	// Leaf is the peer certificate, nil for an empty chain.
	Leaf  *x509.Certificate
	Valid bool
	// ErrorCode is one of the ErrorCode constants, empty when Valid.
	ErrorCode string
	// ErrorDescription is a human readable failure description.
	ErrorDescription string
}

// Validator validates a peer certificate chain, leaf first.
type Validator interface {
	Validate(chain []*x509.Certificate) Result
}

// IdentityExtractor extracts the SIP identities of a peer certificate.
type IdentityExtractor interface {
	SIPIdentities(leaf *x509.Certificate) []string
}

// X509Validator verifies chains with [x509.Certificate.Verify].
type X509Validator struct {
	// Roots are the trusted CAs. If nil, the system pool is used.
	Roots *x509.CertPool
	// Now returns the verification time. If nil, [time.Now] is used.
	Now func() time.Time
}

func (v *X509Validator) Validate(chain []*x509.Certificate) Result {
	if len(chain) == 0 || chain[0] == nil {
		return Result{ErrorCode: ErrorCodeEmptyChain, ErrorDescription: "no peer certificate"}
	}

	leaf := chain[0]
	opts := x509.VerifyOptions{
		Intermediates: x509.NewCertPool(),
		KeyUsages:     []x509.ExtKeyUsage{x509.ExtKeyUsageAny},
	}
	if v != nil {
		opts.Roots = v.Roots
		if v.Now != nil {
			opts.CurrentTime = v.Now()
		}
	}
	for _, crt := range chain[1:] {
		if crt != nil {
			opts.Intermediates.AddCert(crt)
		}
	}

	if _, err := leaf.Verify(opts); err != nil {
		return Result{Leaf: leaf, ErrorCode: errorCode(err), ErrorDescription: err.Error()}
	}
	return Result{Leaf: leaf, Valid: true}
}

func errorCode(err error) string {
	var (
		authErr    x509.UnknownAuthorityError
		invalidErr x509.CertificateInvalidError
		hostErr    x509.HostnameError
	)
	switch {
	case errors.As(err, &authErr):
		return ErrorCodeUnknownAuthority
	case errors.As(err, &invalidErr) && invalidErr.Reason == x509.Expired:
		return ErrorCodeExpired
	case errors.As(err, &hostErr):
		return ErrorCodeHostname
	default:
		return ErrorCodeInvalid
	}
}

// SANExtractor extracts SIP domain identities following RFC 5922 Section 7.1:
// the hosts of sip and sips URI SANs, otherwise the DNS SANs, otherwise the
// subject common name.
type SANExtractor struct{}

func (SANExtractor) SIPIdentities(leaf *x509.Certificate) []string {
	if leaf == nil {
		return nil
	}

	var ids []string
	for _, u := range leaf.URIs {
		if u == nil || (u.Scheme != "sip" && u.Scheme != "sips") {
			continue
		}
		sipURI, err := uri.Parse(u.String())
		if err != nil {
			continue
		}
		ids = append(ids, strings.ToLower(sipURI.Host))
	}
	if len(ids) == 0 {
		for _, name := range leaf.DNSNames {
			ids = append(ids, strings.ToLower(name))
		}
	}
	if len(ids) == 0 && leaf.Subject.CommonName != "" {
		ids = append(ids, strings.ToLower(leaf.Subject.CommonName))
	}

	slices.Sort(ids)
	return slices.Compact(ids)
}
