package identity

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

const (
	headerAuthorization = "Authorization"
	headerLegacyAPIKey  = "X-CKAN-API-Key"
)

var (
	ErrMissingTokenID   = errors.New("token_missing_jti")
	ErrUnsupportedToken = errors.New("token_unsupported_algorithm")

	ErrTokenVerificationDisabled = errors.New("token_verification_disabled")
)

// tokenFromRequest applies the header precedence: the configured header,
// then Authorization, then the legacy API key header. Authorization values
// containing whitespace are HTTP auth credentials, not API tokens.
func tokenFromRequest(r *http.Request, customHeader string) string {
	headers := []string{customHeader, headerAuthorization, headerLegacyAPIKey}
	for _, name := range headers {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		value := strings.TrimSpace(r.Header.Get(name))
		if value == "" {
			continue
		}
		if strings.EqualFold(name, headerAuthorization) && strings.ContainsAny(value, " \t") {
			continue
		}
		return value
	}
	return ""
}

// Decoder extracts the token id from a signed API token. Without a secret
// no token can be verified, so every token is rejected and requests fall
// back to session or anonymous attribution.
type Decoder struct {
	secret    []byte
	algorithm string
	parser    *jwt.Parser
}

func NewDecoder(secret, algorithm string) *Decoder {
	algorithm = strings.ToUpper(strings.TrimSpace(algorithm))
	if algorithm == "" {
		algorithm = jwt.SigningMethodHS256.Alg()
	}
	d := &Decoder{
		algorithm: algorithm,
		parser:    jwt.NewParser(jwt.WithValidMethods([]string{algorithm})),
	}
	if secret != "" {
		d.secret = []byte(secret)
	}
	return d
}

// Verifying reports whether the decoder can accept any token at all.
func (d *Decoder) Verifying() bool {
	return len(d.secret) > 0
}

// TokenID returns the "jti" claim of a token whose HMAC signature checks
// out against the configured secret.
func (d *Decoder) TokenID(raw string) (string, error) {
	if !d.Verifying() {
		return "", ErrTokenVerificationDisabled
	}

	claims := jwt.MapClaims{}
	_, err := d.parser.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnsupportedToken, t.Method.Alg())
		}
		return d.secret, nil
	})
	if err != nil {
		return "", err
	}

	jti, ok := claims["jti"].(string)
	if !ok || strings.TrimSpace(jti) == "" {
		return "", ErrMissingTokenID
	}
	return jti, nil
}
