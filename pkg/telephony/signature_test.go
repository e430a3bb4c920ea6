package telephony

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func signedRequest(t *testing.T, v *Validator, target string, params map[string]string) *http.Request {
	t.Helper()
	form := url.Values{}
	for k, value := range params {
		form.Set(k, value)
	}
	req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set(SignatureHeader, v.Sign("http://example.com"+target, params))
	return req
}

func TestSignatureValid(t *testing.T) {
	v := NewValidator("secret-token")
	req := signedRequest(t, v, "/telephony/inbound", map[string]string{
		"CallRef": "CALL_1",
		"From":    "+15550100",
		"To":      "+15550199",
	})
	require.True(t, v.Valid(req))
}

func TestSignatureRejectsTamperedParams(t *testing.T) {
	v := NewValidator("secret-token")
	params := map[string]string{"CallRef": "CALL_1", "From": "+15550100"}
	req := signedRequest(t, v, "/telephony/inbound", params)

	// Re-sign the body with an extra parameter the signature doesn't cover
	form := url.Values{}
	for k, value := range params {
		form.Set(k, value)
	}
	form.Set("From", "+15550666")
	tampered := httptest.NewRequest(http.MethodPost, "/telephony/inbound", strings.NewReader(form.Encode()))
	tampered.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	tampered.Header.Set(SignatureHeader, req.Header.Get(SignatureHeader))
	require.False(t, v.Valid(tampered))
}

func TestSignatureRejectsWrongToken(t *testing.T) {
	signer := NewValidator("their-token")
	v := NewValidator("our-token")
	req := signedRequest(t, signer, "/telephony/inbound", map[string]string{"CallRef": "CALL_1"})
	require.False(t, v.Valid(req))
}

func TestSignatureRejectsMissingHeader(t *testing.T) {
	v := NewValidator("secret-token")
	req := httptest.NewRequest(http.MethodPost, "/telephony/inbound", strings.NewReader("CallRef=CALL_1"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	require.False(t, v.Valid(req))
}
