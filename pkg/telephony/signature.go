package telephony

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"net/http"
	"sort"
)

// SignatureHeader carries the provider's HMAC over the request.
const SignatureHeader = "X-Telephony-Signature"

// Validator authenticates signaling webhooks before any field is
// trusted. The signature is an HMAC-SHA1 of the full request URL with
// the sorted form parameters appended, base64-encoded.
type Validator struct {
	authToken []byte
}

func NewValidator(authToken string) *Validator {
	return &Validator{authToken: []byte(authToken)}
}

func (v *Validator) Valid(r *http.Request) bool {
	if err := r.ParseForm(); err != nil {
		return false
	}

	keys := make([]string, 0, len(r.PostForm))
	for k := range r.PostForm {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	mac := hmac.New(sha1.New, v.authToken)
	mac.Write([]byte(requestURL(r)))
	for _, k := range keys {
		mac.Write([]byte(k))
		mac.Write([]byte(r.PostForm.Get(k)))
	}
	expected := base64.StdEncoding.EncodeToString(mac.Sum(nil))

	return hmac.Equal([]byte(expected), []byte(r.Header.Get(SignatureHeader)))
}

func requestURL(r *http.Request) string {
	scheme := "https"
	if r.TLS == nil {
		scheme = "http"
	}
	return scheme + "://" + r.Host + r.URL.RequestURI()
}

// Sign computes the expected signature for a request; used by tests and
// local tooling that simulates the phone network.
func (v *Validator) Sign(url string, params map[string]string) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	mac := hmac.New(sha1.New, v.authToken)
	mac.Write([]byte(url))
	for _, k := range keys {
		mac.Write([]byte(k))
		mac.Write([]byte(params[k]))
	}
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}
