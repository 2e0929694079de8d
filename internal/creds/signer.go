package creds

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/base64"
	"fmt"
	"net/url"
	"strconv"
	"sync/atomic"
	"time"
)

// KrakenSigner produces the API-Sign header for Kraken's private REST
// endpoints. The signature is HMAC-SHA512 over the URI path concatenated with
// SHA256(nonce + POST body), keyed with the base64 decoded secret.
type KrakenSigner struct {
	apiKey    string
	secret    []byte
	lastNonce int64
}

// NewKrakenSigner decodes the base64 secret up front so a malformed key fails
// at construction rather than on the first order.
func NewKrakenSigner(apiKey, apiSecret string) (*KrakenSigner, error) {
	secret, err := base64.StdEncoding.DecodeString(apiSecret)
	if err != nil {
		return nil, fmt.Errorf("decode kraken api secret: %w", err)
	}
	return &KrakenSigner{apiKey: apiKey, secret: secret}, nil
}

// APIKey returns the key for the API-Key header.
func (s *KrakenSigner) APIKey() string {
	return s.apiKey
}

// Nonce returns a strictly increasing nonce. Kraken rejects any request whose
// nonce is not greater than the previous one on the same key.
func (s *KrakenSigner) Nonce() string {
	for {
		now := time.Now().UnixNano() / int64(time.Millisecond)
		last := atomic.LoadInt64(&s.lastNonce)
		if now <= last {
			now = last + 1
		}
		if atomic.CompareAndSwapInt64(&s.lastNonce, last, now) {
			return strconv.FormatInt(now, 10)
		}
	}
}

// Sign computes the API-Sign value for path and the url-encoded form values.
// The values must already contain the nonce used for this request.
func (s *KrakenSigner) Sign(path string, values url.Values) string {
	nonce := values.Get("nonce")
	body := values.Encode()

	inner := sha256.Sum256([]byte(nonce + body))

	mac := hmac.New(sha512.New, s.secret)
	mac.Write([]byte(path))
	mac.Write(inner[:])
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}
