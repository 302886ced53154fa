package mexc

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"strconv"
)

// Signer produces authenticated query strings for the spot REST API.
// Keys are held as []byte so they can be wiped on shutdown.
//
// The exchange verifies an HMAC-SHA256 over the exact encoded query string,
// hex-encoded and appended as the final "signature" parameter. A request is
// only valid while its "timestamp" sits inside the recvWindow, so the
// signature must be recomputed with a fresh timestamp on every attempt.
type Signer struct {
	apiKey       []byte
	secretKey    []byte
	recvWindowMS int64
	nowMS        func() int64 // exchange-aligned milliseconds
}

// NewSigner creates a signer. nowMS supplies exchange-aligned milliseconds
// (usually Clock.NowMS) so signed timestamps survive local clock drift.
func NewSigner(apiKey, apiSecret string, recvWindowMS int64, nowMS func() int64) *Signer {
	if recvWindowMS <= 0 {
		recvWindowMS = 5000
	}
	return &Signer{
		apiKey:       []byte(apiKey),
		secretKey:    []byte(apiSecret),
		recvWindowMS: recvWindowMS,
		nowMS:        nowMS,
	}
}

// APIKey returns the key sent in the X-MEXC-APIKEY header.
func (s *Signer) APIKey() string {
	return string(s.apiKey)
}

// SignedQuery stamps params with timestamp+recvWindow, signs the encoded
// string and returns the full query including the signature parameter.
// Call again for every retry attempt; a reused timestamp gets rejected.
func (s *Signer) SignedQuery(params url.Values) string {
	stamped := url.Values{}
	for k, vs := range params {
		for _, v := range vs {
			stamped.Add(k, v)
		}
	}
	stamped.Set("timestamp", strconv.FormatInt(s.nowMS(), 10))
	stamped.Set("recvWindow", strconv.FormatInt(s.recvWindowMS, 10))

	qs := stamped.Encode()
	return qs + "&signature=" + s.computeHmacSha256(qs)
}

func (s *Signer) computeHmacSha256(payload string) string {
	mac := hmac.New(sha256.New, s.secretKey)
	mac.Write([]byte(payload))
	return hex.EncodeToString(mac.Sum(nil))
}

// Wipe clears the keys from memory.
func (s *Signer) Wipe() {
	if s == nil {
		return
	}
	wipeSlice(s.apiKey)
	wipeSlice(s.secretKey)
}

func wipeSlice(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
