// Package signer builds the per-exchange HMAC-SHA256 signatures the session
// and REST helper need for private channels (spec §2 Signer, §6 Exchange
// REST). Each exchange wants a different payload shape and encoding, so the
// package exposes one function per shape rather than a single interface —
// the shapes don't share enough surface to be worth abstracting.
package signer

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
)

// Credentials is the (key, secret, passphrase?) triple injected per adapter
// (spec §6: "The core does not read environment variables itself").
type Credentials struct {
	APIKey     string
	APISecret  string
	Passphrase string // OKX-family only
}

// HexHMAC signs payload with secret and hex-encodes the MAC (Binance REST
// query-string signing and user-data-stream auth, grounded on
// infra/adapters/binance/provider.go signPayload).
func HexHMAC(secret, payload string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(payload))
	return hex.EncodeToString(mac.Sum(nil))
}

// Base64HMAC signs payload with secret and base64-encodes the MAC (OKX REST
// and WS login signing, grounded on infra/adapters/okx/{provider,rest}.go
// signRequest/generateLoginRequest).
func Base64HMAC(secret, payload string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(payload))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// OKXLoginMessage builds the "{timestamp}GET/users/self/verify" message OKX
// WS login signs, so callers don't have to hand-assemble the verb+path
// constant (grounded on okx/provider.go generateLoginRequest).
func OKXLoginMessage(timestampUnixSeconds string) string {
	return timestampUnixSeconds + "GET" + "/users/self/verify"
}

// OKXRESTMessage builds the "{timestamp}{method}{requestPath}{body}" message
// OKX signs for REST calls (grounded on okx/rest.go signRequest).
func OKXRESTMessage(timestamp, method, requestPath, body string) string {
	return timestamp + method + requestPath + body
}

// BitmexWSMessage builds the "GET{path}{expires}" message Bitmex's WS and
// REST auth both sign — verb is always GET for the websocket handshake
// (spec §4.2 Authenticate: "verb+path+expires+body, or verb+path+timestamp
// +body base64, depending on exchange"; expansion grounded on
// original_source/cryptofeed/exchange/bitmex.py _auth framing).
func BitmexWSMessage(expires, path string) string {
	return "GET" + path + expires
}

// BitmexRESTMessage builds the "{verb}{path}{expires}{body}" message Bitmex
// signs for REST order submission.
func BitmexRESTMessage(verb, path, expires, body string) string {
	return verb + path + expires + body
}
