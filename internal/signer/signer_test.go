package signer

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHexHMACMatchesStdlib(t *testing.T) {
	mac := hmac.New(sha256.New, []byte("secret"))
	mac.Write([]byte("payload"))
	want := hex.EncodeToString(mac.Sum(nil))

	require.Equal(t, want, HexHMAC("secret", "payload"))
}

func TestBase64HMACMatchesStdlib(t *testing.T) {
	mac := hmac.New(sha256.New, []byte("secret"))
	mac.Write([]byte("payload"))
	want := base64.StdEncoding.EncodeToString(mac.Sum(nil))

	require.Equal(t, want, Base64HMAC("secret", "payload"))
}

func TestOKXLoginMessageShape(t *testing.T) {
	require.Equal(t, "1690000000GET/users/self/verify", OKXLoginMessage("1690000000"))
}

func TestOKXRESTMessageShape(t *testing.T) {
	require.Equal(t, "123POST/api/v5/trade/order{}", OKXRESTMessage("123", "POST", "/api/v5/trade/order", "{}"))
}

func TestBitmexWSMessageShape(t *testing.T) {
	require.Equal(t, "GET/realtime1690000000", BitmexWSMessage("1690000000", "/realtime"))
}

func TestBitmexRESTMessageShape(t *testing.T) {
	require.Equal(t, "POST/api/v1/order1690000000{}", BitmexRESTMessage("POST", "/api/v1/order", "1690000000", "{}"))
}
