package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"strings"
	"time"
)

// tokenClaims is the signed payload carried by a bearer token. Role is not
// embedded: the user record is re-read on every request so role changes
// take effect immediately.
type tokenClaims struct {
	Subject   string `json:"sub"`
	ExpiresAt int64  `json:"exp"`
}

// issueToken creates an HMAC-signed bearer token for a user id.
func issueToken(secret []byte, userID string, ttl time.Duration) string {
	claims, _ := json.Marshal(tokenClaims{
		Subject:   userID,
		ExpiresAt: time.Now().Add(ttl).Unix(),
	})

	payload := base64.RawURLEncoding.EncodeToString(claims)
	mac := hmac.New(sha256.New, secret)
	_, _ = mac.Write([]byte(payload))
	signature := hex.EncodeToString(mac.Sum(nil))

	return payload + "." + signature
}

// verifyToken checks a token's signature and expiry and returns the subject
// user id.
func verifyToken(secret []byte, token string) (string, bool) {
	payload, signature, ok := strings.Cut(token, ".")
	if !ok {
		return "", false
	}

	mac := hmac.New(sha256.New, secret)
	_, _ = mac.Write([]byte(payload))
	expected := mac.Sum(nil)

	provided, err := hex.DecodeString(signature)
	if err != nil {
		return "", false
	}
	if !hmac.Equal(provided, expected) {
		return "", false
	}

	decoded, err := base64.RawURLEncoding.DecodeString(payload)
	if err != nil {
		return "", false
	}

	var claims tokenClaims
	if err := json.Unmarshal(decoded, &claims); err != nil {
		return "", false
	}
	if claims.Subject == "" || time.Now().Unix() > claims.ExpiresAt {
		return "", false
	}

	return claims.Subject, true
}
