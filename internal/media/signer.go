package media

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/url"
	"strconv"
	"time"
)

// Signer mints and checks short-lived URLs for protected agent assets, so a
// contract or catalog file can be linked in chat without exposing a
// permanent address.
type Signer struct {
	secret  []byte
	baseURL string
	ttl     time.Duration
	now     func() time.Time
}

func NewSigner(secret, baseURL string, ttl time.Duration) *Signer {
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	return &Signer{
		secret:  []byte(secret),
		baseURL: baseURL,
		ttl:     ttl,
		now:     time.Now,
	}
}

// SignedURL returns the public link for a protected asset.
func (s *Signer) SignedURL(agentID, key string) string {
	exp := s.now().Add(s.ttl).Unix()
	sig := s.signature(agentID, key, exp)
	return fmt.Sprintf("%s/media/%s/%s?exp=%d&sig=%s",
		s.baseURL, url.PathEscape(agentID), url.PathEscape(key), exp, sig)
}

// Verify checks the signature and expiry carried by an incoming request.
func (s *Signer) Verify(agentID, key, expStr, sig string) error {
	exp, err := strconv.ParseInt(expStr, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid expiry")
	}
	if s.now().Unix() > exp {
		return fmt.Errorf("link expired")
	}
	want := s.signature(agentID, key, exp)
	if !hmac.Equal([]byte(want), []byte(sig)) {
		return fmt.Errorf("invalid signature")
	}
	return nil
}

func (s *Signer) signature(agentID, key string, exp int64) string {
	mac := hmac.New(sha256.New, s.secret)
	fmt.Fprintf(mac, "%s\x00%s\x00%d", agentID, key, exp)
	return hex.EncodeToString(mac.Sum(nil))
}
