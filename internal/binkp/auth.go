package binkp

import (
	"crypto/hmac"
	"crypto/md5"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
)

// NewChallenge generates a random CRAM-MD5 challenge string to
// advertise in the answerer's M_NUL OPT greeting.
func NewChallenge() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

// CRAMDigest computes HMAC-MD5(password, challenge) hex-encoded (spec
// §4.10: "digest = HMAC-MD5(password, challenge)").
func CRAMDigest(password, challenge string) string {
	mac := hmac.New(md5.New, []byte(password))
	mac.Write([]byte(challenge))
	return hex.EncodeToString(mac.Sum(nil))
}

// ParseChallenge extracts a CRAM-MD5 challenge from an M_NUL OPT
// argument, e.g. "OPT CRAM-MD5-3a1f...". Returns "", false if absent.
func ParseChallenge(optArg string) (string, bool) {
	fields := strings.Fields(optArg)
	for _, f := range fields {
		if strings.HasPrefix(strings.ToUpper(f), "CRAM-MD5-") {
			return f[len("CRAM-MD5-"):], true
		}
	}
	return "", false
}

// FormatCRAMResponse builds the M_PWD argument for a CRAM-MD5 challenge.
func FormatCRAMResponse(password, challenge string) string {
	return "CRAM-MD5-" + CRAMDigest(password, challenge)
}

// CheckPassword validates a received M_PWD argument against the
// expected plaintext password, supporting both plain and CRAM-MD5
// forms (spec §4.10: "Plain passwords are accepted if no challenge was
// advertised").
func CheckPassword(received, expected, challenge string) error {
	if challenge != "" && strings.HasPrefix(strings.ToUpper(received), "CRAM-MD5-") {
		want := CRAMDigest(expected, challenge)
		got := strings.ToLower(received[len("CRAM-MD5-"):])
		if !hmac.Equal([]byte(got), []byte(want)) {
			return fmt.Errorf("binkp: CRAM-MD5 digest mismatch")
		}
		return nil
	}
	if received != expected {
		return fmt.Errorf("binkp: password mismatch")
	}
	return nil
}
