package auth

import (
	"encoding/base64"
	"strings"
	"testing"
)

func TestCodeChallengeReferenceVector(t *testing.T) {
	// RFC 7636 appendix B vector
	verifier := "dBjftJeZ4CVP-mB92K27uhbUJU1p1r_wW1gFWFOEjXk"
	want := "E9Melhoa2OwvFrEMTJguCHaoeK1t8URWbuGJSstw-cM"

	if got := CodeChallenge(verifier); got != want {
		t.Errorf("CodeChallenge = %q, want %q", got, want)
	}
}

func TestGeneratePKCE(t *testing.T) {
	p, err := GeneratePKCE()
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	if len(p.Verifier) != VerifierLength {
		t.Errorf("Expected verifier length %d, got %d", VerifierLength, len(p.Verifier))
	}
	for _, r := range p.Verifier {
		if !strings.ContainsRune(verifierAlphabet, r) {
			t.Errorf("Verifier contains %q outside the allowed alphabet", r)
		}
	}

	if p.Challenge != CodeChallenge(p.Verifier) {
		t.Error("Challenge does not match verifier")
	}
	if strings.ContainsAny(p.Challenge, "+/=") {
		t.Errorf("Challenge %q is not unpadded base64url", p.Challenge)
	}

	// Nonce and state are standard base64 of random strings
	if _, err := base64.StdEncoding.DecodeString(p.Nonce); err != nil {
		t.Errorf("Nonce is not valid base64: %v", err)
	}
	if _, err := base64.StdEncoding.DecodeString(p.State); err != nil {
		t.Errorf("State is not valid base64: %v", err)
	}

	p2, err := GeneratePKCE()
	if err != nil {
		t.Fatal(err)
	}
	if p2.Verifier == p.Verifier || p2.State == p.State {
		t.Error("Expected distinct PKCE state per generation")
	}
}

func TestAuth0ClientHeader(t *testing.T) {
	decoded, err := base64.StdEncoding.DecodeString(Auth0ClientHeader())
	if err != nil {
		t.Fatalf("Expected valid base64, got %v", err)
	}
	if !strings.Contains(string(decoded), "auth0-spa-js") {
		t.Errorf("Unexpected header payload %q", decoded)
	}
}
