package auth

import (
	"errors"
	"testing"
	"time"
)

func TestGenerateAndValidate(t *testing.T) {
	issuer := NewIssuer("s3cret")
	token, err := issuer.Generate("studio")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	sub, err := issuer.Validate(token)
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if sub != "studio" {
		t.Fatalf("subject = %q", sub)
	}
}

func TestValidateRejects(t *testing.T) {
	issuer := NewIssuer("s3cret")
	token, _ := issuer.Generate("studio")

	if _, err := NewIssuer("other").Validate(token); err == nil {
		t.Fatal("token signed with another secret must be rejected")
	}

	expired := NewIssuer("s3cret")
	expired.now = func() time.Time { return time.Now().Add(48 * time.Hour) }
	if _, err := expired.Validate(token); err == nil {
		t.Fatal("expired token must be rejected")
	}

	if _, err := issuer.Validate("not-a-token"); err == nil {
		t.Fatal("garbage must be rejected")
	}
}

func TestDisabledIssuer(t *testing.T) {
	issuer := NewIssuer("")
	if issuer.Enabled() {
		t.Fatal("empty secret should disable auth")
	}
	if _, err := issuer.Generate("x"); !errors.Is(err, ErrNoSecret) {
		t.Fatalf("Generate error = %v", err)
	}
}
