package billing

import "testing"

func TestVerifyWebhookSignature(t *testing.T) {
	secret := "top-secret"
	p := WebhookPayload{ExternalRef: "ref-1", Success: true}
	p.Signature = SignConfirmation(secret, p.ExternalRef, p.Success)

	if !VerifyWebhookSignature(p, secret) {
		t.Fatalf("expected signature to validate")
	}

	flipped := p
	flipped.Success = false
	if VerifyWebhookSignature(flipped, secret) {
		t.Fatalf("expected signature over success=true to fail for success=false")
	}
	if VerifyWebhookSignature(p, "other-secret") {
		t.Fatalf("expected wrong secret to fail")
	}
	if VerifyWebhookSignature(p, "") {
		t.Fatalf("expected empty secret to fail")
	}

	garbage := p
	garbage.Signature = "not-hex"
	if VerifyWebhookSignature(garbage, secret) {
		t.Fatalf("expected invalid hex to fail")
	}
}
