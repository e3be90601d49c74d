package deliberation

import "testing"

func TestCollectSignaturesSatisfiedAtThreshold(t *testing.T) {
	g := NewGuard()
	g.CollectSignatures("d1", []string{"a", "b"}, 1.0)

	if !g.SubmitSignature("d1", "a", "approve") {
		t.Fatal("expected signature from required signer to be accepted")
	}

	sig := g.signatures["d1"]
	if sig.Satisfied {
		t.Error("should not be satisfied with only 1/2 signers")
	}

	g.SubmitSignature("d1", "b", "approve")
	if !g.signatures["d1"].Satisfied {
		t.Error("expected satisfaction once all required signers have signed")
	}
}

func TestSubmitSignatureRejectsUnknownSigner(t *testing.T) {
	g := NewGuard()
	g.CollectSignatures("d1", []string{"a"}, 1.0)

	if g.SubmitSignature("d1", "stranger", "approve") {
		t.Error("expected signature from unregistered signer to be rejected")
	}
}

func TestCriticReviewRequiresUnanimousApproval(t *testing.T) {
	g := NewGuard()
	g.RegisterCriticAgent("c1")
	g.RegisterCriticAgent("c2")
	g.SubmitForReview("d1", []string{"c1", "c2"})

	g.SubmitCriticReview("d1", "c1", "approve")
	if g.reviews["d1"].Approved {
		t.Error("should not be approved until every critic has reviewed")
	}

	g.SubmitCriticReview("d1", "c2", "reject")
	if g.reviews["d1"].Approved {
		t.Error("should not be approved once any critic rejects")
	}
}

func TestAuditLogRecordsEvents(t *testing.T) {
	g := NewGuard()
	g.CollectSignatures("d1", []string{"a"}, 1.0)
	g.SubmitSignature("d1", "a", "ok")

	log := g.AuditLog()
	if len(log) < 2 {
		t.Fatalf("expected at least 2 audit entries, got %d", len(log))
	}
}
