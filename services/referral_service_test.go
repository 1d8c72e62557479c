package services

import (
	"errors"
	"sync"
	"testing"

	"tap-referral-system/models"
)

func TestRequestOrGenerateCode_Idempotent(t *testing.T) {
	db := newTestDB(t)
	svc := newTestReferralService(db)
	createTestParticipant(t, db, "alice", "Alice")

	first, err := svc.RequestOrGenerateCode("alice")
	if err != nil {
		t.Fatalf("first code request failed: %v", err)
	}
	if len(first.ReferralCode) != 8 {
		t.Fatalf("expected 8-character code, got %q", first.ReferralCode)
	}
	if first.ReferralLink == "" || first.ShareLink == "" {
		t.Fatalf("expected links in grant, got %+v", first)
	}

	second, err := svc.RequestOrGenerateCode("alice")
	if err != nil {
		t.Fatalf("second code request failed: %v", err)
	}
	if second.ReferralCode != first.ReferralCode {
		t.Fatalf("code changed between requests: %q then %q", first.ReferralCode, second.ReferralCode)
	}
}

func TestRequestOrGenerateCode_ParticipantNotFound(t *testing.T) {
	db := newTestDB(t)
	svc := newTestReferralService(db)

	if _, err := svc.RequestOrGenerateCode("nobody"); !errors.Is(err, ErrParticipantNotFound) {
		t.Fatalf("expected ErrParticipantNotFound, got %v", err)
	}
}

func TestApplyReferralCode_Malformed(t *testing.T) {
	db := newTestDB(t)
	svc := newTestReferralService(db)
	createTestParticipant(t, db, "alice", "Alice")

	for _, code := range []string{"", "short", "NOTHEXXX", "AB12CD345"} {
		if err := svc.ApplyReferralCode("alice", code); !errors.Is(err, ErrMalformedCode) {
			t.Errorf("code %q: expected ErrMalformedCode, got %v", code, err)
		}
	}
}

func TestApplyReferralCode_CodeNotFound(t *testing.T) {
	db := newTestDB(t)
	svc := newTestReferralService(db)
	createTestParticipant(t, db, "alice", "Alice")

	if err := svc.ApplyReferralCode("alice", "AB12CD34"); !errors.Is(err, ErrCodeNotFound) {
		t.Fatalf("expected ErrCodeNotFound, got %v", err)
	}
}

func TestApplyReferralCode_SelfReferral(t *testing.T) {
	db := newTestDB(t)
	svc := newTestReferralService(db)
	createTestParticipant(t, db, "alice", "Alice")
	assignCode(t, db, "alice", "AB12CD34")

	if err := svc.ApplyReferralCode("alice", "AB12CD34"); !errors.Is(err, ErrSelfReferral) {
		t.Fatalf("expected ErrSelfReferral, got %v", err)
	}
	if n := countEdgesFor(t, db, "alice"); n != 0 {
		t.Fatalf("expected no edges after rejected self-referral, got %d", n)
	}
}

func TestApplyReferralCode_CaseInsensitive(t *testing.T) {
	db := newTestDB(t)
	svc := newTestReferralService(db)
	createTestParticipant(t, db, "ref", "Referrer")
	createTestParticipant(t, db, "app", "Applicant")
	assignCode(t, db, "ref", "AB12CD34")

	if err := svc.ApplyReferralCode("app", "ab12cd34"); err != nil {
		t.Fatalf("lowercase code should normalize and apply: %v", err)
	}
	applicant := getParticipant(t, db, "app")
	if applicant.ReferredByID == nil || *applicant.ReferredByID != "ref" {
		t.Fatalf("expected referred_by_id=ref, got %v", applicant.ReferredByID)
	}
}

func TestApplyReferralCode_AlreadyBound(t *testing.T) {
	db := newTestDB(t)
	svc := newTestReferralService(db)
	createTestParticipant(t, db, "ref1", "RefOne")
	createTestParticipant(t, db, "ref2", "RefTwo")
	createTestParticipant(t, db, "app", "Applicant")
	assignCode(t, db, "ref1", "AAAA1111")
	assignCode(t, db, "ref2", "BBBB2222")

	if err := svc.ApplyReferralCode("app", "AAAA1111"); err != nil {
		t.Fatalf("first apply failed: %v", err)
	}
	if err := svc.ApplyReferralCode("app", "BBBB2222"); !errors.Is(err, ErrAlreadyBound) {
		t.Fatalf("expected ErrAlreadyBound, got %v", err)
	}

	// Ledger unchanged: only the first binding's edge exists.
	if n := countEdgesFor(t, db, "app"); n != 1 {
		t.Fatalf("expected exactly 1 edge, got %d", n)
	}
	applicant := getParticipant(t, db, "app")
	if applicant.ReferredByID == nil || *applicant.ReferredByID != "ref1" {
		t.Fatalf("expected binding to ref1, got %v", applicant.ReferredByID)
	}
}

func TestApplyReferralCode_DuplicateEdgeMapsToAlreadyBound(t *testing.T) {
	db := newTestDB(t)
	svc := newTestReferralService(db)
	createTestParticipant(t, db, "ref1", "RefOne")
	createTestParticipant(t, db, "ref2", "RefTwo")
	createTestParticipant(t, db, "app", "Applicant")
	assignCode(t, db, "ref2", "BBBB2222")

	// A concurrent winner's tier-1 edge is already on disk while the
	// applicant's referred_by_id still reads as unset, which is what the
	// loser of the race sees under read committed. The unique index
	// rejects the second edge and that must come back as the stable
	// already_bound reason, not a raw constraint error.
	makeEdge(t, db, "ref1", "app", 1, 0)

	if err := svc.ApplyReferralCode("app", "BBBB2222"); !errors.Is(err, ErrAlreadyBound) {
		t.Fatalf("expected ErrAlreadyBound on duplicate edge, got %v", err)
	}
	if n := countEdgesFor(t, db, "app"); n != 1 {
		t.Fatalf("expected only the original edge, got %d", n)
	}
}

func TestApplyReferralCode_ChainLength(t *testing.T) {
	db := newTestDB(t)
	svc := newTestReferralService(db)

	// A ← B ← C ← D, then E applies D's code. The chain for E is
	// D(1), C(2), B(3): MaxReferralTier caps the depth, so A gets
	// no edge.
	for _, id := range []string{"a", "b", "c", "d", "e"} {
		createTestParticipant(t, db, id, id)
	}
	assignCode(t, db, "a", "AAAA0000")
	assignCode(t, db, "b", "BBBB0000")
	assignCode(t, db, "c", "CCCC0000")
	assignCode(t, db, "d", "DDDD0000")

	if err := svc.ApplyReferralCode("b", "AAAA0000"); err != nil {
		t.Fatalf("b apply failed: %v", err)
	}
	if err := svc.ApplyReferralCode("c", "BBBB0000"); err != nil {
		t.Fatalf("c apply failed: %v", err)
	}
	if err := svc.ApplyReferralCode("d", "CCCC0000"); err != nil {
		t.Fatalf("d apply failed: %v", err)
	}
	if n := countEdgesFor(t, db, "d"); n != 3 {
		t.Fatalf("d should have 3 edges (full ancestor depth), got %d", n)
	}

	if err := svc.ApplyReferralCode("e", "DDDD0000"); err != nil {
		t.Fatalf("e apply failed: %v", err)
	}
	if n := countEdgesFor(t, db, "e"); n != models.MaxReferralTier {
		t.Fatalf("e should have %d edges, got %d", models.MaxReferralTier, n)
	}

	var tiers []int
	var referrers []string
	var edges []models.ReferralEdge
	if err := db.Where("referred_id = ?", "e").Order("tier ASC").Find(&edges).Error; err != nil {
		t.Fatalf("failed to load edges: %v", err)
	}
	for _, edge := range edges {
		tiers = append(tiers, edge.Tier)
		referrers = append(referrers, edge.ReferrerID)
	}
	wantReferrers := []string{"d", "c", "b"}
	for i := range wantReferrers {
		if tiers[i] != i+1 || referrers[i] != wantReferrers[i] {
			t.Fatalf("edge %d: expected (%s, tier %d), got (%s, tier %d)",
				i, wantReferrers[i], i+1, referrers[i], tiers[i])
		}
	}
}

func TestApplyReferralCode_CycleDetected(t *testing.T) {
	db := newTestDB(t)
	svc := newTestReferralService(db)
	createTestParticipant(t, db, "x", "X")
	createTestParticipant(t, db, "y", "Y")
	createTestParticipant(t, db, "z", "Z")
	assignCode(t, db, "x", "AAAA1111")

	// Corrupt the ancestry into a 2-cycle; the walk must refuse to act
	// on it instead of looping.
	if err := db.Model(&models.Participant{}).Where("external_user_id = ?", "x").
		Update("referred_by_id", "y").Error; err != nil {
		t.Fatalf("failed to seed cycle: %v", err)
	}
	if err := db.Model(&models.Participant{}).Where("external_user_id = ?", "y").
		Update("referred_by_id", "x").Error; err != nil {
		t.Fatalf("failed to seed cycle: %v", err)
	}

	if err := svc.ApplyReferralCode("z", "AAAA1111"); !errors.Is(err, ErrCycleDetected) {
		t.Fatalf("expected ErrCycleDetected, got %v", err)
	}
	if n := countEdgesFor(t, db, "z"); n != 0 {
		t.Fatalf("expected no edges after rejected cyclic apply, got %d", n)
	}
}

func TestApplyReferralCode_ConcurrentSingleWinner(t *testing.T) {
	db := newTestDB(t)
	svc := newTestReferralService(db)
	createTestParticipant(t, db, "ref1", "RefOne")
	createTestParticipant(t, db, "ref2", "RefTwo")
	createTestParticipant(t, db, "app", "Applicant")
	assignCode(t, db, "ref1", "AAAA1111")
	assignCode(t, db, "ref2", "BBBB2222")

	var wg sync.WaitGroup
	results := make([]error, 2)
	codes := []string{"AAAA1111", "BBBB2222"}
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = svc.ApplyReferralCode("app", codes[i])
		}(i)
	}
	wg.Wait()

	successes := 0
	for _, err := range results {
		if err == nil {
			successes++
		} else if !errors.Is(err, ErrAlreadyBound) && !errors.Is(err, ErrTransactionAborted) {
			t.Fatalf("unexpected loser error: %v", err)
		}
	}
	if successes != 1 {
		t.Fatalf("expected exactly one successful binding, got %d", successes)
	}

	// Exactly one chain's edge survives and it matches the winner.
	if n := countEdgesFor(t, db, "app"); n != 1 {
		t.Fatalf("expected 1 edge, got %d", n)
	}
	applicant := getParticipant(t, db, "app")
	if applicant.ReferredByID == nil {
		t.Fatal("expected applicant to be bound")
	}
	var edge models.ReferralEdge
	if err := db.Where("referred_id = ?", "app").First(&edge).Error; err != nil {
		t.Fatalf("failed to load edge: %v", err)
	}
	if edge.ReferrerID != *applicant.ReferredByID {
		t.Fatalf("edge referrer %s does not match binding %s", edge.ReferrerID, *applicant.ReferredByID)
	}
}
