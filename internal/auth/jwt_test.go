package auth

import (
	"testing"
	"time"

	"github.com/openautogroup/lotview/internal/store"
)

func TestIssueAndVerifyJWT(t *testing.T) {
	did := int64(7)
	u := &store.User{
		ID:           42,
		Email:        "sales@dealer.test",
		Role:         store.RoleManager,
		DealershipID: &did,
	}

	raw, err := IssueJWT("test-secret", u, 0, time.Now())
	if err != nil {
		t.Fatal(err)
	}

	claims, err := VerifyJWT("test-secret", raw)
	if err != nil {
		t.Fatal(err)
	}
	if claims.UserID != 42 {
		t.Errorf("UserID = %d, want 42", claims.UserID)
	}
	if claims.Role != store.RoleManager {
		t.Errorf("Role = %q, want manager", claims.Role)
	}
	if claims.DealershipID == nil || *claims.DealershipID != 7 {
		t.Errorf("DealershipID = %v, want 7", claims.DealershipID)
	}
	if claims.ImpersonatorID != 0 {
		t.Errorf("ImpersonatorID = %d, want 0", claims.ImpersonatorID)
	}
}

func TestVerifyJWT_WrongSecret(t *testing.T) {
	u := &store.User{ID: 1, Email: "a@b.c", Role: store.RoleSalesperson}
	raw, err := IssueJWT("secret-one", u, 0, time.Now())
	if err != nil {
		t.Fatal(err)
	}
	if _, err := VerifyJWT("secret-two", raw); err == nil {
		t.Error("expected verification to fail with wrong secret")
	}
}

func TestVerifyJWT_Expired(t *testing.T) {
	u := &store.User{ID: 1, Email: "a@b.c", Role: store.RoleSalesperson}
	issued := time.Now().Add(-TokenTTL - time.Hour)
	raw, err := IssueJWT("test-secret", u, 0, issued)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := VerifyJWT("test-secret", raw); err == nil {
		t.Error("expected expired token to fail verification")
	}
}

func TestIssueJWT_CarriesImpersonator(t *testing.T) {
	u := &store.User{ID: 5, Email: "target@dealer.test", Role: store.RoleMaster}
	raw, err := IssueJWT("test-secret", u, 99, time.Now())
	if err != nil {
		t.Fatal(err)
	}
	claims, err := VerifyJWT("test-secret", raw)
	if err != nil {
		t.Fatal(err)
	}
	if claims.ImpersonatorID != 99 {
		t.Errorf("ImpersonatorID = %d, want 99", claims.ImpersonatorID)
	}
}
