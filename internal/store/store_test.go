package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/polisbay/quoteflow/internal/models"
)

func TestInMemoryStoreSessionKeys(t *testing.T) {
	s := NewInMemoryStore()
	if err := s.PutKey("sess", models.KeyThreeDSResult, `{"success":true}`); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	v, ok, err := s.GetKey("sess", models.KeyThreeDSResult)
	if err != nil || !ok {
		t.Fatalf("expected key present, ok=%v err=%v", ok, err)
	}
	if v != `{"success":true}` {
		t.Errorf("unexpected value %q", v)
	}

	// Consume reads and deletes
	v, ok, err = s.ConsumeKey("sess", models.KeyThreeDSResult)
	if err != nil || !ok || v != `{"success":true}` {
		t.Fatalf("consume failed: v=%q ok=%v err=%v", v, ok, err)
	}
	_, ok, _ = s.ConsumeKey("sess", models.KeyThreeDSResult)
	if ok {
		t.Error("second consume must observe an empty slot")
	}
}

func TestInMemoryStoreDeleteKeysIdempotent(t *testing.T) {
	s := NewInMemoryStore()
	s.PutKey("sess", models.KeyPendingPayment, "x")
	s.PutKey("sess", models.KeySelectedQuote, "y")

	if err := s.DeleteKeys("sess", models.PaymentKeys()...); err != nil {
		t.Fatalf("first cleanup failed: %v", err)
	}
	// Running the identical cleanup again must not raise errors
	if err := s.DeleteKeys("sess", models.PaymentKeys()...); err != nil {
		t.Fatalf("second cleanup failed: %v", err)
	}
	for _, key := range models.PaymentKeys() {
		if _, ok, _ := s.GetKey("sess", key); ok {
			t.Errorf("key %s should be gone after cleanup", key)
		}
	}
}

func TestInMemoryStoreClearSession(t *testing.T) {
	s := NewInMemoryStore()
	s.PutKey("a", models.KeyAuthSession, "1")
	s.PutKey("a", models.KeyProposalIDs, "2")
	s.PutKey("b", models.KeyAuthSession, "3")

	if err := s.ClearSession("a"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok, _ := s.GetKey("a", models.KeyAuthSession); ok {
		t.Error("session a keys should be cleared")
	}
	if _, ok, _ := s.GetKey("b", models.KeyAuthSession); !ok {
		t.Error("session b keys must survive clearing session a")
	}
}

func TestInMemoryStoreIdentitySessions(t *testing.T) {
	s := NewInMemoryStore()
	now := time.Now()
	is := models.IdentitySession{
		Token:     "tok-1",
		Phone:     models.PhoneNumber{Number: "5551112233", CountryCode: "90"},
		Deadline:  now.Add(60 * time.Second),
		CreatedAt: now,
	}
	if err := s.SaveIdentitySession(is); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got, err := s.GetIdentitySession("tok-1")
	if err != nil || got == nil {
		t.Fatalf("expected session, got %v err %v", got, err)
	}
	if got.Phone.Number != "5551112233" {
		t.Errorf("unexpected phone %q", got.Phone.Number)
	}

	missing, err := s.GetIdentitySession("tok-unknown")
	if err != nil || missing != nil {
		t.Errorf("unknown token should return (nil, nil), got %v err %v", missing, err)
	}

	if err := s.DeleteIdentitySession("tok-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got, _ = s.GetIdentitySession("tok-1")
	if got != nil {
		t.Error("session should be gone after delete")
	}
}

func TestInMemoryStorePurge(t *testing.T) {
	s := NewInMemoryStore()
	now := time.Now()
	s.SaveIdentitySession(models.IdentitySession{Token: "old", Deadline: now.Add(-time.Minute)})
	s.SaveIdentitySession(models.IdentitySession{Token: "fresh", Deadline: now.Add(time.Minute)})

	n, err := s.PurgeExpiredIdentitySessions(now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 1 {
		t.Errorf("expected 1 purged session, got %d", n)
	}
	if got, _ := s.GetIdentitySession("fresh"); got == nil {
		t.Error("fresh session must survive the purge")
	}

	s.PutKey("sess", models.KeyPendingPayment, "stale")
	n, err = s.PurgeStaleKeys(models.KeyPendingPayment, now.Add(time.Hour))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 1 {
		t.Errorf("expected 1 purged key, got %d", n)
	}
}

func TestSQLiteStore(t *testing.T) {
	dsn := filepath.Join(t.TempDir(), "quoteflow_test.db")
	st, err := NewSQLiteStore(WithSQLiteDSN(dsn))
	if err != nil {
		t.Fatalf("failed to open sqlite store: %v", err)
	}
	defer st.Close()

	if err := st.PutKey("sess", models.KeyThreeDSStatus, "done"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	v, ok, err := st.ConsumeKey("sess", models.KeyThreeDSStatus)
	if err != nil || !ok || v != "done" {
		t.Fatalf("consume failed: v=%q ok=%v err=%v", v, ok, err)
	}
	if _, ok, _ := st.ConsumeKey("sess", models.KeyThreeDSStatus); ok {
		t.Error("consumed key must not be readable again")
	}

	now := time.Now()
	is := models.IdentitySession{Token: "tok", Deadline: now.Add(time.Minute), CreatedAt: now}
	if err := st.SaveIdentitySession(is); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got, err := st.GetIdentitySession("tok")
	if err != nil || got == nil || got.Token != "tok" {
		t.Fatalf("expected stored session back, got %v err %v", got, err)
	}
}

func TestDetectDSNType(t *testing.T) {
	cases := map[string]string{
		"postgres://user:pw@localhost/db":      "postgres",
		"postgresql://user:pw@localhost/db":    "postgres",
		"host=localhost dbname=qf sslmode=off": "postgres",
		"/var/lib/quoteflow/quoteflow.db":      "sqlite",
		"quoteflow.db":                         "sqlite",
	}
	for dsn, want := range cases {
		if got := DetectDSNType(dsn); got != want {
			t.Errorf("DetectDSNType(%q) = %q, want %q", dsn, got, want)
		}
	}
}
