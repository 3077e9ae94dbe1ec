package crypto

import "testing"

func TestGenerateKeysetDeterministic(t *testing.T) {
	ks1 := GenerateKeyset("my secret master key", "0/0/0")
	ks2 := GenerateKeyset("my secret master key", "0/0/0")

	if ks1.Id != ks2.Id {
		t.Fatalf("expected same keyset id from same master+path, got %v and %v", ks1.Id, ks2.Id)
	}
	if ks1.LegacyId != ks2.LegacyId {
		t.Fatalf("expected same legacy keyset id from same master+path, got %v and %v", ks1.LegacyId, ks2.LegacyId)
	}

	for amount, kp := range ks1.Keys {
		other, ok := ks2.Keys[amount]
		if !ok {
			t.Fatalf("amount %v missing from second keyset", amount)
		}
		if !kp.PrivateKey.Key.Equals(&other.PrivateKey.Key) {
			t.Fatalf("private key for amount %v differs between derivations", amount)
		}
	}
}

func TestGenerateKeysetDifferentPath(t *testing.T) {
	ks1 := GenerateKeyset("my secret master key", "0/0/0")
	ks2 := GenerateKeyset("my secret master key", "0/0/1")

	if ks1.Id == ks2.Id {
		t.Fatal("expected different keyset ids for different derivation paths")
	}
}

func TestDeriveKeysetIdLength(t *testing.T) {
	ks := GenerateKeyset("seed", "0/0/0")

	if len(ks.Id) != 16 {
		t.Fatalf("expected current keyset id to be 16 chars (\"00\" + 14 hex), got %v (%v)", len(ks.Id), ks.Id)
	}
	if ks.Id[:2] != "00" {
		t.Fatalf("expected current keyset id to start with version byte \"00\", got %v", ks.Id)
	}
	if len(ks.LegacyId) != legacyIdWidth {
		t.Fatalf("expected legacy keyset id to be %v chars, got %v (%v)", legacyIdWidth, len(ks.LegacyId), ks.LegacyId)
	}
}

func TestMaxOrderDenominations(t *testing.T) {
	ks := GenerateKeyset("seed", "0/0/0")
	if len(ks.Keys) != MAX_ORDER {
		t.Fatalf("expected %v denominations, got %v", MAX_ORDER, len(ks.Keys))
	}

	// smallest and largest denominations must be present
	if _, ok := ks.Keys[1]; !ok {
		t.Fatal("expected denomination 1 to be present")
	}
	if _, ok := ks.Keys[1<<(MAX_ORDER-1)]; !ok {
		t.Fatalf("expected denomination %v to be present", uint64(1)<<(MAX_ORDER-1))
	}
}
