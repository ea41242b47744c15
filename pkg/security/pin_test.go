package security

import "testing"

func TestGeneratePinShape(t *testing.T) {
	for i := 0; i < 50; i++ {
		pin, err := GeneratePin()
		if err != nil {
			t.Fatalf("generate failed: %v", err)
		}
		if len(pin) != PinLength {
			t.Fatalf("expected %d digits, got %q", PinLength, pin)
		}
		for _, r := range pin {
			if r < '0' || r > '9' {
				t.Fatalf("expected numeric pin, got %q", pin)
			}
		}
	}
}

func TestHashAndVerifyPin(t *testing.T) {
	digest := HashPin("042731")
	if !VerifyPin("042731", digest) {
		t.Fatal("expected matching pin to verify")
	}
	if VerifyPin("042732", digest) {
		t.Fatal("expected mismatched pin to fail")
	}
}
