package checksum

import "testing"

func TestCompute(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{
			name: "pkh",
			body: "pkh(0279be667ef9dcbbac55a06295ce870b07029bfcdb2dce28d959f2815b16f81798)",
			want: "e48zzw02",
		},
		{
			name: "wpkh",
			body: "wpkh(0279be667ef9dcbbac55a06295ce870b07029bfcdb2dce28d959f2815b16f81798)",
			want: "ucxz0gak",
		},
		{
			name: "addr",
			body: "addr(bc1qw508d6qejxtdg4y5r3zarvary0c5xw7kv8f3t4)",
			want: "uyjndxcw",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Compute(tt.body)
			if err != nil {
				t.Fatalf("Compute() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("Compute() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestVerify(t *testing.T) {
	body := "pkh(0279be667ef9dcbbac55a06295ce870b07029bfcdb2dce28d959f2815b16f81798)"

	if err := Verify(body, "e48zzw02"); err != nil {
		t.Errorf("Verify() unexpected error: %v", err)
	}
	if err := Verify(body, "deadbeef"); err == nil {
		t.Errorf("Verify() expected a mismatch error, got nil")
	}
	if err := Verify(body, "short"); err != ErrInvalidChecksumLength {
		t.Errorf("Verify() expected ErrInvalidChecksumLength, got %v", err)
	}
}

func TestVerifyRejectsInvalidCharacter(t *testing.T) {
	if err := Verify("pkh(é)", "e48zzw02"); err == nil {
		t.Errorf("Verify() expected an invalid-character error, got nil")
	}
}
