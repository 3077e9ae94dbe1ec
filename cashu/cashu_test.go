package cashu

import (
	"math"
	"math/big"
	"testing"
)

func TestAmountChecked(t *testing.T) {
	split := AmountSplit(math.MaxUint64)
	overflowBlindedMessages := make(BlindedMessages, len(split)+1)
	for i, amount := range split {
		overflowBlindedMessages[i] = BlindedMessage{Amount: amount}
	}
	overflowBlindedMessages[len(split)] = BlindedMessage{Amount: 4}

	tests := []struct {
		blindedMessages BlindedMessages
		expectedAmount  uint64
		expectedErr     error
	}{
		{
			blindedMessages: BlindedMessages{
				BlindedMessage{Amount: 2},
				BlindedMessage{Amount: 4},
				BlindedMessage{Amount: 8},
				BlindedMessage{Amount: 64},
			},
			expectedAmount: 78,
			expectedErr:    nil,
		},
		{
			blindedMessages: overflowBlindedMessages,
			expectedAmount:  0,
			expectedErr:     ErrAmountOverflows,
		},
	}

	for _, test := range tests {
		totalAmount, err := test.blindedMessages.AmountChecked()
		if totalAmount != test.expectedAmount {
			t.Fatalf("expected total amount of '%v' but got '%v'", test.expectedAmount, totalAmount)
		}

		if err != test.expectedErr {
			t.Fatalf("expected error '%v' but got '%v'", test.expectedErr, err)
		}
	}
}

func TestOverflowAddUint64(t *testing.T) {
	tests := []struct {
		a                uint64
		b                uint64
		expectedUint64   uint64
		expectedOverflow bool
	}{
		{
			a:                21,
			b:                42,
			expectedUint64:   63,
			expectedOverflow: false,
		},
		{
			a:                math.MaxUint64 - 5,
			b:                10,
			expectedUint64:   4, // wrapped sum; value unused when overflow is true
			expectedOverflow: true,
		},
	}

	for _, test := range tests {
		result, overflow := OverflowAddUint64(test.a, test.b)
		if overflow != test.expectedOverflow {
			t.Fatalf("expected overflow '%v' but got '%v'", test.expectedOverflow, overflow)
		}
		if !overflow && result != test.expectedUint64 {
			t.Fatalf("expected result '%v' but got '%v'", test.expectedUint64, result)
		}
	}
}

func FuzzOverflowAddUint64(f *testing.F) {
	cases := [][2]uint64{
		{21, 42},
		{math.MaxUint64, 10},
	}
	for _, seed := range cases {
		f.Add(seed[0], seed[1])
	}

	f.Fuzz(func(t *testing.T, a uint64, b uint64) {
		bigA := new(big.Int).SetUint64(a)
		bigB := new(big.Int).SetUint64(b)
		bigA.Add(bigA, bigB)

		result, overflow := OverflowAddUint64(a, b)
		if bigA.IsUint64() {
			uint64Result := bigA.Uint64()
			if overflow {
				t.Errorf("a = %v and b = %v. addition fits in uint64 but reported overflow", a, b)
			} else if uint64Result != result {
				t.Errorf("a = %v and b = %v. expected result %v but got %v", a, b, uint64Result, result)
			}
		} else if !overflow {
			t.Error("addition is above max uint64 but did not return overflow")
		}
	})
}

func TestUnderflowSubUint64(t *testing.T) {
	tests := []struct {
		a                 uint64
		b                 uint64
		expectedUint64    uint64
		expectedUnderflow bool
	}{
		{
			a:                 42,
			b:                 21,
			expectedUint64:    21,
			expectedUnderflow: false,
		},
		{
			a:                 10,
			b:                 210,
			expectedUint64:    0,
			expectedUnderflow: true,
		},
	}

	for _, test := range tests {
		result, underflow := UnderflowSubUint64(test.a, test.b)
		if result != test.expectedUint64 {
			t.Fatalf("expected result '%v' but got '%v'", test.expectedUint64, result)
		}

		if underflow != test.expectedUnderflow {
			t.Fatalf("expected underflow '%v' but got '%v'", test.expectedUnderflow, underflow)
		}
	}
}

func TestAmountSplit(t *testing.T) {
	tests := []struct {
		amount   uint64
		expected []uint64
	}{
		{amount: 0, expected: []uint64{}},
		{amount: 1, expected: []uint64{1}},
		{amount: 13, expected: []uint64{1, 4, 8}},
		{amount: 64, expected: []uint64{64}},
	}

	for _, test := range tests {
		got := AmountSplit(test.amount)
		if len(got) != len(test.expected) {
			t.Fatalf("amount %v: expected %v but got %v", test.amount, test.expected, got)
		}
		for i := range got {
			if got[i] != test.expected[i] {
				t.Fatalf("amount %v: expected %v but got %v", test.amount, test.expected, got)
			}
		}
	}
}

func TestCheckDuplicateProofs(t *testing.T) {
	proofs := Proofs{
		{Amount: 1, Id: "00", Secret: "a", C: "b"},
		{Amount: 2, Id: "00", Secret: "c", C: "d"},
	}
	if CheckDuplicateProofs(proofs) {
		t.Error("expected no duplicates")
	}

	proofs = append(proofs, proofs[0])
	if !CheckDuplicateProofs(proofs) {
		t.Error("expected duplicates to be detected")
	}

	// same secret at a different amount/id/C must still be flagged: the
	// secret is what makes a proof redeemable, not the rest of the struct.
	sameSecret := Proofs{
		{Amount: 1, Id: "00", Secret: "shared", C: "b"},
		{Amount: 2, Id: "01", Secret: "shared", C: "d"},
	}
	if !CheckDuplicateProofs(sameSecret) {
		t.Error("expected duplicate secret at different amount/id/C to be detected")
	}
}

func TestBlindedMessagesCheckDuplicates(t *testing.T) {
	messages := BlindedMessages{
		{Amount: 1, B_: "aa"},
		{Amount: 2, B_: "bb"},
	}
	if messages.CheckDuplicates() {
		t.Error("expected no duplicates")
	}

	messages = append(messages, messages[0])
	if !messages.CheckDuplicates() {
		t.Error("expected duplicates to be detected")
	}
}
