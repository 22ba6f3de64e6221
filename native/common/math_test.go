package common

import (
	"errors"
	"testing"

	"github.com/holiman/uint256"
)

func TestMulDivRounding(t *testing.T) {
	down, err := MulDiv(uint256.NewInt(10), uint256.NewInt(1), uint256.NewInt(3), RoundDown)
	if err != nil || down.Uint64() != 3 {
		t.Fatalf("round down = %v err=%v", down, err)
	}
	up, err := MulDiv(uint256.NewInt(10), uint256.NewInt(1), uint256.NewInt(3), RoundUp)
	if err != nil || up.Uint64() != 4 {
		t.Fatalf("round up = %v err=%v", up, err)
	}
	exact, err := MulDiv(uint256.NewInt(9), uint256.NewInt(1), uint256.NewInt(3), RoundUp)
	if err != nil || exact.Uint64() != 3 {
		t.Fatalf("exact round up = %v err=%v", exact, err)
	}
	if _, err := MulDiv(uint256.NewInt(1), uint256.NewInt(1), new(uint256.Int), RoundDown); !errors.Is(err, ErrDivisionByZero) {
		t.Fatalf("expected ErrDivisionByZero, got %v", err)
	}
}

func TestMulDivWideIntermediate(t *testing.T) {
	max := new(uint256.Int).SetAllOne()
	out, err := MulDiv(max, uint256.NewInt(2), uint256.NewInt(2), RoundDown)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !out.Eq(max) {
		t.Fatalf("expected max, got %s", out.Dec())
	}
	if _, err := MulDiv(max, uint256.NewInt(2), uint256.NewInt(1), RoundDown); !errors.Is(err, ErrMathOverflow) {
		t.Fatalf("expected ErrMathOverflow, got %v", err)
	}
}

func TestApplyBpsAndPow10(t *testing.T) {
	fee, err := ApplyBps(uint256.NewInt(1_000), 250)
	if err != nil || fee.Uint64() != 25 {
		t.Fatalf("fee = %v err=%v", fee, err)
	}
	p, err := Pow10(18)
	if err != nil || p.Uint64() != 1_000_000_000_000_000_000 {
		t.Fatalf("pow10 = %v err=%v", p, err)
	}
	if _, err := Pow10(78); !errors.Is(err, ErrMathOverflow) {
		t.Fatalf("expected overflow for 10^78")
	}
}
