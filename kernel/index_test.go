package kernel

import (
	"fmt"
	"testing"
)

func TestPairIndexBijection(t *testing.T) {
	t.Parallel()
	tests := []struct {
		nModes int
	}{
		{nModes: 1},
		{nModes: 2},
		{nModes: 5},
		{nModes: 8},
	}
	for _, test := range tests {
		t.Run(fmt.Sprintf("%d", test.nModes), func(t *testing.T) {
			t.Parallel()
			n := test.nModes
			seenA := make(map[int]bool)
			seenY := make(map[int]bool)
			for a := 0; a < n; a++ {
				for b := a; b < n; b++ {
					ia := IndexA(a, b, n)
					iy := IndexY(a, b, n)
					if ia != IndexA(b, a, n) || iy != IndexY(b, a, n) {
						t.Fatalf("(%d,%d): not symmetric", a, b)
					}
					if ia < StartA(n) || ia >= EndA(n) {
						t.Fatalf("(%d,%d): A index %d outside [%d,%d)", a, b, ia, StartA(n), EndA(n))
					}
					if iy < EndA(n) || iy >= PsiSize(n) {
						t.Fatalf("(%d,%d): Y index %d outside [%d,%d)", a, b, iy, EndA(n), PsiSize(n))
					}
					if seenA[ia] || seenY[iy] {
						t.Fatalf("(%d,%d): collision at %d %d", a, b, ia, iy)
					}
					seenA[ia] = true
					seenY[iy] = true
				}
			}
			if len(seenA) != NumPairs(n) || len(seenY) != NumPairs(n) {
				t.Fatalf("%d %d, expected %d", len(seenA), len(seenY), NumPairs(n))
			}
		})
	}
}

func ExampleIndexY() {
	const nModes = 3
	fmt.Println(StartA(nModes), EndA(nModes), PsiSize(nModes))
	fmt.Println(IndexA(0, 1, nModes), IndexY(1, 0, nModes))
	// Output:
	// 3 9 15
	// 4 10
}
