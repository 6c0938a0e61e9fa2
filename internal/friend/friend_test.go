package friend

import "testing"

func TestPairCanonicalOrder(t *testing.T) {
	a, b := Pair(5, 2)
	if a != 2 || b != 5 {
		t.Errorf("Pair(5, 2) = (%d, %d), want (2, 5)", a, b)
	}
	a, b = Pair(2, 5)
	if a != 2 || b != 5 {
		t.Errorf("Pair(2, 5) = (%d, %d), want (2, 5)", a, b)
	}
}
