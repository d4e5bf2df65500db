package mathx

import (
	"math"
	"testing"
)

func TestNormalizeZero(t *testing.T) {
	if _, ok := (Vec3{}).Normalize(); ok {
		t.Fatalf("zero vector must not normalize")
	}
	n, ok := V(3, 0, 4).Normalize()
	if !ok || math.Abs(n.Len()-1) > 1e-12 {
		t.Fatalf("unexpected normalize: %+v ok=%v", n, ok)
	}
}

func TestLenXZIgnoresHeight(t *testing.T) {
	if got := V(3, 100, 4).LenXZ(); got != 5 {
		t.Fatalf("LenXZ=%v", got)
	}
	if got := DistXZ(V(1, 0, 1), V(4, -9, 5)); got != 5 {
		t.Fatalf("DistXZ=%v", got)
	}
}

func TestAbsInt(t *testing.T) {
	for _, c := range []struct{ in, want int }{{-3, 3}, {0, 0}, {5, 5}} {
		if got := AbsInt(c.in); got != c.want {
			t.Fatalf("AbsInt(%d)=%d", c.in, got)
		}
	}
}
