package linalg

import (
	"math"
	"math/rand"
	"testing"

	"gonum.org/v1/gonum/mat"
)

func TestTripletSumsDuplicates(t *testing.T) {
	tr := NewTriplet(3, 3, 8)
	tr.Add(0, 0, 1)
	tr.Add(2, 1, 4)
	tr.Add(0, 0, 2)
	tr.AddIdentity(0, 0, 3, 1)

	a := tr.ToCSC()
	if a.NNZ() != 4 {
		t.Fatalf("expected 4 stored entries, got %d", a.NNZ())
	}
	if a.At(0, 0) != 4 {
		t.Errorf("expected summed diagonal 4, got %v", a.At(0, 0))
	}
	if a.At(2, 1) != 4 || a.At(1, 2) != 0 {
		t.Errorf("unexpected off-diagonal entries %v %v", a.At(2, 1), a.At(1, 2))
	}
}

func TestRefillKeepsPattern(t *testing.T) {
	tr := NewTriplet(2, 2, 4)
	tr.Add(1, 1, 1)
	tr.Add(0, 1, 2)
	tr.Add(1, 1, 3)
	a, slots := tr.ToCSCMapped()

	Refill(a, slots, []float64{10, 20, 30})
	if a.At(1, 1) != 40 || a.At(0, 1) != 20 {
		t.Errorf("refill produced %v %v", a.At(1, 1), a.At(0, 1))
	}
}

func TestCSCMulVec(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	d := mat.NewDense(4, 5, nil)
	tr := NewTriplet(4, 5, 20)
	for i := 0; i < 4; i++ {
		for j := 0; j < 5; j++ {
			if rng.Float64() < 0.5 {
				v := rng.NormFloat64()
				d.Set(i, j, v)
				tr.Add(i, j, v)
			}
		}
	}
	a := tr.ToCSC()

	x := []float64{1, -2, 3, 0.5, -1}
	got := make([]float64, 4)
	a.MulVec(got, x)
	var want mat.VecDense
	want.MulVec(d, mat.NewVecDense(5, x))
	for i := range got {
		if math.Abs(got[i]-want.AtVec(i)) > 1e-12 {
			t.Errorf("row %d: got %v want %v", i, got[i], want.AtVec(i))
		}
	}

	y := []float64{1, 2, -1, 0.25}
	gotT := make([]float64, 5)
	a.MulVecTrans(gotT, y)
	at := a.Transpose()
	gotT2 := make([]float64, 5)
	at.MulVec(gotT2, y)
	for j := range gotT {
		if math.Abs(gotT[j]-gotT2[j]) > 1e-12 {
			t.Errorf("col %d: transpose mismatch %v vs %v", j, gotT[j], gotT2[j])
		}
	}
	if !mat.Equal(a.T(), at) {
		t.Error("Transpose disagrees with mat.Transpose view")
	}
}

func TestRCMIsPermutation(t *testing.T) {
	tr := NewTriplet(6, 6, 16)
	for i := 0; i < 6; i++ {
		tr.Add(i, i, 1)
	}
	tr.Add(0, 5, 1)
	tr.Add(5, 3, 1)
	tr.Add(1, 2, 1)
	perm := RCM(tr.ToCSC())

	seen := make(map[int]bool)
	for _, p := range perm {
		seen[p] = true
	}
	if len(perm) != 6 || len(seen) != 6 {
		t.Fatalf("ordering is not a permutation: %v", perm)
	}
	iperm := InversePerm(perm)
	for k, p := range perm {
		if iperm[p] != k {
			t.Fatalf("inverse permutation broken at %d", k)
		}
	}
}

// quasiDefinite builds [[H, Aᵀ], [A, -δI]] with H positive definite.
func quasiDefinite(rng *rand.Rand, n, m int) (*Triplet, *mat.Dense) {
	dim := n + m
	full := mat.NewDense(dim, dim, nil)
	upper := NewTriplet(dim, dim, dim*dim)
	set := func(i, j int, v float64) {
		full.Set(i, j, v)
		full.Set(j, i, v)
		if i <= j {
			upper.Add(i, j, v)
		} else {
			upper.Add(j, i, v)
		}
	}
	for i := 0; i < n; i++ {
		set(i, i, 4+rng.Float64())
		if i+1 < n {
			set(i, i+1, 0.5*rng.NormFloat64())
		}
	}
	for r := 0; r < m; r++ {
		set(n+r, n+r, -1e-8)
		set(r, n+r, 1)
		set((r+2)%n, n+r, rng.NormFloat64())
	}
	return upper, full
}

func TestLDLSolvesQuasiDefinite(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	upper, full := quasiDefinite(rng, 8, 3)
	perm := RCM(upper.ToCSC())
	a, _ := PermuteUpper(upper, perm)

	f, err := NewLDL(a, perm)
	if err != nil {
		t.Fatalf("symbolic analysis failed: %v", err)
	}
	if err := f.Factor(a); err != nil {
		t.Fatalf("factorization failed: %v", err)
	}
	if f.Positive() != 8 {
		t.Errorf("expected 8 positive pivots, got %d", f.Positive())
	}

	b := make([]float64, 11)
	for i := range b {
		b[i] = rng.NormFloat64()
	}
	x := append([]float64(nil), b...)
	f.Solve(x)

	var want mat.VecDense
	if err := want.SolveVec(full, mat.NewVecDense(11, b)); err != nil {
		t.Fatalf("dense solve failed: %v", err)
	}
	for i := range x {
		if math.Abs(x[i]-want.AtVec(i)) > 1e-8 {
			t.Errorf("x[%d]: got %v want %v", i, x[i], want.AtVec(i))
		}
	}
}

func TestLDLRejectsLowerEntries(t *testing.T) {
	tr := NewTriplet(2, 2, 3)
	tr.Add(0, 0, 1)
	tr.Add(1, 0, 1)
	tr.Add(1, 1, 1)
	if _, err := NewLDL(tr.ToCSC(), nil); err != ErrNotUpper {
		t.Fatalf("expected ErrNotUpper, got %v", err)
	}
}
