package control

import (
	"errors"
	"fmt"
	"math"
	"math/cmplx"

	"gonum.org/v1/gonum/mat"
)

var (
	// ErrNotStabilizable indicates that (A, B) admits no stabilizing
	// Riccati solution.
	ErrNotStabilizable = errors.New("control: system is not stabilizable")

	// ErrNotPositiveDefinite indicates a weight matrix that must be
	// positive definite is not.
	ErrNotPositiveDefinite = errors.New("control: weight matrix is not positive definite")
)

const (
	dareMaxIter = 100
	dareTol     = 1e-14
	condLimit   = 1e14
)

// SolveDARE returns the stabilizing solution X of the discrete algebraic
// Riccati equation
//
//	X = AᵀXA - AᵀXB (R + BᵀXB)⁻¹ BᵀXA + Q
//
// using the structured doubling algorithm. The result is symmetric.
func SolveDARE(a, b, q, r mat.Matrix) (*mat.Dense, error) {
	n, _ := a.Dims()

	var rc mat.Cholesky
	if !rc.Factorize(symmetrize(r)) {
		return nil, ErrNotPositiveDefinite
	}
	var rinvBt mat.Dense
	if err := rc.SolveTo(&rinvBt, b.T()); err != nil {
		return nil, fmt.Errorf("control: R solve: %w", err)
	}

	ak := mat.DenseCopyOf(a)
	gk := mat.NewDense(n, n, nil)
	gk.Mul(b, &rinvBt)
	hk := mat.DenseCopyOf(q)

	eye := identity(n)
	var w, winvA, winvG, tmp, an, gn, hn mat.Dense
	var lu mat.LU
	converged := false
	for iter := 0; iter < dareMaxIter; iter++ {
		w.Mul(gk, hk)
		w.Add(&w, eye)
		lu.Factorize(&w)
		if c := lu.Cond(); math.IsInf(c, 0) || c > condLimit {
			return nil, ErrNotStabilizable
		}
		if err := lu.SolveTo(&winvA, false, ak); err != nil {
			return nil, ErrNotStabilizable
		}
		if err := lu.SolveTo(&winvG, false, gk); err != nil {
			return nil, ErrNotStabilizable
		}

		an.Mul(ak, &winvA)

		tmp.Mul(ak, &winvG)
		gn.Mul(&tmp, ak.T())
		gn.Add(&gn, gk)

		tmp.Mul(ak.T(), hk)
		hn.Mul(&tmp, &winvA)
		hn.Add(&hn, hk)

		if !finite(&an) || !finite(&gn) || !finite(&hn) {
			return nil, ErrNotStabilizable
		}

		var diff mat.Dense
		diff.Sub(&hn, hk)
		change := mat.Norm(&diff, 2)
		scale := mat.Norm(&hn, 2)

		ak.Copy(&an)
		gk.Copy(symmetrize(&gn))
		hk.Copy(symmetrize(&hn))

		if change <= dareTol*math.Max(1, scale) {
			converged = true
			break
		}
	}
	if !converged {
		return nil, ErrNotStabilizable
	}

	x := hk
	k, err := Gain(a, b, r, x)
	if err != nil {
		return nil, err
	}
	var acl mat.Dense
	acl.Mul(b, k)
	acl.Sub(a, &acl)
	var eig mat.Eigen
	if !eig.Factorize(&acl, mat.EigenNone) {
		return nil, fmt.Errorf("control: closed-loop eigenvalues: %w", ErrNotStabilizable)
	}
	for _, v := range eig.Values(nil) {
		if cmplx.Abs(v) >= 1 {
			return nil, ErrNotStabilizable
		}
	}
	return x, nil
}

// Gain returns K = (R + BᵀXB)⁻¹ BᵀXA.
func Gain(a, b, r, x mat.Matrix) (*mat.Dense, error) {
	var btx, s, btxa mat.Dense
	btx.Mul(b.T(), x)
	s.Mul(&btx, b)
	s.Add(&s, r)
	btxa.Mul(&btx, a)

	var chol mat.Cholesky
	if !chol.Factorize(symmetrize(&s)) {
		return nil, ErrNotPositiveDefinite
	}
	var k mat.Dense
	if err := chol.SolveTo(&k, &btxa); err != nil {
		return nil, fmt.Errorf("control: gain solve: %w", err)
	}
	return &k, nil
}

// RiccatiResidual returns ‖AᵀXA - X - AᵀXB(R+BᵀXB)⁻¹BᵀXA + Q‖_F / max(1, ‖X‖_F).
func RiccatiResidual(a, b, q, r, x mat.Matrix) float64 {
	k, err := Gain(a, b, r, x)
	if err != nil {
		return math.Inf(1)
	}
	var atx, atxa, atxb, corr, res mat.Dense
	atx.Mul(a.T(), x)
	atxa.Mul(&atx, a)
	atxb.Mul(&atx, b)
	corr.Mul(&atxb, k)

	res.Sub(&atxa, x)
	res.Sub(&res, &corr)
	res.Add(&res, q)
	return mat.Norm(&res, 2) / math.Max(1, mat.Norm(x, 2))
}

func identity(n int) *mat.Dense {
	eye := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		eye.Set(i, i, 1)
	}
	return eye
}

// symmetrize returns (M + Mᵀ)/2 as a SymDense.
func symmetrize(m mat.Matrix) *mat.SymDense {
	n, _ := m.Dims()
	s := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			s.SetSym(i, j, 0.5*(m.At(i, j)+m.At(j, i)))
		}
	}
	return s
}

func finite(m *mat.Dense) bool {
	r, c := m.Dims()
	for i := 0; i < r; i++ {
		for _, v := range m.RawRowView(i)[:c] {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return false
			}
		}
	}
	return true
}
