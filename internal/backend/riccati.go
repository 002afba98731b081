package backend

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/san-kum/chainbench/internal/problem"
)

const riccatiDefaultMaxIter = 100

// Riccati is a primal-dual interior point method on the dense OCP. Each
// Newton step is an equality constrained LQ problem over the horizon,
// solved by a backward Riccati recursion and a forward rollout, so the
// cost per iteration is linear in N.
//
// The leading Nbx components of x0 are fixed; the rest of x0 is a
// decision variable eliminated through the stage-0 cost-to-go.
type Riccati struct {
	set Settings
	ocp *problem.OCP
	nw  int

	// One-sided rows gᵀw >= h per stage, w = [x; u] (w = x at stage N).
	rows [][]ineqRow
	h    [][]float64
	base *mat.Dense

	x, u, s, z [][]float64

	hk  []*mat.Dense
	pk  []*mat.Dense
	kk  []*mat.Dense
	qux []*mat.Dense
	quu []mat.Cholesky
	pff mat.Cholesky
}

func NewRiccati(set Settings) *Riccati { return &Riccati{set: set} }

func (r *Riccati) Setup(o *problem.OCP) error {
	if err := o.Validate(); err != nil {
		return err
	}
	r.ocp = o
	n, nx, nu := o.N, o.Nx, o.Nu
	r.nw = nx + nu

	r.base = mat.NewDense(r.nw, r.nw, nil)
	r.base.Slice(0, nx, 0, nx).(*mat.Dense).Copy(o.Q)
	r.base.Slice(nx, r.nw, nx, r.nw).(*mat.Dense).Copy(o.R)
	r.base.Slice(nx, r.nw, 0, nx).(*mat.Dense).Copy(o.S)
	r.base.Slice(0, nx, nx, r.nw).(*mat.Dense).Copy(o.S.T())

	r.rows = make([][]ineqRow, n+1)
	r.h = make([][]float64, n+1)
	box := func(k, off int, lo, hi []float64) {
		for i := range lo {
			if !math.IsInf(lo[i], -1) {
				r.rows[k] = append(r.rows[k], ineqRow{idx: []int{off + i}, val: []float64{1}})
				r.h[k] = append(r.h[k], lo[i])
			}
			if !math.IsInf(hi[i], 1) {
				r.rows[k] = append(r.rows[k], ineqRow{idx: []int{off + i}, val: []float64{-1}})
				r.h[k] = append(r.h[k], -hi[i])
			}
		}
	}
	for k := 0; k <= n; k++ {
		if k > 0 {
			box(k, 0, o.XL, o.XU)
		}
		if k == n {
			break
		}
		box(k, nx, o.UL, o.UU)
		for g := 0; g < o.Ng(); g++ {
			var row ineqRow
			for j := 0; j < nx; j++ {
				if v := o.C.At(g, j); v != 0 {
					row.idx = append(row.idx, j)
					row.val = append(row.val, v)
				}
			}
			for j := 0; j < nu; j++ {
				if v := o.D.At(g, j); v != 0 {
					row.idx = append(row.idx, nx+j)
					row.val = append(row.val, v)
				}
			}
			neg := ineqRow{idx: row.idx, val: make([]float64, len(row.val))}
			for i, v := range row.val {
				neg.val[i] = -v
			}
			if !math.IsInf(o.GL[g], -1) {
				r.rows[k] = append(r.rows[k], row)
				r.h[k] = append(r.h[k], o.GL[g])
			}
			if !math.IsInf(o.GU[g], 1) {
				r.rows[k] = append(r.rows[k], neg)
				r.h[k] = append(r.h[k], -o.GU[g])
			}
		}
	}

	r.x = make([][]float64, n+1)
	r.u = make([][]float64, n)
	r.s = make([][]float64, n+1)
	r.z = make([][]float64, n+1)
	r.hk = make([]*mat.Dense, n+1)
	r.pk = make([]*mat.Dense, n+1)
	r.kk = make([]*mat.Dense, n)
	r.qux = make([]*mat.Dense, n)
	r.quu = make([]mat.Cholesky, n)
	for k := 0; k <= n; k++ {
		r.x[k] = make([]float64, nx)
		r.s[k] = make([]float64, len(r.h[k]))
		r.z[k] = make([]float64, len(r.h[k]))
		r.pk[k] = mat.NewDense(nx, nx, nil)
		if k < n {
			r.u[k] = make([]float64, nu)
			r.hk[k] = mat.NewDense(r.nw, r.nw, nil)
			r.kk[k] = mat.NewDense(nu, nx, nil)
			r.qux[k] = mat.NewDense(nu, nx, nil)
		} else {
			r.hk[k] = mat.NewDense(nx, nx, nil)
		}
	}
	return nil
}

// stage returns w_k = [x_k; u_k], or x_N.
func (r *Riccati) stage(k int) []float64 {
	if k == r.ocp.N {
		return r.x[k]
	}
	w := make([]float64, 0, r.nw)
	w = append(w, r.x[k]...)
	return append(w, r.u[k]...)
}

// grad returns the cost gradient at stage k.
func (r *Riccati) grad(k int) []float64 {
	o := r.ocp
	if k == o.N {
		g := mat.NewVecDense(o.Nx, nil)
		g.MulVec(o.QN, mat.NewVecDense(o.Nx, r.x[k]))
		return g.RawVector().Data
	}
	g := mat.NewVecDense(r.nw, nil)
	g.MulVec(r.base, mat.NewVecDense(r.nw, r.stage(k)))
	return g.RawVector().Data
}

func rowsMul(rows []ineqRow, w []float64) []float64 {
	out := make([]float64, len(rows))
	for i, row := range rows {
		var v float64
		for a, j := range row.idx {
			v += row.val[a] * w[j]
		}
		out[i] = v
	}
	return out
}

func rowsMulTransAdd(dst []float64, rows []ineqRow, t []float64) {
	for i, row := range rows {
		for a, j := range row.idx {
			dst[j] += row.val[a] * t[i]
		}
	}
}

// Solve runs the interior point method from the zero-input rollout of the
// current X0.
func (r *Riccati) Solve() (Result, error) {
	if r.ocp == nil {
		return Result{}, ErrNotSetUp
	}
	o := r.ocp
	n, nx, nu, nbx := o.N, o.Nx, o.Nu, o.Nbx()
	eps := r.set.eps()
	maxIter := r.set.maxIter(riccatiDefaultMaxIter)
	log := r.set.logger()

	for i := range r.x[0] {
		r.x[0][i] = 0
	}
	copy(r.x[0], o.X0)
	for k := 0; k < n; k++ {
		for j := range r.u[k] {
			r.u[k][j] = math.Min(math.Max(0, o.UL[j]), o.UU[j])
		}
		r.x[k+1] = r.dynamics(k)
	}
	mi := 0
	for k := 0; k <= n; k++ {
		gw := rowsMul(r.rows[k], r.stage(k))
		for i := range gw {
			r.s[k][i] = math.Max(gw[i]-r.h[k][i], 1)
			r.z[k][i] = 1
		}
		mi += len(gw)
	}

	c := make([][]float64, n)
	ri := make([][]float64, n+1)
	sigma := make([][]float64, n+1)
	rsz := make([][]float64, n+1)
	dw := make([][]float64, n+1)
	ds := make([][]float64, n+1)
	dz := make([][]float64, n+1)
	dsAff := make([][]float64, n+1)
	dzAff := make([][]float64, n+1)
	grads := make([][]float64, n+1)
	for k := 0; k <= n; k++ {
		m := len(r.h[k])
		ri[k] = make([]float64, m)
		sigma[k] = make([]float64, m)
		rsz[k] = make([]float64, m)
		dsAff[k] = make([]float64, m)
		dzAff[k] = make([]float64, m)
	}
	e0 := make([]float64, nbx)

	for iter := 0; iter < maxIter; iter++ {
		var mu, primal, primalScale, gradScale float64
		for k := 0; k <= n; k++ {
			w := r.stage(k)
			gw := rowsMul(r.rows[k], w)
			for i := range gw {
				ri[k][i] = gw[i] - r.s[k][i] - r.h[k][i]
				mu += r.s[k][i] * r.z[k][i]
			}
			primal = math.Max(primal, normInf(ri[k]))
			primalScale = maxOf(primalScale, normInf(gw), normInf(r.h[k]))
			if k < n {
				c[k] = r.dynamics(k)
				for i := range c[k] {
					c[k][i] -= r.x[k+1][i]
				}
				primal = math.Max(primal, normInf(c[k]))
			}
			grads[k] = r.grad(k)
			gradScale = math.Max(gradScale, normInf(grads[k]))
		}
		for i := 0; i < nbx; i++ {
			e0[i] = o.X0[i] - r.x[0][i]
		}
		primal = math.Max(primal, normInf(e0))
		if mi > 0 {
			mu /= float64(mi)
		}
		dual := r.dualResidual(grads)

		log.Debug("riccati iteration", "iter", iter, "primal", primal, "dual", dual, "mu", mu)
		if primal <= eps*(1+primalScale) && dual <= eps*(1+gradScale) && mu <= eps {
			return r.result(iter), nil
		}
		if !finite(r.x[n]) {
			return Result{Iterations: iter, Status: StatusNumerical}, fmt.Errorf("%w: non-finite iterate", ErrNumerical)
		}

		for k := 0; k <= n; k++ {
			for i := range sigma[k] {
				sigma[k][i] = r.z[k][i] / r.s[k][i]
			}
		}
		if err := r.factor(sigma); err != nil {
			return Result{Iterations: iter, Status: StatusNumerical}, err
		}

		newton := func() {
			q := make([][]float64, n+1)
			for k := 0; k <= n; k++ {
				q[k] = append([]float64(nil), grads[k]...)
				t := make([]float64, len(r.h[k]))
				for i := range t {
					t[i] = rsz[k][i]/r.s[k][i] + sigma[k][i]*ri[k][i] - r.z[k][i]
				}
				rowsMulTransAdd(q[k], r.rows[k], t)
			}
			r.solveLQ(q, c, e0, dw)
			for k := 0; k <= n; k++ {
				ds[k] = rowsMul(r.rows[k], dw[k])
				dz[k] = make([]float64, len(ds[k]))
				for i := range ds[k] {
					ds[k][i] += ri[k][i]
					dz[k][i] = -(rsz[k][i] + r.z[k][i]*ds[k][i]) / r.s[k][i]
				}
			}
		}

		alpha := 1.0
		if mi > 0 {
			for k := range rsz {
				for i := range rsz[k] {
					rsz[k][i] = r.s[k][i] * r.z[k][i]
				}
			}
			newton()
			alpha = r.maxStep(ds, dz)
			var muAff float64
			for k := range ds {
				for i := range ds[k] {
					muAff += (r.s[k][i] + alpha*ds[k][i]) * (r.z[k][i] + alpha*dz[k][i])
				}
			}
			muAff /= float64(mi)
			sig := math.Pow(muAff/mu, 3)
			for k := range ds {
				copy(dsAff[k], ds[k])
				copy(dzAff[k], dz[k])
			}
			for k := range rsz {
				for i := range rsz[k] {
					rsz[k][i] = r.s[k][i]*r.z[k][i] + dsAff[k][i]*dzAff[k][i] - sig*mu
				}
			}
			newton()
			alpha = math.Min(1, ipmStepFraction*r.maxStep(ds, dz))
		} else {
			newton()
		}

		for k := 0; k <= n; k++ {
			for i := 0; i < nx; i++ {
				r.x[k][i] += alpha * dw[k][i]
			}
			if k < n {
				for j := 0; j < nu; j++ {
					r.u[k][j] += alpha * dw[k][nx+j]
				}
			}
			for i := range r.s[k] {
				r.s[k][i] += alpha * ds[k][i]
				r.z[k][i] += alpha * dz[k][i]
			}
		}
	}
	res := r.result(maxIter)
	res.Status = StatusMaxIter
	return res, fmt.Errorf("%w: riccati after %d iterations", ErrMaxIter, maxIter)
}

func (r *Riccati) dynamics(k int) []float64 {
	o := r.ocp
	next := mat.NewVecDense(o.Nx, nil)
	next.MulVec(o.A, mat.NewVecDense(o.Nx, r.x[k]))
	var bu mat.VecDense
	bu.MulVec(o.B, mat.NewVecDense(o.Nu, r.u[k]))
	next.AddVec(next, &bu)
	return next.RawVector().Data
}

// dualResidual eliminates the dynamics multipliers backwards and returns
// the remaining stationarity error on the inputs and the free part of x0.
func (r *Riccati) dualResidual(grads [][]float64) float64 {
	o := r.ocp
	n, nx, nbx := o.N, o.Nx, o.Nbx()
	reduced := func(k int) []float64 {
		g := append([]float64(nil), grads[k]...)
		neg := make([]float64, len(r.z[k]))
		for i, v := range r.z[k] {
			neg[i] = -v
		}
		rowsMulTransAdd(g, r.rows[k], neg)
		return g
	}
	lambda := mat.NewVecDense(nx, reduced(n))
	var worst float64
	for k := n - 1; k >= 0; k-- {
		g := reduced(k)
		var bl, al mat.VecDense
		bl.MulVec(o.B.T(), lambda)
		for j := 0; j < o.Nu; j++ {
			worst = math.Max(worst, math.Abs(g[nx+j]+bl.AtVec(j)))
		}
		al.MulVec(o.A.T(), lambda)
		next := mat.NewVecDense(nx, nil)
		for i := 0; i < nx; i++ {
			next.SetVec(i, g[i]+al.AtVec(i))
		}
		if k == 0 {
			for i := nbx; i < nx; i++ {
				worst = math.Max(worst, math.Abs(next.AtVec(i)))
			}
		}
		lambda = next
	}
	return worst
}

// factor runs the backward Riccati recursion for the current barrier
// weights. It depends on Σ only, so predictor and corrector share it.
func (r *Riccati) factor(sigma [][]float64) error {
	o := r.ocp
	n, nx, nbx := o.N, o.Nx, o.Nbx()
	nw := r.nw

	r.hk[n].Copy(o.QN)
	addBarrier(r.hk[n], r.rows[n], sigma[n])
	r.pk[n].Copy(r.hk[n])

	var bp, ap, quu, qxx, t mat.Dense
	for k := n - 1; k >= 0; k-- {
		h := r.hk[k]
		h.Copy(r.base)
		addBarrier(h, r.rows[k], sigma[k])
		p := r.pk[k+1]

		bp.Mul(o.B.T(), p)
		quu.Mul(&bp, o.B)
		quu.Add(&quu, h.Slice(nx, nw, nx, nw))
		r.qux[k].Mul(&bp, o.A)
		r.qux[k].Add(r.qux[k], h.Slice(nx, nw, 0, nx))
		ap.Mul(o.A.T(), p)
		qxx.Mul(&ap, o.A)
		qxx.Add(&qxx, h.Slice(0, nx, 0, nx))

		if !r.quu[k].Factorize(symmetric(&quu)) {
			return fmt.Errorf("%w: stage %d input Hessian not positive definite", ErrNumerical, k)
		}
		if err := r.quu[k].SolveTo(r.kk[k], r.qux[k]); err != nil {
			return fmt.Errorf("%w: stage %d gain: %v", ErrNumerical, k, err)
		}
		r.kk[k].Scale(-1, r.kk[k])

		t.Mul(r.qux[k].T(), r.kk[k])
		r.pk[k].Add(&qxx, &t)
		r.pk[k].Copy(symmetric(r.pk[k]))
	}

	if nbx < nx {
		pf := r.pk[0].Slice(nbx, nx, nbx, nx)
		if !r.pff.Factorize(symmetric(pf)) {
			return fmt.Errorf("%w: free initial state block not positive definite", ErrNumerical)
		}
	}
	return nil
}

// solveLQ computes the Newton direction dw for linear terms q, dynamics
// defects c and initial state defect e0.
func (r *Riccati) solveLQ(q, c [][]float64, e0 []float64, dw [][]float64) {
	o := r.ocp
	n, nx, nu, nbx := o.N, o.Nx, o.Nu, o.Nbx()

	pvec := make([]*mat.VecDense, n+1)
	kvec := make([]*mat.VecDense, n)
	pvec[n] = mat.NewVecDense(nx, append([]float64(nil), q[n]...))
	for k := n - 1; k >= 0; k-- {
		v := mat.NewVecDense(nx, nil)
		v.MulVec(r.pk[k+1], mat.NewVecDense(nx, c[k]))
		v.AddVec(v, pvec[k+1])

		qu := mat.NewVecDense(nu, append([]float64(nil), q[k][nx:]...))
		var bv mat.VecDense
		bv.MulVec(o.B.T(), v)
		qu.AddVec(qu, &bv)
		qx := mat.NewVecDense(nx, append([]float64(nil), q[k][:nx]...))
		var av mat.VecDense
		av.MulVec(o.A.T(), v)
		qx.AddVec(qx, &av)

		kvec[k] = mat.NewVecDense(nu, nil)
		if err := r.quu[k].SolveVecTo(kvec[k], qu); err != nil {
			kvec[k].Zero()
		}
		kvec[k].ScaleVec(-1, kvec[k])

		var qk mat.VecDense
		qk.MulVec(r.qux[k].T(), kvec[k])
		qx.AddVec(qx, &qk)
		pvec[k] = qx
	}

	dx := mat.NewVecDense(nx, nil)
	for i := 0; i < nbx; i++ {
		dx.SetVec(i, e0[i])
	}
	if nbx < nx {
		nf := nx - nbx
		rhs := mat.NewVecDense(nf, nil)
		var pe mat.VecDense
		pe.MulVec(r.pk[0].Slice(nbx, nx, 0, nbx), mat.NewVecDense(nbx, e0))
		for i := 0; i < nf; i++ {
			rhs.SetVec(i, -(pvec[0].AtVec(nbx+i) + pe.AtVec(i)))
		}
		var df mat.VecDense
		if err := r.pff.SolveVecTo(&df, rhs); err == nil {
			for i := 0; i < nf; i++ {
				dx.SetVec(nbx+i, df.AtVec(i))
			}
		}
	}

	for k := 0; k < n; k++ {
		du := mat.NewVecDense(nu, nil)
		du.MulVec(r.kk[k], dx)
		du.AddVec(du, kvec[k])

		w := make([]float64, 0, nx+nu)
		w = append(w, dx.RawVector().Data...)
		dw[k] = append(w, du.RawVector().Data...)

		next := mat.NewVecDense(nx, append([]float64(nil), c[k]...))
		var t mat.VecDense
		t.MulVec(o.A, dx)
		next.AddVec(next, &t)
		t.MulVec(o.B, du)
		next.AddVec(next, &t)
		dx = next
	}
	dw[n] = append([]float64(nil), dx.RawVector().Data...)
}

func (r *Riccati) maxStep(ds, dz [][]float64) float64 {
	alpha := 1.0
	for k := range ds {
		alpha = math.Min(alpha, stepToBoundary(r.s[k], ds[k]))
		alpha = math.Min(alpha, stepToBoundary(r.z[k], dz[k]))
	}
	return alpha
}

// Trajectory returns copies of the current states and inputs.
func (r *Riccati) Trajectory() (xs, us [][]float64) {
	xs = make([][]float64, len(r.x))
	for k, x := range r.x {
		xs[k] = append([]float64(nil), x...)
	}
	us = make([][]float64, len(r.u))
	for k, u := range r.u {
		us[k] = append([]float64(nil), u...)
	}
	return xs, us
}

// result flattens the trajectory stage by stage into [x0, u0, ..., xN].
func (r *Riccati) result(iter int) Result {
	var x []float64
	for k := range r.x {
		x = append(x, r.x[k]...)
		if k < len(r.u) {
			x = append(x, r.u[k]...)
		}
	}
	return Result{X: x, Iterations: iter, Status: StatusSolved}
}

func addBarrier(h *mat.Dense, rows []ineqRow, sigma []float64) {
	for r, row := range rows {
		for a, i := range row.idx {
			for b, j := range row.idx {
				h.Set(i, j, h.At(i, j)+sigma[r]*row.val[a]*row.val[b])
			}
		}
	}
}

// symmetric returns (M + Mᵀ)/2.
func symmetric(m mat.Matrix) *mat.SymDense {
	n, _ := m.Dims()
	s := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			s.SetSym(i, j, 0.5*(m.At(i, j)+m.At(j, i)))
		}
	}
	return s
}
