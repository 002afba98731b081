package backend

import (
	"fmt"
	"math"

	"github.com/san-kum/chainbench/internal/linalg"
	"github.com/san-kum/chainbench/internal/problem"
)

const (
	ipmDefaultMaxIter = 100
	ipmReg            = 1e-10
	ipmRefine         = 2
	ipmStepFraction   = 0.99
)

// ineqRow is one row g of the one-sided inequality gᵀx >= h.
type ineqRow struct {
	idx []int
	val []float64
}

// IPM is a Mehrotra predictor-corrector interior point method for the
// condensed QP. Pinned variables become equality rows; every finite box
// side and every finite side of an inequality row becomes a one-sided
// row gᵀx >= h with slack s and multiplier z. The Newton system is
//
//	[ P + GᵀΣG + δI   Eᵀ ] [ dx ]
//	[ E             -δI  ] [ -dy ]
//
// with Σ = Z S⁻¹, factorized once per iteration with a fixed pattern.
type IPM struct {
	set Settings
	qp  *problem.QP
	n   int

	pinned []int
	// source of each one-sided row: box variable (kind 0) or inequality
	// row (kind 1), lower (+1) or upper (-1) side.
	rows  []ineqRow
	kind  []int
	ref   []int
	sign  []float64
	e     *linalg.CSC
	g     *linalg.CSC
	b, h  []float64
	kkt   *kkt
	ggOff int

	x, y, z, s []float64
}

func NewIPM(set Settings) *IPM { return &IPM{set: set} }

// Setup analyses the QP and its KKT pattern. The pinned set is fixed
// from here on.
func (m *IPM) Setup(qp *problem.QP) error {
	if err := qp.Validate(); err != nil {
		return err
	}
	m.qp = qp
	m.n = qp.Dim()
	n := m.n

	m.pinned = m.pinned[:0]
	for i := 0; i < n; i++ {
		if qp.XL[i] == qp.XU[i] {
			m.pinned = append(m.pinned, i)
		}
	}

	// Equality rows: Aeq then pinned variables.
	neq := qp.NumEq() + len(m.pinned)
	et := linalg.NewTriplet(neq, n, n)
	if qp.Aeq != nil {
		for j := 0; j < n; j++ {
			for p := qp.Aeq.ColPtr[j]; p < qp.Aeq.ColPtr[j+1]; p++ {
				et.Add(qp.Aeq.RowIdx[p], j, qp.Aeq.Val[p])
			}
		}
	}
	for k, i := range m.pinned {
		et.Add(qp.NumEq()+k, i, 1)
	}
	m.e = et.ToCSC()

	m.rows, m.kind, m.ref, m.sign = nil, nil, nil, nil
	add := func(r ineqRow, kind, ref int, sign float64) {
		m.rows = append(m.rows, r)
		m.kind = append(m.kind, kind)
		m.ref = append(m.ref, ref)
		m.sign = append(m.sign, sign)
	}
	for i := 0; i < n; i++ {
		if qp.XL[i] == qp.XU[i] {
			continue
		}
		if !math.IsInf(qp.XL[i], -1) {
			add(ineqRow{idx: []int{i}, val: []float64{1}}, 0, i, 1)
		}
		if !math.IsInf(qp.XU[i], 1) {
			add(ineqRow{idx: []int{i}, val: []float64{-1}}, 0, i, -1)
		}
	}
	if qp.Aineq != nil {
		idx, val := qp.Aineq.RowLists()
		for r := range idx {
			neg := make([]float64, len(val[r]))
			for k, v := range val[r] {
				neg[k] = -v
			}
			if !math.IsInf(qp.BineqL[r], -1) {
				add(ineqRow{idx: idx[r], val: val[r]}, 1, r, 1)
			}
			if !math.IsInf(qp.BineqU[r], 1) {
				add(ineqRow{idx: idx[r], val: neg}, 1, r, -1)
			}
		}
	}
	gt := linalg.NewTriplet(len(m.rows), n, len(m.rows)*2)
	for r, row := range m.rows {
		for k, j := range row.idx {
			gt.Add(r, j, row.val[k])
		}
	}
	m.g = gt.ToCSC()
	m.b = make([]float64, neq)
	m.h = make([]float64, len(m.rows))

	if err := m.buildKKT(neq); err != nil {
		return err
	}

	m.x = make([]float64, n)
	m.y = make([]float64, neq)
	m.z = make([]float64, len(m.rows))
	m.s = make([]float64, len(m.rows))
	return nil
}

// buildKKT lays out the upper triangle in four segments: P, the diagonal,
// the GᵀΣG pairs and Eᵀ with the -δI block.
func (m *IPM) buildKKT(neq int) error {
	n := m.n
	p := m.qp.P
	dim := n + neq
	tri := linalg.NewTriplet(dim, dim, p.NNZ()+n+neq+m.e.NNZ()+len(m.rows))
	for j := 0; j < n; j++ {
		for k := p.ColPtr[j]; k < p.ColPtr[j+1]; k++ {
			if i := p.RowIdx[k]; i < j {
				tri.Add(i, j, p.Val[k])
			}
		}
	}
	for i := 0; i < n; i++ {
		tri.Add(i, i, p.At(i, i)+ipmReg)
	}
	m.ggOff = tri.Len()
	for _, row := range m.rows {
		if len(row.idx) == 1 {
			continue
		}
		for a := range row.idx {
			for b := range row.idx {
				i, j := row.idx[a], row.idx[b]
				if i < j {
					tri.Add(i, j, 0)
				}
			}
		}
	}
	for j := 0; j < n; j++ {
		for k := m.e.ColPtr[j]; k < m.e.ColPtr[j+1]; k++ {
			tri.Add(j, n+m.e.RowIdx[k], m.e.Val[k])
		}
	}
	for r := 0; r < neq; r++ {
		tri.Add(n+r, n+r, -ipmReg)
	}

	k, err := newKKT(tri)
	if err != nil {
		return err
	}
	for i := 0; i < n; i++ {
		k.reg[i] = ipmReg
	}
	for r := 0; r < neq; r++ {
		k.reg[n+r] = -ipmReg
	}
	m.kkt = k
	return nil
}

// UpdateBounds re-reads the box, the inequality bounds and Beq from the
// QP. Pinned variables must stay pinned.
func (m *IPM) UpdateBounds() error {
	if m.qp == nil {
		return ErrNotSetUp
	}
	qp := m.qp
	neq := qp.NumEq()
	copy(m.b, qp.Beq)
	for k, i := range m.pinned {
		if qp.XL[i] != qp.XU[i] {
			return fmt.Errorf("%w: variable %d", ErrPatternChanged, i)
		}
		m.b[neq+k] = qp.XL[i]
	}
	for r := range m.rows {
		var v float64
		switch {
		case m.kind[r] == 0 && m.sign[r] > 0:
			v = qp.XL[m.ref[r]]
		case m.kind[r] == 0:
			v = -qp.XU[m.ref[r]]
		case m.sign[r] > 0:
			v = qp.BineqL[m.ref[r]]
		default:
			v = -qp.BineqU[m.ref[r]]
		}
		m.h[r] = v
	}
	return nil
}

// updateKKT writes the current Σ into the diagonal and GᵀΣG segments.
func (m *IPM) updateKKT(sigma []float64) {
	n := m.n
	p := m.qp.P
	vals := m.kkt.vals
	for i := 0; i < n; i++ {
		vals[m.ggOff-n+i] = p.At(i, i) + ipmReg
	}
	pos := m.ggOff
	for r, row := range m.rows {
		if len(row.idx) == 1 {
			vals[m.ggOff-n+row.idx[0]] += sigma[r] * row.val[0] * row.val[0]
			continue
		}
		for a := range row.idx {
			vals[m.ggOff-n+row.idx[a]] += sigma[r] * row.val[a] * row.val[a]
			for b := range row.idx {
				if row.idx[a] < row.idx[b] {
					vals[pos] = sigma[r] * row.val[a] * row.val[b]
					pos++
				}
			}
		}
	}
}

// Solve runs the interior point method from x0, or from zero clipped to
// the box when x0 is nil.
func (m *IPM) Solve(x0 []float64) (Result, error) {
	if m.qp == nil {
		return Result{}, ErrNotSetUp
	}
	if err := m.UpdateBounds(); err != nil {
		return Result{}, err
	}
	qp := m.qp
	n, neq, mi := m.n, len(m.b), len(m.h)
	eps := m.set.eps()
	maxIter := m.set.maxIter(ipmDefaultMaxIter)
	log := m.set.logger()

	x, y, z, s := m.x, m.y, m.z, m.s
	for i := range x {
		v := 0.0
		if x0 != nil {
			v = x0[i]
		}
		x[i] = math.Min(math.Max(v, qp.XL[i]), qp.XU[i])
	}
	for i := range y {
		y[i] = 0
	}
	gx := make([]float64, mi)
	m.g.MulVec(gx, x)
	for r := range s {
		s[r] = math.Max(gx[r]-m.h[r], 1)
		z[r] = 1
	}

	px := make([]float64, n)
	ety := make([]float64, n)
	gtz := make([]float64, n)
	ex := make([]float64, neq)
	rd := make([]float64, n)
	re := make([]float64, neq)
	ri := make([]float64, mi)
	sigma := make([]float64, mi)
	rsz := make([]float64, mi)
	tmp := make([]float64, mi)
	gtv := make([]float64, n)
	rhs := make([]float64, n+neq)
	dx := make([]float64, n)
	dy := make([]float64, neq)
	ds := make([]float64, mi)
	dz := make([]float64, mi)
	dsAff := make([]float64, mi)
	dzAff := make([]float64, mi)

	// newton solves for (dx, dy, ds, dz) given the complementarity rhs.
	newton := func(rsz []float64) {
		for r := range tmp {
			tmp[r] = rsz[r]/s[r] + sigma[r]*ri[r]
		}
		m.g.MulVecTrans(gtv, tmp)
		for i := 0; i < n; i++ {
			rhs[i] = -rd[i] - gtv[i]
		}
		for r := 0; r < neq; r++ {
			rhs[n+r] = -re[r]
		}
		m.kkt.solve(rhs, ipmRefine)
		copy(dx, rhs[:n])
		for r := 0; r < neq; r++ {
			dy[r] = -rhs[n+r]
		}
		m.g.MulVec(ds, dx)
		for r := range ds {
			ds[r] += ri[r]
			dz[r] = -(rsz[r] + z[r]*ds[r]) / s[r]
		}
	}

	for iter := 0; iter < maxIter; iter++ {
		qp.P.MulVec(px, x)
		m.e.MulVecTrans(ety, y)
		m.g.MulVecTrans(gtz, z)
		m.e.MulVec(ex, x)
		m.g.MulVec(gx, x)
		for i := range rd {
			rd[i] = px[i] + qp.C[i] - ety[i] - gtz[i]
		}
		for r := range re {
			re[r] = ex[r] - m.b[r]
		}
		var mu float64
		for r := range ri {
			ri[r] = gx[r] - s[r] - m.h[r]
			mu += s[r] * z[r]
		}
		if mi > 0 {
			mu /= float64(mi)
		}

		dualTol := eps * (1 + maxOf(normInf(px), normInf(qp.C), normInf(ety), normInf(gtz)))
		eqTol := eps * (1 + maxOf(normInf(ex), normInf(m.b)))
		inTol := eps * (1 + maxOf(normInf(gx), normInf(m.h)))
		log.Debug("ipm iteration", "iter", iter, "rd", normInf(rd), "re", normInf(re), "ri", normInf(ri), "mu", mu)
		if normInf(rd) <= dualTol && normInf(re) <= eqTol && normInf(ri) <= inTol && mu <= eps {
			return Result{X: append([]float64(nil), x...), Iterations: iter, Status: StatusSolved}, nil
		}
		if !finite(x) || !finite(z) {
			return Result{Iterations: iter, Status: StatusNumerical}, fmt.Errorf("%w: non-finite iterate", ErrNumerical)
		}

		for r := range sigma {
			sigma[r] = z[r] / s[r]
		}
		m.updateKKT(sigma)
		if err := m.kkt.factor(); err != nil {
			return Result{Iterations: iter, Status: StatusNumerical}, err
		}

		if mi == 0 {
			newton(rsz)
			for i := range x {
				x[i] += dx[i]
			}
			for r := range y {
				y[r] += dy[r]
			}
			continue
		}

		// Predictor.
		for r := range rsz {
			rsz[r] = s[r] * z[r]
		}
		newton(rsz)
		alpha := math.Min(stepToBoundary(s, ds), stepToBoundary(z, dz))
		var muAff float64
		for r := range s {
			muAff += (s[r] + alpha*ds[r]) * (z[r] + alpha*dz[r])
		}
		muAff /= float64(mi)
		sig := math.Pow(muAff/mu, 3)
		copy(dsAff, ds)
		copy(dzAff, dz)

		// Corrector.
		for r := range rsz {
			rsz[r] = s[r]*z[r] + dsAff[r]*dzAff[r] - sig*mu
		}
		newton(rsz)
		alpha = math.Min(1, ipmStepFraction*math.Min(stepToBoundary(s, ds), stepToBoundary(z, dz)))

		for i := range x {
			x[i] += alpha * dx[i]
		}
		for r := range y {
			y[r] += alpha * dy[r]
		}
		for r := range s {
			s[r] += alpha * ds[r]
			z[r] += alpha * dz[r]
		}
	}
	return Result{X: append([]float64(nil), x...), Iterations: maxIter, Status: StatusMaxIter},
		fmt.Errorf("%w: ipm after %d iterations", ErrMaxIter, maxIter)
}
