package backend

import (
	"fmt"
	"math"

	"github.com/san-kum/chainbench/internal/linalg"
	"github.com/san-kum/chainbench/internal/problem"
)

const (
	admmDefaultMaxIter = 4000
	admmSigma          = 1e-6
	admmAlpha          = 1.6
	admmRho0           = 0.1
	admmRhoEqScale     = 1e3
	admmRhoMin         = 1e-6
	admmRhoMax         = 1e6
	admmCheckEvery     = 10
	admmAdaptFactor    = 5
	admmRefine         = 1
)

// ADMM solves the QP as l <= Ax <= u with A = [Aeq; Aineq; I] by the
// operator splitting iteration of OSQP. The KKT matrix
//
//	[ P + σI   Aᵀ     ]
//	[ A       -diag(ρ)⁻¹ ]
//
// is factorized at setup and again only when ρ is adapted. Equality rows
// use a ρ scaled by 1e3.
type ADMM struct {
	set Settings
	qp  *problem.QP
	n   int
	m   int

	a      *linalg.CSC
	l, u   []float64
	eq     []bool
	rho    float64
	rhoVec []float64
	kkt    *kkt
	rhoOff int

	x, z, y []float64
}

func NewADMM(set Settings) *ADMM { return &ADMM{set: set, rho: admmRho0} }

func (s *ADMM) Setup(qp *problem.QP) error {
	if err := qp.Validate(); err != nil {
		return err
	}
	s.qp = qp
	s.n = qp.Dim()
	n := s.n
	meq, mi := qp.NumEq(), qp.NumIneq()
	s.m = meq + mi + n

	at := linalg.NewTriplet(s.m, n, n)
	appendRows := func(off int, a *linalg.CSC) {
		if a == nil {
			return
		}
		for j := 0; j < a.Cols; j++ {
			for k := a.ColPtr[j]; k < a.ColPtr[j+1]; k++ {
				at.Add(off+a.RowIdx[k], j, a.Val[k])
			}
		}
	}
	appendRows(0, qp.Aeq)
	appendRows(meq, qp.Aineq)
	at.AddIdentity(meq+mi, 0, n, 1)
	s.a = at.ToCSC()
	s.l = make([]float64, s.m)
	s.u = make([]float64, s.m)
	s.rhoVec = make([]float64, s.m)
	s.refreshBounds()
	s.eq = make([]bool, s.m)
	for i := range s.eq {
		s.eq[i] = s.l[i] == s.u[i]
	}

	p := qp.P
	tri := linalg.NewTriplet(n+s.m, n+s.m, p.NNZ()+n+s.a.NNZ()+s.m)
	for j := 0; j < n; j++ {
		for k := p.ColPtr[j]; k < p.ColPtr[j+1]; k++ {
			if i := p.RowIdx[k]; i < j {
				tri.Add(i, j, p.Val[k])
			}
		}
		tri.Add(j, j, p.At(j, j)+admmSigma)
	}
	for j := 0; j < n; j++ {
		for k := s.a.ColPtr[j]; k < s.a.ColPtr[j+1]; k++ {
			tri.Add(j, n+s.a.RowIdx[k], s.a.Val[k])
		}
	}
	s.rhoOff = tri.Len()
	for i := 0; i < s.m; i++ {
		tri.Add(n+i, n+i, -1/s.rhoVec[i])
	}
	k, err := newKKT(tri)
	if err != nil {
		return err
	}
	s.kkt = k
	if err := s.kkt.factor(); err != nil {
		return err
	}

	s.x = make([]float64, n)
	s.z = make([]float64, s.m)
	s.y = make([]float64, s.m)
	return nil
}

// refreshBounds rebuilds l, u and the per-row ρ from the QP.
func (s *ADMM) refreshBounds() {
	qp := s.qp
	meq, mi := qp.NumEq(), qp.NumIneq()
	copy(s.l[:meq], qp.Beq)
	copy(s.u[:meq], qp.Beq)
	copy(s.l[meq:meq+mi], qp.BineqL)
	copy(s.u[meq:meq+mi], qp.BineqU)
	copy(s.l[meq+mi:], qp.XL)
	copy(s.u[meq+mi:], qp.XU)
	for i := range s.rhoVec {
		s.rhoVec[i] = s.rho
		if s.l[i] == s.u[i] {
			s.rhoVec[i] = admmRhoEqScale * s.rho
		}
	}
}

func (s *ADMM) setRho(rho float64) error {
	s.rho = math.Min(math.Max(rho, admmRhoMin), admmRhoMax)
	s.refreshBounds()
	for i := 0; i < s.m; i++ {
		s.kkt.vals[s.rhoOff+i] = -1 / s.rhoVec[i]
	}
	return s.kkt.factor()
}

// Solve iterates from the given primal guess, or from zero when guess is
// nil. The equality/inequality pattern of l == u must match setup.
func (s *ADMM) Solve(guess []float64) (Result, error) {
	if s.qp == nil {
		return Result{}, ErrNotSetUp
	}
	n, m := s.n, s.m
	s.refreshBounds()
	for i, eq := range s.eq {
		if (s.l[i] == s.u[i]) != eq {
			return Result{}, fmt.Errorf("%w: constraint row %d", ErrPatternChanged, i)
		}
	}

	eps := s.set.eps()
	maxIter := s.set.maxIter(admmDefaultMaxIter)
	log := s.set.logger()
	q := s.qp.C

	for i := range s.x {
		s.x[i] = 0
		if guess != nil {
			s.x[i] = guess[i]
		}
	}
	ax := make([]float64, m)
	s.a.MulVec(ax, s.x)
	for i := range s.z {
		s.z[i] = math.Min(math.Max(ax[i], s.l[i]), s.u[i])
		s.y[i] = 0
	}

	rhs := make([]float64, n+m)
	xt := make([]float64, n)
	zt := make([]float64, m)
	px := make([]float64, n)
	aty := make([]float64, n)

	for iter := 1; iter <= maxIter; iter++ {
		for i := 0; i < n; i++ {
			rhs[i] = admmSigma*s.x[i] - q[i]
		}
		for i := 0; i < m; i++ {
			rhs[n+i] = s.z[i] - s.y[i]/s.rhoVec[i]
		}
		s.kkt.solve(rhs, admmRefine)
		copy(xt, rhs[:n])
		for i := 0; i < m; i++ {
			zt[i] = s.z[i] + (rhs[n+i]-s.y[i])/s.rhoVec[i]
		}
		for i := 0; i < n; i++ {
			s.x[i] = admmAlpha*xt[i] + (1-admmAlpha)*s.x[i]
		}
		for i := 0; i < m; i++ {
			relaxed := admmAlpha*zt[i] + (1-admmAlpha)*s.z[i]
			znew := math.Min(math.Max(relaxed+s.y[i]/s.rhoVec[i], s.l[i]), s.u[i])
			s.y[i] += s.rhoVec[i] * (relaxed - znew)
			s.z[i] = znew
		}

		if iter%admmCheckEvery != 0 {
			continue
		}
		s.a.MulVec(ax, s.x)
		s.qp.P.MulVec(px, s.x)
		s.a.MulVecTrans(aty, s.y)
		var rp, rd float64
		for i := 0; i < m; i++ {
			rp = math.Max(rp, math.Abs(ax[i]-s.z[i]))
		}
		for i := 0; i < n; i++ {
			rd = math.Max(rd, math.Abs(px[i]+q[i]+aty[i]))
		}
		primScale := math.Max(normInf(ax), normInf(s.z))
		dualScale := maxOf(normInf(px), normInf(aty), normInf(q))
		log.Debug("admm iteration", "iter", iter, "rp", rp, "rd", rd, "rho", s.rho)
		if rp <= eps+eps*primScale && rd <= eps+eps*dualScale {
			return Result{X: append([]float64(nil), s.x...), Iterations: iter, Status: StatusSolved}, nil
		}
		if !finite(s.x) {
			return Result{Iterations: iter, Status: StatusNumerical}, fmt.Errorf("%w: non-finite iterate", ErrNumerical)
		}

		num := rp / math.Max(primScale, 1e-30)
		den := rd / math.Max(dualScale, 1e-30)
		if den > 0 {
			next := s.rho * math.Sqrt(num/den)
			if next > admmAdaptFactor*s.rho || next < s.rho/admmAdaptFactor {
				if err := s.setRho(next); err != nil {
					return Result{Iterations: iter, Status: StatusNumerical}, err
				}
			}
		}
	}
	return Result{X: append([]float64(nil), s.x...), Iterations: maxIter, Status: StatusMaxIter},
		fmt.Errorf("%w: admm after %d iterations", ErrMaxIter, maxIter)
}
