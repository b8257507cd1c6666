// Package lsq implements the estimation backend: least-squares with
// high-dimensional fixed-effect absorption, cluster-robust standard
// errors and two-stage least squares for instrumented specifications.
//
// It consumes validated regression.Spec values and never mutates the
// estimation table. Estimation failures (collinearity, too few
// observations) are returned as ESTIMATION errors tagged with the spec
// name; the batch runner keeps going.
package lsq

import (
	"context"
	"fmt"
	"log/slog"
	"math"

	"gonum.org/v1/gonum/mat"

	"hfpanel/internal/dataset"
	apperrors "hfpanel/internal/errors"
	"hfpanel/internal/regression"
)

const (
	// demeanTol bounds the largest cell change of an absorption sweep.
	demeanTol = 1e-8
	// demeanMaxIter caps alternating-projection sweeps.
	demeanMaxIter = 200
	// rankTol is the pivot threshold below which the design is treated
	// as collinear.
	rankTol = 1e-10
	// firstStageRSSTol is the residual sum of squares, relative to the
	// endogenous variable's scale, below which the first stage counts as
	// exact and the partial F is undefined. A plain zero check misses
	// exact fits whose residuals are rounding noise.
	firstStageRSSTol = 1e-12
)

// Estimator is the least-squares backend.
type Estimator struct {
	logger *slog.Logger
}

// New creates the backend.
func New(logger *slog.Logger) *Estimator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Estimator{logger: logger}
}

// Estimate runs one specification. The sample is the subset of rows with
// no missing value in any referenced field (and matching the spec's
// subset restriction); fixed effects are absorbed by iterated group
// demeaning before the least-squares solve.
func (e *Estimator) Estimate(ctx context.Context, spec regression.Spec, t *dataset.Table) (*regression.Result, error) {
	s, err := e.assemble(spec, t)
	if err != nil {
		return nil, err
	}

	k := len(s.regressors)
	if s.n <= k+s.absorbedDF {
		return nil, apperrors.NewEstimationError(spec.Name,
			fmt.Sprintf("insufficient observations: %d rows for %d parameters", s.n, k+s.absorbedDF), nil)
	}

	// Absorb fixed effects from every variable that enters either stage.
	all := [][]float64{s.y}
	all = append(all, s.x...)
	all = append(all, s.z...)
	demeanAll(all, s.groupings)

	design := s.x
	var firstStageF = dataset.Missing()

	if spec.IsIV() {
		design, firstStageF, err = e.firstStage(spec, s)
		if err != nil {
			return nil, err
		}
	}

	beta, err := solveOLS(design, s.y, spec.Name)
	if err != nil {
		return nil, err
	}

	// Residuals use the actual (not fitted) regressors so IV standard
	// errors are consistent.
	resid := residuals(s.x, s.y, beta)

	se, err := clusterRobustSE(design, resid, s.clusterIDs, s.nClusters, k+s.absorbedDF, spec.Name)
	if err != nil {
		return nil, err
	}

	coeffs := make([]regression.Coefficient, k)
	for j, term := range s.regressors {
		coeffs[j] = regression.Coefficient{Term: term, Estimate: beta[j], StdErr: se[j]}
	}

	e.logger.DebugContext(ctx, "specification estimated",
		slog.String("spec", spec.Name),
		slog.Int("n_obs", s.n),
		slog.Int("clusters", s.nClusters),
	)

	return &regression.Result{
		SpecName:       spec.Name,
		Coefficients:   coeffs,
		N:              s.n,
		Clusters:       s.nClusters,
		AbsorbedLevels: s.absorbedLevels,
		FirstStageF:    firstStageF,
	}, nil
}

// firstStage regresses each endogenous variable on the exogenous
// regressors plus the excluded instruments, replaces the endogenous
// columns with their fitted values, and computes the partial F-statistic
// of the excluded instruments for the first endogenous regressor.
func (e *Estimator) firstStage(spec regression.Spec, s *sample) ([][]float64, float64, error) {
	nEndog := len(spec.Endogenous)
	exog := s.x[nEndog:]

	fsDesign := make([][]float64, 0, len(exog)+len(s.z))
	fsDesign = append(fsDesign, exog...)
	fsDesign = append(fsDesign, s.z...)

	design := make([][]float64, len(s.x))
	copy(design[nEndog:], exog)

	firstStageF := dataset.Missing()

	for j := 0; j < nEndog; j++ {
		endog := s.x[j]

		gamma, err := solveOLS(fsDesign, endog, spec.Name)
		if err != nil {
			return nil, 0, apperrors.NewEstimationError(spec.Name, "first stage failed", err)
		}
		fitted := fittedValues(fsDesign, gamma)
		design[j] = fitted

		if j == 0 {
			rssU := sumSquares(residuals(fsDesign, endog, gamma))
			rssR := restrictedRSS(exog, endog, spec.Name)
			q := len(s.z)
			df := s.n - len(fsDesign) - s.absorbedDF
			if df > 0 && q > 0 && rssU > firstStageRSSTol*sumSquares(endog) {
				firstStageF = ((rssR - rssU) / float64(q)) / (rssU / float64(df))
			}
		}
	}

	return design, firstStageF, nil
}

// restrictedRSS is the residual sum of squares of the first-stage
// regression without the excluded instruments.
func restrictedRSS(exog [][]float64, endog []float64, specName string) float64 {
	if len(exog) == 0 {
		return sumSquares(endog)
	}
	gamma, err := solveOLS(exog, endog, specName)
	if err != nil {
		// A collinear restricted model leaves the F undefined; the
		// unrestricted stage already succeeded.
		return math.NaN()
	}
	return sumSquares(residuals(exog, endog, gamma))
}

// solveOLS solves min ||y - Xb|| by QR, reporting collinearity when a
// pivot collapses.
func solveOLS(cols [][]float64, y []float64, specName string) ([]float64, error) {
	n := len(y)
	k := len(cols)

	x := mat.NewDense(n, k, nil)
	for j, c := range cols {
		x.SetCol(j, c)
	}

	var qr mat.QR
	qr.Factorize(x)

	var r mat.Dense
	qr.RTo(&r)
	for j := 0; j < k; j++ {
		if math.Abs(r.At(j, j)) < rankTol {
			return nil, apperrors.NewEstimationError(specName, "perfect collinearity in design matrix", nil).
				WithContext("column", j)
		}
	}

	b := mat.NewDense(n, 1, append([]float64(nil), y...))
	var sol mat.Dense
	if err := qr.SolveTo(&sol, false, b); err != nil {
		return nil, apperrors.NewEstimationError(specName, "least-squares solve failed", err)
	}

	beta := make([]float64, k)
	for j := 0; j < k; j++ {
		beta[j] = sol.At(j, 0)
	}
	return beta, nil
}

// fittedValues computes X*beta.
func fittedValues(cols [][]float64, beta []float64) []float64 {
	n := len(cols[0])
	out := make([]float64, n)
	for j, c := range cols {
		for i := range out {
			out[i] += beta[j] * c[i]
		}
	}
	return out
}

// residuals computes y - X*beta.
func residuals(cols [][]float64, y, beta []float64) []float64 {
	fitted := fittedValues(cols, beta)
	out := make([]float64, len(y))
	for i := range y {
		out[i] = y[i] - fitted[i]
	}
	return out
}

// sumSquares returns the squared euclidean norm.
func sumSquares(v []float64) float64 {
	s := 0.0
	for _, x := range v {
		s += x * x
	}
	return s
}

// clusterRobustSE computes CR1 sandwich standard errors clustered on the
// given ids.
func clusterRobustSE(cols [][]float64, resid []float64, clusterIDs []int, nClusters, dfModel int, specName string) ([]float64, error) {
	// Validation counts levels on the full table; subset restriction and
	// listwise deletion can still collapse the sample to one cluster.
	if nClusters < 2 {
		return nil, apperrors.NewEstimationError(specName,
			"cluster-robust standard errors need at least two clusters in the estimation sample", nil).
			WithContext("clusters", nClusters)
	}

	n := len(resid)
	k := len(cols)

	x := mat.NewDense(n, k, nil)
	for j, c := range cols {
		x.SetCol(j, c)
	}

	var xtx mat.SymDense
	xtx.SymOuterK(1, x.T())

	var chol mat.Cholesky
	if ok := chol.Factorize(&xtx); !ok {
		return nil, apperrors.NewEstimationError(specName, "singular X'X in variance estimation", nil)
	}
	var bread mat.SymDense
	if err := chol.InverseTo(&bread); err != nil {
		return nil, apperrors.NewEstimationError(specName, "invert X'X", err)
	}

	// Meat: sum over clusters of the outer product of the cluster score.
	scores := make([][]float64, nClusters)
	for g := range scores {
		scores[g] = make([]float64, k)
	}
	for i := 0; i < n; i++ {
		g := clusterIDs[i]
		for j := 0; j < k; j++ {
			scores[g][j] += cols[j][i] * resid[i]
		}
	}

	meat := mat.NewSymDense(k, nil)
	for _, s := range scores {
		for a := 0; a < k; a++ {
			for b := a; b < k; b++ {
				meat.SetSym(a, b, meat.At(a, b)+s[a]*s[b])
			}
		}
	}

	// CR1 small-sample adjustment.
	g := float64(nClusters)
	adj := (g / (g - 1)) * (float64(n-1) / float64(n-dfModel))

	var tmp, vcov mat.Dense
	tmp.Mul(&bread, meat)
	vcov.Mul(&tmp, &bread)

	se := make([]float64, k)
	for j := 0; j < k; j++ {
		v := adj * vcov.At(j, j)
		if v < 0 {
			v = 0
		}
		se[j] = math.Sqrt(v)
	}
	return se, nil
}
