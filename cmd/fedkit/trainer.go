package main

import (
	"context"
	"fmt"
	"math/rand/v2"

	"gonum.org/v1/gonum/mat"

	"github.com/randalmurphal/fedkit/client"
	"github.com/randalmurphal/fedkit/common"
)

// linearTrainer fits y = Xw + b by full-batch gradient descent on a local
// synthetic dataset. Weights are laid out as {w, {b}}.
type linearTrainer struct {
	x *mat.Dense
	y *mat.VecDense

	// Held-out split for evaluation.
	testX *mat.Dense
	testY *mat.VecDense
}

var _ client.WeightsClient = (*linearTrainer)(nil)

// newLinearTrainer draws samples points around the line defined by truth
// (len(truth)-1 coefficients followed by the bias), holding out a fifth for
// evaluation.
func newLinearTrainer(rng *rand.Rand, truth []float64, samples int, noise float64) *linearTrainer {
	dim := len(truth) - 1
	coef := mat.NewVecDense(dim, truth[:dim])
	bias := truth[dim]

	gen := func(n int) (*mat.Dense, *mat.VecDense) {
		x := mat.NewDense(n, dim, nil)
		for i := 0; i < n; i++ {
			for j := 0; j < dim; j++ {
				x.Set(i, j, rng.NormFloat64())
			}
		}
		y := mat.NewVecDense(n, nil)
		y.MulVec(x, coef)
		for i := 0; i < n; i++ {
			y.SetVec(i, y.AtVec(i)+bias+noise*rng.NormFloat64())
		}
		return x, y
	}

	test := max(samples/5, 1)
	t := &linearTrainer{}
	t.x, t.y = gen(samples)
	t.testX, t.testY = gen(test)
	return t
}

func (t *linearTrainer) dim() int {
	_, c := t.x.Dims()
	return c
}

// GetWeights returns a zero model.
func (t *linearTrainer) GetWeights(context.Context) (common.Weights, error) {
	return common.Weights{make([]float64, t.dim()), {0}}, nil
}

// FitWeights runs cfg["epochs"] steps (default 1) with learning rate
// cfg["lr"] (default 0.1).
func (t *linearTrainer) FitWeights(ctx context.Context, w common.Weights, cfg common.Config) (common.Weights, int64, common.Metrics, error) {
	coef, bias, err := t.unpack(w)
	if err != nil {
		return nil, 0, nil, err
	}

	epochs := cfg.GetInt("epochs", 1)
	lr := cfg.GetFloat("lr", 0.1)
	n, _ := t.x.Dims()
	scale := 2 / float64(n)

	resid := mat.NewVecDense(n, nil)
	grad := mat.NewVecDense(t.dim(), nil)
	for e := int64(0); e < epochs; e++ {
		if err := ctx.Err(); err != nil {
			return nil, 0, nil, err
		}
		t.residuals(resid, t.x, t.y, coef, bias)

		grad.MulVec(t.x.T(), resid)
		coef.AddScaledVec(coef, -lr*scale, grad)
		bias -= lr * scale * mat.Sum(resid)
	}

	t.residuals(resid, t.x, t.y, coef, bias)
	trainMSE := mat.Dot(resid, resid) / float64(n)

	out := common.Weights{append([]float64(nil), coef.RawVector().Data...), {bias}}
	return out, int64(n), common.Metrics{"train_mse": trainMSE}, nil
}

// EvaluateWeights reports the mean squared error on the held-out split.
func (t *linearTrainer) EvaluateWeights(_ context.Context, w common.Weights, _ common.Config) (float64, int64, common.Metrics, error) {
	coef, bias, err := t.unpack(w)
	if err != nil {
		return 0, 0, nil, err
	}

	n, _ := t.testX.Dims()
	resid := mat.NewVecDense(n, nil)
	t.residuals(resid, t.testX, t.testY, coef, bias)
	mse := mat.Dot(resid, resid) / float64(n)
	return mse, int64(n), common.Metrics{"mse": mse}, nil
}

// residuals sets dst to Xw + b - y.
func (t *linearTrainer) residuals(dst *mat.VecDense, x *mat.Dense, y, coef *mat.VecDense, bias float64) {
	dst.MulVec(x, coef)
	dst.SubVec(dst, y)
	for i := 0; i < dst.Len(); i++ {
		dst.SetVec(i, dst.AtVec(i)+bias)
	}
}

func (t *linearTrainer) unpack(w common.Weights) (*mat.VecDense, float64, error) {
	if len(w) != 2 || len(w[0]) != t.dim() || len(w[1]) != 1 {
		return nil, 0, fmt.Errorf("want weights shaped [%d][1], got %d layers", t.dim(), len(w))
	}
	coef := mat.NewVecDense(t.dim(), append([]float64(nil), w[0]...))
	return coef, w[1][0], nil
}
