package training

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// Evaluation summarizes a trained model against held-out data, alongside
// a baseline that always predicts the training-set mean.
type Evaluation struct {
	RMSE         float64 `json:"rmse"`
	MAE          float64 `json:"mae"`
	R2           float64 `json:"r2"`
	BaselineRMSE float64 `json:"baseline_rmse"`
	BaselineMAE  float64 `json:"baseline_mae"`
	BaselineR2   float64 `json:"baseline_r2"`
}

// Evaluate scores predictions in log space, the same space the models are
// fit in.
func Evaluate(yTrue, yPred []float64, trainMean float64) Evaluation {
	baseline := make([]float64, len(yTrue))
	for i := range baseline {
		baseline[i] = trainMean
	}
	return Evaluation{
		RMSE:         rootMeanSquaredError(yTrue, yPred),
		MAE:          meanAbsoluteError(yTrue, yPred),
		R2:           stat.RSquaredFrom(yPred, yTrue, nil),
		BaselineRMSE: rootMeanSquaredError(yTrue, baseline),
		BaselineMAE:  meanAbsoluteError(yTrue, baseline),
		BaselineR2:   stat.RSquaredFrom(baseline, yTrue, nil),
	}
}

func rootMeanSquaredError(yTrue, yPred []float64) float64 {
	if len(yTrue) == 0 {
		return 0
	}
	sum := 0.0
	for i := range yTrue {
		d := yTrue[i] - yPred[i]
		sum += d * d
	}
	return math.Sqrt(sum / float64(len(yTrue)))
}

func meanAbsoluteError(yTrue, yPred []float64) float64 {
	if len(yTrue) == 0 {
		return 0
	}
	sum := 0.0
	for i := range yTrue {
		sum += math.Abs(yTrue[i] - yPred[i])
	}
	return sum / float64(len(yTrue))
}
