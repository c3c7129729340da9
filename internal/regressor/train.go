package regressor

import (
	"fmt"
	"log/slog"
	"math"
	"sort"
)

// Dataset couples a design matrix with its log1p-transformed targets.
type Dataset struct {
	X [][]float64
	Y []float64
}

func (d Dataset) validate(featureCount int) error {
	if len(d.X) != len(d.Y) {
		return fmt.Errorf("regressor: %d rows but %d targets", len(d.X), len(d.Y))
	}
	for i, x := range d.X {
		if len(x) != featureCount {
			return fmt.Errorf("%w: row %d has %d columns, want %d",
				ErrFeatureMismatch, i, len(x), featureCount)
		}
	}
	return nil
}

// Train fits one boosted model. featureNames fixes the column schema;
// monotone aligns with it positionally (+1 non-decreasing, -1
// non-increasing, 0 unconstrained). Training stops early when validation
// RMSE fails to improve for the patience window, keeping the checkpoint at
// the best round.
func Train(target string, featureNames []string, monotone []int, train, val Dataset, p Params) (*Regressor, error) {
	if len(featureNames) == 0 {
		return nil, fmt.Errorf("regressor: empty feature schema for target %q", target)
	}
	if len(monotone) != len(featureNames) {
		return nil, fmt.Errorf("regressor: %d monotone constraints for %d features",
			len(monotone), len(featureNames))
	}
	if err := train.validate(len(featureNames)); err != nil {
		return nil, err
	}
	if err := val.validate(len(featureNames)); err != nil {
		return nil, err
	}
	if len(train.X) < 2*p.MinLeafSize {
		return nil, fmt.Errorf("regressor: %d training rows is too few for min leaf size %d",
			len(train.X), p.MinLeafSize)
	}

	base := mean(train.Y)
	trainPred := fill(len(train.Y), base)
	valPred := fill(len(val.Y), base)

	r := &Regressor{
		target:       target,
		featureNames: append([]string(nil), featureNames...),
		monotone:     append([]int(nil), monotone...),
		baseScore:    base,
	}

	builder := newTreeBuilder(train.X, monotone, p)
	residual := make([]float64, len(train.Y))

	bestRMSE := math.Inf(1)
	bestRound := 0

	for round := 0; round < p.NumRounds; round++ {
		for i := range residual {
			residual[i] = train.Y[i] - trainPred[i]
		}

		tree, ok := builder.grow(residual)
		if !ok {
			// No split with positive gain remains; further rounds
			// would only add constant leaves.
			break
		}
		r.trees = append(r.trees, tree)

		for i, x := range train.X {
			trainPred[i] += tree.Predict(x)
		}
		for i, x := range val.X {
			valPred[i] += tree.Predict(x)
		}

		valRMSE := rmse(val.Y, valPred)
		if valRMSE < bestRMSE {
			bestRMSE = valRMSE
			bestRound = round + 1
		} else if p.EarlyStopping > 0 && round+1-bestRound >= p.EarlyStopping {
			slog.Info("[Regressor] Early stopping",
				slog.String("target", target),
				slog.Int("round", round+1),
				slog.Int("best_round", bestRound),
				slog.Float64("best_val_rmse", bestRMSE))
			break
		}

		if (round+1)%50 == 0 {
			slog.Info("[Regressor] Training progress",
				slog.String("target", target),
				slog.Int("round", round+1),
				slog.Float64("val_rmse", valRMSE))
		}
	}

	if len(r.trees) == 0 {
		return nil, fmt.Errorf("regressor: no trees fit for target %q", target)
	}
	if bestRound == 0 {
		bestRound = len(r.trees)
	}
	r.bestRound = bestRound

	slog.Info("[Regressor] Training complete",
		slog.String("target", target),
		slog.Int("trees", len(r.trees)),
		slog.Int("best_round", r.bestRound),
		slog.Float64("best_val_rmse", bestRMSE))
	return r, nil
}

// treeBuilder grows one tree per boosting round over a fixed design
// matrix, reusing the per-feature sort order across rounds.
type treeBuilder struct {
	X        [][]float64
	monotone []int
	p        Params
}

func newTreeBuilder(X [][]float64, monotone []int, p Params) *treeBuilder {
	return &treeBuilder{X: X, monotone: monotone, p: p}
}

// candidate is a grown-but-unsplit leaf plus the best split found for it.
type candidate struct {
	nodeID int
	rows   []int
	lo, hi float64
	split  *splitPoint
}

type splitPoint struct {
	gain      float64
	feature   int
	threshold float64
	left      []int
	right     []int
	leftVal   float64
	rightVal  float64
	// bounds children inherit for monotone correctness
	leftLo, leftHi   float64
	rightLo, rightHi float64
}

// grow fits one tree to the residuals, leaf-wise: the leaf whose best
// split has the highest gain is split first, until the leaf budget is
// exhausted or no split improves the loss. Returns false when even the
// root cannot be split.
func (b *treeBuilder) grow(residual []float64) (Tree, bool) {
	rows := make([]int, len(residual))
	for i := range rows {
		rows[i] = i
	}

	root := candidate{
		nodeID: 0,
		rows:   rows,
		lo:     math.Inf(-1),
		hi:     math.Inf(1),
	}
	root.split = b.bestSplit(residual, root.rows, root.lo, root.hi)
	if root.split == nil {
		return Tree{}, false
	}

	tree := Tree{Nodes: []Node{{Feature: -1, Value: clamp(meanAt(residual, rows), root.lo, root.hi)}}}
	open := []candidate{root}
	leaves := 1

	for leaves < b.p.NumLeaves {
		best := -1
		for i, c := range open {
			if c.split == nil {
				continue
			}
			if best < 0 || c.split.gain > open[best].split.gain {
				best = i
			}
		}
		if best < 0 {
			break
		}

		c := open[best]
		open = append(open[:best], open[best+1:]...)
		s := c.split

		left := candidate{nodeID: len(tree.Nodes), rows: s.left, lo: s.leftLo, hi: s.leftHi}
		right := candidate{nodeID: len(tree.Nodes) + 1, rows: s.right, lo: s.rightLo, hi: s.rightHi}

		tree.Nodes[c.nodeID] = Node{
			Feature:   s.feature,
			Threshold: s.threshold,
			Left:      left.nodeID,
			Right:     right.nodeID,
		}
		tree.Nodes = append(tree.Nodes,
			Node{Feature: -1, Value: s.leftVal},
			Node{Feature: -1, Value: s.rightVal},
		)
		leaves++

		left.split = b.bestSplit(residual, left.rows, left.lo, left.hi)
		right.split = b.bestSplit(residual, right.rows, right.lo, right.hi)
		open = append(open, left, right)
	}

	// Shrinkage applies uniformly to every leaf, which preserves the
	// monotone ordering established by the bounds.
	for i := range tree.Nodes {
		if tree.Nodes[i].Feature < 0 {
			tree.Nodes[i].Value *= b.p.LearningRate
		}
	}
	return tree, true
}

// bestSplit scans every feature for the split with the highest squared
// error reduction, honoring the minimum leaf size, the per-feature
// monotone direction, and the [lo, hi] output bounds inherited from
// constrained ancestors.
func (b *treeBuilder) bestSplit(residual []float64, rows []int, lo, hi float64) *splitPoint {
	n := len(rows)
	if n < 2*b.p.MinLeafSize {
		return nil
	}

	total := 0.0
	for _, i := range rows {
		total += residual[i]
	}

	var best *splitPoint

	order := make([]int, n)
	for f := range b.monotone {
		copy(order, rows)
		sort.Slice(order, func(a, c int) bool {
			va, vc := b.X[order[a]][f], b.X[order[c]][f]
			if va != vc {
				return va < vc
			}
			return order[a] < order[c]
		})

		sumLeft := 0.0
		for pos := 0; pos < n-1; pos++ {
			sumLeft += residual[order[pos]]
			nl := pos + 1
			nr := n - nl
			if nl < b.p.MinLeafSize {
				continue
			}
			if nr < b.p.MinLeafSize {
				break
			}
			vHere, vNext := b.X[order[pos]][f], b.X[order[pos+1]][f]
			if vHere == vNext {
				continue
			}

			meanL := sumLeft / float64(nl)
			meanR := (total - sumLeft) / float64(nr)

			switch b.monotone[f] {
			case 1:
				if meanL > meanR {
					continue
				}
			case -1:
				if meanL < meanR {
					continue
				}
			}

			outL := clamp(meanL, lo, hi)
			outR := clamp(meanR, lo, hi)
			outT := clamp(total/float64(n), lo, hi)
			sumR := total - sumLeft

			// Squared-error reduction of replacing the parent output
			// with the two (possibly clamped) child outputs. With no
			// clamping this reduces to the usual
			// sumL^2/nl + sumR^2/nr - sumT^2/n variance gain.
			gain := sseDelta(sumLeft, float64(nl), outL) +
				sseDelta(sumR, float64(nr), outR) -
				sseDelta(total, float64(n), outT)
			if gain <= 1e-12 {
				continue
			}
			if best != nil && gain <= best.gain {
				continue
			}

			s := &splitPoint{
				gain:      gain,
				feature:   f,
				threshold: (vHere + vNext) / 2,
				leftVal:   outL,
				rightVal:  outR,
				leftLo:    lo,
				leftHi:    hi,
				rightLo:   lo,
				rightHi:   hi,
			}
			if b.monotone[f] != 0 {
				mid := (outL + outR) / 2
				if b.monotone[f] > 0 {
					s.leftHi = math.Min(hi, mid)
					s.rightLo = math.Max(lo, mid)
				} else {
					s.leftLo = math.Max(lo, mid)
					s.rightHi = math.Min(hi, mid)
				}
			}
			s.left = make([]int, nl)
			copy(s.left, order[:nl])
			s.right = make([]int, nr)
			copy(s.right, order[nl:])
			best = s
		}
	}
	return best
}

// sseDelta is the squared-error improvement of predicting out over
// predicting zero for a set with the given residual sum and size.
func sseDelta(sum, n, out float64) float64 {
	return 2*out*sum - n*out*out
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func meanAt(values []float64, idx []int) float64 {
	if len(idx) == 0 {
		return 0
	}
	sum := 0.0
	for _, i := range idx {
		sum += values[i]
	}
	return sum / float64(len(idx))
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

func fill(n int, v float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = v
	}
	return out
}

func rmse(yTrue, yPred []float64) float64 {
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
