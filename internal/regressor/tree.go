package regressor

// Node is one node of a regression tree, stored in a flat array. Leaves
// carry Feature == -1 and a Value; internal nodes route on
// x[Feature] <= Threshold.
type Node struct {
	Feature   int     `json:"feature"`
	Threshold float64 `json:"threshold,omitempty"`
	Left      int     `json:"left,omitempty"`
	Right     int     `json:"right,omitempty"`
	Value     float64 `json:"value,omitempty"`
}

// Tree is a single regression tree of the boosted ensemble. Predictions
// are in log space; the boosting loop owns the target transform.
type Tree struct {
	Nodes []Node `json:"nodes"`
}

func (t Tree) Predict(x []float64) float64 {
	i := 0
	for {
		n := t.Nodes[i]
		if n.Feature < 0 {
			return n.Value
		}
		if x[n.Feature] <= n.Threshold {
			i = n.Left
		} else {
			i = n.Right
		}
	}
}

// NumLeaves counts leaf nodes, mostly useful in tests and diagnostics.
func (t Tree) NumLeaves() int {
	leaves := 0
	for _, n := range t.Nodes {
		if n.Feature < 0 {
			leaves++
		}
	}
	return leaves
}
