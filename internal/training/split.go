package training

import (
	"fmt"
	"sort"
)

// groupFolds assigns whole author groups to folds, largest group first
// into the currently smallest fold, so no author's tweets straddle the
// train/validation boundary. Returns the fold index per row.
func groupFolds(authors []string, folds int) []int {
	counts := make(map[string]int)
	for _, a := range authors {
		counts[a]++
	}

	names := make([]string, 0, len(counts))
	for a := range counts {
		names = append(names, a)
	}
	sort.Slice(names, func(i, j int) bool {
		if counts[names[i]] != counts[names[j]] {
			return counts[names[i]] > counts[names[j]]
		}
		return names[i] < names[j]
	})

	foldSizes := make([]int, folds)
	foldOf := make(map[string]int, len(names))
	for _, a := range names {
		smallest := 0
		for f := 1; f < folds; f++ {
			if foldSizes[f] < foldSizes[smallest] {
				smallest = f
			}
		}
		foldOf[a] = smallest
		foldSizes[smallest] += counts[a]
	}

	out := make([]int, len(authors))
	for i, a := range authors {
		out[i] = foldOf[a]
	}
	return out
}

// splitByAuthor produces train and validation row indices from a single
// fold of a grouped k-fold split: fold 0 validates, the rest train. Only
// one fold is used, matching how the production models are fit.
func splitByAuthor(authors []string, folds int) (train, val []int, err error) {
	if folds < 2 {
		return nil, nil, fmt.Errorf("training: need at least 2 folds, got %d", folds)
	}
	assignment := groupFolds(authors, folds)
	for i, f := range assignment {
		if f == 0 {
			val = append(val, i)
		} else {
			train = append(train, i)
		}
	}
	if len(train) == 0 || len(val) == 0 {
		return nil, nil, fmt.Errorf("training: grouped split produced an empty side (%d train, %d validation rows)",
			len(train), len(val))
	}
	return train, val, nil
}
