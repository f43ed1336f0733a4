package rag

import (
	"fmt"
	"math"
	"sort"

	"github.com/hashicorp/go-multierror"

	"github.com/BaSui01/supportrag/types"
)

// Cosine 计算两个等长向量的余弦相似度，结果位于 [-1, 1]。
// 长度不一致返回 DIMENSION_MISMATCH，任一向量范数为 0 返回 ZERO_VECTOR，
// 含 NaN/Inf 分量返回 INVALID_VECTOR。
func Cosine(a, b []float64) (float64, error) {
	if len(a) != len(b) {
		return 0, types.NewError(types.ErrDimensionMismatch,
			fmt.Sprintf("vector dimensions differ: %d vs %d", len(a), len(b)))
	}
	scaleA, err := maxAbs(a)
	if err != nil {
		return 0, err
	}
	scaleB, err := maxAbs(b)
	if err != nil {
		return 0, err
	}
	if scaleA == 0 || scaleB == 0 {
		return 0, types.NewError(types.ErrZeroVector, "cosine similarity undefined for zero vector")
	}

	// 先按最大分量缩放，避免平方和溢出
	var dot, normA, normB float64
	for i := range a {
		x, y := a[i]/scaleA, b[i]/scaleB
		dot += x * y
		normA += x * x
		normB += y * y
	}
	score := dot / (math.Sqrt(normA) * math.Sqrt(normB))
	if math.IsNaN(score) || math.IsInf(score, 0) {
		return 0, types.NewError(types.ErrInvalidVector, "cosine similarity is not finite")
	}
	// 浮点误差可能让结果略微越界
	return math.Max(-1, math.Min(1, score)), nil
}

func maxAbs(v []float64) (float64, error) {
	var m float64
	for i, x := range v {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return 0, types.NewError(types.ErrInvalidVector,
				fmt.Sprintf("non-finite component at index %d", i))
		}
		m = math.Max(m, math.Abs(x))
	}
	return m, nil
}

type Scored[T any] struct {
	Item  T
	Score float64
}

// TopK 对所有候选项打分，过滤掉低于 threshold 的项，按分数降序稳定排序后截取前 k 个。
// k <= 0 表示不截断。无法打分的候选项被跳过，错误汇总后返回，已打分的结果仍然有效。
func TopK[T any](query []float64, candidates []T, vector func(T) []float64, k int, threshold float64) ([]Scored[T], error) {
	var errs *multierror.Error
	results := make([]Scored[T], 0, len(candidates))

	for i, c := range candidates {
		score, err := Cosine(query, vector(c))
		if err != nil {
			errs = multierror.Append(errs, fmt.Errorf("candidate %d: %w", i, err))
			continue
		}
		if !(score >= threshold) {
			continue
		}
		results = append(results, Scored[T]{Item: c, Score: score})
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})

	if k > 0 && len(results) > k {
		results = results[:k]
	}

	return results, errs.ErrorOrNil()
}
