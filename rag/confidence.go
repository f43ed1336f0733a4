package rag

import "fmt"

// ConfidenceLevel 回答置信度档位
type ConfidenceLevel string

const (
	ConfidenceHigh   ConfidenceLevel = "high"
	ConfidenceMedium ConfidenceLevel = "medium"
	ConfidenceLow    ConfidenceLevel = "low"
	ConfidenceCached ConfidenceLevel = "cached"
)

// Confidence 置信度及其原因
type Confidence struct {
	Level  ConfidenceLevel `json:"level"`
	Score  float64         `json:"score"`
	Reason string          `json:"reason,omitempty"`
}

// Thresholds 相似度分档阈值
type Thresholds struct {
	High float64 `json:"high"`
	Low  float64 `json:"low"`
}

// DefaultThresholds 返回默认阈值 0.85 / 0.75
func DefaultThresholds() Thresholds {
	return Thresholds{High: 0.85, Low: 0.75}
}

// tierOf 优先使用存储层给出的分档，否则按分数计算
func tierOf(r Retrieved, th Thresholds) ConfidenceLevel {
	if r.Tier != "" {
		return r.Tier
	}
	switch {
	case r.Score >= th.High:
		return ConfidenceHigh
	case r.Score >= th.Low:
		return ConfidenceMedium
	default:
		return ConfidenceLow
	}
}

// Classify 根据检索上下文给出回答置信度。
//
//	无上下文          -> low    0.3
//	存在 high 档      -> high   0.9
//	存在 medium 档    -> medium 0.7
//	只有 low 档       -> low    0.5
//
// 档位按原始分数划分只适用于向量检索结果；关键词兜底结果固定为 medium 档。
func Classify(contexts []Retrieved, th Thresholds) Confidence {
	if len(contexts) == 0 {
		return Confidence{Level: ConfidenceLow, Score: 0.3, Reason: "No relevant context found"}
	}

	var high, medium int
	for _, c := range contexts {
		switch tierOf(c, th) {
		case ConfidenceHigh:
			high++
		case ConfidenceMedium:
			medium++
		}
	}

	switch {
	case high > 0:
		return Confidence{Level: ConfidenceHigh, Score: 0.9,
			Reason: fmt.Sprintf("Found %d high-confidence matches", high)}
	case medium > 0:
		return Confidence{Level: ConfidenceMedium, Score: 0.7,
			Reason: fmt.Sprintf("Found %d medium-confidence matches", medium)}
	default:
		return Confidence{Level: ConfidenceLow, Score: 0.5, Reason: "Only low-confidence matches found"}
	}
}
