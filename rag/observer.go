package rag

import "time"

// Observer 接收管线指标。实现需并发安全
type Observer interface {
	ObserveQuery(level ConfidenceLevel, cached bool, duration time.Duration)
	ObserveStage(stage string, duration time.Duration)
	ObserveCache(hit bool)
	// ObserveProviderCall err 为 nil 表示成功
	ObserveProviderCall(provider string, err error)
	// ObserveFallback kind 取 keyword / static / llm
	ObserveFallback(kind string)
}

// NopObserver 丢弃所有指标
type NopObserver struct{}

func (NopObserver) ObserveQuery(ConfidenceLevel, bool, time.Duration) {}
func (NopObserver) ObserveStage(string, time.Duration)                {}
func (NopObserver) ObserveCache(bool)                                 {}
func (NopObserver) ObserveProviderCall(string, error)                 {}
func (NopObserver) ObserveFallback(string)                            {}
