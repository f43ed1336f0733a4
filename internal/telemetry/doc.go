// Package telemetry 负责 OpenTelemetry SDK 的初始化与关闭。
// 开启后通过 OTLP gRPC 导出 trace 与指标，rag.Orchestrator 的 span 由此落地；
// 关闭时保留 noop 全局 Provider，不连接任何外部服务。
package telemetry
