// Package providers 存放各模型提供者共享的 HTTP 错误处理。
//
// 具体提供者位于子包中，例如 providers/gemini。
package providers
