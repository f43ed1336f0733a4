/*
包 gemini 通过 REST 接口对接 Google Gemini 文本生成（models/{model}:generateContent）。

  - New(cfg, logger)：未配置 APIKey 时返回 llm.UnavailableGenerator
  - Provider：使用 x-goog-api-key 请求头认证，单轮纯文本进出

空白回复视为 EMPTY_RESPONSE 错误；HTTP 错误经 providers.MapHTTPError 映射。
*/
package gemini
