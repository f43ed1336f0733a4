// Package auth 校验账户服务签发的 JWT，并在请求上下文中传递调用方身份。
//
// 支持 HS256（共享密钥）与 RS256（PEM 公钥），默认要求签发方 toxicity-api、
// 受众 toxicity-client 且必须带过期时间。校验失败统一返回 INVALID_CREDENTIAL。
package auth
