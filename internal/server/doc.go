/*
Package server 管理 supportrag 的 HTTP 服务器生命周期。

Manager 封装单个 net/http.Server 的非阻塞启动与带超时的优雅关闭；
Run 同时运行 API 与指标两个实例，在 ctx 取消（通常来自 SIGINT/SIGTERM）
或任一实例异常退出时并发关闭全部实例。
*/
package server
