// Package config 提供服务配置的加载与校验。
//
// 加载顺序：默认值 → .env 文件 → YAML 文件 → SUPPORTRAG_ 前缀环境变量。
// 配置在启动时加载一次，运行期间不变。
package config
