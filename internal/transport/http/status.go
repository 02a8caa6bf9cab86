package httptransport

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/devops-agent/gateway/internal/platform/config"
	"github.com/devops-agent/gateway/internal/tools"
)

// RegisterStatusRoutes 挂载网关状态接口：健康检查和工具目录。
func RegisterStatusRoutes(router *Router, registry *tools.Registry, cfg *config.Config) {
	startedAt := time.Now()

	router.API.GET("/health", func(c *gin.Context) {
		RespondSuccess(c, http.StatusOK, gin.H{
			"status":    "ok",
			"uptime":    time.Since(startedAt).Round(time.Second).String(),
			"transport": cfg.Server.Transport,
			"integrations": gin.H{
				"github": true,
				"slack":  true,
				"zentao": cfg.ZenTaoEnabled(),
			},
		}, "")
	})

	router.API.GET("/tools", func(c *gin.Context) {
		names := registry.Names()
		RespondSuccess(c, http.StatusOK, gin.H{
			"count": len(names),
			"tools": names,
		}, "")
	})
}
