package webconsole

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/lomehong/pluginadmin/pkg/plugin/api"
)

// requestContext 从请求构造请求上下文，未启用认证时使用配置的用户名
func (c *Console) requestContext(ctx *gin.Context) api.RequestContext {
	user := ctx.GetString(contextKeyUsername)
	if user == "" {
		user = c.config.Username
	}
	return api.RequestContext{
		User:      user,
		RequestID: ctx.GetString(contextKeyRequestID),
		Remote:    ctx.ClientIP(),
	}
}

// ping 健康检查
func (c *Console) ping(ctx *gin.Context) {
	ctx.JSON(http.StatusOK, gin.H{
		"message": "pong",
		"time":    time.Now().Format(time.RFC3339),
	})
}

// listPlugins 列出插件
func (c *Console) listPlugins(ctx *gin.Context) {
	var req api.ListRequest
	if err := ctx.ShouldBindQuery(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"result": false, "message": []string{err.Error()}})
		return
	}

	res := c.backend.ListPage(ctx.Request.Context(), req)
	if !res.OK() {
		ctx.JSON(http.StatusOK, gin.H{"result": false, "message": res.Messages})
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"data": res.Data, "total": res.Total})
}

// pluginAction 安装、重新安装或卸载插件
func (c *Console) pluginAction(ctx *gin.Context) {
	var req api.ActionRequest
	if err := ctx.ShouldBind(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, api.Fail(err.Error()))
		return
	}
	req.Action = ctx.Param("action")

	res := c.backend.HandleAction(ctx.Request.Context(), c.requestContext(ctx), req)
	if res.Denied {
		ctx.JSON(http.StatusForbidden, res)
		return
	}
	ctx.JSON(http.StatusOK, res)
}

// getDocumentation 获取插件文档
func (c *Console) getDocumentation(ctx *gin.Context) {
	ctx.JSON(http.StatusOK, c.backend.Documentation(ctx.Request.Context(), ctx.Query("name")))
}

// updatePluginStatus 修改插件状态
func (c *Console) updatePluginStatus(ctx *gin.Context) {
	id, err := strconv.ParseInt(ctx.Param("id"), 10, 64)
	if err != nil {
		ctx.JSON(http.StatusBadRequest, api.Fail("无效的插件ID"))
		return
	}

	var body struct {
		Status string `form:"status" json:"status"`
	}
	if err := ctx.ShouldBind(&body); err != nil {
		ctx.JSON(http.StatusBadRequest, api.Fail(err.Error()))
		return
	}

	res := c.backend.UpdateStatus(ctx.Request.Context(), c.requestContext(ctx), id, body.Status)
	if res.Denied {
		ctx.JSON(http.StatusForbidden, res)
		return
	}
	ctx.JSON(http.StatusOK, res)
}

// getSettings 获取全局配置
func (c *Console) getSettings(ctx *gin.Context) {
	values, err := c.backend.Settings(ctx.Request.Context())
	if err != nil {
		c.logger.Error("读取配置失败", "error", err)
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": "读取配置失败"})
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"data": values})
}
