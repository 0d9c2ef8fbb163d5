package ports

import "github.com/gin-gonic/gin"

type HTTPHandler interface {
	StartCall(c *gin.Context)
	ActiveCall(c *gin.Context)
	EndCall(c *gin.Context)
	ToggleMute(c *gin.Context)
	ToggleVideo(c *gin.Context)
}

type TipHTTPHandler interface {
	SendTip(c *gin.Context)
	GetTotal(c *gin.Context)
}
