// Package bridge exposes the widget engine over HTTP for the embedded
// front end. The engine owns all behavior; the bridge only translates
// requests and maps service errors to status codes.
package bridge

import (
	"github.com/gin-gonic/gin"

	"github.com/wso2/consent-widget/internal/system/middleware"
	"github.com/wso2/consent-widget/internal/widget"
)

// SetupRouter configures all bridge routes.
func SetupRouter(engine *widget.Engine) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CorrelationIDMiddleware())
	router.Use(middleware.CORSMiddleware(middleware.DefaultCORSOptions()))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "healthy"})
	})

	handler := newWidgetHandler(engine)

	v1 := router.Group("/widget/v1")
	{
		v1.GET("/state", handler.handleState)
		v1.POST("/show", handler.handleShow)
		v1.POST("/hide", handler.handleHide)
		v1.POST("/privacy-centre", handler.handlePrivacyCentre)

		v1.GET("/consent", handler.handleGetConsent)
		v1.GET("/consent/receipt", handler.handleReceipt)
		v1.POST("/consent/decision", handler.handleDecision)

		v1.POST("/identity/link", handler.handleLinkConsentID)
		v1.POST("/identity/email", handler.handleRequestEmailLink)
		v1.POST("/identity/email/verify", handler.handleConfirmEmailLink)

		v1.POST("/language", handler.handleLanguage)
	}

	return router
}
