package app

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/admarket/moderation/internal/controllers"
)

func SetupMappings(app *Application) {
	e := app.Engine

	e.POST("/predict", controllers.NewPredictController(app.Predict).Handle)
	e.POST("/simple_predict", controllers.NewSimplePredictController(app.Predict).Handle)
	e.POST("/async_predict", controllers.NewAsyncPredictController(app.Enqueue).Handle)
	e.GET("/moderation_result/:task_id", controllers.NewModerationResultController(app.Status).Handle)
	e.POST("/close", controllers.NewCloseListingController(app.Close).Handle)

	e.GET("/healthz", controllers.NewHealthController().Handle)
	e.GET("/metrics", func(c *gin.Context) {
		promhttp.Handler().ServeHTTP(c.Writer, c.Request)
	})
}
