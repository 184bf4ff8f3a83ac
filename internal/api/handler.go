package api

import (
	"net/http"

	"codeberg.org/mutker/monitord/internal/logger"
	"github.com/gin-gonic/gin"
)

type response struct {
	Ok    bool   `json:"ok"`
	Data  any    `json:"data,omitempty"`
	Error string `json:"error,omitempty"`
}

type seekRequest struct {
	Position *float64 `json:"position" binding:"required_without=Progress"`
	Progress *float64 `json:"progress" binding:"required_without=Position"`
}

type mediaSettingsRequest struct {
	Token *string `json:"token" binding:"required"`
}

type weatherSettingsRequest struct {
	APIKey   *string `json:"api_key" binding:"required_without=Location"`
	Location *string `json:"location" binding:"required_without=APIKey"`
}

type removeNotificationURI struct {
	App       string `uri:"app" binding:"required"`
	Timestamp int64  `uri:"timestamp"`
}

// Deps wires the API to the running collectors. Nil controllers answer 503.
type Deps struct {
	Snapshot      Snapshotter
	Media         MediaController
	Notifications NotificationManager
	Weather       WeatherController
	Logger        logger.Logger
}

type API struct {
	deps Deps
	log  logger.Logger
}

func NewAPI(deps Deps) *API {
	log := deps.Logger
	if log == nil {
		log = logger.Nop()
	}

	return &API{deps: deps, log: log}
}

func (a *API) RegisterRoutes(router gin.IRouter) {
	v1 := router.Group("/api/v1")

	v1.GET("/snapshot", a.snapshot)

	v1.GET("/notifications", a.requireNotifications, a.listNotifications)
	v1.DELETE("/notifications", a.requireNotifications, a.clearNotifications)
	v1.DELETE("/notifications/:app/:timestamp", a.requireNotifications, a.removeNotification)

	media := v1.Group("/media", a.requireMedia)
	media.POST("/playpause", mediaCommand(func(c *gin.Context) bool {
		return a.deps.Media.PlayPause(c.Request.Context())
	}))
	media.POST("/next", mediaCommand(func(c *gin.Context) bool {
		return a.deps.Media.Next(c.Request.Context())
	}))
	media.POST("/previous", mediaCommand(func(c *gin.Context) bool {
		return a.deps.Media.Previous(c.Request.Context())
	}))
	media.POST("/seek", a.seek)

	v1.PUT("/settings/media", a.requireMedia, a.mediaSettings)
	v1.PUT("/settings/weather", a.requireWeather, a.weatherSettings)
	v1.POST("/weather/refresh", a.requireWeather, a.refreshWeather)
}

func (a *API) snapshot(c *gin.Context) {
	if a.deps.Snapshot == nil {
		unavailable(c, "snapshot")
		return
	}
	c.JSON(http.StatusOK, response{Ok: true, Data: a.deps.Snapshot.Snapshot()})
}

func (a *API) listNotifications(c *gin.Context) {
	c.JSON(http.StatusOK, response{Ok: true, Data: a.deps.Notifications.Notifications()})
}

func (a *API) clearNotifications(c *gin.Context) {
	if app := c.Query("app"); app != "" {
		a.deps.Notifications.ClearApp(app)
	} else {
		a.deps.Notifications.Clear()
	}
	c.JSON(http.StatusOK, response{Ok: true})
}

func (a *API) removeNotification(c *gin.Context) {
	var uri removeNotificationURI
	if err := c.ShouldBindUri(&uri); err != nil {
		badRequest(c, err)
		return
	}

	a.deps.Notifications.Remove(uri.App, uri.Timestamp)
	c.JSON(http.StatusOK, response{Ok: true})
}

func mediaCommand(fn func(c *gin.Context) bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		commandResult(c, fn(c))
	}
}

func (a *API) seek(c *gin.Context) {
	var req seekRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	ctx := c.Request.Context()
	if req.Progress != nil {
		commandResult(c, a.deps.Media.SeekToProgress(ctx, *req.Progress))
		return
	}
	if *req.Position < 0 {
		c.AbortWithStatusJSON(http.StatusBadRequest, response{Ok: false, Error: "position must not be negative"})
		return
	}
	commandResult(c, a.deps.Media.Seek(ctx, *req.Position))
}

func (a *API) mediaSettings(c *gin.Context) {
	var req mediaSettingsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	a.deps.Media.SetToken(*req.Token)
	a.log.Info().Msg("Media token updated")
	c.JSON(http.StatusOK, response{Ok: true})
}

func (a *API) weatherSettings(c *gin.Context) {
	var req weatherSettingsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	if req.APIKey != nil {
		a.deps.Weather.SetAPIKey(*req.APIKey)
	}
	if req.Location != nil {
		a.deps.Weather.SetLocation(*req.Location)
	}
	a.deps.Weather.Request()

	a.log.Info().
		Bool("api_key", req.APIKey != nil).
		Bool("location", req.Location != nil).
		Msg("Weather settings updated")
	c.JSON(http.StatusOK, response{Ok: true})
}

func (a *API) refreshWeather(c *gin.Context) {
	a.deps.Weather.Request()
	c.JSON(http.StatusAccepted, response{Ok: true})
}

func (a *API) requireMedia(c *gin.Context) {
	if a.deps.Media == nil {
		unavailable(c, "media")
	}
}

func (a *API) requireNotifications(c *gin.Context) {
	if a.deps.Notifications == nil {
		unavailable(c, "notifications")
	}
}

func (a *API) requireWeather(c *gin.Context) {
	if a.deps.Weather == nil {
		unavailable(c, "weather")
	}
}

func commandResult(c *gin.Context, ok bool) {
	if !ok {
		c.JSON(http.StatusBadGateway, response{Ok: false, Error: "player did not accept the command"})
		return
	}
	c.JSON(http.StatusOK, response{Ok: true})
}

func badRequest(c *gin.Context, err error) {
	c.AbortWithStatusJSON(http.StatusBadRequest, response{Ok: false, Error: err.Error()})
}

func unavailable(c *gin.Context, what string) {
	c.AbortWithStatusJSON(http.StatusServiceUnavailable, response{Ok: false, Error: what + " disabled"})
}
