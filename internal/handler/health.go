package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// Health is the liveness probe used by load balancers and monitoring.
// It deliberately checks nothing downstream: a broker or Redis outage
// degrades features but must not take the instance out of rotation
// while a show is running.
func Health(c echo.Context) error {
	return c.String(http.StatusOK, "ok")
}
