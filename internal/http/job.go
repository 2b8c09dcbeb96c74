package http

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/jmehdipour/router-sms-gateway/internal/jobs"
)

func getJobHandler(store jobs.Store) echo.HandlerFunc {
	return func(c echo.Context) error {
		job, err := store.Get(c.Request().Context(), c.Param("job_id"))
		if errors.Is(err, jobs.ErrNotFound) {
			return c.JSON(http.StatusNotFound, map[string]string{"error": "job not found"})
		}
		if err != nil {
			c.Logger().Errorf("job lookup failed: %v", err)
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "lookup failed"})
		}
		return c.JSON(http.StatusOK, job)
	}
}
