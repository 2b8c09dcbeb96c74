package http

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/labstack/gommon/log"

	"github.com/jmehdipour/router-sms-gateway/internal/dispatcher"
	"github.com/jmehdipour/router-sms-gateway/internal/jobs"
	"github.com/jmehdipour/router-sms-gateway/internal/model"
	"github.com/jmehdipour/router-sms-gateway/internal/util"
)

func sendSMSHandler(d Dispatcher) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req model.SMS
		if err := c.Bind(&req); err != nil {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "bad request"})
		}

		req = req.Normalize()
		req.PhoneNumber = util.NormalizePhone(req.PhoneNumber)
		if !req.Valid() {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "phone_number and message are required"})
		}

		ctx := c.Request().Context()

		if wait, _ := strconv.ParseBool(c.QueryParam("wait")); wait {
			return c.JSON(http.StatusOK, d.SubmitAndWait(ctx, req.PhoneNumber, req.Message))
		}

		job, err := d.Submit(ctx, req.PhoneNumber, req.Message)
		switch {
		case err == nil:
		case errors.Is(err, dispatcher.ErrQueueFull), errors.Is(err, jobs.ErrFull):
			return c.JSON(http.StatusServiceUnavailable, map[string]string{"error": "queue full"})
		case errors.Is(err, dispatcher.ErrCoordinatorClosed):
			return c.JSON(http.StatusServiceUnavailable, map[string]string{"error": "shutting down"})
		default:
			log.Errorf("submit failed: %v", err)
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "could not queue sms"})
		}

		return c.JSON(http.StatusAccepted, map[string]string{
			"status":  "accepted",
			"job_id":  job.ID,
			"message": "SMS sending task has been queued",
		})
	}
}
