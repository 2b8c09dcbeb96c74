package http

import (
	"net/http"
	"strconv"
	"strings"

	echo "github.com/labstack/echo/v4"

	"github.com/jmehdipour/router-sms-gateway/internal/model"
	"github.com/jmehdipour/router-sms-gateway/internal/repository"
	"github.com/jmehdipour/router-sms-gateway/internal/util"
)

func historyHandler(repo repository.HistoryRepository) echo.HandlerFunc {
	return func(c echo.Context) error {
		limit := 50
		offset := 0
		if v := c.QueryParam("limit"); v != "" {
			if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 1000 {
				limit = n
			}
		}
		if v := c.QueryParam("offset"); v != "" {
			if n, err := strconv.Atoi(v); err == nil && n >= 0 {
				offset = n
			}
		}

		var st model.JobStatus
		if raw := strings.TrimSpace(c.QueryParam("status")); raw != "" {
			tmp := model.JobStatus(raw)
			if !tmp.Terminal() {
				return c.JSON(http.StatusBadRequest, map[string]string{"error": "status must be completed or failed"})
			}
			st = tmp
		}

		phone := util.NormalizePhone(c.QueryParam("phone"))

		rows, err := repo.List(c.Request().Context(), phone, st, limit, offset)
		if err != nil {
			c.Logger().Errorf("history list failed: %v", err)

			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "query failed"})
		}

		return c.JSON(http.StatusOK, map[string]any{
			"limit":   limit,
			"offset":  offset,
			"count":   len(rows),
			"results": rows,
		})
	}
}
