package http

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"k-stock-insight/internal/query/dto"
	"k-stock-insight/internal/query/service"
	"k-stock-insight/pkg/logger"
	"k-stock-insight/pkg/utils"

	"github.com/labstack/echo/v4"
)

// QueryHandler handles HTTP requests for stored market data.
type QueryHandler struct {
	queryService service.QueryService
	logger       *logger.Logger
}

// NewQueryHandler creates a new QueryHandler.
func NewQueryHandler(queryService service.QueryService, logger *logger.Logger) *QueryHandler {
	return &QueryHandler{queryService: queryService, logger: logger}
}

// RegisterRoutes registers the read routes to the Echo group.
func (h *QueryHandler) RegisterRoutes(g *echo.Group) {
	g.GET("/health", h.Health)
	g.GET("/stats", h.Stats)
	g.GET("/stocks", h.ListStocks)
	g.GET("/stocks/:ticker", h.GetStock)
	g.GET("/stocks/:ticker/prices", h.GetStockPrices)
	g.GET("/stocks/:ticker/investor-trends", h.GetStockInvestorTrends)
	g.GET("/sectors", h.ListSectors)
	g.GET("/dashboard", h.Dashboard)
}

func (h *QueryHandler) Health(c echo.Context) error {
	resp, err := h.queryService.Health(c.Request().Context())
	if err != nil {
		h.logger.Error("Health check failed", logger.ErrorField(err))
		return c.JSON(http.StatusInternalServerError, resp)
	}
	return c.JSON(http.StatusOK, resp)
}

func (h *QueryHandler) Stats(c echo.Context) error {
	resp, err := h.queryService.Stats(c.Request().Context())
	if err != nil {
		return h.fail(c, "Failed to get stats", err)
	}
	return c.JSON(http.StatusOK, resp)
}

func (h *QueryHandler) ListStocks(c echo.Context) error {
	limit, err := intParam(c, "limit")
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "Invalid limit"})
	}
	offset, err := intParam(c, "offset")
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "Invalid offset"})
	}

	resp, err := h.queryService.ListStocks(c.Request().Context(), dto.StockListParams{
		Limit:  limit,
		Offset: offset,
		Market: c.QueryParam("market"),
		Search: c.QueryParam("search"),
	})
	if err != nil {
		return h.fail(c, "Failed to list stocks", err)
	}
	return c.JSON(http.StatusOK, resp)
}

func (h *QueryHandler) GetStock(c echo.Context) error {
	resp, err := h.queryService.GetStockDetail(c.Request().Context(), c.Param("ticker"))
	if err != nil {
		return h.fail(c, "Failed to get stock", err)
	}
	return c.JSON(http.StatusOK, resp)
}

func (h *QueryHandler) GetStockPrices(c echo.Context) error {
	params, err := dateRangeParams(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
	}
	resp, err := h.queryService.GetStockPrices(c.Request().Context(), c.Param("ticker"), params)
	if err != nil {
		return h.fail(c, "Failed to get stock prices", err)
	}
	return c.JSON(http.StatusOK, resp)
}

func (h *QueryHandler) GetStockInvestorTrends(c echo.Context) error {
	params, err := dateRangeParams(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
	}
	resp, err := h.queryService.GetStockInvestorTrends(c.Request().Context(), c.Param("ticker"), params)
	if err != nil {
		return h.fail(c, "Failed to get investor trends", err)
	}
	return c.JSON(http.StatusOK, resp)
}

func (h *QueryHandler) ListSectors(c echo.Context) error {
	resp, err := h.queryService.ListSectors(c.Request().Context())
	if err != nil {
		return h.fail(c, "Failed to list sectors", err)
	}
	return c.JSON(http.StatusOK, resp)
}

func (h *QueryHandler) Dashboard(c echo.Context) error {
	resp, err := h.queryService.Dashboard(c.Request().Context())
	if err != nil {
		return h.fail(c, "Failed to build dashboard", err)
	}
	return c.JSON(http.StatusOK, resp)
}

// fail maps service errors to status codes. Store errors are logged and hidden from the client.
func (h *QueryHandler) fail(c echo.Context, msg string, err error) error {
	switch {
	case errors.Is(err, dto.ErrNotFound):
		return c.JSON(http.StatusNotFound, echo.Map{"error": "Stock not found"})
	case errors.Is(err, dto.ErrInvalidParam):
		return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
	default:
		h.logger.Error(msg, logger.ErrorField(err), logger.StringField("path", c.Path()))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": msg})
	}
}

func intParam(c echo.Context, name string) (int, error) {
	raw := c.QueryParam(name)
	if raw == "" {
		return 0, nil
	}
	return strconv.Atoi(raw)
}

func dateRangeParams(c echo.Context) (dto.DateRangeParams, error) {
	var params dto.DateRangeParams
	limit, err := intParam(c, "limit")
	if err != nil {
		return params, errors.New("invalid limit")
	}
	params.Limit = limit

	if params.StartDate, err = dateParam(c, "start_date"); err != nil {
		return params, errors.New("invalid start_date, expected YYYY-MM-DD")
	}
	if params.EndDate, err = dateParam(c, "end_date"); err != nil {
		return params, errors.New("invalid end_date, expected YYYY-MM-DD")
	}
	return params, nil
}

func dateParam(c echo.Context, name string) (time.Time, error) {
	raw := c.QueryParam(name)
	if raw == "" {
		return time.Time{}, nil
	}
	return utils.ParseDate(raw)
}
