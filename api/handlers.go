package api

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"roadwatch/domain"
	"roadwatch/search"
)

const commandBodyMaxSize = 64 * 1024 // 64 KiB

// Register wires up all API routes on the provided Echo instance.
func Register(e *echo.Echo, cmds IncidentCommands, queries IncidentQueries, searcher Searcher, broker *UpdateBroker, logger *log.Logger) {
	e.Use(GzipRequestMiddleware())

	e.POST("/api/incidents", raiseIncident(cmds))
	e.POST("/api/incidents/:id/advance", advanceIncident(cmds))
	e.PUT("/api/incidents/:id/severity", updateSeverity(cmds))
	e.GET("/api/incidents", listActive(queries))
	e.GET("/api/incidents/:id", getSummary(queries))
	e.GET("/api/incidents/:id/history", getHistory(queries))
	e.GET("/api/search", searchIncidents(searcher, logger))
	e.GET("/stream", streamUpdates(broker))
	e.GET("/healthz", healthz())
}

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

func healthz() echo.HandlerFunc {
	return func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	}
}

func decodeBody(c echo.Context, v any) error {
	lr := io.LimitReader(c.Request().Body, commandBodyMaxSize)
	dec := sonic.ConfigStd.NewDecoder(lr)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

// writeError maps domain error kinds onto distinct HTTP responses so
// clients can target their retry logic.
func writeError(c echo.Context, err error) error {
	var vErr *domain.ValidationError
	var tErr *domain.InvalidTransitionError
	var pErr *domain.ProjectionError
	switch {
	case errors.As(err, &vErr):
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "validation", Message: err.Error()})
	case errors.As(err, &tErr):
		return c.JSON(http.StatusConflict, errorResponse{Error: "invalid_transition", Message: err.Error()})
	case errors.Is(err, domain.ErrNotFound):
		return c.JSON(http.StatusNotFound, errorResponse{Error: "not_found", Message: err.Error()})
	case errors.Is(err, domain.ErrConcurrencyConflict):
		return c.JSON(http.StatusConflict, errorResponse{Error: "concurrency_conflict", Message: "incident was modified concurrently, reload and retry"})
	case errors.As(err, &pErr):
		c.Logger().Error(err)
		return c.JSON(http.StatusInternalServerError, errorResponse{Error: "projection_failed", Message: err.Error()})
	default:
		c.Logger().Error(err)
		return c.JSON(http.StatusInternalServerError, errorResponse{Error: "internal"})
	}
}

type raiseRequest struct {
	IncidentType    string  `json:"incidentType"`
	Latitude        float64 `json:"latitude"`
	Longitude       float64 `json:"longitude"`
	Severity        string  `json:"severity"`
	SensorStationID string  `json:"sensorStationId"`
}

type raiseResponse struct {
	ID string `json:"id"`
}

func raiseIncident(cmds IncidentCommands) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req raiseRequest
		if err := decodeBody(c, &req); err != nil {
			return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid_body"})
		}
		id, err := cmds.RaiseIncident(c.Request().Context(), domain.RaiseCommand{
			IncidentType:    req.IncidentType,
			Latitude:        req.Latitude,
			Longitude:       req.Longitude,
			Severity:        domain.Severity(req.Severity),
			SensorStationID: req.SensorStationID,
		})
		if err != nil {
			return writeError(c, err)
		}
		return c.JSON(http.StatusCreated, raiseResponse{ID: id})
	}
}

type advanceRequest struct {
	Action      string `json:"action"`
	ResponderID string `json:"responderId,omitempty"`
}

func advanceIncident(cmds IncidentCommands) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req advanceRequest
		if err := decodeBody(c, &req); err != nil {
			return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid_body"})
		}
		action, err := domain.ParseAction(req.Action)
		if err != nil {
			return writeError(c, err)
		}
		if err := cmds.AdvanceIncident(c.Request().Context(), c.Param("id"), action, req.ResponderID); err != nil {
			return writeError(c, err)
		}
		return c.NoContent(http.StatusNoContent)
	}
}

type severityRequest struct {
	Severity string `json:"severity"`
}

func updateSeverity(cmds IncidentCommands) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req severityRequest
		if err := decodeBody(c, &req); err != nil {
			return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid_body"})
		}
		if err := cmds.UpdateSeverity(c.Request().Context(), c.Param("id"), domain.Severity(req.Severity)); err != nil {
			return writeError(c, err)
		}
		return c.NoContent(http.StatusNoContent)
	}
}

type incidentsResponse struct {
	Incidents []domain.Summary `json:"incidents"`
}

func listActive(queries IncidentQueries) echo.HandlerFunc {
	return func(c echo.Context) error {
		summaries, err := queries.ListActive(c.Request().Context())
		if err != nil {
			return writeError(c, err)
		}
		return c.JSON(http.StatusOK, incidentsResponse{Incidents: summaries})
	}
}

func getSummary(queries IncidentQueries) echo.HandlerFunc {
	return func(c echo.Context) error {
		sum, err := queries.GetSummary(c.Request().Context(), c.Param("id"))
		if err != nil {
			return writeError(c, err)
		}
		return c.JSON(http.StatusOK, sum)
	}
}

type historyEntry struct {
	Kind       string                 `json:"kind"`
	OccurredAt time.Time              `json:"occurredAt"`
	Data       sonic.NoCopyRawMessage `json:"data"`
}

type historyResponse struct {
	Events []historyEntry `json:"events"`
}

func getHistory(queries IncidentQueries) echo.HandlerFunc {
	return func(c echo.Context) error {
		events, err := queries.GetHistory(c.Request().Context(), c.Param("id"))
		if err != nil {
			return writeError(c, err)
		}
		entries := make([]historyEntry, 0, len(events))
		for _, ev := range events {
			payload, err := domain.EncodeEvent(ev)
			if err != nil {
				return writeError(c, err)
			}
			entries = append(entries, historyEntry{
				Kind:       ev.Kind(),
				OccurredAt: ev.OccurredAt(),
				Data:       sonic.NoCopyRawMessage(payload),
			})
		}
		return c.JSON(http.StatusOK, historyResponse{Events: entries})
	}
}

func searchIncidents(searcher Searcher, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) (err error) {
		metrics := newSearchRequestMetrics(logger)
		defer func() {
			metrics.Log(c.Response().Status, err)
		}()

		q := search.Query{Term: c.QueryParam("q")}
		if v := strings.TrimSpace(c.QueryParam("severity")); v != "" {
			sev, parseErr := domain.ParseSeverity(v)
			if parseErr != nil {
				metrics.SetErrorStage("invalid_severity")
				return writeError(c, parseErr)
			}
			q.Severity = sev
		}
		if v := strings.TrimSpace(c.QueryParam("state")); v != "" {
			state, parseErr := domain.ParseState(v)
			if parseErr != nil {
				metrics.SetErrorStage("invalid_state")
				return writeError(c, parseErr)
			}
			q.State = state
		}
		q.IncidentType = strings.TrimSpace(c.QueryParam("type"))
		if v := strings.TrimSpace(c.QueryParam("page")); v != "" {
			q.Page, err = strconv.Atoi(v)
			if err != nil || q.Page < 1 {
				metrics.SetErrorStage("invalid_page")
				err = c.JSON(http.StatusBadRequest, errorResponse{Error: "validation", Message: "invalid page"})
				return err
			}
		}
		if v := strings.TrimSpace(c.QueryParam("pageSize")); v != "" {
			q.PageSize, err = strconv.Atoi(v)
			if err != nil || q.PageSize < 1 {
				metrics.SetErrorStage("invalid_page_size")
				err = c.JSON(http.StatusBadRequest, errorResponse{Error: "validation", Message: "invalid page size"})
				return err
			}
		}

		searchStart := time.Now()
		res, searchErr := searcher.Search(c.Request().Context(), q)
		metrics.ObserveSearch(time.Since(searchStart))
		if searchErr != nil {
			metrics.SetErrorStage("search")
			err = writeError(c, searchErr)
			return err
		}
		metrics.SetItemsReturned(len(res.Items))
		err = c.JSON(http.StatusOK, res)
		if err != nil {
			metrics.SetErrorStage("encode_response")
		}
		return err
	}
}
