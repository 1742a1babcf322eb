package serve

import (
	"encoding/json"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"gcp-billing-cost/command/calculate"
	"gcp-billing-cost/command/tasks"
	ccsv "gcp-billing-cost/connectors/csv"
	"gcp-billing-cost/connectors/gcp"
	"gcp-billing-cost/domain/config"
	"gcp-billing-cost/domain/plugin"
	"gcp-billing-cost/ingest/discovery"
	"gcp-billing-cost/ingest/service"
)

// Run starts the Echo server exposing the data source plugin operations and the cost summaries.
//
// Usage:
//
//	gcp-billing-cost serve [-addr :8080] [-data ./data]
//
// Endpoints:
//
//	POST /v1/data-source/init          -> {"metadata": ...}
//	POST /v1/data-source/verify        -> {}
//	POST /v1/job/get-tasks             -> {"tasks": [...], "changed": [...]}
//	POST /v1/cost/get-data             -> one JSON batch per line (application/x-ndjson)
//	POST /v1/cost/get-linked-accounts  -> {"results": [...]}
//	GET  /api/costs                    -> <data>/costs.csv
//	GET  /api/costs/monthly            -> <data>/cost_monthly.csv
//	GET  /api/costs/products           -> <data>/cost_products.csv
func Run(cfg config.Config, args []string) error {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	addr := fs.String("addr", cfg.Server.Addr, "http listen address (host:port)")
	dataDir := fs.String("data", "./data", "directory containing CSV files")
	if err := fs.Parse(args); err != nil {
		return err
	}

	e := NewServer(service.New(cfg, gcp.Opener{}), *dataDir)
	slog.Info("serve.start", "addr", *addr, "data", *dataDir)
	return e.Start(*addr)
}

type sourceRequest struct {
	Options    plugin.Options    `json:"options"`
	SecretData plugin.SecretData `json:"secret_data"`
	Schema     string            `json:"schema"`
	DomainID   string            `json:"domain_id"`
}

type tasksRequest struct {
	sourceRequest
	Start              string `json:"start"`
	LastSynchronizedAt string `json:"last_synchronized_at"`
}

type dataRequest struct {
	sourceRequest
	TaskOptions map[string]any `json:"task_options"`
}

type linkedAccountsRequest struct {
	sourceRequest
	Start string `json:"start"`
}

// NewServer registers every route on a new Echo instance.
func NewServer(svc *service.Service, dataDir string) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())

	e.POST("/v1/data-source/init", func(c echo.Context) error {
		var req sourceRequest
		if err := c.Bind(&req); err != nil {
			return badRequest(c, err)
		}
		md, err := svc.Init(req.Options)
		if err != nil {
			return fail(c, err)
		}
		return c.JSON(http.StatusOK, map[string]any{"metadata": md})
	})

	e.POST("/v1/data-source/verify", func(c echo.Context) error {
		var req sourceRequest
		if err := c.Bind(&req); err != nil {
			return badRequest(c, err)
		}
		if err := svc.Verify(c.Request().Context(), req.Options, req.SecretData); err != nil {
			return fail(c, err)
		}
		return c.JSON(http.StatusOK, map[string]any{})
	})

	e.POST("/v1/job/get-tasks", func(c echo.Context) error {
		var req tasksRequest
		if err := c.Bind(&req); err != nil {
			return badRequest(c, err)
		}
		dr := discovery.Request{
			Options:  req.Options,
			Secret:   req.SecretData,
			Start:    req.Start,
			DomainID: req.DomainID,
		}
		if req.LastSynchronizedAt != "" {
			t, err := tasks.ParseTimestamp(req.LastSynchronizedAt)
			if err != nil {
				return fail(c, err)
			}
			dr.LastSynchronizedAt = &t
		}
		ts, err := svc.GetTasks(c.Request().Context(), dr)
		if err != nil {
			return fail(c, err)
		}
		return c.JSON(http.StatusOK, ts)
	})

	e.POST("/v1/cost/get-data", func(c echo.Context) error {
		var req dataRequest
		if err := c.Bind(&req); err != nil {
			return badRequest(c, err)
		}
		return streamData(c, svc, req)
	})

	e.POST("/v1/cost/get-linked-accounts", func(c echo.Context) error {
		var req linkedAccountsRequest
		if err := c.Bind(&req); err != nil {
			return badRequest(c, err)
		}
		accounts, err := svc.GetLinkedAccounts(c.Request().Context(), req.Options, req.SecretData, req.Start)
		if err != nil {
			return fail(c, err)
		}
		return c.JSON(http.StatusOK, map[string]any{"results": accounts})
	})

	e.GET("/api/costs", csvFile(dataDir, calculate.InputFile))
	e.GET("/api/costs/monthly", csvFile(dataDir, calculate.MonthlyFile))
	e.GET("/api/costs/products", csvFile(dataDir, calculate.ProductsFile))

	return e
}

// streamData writes one batch per line, flushing after each. Errors raised before the first
// batch map to an error status; later errors end the stream with an error line.
func streamData(c echo.Context, svc *service.Service, req dataRequest) error {
	ctx := c.Request().Context()
	res := c.Response()
	enc := json.NewEncoder(res)
	started := false
	batches := 0
	for batch, err := range svc.GetData(ctx, req.Options, req.SecretData, req.TaskOptions) {
		if err != nil {
			if !started {
				return fail(c, err)
			}
			slog.Error("cost.get_data.stream.error", "batches", batches, "error", err)
			return enc.Encode(errorBody(err))
		}
		if !started {
			res.Header().Set(echo.HeaderContentType, "application/x-ndjson")
			res.WriteHeader(http.StatusOK)
			started = true
		}
		if err := enc.Encode(batch); err != nil {
			return err
		}
		res.Flush()
		batches++
	}
	if !started {
		return c.NoContent(http.StatusOK)
	}
	slog.Info("cost.get_data.stream.done", "batches", batches)
	return nil
}

type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func errorResponse(code, message string) map[string]errorDetail {
	return map[string]errorDetail{"error": {Code: code, Message: message}}
}

func errorBody(err error) map[string]errorDetail {
	var pe *plugin.Error
	if errors.As(err, &pe) {
		return errorResponse(pe.Code, pe.Error())
	}
	return errorResponse("ERROR_UPSTREAM", err.Error())
}

// StatusCode maps plugin errors to client errors and everything else (Google API failures) to 502.
func StatusCode(err error) int {
	var pe *plugin.Error
	if !errors.As(err, &pe) {
		return http.StatusBadGateway
	}
	if pe.Kind == plugin.KindData {
		return http.StatusUnprocessableEntity
	}
	return http.StatusBadRequest
}

func fail(c echo.Context, err error) error {
	status := StatusCode(err)
	slog.Error("serve.request.error", "path", c.Path(), "status", status, "error", err)
	return c.JSON(status, errorBody(err))
}

func badRequest(c echo.Context, err error) error {
	slog.Error("serve.request.bind_error", "path", c.Path(), "error", err)
	return c.JSON(http.StatusBadRequest, errorResponse("ERROR_INVALID_REQUEST", err.Error()))
}

// csvFile serves one file of the data directory as a JSON array of rows.
func csvFile(dataDir, filename string) echo.HandlerFunc {
	return func(c echo.Context) error {
		rows, err := readCSV(filepath.Join(dataDir, filename))
		if errors.Is(err, os.ErrNotExist) {
			return c.JSON(http.StatusNotFound, errorResponse("ERROR_NOT_FOUND_FILE", "csv file is missing: "+filename))
		}
		if err != nil {
			slog.Error("serve.csv.error", "file", filename, "error", err)
			return c.JSON(http.StatusInternalServerError, errorResponse("ERROR_READ_FILE", err.Error()))
		}
		return c.JSON(http.StatusOK, rows)
	}
}

func readCSV(path string) ([]map[string]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ccsv.ReadRecords(f)
}
