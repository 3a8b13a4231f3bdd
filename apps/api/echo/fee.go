package echoapi

import (
	"context"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/schoolfees/core"
	"github.com/trezcool/schoolfees/core/fee"
)

const idempotencyKeyHeader = "Idempotency-Key"

// FeeService is what the fee API needs from fee.Service.
type FeeService interface {
	CreateOnce(ctx context.Context, key string, nfr fee.NewFeeRecord) (fee.FeeRecord, bool, error)
	Get(ctx context.Context, id string) (fee.FeeRecord, error)
	Query(ctx context.Context, filter fee.QueryFilter, ordering []core.DBOrdering, page core.Pagination) (fee.Page, error)
	Update(ctx context.Context, id string, ufr fee.UpdateFeeRecord) (fee.FeeRecord, error)
	Delete(ctx context.Context, ids ...string) (int, error)
	Preview(req fee.PreviewRequest) fee.PreviewResult
}

type (
	feeApi struct {
		svc      FeeService
		validate *validator.Validate
	}

	DeleteResponse struct {
		Deleted int `json:"deleted"`
	}
)

func registerFeeAPI(g *echo.Group, jwt echo.MiddlewareFunc, svc FeeService, validate *validator.Validate) {
	api := feeApi{
		svc:      svc,
		validate: validate,
	}

	fg := g.Group("/fees", jwt, roleMiddleware(AllRoles...))
	writer := roleMiddleware(writeRoles...)

	fg.GET("", api.query)
	fg.POST("", api.create, writer)
	fg.DELETE("", api.destroyMultiple, writer)
	fg.GET("/statuses", api.queryStatuses)
	fg.POST("/reconcile", api.reconcile)

	// detail endpoints
	fg.GET("/:id", api.retrieve)
	fg.PUT("/:id", api.update, writer)
	fg.DELETE("/:id", api.destroy, writer)
}

// Handlers

func (api *feeApi) create(ctx echo.Context) error {
	var data fee.NewFeeRecord
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewFeeRecord")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	key := ctx.Request().Header.Get(idempotencyKeyHeader)
	rec, replayed, err := api.svc.CreateOnce(ctx.Request().Context(), key, data)
	if err != nil {
		return errors.Wrap(err, "creating fee record")
	}
	if replayed {
		return ctx.JSON(http.StatusOK, rec)
	}
	return ctx.JSON(http.StatusCreated, rec)
}

func (api *feeApi) query(ctx echo.Context) error {
	filter, err := bindFeeFilter(ctx)
	if err != nil {
		return err
	}
	page, err := bindPagination(ctx)
	if err != nil {
		return err
	}
	ordering := new(Ordering)
	ordering.Bind(ctx)

	res, err := api.svc.Query(ctx.Request().Context(), filter, ordering.Orderings, page)
	if err != nil {
		return errors.Wrap(err, "querying fee records")
	}
	return ctx.JSON(http.StatusOK, res)
}

func (api *feeApi) queryStatuses(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, fee.Statuses)
}

func (api *feeApi) reconcile(ctx echo.Context) error {
	var data fee.PreviewRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to PreviewRequest")
	}
	return ctx.JSON(http.StatusOK, api.svc.Preview(data))
}

func (api *feeApi) retrieve(ctx echo.Context) error {
	rec, err := api.svc.Get(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "getting fee record")
	}
	return ctx.JSON(http.StatusOK, rec)
}

func (api *feeApi) update(ctx echo.Context) error {
	var data fee.UpdateFeeRecord
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateFeeRecord")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	rec, err := api.svc.Update(ctx.Request().Context(), ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "updating fee record")
	}
	return ctx.JSON(http.StatusOK, rec)
}

func (api *feeApi) destroy(ctx echo.Context) error {
	n, err := api.svc.Delete(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "deleting fee record")
	}
	if n == 0 {
		return errHttpNotFound
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *feeApi) destroyMultiple(ctx echo.Context) error {
	ids := ctx.QueryParams()["id"]
	if len(ids) == 0 {
		return core.NewValidationError(nil, core.FieldError{Field: "id", Error: "at least one id is required"})
	}
	n, err := api.svc.Delete(ctx.Request().Context(), ids...)
	if err != nil {
		return errors.Wrap(err, "deleting fee records")
	}
	return ctx.JSON(http.StatusOK, DeleteResponse{Deleted: n})
}
