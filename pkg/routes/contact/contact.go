package contact

import (
	"net/http"
	"strconv"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectoinject"
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/clover/pkg/identity"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

// Register registers contact routes
func Register(g *echo.Group) {
	g.GET("/:id", Get)
}

// Get handles GET /contacts/:id
func Get(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "ContactHandler.Get")
	defer span.End()

	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		return httperror.NewHTTPErrorf(http.StatusBadRequest, "invalid contact id %q", c.Param("id"))
	}

	ctx, svc, err := ectoinject.GetContext[*identity.Service](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	summary, err := svc.Cluster(ctx, id)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, models.IdentifyResponse{Contact: *summary})
}
