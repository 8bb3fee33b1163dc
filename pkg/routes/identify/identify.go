package identify

import (
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectoinject"
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/clover/pkg/identity"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/tracing"
	"github.com/Ramsey-B/clover/pkg/utils"
)

// RegisterRoutes registers the identify endpoint
func RegisterRoutes(e *echo.Echo) {
	e.POST("/identify", Identify)
}

// Identify handles POST /identify
func Identify(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "IdentifyHandler.Identify")
	defer span.End()

	req, err := utils.BindRequest[models.IdentifyRequest](c)
	if err != nil {
		return err
	}

	ctx, svc, err := ectoinject.GetContext[*identity.Service](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	summary, err := svc.Identify(ctx, req.Email, req.PhoneNumber.StringPtr())
	if err != nil {
		tracing.RecordError(span, err)
		return err
	}

	return c.JSON(http.StatusOK, models.IdentifyResponse{Contact: *summary})
}
