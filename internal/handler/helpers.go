package handler

import (
	"errors"
	"net/http"
	"reflect"

	"concentra/internal/apierror"
	"concentra/internal/middleware"
	"concentra/internal/model"
	"concentra/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var validate = validator.New()

func init() {
	// Register decimal.Decimal as a numeric type so that validator tags like
	// min=0, gt=0, required work without panicking ("Bad field type decimal.Decimal").
	validate.RegisterCustomTypeFunc(func(field reflect.Value) interface{} {
		if v, ok := field.Interface().(decimal.Decimal); ok {
			f, _ := v.Float64()
			return f
		}
		return nil
	}, decimal.Decimal{})
}

// bindAndValidate binds JSON body and runs go-playground/validator tags.
// Returns false and writes the error response if validation fails;
// the caller should return immediately without writing another response.
func bindAndValidate(c *gin.Context, req interface{}) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		c.JSON(http.StatusBadRequest, apierror.New("JSON invalido: "+err.Error()))
		return false
	}
	if err := validate.Struct(req); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			c.JSON(http.StatusBadRequest, apierror.New("Solicitud invalida"))
			return false
		}
		fields := make(map[string]string, len(verrs))
		for _, fe := range verrs {
			fields[fe.Field()] = fe.Tag()
		}
		c.JSON(http.StatusUnprocessableEntity, apierror.NewValidation(fields))
		return false
	}
	return true
}

// bindOptional is bindAndValidate for endpoints whose body may be empty.
func bindOptional(c *gin.Context, req interface{}) bool {
	if c.Request.ContentLength == 0 {
		return true
	}
	return bindAndValidate(c, req)
}

// parseID reads a UUID path parameter, answering 400 when malformed.
func parseID(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		c.JSON(http.StatusBadRequest, apierror.New("ID invalido"))
		return uuid.Nil, false
	}
	return id, true
}

// respondError hands err to middleware.ErrorHandler, which maps it to the
// status of its kind.
func respondError(c *gin.Context, err error) {
	_ = c.Error(err)
	c.Abort()
}

// actorDe builds the actor recorded in history entries from the JWT claims
// and the request metadata.
func actorDe(c *gin.Context) service.Actor {
	actor := service.Actor{Origen: model.OrigenSolicitud{
		IP:        c.ClientIP(),
		UserAgent: c.Request.UserAgent(),
		Canal:     "api",
	}}
	if claims := middleware.GetClaims(c); claims != nil {
		actor.ID, _ = claims.ActorID()
	}
	return actor
}
