package middleware

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"concentra/internal/apierror"
	"concentra/internal/model"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func perform(r http.Handler, method, path string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

// ── RateLimiter ───────────────────────────────────────────────────────────────

func TestRateLimiter_BloqueaAlSuperarLimite(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	l := NewRateLimiter(2, time.Minute)
	l.now = func() time.Time { return now }

	r := gin.New()
	r.Use(l.Handler())
	r.GET("/ping", func(c *gin.Context) { c.Status(http.StatusOK) })

	assert.Equal(t, http.StatusOK, perform(r, http.MethodGet, "/ping", nil).Code)
	assert.Equal(t, http.StatusOK, perform(r, http.MethodGet, "/ping", nil).Code)

	w := perform(r, http.MethodGet, "/ping", nil)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.NotEmpty(t, w.Header().Get("Retry-After"))
	assert.Contains(t, decodeBody(t, w)["detail"], "Demasiadas solicitudes")

	// A new window starts once the previous one has elapsed.
	now = now.Add(time.Minute + time.Second)
	assert.Equal(t, http.StatusOK, perform(r, http.MethodGet, "/ping", nil).Code)
}

func TestRateLimiter_ContadorPorIP(t *testing.T) {
	l := NewRateLimiter(1, time.Minute)
	ok, _ := l.allow("10.0.0.1")
	assert.True(t, ok)
	ok, _ = l.allow("10.0.0.1")
	assert.False(t, ok)
	ok, _ = l.allow("10.0.0.2")
	assert.True(t, ok)
}

func TestRateLimiter_PurgaEntradasVencidas(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	l := NewRateLimiter(5, time.Minute)
	l.now = func() time.Time { return now }

	l.allow("10.0.0.1")
	now = now.Add(30 * time.Second)
	l.allow("10.0.0.2")

	now = now.Add(45 * time.Second)
	assert.Equal(t, 1, l.purge())
	assert.Len(t, l.entries, 1)
	assert.Contains(t, l.entries, "10.0.0.2")
}

// ── ErrorHandler ──────────────────────────────────────────────────────────────

func TestErrorHandler_MapeaErroresTipados(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
		detail string
	}{
		{"not found", apierror.NotFound("concentrado %s no encontrado", "abc"), http.StatusNotFound, "concentrado abc no encontrado"},
		{"regresion", apierror.CannotRegress("no se puede volver a la etapa %d", 2), http.StatusConflict, "no se puede volver a la etapa 2"},
		{"validacion", apierror.Validation("peso insuficiente"), http.StatusUnprocessableEntity, "peso insuficiente"},
		{"precios", &apierror.Error{Kind: apierror.KindPricingUnavailable, Detail: "cotizaciones no disponibles"}, http.StatusServiceUnavailable, "cotizaciones no disponibles"},
		{"envuelto", fmt.Errorf("crear: %w", apierror.Validation("sin lotes")), http.StatusUnprocessableEntity, "sin lotes"},
		{"sin tipo", errors.New("pq: connection refused"), http.StatusInternalServerError, "Error interno del servidor"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := gin.New()
			r.Use(ErrorHandler())
			r.GET("/x", func(c *gin.Context) {
				_ = c.Error(tc.err)
				c.Abort()
			})

			w := perform(r, http.MethodGet, "/x", nil)
			assert.Equal(t, tc.status, w.Code)
			body := decodeBody(t, w)
			assert.Equal(t, tc.detail, body["detail"])
			assert.NotContains(t, w.Body.String(), "pq:")
		})
	}
}

func TestErrorHandler_TransicionInvalidaIncluyeCampos(t *testing.T) {
	r := gin.New()
	r.Use(ErrorHandler())
	r.POST("/x", func(c *gin.Context) {
		_ = c.Error(apierror.InvalidTransition("concentrado", model.ConcentradoEnProceso, model.ConcentradoCreado))
		c.Abort()
	})

	w := perform(r, http.MethodPost, "/x", nil)
	assert.Equal(t, http.StatusConflict, w.Code)
	body := decodeBody(t, w)
	fields, ok := body["fields"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "en_proceso", fields["actual"])
	assert.Equal(t, "creado", fields["esperado"])
}

func TestErrorHandler_NoPisaRespuestaEscrita(t *testing.T) {
	r := gin.New()
	r.Use(ErrorHandler())
	r.GET("/x", func(c *gin.Context) {
		_ = c.Error(errors.New("registrado"))
		c.JSON(http.StatusAccepted, gin.H{"ok": true})
	})

	w := perform(r, http.MethodGet, "/x", nil)
	assert.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, true, decodeBody(t, w)["ok"])
}

func TestRecovery_ConviertePanicEn500(t *testing.T) {
	r := gin.New()
	r.Use(Recovery())
	r.GET("/x", func(*gin.Context) { panic("boom") })

	w := perform(r, http.MethodGet, "/x", nil)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "Error interno del servidor", decodeBody(t, w)["detail"])
}

// ── RequestID / CORS ──────────────────────────────────────────────────────────

func TestRequestID(t *testing.T) {
	r := gin.New()
	r.Use(RequestID())
	r.GET("/x", func(c *gin.Context) { c.String(http.StatusOK, c.GetString(RequestIDKey)) })

	w := perform(r, http.MethodGet, "/x", map[string]string{RequestIDHeader: "abc-123"})
	assert.Equal(t, "abc-123", w.Header().Get(RequestIDHeader))
	assert.Equal(t, "abc-123", w.Body.String())

	w = perform(r, http.MethodGet, "/x", nil)
	_, err := uuid.Parse(w.Header().Get(RequestIDHeader))
	assert.NoError(t, err)
}

func TestCORS_Preflight(t *testing.T) {
	r := gin.New()
	r.Use(CORS("https://planta.coop.bo"))
	r.POST("/x", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.OPTIONS("/x", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := perform(r, http.MethodOptions, "/x", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "https://planta.coop.bo", w.Header().Get("Access-Control-Allow-Origin"))
}

// ── JWTAuth ───────────────────────────────────────────────────────────────────

const testSecret = "secreto-de-pruebas-con-32-bytes!!"

func firmar(t *testing.T, method jwt.SigningMethod, key any, claims *JWTClaims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(method, claims).SignedString(key)
	require.NoError(t, err)
	return s
}

func protegido() *gin.Engine {
	r := gin.New()
	r.Use(JWTAuth(testSecret))
	r.GET("/x", func(c *gin.Context) {
		claims := GetClaims(c)
		id, _ := claims.ActorID()
		c.String(http.StatusOK, id.String())
	})
	return r
}

func TestJWTAuth_TokenValido(t *testing.T) {
	user := uuid.New()
	token := firmar(t, jwt.SigningMethodHS256, []byte(testSecret), &JWTClaims{
		UserID:           user.String(),
		Nombre:           "Operador Planta",
		RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))},
	})

	w := perform(protegido(), http.MethodGet, "/x", map[string]string{"Authorization": "Bearer " + token})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, user.String(), w.Body.String())
}

func TestJWTAuth_SubjectComoActor(t *testing.T) {
	user := uuid.New()
	token := firmar(t, jwt.SigningMethodHS256, []byte(testSecret), &JWTClaims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: user.String()},
	})

	w := perform(protegido(), http.MethodGet, "/x", map[string]string{"Authorization": "Bearer " + token})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, user.String(), w.Body.String())
}

func TestJWTAuth_Rechazos(t *testing.T) {
	valido := &JWTClaims{UserID: uuid.NewString()}
	cases := []struct {
		name   string
		header string
		detail string
	}{
		{"sin header", "", "Autenticacion requerida"},
		{"sin bearer", "Token abc", "Autenticacion requerida"},
		{"basura", "Bearer abc.def.ghi", "Token invalido o expirado"},
		{"otro secreto", "Bearer " + firmar(t, jwt.SigningMethodHS256, []byte("otro-secreto"), valido), "Token invalido o expirado"},
		{"expirado", "Bearer " + firmar(t, jwt.SigningMethodHS256, []byte(testSecret), &JWTClaims{
			UserID:           uuid.NewString(),
			RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute))},
		}), "Token invalido o expirado"},
		{"alg none", "Bearer " + firmar(t, jwt.SigningMethodNone, jwt.UnsafeAllowNoneSignatureType, valido), "Token invalido o expirado"},
		{"sin usuario", "Bearer " + firmar(t, jwt.SigningMethodHS256, []byte(testSecret), &JWTClaims{Nombre: "anonimo"}), "Token sin identificador de usuario"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			headers := map[string]string{}
			if tc.header != "" {
				headers["Authorization"] = tc.header
			}
			w := perform(protegido(), http.MethodGet, "/x", headers)
			assert.Equal(t, http.StatusUnauthorized, w.Code)
			assert.Equal(t, tc.detail, decodeBody(t, w)["detail"])
		})
	}
}
