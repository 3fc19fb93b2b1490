package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Oerlinker/BackendAISi2/internal/models"
	appErrors "github.com/Oerlinker/BackendAISi2/pkg/errors"
)

type validatorStub map[string]*models.JWTClaims

func (v validatorStub) ValidateToken(token string) (*models.JWTClaims, error) {
	if claims, ok := v[token]; ok {
		return claims, nil
	}
	return nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid token")
}

func protectedRouter(tokens TokenValidator, roles ...models.UserRole) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	group := r.Group("/", JWT(tokens))
	if len(roles) > 0 {
		group.Use(RequireRoles(roles...))
	}
	group.GET("/me", func(c *gin.Context) {
		claims := c.MustGet(ContextUserKey).(*models.JWTClaims)
		c.String(http.StatusOK, claims.UserID)
	})
	return r
}

func call(r *gin.Engine, header string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestJWTRejectsMissingAndMalformedHeaders(t *testing.T) {
	r := protectedRouter(validatorStub{})

	assert.Equal(t, http.StatusUnauthorized, call(r, "").Code)
	assert.Equal(t, http.StatusUnauthorized, call(r, "Token abc").Code)
	assert.Equal(t, http.StatusUnauthorized, call(r, "Bearer ").Code)
	assert.Equal(t, http.StatusUnauthorized, call(r, "Bearer unknown").Code)
}

func TestJWTStoresClaims(t *testing.T) {
	r := protectedRouter(validatorStub{"good": {UserID: "stu-1", Role: models.RoleStudent}})

	w := call(r, "bearer good")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "stu-1", w.Body.String())
}

func TestRequireRolesForbidsOtherRoles(t *testing.T) {
	tokens := validatorStub{
		"student": {UserID: "stu-1", Role: models.RoleStudent},
		"admin":   {UserID: "adm-1", Role: models.RoleAdmin},
	}
	r := protectedRouter(tokens, models.RoleAdmin, models.RoleTeacher)

	assert.Equal(t, http.StatusForbidden, call(r, "Bearer student").Code)
	assert.Equal(t, http.StatusOK, call(r, "Bearer admin").Code)
}

func TestRequireRolesWithoutClaims(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/me", RequireRoles(models.RoleAdmin), func(c *gin.Context) { c.Status(http.StatusOK) })

	assert.Equal(t, http.StatusUnauthorized, call(r, "").Code)
}
