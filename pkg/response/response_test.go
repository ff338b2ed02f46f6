package response

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/campus-leave-api/internal/models"
	appErrors "github.com/noah-isme/campus-leave-api/pkg/errors"
)

func record(fn gin.HandlerFunc) *httptest.ResponseRecorder {
	gin.SetMode(gin.TestMode)
	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
	fn(c)
	return rec
}

func TestJSONEnvelope(t *testing.T) {
	rec := record(func(c *gin.Context) {
		JSON(c, http.StatusOK, []string{"a"}, &models.Pagination{Page: 1, PageSize: 10, TotalCount: 1, TotalPages: 1}, map[string]interface{}{"sequence": 3})
	})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))

	var env struct {
		Data       []string               `json:"data"`
		Pagination *models.Pagination     `json:"pagination"`
		Meta       map[string]interface{} `json:"meta"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	assert.Equal(t, []string{"a"}, env.Data)
	assert.Equal(t, 1, env.Pagination.TotalPages)
	assert.EqualValues(t, 3, env.Meta["sequence"])
}

func TestErrorEnvelope(t *testing.T) {
	rec := record(func(c *gin.Context) {
		Error(c, appErrors.Clone(appErrors.ErrSlipNotReady, "slip still rendering"))
	})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.JSONEq(t, `{"error":{"code":"SLIP_NOT_READY","message":"slip still rendering","status":409}}`, rec.Body.String())
}

func TestAcceptedAndNoContent(t *testing.T) {
	assert.Equal(t, http.StatusAccepted, record(func(c *gin.Context) { Accepted(c, gin.H{"id": "j1"}) }).Code)

	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.DELETE("/x", NoContent)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/x", nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)
}
