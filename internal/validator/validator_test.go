package validator

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stemsi/labexam-backend/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func bindBody(t *testing.T, body string, dst any) map[string]string {
	t.Helper()
	gin.SetMode(gin.TestMode)
	Setup()
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	c.Request.Header.Set("Content-Type", "application/json")
	return Bind(c, dst)
}

func TestBind_ExamCodeTag(t *testing.T) {
	var ok model.StartSessionRequest
	assert.Nil(t, bindBody(t, `{"roll_number":"CS-01","exam_code":"abcd23"}`, &ok))

	var bad model.StartSessionRequest
	fields := bindBody(t, `{"roll_number":"CS-01","exam_code":"ABCD10"}`, &bad)
	require.NotNil(t, fields)
	assert.Contains(t, fields["exam_code"], "exam code")
}

func TestBind_UsesJSONFieldNames(t *testing.T) {
	var req model.StartSessionRequest
	fields := bindBody(t, `{}`, &req)
	require.NotNil(t, fields)
	assert.Contains(t, fields, "roll_number")
}

func TestBind_SyntaxError(t *testing.T) {
	var req model.StartSessionRequest
	fields := bindBody(t, `{`, &req)
	assert.Contains(t, fields, "detail")
}

func TestStruct_ValidatesDecodedPayload(t *testing.T) {
	Setup()

	assert.Nil(t, Struct(&model.HeartbeatRequest{Events: []model.ClientEvent{{Type: "focus_lost"}}}))

	fields := Struct(&model.HeartbeatRequest{Events: []model.ClientEvent{{Type: strings.Repeat("k", 65)}}})
	require.NotNil(t, fields)
	assert.Contains(t, fields, "type")
}
