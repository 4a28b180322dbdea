package validation

import (
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type echoRequest struct {
	Prompt string `json:"prompt" validate:"required"`
}

func (r *echoRequest) Sanitize() { r.Prompt = Sanitize(r.Prompt) }

func newApp() *fiber.App {
	app := fiber.New()
	app.Use(Middleware(Config{MaxPromptLength: 20}))
	app.Post("/echo", func(c *fiber.Ctx) error {
		var req echoRequest
		if err := Bind(c, &req); err != nil {
			return err
		}
		return c.SendString(req.Prompt)
	})
	return app
}

func post(t *testing.T, app *fiber.App, contentType, body string) int {
	t.Helper()
	req := httptest.NewRequest("POST", "/echo", strings.NewReader(body))
	req.Header.Set("Content-Type", contentType)
	resp, err := app.Test(req)
	require.NoError(t, err)
	return resp.StatusCode
}

func TestMiddleware(t *testing.T) {
	app := newApp()

	assert.Equal(t, 200, post(t, app, "application/json", `{"prompt":"condonation test"}`))
	assert.Equal(t, 400, post(t, app, "application/json", `{"prompt":"this prompt is far too long to pass"}`))
	assert.Equal(t, 400, post(t, app, "application/json", `{"prompt":"<script>x"}`))
	assert.Equal(t, 400, post(t, app, "application/json", `{"prompt":`))
	assert.Equal(t, 415, post(t, app, "text/plain", `prompt`))
}

func TestBindValidatesAfterSanitize(t *testing.T) {
	app := newApp()

	assert.Equal(t, 400, post(t, app, "application/json", `{"other":"x"}`))
	assert.Equal(t, 400, post(t, app, "application/json", `{"prompt":"   "}`))
}

func TestSanitize(t *testing.T) {
	assert.Equal(t, "abc", Sanitize("  a\x00bc \n"))
}
