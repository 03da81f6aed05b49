package devserver

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
)

// failure is a handler error rendered in one of the backend's two error bodies:
// {"status":"error","message":...} for commands and {"error":...} for queries.
type failure struct {
	code    int
	message string
	command bool
}

func (f *failure) Error() string {
	return fmt.Sprintf("%d %s", f.code, f.message)
}

func (f *failure) body() map[string]string {
	if f.command {
		return map[string]string{"status": "error", "message": f.message}
	}
	return map[string]string{"error": f.message}
}

// rejectCommand fails a command endpoint such as /api/start.
func rejectCommand(code int, format string, args ...any) error {
	return &failure{code: code, message: fmt.Sprintf(format, args...), command: true}
}

// rejectQuery fails a read endpoint.
func rejectQuery(code int, format string, args ...any) error {
	return &failure{code: code, message: fmt.Sprintf(format, args...)}
}

// ErrorHandler is installed as echo's HTTPErrorHandler.
func ErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	out := failure{code: http.StatusInternalServerError, message: err.Error()}
	var f *failure
	var he *echo.HTTPError
	switch {
	case errors.As(err, &f):
		out = *f
	case errors.As(err, &he):
		out = failure{code: he.Code, message: fmt.Sprint(he.Message)}
		out.command = c.Request().Method == http.MethodPost
	}

	if err := c.JSON(out.code, out.body()); err != nil {
		c.Logger().Error(err)
	}
}
