package httpx

import (
	"fmt"
	"net/http"

	"github.com/go-chi/render"
	"github.com/ptarchi/gridforms/log"
)

// Will log an error, and send a JSON error response with status 500
func LogInternalError(w http.ResponseWriter, r *http.Request, code string, err error) {
	log.Errorf("%s: %s", code, err)
	w.WriteHeader(http.StatusInternalServerError)
	render.JSON(w, r, map[string]any{"error": "Internal server error"})
}

// Will log a debug message, and send an HTTP response with status 404
func LogNotFound(w http.ResponseWriter, r *http.Request, code string, id any) {
	log.Debugf("%s: not found (%v)", code, id)
	w.WriteHeader(http.StatusNotFound)
	render.JSON(w, r, map[string]any{"error": http.StatusText(http.StatusNotFound)})
}

// Will log an error code at the given level, and send
// a JSON error response with the status default text
func LogStatus(w http.ResponseWriter, r *http.Request, status int, level log.Level, code string) {
	log.Log(level, code)
	w.WriteHeader(status)
	render.JSON(w, r, map[string]any{"error": http.StatusText(status)})
}

// Will log an error code and message at the given level,
// and send a JSON error response with the given status and formatted message
func LogStatusMsg(w http.ResponseWriter, r *http.Request, status int, level log.Level, code string, msg string, args ...any) {
	errMsg := fmt.Sprintf(msg, args...)
	log.Log(level, code+":", errMsg)
	w.WriteHeader(status)
	render.JSON(w, r, map[string]any{"error": errMsg})
}
