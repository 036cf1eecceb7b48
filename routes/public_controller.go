package routes

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/gofrs/uuid"
	"github.com/pkg/errors"
	"github.com/ptarchi/gridforms/app"
	"github.com/ptarchi/gridforms/fill"
	"github.com/ptarchi/gridforms/form"
	"github.com/ptarchi/gridforms/httpx"
	"github.com/ptarchi/gridforms/log"
	"github.com/ptarchi/gridforms/metrics"
)

// PublicGetForm serves a published form definition to anyone holding its id.
// The owner account id is never serialized.
func PublicGetForm(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		formID := chi.URLParam(r, "id")

		frm, err := loadForm(r.Context(), app.DB, formID)
		if errors.Is(err, errFormNotFound) {
			httpx.LogNotFound(w, r, "get_form", formID)
			return
		}
		if err != nil {
			httpx.LogInternalError(w, r, "db.get_form", err)
			return
		}

		render.JSON(w, r, frm)
	}
}

// OpenFill starts an ephemeral answer session for one viewer of the form.
func OpenFill(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		formID := chi.URLParam(r, "id")

		frm, err := loadForm(r.Context(), app.DB, formID)
		if errors.Is(err, errFormNotFound) {
			httpx.LogNotFound(w, r, "get_form", formID)
			return
		}
		if err != nil {
			httpx.LogInternalError(w, r, "db.get_form", err)
			return
		}

		session, err := app.Sessions.Open(formID)
		if err != nil {
			httpx.LogInternalError(w, r, "fill.open", err)
			return
		}

		w.WriteHeader(http.StatusCreated)
		render.JSON(w, r, session.Snapshot(frm.Fields, frm.Rules))
	}
}

func GetFill(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sessionID := chi.URLParam(r, "sessionID")

		session, ok := app.Sessions.Get(sessionID)
		if !ok {
			httpx.LogNotFound(w, r, "get_fill", sessionID)
			return
		}

		frm, err := loadForm(r.Context(), app.DB, session.FormID)
		if errors.Is(err, errFormNotFound) {
			// the form was deleted while this viewer was filling it
			app.Sessions.Drop(session.ID)
			httpx.LogNotFound(w, r, "get_form", session.FormID)
			return
		}
		if err != nil {
			httpx.LogInternalError(w, r, "db.get_form", err)
			return
		}

		render.JSON(w, r, session.Snapshot(frm.Fields, frm.Rules))
	}
}

// UpdateFill commits one field edit to the session. The response carries the
// freshly recomputed visibility and per-field errors.
func UpdateFill(app app.App) http.HandlerFunc {
	type editRequest struct {
		FieldID string `json:"fieldId"`
		Value   any    `json:"value"`
	}

	return func(w http.ResponseWriter, r *http.Request) {
		sessionID := chi.URLParam(r, "sessionID")

		session, ok := app.Sessions.Get(sessionID)
		if !ok {
			httpx.LogNotFound(w, r, "get_fill", sessionID)
			return
		}

		edit := editRequest{}
		err := render.DecodeJSON(r.Body, &edit)
		if err != nil || edit.FieldID == "" {
			httpx.LogStatus(w, r, http.StatusBadRequest, log.DebugLevel, "request.parse_body")
			return
		}

		frm, err := loadForm(r.Context(), app.DB, session.FormID)
		if errors.Is(err, errFormNotFound) {
			app.Sessions.Drop(session.ID)
			httpx.LogNotFound(w, r, "get_form", session.FormID)
			return
		}
		if err != nil {
			httpx.LogInternalError(w, r, "db.get_form", err)
			return
		}

		render.JSON(w, r, session.SetValue(edit.FieldID, edit.Value, frm.Fields, frm.Rules))
	}
}

// SubmitForm runs the submission pipeline: validate against the current
// visibility, map visible answers to source columns, obtain a valid token for
// the form owner and write the record. A failed submission never discards the
// answers: the session, when one was used, stays open for a retry.
func SubmitForm(app app.App) http.HandlerFunc {
	type submitRequest struct {
		SessionID string         `json:"sessionId,omitempty"`
		Values    map[string]any `json:"values"`
	}

	return func(w http.ResponseWriter, r *http.Request) {
		formID := chi.URLParam(r, "id")

		req := submitRequest{}
		err := render.DecodeJSON(r.Body, &req)
		if err != nil {
			httpx.LogStatus(w, r, http.StatusBadRequest, log.DebugLevel, "request.parse_body")
			return
		}

		frm, err := loadForm(r.Context(), app.DB, formID)
		if errors.Is(err, errFormNotFound) {
			httpx.LogNotFound(w, r, "get_form", formID)
			return
		}
		if err != nil {
			httpx.LogInternalError(w, r, "db.get_form", err)
			return
		}

		values := req.Values
		var session *fill.Session
		if req.SessionID != "" {
			var ok bool
			session, ok = app.Sessions.Get(req.SessionID)
			if !ok || session.FormID != formID {
				httpx.LogNotFound(w, r, "get_fill", req.SessionID)
				return
			}
			values = session.Values()
		}

		visible := form.ComputeVisibility(frm.Fields, frm.Rules, values)
		fieldErrors := form.Validate(frm.Fields, visible, values)
		if len(fieldErrors) > 0 {
			metrics.SubmissionsTotal.WithLabelValues("invalid").Inc()
			log.Debugf("submit.validate: %d missing fields", len(fieldErrors))
			w.WriteHeader(http.StatusUnprocessableEntity)
			render.JSON(w, r, map[string]any{
				"error":  "Validation failed",
				"fields": fieldErrors,
			})
			return
		}

		body := form.BuildWriteBody(frm, visible, values)
		if len(body) == 0 {
			httpx.LogStatusMsg(w, r, http.StatusBadRequest, log.DebugLevel, "submit.empty", "No fields provided")
			return
		}

		token, ok := validToken(w, r, app, frm.AccountID)
		if !ok {
			metrics.SubmissionsTotal.WithLabelValues("no_token").Inc()
			return
		}

		recordID, err := app.Airtable.CreateRecord(r.Context(), token, frm.BaseID, frm.TableID, body)
		if err != nil {
			// no submission row on rejection: the record does not exist
			metrics.SubmissionsTotal.WithLabelValues("remote_rejected").Inc()
			remoteError(w, r, "airtable.create_record", err)
			return
		}

		submissionID, err := uuid.NewV4()
		if err != nil {
			httpx.LogInternalError(w, r, "submit.new_id", err)
			return
		}
		valuesJson, err := json.Marshal(body)
		if err != nil {
			httpx.LogInternalError(w, r, "submit.marshal_values", err)
			return
		}

		ip := strings.Split(r.RemoteAddr, ":")[0]
		_, err = app.ExecContext(r.Context(), `
			INSERT INTO submission (id, form_id, record_id, field_values, submitted_at, ip)
			VALUES (?, ?, ?, ?, ?, ?)`,
			submissionID.String(),
			formID,
			recordID,
			string(valuesJson),
			time.Now(),
			ip,
		)
		if err != nil {
			// the remote record exists at this point; log loudly but do not
			// fail the submitter
			log.Errorf("db.insert_submission: %s", err)
		}

		if session != nil {
			app.Sessions.Drop(session.ID)
		}

		metrics.SubmissionsTotal.WithLabelValues("ok").Inc()
		w.WriteHeader(http.StatusCreated)
		render.JSON(w, r, map[string]any{
			"success":  true,
			"recordId": recordID,
		})
	}
}
