package routes

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/gofrs/uuid"
	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	"github.com/ptarchi/gridforms/app"
	"github.com/ptarchi/gridforms/form"
	"github.com/ptarchi/gridforms/httpx"
	"github.com/ptarchi/gridforms/log"
	"github.com/ptarchi/gridforms/model"
	"github.com/ptarchi/gridforms/routes/middlewares"
)

var errFormNotFound = errors.New("form not found")

func CreateForm(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		frm := model.Form{}
		err := render.DecodeJSON(r.Body, &frm)
		if err != nil {
			httpx.LogStatus(w, r, http.StatusBadRequest, log.DebugLevel, "request.parse_body")
			return
		}

		if !renderDefinitionErrors(w, r, frm) {
			return
		}

		formID, err := uuid.NewV4()
		if err != nil {
			httpx.LogInternalError(w, r, "form.new_id", err)
			return
		}

		tx, err := app.BeginTx(r.Context(), nil)
		if err != nil {
			httpx.LogInternalError(w, r, "db.begin_tx", err)
			return
		}
		defer tx.Rollback()

		now := time.Now()
		_, err = tx.ExecContext(r.Context(), `
			INSERT INTO form (id, account_id, base_id, table_id, title, description, version, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, 1, ?, ?)`,
			formID.String(),
			middlewares.AccountID(r),
			frm.BaseID,
			frm.TableID,
			frm.Title,
			frm.Description,
			now,
			now,
		)
		if err != nil {
			httpx.LogInternalError(w, r, "db.insert_form", err)
			return
		}

		err = insertDefinition(r.Context(), tx, formID.String(), frm.Fields, frm.Rules)
		if err != nil {
			httpx.LogInternalError(w, r, "db.insert_form.definition", err)
			return
		}

		err = tx.Commit()
		if err != nil {
			httpx.LogInternalError(w, r, "db.insert_form.commit", err)
			return
		}

		w.WriteHeader(http.StatusCreated)
		render.JSON(w, r, map[string]any{
			"id": formID.String(),
		})
	}
}

// renderDefinitionErrors runs the publish-time referential check, reporting
// every problem at once. Returns false when the definition was rejected.
func renderDefinitionErrors(w http.ResponseWriter, r *http.Request, frm model.Form) bool {
	err := form.CheckDefinition(frm.Fields, frm.Rules)
	if err == nil {
		return true
	}

	details := []string{err.Error()}
	var merr *multierror.Error
	if errors.As(err, &merr) {
		details = details[:0]
		for _, e := range merr.Errors {
			details = append(details, e.Error())
		}
	}

	log.Debugf("form.check_definition: %s", err)
	w.WriteHeader(http.StatusUnprocessableEntity)
	render.JSON(w, r, map[string]any{
		"error":   "Invalid form definition",
		"details": details,
	})
	return false
}

func insertDefinition(ctx context.Context, tx *sql.Tx, formID string, fields []model.FieldDef, rules []model.Rule) error {
	fieldStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO form_field (id, form_id, position, source_field_id, type, label, required, options)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return errors.Wrap(err, "fields.prepare")
	}
	defer fieldStmt.Close()

	for i, f := range fields {
		var optionsJson []byte
		if f.Options != nil {
			optionsJson, err = json.Marshal(f.Options)
			if err != nil {
				return errors.Wrap(err, "fields.marshal_options")
			}
		}
		_, err = fieldStmt.ExecContext(ctx, f.ID, formID, i, f.SourceFieldID, f.Type, f.Label, f.Required, string(optionsJson))
		if err != nil {
			return errors.Wrap(err, "fields.insert")
		}
	}

	ruleStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO form_rule (id, form_id, position, trigger_field_id, operator, compare_value, action, target_field_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return errors.Wrap(err, "rules.prepare")
	}
	defer ruleStmt.Close()

	for i, rule := range rules {
		if rule.ID == "" {
			id, err := uuid.NewV4()
			if err != nil {
				return errors.Wrap(err, "rules.new_id")
			}
			rule.ID = id.String()
		}
		_, err = ruleStmt.ExecContext(ctx, rule.ID, formID, i, rule.TriggerFieldID, rule.Operator, rule.CompareValue, rule.Action, rule.TargetFieldID)
		if err != nil {
			return errors.Wrap(err, "rules.insert")
		}
	}

	return nil
}

func ListForms(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rows, err := app.QueryContext(r.Context(), `
			SELECT id, base_id, table_id, title, description, version, created_at, updated_at
			FROM form
			WHERE account_id = ?
			ORDER BY created_at DESC`,
			middlewares.AccountID(r),
		)
		if err != nil {
			httpx.LogInternalError(w, r, "db.get_forms", err)
			return
		}
		defer rows.Close()

		forms := []model.Form{}
		for rows.Next() {
			frm := model.Form{}
			err = rows.Scan(&frm.ID, &frm.BaseID, &frm.TableID, &frm.Title, &frm.Description, &frm.Version, &frm.CreatedAt, &frm.UpdatedAt)
			if err != nil {
				httpx.LogInternalError(w, r, "db.get_forms.scan", err)
				return
			}
			forms = append(forms, frm)
		}

		render.JSON(w, r, map[string]any{
			"forms": forms,
		})
	}
}

// loadForm reads a whole form definition: the form row plus its ordered
// fields and rules.
func loadForm(ctx context.Context, db *sql.DB, formID string) (frm model.Form, err error) {
	frm.ID = formID
	err = db.QueryRowContext(ctx, `
		SELECT account_id, base_id, table_id, title, description, version, created_at, updated_at
		FROM form
		WHERE id = ?`,
		formID,
	).Scan(&frm.AccountID, &frm.BaseID, &frm.TableID, &frm.Title, &frm.Description, &frm.Version, &frm.CreatedAt, &frm.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return frm, errFormNotFound
	}
	if err != nil {
		return frm, errors.Wrap(err, "form.load")
	}

	fieldRows, err := db.QueryContext(ctx, `
		SELECT id, source_field_id, type, label, required, options
		FROM form_field
		WHERE form_id = ?
		ORDER BY position`,
		formID,
	)
	if err != nil {
		return frm, errors.Wrap(err, "form.load_fields")
	}
	defer fieldRows.Close()

	frm.Fields = []model.FieldDef{}
	for fieldRows.Next() {
		f := model.FieldDef{}
		var opts string
		err = fieldRows.Scan(&f.ID, &f.SourceFieldID, &f.Type, &f.Label, &f.Required, &opts)
		if err != nil {
			return frm, errors.Wrap(err, "form.scan_field")
		}
		if opts != "" {
			err = json.Unmarshal([]byte(opts), &f.Options)
			if err != nil {
				return frm, errors.Wrap(err, "form.parse_options")
			}
		}
		frm.Fields = append(frm.Fields, f)
	}

	ruleRows, err := db.QueryContext(ctx, `
		SELECT id, trigger_field_id, operator, compare_value, action, target_field_id
		FROM form_rule
		WHERE form_id = ?
		ORDER BY position`,
		formID,
	)
	if err != nil {
		return frm, errors.Wrap(err, "form.load_rules")
	}
	defer ruleRows.Close()

	frm.Rules = []model.Rule{}
	for ruleRows.Next() {
		rule := model.Rule{}
		err = ruleRows.Scan(&rule.ID, &rule.TriggerFieldID, &rule.Operator, &rule.CompareValue, &rule.Action, &rule.TargetFieldID)
		if err != nil {
			return frm, errors.Wrap(err, "form.scan_rule")
		}
		frm.Rules = append(frm.Rules, rule)
	}

	return frm, nil
}

func UpdateForm(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		formID := chi.URLParam(r, "id")

		frm := model.Form{}
		err := render.DecodeJSON(r.Body, &frm)
		if err != nil {
			httpx.LogStatus(w, r, http.StatusBadRequest, log.DebugLevel, "request.parse_body")
			return
		}

		if !renderDefinitionErrors(w, r, frm) {
			return
		}

		tx, err := app.BeginTx(r.Context(), nil)
		if err != nil {
			httpx.LogInternalError(w, r, "db.begin_tx", err)
			return
		}
		defer tx.Rollback()

		// the whole definition is replaced on update
		_, err = tx.ExecContext(r.Context(), `DELETE FROM form_rule WHERE form_id = ?`, formID)
		if err != nil {
			httpx.LogInternalError(w, r, "db.update_form.delete_rules", err)
			return
		}
		_, err = tx.ExecContext(r.Context(), `DELETE FROM form_field WHERE form_id = ?`, formID)
		if err != nil {
			httpx.LogInternalError(w, r, "db.update_form.delete_fields", err)
			return
		}

		err = insertDefinition(r.Context(), tx, formID, frm.Fields, frm.Rules)
		if err != nil {
			httpx.LogInternalError(w, r, "db.update_form.definition", err)
			return
		}

		res, err := tx.ExecContext(r.Context(), `
			UPDATE form
			SET
				base_id = ?,
				table_id = ?,
				title = ?,
				description = ?,
				version = version + 1,
				updated_at = ?
			WHERE id = ?
				AND account_id = ?
				AND version = ?`,
			frm.BaseID,
			frm.TableID,
			frm.Title,
			frm.Description,
			time.Now(),
			formID,
			middlewares.AccountID(r),
			frm.Version,
		)
		if err != nil {
			httpx.LogInternalError(w, r, "db.update_form", err)
			return
		}
		// optimistic lock
		n, err := res.RowsAffected()
		if err != nil {
			httpx.LogInternalError(w, r, "db.update_form.verify", err)
			return
		}
		if n < 1 {
			httpx.LogStatus(w, r, http.StatusConflict, log.DebugLevel, "db.update_form.verify.conflict")
			return
		}

		err = tx.Commit()
		if err != nil {
			httpx.LogInternalError(w, r, "db.update_form.commit", err)
			return
		}

		w.WriteHeader(http.StatusNoContent)
	}
}

func DeleteForm(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		formID := chi.URLParam(r, "id")

		tx, err := app.BeginTx(r.Context(), nil)
		if err != nil {
			httpx.LogInternalError(w, r, "db.begin_tx", err)
			return
		}
		defer tx.Rollback()

		_, err = tx.ExecContext(r.Context(), `DELETE FROM form_rule WHERE form_id = ?`, formID)
		if err != nil {
			httpx.LogInternalError(w, r, "db.delete_form.rules", err)
			return
		}
		_, err = tx.ExecContext(r.Context(), `DELETE FROM form_field WHERE form_id = ?`, formID)
		if err != nil {
			httpx.LogInternalError(w, r, "db.delete_form.fields", err)
			return
		}

		res, err := tx.ExecContext(r.Context(), `
			DELETE FROM form
			WHERE id = ?
				AND account_id = ?`,
			formID,
			middlewares.AccountID(r),
		)
		if err != nil {
			httpx.LogInternalError(w, r, "db.delete_form", err)
			return
		}
		n, err := res.RowsAffected()
		if err != nil {
			httpx.LogInternalError(w, r, "db.delete_form.verify", err)
			return
		}
		if n < 1 {
			httpx.LogNotFound(w, r, "delete_form", formID)
			return
		}

		err = tx.Commit()
		if err != nil {
			httpx.LogInternalError(w, r, "db.delete_form.commit", err)
			return
		}

		w.WriteHeader(http.StatusNoContent)
	}
}

func ListSubmissions(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		formID := chi.URLParam(r, "id")

		var owned bool
		err := app.QueryRowContext(r.Context(), `
			SELECT 1 FROM form
			WHERE id = ?
				AND account_id = ?`,
			formID,
			middlewares.AccountID(r),
		).Scan(&owned)
		if errors.Is(err, sql.ErrNoRows) {
			httpx.LogNotFound(w, r, "get_submissions", formID)
			return
		}
		if err != nil {
			httpx.LogInternalError(w, r, "db.get_form", err)
			return
		}

		rows, err := app.QueryContext(r.Context(), `
			SELECT id, record_id, field_values, submitted_at, ip
			FROM submission
			WHERE form_id = ?
			ORDER BY submitted_at DESC`,
			formID,
		)
		if err != nil {
			httpx.LogInternalError(w, r, "db.get_submissions", err)
			return
		}
		defer rows.Close()

		submissions := []model.Submission{}
		for rows.Next() {
			s := model.Submission{FormID: formID}
			var values string
			err = rows.Scan(&s.ID, &s.RecordID, &values, &s.SubmittedAt, &s.IP)
			if err != nil {
				httpx.LogInternalError(w, r, "db.get_submissions.scan", err)
				return
			}
			err = json.Unmarshal([]byte(values), &s.Values)
			if err != nil {
				httpx.LogInternalError(w, r, "db.get_submissions.parse_values", err)
				return
			}
			submissions = append(submissions, s)
		}

		render.JSON(w, r, map[string]any{
			"submissions": submissions,
		})
	}
}
