package controllers_test

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"volunteerops/db"
	"volunteerops/models"
)

func TestAdminAreaRequiresSystemAdmin(t *testing.T) {
	h := newHarness(t)
	dadmin := h.user("dadmin@example.org", models.RoleDepartmentAdmin)
	sid := h.login(dadmin)

	for _, p := range []string{"/admin/users", "/admin/departments", "/admin/newsletters", "/admin/email-log", "/admin/audit", "/admin/update"} {
		assert.Equal(t, http.StatusForbidden, h.get(sid, p).Code, p)
	}
	w := h.get(sid, "/api/users/"+dadmin.ID)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Contains(t, w.Body.String(), "forbidden")

	admin := h.user("root@example.org", models.RoleSystemAdmin)
	asid := h.login(admin)
	for _, p := range []string{"/admin/users", "/admin/departments", "/admin/newsletters", "/admin/email-log", "/admin/audit", "/admin/update"} {
		assert.Equal(t, http.StatusOK, h.get(asid, p).Code, p)
	}
	w = h.get(asid, "/api/users/"+dadmin.ID)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "dadmin@example.org")
}

func TestUserManagement(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	admin := h.user("root@example.org", models.RoleSystemAdmin)
	vol := h.user("vol@example.org", models.RoleVolunteer)
	asid, vsid := h.login(admin), h.login(vol)

	h.post(asid, "/admin/users", url.Values{"action": {"set_role"}, "user_id": {vol.ID}, "role": {models.RoleShiftLeader}})
	require.Equal(t, "success", h.lastFlash(asid).Kind)
	got, err := h.repo.FindUserByID(ctx, vol.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RoleShiftLeader, got.Role)

	h.post(asid, "/admin/users", url.Values{"action": {"set_role"}, "user_id": {vol.ID}, "role": {"emperor"}})
	assert.Equal(t, "error", h.lastFlash(asid).Kind)

	// an admin cannot demote or disable themselves
	h.post(asid, "/admin/users", url.Values{"action": {"set_role"}, "user_id": {admin.ID}, "role": {models.RoleVolunteer}})
	assert.Equal(t, "This action is not allowed in the current state.", h.lastFlash(asid).Message)
	h.post(asid, "/admin/users", url.Values{"action": {"set_active"}, "user_id": {admin.ID}, "active": {"0"}})
	assert.Equal(t, "error", h.lastFlash(asid).Kind)

	dep := &models.Department{Name: "Logistics"}
	require.NoError(t, h.repo.CreateDepartment(ctx, dep))
	h.post(asid, "/admin/users", url.Values{"action": {"grant_access"}, "user_id": {vol.ID}, "department_id": {dep.ID}})
	require.Equal(t, "success", h.lastFlash(asid).Kind)
	ids, _, err := h.repo.AccessibleDepartments(ctx, got)
	require.NoError(t, err)
	assert.Equal(t, []string{dep.ID}, ids)

	// deactivation ends every session of the user
	assert.Equal(t, http.StatusOK, h.get(vsid, "/").Code)
	h.post(asid, "/admin/users", url.Values{"action": {"set_active"}, "user_id": {vol.ID}, "active": {"0"}})
	require.Equal(t, "success", h.lastFlash(asid).Kind)
	w := h.get(vsid, "/")
	assert.Equal(t, http.StatusSeeOther, w.Code)
	assert.Equal(t, "/login", w.Header().Get("Location"))

	h.post(asid, "/admin/users", url.Values{"action": {"delete_user"}, "user_id": {vol.ID}})
	require.Equal(t, "success", h.lastFlash(asid).Kind)
	_, err = h.repo.FindUserByID(ctx, vol.ID)
	assert.ErrorIs(t, err, db.ErrNotFound)

	h.post(asid, "/admin/users", url.Values{"action": {"delete_user"}, "user_id": {admin.ID}})
	assert.Equal(t, "error", h.lastFlash(asid).Kind)

	audit, err := h.repo.ListAudit(ctx, db.AuditQuery{EntityType: "user"})
	require.NoError(t, err)
	assert.EqualValues(t, 4, audit.Total) // set_role, grant_access, set_active, delete_user
}

func TestDepartments(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	admin := h.user("root@example.org", models.RoleSystemAdmin)
	sid := h.login(admin)

	h.post(sid, "/admin/departments", url.Values{"action": {"create_department"}, "name": {"Medical"}})
	require.Equal(t, "success", h.lastFlash(sid).Kind)
	h.post(sid, "/admin/departments", url.Values{"action": {"create_department"}, "name": {"Medical"}})
	assert.Equal(t, "A record with this value already exists.", h.lastFlash(sid).Message)

	deps, err := h.repo.ListDepartments(ctx)
	require.NoError(t, err)
	require.Len(t, deps, 1)

	member := h.user("medic@example.org", models.RoleVolunteer)
	require.NoError(t, h.repo.SetUserDepartment(ctx, member.ID, &deps[0].ID))
	h.post(sid, "/admin/departments", url.Values{"action": {"delete_department"}, "department_id": {deps[0].ID}})
	assert.Equal(t, "The department still has members.", h.lastFlash(sid).Message)

	require.NoError(t, h.repo.SetUserDepartment(ctx, member.ID, nil))
	h.post(sid, "/admin/departments", url.Values{"action": {"delete_department"}, "department_id": {deps[0].ID}})
	assert.Equal(t, "Deleted.", h.lastFlash(sid).Message)
}

func TestInviteSendsMailAndCanBeAccepted(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	admin := h.user("root@example.org", models.RoleSystemAdmin)
	sid := h.login(admin)

	w := h.post(sid, "/admin/invites", url.Values{"email": {"New@Example.org"}, "role": {models.RoleShiftLeader}, "expires_days": {"3"}})
	require.Equal(t, http.StatusSeeOther, w.Code)
	assert.Equal(t, "/admin/users", w.Header().Get("Location"))

	fs := h.flashes(sid)
	require.Len(t, fs, 2)
	assert.Equal(t, "info", fs[0].Kind)
	assert.True(t, strings.HasPrefix(fs[0].Message, "http://localhost:3001/invite?token="))
	assert.Equal(t, "Invitation sent.", fs[1].Message)

	require.Len(t, h.mail.sent, 1)
	assert.Equal(t, "new@example.org", h.mail.sent[0].To)
	assert.Contains(t, h.mail.sent[0].HTML, fs[0].Message)

	logs, err := h.repo.ListEmailLogs(ctx, db.EmailLogQuery{})
	require.NoError(t, err)
	assert.EqualValues(t, 1, logs.Total)

	token := strings.TrimPrefix(fs[0].Message, "http://localhost:3001/invite?token=")
	assert.Equal(t, http.StatusOK, h.get("", "/invite?token="+token).Code)
	assert.Equal(t, http.StatusForbidden, h.get("", "/invite?token=nope").Code)

	form := url.Values{"token": {token}, "password": {"short"}, "password_confirm": {"short"}}
	assert.Equal(t, http.StatusBadRequest, h.do(httptestForm(http.MethodPost, "/invite", form), "").Code)

	form = url.Values{"token": {token}, "display_name": {"Nikos"}, "password": {"correct horse"}, "password_confirm": {"correct horse"}}
	w = h.do(httptestForm(http.MethodPost, "/invite", form), "")
	require.Equal(t, http.StatusSeeOther, w.Code)
	assert.Equal(t, "/", w.Header().Get("Location"))
	assert.Contains(t, w.Header().Get("Set-Cookie"), "app_session=")

	u, err := h.repo.FindUserByUsername(ctx, "new@example.org")
	require.NoError(t, err)
	assert.Equal(t, models.RoleShiftLeader, u.Role)
	assert.Equal(t, "Nikos", u.DisplayName)

	// the token is single use
	w = h.do(httptestForm(http.MethodPost, "/invite", form), "")
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestNewsletterAndEmailLog(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	admin := h.user("root@example.org", models.RoleSystemAdmin)
	h.user("a@example.org", models.RoleVolunteer)
	h.user("b@example.org", models.RoleVolunteer)
	sid := h.login(admin)

	h.post(sid, "/admin/newsletters", url.Values{"action": {"create"}, "subject": {"Spring drill"}, "body": {"<p>See you Saturday</p>"}})
	require.Equal(t, "success", h.lastFlash(sid).Kind)
	ns, err := h.repo.ListNewsletters(ctx)
	require.NoError(t, err)
	require.Len(t, ns, 1)

	w := h.post(sid, "/admin/newsletters", url.Values{"action": {"send"}, "newsletter_id": {ns[0].ID}})
	require.Equal(t, http.StatusSeeOther, w.Code)
	assert.Equal(t, "Newsletter sent. (3 / 3)", h.lastFlash(sid).Message)
	assert.Len(t, h.mail.sent, 3)

	// a sent newsletter is not sent twice
	h.post(sid, "/admin/newsletters", url.Values{"action": {"send"}, "newsletter_id": {ns[0].ID}})
	assert.Equal(t, "error", h.lastFlash(sid).Kind)
	assert.Len(t, h.mail.sent, 3)

	w = h.get(sid, "/admin/newsletters")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Spring drill")

	// a failed invite mail lands in the log and can be resent
	h.mail.fail = true
	h.post(sid, "/admin/invites", url.Values{"email": {"late@example.org"}})
	h.flashes(sid)
	h.mail.fail = false

	failed, err := h.repo.ListEmailLogs(ctx, db.EmailLogQuery{Status: models.EmailFailed})
	require.NoError(t, err)
	require.Len(t, failed.Logs, 1)
	assert.Equal(t, "late@example.org", failed.Logs[0].Recipient)

	h.post(sid, "/admin/email-log", url.Values{"action": {"resend"}, "log_id": {failed.Logs[0].ID}})
	assert.Equal(t, "Email sent again.", h.lastFlash(sid).Message)

	got, err := h.repo.FindEmailLog(ctx, failed.Logs[0].ID)
	require.NoError(t, err)
	assert.Equal(t, models.EmailSent, got.Status)
	assert.Equal(t, 2, got.Attempts)

	w = h.get(sid, "/admin/email-log?q=late")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "late@example.org")
}

func TestSelfUpdateStopsAtFailingStep(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	admin := h.user("root@example.org", models.RoleSystemAdmin)
	sid := h.login(admin)

	h.post(sid, "/admin/update", url.Values{"action": {"check"}})
	f := h.lastFlash(sid)
	assert.Equal(t, "info", f.Kind)
	assert.Equal(t, "A new version is available. 3.1.0", f.Message)
	assert.Empty(t, h.updateCalls)

	w := h.post(sid, "/admin/update", url.Values{"action": {"run"}})
	require.Equal(t, http.StatusSeeOther, w.Code)
	assert.Equal(t, "/admin/update", w.Header().Get("Location"))
	assert.Equal(t, []string{"backup", "download", "extract"}, h.updateCalls)

	f = h.lastFlash(sid)
	assert.Equal(t, "error", f.Kind)
	assert.Contains(t, f.Message, "extract")
	assert.Contains(t, f.Message, "corrupt archive")
	assert.Contains(t, f.Message, "/backups/b.zip")

	audit, err := h.repo.ListAudit(ctx, db.AuditQuery{Action: "self_update"})
	require.NoError(t, err)
	require.EqualValues(t, 1, audit.Total)
	assert.Contains(t, audit.Entries[0].Details, "failed=extract")

	w = h.get(sid, "/admin/audit?action=self_update")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "self_update")
}
