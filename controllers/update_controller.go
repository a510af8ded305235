package controllers

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"volunteerops/app"
	"volunteerops/logger"
)

type UpdateController struct{ *Srv }

func NewUpdateController(s *Srv) *UpdateController { return &UpdateController{Srv: s} }

// GET /admin/update
func (uc *UpdateController) UpdatePage(c *gin.Context) {
	uc.render(c, "update.html", gin.H{
		"Current": uc.Cfg.AppVersion,
		"FeedURL": uc.Cfg.UpdateFeedURL,
	})
}

// POST /admin/update
func (uc *UpdateController) UpdateAction(c *gin.Context) {
	const target = "/admin/update"
	ctx := c.Request.Context()
	lang := app.Lang(c)
	switch c.PostForm("action") {
	case "check":
		rel, newer, err := uc.Updater.Check(ctx)
		if err != nil {
			logger.GetLogger(ctx).WithError(err).Warn("update check failed")
			uc.flash(c, "error", app.T(lang, "err.update_failed")+" "+err.Error())
			break
		}
		if newer {
			uc.flash(c, "info", fmt.Sprintf("%s %s", app.T(lang, "ok.update_found"), rel.Version))
		} else {
			uc.flash(c, "success", app.T(lang, "ok.up_to_date"))
		}
	case "run":
		rep, err := uc.Updater.Run(ctx)
		steps := make([]string, 0, len(rep.Completed))
		for _, s := range rep.Completed {
			steps = append(steps, string(s))
		}
		uc.audit(c, "self_update", "system", rep.To, fmt.Sprintf("from=%s completed=%s failed=%s", rep.From, strings.Join(steps, ","), rep.FailedStep))
		switch {
		case err != nil:
			msg := fmt.Sprintf("%s %s: %s", app.T(lang, "err.update_failed"), rep.FailedStep, rep.Error)
			if rep.BackupPath != "" {
				msg += " (backup: " + rep.BackupPath + ")"
			}
			uc.flash(c, "error", msg)
		case rep.UpToDate:
			uc.flash(c, "success", app.T(lang, "ok.up_to_date"))
		default:
			uc.flash(c, "success", fmt.Sprintf("%s %s → %s", app.T(lang, "ok.updated"), rep.From, rep.To))
		}
	default:
		uc.fail(c, errUnknownAction, target)
		return
	}
	c.Redirect(http.StatusSeeOther, target)
}
