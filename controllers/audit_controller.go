package controllers

import (
	"github.com/gin-gonic/gin"

	"volunteerops/db"
)

type AuditController struct{ *Srv }

func NewAuditController(s *Srv) *AuditController { return &AuditController{Srv: s} }

// GET /admin/audit?action=&entity=&actor=&page=
func (ac *AuditController) AuditPage(c *gin.Context) {
	q := db.AuditQuery{
		Action:     c.Query("action"),
		EntityType: c.Query("entity"),
		ActorID:    c.Query("actor"),
		Page:       queryInt(c, "page", 1),
		PerPage:    queryInt(c, "per_page", 100),
	}
	res, err := ac.Repo.ListAudit(c.Request.Context(), q)
	if err != nil {
		ac.renderError(c, err)
		return
	}
	ac.render(c, "audit.html", gin.H{"Entries": res.Entries, "Total": res.Total, "Query": q})
}
