package controllers

import (
	"github.com/gin-gonic/gin"

	"volunteerops/app"
	"volunteerops/db"
	"volunteerops/models"
)

type NotesController struct{ *InventoryController }

func NewNotesController(s *Srv) *NotesController {
	return &NotesController{InventoryController: NewInventoryController(s)}
}

// GET /notes?status=&priority=
func (nc *NotesController) NotesPage(c *gin.Context) {
	q := db.NotesQuery{Status: c.Query("status"), Priority: c.Query("priority")}
	notes, err := nc.Repo.ListNotes(c.Request.Context(), q)
	if err != nil {
		nc.renderError(c, err)
		return
	}
	// 部门范围之外的物品不显示
	scope, err := nc.scope(c)
	if err != nil {
		nc.renderError(c, err)
		return
	}
	if scope != nil {
		allowed := make(map[string]bool, len(scope))
		for _, id := range scope {
			allowed[id] = true
		}
		visible := notes[:0]
		for _, n := range notes {
			if n.Item == nil || n.Item.DepartmentID == nil || allowed[*n.Item.DepartmentID] {
				visible = append(visible, n)
			}
		}
		notes = visible
	}
	nc.render(c, "notes.html", gin.H{"Notes": notes, "Query": q})
}

// POST /notes
func (nc *NotesController) NotesAction(c *gin.Context) {
	target := backTo(c, "/notes")
	if c.PostForm("action") != "transition" {
		nc.fail(c, errUnknownAction, target)
		return
	}
	if !nc.requireRole(c, models.RoleShiftLeader, target) {
		return
	}
	n, err := nc.Repo.FindNoteByID(c.Request.Context(), c.PostForm("note_id"))
	if err != nil {
		nc.fail(c, err, target)
		return
	}
	if _, err := nc.loadItem(c, n.ItemID); err != nil {
		nc.fail(c, err, target)
		return
	}
	to := c.PostForm("to")
	moved, err := nc.Repo.TransitionNote(c.Request.Context(), db.NoteTransitionInput{
		NoteID:  n.ID,
		To:      to,
		ActorID: app.CurrentUser(c).ID,
		Comment: c.PostForm("comment"),
	})
	if err != nil {
		nc.fail(c, err, target)
		return
	}
	nc.audit(c, "note_transition", "inventory_note", moved.ID, n.Status+" -> "+to)
	nc.done(c, target, "ok.note_moved")
}
