package routes

import (
	"time"

	"github.com/gin-gonic/gin"

	"volunteerops/app"
	"volunteerops/controllers"
	"volunteerops/models"
)

func RegisterRoutes(r *gin.Engine, a *app.App) {
	Register(r, controllers.GetSrv(a))
}

// Register wires every page and action onto r. Split from RegisterRoutes so
// tests can pass a Srv built without Redis.
func Register(r *gin.Engine, s *controllers.Srv) {
	// 控制器与依赖
	inv := controllers.NewInventoryController(s)
	kits := controllers.NewKitsController(s)
	notes := controllers.NewNotesController(s)
	missions := controllers.NewMissionsController(s)
	training := controllers.NewTrainingController(s)
	tasks := controllers.NewTasksController(s)
	uc := controllers.GetUserController(s)
	inviteCtl := controllers.GetInviteController(s)
	nl := controllers.NewNewsletterController(s)
	audit := controllers.NewAuditController(s)
	upd := controllers.NewUpdateController(s)

	// 复用的中间件
	authMW := app.AuthRequired(s.Sessions, s.Repo, s.Cfg)
	seenMW := app.TouchLastSeen(s.Repo, s.Sessions, 5*time.Minute)
	csrfMW := app.CSRF()

	r.GET("/healthz", s.Health)
	r.GET("/lang/:code", s.SetLanguage)

	// ------------------------------
	// 公开：登录 / 邀请注册
	// ------------------------------
	r.GET("/login", s.LoginPage)
	r.POST("/login", s.Login)
	r.GET("/invite", s.InvitePage)
	r.POST("/invite", s.AcceptInvite)

	wa := r.Group("/webauthn")
	{
		wa.POST("/register/begin", s.BeginRegistration)
		wa.POST("/register/finish", s.FinishRegistration)
		wa.POST("/login/begin", s.BeginLogin)
		wa.POST("/login/finish", s.FinishLogin)
	}

	// ------------------------------
	// 已登录
	// ------------------------------
	authed := r.Group("", authMW, seenMW, csrfMW)
	{
		authed.GET("/", s.Dashboard)
		authed.POST("/logout", s.Logout)
		authed.GET("/webauthn/whoami", s.WhoAmI)
		authed.POST("/api/credentials/add/begin", s.BeginAddCredential)
		authed.POST("/api/credentials/add/finish", s.FinishAddCredential)
		authed.GET("/api/bookings.json", inv.MyBookingsJSON)

		// 角色检查在各个 action 内部完成
		authed.GET("/inventory", inv.ItemsPage)
		authed.GET("/inventory/:id", inv.ItemPage)
		authed.POST("/inventory", inv.ItemsAction)
		authed.GET("/bookings", inv.BookingsPage)
		authed.POST("/bookings", inv.BookingsAction)

		authed.GET("/missions", missions.MissionsPage)
		authed.GET("/missions/:id", missions.MissionPage)
		authed.POST("/missions", missions.MissionsAction)
		authed.GET("/my/shifts", missions.MyShiftsPage)
		authed.GET("/leaderboard", missions.LeaderboardPage)

		authed.GET("/certificates", training.CertificatesPage)
		authed.POST("/certificates", training.CertificatesAction)
		authed.GET("/exams", training.ExamsPage)
		authed.GET("/exams/:id", training.ExamPage)
		authed.POST("/exams", training.ExamsAction)
		authed.GET("/leaderboard/training", training.TrainingLeaderboardPage)
		authed.GET("/tasks", tasks.TasksPage)
		authed.POST("/tasks", tasks.TasksAction)
	}

	leaders := authed.Group("", app.RequireRole(models.RoleShiftLeader))
	{
		leaders.GET("/kits", kits.KitsPage)
		leaders.POST("/kits", kits.KitsAction)
		leaders.GET("/notes", notes.NotesPage)
		leaders.POST("/notes", notes.NotesAction)
	}

	// ------------------------------
	// 系统管理员
	// ------------------------------
	admin := authed.Group("/admin", app.RequireRole(models.RoleSystemAdmin))
	{
		admin.GET("/users", uc.UsersPage)
		admin.POST("/users", uc.UsersAction)
		admin.GET("/departments", uc.DepartmentsPage)
		admin.POST("/departments", uc.DepartmentsAction)
		admin.POST("/invites", inviteCtl.CreateInvite)

		admin.GET("/newsletters", nl.NewslettersPage)
		admin.POST("/newsletters", nl.NewslettersAction)
		admin.GET("/email-log", nl.EmailLogPage)
		admin.POST("/email-log", nl.EmailLogAction)

		admin.GET("/audit", audit.AuditPage)
		admin.GET("/update", upd.UpdatePage)
		admin.POST("/update", upd.UpdateAction)
	}
	r.GET("/api/users/:id", authMW, app.RequireRole(models.RoleSystemAdmin), uc.GetUser)
}
