package handlers

import (
	"time"

	"task-calendar/backend/internal/identity"
	"task-calendar/backend/internal/middleware"
	"task-calendar/backend/internal/monitoring"
	"task-calendar/backend/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// RouterDeps carries everything the HTTP surface needs. Identity may be nil
// when the identity provider does not support the relayed sign-in flows.
type RouterDeps struct {
	Tasks       services.TaskService
	Attachments services.AttachmentService
	Workspaces  services.WorkspaceService
	Verifier    identity.TokenVerifier
	Identity    IdentityClient
	Listeners   *identity.Listeners
	Health      *monitoring.HealthChecker
	RateLimiter *middleware.RateLimiter

	AllowedOrigins []string
	SiteURL        string
	Cookies        CookieOptions
	MaxFileSize    int64
	Location       *time.Location
	Log            logrus.FieldLogger
}

func SetupRouter(deps RouterDeps) *gin.Engine {
	log := deps.Log
	if log == nil {
		log = logrus.StandardLogger()
	}

	router := gin.New()
	router.Use(
		middleware.RequestID(),
		middleware.Logging(log),
		middleware.RecoveryWithLog(log),
		middleware.CORS(deps.AllowedOrigins),
		monitoring.MetricsMiddleware(),
	)

	if deps.Health != nil {
		router.GET("/health", deps.Health.HealthHandler())
		router.GET("/ready", deps.Health.ReadinessHandler())
	}
	router.GET("/live", monitoring.LivenessHandler())
	router.GET("/metrics", monitoring.MetricsHandler())

	api := router.Group("/api")
	if deps.RateLimiter != nil {
		api.Use(deps.RateLimiter.Middleware())
	}
	api.Use(middleware.Authenticate(deps.Verifier, log))

	if deps.Identity != nil {
		auth := NewAuthHandler(deps.Identity, deps.Workspaces, deps.Listeners, deps.SiteURL, deps.Cookies, log)
		authGroup := api.Group("/auth")
		authGroup.POST("/signup", auth.SignUp)
		authGroup.POST("/signin", auth.SignIn)
		authGroup.POST("/refresh", auth.Refresh)
		authGroup.POST("/resend", auth.Resend)
		authGroup.GET("/oauth/:provider", auth.OAuthStart)
		authGroup.GET("/callback", auth.Callback)
		authGroup.POST("/signout", auth.SignOut)
		authGroup.GET("/me", middleware.RequireSession(), auth.Me)
	}

	workspaces := NewWorkspaceHandler(deps.Workspaces, deps.Cookies, log)
	api.POST("/workspaces/login", workspaces.Login)
	api.POST("/workspaces", workspaces.Create)
	api.POST("/workspaces/logout", workspaces.Logout)

	scoped := api.Group("")
	scoped.Use(middleware.RequireWorkspace(deps.Workspaces, log))
	scoped.GET("/workspace", workspaces.Current)

	tasks := NewTaskHandler(deps.Tasks, log)
	taskGroup := scoped.Group("/tasks")
	taskGroup.POST("", tasks.CreateTask)
	taskGroup.GET("", tasks.GetTasks)
	taskGroup.GET("/:id", tasks.GetTaskByID)
	taskGroup.PUT("/:id", tasks.UpdateTask)
	taskGroup.PATCH("/:id", tasks.UpdateTask)
	taskGroup.DELETE("/:id", tasks.DeleteTask)
	taskGroup.POST("/:id/toggle", tasks.ToggleStatus)
	taskGroup.POST("/:id/move", tasks.MoveToColumn)

	attachments := NewAttachmentHandler(deps.Attachments, deps.MaxFileSize, log)
	taskGroup.POST("/:id/attachments", attachments.Upload)
	taskGroup.GET("/:id/attachments", attachments.List)
	scoped.GET("/attachments/:attachment_id/download", attachments.Download)
	scoped.DELETE("/attachments/:attachment_id", attachments.Remove)

	views := NewViewHandler(deps.Tasks, deps.Location, log)
	viewGroup := scoped.Group("/views")
	viewGroup.GET("/dashboard", views.Dashboard)
	viewGroup.GET("/calendar", views.Calendar)
	viewGroup.GET("/board", views.Board)

	return router
}
