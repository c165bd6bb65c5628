package routes

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"caerp/internal/authz"
	"caerp/internal/handlers"
	"caerp/internal/middleware"
)

func SetupRoutes(
	r *gin.Engine,
	authHandler *handlers.AuthHandler,
	userHandler *handlers.UserHandler,
	clientHandler *handlers.ClientHandler,
	projectHandler *handlers.ProjectHandler,
	taskHandler *handlers.TaskHandler,
	invoiceHandler *handlers.InvoiceHandler,
	reportHandler *handlers.ReportHandler,
) *gin.Engine {

	// ---- public
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.POST("/login", authHandler.Login)
	r.POST("/refresh", authHandler.Refresh)
	r.POST("/register", authHandler.Register)

	// ---- protected
	r.Use(middleware.AuthMiddleware())

	// USERS
	users := r.Group("/users")
	{
		users.GET("/me", userHandler.Me)
		users.GET("/", userHandler.List)
		users.GET("/:id", userHandler.GetByID)
		users.PUT("/:id", middleware.RequireRoles(authz.RoleManager, authz.RoleAdmin), userHandler.Update)
		users.DELETE("/:id", middleware.RequireRoles(authz.RoleAdmin), userHandler.Delete)
	}

	// CLIENTS
	clients := r.Group("/clients")
	{
		clients.POST("/", clientHandler.Create)
		clients.GET("/", clientHandler.List)
		clients.GET("/:id", clientHandler.GetByID)
		clients.PUT("/:id", clientHandler.Update)
		clients.DELETE("/:id", clientHandler.Delete)
	}

	// PROJECTS
	projects := r.Group("/projects")
	{
		projects.POST("/", projectHandler.Create)
		projects.GET("/", projectHandler.List)
		projects.GET("/:id", projectHandler.GetByID)
		projects.PUT("/:id", projectHandler.Update)
		projects.DELETE("/:id", projectHandler.Delete)

		projects.POST("/:id/notes", projectHandler.AddNote)
		projects.GET("/:id/notes", projectHandler.ListNotes)
		projects.PUT("/:id/notes/:note_id", projectHandler.EditNote)
		projects.DELETE("/:id/notes/:note_id", projectHandler.DeleteNote)

		projects.POST("/:id/documents", projectHandler.AddDocument)
		projects.GET("/:id/documents", projectHandler.ListDocuments)
	}

	// TASKS
	tasks := r.Group("/tasks",
		middleware.RequireRoles(authz.RoleStaff, authz.RoleFinance, authz.RoleManager, authz.RoleAdmin),
	)
	{
		tasks.POST("/", taskHandler.Create)
		tasks.GET("/", taskHandler.List)
		tasks.GET("/:id", taskHandler.GetByID)
		tasks.PUT("/:id", taskHandler.Update)
		tasks.DELETE("/:id", taskHandler.Delete)
		tasks.POST("/:id/status", taskHandler.ChangeStatus)
		tasks.POST("/:id/assign", taskHandler.Assign)

		tasks.POST("/:id/subtasks", taskHandler.AddSubtask)
		tasks.GET("/:id/subtasks", taskHandler.ListSubtasks)
		tasks.POST("/:id/comments", taskHandler.AddComment)
		tasks.GET("/:id/comments", taskHandler.ListComments)
		tasks.POST("/:id/attachments", taskHandler.AddAttachment)
		tasks.GET("/:id/attachments", taskHandler.ListAttachments)
		tasks.POST("/:id/time-entries", taskHandler.AddTimeEntry)
		tasks.GET("/:id/time-entries", taskHandler.ListTimeEntries)
	}

	// INVOICES (finance/mgmt/admin)
	invoices := r.Group("/invoices",
		middleware.RequireRoles(authz.RoleFinance, authz.RoleManager, authz.RoleAdmin),
	)
	{
		invoices.GET("/invoiceable", invoiceHandler.ListInvoiceable)
		invoices.POST("/totals", invoiceHandler.ComputeTotals)
		invoices.POST("/", invoiceHandler.Create)
		invoices.GET("/", invoiceHandler.List)
		invoices.GET("/:id", invoiceHandler.GetByID)
	}

	// REPORTS (finance/mgmt/admin)
	reports := r.Group("/reports",
		middleware.RequireRoles(authz.RoleFinance, authz.RoleManager, authz.RoleAdmin),
	)
	{
		reports.GET("/summary", reportHandler.Summary)
	}

	return r
}
