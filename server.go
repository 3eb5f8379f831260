package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/zawadi/eventfund_backend/config"
	"github.com/zawadi/eventfund_backend/middlewares"
	"github.com/zawadi/eventfund_backend/models"
	"github.com/zawadi/eventfund_backend/models/reports"
	"github.com/zawadi/eventfund_backend/utils"
	"github.com/zawadi/eventfund_backend/workflow"
	"gorm.io/gorm"
)

const defaultPort = "8080"

type RateLimiter struct {
	client *redis.Client
	limit  int64
	window time.Duration
}

func getRedisClient(redisAddress string) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr: redisAddress,
	})
}

func NewRateLimiter(client *redis.Client, limit int64, window time.Duration) *RateLimiter {
	return &RateLimiter{
		client: client,
		limit:  limit,
		window: window,
	}
}

func (rl *RateLimiter) RateLimitMiddleware(c *gin.Context) {
	key := c.ClientIP()

	exists, err := rl.client.Exists(c.Request.Context(), key).Result()
	if err != nil {
		c.AbortWithError(http.StatusInternalServerError, err)
		return
	}
	if exists == 0 {
		if err := rl.client.Set(c.Request.Context(), key, 1, rl.window).Err(); err != nil {
			c.AbortWithError(http.StatusInternalServerError, err)
			return
		}
		c.Next()
		return
	}

	count, err := rl.client.Incr(c.Request.Context(), key).Result()
	if err != nil {
		c.AbortWithError(http.StatusInternalServerError, err)
		return
	}
	if count > rl.limit {
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
			"error": fmt.Sprintf("Rate limit exceeded. Try again in %d seconds", int(rl.window.Seconds())),
		})
		return
	}
	c.Next()
}

// writeError maps domain errors onto the wire contract: validation failures
// come back field-keyed with a 400, unknown or unowned records come back 404
// (never 403, ownership must not leak existence), everything else is a 500.
func writeError(c *gin.Context, err error) {
	if ve, ok := utils.AsValidationError(err); ok {
		c.JSON(http.StatusBadRequest, ve.Fields)
		return
	}
	var be *utils.BudgetExceededError
	if errors.As(err, &be) {
		c.JSON(http.StatusBadRequest, gin.H{"non_field_errors": []string{be.Message}})
		return
	}
	if errors.Is(err, utils.ErrorRecordNotFound) || errors.Is(err, gorm.ErrRecordNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}
	logger := config.GetLogger()
	config.LogError(logger, "server.go", "writeError", c.FullPath(), nil, err)
	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
}

// writeBindError surfaces gin binding failures in the same field-keyed 400
// shape as domain validation errors.
func writeBindError(c *gin.Context, err error) {
	var ve validator.ValidationErrors
	if errors.As(err, &ve) {
		c.JSON(http.StatusBadRequest, utils.ProcessValidationErrors(ve))
		return
	}
	c.JSON(http.StatusBadRequest, gin.H{"non_field_errors": []string{"Invalid request body."}})
}

func pathId(c *gin.Context) (int, bool) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil || id <= 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return 0, false
	}
	return id, true
}

func queryIntPtr(c *gin.Context, name string) *int {
	if v := c.Query(name); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return &n
		}
	}
	return nil
}

func registerAuthRoutes(r *gin.Engine) {
	r.POST("/auth/register", func(c *gin.Context) {
		var input models.NewUser
		if err := c.ShouldBindJSON(&input); err != nil {
			writeBindError(c, err)
			return
		}
		user, err := models.RegisterUser(c.Request.Context(), &input)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusCreated, user)
	})

	r.POST("/auth/login", func(c *gin.Context) {
		var input struct {
			Username string `json:"username" binding:"required"`
			Password string `json:"password" binding:"required"`
		}
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"non_field_errors": []string{"Username and password are required."}})
			return
		}
		info, err := models.Login(c.Request.Context(), input.Username, input.Password)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, info)
	})
}

func registerAccountRoutes(g *gin.RouterGroup) {
	g.POST("/auth/logout", func(c *gin.Context) {
		if _, err := models.Logout(c.Request.Context()); err != nil {
			writeError(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	})

	g.POST("/auth/change-password", func(c *gin.Context) {
		var input struct {
			OldPassword string `json:"old_password" binding:"required"`
			NewPassword string `json:"new_password" binding:"required"`
		}
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"non_field_errors": []string{"Old and new passwords are required."}})
			return
		}
		if _, err := models.ChangePassword(c.Request.Context(), input.OldPassword, input.NewPassword); err != nil {
			writeError(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	})

	g.GET("/settings", func(c *gin.Context) {
		settings, err := models.GetUserSettings(c.Request.Context())
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, settings)
	})

	g.PUT("/settings", func(c *gin.Context) {
		var input models.UpdateUserSettingsInput
		if err := c.ShouldBindJSON(&input); err != nil {
			writeBindError(c, err)
			return
		}
		settings, err := models.UpdateUserSettings(c.Request.Context(), &input)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, settings)
	})
}

func registerEventRoutes(g *gin.RouterGroup) {
	g.GET("/events", func(c *gin.Context) {
		events, err := models.GetEvents(c.Request.Context())
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, events)
	})

	g.POST("/events", func(c *gin.Context) {
		var input models.NewEvent
		if err := c.ShouldBindJSON(&input); err != nil {
			writeBindError(c, err)
			return
		}
		event, err := models.CreateEvent(c.Request.Context(), &input)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusCreated, event)
	})

	g.GET("/events/:id", func(c *gin.Context) {
		id, ok := pathId(c)
		if !ok {
			return
		}
		event, err := models.GetEvent(c.Request.Context(), id)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, event)
	})

	g.GET("/events/:id/metrics", func(c *gin.Context) {
		id, ok := pathId(c)
		if !ok {
			return
		}
		event, err := models.GetEvent(c.Request.Context(), id)
		if err != nil {
			writeError(c, err)
			return
		}
		metrics, err := event.Metrics(c.Request.Context())
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, metrics)
	})

	g.PUT("/events/:id", func(c *gin.Context) {
		id, ok := pathId(c)
		if !ok {
			return
		}
		var input models.NewEvent
		if err := c.ShouldBindJSON(&input); err != nil {
			writeBindError(c, err)
			return
		}
		event, err := models.UpdateEvent(c.Request.Context(), id, &input)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, event)
	})

	g.DELETE("/events/:id", func(c *gin.Context) {
		id, ok := pathId(c)
		if !ok {
			return
		}
		if _, err := models.DeleteEvent(c.Request.Context(), id); err != nil {
			writeError(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	})
}

func registerBudgetRoutes(g *gin.RouterGroup) {
	g.GET("/budget-items", func(c *gin.Context) {
		items, err := models.GetBudgetItems(c.Request.Context(), queryIntPtr(c, "event_id"))
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, items)
	})

	g.POST("/budget-items", func(c *gin.Context) {
		var input models.NewBudgetItem
		if err := c.ShouldBindJSON(&input); err != nil {
			writeBindError(c, err)
			return
		}
		item, err := models.CreateBudgetItem(c.Request.Context(), &input)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusCreated, item)
	})

	g.GET("/budget-items/:id", func(c *gin.Context) {
		id, ok := pathId(c)
		if !ok {
			return
		}
		item, err := models.GetBudgetItem(c.Request.Context(), id)
		if err != nil {
			writeError(c, err)
			return
		}
		view, err := item.View(c.Request.Context())
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, view)
	})

	g.PUT("/budget-items/:id", func(c *gin.Context) {
		id, ok := pathId(c)
		if !ok {
			return
		}
		var input models.NewBudgetItem
		if err := c.ShouldBindJSON(&input); err != nil {
			writeBindError(c, err)
			return
		}
		item, err := models.UpdateBudgetItem(c.Request.Context(), id, &input)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, item)
	})

	g.DELETE("/budget-items/:id", func(c *gin.Context) {
		id, ok := pathId(c)
		if !ok {
			return
		}
		if _, err := models.DeleteBudgetItem(c.Request.Context(), id); err != nil {
			writeError(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	})

	g.GET("/tasks", func(c *gin.Context) {
		tasks, err := models.GetTasks(c.Request.Context(), queryIntPtr(c, "budget_item_id"))
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, tasks)
	})

	g.POST("/tasks", func(c *gin.Context) {
		var input models.NewTask
		if err := c.ShouldBindJSON(&input); err != nil {
			writeBindError(c, err)
			return
		}
		task, err := models.CreateTask(c.Request.Context(), &input)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusCreated, task)
	})

	g.GET("/tasks/:id", func(c *gin.Context) {
		id, ok := pathId(c)
		if !ok {
			return
		}
		task, err := models.GetTask(c.Request.Context(), id)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, task)
	})

	g.PUT("/tasks/:id", func(c *gin.Context) {
		id, ok := pathId(c)
		if !ok {
			return
		}
		var input models.NewTask
		if err := c.ShouldBindJSON(&input); err != nil {
			writeBindError(c, err)
			return
		}
		task, err := models.UpdateTask(c.Request.Context(), id, &input)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, task)
	})

	g.DELETE("/tasks/:id", func(c *gin.Context) {
		id, ok := pathId(c)
		if !ok {
			return
		}
		if _, err := models.DeleteTask(c.Request.Context(), id); err != nil {
			writeError(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	})
}

func registerVendorRoutes(g *gin.RouterGroup) {
	g.GET("/service-providers", func(c *gin.Context) {
		providers, err := models.GetServiceProviders(c.Request.Context(), queryIntPtr(c, "budget_item_id"))
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, providers)
	})

	g.POST("/service-providers", func(c *gin.Context) {
		var input models.NewServiceProvider
		if err := c.ShouldBindJSON(&input); err != nil {
			writeBindError(c, err)
			return
		}
		provider, err := models.CreateServiceProvider(c.Request.Context(), &input)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusCreated, provider)
	})

	g.GET("/service-providers/:id", func(c *gin.Context) {
		id, ok := pathId(c)
		if !ok {
			return
		}
		provider, err := models.GetServiceProvider(c.Request.Context(), id)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, provider)
	})

	g.PUT("/service-providers/:id", func(c *gin.Context) {
		id, ok := pathId(c)
		if !ok {
			return
		}
		var input models.NewServiceProvider
		if err := c.ShouldBindJSON(&input); err != nil {
			writeBindError(c, err)
			return
		}
		provider, err := models.UpdateServiceProvider(c.Request.Context(), id, &input)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, provider)
	})

	g.DELETE("/service-providers/:id", func(c *gin.Context) {
		id, ok := pathId(c)
		if !ok {
			return
		}
		if _, err := models.DeleteServiceProvider(c.Request.Context(), id); err != nil {
			writeError(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	})

	g.GET("/vendor-payments", func(c *gin.Context) {
		payments, err := models.GetVendorPayments(c.Request.Context(),
			queryIntPtr(c, "service_provider_id"), queryIntPtr(c, "budget_item_id"))
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, payments)
	})

	g.POST("/vendor-payments", func(c *gin.Context) {
		var input models.NewVendorPayment
		if err := c.ShouldBindJSON(&input); err != nil {
			writeBindError(c, err)
			return
		}
		payment, err := models.CreateVendorPayment(c.Request.Context(), &input)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusCreated, payment)
	})

	g.GET("/vendor-payments/:id", func(c *gin.Context) {
		id, ok := pathId(c)
		if !ok {
			return
		}
		payment, err := models.GetVendorPayment(c.Request.Context(), id)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, payment)
	})

	g.PUT("/vendor-payments/:id", func(c *gin.Context) {
		id, ok := pathId(c)
		if !ok {
			return
		}
		var input models.NewVendorPayment
		if err := c.ShouldBindJSON(&input); err != nil {
			writeBindError(c, err)
			return
		}
		payment, err := models.UpdateVendorPayment(c.Request.Context(), id, &input)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, payment)
	})

	g.DELETE("/vendor-payments/:id", func(c *gin.Context) {
		id, ok := pathId(c)
		if !ok {
			return
		}
		if _, err := models.DeleteVendorPayment(c.Request.Context(), id); err != nil {
			writeError(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	})
}

func registerPledgeRoutes(g *gin.RouterGroup) {
	g.GET("/donors", func(c *gin.Context) {
		donors, err := models.GetDonors(c.Request.Context())
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, donors)
	})

	g.POST("/donors", func(c *gin.Context) {
		var input models.NewDonor
		if err := c.ShouldBindJSON(&input); err != nil {
			writeBindError(c, err)
			return
		}
		donor, err := models.CreateDonor(c.Request.Context(), &input)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusCreated, donor)
	})

	g.GET("/donors/:id", func(c *gin.Context) {
		id, ok := pathId(c)
		if !ok {
			return
		}
		donor, err := models.GetDonor(c.Request.Context(), id)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, donor)
	})

	g.PUT("/donors/:id", func(c *gin.Context) {
		id, ok := pathId(c)
		if !ok {
			return
		}
		var input models.NewDonor
		if err := c.ShouldBindJSON(&input); err != nil {
			writeBindError(c, err)
			return
		}
		donor, err := models.UpdateDonor(c.Request.Context(), id, &input)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, donor)
	})

	g.DELETE("/donors/:id", func(c *gin.Context) {
		id, ok := pathId(c)
		if !ok {
			return
		}
		if _, err := models.DeleteDonor(c.Request.Context(), id); err != nil {
			writeError(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	})

	g.GET("/pledges", func(c *gin.Context) {
		pledges, err := models.GetPledges(c.Request.Context(), queryIntPtr(c, "event_id"))
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, pledges)
	})

	g.POST("/pledges", func(c *gin.Context) {
		var input models.NewPledge
		if err := c.ShouldBindJSON(&input); err != nil {
			writeBindError(c, err)
			return
		}
		pledge, err := models.CreatePledge(c.Request.Context(), &input)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusCreated, pledge)
	})

	g.GET("/pledges/:id", func(c *gin.Context) {
		id, ok := pathId(c)
		if !ok {
			return
		}
		pledge, err := models.GetPledge(c.Request.Context(), id)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, pledge)
	})

	g.GET("/pledges/:id/breakdown", func(c *gin.Context) {
		id, ok := pathId(c)
		if !ok {
			return
		}
		pledge, err := models.GetPledge(c.Request.Context(), id)
		if err != nil {
			writeError(c, err)
			return
		}
		breakdown, err := pledge.PaymentBreakdown(c.Request.Context())
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, breakdown)
	})

	g.PUT("/pledges/:id", func(c *gin.Context) {
		id, ok := pathId(c)
		if !ok {
			return
		}
		var input models.NewPledge
		if err := c.ShouldBindJSON(&input); err != nil {
			writeBindError(c, err)
			return
		}
		pledge, err := models.UpdatePledge(c.Request.Context(), id, &input)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, pledge)
	})

	g.DELETE("/pledges/:id", func(c *gin.Context) {
		id, ok := pathId(c)
		if !ok {
			return
		}
		if _, err := models.DeletePledge(c.Request.Context(), id); err != nil {
			writeError(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	})
}

func registerPaymentRoutes(g *gin.RouterGroup) {
	g.GET("/mobile-payments", func(c *gin.Context) {
		payments, err := models.GetMobileMoneyPayments(c.Request.Context(),
			queryIntPtr(c, "event_id"), queryIntPtr(c, "pledge_id"))
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, payments)
	})

	g.POST("/mobile-payments", func(c *gin.Context) {
		var input models.NewMobileMoneyPayment
		if err := c.ShouldBindJSON(&input); err != nil {
			writeBindError(c, err)
			return
		}
		payment, err := models.CreateMobileMoneyPayment(c.Request.Context(), &input)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusCreated, payment)
	})

	g.GET("/mobile-payments/:id", func(c *gin.Context) {
		id, ok := pathId(c)
		if !ok {
			return
		}
		payment, err := models.GetMobileMoneyPayment(c.Request.Context(), id)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, payment)
	})

	g.POST("/mobile-payments/:id/attach", func(c *gin.Context) {
		id, ok := pathId(c)
		if !ok {
			return
		}
		var input struct {
			PledgeId int `json:"pledge_id" binding:"required"`
		}
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"non_field_errors": []string{"Pledge id is required."}})
			return
		}
		payment, err := models.AttachMobileMoneyPayment(c.Request.Context(), id, input.PledgeId)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, payment)
	})

	g.DELETE("/mobile-payments/:id", func(c *gin.Context) {
		id, ok := pathId(c)
		if !ok {
			return
		}
		if _, err := models.DeleteMobileMoneyPayment(c.Request.Context(), id); err != nil {
			writeError(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	})

	g.GET("/manual-payments", func(c *gin.Context) {
		payments, err := models.GetManualPayments(c.Request.Context(),
			queryIntPtr(c, "event_id"), queryIntPtr(c, "pledge_id"))
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, payments)
	})

	g.POST("/manual-payments", func(c *gin.Context) {
		var input models.NewManualPayment
		if err := c.ShouldBindJSON(&input); err != nil {
			writeBindError(c, err)
			return
		}
		payment, err := models.CreateManualPayment(c.Request.Context(), &input)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusCreated, payment)
	})

	g.GET("/manual-payments/:id", func(c *gin.Context) {
		id, ok := pathId(c)
		if !ok {
			return
		}
		payment, err := models.GetManualPayment(c.Request.Context(), id)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, payment)
	})

	g.PUT("/manual-payments/:id", func(c *gin.Context) {
		id, ok := pathId(c)
		if !ok {
			return
		}
		var input models.NewManualPayment
		if err := c.ShouldBindJSON(&input); err != nil {
			writeBindError(c, err)
			return
		}
		payment, err := models.UpdateManualPayment(c.Request.Context(), id, &input)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, payment)
	})

	g.DELETE("/manual-payments/:id", func(c *gin.Context) {
		id, ok := pathId(c)
		if !ok {
			return
		}
		if _, err := models.DeleteManualPayment(c.Request.Context(), id); err != nil {
			writeError(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	})
}

func registerReportRoutes(g *gin.RouterGroup) {
	g.GET("/dashboard", func(c *gin.Context) {
		summary, err := reports.GetGeneralSummary(c.Request.Context())
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, summary)
	})

	g.GET("/dashboard/:id", func(c *gin.Context) {
		id, ok := pathId(c)
		if !ok {
			return
		}
		dashboard, err := reports.GetEventDashboard(c.Request.Context(), id)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, dashboard)
	})

	g.GET("/recent-activity", func(c *gin.Context) {
		entries, err := reports.GetRecentActivity(c.Request.Context())
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, entries)
	})

	g.GET("/reports/pledges.xlsx", func(c *gin.Context) {
		c.Header("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
		c.Header("Content-Disposition", "attachment; filename=pledges.xlsx")
		if err := reports.ExportPledges(c.Request.Context(), c.Writer, queryIntPtr(c, "event_id")); err != nil {
			writeError(c, err)
			return
		}
	})
}

// mpesaWebhookHandler ingests gateway notifications. The gateway retries on
// anything but 2xx, so validation failures are answered 400 (gateway bug,
// retrying won't help) while transient faults are answered 500 (retry
// welcome).
func mpesaWebhookHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		logger := config.GetLogger()

		var payload workflow.MobileMoneyNotification
		if err := c.ShouldBindJSON(&payload); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"non_field_errors": []string{"Invalid webhook payload."}})
			return
		}

		result, err := workflow.ProcessMobileMoneyNotification(c.Request.Context(), logger, &payload)
		if err != nil {
			if ve, ok := utils.AsValidationError(err); ok {
				c.JSON(http.StatusBadRequest, ve.Fields)
				return
			}
			config.LogError(logger, "server.go", "mpesaWebhookHandler", "ProcessMobileMoneyNotification", payload, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "transient failure, retry"})
			return
		}
		c.JSON(http.StatusOK, result)
	}
}

func customNotFoundHandler(c *gin.Context) {
	c.JSON(http.StatusNotFound, gin.H{"error": "route not found"})
}

func customErrorLogger(logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		// Only log when there are errors
		if len(c.Errors) > 0 {
			logger.Error(c.Errors.String())
		}
	}
}

func splitAndTrim(csv string) []string {
	if strings.TrimSpace(csv) == "" {
		return nil
	}
	parts := strings.Split(csv, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func main() {
	port := os.Getenv("API_PORT")
	if port == "" {
		// Cloud Run standard env var.
		port = os.Getenv("PORT")
	}
	if port == "" {
		port = defaultPort
	}

	logger := config.GetLogger()

	// Cloud Run sends SIGTERM on revision shutdown; handle it for graceful drain.
	sigCtx, stopSignals := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stopSignals()

	// Start the HTTP server ASAP so the platform considers the revision
	// healthy. Until DB/Redis are ready, app endpoints return 503.
	r := gin.New()
	r.Use(middlewares.CorrelationMiddleware())
	r.Use(func(c *gin.Context) {
		if c.Request.URL.Path == "/healthz" {
			c.Status(http.StatusNoContent)
			c.Abort()
			return
		}
		// Redis is optional (session revocation and caching degrade without
		// it), so readiness only gates on the database.
		if config.GetDB() == nil {
			c.AbortWithStatus(http.StatusServiceUnavailable)
			return
		}
		c.Next()
	})

	r.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	corsConfig := cors.DefaultConfig()
	// In production, require an explicit allowlist via CORS_ALLOWED_ORIGINS.
	allowedOrigins := strings.TrimSpace(os.Getenv("CORS_ALLOWED_ORIGINS"))
	if strings.EqualFold(strings.TrimSpace(os.Getenv("GO_ENV")), "production") {
		if allowedOrigins == "" {
			corsConfig.AllowOrigins = []string{}
		} else {
			corsConfig.AllowOrigins = splitAndTrim(allowedOrigins)
		}
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AddAllowMethods("GET", "POST", "PUT", "DELETE", "OPTIONS")
	corsConfig.AddAllowHeaders("token", "Origin", "Content-Type", "Authorization", "X-Correlation-Id")
	corsConfig.AddExposeHeaders("Content-Length", "Content-Disposition")
	corsConfig.AllowCredentials = true
	r.Use(cors.New(corsConfig))

	// Optional rate limiting (recommended for production).
	// Env:
	// - RATE_LIMIT_ENABLED=true
	// - RATE_LIMIT_WINDOW_SECONDS=60
	// - RATE_LIMIT_MAX_REQUESTS=600
	if strings.EqualFold(strings.TrimSpace(os.Getenv("RATE_LIMIT_ENABLED")), "true") {
		client := getRedisClient(os.Getenv("REDIS_ADDRESS"))
		limit := int64(600)
		if v := strings.TrimSpace(os.Getenv("RATE_LIMIT_MAX_REQUESTS")); v != "" {
			if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
				limit = n
			}
		}
		windowSec := int64(60)
		if v := strings.TrimSpace(os.Getenv("RATE_LIMIT_WINDOW_SECONDS")); v != "" {
			if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
				windowSec = n
			}
		}
		rateLimiter := NewRateLimiter(client, limit, time.Duration(windowSec)*time.Second)
		r.Use(rateLimiter.RateLimitMiddleware)
	}

	r.Use(middlewares.AuthMiddleware())
	r.Use(customErrorLogger(logger))
	r.Use(gin.Recovery())

	registerAuthRoutes(r)
	r.POST("/webhooks/mpesa", mpesaWebhookHandler())

	api := r.Group("/", middlewares.RequireAuth())
	registerAccountRoutes(api)
	registerEventRoutes(api)
	registerBudgetRoutes(api)
	registerVendorRoutes(api)
	registerPledgeRoutes(api)
	registerPaymentRoutes(api)
	registerReportRoutes(api)

	r.NoRoute(customNotFoundHandler)

	// Start listening immediately (startup probe is TCP based).
	srv := &http.Server{
		Addr:    ":" + port,
		Handler: r,
	}
	serverErrCh := make(chan error, 1)
	go func() {
		// ListenAndServe returns http.ErrServerClosed on graceful shutdown.
		serverErrCh <- srv.ListenAndServe()
	}()

	// Connect dependencies after the port is open.
	config.ConnectDatabaseWithRetry()
	config.ConnectRedisWithRetry()

	db := config.GetDB()
	sqlDB, _ := db.DB()
	defer func() {
		if sqlDB != nil {
			_ = sqlDB.Close()
		}
	}()
	// AutoMigrate can run DDL that blocks tables; allow running migrations as
	// a separate job instead.
	if !strings.EqualFold(strings.TrimSpace(os.Getenv("SKIP_MIGRATIONS")), "true") {
		models.MigrateTable()
	} else {
		logger.WithFields(logrus.Fields{"field": "migrations"}).Warn("SKIP_MIGRATIONS=true; skipping AutoMigrate on startup")
	}

	// Set the session isolation level to READ COMMITTED
	for attempt := 1; ; attempt++ {
		err := db.Exec("SET SESSION TRANSACTION ISOLATION LEVEL READ COMMITTED").Error
		if err == nil {
			break
		}
		sleep := time.Second * time.Duration(1<<min(attempt, 5))
		if sleep > 30*time.Second {
			sleep = 30 * time.Second
		}
		logger.WithFields(logrus.Fields{
			"field":   "database",
			"attempt": attempt,
		}).Warn("failed to set isolation level; retrying in " + sleep.String() + ": " + err.Error())
		time.Sleep(sleep)
	}

	logger.WithFields(logrus.Fields{
		"info": "Connection Established",
	}).Info("listening on http://localhost:", port)
	log.Println("Server started successfully")

	// Block until shutdown or server error.
	select {
	case <-sigCtx.Done():
		// graceful shutdown below
	case err := <-serverErrCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithFields(logrus.Fields{"field": "http"}).Error("server stopped unexpectedly: " + err.Error())
		}
	}

	// Drain HTTP requests.
	shutdownTimeout := 30 * time.Second
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithFields(logrus.Fields{"field": "http"}).Error("graceful shutdown failed: " + err.Error())
	}

	// Close Redis (best-effort).
	if rdb := config.GetRedisDB(); rdb != nil {
		_ = rdb.Close()
	}
}
