package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kixikila/kixikila-backend/api/controllers"
	"github.com/kixikila/kixikila-backend/api/middleware"
	"github.com/kixikila/kixikila-backend/internal/auth"
	"github.com/kixikila/kixikila-backend/internal/cycle"
	"github.com/kixikila/kixikila-backend/internal/groups"
	"github.com/kixikila/kixikila-backend/internal/memberships"
	"github.com/kixikila/kixikila-backend/internal/notifications"
	"github.com/kixikila/kixikila-backend/pkg/auth/session"
	"github.com/kixikila/kixikila-backend/pkg/config"
	"github.com/kixikila/kixikila-backend/pkg/enums"
	"github.com/kixikila/kixikila-backend/pkg/logger"
	"github.com/kixikila/kixikila-backend/pkg/redis"
)

// Deps bundles everything the HTTP surface needs. Pingers may be nil when a
// dependency is not wired (tests, partial environments); readiness skips them.
type Deps struct {
	Config  *config.Config
	Logger  *logger.Logger
	Redis   *redis.Client
	Pingers map[string]controllers.Pinger

	Sessions          session.AccessSessionChecker
	AuthService       auth.Service
	RegisterService   auth.RegisterService
	GroupService      groups.Service
	MembershipService memberships.Service
	MembershipChecker middleware.MembershipChecker
	CycleService      cycle.Service
	NotifyService     notifications.Service
}

func NewRouter(d Deps) http.Handler {
	cfg := d.Config
	logg := d.Logger

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(),
	)

	loginPolicy := middleware.NewAuthRateLimitPolicy(
		"login",
		cfg.AuthRateLimit.LoginWindow,
		cfg.AuthRateLimit.LoginIPLimit,
		cfg.AuthRateLimit.LoginEmailLimit,
	)
	registerPolicy := middleware.NewAuthRateLimitPolicy(
		"register",
		cfg.AuthRateLimit.RegisterWindow,
		cfg.AuthRateLimit.RegisterIPLimit,
		cfg.AuthRateLimit.RegisterEmailLimit,
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, d.Pingers))
	})
	r.Handle("/metrics", promhttp.Handler())

	var rateLimitStore middleware.AuthRateLimitStore
	if d.Redis != nil {
		rateLimitStore = d.Redis
	}

	r.Route("/api/v1/auth", func(r chi.Router) {
		r.With(middleware.AuthRateLimit(loginPolicy, rateLimitStore, logg)).Post("/login", controllers.AuthLogin(d.AuthService, logg))
		r.With(middleware.AuthRateLimit(registerPolicy, rateLimitStore, logg)).Post("/register", controllers.AuthRegister(d.RegisterService, d.AuthService, logg))
		r.Post("/refresh", controllers.AuthRefresh(d.AuthService, logg))
		r.Post("/logout", controllers.AuthLogout(d.AuthService, cfg.JWT, logg))
	})

	var idempotencyStore redis.IdempotencyStore
	if d.Redis != nil {
		idempotencyStore = d.Redis
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, d.Sessions, logg))
		r.Use(middleware.Idempotency(idempotencyStore, logg))

		r.Route("/groups", func(r chi.Router) {
			r.Get("/", controllers.ListPublicGroups(d.GroupService, logg))
			r.Post("/", controllers.CreateGroup(d.GroupService, logg))
			r.Get("/mine", controllers.ListMyGroups(d.GroupService, logg))

			r.Route("/{groupID}", func(r chi.Router) {
				r.Get("/", controllers.GetGroup(d.GroupService, logg))
				r.Patch("/", controllers.UpdateGroup(d.GroupService, logg))
				r.Post("/activate", controllers.ActivateGroup(d.GroupService, logg))
				r.Post("/join", controllers.JoinGroup(d.GroupService, logg))
				r.Post("/leave", controllers.LeaveGroup(d.GroupService, logg))

				r.Get("/members", controllers.ListGroupMembers(d.MembershipService, logg))
				r.Route("/members/{userID}", func(r chi.Router) {
					r.Use(middleware.RequireGroupRoles(d.MembershipChecker, logg, enums.MemberRoleCreator, enums.MemberRoleAdmin))
					r.Post("/approve", controllers.ApproveMember(d.MembershipService, logg))
					r.Post("/suspend", controllers.SuspendMember(d.MembershipService, logg))
					r.Post("/reinstate", controllers.ReinstateMember(d.MembershipService, logg))
					r.Post("/promote", controllers.PromoteMember(d.MembershipService, logg))
				})

				r.Get("/contributions", controllers.ListContributions(d.CycleService, logg))
				r.Post("/contributions", controllers.RecordContribution(d.CycleService, logg))
				r.Get("/cycle", controllers.GetCycleStatus(d.CycleService, logg))
				r.Post("/cycle/advance", controllers.AdvanceCycle(d.CycleService, logg))
				r.Get("/payouts", controllers.ListPayouts(d.CycleService, logg))
				r.Post("/payouts/draw", controllers.DrawPayout(d.CycleService, logg))
			})
		})

		r.Route("/notifications", func(r chi.Router) {
			r.Get("/", controllers.ListNotifications(d.NotifyService, logg))
			r.Get("/unread-count", controllers.UnreadNotificationCount(d.NotifyService, logg))
			r.Post("/{notificationID}/read", controllers.MarkNotificationRead(d.NotifyService, logg))
			r.Post("/read-all", controllers.MarkAllNotificationsRead(d.NotifyService, logg))
		})
	})

	return r
}
