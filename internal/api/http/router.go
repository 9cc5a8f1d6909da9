package http

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	auth "github.com/mind-engage/mindengage-exams/internal/auth/middleware"
	"github.com/mind-engage/mindengage-exams/internal/exam"
	"github.com/mind-engage/mindengage-exams/internal/rbac"
	"github.com/mind-engage/mindengage-exams/internal/storage"
	syncx "github.com/mind-engage/mindengage-exams/internal/sync"
)

// Pinger is the readiness probe target, usually the *sql.DB.
type Pinger interface {
	PingContext(ctx context.Context) error
}

type RouterDeps struct {
	Engine      *exam.Engine
	Events      *syncx.EventRepo
	Attachments storage.Resolver
	Auth        *auth.AuthService
	Login       auth.LoginConfig
	CORSOrigins []string
	DB          Pinger
}

func NewRouter(d RouterDeps) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Logger, middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   d.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if d.DB != nil {
			if err := d.DB.PingContext(r.Context()); err != nil {
				http.Error(w, "db unavailable", http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
	})

	r.Route("/api", func(api chi.Router) {
		api.Post("/auth/login", auth.LoginHandler(d.Auth, d.Login))

		api.Group(func(pr chi.Router) {
			pr.Use(auth.JWTMiddleware(d.Auth))
			reg, tr, seq := d.Engine.Registry, d.Engine.Tracker, d.Engine.Sequencer

			// authoring
			pr.With(rbac.Require(rbac.PermModuleWrite)).Post("/modules", CreateModuleHandler(reg))
			pr.With(rbac.Require(rbac.PermModuleRead)).Get("/modules", ListModulesHandler(reg))
			pr.With(rbac.Require(rbac.PermModuleWrite)).Post("/modules/{moduleID}/versions", CreateDraftHandler(reg))
			pr.With(rbac.Require(rbac.PermModuleRead)).Get("/modules/{moduleID}/versions/latest", LatestPublishedHandler(reg))
			pr.With(rbac.Require(rbac.PermModuleRead)).Get("/versions/{versionID}", GetVersionHandler(reg))
			pr.With(rbac.Require(rbac.PermModuleWrite)).Put("/versions/{versionID}", UpdateDraftHandler(reg))
			pr.With(rbac.Require(rbac.PermModulePublish)).Post("/versions/{versionID}/publish", PublishVersionHandler(reg))

			// groups and assignments
			pr.With(rbac.Require(rbac.PermGroupManage)).Post("/groups", CreateGroupHandler(seq))
			pr.With(rbac.Require(rbac.PermGroupManage)).Get("/groups/{groupID}", GetGroupHandler(seq))
			pr.With(rbac.Require(rbac.PermGroupManage)).Post("/groups/{groupID}/members", AddMemberHandler(seq))
			pr.With(rbac.Require(rbac.PermGroupManage)).Delete("/groups/{groupID}/members/{memberID}", RemoveMemberHandler(seq))
			pr.With(rbac.Require(rbac.PermGroupManage)).Post("/groups/{groupID}/swap", SwapOrderHandler(seq))
			pr.With(rbac.Require(rbac.PermAssignmentWrite)).Post("/assignments", CreateAssignmentHandler(seq))

			// exam taker sessions
			pr.With(rbac.Require(rbac.PermSessionTake)).
				Post("/assignments/{assignmentID}/modules/{moduleID}/progress", StartProgressHandler(tr))
			pr.With(rbac.Require(rbac.PermSessionTake)).
				Get("/assignments/{assignmentID}/versions/{versionID}", TakerVersionHandler(tr))
			pr.With(rbac.Require(rbac.PermSessionTake)).
				Get("/assignments/{assignmentID}/groups/{groupID}/members", MemberStatesHandler(seq))
			pr.With(rbac.Require(rbac.PermSessionView)).Get("/progress/{progressID}", GetProgressHandler(tr))
			pr.With(rbac.Require(rbac.PermSessionTake)).
				Put("/progress/{progressID}/answers/{questionID}", SubmitAnswerHandler(tr, d.Engine.Answers))
			pr.With(rbac.Require(rbac.PermSessionTake)).
				Post("/progress/{progressID}/complete", CompleteModuleHandler(tr))

			if d.Events != nil {
				pr.With(rbac.Require(rbac.PermEventsRead)).Get("/events", EventsHandler(d.Events))
			}
			if d.Attachments != nil {
				pr.Route("/attachments", func(ar chi.Router) {
					ar.Use(rbac.Require(rbac.PermModuleRead, rbac.PermSessionTake))
					MountAttachments(ar, d.Attachments)
				})
			}
		})
	})
	return r
}
