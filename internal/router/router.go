package router

import (
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mesa-pos/api/internal/config"
	"github.com/mesa-pos/api/internal/database"
	"github.com/mesa-pos/api/internal/enum"
	"github.com/mesa-pos/api/internal/handler"
	mw "github.com/mesa-pos/api/internal/middleware"
	"github.com/mesa-pos/api/internal/service"
	"github.com/mesa-pos/api/internal/ws"
)

// New creates a Chi router with all application routes wired up.
// Applies authentication and role-based middleware as needed.
func New(cfg *config.Config, queries *database.Queries, pool *pgxpool.Pool, hub *ws.Hub) chi.Router {
	r := chi.NewRouter()

	// Standard middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// CORS configuration
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{
			"http://localhost:5173", // SvelteKit dev server
		},
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300, // 5 minutes
	}))

	// Public routes
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok","version":"1.0.0"}`))
	})

	// Auth routes (public)
	authHandler := handler.NewAuthHandler(queries, cfg.JWTSecret)
	authHandler.RegisterRoutes(r)

	// WebSocket route (handles auth internally via query param)
	r.Get("/ws/orders", func(w http.ResponseWriter, r *http.Request) {
		ws.ServeWS(hub, cfg.JWTSecret, w, r)
	})

	// Protected routes (require authentication)
	r.Group(func(r chi.Router) {
		r.Use(mw.Authenticate(cfg.JWTSecret))

		// Orders: open to every authenticated actor, including table
		// sessions. Per-handler checks keep customers on their own table.
		orderService := service.NewOrderService(pool, func(db database.DBTX) service.OrderStore {
			return database.New(db)
		})
		orderHandler := handler.NewOrderHandler(orderService, hub)
		r.Route("/orders", orderHandler.RegisterRoutes)

		// Payments: cashiers settle, admins can step in.
		r.Group(func(r chi.Router) {
			r.Use(mw.RequireRole(enum.UserRoleCashier, enum.UserRoleAdmin))
			paymentService := service.NewPaymentService(pool, func(db database.DBTX) service.PaymentStore {
				return database.New(db)
			})
			paymentHandler := handler.NewPaymentHandler(paymentService, queries, hub)
			r.Route("/payments", paymentHandler.RegisterRoutes)
		})

		// Catalog reads are open to every authenticated actor (diners
		// browse the menu too); writes are gated inside each handler's
		// RegisterRoutes.
		categoryHandler := handler.NewCategoryHandler(queries)
		r.Route("/categories", categoryHandler.RegisterRoutes)

		productHandler := handler.NewProductHandler(queries)
		r.Route("/products", productHandler.RegisterRoutes)

		ingredientHandler := handler.NewIngredientHandler(queries)
		r.Route("/ingredients", ingredientHandler.RegisterRoutes)

		tableHandler := handler.NewTableHandler(queries)
		r.Route("/tables", tableHandler.RegisterRoutes)

		// User administration is admin-only.
		r.Group(func(r chi.Router) {
			r.Use(mw.RequireRole(enum.UserRoleAdmin))
			userHandler := handler.NewUserHandler(queries)
			r.Route("/users", userHandler.RegisterRoutes)
		})

		// Reports: admins and cashiers (end-of-day close).
		r.Group(func(r chi.Router) {
			r.Use(mw.RequireRole(enum.UserRoleAdmin, enum.UserRoleCashier))
			reportHandler := handler.NewReportHandler(queries)
			r.Route("/reports", reportHandler.RegisterRoutes)
		})
	})

	log.Println("Router initialized with all handlers")
	return r
}
