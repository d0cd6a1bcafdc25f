package main

import (
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	httpSwagger "github.com/swaggo/http-swagger"

	"github.com/fkhayef/radar/docs"
	"github.com/fkhayef/radar/internal/backend"
	"github.com/fkhayef/radar/internal/chat"
	"github.com/fkhayef/radar/internal/checkin"
	"github.com/fkhayef/radar/internal/config"
	"github.com/fkhayef/radar/internal/database"
	"github.com/fkhayef/radar/internal/invite"
	"github.com/fkhayef/radar/internal/media"
	"github.com/fkhayef/radar/internal/notification"
	"github.com/fkhayef/radar/internal/profile"
	"github.com/fkhayef/radar/internal/radar"
	"github.com/fkhayef/radar/internal/realtime"
	"github.com/fkhayef/radar/internal/schema"
	mw "github.com/fkhayef/radar/pkg/middleware"
)

// @title           Radar API
// @version         1.0
// @description     Radar membership and invitation service
// @BasePath        /api/v1
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
func main() {
	// Load .env file
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	names, err := schema.Load(cfg.SchemaFile)
	if err != nil {
		log.Fatalf("Failed to load schema names: %v", err)
	}

	var client backend.Client
	if cfg.Backend == config.BackendMemory {
		client = memoryBackend(names)
		log.Println("Using in-memory backend")
	} else {
		db, err := database.NewPostgresConnection(cfg.DBDriver, cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("Failed to connect to database: %v", err)
		}
		defer db.Close()
		client = backend.NewPostgres(db)
		log.Println("Connected to database successfully")
	}

	// Realtime events are optional
	var events realtime.Publisher = realtime.Nop{}
	var history *realtime.RedisPublisher
	if cfg.RedisURL != "" {
		history, err = realtime.NewRedisPublisher(cfg.RedisURL)
		if err != nil {
			log.Printf("Realtime disabled: %v", err)
		} else {
			defer history.Close()
			events = history
		}
	}

	// Profile feature
	profileService := profile.NewService(profile.NewRepository(client, names.Profiles))
	profileHandler := profile.NewHandler(profileService)

	// Notification feature
	notificationService := notification.NewService(notification.NewRepository(client, names.Notifications))
	notificationHandler := notification.NewHandler(notificationService)

	// Radar feature
	radarRepo := radar.NewRepository(client, names, profileService)
	radarService := radar.NewService(radarRepo, client, names, chat.NewBridge(client, names), notificationService, events)
	radarHandler := radar.NewHandler(radarService)

	// Invite feature
	inviteRepo := invite.NewRepository(client, names.Invites)
	inviteService := invite.NewService(inviteRepo, client, names, radarService, notificationService, events)
	inviteHandler := invite.NewHandler(inviteService)

	// Check-in feature
	checkinService := checkin.NewService(checkin.NewRepository(client, names.CheckIns, names.ChurchCheckIns))
	checkinHandler := checkin.NewHandler(checkinService)

	// Cover uploads need object storage
	var mediaHandler *media.Handler
	if cfg.MinioEndpoint != "" {
		store, err := media.NewMinioStore(cfg.MinioEndpoint, cfg.MinioAccessKey, cfg.MinioSecretKey, cfg.MinioUseSSL)
		if err != nil {
			log.Printf("Media uploads disabled: %v", err)
		} else {
			mediaHandler = media.NewHandler(media.NewUploader(store, cfg.MediaBuckets), radarService)
		}
	}

	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	})

	docs.SwaggerInfo.Host = "localhost:" + cfg.Port
	r.Get("/swagger/*", httpSwagger.Handler(httpSwagger.URL("/swagger/doc.json")))

	// API routes
	r.Route("/api/v1", func(r chi.Router) {
		if cfg.AuthMode == config.AuthDev {
			log.Println("AUTH_MODE=dev: users are taken from X-Test-User-ID")
			r.Use(mw.TestUserMiddleware)
		} else {
			r.Use(mw.Auth([]byte(cfg.JWTSecret)))
		}

		// Mount feature routers
		r.Mount("/profiles", profileHandler.Routes())
		r.Mount("/notifications", notificationHandler.Routes())
		r.Mount("/radars", radarHandler.Routes())
		r.Mount("/invites", inviteHandler.Routes())
		r.Mount("/checkins", checkinHandler.Routes())
		if mediaHandler != nil {
			r.Mount("/media", mediaHandler.Routes())
		}
		if history != nil {
			r.Mount("/activity", realtime.NewHandler(history).Routes())
		}
	})

	log.Printf("Server starting on port %s", cfg.Port)
	if err := http.ListenAndServe(":"+cfg.Port, r); err != nil {
		log.Fatalf("Server failed to start: %v", err)
	}
}

// memoryBackend returns an empty in-process store with every table in
// names defined, for local runs without Postgres.
func memoryBackend(names *schema.Schema) *backend.Memory {
	mem := backend.NewMemory()
	for _, fam := range []schema.Family{names.Legacy, names.V2} {
		mem.DefineTable(fam.Events).
			DefineTable(fam.Participants).
			Unique(fam.Participants, "radar_id", "user_id").
			DefineTable(fam.ChatRooms).
			DefineTable(fam.ChatMembers)
	}
	for _, table := range []string{
		names.Invites, names.Notifications, names.Profiles, names.Churches,
		names.Dioceses, names.CheckIns, names.ChurchCheckIns,
	} {
		mem.DefineTable(table)
	}
	return mem
}
