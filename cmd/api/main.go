package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"relay-core-integrations-layer/internal/application"
	"relay-core-integrations-layer/internal/domain"
	"relay-core-integrations-layer/internal/infrastructure/metrics"
	"relay-core-integrations-layer/internal/infrastructure/pubsub"
	"relay-core-integrations-layer/internal/infrastructure/queue"
	"relay-core-integrations-layer/internal/infrastructure/repository"
	slackinfra "relay-core-integrations-layer/internal/infrastructure/slack"
	"relay-core-integrations-layer/internal/infrastructure/worker"
	"relay-core-integrations-layer/internal/providers"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/joho/godotenv"
	redislib "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	httpSwagger "github.com/swaggo/http-swagger"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

func main() {
	// Initialize logger
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	if err := godotenv.Load(); err != nil {
		logger.Warn().Msg("⚠️  Warning: .env file not found")
	}

	// Get configuration from environment
	mongoURI := os.Getenv("MONGODB_URI")
	if mongoURI == "" {
		mongoURI = "mongodb://localhost:27017"
	}
	redisAddr := os.Getenv("REDIS_ADDR")
	if redisAddr == "" {
		redisAddr = "localhost:6379"
	}

	// Connect to MongoDB
	client, err := mongo.Connect(context.Background(), options.Client().ApplyURI(mongoURI))
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to connect to MongoDB")
	}
	defer client.Disconnect(context.Background())

	db := client.Database(os.Getenv("MONGODB_DATABASE"))

	// Connect to Redis (dispatch queue)
	redisClient := redislib.NewClient(&redislib.Options{Addr: redisAddr})
	defer redisClient.Close()

	// Initialize repositories
	integrationRepo := repository.NewMongoIntegrationRepository(db)
	associationRepo := repository.NewMongoAssociationRepository(db)
	ruleRepo := repository.NewMongoRuleRepository(client, db)
	mappingRepo := repository.NewMongoExternalMappingRepository(db)

	// Unique indexes are the schema constraints the idempotent paths rely
	// on; they must exist before the first request.
	for _, ensure := range []func(context.Context) error{
		integrationRepo.EnsureIndexes,
		associationRepo.EnsureIndexes,
		ruleRepo.EnsureIndexes,
		mappingRepo.EnsureIndexes,
	} {
		if err := ensure(context.Background()); err != nil {
			logger.Fatal().Err(err).Msg("Failed to create indexes")
		}
	}

	// Initialize infrastructure
	registry := providers.NewRegistry()
	m := metrics.New()
	associationPubSub := pubsub.NewAssociationPubSub(logger)
	taskQueue := queue.NewRedisTaskQueue(redisClient, logger)
	dispatchStore := queue.NewRedisDispatchStore(redisClient, logger)

	overwriteResolve := os.Getenv("DISPATCH_OVERWRITE_RESOLVE") == "true"
	dispatcher := application.NewDispatcher(dispatchStore, taskQueue, overwriteResolve, m, logger)

	// Initialize application services
	associationService := application.NewAssociationService(
		integrationRepo,
		associationRepo,
		registry,
		associationPubSub,
		m,
		logger,
	)
	ruleService := application.NewRuleService(
		ruleRepo,
		registry,
		dispatcher,
		m,
		logger,
	)
	mappingService := application.NewExternalMappingService(
		mappingRepo,
		registry,
		logger,
	)

	// Log new associations; subscribers see each new association at most
	// once and never the idempotent re-associations.
	subscription := associationPubSub.Subscribe(context.Background(), nil)
	go func() {
		for event := range subscription.Events {
			logger.Info().
				Str("provider", event.Integration.Provider).
				Str("integrationId", event.Integration.ID).
				Str("organizationId", event.OrganizationID).
				Str("actorId", event.ActorID).
				Msg("Integration associated with organization")
		}
	}()

	// Optional embedded executor for single-process deployments. Production
	// points an external executor at the same Redis queue instead.
	if os.Getenv("EMBEDDED_WORKER") == "true" {
		slackClient := slackinfra.NewClient(os.Getenv("SLACK_API_URL"), os.Getenv("SLACK_TOKEN"), logger)
		dispatchWorker := worker.New(redisClient, slackClient, dispatcher, logger)
		dispatchWorker.Start()
		defer dispatchWorker.Stop()
	}

	// Setup router
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
	}))
	r.Use(actorMiddleware)

	// Public routes
	// Health check - must be public for monitoring
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", m.Handler())

	// Swagger documentation - public
	r.Get("/swagger/*", httpSwagger.Handler(
		httpSwagger.URL("/swagger/doc.json"), // The URL pointing to API definition
	))
	r.Get("/swagger/doc.json", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		http.ServeFile(w, r, "./docs/swagger.json")
	})

	// Integrations and associations
	r.Post("/integrations", createIntegrationHandler(associationService, logger))
	r.Get("/integrations/{integrationID}", getIntegrationHandler(associationService, logger))
	r.Put("/organizations/{organizationID}/integrations/{integrationID}", associateHandler(associationService, logger))

	// Project alert rules
	r.Post("/projects/{projectID}/rules", createRuleHandler(ruleService, logger))
	r.Get("/projects/{projectID}/rules", listRulesHandler(ruleService, logger))
	r.Get("/projects/{projectID}/rules/{ruleID}", getRuleHandler(ruleService, logger))
	r.Put("/projects/{projectID}/rules/{ruleID}", updateRuleHandler(ruleService, logger))
	r.Delete("/projects/{projectID}/rules/{ruleID}", deleteRuleHandler(ruleService, logger))
	r.Get("/projects/{projectID}/rules/{ruleID}/activities", listRuleActivitiesHandler(ruleService, logger))

	// External identity mappings
	r.Post("/teams/{teamID}/external-teams", mapTeamHandler(mappingService, logger))
	r.Get("/teams/{teamID}/external-teams", listTeamMappingsHandler(mappingService, logger))
	r.Delete("/teams/{teamID}/external-teams/{mappingID}", unmapTeamHandler(mappingService, logger))
	r.Post("/members/{memberID}/external-users", mapUserHandler(mappingService, logger))
	r.Get("/members/{memberID}/external-users", listUserMappingsHandler(mappingService, logger))
	r.Delete("/members/{memberID}/external-users/{mappingID}", unmapUserHandler(mappingService, logger))

	// Worker callback: the external executor reports results here
	r.Post("/internal/dispatch/{token}", resolveDispatchHandler(dispatcher, logger))
	r.Get("/internal/dispatch/{token}", getDispatchHandler(dispatcher, logger))

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	server := &http.Server{Addr: ":" + port, Handler: r}
	go func() {
		logger.Info().Str("port", port).Msg("Starting API server")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
	logger.Info().Msg("Shutting down")
	server.Shutdown(context.Background())
}

// actorMiddleware extracts the acting user from the X-Actor-ID header
func actorMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if actorID := r.Header.Get("X-Actor-ID"); actorID != "" {
			r = r.WithContext(domain.WithActorID(r.Context(), actorID))
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

// writeError maps the error taxonomy onto HTTP statuses. Validation errors
// surface with per-field detail; everything else is logged and returned as a
// generic failure.
func writeError(w http.ResponseWriter, logger zerolog.Logger, err error) {
	var verrs domain.ValidationErrors
	if errors.As(err, &verrs) {
		writeJSON(w, http.StatusBadRequest, verrs.Fields())
		return
	}
	var verr *domain.ValidationError
	if errors.As(err, &verr) {
		writeJSON(w, http.StatusBadRequest, domain.ValidationErrors{verr}.Fields())
		return
	}
	var resolved *domain.AlreadyResolvedError
	if errors.As(err, &resolved) {
		writeJSON(w, http.StatusConflict, map[string]string{"error": "already resolved"})
		return
	}
	logger.Error().Err(err).Msg("Request failed")
	writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
}

type createIntegrationRequest struct {
	Provider   string         `json:"provider"`
	ExternalID string         `json:"externalId"`
	Name       string         `json:"name"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// createIntegrationHandler creates an integration, idempotent per
// (provider, externalId)
func createIntegrationHandler(service *application.AssociationService, logger zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req createIntegrationRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
			return
		}

		integration, created, err := service.CreateIntegration(r.Context(), application.CreateIntegrationInput{
			Provider:   req.Provider,
			ExternalID: req.ExternalID,
			Name:       req.Name,
			Metadata:   req.Metadata,
		})
		if err != nil {
			writeError(w, logger, err)
			return
		}

		status := http.StatusOK
		if created {
			status = http.StatusCreated
		}
		writeJSON(w, status, integration)
	}
}

// getIntegrationHandler retrieves an integration by ID
func getIntegrationHandler(service *application.AssociationService, logger zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		integrationID := chi.URLParam(r, "integrationID")

		integration, err := service.GetIntegration(r.Context(), integrationID)
		if err != nil {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "integration not found"})
			return
		}
		writeJSON(w, http.StatusOK, integration)
	}
}

type associateRequest struct {
	DefaultIdentityID string `json:"defaultIdentityId,omitempty"`
}

type associateResponse struct {
	Association *domain.OrganizationIntegration `json:"association"`
	Created     bool                            `json:"created"`
}

// associateHandler binds an integration to an organization, idempotently
func associateHandler(service *application.AssociationService, logger zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		organizationID := chi.URLParam(r, "organizationID")
		integrationID := chi.URLParam(r, "integrationID")

		var req associateRequest
		if r.ContentLength > 0 {
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
				return
			}
		}

		ctx := domain.WithOrganizationID(r.Context(), organizationID)
		assoc, created, err := service.Associate(ctx, organizationID, integrationID, req.DefaultIdentityID)
		if err != nil {
			writeError(w, logger, err)
			return
		}

		status := http.StatusOK
		if created {
			status = http.StatusCreated
		}
		writeJSON(w, status, associateResponse{Association: assoc, Created: created})
	}
}

// createRuleHandler creates a project alert rule. Rules whose actions need
// provider-side resolution come back 202 with a pending token.
func createRuleHandler(service *application.RuleService, logger zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		projectID := chi.URLParam(r, "projectID")

		var input application.RuleInput
		if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
			return
		}

		rule, err := service.CreateRule(r.Context(), projectID, input)
		if err != nil {
			writeError(w, logger, err)
			return
		}

		if rule.Status == domain.RulePending {
			writeJSON(w, http.StatusAccepted, rule)
			return
		}
		writeJSON(w, http.StatusOK, rule)
	}
}

// listRulesHandler lists a project's rules
func listRulesHandler(service *application.RuleService, logger zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		projectID := chi.URLParam(r, "projectID")

		rules, err := service.ListRules(r.Context(), projectID)
		if err != nil {
			writeError(w, logger, err)
			return
		}
		if rules == nil {
			rules = []*domain.Rule{}
		}
		writeJSON(w, http.StatusOK, rules)
	}
}

// getRuleHandler retrieves a rule by ID
func getRuleHandler(service *application.RuleService, logger zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		projectID := chi.URLParam(r, "projectID")
		ruleID := chi.URLParam(r, "ruleID")

		rule, err := service.GetRule(r.Context(), ruleID)
		if err != nil || rule.ProjectID != projectID {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "rule not found"})
			return
		}
		writeJSON(w, http.StatusOK, rule)
	}
}

// updateRuleHandler replaces a rule
func updateRuleHandler(service *application.RuleService, logger zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		projectID := chi.URLParam(r, "projectID")
		ruleID := chi.URLParam(r, "ruleID")

		var input application.RuleInput
		if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
			return
		}

		rule, err := service.UpdateRule(r.Context(), projectID, ruleID, input)
		if err != nil {
			writeError(w, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, rule)
	}
}

// deleteRuleHandler removes a rule
func deleteRuleHandler(service *application.RuleService, logger zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		projectID := chi.URLParam(r, "projectID")
		ruleID := chi.URLParam(r, "ruleID")

		if err := service.DeleteRule(r.Context(), projectID, ruleID); err != nil {
			writeError(w, logger, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// listRuleActivitiesHandler returns a rule's audit trail, oldest first
func listRuleActivitiesHandler(service *application.RuleService, logger zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ruleID := chi.URLParam(r, "ruleID")

		activities, err := service.ListActivities(r.Context(), ruleID)
		if err != nil {
			writeError(w, logger, err)
			return
		}
		if activities == nil {
			activities = []*domain.RuleActivity{}
		}
		writeJSON(w, http.StatusOK, activities)
	}
}

type mappingRequest struct {
	Provider     string `json:"provider"`
	ExternalName string `json:"externalName"`
}

type mappingResponse struct {
	Mapping any  `json:"mapping"`
	Created bool `json:"created"`
}

// mapTeamHandler records a team's external identity
func mapTeamHandler(service *application.ExternalMappingService, logger zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		teamID := chi.URLParam(r, "teamID")

		var req mappingRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
			return
		}

		mapping, created, err := service.MapTeam(r.Context(), teamID, req.Provider, req.ExternalName)
		if err != nil {
			writeError(w, logger, err)
			return
		}

		status := http.StatusOK
		if created {
			status = http.StatusCreated
		}
		writeJSON(w, status, mappingResponse{Mapping: mapping, Created: created})
	}
}

// listTeamMappingsHandler lists a team's external identities
func listTeamMappingsHandler(service *application.ExternalMappingService, logger zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		teamID := chi.URLParam(r, "teamID")

		mappings, err := service.ListTeamMappings(r.Context(), teamID)
		if err != nil {
			writeError(w, logger, err)
			return
		}
		if mappings == nil {
			mappings = []*domain.ExternalTeam{}
		}
		writeJSON(w, http.StatusOK, mappings)
	}
}

// unmapTeamHandler removes a team mapping
func unmapTeamHandler(service *application.ExternalMappingService, logger zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		mappingID := chi.URLParam(r, "mappingID")

		if err := service.UnmapTeam(r.Context(), mappingID); err != nil {
			writeError(w, logger, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// mapUserHandler records a member's external identity
func mapUserHandler(service *application.ExternalMappingService, logger zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		memberID := chi.URLParam(r, "memberID")

		var req mappingRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
			return
		}

		mapping, created, err := service.MapUser(r.Context(), memberID, req.Provider, req.ExternalName)
		if err != nil {
			writeError(w, logger, err)
			return
		}

		status := http.StatusOK
		if created {
			status = http.StatusCreated
		}
		writeJSON(w, status, mappingResponse{Mapping: mapping, Created: created})
	}
}

// listUserMappingsHandler lists a member's external identities
func listUserMappingsHandler(service *application.ExternalMappingService, logger zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		memberID := chi.URLParam(r, "memberID")

		mappings, err := service.ListUserMappings(r.Context(), memberID)
		if err != nil {
			writeError(w, logger, err)
			return
		}
		if mappings == nil {
			mappings = []*domain.ExternalUser{}
		}
		writeJSON(w, http.StatusOK, mappings)
	}
}

// unmapUserHandler removes a member mapping
func unmapUserHandler(service *application.ExternalMappingService, logger zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		mappingID := chi.URLParam(r, "mappingID")

		if err := service.UnmapUser(r.Context(), mappingID); err != nil {
			writeError(w, logger, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// resolveDispatchHandler receives the external executor's result for a token
func resolveDispatchHandler(dispatcher *application.Dispatcher, logger zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := chi.URLParam(r, "token")

		var result application.DispatchResult
		if err := json.NewDecoder(r.Body).Decode(&result); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
			return
		}

		if err := dispatcher.Resolve(r.Context(), token, result); err != nil {
			var invariant *domain.InvariantError
			if errors.As(err, &invariant) {
				writeJSON(w, http.StatusNotFound, map[string]string{"error": "unknown token"})
				return
			}
			writeError(w, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

// getDispatchHandler reports the state of a dispatch unit, used by clients
// polling a pending rule creation
func getDispatchHandler(dispatcher *application.Dispatcher, logger zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := chi.URLParam(r, "token")

		unit, ok, err := dispatcher.Get(r.Context(), token)
		if err != nil {
			writeError(w, logger, err)
			return
		}
		if !ok {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "unknown token"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"token": unit.Token,
			"state": unit.State,
		})
	}
}
