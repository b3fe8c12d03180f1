package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/jwtauth/v5"
	"github.com/ilyakaznacheev/cleanenv"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/tendant/chi-demo/app"
	dbutils "github.com/tendant/db-utils/db"
	"github.com/tendant/simple-idm-twofactor/pkg/client"
	pkgconfig "github.com/tendant/simple-idm-twofactor/pkg/config"
	"github.com/tendant/simple-idm-twofactor/pkg/consumer"
	consumerapi "github.com/tendant/simple-idm-twofactor/pkg/consumer/api"
	"github.com/tendant/simple-idm-twofactor/pkg/device"
	"github.com/tendant/simple-idm-twofactor/pkg/encryption"
	"github.com/tendant/simple-idm-twofactor/pkg/hasher"
	"github.com/tendant/simple-idm-twofactor/pkg/identity"
	"github.com/tendant/simple-idm-twofactor/pkg/notification"
	"github.com/tendant/simple-idm-twofactor/pkg/ratelimit"
	"github.com/tendant/simple-idm-twofactor/pkg/twofa"
	twofaapi "github.com/tendant/simple-idm-twofactor/pkg/twofa/api"
)

type Config struct {
	IdmDbConfig       pkgconfig.DatabaseConfig
	PersistenceConfig pkgconfig.PersistenceConfig
	AppConfig         app.AppConfig
	JwtConfig         pkgconfig.JWTConfig
	EmailConfig       pkgconfig.EmailConfig
	TwoFactorConfig   pkgconfig.TwoFactorConfig
	OAuth2Config      pkgconfig.OAuth2Config
	RateLimitConfig   pkgconfig.RateLimitConfig

	TwoFactorPrefix string `env:"TWOFACTOR_PREFIX" env-default:"/OS-TWOFACTOR"`
	OAuth2Prefix    string `env:"OAUTH2_PREFIX" env-default:"/OS-OAUTH2"`
}

func (c Config) validate() error {
	validators := []pkgconfig.Validator{
		c.PersistenceConfig.Validate,
		c.JwtConfig.Validate,
		c.EmailConfig.Validate,
		c.TwoFactorConfig.Validate,
		c.OAuth2Config.Validate,
		c.RateLimitConfig.Validate,
	}
	if usesPostgres(c.PersistenceConfig.Type) {
		validators = append(validators, c.IdmDbConfig.Validate)
	}
	return pkgconfig.Validate(validators...)
}

func usesPostgres(persistenceType string) bool {
	return persistenceType == "postgres" || persistenceType == "postgresql"
}

type repositories struct {
	profiles  twofa.ProfileRepository
	devices   device.DeviceRepository
	directory identity.Directory
	consumers consumer.Repository
}

func newRepositories(config Config, pool *pgxpool.Pool) (repositories, error) {
	persistenceType := config.PersistenceConfig.Type
	dataDir := config.PersistenceConfig.DataDir

	secretCipher, err := encryption.NewCipher(config.TwoFactorConfig.SecretEncryptionKey, encryption.TwoFactorSecretSalt)
	if err != nil {
		return repositories{}, err
	}
	consumerCipher, err := encryption.NewCipher(config.OAuth2Config.EncryptionKey, encryption.ConsumerSecretSalt)
	if err != nil {
		return repositories{}, err
	}

	var repos repositories
	profileConfig := twofa.RepositoryConfig{DataDir: dataDir, Cipher: secretCipher}
	deviceConfig := device.RepositoryConfig{DataDir: dataDir}
	identityConfig := identity.RepositoryConfig{DataDir: dataDir}
	consumerConfig := consumer.RepositoryConfig{DataDir: dataDir, Cipher: consumerCipher}
	if pool != nil {
		profileConfig.DB = pool
		deviceConfig.DB = pool
		identityConfig.DB = pool
		consumerConfig.DB = pool
	}

	if repos.profiles, err = twofa.NewProfileRepository(persistenceType, profileConfig); err != nil {
		return repositories{}, err
	}
	if repos.devices, err = device.NewDeviceRepository(persistenceType, deviceConfig); err != nil {
		return repositories{}, err
	}
	// memory mode still reads identity.json so users can be resolved by name
	identityType := persistenceType
	if identityType == "memory" || identityType == "inmem" {
		identityType = "file"
	}
	if repos.directory, err = identity.NewDirectory(identityType, identityConfig); err != nil {
		return repositories{}, err
	}
	if repos.consumers, err = consumer.NewRepository(persistenceType, consumerConfig); err != nil {
		return repositories{}, err
	}
	return repos, nil
}

func newNotifier(config pkgconfig.EmailConfig) notification.Notifier {
	if !config.Enabled {
		return notification.NoopNotifier{}
	}
	notifier, err := notification.NewEmailNotifier(config.ToSMTPConfig())
	if err != nil {
		slog.Error("Failed to create email notifier, notices disabled", "error", err)
		return notification.NoopNotifier{}
	}
	return notifier
}

func runDevicePurge(ctx context.Context, service *twofa.TwoFactorService, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			// errors are logged by the service
			_, _ = service.PurgeExpiredDevices(ctx)
		}
	}
}

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		AddSource: true,
	}))
	slog.SetDefault(logger)

	pkgconfig.LoadEnvFile()

	config := Config{}
	if err := cleanenv.ReadEnv(&config); err != nil {
		slog.Error("Failed to read configuration", "error", err)
		os.Exit(1)
	}
	if err := config.validate(); err != nil {
		slog.Error("Invalid configuration", "error", err)
		os.Exit(1)
	}

	trustWindow, err := config.TwoFactorConfig.ParseDeviceTrustWindow()
	if err != nil {
		slog.Warn("Invalid device trust window, using default", "value", config.TwoFactorConfig.DeviceTrustWindow, "error", err)
		trustWindow = pkgconfig.DefaultDeviceTrustWindow
	}
	purgeInterval, err := config.TwoFactorConfig.ParseDevicePurgeInterval()
	if err != nil {
		slog.Warn("Invalid device purge interval, sweep disabled", "value", config.TwoFactorConfig.DevicePurgeInterval, "error", err)
		purgeInterval = 0
	}
	codeTTL, err := config.OAuth2Config.ParseAuthorizationCodeTTL()
	if err != nil {
		slog.Warn("Invalid authorization code TTL, using default", "value", config.OAuth2Config.AuthorizationCodeTTL, "error", err)
		codeTTL = consumer.DefaultCodeTTL
	}

	var pool *pgxpool.Pool
	if usesPostgres(config.PersistenceConfig.Type) {
		dbConfig := config.IdmDbConfig.ToDbConfig()
		pool, err = dbutils.NewDbPool(context.Background(), dbConfig)
		if err != nil {
			slog.Error("Failed creating dbpool", "db", dbConfig.Database, "host", dbConfig.Host, "port", dbConfig.Port, "user", dbConfig.User)
			os.Exit(1)
		}
		defer pool.Close()
	}

	repos, err := newRepositories(config, pool)
	if err != nil {
		slog.Error("Failed to create repositories", "persistence", config.PersistenceConfig.Type, "error", err)
		os.Exit(1)
	}
	slog.Info("Repositories ready", "persistence", config.PersistenceConfig.Type)

	resolver := identity.NewResolver(repos.directory, repos.directory)

	reenrollment := twofa.ReenrollmentReplace
	if config.TwoFactorConfig.RejectReenrollment {
		reenrollment = twofa.ReenrollmentReject
	}
	twoFactorService := twofa.NewTwoFactorService(repos.profiles, repos.devices, client.RoleGate{},
		twofa.WithTrustWindow(trustWindow),
		twofa.WithReenrollmentPolicy(reenrollment),
		twofa.WithTotpIssuer(config.TwoFactorConfig.TotpIssuer),
		twofa.WithTotpPeriod(config.TwoFactorConfig.TotpPeriod),
		twofa.WithTotpSkew(config.TwoFactorConfig.TotpSkew),
		twofa.WithNotifier(newNotifier(config.EmailConfig)),
		twofa.WithRecipientLookup(resolver),
		twofa.WithHasher(hasher.NewMultiHasher(hasher.NewArgon2Hasher())),
	)
	consumerService := consumer.NewConsumerService(repos.consumers, consumer.WithCodeTTL(codeTTL))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if purgeInterval > 0 {
		go runDevicePurge(ctx, twoFactorService, purgeInterval)
	}

	var challenge func(http.Handler) http.Handler
	if config.RateLimitConfig.Enabled {
		limiter := ratelimit.NewMiddleware(ratelimit.Config{
			PerMinute: float64(config.RateLimitConfig.ChallengePerMinute),
			Burst:     config.RateLimitConfig.ChallengeBurst,
			BucketTTL: 1 * time.Hour,
			KeyFunc:   ratelimit.UserOrIPKey,
		})
		defer limiter.Limiter().Stop()
		challenge = limiter.Handler
	}

	server := app.DefaultApp()
	app.RegisterHealthzRoutes(server.R)

	tokenAuth := jwtauth.New("HS256", []byte(config.JwtConfig.Secret), nil)

	server.R.Group(func(r chi.Router) {
		if config.RateLimitConfig.TrustProxy {
			r.Use(middleware.RealIP)
		}
		r.Use(client.Verifier(tokenAuth))
		r.Use(client.AuthUserMiddleware)

		twoFactorHandle := twofaapi.NewHandle(twoFactorService, resolver)
		r.Mount(config.TwoFactorPrefix, twofaapi.TwoFactorHandler(twoFactorHandle, challenge))

		consumerRouter := chi.NewRouter()
		consumerRouter.Group(func(r chi.Router) {
			r.Use(client.AdminRoleMiddleware)
			r.Mount("/", consumerapi.ConsumerHandler(consumerapi.NewHandle(consumerService)))
		})
		r.Mount(config.OAuth2Prefix, consumerRouter)
	})

	slog.Info("Two factor service starting",
		"twofactor", config.TwoFactorPrefix,
		"oauth2", config.OAuth2Prefix,
		"trustWindow", trustWindow,
		"codeTTL", codeTTL,
		"devicePurgeInterval", purgeInterval)
	server.Run()
}
