package main

import (
	"context"
	"fmt"
	"time"

	"github.com/aimd54/sistema-donaciones/internal/api"
	authapi "github.com/aimd54/sistema-donaciones/internal/api/auth"
	campaignapi "github.com/aimd54/sistema-donaciones/internal/api/campaigns"
	configapi "github.com/aimd54/sistema-donaciones/internal/api/configuration"
	"github.com/aimd54/sistema-donaciones/internal/api/dashboard"
	donationapi "github.com/aimd54/sistema-donaciones/internal/api/donations"
	invoiceapi "github.com/aimd54/sistema-donaciones/internal/api/invoices"
	pmapi "github.com/aimd54/sistema-donaciones/internal/api/paymentmethods"
	receiptapi "github.com/aimd54/sistema-donaciones/internal/api/receipts"
	rewardapi "github.com/aimd54/sistema-donaciones/internal/api/rewards"
	subapi "github.com/aimd54/sistema-donaciones/internal/api/subscriptions"
	userapi "github.com/aimd54/sistema-donaciones/internal/api/users"
	"github.com/aimd54/sistema-donaciones/internal/cache"
	"github.com/aimd54/sistema-donaciones/internal/config"
	"github.com/aimd54/sistema-donaciones/internal/documents"
	"github.com/aimd54/sistema-donaciones/internal/mail"
	"github.com/aimd54/sistema-donaciones/internal/mattermost"
	"github.com/aimd54/sistema-donaciones/internal/models"
	"github.com/aimd54/sistema-donaciones/internal/payment"
	"github.com/aimd54/sistema-donaciones/internal/repository"
	"github.com/aimd54/sistema-donaciones/internal/service/auth"
	"github.com/aimd54/sistema-donaciones/internal/service/campaigns"
	"github.com/aimd54/sistema-donaciones/internal/service/configuration"
	"github.com/aimd54/sistema-donaciones/internal/service/donations"
	"github.com/aimd54/sistema-donaciones/internal/service/invoices"
	"github.com/aimd54/sistema-donaciones/internal/service/paymentmethods"
	"github.com/aimd54/sistema-donaciones/internal/service/receipts"
	"github.com/aimd54/sistema-donaciones/internal/service/rewards"
	"github.com/aimd54/sistema-donaciones/internal/service/scheduler"
	"github.com/aimd54/sistema-donaciones/internal/service/statistics"
	"github.com/aimd54/sistema-donaciones/internal/service/subscriptions"
	"github.com/aimd54/sistema-donaciones/internal/service/users"
	"github.com/aimd54/sistema-donaciones/internal/storage"
	"github.com/aimd54/sistema-donaciones/pkg/logger"
)

// app holds the wired dependency graph shared by the commands.
type app struct {
	cfg   *config.Config
	log   *logger.Logger
	db    *repository.DB
	cache cache.Cache

	auth           *auth.Service
	users          *users.Service
	campaigns      *campaigns.Service
	paymentMethods *paymentmethods.Service
	donations      *donations.Service
	subscriptions  *subscriptions.Service
	receipts       *receipts.Service
	invoices       *invoices.Service
	rewards        *rewards.Service
	configuration  *configuration.Service
	statistics     *statistics.Service
	scheduler      *scheduler.Service
}

// loadConfig reads the configuration and initializes the global logger.
func loadConfig() (*config.Config, *logger.Logger, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	logger.Init(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output)
	return cfg, logger.Get(), nil
}

// openDB connects to the configured database.
func openDB(cfg *config.Config, log *logger.Logger) (*repository.DB, error) {
	db, err := repository.NewDB(&cfg.Database, log)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return db, nil
}

func newCache(cfg *config.Config, log *logger.Logger) (cache.Cache, error) {
	if cfg.Cache.Driver == "redis" {
		return cache.NewRedisCache(&cfg.Database.Redis, log)
	}
	return cache.NewMemoryCache(), nil
}

// buildApp wires repositories, infrastructure clients and services.
func buildApp(ctx context.Context, cfg *config.Config, log *logger.Logger) (*app, error) {
	db, err := openDB(cfg, log)
	if err != nil {
		return nil, err
	}

	c, err := newCache(cfg, log)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize cache: %w", err)
	}

	store, err := storage.New(ctx, &cfg.Storage)
	if err != nil {
		_ = c.Close()
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize document storage: %w", err)
	}

	// Repositories
	userRepo := repository.NewUserRepository(db)
	notificationRepo := repository.NewNotificationRepository(db)
	campaignRepo := repository.NewCampaignRepository(db)
	paymentMethodRepo := repository.NewPaymentMethodRepository(db)
	donationRepo := repository.NewDonationRepository(db)
	subscriptionRepo := repository.NewSubscriptionRepository(db)
	receiptRepo := repository.NewReceiptRepository(db)
	invoiceRepo := repository.NewInvoiceRepository(db)
	rewardRepo := repository.NewRewardRepository(db)
	configurationRepo := repository.NewConfigurationRepository(db)
	statisticsRepo := repository.NewStatisticsRepository(db)

	// Infrastructure
	mailer := mail.NewDispatcher(&cfg.Mail, log.Named("mail"))
	renderer := documents.NewRenderer()
	gateway := payment.NewGateway(&cfg.Payments, log.Named("payment"))
	ops := mattermost.NewClient(&cfg.Mattermost, log.Named("mattermost"))

	a := &app{cfg: cfg, log: log, db: db, cache: c}

	a.configuration = configuration.NewService(configurationRepo, c, cfg.Cache.ConfigurationTTL, log.Named("configuration"))
	if err := a.configuration.Warm(ctx); err != nil {
		log.Warn().Err(err).Msg("Failed to warm configuration cache")
	}
	mailer.SetOrganization(a.configuration.GetString(ctx, models.ConfigKeyOrganizationName, ""))

	a.auth = auth.NewService(userRepo, c, mailer, cfg.Auth, log.Named("auth"))
	a.users = users.NewService(userRepo, notificationRepo, donationRepo, subscriptionRepo, rewardRepo, mailer, log.Named("users"))
	a.campaigns = campaigns.NewService(campaignRepo, mailer, a.users, log.Named("campaigns"))
	a.paymentMethods = paymentmethods.NewService(paymentMethodRepo, log.Named("payment_methods"))
	a.receipts = receipts.NewService(receiptRepo, donationRepo, renderer, store, mailer, a.configuration, cfg.Server.BaseURL, log.Named("receipts"))
	a.invoices = invoices.NewService(invoiceRepo, donationRepo, renderer, store, mailer, a.configuration, log.Named("invoices"))
	a.rewards = rewards.NewService(rewardRepo, userRepo, mailer, a.users, log.Named("rewards"))

	a.donations = donations.NewService(donationRepo, campaignRepo, donations.Completion{
		Receipts:  a.receipts,
		Invoices:  a.invoices,
		Campaigns: a.campaigns,
		Points:    a.rewards,
		Mailer:    mailer,
		Notifier:  a.users,
	}, a.configuration, gateway, cfg.Donations.DefaultPointsPerDollar, log.Named("donations"))

	a.subscriptions = subscriptions.NewService(subscriptionRepo, a.paymentMethods, campaignRepo, a.donations, mailer, log.Named("subscriptions"))

	a.statistics = statistics.NewService(statisticsRepo, donationRepo, subscriptionRepo, userRepo, campaignRepo, a.subscriptions, a.configuration, log.Named("statistics"))
	if loc, err := time.LoadLocation(cfg.Scheduler.Timezone); err == nil {
		a.statistics.WithLocation(loc)
	}

	a.scheduler = scheduler.NewService(&cfg.Scheduler, a.subscriptions, a.statistics, campaignRepo, ops, a.configuration, log.Named("scheduler"))

	return a, nil
}

// handlers builds the HTTP handlers over the wired services.
func (a *app) handlers() api.Handlers {
	return api.Handlers{
		Auth:           authapi.NewHandler(a.auth, a.log),
		Users:          userapi.NewHandler(a.users, a.log),
		Campaigns:      campaignapi.NewHandler(a.campaigns, a.log),
		PaymentMethods: pmapi.NewHandler(a.paymentMethods, a.log),
		Donations:      donationapi.NewHandler(a.donations, a.log),
		Subscriptions:  subapi.NewHandler(a.subscriptions, a.log),
		Receipts:       receiptapi.NewHandler(a.receipts, a.log),
		Invoices:       invoiceapi.NewHandler(a.invoices, a.log),
		Rewards:        rewardapi.NewHandler(a.rewards, a.log),
		Configuration:  configapi.NewHandler(a.configuration, a.log),
		Statistics:     dashboard.NewHandler(a.statistics, a.log),
	}
}

// Close releases the cache and database connections.
func (a *app) Close() {
	if err := a.cache.Close(); err != nil {
		a.log.Warn().Err(err).Msg("Failed to close cache")
	}
	if err := a.db.Close(); err != nil {
		a.log.Warn().Err(err).Msg("Failed to close database")
	}
}
