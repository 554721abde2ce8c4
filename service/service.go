package service

import (
	"context"
	"errors"
	"fmt"
	stdHttp "net/http"
	"time"

	"livetix/clock"
	"livetix/config"
	"livetix/db"
	ticketsHttp "livetix/http"
	"livetix/message"
	"livetix/message/command"
	"livetix/message/event"
	"livetix/message/outbox"
	"livetix/ticketqr"
	observability "livetix/trace"

	"github.com/ThreeDotsLabs/go-event-driven/common/log"
	watermillMessage "github.com/ThreeDotsLabs/watermill/message"
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
)

const expireReservationsBatch = 100

type Service struct {
	watermillRouter *watermillMessage.Router
	echoRouter      *echo.Echo

	orderRepo     db.OrderRepository
	clock         clock.Clock
	httpAddr      string
	sweepInterval time.Duration
}

// New wires the service. Payments and emails are passed in so tests can swap
// them for in-memory mocks.
func New(
	cfg config.Config,
	dbConn *db.DB,
	redisClient *redis.Client,
	payments ticketsHttp.PaymentsService,
	emailSender event.EmailSender,
	clk clock.Clock,
) (Service, error) {
	watermillLogger := log.NewWatermill(log.FromContext(context.Background()))

	if err := dbConn.MigrateSchema(); err != nil {
		return Service{}, err
	}

	redisPublisher, err := message.NewRedisPublisher(redisClient, watermillLogger)
	if err != nil {
		return Service{}, err
	}
	splitterSubscriber, err := message.NewRedisSubscriber(redisClient, "livetix.events_splitter", watermillLogger)
	if err != nil {
		return Service{}, err
	}
	dataLakeSubscriber, err := message.NewRedisSubscriber(redisClient, "livetix.data_lake_saver", watermillLogger)
	if err != nil {
		return Service{}, err
	}
	postgresSubscriber, err := outbox.NewSubscriber(dbConn.Conn, watermillLogger)
	if err != nil {
		return Service{}, err
	}

	signer := ticketqr.NewSigner(cfg.QRSigningSecret)

	tenantRepo := db.NewTenantRepository(dbConn)
	catalogRepo := db.NewCatalogRepository(dbConn)
	orderRepo := db.NewOrderRepository(dbConn)
	ticketRepo := db.NewTicketRepository(dbConn, signer)
	membershipRepo := db.NewMembershipRepository(dbConn)
	creditRepo := db.NewCreditRepository(dbConn)
	referralRepo := db.NewReferralRepository(dbConn)
	webhookRepo := db.NewWebhookRepository(dbConn)
	dataLakeRepo := db.NewDataLakeRepository(dbConn)

	commandBus := command.NewBus(redisPublisher)

	eventsHandler := event.NewHandler(ticketRepo, referralRepo, emailSender)
	commandsHandler := command.NewHandler(payments, orderRepo, ticketRepo, emailSender, clk.Now)

	watermillRouter, err := message.NewWatermillRouter(
		message.RouterDeps{
			PostgresSubscriber: postgresSubscriber,
			SplitterSubscriber: splitterSubscriber,
			DataLakeSubscriber: dataLakeSubscriber,
			RedisPublisher:     redisPublisher,
			EventProcessorConfig: event.NewProcessorConfig(
				redisClient,
				message.EmailHandlerMiddlewares(cfg.EmailRatePerSecond),
				watermillLogger,
			),
			CommandProcessorConfig: command.NewProcessorConfig(redisClient, watermillLogger),
			EventHandler:           eventsHandler,
			CommandHandler:         commandsHandler,
			DataLakeRepo:           dataLakeRepo,
		},
		watermillLogger,
	)
	if err != nil {
		return Service{}, fmt.Errorf("could not create watermill router: %w", err)
	}

	echoRouter := ticketsHttp.NewHttpRouter(ticketsHttp.RouterDeps{
		CommandBus:       commandBus,
		TenantRepo:       tenantRepo,
		CatalogRepo:      catalogRepo,
		OrderRepo:        orderRepo,
		TicketRepo:       ticketRepo,
		MembershipRepo:   membershipRepo,
		CreditRepo:       creditRepo,
		ReferralRepo:     referralRepo,
		WebhookRepo:      webhookRepo,
		Payments:         payments,
		QRCodec:          signer,
		Clock:            clk,
		PublicBaseURL:    cfg.PublicBaseURL,
		ReservationTTL:   cfg.ReservationTTL,
		StripeWebhookKey: cfg.StripeWebhookKey,
		AdminToken:       cfg.AdminToken,
		StaffToken:       cfg.StaffToken,
	})

	return Service{
		watermillRouter: watermillRouter,
		echoRouter:      echoRouter,
		orderRepo:       orderRepo,
		clock:           clk,
		httpAddr:        cfg.HTTPAddr,
		sweepInterval:   cfg.SweepInterval,
	}, nil
}

func (s Service) Run(ctx context.Context) error {
	errgrp, ctx := errgroup.WithContext(ctx)

	errgrp.Go(func() error {
		return s.watermillRouter.Run(ctx)
	})

	errgrp.Go(func() error {
		// we don't want to start HTTP server before Watermill router (so service won't be healthy before it's ready)
		<-s.watermillRouter.Running()

		err := s.echoRouter.Start(s.httpAddr)
		if err != nil && !errors.Is(err, stdHttp.ErrServerClosed) {
			return err
		}

		return nil
	})

	errgrp.Go(func() error {
		return s.sweepReservations(ctx)
	})

	errgrp.Go(func() error {
		<-ctx.Done()
		return s.echoRouter.Shutdown(context.Background())
	})

	return errgrp.Wait()
}

// sweepReservations releases inventory held by checkouts that were never paid.
func (s Service) sweepReservations(ctx context.Context) error {
	ticker := time.NewTicker(s.sweepInterval)
	defer ticker.Stop()

	logger := log.FromContext(ctx)

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}

		for {
			expired, err := s.orderRepo.ExpireReservations(ctx, s.clock.Now(), expireReservationsBatch)
			if err != nil {
				logger.WithError(err).Error("Failed to expire reservations")
				break
			}
			if expired == 0 {
				break
			}

			observability.ReservationsExpiredTotal.Add(float64(expired))
			logger.WithField("expired", expired).Info("Reservations expired")

			if expired < expireReservationsBatch {
				break
			}
		}
	}
}
