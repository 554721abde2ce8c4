package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"livetix/api"
	"livetix/clock"
	"livetix/config"
	"livetix/db"
	ticketsHttp "livetix/http"
	"livetix/message"
	"livetix/message/event"
	"livetix/service"
	observability "livetix/trace"

	"github.com/ThreeDotsLabs/go-event-driven/common/log"
	"github.com/sirupsen/logrus"
)

func main() {
	log.Init(logrus.InfoLevel)

	cfg, err := config.Load(".env")
	if err != nil {
		logrus.WithError(err).Fatal("Invalid configuration")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	traceProvider, err := observability.ConfigureTraceProvider(cfg.JaegerEndpoint)
	if err != nil {
		panic(err)
	}
	defer func() {
		if err := traceProvider.Shutdown(context.Background()); err != nil {
			logrus.WithError(err).Error("Failed to shutdown trace provider")
		}
	}()

	dbConn, err := db.NewDBConn(cfg.PostgresURL)
	if err != nil {
		panic(err)
	}
	defer dbConn.Close()

	redisClient := message.NewRedisClient(cfg.RedisAddr)
	defer redisClient.Close()

	var payments ticketsHttp.PaymentsService = &api.StripeMock{}
	if cfg.StripeSecretKey != "" {
		payments = api.NewStripeClient(cfg.StripeSecretKey, nil)
	} else {
		logrus.Warn("STRIPE_SECRET_KEY is not set, payments are simulated")
	}

	var emailSender event.EmailSender = &api.EmailMock{}
	if cfg.ResendAPIKey != "" {
		emailSender = api.NewResendClient(cfg.ResendAPIKey, cfg.EmailFrom)
	} else {
		logrus.Warn("RESEND_API_KEY is not set, emails are not sent")
	}

	svc, err := service.New(cfg, &dbConn, redisClient, payments, emailSender, clock.NewSystem())
	if err != nil {
		panic(err)
	}

	if err := svc.Run(ctx); err != nil {
		panic(err)
	}
}
