package bootstrap

import (
	"context"
	"net/http"
	"strings"

	"github.com/krobus00/mt5-gateway/internal/config"
	"github.com/krobus00/mt5-gateway/internal/entity"
	wsHandler "github.com/krobus00/mt5-gateway/internal/handler/marketgateway/ws"
	"github.com/krobus00/mt5-gateway/internal/infrastructure"
	"github.com/krobus00/mt5-gateway/internal/registry"
	"github.com/krobus00/mt5-gateway/internal/service/broadcast"
	"github.com/krobus00/mt5-gateway/internal/service/gateway"
	"github.com/krobus00/mt5-gateway/internal/service/venue"
	"github.com/krobus00/mt5-gateway/internal/util"
	"github.com/nats-io/nats.go"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func StartGateway(cmd *cobra.Command, args []string) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var venueSession entity.VenueSession
	if config.Env.Venue.Paper {
		logrus.Warn("paper venue enabled, orders will not reach a real venue")
		venueSession = venue.NewPaperVenue()
	} else {
		venueSession = venue.NewMT5Venue(config.Env.Venue)
	}

	// upstream authentication failure is the only fatal error after startup
	// config parsing: the gateway never serves without a live session
	err := venueSession.Login(ctx)
	util.ContinueOrFatal(err)

	account, err := venueSession.Account(ctx)
	util.ContinueOrFatal(err)
	logrus.WithFields(logrus.Fields{
		"login":   account.Login,
		"balance": account.Balance,
		"server":  account.Server,
	}).Info("venue session ready")

	var (
		nc *nats.Conn
		js nats.JetStreamContext
	)
	if strings.TrimSpace(config.Env.NatsJetstream.URL) != "" {
		nc, js, err = infrastructure.NewJetstream()
		util.ContinueOrFatal(err)
	}

	clientRegistry := registry.New()

	broadcaster := broadcast.New(clientRegistry, venueSession, js, config.Env.Broadcast.Interval)
	if js != nil {
		for _, publisher := range []entity.Publisher{broadcaster} {
			err = publisher.JetstreamEventInit(ctx)
			util.ContinueOrFatal(err)
		}
	}
	go broadcaster.Run(ctx)

	gatewayService := gateway.NewService(clientRegistry, venueSession)

	mux := http.NewServeMux()
	wsHandler.NewMarketGatewayWSHandler(gatewayService).Register(mux)

	httpServer := infrastructure.NewHTTPServerWithConfig(infrastructure.DefaultHTTPServerConfig(), mux)
	go func() {
		if err := httpServer.Start(); err != nil {
			logrus.Fatalf("http server failed: %v", err)
		}
	}()

	wait := gracefulShutdown(ctx, config.Env.GracefulShutdownTimeout, map[string]operation{
		"broadcast loop": func(ctx context.Context) error {
			cancel()
			<-broadcaster.Done()
			return nil
		},
		"venue session": func(ctx context.Context) error {
			// released exactly once, after the last broadcast tick
			cancel()
			<-broadcaster.Done()
			return venueSession.Close(ctx)
		},
		"websocket clients": func(ctx context.Context) error {
			clientRegistry.CloseAll()
			return nil
		},
		"http server": func(ctx context.Context) error {
			return httpServer.Shutdown(ctx)
		},
		"nats connection": func(ctx context.Context) error {
			return infrastructure.CloseJetstream(nc)
		},
	})

	<-wait
}
