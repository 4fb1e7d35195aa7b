package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/gin-gonic/gin"
	"github.com/urfave/cli/v2"

	"github.com/NamanBalaji/otad/internal/cloud"
	"github.com/NamanBalaji/otad/internal/fwserve"
	"github.com/NamanBalaji/otad/internal/logger"
)

func main() {
	app := &cli.App{
		Name:  "fwserve",
		Usage: "Serve firmware images and offer them to devices",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "dir", Usage: "directory of .bin images", Value: "."},
			&cli.StringFlag{Name: "addr", Usage: "listen address", Value: ":8080"},
			&cli.StringFlag{Name: "base-url", Usage: "http origin devices download from", Required: true},
			&cli.StringFlag{Name: "broker", Usage: "MQTT broker; offers are disabled without one"},
			&cli.StringFlag{Name: "client-id", Value: "fwserve"},
			&cli.StringFlag{Name: "topic-prefix", Value: "welink"},
			&cli.UintFlag{Name: "qos", Value: 1},
			&cli.StringFlag{Name: "log-level", Value: "info"},
		},
		Action: serve,
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "fwserve:", err)
		logger.Close()
		os.Exit(1)
	}

	logger.Close()
}

func serve(c *cli.Context) error {
	if err := logger.InitLogging(c.String("log-level"), ""); err != nil {
		return err
	}

	gin.SetMode(gin.ReleaseMode)

	var publisher fwserve.OfferPublisher

	if broker := c.String("broker"); broker != "" {
		mc := mqtt.NewClient(mqtt.NewClientOptions().
			AddBroker(broker).
			SetClientID(c.String("client-id")).
			SetAutoReconnect(true))

		token := mc.Connect()
		if !token.WaitTimeout(10*time.Second) || token.Error() != nil {
			return fmt.Errorf("failed to connect to %s: %v", broker, token.Error())
		}
		defer mc.Disconnect(250)

		publisher = cloud.NewPublisher(mc, c.String("topic-prefix"), byte(c.Uint("qos")), 10*time.Second)
	}

	srv := &http.Server{
		Addr:              c.String("addr"),
		Handler:           fwserve.New(c.String("dir"), c.String("base-url"), publisher).Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	go func() {
		<-ctx.Done()

		shutdown, done := context.WithTimeout(context.Background(), 5*time.Second)
		defer done()

		if err := srv.Shutdown(shutdown); err != nil {
			logger.Warnf("Shutdown: %v", err)
		}
	}()

	logger.Infof("Serving %s on %s", c.String("dir"), srv.Addr)

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	return nil
}
