/*
Copyright 2024 Blnk Finance Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/caddyserver/certmagic"
	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"github.com/blnkfinance/vetflow/api"
	"github.com/blnkfinance/vetflow/config"
	trace "github.com/blnkfinance/vetflow/internal/traces"
	"github.com/blnkfinance/vetflow/kyc"
)

/*
newTLSServer builds an HTTPS server using CertMagic for automatic certificate management.
If no domain is specified, the certificate is issued for localhost.
*/
func newTLSServer(ctx context.Context, r *gin.Engine, conf config.ServerConfig) (*http.Server, error) {
	certmagic.DefaultACME.Agreed = true
	certmagic.DefaultACME.Email = conf.Email
	cfg := certmagic.NewDefault()
	cfg.Storage = &certmagic.FileStorage{Path: ".vetflow/certmagic"}

	domains := []string{conf.Domain}
	if conf.Domain == "" {
		log.Println("No domain specified, defaulting to localhost")
		domains = []string{"localhost"}
	}

	if err := cfg.ManageSync(ctx, domains); err != nil {
		return nil, err
	}

	return &http.Server{
		Addr:      ":" + conf.Port,
		Handler:   r,
		TLSConfig: cfg.TLSConfig(),
	}, nil
}

func initializeRouter(v *vetflowInstance) *gin.Engine {
	return api.NewAPI(v.vetflow).Router()
}

func initializeTracing(ctx context.Context, serviceName string) (func(context.Context) error, error) {
	shutdown, err := trace.SetupOTelSDK(ctx, serviceName)
	if err != nil {
		return nil, fmt.Errorf("error setting up OTel SDK: %v", err)
	}
	return shutdown, nil
}

func initializeObservability(ctx context.Context, cfg *config.Configuration) (func(context.Context) error, error) {
	if !cfg.EnableTelemetry {
		return func(context.Context) error { return nil }, nil
	}
	return initializeTracing(ctx, cfg.ProjectName)
}

// startServer serves until ctx is cancelled, then shuts the server down gracefully.
func startServer(ctx context.Context, router *gin.Engine, cfg config.ServerConfig) error {
	var server *http.Server
	if cfg.SSL {
		var err error
		server, err = newTLSServer(ctx, router, cfg)
		if err != nil {
			return err
		}
		log.Printf("Starting HTTPS server on %s\n", cfg.Port)
	} else {
		server = &http.Server{Addr: ":" + cfg.Port, Handler: router}
		log.Printf("Starting server on http://localhost:%s", cfg.Port)
	}

	errCh := make(chan error, 1)
	go func() {
		var err error
		if cfg.SSL {
			err = server.ListenAndServeTLS("", "")
		} else {
			err = server.ListenAndServe()
		}
		if !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

/*
serverCommands returns the Cobra command responsible for starting the Vetflow server.
It sets up tracing, the document check poller and the API routes before serving.
*/
func serverCommands(v *vetflowInstance) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "start",
		Short: "start vetflow server",
		Run: func(cmd *cobra.Command, args []string) {
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			cfg, err := config.Fetch()
			if err != nil {
				log.Fatal(err)
			}

			shutdown, err := initializeObservability(ctx, cfg)
			if err != nil {
				log.Fatal(err)
			}
			defer func() {
				if err := shutdown(context.Background()); err != nil {
					log.Printf("Error during shutdown: %v", err)
				}
			}()

			poller := kyc.NewPoller(v.vetflow.Verifier(), v.db, time.Duration(cfg.KYC.PollIntervalSec)*time.Second)
			poller.Start()
			defer poller.Stop()

			router := initializeRouter(v)
			if err := startServer(ctx, router, cfg.Server); err != nil {
				log.Fatal(err)
			}
		},
	}

	return cmd
}
