package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cloud.google.com/go/storage"
	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"github.com/driftline/mailvault/internal/auth"
	"github.com/driftline/mailvault/internal/config"
	"github.com/driftline/mailvault/internal/drive"
	"github.com/driftline/mailvault/internal/events"
	"github.com/driftline/mailvault/internal/gmailx"
	"github.com/driftline/mailvault/internal/idcache"
	"github.com/driftline/mailvault/internal/objstore"
	"github.com/driftline/mailvault/internal/pipeline"
	"github.com/driftline/mailvault/internal/warehouse"
)

func main() {
	log.SetFormatter(&log.JSONFormatter{})
	log.SetLevel(log.InfoLevel)

	cfg, err := config.FromEnv()
	if err != nil {
		log.Fatalf("configuration error: %v", err)
	}

	ctx := context.Background()

	lister, err := drive.New(ctx, cfg.DriveFolderID)
	if err != nil {
		log.Fatalf("failed to create drive client: %v", err)
	}

	storageClient, err := storage.NewClient(ctx)
	if err != nil {
		log.Fatalf("failed to create storage client: %v", err)
	}
	defer storageClient.Close()

	var publisher *events.Publisher
	if cfg.NatsURL != "" {
		publisher, err = events.Connect(cfg.NatsURL)
		if err != nil {
			log.Fatalf("failed to connect to NATS: %v", err)
		}
		defer publisher.Close()
	}

	cache := idcache.New(cfg.CacheTTL)

	r := gin.Default()
	r.GET("/fetch", func(c *gin.Context) {
		runner := newRunner(cfg, lister, storageClient, cache, publisher)
		res, err := runner.Run(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"status":  "error",
				"message": err.Error(),
			})
			return
		}
		if res.TenantsDiscovered == 0 {
			c.JSON(http.StatusOK, gin.H{
				"status":  "warning",
				"message": "No OAuth tokens found in Drive.",
			})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"status":  "success",
			"message": fmt.Sprintf("Email fetch completed. Total new emails inserted: %d", res.TotalInserted),
		})
	})

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: r,
	}

	go func() {
		log.Infof("listening on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Errorf("shutdown error: %v", err)
	}
}

// newRunner wires one run's collaborators. The warehouse side is built lazily
// inside Bootstrap because obtaining its service key is the run's only fatal
// step.
func newRunner(cfg *config.Config, lister *drive.Lister, storageClient *storage.Client, cache *idcache.Cache, publisher *events.Publisher) *pipeline.Runner {
	return &pipeline.Runner{
		Bootstrap: func(ctx context.Context) (*pipeline.Deps, error) {
			keyDir, err := os.MkdirTemp("", "mailvault-key-")
			if err != nil {
				return nil, fmt.Errorf("create key directory: %w", err)
			}

			keyPath, err := objstore.DownloadKey(ctx, storageClient, cfg.BucketName, objstore.KeyObject, keyDir)
			if err != nil {
				os.RemoveAll(keyDir)
				return nil, err
			}

			wh, err := warehouse.NewClient(ctx, cfg.ProjectID, cfg.DatasetID, cfg.TableID, keyPath)
			if err != nil {
				os.RemoveAll(keyDir)
				return nil, err
			}

			return &pipeline.Deps{
				Loader:        warehouse.NewLoader(wh.Inserter(), cfg.BatchSize),
				FetchExisting: wh.ExistingIDs,
				ExistingQuery: wh.ExistingIDsQuery(),
				Close: func() {
					wh.Close()
					os.RemoveAll(keyDir)
				},
			}, nil
		},
		Store:   lister,
		Resolve: auth.Resolve,
		NewCrawler: func(ctx context.Context, cred *auth.Credential) (pipeline.Crawler, error) {
			provider, err := gmailx.NewAPIProvider(ctx, cred.Client(ctx))
			if err != nil {
				return nil, err
			}
			return gmailx.NewCrawler(provider, cred.Name), nil
		},
		Cache:  cache,
		Events: publisher,
		Width:  cfg.MaxWorkers,
	}
}
