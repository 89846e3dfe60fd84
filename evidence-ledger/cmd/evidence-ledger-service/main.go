package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/redis/go-redis/v9"

	"github.com/Kaaval/Main/evidence-ledger/internal/audit"
	"github.com/Kaaval/Main/evidence-ledger/internal/auth"
	"github.com/Kaaval/Main/evidence-ledger/internal/config"
	"github.com/Kaaval/Main/evidence-ledger/internal/custody"
	"github.com/Kaaval/Main/evidence-ledger/internal/filestore"
	"github.com/Kaaval/Main/evidence-ledger/internal/httpserver"
	"github.com/Kaaval/Main/evidence-ledger/internal/registry"
	"github.com/Kaaval/Main/evidence-ledger/internal/store"
	"github.com/Kaaval/Main/evidence-ledger/internal/tlsutil"
	"github.com/Kaaval/Main/evidence-ledger/internal/verifier"
	"github.com/Kaaval/Main/evidence-ledger/internal/visibility"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config load: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, dialect, err := store.Open(cfg.DatabaseDriver, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db open: %v", err)
	}
	defer db.Close()
	if err := db.PingContext(ctx); err != nil {
		log.Fatalf("db ping: %v", err)
	}
	st := store.NewSQLStore(db, dialect)
	applied, err := st.Migrate(ctx)
	if err != nil {
		log.Fatalf("migrate: %v", err)
	}
	if len(applied) > 0 {
		log.Printf("[startup] applied migrations %v", applied)
	}

	var s3Client *s3.Client
	if cfg.FileBackend == config.FileBackendS3 || cfg.StreamerEnabled {
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			log.Fatalf("aws config: %v", err)
		}
		s3Client = s3.NewFromConfig(awsCfg)
	}

	files, err := openFiles(cfg, s3Client)
	if err != nil {
		log.Fatalf("file store: %v", err)
	}

	var locker verifier.Locker = verifier.NewLocalLocker()
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.Fatalf("redis ping: %v", err)
		}
		locker = verifier.NewRedisLocker(rdb, cfg.VerifyLockTTL)
		log.Printf("[startup] using redis locks addr=%s", cfg.RedisAddr)
	}

	ledger := audit.New(st, audit.Config{MaxAttempts: cfg.AuditMaxAttempts, Backoff: cfg.AuditBackoff})
	verifierSvc := verifier.New(st, files, ledger, locker)
	machine := custody.New(st, st, ledger, locker)
	visibilitySvc := visibility.NewService(st, ledger, locker)
	reg := registry.New(st, files, ledger, registry.Config{MaxCorrelationDepth: cfg.MaxCorrelationDepth})

	authVerifier, err := auth.NewFromConfig(cfg)
	if err != nil {
		log.Fatalf("auth init: %v", err)
	}
	if cfg.AllowDevPrincipals {
		log.Printf("[startup] WARNING dev principals are enabled; %s is trusted", auth.DevPrincipalHeader)
	}

	if cfg.StreamerEnabled {
		producer, err := audit.NewKafkaProducer(audit.KafkaProducerConfig{Brokers: cfg.KafkaBrokers, Topic: cfg.KafkaTopic})
		if err != nil {
			log.Fatalf("kafka producer: %v", err)
		}
		defer producer.Close()
		archiver, err := audit.NewS3Archiver(s3Client, cfg.ArchiveBucket, cfg.ArchivePrefix)
		if err != nil {
			log.Fatalf("s3 archiver: %v", err)
		}
		streamer := audit.NewStreamer(st, producer, archiver, audit.StreamerConfig{BatchSize: cfg.StreamerBatchSize})
		go func() {
			if err := streamer.Run(ctx); err != nil && ctx.Err() == nil {
				log.Printf("[audit.streamer] stopped: %v", err)
			}
		}()
	}

	server := httpserver.New(cfg, httpserver.Deps{
		Store:      st,
		Registry:   reg,
		Verifier:   verifierSvc,
		Custody:    machine,
		Visibility: visibilitySvc,
		Ledger:     ledger,
		Auth:       authVerifier,
	})
	httpServer := &http.Server{
		Addr:              cfg.Addr,
		Handler:           server.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	if cfg.TLSCertFile != "" {
		tlsCfg, err := tlsutil.ServerConfig(cfg.TLSCertFile, cfg.TLSKeyFile, cfg.TLSClientCAFile, cfg.RequireClientCert)
		if err != nil {
			log.Fatalf("tls config: %v", err)
		}
		httpServer.TLSConfig = tlsCfg
	}

	go func() {
		var err error
		if httpServer.TLSConfig != nil {
			log.Printf("Evidence ledger service listening on %s (tls, client_auth=%v)", cfg.Addr, httpServer.TLSConfig.ClientAuth)
			err = httpServer.ListenAndServeTLS("", "")
		} else {
			log.Printf("Evidence ledger service listening on %s", cfg.Addr)
			err = httpServer.ListenAndServe()
		}
		if err != nil && err != http.ErrServerClosed {
			log.Fatalf("http server error: %v", err)
		}
	}()

	waitForShutdown(cancel, httpServer)
}

func openFiles(cfg config.Config, client *s3.Client) (filestore.Store, error) {
	var files filestore.Store
	switch cfg.FileBackend {
	case config.FileBackendS3:
		s, err := filestore.NewS3Store(client, cfg.FileBucket, cfg.FilePrefix)
		if err != nil {
			return nil, err
		}
		files = s
	default:
		s, err := filestore.NewLocalStore(cfg.FileRoot)
		if err != nil {
			return nil, err
		}
		files = s
	}
	return filestore.WithReadTimeout(files, cfg.FileReadTimeout), nil
}

func waitForShutdown(cancel context.CancelFunc, srv *http.Server) {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	cancel()
	ctx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
	}
}
