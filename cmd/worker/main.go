package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync/atomic"
	"time"

	"github.com/airbusgeo/dcquery/cmd"
	"github.com/airbusgeo/dcquery/interface/messaging"
	"github.com/airbusgeo/dcquery/interface/messaging/pubsub"
	"github.com/airbusgeo/dcquery/internal/log"
	"github.com/airbusgeo/dcquery/internal/query"
	"github.com/airbusgeo/dcquery/internal/svc"
	"github.com/airbusgeo/dcquery/internal/utils"
	"go.uber.org/zap"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

func main() {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt)
	ctx, cancel := context.WithCancel(context.Background())
	runerr := make(chan error)

	go func() {
		runerr <- run(ctx)
	}()

	for {
		select {
		case err := <-runerr:
			if err != nil {
				log.Logger(ctx).Fatal("run error", zap.Error(err))
			}
			log.Logger(ctx).Info("exiting")
			return
		case <-quit:
			cancel()
			go func() {
				time.Sleep(30 * time.Second)
				runerr <- fmt.Errorf("did not terminate after 30 seconds")
			}()
		}
	}
}

func run(ctx context.Context) error {
	workerConfig, err := newWorkerConfig()
	if err != nil {
		return err
	}
	if err := log.SetFormat(workerConfig.LogFormat); err != nil {
		return err
	}

	if err := cmd.InitGDAL(ctx, workerConfig.GDALConfig); err != nil {
		return fmt.Errorf("init gdal: %w", err)
	}

	db, err := cmd.OpenIndex(ctx, workerConfig.IndexConfigFile, *workerConfig.IndexConfig)
	if err != nil {
		return fmt.Errorf("open index: %w", err)
	}
	defer db.Close()

	mc := workerConfig.MessagingConfig
	defer mc.Close()
	eventPublisher, err := mc.EventPublisher(ctx)
	if err != nil {
		return fmt.Errorf("event publisher: %w", err)
	}
	jobConsumer, err := mc.JobConsumer(ctx, pubsub.OnErrorRetryDelay(time.Duration(workerConfig.RetryDelay)*time.Second))
	if err != nil {
		return fmt.Errorf("job consumer: %w", err)
	}

	opts := []svc.Option{svc.WithWorkspace(workerConfig.WorkDir)}
	if eventPublisher != nil {
		opts = append(opts, svc.WithEventPublisher(eventPublisher))
	}
	if mc.CancelledJobsStorage != "" {
		opts = append(opts, svc.WithCancelledJobsStorage(mc.CancelledJobsStorage))
	}
	service, err := svc.New(ctx, db, opts...)
	if err != nil {
		return fmt.Errorf("svc.New: %w", err)
	}

	var jobStarted atomic.Int64
	srv := newHealthServer(workerConfig.AppPort, &jobStarted)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Logger(ctx).Fatal("srv.ListenAndServe", zap.Error(err))
		}
	}()
	defer func() {
		if err := shutdown(srv, 10*time.Second); err != nil {
			log.Logger(ctx).Warn("srv.Shutdown", zap.Error(err))
		}
	}()

	log.Logger(ctx).Sugar().Infof("worker starts on %s", workerConfig.WorkDir)
	handler := jobHandler(service.HandleExportJob, workerConfig.RetryCount, &jobStarted)
	for ctx.Err() == nil {
		err := jobConsumer.Pull(ctx, handler)
		if err != nil && ctx.Err() == nil {
			return fmt.Errorf("consumer.Pull: %w", err)
		}
	}
	return nil
}

// jobHandler records the start of the job in jobStarted and acks the jobs that have been tried too many times.
// An error is returned (and the message retried) only for a temporary failure before the last try.
func jobHandler(handle messaging.Callback, retryCount int, jobStarted *atomic.Int64) messaging.Callback {
	return func(ctx context.Context, msg *messaging.Message) error {
		jobStarted.Store(time.Now().UnixNano())
		defer jobStarted.Store(0)

		if msg.TryCount > retryCount {
			log.Logger(ctx).Error("too many tries", zap.String("message_id", msg.ID), zap.Int("try", msg.TryCount))
			return nil
		}
		err := handle(ctx, msg)
		if err != nil && utils.Temporary(err) && msg.TryCount >= retryCount {
			log.Logger(ctx).Error("export failed after retries", zap.Error(err))
			return nil
		}
		return err
	}
}

// terminationCost writes the number of milliseconds since the current job started (0 if idle)
func terminationCost(jobStarted *atomic.Int64) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cost := int64(0)
		if started := jobStarted.Load(); started != 0 {
			cost = time.Since(time.Unix(0, started)).Milliseconds()
		}
		fmt.Fprintf(w, "%d", cost)
	}
}

// shutdown stops srv, waiting at most timeout for the active requests
func shutdown(srv *http.Server, timeout time.Duration) error {
	ctx, cncl := context.WithTimeout(context.Background(), timeout)
	defer cncl()
	return srv.Shutdown(ctx)
}

// newHealthServer serves the grpc health service and /termination_cost (milliseconds since the current job started)
func newHealthServer(port string, jobStarted *atomic.Int64) *http.Server {
	grpcServer := grpc.NewServer()
	healthpb.RegisterHealthServer(grpcServer, health.NewServer())

	muxHandler := http.NewServeMux()
	muxHandler.HandleFunc("/termination_cost", terminationCost(jobStarted))
	muxHandler.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.ProtoMajor == 2 && strings.HasPrefix(r.Header.Get("Content-Type"), "application/grpc") {
			grpcServer.ServeHTTP(w, r)
			return
		}
		fmt.Fprintf(w, "ok")
	})

	return &http.Server{
		Addr:    fmt.Sprintf(":%s", port),
		Handler: h2c.NewHandler(muxHandler, &http2.Server{}),
	}
}

type workerConfig struct {
	AppPort         string
	WorkDir         string
	LogFormat       string
	RetryCount      int
	RetryDelay      int
	IndexConfigFile string
	IndexConfig     *query.IndexConfig
	MessagingConfig *cmd.MessagingConfig
	GDALConfig      *cmd.GDALConfig
}

func newWorkerConfig() (*workerConfig, error) {
	c := workerConfig{}
	flag.StringVar(&c.AppPort, "port", "9000", "port of the health endpoints")
	flag.StringVar(&c.WorkDir, "workdir", os.TempDir(), "scratch work directory (outputs are written here before their upload)")
	flag.StringVar(&c.LogFormat, "logFormat", log.FormatJSON, "log format: json or console")
	flag.IntVar(&c.RetryCount, "retryCount", 3, "number of retries when an export fails with a temporary error (index unavailable)")
	flag.IntVar(&c.RetryDelay, "retryDelay", 60, "delay (seconds) before the retry of a job (pubsub only)")
	flag.StringVar(&c.IndexConfigFile, "indexConfig", "", "yaml configuration of the index")
	c.IndexConfig = cmd.IndexConfigFlagSet(flag.CommandLine)
	c.MessagingConfig = cmd.MessagingConfigFlagSet(flag.CommandLine)
	c.GDALConfig = cmd.GDALConfigFlags()

	flag.Parse()

	if c.WorkDir == "" {
		return nil, fmt.Errorf("missing --workdir config flag")
	}
	return &c, nil
}
