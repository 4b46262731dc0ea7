package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"time"

	"github.com/airbusgeo/dcquery/cmd"
	"github.com/airbusgeo/dcquery/interface/autoscaler"
	"github.com/airbusgeo/dcquery/interface/autoscaler/k8s"
	"github.com/airbusgeo/dcquery/internal/log"
	"go.uber.org/zap"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var (
		argupd      = flag.Duration("update", 30*time.Second, "time between updates")
		argdeploy   = flag.String("deployment", "", "K8S deployment of the export workers")
		argns       = flag.String("ns", "default", "deployment namespace")
		argratio    = flag.Float64("ratio", 1.0, "job/worker ratio over which workers will be added")
		argminratio = flag.Float64("minratio", 0.0, "job/worker ratio under which workers will be deleted, even busy")
		argstep     = flag.Uint("step", 3, "max worker increment/decrement")
		argmax      = flag.Uint("max", 15, "max number of workers")
		argmin      = flag.Uint("min", 0, "min number of workers")
		podCostPath = flag.String("pod.cost.path", "/termination_cost", "pod termination cost path")
		podCostPort = flag.Uint("pod.cost.port", 0, "pod termination cost port (0 to disable)")
		logFormat   = flag.String("logFormat", log.FormatJSON, "log format: json or console")
	)
	mc := cmd.MessagingConfigFlagSet(flag.CommandLine)
	flag.Parse()

	if err := log.SetFormat(*logFormat); err != nil {
		log.Logger(ctx).Fatal("log format", zap.Error(err))
	}
	if *argdeploy == "" {
		log.Logger(ctx).Fatal("missing --deployment")
	}
	ctx = log.WithFields(ctx, zap.String("deployment", *argdeploy))

	workers, err := k8s.New(*argdeploy, *argns)
	if err != nil {
		log.Logger(ctx).Fatal("k8s.New", zap.Error(err))
	}
	workers.CostPath = *podCostPath
	workers.CostPort = int(*podCostPort)

	defer mc.Close()
	queue, err := mc.JobQueue(ctx)
	if err != nil {
		log.Logger(ctx).Fatal("missing backlog configuration", zap.Error(err))
	}

	cfg := autoscaler.Config{
		Ratio:        *argratio,
		MinRatio:     *argminratio,
		MaxInstances: int64(*argmax),
		MinInstances: int64(*argmin),
		MaxStep:      int64(*argstep),
	}
	as, err := autoscaler.New(queue, workers, cfg, log.Logger(ctx))
	if err != nil {
		log.Logger(ctx).Fatal("autoscaler.New", zap.Error(err))
	}

	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, os.Interrupt)
		<-quit
		cancel()
	}()

	log.Logger(ctx).Sugar().Infof("starting autoscaler with refresh %s", argupd.String())
	as.Run(ctx, *argupd)
}
