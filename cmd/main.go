package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/baxromumarov/corochan"
)

func main() {
	os.Exit(run())
}

func run() int {
	var (
		configPath = flag.String("config", "", "path to a TOML runtime config")
		capacity   = flag.Int("capacity", 16, "channel capacity (0 for rendezvous)")
		producers  = flag.Int("producers", 4, "number of producer coroutines")
		consumers  = flag.Int("consumers", 4, "number of consumer coroutines")
		items      = flag.Int("items", 100000, "items pushed by each producer")
		timeout    = flag.Duration("timeout", 50*time.Millisecond, "per-pop timeout")
		metrics    = flag.String("metrics", "", "serve Prometheus metrics on this address, e.g. :9090")
	)
	flag.Parse()

	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	var opts []corochan.Option
	if *configPath != "" {
		cfg, err := corochan.LoadConfig(*configPath)
		if err != nil {
			log.WithError(err).Error("config")
			return 2
		}
		opts = append(opts, cfg.Options()...)
	}

	reg := prometheus.NewRegistry()
	opts = append(opts, corochan.WithLogger(log), corochan.WithMetrics(reg))
	if *metrics != "" {
		go func() {
			http.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
			if err := http.ListenAndServe(*metrics, nil); err != nil {
				log.WithError(err).Error("metrics server stopped")
			}
		}()
	}

	rt, err := corochan.New(opts...)
	if err != nil {
		log.WithError(err).Error("runtime")
		return 1
	}
	defer rt.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	var received, timeouts int
	start := time.Now()

	err = rt.Run(ctx, func(ctx context.Context, sp corochan.Spawner) error {
		ch := corochan.NewChannel[int](rt, *capacity, corochan.Named("work"))

		left := *producers
		if left == 0 {
			ch.Close()
		}
		for p := range *producers {
			sp.Go(fmt.Sprintf("producer-%d", p), func(ctx context.Context) error {
				defer func() {
					if left--; left == 0 {
						ch.Close()
					}
				}()
				for i := range *items {
					if err := ch.Push(ctx, i); err != nil {
						return err
					}
				}
				return nil
			})
		}

		for c := range *consumers {
			sp.Go(fmt.Sprintf("consumer-%d", c), func(ctx context.Context) error {
				for {
					_, err := ch.Pop(ctx, *timeout)
					switch {
					case err == nil:
						received++
					case errors.Is(err, corochan.ErrTimeout):
						timeouts++
					case errors.Is(err, corochan.ErrClosed):
						return nil
					default:
						return err
					}
				}
			})
		}
		return nil
	})

	elapsed := time.Since(start)
	stats := rt.Stats()
	log.WithFields(logrus.Fields{
		"received":   received,
		"timeouts":   timeouts,
		"elapsed":    elapsed,
		"per_second": int(float64(received) / elapsed.Seconds()),
		"coroutines": stats.Spawned,
	}).Info("done")

	if err != nil {
		log.WithError(err).Error("run failed")
		return 1
	}
	return 0
}
