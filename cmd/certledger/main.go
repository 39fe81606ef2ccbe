// Copyright 2025 The Certledger Authors. All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// The certledger binary runs a single log instance: it sequences queued
// entries on a cadence, publishes signed tree heads and exposes metrics.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v2"
	"k8s.io/klog/v2"

	"github.com/certledger/certledger/crypto/keys/pem"
	"github.com/certledger/certledger/log"
	"github.com/certledger/certledger/merkle/rfc6962"
	"github.com/certledger/certledger/monitoring/prometheus"
	"github.com/certledger/certledger/storage"
	"github.com/certledger/certledger/storage/boltdb"
	"github.com/certledger/certledger/storage/memory"
	"github.com/certledger/certledger/util/clock"

	logcrypto "github.com/certledger/certledger/crypto"
)

var (
	configFile       = flag.String("config", "", "Optional YAML config file; flags set on the command line take precedence")
	storageBackend   = flag.String("storage", "memory", "Storage backend: memory or bolt")
	boltPath         = flag.String("bolt_path", "certledger.db", "Database file path for the bolt backend")
	privateKeyPath   = flag.String("private_key", "", "PEM file holding the log's private signing key (required)")
	sequenceInterval = flag.Duration("sequence_interval", time.Second, "Interval between signing runs")
	batchSize        = flag.Int("batch_size", log.DefaultBatchSize, "Maximum entries sequenced per signing run")
	metricsAddr      = flag.String("metrics_addr", ":8091", "Listen address for the /metrics endpoint, empty to disable")
)

// fileConfig mirrors the flag set for YAML configuration. Values from the
// file apply only where the corresponding flag was left at its default.
type fileConfig struct {
	Storage          string `yaml:"storage"`
	BoltPath         string `yaml:"bolt_path"`
	PrivateKey       string `yaml:"private_key"`
	SequenceInterval string `yaml:"sequence_interval"`
	BatchSize        int    `yaml:"batch_size"`
	MetricsAddr      string `yaml:"metrics_addr"`
}

func applyConfigFile(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %q: %v", path, err)
	}
	var cfg fileConfig
	if err := yaml.UnmarshalStrict(raw, &cfg); err != nil {
		return fmt.Errorf("parse config %q: %v", path, err)
	}

	set := map[string]bool{}
	flag.Visit(func(f *flag.Flag) { set[f.Name] = true })

	if cfg.Storage != "" && !set["storage"] {
		*storageBackend = cfg.Storage
	}
	if cfg.BoltPath != "" && !set["bolt_path"] {
		*boltPath = cfg.BoltPath
	}
	if cfg.PrivateKey != "" && !set["private_key"] {
		*privateKeyPath = cfg.PrivateKey
	}
	if cfg.SequenceInterval != "" && !set["sequence_interval"] {
		d, err := time.ParseDuration(cfg.SequenceInterval)
		if err != nil {
			return fmt.Errorf("config sequence_interval: %v", err)
		}
		*sequenceInterval = d
	}
	if cfg.BatchSize != 0 && !set["batch_size"] {
		*batchSize = cfg.BatchSize
	}
	if cfg.MetricsAddr != "" && !set["metrics_addr"] {
		*metricsAddr = cfg.MetricsAddr
	}
	return nil
}

func newStorage(mf prometheus.MetricFactory) (storage.LogStorage, error) {
	switch *storageBackend {
	case "memory":
		return memory.NewLogStorage(mf), nil
	case "bolt":
		return boltdb.NewLogStorage(*boltPath, mf)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", *storageBackend)
	}
}

func main() {
	klog.InitFlags(nil)
	flag.Parse()
	defer klog.Flush()

	if *configFile != "" {
		if err := applyConfigFile(*configFile); err != nil {
			klog.Exitf("Failed to apply config file: %v", err)
		}
	}
	if *privateKeyPath == "" {
		klog.Exit("The -private_key flag is required")
	}

	key, err := pem.ReadPrivateKeyFile(*privateKeyPath)
	if err != nil {
		klog.Exitf("Failed to load signing key: %v", err)
	}

	mf := prometheus.MetricFactory{Prefix: "certledger_"}
	store, err := newStorage(mf)
	if err != nil {
		klog.Exitf("Failed to open storage: %v", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			klog.Warningf("Failed to close storage: %v", err)
		}
	}()

	sequencer := log.NewSequencer(rfc6962.DefaultHasher, logcrypto.NewSigner(key), store, clock.System, *batchSize, mf)
	manager := log.NewOperationManager(sequencer, *sequenceInterval, clock.System)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		manager.OperationLoop(ctx)
		return nil
	})

	if *metricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		srv := &http.Server{Addr: *metricsAddr, Handler: mux}
		g.Go(func() error {
			klog.Infof("Serving metrics on %s", *metricsAddr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	klog.Infof("certledger started: storage=%s interval=%v batch=%d", *storageBackend, *sequenceInterval, *batchSize)
	if err := g.Wait(); err != nil {
		klog.Exitf("Server exited with error: %v", err)
	}
	klog.Info("certledger stopped")
}
