// dbmonctl is the operator CLI: one-shot collection runs, sample data
// generation and bulk-loading sample files into the store.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"dbmon/internal/collector"
	"dbmon/internal/config"
	"dbmon/internal/elasticsearch"
	"dbmon/internal/event"
	"dbmon/internal/logger"
	"dbmon/internal/models"
	"dbmon/internal/monitor"
)

var configFile string

func main() {
	rootCmd := &cobra.Command{
		Use:   "dbmonctl",
		Short: "Operator CLI for the SQL Server monitor",
	}
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "etc/config.yaml", "Path to configuration file")

	rootCmd.AddCommand(collectCmd())
	rootCmd.AddCommand(stressCmd())
	rootCmd.AddCommand(loadSamplesCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, error) {
	var cfg *config.Config
	if _, err := os.Stat(configFile); err == nil {
		cfg, err = config.LoadFromFile(configFile)
		if err != nil {
			return nil, err
		}
	} else {
		cfg = config.Load()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := logger.Init(cfg.Logger.Level, cfg.Logger.Output); err != nil {
		return nil, err
	}
	return cfg, nil
}

func collectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "collect",
		Short: "Run one collection cycle and print the result",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			defer logger.Sync()

			esClient, err := elasticsearch.NewClient(cfg.Elasticsearch)
			if err != nil {
				return err
			}
			if err := esClient.CreateIndexTemplates(); err != nil {
				logger.Warn("Failed to create index templates", zap.Error(err))
			}

			svc, err := monitor.NewService(cfg, esClient)
			if err != nil {
				return err
			}
			defer svc.Close()

			ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Minute)
			defer cancel()

			result, err := svc.RunCycle(ctx)
			if err != nil {
				return err
			}

			fmt.Printf("Run %s: collected %d events, indexed %d, raised %d alerts in %dms\n",
				result.RunID, result.EventsCollected, result.EventsIndexed,
				result.AlertsRaised, result.DurationMS)
			return nil
		},
	}
}

func stressCmd() *cobra.Command {
	var count int
	var output string

	cmd := &cobra.Command{
		Use:   "stress",
		Short: "Generate randomized sample events as JSONL",
		RunE: func(cmd *cobra.Command, args []string) error {
			if count < 1 {
				return fmt.Errorf("count must be at least 1")
			}
			records := collector.GenerateEvents(count)
			if err := collector.WriteJSONL(output, records); err != nil {
				return err
			}
			fmt.Printf("Wrote %d events to %s\n", len(records), output)
			return nil
		},
	}
	cmd.Flags().IntVar(&count, "count", 100, "Number of events to generate")
	cmd.Flags().StringVar(&output, "output", "sample_inputs/stress_metrics.jsonl", "Output JSONL path")
	return cmd
}

func loadSamplesCmd() *cobra.Command {
	var path string

	cmd := &cobra.Command{
		Use:   "load-samples",
		Short: "Normalize a JSONL sample file and bulk-index it into the store",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			defer logger.Sync()

			if path == "" {
				path = cfg.Collector.SamplePath
			}

			esClient, err := elasticsearch.NewClient(cfg.Elasticsearch)
			if err != nil {
				return err
			}
			if err := esClient.CreateIndexTemplates(); err != nil {
				logger.Warn("Failed to create index templates", zap.Error(err))
			}

			norm := &event.Normalizer{
				Host:     cfg.Collector.HostName,
				Instance: cfg.Collector.SQLInstance,
			}
			events, err := collector.NewReplayCollector(path, norm).Collect()
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Minute)
			defer cancel()

			indexed := 0
			for _, chunk := range collector.Chunk(events, cfg.Collector.ChunkSize) {
				if err := esClient.IndexEvents(ctx, chunk); err != nil {
					return err
				}
				indexed += len(chunk)
			}

			byType := make(map[string]int)
			for _, ev := range events {
				byType[ev.EventType]++
			}
			fmt.Printf("Indexed %d events from %s\n", indexed, path)
			for _, t := range models.EventTypes {
				if byType[t] > 0 {
					fmt.Printf("  %-20s %d\n", t, byType[t])
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&path, "path", "", "Sample JSONL path (defaults to collector.sample_path)")
	return cmd
}
