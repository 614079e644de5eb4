// Package telemetry provides observability instrumentation for replug.
//
// The telemetry package integrates structured logging (zerolog), distributed tracing
// (OpenTelemetry), metrics (Prometheus), and event publishing into a unified system
// for monitoring and debugging fix runs.
//
// # Architecture
//
// The telemetry system is built on four pillars:
//
//  1. Structured Logging - Context-aware logging with zerolog
//  2. Distributed Tracing - OpenTelemetry traces with multiple exporters
//  3. Metrics Collection - Prometheus metrics for operational insights
//  4. Event Publishing - Async event system for audit and notifications
//
// # Usage
//
// Initialize telemetry at application startup:
//
//	cfg := telemetry.DefaultConfig()
//	cfg.ServiceName = "replug"
//	cfg.ServiceVersion = "1.0.0"
//
//	tel, err := telemetry.NewTelemetry(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer tel.Shutdown(context.Background())
//
//	// Start metrics server
//	if err := tel.StartMetricsServer(); err != nil {
//	    log.Fatal(err)
//	}
//
// Add telemetry to context:
//
//	ctx = tel.WithContext(ctx)
//
// # Structured Logging
//
// The logger provides component-specific logging with automatic context propagation:
//
//	logger := tel.Logger.NewComponentLogger("reload")
//	logger = logger.WithRunID("run-123").WithUnit("patch-engine")
//	logger.Info("Unloading unit")
//	logger.WithError(err).Warn("Unit not unloaded")
//
// Log levels: trace, debug, info, warn, error, fatal
//
// # Distributed Tracing
//
// Tracing provides visibility into request flow and performance:
//
//	ctx, span := tel.Tracer.Start(ctx, "operation.name")
//	defer span.End()
//
//	// Add attributes
//	span.SetAttributes(
//	    attribute.String("unit.name", unitName),
//	    attribute.String("unit.operation", "load"),
//	)
//
//	// Record events
//	span.AddEvent("checksum.verified")
//
//	// Record errors
//	if err != nil {
//	    telemetry.RecordError(span, err)
//	}
//
// Supported exporters: OTLP (production), Stdout (development), None (testing)
//
// # Metrics
//
// Prometheus metrics track system behavior and performance:
//
//	// Record fix runs
//	tel.Metrics.RecordFixStarted("cli")
//	tel.Metrics.RecordFixCompleted("succeeded", duration)
//
//	// Record configuration patches
//	tel.Metrics.RecordSettingPatched("PLUGIN_LOADER_ENABLED")
//	tel.Metrics.RecordPatchFailure("open")
//
//	// Record unit churn
//	tel.Metrics.RecordUnitsUnloaded(2)
//	tel.Metrics.RecordUnitsLoaded(3)
//
//	// Record validation health
//	tel.Metrics.SetValidationScore(80)
//
// Metrics are exposed via HTTP at /metrics (default: :9090/metrics)
//
// # Event Publishing
//
// The event system provides async publishing with buffering and filtering:
//
//	// Publish events
//	tel.Events.PublishFixStarted(runID, "watch")
//	tel.Events.PublishUnitUnloaded(runID, "overlay-menu")
//	tel.Events.PublishVerifyFailed(runID, issues)
//
//	// Subscribe to events
//	tel.Events.Subscribe(func(event telemetry.Event) {
//	    fmt.Printf("Event: %s - %s\n", event.Type, event.Message)
//	}, telemetry.FilterByLevel("warning"))
//
// Event filters: FilterByLevel, FilterByType, FilterByRunID, FilterByUnit
//
// # Context Helpers
//
// High-level helpers simplify common instrumentation patterns:
//
//	// Instrument an operation
//	ic := telemetry.StartOperation(ctx, "config.validate",
//	    attribute.String("config.path", path))
//	defer ic.End(err)
//
//	ic.Logger.Info("Validating configuration")
//
//	// Fix run context
//	ctx = telemetry.WithFixContext(ctx, runID, source)
//	defer telemetry.EndFixContext(ctx, runID, status, err)
//
//	// Unit operation
//	err := telemetry.RecordUnitOperation(ctx, "patch-engine", "load", func() error {
//	    _, err := registry.LoadUnit(ctx, path)
//	    return err
//	})
//
// # Configuration
//
// The package provides pre-configured setups for different environments:
//
//	// Development (verbose logging, stdout traces, full sampling)
//	cfg := telemetry.DevelopmentConfig()
//
//	// Production (JSON logs, OTLP traces, 10% sampling)
//	cfg := telemetry.ProductionConfig()
//
//	// Custom configuration
//	cfg := &telemetry.Config{
//	    ServiceName: "replug",
//	    ServiceVersion: "1.0.0",
//	    Environment: "staging",
//	    Logging: telemetry.LoggingConfig{
//	        Level: "info",
//	        Format: "json",
//	    },
//	    Tracing: telemetry.TracingConfig{
//	        Enabled: true,
//	        Exporter: "otlp",
//	        Endpoint: "otel-collector:4317",
//	        SamplingRate: 0.1,
//	    },
//	    Metrics: telemetry.MetricsConfig{
//	        Enabled: true,
//	        ListenAddress: ":9090",
//	    },
//	}
//
// # Graceful Shutdown
//
// Always shut down telemetry gracefully to flush pending data:
//
//	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
//	defer cancel()
//
//	if err := tel.Shutdown(ctx); err != nil {
//	    log.Printf("Telemetry shutdown error: %v", err)
//	}
//
// This ensures:
//  - All buffered events are published
//  - All pending traces are exported
//  - Metrics are finalized
//
// # Common Metrics
//
// Key metrics exposed:
//
//  - replug_fix_runs_started_total{source}
//  - replug_fix_runs_completed_total{status}
//  - replug_fix_run_duration_seconds{status}
//  - replug_settings_patched_total{key}
//  - replug_patch_failures_total{class}
//  - replug_units_unloaded_total
//  - replug_units_loaded_total
//  - replug_unit_load_failures_total
//  - replug_config_validation_score
//  - replug_watch_events_total{reason}
//  - replug_active_fix_runs
//
// # Best Practices
//
//  1. Always use context to propagate telemetry
//  2. Use component-specific loggers for clarity
//  3. Add meaningful attributes to spans
//  4. Record both success and failure metrics
//  5. Use appropriate log levels
//  6. Filter events to avoid overwhelming subscribers
//  7. Configure sampling for high-volume systems
//  8. Always call defer span.End() after starting a span
//  9. Shut down gracefully to avoid data loss
//
// # Security Considerations
//
//  - Never log sensitive data (credentials, keys, tokens)
//  - Use secure connections (TLS) for trace exporters in production
//  - Limit metrics endpoint access via network policies
//  - Consider event data before adding to audit logs
//
package telemetry
