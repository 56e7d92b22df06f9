package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/redis/go-redis/v9"

	"github.com/Krimson/vitals-monitory/internal/aggregate"
	"github.com/Krimson/vitals-monitory/internal/api"
	"github.com/Krimson/vitals-monitory/internal/cache"
	"github.com/Krimson/vitals-monitory/internal/classify"
	"github.com/Krimson/vitals-monitory/internal/config"
	"github.com/Krimson/vitals-monitory/internal/history"
	"github.com/Krimson/vitals-monitory/internal/live"
	"github.com/Krimson/vitals-monitory/internal/realtime"
)

func main() {
	log.Printf("[INFO] Starting vitals monitoring client...")

	cfg := config.Load()
	log.Printf("[INFO] Configuration loaded: http_port=%s cache_backend=%s realtime_url=%s",
		cfg.HTTPPort, cfg.CacheBackend, cfg.RealtimeURL)

	store, err := newStore(cfg)
	if err != nil {
		log.Fatalf("[FATAL] Failed to initialize cache store: %v", err)
	}
	defer store.Close()

	fetcher := history.NewHTTPFetcher(cfg.HistoryBaseURL)
	synchronizer := history.NewSynchronizer(fetcher, store, history.Options{
		RequestDelay:    cfg.RequestDelay,
		RequestLookback: cfg.RequestLookback,
		WindowDays:      cfg.HistoryWindowDays,
	})

	tracker := live.NewTracker(cfg.StalenessTimeout)
	defer tracker.Close()

	client := realtime.NewClient(cfg.RealtimeURL, cfg.ReconnectDelay)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	if err := client.Connect(ctx); err != nil {
		// Живой канал переподключится сам; история работает и без него
		log.Printf("[WARN] Realtime connection failed, will keep retrying: %v", err)
	}
	cancel()

	// Обновления живого канала применяются в порядке прихода.
	// Каждый сэмпл также дозаписывается в локальную историю под
	// действующим набором порогов — между проходами синхронизации
	// графики не отстают от живого потока.
	go func() {
		for update := range client.Updates() {
			tracker.Apply(update)

			thresholdsID := ""
			if set := synchronizer.CurrentThresholds(); set != nil {
				thresholdsID = set.ThresholdsID
			}
			appendCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			synchronizer.AppendLive(appendCtx, update.PatientID, update.Sample(thresholdsID, "live"))
			cancel()
		}
	}()

	// Преднастроенный пациент: состояние поднимается из локального
	// кэша еще до первого успешного фетча (офлайн-старт)
	if cfg.WatchPatientID != "" {
		restoreCtx, cancelRestore := context.WithTimeout(context.Background(), 10*time.Second)
		if err := synchronizer.Restore(restoreCtx, cfg.WatchPatientID); err != nil {
			log.Printf("[WARN] Failed to restore cached state for patient %s: %v", cfg.WatchPatientID, err)
		}
		cancelRestore()

		tracker.SetPatient(cfg.WatchPatientID)
		if err := client.Subscribe(cfg.WatchPatientID); err != nil {
			log.Printf("[WARN] Failed to subscribe to patient %s: %v", cfg.WatchPatientID, err)
		}
	}

	// Периодический триггер инкрементальной синхронизации
	syncStop := make(chan struct{})
	go func() {
		ticker := time.NewTicker(cfg.SyncInterval)
		defer ticker.Stop()
		for {
			select {
			case <-syncStop:
				return
			case <-ticker.C:
				patientID := synchronizer.Patient()
				if patientID == "" {
					continue
				}
				syncCtx, cancel := context.WithTimeout(context.Background(), 45*time.Second)
				if _, err := synchronizer.Sync(syncCtx, patientID, false); err != nil {
					log.Printf("[WARN] Periodic sync failed: %v", err)
				}
				cancel()
			}
		}
	}()

	aggregator := aggregate.NewAggregator(cfg.MinIntervalSeconds, cfg.MaxIntervals)
	classifier := classify.NewClassifier(nil)

	router := mux.NewRouter()
	handler := api.NewHTTPHandler(client, tracker, synchronizer, aggregator, classifier)
	handler.RegisterRoutes(router)

	server := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.HTTPPort),
		Handler: router,
	}

	serverErrChan := make(chan error, 1)
	go func() {
		log.Printf("[INFO] HTTP API listening on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrChan <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	shutdownChan := make(chan os.Signal, 1)
	signal.Notify(shutdownChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErrChan:
		log.Printf("[ERROR] Server error: %v", err)

	case sig := <-shutdownChan:
		log.Printf("[INFO] Received signal %v, starting graceful shutdown...", sig)

		close(syncStop)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("[WARN] HTTP shutdown error: %v", err)
		}

		// Снимаем подписку до закрытия соединения
		if err := client.Close(); err != nil {
			log.Printf("[WARN] Realtime close error: %v", err)
		}

		log.Printf("[INFO] Graceful shutdown completed")
	}

	log.Printf("[INFO] Client stopped")
}

func newStore(cfg *config.Config) (cache.Store, error) {
	switch cfg.CacheBackend {
	case "sqlite":
		return cache.NewSQLiteStore(cfg.SQLiteDir)
	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		return cache.NewRedisStore(client), nil
	case "memory":
		return cache.NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown cache backend: %s", cfg.CacheBackend)
	}
}
