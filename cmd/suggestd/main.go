// @title         Suggestfed
// @version       0.1.0
// @description   Federated suggestion aggregator: query fan-out, shortcuts, and click reporting

package main

import (
	"context"
	"time"

	"github.com/adhocore/gronx"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"golang.org/x/time/rate"

	"suggestfed/internal/modkit"
	"suggestfed/internal/modkit/httpkit"
	"suggestfed/internal/modkit/module"
	"suggestfed/internal/modkit/swaggerkit"
	"suggestfed/internal/platform/config"
	"suggestfed/internal/platform/logger"
	phttp "suggestfed/internal/platform/net/http"
	"suggestfed/internal/platform/store"

	clickmod "suggestfed/internal/services/clickreport/module"
	csvc "suggestfed/internal/services/clickreport/service"
	querymod "suggestfed/internal/services/suggestquery/module"

	"suggestfed/internal/suggest/clicklog"
	"suggestfed/internal/suggest/domain"
	"suggestfed/internal/suggest/exec"
	"suggestfed/internal/suggest/mux"
	"suggestfed/internal/suggest/refresh"
	"suggestfed/internal/suggest/session"
	"suggestfed/internal/suggest/sessionmgr"
	"suggestfed/internal/suggest/shortcuts"
	"suggestfed/internal/sourcereg"
)

func main() {
	root := config.New()
	svcCfg := root.Prefix("SUGGESTFED_")
	dbCfg := root.Prefix("SUGGESTFED_DB_")
	l := logger.Get()

	tp := sdktrace.NewTracerProvider()
	otel.SetTracerProvider(tp)
	defer func() {
		if err := tp.Shutdown(context.Background()); err != nil {
			l.Warn().Err(err).Msg("tracer provider shutdown failed")
		}
	}()

	st, err := store.Open(
		context.Background(),
		store.Config{
			AppName: "suggestfed",
			SQLite: store.SQLiteConfig{
				Enabled: true,
				Path:    dbCfg.MayString("PATH", "./data/suggestfed.db"),
				LogSQL:  dbCfg.MayBool("LOG_SQL", false),
			},
		},
		store.WithLogger(*l),
	)
	if err != nil {
		l.Panic().Err(err).Msg("store.Open failed")
	}
	defer func() {
		if err := st.Close(context.Background()); err != nil {
			l.Error().Err(err).Msg("failed to close store")
		}
	}()

	maxStatAgeMs := int64(svcCfg.MayInt("MAX_STAT_AGE_MS", 30*24*60*60*1000))
	if err := shortcuts.EnsureSchema(context.Background(), st.DB, maxStatAgeMs); err != nil {
		l.Panic().Err(err).Msg("shortcuts.EnsureSchema failed")
	}

	repo := shortcuts.New(st.DB, shortcuts.Config{
		MaxStatAgeMs:         maxStatAgeMs,
		MaxSourceEventAgeMs:  int64(svcCfg.MayInt("MAX_SOURCE_EVENT_AGE_MS", 7*24*60*60*1000)),
		MaxShortcutsReturned: svcCfg.MayInt("MAX_SHORTCUTS_RETURNED", 6),
		SpinnerSentinelIcon:  svcCfg.MayString("SPINNER_ICON", "spinner"),
	}, *logger.Named("shortcuts"))

	registry := sourcereg.New(svcCfg.MayString("SOURCE_MANIFEST", "./sources.json"), *logger.Named("sourcereg"))
	if err := registry.Load(); err != nil {
		l.Warn().Err(err).Msg("initial source manifest load failed, starting with zero sources")
	}

	watchCtx, stopWatch := context.WithCancel(context.Background())
	defer stopWatch()
	go func() {
		if err := registry.Watch(watchCtx); err != nil && watchCtx.Err() == nil {
			l.Error().Err(err).Msg("sourcereg.Watch stopped")
		}
	}()
	defer registry.Close()

	perTagLimit := svcCfg.MayInt("PER_TAG_LIMIT", 4)
	perTagBurst := svcCfg.MayFloat64("PER_TAG_BURST_RPS", 0)
	executor := exec.NewPerTagExecutor(perTagLimit, rate.Limit(perTagBurst))
	delayed := exec.NewDelayedExecutor()
	defer delayed.Close()

	queryMux := mux.New(executor, delayed, mux.Config{
		MaxResultsPerSource:     svcCfg.MayInt("MAX_RESULTS_PER_SOURCE", 8),
		WebResultsOverrideLimit: svcCfg.MayInt("WEB_RESULTS_OVERRIDE_LIMIT", 3),
		SourceTimeoutMs:         svcCfg.MayInt("SOURCE_TIMEOUT_MS", 2000),
	})

	refresher := refresh.New(svcCfg.MayInt("REFRESH_CONCURRENCY", 4), repo, *logger.Named("refresh"))

	clickSink := clicklog.NewLoggingSink(*logger.Named("clicklog"))

	var webSource domain.SourceIdentifier
	hasWebSource := false
	if raw := svcCfg.MayString("WEB_SOURCE", ""); raw != "" {
		if id, err := domain.ParseSourceIdentifier(raw); err == nil {
			webSource, hasWebSource = id, true
		} else {
			l.Warn().Err(err).Str("value", raw).Msg("invalid SUGGESTFED_WEB_SOURCE, ignoring")
		}
	}

	numPromoted := svcCfg.MayInt("NUM_PROMOTED_SOURCES", 3)

	sessions := sessionmgr.New(
		registry,
		repo,
		queryMux,
		refresher,
		delayed,
		clickSink,
		sessionmgr.Config{
			NumPromotedSources:       numPromoted,
			MinImpressionsForRanking: int64(svcCfg.MayInt("MIN_IMPRESSIONS_FOR_RANKING", 10)),
			MinClicksForRanking:      int64(svcCfg.MayInt("MIN_CLICKS_FOR_RANKING", 1)),
			WebSource:                webSource,
			HasWebSource:             hasWebSource,
			Trusted:                  func(domain.SourceIdentifier) bool { return true },
		},
		session.Config{
			NumPromotedSources:  numPromoted,
			MaxPromotedSlots:    svcCfg.MayInt("MAX_PROMOTED_SLOTS", 4),
			PromotedDeadlineMs:  int64(svcCfg.MayInt("PROMOTED_DEADLINE_MS", 200)),
			SourceTimeoutMs:     svcCfg.MayInt("SOURCE_TIMEOUT_MS", 2000),
			NotifyWindowMs:      int64(svcCfg.MayInt("NOTIFY_WINDOW_MS", 100)),
			PrefillMs:           int64(svcCfg.MayInt("PREFILL_MS", 0)),
			MaxRefreshResults:   svcCfg.MayInt("MAX_REFRESH_RESULTS", 6),
			RefreshConcurrency:  svcCfg.MayInt("REFRESH_CONCURRENCY", 4),
			MaxResultsPerSource: svcCfg.MayInt("MAX_RESULTS_PER_SOURCE", 8),
			WebResultsOverride:  svcCfg.MayInt("WEB_RESULTS_OVERRIDE_LIMIT", 3),
		},
		goToWebsiteFactory,
		searchTheWebFactory,
		*logger.Named("sessionmgr"),
	)

	sweepCtx, stopSweep := context.WithCancel(context.Background())
	defer stopSweep()
	go runSweep(sweepCtx, svcCfg, repo, registry, refresher, *logger.Named("sweep"))

	deps := modkit.Deps{Log: *l, Cfg: svcCfg, DB: st.DB}

	mods := []module.Module{
		querymod.New(deps, sessions),
		clickmod.New(deps, repo, csvc.Config{
			NumPromotedSources:       numPromoted,
			MinImpressionsForRanking: int64(svcCfg.MayInt("MIN_IMPRESSIONS_FOR_RANKING", 10)),
			MinClicksForRanking:      int64(svcCfg.MayInt("MIN_CLICKS_FOR_RANKING", 1)),
		}),
	}

	srv := phttp.NewServer(svcCfg)
	r := srv.Router()
	httpkit.MountAPIV1(r, httpkit.CommonStack(), func(api httpkit.Router) {
		swaggerkit.Mount(r, svcCfg.MayBool("SWAGGER", true))
		for _, m := range mods {
			module.Register(m.Name(), m.Ports())
			m.MountRoutes(api)
		}
	})

	if err := srv.Run(context.Background()); err != nil {
		l.Panic().Err(err).Msg("http server stopped")
	}
}

// goToWebsiteFactory builds the synthetic "go to <url>" row the way the
// original QuickSearchBox's GoogleSearch source did for URL-shaped queries
func goToWebsiteFactory(q string) *domain.Suggestion {
	if q == "" {
		return nil
	}
	s := domain.NewBuilder(domain.SourceIdentifier{Package: "suggestfed", Class: "GoToWebsite"}).
		Format("builtin/go_to_website").
		Title(q).
		Action("VIEW").
		Data("https://" + q).
		Query(q).
		Build()
	return &s
}

// searchTheWebFactory builds the synthetic "search the web for <q>" row
func searchTheWebFactory(q string) *domain.Suggestion {
	if q == "" {
		return nil
	}
	s := domain.NewBuilder(domain.SourceIdentifier{Package: "suggestfed", Class: "SearchTheWeb"}).
		Format("builtin/search_the_web").
		Title(q).
		Action("SEARCH").
		Data(q).
		Query(q).
		Build()
	return &s
}

// runSweep walks the whole shortcut table on a cron schedule and revalidates
// stale rows via the same Refresher a live session uses, independent of any
// open session (spec's background maintenance sweep, dropped by the
// distillation but present in original_source)
func runSweep(
	ctx context.Context,
	cfg config.Conf,
	repo *shortcuts.SQLite,
	registry *sourcereg.Registry,
	refresher *refresh.Refresher,
	log logger.Logger,
) {
	expr := cfg.MayString("SWEEP_CRON", "0 */6 * * *")
	gx := gronx.New()
	if !gx.IsValid(expr) {
		log.Error().Str("expr", expr).Msg("invalid sweep cron expression, sweep disabled")
		return
	}

	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			due, err := gx.IsDue(expr, now)
			if err != nil {
				log.Error().Err(err).Msg("sweep: cron evaluation failed")
				continue
			}
			if !due {
				continue
			}

			all, err := repo.GetShortcutsForQuery(ctx, "", now)
			if err != nil {
				log.Error().Err(err).Msg("sweep: failed to load shortcuts")
				continue
			}
			if len(all) == 0 {
				continue
			}

			log.Info().Int("count", len(all)).Msg("sweep: revalidating shortcuts")
			refresher.RefreshAll(ctx, all, len(all), registry.Lookup, noopReceiver{})
		}
	}
}

type noopReceiver struct{}

func (noopReceiver) RefreshShortcut(domain.SourceIdentifier, string, *domain.Suggestion) {}
