package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rsilvagit/cratedig/internal/cache"
	"github.com/rsilvagit/cratedig/internal/config"
	"github.com/rsilvagit/cratedig/internal/currency"
	"github.com/rsilvagit/cratedig/internal/filter"
	"github.com/rsilvagit/cratedig/internal/httpclient"
	"github.com/rsilvagit/cratedig/internal/logger"
	"github.com/rsilvagit/cratedig/internal/model"
	"github.com/rsilvagit/cratedig/internal/output"
	"github.com/rsilvagit/cratedig/internal/pipeline"
	"github.com/rsilvagit/cratedig/internal/progress"
	"github.com/rsilvagit/cratedig/internal/server"
	"github.com/rsilvagit/cratedig/internal/source"
)

func envOrFlag(flagVal, fallback string) string {
	if flagVal != "" {
		return flagVal
	}
	return fallback
}

func main() {
	if err := config.LoadDotEnv(".env"); err != nil {
		fmt.Fprintf(os.Stderr, "Aviso: %v\n", err)
	}

	configPath := flag.String("config", "", "Arquivo de configuração YAML (opcional)")
	discogsUser := flag.String("discogs", "", "Usuário do Discogs (wantlist)")
	bandcampUser := flag.String("bandcamp", "", "Usuário do Bandcamp (wishlist)")
	topN := flag.Int("top", 0, "Quantidade de discos no resultado (padrão 3)")
	maxPrice := flag.Float64("max-price", 0, "Preço máximo na moeda de referência")
	conditions := flag.String("condicao", "", "Condições aceitas, separadas por vírgula (ex: \"mint,vg+\")")
	terms := flag.String("termo", "", "Termos para filtrar pelo nome do disco (ex: \"coltrane,blue note\")")
	serve := flag.String("serve", "", "Sobe o servidor HTTP no endereço informado (ex: \":8080\")")
	timeout := flag.Duration("timeout", 0, "Timeout da busca (0 = sem limite)")
	telegramToken := flag.String("telegram-token", "", "Token do bot Telegram")
	telegramChatID := flag.String("telegram-chat-id", "", "Chat ID do Telegram")
	discordWebhook := flag.String("discord-webhook", "", "URL do webhook do Discord")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Erro: %v\n", err)
		os.Exit(1)
	}
	cfg.Discogs.Username = envOrFlag(*discogsUser, cfg.Discogs.Username)
	cfg.Bandcamp.Username = envOrFlag(*bandcampUser, cfg.Bandcamp.Username)
	cfg.Search.Conditions = envOrFlag(*conditions, cfg.Search.Conditions)
	if *topN > 0 {
		cfg.Search.TopN = *topN
	}
	if *maxPrice > 0 {
		cfg.Search.MaxPrice = *maxPrice
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Erro: %v\n", err)
		os.Exit(1)
	}
	if *serve == "" && cfg.Discogs.Username == "" && cfg.Bandcamp.Username == "" {
		fmt.Fprintln(os.Stderr, "Erro: informe -discogs e/ou -bandcamp")
		flag.Usage()
		os.Exit(1)
	}

	log := logger.Get()
	if err := log.Configure(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output, cfg.Logging.MaxAge); err != nil {
		fmt.Fprintf(os.Stderr, "Erro: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	hc, err := httpclient.New(cfg.HTTPOptions(log))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Erro: %v\n", err)
		os.Exit(1)
	}

	hub := progress.NewHub(64)
	var rates currency.RateCache
	if cfg.Redis.URL != "" {
		rates = connectRedis(ctx, cfg, hub, log)
	}

	conv := currency.NewConverter(hc, cfg.CurrencyOptions(rates, log))
	p := pipeline.New(source.Registry(hc, conv, cfg.SourceOptions(log)), pipeline.Options{
		TopN:     cfg.Search.TopN,
		Currency: string(cfg.ReferenceCurrency()),
		Filter: filter.Options{
			MaxPrice:   decimal.NewFromFloat(cfg.Search.MaxPrice),
			Conditions: cfg.Search.Conditions,
			Terms:      *terms,
		},
		Publisher: hub,
		Logger:    log,
	})

	if *serve != "" {
		runServer(ctx, *serve, p, hub, log)
		return
	}

	if *timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, *timeout)
		defer cancel()
	}

	events, unsubscribe := hub.Subscribe()
	go func() {
		for e := range events {
			fmt.Fprintln(os.Stderr, progress.Format(e))
		}
	}()

	res, err := p.Run(ctx, pipeline.Request{
		DiscogsUsername:  cfg.Discogs.Username,
		BandcampUsername: cfg.Bandcamp.Username,
	})
	unsubscribe()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Erro: %v\n", err)
		if model.IsConfigError(err) {
			flag.Usage()
		}
		os.Exit(1)
	}

	fmt.Println()
	writers := []output.ResultWriter{output.NewConsolePrinter(os.Stdout)}

	tkn := envOrFlag(*telegramToken, cfg.Notify.TelegramToken)
	chatID := envOrFlag(*telegramChatID, cfg.Notify.TelegramChatID)
	if tkn != "" && chatID != "" {
		writers = append(writers, output.NewTelegramWriter(tkn, chatID))
	}
	if hook := envOrFlag(*discordWebhook, cfg.Notify.DiscordWebhook); hook != "" {
		writers = append(writers, output.NewDiscordWriter(hook))
	}

	for _, w := range writers {
		if err := w.WriteResult(res); err != nil {
			fmt.Fprintf(os.Stderr, "Erro ao enviar resultados: %v\n", err)
		}
	}

	fmt.Printf("\nTotal: %d disco(s) no ranking.\n", len(res.Results))
}

// connectRedis enables the shared rate cache and the progress channel. Redis
// is optional: on failure the run continues without it.
func connectRedis(ctx context.Context, cfg *config.Config, hub *progress.Hub, log *logger.Log) currency.RateCache {
	var rates currency.RateCache
	if c, err := cache.New(cfg.Redis.URL, cfg.Redis.RateTTL); err != nil {
		log.WithError(err).Warn("redis unavailable, exchange rates will not be cached")
	} else {
		rates = c
	}

	sink, err := progress.NewRedisSink(cfg.Redis.URL, cfg.Redis.ProgressChannel, log)
	if err != nil {
		log.WithError(err).Warn("redis progress channel disabled")
		return rates
	}
	events, _ := hub.Subscribe()
	go func() {
		defer sink.Close()
		sink.Forward(ctx, events)
	}()
	return rates
}

func runServer(ctx context.Context, addr string, p *pipeline.Pipeline, hub *progress.Hub, log *logger.Log) {
	srv := server.New(p, hub, server.Options{Logger: log})

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.WithError(err).Error("shutdown failed")
		}
	}()

	fmt.Printf("Servidor ouvindo em %s\n", addr)
	if err := srv.Start(addr); err != nil {
		fmt.Fprintf(os.Stderr, "Erro: %v\n", err)
		os.Exit(1)
	}
}
