// Command battlesim runs one battle between two rosters and prints its timeline.
//
// Usage:
//
//	go run ./cmd/battlesim -config config/battlesim.yaml -roster config/roster.yaml
//
// With auto_battle disabled, player actions are read from stdin, one per line:
//
//	<caster> <skill> [target...]
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"net"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/udisondev/beastcall/internal/config"
	"github.com/udisondev/beastcall/internal/data"
	"github.com/udisondev/beastcall/internal/db"
	"github.com/udisondev/beastcall/internal/feed"
	"github.com/udisondev/beastcall/internal/game/battle"
	"github.com/udisondev/beastcall/internal/game/reward"
	"github.com/udisondev/beastcall/internal/game/stats"
	"github.com/udisondev/beastcall/internal/model"
)

const (
	ConfigPath = "config/battlesim.yaml"
	RosterPath = "config/roster.yaml"

	recentBattles = 5
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdin, os.Stdout); err != nil {
		slog.Error("fatal", "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdin io.Reader, stdout io.Writer) error {
	fs := flag.NewFlagSet("battlesim", flag.ContinueOnError)
	cfgPath := fs.String("config", envOr("BEASTCALL_CONFIG", ConfigPath), "config file")
	rosterPath := fs.String("roster", "", "roster file (overrides config)")
	seed := fs.Uint64("seed", 0, "roll seed (overrides config)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := config.LoadBattleSim(*cfgPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if err := config.ApplyEnv(&cfg); err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if *rosterPath != "" {
		cfg.RosterPath = *rosterPath
	}
	if *seed != 0 {
		cfg.Seed = *seed
	}
	if cfg.RosterPath == "" {
		cfg.RosterPath = RosterPath
	}
	if cfg.Seed == 0 {
		cfg.Seed = rand.Uint64()
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: parseLogLevel(cfg.LogLevel),
	}))
	slog.SetDefault(logger)
	logger.Info("battlesim starting", "log_level", cfg.LogLevel, "seed", cfg.Seed, "auto", cfg.AutoBattle)

	catalog := data.DefaultCatalog()
	if cfg.CatalogPath != "" {
		if catalog, err = data.LoadCatalog(cfg.CatalogPath); err != nil {
			return fmt.Errorf("loading catalog: %w", err)
		}
	}
	roster, err := data.LoadRoster(cfg.RosterPath)
	if err != nil {
		return fmt.Errorf("loading roster: %w", err)
	}

	engine := stats.NewEngine(data.DefaultDerivationTable(), logger)
	derived, err := engine.DeriveRoster(ctx, catalog, stats.RosterRequests(roster))
	if err != nil {
		return err
	}
	units := stats.Units(derived)
	logger.Info("roster derived", "player", len(roster.Player), "enemy", len(roster.Enemy))

	rng := rand.New(rand.NewPCG(cfg.Seed, cfg.Seed^0x9e3779b97f4a7c15))
	timeline := battle.NewTimeline()
	rewards := reward.NewSink(
		reward.NewComputer(catalog, cfg.Battle.Rewards, rng, logger),
		reward.NewDistributor(catalog, engine),
		logger, nil)

	opts := []battle.Option{
		battle.WithLogger(logger),
		battle.WithRoller(rng),
		battle.WithAutoBattle(cfg.AutoBattle),
		battle.WithObserver(timeline),
		battle.WithResultSink(rewards),
	}

	repo, err := db.Open(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	if repo != nil {
		defer repo.Close()
		opts = append(opts, battle.WithResultSink(repo))
		logger.Info("battle history enabled", "driver", cfg.Database.Driver)
	}

	var hub *feed.Hub
	var ln net.Listener
	if cfg.FeedAddr != "" {
		if ln, err = net.Listen("tcp", cfg.FeedAddr); err != nil {
			return fmt.Errorf("listening feed: %w", err)
		}
		hub = feed.NewHub(cfg.FeedQueueSize, logger)
		opts = append(opts, battle.WithObserver(hub))
	}

	m, err := battle.NewMachine(cfg.Battle, catalog, opts...)
	if err != nil {
		return err
	}
	if err := m.Start(ctx, units); err != nil {
		return fmt.Errorf("starting battle: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	feedCtx, stopFeed := context.WithCancel(gctx)
	defer stopFeed()

	if hub != nil {
		g.Go(func() error { return hub.Serve(feedCtx, ln) })
	}
	if !cfg.AutoBattle {
		// Not part of the group: a blocked stdin read must not hold up shutdown.
		go readActions(stdin, m, stdout)
	}

	var res battle.Result
	g.Go(func() error {
		defer stopFeed()
		var err error
		res, err = m.Run(gctx)
		return err
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("running battle: %w", err)
	}

	printTimeline(stdout, timeline.Drain())
	printResult(stdout, res, rewards)

	if repo != nil {
		recent, err := repo.Recent(context.WithoutCancel(ctx), recentBattles)
		if err != nil {
			return fmt.Errorf("reading history: %w", err)
		}
		fmt.Fprintf(stdout, "\nrecent battles:\n")
		for _, s := range recent {
			fmt.Fprintf(stdout, "  %s  %-7s rounds=%d actions=%d  %s\n",
				s.EndedAt.Format("2006-01-02 15:04:05"), s.Outcome, s.Rounds, s.Actions, s.BattleID)
		}
	}
	return nil
}

// readActions submits one action per input line until EOF.
func readActions(r io.Reader, m *battle.Machine, w io.Writer) {
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		fields := strings.Fields(sc.Text())
		if len(fields) < 2 {
			fmt.Fprintln(w, "usage: <caster> <skill> [target...]")
			continue
		}
		err := m.Submit(model.Action{CasterID: fields[0], SkillID: fields[1], TargetIDs: fields[2:]})
		if err != nil {
			fmt.Fprintf(w, "rejected: %v\n", err)
			continue
		}
		if missing := m.Missing(); len(missing) > 0 {
			fmt.Fprintf(w, "waiting for: %s\n", strings.Join(missing, ", "))
		}
	}
}

func printTimeline(w io.Writer, cues []battle.Cue) {
	for _, c := range cues {
		switch {
		case c.Action != nil:
			for _, t := range c.Action.Targets {
				fmt.Fprintf(w, "[r%d] %s uses %s on %s: %s\n",
					c.Round, c.Action.CasterID, c.Action.SkillID, t.TargetID, describe(t))
			}
			if len(c.Action.Targets) == 0 {
				fmt.Fprintf(w, "[r%d] %s uses %s\n", c.Round, c.Action.CasterID, c.Action.SkillID)
			}
		case c.Unit != nil && c.Type == battle.EventUnitCaptured:
			fmt.Fprintf(w, "[r%d] %s was captured\n", c.Round, c.Unit.Name)
		case c.Unit != nil:
			fmt.Fprintf(w, "[r%d] %s was defeated\n", c.Round, c.Unit.Name)
		}
	}
}

func describe(t battle.TargetCue) string {
	switch {
	case t.Missed:
		return "miss"
	case t.Captured:
		return "captured"
	case t.Heal > 0:
		return fmt.Sprintf("+%d HP", t.Heal)
	case t.Crit:
		return fmt.Sprintf("%d damage (critical)", t.Damage)
	case t.Damage > 0:
		return fmt.Sprintf("%d damage", t.Damage)
	default:
		return "applied"
	}
}

func printResult(w io.Writer, res battle.Result, rewards *reward.Sink) {
	fmt.Fprintf(w, "\n%s after %d rounds: %s\n", strings.ToUpper(string(res.Outcome)), res.Rounds, res.Reason)
	for _, u := range res.Survivors {
		fmt.Fprintf(w, "  %-12s %s HP %d/%d\n", u.Name, u.Side, u.Stats.CurrentHP, u.Stats.MaxHP)
	}
	for _, u := range res.Captured {
		fmt.Fprintf(w, "  captured: %s (lv %d)\n", u.Name, u.Level)
	}

	sum, ok := rewards.Last()
	if !ok || sum.Rewards.Empty() {
		return
	}
	fmt.Fprintf(w, "rewards: %d exp, %d gold\n", sum.Rewards.Experience, sum.Rewards.Gold)
	for _, d := range sum.Rewards.Items {
		fmt.Fprintf(w, "  %s x%d\n", d.ItemID, d.Count)
	}
	for _, p := range sum.Progress {
		if p.LeveledUp() {
			fmt.Fprintf(w, "  %s reached level %d\n", p.UnitID, p.NewLevel)
		}
	}
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// parseLogLevel converts string log level to slog.Level.
// Defaults to Info if invalid or empty.
func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
