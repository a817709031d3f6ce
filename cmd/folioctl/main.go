// main.go - Admin control tool for folio
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"folio/internal"
	"folio/internal/analytics"
	"folio/internal/config"
	"folio/internal/events"
	"folio/internal/seeder"
	"folio/internal/settings"
	"folio/internal/timeframe"
)

const (
	defaultShutdownTimeout = 30 * time.Second
)

// Command defines the interface for all command implementations
type Command interface {
	// Name returns the command name
	Name() string
	// Description returns the command description
	Description() string
	// Execute runs the command with the given app and args
	Execute(ctx context.Context, app *internal.Application, args []string) error
}

// The set of available commands
var commands = []Command{
	&MigrateCommand{},
	&StatsCommand{},
	&CleanupCommand{},
	&ExcludeIPCommand{},
	&SeedCommand{},
	&StatusCommand{},
	&HelpCommand{},
}

func main() {
	flag.Parse()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		sig := <-sigChan
		log.Printf("Received signal: %v, initiating cleanup...", sig)
		cancel()
	}()

	cmdName, args := parseArgs()

	cmd := findCommand(cmdName)
	if cmd == nil {
		showUsageAndExit()
	}

	app, err := internal.NewApp()
	if err != nil {
		log.Printf("Warning: Failed to initialize app: %v", err)
		log.Println("Proceeding with limited functionality...")
	}

	defer func() {
		if app != nil {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), defaultShutdownTimeout)
			defer cancel()
			if err := app.Shutdown(shutdownCtx); err != nil {
				log.Printf("Warning: Cleanup error: %v", err)
			}
		}
	}()

	if err := cmd.Execute(ctx, app, args); err != nil {
		log.Fatalf("Command failed: %v", err)
	}

	log.Printf("Command %s completed successfully", cmd.Name())
}

// MigrateCommand runs database migrations
type MigrateCommand struct{}

func (c *MigrateCommand) Name() string        { return "migrate" }
func (c *MigrateCommand) Description() string { return "Runs database migrations" }

func (c *MigrateCommand) Execute(ctx context.Context, app *internal.Application, args []string) error {
	if !app.StoreAvailable() {
		return fmt.Errorf("database unavailable, cannot run migrations")
	}

	log.Println("Running database migrations...")
	if err := app.DBManager.MigrateDatabase(); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	log.Println("Migrations completed successfully")
	return nil
}

// StatsCommand prints the same numbers the dashboard widgets show
type StatsCommand struct{}

func (c *StatsCommand) Name() string { return "stats" }
func (c *StatsCommand) Description() string {
	return "Prints real-time and historical stats (-days N, -page /path, -actions N)"
}

func (c *StatsCommand) Execute(ctx context.Context, app *internal.Application, args []string) error {
	cfg := config.GetConfig()
	fs := flag.NewFlagSet("stats", flag.ContinueOnError)
	days := fs.Int("days", cfg.DefaultHistoryDays, "trailing days to summarize")
	page := fs.String("page", "", "break down a single page")
	actions := fs.Int("actions", 0, "also list the N most recent user actions")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if !app.StoreAvailable() {
		return fmt.Errorf("database unavailable, cannot read stats")
	}

	svc := analytics.NewService(app.DBManager, app.Logger, analytics.OptionsFromConfig(cfg))
	n := cfg.ClampHistoryDays(*days)

	realTime := svc.RealTime(ctx)
	history := svc.Historical(ctx, n)

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "Real time\t")
	fmt.Fprintf(w, "  Online now\t%d\n", realTime.OnlineUsers)
	fmt.Fprintf(w, "  Sessions today\t%d\n", realTime.TodayViews)
	fmt.Fprintf(w, "  Sessions all time\t%d\n", realTime.TotalViews)
	fmt.Fprintf(w, "Last %s\t\n", history.Period)
	fmt.Fprintf(w, "  Page views\t%d\n", history.TotalViews)
	fmt.Fprintf(w, "  Sessions\t%d\n", history.UniqueSessions)
	fmt.Fprintf(w, "  Users\t%d\n", history.UniqueUsers)
	for _, day := range history.DailyStats {
		fmt.Fprintf(w, "  %s\t%d\n", day.Date, day.Views)
	}

	if *page != "" {
		stats := svc.PageStats(ctx, *page, n)
		fmt.Fprintf(w, "Page %s\t\n", stats.Page)
		fmt.Fprintf(w, "  Views\t%d\n", stats.TotalViews)
		fmt.Fprintf(w, "  Sessions\t%d\n", stats.UniqueSessions)
		fmt.Fprintf(w, "  Visitors\t%d\n", stats.UniqueVisitors)
		for _, c := range stats.TopCountries {
			fmt.Fprintf(w, "  %s\t%d\n", c.Name, c.Count)
		}
		for _, r := range stats.TopReferrers {
			fmt.Fprintf(w, "  %s\t%d\n", r.Name, r.Count)
		}
	}
	if *actions > 0 {
		recent, err := events.ActionsSince(app.DBManager.GetConnection(), timeframe.WindowStart(realTime.Timestamp, n), *actions)
		if err != nil {
			return fmt.Errorf("failed to read user actions: %w", err)
		}
		fmt.Fprintln(w, "Recent actions\t")
		for _, a := range recent {
			fmt.Fprintf(w, "  %s\t%s %s %s\n", a.Timestamp.Format(time.RFC3339), a.Action, a.Page, a.Data)
		}
	}
	return w.Flush()
}

// CleanupCommand applies the retention policy immediately
type CleanupCommand struct{}

func (c *CleanupCommand) Name() string { return "cleanup" }
func (c *CleanupCommand) Description() string {
	return "Deletes events past retention and prunes old presence data"
}

func (c *CleanupCommand) Execute(ctx context.Context, app *internal.Application, args []string) error {
	if !app.StoreAvailable() {
		return fmt.Errorf("database unavailable, cannot run cleanup")
	}

	for _, job := range []string{"cleanup", "presence_prune"} {
		log.Printf("Running %s...", job)
		if err := app.Jobs.RunNow(job); err != nil {
			return fmt.Errorf("%s failed: %w", job, err)
		}
	}
	return nil
}

// ExcludeIPCommand shows or replaces the list of IPs whose events are ignored
type ExcludeIPCommand struct{}

func (c *ExcludeIPCommand) Name() string { return "exclude-ip" }
func (c *ExcludeIPCommand) Description() string {
	return "Lists excluded IPs, or replaces them: exclude-ip 1.2.3.4,5.6.7.8 (use \"\" to clear)"
}

func (c *ExcludeIPCommand) Execute(ctx context.Context, app *internal.Application, args []string) error {
	if !app.StoreAvailable() {
		return fmt.Errorf("database unavailable, cannot exclude IP")
	}
	db := app.DBManager.GetConnection()

	if len(args) == 0 {
		ips, err := settings.GetExcludedIPs(db)
		if err != nil {
			return fmt.Errorf("failed to read excluded IPs: %w", err)
		}
		if len(ips) == 0 {
			fmt.Println("No excluded IPs")
			return nil
		}
		for _, ip := range ips {
			fmt.Println(ip)
		}
		return nil
	}

	ips := strings.Split(strings.Join(args, ","), ",")
	if err := settings.UpdateExcludedIPs(db, ips); err != nil {
		return err
	}
	fmt.Println("Excluded IPs updated")
	return nil
}

// SeedCommand populates the DB with sample visits
type SeedCommand struct{}

func (c *SeedCommand) Name() string        { return "seed" }
func (c *SeedCommand) Description() string { return "Seeds the database with sample visits" }

func (c *SeedCommand) Execute(ctx context.Context, app *internal.Application, args []string) error {
	fs := flag.NewFlagSet("seed", flag.ContinueOnError)
	sessions := fs.Int("sessions", 200, "number of visitor sessions to generate")
	days := fs.Int("days", 30, "spread sessions over this many trailing days")
	seed := fs.Uint64("seed", uint64(time.Now().UnixNano()), "random seed")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if !app.StoreAvailable() {
		return fmt.Errorf("database unavailable, cannot seed")
	}

	result, err := seeder.NewSeeder(app.DBManager, app.Logger, *sessions, *days, *seed).Run(ctx)
	if err != nil {
		return err
	}

	log.Printf("Seeded %d sessions: %d page views, %d user actions, %d heartbeats",
		result.Sessions, result.PageViews, result.UserActions, result.Heartbeats)
	return nil
}

// StatusCommand implements a command to check the system status
type StatusCommand struct{}

func (c *StatusCommand) Name() string        { return "status" }
func (c *StatusCommand) Description() string { return "Shows the current system status" }

func (c *StatusCommand) Execute(ctx context.Context, app *internal.Application, args []string) error {
	if !app.StoreAvailable() {
		return fmt.Errorf("cannot check status: database unavailable")
	}

	db := app.DBManager.GetConnection()
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("failed to get SQL DB: %w", err)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return fmt.Errorf("database error: %w", err)
	}

	log.Println("System Status:")
	log.Println("- Database: Connected")
	log.Printf("- Path: %s", config.GetConfig().GetDatabasePath())
	log.Printf("- Max Open Connections: %d", sqlDB.Stats().MaxOpenConnections)
	log.Printf("- Open Connections: %d", sqlDB.Stats().OpenConnections)
	log.Printf("- In Use: %d", sqlDB.Stats().InUse)
	log.Printf("- Idle: %d", sqlDB.Stats().Idle)

	return nil
}

// HelpCommand implements a command to show usage information
type HelpCommand struct{}

func (c *HelpCommand) Name() string        { return "help" }
func (c *HelpCommand) Description() string { return "Shows usage information" }

func (c *HelpCommand) Execute(ctx context.Context, app *internal.Application, args []string) error {
	printUsage()
	return nil
}

// parseArgs parses the command name and arguments
func parseArgs() (string, []string) {
	args := os.Args[1:]
	if len(args) == 0 {
		return "help", []string{}
	}
	return args[0], args[1:]
}

// findCommand finds a command by name
func findCommand(name string) Command {
	for _, cmd := range commands {
		if cmd.Name() == name {
			return cmd
		}
	}
	return nil
}

func printUsage() {
	fmt.Println("Usage: folioctl [command] [args...]")
	fmt.Println("Available commands:")

	for _, cmd := range commands {
		fmt.Printf("  %s: %s\n", cmd.Name(), cmd.Description())
	}
}

// showUsageAndExit shows usage information and exits
func showUsageAndExit() {
	printUsage()
	os.Exit(1)
}
