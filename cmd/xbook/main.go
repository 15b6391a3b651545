package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"golang.org/x/term"

	"github.com/wolfman30/xbook/cmd/mainconfig"
	"github.com/wolfman30/xbook/internal/app/bootstrap"
	"github.com/wolfman30/xbook/internal/auth"
	"github.com/wolfman30/xbook/internal/booking"
	"github.com/wolfman30/xbook/internal/category"
	appconfig "github.com/wolfman30/xbook/internal/config"
	"github.com/wolfman30/xbook/internal/notify"
	"github.com/wolfman30/xbook/internal/observability/metrics"
	"github.com/wolfman30/xbook/internal/platform"
	"github.com/wolfman30/xbook/internal/timeslot"
	"github.com/wolfman30/xbook/pkg/logging"
)

const (
	exitOK          = 0
	exitFailure     = 1
	exitNotFound    = 2
	exitInterrupted = 130
)

const usage = `usage:
  xbook [flags] <YYYY-MM-DD> <hour>
  xbook -cancel <participation-id>

flags:
`

type options struct {
	password string
	utc      bool
	category string
	court    string
	interval time.Duration
	envFile  string
	cancelID int64
	date     string
	hour     int
}

// readPassword prompts on the terminal without echo.
var readPassword = func(prompt string, stderr io.Writer) (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", errors.New("no password configured and stdin is not a terminal")
	}
	fmt.Fprint(stderr, prompt)
	b, err := term.ReadPassword(fd)
	fmt.Fprintln(stderr)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func main() {
	os.Exit(run(os.Args[1:], os.Stderr))
}

func run(args []string, stderr io.Writer) int {
	opts, err := parseArgs(args, stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return exitOK
		}
		fmt.Fprintln(stderr, "xbook:", err)
		return exitFailure
	}

	if err := loadEnvFile(opts.envFile); err != nil {
		fmt.Fprintln(stderr, "xbook:", err)
		return exitFailure
	}
	cfg := appconfig.Load()
	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(stderr, "xbook:", err)
		return exitFailure
	}

	runID := uuid.NewString()
	logger := logging.NewWithFormat(cfg.LogLevel, cfg.LogFormat, stderr).With("run_id", runID)

	password := opts.password
	if password == "" {
		password = cfg.Password
	}
	if password == "" {
		password, err = readPassword(fmt.Sprintf("password for %s: ", cfg.Identifier()), stderr)
		if err != nil {
			logger.Error("password unavailable", "error", err)
			return exitFailure
		}
	}
	cred := auth.Credential{Identifier: cfg.Identifier(), Secret: password}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	api, err := bootstrap.BuildPlatformClient(cfg, logger)
	if err != nil {
		logger.Error("platform client", "error", err)
		return exitFailure
	}
	authenticator, err := bootstrap.BuildAuthenticator(cfg, api, logger)
	if err != nil {
		logger.Error("authenticator", "error", err)
		return exitFailure
	}

	if opts.cancelID > 0 {
		return exitCode(cancelParticipation(ctx, api, authenticator, cred, opts.cancelID, logger), logger)
	}
	return exitCode(acquire(ctx, cfg, opts, api, authenticator, cred, runID, logger), logger)
}

func parseArgs(args []string, stderr io.Writer) (options, error) {
	var opts options
	flags := flag.NewFlagSet("xbook", flag.ContinueOnError)
	flags.SetOutput(stderr)
	flags.Usage = func() {
		fmt.Fprint(stderr, usage)
		flags.PrintDefaults()
	}
	flags.StringVar(&opts.password, "password", "", "account password (prompted when empty and XBOOK_PASSWORD is unset)")
	flags.BoolVar(&opts.utc, "utc", false, "interpret <hour> as UTC instead of XBOOK_TIMEZONE")
	flags.StringVar(&opts.category, "category", "", "booking category, matched loosely (e.g. \"beach\"); defaults to XBOOK_CATEGORY")
	flags.StringVar(&opts.court, "court", "", "court or hall half within the category (e.g. \"court 2\")")
	flags.DurationVar(&opts.interval, "interval", 0, "poll interval (defaults to POLL_INTERVAL)")
	flags.StringVar(&opts.envFile, "env-file", ".env", "dotenv file to load before reading the environment")
	flags.Int64Var(&opts.cancelID, "cancel", 0, "cancel the participation with this ID and exit")
	if err := flags.Parse(args); err != nil {
		return opts, err
	}

	if opts.cancelID > 0 {
		if flags.NArg() != 0 {
			return opts, errors.New("-cancel takes no positional arguments")
		}
		return opts, nil
	}
	if flags.NArg() != 2 {
		flags.Usage()
		return opts, errors.New("expected <YYYY-MM-DD> <hour>")
	}
	opts.date = flags.Arg(0)
	if _, err := time.Parse(timeslot.DateLayout, opts.date); err != nil {
		return opts, fmt.Errorf("invalid date %q: want YYYY-MM-DD", opts.date)
	}
	hour, err := strconv.Atoi(flags.Arg(1))
	if err != nil || hour < 0 || hour > 23 {
		return opts, fmt.Errorf("invalid hour %q: want 0-23", flags.Arg(1))
	}
	opts.hour = hour
	return opts, nil
}

func loadEnvFile(path string) error {
	if strings.TrimSpace(path) == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

func acquire(ctx context.Context, cfg *appconfig.Config, opts options, api *platform.Client, authenticator auth.Authenticator, cred auth.Credential, runID string, logger *logging.Logger) error {
	registry, err := bootstrap.BuildRegistry(cfg)
	if err != nil {
		return err
	}
	name := opts.category
	if name == "" {
		name = cfg.Category
	}
	if name == "" {
		return errors.New("no category: pass -category or set XBOOK_CATEGORY")
	}
	cat, err := registry.Resolve(name)
	if err != nil {
		return err
	}
	var sub *category.Subcategory
	if opts.court != "" {
		s, err := registry.ResolveSubcategoryIn(cat, opts.court)
		if err != nil {
			return err
		}
		sub = &s
	}

	loc, err := cfg.Location()
	if err != nil {
		return err
	}
	target, err := timeslot.FromDateHour(opts.date, opts.hour, opts.utc, loc)
	if err != nil {
		return err
	}
	// The target's UTC day can differ from the requested local date.
	targetTime, err := timeslot.Parse(target)
	if err != nil {
		return err
	}
	rangeStart, rangeEnd, err := timeslot.DayRange(targetTime.Format(timeslot.DateLayout))
	if err != nil {
		return err
	}

	obs := bootstrap.BuildObservability(cfg, logger)
	if obs.Server != nil {
		obs.Server.Start()
		defer func() {
			if err := obs.Server.Shutdown(context.Background()); err != nil {
				logger.Warn("metrics server shutdown", "error", err)
			}
		}()
	}

	notifier, err := buildNotifier(ctx, cfg, loc, logger)
	if err != nil {
		logger.Warn("booking e-mail disabled", "error", err)
	}

	interval := opts.interval
	if interval <= 0 {
		interval = cfg.PollInterval
	}
	acq := booking.NewAcquirer(api, api, authenticator, logger).
		WithInterval(interval).
		WithMissTolerance(cfg.MissTolerance).
		WithPolicy(bootstrap.BuildWindowPolicy(cfg)).
		WithLocation(loc).
		WithMetrics(obs.Metrics).
		WithRunID(runID)
	if notifier != nil {
		acq = acq.WithNotifier(notifier)
	}

	req := booking.Request{
		TargetStart: target,
		RangeStart:  rangeStart,
		RangeEnd:    rangeEnd,
		MemberID:    cfg.Member(),
		Credential:  cred,
		Category:    cat,
		Subcategory: sub,
	}
	logger.Info("starting acquisition", "category", cat.DisplayName(), "tag", registry.Tag(cat), "target", target)

	out, err := acq.Acquire(ctx, req)
	summary := metrics.Snapshot(obs.Registry)
	logger.Info("run summary",
		"outcome", out.Status.String(),
		"ticks", out.Ticks,
		"polls", summary.TotalPolls(),
		"auth_ok", summary.AuthOK,
		"auth_failed", summary.AuthFailed,
		"bookings_failed", summary.BookingsFailed,
	)
	return err
}

func buildNotifier(ctx context.Context, cfg *appconfig.Config, loc *time.Location, logger *logging.Logger) (*notify.Service, error) {
	var ses notify.SESAPI
	if bootstrap.EmailProvider(cfg) == bootstrap.ProviderSES {
		awsCfg, err := mainconfig.LoadAWSConfig(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("load aws config: %w", err)
		}
		ses = mainconfig.NewSESClient(awsCfg, cfg)
	}
	sender, provider, reason := bootstrap.BuildEmailSender(cfg, ses, logger)
	logger.Debug("booking e-mail", "provider", provider, "reason", reason)
	return bootstrap.BuildNotifier(cfg, sender, loc, logger), nil
}

func cancelParticipation(ctx context.Context, api *platform.Client, authenticator auth.Authenticator, cred auth.Credential, id int64, logger *logging.Logger) error {
	res, err := authenticator.Authenticate(ctx, cred)
	if err != nil {
		return err
	}
	defer res.Close()

	if err := api.Cancel(ctx, res.Session, id); err != nil {
		return err
	}
	logger.Info("participation cancelled", "participation_id", id)
	return nil
}

func exitCode(err error, logger *logging.Logger) int {
	switch {
	case err == nil:
		return exitOK
	case errors.Is(err, booking.ErrSlotNotFound):
		return exitNotFound
	case errors.Is(err, context.Canceled):
		logger.Info("interrupted")
		return exitInterrupted
	default:
		logger.Error("xbook failed", "error", err)
		return exitFailure
	}
}
