// panelctl exercises the dashboard's authenticated-session pipeline from the
// command line: password or Google login, profile display, token refresh on
// 401 and the inactivity watchdog.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"runtime/debug"
	"time"

	"github.com/common-nighthawk/go-figure"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/laagencias/go-panel-auth/auth"
	"github.com/laagencias/go-panel-auth/googleauth"
	"github.com/laagencias/go-panel-auth/idle"
	"github.com/laagencias/go-panel-auth/internal/config"
	"github.com/laagencias/go-panel-auth/notify"
	"github.com/laagencias/go-panel-auth/sessions"
	"github.com/laagencias/go-panel-auth/transport"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "panelctl: %s\n", err)
		os.Exit(1)
	}
}

func run() (returnError error) {
	defer func() {
		if r := recover(); r != nil {
			fmt.Fprintf(os.Stderr, "Recovered from panic: %v\n", r)
			debug.PrintStack()
			returnError = errors.New("panic recovered")
		}
	}()

	var (
		configPath  = flag.String("config", "", "optional YAML config file")
		loginEmail  = flag.String("login", "", "log in with this email (password read from stdin)")
		register    = flag.String("register", "", "register a new account with this email")
		fullName    = flag.String("fullname", "", "full name for -register")
		google      = flag.Bool("google", false, "log in with Google")
		showMe      = flag.Bool("me", false, "show the current user profile")
		watch       = flag.Bool("watch", false, "watch the session; stdin lines count as activity")
		logout      = flag.Bool("logout", false, "log out and clear the stored session")
		forgotEmail = flag.String("forgot", "", "request a password reset email")
		resetToken  = flag.String("reset", "", "password reset token (with -newpassword)")
		newPassword = flag.String("newpassword", "", "new password for -reset")
	)
	flag.Parse()

	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}
	displayAppname(cfg.GetAppName())

	app, err := buildApp(cfg, logger)
	if err != nil {
		return err
	}
	defer app.close()

	ctx := context.Background()

	switch {
	case *loginEmail != "":
		return app.login(ctx, *loginEmail)
	case *register != "":
		return app.register(ctx, *register, *fullName)
	case *google:
		return app.loginWithGoogle(ctx, cfg)
	case *logout:
		app.service.Logout(true)
		logger.Info().Msg("session cleared")
		return nil
	case *forgotEmail != "":
		if err := app.service.ForgotPassword(ctx, *forgotEmail); err != nil {
			return err
		}
		fmt.Println("If that address is registered, a reset email is on its way.")
		return nil
	case *resetToken != "":
		if *newPassword == "" {
			return errors.New("-reset requires -newpassword")
		}
		if err := app.service.ResetPassword(ctx, *resetToken, *newPassword); err != nil {
			return err
		}
		fmt.Println("Password reset submitted.")
		return nil
	case *watch:
		return app.watch(cfg)
	case *showMe:
		return app.me(ctx)
	default:
		flag.Usage()
		return nil
	}
}

func loadConfig(path string) (config.Config, error) {
	base := config.New()
	if path == "" {
		return base, nil
	}
	return config.FromFile(path, base)
}

// app holds the wired pipeline: store → auth service → transport → client.
type app struct {
	service    *auth.Service
	authedHTTP *http.Client
	monitor    *idle.Monitor
	navigator  *cliNavigator
	logger     zerolog.Logger
	stopNotify func()
}

func buildApp(cfg config.Config, logger zerolog.Logger) (*app, error) {
	var storeOpts []sessions.FileStoreOption
	if passphrase := cfg.GetSessionPassphrase(); passphrase != "" {
		storeOpts = append(storeOpts, sessions.WithEncryption(passphrase))
	}
	store, err := sessions.NewFileStore(cfg.GetSessionFile(), storeOpts...)
	if err != nil {
		return nil, errors.Wrap(err, "open session store")
	}

	notifier := notify.New()
	navigator := &cliNavigator{logger: logger, route: auth.RouteDashboard}

	service, err := auth.NewService(cfg.GetAPIBaseURL(), store, navigator,
		auth.WithLogger(logger),
		auth.WithExpiryOffset(cfg.GetExpiryOffset()),
		auth.WithHTTPClient(&http.Client{Timeout: cfg.GetRequestTimeout()}),
	)
	if err != nil {
		return nil, err
	}

	pipeline := transport.New(store, service, navigator, notifier,
		transport.WithLogger(logger),
		transport.WithMetrics(transport.NewMetrics()),
	)
	authedHTTP := &http.Client{
		Transport: pipeline,
		Timeout:   cfg.GetRequestTimeout(),
	}

	monitor := idle.NewMonitor(service, service, notifier,
		idle.WithThresholds(cfg.GetIdleWarning(), cfg.GetIdleLogout()),
		idle.WithDebounce(cfg.GetIdleDebounce()),
		idle.WithLogger(logger),
	)

	// Print notices the way the dashboard shows toasts
	notices, stopNotify := notifier.Subscribe()
	go func() {
		for notice := range notices {
			logger.Info().Str("level", string(notice.Level)).Msg(notice.Message)
		}
	}()

	return &app{
		service:    service,
		authedHTTP: authedHTTP,
		monitor:    monitor,
		navigator:  navigator,
		logger:     logger,
		stopNotify: stopNotify,
	}, nil
}

func (a *app) close() {
	a.monitor.StopWatching()
	a.stopNotify()
}

func (a *app) login(ctx context.Context, email string) error {
	fmt.Fprint(os.Stderr, "Password: ")
	password, err := readLine(os.Stdin)
	if err != nil {
		return errors.Wrap(err, "read password")
	}

	if _, err := a.service.Login(ctx, email, password, ""); err != nil {
		return err
	}
	return a.me(ctx)
}

func (a *app) register(ctx context.Context, email, fullName string) error {
	fmt.Fprint(os.Stderr, "Password: ")
	password, err := readLine(os.Stdin)
	if err != nil {
		return errors.Wrap(err, "read password")
	}

	user, err := a.service.Register(ctx, auth.RegisterRequest{
		Email:    email,
		FullName: fullName,
		Password: password,
	})
	if err != nil {
		return err
	}
	a.logger.Info().Str("email", user.Email).Msg("registered and logged in")
	return nil
}

func (a *app) loginWithGoogle(ctx context.Context, cfg config.Config) error {
	flow, err := googleauth.NewFlow(
		cfg.GetGoogleClientID(),
		cfg.GetGoogleClientSecret(),
		cfg.GetOAuthListenAddr(),
		googleauth.WithLogger(a.logger),
	)
	if err != nil {
		return err
	}

	idToken, err := flow.IDToken(ctx)
	if err != nil {
		return err
	}

	if _, err := a.service.LoginWithGoogle(ctx, idToken, ""); err != nil {
		return err
	}
	return a.me(ctx)
}

func (a *app) me(ctx context.Context) error {
	user, err := a.service.FetchCurrentUser(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("%s <%s> role=%s sales=%d\n", user.FullName, user.Email, user.Role, user.SalesCount)
	if remaining := a.service.TokenRemainingTime(); remaining > 0 {
		fmt.Printf("access token expires in %s\n", remaining.Round(time.Second))
	}
	return nil
}

// watch binds the idle monitor to the authentication stream and treats each
// stdin line as user activity, so the warning and forced logout can be
// observed interactively.
func (a *app) watch(cfg config.Config) error {
	if !a.service.HasToken() {
		return errors.New("no session; log in first")
	}

	stop := a.monitor.Bind(a.service.IsAuthenticated())
	defer stop()

	a.logger.Info().
		Dur("warning_after", cfg.GetIdleWarning()).
		Dur("logout_after", cfg.GetIdleLogout()).
		Msg("watching session; press enter to signal activity, Ctrl-D to quit")

	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		a.monitor.Activity()
		if !a.service.HasToken() {
			break
		}
	}
	return scanner.Err()
}

func readLine(r io.Reader) (string, error) {
	scanner := bufio.NewScanner(r)
	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return "", err
		}
		return "", io.EOF
	}
	return scanner.Text(), nil
}

func displayAppname(appname string) {
	myFigure := figure.NewFigure(appname, "cybermedium", true)
	myFigure.Print()
	fmt.Println()
}
