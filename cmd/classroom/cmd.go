package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"golang.org/x/term"

	"github.com/a-essam23/go-classroom/pkg/api"
	"github.com/a-essam23/go-classroom/pkg/config"
	"github.com/a-essam23/go-classroom/pkg/guard"
	"github.com/a-essam23/go-classroom/pkg/httpclient"
	"github.com/a-essam23/go-classroom/pkg/notify"
	"github.com/a-essam23/go-classroom/pkg/realtime"
	"github.com/a-essam23/go-classroom/pkg/session"
)

var (
	readPasswordFunc = term.ReadPassword // mockable

	errHelp        = errors.New("help provided")
	errNotSignedIn = errors.New("not signed in, run 'login' first")
)

// listenEvents are printed by the listen command.
var listenEvents = []string{
	realtime.EventAuthenticated,
	realtime.EventAuthError,
	realtime.EventError,
	realtime.EventNewMessage,
	realtime.EventMessageSent,
	realtime.EventUserTyping,
	realtime.EventMessagesRead,
	realtime.EventUserStatusChanged,
	realtime.EventIncomingCall,
	realtime.EventCallAnswered,
	realtime.EventCallRejected,
	realtime.EventCallEnded,
	realtime.EventJoinedGroup,
	realtime.EventNewGroupMessage,
	realtime.EventDisconnect,
}

type commandLine struct {
	cfg    *config.Config
	logger *slog.Logger
	out    io.Writer

	store    *session.Store
	sessions *session.Service
	guard    *guard.Guard
	realtime *realtime.Client
}

// newCommandLine wires the client stack the way an embedding UI would: the
// session store is the facade's credential source and invalidator, and the
// guard verifies restored credentials through the session service.
func newCommandLine(cfg *config.Config, logger *slog.Logger, out, notices io.Writer) *commandLine {
	notifier := notify.NewWriterNotifier(notices)
	store := session.NewStore(session.NewFileTokenStore(cfg.Session.StorePath, cfg.Session.StorageKey), logger)
	hc := httpclient.NewFromConfig(cfg, store, httpclient.Hooks{
		Notifier:    notifier,
		Invalidator: store,
		Redirector: httpclient.RedirectFunc(func(path string) {
			fmt.Fprintf(notices, "session expired, continue at %s\n", path)
		}),
	}, logger)
	sessions := session.NewService(store, api.New(hc).Auth, notifier, logger)

	return &commandLine{
		cfg:      cfg,
		logger:   logger,
		out:      out,
		store:    store,
		sessions: sessions,
		guard:    guard.New(guard.DefaultRoutes(), store, sessions, cfg.Routes, logger),
		realtime: realtime.NewFromConfig(cfg.Realtime, store, logger),
	}
}

func (cli *commandLine) printUsage() {
	fmt.Fprintln(cli.out, "Usage:")
	fmt.Fprintln(cli.out, "  login -email EMAIL             - sign in, the password is prompted next")
	fmt.Fprintln(cli.out, "  logout                         - sign out and forget the stored credential")
	fmt.Fprintln(cli.out, "  whoami                         - verify the stored credential and print the profile")
	fmt.Fprintln(cli.out, "  open -path PATH                - run the navigation guard for PATH")
	fmt.Fprintln(cli.out, "  send -to USER_ID -text TEXT    - send a direct message over the realtime channel")
	fmt.Fprintln(cli.out, "  listen [-for DURATION]         - print realtime events until interrupted")
}

func (cli *commandLine) flagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(cli.out)
	return fs
}

func (cli *commandLine) run(ctx context.Context, args []string) error {
	if len(args) < 2 {
		cli.printUsage()
		return errHelp
	}

	switch args[1] {
	case "login":
		cmd := cli.flagSet("login")
		email := cmd.String("email", "", "The account email. The password will be prompted next.")
		if err := cmd.Parse(args[2:]); err != nil {
			return err
		}
		if *email == "" {
			cmd.Usage()
			return errHelp
		}
		fmt.Fprint(cli.out, "Enter password:")
		pwd, err := readPasswordFunc(int(os.Stdin.Fd()))
		fmt.Fprintln(cli.out)
		if err != nil {
			return err
		}
		if len(pwd) == 0 {
			cmd.Usage()
			return errHelp
		}
		return cli.login(ctx, *email, string(pwd))
	case "logout":
		return cli.logout(ctx)
	case "whoami":
		return cli.whoami(ctx)
	case "open":
		cmd := cli.flagSet("open")
		path := cmd.String("path", "", "The location to navigate to, with an optional query string.")
		if err := cmd.Parse(args[2:]); err != nil {
			return err
		}
		if *path == "" {
			cmd.Usage()
			return errHelp
		}
		return cli.open(ctx, *path)
	case "send":
		cmd := cli.flagSet("send")
		to := cmd.Int64("to", 0, "The receiver's user id.")
		text := cmd.String("text", "", "The message content.")
		kind := cmd.String("type", "text", "The message type.")
		timeout := cmd.Duration("timeout", 10*time.Second, "How long to wait for the server.")
		if err := cmd.Parse(args[2:]); err != nil {
			return err
		}
		if *to == 0 || strings.TrimSpace(*text) == "" {
			cmd.Usage()
			return errHelp
		}
		return cli.send(ctx, *to, *kind, *text, *timeout)
	case "listen":
		cmd := cli.flagSet("listen")
		dur := cmd.Duration("for", 0, "Stop after this long. Zero waits for an interrupt.")
		if err := cmd.Parse(args[2:]); err != nil {
			return err
		}
		return cli.listen(ctx, *dur)
	default:
		cli.printUsage()
		return errHelp
	}
}

func (cli *commandLine) login(ctx context.Context, email, password string) error {
	res := cli.sessions.Login(ctx, email, password)
	if !res.Success {
		return fmt.Errorf("login failed (%s): %s", res.Failure, res.Message)
	}
	profile, _ := cli.store.Profile()
	fmt.Fprintf(cli.out, "Signed in as %s (%s)\n", profile.Email, profile.Role)
	return nil
}

func (cli *commandLine) logout(ctx context.Context) error {
	cli.sessions.Logout(ctx)
	fmt.Fprintln(cli.out, "Signed out")
	return nil
}

func (cli *commandLine) whoami(ctx context.Context) error {
	if !cli.sessions.Verify(ctx) {
		return errNotSignedIn
	}
	p, _ := cli.store.Profile()
	fmt.Fprintf(cli.out, "id:          %d\n", p.UserID)
	fmt.Fprintf(cli.out, "account:     %s\n", p.SystemAccount)
	fmt.Fprintf(cli.out, "email:       %s\n", p.Email)
	fmt.Fprintf(cli.out, "name:        %s\n", p.RealName)
	fmt.Fprintf(cli.out, "role:        %s\n", p.Role)
	fmt.Fprintf(cli.out, "approved:    %t\n", p.IsApproved)
	fmt.Fprintf(cli.out, "permissions: %s\n", strings.Join(p.Permissions, ", "))
	if claims, ok := cli.store.Claims(); ok && !claims.ExpiresAt.IsZero() {
		fmt.Fprintf(cli.out, "expires:     %s\n", claims.ExpiresAt.Format(time.RFC3339))
	}
	return nil
}

// open prints the first decision for path and, when it redirects, where the
// redirect chain ends.
func (cli *commandLine) open(ctx context.Context, path string) error {
	d := cli.guard.Evaluate(ctx, path)
	if d.Outcome == guard.Redirect {
		fmt.Fprintf(cli.out, "redirect %s (%s)\n", d.Location(), d.Reason)
		d = cli.guard.Resolve(ctx, d.Location())
	}
	if d.Outcome == guard.Allow {
		fmt.Fprintf(cli.out, "allow %s\n", d.Location())
		return nil
	}
	return fmt.Errorf("navigation to %s did not settle, last redirect %s", path, d.Location())
}

// connect opens the realtime channel and waits for the handshake.
func (cli *commandLine) connect(ctx context.Context, timeout time.Duration) error {
	if cli.store.Token() == "" {
		return errNotSignedIn
	}
	authed := make(chan struct{}, 1)
	rejected := make(chan string, 1)
	failed := make(chan struct{}, 1)
	cli.realtime.On(realtime.EventAuthenticated, func(json.RawMessage) {
		select {
		case authed <- struct{}{}:
		default:
		}
	})
	cli.realtime.On(realtime.EventAuthError, func(p json.RawMessage) {
		var body realtime.ConnectErrorPayload
		_ = json.Unmarshal(p, &body)
		select {
		case rejected <- body.Message:
		default:
		}
	})
	cli.realtime.On(realtime.EventReconnectFailed, func(json.RawMessage) {
		select {
		case failed <- struct{}{}:
		default:
		}
	})

	cli.realtime.Connect(ctx)
	wait := time.NewTimer(timeout)
	defer wait.Stop()
	select {
	case <-authed:
		return nil
	case msg := <-rejected:
		cli.realtime.Disconnect()
		return fmt.Errorf("realtime handshake rejected: %s", msg)
	case <-failed:
		return errors.New("realtime service unreachable")
	case <-wait.C:
		cli.realtime.Disconnect()
		return errors.New("timed out waiting for the realtime service")
	case <-ctx.Done():
		cli.realtime.Disconnect()
		return ctx.Err()
	}
}

func (cli *commandLine) send(ctx context.Context, to int64, kind, text string, timeout time.Duration) error {
	if err := cli.connect(ctx, timeout); err != nil {
		return err
	}
	defer cli.realtime.Disconnect()

	sent := make(chan json.RawMessage, 1)
	errs := make(chan string, 1)
	cli.realtime.On(realtime.EventMessageSent, func(p json.RawMessage) {
		select {
		case sent <- p:
		default:
		}
	})
	cli.realtime.On(realtime.EventError, func(p json.RawMessage) {
		var body realtime.ConnectErrorPayload
		_ = json.Unmarshal(p, &body)
		select {
		case errs <- body.Message:
		default:
		}
	})

	if !cli.realtime.SendMessage(to, kind, text) {
		return errors.New("message not delivered, connection lost")
	}
	wait := time.NewTimer(timeout)
	defer wait.Stop()
	select {
	case p := <-sent:
		fmt.Fprintf(cli.out, "sent %s\n", p)
		return nil
	case msg := <-errs:
		return fmt.Errorf("server refused message: %s", msg)
	case <-wait.C:
		return errors.New("timed out waiting for delivery confirmation")
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (cli *commandLine) listen(ctx context.Context, dur time.Duration) error {
	for _, event := range listenEvents {
		event := event
		cli.realtime.On(event, func(p json.RawMessage) {
			if len(p) == 0 {
				p = json.RawMessage("{}")
			}
			fmt.Fprintf(cli.out, "%s %s\n", event, p)
		})
	}
	if cli.store.Token() == "" {
		return errNotSignedIn
	}
	defer cli.realtime.Disconnect()
	cli.realtime.Connect(ctx)

	if dur > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, dur)
		defer cancel()
	}
	<-ctx.Done()
	return nil
}
