package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/izzyreal/wishjournal/internal/config"
	"github.com/izzyreal/wishjournal/internal/frames"
	"github.com/izzyreal/wishjournal/internal/server"
	"github.com/izzyreal/wishjournal/internal/store"
	"github.com/izzyreal/wishjournal/internal/termclient"
	"github.com/izzyreal/wishjournal/internal/version"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var err error
	switch os.Args[1] {
	case "server":
		err = runServer(ctx)
	case "create-user":
		err = runCreateUser(ctx, os.Args[2:], os.Stdout)
	case "term":
		err = runTerm(ctx, os.Args[2:], os.Stdin, os.Stdout)
	case "version":
		fmt.Println(version.Current())
		return
	case "help", "-h", "--help":
		usage()
		return
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", os.Args[1])
		usage()
		os.Exit(2)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "wishjournal: %v\n", err)
		os.Exit(1)
	}
}

func initLogging(level string) {
	var lvl slog.Level
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn", "warning":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})))
}

func runServer(ctx context.Context) error {
	cfg, err := config.FromEnv()
	initLogging(cfg.LogLevel)
	if err != nil {
		return err
	}
	if !cfg.Production && cfg.SecretKey == config.DefaultSecretKey {
		slog.Warn("using the development secret key; set SECRET_KEY in production")
	}
	return server.Run(ctx, cfg)
}

func runCreateUser(ctx context.Context, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("create-user", flag.ContinueOnError)
	first := fs.String("first", "", "first name")
	last := fs.String("last", "", "last name")
	username := fs.String("username", "", "username")
	password := fs.String("password", "", "password")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := config.FromEnv()
	if err != nil {
		return err
	}
	db, err := store.Open(cfg.DatabasePath)
	if err != nil {
		return err
	}
	defer db.Close()

	u, err := db.CreateUser(ctx, *first, *last, *username, *password)
	if err != nil {
		return fmt.Errorf("create user: %w", err)
	}
	fmt.Fprintf(out, "created user %s (id=%d)\n", u.Username, u.ID)
	return nil
}

func runTerm(ctx context.Context, args []string, in io.Reader, out io.Writer) error {
	fs := flag.NewFlagSet("term", flag.ContinueOnError)
	baseURL := fs.String("url", "http://127.0.0.1:8080", "blog base URL")
	password := fs.String("password", os.Getenv("WISHJOURNAL_PASSWORD"), "login password")
	script := fs.String("script", "", "script path inside the content scripts directory")
	useWS := fs.Bool("ws", false, "use the websocket transport")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if strings.TrimSpace(*script) == "" {
		return errors.New("term: -script is required")
	}

	auth, err := termclient.Login(ctx, *baseURL, *password)
	if err != nil {
		return err
	}
	var transport termclient.Transport = auth.SSE()
	if *useWS {
		transport = auth.WS()
	}

	c := termclient.NewClient(transport, termclient.NewScreen(out), termclient.Options{})
	defer c.Close()
	if err := c.Start(ctx, termclient.Target{Script: *script}); err != nil {
		return err
	}

	go func() {
		sc := bufio.NewScanner(in)
		for sc.Scan() {
			if err := c.SendLine(ctx, sc.Text()); err != nil && !errors.Is(err, termclient.ErrNotRunning) {
				slog.Warn("send line", "error", err)
			}
		}
	}()

	if err := c.Wait(ctx); err != nil {
		stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = c.Stop(stopCtx)
		return nil
	}
	res, ok := c.Result()
	if !ok {
		return errors.New("term: connection closed before the script finished")
	}
	if res.Type == frames.TypeTimeout {
		return errors.New("term: session timed out")
	}
	if code := res.ExitCode(); code != 0 {
		return fmt.Errorf("term: script exited with code %d", code)
	}
	return nil
}

func usage() {
	fmt.Fprintf(os.Stderr, `wishjournal - a small blog with live terminals

Usage:
  wishjournal <command> [flags]

Commands:
  server       Run the blog server
  create-user  Add a reader: -first -last -username -password
  term         Run a post script in this terminal: -url -password -script [-ws]
  version      Print the version
  help         Show this help
`)
}
