package main

import (
	"bufio"
	"context"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/ciesa/portal-client/api"
	"github.com/ciesa/portal-client/chatview"
	"github.com/ciesa/portal-client/config"
	"github.com/ciesa/portal-client/model"
	"github.com/ciesa/portal-client/realtime"
	"github.com/davecgh/go-spew/spew"
	"github.com/rs/zerolog"
	"github.com/spf13/pflag"
)

func main() {
	logger := zerolog.New(os.Stderr).With().Timestamp().Logger()
	fs := pflag.NewFlagSet("portalcli", pflag.ContinueOnError)

	var (
		cfgPath        = fs.StringP("config", "c", "", "path to yaml config file")
		serverURL      = fs.StringP("server-url", "s", "", "portal base url")
		username       = fs.StringP("username", "u", "", "portal username")
		password       = fs.StringP("password", "p", "", "portal password")
		room           = fs.Int64P("room", "r", 0, "room id to join")
		logLevel       = fs.StringP("log-level", "l", "", "log level")
		dumpEvents     = fs.Bool("dump-events", false, "spew every inbound event to stderr")
		triggerBackup  = fs.Bool("trigger-backup", false, "trigger a server backup and exit")
		backupTelegram = fs.Bool("backup-telegram", false, "also send the backup to the telegram channel")
	)
	if err := fs.Parse(os.Args[1:]); err != nil {
		logger.Fatal().Err(err).Msg("failed to parse command line arguments")
	}

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load configuration")
	}
	if *serverURL != "" {
		cfg.ServerURL = *serverURL
	}
	if *username != "" {
		cfg.Username = *username
	}
	if *password != "" {
		cfg.Password = *password
	}
	if *room != 0 {
		cfg.Room = *room
	}
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}

	lvl, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to parse loglevel")
	}
	logger = logger.Level(lvl)

	if err = run(cfg, *dumpEvents, *triggerBackup, *backupTelegram, &logger); err != nil {
		logger.Fatal().Err(err).Msg("portalcli failed")
	}
}

func run(cfg *config.Config, dumpEvents, triggerBackup, backupTelegram bool, logger *zerolog.Logger) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	client, err := api.New(api.Config{
		Logger:  logger,
		BaseURL: cfg.ServerURL,
	})
	if err != nil {
		return err
	}

	user, err := client.Login(ctx, cfg.Username, cfg.Password)
	if err != nil {
		return err
	}
	logger.Info().Str("username", user.Username).Str("role", user.Role).Msg("logged in")
	defer func() {
		if lErr := client.Logout(context.Background()); lErr != nil {
			logger.Error().Err(lErr).Msg("logout failed")
		}
	}()

	if triggerBackup {
		if err = client.TriggerBackup(ctx, backupTelegram); err != nil {
			return err
		}
		logger.Info().Bool("telegram", backupTelegram).Msg("backup triggered")
		return nil
	}

	wsURL, err := socketURL(cfg.ServerURL)
	if err != nil {
		return err
	}
	rt := realtime.New(realtime.Config{
		Logger: logger,
		URL:    wsURL,
		Jar:    client.Jar(),
	})
	defer rt.Disconnect()

	view := chatview.New(chatview.Config{
		Logger:   logger,
		Realtime: rt,
		API:      client,
	})
	defer view.Close()

	printSub := rt.On(model.EventNewMessage, func(ev model.Event) {
		if ev.Message != nil && ev.Message.RoomID == view.RoomID() {
			printMessage(ev.Message)
		}
	})
	defer rt.Off(model.EventNewMessage, printSub)
	if dumpEvents {
		for _, kind := range []model.EventKind{
			model.EventNewMessage, model.EventMessageEdited,
			model.EventMessageDeleted, model.EventTyping, model.EventError,
		} {
			rt.On(kind, func(ev model.Event) {
				spew.Fdump(os.Stderr, ev)
			})
		}
	}

	roomID := cfg.Room
	if roomID == 0 {
		rooms, rErr := client.Rooms(ctx)
		if rErr != nil {
			return rErr
		}
		if len(rooms) == 0 {
			return fmt.Errorf("no rooms available")
		}
		roomID = rooms[0].ID
	}
	if err = view.SetRoom(ctx, roomID); err != nil {
		return err
	}
	for _, msg := range view.Messages() {
		printMessage(&msg)
	}

	go readStdin(ctx, view, logger)

	<-ctx.Done()
	logger.Warn().Msg("interrupted")
	return nil
}

func readStdin(ctx context.Context, view *chatview.View, logger *zerolog.Logger) {
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		view.SetDraft(line)
		if err := view.Send(ctx); err != nil {
			logger.Error().Err(err).Msg("send failed, draft kept")
		}
	}
}

func printMessage(msg *model.Message) {
	text := msg.Text
	if msg.ImageFilename != "" {
		text = fmt.Sprintf("%s [image: %s]", text, msg.ImageFilename)
	}
	fmt.Printf("[%d] %s: %s\n", msg.RoomID, msg.SenderUsername, text)
}

// socketURL derives the realtime endpoint from the portal base url.
func socketURL(base string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/socket"
	return u.String(), nil
}
