package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/urfave/cli"

	"github.com/LeventeLantos/tweet-scheduler/internal/app"
	"github.com/LeventeLantos/tweet-scheduler/internal/config"
	"github.com/LeventeLantos/tweet-scheduler/internal/logging"
	"github.com/LeventeLantos/tweet-scheduler/internal/model"
	"github.com/LeventeLantos/tweet-scheduler/internal/timeexpr"
)

const description = `Stores tweets with a send time and posts them when they are due.
Configuration is read from the environment and an optional .env file.`

var sentLimit int

func Execute(args []string, stdout io.Writer) error {
	a := cli.NewApp()
	a.Name = "tweetsched"
	a.HelpName = "tweetsched"
	a.Usage = "schedule tweets for later delivery"
	a.UsageText = "tweetsched <command> [arguments...]"
	a.Description = description
	a.Writer = stdout
	a.HideVersion = true
	a.Commands = []cli.Command{
		{
			Name:      "add",
			Usage:     "schedule a tweet",
			ArgsUsage: "<message> <time-expression>",
			Action:    withApp(add),
		},
		{
			Name:   "list",
			Usage:  "list tweets that have not been sent yet",
			Action: withApp(list),
		},
		{
			Name:      "delete",
			Usage:     "delete a scheduled tweet",
			ArgsUsage: "<id>",
			Action:    withApp(remove),
		},
		{
			Name:   "sent",
			Usage:  "show recently sent tweets",
			Action: withApp(sent),
			Flags: []cli.Flag{
				cli.IntFlag{
					Name:        "limit, n",
					Value:       20,
					Usage:       "number of tweets to show",
					Destination: &sentLimit,
				},
			},
		},
		{
			Name:      "run",
			Usage:     "deliver tweets as they become due",
			ArgsUsage: "[username password]",
			Action:    withApp(run),
		},
	}
	a.Action = func(c *cli.Context) error {
		return cli.ShowAppHelp(c)
	}
	return a.Run(args)
}

func withApp(fn func(c *cli.Context, a *app.App) error) func(*cli.Context) error {
	return func(c *cli.Context) error {
		cfg, err := config.LoadAll()
		if err != nil {
			return err
		}
		log := logging.New(cfg.Log.Level, cfg.Log.Format, os.Stderr)

		a, err := app.New(context.Background(), cfg, log)
		if err != nil {
			return err
		}
		defer a.Close()

		return fn(c, a)
	}
}

func add(c *cli.Context, a *app.App) error {
	if c.NArg() < 2 {
		return errors.New("usage: tweetsched add <message> <time-expression>")
	}
	message := c.Args().First()
	when := strings.Join(c.Args().Tail(), " ")

	t, err := a.Add(context.Background(), message, when)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.App.Writer, "Added tweet: %d, will send at: %s\n", t.ID, timeexpr.Format(t.SendAt))
	return nil
}

func list(c *cli.Context, a *app.App) error {
	tweets, err := a.List(context.Background())
	if err != nil {
		return err
	}
	for _, t := range tweets {
		fmt.Fprintln(c.App.Writer, formatTweet(t))
	}
	return nil
}

func remove(c *cli.Context, a *app.App) error {
	if c.NArg() != 1 {
		return errors.New("usage: tweetsched delete <id>")
	}

	id, err := strconv.ParseInt(c.Args().First(), 10, 64)
	if err == nil {
		err = a.Delete(context.Background(), id)
	} else {
		err = model.ErrNotFound
	}

	switch {
	case errors.Is(err, model.ErrNotFound):
		fmt.Fprintln(c.App.Writer, "Couldn't find tweet with that ID")
		return nil
	case err != nil:
		return err
	}
	fmt.Fprintln(c.App.Writer, "Deleted")
	return nil
}

func sent(c *cli.Context, a *app.App) error {
	tweets, err := a.Sent(context.Background(), sentLimit)
	if err != nil {
		return err
	}
	for _, t := range tweets {
		fmt.Fprintln(c.App.Writer, formatSent(t))
	}
	return nil
}

func run(c *cli.Context, a *app.App) error {
	var username, password string
	switch c.NArg() {
	case 0:
	case 2:
		username, password = c.Args().Get(0), c.Args().Get(1)
	default:
		return errors.New("usage: tweetsched run [username password]")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return a.Run(ctx, username, password)
}

func formatTweet(t model.Tweet) string {
	return fmt.Sprintf("Tweet: %d, will send at: %s -- %s", t.ID, timeexpr.Format(t.SendAt), t.Message)
}

func formatSent(t model.Tweet) string {
	at := t.SendAt
	if t.SentAt != nil {
		at = *t.SentAt
	}
	line := fmt.Sprintf("Sent: %d, at: %s -- %s", t.ID, timeexpr.Format(at), t.Message)
	if t.RemoteID != nil {
		line += " (remote id " + *t.RemoteID + ")"
	}
	return line
}
