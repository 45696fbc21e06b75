package main

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/urfave/cli/v2"
)

var (
	topicFlag = &cli.StringFlag{
		Name: "topic",
		Usage: "the trade event that triggers the webhook: TRADE_UPDATED, " +
			"TRADE_COMPLETED, TRADE_FAILED or * for any event",
	}

	webhook = cli.Command{
		Name:  "webhook",
		Usage: "add or remove webhooks",
		Subcommands: []*cli.Command{
			webhookAddCmd, webhookRemoveCmd,
		},
	}
	listwebhooks = cli.Command{
		Name:   "webhooks",
		Usage:  "list all webhooks, optionally filtered by target event",
		Flags:  []cli.Flag{topicFlag},
		Action: listWebhooksAction,
	}

	webhookAddCmd = &cli.Command{
		Name:  "add",
		Usage: "add a (secured) webhook endpoint called whenever a target event occurs",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "endpoint",
				Usage:    "the webhook endpoint to be called whenever the target event occurs",
				Required: true,
			},
			&cli.StringFlag{
				Name: "secret",
				Usage: "the eventual secret to use to generate an OAuth token for " +
					"authenticating requests to the webhook endpoint",
			},
			topicFlag,
		},
		Action: addWebhookAction,
	}

	webhookRemoveCmd = &cli.Command{
		Name:  "remove",
		Usage: "remove a webhook",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "id",
				Usage:    "the id of the webhook to remove",
				Required: true,
			},
		},
		Action: removeWebhookAction,
	}
)

func addWebhookAction(ctx *cli.Context) error {
	topic := strings.ToUpper(ctx.String("topic"))
	if topic == "" {
		topic = "*"
	}
	return call(http.MethodPost, "/v1/webhooks/", map[string]string{
		"topic":    topic,
		"endpoint": ctx.String("endpoint"),
		"secret":   ctx.String("secret"),
	})
}

func removeWebhookAction(ctx *cli.Context) error {
	if err := call(
		http.MethodDelete,
		fmt.Sprintf("/v1/webhooks/%s", url.PathEscape(ctx.String("id"))), nil,
	); err != nil {
		return err
	}
	fmt.Println()
	fmt.Println("webhook removed")
	return nil
}

func listWebhooksAction(ctx *cli.Context) error {
	path := "/v1/webhooks/"
	if topic := ctx.String("topic"); topic != "" {
		path += "?topic=" + url.QueryEscape(strings.ToUpper(topic))
	}
	return call(http.MethodGet, path, nil)
}
