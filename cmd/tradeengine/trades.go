package main

import (
	"fmt"
	"net/http"
	"net/url"

	"github.com/urfave/cli/v2"
)

var (
	tradeIDFlag = &cli.StringFlag{
		Name:     "id",
		Usage:    "the id of the trade",
		Required: true,
	}

	trades = cli.Command{
		Name:  "trades",
		Usage: "list, inspect and move forward the trades of the engine",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "open",
				Usage: "list only trades neither completed nor failed",
			},
		},
		Action: listTradesAction,
		Subcommands: []*cli.Command{
			{
				Name:   "get",
				Usage:  "get the status of a trade",
				Flags:  []cli.Flag{tradeIDFlag},
				Action: getTradeAction,
			},
			{
				Name:   "paymentstarted",
				Usage:  "confirm as buyer that the off-chain payment was sent",
				Flags:  []cli.Flag{tradeIDFlag},
				Action: tradeAction("payment-started"),
			},
			{
				Name:   "paymentreceived",
				Usage:  "confirm as seller that the off-chain payment was received",
				Flags:  []cli.Flag{tradeIDFlag},
				Action: tradeAction("payment-received"),
			},
			{
				Name:   "resume",
				Usage:  "run again the step a trade was interrupted at",
				Flags:  []cli.Flag{tradeIDFlag},
				Action: tradeAction("resume"),
			},
			{
				Name:  "dispute",
				Usage: "open a dispute for a trade and notify the peer",
				Flags: []cli.Flag{
					tradeIDFlag,
					&cli.StringFlag{
						Name:  "reason",
						Usage: "the reason of the dispute",
					},
				},
				Action: openDisputeAction,
			},
		},
	}
)

func listTradesAction(ctx *cli.Context) error {
	path := "/v1/trades/"
	if ctx.Bool("open") {
		path += "?open=true"
	}
	return call(http.MethodGet, path, nil)
}

func getTradeAction(ctx *cli.Context) error {
	return call(http.MethodGet, tradePath(ctx.String("id"), ""), nil)
}

func tradeAction(action string) cli.ActionFunc {
	return func(ctx *cli.Context) error {
		return call(http.MethodPost, tradePath(ctx.String("id"), action), nil)
	}
}

func openDisputeAction(ctx *cli.Context) error {
	return call(
		http.MethodPost, tradePath(ctx.String("id"), "dispute"),
		map[string]string{"reason": ctx.String("reason")},
	)
}

func tradePath(id, action string) string {
	path := fmt.Sprintf("/v1/trades/%s", url.PathEscape(id))
	if action != "" {
		path += "/" + action
	}
	return path
}
