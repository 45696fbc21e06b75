package main

import (
	"fmt"
	"net/http"
	"net/url"

	"github.com/urfave/cli/v2"
)

var wallet = cli.Command{
	Name:  "wallet",
	Usage: "fund the engine's wallet and check its balance",
	Subcommands: []*cli.Command{
		{
			Name:   "address",
			Usage:  "derive a new address to fund the wallet",
			Action: deriveAddressAction,
		},
		{
			Name:  "balance",
			Usage: "get the total and locked balance of an asset",
			Flags: []cli.Flag{
				&cli.StringFlag{
					Name:     "asset",
					Usage:    "the hex asset id",
					Required: true,
				},
			},
			Action: balanceAction,
		},
	},
}

func deriveAddressAction(ctx *cli.Context) error {
	return call(http.MethodPost, "/v1/wallet/address", nil)
}

func balanceAction(ctx *cli.Context) error {
	return call(
		http.MethodGet,
		fmt.Sprintf("/v1/wallet/balance/%s", url.PathEscape(ctx.String("asset"))),
		nil,
	)
}
