package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"os"

	"github.com/shopspring/decimal"
	"github.com/urfave/cli/v2"
)

var (
	offerIDFlag = &cli.StringFlag{
		Name:     "id",
		Usage:    "the id of the offer",
		Required: true,
	}

	offers = cli.Command{
		Name:   "offers",
		Usage:  "place, import and take offers",
		Action: listOffersAction,
		Subcommands: []*cli.Command{
			offerPlaceCmd,
			{
				Name:  "import",
				Usage: "add the json offer of another engine to the local offer book",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "file",
						Usage:    "path of the json file of the offer",
						Required: true,
					},
				},
				Action: importOfferAction,
			},
			{
				Name:   "remove",
				Usage:  "remove an offer from the local offer book",
				Flags:  []cli.Flag{offerIDFlag},
				Action: offerAction(http.MethodDelete, ""),
			},
			{
				Name:   "take",
				Usage:  "take an escrow offer and start the deposit protocol",
				Flags:  []cli.Flag{offerIDFlag},
				Action: offerAction(http.MethodPost, "take"),
			},
			{
				Name:   "swap",
				Usage:  "take a swap offer and send the swap request to its maker",
				Flags:  []cli.Flag{offerIDFlag},
				Action: offerAction(http.MethodPost, "swap"),
			},
		},
	}

	offerPlaceCmd = &cli.Command{
		Name:  "place",
		Usage: "place a new offer as maker",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "variant",
				Usage: "the kind of trade: escrow or swap",
				Value: "escrow",
			},
			&cli.StringFlag{
				Name:  "direction",
				Usage: "whether the maker buys or sells the base asset: buy or sell",
				Value: "sell",
			},
			&cli.StringFlag{
				Name:     "base_asset",
				Usage:    "the asset traded",
				Required: true,
			},
			&cli.Uint64Flag{
				Name:     "amount",
				Usage:    "the amount of base asset traded, in satoshis",
				Required: true,
			},
			&cli.StringFlag{
				Name:  "quote_asset",
				Usage: "the asset the base asset is swapped with (swap only)",
			},
			&cli.Uint64Flag{
				Name:  "quote_amount",
				Usage: "the amount of quote asset, in satoshis (swap only)",
			},
			&cli.Uint64Flag{
				Name:  "buyer_deposit",
				Usage: "the security deposit of the buyer (escrow only)",
			},
			&cli.Uint64Flag{
				Name:  "seller_deposit",
				Usage: "the security deposit of the seller (escrow only)",
			},
			&cli.Uint64Flag{
				Name:  "maker_fee",
				Usage: "the trade fee paid by the maker (escrow only)",
			},
			&cli.Uint64Flag{
				Name:  "taker_fee",
				Usage: "the trade fee paid by the taker (escrow only)",
			},
			&cli.StringFlag{
				Name:  "fee_rate",
				Usage: "the network fee rate in sats/vbyte, defaults to the engine's one",
			},
			&cli.StringFlag{
				Name:  "payment_method",
				Usage: "the method of the off-chain payment (escrow only)",
			},
			&cli.StringFlag{
				Name:  "payment_amount",
				Usage: "the amount of the off-chain payment (escrow only)",
			},
		},
		Action: placeOfferAction,
	}
)

func listOffersAction(ctx *cli.Context) error {
	return call(http.MethodGet, "/v1/offers/", nil)
}

func placeOfferAction(ctx *cli.Context) error {
	contract := map[string]interface{}{
		"base_asset":     ctx.String("base_asset"),
		"amount":         ctx.Uint64("amount"),
		"quote_asset":    ctx.String("quote_asset"),
		"quote_amount":   ctx.Uint64("quote_amount"),
		"buyer_deposit":  ctx.Uint64("buyer_deposit"),
		"seller_deposit": ctx.Uint64("seller_deposit"),
		"maker_fee":      ctx.Uint64("maker_fee"),
		"taker_fee":      ctx.Uint64("taker_fee"),
		"payment_method": ctx.String("payment_method"),
		"payment_amount": ctx.String("payment_amount"),
	}
	if feeRate := ctx.String("fee_rate"); feeRate != "" {
		rate, err := decimal.NewFromString(feeRate)
		if err != nil {
			return fmt.Errorf("invalid fee rate: %s", err)
		}
		contract["fee_rate"] = rate
	}

	return call(http.MethodPost, "/v1/offers/", map[string]interface{}{
		"variant":   ctx.String("variant"),
		"direction": ctx.String("direction"),
		"contract":  contract,
	})
}

func importOfferAction(ctx *cli.Context) error {
	buf, err := os.ReadFile(ctx.String("file"))
	if err != nil {
		return err
	}
	var offer map[string]interface{}
	if err := json.Unmarshal(buf, &offer); err != nil {
		return fmt.Errorf("invalid offer file: %s", err)
	}
	return call(http.MethodPost, "/v1/offers/import", offer)
}

func offerAction(method, action string) cli.ActionFunc {
	return func(ctx *cli.Context) error {
		path := fmt.Sprintf("/v1/offers/%s", url.PathEscape(ctx.String("id")))
		if action != "" {
			path += "/" + action
		}
		return call(method, path, nil)
	}
}
