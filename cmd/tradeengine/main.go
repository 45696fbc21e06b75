package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/urfave/cli/v2"
)

var (
	dataDir   = btcutil.AppDataDir("tradeengine-cli", false)
	statePath = filepath.Join(dataDir, "state.json")

	httpClient = &http.Client{Timeout: 2 * time.Minute}
)

func main() {
	app := cli.NewApp()

	app.Version = "0.1.0"
	app.Name = "tradeengine"
	app.Usage = "Command line interface for tradeengined operators"
	app.Commands = append(
		app.Commands,
		&config,
		&trades,
		&offers,
		&webhook,
		&listwebhooks,
		&wallet,
	)

	if err := app.Run(os.Args); err != nil {
		fatal(err)
	}
}

func getState() (map[string]string, error) {
	data := map[string]string{}

	file, err := os.ReadFile(statePath)
	if err != nil {
		return nil, errors.New("get config state error: try 'config init'")
	}
	if err := json.Unmarshal(file, &data); err != nil {
		return nil, fmt.Errorf("invalid config state: %s", err)
	}
	return data, nil
}

func setState(data map[string]string) error {
	if err := os.MkdirAll(dataDir, os.ModeDir|0755); err != nil {
		return err
	}

	currentData, err := getState()
	if err != nil {
		currentData = map[string]string{}
	}
	for k, v := range data {
		currentData[k] = v
	}

	buf, err := json.Marshal(currentData)
	if err != nil {
		return err
	}
	if err := os.WriteFile(statePath, buf, 0644); err != nil {
		return fmt.Errorf("writing to file: %w", err)
	}
	return nil
}

func getServerURL() (string, error) {
	state, err := getState()
	if err != nil {
		return "", err
	}
	address, ok := state["rpcserver"]
	if !ok || address == "" {
		return "", errors.New("set rpcserver with `config set rpcserver`")
	}
	if !strings.HasPrefix(address, "http") {
		address = "http://" + address
	}
	return strings.TrimSuffix(address, "/"), nil
}

// call sends a request to the operator interface and prints the response.
func call(method, path string, body interface{}) error {
	serverURL, err := getServerURL()
	if err != nil {
		return err
	}

	var reqBody io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reqBody = bytes.NewReader(buf)
	}
	req, err := http.NewRequest(method, serverURL+path, reqBody)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("unable to connect to operator interface: %v", err)
	}
	defer resp.Body.Close()

	buf, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	if resp.StatusCode >= http.StatusBadRequest {
		res := struct {
			Error string `json:"error"`
		}{}
		if err := json.Unmarshal(buf, &res); err != nil || res.Error == "" {
			return fmt.Errorf("%s", resp.Status)
		}
		return errors.New(res.Error)
	}

	printRespJSON(buf)
	return nil
}

func printRespJSON(buf []byte) {
	if len(buf) <= 0 {
		return
	}
	var out bytes.Buffer
	if err := json.Indent(&out, buf, "", "\t"); err != nil {
		fmt.Println(string(buf))
		return
	}
	fmt.Println(out.String())
}

type invalidUsageError struct {
	ctx     *cli.Context
	command string
}

func (e *invalidUsageError) Error() string {
	return fmt.Sprintf("invalid usage of command %s", e.command)
}

func fatal(err error) {
	var e *invalidUsageError
	if errors.As(err, &e) {
		_ = cli.ShowCommandHelp(e.ctx, e.command)
	} else {
		_, _ = fmt.Fprintf(os.Stderr, "[tradeengine] %v\n", err)
	}
	os.Exit(1)
}
