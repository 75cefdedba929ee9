package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/steadyhq/steady/pkg/client"
)

var (
	serverURL  string
	outputJSON bool
)

func addClientFlags(cmds ...*cobra.Command) {
	for _, cmd := range cmds {
		cmd.Flags().StringVar(&serverURL, "server", "http://localhost:8080", "steady server URL")
		cmd.Flags().BoolVar(&outputJSON, "output-json", false, "Output as JSON")
	}
}

func api() *client.Client {
	return client.New(serverURL)
}

func printJSON(v interface{}) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	var buf bytes.Buffer
	if err := json.Indent(&buf, b, "", "  "); err != nil {
		return err
	}
	fmt.Fprintln(os.Stdout, buf.String())
	return nil
}
