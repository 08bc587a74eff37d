package main

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/Zenn-Dev99/StrapiAlmonte-sub001/internal/infrastructure/config"
)

// listChannels prints the configured channels. A channel with missing settings is
// listed with the problem instead of failing the command.
func listChannels(cfg *config.Config, w io.Writer) error {
	keys := cfg.ChannelKeys()
	if len(keys) == 0 {
		fmt.Fprintln(w, "no channels configured")
		return nil
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "KEY\tBASE URL\tAUTH\tCAPABILITIES\tSTATUS")
	for _, key := range keys {
		cc := cfg.Channels[key]
		status := "ok"
		if _, err := cfg.ChannelsFor([]string{key}); err != nil {
			status = err.Error()
		}
		caps := strings.Join(cc.Capabilities, ",")
		if caps == "" {
			caps = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", key, cc.BaseURL, cc.Auth, caps, status)
	}
	return tw.Flush()
}
