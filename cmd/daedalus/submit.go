package main

import (
	"fmt"
	"os"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	natsconn "github.com/wehubfusion/Daedalus/internal/nats"
	"github.com/wehubfusion/Daedalus/pkg/message"
)

type submitFlags struct {
	definition  string
	input       string
	blob        string
	format      string
	charset     string
	correlation string
}

func newSubmitCmd(a *app) *cobra.Command {
	var flags submitFlags

	cmd := &cobra.Command{
		Use:   "submit",
		Short: "Publish an import request for the workers",
		Long: `Publish an import request on the request subject. The input is sent
inline (--input) or referenced in blob storage (--blob).`,
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := buildRequest(flags)
			if err != nil {
				return err
			}

			connCfg := a.settings.Connection()
			conn, err := natsconn.Connect(cmd.Context(), connCfg, a.logger)
			if err != nil {
				return err
			}
			defer natsconn.Close(conn)

			js, err := conn.JetStream()
			if err != nil {
				return fmt.Errorf("failed to get JetStream context: %w", err)
			}
			svc, err := message.NewService(message.WrapNATSJetStream(js), connCfg.ServiceConfig(), a.logger)
			if err != nil {
				return err
			}
			if err := svc.EnsureStream(connCfg.RequestStream, connCfg.RequestSubject); err != nil {
				return err
			}
			if err := svc.Submit(cmd.Context(), connCfg.RequestSubject, req); err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), pterm.Success.Sprintfln("submitted request %s", req.RequestID))
			return nil
		},
	}

	cmd.Flags().StringVar(&flags.definition, "definition", "", "definition code known to the workers")
	cmd.Flags().StringVar(&flags.input, "input", "", "input file sent inline")
	cmd.Flags().StringVar(&flags.blob, "blob", "", "blob URL or path of the input")
	cmd.Flags().StringVar(&flags.format, "format", "", "input format override")
	cmd.Flags().StringVar(&flags.charset, "charset", "", "input charset override")
	cmd.Flags().StringVar(&flags.correlation, "correlation-id", "", "caller-side identifier copied to the report")
	_ = cmd.MarkFlagRequired("definition")
	return cmd
}

func buildRequest(flags submitFlags) (*message.ImportRequest, error) {
	req := message.NewImportRequest(flags.definition)
	switch {
	case flags.input != "" && flags.blob != "":
		return nil, fmt.Errorf("--input and --blob are mutually exclusive")
	case flags.input != "":
		data, err := os.ReadFile(flags.input)
		if err != nil {
			return nil, err
		}
		req.WithInlineData(flags.format, string(data))
	case flags.blob != "":
		req.WithBlobInput(flags.format, flags.blob)
	default:
		return nil, fmt.Errorf("one of --input or --blob is required")
	}
	req.Input.Charset = flags.charset
	if flags.correlation != "" {
		req.WithCorrelationID(flags.correlation)
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}
	return req, nil
}
