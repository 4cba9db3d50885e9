// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/docchat/pkg/logging"
	"github.com/AleutianAI/docchat/pkg/ux"
	"github.com/AleutianAI/docchat/services/docchat/datatypes"
)

func newRootCmd() *cobra.Command {
	var (
		serverFlag string
		configFlag string
		verbose    bool
		plain      bool

		client *apiClient
		logger *logging.Logger
		cfg    cliConfig
	)

	root := &cobra.Command{
		Use:           "docchat-cli",
		Short:         "Command line client for the docchat document QA service",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if plain {
				ux.SetPlain(true)
			}

			var err error
			cfg, err = loadCLIConfig(configFlag)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("server") {
				cfg.Server = serverFlag
			}

			level := logging.LevelWarn
			if verbose {
				level = logging.LevelDebug
			}
			logger = logging.New(logging.Config{
				Level:   level,
				LogDir:  cfg.LogDir,
				Service: "docchat-cli",
			})
			logger.Debug("Resolved configuration", "server", cfg.Server)

			client = newAPIClient(cfg.Server)
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if logger != nil {
				_ = logger.Close()
			}
		},
	}

	root.PersistentFlags().StringVar(&serverFlag, "server", defaultServerURL, "Base URL of the docchat server")
	root.PersistentFlags().StringVar(&configFlag, "config", "", "Path to a config file (default ~/.docchat/config.yaml)")
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug output")
	root.PersistentFlags().BoolVar(&plain, "plain", false, "Disable color and animation")

	root.AddCommand(newHealthCmd(&client))
	root.AddCommand(newDocsCmd(&client))
	root.AddCommand(newAskCmd(&client, &cfg))

	return root
}

func newHealthCmd(client **apiClient) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check whether the server is up and how many documents it serves",
		RunE: func(cmd *cobra.Command, args []string) error {
			status, err := (*client).Health(cmd.Context())
			if err != nil {
				return err
			}
			uptime := (time.Duration(status.UptimeSec) * time.Second).String()
			fmt.Fprintf(cmd.OutOrStdout(), "Status: %s\nUptime: %s\nDocuments: %d\n",
				status.Status, uptime, status.DocsCount)
			return nil
		},
	}
}

func newDocsCmd(client **apiClient) *cobra.Command {
	return &cobra.Command{
		Use:   "docs",
		Short: "List the documents available for questions",
		RunE: func(cmd *cobra.Command, args []string) error {
			docs, err := (*client).Docs(cmd.Context())
			if err != nil {
				return err
			}
			if len(docs) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No documents available.")
				return nil
			}
			for _, id := range docs {
				fmt.Fprintln(cmd.OutOrStdout(), id)
			}
			return nil
		},
	}
}

func newAskCmd(client **apiClient, cfg *cliConfig) *cobra.Command {
	var (
		docID  string
		topK   int
		stream bool
	)

	cmd := &cobra.Command{
		Use:   "ask <question>",
		Short: "Ask a question against a document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := datatypes.AskRequest{
				Question: args[0],
				DocID:    docID,
			}
			switch {
			case cmd.Flags().Changed("top-k"):
				req.TopKSources = &topK
			case cfg.TopK > 0:
				req.TopKSources = &cfg.TopK
			}

			if stream {
				return runAskStream(cmd, *client, req)
			}
			return runAsk(cmd, *client, req)
		},
	}

	cmd.Flags().StringVar(&docID, "doc", "", "Document ID to query (see `docchat-cli docs`)")
	cmd.Flags().IntVar(&topK, "top-k", datatypes.DefaultTopKSources, "Number of source chunks to return")
	cmd.Flags().BoolVar(&stream, "stream", false, "Stream pipeline progress as it happens")
	_ = cmd.MarkFlagRequired("doc")

	return cmd
}

func runAsk(cmd *cobra.Command, client *apiClient, req datatypes.AskRequest) error {
	var resp datatypes.AskResponse
	err := ux.WithSpinner("Consulting "+req.DocID, func() error {
		var askErr error
		resp, askErr = client.Ask(cmd.Context(), req)
		return askErr
	})
	if err != nil {
		return err
	}

	ux.Box("Answer", resp.DraftAnswer)
	if resp.VerificationReport != "" {
		ux.Title("Verification")
		fmt.Println(resp.VerificationReport)
	}
	if len(resp.Sources) > 0 {
		ux.Title("Sources")
		for i, src := range resp.Sources {
			ux.Info(fmt.Sprintf("[%d] %s", i+1, src.Content))
		}
	}
	return nil
}

func runAskStream(cmd *cobra.Command, client *apiClient, req datatypes.AskRequest) error {
	return client.AskStream(cmd.Context(), req, func(ev sseEvent) {
		switch ev.Event {
		case "agent":
			var agent datatypes.AgentEvent
			if err := json.Unmarshal([]byte(ev.Data), &agent); err != nil {
				ux.Warning(fmt.Sprintf("Malformed event: %v", err))
				return
			}
			printAgentEvent(agent)
		case "final":
			printFinalEvent(ev.Data)
		}
	})
}

func printAgentEvent(agent datatypes.AgentEvent) {
	icon := ux.IconPending
	switch agent.Status {
	case datatypes.AgentDone:
		icon = ux.IconSuccess
	case datatypes.AgentError:
		icon = ux.IconError
	}

	line := fmt.Sprintf("%s %s %s", icon.Render(), agent.Agent, agent.Status)
	if agent.Summary != "" {
		line += ": " + agent.Summary
	}
	if agent.Ms > 0 {
		line += fmt.Sprintf(" (%dms)", agent.Ms)
	}
	fmt.Println(line)
	if agent.Preview != "" {
		ux.Muted("    " + agent.Preview)
	}
}

func printFinalEvent(data string) {
	var failure datatypes.FinalError
	if json.Unmarshal([]byte(data), &failure) == nil && failure.Error != "" {
		ux.Error(failure.Error)
		return
	}

	var resp datatypes.AskResponse
	if err := json.Unmarshal([]byte(data), &resp); err != nil {
		ux.Warning(fmt.Sprintf("Malformed final event: %v", err))
		return
	}
	fmt.Println()
	ux.Box("Answer", resp.DraftAnswer)
	if resp.VerificationReport != "" {
		ux.Title("Verification")
		fmt.Println(resp.VerificationReport)
	}
}
