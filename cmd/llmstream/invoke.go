package main

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/alex-ilgayev/llmstream/pkg/config"
	"github.com/alex-ilgayev/llmstream/pkg/transport"
)

// Invoke command flags
var (
	configPath     string
	invokePrompt   string
	invokeSystem   string
	invokeMaxToken int
	invokeModelID  string
	invokeRegion   string
	invokeAPI      string
	invokeEndpoint string
)

func newInvokeCmd() *cobra.Command {
	invokeCmd := &cobra.Command{
		Use:   "invoke",
		Short: "Send a prompt and stream the response",
		Long: `Invoke sends a single-turn prompt to a model and renders the streamed
response as it arrives.

Authentication uses the bearer token from the config file or
AWS_BEARER_TOKEN_BEDROCK when set, and the default AWS credential chain
(SigV4) otherwise.`,
		Args: cobra.NoArgs,
		RunE: runInvoke,
	}

	invokeCmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to a YAML config file")
	invokeCmd.Flags().StringVarP(&invokePrompt, "prompt", "p", "", "Prompt to send")
	invokeCmd.Flags().StringVar(&invokeSystem, "system", "", "System prompt")
	invokeCmd.Flags().IntVar(&invokeMaxToken, "max-tokens", 1024, "Maximum number of tokens to generate")
	invokeCmd.Flags().StringVarP(&invokeModelID, "model-id", "m", "", "Model id (overrides config)")
	invokeCmd.Flags().StringVar(&invokeRegion, "region", "", "AWS region (overrides config)")
	invokeCmd.Flags().StringVar(&invokeAPI, "api", "", "Streaming API: converse or invoke (overrides config)")
	invokeCmd.Flags().StringVar(&invokeEndpoint, "endpoint", "", "Endpoint URL (overrides config)")
	_ = invokeCmd.MarkFlagRequired("prompt")

	return invokeCmd
}

func runInvoke(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	// Flags win over the config file
	if invokeModelID != "" {
		cfg.ModelID = invokeModelID
	}
	if invokeRegion != "" {
		cfg.Region = invokeRegion
	}
	if invokeAPI != "" {
		cfg.API = invokeAPI
	}
	if invokeEndpoint != "" {
		cfg.Endpoint = invokeEndpoint
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	var signer transport.Signer
	if cfg.BearerToken != "" {
		signer = transport.BearerSigner{Token: cfg.BearerToken}
	} else {
		signer, err = transport.NewSigV4Signer(ctx, cfg.Region)
		if err != nil {
			return err
		}
	}

	p, err := newPipeline(ctx, cfg.MetricsAddr)
	if err != nil {
		return err
	}
	defer p.Close()

	client := transport.New(cfg, signer,
		transport.WithBus(p.eventBus),
		transport.WithObserver(p.metrics),
	)

	body, err := transport.BuildRequestBody(client.API(), transport.Prompt{
		System:    invokeSystem,
		User:      invokePrompt,
		MaxTokens: invokeMaxToken,
	})
	if err != nil {
		return err
	}

	logrus.WithFields(logrus.Fields{
		"url":      client.URL(),
		"model_id": cfg.ModelID,
	}).Debug("Invoking model")

	result, err := client.Stream(ctx, body, nil)
	if err != nil {
		return fmt.Errorf("stream failed: %w", err)
	}

	logrus.WithFields(logrus.Fields{
		"tool_calls": len(result.ToolCalls),
		"leftover":   result.Leftover,
	}).Debug("Stream complete")
	return nil
}

