// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

// Package main implements tokenctl, the offline tool that mints and inspects
// agent credentials for the gateway.
package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/ozean-licht/ozean-licht-sub011/agent/auth"
	"github.com/ozean-licht/ozean-licht-sub011/agent/config"
)

var version = "dev"

func main() {
	if err := newRootCmd(os.Stdout).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

type secretFlags struct {
	secretFile string
	issuer     string
}

func (f *secretFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.secretFile, "secret-file", "", "file holding the signing secret (default: $GATEWAY_SIGNING_SECRET)")
	cmd.Flags().StringVar(&f.issuer, "issuer", defaultIssuer(), "credential issuer, must match the gateway's GATEWAY_TOKEN_ISSUER")
}

func (f *secretFlags) codec() (*auth.TokenCodec, error) {
	var secret []byte
	if f.secretFile != "" {
		data, err := os.ReadFile(f.secretFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read secret file: %w", err)
		}
		secret = []byte(strings.TrimRight(string(data), "\r\n"))
	} else {
		secret = []byte(os.Getenv("GATEWAY_SIGNING_SECRET"))
	}
	if len(secret) == 0 {
		return nil, errors.New("no signing secret: set GATEWAY_SIGNING_SECRET or pass --secret-file")
	}
	if len(secret) < config.MinSecretLength {
		return nil, fmt.Errorf("signing secret must be at least %d bytes", config.MinSecretLength)
	}
	return auth.NewTokenCodec(secret, auth.WithIssuer(f.issuer))
}

func defaultIssuer() string {
	if v := os.Getenv("GATEWAY_TOKEN_ISSUER"); v != "" {
		return v
	}
	return config.Default().TokenIssuer
}

func newRootCmd(out io.Writer) *cobra.Command {
	root := &cobra.Command{
		Use:           "tokenctl",
		Short:         "Agent gateway credential tool",
		Long:          `tokenctl mints and inspects the bearer credentials agents present to the gateway.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(out)

	root.AddCommand(mintCmd())
	root.AddCommand(inspectCmd())
	return root
}

func mintCmd() *cobra.Command {
	var (
		secrets     secretFlags
		agentID     string
		name        string
		permissions []string
		ttl         time.Duration
		override    int
	)

	cmd := &cobra.Command{
		Use:   "mint",
		Short: "Mint a credential",
		Example: `  tokenctl mint --agent-id build-bot --permission repo:read --permission issues:write --ttl 720h
  tokenctl mint --agent-id ops --permission '*' --rate-limit-override 1000`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			codec, err := secrets.codec()
			if err != nil {
				return err
			}
			var opts []auth.MintOption
			if cmd.Flags().Changed("rate-limit-override") {
				if override <= 0 {
					return errors.New("--rate-limit-override must be positive")
				}
				opts = append(opts, auth.WithRateLimitOverride(override))
			}
			if name == "" {
				name = agentID
			}

			token, err := codec.Encode(agentID, name, permissions, ttl, opts...)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}

	secrets.register(cmd)
	cmd.Flags().StringVar(&agentID, "agent-id", "", "agent id (required)")
	cmd.Flags().StringVar(&name, "name", "", "display name (default: the agent id)")
	cmd.Flags().StringArrayVar(&permissions, "permission", nil, "granted permission, repeatable; '*' grants everything")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "credential lifetime")
	cmd.Flags().IntVar(&override, "rate-limit-override", 0, "per-agent global rate limit")
	_ = cmd.MarkFlagRequired("agent-id")
	return cmd
}

func inspectCmd() *cobra.Command {
	var secrets secretFlags

	cmd := &cobra.Command{
		Use:   "inspect <credential>",
		Short: "Verify a credential and print its identity",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			codec, err := secrets.codec()
			if err != nil {
				return err
			}
			identity, err := codec.Decode(args[0])
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(identity)
		},
	}
	secrets.register(cmd)
	return cmd
}
