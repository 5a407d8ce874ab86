package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/marcelsud/heatmap-webhooks/webhook/signature"
	"github.com/spf13/cobra"
)

/* cli - signing helpers for webhook senders and receivers
 *
 *   heatmap-webhooks secret
 *   heatmap-webhooks sign   --secret s [payload.json]
 *   heatmap-webhooks verify --secret s --signature hex [payload.json]
 *
 * The payload is read from stdin when no file is given.
 */

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "heatmap-webhooks",
		Short:        "Webhook signing helpers",
		SilenceUsage: true,
	}
	root.AddCommand(newSecretCmd(), newSignCmd(), newVerifyCmd())
	return root
}

func newSecretCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "secret",
		Short: "Generate a new signing secret",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			secret, err := signature.GenerateSecret()
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), secret)
			return nil
		},
	}
}

func newSignCmd() *cobra.Command {
	var secret string
	cmd := &cobra.Command{
		Use:   "sign [payload.json]",
		Short: "Print the " + signature.HeaderName + " value for a JSON payload",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			payload, err := readPayload(cmd, args)
			if err != nil {
				return err
			}
			sig, err := signature.Sign(payload, secret)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), sig)
			return nil
		},
	}
	cmd.Flags().StringVar(&secret, "secret", "", "signing secret")
	cmd.MarkFlagRequired("secret")
	return cmd
}

func newVerifyCmd() *cobra.Command {
	var secret, sig string
	cmd := &cobra.Command{
		Use:   "verify [payload.json]",
		Short: "Check a signature against a JSON payload",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			payload, err := readPayload(cmd, args)
			if err != nil {
				return err
			}
			if !signature.Verify(payload, sig, secret) {
				return fmt.Errorf("signature mismatch")
			}
			fmt.Fprintln(cmd.OutOrStdout(), "valid")
			return nil
		},
	}
	cmd.Flags().StringVar(&secret, "secret", "", "signing secret")
	cmd.Flags().StringVar(&sig, "signature", "", "hex signature to check")
	cmd.MarkFlagRequired("secret")
	cmd.MarkFlagRequired("signature")
	return cmd
}

// readPayload decodes a JSON object keeping numbers as written
func readPayload(cmd *cobra.Command, args []string) (map[string]any, error) {
	var (
		data []byte
		err  error
	)
	if len(args) == 1 {
		data, err = os.ReadFile(args[0])
	} else {
		data, err = io.ReadAll(cmd.InOrStdin())
	}
	if err != nil {
		return nil, fmt.Errorf("reading payload: %w", err)
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var payload map[string]any
	if err := dec.Decode(&payload); err != nil {
		return nil, fmt.Errorf("decoding payload: %w", err)
	}
	return payload, nil
}
