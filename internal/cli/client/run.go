package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

const runPath = "/api/v1/hackrx/run"

type RunRequest struct {
	Documents string   `json:"documents"`
	Questions []string `json:"questions"`
}

type RunResponse struct {
	Answers []string `json:"answers"`
}

// documentURL is a pflag.Value accepting only absolute http(s) URLs.
type documentURL struct {
	value string
}

var _ pflag.Value = (*documentURL)(nil)

func (d *documentURL) String() string { return d.value }

func (d *documentURL) Type() string { return "url" }

func (d *documentURL) Set(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid url: %w", err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("document must be an http(s) URL, got %q", raw)
	}
	d.value = raw
	return nil
}

// RunCmd creates the run command.
func RunCmd() *cobra.Command {
	var (
		document  documentURL
		questions []string
	)

	cmd := &cobra.Command{
		Use:   "run --document <url> -q <question> [-q <question>...]",
		Short: "Ask questions about a PDF document",
		Long:  "Sends a document URL and questions to the API and prints one answer per question, in order.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			outputJSON, _ := cmd.Flags().GetBool("output")

			api, err := NewAPIClientWithCmd(cmd)
			if err != nil {
				return err
			}
			return runQuestions(cmd.Context(), api, cmd.OutOrStdout(), document.value, questions, outputJSON)
		},
	}

	cmd.Flags().Var(&document, "document", "URL of the PDF document")
	cmd.Flags().StringArrayVarP(&questions, "question", "q", nil, "Question to ask (repeatable)")
	_ = cmd.MarkFlagRequired("document")

	return cmd
}

func runQuestions(ctx context.Context, api *APIClient, out io.Writer, document string, questions []string, outputJSON bool) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if questions == nil {
		questions = []string{}
	}

	var resp RunResponse
	if err := api.Post(ctx, runPath, RunRequest{Documents: document, Questions: questions}, &resp); err != nil {
		return fmt.Errorf("run failed: %w", err)
	}

	if outputJSON {
		output, _ := json.MarshalIndent(resp, "", "  ")
		fmt.Fprintln(out, string(output))
		return nil
	}

	for i, answer := range resp.Answers {
		question := ""
		if i < len(questions) {
			question = questions[i]
		}
		fmt.Fprintf(out, "%d. %s\n   %s\n", i+1, question, strings.TrimSpace(answer))
	}
	return nil
}
