package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/kalambet/anchor/internal/config"
	"github.com/kalambet/anchor/internal/identity"
)

// --- chat ---

type chatReply struct {
	Text   string         `json:"text"`
	Mode   string         `json:"mode"`
	Areas  []priorityArea `json:"priority_areas"`
	Failed bool           `json:"failed"`
}

var chatCmd = &cobra.Command{
	Use:   "chat [message]",
	Short: "Talk to the counselor",
	Long: `Talk to the counselor as --user.

With a message argument a single turn is sent. Without one an interactive
session reads lines from stdin until EOF or "/quit".

Examples:
  anchor chat "I have been struggling this week"
  anchor chat --user alice`,
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient(false)
		if err != nil {
			return err
		}
		if len(args) > 0 {
			return sendTurn(cmd.Context(), client, os.Stdout, strings.Join(args, " "))
		}
		return chatLoop(cmd.Context(), client, os.Stdin, os.Stdout)
	},
}

func sendTurn(ctx context.Context, c *apiClient, w io.Writer, text string) error {
	resp, err := c.post(ctx, "/chat/messages", map[string]string{"content": text})
	if err != nil {
		return err
	}
	var reply chatReply
	if err := decodeJSON(resp, &reply); err != nil {
		return err
	}

	if reply.Failed {
		printWarning("the counselor could not respond")
	}
	fmt.Fprintf(w, "%s %s\n", colorize(colorCyan, "anchor:"), reply.Text)
	if len(reply.Areas) > 0 {
		fmt.Fprintf(w, "\n%s\n%s\n", colorize(colorBold, "Your priority areas"), formatAreas(reply.Areas))
	}
	return nil
}

func chatLoop(ctx context.Context, c *apiClient, r io.Reader, w io.Writer) error {
	fmt.Fprintln(w, colorize(colorBold, "Type a message, or /quit to leave."))
	sc := bufio.NewScanner(r)
	for {
		fmt.Fprint(w, colorize(colorGreen, "you: "))
		if !sc.Scan() {
			fmt.Fprintln(w)
			return sc.Err()
		}
		line := strings.TrimSpace(sc.Text())
		switch line {
		case "":
			continue
		case "/quit", "/exit":
			return nil
		}
		if err := sendTurn(ctx, c, w, line); err != nil {
			printError("%v", err)
		}
	}
}

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Restart the survey for --user (the transcript is kept)",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient(false)
		if err != nil {
			return err
		}
		resp, err := client.delete(cmd.Context(), "/chat/session")
		if err != nil {
			return err
		}
		if err := decodeJSON(resp, nil); err != nil {
			return err
		}
		printSuccess("Survey restarted for %s", userFlag)
		return nil
	},
}

// --- priorities ---

var prioritiesCmd = &cobra.Command{
	Use:   "priorities",
	Short: "Show the latest priority areas for --user",
	RunE: func(cmd *cobra.Command, args []string) error {
		asJSON, _ := cmd.Flags().GetBool("json")

		client, err := newAPIClient(false)
		if err != nil {
			return err
		}
		resp, err := client.get(cmd.Context(), "/priority-areas")
		if err != nil {
			return err
		}
		var result struct {
			Areas     []priorityArea `json:"priority_areas"`
			Chart     []any          `json:"chart"`
			CreatedAt time.Time      `json:"created_at"`
		}
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		if asJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(result)
		}
		fmt.Printf("%s (%s)\n%s", colorize(colorBold, "Priority areas"),
			result.CreatedAt.Local().Format("2006-01-02 15:04"), formatAreas(result.Areas))
		return nil
	},
}

func init() {
	prioritiesCmd.Flags().Bool("json", false, "print the raw response including chart layout")
}

// --- intake ---

var intakeCmd = &cobra.Command{
	Use:   "intake",
	Short: "Manage structured intake answers for --user",
}

var intakeShowCmd = &cobra.Command{
	Use:   "show",
	Short: "List intake questions with stored answers",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient(false)
		if err != nil {
			return err
		}
		resp, err := client.get(cmd.Context(), "/intake")
		if err != nil {
			return err
		}
		var result struct {
			Questions []struct {
				ID   string `json:"id"`
				Text string `json:"question_text"`
				Type string `json:"question_type"`
			} `json:"questions"`
			Answers     map[string]any `json:"answers"`
			ResumeIndex int            `json:"resume_index"`
		}
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}
		if len(result.Questions) == 0 {
			fmt.Println("No intake questions loaded.")
			return nil
		}

		tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		for i, q := range result.Questions {
			marker, answer := " ", "-"
			if v, ok := result.Answers[q.ID]; ok {
				answer = fmt.Sprintf("%v", v)
			} else if i == result.ResumeIndex {
				marker = ">"
			}
			fmt.Fprintf(tw, "%s %s\t%s\t%s\t%s\n", marker, q.ID, q.Type, q.Text, answer)
		}
		return tw.Flush()
	},
}

var intakeAnswerCmd = &cobra.Command{
	Use:   "answer <questionID> <value>...",
	Short: "Store an answer (several values for multiple choice)",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		multi, _ := cmd.Flags().GetBool("multi")
		client, err := newAPIClient(false)
		if err != nil {
			return err
		}
		id := args[0]
		resp, err := client.put(cmd.Context(), "/intake/"+url.PathEscape(id), map[string]any{
			"value": parseAnswerValue(args[1:], multi),
		})
		if err != nil {
			return err
		}
		if err := decodeJSON(resp, nil); err != nil {
			return err
		}
		printSuccess("Saved answer to %s", id)
		return nil
	},
}

// parseAnswerValue turns CLI words into a JSON value. Several words (or
// --multi) become a list; a single numeric word becomes a number.
func parseAnswerValue(words []string, multi bool) any {
	if multi || len(words) > 1 {
		return words
	}
	if n, err := strconv.ParseFloat(words[0], 64); err == nil {
		return n
	}
	return words[0]
}

var intakeSkipCmd = &cobra.Command{
	Use:   "skip <questionID>",
	Short: "Delete the stored answer to a question",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient(false)
		if err != nil {
			return err
		}
		resp, err := client.delete(cmd.Context(), "/intake/"+url.PathEscape(args[0]))
		if err != nil {
			return err
		}
		if err := decodeJSON(resp, nil); err != nil {
			return err
		}
		printSuccess("Removed answer to %s", args[0])
		return nil
	},
}

func init() {
	intakeAnswerCmd.Flags().Bool("multi", false, "send the values as a list even if there is only one")
	intakeCmd.AddCommand(intakeShowCmd, intakeAnswerCmd, intakeSkipCmd)
}

// --- questions (admin) ---

var questionsCmd = &cobra.Command{
	Use:   "questions",
	Short: "Inspect or replace the survey question bank",
}

var questionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the question bank",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient(true)
		if err != nil {
			return err
		}
		resp, err := client.get(cmd.Context(), "/questions")
		if err != nil {
			return err
		}
		var records []map[string]any
		if err := decodeJSON(resp, &records); err != nil {
			return err
		}
		if len(records) == 0 {
			fmt.Println("Question bank is empty.")
			return nil
		}
		tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		for i, r := range records {
			fmt.Fprintf(tw, "%d\t%v\t%v\t%v\n", i, valueOr(r["id"]), valueOr(r["category"]), r["question_text"])
		}
		return tw.Flush()
	},
}

func valueOr(v any) any {
	if v == nil {
		return "-"
	}
	return v
}

var questionsLoadCmd = &cobra.Command{
	Use:   "load <file.json>",
	Short: "Replace the question bank with a JSON array of question records",
	Long: `Replace the question bank with a JSON array of question records.

Each record needs "question_text"; "id", "category" and "question_type" are
optional and any other fields are kept and shown to the counselor model.
Open chat sessions restart their survey against the new bank.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("reading file: %w", err)
		}
		var records []json.RawMessage
		if err := json.Unmarshal(data, &records); err != nil {
			return fmt.Errorf("%s is not a JSON array: %w", args[0], err)
		}

		client, err := newAPIClient(true)
		if err != nil {
			return err
		}
		resp, err := client.put(cmd.Context(), "/questions", records)
		if err != nil {
			return err
		}
		var result struct {
			Count int `json:"count"`
		}
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}
		printSuccess("Loaded %d questions", result.Count)
		return nil
	},
}

func init() {
	questionsCmd.AddCommand(questionsListCmd, questionsLoadCmd)
}

// --- token ---

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Mint a bearer token for --user",
	RunE: func(cmd *cobra.Command, args []string) error {
		admin, _ := cmd.Flags().GetBool("admin")
		ttl, _ := cmd.Flags().GetDuration("ttl")

		cfg, err := config.Load()
		if err != nil {
			return err
		}
		iss, err := identity.NewIssuer(cfg.Auth.JWTSecret)
		if err != nil {
			return err
		}
		tok, err := iss.Sign(userFlag, admin, ttl)
		if err != nil {
			return err
		}
		fmt.Println(tok)
		return nil
	},
}

func init() {
	tokenCmd.Flags().Bool("admin", false, "grant access to admin routes")
	tokenCmd.Flags().Duration("ttl", 30*24*time.Hour, "token lifetime (0 for no expiry)")
}

// --- config ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or change configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show effective configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			printWarning("%v", err)
		}
		tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		for _, ki := range config.ShowAll(cfg) {
			fmt.Fprintf(tw, "%s\t%s\t%s\n", ki.Key, ki.Value, colorize(colorCyan, ki.EnvVar))
		}
		return tw.Flush()
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Long:  "Set a configuration value. Valid keys:\n  " + strings.Join(config.ValidKeys(), "\n  "),
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := config.SetKey(args[0], args[1]); err != nil {
			return err
		}
		printSuccess("Set %s = %s", args[0], args[1])
		return nil
	},
}

var configSetSecretCmd = &cobra.Command{
	Use:   "set-secret <key>",
	Short: "Store a secret in the platform secret store (value read from stdin)",
	Long:  "Store a secret in the platform secret store. Valid keys:\n  " + strings.Join(config.SecretKeys(), "\n  "),
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Fprintf(os.Stderr, "%s: ", args[0])
		value, err := bufio.NewReader(os.Stdin).ReadString('\n')
		if err != nil && err != io.EOF {
			return err
		}
		value = strings.TrimSpace(value)
		if value == "" {
			return fmt.Errorf("empty value")
		}
		if err := config.SetSecret(args[0], value); err != nil {
			return err
		}
		printSuccess("Stored %s", args[0])
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd, configSetCmd, configSetSecretCmd)
}
