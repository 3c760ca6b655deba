// cmd/pdctl/main.go
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/ReignOfTea/protest-dash/client"
	"github.com/ReignOfTea/protest-dash/shared/utils"
)

var (
	serverURL string
	token     string
)

var rootCmd = &cobra.Command{
	Use:   "pdctl",
	Short: "pdctl controls a protest-dash server",
	Long: `pdctl talks to a running protest-dash server: inspect staged edits,
push them to the data repository as a single commit, and watch the
deploy pipeline that publishes the result.`,
}

func newClient() (*client.Client, error) {
	t := token
	if t == "" {
		t = os.Getenv("PROTEST_DASH_TOKEN")
	}
	if t == "" {
		return nil, fmt.Errorf("no token: pass --token or set PROTEST_DASH_TOKEN")
	}
	return client.New(serverURL, t), nil
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&serverURL, "server", "s", "http://127.0.0.1:8080", "protest-dash server URL")
	rootCmd.PersistentFlags().StringVar(&token, "token", "", "bearer token (defaults to PROTEST_DASH_TOKEN)")

	var statusCmd = &cobra.Command{
		Use:   "status",
		Short: "Show staged edits and the latest deploy run",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newClient()
			if err != nil {
				return err
			}

			state, err := c.BufferState()
			if err != nil {
				return fmt.Errorf("reading buffer state: %w", err)
			}

			yellow := color.New(color.FgYellow).SprintFunc()

			if len(state.Dirty) == 0 {
				fmt.Println("No staged changes (buffer clean)")
			} else {
				fmt.Println("Staged changes:")
				fmt.Println("  (use \"pdctl push -m <message>\" to commit them)")
				for _, path := range state.Dirty {
					fmt.Printf("\t%s %s\n", yellow("M"), path)
				}
			}

			run, err := c.ActionsLatest()
			if err != nil {
				fmt.Printf("\nDeploy: %v\n", err)
				return nil
			}

			fmt.Printf("\nDeploy: %s %s (%s)\n", run.Name, statusWord(run.Status, run.Conclusion), utils.ShortSHA(run.SHA))
			for _, job := range run.Jobs {
				fmt.Printf("\t%s %s\n", statusWord(job.Status, job.Conclusion), job.Name)
			}
			return nil
		},
	}

	var fileCmd = &cobra.Command{
		Use:   "file",
		Short: "Work with content files",
	}

	var fileGetCmd = &cobra.Command{
		Use:   "get [name]",
		Short: "Print a content file, staged edits included",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newClient()
			if err != nil {
				return err
			}

			view, err := c.GetFile(args[0])
			if err != nil {
				return fmt.Errorf("fetching %s: %w", args[0], err)
			}

			if view.NotFound {
				fmt.Fprintf(os.Stderr, "note: %s does not exist on the remote yet\n", args[0])
			}
			if view.Dirty {
				fmt.Fprintf(os.Stderr, "note: %s has staged, unpushed edits\n", args[0])
			}

			os.Stdout.Write(view.Content)
			fmt.Println()
			return nil
		},
	}

	var fileStageCmd = &cobra.Command{
		Use:   "stage [name] [json-file]",
		Short: "Stage new content for a file",
		Long:  `Stages the given JSON as the file's new content. Use '-' to read from stdin.`,
		Example: `  pdctl file stage locations locations.json
  cat live.json | pdctl file stage live -`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newClient()
			if err != nil {
				return err
			}

			var data []byte
			if args[1] == "-" {
				data, err = io.ReadAll(os.Stdin)
			} else {
				data, err = os.ReadFile(args[1])
			}
			if err != nil {
				return fmt.Errorf("reading content: %w", err)
			}

			view, err := c.StageFile(args[0], json.RawMessage(data))
			if err != nil {
				return fmt.Errorf("staging %s: %w", args[0], err)
			}

			if view.Dirty {
				fmt.Printf("Staged %s\n", args[0])
			} else {
				fmt.Printf("Staged %s (no change against the remote)\n", args[0])
			}
			return nil
		},
	}

	var pushCmd = &cobra.Command{
		Use:   "push",
		Short: "Commit all staged edits as one commit",
		RunE: func(cmd *cobra.Command, args []string) error {
			message, _ := cmd.Flags().GetString("message")

			c, err := newClient()
			if err != nil {
				return err
			}

			outcome, err := c.Push(message)
			if err != nil {
				return fmt.Errorf("pushing: %w", err)
			}

			green := color.New(color.FgGreen).SprintFunc()
			fmt.Printf("%s Pushed %s (%d files)\n", green("✓"), utils.ShortSHA(outcome.CommitSHA), len(outcome.Files))
			if outcome.Report != "" {
				fmt.Println(outcome.Report)
			}
			return nil
		},
	}

	var discardCmd = &cobra.Command{
		Use:   "discard [paths...]",
		Short: "Drop staged edits",
		Long:  `Drops staged edits for the given paths. With no paths, everything staged is dropped.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newClient()
			if err != nil {
				return err
			}

			if err := c.Discard(args); err != nil {
				return fmt.Errorf("discarding: %w", err)
			}

			if len(args) == 0 {
				fmt.Println("Discarded all staged edits")
			} else {
				fmt.Println("Discarded staged edits:")
				for _, path := range args {
					fmt.Printf("  %s\n", path)
				}
			}
			return nil
		},
	}

	var commitsCmd = &cobra.Command{
		Use:   "commits",
		Short: "List recent commits",
		RunE: func(cmd *cobra.Command, args []string) error {
			limit, _ := cmd.Flags().GetInt("limit")
			upstream, _ := cmd.Flags().GetBool("upstream")

			c, err := newClient()
			if err != nil {
				return err
			}

			yellow := color.New(color.FgYellow).SprintFunc()

			if upstream {
				commits, err := c.UpstreamCommits(limit)
				if err != nil {
					return fmt.Errorf("listing upstream commits: %w", err)
				}
				if len(commits) == 0 {
					fmt.Println("No commits found")
					return nil
				}
				for _, commit := range commits {
					fmt.Printf("%s  %s  %s  %s\n",
						yellow(utils.ShortSHA(commit.SHA)),
						commit.Date.Format(time.RFC3339),
						commit.Author,
						firstLine(commit.Message),
					)
				}
				return nil
			}

			entries, err := c.RecentCommits(limit)
			if err != nil {
				return fmt.Errorf("listing commits: %w", err)
			}
			if len(entries) == 0 {
				fmt.Println("No commits recorded yet")
				return nil
			}
			for _, e := range entries {
				fmt.Printf("%s  %s  %s  %s\n",
					yellow(utils.ShortSHA(e.SHA)),
					e.CreatedAt.Format(time.RFC3339),
					e.ActorTag,
					firstLine(e.Message),
				)
			}
			return nil
		},
	}

	var whoamiCmd = &cobra.Command{
		Use:   "whoami",
		Short: "Show the identity behind the current token",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newClient()
			if err != nil {
				return err
			}

			id, err := c.Me()
			if err != nil {
				return fmt.Errorf("resolving identity: %w", err)
			}

			fmt.Printf("%s (%s)\n", id.User.Name, id.User.Role)
			fmt.Printf("actor tag: %s\n", id.ActorTag)
			return nil
		},
	}

	// Add flags
	pushCmd.Flags().StringP("message", "m", "", "Commit message")
	pushCmd.MarkFlagRequired("message")

	commitsCmd.Flags().IntP("limit", "n", 10, "Number of commits to list")
	commitsCmd.Flags().Bool("upstream", false, "List the branch history instead of the local journal")

	// Add commands to root
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(fileCmd)
	rootCmd.AddCommand(pushCmd)
	rootCmd.AddCommand(discardCmd)
	rootCmd.AddCommand(commitsCmd)
	rootCmd.AddCommand(whoamiCmd)

	// Add file subcommands
	fileCmd.AddCommand(fileGetCmd)
	fileCmd.AddCommand(fileStageCmd)
}

// statusWord renders a run or job state with the conventional colors.
func statusWord(status, conclusion string) string {
	green := color.New(color.FgGreen).SprintFunc()
	red := color.New(color.FgRed).SprintFunc()
	yellow := color.New(color.FgYellow).SprintFunc()

	switch {
	case status != "completed":
		return yellow(status)
	case conclusion == "success":
		return green(conclusion)
	case conclusion == "failure":
		return red(conclusion)
	default:
		return yellow(conclusion)
	}
}

func firstLine(s string) string {
	for i, r := range s {
		if r == '\n' {
			return s[:i]
		}
	}
	return s
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
