package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"

	"github.com/spf13/cobra"

	"github.com/sprite-ai/ragrev/internal/collect"
	"github.com/sprite-ai/ragrev/internal/diff"
	"github.com/sprite-ai/ragrev/internal/format"
	"github.com/sprite-ai/ragrev/internal/pipeline"
	"github.com/sprite-ai/ragrev/internal/tui"
)

var reviewCmd = &cobra.Command{
	Use:   "review [commit-range]",
	Short: "Review a change set",
	Long: `Review a change set: a PR payload file, a piped diff, or a local
commit range.

Examples:
  ragrev review                     # last commit vs its parent
  ragrev review main...HEAD         # branch vs main
  git diff | ragrev review -        # pipe any diff
  ragrev review --payload pr.json   # full PR payload (metadata + diff)`,
	Args: cobra.MaximumNArgs(1),
	RunE: runReview,
}

func init() {
	reviewCmd.Flags().String("payload", "", "path to a JSON PR payload file")
	reviewCmd.Flags().StringP("format", "f", "terminal", "output format: terminal, markdown, json")
	reviewCmd.Flags().StringP("output", "o", "", "write output to file instead of stdout")
	reviewCmd.Flags().Bool("tui", false, "browse the review interactively")
	reviewCmd.Flags().Bool("stat", false, "print diff stats and exit")
	reviewCmd.Flags().IntP("context", "C", 3, "lines of context around changes")
}

func runReview(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	payload, err := getPayload(cmd, args)
	if err != nil {
		return err
	}
	if strings.TrimSpace(payload.Diff) == "" {
		fmt.Println("No changes to review.")
		return nil
	}

	if stat, _ := cmd.Flags().GetBool("stat"); stat {
		ds, err := diff.Parse(payload.Diff)
		if err != nil {
			return fmt.Errorf("parsing diff: %w", err)
		}
		return printStat(ds)
	}

	client, embedder, store := backends(cfg)
	if store != nil {
		defer store.Close()
	}

	pipe := pipeline.New(cfg, client, embedder, store, repoName(payload.RepoDir))

	result, err := pipe.Run(cmd.Context(), payload, "")
	if err != nil {
		return err
	}

	if useTUI, _ := cmd.Flags().GetBool("tui"); useTUI {
		return tui.Run(result.Review)
	}

	out := cmd.OutOrStdout()
	if path, _ := cmd.Flags().GetString("output"); path != "" {
		f, err := os.Create(path)
		if err != nil {
			return fmt.Errorf("creating output file: %w", err)
		}
		defer f.Close()
		out = f
	}

	switch formatName, _ := cmd.Flags().GetString("format"); formatName {
	case "json":
		return format.JSON(out, result)
	case "markdown":
		return format.Markdown(out, result.Review)
	case "terminal":
		return format.Terminal(out, result.Review)
	default:
		return fmt.Errorf("unknown format %q", formatName)
	}
}

// getPayload assembles the review payload from a payload file, stdin,
// or a local git range.
func getPayload(cmd *cobra.Command, args []string) (collect.Payload, error) {
	if path, _ := cmd.Flags().GetString("payload"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return collect.Payload{}, fmt.Errorf("reading payload: %w", err)
		}
		var p collect.Payload
		if err := json.Unmarshal(data, &p); err != nil {
			return collect.Payload{}, fmt.Errorf("parsing payload: %w", err)
		}
		return p, nil
	}

	contextLines, _ := cmd.Flags().GetInt("context")

	if len(args) == 1 && args[0] == "-" {
		data, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return collect.Payload{}, fmt.Errorf("reading stdin: %w", err)
		}
		return collect.Payload{Diff: string(data)}, nil
	}

	repoDir, err := gitRepoRoot()
	if err != nil {
		return collect.Payload{}, fmt.Errorf("not in a git repository (or git not installed): %w", err)
	}

	var raw string
	if len(args) == 1 {
		raw, err = diff.GitDiffRange(repoDir, args[0], contextLines)
	} else {
		raw, err = diff.GitDiffHead(repoDir, contextLines)
	}
	if err != nil {
		return collect.Payload{}, err
	}
	return collect.Payload{Diff: raw, RepoDir: repoDir}, nil
}

func printStat(ds *diff.DiffSet) error {
	files, added, deleted := ds.Stats()
	fmt.Printf("%d file(s) changed, %d insertions(+), %d deletions(-)\n\n", files, added, deleted)
	for _, f := range ds.Files {
		status := "M"
		if f.IsNew {
			status = "A"
		} else if f.IsDeleted {
			status = "D"
		} else if f.IsRenamed {
			status = "R"
		}
		fmt.Printf("  %s %-50s +%-4d -%d\n", status, f.Path, f.Additions, f.Deletions)
	}
	return nil
}

func gitRepoRoot() (string, error) {
	cmd := exec.Command("git", "rev-parse", "--show-toplevel")
	out, err := cmd.Output()
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(out)), nil
}
