// Package cli exposes the sensor pipeline and triage queue as Cobra commands.
package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/bkyoung/build-sensor/internal/adapter/patch"
	"github.com/bkyoung/build-sensor/internal/adapter/repository"
	"github.com/bkyoung/build-sensor/internal/analyzer/source"
	"github.com/bkyoung/build-sensor/internal/domain"
	"github.com/bkyoung/build-sensor/internal/evidence"
	"github.com/bkyoung/build-sensor/internal/store"
	"github.com/bkyoung/build-sensor/internal/usecase/triage"
)

// ErrVersionRequested indicates the user requested the CLI version and no
// further work should be done.
var ErrVersionRequested = errors.New("version requested")

// DiffRunner defines the dependency required to run the diff command.
type DiffRunner interface {
	Run(ctx context.Context, req triage.Request) (triage.Result, error)
}

// QueueStore defines the persistence surface the queue commands need.
type QueueStore interface {
	GetDiff(ctx context.Context, diffID string) (store.DiffRecord, error)
	SaveDiff(ctx context.Context, record store.DiffRecord) error
	ListQueue(ctx context.Context, state store.TriageState, limit int) ([]store.DiffRecord, error)
	SetTriageState(ctx context.Context, diffID string, state store.TriageState, note string) error
	ListRuns(ctx context.Context, limit int) ([]store.Run, error)
}

// ResolveRef materializes a git ref into a source tree.
type ResolveRef func(ref string) (source.Tree, error)

// Arguments encapsulates IO writers injected from the host process.
type Arguments struct {
	OutWriter io.Writer
	ErrWriter io.Writer
}

// Dependencies captures the collaborators for the CLI.
type Dependencies struct {
	Runner        DiffRunner
	Scorer        triage.Scorer
	Store         QueueStore // nil when persistence is disabled
	ResolveRef    ResolveRef // nil when no repository is configured
	Args          Arguments
	DefaultOutput string
	ConfigHash    string
	Version       string
}

// NewRootCommand constructs the root Cobra command.
func NewRootCommand(deps Dependencies) *cobra.Command {
	versionString := deps.Version
	if versionString == "" {
		versionString = "v0.0.0"
	}

	root := &cobra.Command{
		Use:   "sensor",
		Short: "Security evidence pipeline for build diffs",
	}
	root.SilenceUsage = true
	root.SilenceErrors = true

	outWriter := deps.Args.OutWriter
	if outWriter == nil {
		outWriter = os.Stdout
	}
	errWriter := deps.Args.ErrWriter
	if errWriter == nil {
		errWriter = os.Stderr
	}
	root.SetOut(outWriter)
	root.SetErr(errWriter)

	root.AddCommand(diffCommand(deps))
	root.AddCommand(scoreCommand(deps.Store, deps.Scorer))
	root.AddCommand(queueCommand(deps.Store))
	root.AddCommand(triageCommand(deps.Store))
	root.AddCommand(runsCommand(deps.Store))

	var showVersion bool
	root.PersistentFlags().BoolVarP(&showVersion, "version", "v", false, "Show version and exit")
	versionHandler := func(cmd *cobra.Command, args []string) error {
		if showVersion {
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), versionString)
			return ErrVersionRequested
		}
		return nil
	}
	root.PersistentPreRunE = versionHandler
	root.RunE = func(cmd *cobra.Command, args []string) error {
		if err := versionHandler(cmd, args); err != nil {
			return err
		}
		return cmd.Help()
	}

	return root
}

func diffCommand(deps Dependencies) *cobra.Command {
	var buildFrom string
	var buildTo string
	var component string
	var srcFromDir string
	var srcToDir string
	var refFrom string
	var refTo string
	var patchPath string
	var binFrom string
	var binTo string
	var logsPath string
	var outputDir string

	cmd := &cobra.Command{
		Use:   "diff",
		Short: "Diff two labeled builds into a scored evidence bundle",
		RunE: func(cmd *cobra.Command, args []string) error {
			req := triage.Request{
				BuildFrom:      buildFrom,
				BuildTo:        buildTo,
				Component:      component,
				BinaryFromPath: binFrom,
				BinaryToPath:   binTo,
				OutputDir:      outputDir,
				ConfigHash:     deps.ConfigHash,
			}
			if req.OutputDir == "" {
				req.OutputDir = deps.DefaultOutput
			}

			if err := resolveSource(&req, deps.ResolveRef, srcFromDir, srcToDir, refFrom, refTo, patchPath); err != nil {
				return err
			}

			if logsPath != "" {
				stream, closeStream, err := openLogStream(logsPath, cmd.InOrStdin())
				if err != nil {
					return err
				}
				defer closeStream()
				req.LogStream = stream
			}

			result, err := deps.Runner.Run(cmd.Context(), req)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "diff:     %s\n", result.Bundle.DiffID)
			fmt.Fprintf(out, "score:    %.2f (%d reasons, %s)\n",
				result.Score.TotalScore, len(result.Score.Reasons), result.Score.RuleSetVersion)
			for _, reason := range result.Score.Reasons {
				fmt.Fprintf(out, "  +%.2f  %s\n", reason.ScoreContribution, reason.Text)
			}
			for _, notice := range result.Bundle.Notices {
				fmt.Fprintf(out, "notice:   [%s] %s: %s\n", notice.Stage, notice.Subject, notice.Message)
			}
			fmt.Fprintf(out, "report:   %s\n", result.MarkdownPath)
			fmt.Fprintf(out, "bundle:   %s\n", result.JSONPath)
			return nil
		},
	}

	cmd.Flags().StringVar(&buildFrom, "from-build", "", "Label of the older build (required)")
	cmd.Flags().StringVar(&buildTo, "to-build", "", "Label of the newer build (required)")
	cmd.Flags().StringVar(&component, "component", "", "Component under comparison (required)")
	cmd.Flags().StringVar(&srcFromDir, "from-src", "", "Source tree directory of the older build")
	cmd.Flags().StringVar(&srcToDir, "to-src", "", "Source tree directory of the newer build")
	cmd.Flags().StringVar(&refFrom, "from-ref", "", "Git ref of the older build (uses the configured repository)")
	cmd.Flags().StringVar(&refTo, "to-ref", "", "Git ref of the newer build")
	cmd.Flags().StringVar(&patchPath, "patch", "", "Unified diff file to ingest instead of two source trees")
	cmd.Flags().StringVar(&binFrom, "from-bin", "", "Binary artifact of the older build")
	cmd.Flags().StringVar(&binTo, "to-bin", "", "Binary artifact of the newer build")
	cmd.Flags().StringVar(&logsPath, "logs", "", "Log stream file for the newer build, or - for stdin")
	cmd.Flags().StringVar(&outputDir, "output", "", "Report output directory")
	_ = cmd.MarkFlagRequired("from-build")
	_ = cmd.MarkFlagRequired("to-build")
	_ = cmd.MarkFlagRequired("component")

	return cmd
}

// resolveSource fills the request's source input from whichever flag group
// the user chose: directories, git refs, or a patch file.
func resolveSource(req *triage.Request, resolve ResolveRef, srcFromDir, srcToDir, refFrom, refTo, patchPath string) error {
	switch {
	case srcFromDir != "" && srcToDir != "":
		req.SourceFrom = repository.NewDirTree(srcFromDir)
		req.SourceTo = repository.NewDirTree(srcToDir)
		return nil
	case refFrom != "" && refTo != "":
		if resolve == nil {
			return fmt.Errorf("git refs given but no repository configured; set ingest.repositoryDir")
		}
		from, err := resolve(refFrom)
		if err != nil {
			return fmt.Errorf("resolve --from-ref: %w", err)
		}
		to, err := resolve(refTo)
		if err != nil {
			return fmt.Errorf("resolve --to-ref: %w", err)
		}
		req.SourceFrom = from
		req.SourceTo = to
		return nil
	case patchPath != "":
		file, err := os.Open(patchPath)
		if err != nil {
			return fmt.Errorf("open patch: %w", err)
		}
		defer file.Close()
		hunks, err := patch.Read(file)
		if err != nil {
			return err
		}
		req.Hunks = hunks
		return nil
	default:
		return fmt.Errorf("source input required: --from-src/--to-src, --from-ref/--to-ref, or --patch")
	}
}

func openLogStream(path string, stdin io.Reader) (io.Reader, func(), error) {
	if path == "-" {
		return stdin, func() {}, nil
	}
	file, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("open logs: %w", err)
	}
	return file, func() { file.Close() }, nil
}

// scoreCommand recomputes the score for a stored bundle with the current
// rule set, updating the stored artifacts. Triage state is untouched, so a
// rule-set upgrade can re-rank the queue without discarding analyst work.
func scoreCommand(queueStore QueueStore, scorer triage.Scorer) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "score <diff-id>",
		Short: "Re-score a stored evidence bundle with the current rule set",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if queueStore == nil {
				return fmt.Errorf("persistence is disabled; enable store in config")
			}
			if scorer == nil {
				return fmt.Errorf("no scoring engine configured")
			}

			record, err := queueStore.GetDiff(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			var bundle domain.EvidenceBundle
			if err := json.Unmarshal(record.BundleJSON, &bundle); err != nil {
				return fmt.Errorf("stored bundle is unreadable: %w", err)
			}

			result := scorer.Score(bundle)
			if err := evidence.ValidateResult(bundle, result); err != nil {
				return fmt.Errorf("recomputed score cites unresolvable evidence: %w", err)
			}

			scoreJSON, err := json.Marshal(result)
			if err != nil {
				return fmt.Errorf("marshal score: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "recomputed: %.2f (%d reasons, %s)\n",
				result.TotalScore, len(result.Reasons), result.RuleSetVersion)
			fmt.Fprintf(out, "stored:     %.2f (%s)\n",
				record.TotalScore, record.RuleSetVersion)

			if result.TotalScore == record.TotalScore && result.RuleSetVersion == record.RuleSetVersion {
				fmt.Fprintln(out, "recomputation matches the stored score")
				return nil
			}

			record.TotalScore = result.TotalScore
			record.RuleSetVersion = result.RuleSetVersion
			record.ScoreJSON = scoreJSON
			if err := queueStore.SaveDiff(cmd.Context(), record); err != nil {
				return err
			}
			fmt.Fprintln(out, "stored score updated")
			return nil
		},
	}
	return cmd
}

func queueCommand(queueStore QueueStore) *cobra.Command {
	var state string
	var limit int

	cmd := &cobra.Command{
		Use:   "queue",
		Short: "List scored diffs awaiting triage, highest score first",
		RunE: func(cmd *cobra.Command, args []string) error {
			if queueStore == nil {
				return fmt.Errorf("persistence is disabled; enable store in config")
			}
			triageState := store.TriageState(state)
			if !triageState.Valid() {
				return fmt.Errorf("unknown triage state %q", state)
			}

			records, err := queueStore.ListQueue(cmd.Context(), triageState, limit)
			if err != nil {
				return err
			}

			// The hint is for humans; piped output stays clean.
			if len(records) == 0 && triage.IsOutputTerminal() {
				fmt.Fprintf(cmd.OutOrStdout(), "no diffs in state %q\n", triageState)
				return nil
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "DIFF\tSCORE\tCOMPONENT\tBUILDS\tSTATE")
			for _, record := range records {
				fmt.Fprintf(w, "%s\t%.2f\t%s\t%s -> %s\t%s\n",
					record.DiffID, record.TotalScore, record.Component,
					record.BuildFrom, record.BuildTo, record.TriageState)
			}
			return w.Flush()
		},
	}

	cmd.Flags().StringVar(&state, "state", string(store.TriagePending), "Triage state to list")
	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum diffs to list")
	return cmd
}

func triageCommand(queueStore QueueStore) *cobra.Command {
	var note string

	cmd := &cobra.Command{
		Use:   "triage <diff-id> <state>",
		Short: "Move a scored diff through the analyst workflow",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if queueStore == nil {
				return fmt.Errorf("persistence is disabled; enable store in config")
			}
			diffID := args[0]
			state := store.TriageState(args[1])
			if !state.Valid() {
				return fmt.Errorf("unknown triage state %q", args[1])
			}

			if err := queueStore.SetTriageState(cmd.Context(), diffID, state, note); err != nil {
				return err
			}

			record, err := queueStore.GetDiff(cmd.Context(), diffID)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s is now %s (score %.2f)\n",
				record.DiffID, record.TriageState, record.TotalScore)
			return nil
		},
	}

	cmd.Flags().StringVar(&note, "note", "", "Analyst note to attach; empty keeps the existing note")
	return cmd
}

func runsCommand(queueStore QueueStore) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List recent sensor runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			if queueStore == nil {
				return fmt.Errorf("persistence is disabled; enable store in config")
			}

			runs, err := queueStore.ListRuns(cmd.Context(), limit)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "RUN\tTIME\tCOMPONENT\tBUILDS")
			for _, run := range runs {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s -> %s\n",
					run.RunID, run.Timestamp.UTC().Format("2006-01-02 15:04:05"),
					run.Component, run.BuildFrom, run.BuildTo)
			}
			return w.Flush()
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 10, "Maximum runs to list")
	return cmd
}
