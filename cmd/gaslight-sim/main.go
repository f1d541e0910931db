// Command gaslight-sim replays scripted transmissions through the Gaslight
// Radio backend without a microphone, a network or a window.
package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
)

var (
	version = "dev"

	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#C8A040"))

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#6B7280"))

	cutStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#EF4444"))

	calmStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#10B981"))

	cardStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#5A4A2A")).
			Padding(0, 1).
			Width(72)
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, cutStyle.Render("error: ")+err.Error())
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var opts replayOptions

	rootCmd := &cobra.Command{
		Use:   "gaslight-sim",
		Short: "Replay scripted transmissions against HR",
		Long: titleStyle.Render("Gaslight Radio simulator") + `

Runs the real scoring, interrupt and escalation pipeline on a simulated clock.
` + dimStyle.Render("Radio processing and narration are disabled."),
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVar(&opts.ConfigFile, "config", "", "config file (default searches the usual locations)")
	rootCmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "log backend activity to the console")

	runCmd := &cobra.Command{
		Use:   "run [script.yaml]",
		Short: "Replay every transmission in a script",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			script, err := loadScript(args[0])
			if err != nil {
				return err
			}
			r, err := newReplayer(opts)
			if err != nil {
				return err
			}
			defer r.Close()

			out := cmd.OutOrStdout()
			for _, t := range script.Sessions {
				outcome, err := r.Play(cmd.Context(), t)
				if err != nil {
					return err
				}
				printOutcome(out, outcome)
			}
			return nil
		},
	}

	scoreCmd := &cobra.Command{
		Use:   "score [text]",
		Short: "Show how HR scores a sentence",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := newReplayer(opts)
			if err != nil {
				return err
			}
			defer r.Close()

			text := strings.Join(args, " ")
			score, level, cut := r.Score(text)
			verdict := calmStyle.Render("allowed to finish")
			if cut {
				verdict = cutStyle.Render(fmt.Sprintf("cut at level %d", level))
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s  score %.2f  %s\n", dimStyle.Render(text), score, verdict)
			return nil
		},
	}

	rootCmd.AddCommand(runCmd, scoreCmd)
	return rootCmd
}

func printOutcome(w io.Writer, o Outcome) {
	r := o.Result

	header := calmStyle.Render("FILED")
	if r.Interrupted {
		header = cutStyle.Render("CUT")
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s  %s  %s\n", titleStyle.Render(o.Name), header, dimStyle.Render(r.CaseID))
	fmt.Fprintf(&b, "tier %d  score %.2f  compliance %d%%\n", r.Tier, r.Score, r.Compliance)
	if r.TranscriptText != "" {
		fmt.Fprintf(&b, "%s\n", dimStyle.Render("> "+r.TranscriptText))
	}
	b.WriteString(r.ResponseText)
	if r.Quip != "" {
		fmt.Fprintf(&b, "\n%s", dimStyle.Render(r.Quip))
	}
	if len(o.PeakFlags) > 0 {
		flags := make([]string, len(o.PeakFlags))
		for i, f := range o.PeakFlags {
			flags[i] = string(f)
		}
		fmt.Fprintf(&b, "\n%s", cutStyle.Render("effects: "+strings.Join(flags, ", ")))
	}

	fmt.Fprintln(w, cardStyle.Render(b.String()))
}
