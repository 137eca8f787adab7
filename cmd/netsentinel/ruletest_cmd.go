package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/netsentinel/agent/internal/normalize"
	"github.com/netsentinel/agent/internal/rules"
	"github.com/netsentinel/agent/internal/types"
)

// newRuleTestCommand implements spec.md §6's `rule-test --rule-file PATH`
// subcommand: load a YAML rule file and evaluate it against a synthetic
// flow, the same inbound-LISTEN shape spec.md §8's S1 scenario uses, so
// rule authors can see both their own rules and the builtin.listener
// alert fire without a live collector.
func newRuleTestCommand() *cobra.Command {
	var ruleFile string

	cmd := &cobra.Command{
		Use:   "rule-test",
		Short: "Evaluate a rule file against a synthetic flow",
		RunE: func(cmd *cobra.Command, _ []string) error {
			loaded, err := rules.LoadFile(ruleFile)
			if err != nil {
				return err
			}

			engine := rules.NewEngine(loaded)
			nf := normalize.New(0).Normalize(syntheticFlow())

			for _, alert := range engine.Evaluate(nf) {
				fmt.Printf("[%s] %s: %s\n", alert.Severity, alert.RuleID, alert.Summary)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&ruleFile, "rule-file", "", "Path to a YAML rule file")
	cmd.MarkFlagRequired("rule-file")
	return cmd
}

func syntheticFlow() types.FlowEvent {
	listen := types.TCPStateListen
	signed := false
	return types.FlowEvent{
		Proto:     types.ProtoTCP,
		SrcIP:     "0.0.0.0",
		SrcPort:   8080,
		DstIP:     "0.0.0.0",
		DstPort:   0,
		Direction: types.DirectionInbound,
		State:     &listen,
		Process: &types.ProcessIdentity{
			PID:     1234,
			Name:    "test.exe",
			ExePath: `C:\test\test.exe`,
			Signed:  &signed,
		},
	}
}
