// Command dtrie-regress is a regression harness for the dtrie engines,
// reproducing the original implementation's prefix-search smoke test:
// insert a small fixed dictionary, then prefix-search every length-prefix
// of "back!" and print what comes back.
package main

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	"github.com/zhipingu/dtrie"
)

var dict = []string{"bachelor", "back", "badge", "badger", "badness", "bcs", "backbone"}

const scanPrefix = "back!"

func main() {
	app := &cli.App{
		Name:      "dtrie-regress",
		Usage:     "run the double-array trie prefix-search regression scenario",
		ArgsUsage: "<trie_type>   (1 = tail trie, anything else = two-trie)",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:    "verbose",
				Aliases: []string{"v"},
				Usage:   "enable debug-level logging",
			},
			&cli.Int64Flag{
				Name:  "size-hint",
				Usage: "initial state-array capacity hint passed to the factory",
			},
		},
		Action: run,
	}
	if err := app.Run(os.Args); err != nil {
		logrus.WithError(err).Error("regression run failed")
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	if c.Bool("verbose") {
		logrus.SetLevel(logrus.DebugLevel)
	}

	kind := dtrie.DoubleTrie
	if c.Args().First() == "1" {
		kind = dtrie.SingleTrie
	}

	engine := dtrie.New(kind, int32(c.Int64("size-hint")))
	defer engine.Close()

	for i, word := range dict {
		if err := engine.Insert([]byte(word), int64(i+1)); err != nil {
			return err
		}
	}

	for n := 0; n <= len(scanPrefix); n++ {
		prefix := scanPrefix[:n]
		fmt.Printf("== Searching %q ==\n", prefix)
		for _, r := range engine.PrefixSearch([]byte(prefix)) {
			fmt.Printf("size:%d %s = %d\n", len(r.Key), r.Key, r.Value)
		}
	}
	fmt.Println("== Done ==")
	return nil
}
