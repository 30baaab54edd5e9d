package cli

import (
	"context"
	"fmt"

	"github.com/fatih/color"
	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"

	"github.com/mnemo-lab/mnemosyne/pkg/cli/config"
	"github.com/mnemo-lab/mnemosyne/pkg/domain/model"
	"github.com/mnemo-lab/mnemosyne/pkg/domain/types"
	"github.com/mnemo-lab/mnemosyne/pkg/usecase"
	"github.com/mnemo-lab/mnemosyne/pkg/utils/logging"
)

func cmdMemory() *cli.Command {
	return &cli.Command{
		Name:    "memory",
		Aliases: []string{"mem"},
		Usage:   "Inspect and administer stored memories",
		Commands: []*cli.Command{
			cmdMemoryList(),
			cmdMemorySearch(),
			cmdMemoryWipe(),
		},
	}
}

// withStore runs fn against a configured store, closing it afterwards
func withStore(ctx context.Context, storeCfg *config.Store, fn func(uc *usecase.UseCases) error) error {
	store, err := storeCfg.Configure(ctx)
	if err != nil {
		return goerr.Wrap(err, "failed to initialize store")
	}
	defer func() {
		if err := store.Close(); err != nil {
			logging.Default().Error("failed to close store", "error", err.Error())
		}
	}()

	return fn(usecase.New(store))
}

var (
	headerColor = color.New(color.FgCyan, color.Bold)
	idColor     = color.New(color.FgYellow)
	metaColor   = color.New(color.FgHiBlack)
)

func printMemory(mem *model.Memory) {
	idColor.Printf("%s", mem.ID)
	metaColor.Printf("  %s\n", mem.CreatedAt.Format("2006-01-02 15:04:05 MST"))
	fmt.Printf("  %s\n", mem.Content.Encode())
	for k, v := range mem.Metadata {
		metaColor.Printf("  %s=%s\n", k, v)
	}
}

func cmdMemoryList() *cli.Command {
	var storeCfg config.Store

	return &cli.Command{
		Name:      "list",
		Aliases:   []string{"ls"},
		Usage:     "List memories in a category",
		ArgsUsage: "<category>",
		Flags:     storeCfg.Flags(),
		Action: func(ctx context.Context, c *cli.Command) error {
			if c.Args().Len() != 1 {
				return goerr.New("exactly one category argument is required")
			}
			category := types.Category(c.Args().First())
			if err := category.Validate(); err != nil {
				return err
			}

			return withStore(ctx, &storeCfg, func(uc *usecase.UseCases) error {
				memories, err := uc.Memories().List(ctx, category)
				if err != nil {
					return err
				}

				headerColor.Printf("%s (%d memories)\n", category, len(memories))
				for _, mem := range memories {
					printMemory(mem)
				}
				return nil
			})
		},
	}
}

func cmdMemorySearch() *cli.Command {
	var storeCfg config.Store
	var term string
	var filters map[string]string

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "query",
			Aliases:     []string{"q"},
			Usage:       "Case-insensitive content substring",
			Destination: &term,
		},
		&cli.StringMapFlag{
			Name:        "meta",
			Usage:       "Exact-match metadata filter (repeatable, key=value)",
			Destination: &filters,
		},
	}
	flags = append(flags, storeCfg.Flags()...)

	return &cli.Command{
		Name:      "search",
		Usage:     "Search memories in a category",
		ArgsUsage: "<category>",
		Flags:     flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			if c.Args().Len() != 1 {
				return goerr.New("exactly one category argument is required")
			}
			category := types.Category(c.Args().First())
			if err := category.Validate(); err != nil {
				return err
			}

			return withStore(ctx, &storeCfg, func(uc *usecase.UseCases) error {
				memories, err := uc.Memories().Search(ctx, category, term, filters)
				if err != nil {
					return err
				}

				headerColor.Printf("%s (%d matches)\n", category, len(memories))
				for _, mem := range memories {
					printMemory(mem)
				}
				return nil
			})
		},
	}
}

func cmdMemoryWipe() *cli.Command {
	var storeCfg config.Store
	var all bool
	var yes bool

	flags := []cli.Flag{
		&cli.BoolFlag{
			Name:        "all",
			Usage:       "Wipe every category",
			Destination: &all,
		},
		&cli.BoolFlag{
			Name:        "yes",
			Aliases:     []string{"y"},
			Usage:       "Skip the confirmation prompt",
			Destination: &yes,
		},
	}
	flags = append(flags, storeCfg.Flags()...)

	return &cli.Command{
		Name:      "wipe",
		Usage:     "Irreversibly delete memories",
		ArgsUsage: "[category]",
		Flags:     flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			if !all && c.Args().Len() != 1 {
				return goerr.New("a category argument or --all is required")
			}
			if all && c.Args().Len() != 0 {
				return goerr.New("--all does not take a category argument")
			}

			if !yes {
				target := "ALL categories"
				if !all {
					target = "category " + c.Args().First()
				}
				color.New(color.FgRed, color.Bold).Printf("About to wipe %s. ", target)
				fmt.Print("Type 'wipe' to continue: ")
				var confirm string
				if _, err := fmt.Scanln(&confirm); err != nil || confirm != "wipe" {
					fmt.Println("Aborted.")
					return nil
				}
			}

			return withStore(ctx, &storeCfg, func(uc *usecase.UseCases) error {
				var deleted int
				var err error
				if all {
					deleted, err = uc.WipeAll(ctx)
				} else {
					channelID := types.ChannelID(c.Args().First())
					deleted, err = uc.WipeChannel(ctx, channelID)
				}
				if err != nil {
					return err
				}

				color.New(color.FgGreen).Printf("Deleted %d memories.\n", deleted)
				return nil
			})
		},
	}
}
