package commands

import (
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/cloudspool/cloudspool/internal/cli/output"
	"github.com/cloudspool/cloudspool/pkg/sources"
	"github.com/cloudspool/cloudspool/pkg/store/models"
)

var (
	sourceFolder   string
	sourceArchive  string
	sourcePattern  string
	sourceDisabled bool
)

var sourceCmd = &cobra.Command{
	Use:   "source",
	Short: "Manage watched source folders",
	Long: `Manage the folders cloudspool watches for new files.

Changes made while the service is running take effect on the next
supervisor pass; no restart is needed.`,
}

var sourceListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all sources",
	RunE:  runSourceList,
}

var sourceAddCmd = &cobra.Command{
	Use:   "add <name>",
	Short: "Add a new source folder",
	Long: `Add a new watched folder.

Examples:
  cloudspool source add inbox --folder /var/spool/inbox
  cloudspool source add reports --folder /data/reports --pattern '*.csv' --archive /data/reports/done`,
	Args: cobra.ExactArgs(1),
	RunE: runSourceAdd,
}

var sourceRemoveCmd = &cobra.Command{
	Use:   "remove <name>",
	Short: "Remove a source",
	Args:  cobra.ExactArgs(1),
	RunE:  runSourceRemove,
}

var sourceEnableCmd = &cobra.Command{
	Use:   "enable <name>",
	Short: "Enable a source",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return setSourceEnabled(cmd, args[0], true)
	},
}

var sourceDisableCmd = &cobra.Command{
	Use:   "disable <name>",
	Short: "Disable a source and stop its watcher",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return setSourceEnabled(cmd, args[0], false)
	},
}

var sourceRefreshCmd = &cobra.Command{
	Use:   "refresh <name>",
	Short: "Restart the watcher for a source",
	Args:  cobra.ExactArgs(1),
	RunE:  runSourceRefresh,
}

func init() {
	sourceAddCmd.Flags().StringVar(&sourceFolder, "folder", "", "Absolute path of the folder to watch (required)")
	sourceAddCmd.Flags().StringVar(&sourceArchive, "archive", "", "Absolute path of the archive folder")
	sourceAddCmd.Flags().StringVar(&sourcePattern, "pattern", "*", "Glob pattern matched against file names")
	sourceAddCmd.Flags().BoolVar(&sourceDisabled, "disabled", false, "Create the source disabled")
	_ = sourceAddCmd.MarkFlagRequired("folder")

	sourceCmd.AddCommand(sourceListCmd)
	sourceCmd.AddCommand(sourceAddCmd)
	sourceCmd.AddCommand(sourceRemoveCmd)
	sourceCmd.AddCommand(sourceEnableCmd)
	sourceCmd.AddCommand(sourceDisableCmd)
	sourceCmd.AddCommand(sourceRefreshCmd)
}

func runSourceList(cmd *cobra.Command, args []string) error {
	_, st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	list, err := sources.New(st).ListAll(cmd.Context())
	if err != nil {
		return err
	}
	if len(list) == 0 {
		fmt.Println("No sources configured.")
		return nil
	}

	table := output.NewTableData("NAME", "FOLDER", "PATTERN", "ENABLED", "REFRESH", "ARCHIVE")
	for _, s := range list {
		table.AddRow(s.Name, s.FolderPath, s.Pattern(),
			strconv.FormatBool(s.Enabled), strconv.FormatBool(s.NeedsRefresh), s.ArchiveFolderPath)
	}
	return output.PrintTable(os.Stdout, table)
}

func runSourceAdd(cmd *cobra.Command, args []string) error {
	_, st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	source := &models.Source{
		Name:              args[0],
		FolderPath:        sourceFolder,
		ArchiveFolderPath: sourceArchive,
		FilePattern:       sourcePattern,
		Enabled:           !sourceDisabled,
	}
	if err := sources.New(st).Create(cmd.Context(), source); err != nil {
		return err
	}
	fmt.Printf("Source %q created (folder: %s, pattern: %s)\n", source.Name, source.FolderPath, source.Pattern())
	return nil
}

func runSourceRemove(cmd *cobra.Command, args []string) error {
	_, st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	if err := sources.New(st).Delete(cmd.Context(), args[0]); err != nil {
		return err
	}
	fmt.Printf("Source %q removed\n", args[0])
	return nil
}

func setSourceEnabled(cmd *cobra.Command, name string, enabled bool) error {
	_, st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	svc := sources.New(st)
	ctx := cmd.Context()

	source, err := svc.Get(ctx, name)
	if err != nil {
		return err
	}
	source.Enabled = enabled
	source.NeedsRefresh = true
	if err := svc.Update(ctx, source); err != nil {
		return err
	}

	state := "enabled"
	if !enabled {
		state = "disabled"
	}
	fmt.Printf("Source %q %s\n", name, state)
	return nil
}

func runSourceRefresh(cmd *cobra.Command, args []string) error {
	_, st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	if err := sources.New(st).RequestRefresh(cmd.Context(), args[0]); err != nil {
		return err
	}
	fmt.Printf("Refresh requested for source %q; the watcher restarts on the next pass\n", args[0])
	return nil
}
