package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/cloudspool/cloudspool/internal/cli/output"
	"github.com/cloudspool/cloudspool/pkg/settings"
)

var settingCmd = &cobra.Command{
	Use:   "setting",
	Short: "Manage runtime settings",
	Long: `Manage the runtime settings table.

Settings are read live by the service: a change is picked up on the next
supervisor pass without a restart.`,
}

var settingListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all settings",
	RunE:  runSettingList,
}

var settingGetCmd = &cobra.Command{
	Use:   "get <key>",
	Short: "Show one setting",
	Args:  cobra.ExactArgs(1),
	RunE:  runSettingGet,
}

var settingSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a setting value",
	Long: `Set a setting value.

Examples:
  cloudspool setting set Upload.MaxConcurrentUploads 8
  cloudspool setting set Upload.DeleteOnSuccess true
  cloudspool setting set Azure.StorageConnectionString 'DefaultEndpointsProtocol=...'`,
	Args: cobra.ExactArgs(2),
	RunE: runSettingSet,
}

func init() {
	settingCmd.AddCommand(settingListCmd)
	settingCmd.AddCommand(settingGetCmd)
	settingCmd.AddCommand(settingSetCmd)
}

func runSettingList(cmd *cobra.Command, args []string) error {
	_, st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	list, err := st.ListSettings(cmd.Context())
	if err != nil {
		return err
	}

	table := output.NewTableData("KEY", "VALUE", "CATEGORY", "DESCRIPTION")
	for _, s := range list {
		table.AddRow(s.Key, s.Value, s.Category, s.Description)
	}
	return output.PrintTable(os.Stdout, table)
}

func runSettingGet(cmd *cobra.Command, args []string) error {
	_, st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	setting, err := st.GetSettingRow(cmd.Context(), args[0])
	if err != nil {
		return err
	}

	return output.SimpleTable(os.Stdout, [][2]string{
		{"Key", setting.Key},
		{"Value", setting.Value},
		{"Category", setting.Category},
		{"Description", setting.Description},
		{"Updated", setting.UpdatedAt.Format("2006-01-02 15:04:05")},
	})
}

func runSettingSet(cmd *cobra.Command, args []string) error {
	_, st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	svc := settings.New(st)
	defer svc.Close()

	if err := svc.Set(cmd.Context(), args[0], args[1], "", ""); err != nil {
		return err
	}
	fmt.Printf("Setting %s = %s\n", args[0], args[1])
	return nil
}
