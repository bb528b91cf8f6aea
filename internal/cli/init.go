package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create the memory database and apply the schema",
		Run:   runInit,
	}
	RootCmd.AddCommand(cmd)
}

func runInit(cmd *cobra.Command, args []string) {
	cfg := loadConfig()
	log := newLogger()
	defer log.Sync()

	s, err := openStore(log, cfg.Store)
	if err != nil {
		exitErr("init", err)
	}
	defer s.Close()

	fmt.Printf("initialized memory database at %s\n", getDBPath())
}
