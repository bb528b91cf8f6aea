package cli

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/memctl/memctl/internal/memory"
	"github.com/memctl/memctl/internal/mount"
)

func init() {
	mountCmd := &cobra.Command{
		Use:   "mount",
		Short: "Manage mounted folders",
	}

	addCmd := &cobra.Command{
		Use:   "add [path]",
		Short: "Register a folder as a mount",
		Args:  cobra.ExactArgs(1),
		Run:   runMountAdd,
	}
	addCmd.Flags().String("name", "", "mount name (default: folder basename)")
	addCmd.Flags().String("lang", "", "language hint for ingested content")
	addCmd.Flags().StringSlice("ignore", nil, "glob patterns to skip")

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List registered mounts",
		Run:   runMountList,
	}

	rmCmd := &cobra.Command{
		Use:   "rm [id]",
		Short: "Deregister a mount (does not archive already-ingested items)",
		Args:  cobra.ExactArgs(1),
		Run:   runMountRm,
	}

	watchCmd := &cobra.Command{
		Use:   "watch [id]",
		Short: "Watch a mount and sync automatically on filesystem changes",
		Args:  cobra.ExactArgs(1),
		Run:   runMountWatch,
	}
	watchCmd.Flags().Duration("quiet-period", 500*time.Millisecond, "debounce window before syncing after a burst of fs events")

	mountCmd.AddCommand(addCmd, listCmd, rmCmd, watchCmd)
	RootCmd.AddCommand(mountCmd)
}

func runMountAdd(cmd *cobra.Command, args []string) {
	path, err := filepath.Abs(args[0])
	if err != nil {
		exitErr("mount add", err)
	}
	name, _ := cmd.Flags().GetString("name")
	if name == "" {
		name = filepath.Base(path)
	}
	lang, _ := cmd.Flags().GetString("lang")
	ignore, _ := cmd.Flags().GetStringSlice("ignore")

	cfg := loadConfig()
	log := newLogger()
	defer log.Sync()

	s, err := openStore(log, cfg.Store)
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	m, err := s.AddMount(cmd.Context(), memory.Mount{Path: path, Name: name, LangHint: lang, IgnorePatterns: ignore})
	if err != nil {
		exitErr("mount add", err)
	}

	if jsonOutput {
		b, _ := json.MarshalIndent(m, "", "  ")
		fmt.Println(string(b))
		return
	}
	fmt.Printf("%s  %s  (%s)\n", m.ID, m.Path, m.Name)
}

func runMountList(cmd *cobra.Command, args []string) {
	cfg := loadConfig()
	log := newLogger()
	defer log.Sync()

	s, err := openStore(log, cfg.Store)
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	mounts, err := s.ListMounts(cmd.Context())
	if err != nil {
		exitErr("mount list", err)
	}

	if jsonOutput {
		b, _ := json.MarshalIndent(mounts, "", "  ")
		fmt.Println(string(b))
		return
	}
	for _, m := range mounts {
		fmt.Printf("%s  %s  (%s)\n", m.ID, m.Path, m.Name)
	}
}

func runMountRm(cmd *cobra.Command, args []string) {
	cfg := loadConfig()
	log := newLogger()
	defer log.Sync()

	s, err := openStore(log, cfg.Store)
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	if err := s.RemoveMount(cmd.Context(), args[0]); err != nil {
		exitErr("mount rm", err)
	}
	fmt.Printf("removed mount %s\n", args[0])
}

func runMountWatch(cmd *cobra.Command, args []string) {
	quiet, _ := cmd.Flags().GetDuration("quiet-period")
	cfg := loadConfig()
	log := newLogger()
	defer log.Sync()

	s, err := openStore(log, cfg.Store)
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	m, err := s.GetMount(cmd.Context(), args[0])
	if err != nil {
		exitErr("mount watch", err)
	}

	sy := &mount.Syncer{Store: s, Policy: openPolicy(cfg.Policy)}
	fmt.Printf("watching %s (quiet period %s)\n", m.Path, quiet)
	if err := sy.Watch(cmd.Context(), m, quiet, log); err != nil {
		exitErr("mount watch", err)
	}
}
