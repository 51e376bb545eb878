package cmd

import (
	"fmt"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/vaultsearch/vaultsearch/internal/daemon"
	"github.com/vaultsearch/vaultsearch/internal/errors"
)

func newStopCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Stop the running daemon",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			pidfile := daemon.NewPIDFile(cfg.PIDPath())
			if pidfile.ReclaimStale() {
				fmt.Fprintln(out, "Daemon was not running (cleared stale PID file)")
				return nil
			}
			pid, err := pidfile.Read()
			if err != nil {
				fmt.Fprintln(out, "Daemon is not running")
				return nil
			}

			if err := pidfile.Signal(syscall.SIGTERM); err != nil {
				return err
			}

			// Wait for a graceful exit, a little past the daemon's own
			// drain budget.
			deadline := time.Now().Add(cfg.Daemon.ShutdownGrace + 5*time.Second)
			for time.Now().Before(deadline) {
				if !pidfile.IsRunning() {
					fmt.Fprintf(out, "Stopped daemon (pid %d)\n", pid)
					return nil
				}
				time.Sleep(100 * time.Millisecond)
			}
			return errors.Newf(errors.KindChannel, "daemon (pid %d) did not stop in time", pid)
		},
	}
}
