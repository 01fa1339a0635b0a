package cli

import (
	"fmt"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/mesh-learning/tileboard/internal/sqlite"
	"github.com/mesh-learning/tileboard/internal/wsbridge"
	"github.com/mesh-learning/tileboard/pkg/store"
)

func newServeCmd() *cobra.Command {
	var listen string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the store over websocket",
		Long:  "Open the local store database and serve it to websocket clients.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, listen)
		},
	}
	cmd.Flags().StringVar(&listen, "listen", "", "listen address (default from config)")
	return cmd
}

func runServe(cmd *cobra.Command, listen string) error {
	log := newLogger()
	cfg, _, err := loadConfig()
	if err != nil {
		return exitError(cmd, exitUserError, err.Error())
	}
	if listen == "" {
		listen = cfg.Listen
	}
	dataDir, err := resolveDataDir(cfg)
	if err != nil {
		return exitError(cmd, exitSysError, err.Error())
	}

	backend, err := sqlite.Open(dataDir, log)
	if err != nil {
		return exitError(cmd, exitSysError, fmt.Sprintf("open storage: %s", err))
	}
	defer backend.Close()

	server := wsbridge.NewServer(func() store.Store {
		return backend.Hub().NewSession()
	}, log)

	log.Info().Str("listen", listen).Str("data_dir", dataDir).Msg("serving store")
	if err := http.ListenAndServe(listen, server); err != nil {
		return exitError(cmd, exitSysError, fmt.Sprintf("serve: %s", err))
	}
	return nil
}
