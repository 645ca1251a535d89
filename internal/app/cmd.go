package app

import (
	"encoding/json"
	"io"
	"os"

	"github.com/spf13/cobra"
)

// NewRootCmd はtrackoのルートコマンドを返す。
// サブコマンドを省略した場合はserveとして動作する。
// ログとコマンド出力はwに書き込む。
func NewRootCmd(w io.Writer) *cobra.Command {
	var inMemory bool

	rootCmd := &cobra.Command{
		Use:           "tracko",
		Short:         "Collaborative project workspace server",
		Long:          "REST API and STOMP over WebSocket server for collaborative project workspaces.",
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(cmd, w, inMemory)
		},
	}
	rootCmd.SetOut(w)
	rootCmd.Flags().BoolVar(&inMemory, "in-memory", false, "Use the in-memory store instead of PostgreSQL")

	rootCmd.AddCommand(newServeCmd(w))
	rootCmd.AddCommand(newMigrateCmd(w))
	rootCmd.AddCommand(newHealthcheckCmd())
	rootCmd.AddCommand(newTokenCmd(w))

	return rootCmd
}

func newServeCmd(w io.Writer) *cobra.Command {
	var inMemory bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the API server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(cmd, w, inMemory)
		},
	}
	cmd.Flags().BoolVar(&inMemory, "in-memory", false, "Use the in-memory store instead of PostgreSQL")
	return cmd
}

func serve(cmd *cobra.Command, w io.Writer, inMemory bool) error {
	cfg, err := Init(w)
	if err != nil {
		return err
	}
	return runServe(cmd.Context(), cfg, inMemory)
}

func newMigrateCmd(w io.Writer) *cobra.Command {
	var down int
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
		Long:  "Apply all pending database migrations, or roll back the given number of versions with --down.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := Init(w)
			if err != nil {
				return err
			}
			return runMigrate(cfg, down)
		},
	}
	cmd.Flags().IntVar(&down, "down", 0, "Roll back this many migration versions")
	return cmd
}

// healthcheck は軽量サブコマンドのため、設定の読み込みを行わない
func newHealthcheckCmd() *cobra.Command {
	var port string
	cmd := &cobra.Command{
		Use:   "healthcheck",
		Short: "Check the local /health endpoint (for container health checks)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runHealthcheck(port)
		},
	}
	defaultPort := os.Getenv("SERVER_PORT")
	if defaultPort == "" {
		defaultPort = "8080"
	}
	cmd.Flags().StringVar(&port, "port", defaultPort, "Port the server listens on")
	return cmd
}

func newTokenCmd(w io.Writer) *cobra.Command {
	var userID string
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a signed token for a user id (development use)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := Init(io.Discard)
			if err != nil {
				return err
			}
			token, err := issueToken(cfg, userID)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(w)
			enc.SetIndent("", "  ")
			return enc.Encode(token)
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "User id to put in the token subject")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}
