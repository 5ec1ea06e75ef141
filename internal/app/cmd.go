package app

import (
	"io"
	"os"
	"strconv"

	"github.com/spf13/cobra"
)

// Command はアプリケーションの起動モードを表す。
type Command string

const (
	// CommandServe はAPIサーバーモードで起動することを示す。
	CommandServe Command = "serve"
	// CommandWorker は評価更新とセッション掃除のワーカーモードで起動することを示す。
	CommandWorker Command = "worker"
	// CommandMigrate はデータベースマイグレーションとカテゴリ投入を実行することを示す。
	CommandMigrate Command = "migrate"
	// CommandHealthcheck はヘルスチェックを実行することを示す。
	// distroless環境でのDockerヘルスチェック用。
	CommandHealthcheck Command = "healthcheck"
	// CommandStats は集計結果を表形式で出力することを示す。
	CommandStats Command = "stats"
)

// NewRootCommand はwatchlogのコマンドツリーを構築する。
// 引数なしで実行した場合はserveとして動作する。
// ログはlogOutに、statsの表はcmd.OutOrStdout()に書き出す。
func NewRootCommand(logOut io.Writer) *cobra.Command {
	root := &cobra.Command{
		Use:           "watchlog",
		Short:         "Movie and series tracking backend",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runWithConfig(cmd, logOut, CommandServe, runServe)
		},
	}

	root.AddCommand(
		&cobra.Command{
			Use:   string(CommandServe),
			Short: "Start the HTTP API server",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return runWithConfig(cmd, logOut, CommandServe, runServe)
			},
		},
		&cobra.Command{
			Use:   string(CommandWorker),
			Short: "Run the rating refresh and session cleanup jobs",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return runWithConfig(cmd, logOut, CommandWorker, runWorker)
			},
		},
		newMigrateCommand(logOut),
		newHealthcheckCommand(),
		newStatsCommand(logOut),
	)
	return root
}

func newMigrateCommand(logOut io.Writer) *cobra.Command {
	var skipSeed bool
	cmd := &cobra.Command{
		Use:   string(CommandMigrate),
		Short: "Apply database migrations and seed categories",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runWithConfig(cmd, logOut, CommandMigrate, func(cmd *cobra.Command, a *appContext) error {
				return runMigrate(cmd, a, !skipSeed)
			})
		},
	}
	cmd.Flags().BoolVar(&skipSeed, "skip-seed", false, "Do not insert the default categories")
	return cmd
}

// newHealthcheckCommand は設定の読み込みを行わない軽量サブコマンドを返す。
func newHealthcheckCommand() *cobra.Command {
	var port string
	cmd := &cobra.Command{
		Use:   string(CommandHealthcheck),
		Short: "Probe the local /health endpoint",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if port == "" {
				port = defaultHealthcheckPort()
			}
			return runHealthcheck(cmd.Context(), port)
		},
	}
	cmd.Flags().StringVar(&port, "port", "", "Server port (defaults to SERVER_PORT or 8080)")
	return cmd
}

func newStatsCommand(logOut io.Writer) *cobra.Command {
	var (
		userID int64
		days   int
	)
	cmd := &cobra.Command{
		Use:   string(CommandStats),
		Short: "Print analytics tables",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runWithConfig(cmd, logOut, CommandStats, func(cmd *cobra.Command, a *appContext) error {
				return runStats(cmd, a, statsOptions{UserID: userID, Days: days})
			})
		},
	}
	cmd.Flags().Int64Var(&userID, "user", 0, "Also print statistics for this user id")
	cmd.Flags().IntVar(&days, "days", 30, "Window in days for user statistics")
	return cmd
}

func defaultHealthcheckPort() string {
	port := os.Getenv("SERVER_PORT")
	if _, err := strconv.Atoi(port); err != nil {
		return "8080"
	}
	return port
}
