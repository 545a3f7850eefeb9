package app

import (
	"fmt"
	"io"

	"github.com/spf13/pflag"
)

// Command はアプリケーションの起動モードを表す。
type Command string

const (
	// CommandServe はAPIサーバーモードで起動することを示す。
	CommandServe Command = "serve"
	// CommandMigrate はデータストアのマイグレーションを実行することを示す。
	CommandMigrate Command = "migrate"
	// CommandHealthcheck はヘルスチェックを実行することを示す。
	// distroless環境でのDockerヘルスチェック用。
	CommandHealthcheck Command = "healthcheck"
)

// ParseCommand はコマンドライン引数からサブコマンドを解析する。
// 引数が空、フラグで始まる、またはサポート外のコマンドの場合はCommandServeを返す。
func ParseCommand(args []string) Command {
	if len(args) == 0 {
		return CommandServe
	}

	switch args[0] {
	case "serve":
		return CommandServe
	case "migrate":
		return CommandMigrate
	case "healthcheck":
		return CommandHealthcheck
	default:
		return CommandServe
	}
}

// Options はコマンドラインフラグで指定される設定。
// 空の値は環境変数の設定をそのまま使うことを表す。
type Options struct {
	EnvFile  string
	Port     string
	LogLevel string
}

// ParseFlags はサブコマンドに続くフラグを解析する。
// argsの先頭がサブコマンド名の場合は読み飛ばす。
func ParseFlags(w io.Writer, args []string) (*Options, error) {
	if len(args) > 0 && isCommand(args[0]) {
		args = args[1:]
	}

	opts := &Options{}
	flagSet := pflag.NewFlagSet("pantryman", pflag.ContinueOnError)
	flagSet.SetOutput(w)
	flagSet.StringVar(&opts.EnvFile, "env-file", ".env", "環境変数を読み込むdotenvファイル（存在しない場合は無視）")
	flagSet.StringVarP(&opts.Port, "port", "p", "", "待ち受けポート（SERVER_PORTを上書き）")
	flagSet.StringVar(&opts.LogLevel, "log-level", "", "ログレベル: debug, info, warn, error（LOG_LEVELを上書き）")

	if err := flagSet.Parse(args); err != nil {
		return nil, fmt.Errorf("invalid arguments: %w", err)
	}
	if flagSet.NArg() > 0 {
		return nil, fmt.Errorf("unexpected arguments: %v", flagSet.Args())
	}

	return opts, nil
}

func isCommand(s string) bool {
	switch Command(s) {
	case CommandServe, CommandMigrate, CommandHealthcheck:
		return true
	}
	return false
}
