package app

// Command はアプリケーションの起動モードを表す。
// 単一バイナリでAPIサーバー・クリーンアップワーカー・マイグレーションを
// 切り替えられるようにし、コンテナイメージを1つに保つ。
type Command string

const (
	// CommandServe はAPIサーバーモード。
	CommandServe Command = "serve"
	// CommandWorker はクリーンアップワーカーモード。
	CommandWorker Command = "worker"
	// CommandMigrate はスキーママイグレーションの適用のみを行う。
	CommandMigrate Command = "migrate"
	// CommandHealthcheck はヘルスチェック1回分を実行して終了する。
	// distrolessイメージにはシェルもcurlもないため、Dockerの
	// HEALTHCHECKから自分自身を呼び出す。
	CommandHealthcheck Command = "healthcheck"
)

var knownCommands = map[string]Command{
	"serve":       CommandServe,
	"worker":      CommandWorker,
	"migrate":     CommandMigrate,
	"healthcheck": CommandHealthcheck,
}

// ParseCommand は先頭の引数をサブコマンドとして解釈する。
// 引数がない場合と未知のコマンドはserveにフォールバックする。
func ParseCommand(args []string) Command {
	if len(args) == 0 {
		return CommandServe
	}
	if cmd, ok := knownCommands[args[0]]; ok {
		return cmd
	}
	return CommandServe
}
