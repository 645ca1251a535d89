// Command tracko は共同プロジェクトワークスペースのAPIサーバーを起動する。
package main

import (
	"log/slog"
	"os"

	"github.com/johndonneUZH/tracko-server-sub001/internal/app"
)

func main() {
	if err := app.Run(os.Stdout, os.Args[1:]); err != nil {
		slog.Error("tracko exited with error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
